package core

// MEV searcher registry (supplemented feature, §6): a simple in-memory
// per-cluster registry exposed only via add_mev_searcher_info and
// remove_mev_searcher_info. No MEV bridge/bundling logic — that is
// explicitly out of scope per §1.

// MevSearcherInfo names one registered MEV searcher's endpoint.
type MevSearcherInfo struct {
	SearcherAddress Address
	RPCURL          string
}

// AddMevSearcher registers or replaces searcher info, keyed by address.
func (c *ClusterMetadata) AddMevSearcher(info MevSearcherInfo) {
	if c.MevSearchers == nil {
		c.MevSearchers = make(map[string]MevSearcherInfo)
	}
	c.MevSearchers[info.SearcherAddress.String()] = info
}

// RemoveMevSearcher deregisters the searcher at addr, if present.
func (c *ClusterMetadata) RemoveMevSearcher(addr Address) {
	delete(c.MevSearchers, addr.String())
}
