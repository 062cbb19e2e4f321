package core

// Cluster is the static registration record for a cluster — its member RPC
// endpoints and the rollups it serves — created once via add_cluster /
// add_rollup and read back via get_cluster / get_sequencing_infos (the
// internal operator surface, supplemented from original_source/tx_orderer's
// cluster/mod.rs since the distillation names these RPCs in §6 without
// detailing them). This is distinct from ClusterSnapshot (C3), which is the
// L1-block-height-keyed live membership view built at runtime.

import "sort"

// Cluster is one registered cluster: its block margin and the rollup ids it
// serves, plus the member RPC endpoints known at registration time.
type Cluster struct {
	ClusterID       string
	BlockMargin     uint64
	RollupIDs       map[string]struct{}
	TxOrdererRpcInfos map[int]TxOrdererRpcInfo
}

// NewCluster returns an empty cluster registration.
func NewCluster(clusterID string, blockMargin uint64) *Cluster {
	return &Cluster{
		ClusterID:         clusterID,
		BlockMargin:       blockMargin,
		RollupIDs:         make(map[string]struct{}),
		TxOrdererRpcInfos: make(map[int]TxOrdererRpcInfo),
	}
}

// AddRollup associates rollupID with this cluster.
func (c *Cluster) AddRollup(rollupID string) {
	if c.RollupIDs == nil {
		c.RollupIDs = make(map[string]struct{})
	}
	c.RollupIDs[rollupID] = struct{}{}
}

// RollupIDList returns the cluster's rollup ids in sorted order.
func (c *Cluster) RollupIDList() []string {
	out := make([]string, 0, len(c.RollupIDs))
	for id := range c.RollupIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RegisterTxOrderer adds or replaces the cluster member at index.
func (c *Cluster) RegisterTxOrderer(index int, info TxOrdererRpcInfo) {
	if c.TxOrdererRpcInfos == nil {
		c.TxOrdererRpcInfos = make(map[int]TxOrdererRpcInfo)
	}
	c.TxOrdererRpcInfos[index] = info
}

// DeregisterTxOrderer removes the member registered at addr.
func (c *Cluster) DeregisterTxOrderer(addr Address) {
	for idx, info := range c.TxOrdererRpcInfos {
		if info.Address.Equal(addr) {
			delete(c.TxOrdererRpcInfos, idx)
			return
		}
	}
}

func clusterKVKey(clusterID string) []byte { return EncodeKey("cluster", clusterID) }

// ClusterStore persists Cluster registration records.
type ClusterStore struct {
	kv *KVStore
}

// NewClusterStore wraps kv for Cluster registration records.
func NewClusterStore(kv *KVStore) *ClusterStore {
	return &ClusterStore{kv: kv}
}

// Add registers a new cluster. Re-registration of an existing cluster_id is
// rejected; clusters are never deleted in this core.
func (s *ClusterStore) Add(c *Cluster) error {
	exists, err := s.kv.Has(clusterKVKey(c.ClusterID))
	if err != nil {
		return err
	}
	if exists {
		return NewError(KindInvalidTransaction, "cluster already registered: "+c.ClusterID)
	}
	return s.kv.Put(clusterKVKey(c.ClusterID), c)
}

// Get returns the cluster registered under clusterID.
func (s *ClusterStore) Get(clusterID string) (*Cluster, error) {
	var c Cluster
	ok, err := s.kv.Get(clusterKVKey(clusterID), &c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewError(KindClusterNotFound, clusterID)
	}
	if c.RollupIDs == nil {
		c.RollupIDs = make(map[string]struct{})
	}
	if c.TxOrdererRpcInfos == nil {
		c.TxOrdererRpcInfos = make(map[int]TxOrdererRpcInfo)
	}
	return &c, nil
}

// AddRollupToCluster loads clusterID, associates rollupID, and persists it.
func (s *ClusterStore) AddRollupToCluster(clusterID, rollupID string) error {
	c, err := s.Get(clusterID)
	if err != nil {
		return err
	}
	c.AddRollup(rollupID)
	return s.kv.Put(clusterKVKey(clusterID), c)
}
