package core

// Internal operator RPCs (§6: add_cluster, add_rollup, get_cluster,
// get_sequencing_infos), supplemented from original_source/tx_orderer since
// the distillation names but does not detail them. CRUD over the
// ClusterStore/RollupStore, consistent with §3 Lifecycles ("created by
// external control-plane RPCs ... never deleted").

// Operator bundles the control-plane operations over cluster and rollup
// registration.
type Operator struct {
	clusters *ClusterStore
	rollups  *RollupStore
	metadata *ClusterMetadataStore
}

// NewOperator wires the stores backing the operator surface.
func NewOperator(clusters *ClusterStore, rollups *RollupStore, metadata *ClusterMetadataStore) *Operator {
	return &Operator{clusters: clusters, rollups: rollups, metadata: metadata}
}

// AddCluster registers a new cluster and initializes its ClusterMetadata.
func (o *Operator) AddCluster(c *Cluster) error {
	if err := o.clusters.Add(c); err != nil {
		return err
	}
	return o.metadata.Init(c.ClusterID)
}

// AddRollup registers a new rollup and associates it with its cluster.
func (o *Operator) AddRollup(r Rollup) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := o.clusters.Get(r.ClusterID); err != nil {
		return err
	}
	if err := o.rollups.Add(r); err != nil {
		return err
	}
	return o.clusters.AddRollupToCluster(r.ClusterID, r.RollupID)
}

// GetCluster returns a cluster's registration record.
func (o *Operator) GetCluster(clusterID string) (*Cluster, error) {
	return o.clusters.Get(clusterID)
}

// SequencingInfo is one rollup's summary as returned by
// get_sequencing_infos: which cluster it belongs to and that cluster's
// current leader, if known.
type SequencingInfo struct {
	RollupID   string
	ClusterID  string
	IsLeader   bool
	Epoch      uint64
	LeaderInfo *TxOrdererRpcInfo
}

// GetSequencingInfos returns the sequencing summary for every rollup
// registered to clusterID.
func (o *Operator) GetSequencingInfos(clusterID string) ([]SequencingInfo, error) {
	c, err := o.clusters.Get(clusterID)
	if err != nil {
		return nil, err
	}
	meta, err := o.metadata.Get(clusterID)
	if err != nil {
		return nil, err
	}

	var out []SequencingInfo
	for _, rollupID := range c.RollupIDList() {
		out = append(out, SequencingInfo{
			RollupID:   rollupID,
			ClusterID:  clusterID,
			IsLeader:   meta.IsLeader,
			Epoch:      meta.Epoch,
			LeaderInfo: meta.LeaderTxOrdererRpcInfo,
		})
	}
	return out, nil
}
