package core

// Metadata state (C4): RollupMetadata and ClusterMetadata are the mutable,
// single-writer-per-key records that drive ingest, replication and leader
// handoff. CanProvideTransactionInfo and CanProvideEpochInfo gate what a
// node is willing to hand out on retrieval.

import (
	"sort"
	"sync"
)

// RollupMetadata is the leader/follower counters for one rollup (spec §3).
// ProvidedTransactionOrder uses -1 to mean "no slot in this batch yet
// delivered".
type RollupMetadata struct {
	BatchNumber              uint64
	TransactionOrder         uint64
	ProvidedBatchNumber      uint64
	ProvidedTransactionOrder int64
	CompletedBatchNumber     uint64
	ProvidedEpoch            uint64
}

// NewRollupMetadata returns the zero-value metadata for a freshly registered
// rollup, with ProvidedTransactionOrder at its "none yet" sentinel.
func NewRollupMetadata() RollupMetadata {
	return RollupMetadata{ProvidedTransactionOrder: -1}
}

// ClusterMetadata is the mutable per-(platform, provider, cluster_id) record
// tracking leadership and epoch progress for one rollup's cluster.
type ClusterMetadata struct {
	PlatformBlockHeight    uint64
	IsLeader               bool
	LeaderTxOrdererRpcInfo *TxOrdererRpcInfo
	Epoch                  uint64
	EpochLeaderMap         map[uint64]Address
	MevSearchers           map[string]MevSearcherInfo
}

// NewClusterMetadata returns a fresh, leaderless ClusterMetadata.
func NewClusterMetadata() *ClusterMetadata {
	return &ClusterMetadata{
		EpochLeaderMap: make(map[uint64]Address),
		MevSearchers:   make(map[string]MevSearcherInfo),
	}
}

// rollupMetadataKey / clusterMetadataKey build this record's KV key.
func rollupMetadataKey(rollupID string) []byte { return EncodeKey("rollup_metadata", rollupID) }
func clusterMetadataKey(clusterID string) []byte {
	return EncodeKey("cluster_metadata", clusterID)
}

// lockTable serialises read-modify-write access per string key, implementing
// spec §4.8's "only one get_mut outstanding per key" rule for the metadata
// tables (the Merkle tree and the KV store each hold their own locks lower
// in the §5 lock order).
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable { return &lockTable{locks: make(map[string]*sync.Mutex)} }

func (t *lockTable) lock(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}

// RollupMetadataStore persists and serialises access to RollupMetadata.
type RollupMetadataStore struct {
	kv    *KVStore
	locks *lockTable
}

// NewRollupMetadataStore wraps kv for RollupMetadata records.
func NewRollupMetadataStore(kv *KVStore) *RollupMetadataStore {
	return &RollupMetadataStore{kv: kv, locks: newLockTable()}
}

// Get returns rollupID's metadata, or NewRollupMetadata() (with
// ProvidedTransactionOrder at -1) if none exists yet.
func (s *RollupMetadataStore) Get(rollupID string) (RollupMetadata, error) {
	var m RollupMetadata
	ok, err := s.kv.Get(rollupMetadataKey(rollupID), &m)
	if err != nil {
		return RollupMetadata{}, err
	}
	if !ok {
		return NewRollupMetadata(), nil
	}
	return m, nil
}

// Mutate runs fn under rollupID's single-writer lock, passing the current
// metadata (or NewRollupMetadata() if none exists yet) and persisting
// whatever fn returns.
func (s *RollupMetadataStore) Mutate(rollupID string, fn func(RollupMetadata) (RollupMetadata, error)) (RollupMetadata, error) {
	lock := s.locks.lock(rollupID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.Get(rollupID)
	if err != nil {
		return RollupMetadata{}, err
	}
	next, err := fn(current)
	if err != nil {
		return RollupMetadata{}, err
	}
	if err := s.kv.Put(rollupMetadataKey(rollupID), next); err != nil {
		return RollupMetadata{}, err
	}
	return next, nil
}

// ClusterMetadataStore persists and serialises access to ClusterMetadata.
type ClusterMetadataStore struct {
	kv    *KVStore
	locks *lockTable
}

// NewClusterMetadataStore wraps kv for ClusterMetadata records.
func NewClusterMetadataStore(kv *KVStore) *ClusterMetadataStore {
	return &ClusterMetadataStore{kv: kv, locks: newLockTable()}
}

// Get returns clusterID's metadata, failing with KindClusterMetadataNotFound
// if it has never been initialized.
func (s *ClusterMetadataStore) Get(clusterID string) (*ClusterMetadata, error) {
	var m ClusterMetadata
	ok, err := s.kv.Get(clusterMetadataKey(clusterID), &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewError(KindClusterMetadataNotFound, clusterID)
	}
	if m.EpochLeaderMap == nil {
		m.EpochLeaderMap = make(map[uint64]Address)
	}
	if m.MevSearchers == nil {
		m.MevSearchers = make(map[string]MevSearcherInfo)
	}
	return &m, nil
}

// Init creates clusterID's metadata record if absent; a no-op otherwise.
func (s *ClusterMetadataStore) Init(clusterID string) error {
	lock := s.locks.lock(clusterID)
	lock.Lock()
	defer lock.Unlock()

	exists, err := s.kv.Has(clusterMetadataKey(clusterID))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.kv.Put(clusterMetadataKey(clusterID), NewClusterMetadata())
}

// Mutate runs fn under clusterID's single-writer lock and persists the
// result. If the record has not been Init'd yet, Mutate returns an error
// tagged KindClusterMetadataNotFound without calling fn.
func (s *ClusterMetadataStore) Mutate(clusterID string, fn func(*ClusterMetadata) error) (*ClusterMetadata, error) {
	lock := s.locks.lock(clusterID)
	lock.Lock()
	defer lock.Unlock()

	m, err := s.Get(clusterID)
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	if err := s.kv.Put(clusterMetadataKey(clusterID), m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetEpochLeaderOnce records addr as epoch e's leader, rejecting a rewrite
// per spec's "set exactly once and never rewritten" invariant.
func (c *ClusterMetadata) SetEpochLeaderOnce(epoch uint64, addr Address) error {
	if existing, ok := c.EpochLeaderMap[epoch]; ok {
		if existing.Equal(addr) {
			return nil
		}
		return NewError(KindInvalidTransaction, "epoch_leader_map entry already set for this epoch")
	}
	c.EpochLeaderMap[epoch] = addr
	return nil
}

// CanProvideTransactionInfo tracks, per rollup, which (batch, order) slots
// have a fully persisted raw transaction (not pending decryption).
type CanProvideTransactionInfo struct {
	mu      sync.Mutex
	batches map[uint64]map[uint64]struct{}
}

// NewCanProvideTransactionInfo returns an empty tracker.
func NewCanProvideTransactionInfo() *CanProvideTransactionInfo {
	return &CanProvideTransactionInfo{batches: make(map[uint64]map[uint64]struct{})}
}

// Mark records that (batch, order) is now providable.
func (c *CanProvideTransactionInfo) Mark(batch, order uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.batches[batch]
	if !ok {
		set = make(map[uint64]struct{})
		c.batches[batch] = set
	}
	set[order] = struct{}{}
}

// Has reports whether (batch, order) has been marked providable.
func (c *CanProvideTransactionInfo) Has(batch, order uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.batches[batch]
	if !ok {
		return false
	}
	_, ok = set[order]
	return ok
}

// LastValidTransactionOrder returns the longest consecutive prefix of
// transaction orders, starting at 0, known providable for batch (§4.6
// get_last_valid_transaction_order), or -1 if none.
func (c *CanProvideTransactionInfo) LastValidTransactionOrder(batch uint64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.batches[batch]
	if !ok {
		return -1
	}
	var last int64 = -1
	for {
		if _, ok := set[uint64(last+1)]; !ok {
			break
		}
		last++
	}
	return last
}

// ForgetUpTo deletes tracked entries for every batch <= b, called after
// batch finalization per spec §4.7 step 6.
func (c *CanProvideTransactionInfo) ForgetUpTo(b uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for batch := range c.batches {
		if batch <= b {
			delete(c.batches, batch)
		}
	}
}

// CanProvideEpochInfo is a sorted set of epochs confirmed "end-of-ordering"
// by every cluster member via the bitmap barrier.
type CanProvideEpochInfo struct {
	mu     sync.Mutex
	epochs map[uint64]struct{}
}

// NewCanProvideEpochInfo returns an empty tracker.
func NewCanProvideEpochInfo() *CanProvideEpochInfo {
	return &CanProvideEpochInfo{epochs: make(map[uint64]struct{})}
}

// Mark records that epoch has completed.
func (c *CanProvideEpochInfo) Mark(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[epoch] = struct{}{}
}

// Has reports whether epoch has been confirmed complete.
func (c *CanProvideEpochInfo) Has(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.epochs[epoch]
	return ok
}

// LastValidCompletedEpoch returns the largest epoch e such that every epoch
// in (providedEpoch, e] is marked complete — the longest consecutive run
// starting immediately after providedEpoch (§4.6 step 1). Returns
// providedEpoch if no further epoch is complete.
func (c *CanProvideEpochInfo) LastValidCompletedEpoch(providedEpoch uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := providedEpoch
	for {
		if _, ok := c.epochs[e+1]; !ok {
			return e
		}
		e++
	}
}

// sortedEpochs returns the tracked epochs in ascending order, for tests and
// diagnostics.
func (c *CanProvideEpochInfo) sortedEpochs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, len(c.epochs))
	for e := range c.epochs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
