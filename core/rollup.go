package core

// Rollup is immutable after registration (spec §3). It is created once via
// the internal add_rollup operator RPC and never deleted in this core.

// OrderCommitmentType selects how ingest acknowledges a transaction's slot.
type OrderCommitmentType string

const (
	OrderCommitmentTransactionHash OrderCommitmentType = "TransactionHash"
	OrderCommitmentSign            OrderCommitmentType = "Sign"
)

// EncryptedTransactionType selects the encrypted-mempool scheme a rollup
// accepts, if any.
type EncryptedTransactionType string

const (
	EncryptedTransactionPvde        EncryptedTransactionType = "Pvde"
	EncryptedTransactionSkde        EncryptedTransactionType = "Skde"
	EncryptedTransactionNotSupported EncryptedTransactionType = "NotSupported"
)

// Platform tags which L1 liveness contract governs a rollup's leader
// rotation, per §9's "dynamic polymorphism over platforms" note.
type Platform string

const (
	PlatformEthereum Platform = "ethereum"
	PlatformHolesky  Platform = "holesky"
	PlatformLocal    Platform = "local"
)

// ValidationInfo names the on-chain validator contract a batch commitment is
// ultimately submitted to by the external validation-service-manager.
type ValidationInfo struct {
	ContractAddress Address
	ValidatorURL    string
}

// Rollup is the static registration record for one rollup.
type Rollup struct {
	RollupID                string
	ClusterID                string
	Platform                 Platform
	LivenessServiceProvider  string
	OrderCommitmentType      OrderCommitmentType
	EncryptedTransactionType EncryptedTransactionType
	MaxTransactionCountPerBatch uint64
	MaxGasLimit              uint64
	ExecutorAddressList      []Address
	ValidationInfo           ValidationInfo
}

// Validate checks the registration-time invariants from spec §3.
func (r Rollup) Validate() error {
	if r.MaxTransactionCountPerBatch == 0 {
		return NewError(KindInvalidTransaction, "max_transaction_count_per_batch must be > 0")
	}
	if r.RollupID == "" {
		return NewError(KindInvalidTransaction, "rollup_id must not be empty")
	}
	if r.ClusterID == "" {
		return NewError(KindInvalidTransaction, "cluster_id must not be empty")
	}
	return nil
}

// rollupKVKey builds the KV key for a rollup's registration record.
func rollupKVKey(rollupID string) []byte {
	return EncodeKey("rollup", rollupID)
}

// RollupStore persists Rollup registration records.
type RollupStore struct {
	kv *KVStore
}

// NewRollupStore wraps kv for rollup registration records.
func NewRollupStore(kv *KVStore) *RollupStore {
	return &RollupStore{kv: kv}
}

// Add registers a new rollup. Re-registration of an existing rollup_id is
// rejected; rollups are never deleted in this core (spec §3 Lifecycles).
func (s *RollupStore) Add(r Rollup) error {
	if err := r.Validate(); err != nil {
		return err
	}
	key := rollupKVKey(r.RollupID)
	exists, err := s.kv.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return NewError(KindInvalidTransaction, "rollup already registered: "+r.RollupID)
	}
	return s.kv.Put(key, r)
}

// Get returns the rollup registered under rollupID.
func (s *RollupStore) Get(rollupID string) (Rollup, error) {
	var r Rollup
	ok, err := s.kv.Get(rollupKVKey(rollupID), &r)
	if err != nil {
		return Rollup{}, err
	}
	if !ok {
		return Rollup{}, NewError(KindRollupNotFound, rollupID)
	}
	return r, nil
}

// SetMaxGasLimit updates a rollup's gas limit, used by sync_max_gas_limit.
func (s *RollupStore) SetMaxGasLimit(rollupID string, limit uint64) error {
	r, err := s.Get(rollupID)
	if err != nil {
		return err
	}
	r.MaxGasLimit = limit
	return s.kv.Put(rollupKVKey(rollupID), r)
}
