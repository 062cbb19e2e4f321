package core

// Batch (spec §3, §4.7): immutable once put. A fixed-size ordered run of
// transactions terminated by a Merkle commitment over their hashes.

// Batch is the persisted, immutable record produced by the finalizer (C8).
type Batch struct {
	BatchNumber uint64

	EncryptedTransactionList []*EncryptedTransaction // nil entry = direct-sent slot
	RawTransactionList       []RawTransaction

	BatchCommitment      [32]byte
	BatchCreatorAddress  Address
	Signature            Signature
}

func batchKVKey(rollupID string, batchNumber uint64) []byte {
	return EncodeKey("batch", rollupID, batchNumber)
}

// BatchStore persists Batch records, write-once per (rollup_id,
// batch_number).
type BatchStore struct {
	kv *KVStore
}

// NewBatchStore wraps kv for Batch records.
func NewBatchStore(kv *KVStore) *BatchStore {
	return &BatchStore{kv: kv}
}

// Exists reports whether rollupID's batch b has already been finalized,
// used by the finalizer's idempotence check (§4.7 step 1).
func (s *BatchStore) Exists(rollupID string, b uint64) (bool, error) {
	return s.kv.Has(batchKVKey(rollupID, b))
}

// Put persists batch. A second write for the same (rollup_id, batch_number)
// is ignored and returns nil.
func (s *BatchStore) Put(rollupID string, batch Batch) error {
	exists, err := s.Exists(rollupID, batch.BatchNumber)
	if err != nil {
		return err
	}
	if exists {
		return nil // idempotent per §4.7 step 1
	}
	return s.kv.Put(batchKVKey(rollupID, batch.BatchNumber), batch)
}

// Get returns rollupID's batch b.
func (s *BatchStore) Get(rollupID string, b uint64) (Batch, error) {
	var batch Batch
	ok, err := s.kv.Get(batchKVKey(rollupID, b), &batch)
	if err != nil {
		return Batch{}, err
	}
	if !ok {
		return Batch{}, NewError(KindDatabase, "batch not found")
	}
	return batch, nil
}
