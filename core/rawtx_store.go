package core

// RawTransactionStore persists raw transactions twice, as spec §3
// Lifecycles requires: once under (rollup_id, batch_number,
// transaction_order) and once under (rollup_id, transaction_hash), each
// write carrying whether it was direct-sent (ingested locally) or synced
// from a peer.

import "encoding/hex"

type rawTxRecord struct {
	Tx           RawTransaction
	IsDirectSent bool
}

func rawTxOrderKey(rollupID string, batch, order uint64) []byte {
	return EncodeKey("raw_tx", rollupID, batch, order)
}

func rawTxHashKey(rollupID string, hash [32]byte) []byte {
	return EncodeKey("raw_tx_by_hash", rollupID, hex.EncodeToString(hash[:]))
}

// RawTransactionStore wraps a KVStore for raw transaction records.
type RawTransactionStore struct {
	kv *KVStore
}

// NewRawTransactionStore wraps kv for raw transaction records.
func NewRawTransactionStore(kv *KVStore) *RawTransactionStore {
	return &RawTransactionStore{kv: kv}
}

// Put persists tx under both lookup keys. Re-writing the same
// (rollup_id, batch, order) with identical bytes is idempotent, per §3
// Lifecycles ("re-sync is idempotent because keys and payloads are
// deterministic").
func (s *RawTransactionStore) Put(rollupID string, batch, order uint64, tx RawTransaction, isDirectSent bool) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	rec := rawTxRecord{Tx: tx, IsDirectSent: isDirectSent}
	if err := s.kv.Put(rawTxOrderKey(rollupID, batch, order), rec); err != nil {
		return err
	}
	return s.kv.Put(rawTxHashKey(rollupID, hash), rec)
}

// Get returns the raw transaction at (rollupID, batch, order).
func (s *RawTransactionStore) Get(rollupID string, batch, order uint64) (RawTransaction, bool, bool, error) {
	var rec rawTxRecord
	ok, err := s.kv.Get(rawTxOrderKey(rollupID, batch, order), &rec)
	if err != nil || !ok {
		return RawTransaction{}, false, false, err
	}
	return rec.Tx, rec.IsDirectSent, true, nil
}

// GetByHash returns the raw transaction recorded under hash.
func (s *RawTransactionStore) GetByHash(rollupID string, hash [32]byte) (RawTransaction, bool, bool, error) {
	var rec rawTxRecord
	ok, err := s.kv.Get(rawTxHashKey(rollupID, hash), &rec)
	if err != nil || !ok {
		return RawTransaction{}, false, false, err
	}
	return rec.Tx, rec.IsDirectSent, true, nil
}
