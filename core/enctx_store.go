package core

// EncryptedTransactionStore persists encrypted transactions reserved at a
// (rollup_id, batch, order) slot pending decryption (spec §4.4).

func encTxKey(rollupID string, batch, order uint64) []byte {
	return EncodeKey("enc_tx", rollupID, batch, order)
}

// EncryptedTransactionStore wraps a KVStore for encrypted transaction
// records.
type EncryptedTransactionStore struct {
	kv *KVStore
}

// NewEncryptedTransactionStore wraps kv for encrypted transaction records.
func NewEncryptedTransactionStore(kv *KVStore) *EncryptedTransactionStore {
	return &EncryptedTransactionStore{kv: kv}
}

// Put reserves (rollupID, batch, order) with et.
func (s *EncryptedTransactionStore) Put(rollupID string, batch, order uint64, et EncryptedTransaction) error {
	return s.kv.Put(encTxKey(rollupID, batch, order), et)
}

// Get returns the encrypted transaction reserved at (rollupID, batch, order).
func (s *EncryptedTransactionStore) Get(rollupID string, batch, order uint64) (EncryptedTransaction, bool, error) {
	var et EncryptedTransaction
	ok, err := s.kv.Get(encTxKey(rollupID, batch, order), &et)
	return et, ok, err
}
