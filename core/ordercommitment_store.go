package core

// OrderCommitmentStore persists the OrderCommitment issued for each
// (rollup_id, batch, order) slot, served back by get_order_commitment_info.

func orderCommitmentKey(rollupID string, batch, order uint64) []byte {
	return EncodeKey("order_commitment", rollupID, batch, order)
}

// OrderCommitmentStore wraps a KVStore for OrderCommitment records.
type OrderCommitmentStore struct {
	kv *KVStore
}

// NewOrderCommitmentStore wraps kv for OrderCommitment records.
func NewOrderCommitmentStore(kv *KVStore) *OrderCommitmentStore {
	return &OrderCommitmentStore{kv: kv}
}

// Put persists commitment for (rollupID, batch, order).
func (s *OrderCommitmentStore) Put(rollupID string, batch, order uint64, commitment OrderCommitment) error {
	return s.kv.Put(orderCommitmentKey(rollupID, batch, order), commitment)
}

// Get returns the commitment issued for (rollupID, batch, order).
func (s *OrderCommitmentStore) Get(rollupID string, batch, order uint64) (OrderCommitment, bool, error) {
	var c OrderCommitment
	ok, err := s.kv.Get(orderCommitmentKey(rollupID, batch, order), &c)
	return c, ok, err
}
