package core

// External (clients, executors) query surface (§6): read-only lookups and
// the executor-submitted set_max_gas_limit, as distinguished from the
// cluster-internal sync_max_gas_limit in sync.go.

import "context"

// GetBatch returns rollupID's finalized batch b.
func (a *AppState) GetBatch(rollupID string, b uint64) (Batch, error) {
	return a.Batches.Get(rollupID, b)
}

// RawTransactionWithCommitment is the response shape for
// get_raw_transaction_with_order_commitment, also consumed by the batch
// finalizer's peer-fetch path (§4.7 step 2).
type RawTransactionWithCommitment struct {
	Raw        RawTransaction
	Commitment OrderCommitment
}

// GetRawTransactionWithOrderCommitment returns the raw transaction and its
// order commitment at (rollupID, batch, order).
func (a *AppState) GetRawTransactionWithOrderCommitment(rollupID string, batch, order uint64) (RawTransactionWithCommitment, error) {
	raw, _, ok, err := a.RawTx.Get(rollupID, batch, order)
	if err != nil {
		return RawTransactionWithCommitment{}, err
	}
	if !ok {
		return RawTransactionWithCommitment{}, NewError(KindInvalidTransaction, "no raw transaction at this slot")
	}
	commitment, ok, err := a.Commitments.Get(rollupID, batch, order)
	if err != nil {
		return RawTransactionWithCommitment{}, err
	}
	if !ok {
		return RawTransactionWithCommitment{}, NewError(KindInvalidOrderCommitment, "no order commitment at this slot")
	}
	return RawTransactionWithCommitment{Raw: raw, Commitment: commitment}, nil
}

// EncryptedTransactionWithCommitment is the response shape for
// get_encrypted_transaction_with_order_commitment.
type EncryptedTransactionWithCommitment struct {
	Enc        EncryptedTransaction
	Commitment OrderCommitment
}

// GetEncryptedTransactionWithOrderCommitment returns the encrypted
// transaction reserved at (rollupID, batch, order) and its order commitment.
func (a *AppState) GetEncryptedTransactionWithOrderCommitment(rollupID string, batch, order uint64) (EncryptedTransactionWithCommitment, error) {
	et, ok, err := a.EncTx.Get(rollupID, batch, order)
	if err != nil {
		return EncryptedTransactionWithCommitment{}, err
	}
	if !ok {
		return EncryptedTransactionWithCommitment{}, NewError(KindInvalidTransaction, "no encrypted transaction at this slot")
	}
	commitment, ok, err := a.Commitments.Get(rollupID, batch, order)
	if err != nil {
		return EncryptedTransactionWithCommitment{}, err
	}
	if !ok {
		return EncryptedTransactionWithCommitment{}, NewError(KindInvalidOrderCommitment, "no order commitment at this slot")
	}
	return EncryptedTransactionWithCommitment{Enc: et, Commitment: commitment}, nil
}

// EncryptedTransactionEntry is one item in a get_encrypted_transaction_list
// response.
type EncryptedTransactionEntry struct {
	TransactionOrder uint64
	Enc              EncryptedTransaction
}

// GetEncryptedTransactionList returns every encrypted transaction reserved
// in batch b, decrypted or not.
func (a *AppState) GetEncryptedTransactionList(rollupID string, b uint64) ([]EncryptedTransactionEntry, error) {
	rollup, err := a.Rollups.Get(rollupID)
	if err != nil {
		return nil, err
	}
	var out []EncryptedTransactionEntry
	for o := uint64(0); o < rollup.MaxTransactionCountPerBatch; o++ {
		et, ok, err := a.EncTx.Get(rollupID, b, o)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, EncryptedTransactionEntry{TransactionOrder: o, Enc: et})
		}
	}
	return out, nil
}

// GetPostMerklePath rebuilds batch b's Merkle tree from its persisted raw
// transaction list and returns leaf order's post-finalize sibling path, the
// counterpart to the pre-finalize path captured in its OrderCommitment at
// ingest time.
func (a *AppState) GetPostMerklePath(rollupID string, b, order uint64) ([][32]byte, error) {
	batch, err := a.Batches.Get(rollupID, b)
	if err != nil {
		return nil, err
	}
	if order >= uint64(len(batch.RawTransactionList)) {
		return nil, NewError(KindInvalidTransaction, "transaction_order out of range for batch")
	}
	tree := NewMerkleTree()
	for _, raw := range batch.RawTransactionList {
		hash, err := raw.Hash()
		if err != nil {
			return nil, err
		}
		tree.Append(hash[:])
	}
	tree.Finalize()
	return tree.PostPath(order), nil
}

// CanProvideTransactionInfoResult answers get_can_provide_transaction_info:
// the longest unbroken prefix of transaction_order values, starting at 0,
// known providable for batch.
type CanProvideTransactionInfoResult struct {
	Batch                     uint64
	LastValidTransactionOrder int64
}

// GetCanProvideTransactionInfo reports how far batch b's providable prefix
// extends for rollupID.
func (a *AppState) GetCanProvideTransactionInfo(rollupID string, b uint64) CanProvideTransactionInfoResult {
	return CanProvideTransactionInfoResult{
		Batch:                     b,
		LastValidTransactionOrder: a.CanProvideTx(rollupID).LastValidTransactionOrder(b),
	}
}

// GetClusterMetadata returns clusterID's current metadata, the read-back
// surface for external liveness watchers and dashboards.
func (a *AppState) GetClusterMetadata(clusterID string) (*ClusterMetadata, error) {
	return a.ClusterMeta.Get(clusterID)
}

// GetRawTransactionRange is the external, read-only sibling of
// GetRawTransactionEpochList: a plain forward scan starting at
// (fromBatch, fromOrder), bounded by limit, that never mutates
// RollupMetadata. Unlike the cluster variant it is not tied to epoch
// completion or leader rotation.
func (a *AppState) GetRawTransactionRange(ctx context.Context, rollupID string, fromBatch, fromOrder uint64, limit int) ([]RawTransactionEntry, error) {
	rollup, err := a.Rollups.Get(rollupID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	var entries []RawTransactionEntry
	b, o := fromBatch, fromOrder
	for len(entries) < limit {
		raw, _, ok, err := a.RawTx.Get(rollupID, b, o)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		entries = append(entries, RawTransactionEntry{BatchNumber: b, TransactionOrder: o, Raw: raw})
		o++
		if o >= rollup.MaxTransactionCountPerBatch {
			o = 0
			b++
		}
	}
	return entries, nil
}

// SetMaxGasLimit is the executor-submitted counterpart to the
// cluster-internal sync_max_gas_limit: any cluster member may receive it,
// verifies the signature against the rollup's registered executor set,
// applies it locally, then re-signs and propagates sync_max_gas_limit with
// its own cluster-message signature, mirroring the finalizer's
// re-sign-and-multicast pattern in batch_finalizer.go.
func (a *AppState) SetMaxGasLimit(rollupID string, maxGasLimit uint64, executorSig Signature) error {
	rollup, err := a.Rollups.Get(rollupID)
	if err != nil {
		return err
	}

	digest := HashLeaf(EncodeKey(rollupID, maxGasLimit))
	var verified bool
	for _, executor := range rollup.ExecutorAddressList {
		ok, err := VerifySignature(digest, executorSig, executor)
		if err != nil {
			return err
		}
		if ok {
			verified = true
			break
		}
	}
	if !verified {
		return NewError(KindSignerNotFound, "max_gas_limit signature does not match any registered executor")
	}

	if err := a.Rollups.SetMaxGasLimit(rollupID, maxGasLimit); err != nil {
		return err
	}

	clusterSig, err := a.Signer.Sign(digest)
	if err != nil {
		return nil // local apply already succeeded; propagation is best-effort
	}
	a.RPCClient.FireAndForgetMulticast("sync_max_gas_limit", SyncMaxGasLimitRequest{
		RollupID: rollupID, MaxGasLimit: maxGasLimit, Signature: clusterSig,
	}, a.peerClusterURLs(rollup))
	return nil
}
