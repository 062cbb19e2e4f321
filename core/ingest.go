package core

// Ingest path (C5): send_raw_transaction and send_encrypted_transaction.
// The leader assigns the next (batch_number, transaction_order) under a
// single write lock, persists, replicates, and returns an order commitment.

import (
	"context"
)

// SendRawTransaction implements spec §4.3.
func (a *AppState) SendRawTransaction(ctx context.Context, rollupID string, raw RawTransaction) (OrderCommitment, error) {
	rollup, err := a.Rollups.Get(rollupID)
	if err != nil {
		return OrderCommitment{}, err
	}
	clusterMeta, err := a.ClusterMeta.Get(rollup.ClusterID)
	if err != nil {
		return OrderCommitment{}, err
	}

	if !a.isLeaderFor(raw, clusterMeta) {
		return a.forwardToLeader(ctx, clusterMeta, "send_raw_transaction", rawTxRequest{RollupID: rollupID, Raw: raw})
	}

	hash, err := raw.Hash()
	if err != nil {
		return OrderCommitment{}, err
	}

	var commitment OrderCommitment
	var syncArgs SyncRawTransactionRequest
	var batchToFinalize *uint64

	_, err = a.RollupMeta.Mutate(rollupID, func(m RollupMetadata) (RollupMetadata, error) {
		if raw.Variant == RawTransactionVariantEth && raw.Epoch == nil {
			epoch := clusterMeta.Epoch
			raw.Epoch = &epoch
			raw.CurrentLeaderTxOrdererAddress = &a.Self
		}

		b, o := m.BatchNumber, m.TransactionOrder

		if err := a.RawTx.Put(rollupID, b, o, raw, true); err != nil {
			return m, err
		}

		tree := a.MerkleTrees.Get(rollupID)
		_, prePath := tree.Append(hash[:])

		m.TransactionOrder++
		a.CanProvideTx(rollupID).Mark(b, o)

		if m.TransactionOrder == rollup.MaxTransactionCountPerBatch {
			m.BatchNumber++
			m.TransactionOrder = 0
			a.MerkleTrees.Reset(rollupID)
			finished := b
			batchToFinalize = &finished
		}

		data := OrderCommitmentData{
			RollupID:         rollupID,
			BatchNumber:      b,
			TransactionOrder: o,
			TransactionHash:  hash,
			PreMerklePath:    prePath,
		}
		switch rollup.OrderCommitmentType {
		case OrderCommitmentSign:
			c, err := NewSignedCommitment(data, a.Signer)
			if err != nil {
				return m, err
			}
			commitment = c
		default:
			commitment = NewHashCommitment(hash)
		}
		if err := a.Commitments.Put(rollupID, b, o, commitment); err != nil {
			return m, err
		}

		syncArgs = SyncRawTransactionRequest{
			RollupID: rollupID, Batch: b, Order: o,
			Raw: raw, Commitment: commitment, IsDirectSent: true,
		}
		return m, nil
	})
	if err != nil {
		return OrderCommitment{}, err
	}

	a.RPCClient.FireAndForgetMulticast("sync_raw_transaction", syncArgs, a.peerClusterURLs(rollup))

	if a.BuilderRPCURL != "" {
		go func() {
			_ = a.RPCClient.Request(context.Background(), a.BuilderRPCURL, "relay_raw_transaction", raw, nil)
		}()
	}

	if batchToFinalize != nil {
		a.ScheduleBatchFinalization(rollupID, *batchToFinalize)
	}

	return commitment, nil
}

// SendEncryptedTransaction implements spec §4.4.
func (a *AppState) SendEncryptedTransaction(ctx context.Context, rollupID string, et EncryptedTransaction) (OrderCommitment, error) {
	rollup, err := a.Rollups.Get(rollupID)
	if err != nil {
		return OrderCommitment{}, err
	}
	if !encryptedVariantMatches(rollup.EncryptedTransactionType, et.Variant) {
		return OrderCommitment{}, NewError(KindUnsupportedEncryptedMempool, string(rollup.EncryptedTransactionType))
	}
	clusterMeta, err := a.ClusterMeta.Get(rollup.ClusterID)
	if err != nil {
		return OrderCommitment{}, err
	}
	if !clusterMeta.IsLeader {
		return a.forwardToLeader(ctx, clusterMeta, "send_encrypted_transaction", encTxRequest{RollupID: rollupID, Enc: et})
	}

	hash := et.RawTransactionHash()

	var commitment OrderCommitment
	var syncArgs SyncEncryptedTransactionRequest
	var batchToFinalize *uint64

	_, err = a.RollupMeta.Mutate(rollupID, func(m RollupMetadata) (RollupMetadata, error) {
		b, o := m.BatchNumber, m.TransactionOrder

		if err := a.EncTx.Put(rollupID, b, o, et); err != nil {
			return m, err
		}

		tree := a.MerkleTrees.Get(rollupID)
		_, prePath := tree.Append(hash[:])

		m.TransactionOrder++
		// Not marked in CanProvideTransactionInfo yet: reserved, pending
		// decryption (spec §4.4).
		a.Decryptor.Enqueue(rollupID, b, o, et)

		if m.TransactionOrder == rollup.MaxTransactionCountPerBatch {
			m.BatchNumber++
			m.TransactionOrder = 0
			a.MerkleTrees.Reset(rollupID)
			finished := b
			batchToFinalize = &finished
		}

		data := OrderCommitmentData{
			RollupID: rollupID, BatchNumber: b, TransactionOrder: o,
			TransactionHash: hash, PreMerklePath: prePath,
		}
		switch rollup.OrderCommitmentType {
		case OrderCommitmentSign:
			c, err := NewSignedCommitment(data, a.Signer)
			if err != nil {
				return m, err
			}
			commitment = c
		default:
			commitment = NewHashCommitment(hash)
		}
		if err := a.Commitments.Put(rollupID, b, o, commitment); err != nil {
			return m, err
		}

		syncArgs = SyncEncryptedTransactionRequest{
			RollupID: rollupID, Batch: b, Order: o, Enc: et, Commitment: commitment,
		}
		return m, nil
	})
	if err != nil {
		return OrderCommitment{}, err
	}

	a.RPCClient.FireAndForgetMulticast("sync_encrypted_transaction", syncArgs, a.peerClusterURLs(rollup))

	if batchToFinalize != nil {
		a.ScheduleBatchFinalization(rollupID, *batchToFinalize)
	}
	return commitment, nil
}

func encryptedVariantMatches(rollupType EncryptedTransactionType, txVariant EncryptedTransactionVariant) bool {
	switch rollupType {
	case EncryptedTransactionSkde:
		return txVariant == EncryptedTransactionVariantSkde
	default:
		return false
	}
}

// isLeaderFor resolves leadership per §4.3: the inbound message's declared
// leader wins when present, the cluster's own view is the fallback — this is
// intentional to survive follower lag (§9).
func (a *AppState) isLeaderFor(raw RawTransaction, clusterMeta *ClusterMetadata) bool {
	if raw.CurrentLeaderTxOrdererAddress != nil {
		return raw.CurrentLeaderTxOrdererAddress.Equal(a.Self)
	}
	return clusterMeta.IsLeader
}

type rawTxRequest struct {
	RollupID string
	Raw      RawTransaction
}

type encTxRequest struct {
	RollupID string
	Enc      EncryptedTransaction
}

// forwardToLeader drops any lock and relays the original request to the
// known leader's external RPC URL, per §4.3's follower path.
func (a *AppState) forwardToLeader(ctx context.Context, clusterMeta *ClusterMetadata, method string, params interface{}) (OrderCommitment, error) {
	if clusterMeta.LeaderTxOrdererRpcInfo == nil || clusterMeta.LeaderTxOrdererRpcInfo.ExternalRPCURL == "" {
		return OrderCommitment{}, NewError(KindEmptyLeader, "no known leader to forward to")
	}
	var commitment OrderCommitment
	if err := a.RPCClient.Request(ctx, clusterMeta.LeaderTxOrdererRpcInfo.ExternalRPCURL, method, params, &commitment); err != nil {
		return OrderCommitment{}, err
	}
	return commitment, nil
}

// peerClusterURLs returns every other cluster member's cluster RPC URL for
// rollup's cluster, from the latest retained snapshot.
func (a *AppState) peerClusterURLs(rollup Rollup) []string {
	snap, ok := a.Snapshots.Latest(rollup.Platform, rollup.LivenessServiceProvider, rollup.ClusterID)
	if !ok {
		return nil
	}
	return snap.OtherClusterRpcURLList()
}
