package core

// Batch finalizer (C8): triggered when transaction_order wraps, spawned as
// a background task so the ingest reply is not blocked (spec §4.7).

import (
	"context"
	"time"
)

const (
	batchFinalizeRetryDelay = 2 * time.Second
	batchFinalizeMaxRetries = 5
)

// ScheduleBatchFinalization spawns the finalizer for (rollupID, b) on its
// own goroutine, retrying transient failures with a fixed delay and bounded
// retry count (§4.7 step 7, §5 background-task restart policy).
func (a *AppState) ScheduleBatchFinalization(rollupID string, b uint64) {
	go func() {
		var err error
		for attempt := 0; attempt < batchFinalizeMaxRetries; attempt++ {
			err = a.FinalizeBatch(rollupID, b)
			if err == nil {
				return
			}
			if a.Log != nil {
				a.Log.WithError(err).Warnf("batch finalization attempt %d failed for rollup %s batch %d", attempt+1, rollupID, b)
			}
			time.Sleep(batchFinalizeRetryDelay)
		}
		if a.Log != nil {
			a.Log.WithError(err).Errorf("batch finalization gave up for rollup %s batch %d", rollupID, b)
		}
	}()
}

// FinalizeBatch builds and persists Batch{rollupID, b} using this node as
// creator and signer (the local-finalization path; SyncBatchCreation uses
// FinalizeBatchWithCreator for the replicated path).
func (a *AppState) FinalizeBatch(rollupID string, b uint64) error {
	return a.finalizeBatch(rollupID, b, a.Self, a.Signer)
}

// FinalizeBatchWithCreator builds and persists Batch{rollupID, b} recording
// creator as the batch creator, without re-signing locally (used when
// applying a peer's sync_batch_creation message).
func (a *AppState) FinalizeBatchWithCreator(rollupID string, b uint64, creator Address) error {
	return a.finalizeBatch(rollupID, b, creator, nil)
}

func (a *AppState) finalizeBatch(rollupID string, b uint64, creator Address, signer Signer) error {
	exists, err := a.Batches.Exists(rollupID, b)
	if err != nil {
		return err
	}
	if exists {
		return nil // idempotent, §4.7 step 1
	}

	rollup, err := a.Rollups.Get(rollupID)
	if err != nil {
		return err
	}

	rawList := make([]RawTransaction, rollup.MaxTransactionCountPerBatch)
	encList := make([]*EncryptedTransaction, rollup.MaxTransactionCountPerBatch)

	for o := uint64(0); o < rollup.MaxTransactionCountPerBatch; o++ {
		raw, isDirectSent, ok, err := a.RawTx.Get(rollupID, b, o)
		if err != nil {
			return err
		}
		if ok {
			rawList[o] = raw
			if !isDirectSent {
				if et, found, err := a.EncTx.Get(rollupID, b, o); err == nil && found {
					encList[o] = &et
				}
			}
			continue
		}

		if et, ok, err := a.EncTx.Get(rollupID, b, o); err == nil && ok {
			encList[o] = &et
			raw, err := a.fetchRawFromPeers(rollup, b, o)
			if err != nil {
				return err
			}
			rawList[o] = raw
			continue
		}

		raw, err = a.fetchRawFromPeers(rollup, b, o)
		if err != nil {
			return err
		}
		rawList[o] = raw
	}

	tree := NewMerkleTree()
	for _, raw := range rawList {
		hash, err := raw.Hash()
		if err != nil {
			return err
		}
		tree.Append(hash[:])
	}
	tree.Finalize()
	root := tree.Root()

	var signature Signature
	if signer != nil {
		digest := HashLeaf(append(append([]byte(nil), []byte(rollupID)...), root[:]...))
		sig, err := signer.Sign(digest)
		if err != nil {
			return err
		}
		signature = sig
	}

	batch := Batch{
		BatchNumber:              b,
		EncryptedTransactionList: encList,
		RawTransactionList:       rawList,
		BatchCommitment:          root,
		BatchCreatorAddress:      creator,
		Signature:                signature,
	}
	if err := a.Batches.Put(rollupID, batch); err != nil {
		return err
	}

	if signer != nil {
		msg := BatchCreationMessage{RollupID: rollupID, BatchNumber: b, BatchCommitment: root, BatchCreatorAddress: creator}
		digest := HashLeaf(batchCreationCanonicalEncoding(msg))
		creatorSig, err := signer.Sign(digest)
		if err == nil {
			a.RPCClient.FireAndForgetMulticast("sync_batch_creation", SyncBatchCreationRequest{
				Message: msg, BatchCreatorSignature: creatorSig, LeaderSignature: creatorSig,
			}, a.peerClusterURLs(rollup))
		}
	}

	a.CanProvideTx(rollupID).ForgetUpTo(b)

	a.submitToValidator(rollup, batch)
	return nil
}

// fetchRawFromPeers fetches a raw transaction missing locally via
// get_raw_transaction_with_order_commitment against peer external RPCs
// (§4.7 step 2).
func (a *AppState) fetchRawFromPeers(rollup Rollup, b, o uint64) (RawTransaction, error) {
	snap, ok := a.Snapshots.Latest(rollup.Platform, rollup.LivenessServiceProvider, rollup.ClusterID)
	if !ok {
		return RawTransaction{}, NewError(KindClusterNotFound, rollup.ClusterID)
	}
	type response struct {
		Raw RawTransaction
	}
	var resp response
	err := a.RPCClient.Fetch(context.Background(), snap.OthersExternalRpcURLList(), "get_raw_transaction_with_order_commitment",
		map[string]interface{}{"rollup_id": rollup.RollupID, "batch_number": b, "transaction_order": o}, &resp)
	if err != nil {
		return RawTransaction{}, WrapError(KindRpcClient, "fetch missing raw transaction from peers", err)
	}
	return resp.Raw, nil
}

// submitToValidator hands the batch commitment to the external
// validation-service-manager, retrying on transient failure with a fixed
// delay and bounded retries (§4.7 step 7).
func (a *AppState) submitToValidator(rollup Rollup, batch Batch) {
	if rollup.ValidationInfo.ValidatorURL == "" {
		return
	}
	go func() {
		var err error
		for attempt := 0; attempt < batchFinalizeMaxRetries; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultCallTimeout)
			err = a.RPCClient.Request(ctx, rollup.ValidationInfo.ValidatorURL, "submit_batch_commitment", batch, nil)
			cancel()
			if err == nil {
				return
			}
			time.Sleep(batchFinalizeRetryDelay)
		}
		if a.Log != nil {
			a.Log.WithError(err).Errorf("validator submission gave up for rollup %s batch %d", rollup.RollupID, batch.BatchNumber)
		}
	}()
}
