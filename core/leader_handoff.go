package core

// Leader handoff and epoch completion (C7): set_leader_tx_orderer,
// get_raw_transaction_list / get_raw_transaction_epoch_list, and the
// epoch-completion bitmap barrier realised by send_end_signal.

import "context"

type SetLeaderTxOrdererRequest struct {
	LeaderChangeMessage LeaderChangeMessage
	RollupSignature     Signature
}

// SetLeaderTxOrderer implements spec §4.6's atomic handoff sequence on the
// receiving (newly designated) node.
func (a *AppState) SetLeaderTxOrderer(ctx context.Context, req SetLeaderTxOrdererRequest) error {
	msg := req.LeaderChangeMessage
	rollup, err := a.Rollups.Get(msg.RollupID)
	if err != nil {
		return err
	}

	snap, ok := a.Snapshots.Get(rollup.Platform, rollup.LivenessServiceProvider, rollup.ClusterID, msg.PlatformBlockHeight)
	if !ok {
		return NewError(KindClusterNotFound, rollup.ClusterID)
	}
	nextInfo, found := snap.TxOrdererRpcInfo(msg.NextLeaderTxOrdererAddress)
	if !found {
		return NewError(KindTxOrdererInfoNotFound, msg.NextLeaderTxOrdererAddress.String())
	}

	isNextLeader := a.Self.Equal(msg.NextLeaderTxOrdererAddress)

	var oldEpoch, newEpoch uint64
	var oldLeaderInfo *TxOrdererRpcInfo

	_, err = a.ClusterMeta.Mutate(rollup.ClusterID, func(m *ClusterMetadata) error {
		oldEpoch = m.Epoch
		newEpoch = oldEpoch + 1

		if m.LeaderTxOrdererRpcInfo != nil {
			old := *m.LeaderTxOrdererRpcInfo
			oldLeaderInfo = &old
		}

		m.PlatformBlockHeight = msg.PlatformBlockHeight
		m.IsLeader = isNextLeader
		m.LeaderTxOrdererRpcInfo = &nextInfo
		m.Epoch = newEpoch
		return m.SetEpochLeaderOnce(newEpoch, msg.NextLeaderTxOrdererAddress)
	})
	if err != nil {
		return err
	}

	if isNextLeader {
		if _, err := a.GetRawTransactionEpochList(ctx, rollup.RollupID); err != nil && a.Log != nil {
			a.Log.WithError(err).Warn("get_raw_transaction_epoch_list failed during leader handoff")
		}
	}

	if oldLeaderInfo != nil && oldLeaderInfo.ClusterRPCURL != "" {
		a.RPCClient.FireAndForgetMulticast("send_end_signal", SendEndSignalRequest{
			RollupID: rollup.RollupID, Epoch: oldEpoch, Sender: a.Self,
		}, []string{oldLeaderInfo.ClusterRPCURL})
	}

	return nil
}

func (a *AppState) sendEndSignalAsync(rollup Rollup, oldEpoch uint64) {
	meta, err := a.ClusterMeta.Get(rollup.ClusterID)
	if err != nil || meta.LeaderTxOrdererRpcInfo == nil {
		return
	}
	// oldEpoch's leader is looked up via epoch_leader_map, not the current
	// leader field, since the cluster may have already rotated further.
	oldLeaderAddr, ok := meta.EpochLeaderMap[oldEpoch]
	if !ok {
		return
	}
	snap, ok := a.Snapshots.Latest(rollup.Platform, rollup.LivenessServiceProvider, rollup.ClusterID)
	if !ok {
		return
	}
	info, found := snap.TxOrdererRpcInfo(oldLeaderAddr)
	if !found || info.ClusterRPCURL == "" {
		return
	}
	a.RPCClient.FireAndForgetMulticast("send_end_signal", SendEndSignalRequest{
		RollupID: rollup.RollupID, Epoch: oldEpoch, Sender: a.Self,
	}, []string{info.ClusterRPCURL})
}

type SendEndSignalRequest struct {
	RollupID string
	Epoch    uint64
	Sender   Address
}

// SendEndSignal implements the receiving (old epoch leader) side of spec
// §4.6's epoch-completion barrier.
func (a *AppState) SendEndSignal(req SendEndSignalRequest) error {
	rollup, err := a.Rollups.Get(req.RollupID)
	if err != nil {
		return err
	}
	meta, err := a.ClusterMeta.Get(rollup.ClusterID)
	if err != nil {
		return err
	}
	recordedLeader, ok := meta.EpochLeaderMap[req.Epoch]
	if !ok || !recordedLeader.Equal(a.Self) {
		// This node is not (or no longer believes it is) the leader of
		// req.Epoch; ignore per the idempotent/tolerant propagation policy.
		return nil
	}

	snap, ok := a.Snapshots.Latest(rollup.Platform, rollup.LivenessServiceProvider, rollup.ClusterID)
	if !ok {
		return NewError(KindClusterNotFound, rollup.ClusterID)
	}
	idx, found := snap.IndexOf(req.Sender)
	if !found {
		return NewError(KindSignerNotFound, "send_end_signal sender is not a current cluster member")
	}

	bitmap := a.EpochBitmapFor(rollup.ClusterID)
	bitmap.SetNodeBit(req.Epoch, uint(idx))

	if bitmap.AllNodesSentSignal(req.Epoch, uint(snap.Size())) {
		a.CanProvideEpoch(req.RollupID).Mark(req.Epoch)
	}
	return nil
}

// RawTransactionEntry is one item in a get_raw_transaction_list /
// get_raw_transaction_epoch_list response.
type RawTransactionEntry struct {
	BatchNumber      uint64
	TransactionOrder uint64
	Raw              RawTransaction
}

// GetRawTransactionEpochList implements spec §4.6's retrieval variant that
// does not rotate the leader, called by the new leader, followers, or the L1
// watcher. It advances and persists RollupMetadata's provided/completed
// cursors as a side effect of the read.
func (a *AppState) GetRawTransactionEpochList(ctx context.Context, rollupID string) ([]RawTransactionEntry, error) {
	canEpoch := a.CanProvideEpoch(rollupID)
	canTx := a.CanProvideTx(rollupID)

	var entries []RawTransactionEntry

	_, err := a.RollupMeta.Mutate(rollupID, func(m RollupMetadata) (RollupMetadata, error) {
		targetEpoch := canEpoch.LastValidCompletedEpoch(m.ProvidedEpoch)

		b := m.CompletedBatchNumber + 1
		completed := m.CompletedBatchNumber

		for {
			batch, err := a.Batches.Get(rollupID, b)
			if err != nil {
				break // not yet finalized; fall through to partial-batch handling
			}
			remaining := 0
			for o, raw := range batch.RawTransactionList {
				epoch := uint64(0)
				if raw.Epoch != nil {
					epoch = *raw.Epoch
				}
				if epoch >= targetEpoch {
					entries = append(entries, RawTransactionEntry{BatchNumber: b, TransactionOrder: uint64(o), Raw: raw})
				} else {
					remaining++
				}
			}
			if remaining == 0 {
				completed = b
			}
			b++
		}

		lastOrder := canTx.LastValidTransactionOrder(b)
		for o := int64(0); o <= lastOrder; o++ {
			raw, _, ok, err := a.RawTx.Get(rollupID, b, uint64(o))
			if err != nil {
				return m, err
			}
			if !ok {
				break
			}
			entries = append(entries, RawTransactionEntry{BatchNumber: b, TransactionOrder: uint64(o), Raw: raw})
		}

		m.CompletedBatchNumber = completed
		m.ProvidedBatchNumber = b
		if lastOrder >= 0 {
			m.ProvidedTransactionOrder = lastOrder
		}
		m.ProvidedEpoch = targetEpoch
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// GetRawTransactionList is the rotation-capable cluster variant: it carries
// a LeaderChangeMessage and, in addition to the retrieval above,
// propagates the new leader state via sync_leader_tx_orderer (§9's
// resolution of the get_raw_transaction_list vs. get_raw_transaction_epoch_list
// ambiguity).
func (a *AppState) GetRawTransactionList(ctx context.Context, rollupID string, msg LeaderChangeMessage) ([]RawTransactionEntry, error) {
	entries, err := a.GetRawTransactionEpochList(ctx, rollupID)
	if err != nil {
		return nil, err
	}

	rollup, err := a.Rollups.Get(rollupID)
	if err != nil {
		return nil, err
	}
	meta, err := a.ClusterMeta.Get(rollup.ClusterID)
	if err != nil {
		return nil, err
	}
	rm, err := a.RollupMeta.Get(rollupID)
	if err != nil {
		return nil, err
	}

	req := SyncLeaderTxOrdererRequest{
		LeaderChangeMessage:      msg,
		BatchNumber:              rm.BatchNumber,
		TransactionOrder:         rm.TransactionOrder,
		ProvidedBatchNumber:      rm.ProvidedBatchNumber,
		ProvidedTransactionOrder: rm.ProvidedTransactionOrder,
		ProvidedEpoch:            rm.ProvidedEpoch,
		CompletedBatchNumber:     rm.CompletedBatchNumber,
		OldEpoch:                 meta.Epoch,
		NewEpoch:                 meta.Epoch + 1,
	}
	a.RPCClient.FireAndForgetMulticast("sync_leader_tx_orderer", req, a.peerClusterURLs(rollup))

	return entries, nil
}
