package core

// Replication RPCs (C6): follower-side state application (spec §4.5).
// Writes are keyed by (batch, order) or by hash, so re-applying a message is
// idempotent, and SyncLeaderTxOrderer only moves epoch and counters forward.
// Authentication differs per RPC: signed order commitments and max_gas_limit
// updates are checked against the current cluster members, batch creation
// against the creator and the current leader. Bare-hash commitments carry no
// signature, and SyncLeaderTxOrderer does not verify its RollupSignature.

type SyncRawTransactionRequest struct {
	RollupID     string
	Batch        uint64
	Order        uint64
	Raw          RawTransaction
	Commitment   OrderCommitment
	IsDirectSent bool
}

// SyncRawTransaction applies a leader's raw-transaction replication message.
func (a *AppState) SyncRawTransaction(req SyncRawTransactionRequest) error {
	if err := a.verifyCommitmentSigner(req.RollupID, req.Commitment); err != nil {
		return err
	}
	if err := a.RawTx.Put(req.RollupID, req.Batch, req.Order, req.Raw, req.IsDirectSent); err != nil {
		return err
	}
	if err := a.Commitments.Put(req.RollupID, req.Batch, req.Order, req.Commitment); err != nil {
		return err
	}
	a.CanProvideTx(req.RollupID).Mark(req.Batch, req.Order)
	return nil
}

type SyncEncryptedTransactionRequest struct {
	RollupID   string
	Batch      uint64
	Order      uint64
	Enc        EncryptedTransaction
	Commitment OrderCommitment
}

// SyncEncryptedTransaction applies a leader's encrypted-transaction
// replication message, enqueuing it into this node's own decryptor.
func (a *AppState) SyncEncryptedTransaction(req SyncEncryptedTransactionRequest) error {
	if err := a.verifyCommitmentSigner(req.RollupID, req.Commitment); err != nil {
		return err
	}
	if err := a.EncTx.Put(req.RollupID, req.Batch, req.Order, req.Enc); err != nil {
		return err
	}
	if err := a.Commitments.Put(req.RollupID, req.Batch, req.Order, req.Commitment); err != nil {
		return err
	}
	a.Decryptor.Enqueue(req.RollupID, req.Batch, req.Order, req.Enc)
	return nil
}

// BatchCreationMessage is the wire shape from spec §6.
type BatchCreationMessage struct {
	RollupID            string
	BatchNumber         uint64
	BatchCommitment     [32]byte
	BatchCreatorAddress Address
}

type SyncBatchCreationRequest struct {
	Message               BatchCreationMessage
	BatchCreatorSignature Signature
	LeaderSignature       Signature
}

// SyncBatchCreation applies a leader's batch-creation replication message,
// triggering local batch construction once both signatures verify (spec
// §4.5).
func (a *AppState) SyncBatchCreation(req SyncBatchCreationRequest) error {
	digest := HashLeaf(batchCreationCanonicalEncoding(req.Message))

	creatorOK, err := VerifySignature(digest, req.BatchCreatorSignature, req.Message.BatchCreatorAddress)
	if err != nil {
		return err
	}
	if !creatorOK {
		return NewError(KindInvalidOrderCommitment, "batch creator signature does not verify")
	}

	rollup, err := a.Rollups.Get(req.Message.RollupID)
	if err != nil {
		return err
	}
	clusterMeta, err := a.ClusterMeta.Get(rollup.ClusterID)
	if err != nil {
		return err
	}
	if clusterMeta.LeaderTxOrdererRpcInfo == nil {
		return NewError(KindEmptyLeader, "no known leader to verify batch creation against")
	}
	leaderOK, err := VerifySignature(digest, req.LeaderSignature, clusterMeta.LeaderTxOrdererRpcInfo.Address)
	if err != nil {
		return err
	}
	if !leaderOK {
		return NewError(KindInvalidOrderCommitment, "leader signature does not verify")
	}

	return a.FinalizeBatchWithCreator(req.Message.RollupID, req.Message.BatchNumber, req.Message.BatchCreatorAddress)
}

func batchCreationCanonicalEncoding(m BatchCreationMessage) []byte {
	buf := append([]byte(nil), []byte(m.RollupID)...)
	buf = append(buf, m.BatchCommitment[:]...)
	buf = append(buf, m.BatchCreatorAddress.Bytes[:]...)
	return buf
}

// LeaderChangeMessage is the wire shape from spec §6.
type LeaderChangeMessage struct {
	RollupID                      string
	ExecutorAddress               Address
	PlatformBlockHeight           uint64
	CurrentLeaderTxOrdererAddress Address
	NextLeaderTxOrdererAddress    Address
}

type SyncLeaderTxOrdererRequest struct {
	LeaderChangeMessage  LeaderChangeMessage
	RollupSignature      Signature
	BatchNumber          uint64
	TransactionOrder     uint64
	ProvidedBatchNumber  uint64
	ProvidedTransactionOrder int64
	ProvidedEpoch        uint64
	CompletedBatchNumber uint64
	OldEpoch             uint64
	NewEpoch             uint64
}

// SyncLeaderTxOrderer applies the extended variant of the authoritative
// state push from the new leader after a rotation (spec §4.5, and §9's
// resolution of the two co-existing variants in favor of the extended one).
func (a *AppState) SyncLeaderTxOrderer(req SyncLeaderTxOrdererRequest) error {
	rollup, err := a.Rollups.Get(req.LeaderChangeMessage.RollupID)
	if err != nil {
		return err
	}

	nextLeader := req.LeaderChangeMessage.NextLeaderTxOrdererAddress
	isSelfNextLeader := nextLeader.Equal(a.Self)

	snap, ok := a.Snapshots.Get(rollup.Platform, rollup.LivenessServiceProvider, rollup.ClusterID, req.LeaderChangeMessage.PlatformBlockHeight)
	var leaderInfo *TxOrdererRpcInfo
	if ok {
		if info, found := snap.TxOrdererRpcInfo(nextLeader); found {
			leaderInfo = &info
		}
	}
	if leaderInfo == nil {
		return NewError(KindTxOrdererInfoNotFound, nextLeader.String())
	}

	_, err = a.ClusterMeta.Mutate(rollup.ClusterID, func(m *ClusterMetadata) error {
		if req.NewEpoch <= m.Epoch {
			// Backward transition: soft error, logged and ignored (§7).
			if a.Log != nil {
				a.Log.Warnf("ignoring non-increasing epoch transition for rollup %s: %d <= %d", rollup.RollupID, req.NewEpoch, m.Epoch)
			}
			return nil
		}
		m.PlatformBlockHeight = req.LeaderChangeMessage.PlatformBlockHeight
		m.IsLeader = isSelfNextLeader
		m.LeaderTxOrdererRpcInfo = leaderInfo
		m.Epoch = req.NewEpoch
		return m.SetEpochLeaderOnce(req.NewEpoch, nextLeader)
	})
	if err != nil {
		return err
	}

	_, err = a.RollupMeta.Mutate(rollup.RollupID, func(m RollupMetadata) (RollupMetadata, error) {
		if req.BatchNumber > m.BatchNumber || (req.BatchNumber == m.BatchNumber && req.TransactionOrder > m.TransactionOrder) {
			m.BatchNumber = req.BatchNumber
			m.TransactionOrder = req.TransactionOrder
		}
		if req.ProvidedBatchNumber > m.ProvidedBatchNumber {
			m.ProvidedBatchNumber = req.ProvidedBatchNumber
		}
		if req.ProvidedTransactionOrder > m.ProvidedTransactionOrder {
			m.ProvidedTransactionOrder = req.ProvidedTransactionOrder
		}
		if req.CompletedBatchNumber > m.CompletedBatchNumber {
			m.CompletedBatchNumber = req.CompletedBatchNumber
		}
		if req.ProvidedEpoch > m.ProvidedEpoch {
			m.ProvidedEpoch = req.ProvidedEpoch
		}
		return m, nil
	})
	if err != nil {
		return err
	}

	a.sendEndSignalAsync(rollup, req.OldEpoch)
	return nil
}

type SyncMaxGasLimitRequest struct {
	RollupID  string
	MaxGasLimit uint64
	Signature Signature
}

// SyncMaxGasLimit applies a cluster-member-signed max_gas_limit update.
func (a *AppState) SyncMaxGasLimit(req SyncMaxGasLimitRequest) error {
	rollup, err := a.Rollups.Get(req.RollupID)
	if err != nil {
		return err
	}
	snap, ok := a.Snapshots.Latest(rollup.Platform, rollup.LivenessServiceProvider, rollup.ClusterID)
	if !ok {
		return NewError(KindClusterNotFound, rollup.ClusterID)
	}
	var verified bool
	for _, member := range snap.TxOrdererAddressList() {
		digest := HashLeaf(EncodeKey(req.RollupID, req.MaxGasLimit))
		ok, err := VerifySignature(digest, req.Signature, member)
		if err != nil {
			return err
		}
		if ok {
			verified = true
			break
		}
	}
	if !verified {
		return NewError(KindSignerNotFound, "max_gas_limit signature does not match any cluster member")
	}
	return a.Rollups.SetMaxGasLimit(req.RollupID, req.MaxGasLimit)
}

// verifyCommitmentSigner checks that a signed OrderCommitment's signer is a
// current cluster member (spec §4.5). Bare-hash commitments carry no
// signature and pass trivially.
func (a *AppState) verifyCommitmentSigner(rollupID string, commitment OrderCommitment) error {
	if commitment.Kind != OrderCommitmentSign {
		return nil
	}
	rollup, err := a.Rollups.Get(rollupID)
	if err != nil {
		return err
	}
	snap, ok := a.Snapshots.Latest(rollup.Platform, rollup.LivenessServiceProvider, rollup.ClusterID)
	if !ok {
		return NewError(KindClusterNotFound, rollup.ClusterID)
	}
	for _, member := range snap.TxOrdererAddressList() {
		ok, err := commitment.Verify(member)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return NewError(KindSignerNotFound, "commitment signer is not a current cluster member")
}
