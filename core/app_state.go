package core

// AppState is the top-level struct of owned subsystems, referenced through
// shared handles rather than the original source's cyclic Arc references
// (§9 design note). Each per-rollup in-memory index (CanProvideTransactionInfo,
// CanProvideEpochInfo, the epoch bitmap) is created lazily and guarded by its
// own lock; decryptor results flow back via direct KV writes plus a
// CanProvideTransactionInfo update, never through a callback into AppState.

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// AppState owns every subsystem a node needs: storage, metadata, the Merkle
// engine, the RPC client, and the decryptor.
type AppState struct {
	Log  *logrus.Logger
	Self Address

	KV          *KVStore
	Rollups     *RollupStore
	Clusters    *ClusterStore
	ClusterMeta *ClusterMetadataStore
	RollupMeta  *RollupMetadataStore
	Snapshots   *ClusterSnapshotManager
	MerkleTrees *MerkleTreeManager
	RawTx       *RawTransactionStore
	EncTx       *EncryptedTransactionStore
	Commitments *OrderCommitmentStore
	Batches     *BatchStore
	Operator    *Operator
	Decryptor   *Decryptor
	RPCClient   RPCClient
	Signer      Signer

	// BuilderRPCURL, if set, receives a best-effort relay of every accepted
	// raw transaction (spec §4.3 step 10).
	BuilderRPCURL string

	mu                   sync.Mutex
	canProvideTx         map[string]*CanProvideTransactionInfo
	canProvideEpoch      map[string]*CanProvideEpochInfo
	epochBitmapByCluster map[string]*EpochBitmap
}

// NewAppState wires a fresh AppState over an already-open KVStore. If
// keyGenRPCURL is empty, the decryptor is still wired but its polls are
// permanent no-ops (RPCKeySource.PollLatest short-circuits) — encrypted
// transactions are accepted and reserved but never become providable.
func NewAppState(kv *KVStore, log *logrus.Logger, self Address, signer Signer, rpcClient RPCClient, keyGenRPCURL string) *AppState {
	rollups := NewRollupStore(kv)
	clusters := NewClusterStore(kv)
	clusterMeta := NewClusterMetadataStore(kv)
	rawTx := NewRawTransactionStore(kv)

	a := &AppState{
		Log:                  log,
		Self:                 self,
		KV:                   kv,
		Rollups:              rollups,
		Clusters:             clusters,
		ClusterMeta:          clusterMeta,
		RollupMeta:           NewRollupMetadataStore(kv),
		Snapshots:            NewClusterSnapshotManager(),
		MerkleTrees:          NewMerkleTreeManager(),
		RawTx:                rawTx,
		EncTx:                NewEncryptedTransactionStore(kv),
		Commitments:          NewOrderCommitmentStore(kv),
		Batches:              NewBatchStore(kv),
		Operator:             NewOperator(clusters, rollups, clusterMeta),
		RPCClient:            rpcClient,
		Signer:               signer,
		canProvideTx:         make(map[string]*CanProvideTransactionInfo),
		canProvideEpoch:      make(map[string]*CanProvideEpochInfo),
		epochBitmapByCluster: make(map[string]*EpochBitmap),
	}

	keySource := NewRPCKeySource(rpcClient, keyGenRPCURL)
	a.Decryptor = NewDecryptor(log, keySource, StubCipher{}, rawTx, func(rollupID string, batch, order uint64) {
		a.CanProvideTx(rollupID).Mark(batch, order)
	})

	return a
}

// CanProvideTx returns rollupID's transaction-availability index, creating
// it if absent.
func (a *AppState) CanProvideTx(rollupID string) *CanProvideTransactionInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.canProvideTx[rollupID]
	if !ok {
		idx = NewCanProvideTransactionInfo()
		a.canProvideTx[rollupID] = idx
	}
	return idx
}

// CanProvideEpoch returns rollupID's epoch-availability index, creating it
// if absent.
func (a *AppState) CanProvideEpoch(rollupID string) *CanProvideEpochInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.canProvideEpoch[rollupID]
	if !ok {
		idx = NewCanProvideEpochInfo()
		a.canProvideEpoch[rollupID] = idx
	}
	return idx
}

// EpochBitmapFor returns clusterID's epoch-acknowledgment bitmap, creating
// it if absent.
func (a *AppState) EpochBitmapFor(clusterID string) *EpochBitmap {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.epochBitmapByCluster[clusterID]
	if !ok {
		b = NewEpochBitmap()
		a.epochBitmapByCluster[clusterID] = b
	}
	return b
}
