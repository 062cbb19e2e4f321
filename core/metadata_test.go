package core

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestMetadataKV(t *testing.T) *KVStore {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	store, err := OpenKVStore(t.TempDir(), log)
	if err != nil {
		t.Fatalf("OpenKVStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRollupMetadataMutateAdvancesCounters(t *testing.T) {
	store := NewRollupMetadataStore(newTestMetadataKV(t))

	next, err := store.Mutate("rollup-a", func(m RollupMetadata) (RollupMetadata, error) {
		m.TransactionOrder++
		return m, nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if next.TransactionOrder != 1 {
		t.Fatalf("TransactionOrder = %d, want 1", next.TransactionOrder)
	}
	if next.ProvidedTransactionOrder != -1 {
		t.Fatalf("ProvidedTransactionOrder = %d, want -1 sentinel preserved", next.ProvidedTransactionOrder)
	}

	got, err := store.Get("rollup-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TransactionOrder != 1 {
		t.Fatalf("persisted TransactionOrder = %d, want 1", got.TransactionOrder)
	}
}

func TestClusterMetadataInitAndEpochLeaderOnce(t *testing.T) {
	store := NewClusterMetadataStore(newTestMetadataKV(t))
	if err := store.Init("cluster-a"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	a := addr(1)
	_, err := store.Mutate("cluster-a", func(m *ClusterMetadata) error {
		return m.SetEpochLeaderOnce(8, a)
	})
	if err != nil {
		t.Fatalf("Mutate SetEpochLeaderOnce: %v", err)
	}

	_, err = store.Mutate("cluster-a", func(m *ClusterMetadata) error {
		return m.SetEpochLeaderOnce(8, addr(2))
	})
	if err == nil {
		t.Fatal("expected rewriting epoch_leader_map[8] with a different address to fail")
	}

	_, err = store.Mutate("cluster-a", func(m *ClusterMetadata) error {
		return m.SetEpochLeaderOnce(8, a)
	})
	if err != nil {
		t.Fatalf("re-setting the same leader for the same epoch should be a no-op, got: %v", err)
	}
}

func TestClusterMetadataGetBeforeInitFails(t *testing.T) {
	store := NewClusterMetadataStore(newTestMetadataKV(t))
	_, err := store.Get("missing-cluster")
	if err == nil {
		t.Fatal("expected an error reading an uninitialized cluster")
	}
	if kind, _ := KindOf(err); kind != KindClusterMetadataNotFound {
		t.Fatalf("kind = %v, want KindClusterMetadataNotFound", kind)
	}
}

func TestCanProvideTransactionInfoLastValidPrefix(t *testing.T) {
	info := NewCanProvideTransactionInfo()
	if info.LastValidTransactionOrder(4) != -1 {
		t.Fatal("expected -1 before any slot is marked")
	}
	info.Mark(4, 0)
	info.Mark(4, 1)
	info.Mark(4, 2)
	// gap at 3
	info.Mark(4, 5)

	if got := info.LastValidTransactionOrder(4); got != 2 {
		t.Fatalf("LastValidTransactionOrder = %d, want 2", got)
	}
}

func TestCanProvideTransactionInfoForgetUpTo(t *testing.T) {
	info := NewCanProvideTransactionInfo()
	info.Mark(1, 0)
	info.Mark(2, 0)
	info.Mark(3, 0)
	info.ForgetUpTo(2)

	if info.Has(1, 0) || info.Has(2, 0) {
		t.Fatal("expected batches <= 2 to be forgotten")
	}
	if !info.Has(3, 0) {
		t.Fatal("expected batch 3 to remain tracked")
	}
}

func TestCanProvideEpochInfoLastValidCompletedEpoch(t *testing.T) {
	info := NewCanProvideEpochInfo()
	info.Mark(7)
	info.Mark(8)
	// gap at 9
	info.Mark(10)

	if got := info.LastValidCompletedEpoch(6); got != 8 {
		t.Fatalf("LastValidCompletedEpoch(6) = %d, want 8", got)
	}
	if got := info.LastValidCompletedEpoch(9); got != 10 {
		t.Fatalf("LastValidCompletedEpoch(9) = %d, want 10 (epoch 10 directly follows the provided epoch 9)", got)
	}
}
