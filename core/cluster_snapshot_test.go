package core

import "testing"

func addr(b byte) Address {
	var a Address
	a.Chain = ChainTypeLocal
	a.Bytes[19] = b
	return a
}

func TestClusterSnapshotOtherListsExcludeSelf(t *testing.T) {
	self := addr(1)
	snap := NewClusterSnapshot(PlatformLocal, "provider", "cluster-a", 100, 3, self)
	snap.Register(0, TxOrdererRpcInfo{Address: self, ClusterRPCURL: "self:cluster", ExternalRPCURL: "self:ext"})
	snap.Register(1, TxOrdererRpcInfo{Address: addr(2), ClusterRPCURL: "b:cluster", ExternalRPCURL: "b:ext"})
	snap.Register(2, TxOrdererRpcInfo{Address: addr(3), ClusterRPCURL: "c:cluster", ExternalRPCURL: "c:ext"})

	others := snap.OtherClusterRpcURLList()
	if len(others) != 2 || others[0] != "b:cluster" || others[1] != "c:cluster" {
		t.Fatalf("OtherClusterRpcURLList = %v", others)
	}

	ext := snap.OthersExternalRpcURLList()
	if len(ext) != 2 || ext[0] != "b:ext" || ext[1] != "c:ext" {
		t.Fatalf("OthersExternalRpcURLList = %v", ext)
	}

	if snap.Size() != 3 {
		t.Fatalf("Size = %d, want 3", snap.Size())
	}
}

func TestClusterSnapshotManagerRetentionRing(t *testing.T) {
	m := NewClusterSnapshotManager()
	self := addr(1)

	for h := uint64(1); h <= 5; h++ {
		snap := NewClusterSnapshot(PlatformLocal, "provider", "cluster-a", h, 2, self)
		snap.Register(0, TxOrdererRpcInfo{Address: self})
		if err := m.Put(snap); err != nil {
			t.Fatalf("Put height %d: %v", h, err)
		}
	}

	if _, ok := m.Get(PlatformLocal, "provider", "cluster-a", 3); ok {
		t.Fatal("expected height 3 to have been evicted from a block_margin=2 ring")
	}
	if got, ok := m.Get(PlatformLocal, "provider", "cluster-a", 5); !ok || got.BlockHeight != 5 {
		t.Fatalf("expected height 5 retained, got ok=%v snap=%+v", ok, got)
	}

	latest, ok := m.Latest(PlatformLocal, "provider", "cluster-a")
	if !ok || latest.BlockHeight != 5 {
		t.Fatalf("Latest = %+v, %v, want height 5", latest, ok)
	}
}

func TestClusterSnapshotDeregister(t *testing.T) {
	self := addr(1)
	snap := NewClusterSnapshot(PlatformLocal, "provider", "cluster-a", 1, 1, self)
	snap.Register(0, TxOrdererRpcInfo{Address: self})
	snap.Register(1, TxOrdererRpcInfo{Address: addr(2)})

	snap.Deregister(addr(2))
	if snap.Size() != 1 {
		t.Fatalf("Size after deregister = %d, want 1", snap.Size())
	}
	if _, ok := snap.TxOrdererRpcInfo(addr(2)); ok {
		t.Fatal("expected deregistered address to be absent")
	}
}
