package core

// Cluster snapshot (C3): an immutable view of cluster membership and RPC
// endpoints as observed at a specific L1 block height. Snapshots are keyed
// by (platform, provider, cluster_id, block_height) and retained in a ring
// of length block_margin; older heights may be evicted per spec §3.

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TxOrdererRpcInfo names one cluster member's address and reachable RPC
// endpoints. Either URL may be empty if that surface is not exposed.
type TxOrdererRpcInfo struct {
	Address         Address
	ExternalRPCURL  string
	ClusterRPCURL   string
}

// ClusterSnapshot is one immutable membership view at a given block height.
type ClusterSnapshot struct {
	Platform    Platform
	Provider    string
	ClusterID   string
	BlockHeight uint64
	BlockMargin uint64
	Self        Address

	// order preserves insertion order so iteration-order-sensitive getters
	// (§4.2: "must be stable under iteration order") are reproducible.
	order   []int
	members map[int]TxOrdererRpcInfo
}

// NewClusterSnapshot returns an empty snapshot ready for Register calls.
func NewClusterSnapshot(platform Platform, provider, clusterID string, blockHeight, blockMargin uint64, self Address) *ClusterSnapshot {
	return &ClusterSnapshot{
		Platform:    platform,
		Provider:    provider,
		ClusterID:   clusterID,
		BlockHeight: blockHeight,
		BlockMargin: blockMargin,
		Self:        self,
		members:     make(map[int]TxOrdererRpcInfo),
	}
}

// Register adds or replaces the member at index, preserving first-seen
// iteration order.
func (c *ClusterSnapshot) Register(index int, info TxOrdererRpcInfo) {
	if _, exists := c.members[index]; !exists {
		c.order = append(c.order, index)
	}
	c.members[index] = info
}

// Deregister removes the member registered under addr, if any.
func (c *ClusterSnapshot) Deregister(addr Address) {
	for idx, info := range c.members {
		if info.Address.Equal(addr) {
			delete(c.members, idx)
			for i, o := range c.order {
				if o == idx {
					c.order = append(c.order[:i], c.order[i+1:]...)
					break
				}
			}
			return
		}
	}
}

// TxOrdererRpcInfo returns the registered info for addr.
func (c *ClusterSnapshot) TxOrdererRpcInfo(addr Address) (TxOrdererRpcInfo, bool) {
	for _, info := range c.members {
		if info.Address.Equal(addr) {
			return info, true
		}
	}
	return TxOrdererRpcInfo{}, false
}

// IndexOf returns the member index registered for addr.
func (c *ClusterSnapshot) IndexOf(addr Address) (int, bool) {
	for idx, info := range c.members {
		if info.Address.Equal(addr) {
			return idx, true
		}
	}
	return 0, false
}

// Size returns the number of registered members (the cluster size N used by
// the epoch bitmap).
func (c *ClusterSnapshot) Size() int {
	return len(c.members)
}

// RpcURLList returns every member's cluster RPC URL, including self, in
// insertion order.
func (c *ClusterSnapshot) RpcURLList() []string {
	var out []string
	for _, idx := range c.order {
		if info, ok := c.members[idx]; ok && info.ClusterRPCURL != "" {
			out = append(out, info.ClusterRPCURL)
		}
	}
	return out
}

// OtherClusterRpcURLList returns every member's cluster RPC URL except self,
// stable under insertion order (§4.2).
func (c *ClusterSnapshot) OtherClusterRpcURLList() []string {
	var out []string
	for _, idx := range c.order {
		info, ok := c.members[idx]
		if !ok || info.ClusterRPCURL == "" {
			continue
		}
		if info.Address.Equal(c.Self) {
			continue
		}
		out = append(out, info.ClusterRPCURL)
	}
	return out
}

// OthersExternalRpcURLList returns every other member's external RPC URL.
func (c *ClusterSnapshot) OthersExternalRpcURLList() []string {
	var out []string
	for _, idx := range c.order {
		info, ok := c.members[idx]
		if !ok || info.ExternalRPCURL == "" {
			continue
		}
		if info.Address.Equal(c.Self) {
			continue
		}
		out = append(out, info.ExternalRPCURL)
	}
	return out
}

// TxOrdererAddressList returns every member's address, in insertion order.
func (c *ClusterSnapshot) TxOrdererAddressList() []Address {
	var out []Address
	for _, idx := range c.order {
		if info, ok := c.members[idx]; ok {
			out = append(out, info.Address)
		}
	}
	return out
}

// ClusterSnapshotManager retains, per (platform, provider, cluster_id), the
// most recent block_margin snapshots in a ring; older heights are evicted.
type ClusterSnapshotManager struct {
	mu    sync.Mutex
	rings map[string]*lru.Cache[uint64, *ClusterSnapshot]
}

// NewClusterSnapshotManager returns an empty manager.
func NewClusterSnapshotManager() *ClusterSnapshotManager {
	return &ClusterSnapshotManager{rings: make(map[string]*lru.Cache[uint64, *ClusterSnapshot])}
}

func ringKey(platform Platform, provider, clusterID string) string {
	return fmt.Sprintf("%s/%s/%s", platform, provider, clusterID)
}

// Put stores snapshot under its (platform, provider, cluster_id, height)
// key, sizing the ring to snapshot.BlockMargin on first use.
func (m *ClusterSnapshotManager) Put(snapshot *ClusterSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ringKey(snapshot.Platform, snapshot.Provider, snapshot.ClusterID)
	ring, ok := m.rings[key]
	if !ok {
		size := int(snapshot.BlockMargin)
		if size <= 0 {
			size = 1
		}
		var err error
		ring, err = lru.New[uint64, *ClusterSnapshot](size)
		if err != nil {
			return WrapError(KindDatabase, "allocate cluster snapshot ring", err)
		}
		m.rings[key] = ring
	}
	ring.Add(snapshot.BlockHeight, snapshot)
	return nil
}

// Get returns the snapshot registered for (platform, provider, cluster_id)
// at blockHeight, if still within the retention window.
func (m *ClusterSnapshotManager) Get(platform Platform, provider, clusterID string, blockHeight uint64) (*ClusterSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring, ok := m.rings[ringKey(platform, provider, clusterID)]
	if !ok {
		return nil, false
	}
	// Peek leaves recency untouched, so eviction follows insertion order.
	return ring.Peek(blockHeight)
}

// Latest returns the highest-height snapshot currently retained for the
// given cluster, or false if none has been registered yet.
func (m *ClusterSnapshotManager) Latest(platform Platform, provider, clusterID string) (*ClusterSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring, ok := m.rings[ringKey(platform, provider, clusterID)]
	if !ok {
		return nil, false
	}
	var latest *ClusterSnapshot
	for _, key := range ring.Keys() {
		snap, ok := ring.Peek(key)
		if !ok {
			continue
		}
		if latest == nil || snap.BlockHeight > latest.BlockHeight {
			latest = snap
		}
	}
	if latest == nil {
		return nil, false
	}
	return latest, true
}
