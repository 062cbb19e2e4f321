package core

// Per-epoch "all nodes acknowledged" bitmap, keyed by epoch. The original
// source assumes a cluster size N <= 64 and packs acknowledgments into a
// single u64 per epoch; per §9's design note we generalize to a dynamically
// sized bit-set so cluster size is not an implementation ceiling.

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// EpochBitmap tracks, per epoch, which cluster member indices have sent an
// end-signal for that epoch.
type EpochBitmap struct {
	mu   sync.Mutex
	bits map[uint64]*bitset.BitSet
}

// NewEpochBitmap returns an empty bitmap set.
func NewEpochBitmap() *EpochBitmap {
	return &EpochBitmap{bits: make(map[uint64]*bitset.BitSet)}
}

// SetNodeBit marks member nodeIndex as having acknowledged epoch. Setting the
// same bit twice is a no-op.
func (m *EpochBitmap) SetNodeBit(epoch uint64, nodeIndex uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bits[epoch]
	if !ok {
		b = bitset.New(nodeIndex + 1)
		m.bits[epoch] = b
	}
	b.Set(nodeIndex)
}

// GetNodeBit reports whether nodeIndex has acknowledged epoch.
func (m *EpochBitmap) GetNodeBit(epoch uint64, nodeIndex uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bits[epoch]
	if !ok {
		return false
	}
	return b.Test(nodeIndex)
}

// AllNodesSentSignal reports whether every member in [0, totalNodes) has
// acknowledged epoch. An empty cluster never completes, matching the
// original contract.
func (m *EpochBitmap) AllNodesSentSignal(epoch uint64, totalNodes uint) bool {
	if totalNodes == 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bits[epoch]
	if !ok {
		return false
	}
	for i := uint(0); i < totalNodes; i++ {
		if !b.Test(i) {
			return false
		}
	}
	return true
}

// Count returns the number of acknowledgment bits set for epoch.
func (m *EpochBitmap) Count(epoch uint64) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bits[epoch]
	if !ok {
		return 0
	}
	return b.Count()
}

// Forget drops the bitmap tracked for epoch, once it will never be queried
// again (e.g. epoch has long since completed).
func (m *EpochBitmap) Forget(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bits, epoch)
}
