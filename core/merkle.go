package core

// Incremental Keccak-256 Merkle tree used to commit the raw transactions of
// a single batch as they are appended one at a time by the leader.
//
// Append is incremental: each level collapses pairs of nodes into a parent
// as soon as the level's size is even, so a sibling path can be captured
// before the tree is finalized ("pre" path). Finalize pads every odd level
// by duplicating its right-most node, producing the padded binary tree and,
// for each leaf, the remaining siblings needed to complete its proof ("post"
// path). verify() walks pre ∥ post by index parity.
//
// A single tree is single-writer; MerkleTreeManager below serialises access
// per rollup.

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

// MerkleTree is an incremental, then finalized, binary Merkle tree over
// Keccak-256 leaves.
type MerkleTree struct {
	mu    sync.Mutex
	nodes [][][32]byte // nodes[0] is the leaf level
}

// NewMerkleTree returns an empty tree ready for Append.
func NewMerkleTree() *MerkleTree {
	return &MerkleTree{nodes: [][][32]byte{{}}}
}

// HashLeaf returns the Keccak-256 hash of data exactly as given. Append runs
// every leaf through it; the ingest path, the batch finalizer and
// GetPostMerklePath pass the 32-byte binary transaction hash, not its hex
// string.
func HashLeaf(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(data))
	return out
}

func hashPair(left, right [32]byte) [32]byte {
	buf := make([]byte, 64)
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	var out [32]byte
	copy(out[:], crypto.Keccak256(buf))
	return out
}

// Append hashes data, inserts it as the next leaf, and returns its index
// together with the pre-Merkle path: the sibling nodes needed to prove
// inclusion of the leaf using only nodes that existed before this append.
func (t *MerkleTree) Append(data []byte) (uint64, [][32]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prePath := t.prePath()
	leaf := HashLeaf(data)
	t.nodes[0] = append(t.nodes[0], leaf)
	index := uint64(len(t.nodes[0]) - 1)
	t.collapse()
	return index, prePath
}

// prePath mirrors the original tx-orderer's get_pre_merkle_path: walk the
// tree from the leaf level upward, at each level taking the single node that
// would complete a pair for the next insertion, skipping ahead by powers of
// two until the (not yet inserted) next leaf index is covered.
func (t *MerkleTree) prePath() [][32]byte {
	leafCount := len(t.nodes[0])
	if leafCount == 0 {
		return nil
	}
	if leafCount == 1 {
		return [][32]byte{t.nodes[0][0]}
	}

	var path [][32]byte
	leafIndex := 0
	for {
		level := 0
		target := leafIndex
		for len(t.nodes[level]) > target+1 {
			level++
			target /= 2
		}
		path = append(path, t.nodes[level][target])
		leafIndex += 1 << uint(level)
		if leafIndex >= leafCount {
			break
		}
	}
	return path
}

// collapse pushes parents up while the bottom-most growing level has even
// size, matching the original update_tree loop.
func (t *MerkleTree) collapse() {
	level := 0
	for len(t.nodes[level]) != 0 && len(t.nodes[level])%2 == 0 {
		cur := t.nodes[level]
		parent := hashPair(cur[len(cur)-2], cur[len(cur)-1])
		if len(t.nodes) <= level+1 {
			t.nodes = append(t.nodes, [][32]byte{parent})
		} else {
			t.nodes[level+1] = append(t.nodes[level+1], parent)
		}
		level++
	}
}

// Finalize pads every odd-sized level by duplicating its right-most node and
// rebuilds the tree from the leaf level up into a complete binary tree.
// Safe to call multiple times; re-finalizing re-derives from the current
// leaf set.
func (t *MerkleTree) Finalize() {
	t.mu.Lock()
	defer t.mu.Unlock()

	leaves := append([][32]byte(nil), t.nodes[0]...)
	t.nodes = [][][32]byte{leaves}

	level := 0
	for len(t.nodes[level]) > 1 || level == 0 {
		cur := t.nodes[level]
		var next [][32]byte
		for i := 0; i < len(cur); i += 2 {
			left := cur[i]
			right := left
			if i+1 < len(cur) {
				right = cur[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		t.nodes = append(t.nodes, next)
		level++
	}
}

// Root returns the tree's current root. On an empty tree it returns
// Keccak256 of the empty byte string, per spec.
func (t *MerkleTree) Root() [32]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.nodes[0]) == 0 {
		return HashLeaf(nil)
	}
	top := t.nodes[len(t.nodes)-1]
	return top[0]
}

// PostPath returns the sibling nodes needed to complete leaf i's inclusion
// proof after Finalize. Pre-finalize siblings (odd local index at a level)
// were already captured by the pre path at Append time; post-finalize
// siblings (even local index) only exist once the tree is padded, so they
// are read off here.
func (t *MerkleTree) PostPath(i uint64) [][32]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if uint64(len(t.nodes[0])) <= i {
		return nil
	}
	idx := i
	var path [][32]byte
	for level := 0; level < len(t.nodes)-1; level++ {
		if idx%2 == 0 {
			sib := idx + 1
			if sib >= uint64(len(t.nodes[level])) {
				sib = idx
			}
			path = append(path, t.nodes[level][sib])
		}
		idx /= 2
	}
	return path
}

// Verify walks pre ∥ post by index parity and checks the reconstructed root
// equals root.
func Verify(pre, post [][32]byte, index uint64, data []byte, root [32]byte) bool {
	cur := HashLeaf(data)

	// pre is consumed in reverse, post in forward order, mirroring the
	// original implementation's queue semantics.
	preRev := make([][32]byte, len(pre))
	for i, p := range pre {
		preRev[len(pre)-1-i] = p
	}
	postQ := append([][32]byte(nil), post...)

	idx := index
	for len(preRev) > 0 || len(postQ) > 0 {
		var sibling [32]byte
		if idx%2 == 0 {
			if len(postQ) == 0 {
				return false
			}
			sibling, postQ = postQ[0], postQ[1:]
			cur = hashPair(cur, sibling)
		} else {
			if len(preRev) == 0 {
				return false
			}
			sibling, preRev = preRev[0], preRev[1:]
			cur = hashPair(sibling, cur)
		}
		idx /= 2
	}
	return cur == root
}

var errTreeDoesNotExist = errors.New("merkle tree does not exist")

// MerkleTreeManager holds one MerkleTree per rollup behind a per-entry lock,
// as required by the ClusterMetadata → RollupMetadata → MerkleTree → KV
// lock ordering in spec §5.
type MerkleTreeManager struct {
	mu    sync.Mutex
	trees map[string]*MerkleTree
}

// NewMerkleTreeManager returns an empty manager.
func NewMerkleTreeManager() *MerkleTreeManager {
	return &MerkleTreeManager{trees: make(map[string]*MerkleTree)}
}

// Get returns the tree for rollupID, creating one if absent.
func (m *MerkleTreeManager) Get(rollupID string) *MerkleTree {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trees[rollupID]
	if !ok {
		t = NewMerkleTree()
		m.trees[rollupID] = t
	}
	return t
}

// Reset replaces rollupID's tree with a fresh, empty one — used when a batch
// rotates.
func (m *MerkleTreeManager) Reset(rollupID string) *MerkleTree {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := NewMerkleTree()
	m.trees[rollupID] = t
	return t
}

// MustGet returns an error tagged KindMerkleTreeDoesNotExist if rollupID has
// no tree yet, instead of creating one.
func (m *MerkleTreeManager) MustGet(rollupID string) (*MerkleTree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trees[rollupID]
	if !ok {
		return nil, WrapError(KindMerkleTreeDoesNotExist, rollupID, errTreeDoesNotExist)
	}
	return t, nil
}
