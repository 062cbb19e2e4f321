package core

import (
	"fmt"
	"testing"
)

func TestMerkleTreeEmptyRoot(t *testing.T) {
	tree := NewMerkleTree()
	got := tree.Root()
	want := HashLeaf(nil)
	if got != want {
		t.Fatalf("empty root = %x, want %x", got, want)
	}
}

func TestMerkleTreeSingleLeaf(t *testing.T) {
	tree := NewMerkleTree()
	idx, pre := tree.Append([]byte("tx0"))
	if idx != 0 {
		t.Fatalf("index = %d, want 0", idx)
	}
	tree.Finalize()

	want := hashPair(HashLeaf([]byte("tx0")), HashLeaf([]byte("tx0")))
	if tree.Root() != want {
		t.Fatalf("root = %x, want %x (H(leaf||leaf))", tree.Root(), want)
	}

	post := tree.PostPath(0)
	if len(pre) != 0 || len(post) != 1 {
		t.Fatalf("expected empty pre path and single-sibling post path for single leaf, got pre=%d post=%d", len(pre), len(post))
	}
	if !Verify(pre, post, 0, []byte("tx0"), tree.Root()) {
		t.Fatal("verify failed for single-leaf tree")
	}
}

func TestMerkleTreeAppendVerifyRoundTrip(t *testing.T) {
	for n := 2; n <= 16; n++ {
		n := n
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			tree := NewMerkleTree()
			var leaves [][]byte
			var pres [][][32]byte
			for i := 0; i < n; i++ {
				data := []byte(fmt.Sprintf("tx-%d", i))
				_, pre := tree.Append(data)
				leaves = append(leaves, data)
				pres = append(pres, pre)
			}
			tree.Finalize()
			root := tree.Root()

			for i := 0; i < n; i++ {
				post := tree.PostPath(uint64(i))
				if !Verify(pres[i], post, uint64(i), leaves[i], root) {
					t.Fatalf("verify failed for leaf %d of %d", i, n)
				}
			}
		})
	}
}

func TestMerkleTreeVerifyRejectsWrongData(t *testing.T) {
	tree := NewMerkleTree()
	_, pre := tree.Append([]byte("tx0"))
	tree.Append([]byte("tx1"))
	tree.Finalize()
	post := tree.PostPath(0)
	root := tree.Root()

	if Verify(pre, post, 0, []byte("not-tx0"), root) {
		t.Fatal("verify unexpectedly succeeded for tampered leaf data")
	}
}

func TestMerkleTreeManagerResetAndMustGet(t *testing.T) {
	m := NewMerkleTreeManager()
	if _, err := m.MustGet("rollup-a"); err == nil {
		t.Fatal("expected error before any tree is created")
	}

	tree := m.Get("rollup-a")
	tree.Append([]byte("tx0"))

	same, err := m.MustGet("rollup-a")
	if err != nil {
		t.Fatalf("MustGet: %v", err)
	}
	if same != tree {
		t.Fatal("MustGet returned a different tree instance")
	}

	fresh := m.Reset("rollup-a")
	if fresh == tree {
		t.Fatal("Reset did not replace the tree")
	}
	if len(fresh.nodes[0]) != 0 {
		t.Fatal("Reset tree is not empty")
	}
}
