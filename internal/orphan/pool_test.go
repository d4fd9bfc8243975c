package orphan

import (
	"testing"

	"github.com/klingnet-chain/core/pkg/block"
	"github.com/klingnet-chain/core/pkg/types"
)

func entryWithParent(parent types.Hash, nonce uint64) *Entry {
	return &Entry{
		Header: &block.Header{
			Version:   1,
			PrevHash:  parent,
			Timestamp: 1700000000 + nonce,
			Nonce:     nonce,
		},
	}
}

func TestPool_AddContainsRemove(t *testing.T) {
	p := New()
	hash := types.Hash{0x01}
	e := entryWithParent(types.Hash{0xaa}, 1)

	p.Add(hash, e)
	if !p.Contains(hash) {
		t.Error("pool should contain entry after Add")
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}

	p.Remove(hash)
	if p.Contains(hash) {
		t.Error("pool should not contain entry after Remove")
	}
	if p.Len() != 0 {
		t.Errorf("Len() after remove = %d, want 0", p.Len())
	}
}

func TestPool_ByParent(t *testing.T) {
	p := New()
	parent := types.Hash{0xaa}

	child1 := types.Hash{0x01}
	child2 := types.Hash{0x02}
	unrelated := types.Hash{0x03}

	p.Add(child1, entryWithParent(parent, 1))
	p.Add(child2, entryWithParent(parent, 2))
	p.Add(unrelated, entryWithParent(types.Hash{0xbb}, 3))

	waiting := p.ByParent(parent)
	if len(waiting) != 2 {
		t.Fatalf("ByParent() returned %d entries, want 2", len(waiting))
	}
	seen := map[types.Hash]bool{}
	for _, h := range waiting {
		seen[h] = true
	}
	if !seen[child1] || !seen[child2] {
		t.Error("ByParent() missing an expected child")
	}
}

func TestPool_Root(t *testing.T) {
	p := New()

	missingAncestor := types.Hash{0xff}
	grandparent := types.Hash{0x01}
	parent := types.Hash{0x02}
	child := types.Hash{0x03}

	p.Add(grandparent, entryWithParent(missingAncestor, 1))
	p.Add(parent, entryWithParent(grandparent, 2))
	p.Add(child, entryWithParent(parent, 3))

	if got := p.Root(child); got != missingAncestor {
		t.Errorf("Root(child) = %x, want %x", got, missingAncestor)
	}
}

func TestPool_Root_NotAnOrphan(t *testing.T) {
	p := New()
	hash := types.Hash{0x42}
	if got := p.Root(hash); got != hash {
		t.Errorf("Root() of a non-orphan hash should return itself, got %x", got)
	}
}

func TestPool_Snapshot(t *testing.T) {
	p := New()
	p.Add(types.Hash{0x01}, entryWithParent(types.Hash{0xaa}, 1))
	p.Add(types.Hash{0x02}, entryWithParent(types.Hash{0xbb}, 2))

	snap := p.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() length = %d, want 2", len(snap))
	}
}

func TestPool_Get(t *testing.T) {
	p := New()
	hash := types.Hash{0x01}
	e := entryWithParent(types.Hash{0xaa}, 1)
	p.Add(hash, e)

	got, ok := p.Get(hash)
	if !ok {
		t.Fatal("Get() should find the entry")
	}
	if got.ParentHash() != e.ParentHash() {
		t.Error("Get() returned wrong entry")
	}

	if _, ok := p.Get(types.Hash{0x99}); ok {
		t.Error("Get() of missing hash should report not found")
	}
}
