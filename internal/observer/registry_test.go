package observer

import (
	"testing"

	"github.com/klingnet-chain/core/internal/chainstore"
	"github.com/klingnet-chain/core/pkg/tx"
	"github.com/klingnet-chain/core/pkg/types"
)

type fakeObserver struct {
	name       string
	relevant   bool
	bestBlocks []*chainstore.StoredBlock
	reorgs     int
	onBest     func(o *fakeObserver)
	received   []*tx.Transaction
}

func (f *fakeObserver) IsTransactionRelevant(t *tx.Transaction) bool { return f.relevant }

func (f *fakeObserver) ReceiveFromBlock(t *tx.Transaction, sb *chainstore.StoredBlock, bt BlockType) {
	f.received = append(f.received, t)
}

func (f *fakeObserver) NotifyTransactionInBlock(txHash types.Hash, sb *chainstore.StoredBlock, bt BlockType) {
}

func (f *fakeObserver) NotifyNewBestBlock(sb *chainstore.StoredBlock) {
	f.bestBlocks = append(f.bestBlocks, sb)
	if f.onBest != nil {
		f.onBest(f)
	}
}

func (f *fakeObserver) Reorganize(split *chainstore.StoredBlock, oldSegment, newSegment []*chainstore.StoredBlock) {
	f.reorgs++
}

func TestRegistry_AddRemove(t *testing.T) {
	r := New()
	a := &fakeObserver{name: "a"}
	b := &fakeObserver{name: "b"}

	r.Add(a)
	r.Add(b)
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	r.Remove(a)
	if r.Len() != 1 {
		t.Fatalf("Len() after remove = %d, want 1", r.Len())
	}

	seen := map[string]bool{}
	r.Each(func(o Observer) {
		seen[o.(*fakeObserver).name] = true
	})
	if seen["a"] || !seen["b"] {
		t.Error("registry should only contain b after removing a")
	}
}

func TestRegistry_NotifyNewBestBlock(t *testing.T) {
	r := New()
	a := &fakeObserver{name: "a"}
	b := &fakeObserver{name: "b"}
	r.Add(a)
	r.Add(b)

	sb := &chainstore.StoredBlock{}
	r.NotifyNewBestBlock(sb)

	if len(a.bestBlocks) != 1 || len(b.bestBlocks) != 1 {
		t.Error("both observers should have been notified once")
	}
}

func TestRegistry_SelfRemovalDuringNotification(t *testing.T) {
	r := New()
	var a, b, c *fakeObserver
	a = &fakeObserver{name: "a"}
	b = &fakeObserver{name: "b", onBest: func(o *fakeObserver) { r.Remove(b) }}
	c = &fakeObserver{name: "c"}

	r.Add(a)
	r.Add(b)
	r.Add(c)

	r.NotifyNewBestBlock(&chainstore.StoredBlock{})

	if len(a.bestBlocks) != 1 || len(b.bestBlocks) != 1 || len(c.bestBlocks) != 1 {
		t.Fatalf("all three observers should be notified exactly once in the removal round, got a=%d b=%d c=%d",
			len(a.bestBlocks), len(b.bestBlocks), len(c.bestBlocks))
	}
	if r.Len() != 2 {
		t.Errorf("Len() after self-removal = %d, want 2", r.Len())
	}

	r.NotifyNewBestBlock(&chainstore.StoredBlock{})
	if len(b.bestBlocks) != 1 {
		t.Error("b should not be notified after removing itself")
	}
	if len(a.bestBlocks) != 2 || len(c.bestBlocks) != 2 {
		t.Error("a and c should still be notified on the next round")
	}
}

func TestRegistry_NotifyRelevant(t *testing.T) {
	r := New()
	r.Add(&fakeObserver{name: "a", relevant: false})
	r.Add(&fakeObserver{name: "b", relevant: true})

	if !r.NotifyRelevant(&tx.Transaction{}) {
		t.Error("NotifyRelevant should be true when any observer reports relevance")
	}

	empty := New()
	if empty.NotifyRelevant(&tx.Transaction{}) {
		t.Error("NotifyRelevant on an empty registry should be false")
	}
}

func TestRegistry_DeliverTransactionClonesForLaterObservers(t *testing.T) {
	r := New()
	a := &fakeObserver{name: "a", relevant: true}
	b := &fakeObserver{name: "b", relevant: true}
	irrelevant := &fakeObserver{name: "skip", relevant: false}
	r.Add(a)
	r.Add(irrelevant)
	r.Add(b)

	original := &tx.Transaction{Version: 1}
	r.DeliverTransaction(original, &chainstore.StoredBlock{}, BestChain)

	if len(irrelevant.received) != 0 {
		t.Fatal("irrelevant observer should not receive the transaction")
	}
	if len(a.received) != 1 || len(b.received) != 1 {
		t.Fatalf("both relevant observers should receive exactly one transaction")
	}
	if a.received[0] != original {
		t.Error("first relevant observer should receive the original transaction, not a clone")
	}
	if b.received[0] == original {
		t.Error("second relevant observer should receive a clone, not the aliased original")
	}
	if b.received[0].Version != original.Version {
		t.Error("clone delivered to second observer should be value-equal to the original")
	}
}

func TestRegistry_NotifyReorganize(t *testing.T) {
	r := New()
	a := &fakeObserver{name: "a"}
	r.Add(a)

	split := &chainstore.StoredBlock{}
	r.NotifyReorganize(split, nil, nil)

	if a.reorgs != 1 {
		t.Errorf("reorgs = %d, want 1", a.reorgs)
	}
}
