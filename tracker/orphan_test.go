package tracker

import (
	"testing"
)

func TestOrphanInsertAndTake(t *testing.T) {
	pool := NewOrphanPool(0, 0)

	blockA := testBlock(0xA, 0x1, 11)
	blockB := testBlock(0xB, 0x1, 11)
	if !pool.Insert(blockA, 10) {
		t.Fatal("insert A rejected")
	}
	if !pool.Insert(blockB, 10) {
		t.Fatal("insert B rejected")
	}
	// duplicate insert is a no-op
	if !pool.Insert(blockA, 10) {
		t.Fatal("duplicate insert rejected")
	}
	if pool.Size() != 2 {
		t.Fatalf("expected 2 orphans, got %d", pool.Size())
	}

	got := pool.Take(testHash(0x1))
	if len(got) != 2 || got[0].Hash != blockA.Hash || got[1].Hash != blockB.Hash {
		t.Fatalf("unexpected take order: %v", got)
	}
	if pool.Size() != 0 || pool.Has(blockA.Hash) {
		t.Fatal("pool not drained after take")
	}
	if pool.Take(testHash(0x1)) != nil {
		t.Fatal("second take returned blocks")
	}
}

func TestOrphanChainCascade(t *testing.T) {
	pool := NewOrphanPool(0, 0)

	// 12<-13<-14 arrive before their common ancestor at 11
	pool.Insert(testBlock(0xC, 0xB, 13), 10)
	pool.Insert(testBlock(0xD, 0xC, 14), 10)
	pool.Insert(testBlock(0xB, 0xA, 12), 10)

	attached := []byte{0xA}
	var seen []byte
	for len(attached) != 0 {
		parent := attached[0]
		attached = attached[1:]
		for _, block := range pool.Take(testHash(parent)) {
			seen = append(seen, block.Hash[0])
			attached = append(attached, block.Hash[0])
		}
	}
	if len(seen) != 3 || seen[0] != 0xB || seen[1] != 0xC || seen[2] != 0xD {
		t.Fatalf("cascade order wrong: %x", seen)
	}
	if pool.Size() != 0 {
		t.Fatalf("pool not empty after cascade, size=%d", pool.Size())
	}
}

func TestOrphanDistanceBound(t *testing.T) {
	pool := NewOrphanPool(0, 16)
	if pool.Insert(testBlock(0xA, 0x1, 27), 10) {
		t.Fatal("block beyond distance bound was kept")
	}
	if !pool.Insert(testBlock(0xB, 0x1, 26), 10) {
		t.Fatal("block at distance bound was dropped")
	}
}

func TestOrphanCountEviction(t *testing.T) {
	pool := NewOrphanPool(3, 0)
	first := testBlock(0x1, 0x0, 11)
	pool.Insert(first, 10)
	pool.Insert(testBlock(0x2, 0x0, 11), 10)
	pool.Insert(testBlock(0x3, 0x0, 11), 10)
	pool.Insert(testBlock(0x4, 0x0, 11), 10)

	if pool.Size() != 3 {
		t.Fatalf("expected pool capped at 3, size=%d", pool.Size())
	}
	if pool.Has(first.Hash) {
		t.Fatal("oldest orphan survived eviction")
	}
	if !pool.Has(testHash(0x4)) {
		t.Fatal("newest orphan missing")
	}
}

func TestOrphanRemove(t *testing.T) {
	pool := NewOrphanPool(0, 0)
	pool.Insert(testBlock(0xA, 0x1, 11), 10)
	pool.Insert(testBlock(0xB, 0x1, 11), 10)

	pool.Remove(testHash(0xA))
	if pool.Has(testHash(0xA)) || pool.Size() != 1 {
		t.Fatal("remove left the entry behind")
	}
	// removing an unknown hash is a no-op
	pool.Remove(testHash(0xF))
	got := pool.Take(testHash(0x1))
	if len(got) != 1 || got[0].Hash != testHash(0xB) {
		t.Fatalf("parent index inconsistent after remove: %v", got)
	}
}

func TestOrphanDropBelow(t *testing.T) {
	pool := NewOrphanPool(0, 0)
	pool.Insert(testBlock(0xA, 0x1, 11), 10)
	pool.Insert(testBlock(0xB, 0x2, 15), 10)
	pool.DropBelow(12)

	if pool.Has(testHash(0xA)) {
		t.Fatal("orphan at or below cutoff survived")
	}
	if !pool.Has(testHash(0xB)) {
		t.Fatal("orphan above cutoff dropped")
	}
	if got := pool.Take(testHash(0x1)); got != nil {
		t.Fatalf("parent index kept dropped orphan: %v", got)
	}
}
