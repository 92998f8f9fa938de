package db

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDao(t *testing.T) BlockDao {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "tracker.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	InitTables(database)
	return NewBlockSvcDB(database)
}

func testHashHex(b byte) string {
	return fmt.Sprintf("%02x%062d", b, 0)
}

func seedRoot(t *testing.T, dao BlockDao) {
	t.Helper()
	if err := dao.SaveFinalizedRoot(&Block{Hash: testHashHex(0x10), Height: 10}); err != nil {
		t.Fatal(err)
	}
}

func saveChain(t *testing.T, dao BlockDao, parent byte, start uint64, hashes ...byte) {
	t.Helper()
	for i, h := range hashes {
		err := dao.SaveBlock(&Block{
			Hash:       testHashHex(h),
			ParentHash: testHashHex(parent),
			Height:     start + uint64(i),
		})
		if err != nil {
			t.Fatalf("save %x: %v", h, err)
		}
		parent = h
	}
}

func TestSaveFinalizedRootOnlyOnEmptyStore(t *testing.T) {
	dao := newTestDao(t)
	seedRoot(t, dao)
	// a second bootstrap attempt must not add a row
	if err := dao.SaveFinalizedRoot(&Block{Hash: testHashHex(0x11), Height: 11}); err != nil {
		t.Fatal(err)
	}
	tip, err := dao.GetFinalizedTip()
	if err != nil {
		t.Fatal(err)
	}
	if tip.Hash != testHashHex(0x10) || tip.Height != 10 {
		t.Fatalf("unexpected tip %+v", tip)
	}
}

func TestSaveBlockParentChecks(t *testing.T) {
	dao := newTestDao(t)
	seedRoot(t, dao)

	// unknown parent
	err := dao.SaveBlock(&Block{Hash: testHashHex(0xA), ParentHash: testHashHex(0xF), Height: 11})
	if !errors.Is(err, ErrParentMismatch) {
		t.Fatalf("expected ErrParentMismatch for unknown parent, got %v", err)
	}
	// wrong height under a known parent
	err = dao.SaveBlock(&Block{Hash: testHashHex(0xA), ParentHash: testHashHex(0x10), Height: 13})
	if !errors.Is(err, ErrParentMismatch) {
		t.Fatalf("expected ErrParentMismatch for height gap, got %v", err)
	}
	// valid child, then idempotent re-save
	saveChain(t, dao, 0x10, 11, 0xA)
	if err = dao.SaveBlock(&Block{Hash: testHashHex(0xA), ParentHash: testHashHex(0x10), Height: 11}); err != nil {
		t.Fatalf("re-save not idempotent: %v", err)
	}
	block, err := dao.GetBlockByHash(testHashHex(0xA))
	if err != nil {
		t.Fatal(err)
	}
	if block.Status != Unfinalized || block.ReceivedTime == 0 {
		t.Fatalf("unexpected stored block %+v", block)
	}
}

func TestSaveBlockUnderDiscardedParent(t *testing.T) {
	dao := newTestDao(t)
	seedRoot(t, dao)
	saveChain(t, dao, 0x10, 11, 0xA)
	saveChain(t, dao, 0x10, 11, 0xE)
	if err := dao.AdvanceFinalizedTo([]string{testHashHex(0xA)}, []string{testHashHex(0xE)}); err != nil {
		t.Fatal(err)
	}
	err := dao.SaveBlock(&Block{Hash: testHashHex(0xF), ParentHash: testHashHex(0xE), Height: 12})
	if !errors.Is(err, ErrParentMismatch) {
		t.Fatalf("expected ErrParentMismatch under discarded parent, got %v", err)
	}
}

func TestAdvanceFinalizedTo(t *testing.T) {
	dao := newTestDao(t)
	seedRoot(t, dao)
	saveChain(t, dao, 0x10, 11, 0xA, 0xB)
	saveChain(t, dao, 0x10, 11, 0xE)

	// path not anchored at the current tip
	err := dao.AdvanceFinalizedTo([]string{testHashHex(0xB)}, nil)
	if !errors.Is(err, ErrInvalidFinalityAdvance) {
		t.Fatalf("expected ErrInvalidFinalityAdvance, got %v", err)
	}

	err = dao.AdvanceFinalizedTo(
		[]string{testHashHex(0xA), testHashHex(0xB)},
		[]string{testHashHex(0xE)})
	if err != nil {
		t.Fatal(err)
	}
	tip, err := dao.GetFinalizedTip()
	if err != nil {
		t.Fatal(err)
	}
	if tip.Hash != testHashHex(0xB) || tip.Height != 12 {
		t.Fatalf("unexpected tip after advance %+v", tip)
	}
	for _, h := range []byte{0xA, 0xB} {
		block, err := dao.GetBlockByHash(testHashHex(h))
		if err != nil {
			t.Fatal(err)
		}
		if block.Status != Finalized || block.FinalizedTime == 0 {
			t.Fatalf("block %x not finalized: %+v", h, block)
		}
	}
	discarded, err := dao.GetBlockByHash(testHashHex(0xE))
	if err != nil {
		t.Fatal(err)
	}
	if discarded.Status != Discarded {
		t.Fatalf("sibling not discarded: %+v", discarded)
	}
	if _, err = dao.GetFinalizedBlockByHeight(11); err != nil {
		t.Fatalf("finalized lookup by height failed: %v", err)
	}

	unfinalized, err := dao.GetUnfinalizedBlocks()
	if err != nil {
		t.Fatal(err)
	}
	if len(unfinalized) != 0 {
		t.Fatalf("expected no unfinalized blocks, got %d", len(unfinalized))
	}
}

func TestGetUnfinalizedBlocksOrder(t *testing.T) {
	dao := newTestDao(t)
	seedRoot(t, dao)
	saveChain(t, dao, 0x10, 11, 0xA, 0xB)
	saveChain(t, dao, 0x10, 11, 0xE)

	blocks, err := dao.GetUnfinalizedBlocks()
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 unfinalized blocks, got %d", len(blocks))
	}
	// height ascending, insertion order within a height
	want := []string{testHashHex(0xA), testHashHex(0xE), testHashHex(0xB)}
	for i, block := range blocks {
		if block.Hash != want[i] {
			t.Fatalf("order wrong at %d: got %s, want %s", i, block.Hash, want[i])
		}
	}
}

func TestPruneFlow(t *testing.T) {
	dao := newTestDao(t)
	seedRoot(t, dao)
	saveChain(t, dao, 0x10, 11, 0xA, 0xB, 0xC)
	err := dao.AdvanceFinalizedTo([]string{testHashHex(0xA), testHashHex(0xB), testHashHex(0xC)}, nil)
	if err != nil {
		t.Fatal(err)
	}

	prunable, err := dao.GetBlocksToPrune(12, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(prunable) != 2 {
		t.Fatalf("expected root and A prunable, got %d", len(prunable))
	}
	hashes := []string{prunable[0].Hash, prunable[1].Hash}
	if err = dao.UpdateBlocksBundleName(hashes, "blocks_s10_e11"); err != nil {
		t.Fatal(err)
	}
	if err = dao.UpdateBlocksToPrunedStatus(hashes); err != nil {
		t.Fatal(err)
	}

	pruned, err := dao.GetBlockByHash(testHashHex(0xA))
	if err != nil {
		t.Fatal(err)
	}
	if pruned.Status != Pruned || pruned.PackageRef != "" || pruned.BundleName != "blocks_s10_e11" {
		t.Fatalf("unexpected pruned record %+v", pruned)
	}
	// pruned records stay resolvable as finalized history
	if _, err = dao.GetFinalizedBlockByHeight(11); err != nil {
		t.Fatal(err)
	}
	// the second pass sees nothing left below the cutoff
	remaining, err := dao.GetBlocksToPrune(12, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected nothing prunable, got %d", len(remaining))
	}
}
