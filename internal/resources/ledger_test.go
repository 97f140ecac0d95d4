package resources

import (
	"math"
	"testing"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger([]Definition{
		{ID: "gold", Initial: 100},
		{ID: "gem"},
		{ID: "mana", Initial: 5, Cap: 10},
	})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func TestIndexesFollowDeclarationOrder(t *testing.T) {
	l := testLedger(t)
	for i, id := range []string{"gold", "gem", "mana"} {
		if got := l.GetResourceIndex(id); got != i {
			t.Errorf("index of %q = %d, want %d", id, got, i)
		}
	}
	if got := l.GetResourceIndex("void"); got != -1 {
		t.Errorf("unknown resource index = %d, want -1", got)
	}
}

func TestSpendAmount(t *testing.T) {
	l := testLedger(t)
	gold := l.GetResourceIndex("gold")

	if !l.SpendAmount(gold, 60) {
		t.Fatal("affordable spend refused")
	}
	if got := l.GetAmount(gold); got != 40 {
		t.Fatalf("gold = %v, want 40", got)
	}
	if l.SpendAmount(gold, 41) {
		t.Fatal("overspend accepted")
	}
	if l.SpendAmount(gold, -1) {
		t.Fatal("negative spend accepted")
	}
	if l.SpendAmount(gold, math.NaN()) {
		t.Fatal("NaN spend accepted")
	}
	if got := l.GetAmount(gold); got != 40 {
		t.Fatalf("rejected spends moved gold: %v", got)
	}
}

func TestAddAmountClampsAtCap(t *testing.T) {
	l := testLedger(t)
	mana := l.GetResourceIndex("mana")

	if got := l.AddAmount(mana, 100); got != 10 {
		t.Fatalf("capped balance = %v, want 10", got)
	}
	gem := l.GetResourceIndex("gem")
	if got := l.AddAmount(gem, 1e9); got != 1e9 {
		t.Fatalf("uncapped balance = %v, want 1e9", got)
	}
}

func TestAddAmountIgnoresNonFinite(t *testing.T) {
	l := testLedger(t)
	gold := l.GetResourceIndex("gold")
	if got := l.AddAmount(gold, math.Inf(1)); got != 100 {
		t.Fatalf("infinite credit changed balance: %v", got)
	}
}

func TestOutOfRangeReadsAsZero(t *testing.T) {
	l := testLedger(t)
	if got := l.GetAmount(-1); got != 0 {
		t.Errorf("GetAmount(-1) = %v", got)
	}
	if got := l.GetAmount(99); got != 0 {
		t.Errorf("GetAmount(99) = %v", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	l := testLedger(t)
	l.SpendAmount(l.GetResourceIndex("gold"), 30)
	snaps := l.SnapshotAll()

	fresh := testLedger(t)
	fresh.RestoreAll(snaps)
	if got := fresh.GetAmount(fresh.GetResourceIndex("gold")); got != 70 {
		t.Fatalf("restored gold = %v, want 70", got)
	}

	// Unknown ids in the snapshot are skipped.
	fresh.RestoreAll([]Snapshot{{ID: "void", Amount: 999}})
	if got := fresh.GetResourceIndex("void"); got != -1 {
		t.Fatal("restore grew the ledger")
	}
}

func TestNewLedgerRejectsDuplicates(t *testing.T) {
	if _, err := NewLedger([]Definition{{ID: "gold"}, {ID: "gold"}}); err == nil {
		t.Fatal("expected duplicate id error")
	}
	if _, err := NewLedger([]Definition{{ID: ""}}); err == nil {
		t.Fatal("expected empty id error")
	}
}
