// Copyright (c) 2025 BVK Chaitanya

package ledger

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/store"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger() *Ledger {
	return New(store.New(kvmemdb.New()))
}

func TestNewLot(t *testing.T) {
	now := time.Now()
	if _, err := NewLot(d("0"), d("1"), d("1"), now); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for zero price, got %v", err)
	}
	if _, err := NewLot(d("1"), d("-1"), d("1"), now); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for negative qty, got %v", err)
	}
	lot, err := NewLot(d("100"), d("1"), d("110"), now)
	if err != nil {
		t.Fatal(err)
	}
	if err := Check(lot); err != nil {
		t.Fatal(err)
	}

	bad := *lot
	bad.Status = gobs.CLOSED
	if err := Check(&bad); err == nil {
		t.Fatalf("closed lot with quantity must be invalid")
	}
	bad = *lot
	bad.Status = gobs.SELL_PLACED
	if err := Check(&bad); err == nil {
		t.Fatalf("sell placed lot without a sell order must be invalid")
	}
}

func TestMergeScenario(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	if _, err := l.OpenOrMergeLot(ctx, d("100"), d("0.01"), d("110")); err != nil {
		t.Fatal(err)
	}
	lot, err := l.OpenOrMergeLot(ctx, d("103"), d("0.02"), d("113.3"))
	if err != nil {
		t.Fatal(err)
	}
	if lot.ID != 1 || lot.NumBuys != 2 {
		t.Fatalf("want buys merged into lot 1, got %+v", lot)
	}
	if !lot.Quantity.Equal(d("0.03")) || !lot.AvgBuyPrice.Equal(d("102")) {
		t.Fatalf("want 0.03 @ 102, got %s @ %s", lot.Quantity, lot.AvgBuyPrice)
	}
	if !lot.TargetPrice.Equal(d("112.2")) {
		t.Fatalf("want target scaled to 112.2, got %s", lot.TargetPrice)
	}
}

func TestMergeCommutative(t *testing.T) {
	ctx := context.Background()
	buys := [][2]string{{"100", "0.013"}, {"97.5", "0.7"}, {"101.25", "0.0041"}}

	forward, backward := newTestLedger(), newTestLedger()
	var lf, lb *gobs.Lot
	for i := range buys {
		f, b := buys[i], buys[len(buys)-1-i]
		var err error
		if lf, err = forward.OpenOrMergeLot(ctx, d(f[0]), d(f[1]), d(f[0])); err != nil {
			t.Fatal(err)
		}
		if lb, err = backward.OpenOrMergeLot(ctx, d(b[0]), d(b[1]), d(b[0])); err != nil {
			t.Fatal(err)
		}
	}
	if !lf.Quantity.Equal(lb.Quantity) {
		t.Fatalf("quantity depends on the order: %s != %s", lf.Quantity, lb.Quantity)
	}
	if !lf.AvgBuyPrice.Round(8).Equal(lb.AvgBuyPrice.Round(8)) {
		t.Fatalf("average price depends on the order: %s != %s", lf.AvgBuyPrice, lb.AvgBuyPrice)
	}
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	lot, err := l.OpenOrMergeLot(ctx, d("100"), d("1"), d("110"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.DisarmSell(ctx, lot.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want invalid transition for disarming an open lot, got %v", err)
	}
	if _, err := l.ArmSell(ctx, lot.ID, "sb-1", d("110")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.ArmSell(ctx, lot.ID, "sb-2", d("110")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want invalid transition for arming twice, got %v", err)
	}

	// New buys don't merge into a lot with an armed sell.
	other, err := l.OpenOrMergeLot(ctx, d("90"), d("1"), d("99"))
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == lot.ID {
		t.Fatalf("buy must not merge into a lot with an armed sell")
	}

	reverted, err := l.DisarmSell(ctx, lot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reverted.Status != gobs.OPEN || reverted.SellClientID != "" {
		t.Fatalf("want open lot without sell order, got %+v", reverted)
	}
	if _, err := l.ArmSell(ctx, lot.ID, "sb-3", d("110")); err != nil {
		t.Fatal(err)
	}

	closed, err := l.CloseLot(ctx, lot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status != gobs.CLOSED || !closed.Quantity.IsZero() {
		t.Fatalf("want closed lot with zero quantity, got %+v", closed)
	}
	if _, err := l.CloseLot(ctx, lot.ID); err != nil {
		t.Fatalf("closing a closed lot must be a no-op: %v", err)
	}
	if _, err := l.ArmSell(ctx, lot.ID, "sb-4", d("110")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want invalid transition for arming a closed lot, got %v", err)
	}
	if _, err := l.DisarmSell(ctx, lot.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want invalid transition for disarming a closed lot, got %v", err)
	}

	active, err := l.ListActiveLots(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != other.ID {
		t.Fatalf("want only lot %d active, got %v", other.ID, active)
	}
}

func TestReduceLot(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	a, _ := l.OpenOrMergeLot(ctx, d("100"), d("1"), d("110"))
	if _, err := l.ArmSell(ctx, a.ID, "sb-1", d("110")); err != nil {
		t.Fatal(err)
	}
	b, _ := l.OpenOrMergeLot(ctx, d("100"), d("1"), d("110"))

	reduce := func(id int64, sold string) (lot *gobs.Lot, err error) {
		err = l.Store().Update(ctx, func(ctx context.Context, tx *store.Tx) error {
			lot, err = l.ReduceLotTx(ctx, tx, id, d(sold))
			return err
		})
		return lot, err
	}

	if _, err := reduce(b.ID, "0.5"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want invalid transition for reducing an open lot, got %v", err)
	}
	if _, err := reduce(a.ID, "0"); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for zero sold quantity, got %v", err)
	}

	lot, err := reduce(a.ID, "0.4")
	if err != nil {
		t.Fatal(err)
	}
	if lot.Status != gobs.OPEN || lot.SellClientID != "" || !lot.Quantity.Equal(d("0.6")) {
		t.Fatalf("want open lot with the remaining 0.6, got %+v", lot)
	}
	if !lot.AvgBuyPrice.Equal(d("100")) || !lot.TargetPrice.Equal(d("110")) {
		t.Fatalf("want unchanged prices, got %+v", lot)
	}

	active, _ := l.ListActiveLots(ctx)
	qty, avg := Summary(active)
	if !qty.Equal(d("1.6")) || !avg.Equal(d("100")) {
		t.Fatalf("want 1.6 @ 100, got %s @ %s", qty, avg)
	}

	// Selling everything that remains closes the lot.
	if _, err := l.ArmSell(ctx, a.ID, "sb-2", d("110")); err != nil {
		t.Fatal(err)
	}
	lot, err = reduce(a.ID, "0.6")
	if err != nil {
		t.Fatal(err)
	}
	if lot.Status != gobs.CLOSED || !lot.Quantity.IsZero() {
		t.Fatalf("want closed lot, got %+v", lot)
	}
}
