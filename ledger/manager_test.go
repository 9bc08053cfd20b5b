// Copyright (c) 2025 BVK Chaitanya

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/guard"
	"github.com/bvk/spotbot/paper"
	"github.com/bvk/spotbot/store"
	"github.com/bvkgo/kv/kvmemdb"
)

type testManager struct {
	*Manager

	gw     *paper.Gateway
	ledger *Ledger

	filled []*gobs.Lot
	orders []*exchange.Order
}

func newTestManager(t *testing.T) *testManager {
	c := &exchange.SymbolConstraints{
		Symbol:      "BTCUSDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		MinQty:      d("0.001"),
		StepSize:    d("0.001"),
		MinNotional: d("5"),
		TickSize:    d("0.01"),
	}
	gw := paper.New(c, &exchange.FeeRates{Maker: d("0.001"), Taker: d("0.001")}, d("100"))
	gw.SetBalance("BTC", d("10"))

	st := store.New(kvmemdb.New())
	g := guard.New(gw, "BTCUSDT", t.Name(), st, &guard.Options{BaseBackoff: time.Millisecond})
	tm := &testManager{gw: gw, ledger: New(st)}
	tm.Manager = NewManager(tm.ledger, g, func(ctx context.Context, tx *store.Tx, lot *gobs.Lot, order *exchange.Order) error {
		tm.filled = append(tm.filled, lot)
		tm.orders = append(tm.orders, order)
		return nil
	})
	return tm
}

func (tm *testManager) lot(t *testing.T, id int64) *gobs.Lot {
	var lot *gobs.Lot
	err := tm.ledger.Store().View(context.Background(), func(ctx context.Context, tx *store.Tx) (err error) {
		lot, err = tx.GetLot(ctx, id)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return lot
}

func TestManageArmAndFill(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)

	lot, err := tm.ledger.OpenOrMergeLot(ctx, d("95"), d("1.0005"), d("104.918"))
	if err != nil {
		t.Fatal(err)
	}
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	armed := tm.lot(t, lot.ID)
	if armed.Status != gobs.SELL_PLACED || armed.SellClientID == "" {
		t.Fatalf("want armed lot, got %+v", armed)
	}
	if !armed.SellPrice.Equal(d("104.91")) {
		t.Fatalf("want sell price floored to 104.91, got %s", armed.SellPrice)
	}

	// Resting order; nothing changes.
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	if v := tm.lot(t, lot.ID); v.SellClientID != armed.SellClientID {
		t.Fatalf("want unchanged sell order, got %+v", v)
	}

	tm.gw.SetPrice(d("105"))
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	if v := tm.lot(t, lot.ID); v.Status != gobs.CLOSED {
		t.Fatalf("want closed lot, got %+v", v)
	}
	if len(tm.filled) != 1 || !tm.filled[0].Quantity.Equal(d("1.0005")) {
		t.Fatalf("want fill callback with the lot before close, got %v", tm.filled)
	}
}

func TestManageRearmCanceled(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)

	lot, _ := tm.ledger.OpenOrMergeLot(ctx, d("95"), d("1"), d("104.91"))
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	first := tm.lot(t, lot.ID).SellClientID

	tm.gw.CancelOrder(first)
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	v := tm.lot(t, lot.ID)
	if v.Status != gobs.SELL_PLACED || v.SellClientID == "" || v.SellClientID == first {
		t.Fatalf("want lot re-armed with a new order, got %+v", v)
	}
	if !v.SellPrice.Equal(d("104.91")) {
		t.Fatalf("want unchanged target, got %s", v.SellPrice)
	}
	if open := tm.gw.OpenOrders(); len(open) != 1 || open[0] != v.SellClientID {
		t.Fatalf("want single open order, got %v", open)
	}
}

func TestManagePartialFillCanceled(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)
	tm.gw.SetBalance("BTC", d("1"))

	lot, _ := tm.ledger.OpenOrMergeLot(ctx, d("95"), d("1"), d("104.91"))
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	first := tm.lot(t, lot.ID).SellClientID

	// A partially filled order keeps resting.
	if !tm.gw.FillPartial(first, d("0.4")) {
		t.Fatalf("could not fill the sell order partially")
	}
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	if v := tm.lot(t, lot.ID); v.SellClientID != first || !v.Quantity.Equal(d("1")) || len(tm.filled) != 0 {
		t.Fatalf("want unchanged lot while the order rests, got %+v", v)
	}

	tm.gw.CancelOrder(first)
	for i := 0; i < 2; i++ {
		if err := tm.ManageLots(ctx); err != nil {
			t.Fatal(err)
		}
	}
	v := tm.lot(t, lot.ID)
	if v.Status != gobs.SELL_PLACED || v.SellClientID == first || !v.Quantity.Equal(d("0.6")) {
		t.Fatalf("want lot re-armed with the remaining 0.6, got %+v", v)
	}
	if len(tm.filled) != 1 || !tm.filled[0].Quantity.Equal(d("1")) {
		t.Fatalf("want one fill callback with the lot before the reduction, got %v", tm.filled)
	}
	if o := tm.orders[0]; o.Status != exchange.CANCELED || !o.FilledSize.Equal(d("0.4")) {
		t.Fatalf("want callback with the executed part, got %v", o)
	}
	open := tm.gw.OpenOrders()
	if len(open) != 1 || open[0] != v.SellClientID {
		t.Fatalf("want single open order, got %v", open)
	}
	order, err := tm.gw.GetOrderByClientID(ctx, "BTCUSDT", v.SellClientID)
	if err != nil {
		t.Fatal(err)
	}
	if !order.Size.Equal(d("0.6")) {
		t.Fatalf("want new sell for the remaining quantity, got %v", order)
	}

	// Rest of the lot fills and closes it.
	tm.gw.SetPrice(d("105"))
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	if v := tm.lot(t, lot.ID); v.Status != gobs.CLOSED {
		t.Fatalf("want closed lot, got %+v", v)
	}
	if len(tm.orders) != 2 || !tm.orders[1].FilledSize.Equal(d("0.6")) {
		t.Fatalf("want second callback for the remaining 0.6, got %v", tm.orders)
	}
}

func TestManageSkipsUndersized(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)

	lot, _ := tm.ledger.OpenOrMergeLot(ctx, d("95"), d("0.01"), d("104.91"))
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	if v := tm.lot(t, lot.ID); v.Status != gobs.OPEN {
		t.Fatalf("want undersized lot to stay open, got %+v", v)
	}
	if n := tm.gw.Calls("PlaceLimitMakerOrder"); n != 0 {
		t.Fatalf("want no placement for undersized lot, got %d", n)
	}

	// More buys make the lot sellable.
	if _, err := tm.ledger.OpenOrMergeLot(ctx, d("95"), d("0.05"), d("104.91")); err != nil {
		t.Fatal(err)
	}
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	if v := tm.lot(t, lot.ID); v.Status != gobs.SELL_PLACED {
		t.Fatalf("want accumulated lot armed, got %+v", v)
	}
}

func TestManageDefersWouldCross(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)

	lot, _ := tm.ledger.OpenOrMergeLot(ctx, d("95"), d("1"), d("99"))
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatalf("would-cross must be a benign deferral: %v", err)
	}
	if v := tm.lot(t, lot.ID); v.Status != gobs.OPEN {
		t.Fatalf("want lot to stay open, got %+v", v)
	}

	tm.gw.SetPrice(d("98"))
	if err := tm.ManageLots(ctx); err != nil {
		t.Fatal(err)
	}
	if v := tm.lot(t, lot.ID); v.Status != gobs.SELL_PLACED {
		t.Fatalf("want lot armed on a later tick, got %+v", v)
	}
}
