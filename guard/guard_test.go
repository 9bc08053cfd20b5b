// Copyright (c) 2025 BVK Chaitanya

package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/paper"
	"github.com/bvk/spotbot/store"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testConstraints = &exchange.SymbolConstraints{
	Symbol:      "BTCUSDT",
	BaseAsset:   "BTC",
	QuoteAsset:  "USDT",
	MinQty:      d("0.001"),
	StepSize:    d("0.001"),
	MinNotional: d("5"),
	TickSize:    d("0.01"),
}

func newTestGuard(t *testing.T) (*Guard, *paper.Gateway, *store.Store) {
	gw := paper.New(testConstraints, &exchange.FeeRates{Maker: d("0.001"), Taker: d("0.002")}, d("100"))
	gw.SetBalance("USDT", d("1000"))
	gw.SetBalance("BTC", d("1"))
	st := store.New(kvmemdb.New())
	opts := &Options{BaseBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
	return New(gw, "BTCUSDT", t.Name(), st, opts), gw, st
}

func transient() error {
	return exchange.NewError(exchange.Transient, "test", -1003, errors.New("too many requests"))
}

func TestQuantize(t *testing.T) {
	q, p := Quantize(testConstraints, d("0.0129"), d("104.5977"))
	if !q.Equal(d("0.012")) || !p.Equal(d("104.59")) {
		t.Fatalf("want 0.012@104.59, got %s@%s", q, p)
	}
	q2, p2 := Quantize(testConstraints, q, p)
	if !q2.Equal(q) || !p2.Equal(p) {
		t.Fatalf("quantization is not idempotent: %s@%s", q2, p2)
	}

	if _, _, err := Size(testConstraints, d("0.0009"), d("100")); !errors.Is(err, ErrSizingRejected) {
		t.Fatalf("want sizing rejection for min qty, got %v", err)
	}
	if _, _, err := Size(testConstraints, d("0.049"), d("100")); !errors.Is(err, ErrSizingRejected) {
		t.Fatalf("want sizing rejection for min notional, got %v", err)
	}
	if _, _, err := Size(testConstraints, d("0.05"), d("100")); err != nil {
		t.Fatal(err)
	}
}

func TestSizingRejectedSkipsGateway(t *testing.T) {
	ctx := context.Background()
	g, gw, _ := newTestGuard(t)

	if _, err := g.PlaceLimitMaker(ctx, exchange.SELL, d("0.01"), d("105")); !errors.Is(err, ErrSizingRejected) {
		t.Fatalf("want sizing rejection, got %v", err)
	}
	if _, err := g.PlaceMarket(ctx, "sb-market", exchange.BUY, d("0.0401"), d("100")); !errors.Is(err, ErrSizingRejected) {
		t.Fatalf("want sizing rejection, got %v", err)
	}
	if n := gw.Calls("PlaceLimitMakerOrder") + gw.Calls("PlaceMarketOrder"); n != 0 {
		t.Fatalf("want no placement calls, got %d", n)
	}
}

func TestTransientRetry(t *testing.T) {
	ctx := context.Background()
	g, gw, _ := newTestGuard(t)

	gw.FailNext("PlaceMarketOrder", transient())
	gw.FailNext("PlaceMarketOrder", transient())
	cid, err := g.NewClientID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	order, err := g.PlaceMarket(ctx, cid, exchange.BUY, d("0.1"), d("100"))
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != exchange.FILLED || order.ClientOrderID != cid {
		t.Fatalf("want filled order, got %v", order)
	}
	if n := gw.Calls("PlaceMarketOrder"); n != 3 {
		t.Fatalf("want 3 placement attempts, got %d", n)
	}
	if n := gw.Calls("GetOrderByClientID"); n != 2 {
		t.Fatalf("want 2 order lookups, got %d", n)
	}
}

func TestRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	g, gw, _ := newTestGuard(t)

	for i := 0; i < 5; i++ {
		gw.FailNext("GetPrice", transient())
	}
	if _, err := g.Price(ctx); !errors.Is(err, exchange.ErrTransient) {
		t.Fatalf("want transient failure, got %v", err)
	}
	if n := gw.Calls("GetPrice"); n != 5 {
		t.Fatalf("want 5 attempts, got %d", n)
	}
}

func TestPermanentNotRetried(t *testing.T) {
	ctx := context.Background()
	g, gw, _ := newTestGuard(t)

	gw.FailNext("GetFreeBalance", exchange.NewError(exchange.Permanent, "test", -2015, errors.New("invalid api key")))
	if _, err := g.FreeBalance(ctx, "USDT"); !errors.Is(err, exchange.ErrPermanent) {
		t.Fatalf("want permanent failure, got %v", err)
	}
	if n := gw.Calls("GetFreeBalance"); n != 1 {
		t.Fatalf("want 1 attempt, got %d", n)
	}
}

func TestWouldCross(t *testing.T) {
	ctx := context.Background()
	g, gw, _ := newTestGuard(t)

	if _, err := g.PlaceLimitMaker(ctx, exchange.SELL, d("0.1"), d("99")); !errors.Is(err, exchange.ErrWouldCrossAsTaker) {
		t.Fatalf("want would-cross rejection, got %v", err)
	}
	if n := gw.Calls("PlaceLimitMakerOrder"); n != 1 {
		t.Fatalf("want 1 attempt, got %d", n)
	}
}

// acceptThenFail places the order but reports a transient failure once.
type acceptThenFail struct {
	*paper.Gateway
	failed bool
}

func (a *acceptThenFail) PlaceLimitMakerOrder(ctx context.Context, symbol, side string, qty, price decimal.Decimal, clientID string) (*exchange.Order, error) {
	order, err := a.Gateway.PlaceLimitMakerOrder(ctx, symbol, side, qty, price, clientID)
	if err == nil && !a.failed {
		a.failed = true
		return nil, transient()
	}
	return order, err
}

func TestAcceptedOrderNotDuplicated(t *testing.T) {
	ctx := context.Background()
	_, gw, st := newTestGuard(t)
	g := New(&acceptThenFail{Gateway: gw}, "BTCUSDT", t.Name(), st, &Options{BaseBackoff: time.Millisecond})

	order, err := g.PlaceLimitMaker(ctx, exchange.SELL, d("0.1"), d("105"))
	if err != nil {
		t.Fatal(err)
	}
	if open := gw.OpenOrders(); len(open) != 1 || open[0] != order.ClientOrderID {
		t.Fatalf("want single open order %s, got %v", order.ClientOrderID, open)
	}
	if n := gw.Calls("PlaceLimitMakerOrder"); n != 1 {
		t.Fatalf("want 1 placement, got %d", n)
	}
}

func TestClientIDsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	g1, gw, st := newTestGuard(t)

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		order, err := g1.PlaceLimitMaker(ctx, exchange.SELL, d("0.1"), d("105"))
		if err != nil {
			t.Fatal(err)
		}
		seen[order.ClientOrderID] = true
	}

	g2 := New(gw, "BTCUSDT", t.Name(), st, nil)
	for i := 0; i < 3; i++ {
		order, err := g2.PlaceLimitMaker(ctx, exchange.SELL, d("0.1"), d("106"))
		if err != nil {
			t.Fatal(err)
		}
		if seen[order.ClientOrderID] {
			t.Fatalf("client id %s is reused after restart", order.ClientOrderID)
		}
		if len(order.ClientOrderID) > 36 {
			t.Fatalf("client id %s is too long", order.ClientOrderID)
		}
	}
}

func TestFeeRates(t *testing.T) {
	ctx := context.Background()
	g, gw, _ := newTestGuard(t)

	gw.FailNext("GetFeeRates", exchange.NewError(exchange.Permanent, "test", 0, errors.New("not supported")))
	fees := g.FeeRates(ctx)
	if !fees.Maker.Equal(DefaultFeeRate) || !fees.Taker.Equal(DefaultFeeRate) {
		t.Fatalf("want default fee rates, got %+v", fees)
	}
	if g.FeeRates(ctx); gw.Calls("GetFeeRates") != 1 {
		t.Fatalf("want cached fee rates")
	}

	g.Refresh()
	fees = g.FeeRates(ctx)
	if !fees.Taker.Equal(d("0.002")) {
		t.Fatalf("want exchange fee rates after refresh, got %+v", fees)
	}
}
