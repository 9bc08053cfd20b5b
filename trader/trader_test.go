// Copyright (c) 2025 BVK Chaitanya

package trader

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/bvk/spotbot/bandit"
	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/guard"
	"github.com/bvk/spotbot/paper"
	"github.com/bvk/spotbot/store"
	"github.com/bvk/spotbot/strategy"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testNotifier struct {
	msgs []string
}

func (n *testNotifier) SendMessage(ctx context.Context, at time.Time, msg string) error {
	n.msgs = append(n.msgs, msg)
	return nil
}

// hookGateway runs test hooks around the paper gateway operations.
type hookGateway struct {
	*paper.Gateway

	beforePrice func()
	afterMarket func()
}

func (g *hookGateway) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if g.beforePrice != nil {
		g.beforePrice()
	}
	return g.Gateway.GetPrice(ctx, symbol)
}

func (g *hookGateway) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal, clientID string) (*exchange.Order, error) {
	order, err := g.Gateway.PlaceMarketOrder(ctx, symbol, side, qty, clientID)
	if g.afterMarket != nil {
		g.afterMarket()
	}
	return order, err
}

// flakyDB fails all read-write transactions while failWrites is set.
type flakyDB struct {
	kv.Database

	failWrites bool
}

func (db *flakyDB) NewTransaction(ctx context.Context) (kv.Transaction, error) {
	if db.failWrites {
		return nil, fmt.Errorf("database is unavailable: %w", os.ErrClosed)
	}
	return db.Database.NewTransaction(ctx)
}

type testEnv struct {
	gw   *paper.Gateway
	hook *hookGateway
	db   *flakyDB
	st   *store.Store
	nf   *testNotifier
}

func newTestEnv(price, usdt, btc string) *testEnv {
	c := &exchange.SymbolConstraints{
		Symbol:      "BTCUSDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		MinQty:      d("0.0001"),
		StepSize:    d("0.0001"),
		MinNotional: d("5"),
		TickSize:    d("0.01"),
	}
	gw := paper.New(c, &exchange.FeeRates{Maker: d("0.001"), Taker: d("0.001")}, d(price))
	gw.SetBalance("USDT", d(usdt))
	gw.SetBalance("BTC", d(btc))
	db := &flakyDB{Database: kvmemdb.New()}
	return &testEnv{gw: gw, hook: &hookGateway{Gateway: gw}, db: db, st: store.New(db), nf: new(testNotifier)}
}

func (env *testEnv) newTrader(t *testing.T, opts *Options) *Trader {
	g := guard.New(env.hook, "BTCUSDT", "test-seed", env.st, &guard.Options{BaseBackoff: time.Millisecond})
	b, err := bandit.New(env.st, &bandit.Options{
		MinPctRange: [2]float64{0.05, 0.05},
		MaxPctRange: [2]float64{0.10, 0.10},
		NumConfigs:  1,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if opts == nil {
		opts = &Options{Symbol: "BTCUSDT", ProfitPct: 0.10, TargetBalance: 2000}
	}
	tr, err := New(env.st, g, b, env.nf, opts)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func (env *testEnv) trades(t *testing.T) []*gobs.Trade {
	var trades []*gobs.Trade
	err := env.st.View(context.Background(), func(ctx context.Context, tx *store.Tx) (err error) {
		trades, err = tx.ListTrades(ctx)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return trades
}

func (env *testEnv) activeLots(t *testing.T) []*gobs.Lot {
	var lots []*gobs.Lot
	err := env.st.View(context.Background(), func(ctx context.Context, tx *store.Tx) (err error) {
		lots, err = tx.ListActiveLots(ctx)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return lots
}

func tick(t *testing.T, tr *Trader) *Status {
	s, err := tr.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBuyAndSellCycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv("100", "1000", "0")
	tr := env.newTrader(t, nil)
	if err := tr.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if s := tick(t, tr); s.Intent != strategy.HOLD || !s.ReferencePrice.Equal(d("100")) {
		t.Fatalf("want HOLD with reference 100, got %+v", s)
	}

	env.gw.SetPrice(d("94"))
	s := tick(t, tr)
	if s.Intent != strategy.WANT_BUY {
		t.Fatalf("want WANT_BUY, got %s (%s)", s.Intent, s.Reason)
	}
	trades := env.trades(t)
	if len(trades) != 1 || trades[0].Side != exchange.BUY {
		t.Fatalf("want one buy trade, got %v", trades)
	}
	buy := trades[0]
	// 25% of the free balance at the fill price, floored to the step size.
	if !buy.Quantity.Equal(d("2.6595")) || !buy.Price.Equal(d("94")) {
		t.Fatalf("unexpected buy trade %+v", buy)
	}
	lots := env.activeLots(t)
	if len(lots) != 1 || lots[0].Status != gobs.SELL_PLACED || lots[0].ID != buy.LotID {
		t.Fatalf("want one armed lot, got %+v", lots)
	}
	if !lots[0].TargetPrice.Equal(d("103.6")) {
		t.Fatalf("want sell target 103.60, got %s", lots[0].TargetPrice)
	}
	if p := tr.strategy.Position(); p.Side != strategy.LONG || !p.EntryPrice.Equal(d("94")) {
		t.Fatalf("want LONG position at 94, got %+v", p)
	}

	env.gw.SetPrice(d("104"))
	s = tick(t, tr)
	trades = env.trades(t)
	if len(trades) != 2 || trades[1].Side != exchange.SELL {
		t.Fatalf("want a sell trade, got %v", trades)
	}
	sell := trades[1]
	if !sell.Price.Equal(d("103.6")) || !sell.Quantity.Equal(buy.Quantity) {
		t.Fatalf("unexpected sell trade %+v", sell)
	}
	want := sell.Price.Sub(buy.Price).Mul(sell.Quantity).Sub(sell.Fee)
	if !sell.PnL.Equal(want) || !sell.PnL.IsPositive() {
		t.Fatalf("want pnl %s, got %s", want, sell.PnL)
	}
	if len(env.activeLots(t)) != 0 || s.ActiveLots != 0 {
		t.Fatalf("want no active lots after the sell")
	}
	if p := tr.strategy.Position(); p.Side != strategy.NONE {
		t.Fatalf("want flat position after the sell, got %+v", p)
	}
	if len(env.nf.msgs) != 2 {
		t.Fatalf("want buy and sell alerts, got %v", env.nf.msgs)
	}
}

func TestInventoryLimitPausesBuys(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv("100", "100", "10")
	tr := env.newTrader(t, nil)
	if err := tr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	tick(t, tr)

	env.gw.SetPrice(d("94"))
	s := tick(t, tr)
	if s.Intent != strategy.WANT_BUY || s.RiskFrac != 0 {
		t.Fatalf("want a paused buy trigger, got %+v", s)
	}
	if n := env.gw.Calls("PlaceMarketOrder"); n != 0 {
		t.Fatalf("want no market orders, got %d", n)
	}
}

func TestStartFailsOnCredentials(t *testing.T) {
	env := newTestEnv("100", "1000", "0")
	tr := env.newTrader(t, nil)
	env.gw.FailNext("ValidateCredentials", exchange.NewError(exchange.Permanent, "ValidateCredentials", 401, errors.New("invalid api key")))
	if err := tr.Start(context.Background()); !errors.Is(err, exchange.ErrPermanent) {
		t.Fatalf("want permanent error, got %v", err)
	}
	if _, err := tr.Tick(context.Background()); err == nil {
		t.Fatalf("want tick to fail before start")
	}
}

func TestRestartRearmsLots(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv("100", "1000", "0")
	tr := env.newTrader(t, nil)
	if err := tr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	tick(t, tr)
	env.gw.SetPrice(d("94"))
	tick(t, tr)

	before := env.activeLots(t)
	if len(before) != 1 || before[0].Status != gobs.SELL_PLACED {
		t.Fatalf("want one armed lot, got %+v", before)
	}

	opts := &Options{Symbol: "BTCUSDT", ProfitPct: 0.10, CancelOpenOrdersOnStart: true, ResumeOnStart: true}
	tr2 := env.newTrader(t, opts)
	if err := tr2.Start(ctx); err != nil {
		t.Fatal(err)
	}
	after := env.activeLots(t)
	if len(after) != 1 || after[0].Status != gobs.SELL_PLACED {
		t.Fatalf("want the lot re-armed, got %+v", after)
	}
	if after[0].SellClientID == before[0].SellClientID {
		t.Fatalf("want a new client order id after restart")
	}
	if open := env.gw.OpenOrders(); len(open) != 1 || open[0] != after[0].SellClientID {
		t.Fatalf("want only the new sell order open, got %v", open)
	}
	if p := tr2.strategy.Position(); p.Side != strategy.LONG || !p.Quantity.Equal(after[0].Quantity) {
		t.Fatalf("want LONG position restored from the lot, got %+v", p)
	}
	if !tr2.strategy.ReferencePrice().Equal(d("94")) {
		t.Fatalf("want reference price restored, got %s", tr2.strategy.ReferencePrice())
	}
}

func TestRestartSettlesPartialSell(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv("100", "1000", "0")
	tr := env.newTrader(t, nil)
	if err := tr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	tick(t, tr)
	env.gw.SetPrice(d("94"))
	tick(t, tr)

	before := env.activeLots(t)
	if len(before) != 1 || before[0].Status != gobs.SELL_PLACED {
		t.Fatalf("want one armed lot, got %+v", before)
	}
	if !env.gw.FillPartial(before[0].SellClientID, d("1")) {
		t.Fatalf("could not fill the sell partially")
	}

	opts := &Options{Symbol: "BTCUSDT", ProfitPct: 0.10, CancelOpenOrdersOnStart: true}
	tr2 := env.newTrader(t, opts)
	if err := tr2.Start(ctx); err != nil {
		t.Fatal(err)
	}
	after := env.activeLots(t)
	want := before[0].Quantity.Sub(d("1"))
	if len(after) != 1 || after[0].Status != gobs.SELL_PLACED || !after[0].Quantity.Equal(want) {
		t.Fatalf("want the lot re-armed with %s, got %+v", want, after)
	}
	trades := env.trades(t)
	if len(trades) != 2 || trades[1].Side != exchange.SELL || !trades[1].Quantity.Equal(d("1")) {
		t.Fatalf("want the executed part recorded as a sell, got %v", trades)
	}
	if !trades[1].Price.Equal(before[0].SellPrice) || !trades[1].PnL.IsPositive() {
		t.Fatalf("unexpected partial sell trade %+v", trades[1])
	}
	if p := tr2.strategy.Position(); p.Side != strategy.LONG || !p.Quantity.Equal(want) {
		t.Fatalf("want LONG position with the remaining quantity, got %+v", p)
	}
}

func TestUnrecordedBuyIsSettled(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv("100", "1000", "0")
	tr := env.newTrader(t, nil)
	if err := tr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	tick(t, tr)

	env.gw.SetPrice(d("94"))
	env.hook.afterMarket = func() { env.db.failWrites = true }
	if _, err := tr.Tick(ctx); err == nil {
		t.Fatalf("want tick failure when the buy cannot be recorded")
	}
	env.hook.afterMarket = nil
	env.db.failWrites = false

	if trades := env.trades(t); len(trades) != 0 {
		t.Fatalf("want no trades after the failed update, got %v", trades)
	}

	tick(t, tr)
	trades := env.trades(t)
	if len(trades) != 1 || trades[0].Side != exchange.BUY || !trades[0].Quantity.Equal(d("2.6595")) {
		t.Fatalf("want the filled buy recorded, got %v", trades)
	}
	if n := env.gw.Calls("PlaceMarketOrder"); n != 1 {
		t.Fatalf("want a single market order, got %d", n)
	}
	if lots := env.activeLots(t); len(lots) != 1 || lots[0].Status != gobs.SELL_PLACED || !lots[0].Quantity.Equal(d("2.6595")) {
		t.Fatalf("want one armed lot for the buy, got %+v", lots)
	}
	env.st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		if _, err := store.GetValue[gobs.PendingBuy](ctx, tx, PendingBuyKey); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("want pending buy cleared, got %v", err)
		}
		return nil
	})
}

func TestStartDropsUnknownPendingBuy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv("100", "1000", "0")
	err := env.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		return store.SetValue(ctx, tx, PendingBuyKey, &gobs.PendingBuy{ClientOrderID: "sb-unknown", Quantity: d("1"), RefPrice: d("100")})
	})
	if err != nil {
		t.Fatal(err)
	}

	tr := env.newTrader(t, nil)
	if err := tr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if trades := env.trades(t); len(trades) != 0 {
		t.Fatalf("want no trades for an unknown order, got %v", trades)
	}
	env.st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		if _, err := store.GetValue[gobs.PendingBuy](ctx, tx, PendingBuyKey); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("want pending buy dropped, got %v", err)
		}
		return nil
	})
}

func TestRunSurvivesFailedTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnv("100", "1000", "0")
	tr := env.newTrader(t, nil)
	if err := tr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	tr.opts.PollInterval = time.Millisecond

	// First tick fails, second tick sets the reference price and the third
	// tick sees the drop. Shutdown is requested in the middle of the third
	// tick, which must still place the buy.
	env.gw.FailNext("GetPrice", exchange.NewError(exchange.Permanent, "GetPrice", 0, errors.New("invalid symbol")))
	nprice := 0
	env.hook.beforePrice = func() {
		if nprice++; nprice == 3 {
			env.gw.SetPrice(d("94"))
			cancel()
		}
	}

	errc := make(chan error, 1)
	go func() {
		errc <- tr.Run(ctx)
	}()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("trader did not stop after cancel")
	}

	if nprice != 3 {
		t.Fatalf("want 3 ticks, got %d", nprice)
	}
	if n := env.gw.Calls("PlaceMarketOrder"); n != 1 {
		t.Fatalf("want the buy placed by the last tick, got %d orders", n)
	}
	if trades := env.trades(t); len(trades) != 1 || trades[0].Side != exchange.BUY {
		t.Fatalf("want the buy recorded before stop, got %v", trades)
	}
	if s := tr.Status(); s == nil || s.Intent != strategy.WANT_BUY {
		t.Fatalf("want status from the completed tick, got %+v", s)
	}
}

func TestRefreshUpdatesFeeRate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv("100", "1000", "0")
	tr := env.newTrader(t, nil)
	start := time.Now()
	tr.now = func() time.Time { return start }
	if err := tr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if n := env.gw.Calls("GetFeeRates"); n != 1 {
		t.Fatalf("want 1 fee rate lookup before the refresh interval, got %d", n)
	}

	env.gw.SetFeeRates(&exchange.FeeRates{Maker: d("0.002"), Taker: d("0.0025")})
	tr.now = func() time.Time { return start.Add(DefaultRefreshInterval + time.Minute) }
	if _, err := tr.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if n := env.gw.Calls("GetFeeRates"); n != 2 {
		t.Fatalf("want 2 fee rate lookups, got %d", n)
	}
	if rate := tr.strategy.Options().FeeRate; !rate.Equal(d("0.0025")) {
		t.Fatalf("want fee rate 0.0025, got %s", rate)
	}
	if n := env.gw.Calls("GetSymbolConstraints"); n != 2 {
		t.Fatalf("want constraints fetched again after the refresh, got %d lookups", n)
	}
}

func TestResumeUnmatchedBuy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv("100", "500", "0.5")
	err := env.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		_, err := tx.AppendTrade(ctx, &gobs.Trade{Side: exchange.BUY, Price: d("98"), Quantity: d("1"), Fee: d("0.098")})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	opts := &Options{Symbol: "BTCUSDT", ProfitPct: 0.10, ResumeOnStart: true}
	tr := env.newTrader(t, opts)
	if err := tr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	lots := env.activeLots(t)
	if len(lots) != 1 {
		t.Fatalf("want one resumed lot, got %d", len(lots))
	}
	if !lots[0].Quantity.Equal(d("0.5")) || !lots[0].AvgBuyPrice.Equal(d("98")) {
		t.Fatalf("want lot capped by free balance, got %+v", lots[0])
	}
	if lots[0].Status != gobs.SELL_PLACED {
		t.Fatalf("want resumed lot armed, got %s", lots[0].Status)
	}

	// A second start finds the active lot and doesn't resume again.
	tr2 := env.newTrader(t, opts)
	if err := tr2.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if lots := env.activeLots(t); len(lots) != 1 || !lots[0].Quantity.Equal(d("0.5")) {
		t.Fatalf("want the resumed lot unchanged, got %+v", lots)
	}
}

func TestInventoryRatio(t *testing.T) {
	lots := []*gobs.Lot{
		{Status: gobs.SELL_PLACED, Quantity: d("1")},
		{Status: gobs.OPEN, Quantity: d("1")},
	}
	// One unit is free and one is locked in the armed sell.
	if r := inventoryRatio(d("1"), d("200"), d("100"), lots); r != 0.5 {
		t.Fatalf("want 0.5, got %v", r)
	}
	if r := inventoryRatio(decimal.Zero, decimal.Zero, d("100"), nil); r != 0 {
		t.Fatalf("want 0 for empty portfolio, got %v", r)
	}
}
