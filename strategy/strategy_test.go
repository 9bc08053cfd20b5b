// Copyright (c) 2025 BVK Chaitanya

package strategy

import (
	"math/rand"
	"testing"

	"github.com/bvk/spotbot/gobs"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testOptions() *Options {
	return &Options{
		MinChangePct:      0.05,
		MaxChangePct:      0.10,
		RearmThresholdPct: 0.03,
		ProfitPct:         0.10,
		FeeRate:           d("0.001"),
		SafetyBps:         10,
		TickSize:          d("0.01"),
	}
}

func TestBuyTrigger(t *testing.T) {
	s, err := New(d("1000"), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	if v := s.Evaluate(d("100")); v.Intent != HOLD {
		t.Fatalf("want HOLD on first price, got %s", v.Intent)
	}
	if v := s.Evaluate(d("96")); v.Intent != HOLD {
		t.Fatalf("want HOLD on 4%% drop, got %s", v.Intent)
	}
	v := s.Evaluate(d("94"))
	if v.Intent != WANT_BUY {
		t.Fatalf("want WANT_BUY on 6%% drop, got %s", v.Intent)
	}
	if !v.BuyPrice.Equal(d("95")) {
		t.Fatalf("want buy price 95, got %s", v.BuyPrice)
	}
}

func TestReferenceRearm(t *testing.T) {
	s, _ := New(d("1000"), testOptions())
	s.Evaluate(d("100"))
	s.Evaluate(d("102"))
	if !s.ReferencePrice().Equal(d("100")) {
		t.Fatalf("want reference unchanged below threshold, got %s", s.ReferencePrice())
	}
	s.Evaluate(d("104"))
	if !s.ReferencePrice().Equal(d("104")) {
		t.Fatalf("want reference re-armed to 104, got %s", s.ReferencePrice())
	}
	if v := s.Evaluate(d("99")); v.Intent != WANT_BUY {
		t.Fatalf("want WANT_BUY relative to the new reference, got %s", v.Intent)
	}
}

func TestSellTarget(t *testing.T) {
	s, _ := New(d("1000"), testOptions())

	// 95 * 1.002 * 1.1 / 0.998 = 104.9188...
	target := s.SellTarget(d("95"))
	if !target.Equal(d("104.91")) {
		t.Fatalf("want sell target 104.91, got %s", target)
	}
	if m := s.NetMargin(d("95"), target.Add(d("0.01"))); m.LessThan(d("0.10")) {
		t.Fatalf("margin one tick above target %s is below the required margin", m)
	}
}

func TestSellTargetMargin(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tick := d("0.01")
	for i := 0; i < 1000; i++ {
		pb := decimal.NewFromFloat(1 + rng.Float64()*100000).Round(2)
		fee := decimal.NewFromFloat(rng.Float64() * 0.005).Round(6)
		safety := decimal.New(int64(rng.Intn(50)), -4)
		margin := decimal.NewFromFloat(rng.Float64() * 0.5).Round(4)

		ps := SellTarget(pb, fee, safety, margin, tick)
		if !ps.Mod(tick).IsZero() {
			t.Fatalf("target %s is not a multiple of tick", ps)
		}
		if m := NetMargin(pb, ps.Add(tick), fee, safety); m.LessThan(margin) {
			t.Fatalf("pb=%s fee=%s safety=%s margin=%s: margin %s one tick above target %s is below required", pb, fee, safety, margin, m, ps)
		}
		exact := pb.Mul(one.Add(fee).Add(safety)).Mul(one.Add(margin)).Div(one.Sub(fee).Sub(safety))
		if ps.GreaterThan(exact) {
			t.Fatalf("target %s is rounded up from %s", ps, exact)
		}
	}
}

func TestLongPosition(t *testing.T) {
	s, _ := New(d("1000"), testOptions())
	s.Evaluate(d("100"))
	s.OnBuyExecuted(d("95"), d("1"), d("0.095"))

	if p := s.Position(); p.Side != LONG || !p.EntryPrice.Equal(d("95")) {
		t.Fatalf("want LONG at 95, got %+v", p)
	}
	if !s.Balance().Equal(d("904.905")) {
		t.Fatalf("want balance 904.905, got %s", s.Balance())
	}
	if !s.ReferencePrice().Equal(d("95")) {
		t.Fatalf("want reference reset to fill price, got %s", s.ReferencePrice())
	}

	v := s.Evaluate(d("100"))
	if v.Intent != HOLD_LONG || !v.SellPrice.Equal(d("104.91")) {
		t.Fatalf("want HOLD_LONG with target 104.91, got %s %s", v.Intent, v.SellPrice)
	}
	v = s.Evaluate(d("105"))
	if v.Intent != WANT_SELL || !v.SellPrice.Equal(d("104.91")) {
		t.Fatalf("want WANT_SELL with target 104.91, got %s %s", v.Intent, v.SellPrice)
	}

	pnl, balance := s.OnSellExecuted(d("105"), d("1"), d("0.105"))
	if !pnl.Equal(d("9.895")) {
		t.Fatalf("want pnl 9.895, got %s", pnl)
	}
	if !balance.Equal(d("1009.8")) {
		t.Fatalf("want balance 1009.8, got %s", balance)
	}
	if p := s.Position(); p.Side != NONE {
		t.Fatalf("want flat position, got %+v", p)
	}
}

func TestDynamicSpacing(t *testing.T) {
	opts := testOptions()
	opts.MinChangePct = 0.005
	opts.MaxSpacingPct = 0.02
	s, _ := New(d("1000"), opts)

	s.Evaluate(d("100"))
	if sp := s.Spacing(); sp != 0.005 {
		t.Fatalf("want base spacing, got %v", sp)
	}
	// Large swings push the volatility estimate past the cap.
	for i := 0; i < 20; i++ {
		s.Evaluate(d("100"))
		s.Evaluate(d("120"))
	}
	if sp := s.Spacing(); sp != 0.02 {
		t.Fatalf("want capped spacing 0.02, got %v", sp)
	}
}

func TestStateRestore(t *testing.T) {
	s1, _ := New(d("1000"), testOptions())
	s1.Evaluate(d("100"))
	s1.OnBuyExecuted(d("95"), d("2"), d("0.19"))

	s2, _ := New(d("0"), testOptions())
	if err := s2.Restore(s1.State()); err != nil {
		t.Fatal(err)
	}
	if p := s2.Position(); p.Side != LONG || !p.EntryPrice.Equal(d("95")) || !p.Quantity.Equal(d("2")) {
		t.Fatalf("want restored position, got %+v", s2.Position())
	}
	if !s2.Balance().Equal(s1.Balance()) || !s2.ReferencePrice().Equal(s1.ReferencePrice()) {
		t.Fatalf("want restored balance and reference")
	}
	if err := s2.Restore(&gobs.StrategyState{Side: "SHORT"}); err == nil {
		t.Fatalf("want error for invalid side")
	}
}

func TestSetConfig(t *testing.T) {
	s, _ := New(d("1000"), testOptions())
	if err := s.SetConfig(&gobs.TriggerConfig{MinChangePct: 0.03, MaxChangePct: 0.12}); err != nil {
		t.Fatal(err)
	}
	if o := s.Options(); o.MinChangePct != 0.03 || o.MaxChangePct != 0.12 {
		t.Fatalf("config not applied: %+v", o)
	}
	if err := s.SetConfig(&gobs.TriggerConfig{MinChangePct: 0, MaxChangePct: 0.12}); err == nil {
		t.Fatalf("want error for zero min change")
	}
	if o := s.Options(); o.MinChangePct != 0.03 {
		t.Fatalf("invalid config must not be applied")
	}
}

func TestHelpers(t *testing.T) {
	if v := RiskFraction(0.4, 0.8); v != 0 {
		t.Fatalf("want paused buys, got %v", v)
	}
	if v := RiskFraction(0.4, 0.6); v != 0.2 {
		t.Fatalf("want halved risk, got %v", v)
	}
	if v := RiskFraction(0.4, 0.1); v != 0.4 {
		t.Fatalf("want base risk, got %v", v)
	}
	if n := TradesToTarget(1000, 1150, 0.10); n != 2 {
		t.Fatalf("want 2 trades, got %d", n)
	}
	if n := TradesToTarget(1000, 1000000, 0.10); n != 73 {
		t.Fatalf("want 73 trades, got %d", n)
	}
	if e := NetEdge(d("100"), d("101"), d("0.001"), d("0.001"), 10); !e.Round(6).Equal(d("0.005968")) {
		t.Fatalf("unexpected edge %s", e)
	}
}
