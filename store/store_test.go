// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/gobs"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTradesAndStats(t *testing.T) {
	ctx := context.Background()
	s := New(kvmemdb.New())

	trades := []*gobs.Trade{
		{Side: exchange.BUY, Price: d("100"), Quantity: d("1"), ConfigID: 1, BalanceAfter: d("900")},
		{Side: exchange.SELL, Price: d("102"), Quantity: d("1"), PnL: d("2"), ConfigID: 1, BalanceAfter: d("1002")},
		{Side: exchange.BUY, Price: d("101"), Quantity: d("1"), ConfigID: 2, BalanceAfter: d("901")},
	}
	err := s.Update(ctx, func(ctx context.Context, tx *Tx) error {
		for _, tr := range trades {
			if _, err := tx.AppendTrade(ctx, tr); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.View(ctx, func(ctx context.Context, tx *Tx) error {
		n, err := tx.TradeCount(ctx)
		if err != nil {
			return err
		}
		if n != 3 {
			t.Fatalf("want 3 trades, got %d", n)
		}
		total, avg, count, err := tx.Stats(ctx)
		if err != nil {
			return err
		}
		if !total.Equal(d("2")) || count != 3 || !avg.Equal(d("2").Div(d("3"))) {
			t.Fatalf("unexpected stats total=%s avg=%s count=%d", total, avg, count)
		}
		perf, err := tx.ConfigPerformance(ctx)
		if err != nil {
			return err
		}
		if p := perf[1]; p == nil || p.NumTrades != 2 || !p.AvgPnL.Equal(d("1")) {
			t.Fatalf("unexpected performance for config 1: %+v", p)
		}
		if p := perf[2]; p == nil || p.NumTrades != 1 || !p.AvgPnL.IsZero() {
			t.Fatalf("unexpected performance for config 2: %+v", p)
		}
		balance, err := tx.LastBalance(ctx)
		if err != nil {
			return err
		}
		if !balance.Equal(d("901")) {
			t.Fatalf("want last balance 901, got %s", balance)
		}
		buy, err := tx.UnmatchedBuy(ctx)
		if err != nil {
			return err
		}
		if buy == nil || buy.ID != 3 {
			t.Fatalf("want unmatched buy with id 3, got %+v", buy)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUnmatchedBuyAfterSell(t *testing.T) {
	ctx := context.Background()
	s := New(kvmemdb.New())

	err := s.Update(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.AppendTrade(ctx, &gobs.Trade{Side: exchange.BUY, Price: d("100"), Quantity: d("1")}); err != nil {
			return err
		}
		_, err := tx.AppendTrade(ctx, &gobs.Trade{Side: exchange.SELL, Price: d("101"), Quantity: d("1"), PnL: d("1")})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	s.View(ctx, func(ctx context.Context, tx *Tx) error {
		buy, err := tx.UnmatchedBuy(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if buy != nil {
			t.Fatalf("want no unmatched buy, got %+v", buy)
		}
		return nil
	})
}

func TestInvalidTrades(t *testing.T) {
	ctx := context.Background()
	s := New(kvmemdb.New())

	bad := []*gobs.Trade{
		{Side: "HOLD", Price: d("1"), Quantity: d("1")},
		{Side: exchange.BUY, Price: d("1"), Quantity: d("0")},
		{Side: exchange.BUY, Price: d("1"), Quantity: d("1"), PnL: d("1")},
	}
	for i, tr := range bad {
		err := s.Update(ctx, func(ctx context.Context, tx *Tx) error {
			_, err := tx.AppendTrade(ctx, tr)
			return err
		})
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("%d: want os.ErrInvalid, got %v", i, err)
		}
	}
}

func TestEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := New(kvmemdb.New())

	s.View(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.LastBalance(ctx); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("want os.ErrNotExist, got %v", err)
		}
		if n, err := tx.TradeCount(ctx); err != nil || n != 0 {
			t.Fatalf("want zero trades, got %d (%v)", n, err)
		}
		if _, err := tx.GetState(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("want os.ErrNotExist, got %v", err)
		}
		if _, err := tx.AppendTrade(ctx, &gobs.Trade{Side: exchange.BUY, Price: d("1"), Quantity: d("1")}); !errors.Is(err, os.ErrPermission) {
			t.Fatalf("want os.ErrPermission in read-only tx, got %v", err)
		}
		return nil
	})
}

func TestConfigs(t *testing.T) {
	ctx := context.Background()
	s := New(kvmemdb.New())

	err := s.Update(ctx, func(ctx context.Context, tx *Tx) error {
		for _, pct := range []float64{0.5, 1.0, 1.5} {
			c := &gobs.TriggerConfig{MinChangePct: pct, MaxChangePct: pct * 2, TradeQtyFrac: 1}
			if _, err := tx.InsertConfig(ctx, c); err != nil {
				return err
			}
		}
		_, err := tx.InsertConfig(ctx, &gobs.TriggerConfig{MinChangePct: 1, MaxChangePct: 2, TradeQtyFrac: 2})
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("want os.ErrInvalid, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	s.View(ctx, func(ctx context.Context, tx *Tx) error {
		configs, err := tx.ListConfigs(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(configs) != 3 {
			t.Fatalf("want 3 configs, got %d", len(configs))
		}
		for i, c := range configs {
			if c.ID != int64(i+1) {
				t.Fatalf("want config id %d, got %d", i+1, c.ID)
			}
		}
		c, err := tx.GetConfig(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		if c.MinChangePct != 1.0 {
			t.Fatalf("want min change 1.0, got %v", c.MinChangePct)
		}
		if _, err := tx.GetConfig(ctx, 10); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("want os.ErrNotExist, got %v", err)
		}
		return nil
	})
}

func TestActiveLotsIndex(t *testing.T) {
	ctx := context.Background()
	s := New(kvmemdb.New())

	err := s.Update(ctx, func(ctx context.Context, tx *Tx) error {
		for i := 0; i < 3; i++ {
			lot := &gobs.Lot{AvgBuyPrice: d("100"), Quantity: d("1"), Status: gobs.OPEN}
			if _, err := tx.InsertLot(ctx, lot); err != nil {
				return err
			}
		}
		lot, err := tx.GetLot(ctx, 2)
		if err != nil {
			return err
		}
		lot.Status = gobs.CLOSED
		return tx.PutLot(ctx, lot)
	})
	if err != nil {
		t.Fatal(err)
	}
	s.View(ctx, func(ctx context.Context, tx *Tx) error {
		active, err := tx.ListActiveLots(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(active) != 2 || active[0].ID != 1 || active[1].ID != 3 {
			t.Fatalf("unexpected active lots %v", active)
		}
		all, err := tx.ListLots(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Fatalf("want 3 lots, got %d", len(all))
		}
		return nil
	})
}

func TestStateValues(t *testing.T) {
	ctx := context.Background()
	s := New(kvmemdb.New())

	if err := s.SetState(ctx, "client-id-offset", "42"); err != nil {
		t.Fatal(err)
	}
	if v, err := s.GetState(ctx, "client-id-offset"); err != nil || v != "42" {
		t.Fatalf("want 42, got %q (%v)", v, err)
	}

	want := &gobs.BanditState{ActiveConfigID: 7, Reason: "explore", TradeCount: 3}
	err := s.Update(ctx, func(ctx context.Context, tx *Tx) error {
		return SetValue(ctx, tx, "bandit", want)
	})
	if err != nil {
		t.Fatal(err)
	}
	s.View(ctx, func(ctx context.Context, tx *Tx) error {
		got, err := GetValue[gobs.BanditState](ctx, tx, "bandit")
		if err != nil {
			t.Fatal(err)
		}
		if got.ActiveConfigID != 7 || got.Reason != "explore" || got.TradeCount != 3 {
			t.Fatalf("unexpected bandit state %+v", got)
		}
		return nil
	})

	for i := 0; i < 2; i++ {
		if err := s.Update(ctx, func(ctx context.Context, tx *Tx) error {
			return tx.DeleteState(ctx, "bandit")
		}); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	s.View(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := GetValue[gobs.BanditState](ctx, tx, "bandit"); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("want os.ErrNotExist after delete, got %v", err)
		}
		return nil
	})
}

func TestUpdateRollback(t *testing.T) {
	ctx := context.Background()
	s := New(kvmemdb.New())

	failed := errors.New("failed")
	err := s.Update(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.AppendTrade(ctx, &gobs.Trade{Side: exchange.BUY, Price: d("1"), Quantity: d("1")}); err != nil {
			return err
		}
		return failed
	})
	if !errors.Is(err, failed) {
		t.Fatalf("want %v, got %v", failed, err)
	}
	s.View(ctx, func(ctx context.Context, tx *Tx) error {
		if n, _ := tx.TradeCount(ctx); n != 0 {
			t.Fatalf("want rolled back trade, got %d trades", n)
		}
		return nil
	})
}
