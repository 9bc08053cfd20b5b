// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/store"
	"github.com/bvk/spotbot/timerange"
	"github.com/bvk/spotbot/trader"
	"github.com/shopspring/decimal"
)

// Summary aggregates the trades in a time period.
type Summary struct {
	Period string

	NumBuys  int
	NumSells int

	Bought decimal.Decimal
	Sold   decimal.Decimal
	Fees   decimal.Decimal

	// Profit is the realized pnl of the sells, net of fees.
	Profit decimal.Decimal
}

func summarize(name string, period *timerange.Range, trades []*gobs.Trade) *Summary {
	s := &Summary{Period: name}
	for _, t := range trades {
		if !period.InRange(t.Time) {
			continue
		}
		value := t.Price.Mul(t.Quantity)
		s.Fees = s.Fees.Add(t.Fee)
		if t.Side == exchange.BUY {
			s.NumBuys++
			s.Bought = s.Bought.Add(value)
			continue
		}
		s.NumSells++
		s.Sold = s.Sold.Add(value)
		s.Profit = s.Profit.Add(t.PnL)
	}
	return s
}

// Summarize returns the trade summaries for the named periods. All periods
// listed in timerange.Periods are used when names is empty.
func Summarize(ctx context.Context, st *store.Store, now time.Time, names ...string) ([]*Summary, error) {
	if len(names) == 0 {
		names = timerange.Periods
	}
	var periods []*timerange.Range
	for _, name := range names {
		p, err := timerange.Period(name, now, now.Location())
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}

	var trades []*gobs.Trade
	err := st.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		trades, err = tx.ListTrades(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	var summaries []*Summary
	for i, p := range periods {
		summaries = append(summaries, summarize(names[i], p, trades))
	}
	return summaries, nil
}

func WriteSummaries(w io.Writer, summaries []*Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Period\tBuys\tSells\tBought\tSold\tFees\tProfit\t\n")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t\n", s.Period, s.NumBuys, s.NumSells,
			s.Bought.StringFixed(3), s.Sold.StringFixed(3), s.Fees.StringFixed(3), s.Profit.StringFixed(3))
	}
	return tw.Flush()
}

func WriteLots(w io.Writer, lots []*gobs.Lot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "ID\tStatus\tQuantity\tAvgBuyPrice\tTargetPrice\tSellPrice\tBuys\tSellClientID\tUpdated\t\n")
	for _, l := range lots {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t\n", l.ID, l.Status, l.Quantity, l.AvgBuyPrice.StringFixed(2),
			l.TargetPrice.StringFixed(2), l.SellPrice.StringFixed(2), l.NumBuys, l.SellClientID, l.UpdatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func WriteTrades(w io.Writer, trades []*gobs.Trade) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "ID\tTime\tSide\tPrice\tQuantity\tFee\tPnL\tBalance\tConfig\tLot\tClientOrderID\t\n")
	for _, t := range trades {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t\n", t.ID, t.Time.Format(time.DateTime), t.Side,
			t.Price.StringFixed(2), t.Quantity, t.Fee.StringFixed(5), t.PnL.StringFixed(3), t.BalanceAfter.StringFixed(2),
			t.ConfigID, t.LotID, t.ClientOrderID)
	}
	return tw.Flush()
}

// WriteConfigs prints the trigger configurations with their performance. The
// active configuration is marked with a '*'.
func WriteConfigs(w io.Writer, configs []*gobs.TriggerConfig, perfMap map[int64]*gobs.ConfigPerformance, activeID int64) error {
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "ID\tMinChange\tMaxChange\tQtyFrac\tTrades\tTotalPnL\tAvgPnL\t\t\n")
	for _, c := range configs {
		var p gobs.ConfigPerformance
		if v, ok := perfMap[c.ID]; ok {
			p = *v
		}
		mark := ""
		if c.ID == activeID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%d\t%.2f%%\t%.2f%%\t%.2f\t%d\t%s\t%s\t%s\t\n", c.ID, c.MinChangePct*100, c.MaxChangePct*100,
			c.TradeQtyFrac, p.NumTrades, p.TotalPnL.StringFixed(3), p.AvgPnL.StringFixed(3), mark)
	}
	return tw.Flush()
}

func WriteStatus(w io.Writer, s *trader.Status) error {
	if s == nil {
		_, err := fmt.Fprintln(w, "no status is available yet")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "Time:\t%s\n", s.Time.Format(time.DateTime))
	fmt.Fprintf(tw, "Symbol:\t%s\n", s.Symbol)
	fmt.Fprintf(tw, "Price:\t%s\n", s.Price.StringFixed(2))
	fmt.Fprintf(tw, "Reference:\t%s\n", s.ReferencePrice.StringFixed(2))
	fmt.Fprintf(tw, "Drop:\t%s%%\n", s.Drop.Shift(2).StringFixed(2))
	fmt.Fprintf(tw, "Spacing:\t%.2f%%\n", s.Spacing*100)
	fmt.Fprintf(tw, "Intent:\t%s (%s)\n", s.Intent, s.Reason)
	fmt.Fprintf(tw, "Position:\t%s %s @ %s\n", s.Position.Side, s.Position.Quantity, s.Position.EntryPrice.StringFixed(2))
	fmt.Fprintf(tw, "Balance:\t%s\n", s.Balance.StringFixed(2))
	fmt.Fprintf(tw, "Free:\t%s base, %s quote\n", s.FreeBase, s.FreeQuote.StringFixed(2))
	fmt.Fprintf(tw, "Inventory:\t%.1f%%\n", s.InventoryRatio*100)
	fmt.Fprintf(tw, "Risk:\t%.1f%%\n", s.RiskFrac*100)
	fmt.Fprintf(tw, "Active lots:\t%d\n", s.ActiveLots)
	fmt.Fprintf(tw, "Config:\t%d (%s)\n", s.ConfigID, s.ConfigReason)
	return tw.Flush()
}
