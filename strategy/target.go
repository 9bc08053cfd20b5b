// Copyright (c) 2025 BVK Chaitanya

package strategy

import (
	"math"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// SellTarget returns the lowest sell price, floored to the tick size, that
// realizes the required net margin for a buy at the given price.
func (s *Strategy) SellTarget(buyPrice decimal.Decimal) decimal.Decimal {
	return SellTarget(buyPrice, s.opts.FeeRate, s.opts.safety(), decimal.NewFromFloat(s.opts.ProfitPct), s.opts.TickSize)
}

// NetMargin returns the net margin of buying and selling at the prices.
func (s *Strategy) NetMargin(buyPrice, sellPrice decimal.Decimal) decimal.Decimal {
	return NetMargin(buyPrice, sellPrice, s.opts.FeeRate, s.opts.safety())
}

// SellTarget solves (ps(1-f-s) - pb(1+f+s)) / (pb(1+f+s)) >= r for the
// minimal sell price ps and floors it to the tick.
func SellTarget(pb, fee, safety, margin, tick decimal.Decimal) decimal.Decimal {
	k := fee.Add(safety)
	ps := pb.Mul(one.Add(k)).Mul(one.Add(margin)).Div(one.Sub(k))
	if tick.IsPositive() {
		ps = ps.Div(tick).Floor().Mul(tick)
	}
	return ps
}

// NetMargin returns the profit after fees and the safety buffer on both legs
// as a fraction of the buy cost.
func NetMargin(pb, ps, fee, safety decimal.Decimal) decimal.Decimal {
	k := fee.Add(safety)
	return NetEdge(pb, ps, k, k, 0)
}

// NetEdge returns the net edge of buying at one venue and selling at another
// with the per-venue fee rates and extra basis points on both legs.
func NetEdge(buyPrice, sellPrice, buyFee, sellFee decimal.Decimal, extraBps int) decimal.Decimal {
	extra := decimal.New(int64(extraBps), -4)
	cost := buyPrice.Mul(one.Add(buyFee).Add(extra))
	revenue := sellPrice.Mul(one.Sub(sellFee).Sub(extra))
	return revenue.Sub(cost).Div(cost)
}

// RiskFraction scales the base risk fraction by the share of the portfolio
// held in the base asset: buys pause above 70% and the fraction is halved
// above 50%.
func RiskFraction(base float64, inventoryRatio float64) float64 {
	switch {
	case inventoryRatio > 0.70:
		return 0
	case inventoryRatio > 0.50:
		return base * 0.5
	}
	return base
}

// TradesToTarget returns the number of trades with the given net gain needed
// to grow the current portfolio value to the target.
func TradesToTarget(current, target, gain float64) int {
	if current <= 0 || target <= current {
		return 0
	}
	g := 1 + math.Max(gain, 1e-6)
	return int(math.Ceil(math.Log(target/current) / math.Log(g)))
}
