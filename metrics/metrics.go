// Copyright (c) 2025 BVK Chaitanya

// Package metrics defines the prometheus metrics updated by the control loop.
// Metrics are registered with the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotbot_ticks_total",
			Help: "Control loop ticks by result (ok|error).",
		},
		[]string{"result"},
	)

	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotbot_decisions_total",
			Help: "Strategy decisions by intent.",
		},
		[]string{"intent"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotbot_orders_total",
			Help: "Orders placed by side and type.",
		},
		[]string{"side", "type"},
	)

	trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotbot_trades_total",
			Help: "Recorded trades by side.",
		},
		[]string{"side"},
	)

	realizedPnL = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spotbot_realized_pnl_total",
			Help: "Sum of the positive realized pnl in the quote asset since start.",
		},
	)

	realizedLoss = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spotbot_realized_loss_total",
			Help: "Sum of the realized losses in the quote asset since start.",
		},
	)

	price = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotbot_price",
			Help: "Last observed price of the traded symbol.",
		},
	)

	referencePrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotbot_reference_price",
			Help: "Reference price of the buy trigger.",
		},
	)

	inventoryRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotbot_inventory_ratio",
			Help: "Share of the portfolio value held in the base asset.",
		},
	)

	spacing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotbot_buy_spacing_ratio",
			Help: "Effective minimum drop that triggers a buy.",
		},
	)

	activeLots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotbot_active_lots",
			Help: "Number of lots in OPEN or SELL_PLACED status.",
		},
	)

	activeConfig = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotbot_active_config_id",
			Help: "Id of the active trigger configuration.",
		},
	)

	configSwitches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotbot_config_switches_total",
			Help: "Trigger configuration selections by policy (exploration|exploitation).",
		},
		[]string{"policy"},
	)
)

func init() {
	prometheus.MustRegister(ticks, decisions, orders, trades, realizedPnL, realizedLoss)
	prometheus.MustRegister(price, referencePrice, inventoryRatio, spacing, activeLots, activeConfig, configSwitches)
}

// Tick records the values observed in a successful tick.
type Tick struct {
	Price          float64
	ReferencePrice float64
	InventoryRatio float64
	Spacing        float64
	ActiveLots     int
	ConfigID       int64
	Intent         string
}

func ObserveTick(t *Tick) {
	ticks.WithLabelValues("ok").Inc()
	decisions.WithLabelValues(t.Intent).Inc()
	price.Set(t.Price)
	referencePrice.Set(t.ReferencePrice)
	inventoryRatio.Set(t.InventoryRatio)
	spacing.Set(t.Spacing)
	activeLots.Set(float64(t.ActiveLots))
	activeConfig.Set(float64(t.ConfigID))
}

func IncTickErrors() { ticks.WithLabelValues("error").Inc() }

func IncOrders(side, typ string) { orders.WithLabelValues(side, typ).Inc() }

// ObserveTrade records a trade and its realized pnl.
func ObserveTrade(side string, pnl float64) {
	trades.WithLabelValues(side).Inc()
	if pnl > 0 {
		realizedPnL.Add(pnl)
	} else if pnl < 0 {
		realizedLoss.Add(-pnl)
	}
}

func IncConfigSwitches(policy string) { configSwitches.WithLabelValues(policy).Inc() }
