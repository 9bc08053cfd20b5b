// Copyright (c) 2023 BVK Chaitanya

// Package gobs defines the records that are gob-encoded into the database.
package gobs

import (
	"time"

	"github.com/shopspring/decimal"
)

type KeyValue struct {
	Key   string
	Value []byte
}

type LotStatus string

const (
	OPEN        LotStatus = "OPEN"
	SELL_PLACED LotStatus = "SELL_PLACED"
	CLOSED      LotStatus = "CLOSED"
)

// Lot is a unit of inventory acquired at one or more buy fills.
type Lot struct {
	ID int64

	AvgBuyPrice decimal.Decimal
	Quantity    decimal.Decimal
	TargetPrice decimal.Decimal

	// SellClientID is the client order id of the sell order armed for this
	// lot. It is empty unless the lot is in SELL_PLACED status.
	SellClientID string
	SellPrice    decimal.Decimal

	Status LotStatus

	NumBuys int

	CreatedAt time.Time
	UpdatedAt time.Time
}

type TriggerConfig struct {
	ID int64

	// MinChangePct is the minimum adverse move from the reference price that
	// triggers a buy.
	MinChangePct float64

	// MaxChangePct is the favorable move from the entry price that triggers a
	// forced sell review.
	MaxChangePct float64

	// TradeQtyFrac is the position sizing fraction of the free balance.
	TradeQtyFrac float64

	CreatedAt time.Time
}

type Trade struct {
	ID int64

	Time time.Time

	Side string

	Price    decimal.Decimal
	Quantity decimal.Decimal
	Fee      decimal.Decimal

	// PnL is the realized profit-and-loss. It is always zero for buys.
	PnL decimal.Decimal

	BalanceAfter decimal.Decimal

	ConfigID int64

	OrderID       string
	ClientOrderID string

	LotID int64
}

// PendingBuy is a market buy order that is placed but not yet recorded as a
// trade. Quantity and RefPrice are the requested size and the ticker price at
// the time of the order.
type PendingBuy struct {
	ClientOrderID string

	Quantity decimal.Decimal
	RefPrice decimal.Decimal

	ConfigID int64

	CreatedAt time.Time
}

// ConfigPerformance is the aggregate trade performance of a trigger
// configuration.
type ConfigPerformance struct {
	ConfigID  int64
	NumTrades int
	TotalPnL  decimal.Decimal
	AvgPnL    decimal.Decimal
}

// StrategyState is the resumable state of the price-trigger state machine.
type StrategyState struct {
	Side string

	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal

	ReferencePrice decimal.Decimal

	Balance decimal.Decimal

	// Volatility is the moving average of absolute price returns between
	// ticks and LastPrice is the price observed on the last tick.
	Volatility float64
	LastPrice  decimal.Decimal
}

// BanditState tracks the active trigger configuration and its rotation
// cadence.
type BanditState struct {
	ActiveConfigID int64

	Reason string

	SwitchedAt time.Time

	// TradeCount is the number of trades recorded when the active
	// configuration was selected.
	TradeCount int64
}

// TelegramState holds the chat ids of the authorized users, learned from the
// messages they send to the bot.
type TelegramState struct {
	UserChatIDMap map[string]int64
}
