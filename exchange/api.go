// Copyright (c) 2023 BVK Chaitanya

package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

const (
	BUY  = "BUY"
	SELL = "SELL"
)

// SymbolConstraints holds the order quantization rules of a trading pair.
// They are fetched once and remain unchanged for the session.
type SymbolConstraints struct {
	Symbol string

	BaseAsset  string
	QuoteAsset string

	MinQty      decimal.Decimal
	StepSize    decimal.Decimal
	MinNotional decimal.Decimal
	TickSize    decimal.Decimal
}

// FeeRates holds the maker and taker fee rates as fractions (0.001 is 0.1%).
type FeeRates struct {
	Maker decimal.Decimal
	Taker decimal.Decimal
}

// Gateway is the capability interface of an exchange account. Gateway
// implementations perform the network I/O without any retries; errors must be
// classified with an explicit Kind (see Error) so that callers never have to
// parse the failure text.
type Gateway interface {
	ExchangeName() string

	// ValidateCredentials returns nil if the account keys are usable for
	// trading.
	ValidateCredentials(ctx context.Context) error

	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetSymbolConstraints(ctx context.Context, symbol string) (*SymbolConstraints, error)
	GetFeeRates(ctx context.Context, symbol string) (*FeeRates, error)
	GetFreeBalance(ctx context.Context, asset string) (decimal.Decimal, error)

	// PlaceLimitMakerOrder posts a passive order. Returns an error with
	// WouldCross kind if the exchange rejects the order because it would match
	// immediately.
	PlaceLimitMakerOrder(ctx context.Context, symbol, side string, qty, price decimal.Decimal, clientID string) (*Order, error)

	PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal, clientID string) (*Order, error)

	// GetOrderByClientID returns an error with NotFound kind if the exchange
	// doesn't know about the client order id.
	GetOrderByClientID(ctx context.Context, symbol, clientID string) (*Order, error)

	CancelOrderByClientID(ctx context.Context, symbol, clientID string) error
	CancelAllOpenOrders(ctx context.Context, symbol string) error
}
