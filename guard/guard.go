// Copyright (c) 2025 BVK Chaitanya

// Package guard wraps an exchange gateway with order quantization, minimum
// size validation, client order id assignment and retries of transient
// failures.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/bvk/spotbot/ctxutil"
	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/idgen"
	"github.com/shopspring/decimal"
)

// ErrSizingRejected is returned when the quantized order is below the minimum
// quantity or the minimum notional of the symbol.
var ErrSizingRejected = errors.New("order size is below the symbol minimums")

// ClientIDOffsetKey is the state key that holds the reserved client order id
// offset.
const ClientIDOffsetKey = "client-id-offset"

// idReserve is the number of client ids reserved with a single state update.
const idReserve = 10

// DefaultFeeRate is used when the exchange doesn't report the fee rates.
var DefaultFeeRate = decimal.NewFromFloat(0.001)

type Options struct {
	// MaxAttempts is the number of attempts for an operation that fails with
	// transient errors.
	MaxAttempts int

	// BaseBackoff is the delay after the first failed attempt. Delay doubles
	// after every attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// ClientIDPrefix is prepended to all client order ids.
	ClientIDPrefix string
}

func (v *Options) setDefaults() {
	if v.MaxAttempts <= 0 {
		v.MaxAttempts = 5
	}
	if v.BaseBackoff <= 0 {
		v.BaseBackoff = 500 * time.Millisecond
	}
	if v.MaxBackoff <= 0 {
		v.MaxBackoff = 8 * time.Second
	}
	if v.ClientIDPrefix == "" {
		v.ClientIDPrefix = "sb-"
	}
}

// StateStore persists the client order id offset.
type StateStore interface {
	GetState(ctx context.Context, name string) (string, error)
	SetState(ctx context.Context, name, value string) error
}

type Guard struct {
	opts Options

	gw     exchange.Gateway
	symbol string

	seed     string
	state    StateStore
	ids      *idgen.Generator
	reserved uint64

	constraints *exchange.SymbolConstraints
	fees        *exchange.FeeRates
}

// New creates a guard for trading the symbol through the gateway. Seed
// determines the sequence of client order ids; it must be stable across
// restarts of the same bot.
func New(gw exchange.Gateway, symbol, seed string, state StateStore, opts *Options) *Guard {
	g := &Guard{
		gw:     gw,
		symbol: symbol,
		seed:   seed,
		state:  state,
	}
	if opts != nil {
		g.opts = *opts
	}
	g.opts.setDefaults()
	return g
}

func (g *Guard) Symbol() string {
	return g.symbol
}

func (g *Guard) Gateway() exchange.Gateway {
	return g.gw
}

// retry runs the function with exponential backoff till it succeeds, fails
// with a non-transient error or the attempts are exhausted.
func (g *Guard) retry(ctx context.Context, op string, f func() error) error {
	attempt := 0
	retryable := func(err error) bool {
		attempt++
		if !exchange.IsTransient(err) {
			return false
		}
		if attempt < g.opts.MaxAttempts {
			slog.Warn("retrying transient gateway failure", "op", op, "attempt", attempt, "err", err)
		}
		return true
	}
	if err := ctxutil.RetryBackoff(ctx, g.opts.MaxAttempts, g.opts.BaseBackoff, g.opts.MaxBackoff, retryable, f); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Refresh drops the cached symbol constraints and fee rates. They are fetched
// again on next use.
func (g *Guard) Refresh() {
	g.constraints = nil
	g.fees = nil
}

// Constraints returns the symbol constraints, fetching them on first use.
func (g *Guard) Constraints(ctx context.Context) (*exchange.SymbolConstraints, error) {
	if g.constraints != nil {
		return g.constraints, nil
	}
	var c *exchange.SymbolConstraints
	err := g.retry(ctx, "GetSymbolConstraints", func() (err error) {
		c, err = g.gw.GetSymbolConstraints(ctx, g.symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !c.StepSize.IsPositive() || !c.TickSize.IsPositive() {
		return nil, fmt.Errorf("symbol %s has invalid step %s or tick %s: %w", g.symbol, c.StepSize, c.TickSize, os.ErrInvalid)
	}
	g.constraints = c
	return c, nil
}

// FeeRates returns the maker and taker fee rates, fetching them on first use.
// Default rates are used when the exchange doesn't provide them.
func (g *Guard) FeeRates(ctx context.Context) *exchange.FeeRates {
	if g.fees != nil {
		return g.fees
	}
	var fees *exchange.FeeRates
	err := g.retry(ctx, "GetFeeRates", func() (err error) {
		fees, err = g.gw.GetFeeRates(ctx, g.symbol)
		return err
	})
	if err != nil || fees == nil || fees.Maker.IsNegative() || fees.Taker.IsNegative() {
		slog.Warn("using default fee rates", "symbol", g.symbol, "rate", DefaultFeeRate, "err", err)
		fees = &exchange.FeeRates{Maker: DefaultFeeRate, Taker: DefaultFeeRate}
	}
	g.fees = fees
	return fees
}

func (g *Guard) ValidateCredentials(ctx context.Context) error {
	return g.retry(ctx, "ValidateCredentials", func() error {
		return g.gw.ValidateCredentials(ctx)
	})
}

func (g *Guard) Price(ctx context.Context) (price decimal.Decimal, err error) {
	err = g.retry(ctx, "GetPrice", func() (err error) {
		price, err = g.gw.GetPrice(ctx, g.symbol)
		return err
	})
	return price, err
}

func (g *Guard) FreeBalance(ctx context.Context, asset string) (balance decimal.Decimal, err error) {
	err = g.retry(ctx, "GetFreeBalance", func() (err error) {
		balance, err = g.gw.GetFreeBalance(ctx, asset)
		return err
	})
	return balance, err
}

// nextClientID returns a new client order id. Ids are reserved in batches by
// saving the offset past the batch before any id from the batch is used, so a
// restart never reuses an id.
func (g *Guard) nextClientID(ctx context.Context) (string, error) {
	if g.ids == nil {
		var offset uint64
		if g.state != nil {
			s, err := g.state.GetState(ctx, ClientIDOffsetKey)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("could not load client id offset: %w", err)
			}
			if err == nil {
				if offset, err = strconv.ParseUint(s, 10, 64); err != nil {
					return "", fmt.Errorf("invalid client id offset %q: %w", s, err)
				}
			}
		}
		ids, err := idgen.New(g.opts.ClientIDPrefix, g.seed, offset)
		if err != nil {
			return "", err
		}
		g.ids, g.reserved = ids, offset
	}
	if offset := g.ids.Offset(); offset >= g.reserved {
		next := offset + idReserve
		if g.state != nil {
			if err := g.state.SetState(ctx, ClientIDOffsetKey, strconv.FormatUint(next, 10)); err != nil {
				return "", fmt.Errorf("could not save client id offset: %w", err)
			}
		}
		g.reserved = next
	}
	return g.ids.Next(), nil
}

// place runs the placement function with retries. A transient failure may
// hide an order that was accepted by the exchange, so the order is looked up
// by its client id before it is placed again.
func (g *Guard) place(ctx context.Context, op, clientID string, placeFunc func() (*exchange.Order, error)) (*exchange.Order, error) {
	var order *exchange.Order
	attempt := 0
	err := g.retry(ctx, op, func() error {
		if attempt++; attempt > 1 {
			o, err := g.gw.GetOrderByClientID(ctx, g.symbol, clientID)
			if err == nil {
				slog.Info("found order placed by an earlier attempt", "client-order-id", clientID)
				order = o
				return nil
			}
			if !errors.Is(err, exchange.ErrOrderNotFound) {
				return err
			}
		}
		o, err := placeFunc()
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = clientID
	}
	return order, nil
}

// PlaceLimitMaker quantizes and validates the order and posts it as a passive
// order. Returns an error matching exchange.ErrWouldCrossAsTaker if the order
// would execute immediately; callers are expected to retry on a later tick.
func (g *Guard) PlaceLimitMaker(ctx context.Context, side string, qty, price decimal.Decimal) (*exchange.Order, error) {
	c, err := g.Constraints(ctx)
	if err != nil {
		return nil, err
	}
	q, p, err := Size(c, qty, price)
	if err != nil {
		return nil, err
	}
	clientID, err := g.nextClientID(ctx)
	if err != nil {
		return nil, err
	}
	order, err := g.place(ctx, "PlaceLimitMakerOrder", clientID, func() (*exchange.Order, error) {
		return g.gw.PlaceLimitMakerOrder(ctx, g.symbol, side, q, p, clientID)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("placed limit maker order", "side", side, "qty", q, "price", p, "client-order-id", clientID)
	return order, nil
}

// NewClientID reserves a client order id for a later PlaceMarket call.
func (g *Guard) NewClientID(ctx context.Context) (string, error) {
	return g.nextClientID(ctx)
}

// PlaceMarket quantizes the quantity and places a market order with the
// client id from NewClientID. Callers can save the client id before the call
// to find the order after a crash. Reference price is used to validate the
// minimum notional.
func (g *Guard) PlaceMarket(ctx context.Context, clientID, side string, qty, refPrice decimal.Decimal) (*exchange.Order, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client order id cannot be empty: %w", os.ErrInvalid)
	}
	c, err := g.Constraints(ctx)
	if err != nil {
		return nil, err
	}
	q, _, err := Size(c, qty, refPrice)
	if err != nil {
		return nil, err
	}
	order, err := g.place(ctx, "PlaceMarketOrder", clientID, func() (*exchange.Order, error) {
		return g.gw.PlaceMarketOrder(ctx, g.symbol, side, q, clientID)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("placed market order", "side", side, "qty", q, "client-order-id", clientID, "status", order.Status)
	return order, nil
}

// Order returns the order with the client id. Returns an error matching
// exchange.ErrOrderNotFound if the exchange has no such order.
func (g *Guard) Order(ctx context.Context, clientID string) (order *exchange.Order, err error) {
	err = g.retry(ctx, "GetOrderByClientID", func() (err error) {
		order, err = g.gw.GetOrderByClientID(ctx, g.symbol, clientID)
		return err
	})
	return order, err
}

func (g *Guard) Cancel(ctx context.Context, clientID string) error {
	return g.retry(ctx, "CancelOrderByClientID", func() error {
		return g.gw.CancelOrderByClientID(ctx, g.symbol, clientID)
	})
}

func (g *Guard) CancelAll(ctx context.Context) error {
	return g.retry(ctx, "CancelAllOpenOrders", func() error {
		return g.gw.CancelAllOpenOrders(ctx, g.symbol)
	})
}
