// Copyright (c) 2025 BVK Chaitanya

// Package paper implements an in-memory exchange gateway for paper trading
// and tests. Market orders fill immediately at the current price; limit maker
// orders rest until the price crosses them.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/bvk/spotbot/exchange"
	"github.com/shopspring/decimal"
)

type Gateway struct {
	mu sync.Mutex

	constraints exchange.SymbolConstraints
	fees        exchange.FeeRates

	price decimal.Decimal

	free   map[string]decimal.Decimal
	locked map[string]decimal.Decimal

	lastOrderID int64
	orders      map[string]*exchange.Order
	openIDs     []string

	failures map[string][]error
	calls    map[string]int

	source PriceSource
}

// PriceSource provides market prices for paper trading against a live
// market.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

var _ exchange.Gateway = &Gateway{}

// New creates a paper gateway for the trading pair described by the
// constraints.
func New(constraints *exchange.SymbolConstraints, fees *exchange.FeeRates, price decimal.Decimal) *Gateway {
	return &Gateway{
		constraints: *constraints,
		fees:        *fees,
		price:       price,
		free:        make(map[string]decimal.Decimal),
		locked:      make(map[string]decimal.Decimal),
		orders:      make(map[string]*exchange.Order),
		failures:    make(map[string][]error),
		calls:       make(map[string]int),
	}
}

func (g *Gateway) ExchangeName() string {
	return "paper"
}

// SetBalance sets the free balance of an asset.
func (g *Gateway) SetBalance(asset string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.free[asset] = amount
}

// SetFeeRates updates the fee rates applied to later fills.
func (g *Gateway) SetFeeRates(fees *exchange.FeeRates) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fees = *fees
}

// SetPrice updates the current price and fills the resting orders crossed by
// the new price.
func (g *Gateway) SetPrice(price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.price = price
	var open []string
	for _, cid := range g.openIDs {
		order := g.orders[cid]
		crossed := (order.Side == exchange.BUY && price.LessThanOrEqual(order.Price)) ||
			(order.Side == exchange.SELL && price.GreaterThanOrEqual(order.Price))
		if !crossed {
			open = append(open, cid)
			continue
		}
		g.unlock(order)
		g.fill(order, order.Price, g.fees.Maker)
		slog.Debug("paper order is filled", "client-order-id", cid, "side", order.Side, "price", order.Price)
	}
	g.openIDs = open
}

// FailNext makes the next call of the named operation fail with the error.
// Multiple errors for the same operation are returned in order.
func (g *Gateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], err)
}

// Calls returns the number of times the named operation was invoked.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// CancelOrder cancels a resting order as if the exchange did it.
func (g *Gateway) CancelOrder(clientID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancel(clientID)
}

// OpenOrders returns the client ids of the resting orders.
func (g *Gateway) OpenOrders() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.openIDs...)
}

func (g *Gateway) enter(op string) error {
	g.calls[op]++
	if errs := g.failures[op]; len(errs) > 0 {
		g.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (g *Gateway) checkSymbol(op, symbol string) error {
	if symbol != g.constraints.Symbol {
		return exchange.NewError(exchange.Permanent, op, 0, fmt.Errorf("unknown symbol %q: %w", symbol, os.ErrNotExist))
	}
	return nil
}

func (g *Gateway) ValidateCredentials(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enter("ValidateCredentials")
}

// SetPriceSource makes GetPrice fetch prices from the source. Every fetched
// price is applied as with SetPrice.
func (g *Gateway) SetPriceSource(src PriceSource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.source = src
}

func (g *Gateway) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	g.mu.Lock()
	if err := g.enter("GetPrice"); err != nil {
		g.mu.Unlock()
		return decimal.Zero, err
	}
	if err := g.checkSymbol("GetPrice", symbol); err != nil {
		g.mu.Unlock()
		return decimal.Zero, err
	}
	price, src := g.price, g.source
	g.mu.Unlock()

	if src == nil {
		return price, nil
	}
	price, err := src.GetPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	g.SetPrice(price)
	return price, nil
}

func (g *Gateway) GetSymbolConstraints(ctx context.Context, symbol string) (*exchange.SymbolConstraints, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("GetSymbolConstraints"); err != nil {
		return nil, err
	}
	if err := g.checkSymbol("GetSymbolConstraints", symbol); err != nil {
		return nil, err
	}
	c := g.constraints
	return &c, nil
}

func (g *Gateway) GetFeeRates(ctx context.Context, symbol string) (*exchange.FeeRates, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("GetFeeRates"); err != nil {
		return nil, err
	}
	f := g.fees
	return &f, nil
}

func (g *Gateway) GetFreeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("GetFreeBalance"); err != nil {
		return decimal.Zero, err
	}
	return g.free[asset], nil
}

func (g *Gateway) newOrder(symbol, side, typ string, qty, price decimal.Decimal, clientID string) (*exchange.Order, error) {
	if side != exchange.BUY && side != exchange.SELL {
		return nil, exchange.NewError(exchange.Permanent, "PlaceOrder", 0, fmt.Errorf("invalid side %q: %w", side, os.ErrInvalid))
	}
	if _, ok := g.orders[clientID]; ok {
		return nil, exchange.NewError(exchange.Permanent, "PlaceOrder", 0, fmt.Errorf("duplicate client order id %q: %w", clientID, os.ErrExist))
	}
	if qty.LessThan(g.constraints.MinQty) || qty.Mul(price).LessThan(g.constraints.MinNotional) {
		return nil, exchange.NewError(exchange.Permanent, "PlaceOrder", 0, fmt.Errorf("order size is below the filters: %w", os.ErrInvalid))
	}
	if !qty.Mod(g.constraints.StepSize).IsZero() {
		return nil, exchange.NewError(exchange.Permanent, "PlaceOrder", 0, fmt.Errorf("quantity %s is not a multiple of step size: %w", qty, os.ErrInvalid))
	}
	g.lastOrderID++
	now := time.Now()
	order := &exchange.Order{
		Symbol:        symbol,
		OrderID:       strconv.FormatInt(g.lastOrderID, 10),
		ClientOrderID: clientID,
		Side:          side,
		Type:          typ,
		Price:         price,
		Size:          qty,
		Status:        exchange.NEW,
		CreateTime:    now,
		UpdateTime:    now,
	}
	return order, nil
}

// cost returns the asset and amount that must be available to place the
// order.
func (g *Gateway) cost(order *exchange.Order, feeRate decimal.Decimal) (string, decimal.Decimal) {
	if order.Side == exchange.SELL {
		return g.constraints.BaseAsset, order.Size
	}
	value := order.Size.Mul(order.Price)
	return g.constraints.QuoteAsset, value.Add(value.Mul(feeRate))
}

func (g *Gateway) PlaceLimitMakerOrder(ctx context.Context, symbol, side string, qty, price decimal.Decimal, clientID string) (*exchange.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	const op = "PlaceLimitMakerOrder"
	if err := g.enter(op); err != nil {
		return nil, err
	}
	if err := g.checkSymbol(op, symbol); err != nil {
		return nil, err
	}
	if !price.Mod(g.constraints.TickSize).IsZero() {
		return nil, exchange.NewError(exchange.Permanent, op, 0, fmt.Errorf("price %s is not a multiple of tick size: %w", price, os.ErrInvalid))
	}
	if (side == exchange.BUY && price.GreaterThanOrEqual(g.price)) || (side == exchange.SELL && price.LessThanOrEqual(g.price)) {
		return nil, exchange.NewError(exchange.WouldCross, op, 0, exchange.ErrWouldCrossAsTaker)
	}
	order, err := g.newOrder(symbol, side, "LIMIT_MAKER", qty, price, clientID)
	if err != nil {
		return nil, err
	}
	asset, amount := g.cost(order, g.fees.Maker)
	if g.free[asset].LessThan(amount) {
		return nil, exchange.NewError(exchange.Permanent, op, 0, exchange.ErrNoFund)
	}
	g.free[asset] = g.free[asset].Sub(amount)
	g.locked[clientID] = amount

	g.orders[clientID] = order
	g.openIDs = append(g.openIDs, clientID)
	v := *order
	return &v, nil
}

func (g *Gateway) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal, clientID string) (*exchange.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	const op = "PlaceMarketOrder"
	if err := g.enter(op); err != nil {
		return nil, err
	}
	if err := g.checkSymbol(op, symbol); err != nil {
		return nil, err
	}
	order, err := g.newOrder(symbol, side, "MARKET", qty, g.price, clientID)
	if err != nil {
		return nil, err
	}
	asset, amount := g.cost(order, g.fees.Taker)
	if g.free[asset].LessThan(amount) {
		return nil, exchange.NewError(exchange.Permanent, op, 0, exchange.ErrNoFund)
	}
	g.orders[clientID] = order
	g.fill(order, g.price, g.fees.Taker)
	v := *order
	return &v, nil
}

// fill executes the unfilled part of the order at the price. Fees are
// charged in the quote asset.
func (g *Gateway) fill(order *exchange.Order, price, feeRate decimal.Decimal) {
	base, quote := g.constraints.BaseAsset, g.constraints.QuoteAsset
	qty := order.Size.Sub(order.FilledSize)
	value := qty.Mul(price)
	fee := value.Mul(feeRate)
	if order.Side == exchange.BUY {
		g.free[quote] = g.free[quote].Sub(value).Sub(fee)
		g.free[base] = g.free[base].Add(qty)
	} else {
		g.free[base] = g.free[base].Sub(qty)
		g.free[quote] = g.free[quote].Add(value).Sub(fee)
	}
	order.FilledSize = order.Size
	order.FilledValue = order.FilledValue.Add(value)
	order.Fee = order.Fee.Add(fee)
	order.Status = exchange.FILLED
	order.UpdateTime = time.Now()
}

// FillPartial executes part of a resting order at its limit price as if a
// smaller counter order matched it. Returns false if the order is not open or
// the quantity doesn't leave a remainder.
func (g *Gateway) FillPartial(clientID string, qty decimal.Decimal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[clientID]
	if !ok || !slices.Contains(g.openIDs, clientID) {
		return false
	}
	if !qty.IsPositive() || !qty.LessThan(order.Size.Sub(order.FilledSize)) {
		return false
	}
	base, quote := g.constraints.BaseAsset, g.constraints.QuoteAsset
	value := qty.Mul(order.Price)
	fee := value.Mul(g.fees.Maker)
	if order.Side == exchange.BUY {
		g.locked[clientID] = g.locked[clientID].Sub(value).Sub(fee)
		g.free[base] = g.free[base].Add(qty)
	} else {
		g.locked[clientID] = g.locked[clientID].Sub(qty)
		g.free[quote] = g.free[quote].Add(value).Sub(fee)
	}
	order.FilledSize = order.FilledSize.Add(qty)
	order.FilledValue = order.FilledValue.Add(value)
	order.Fee = order.Fee.Add(fee)
	order.Status = exchange.PARTIALLY_FILLED
	order.UpdateTime = time.Now()
	return true
}

func (g *Gateway) unlock(order *exchange.Order) {
	amount, ok := g.locked[order.ClientOrderID]
	if !ok {
		return
	}
	asset, _ := g.cost(order, decimal.Zero)
	g.free[asset] = g.free[asset].Add(amount)
	delete(g.locked, order.ClientOrderID)
}

func (g *Gateway) cancel(clientID string) bool {
	for i, cid := range g.openIDs {
		if cid != clientID {
			continue
		}
		order := g.orders[cid]
		g.unlock(order)
		order.Status = exchange.CANCELED
		order.UpdateTime = time.Now()
		g.openIDs = append(g.openIDs[:i], g.openIDs[i+1:]...)
		return true
	}
	return false
}

func (g *Gateway) GetOrderByClientID(ctx context.Context, symbol, clientID string) (*exchange.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	const op = "GetOrderByClientID"
	if err := g.enter(op); err != nil {
		return nil, err
	}
	order, ok := g.orders[clientID]
	if !ok || order.Symbol != symbol {
		return nil, exchange.NewError(exchange.NotFound, op, 0, exchange.ErrOrderNotFound)
	}
	v := *order
	return &v, nil
}

func (g *Gateway) CancelOrderByClientID(ctx context.Context, symbol, clientID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	const op = "CancelOrderByClientID"
	if err := g.enter(op); err != nil {
		return err
	}
	if _, ok := g.orders[clientID]; !ok {
		return exchange.NewError(exchange.NotFound, op, 0, exchange.ErrOrderNotFound)
	}
	if !g.cancel(clientID) {
		return exchange.NewError(exchange.Permanent, op, 0, fmt.Errorf("order %q is already done", clientID))
	}
	return nil
}

func (g *Gateway) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("CancelAllOpenOrders"); err != nil {
		return err
	}
	for len(g.openIDs) > 0 {
		g.cancel(g.openIDs[0])
	}
	return nil
}
