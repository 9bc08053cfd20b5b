// Copyright (c) 2025 BVK Chaitanya

// Package binance implements the exchange gateway for the Binance spot
// market.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bvk/spotbot/binance/internal"
	"github.com/bvk/spotbot/ctxutil"
	"github.com/bvk/spotbot/exchange"
	"github.com/shopspring/decimal"
)

// DefaultFeeRate is reported when the account commission endpoint is not
// available, which is the case with the spot testnet.
var DefaultFeeRate = decimal.NewFromFloat(0.001)

type Exchange struct {
	cg ctxutil.CloseGroup

	opts Options

	client *internal.Client

	mu sync.Mutex

	// symbolMap caches the exchange info of the symbols used so far.
	symbolMap map[string]*exchange.SymbolConstraints

	// feeMap caches the fee rates to estimate commissions for orders that
	// don't report their fills.
	feeMap map[string]*exchange.FeeRates

	// tickerMap holds the streamed prices per symbol.
	tickerMap map[string]*ticker
}

var _ exchange.Gateway = &Exchange{}

// New creates a gateway for the account with the given credentials. Nil
// credentials create a gateway that can only use the market data endpoints.
func New(creds *Credentials, opts *Options) (*Exchange, error) {
	var key, secret string
	if creds != nil {
		if err := creds.Check(); err != nil {
			return nil, err
		}
		key, secret = creds.Key, creds.Secret
	}
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	client, err := internal.New(key, secret, opts.internal())
	if err != nil {
		return nil, err
	}
	ex := &Exchange{
		opts:      *opts,
		client:    client,
		symbolMap: make(map[string]*exchange.SymbolConstraints),
		feeMap:    make(map[string]*exchange.FeeRates),
		tickerMap: make(map[string]*ticker),
	}
	return ex, nil
}

// Close stops the price streams.
func (ex *Exchange) Close() error {
	ex.cg.Close()
	return nil
}

func (ex *Exchange) ExchangeName() string {
	return "binance"
}

func (ex *Exchange) ValidateCredentials(ctx context.Context) error {
	const op = "ValidateCredentials"
	account, err := ex.client.GetAccount(ctx)
	if err != nil {
		return classify(op, err)
	}
	if !account.CanTrade {
		return exchange.NewError(exchange.Permanent, op, 0, fmt.Errorf("account is not permitted to trade"))
	}
	return nil
}

func (ex *Exchange) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if ex.opts.StreamPrices {
		if price, ok := ex.streamedPrice(symbol); ok {
			return price, nil
		}
	}
	resp, err := ex.client.GetTickerPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, classify("GetPrice", err)
	}
	return resp.Price, nil
}

func (ex *Exchange) GetSymbolConstraints(ctx context.Context, symbol string) (*exchange.SymbolConstraints, error) {
	ex.mu.Lock()
	c, ok := ex.symbolMap[symbol]
	ex.mu.Unlock()
	if ok {
		return c, nil
	}

	const op = "GetSymbolConstraints"
	info, err := ex.client.GetExchangeInfo(ctx, symbol)
	if err != nil {
		return nil, classify(op, err)
	}
	var sinfo *internal.SymbolInfo
	for i := range info.Symbols {
		if info.Symbols[i].Symbol == symbol {
			sinfo = &info.Symbols[i]
			break
		}
	}
	if sinfo == nil {
		return nil, exchange.NewError(exchange.Permanent, op, 0, fmt.Errorf("symbol %q not found: %w", symbol, os.ErrNotExist))
	}

	c = &exchange.SymbolConstraints{
		Symbol:     sinfo.Symbol,
		BaseAsset:  sinfo.BaseAsset,
		QuoteAsset: sinfo.QuoteAsset,
	}
	if f := sinfo.Filter("LOT_SIZE"); f != nil {
		c.MinQty, c.StepSize = f.MinQty, f.StepSize
	}
	if f := sinfo.Filter("PRICE_FILTER"); f != nil {
		c.TickSize = f.TickSize
	}
	// Newer symbols carry a NOTIONAL filter in place of the MIN_NOTIONAL.
	if f := sinfo.Filter("MIN_NOTIONAL"); f != nil {
		c.MinNotional = f.MinNotional
	} else if f := sinfo.Filter("NOTIONAL"); f != nil {
		c.MinNotional = f.MinNotional
	}

	ex.mu.Lock()
	ex.symbolMap[symbol] = c
	ex.mu.Unlock()
	return c, nil
}

func (ex *Exchange) GetFeeRates(ctx context.Context, symbol string) (*exchange.FeeRates, error) {
	ex.mu.Lock()
	fees, ok := ex.feeMap[symbol]
	ex.mu.Unlock()
	if ok {
		return fees, nil
	}

	resp, err := ex.client.GetCommission(ctx, symbol)
	if err != nil {
		cerr := classify("GetFeeRates", err)
		if exchange.IsTransient(cerr) {
			return nil, cerr
		}
		slog.Warn("could not fetch account commission; using default fee rates", "symbol", symbol, "rate", DefaultFeeRate, "err", err)
		fees = &exchange.FeeRates{Maker: DefaultFeeRate, Taker: DefaultFeeRate}
	} else {
		fees = &exchange.FeeRates{
			Maker: resp.StandardCommission.Maker,
			Taker: resp.StandardCommission.Taker,
		}
	}

	ex.mu.Lock()
	ex.feeMap[symbol] = fees
	ex.mu.Unlock()
	return fees, nil
}

func (ex *Exchange) GetFreeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	account, err := ex.client.GetAccount(ctx)
	if err != nil {
		return decimal.Zero, classify("GetFreeBalance", err)
	}
	for _, b := range account.Balances {
		if b.Asset == asset {
			return b.Free, nil
		}
	}
	return decimal.Zero, nil
}

func (ex *Exchange) PlaceLimitMakerOrder(ctx context.Context, symbol, side string, qty, price decimal.Decimal, clientID string) (*exchange.Order, error) {
	const op = "PlaceLimitMakerOrder"
	req := &internal.NewOrderRequest{
		Symbol:        symbol,
		Side:          side,
		Type:          "LIMIT_MAKER",
		Quantity:      qty,
		Price:         price,
		ClientOrderID: clientID,
	}
	resp, err := ex.client.NewOrder(ctx, req)
	if err != nil {
		return nil, classify(op, err)
	}
	return ex.toOrder(ctx, resp)
}

func (ex *Exchange) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal, clientID string) (*exchange.Order, error) {
	const op = "PlaceMarketOrder"
	req := &internal.NewOrderRequest{
		Symbol:        symbol,
		Side:          side,
		Type:          "MARKET",
		Quantity:      qty,
		ClientOrderID: clientID,
	}
	resp, err := ex.client.NewOrder(ctx, req)
	if err != nil {
		return nil, classify(op, err)
	}
	return ex.toOrder(ctx, resp)
}

func (ex *Exchange) GetOrderByClientID(ctx context.Context, symbol, clientID string) (*exchange.Order, error) {
	const op = "GetOrderByClientID"
	resp, err := ex.client.GetOrder(ctx, symbol, clientID)
	if err != nil {
		return nil, classify(op, err)
	}
	return ex.toOrder(ctx, resp)
}

func (ex *Exchange) CancelOrderByClientID(ctx context.Context, symbol, clientID string) error {
	if _, err := ex.client.CancelOrder(ctx, symbol, clientID); err != nil {
		return classify("CancelOrderByClientID", err)
	}
	return nil
}

func (ex *Exchange) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	orders, err := ex.client.CancelOpenOrders(ctx, symbol)
	if err != nil {
		cerr := classify("CancelAllOpenOrders", err)
		if exchange.KindOf(cerr) == exchange.NotFound {
			// There were no open orders.
			return nil
		}
		return cerr
	}
	slog.Info("canceled all open orders", "symbol", symbol, "count", len(orders))
	return nil
}

// toOrder converts the exchange order into the gateway order. Commission is
// reported in the quote asset; commission charged in the base asset reduces
// the filled size instead, so that the filled size is what the account
// actually holds.
func (ex *Exchange) toOrder(ctx context.Context, v *internal.Order) (*exchange.Order, error) {
	c, err := ex.GetSymbolConstraints(ctx, v.Symbol)
	if err != nil {
		return nil, err
	}

	order := &exchange.Order{
		Symbol:        v.Symbol,
		OrderID:       strconv.FormatInt(v.OrderID, 10),
		ClientOrderID: v.ClientOrderID,
		Side:          v.Side,
		Type:          v.Type,
		Price:         v.Price,
		Size:          v.OrigQty,
		FilledSize:    v.ExecutedQty,
		FilledValue:   v.CummulativeQuoteQty,
		Status:        exchange.ParseOrderStatus(v.Status),
		CreateTime:    v.CreateTime(),
	}
	if v.UpdateTime != 0 {
		order.UpdateTime = time.UnixMilli(v.UpdateTime)
	}

	if len(v.Fills) > 0 {
		for _, f := range v.Fills {
			switch f.CommissionAsset {
			case c.QuoteAsset:
				order.Fee = order.Fee.Add(f.Commission)
			case c.BaseAsset:
				order.FilledSize = order.FilledSize.Sub(f.Commission)
			}
		}
		return order, nil
	}

	if order.FilledValue.IsPositive() {
		fees, err := ex.GetFeeRates(ctx, v.Symbol)
		if err != nil {
			return nil, err
		}
		rate := fees.Taker
		if v.Type == "LIMIT_MAKER" {
			rate = fees.Maker
		}
		order.Fee = order.FilledValue.Mul(rate)
	}
	return order, nil
}
