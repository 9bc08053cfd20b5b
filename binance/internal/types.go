// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Error is the error response body of the REST api, annotated with the http
// status code.
type Error struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`

	// RetryAfter is the back off duration requested with 429 or 418 status
	// codes.
	RetryAfter time.Duration `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("http status %d: binance error %d: %s", e.Status, e.Code, e.Msg)
}

type Filter struct {
	FilterType string `json:"filterType"`

	// PRICE_FILTER
	MinPrice decimal.Decimal `json:"minPrice"`
	TickSize decimal.Decimal `json:"tickSize"`

	// LOT_SIZE
	MinQty   decimal.Decimal `json:"minQty"`
	StepSize decimal.Decimal `json:"stepSize"`

	// MIN_NOTIONAL and NOTIONAL
	MinNotional decimal.Decimal `json:"minNotional"`
}

type SymbolInfo struct {
	Symbol     string   `json:"symbol"`
	Status     string   `json:"status"`
	BaseAsset  string   `json:"baseAsset"`
	QuoteAsset string   `json:"quoteAsset"`
	Filters    []Filter `json:"filters"`
}

// Filter returns the first filter with the given type or nil.
func (v *SymbolInfo) Filter(filterType string) *Filter {
	for i := range v.Filters {
		if v.Filters[i].FilterType == filterType {
			return &v.Filters[i]
		}
	}
	return nil
}

type ExchangeInfo struct {
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

type CommissionRates struct {
	Maker decimal.Decimal `json:"maker"`
	Taker decimal.Decimal `json:"taker"`
}

type Commission struct {
	Symbol             string          `json:"symbol"`
	StandardCommission CommissionRates `json:"standardCommission"`
}

type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

type Account struct {
	CanTrade bool      `json:"canTrade"`
	Balances []Balance `json:"balances"`
}

type TickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

type NewOrderRequest struct {
	Symbol        string
	Side          string
	Type          string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	ClientOrderID string
}

type Fill struct {
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
}

type Order struct {
	Symbol              string          `json:"symbol"`
	OrderID             int64           `json:"orderId"`
	ClientOrderID       string          `json:"clientOrderId"`
	Price               decimal.Decimal `json:"price"`
	OrigQty             decimal.Decimal `json:"origQty"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Status              string          `json:"status"`
	Type                string          `json:"type"`
	Side                string          `json:"side"`
	Fills               []Fill          `json:"fills"`

	TransactTime int64 `json:"transactTime"`
	Time         int64 `json:"time"`
	UpdateTime   int64 `json:"updateTime"`
}

// CreateTime returns the order creation time from the transaction or the
// order time fields, whichever is set.
func (v *Order) CreateTime() time.Time {
	if v.TransactTime != 0 {
		return time.UnixMilli(v.TransactTime)
	}
	if v.Time != 0 {
		return time.UnixMilli(v.Time)
	}
	return time.Time{}
}

// MiniTicker is the 24hrMiniTicker stream event.
type MiniTicker struct {
	EventType  string          `json:"e"`
	EventTime  int64           `json:"E"`
	Symbol     string          `json:"s"`
	ClosePrice decimal.Decimal `json:"c"`
}
