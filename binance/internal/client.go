// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bvk/spotbot/ctxutil"
	"golang.org/x/time/rate"
)

type Client struct {
	opts Options

	client http.Client

	restURL *url.URL

	key, secret string

	limiter *rate.Limiter

	// backoffUntil holds the unix nano time before which no requests are
	// sent after the exchange responds with 429 or 418 status codes.
	backoffUntil atomic.Int64

	now func() time.Time
}

// New returns a new client instance. Key and secret can be empty for clients
// that only use the public endpoints.
func New(key, secret string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	restURL, err := url.Parse(opts.RestURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		opts:    *opts,
		restURL: restURL,
		key:     key,
		secret:  secret,
		client: http.Client{
			Timeout: opts.HttpClientTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		now:     time.Now,
	}
	return c, nil
}

// WebsocketURL returns the configured stream endpoint.
func (c *Client) WebsocketURL() string {
	return c.opts.WebsocketURL
}

func (c *Client) GetExchangeInfo(ctx context.Context, symbol string) (*ExchangeInfo, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	resp := new(ExchangeInfo)
	if err := c.call(ctx, http.MethodGet, "/api/v3/exchangeInfo", values, false, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (*TickerPrice, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	resp := new(TickerPrice)
	if err := c.call(ctx, http.MethodGet, "/api/v3/ticker/price", values, false, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetCommission(ctx context.Context, symbol string) (*Commission, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	resp := new(Commission)
	if err := c.call(ctx, http.MethodGet, "/api/v3/account/commission", values, true, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	values := make(url.Values)
	values.Set("omitZeroBalances", "true")
	resp := new(Account)
	if err := c.call(ctx, http.MethodGet, "/api/v3/account", values, true, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) NewOrder(ctx context.Context, req *NewOrderRequest) (*Order, error) {
	values := make(url.Values)
	values.Set("symbol", req.Symbol)
	values.Set("side", req.Side)
	values.Set("type", req.Type)
	values.Set("quantity", req.Quantity.String())
	if req.Type == "LIMIT_MAKER" || req.Type == "LIMIT" {
		values.Set("price", req.Price.String())
	}
	if req.ClientOrderID != "" {
		values.Set("newClientOrderId", req.ClientOrderID)
	}
	values.Set("newOrderRespType", "FULL")
	resp := new(Order)
	if err := c.call(ctx, http.MethodPost, "/api/v3/order", values, true, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetOrder(ctx context.Context, symbol, clientOrderID string) (*Order, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	values.Set("origClientOrderId", clientOrderID)
	resp := new(Order)
	if err := c.call(ctx, http.MethodGet, "/api/v3/order", values, true, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, clientOrderID string) (*Order, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	values.Set("origClientOrderId", clientOrderID)
	resp := new(Order)
	if err := c.call(ctx, http.MethodDelete, "/api/v3/order", values, true, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CancelOpenOrders(ctx context.Context, symbol string) ([]*Order, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	var resp []*Order
	if err := c.call(ctx, http.MethodDelete, "/api/v3/openOrders", values, true, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// sign adds the timestamp, recvWindow and the hex encoded HMAC-SHA256
// signature of the encoded parameters.
func (c *Client) sign(values url.Values) string {
	values.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	values.Set("recvWindow", strconv.FormatInt(c.opts.RecvWindow.Milliseconds(), 10))
	query := values.Encode()
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(query))
	return query + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

// call performs a single request. Requests are delayed while a back off
// requested by the exchange is in effect; failed requests are not retried.
func (c *Client) call(ctx context.Context, method, path string, values url.Values, signed bool, response any) error {
	if until := c.backoffUntil.Load(); until != 0 {
		if d := time.Until(time.Unix(0, until)); d > 0 {
			ctxutil.Sleep(ctx, d)
			if err := context.Cause(ctx); err != nil {
				return err
			}
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	query := values.Encode()
	if signed {
		query = c.sign(values)
	}

	addrURL := c.restURL.JoinPath(path)
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(query)
	} else {
		addrURL.RawQuery = query
	}

	req, err := http.NewRequestWithContext(ctx, method, addrURL.String(), body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.key != "" {
		req.Header.Set("X-MBX-APIKEY", c.key)
	}

	s := time.Now()
	resp, err := c.client.Do(req)
	if d := time.Since(s); d > c.opts.HttpClientTimeout {
		slog.Warn(fmt.Sprintf("%s request took %s which is more than the http client timeout %s", method, d, c.opts.HttpClientTimeout))
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not perform http request", "method", method, "path", path, "err", err)
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &Error{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil {
			apiErr.Msg = strings.TrimSpace(string(data))
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
			apiErr.RetryAfter = time.Second
			if x := resp.Header.Get("Retry-After"); len(x) != 0 {
				if v, err := strconv.Atoi(x); err == nil && v > 0 {
					apiErr.RetryAfter = time.Duration(v) * time.Second
				}
			}
			c.backoffUntil.Store(time.Now().Add(apiErr.RetryAfter).UnixNano())
			slog.Warn("binance asked to back off", "path", path, "retry-after", apiErr.RetryAfter, "err", apiErr)
		}
		return apiErr
	}

	if err := json.Unmarshal(data, response); err != nil {
		slog.Error("could not decode response to json", "path", path, "err", err)
		return err
	}
	return nil
}
