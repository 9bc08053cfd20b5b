// Copyright (c) 2025 BVK Chaitanya

package binance

import (
	"time"

	"github.com/bvk/spotbot/binance/internal"
)

type Options struct {
	// Testnet selects the spot testnet endpoints unless the URLs are set
	// explicitly.
	Testnet bool

	RestURL      string
	WebsocketURL string

	// Timeout to use for the HTTP requests.
	HttpClientTimeout time.Duration

	// RequestsPerSecond limits the rate of REST requests.
	RequestsPerSecond float64

	// StreamPrices enables the miniTicker websocket stream for prices. REST
	// ticker is used when the streamed price is older than MaxPriceAge.
	StreamPrices bool
	MaxPriceAge  time.Duration
}

func (v *Options) setDefaults() {
	if v.Testnet {
		if v.RestURL == "" {
			v.RestURL = internal.TestnetRestURL.String()
		}
		if v.WebsocketURL == "" {
			v.WebsocketURL = internal.TestnetWebsocketURL.String()
		}
	}
	if v.MaxPriceAge == 0 {
		v.MaxPriceAge = 30 * time.Second
	}
}

func (v *Options) internal() *internal.Options {
	return &internal.Options{
		RestURL:           v.RestURL,
		WebsocketURL:      v.WebsocketURL,
		HttpClientTimeout: v.HttpClientTimeout,
		RequestsPerSecond: v.RequestsPerSecond,
	}
}
