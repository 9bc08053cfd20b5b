// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

var (
	RestURL = url.URL{
		Scheme: "https",
		Host:   "api.binance.com",
	}

	WebsocketURL = url.URL{
		Scheme: "wss",
		Host:   "stream.binance.com:9443",
		Path:   "/ws",
	}

	TestnetRestURL = url.URL{
		Scheme: "https",
		Host:   "testnet.binance.vision",
	}

	TestnetWebsocketURL = url.URL{
		Scheme: "wss",
		Host:   "stream.testnet.binance.vision",
		Path:   "/ws",
	}
)

type Options struct {
	// URLs for the REST and WebSocket service endpoints.
	RestURL      string
	WebsocketURL string

	// Timeout to use for the HTTP requests.
	HttpClientTimeout time.Duration

	// RecvWindow is the validity window of the signed requests.
	RecvWindow time.Duration

	// RequestsPerSecond limits the rate of REST requests.
	RequestsPerSecond float64
}

func (v *Options) setDefaults() {
	if v.RestURL == "" {
		v.RestURL = RestURL.String()
	}
	if v.WebsocketURL == "" {
		v.WebsocketURL = WebsocketURL.String()
	}
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 10 * time.Second
	}
	if v.RecvWindow == 0 {
		v.RecvWindow = 5 * time.Second
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 10
	}
}

// Check validates the options.
func (v *Options) Check() error {
	if _, err := url.Parse(v.RestURL); err != nil {
		return fmt.Errorf("invalid rest url %q: %w", v.RestURL, err)
	}
	if v.RecvWindow > time.Minute {
		return fmt.Errorf("recv window %s cannot exceed a minute: %w", v.RecvWindow, os.ErrInvalid)
	}
	if v.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}
