// Copyright (c) 2025 BVK Chaitanya

package binance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/bvk/spotbot/binance/internal"
	"github.com/bvk/spotbot/exchange"
)

// Binance error codes that need special handling.
const (
	codeDisconnected   = -1001
	codeTooManyRequest = -1003
	codeBadTimestamp   = -1021
	codeNewOrderReject = -2010
	codeCancelReject   = -2011
	codeNoSuchOrder    = -2013
)

// classify wraps the error with the gateway error kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *exchange.Error
	if errors.As(err, &gerr) {
		return err
	}
	kind := kindOf(op, err)
	if kind == exchange.Permanent && isNoFund(err) {
		err = fmt.Errorf("%w: %w", exchange.ErrNoFund, err)
	}
	return exchange.NewError(kind, op, codeOf(err), err)
}

func isNoFund(err error) bool {
	var apiErr *internal.Error
	if !errors.As(err, &apiErr) || apiErr.Code != codeNewOrderReject {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Msg), "insufficient balance")
}

func codeOf(err error) int {
	var apiErr *internal.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func kindOf(op string, err error) exchange.Kind {
	if errors.Is(err, context.Canceled) {
		return exchange.Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return exchange.Transient
	}

	var apiErr *internal.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeDisconnected, codeTooManyRequest, codeBadTimestamp:
			return exchange.Transient
		case codeNoSuchOrder:
			return exchange.NotFound
		case codeCancelReject:
			if strings.Contains(strings.ToLower(apiErr.Msg), "unknown order") {
				return exchange.NotFound
			}
			return exchange.Permanent
		case codeNewOrderReject:
			if op == "PlaceLimitMakerOrder" && strings.Contains(strings.ToLower(apiErr.Msg), "immediately match") {
				return exchange.WouldCross
			}
			return exchange.Permanent
		}
		switch {
		case apiErr.Status == http.StatusTooManyRequests, apiErr.Status == http.StatusTeapot:
			return exchange.Transient
		case apiErr.Status >= 500:
			return exchange.Transient
		}
		return exchange.Permanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return exchange.Transient
	}
	return exchange.Permanent
}
