// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WatchMiniTicker opens a miniTicker stream for the symbol and invokes the
// callback for every event. Returns when the connection fails or the context
// is canceled.
func (c *Client) WatchMiniTicker(ctx context.Context, symbol string, fn func(*MiniTicker)) error {
	streamURL, err := url.Parse(c.opts.WebsocketURL)
	if err != nil {
		return err
	}
	streamURL = streamURL.JoinPath(strings.ToLower(symbol) + "@miniTicker")

	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.HttpClientTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, streamURL.String(), nil)
	if err != nil {
		slog.Error("could not dial to websocket stream", "url", streamURL, "err", err)
		return err
	}
	defer conn.Close()

	for ctx.Err() == nil {
		msg, err := readMessage(ctx, conn)
		if err != nil {
			return err
		}
		event := new(MiniTicker)
		if err := json.Unmarshal(msg, event); err != nil {
			slog.Warn("could not unmarshal websocket message (ignored)", "msg", string(msg), "err", err)
			continue
		}
		if event.EventType != "24hrMiniTicker" {
			continue
		}
		fn(event)
	}
	return context.Cause(ctx)
}

func readMessage(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	stopc := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
		close(stopc)
	})

	_, msg, err := conn.ReadMessage()
	if !stop() {
		// The AfterFunc was started. Wait for it to complete, and reset the Conn's
		// deadline.
		<-stopc
		conn.SetReadDeadline(time.Time{})
		return nil, context.Cause(ctx)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}
