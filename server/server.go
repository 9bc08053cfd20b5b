// Copyright (c) 2023 BVK Chaitanya

// Package server wires the exchange gateway, the trader control loop and the
// operator notifications into a single service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bvk/spotbot/bandit"
	"github.com/bvk/spotbot/binance"
	"github.com/bvk/spotbot/config"
	"github.com/bvk/spotbot/ctxutil"
	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/guard"
	"github.com/bvk/spotbot/pushover"
	"github.com/bvk/spotbot/store"
	"github.com/bvk/spotbot/telegram"
	"github.com/bvk/spotbot/trader"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientIDSeedKey is the state key that holds the seed of the client order
// ids. Seed is created once per database.
const ClientIDSeedKey = "client-id-seed"

type Server struct {
	cg ctxutil.CloseGroup

	opts Options

	db  kv.Database
	st  *store.Store
	cfg *config.Config

	gateway exchange.Gateway

	// market is the binance client used by the gateway. It is nil when the
	// gateway is passed in the options.
	market *binance.Exchange

	guard  *guard.Guard
	bandit *bandit.Bandit
	trader *trader.Trader

	telegramClient *telegram.Client

	notifiers notifiers

	mu sync.Mutex

	alertFreezeDeadlineMap map[string]time.Time
}

// New creates the trading service on the database. Secrets can be nil in
// PAPER mode.
func New(ctx context.Context, db kv.Database, cfg *config.Config, secrets *config.Secrets, opts *Options) (_ *Server, status error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if secrets != nil {
		if err := secrets.Check(); err != nil {
			return nil, err
		}
	}

	s := &Server{
		opts:                   *opts,
		db:                     db,
		st:                     store.New(db),
		cfg:                    cfg,
		gateway:                opts.Gateway,
		alertFreezeDeadlineMap: make(map[string]time.Time),
	}
	defer func() {
		if status != nil {
			s.Close()
		}
	}()

	if s.gateway == nil {
		gw, market, err := newGateway(ctx, cfg, secrets)
		if err != nil {
			return nil, err
		}
		s.gateway, s.market = gw, market
	}

	seed, err := s.clientIDSeed(ctx)
	if err != nil {
		return nil, err
	}
	gopts := cfg.GuardOptions()
	s.guard = guard.New(s.gateway, cfg.Symbol, seed, s.st, gopts)

	b, err := bandit.New(s.st, cfg.BanditOptions(), opts.Rand)
	if err != nil {
		return nil, fmt.Errorf("could not create parameter bandit: %w", err)
	}
	s.bandit = b

	if secrets != nil && secrets.Telegram != nil {
		client, err := telegram.New(ctx, s.st, secrets.Telegram, opts.Telegram)
		if err != nil {
			return nil, fmt.Errorf("could not create telegram client: %w", err)
		}
		s.telegramClient = client
		s.notifiers = append(s.notifiers, client)
	}
	if secrets != nil && secrets.Pushover != nil {
		client, err := pushover.New(secrets.Pushover, opts.PushoverEndpoint)
		if err != nil {
			return nil, fmt.Errorf("could not create pushover client: %w", err)
		}
		s.notifiers = append(s.notifiers, client)
	}

	var notifier trader.Notifier
	if len(s.notifiers) > 0 {
		notifier = s.notifiers
	}
	t, err := trader.New(s.st, s.guard, s.bandit, notifier, cfg.TraderOptions())
	if err != nil {
		return nil, err
	}
	s.trader = t
	return s, nil
}

// Close stops the control loop and releases the exchange and notifier
// clients.
func (s *Server) Close() error {
	s.cg.Close()
	if s.telegramClient != nil {
		s.telegramClient.Close()
	}
	if s.market != nil {
		s.market.Close()
	}
	return nil
}

func (s *Server) Trader() *trader.Trader {
	return s.trader
}

func (s *Server) Store() *store.Store {
	return s.st
}

// Start validates the exchange account and starts the control loop in the
// background. Returns an error if the credentials are rejected.
func (s *Server) Start(ctx context.Context) error {
	if err := s.trader.Start(ctx); err != nil {
		s.SendMessage(ctx, time.Now(), "spotbot could not start trading %s: %v", s.cfg.Symbol, err)
		return err
	}
	if err := s.addTelegramCommands(ctx); err != nil {
		slog.Warn("could not add telegram commands (ignored)", "err", err)
	}

	s.cg.Go(func(ctx context.Context) {
		if err := s.trader.Run(ctx); err != nil && !errors.Is(err, os.ErrClosed) {
			slog.Info("control loop has stopped", "err", err)
		}
	})
	s.cg.Go(s.watchForLowBalance)

	s.SendMessage(ctx, time.Now(), "spotbot started trading %s in %s mode", s.cfg.Symbol, s.cfg.Mode)
	return nil
}

// HandlerMap returns the http handlers served by the daemon.
func (s *Server) HandlerMap() map[string]http.Handler {
	return map[string]http.Handler{
		"/status":  http.HandlerFunc(s.serveStatus),
		"/metrics": promhttp.Handler(),
		"/db/":     http.StripPrefix("/db", kvhttp.Handler(s.db)),
	}
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	status := s.trader.Status()
	if status == nil {
		http.Error(w, "no status is available yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Warn("could not encode status response", "err", err)
	}
}

func (s *Server) clientIDSeed(ctx context.Context) (seed string, err error) {
	err = s.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		v, err := tx.GetState(ctx, ClientIDSeedKey)
		if err == nil {
			seed = v
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		seed = uuid.New().String()
		return tx.SetState(ctx, ClientIDSeedKey, seed)
	})
	if err != nil {
		return "", fmt.Errorf("could not load client id seed: %w", err)
	}
	return seed, nil
}
