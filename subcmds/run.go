// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bvk/spotbot/ctxutil"
	"github.com/bvk/spotbot/daemonize"
	"github.com/bvk/spotbot/httputil"
	"github.com/bvk/spotbot/server"
	"github.com/bvk/spotbot/subcmds/cmdutil"
	"github.com/nightlyone/lockfile"
	"github.com/visvasity/cli"
	"github.com/visvasity/sglog"
)

type Run struct {
	cmdutil.ServerFlags
	cmdutil.DataFlags

	background bool

	restart         bool
	shutdownTimeout time.Duration

	noPprof   bool
	logStderr bool
}

func (c *Run) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	c.ServerFlags.SetFlags(fset)
	c.DataFlags.SetFlags(fset)
	fset.BoolVar(&c.background, "background", false, "runs the daemon in background")
	fset.BoolVar(&c.restart, "restart", false, "when true, kills any old instance")
	fset.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 30*time.Second, "max timeout for shutdown when restarting")
	fset.BoolVar(&c.noPprof, "no-pprof", false, "when true net/http/pprof handler is not registered")
	fset.BoolVar(&c.logStderr, "log-stderr", false, "when true, logs are written to stderr instead of the log files")
	return "run", fset, cli.CmdFunc(c.run)
}

func (c *Run) Purpose() string {
	return "Runs the trading bot in foreground or background"
}

func (c *Run) Description() string {
	return `

Command "run" starts the trading bot for the symbol in the config file. The
bot validates the exchange credentials, restores the saved lots and strategy
state and trades until it is interrupted. Command fails when the exchange
rejects the credentials.

CONFIG FILE

Config file is optional; default values are used for the missing fields. An
example config file with a few fields is given below:

    {
        "symbol": "BTCUSDT",
        "mode": "PAPER",
        "use_testnet": true,
        "poll_interval_seconds": 10,
        "base_risk_frac": 0.25,
        "min_profit_pct_net": 0.10
    }

SECRETS FILE

Binance API keys are required in LIVE mode. They are read from the secrets
file or the BINANCE_API_KEY and BINANCE_API_SECRET environment variables,
which can also be set in the $HOME/.spotbot.env file.

    {
        "binance": {
            "key": "111111111",
            "secret": "2222222222"
        }
    }

`
}

func (c *Run) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir, err := c.DataFlags.CreateDataDir()
	if err != nil {
		return err
	}
	cfg, err := c.DataFlags.LoadConfig()
	if err != nil {
		return err
	}
	secrets, err := c.DataFlags.LoadSecrets()
	if err != nil {
		return err
	}
	addr, err := c.ServerFlags.Addr()
	if err != nil {
		return err
	}

	// Health checker for the background process initialization. We need to
	// verify that responding http server is really our child and not an older
	// instance.
	check := func(ctx context.Context, child *os.Process) (bool, error) {
		client := http.Client{Timeout: time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s/pid", addr.String()))
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return true, fmt.Errorf("http status: %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return true, err
		}
		if pid := string(data); pid != fmt.Sprintf("%d", child.Pid) {
			return c.restart, fmt.Errorf("is another instance already running? pid mismatch: want %d got %s", child.Pid, pid)
		}
		return false, nil
	}

	if c.background {
		if err := daemonize.Daemonize(ctx, "SPOTBOT_DAEMONIZE", check); err != nil {
			return err
		}
	}

	if !c.logStderr {
		logDir := filepath.Join(dataDir, "logs")
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("could not create logs directory: %w", err)
		}
		backend := sglog.NewBackend(&sglog.Options{
			LogDirs:           []string{logDir},
			ReuseFileDuration: time.Hour,
		})
		defer backend.Close()
		slog.SetDefault(slog.New(backend.Handler()))
	}
	slog.Info("starting spotbot", "data-dir", dataDir, "symbol", cfg.Symbol, "mode", cfg.Mode, "testnet", cfg.UseTestnet)

	lockPath := filepath.Join(dataDir, "spotbot.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		if !c.restart {
			return fmt.Errorf("could not get lock on file %q: %w", lockPath, err)
		}
		owner, err := flock.GetOwner()
		if err != nil {
			return fmt.Errorf("could not get current owner of the lock file: %w", err)
		}
		if err := owner.Signal(os.Interrupt); err == nil {
			slog.Info("waiting for the previous instance to shutdown", "pid", owner.Pid)
			tctx, tcancel := context.WithTimeout(ctx, c.shutdownTimeout)
			err := ctxutil.Retry(tctx, time.Second, flock.TryLock)
			tcancel()
			if err != nil {
				if err := owner.Signal(os.Kill); err != nil {
					return fmt.Errorf("could not kill current owner of the lock file: %w", err)
				}
				ctxutil.Sleep(ctx, time.Second)
			}
		}
		if err := flock.TryLock(); err != nil {
			return fmt.Errorf("could not get lock on file %q after killing previous instance: %w", lockPath, err)
		}
	}
	defer flock.Unlock()

	// Start HTTP server.
	s, err := httputil.New(nil /* opts */)
	if err != nil {
		return err
	}
	defer s.Close()

	tcpServer, err := s.StartTCP(ctx, addr)
	if err != nil {
		return fmt.Errorf("could not start http server on %s: %w", addr, err)
	}
	defer s.Stop(tcpServer)

	if !c.noPprof {
		s.AddHandler("/debug/pprof/heap", pprof.Handler("heap"))
		s.AddHandler("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		s.AddHandler("/debug/pprof/allocs", pprof.Handler("allocs"))
		s.AddHandler("/debug/pprof/block", pprof.Handler("block"))
		s.AddHandler("/debug/pprof/mutex", pprof.Handler("mutex"))
	}

	// Open the database.
	db, closer, err := cmdutil.OpenBadger(filepath.Join(dataDir, "db"))
	if err != nil {
		return err
	}
	defer closer()

	bot, err := server.New(ctx, db, cfg, secrets, nil /* opts */)
	if err != nil {
		return err
	}
	defer bot.Close()

	handlers := bot.HandlerMap()
	for k, v := range handlers {
		s.AddHandler(k, v)
	}
	defer func() {
		for k := range handlers {
			s.RemoveHandler(k)
		}
	}()

	if err := bot.Start(ctx); err != nil {
		return err
	}

	slog.Info("started spotbot server", "addr", addr)
	s.AddHandler("/pid", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, fmt.Sprintf("%d", os.Getpid()))
	}))

	<-ctx.Done()
	slog.Info("spotbot server is shutting down", "cause", context.Cause(ctx))
	return nil
}
