// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bvk/spotbot/binance"
	"github.com/bvk/spotbot/config"
	"github.com/bvk/spotbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Check struct {
	cmdutil.DataFlags
}

func (c *Check) Purpose() string {
	return "Validates the exchange credentials and prints the account balances"
}

func (c *Check) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("check", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	return "check", fset, cli.CmdFunc(c.run)
}

func (c *Check) run(ctx context.Context, args []string) error {
	cfg, err := c.DataFlags.LoadConfig()
	if err != nil {
		return err
	}
	secrets, err := c.DataFlags.LoadSecrets()
	if err != nil {
		return err
	}

	creds := secrets.Binance
	if creds == nil {
		if cfg.Mode == config.LIVE {
			return fmt.Errorf("binance credentials are not configured: %w", os.ErrNotExist)
		}
	}

	ex, err := binance.New(creds, cfg.BinanceOptions())
	if err != nil {
		return err
	}
	defer ex.Close()

	stdout := cli.Stdout(ctx)
	sc, err := ex.GetSymbolConstraints(ctx, cfg.Symbol)
	if err != nil {
		return fmt.Errorf("could not fetch symbol constraints for %s: %w", cfg.Symbol, err)
	}
	price, err := ex.GetPrice(ctx, cfg.Symbol)
	if err != nil {
		return fmt.Errorf("could not fetch price for %s: %w", cfg.Symbol, err)
	}
	fmt.Fprintf(stdout, "%s price %s (min qty %s, step %s, tick %s, min notional %s)\n", cfg.Symbol, price,
		sc.MinQty, sc.StepSize, sc.TickSize, sc.MinNotional)

	if creds == nil {
		fmt.Fprintf(stdout, "Market data is reachable; credentials are not configured for %s mode\n", cfg.Mode)
		return nil
	}

	if err := ex.ValidateCredentials(ctx); err != nil {
		return fmt.Errorf("credential validation has failed: %w", err)
	}
	fees, err := ex.GetFeeRates(ctx, cfg.Symbol)
	if err != nil {
		return fmt.Errorf("could not fetch fee rates: %w", err)
	}
	for _, asset := range []string{sc.BaseAsset, sc.QuoteAsset} {
		free, err := ex.GetFreeBalance(ctx, asset)
		if err != nil {
			return fmt.Errorf("could not fetch %s balance: %w", asset, err)
		}
		fmt.Fprintf(stdout, "Free %s: %s\n", asset, free)
	}
	fmt.Fprintf(stdout, "Fees: maker %s, taker %s\n", fees.Maker, fees.Taker)
	fmt.Fprintln(stdout, "Credentials are valid")
	return nil
}
