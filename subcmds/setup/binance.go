// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bvk/spotbot/binance"
	"github.com/bvk/spotbot/config"
	"github.com/bvk/spotbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
	"golang.org/x/term"
)

type Binance struct {
	cmdutil.DataFlags

	skipTesting bool
	testnet     bool
	key         string
}

func (c *Binance) Purpose() string {
	return "Setup configures Binance API keys"
}

func (c *Binance) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("binance", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.StringVar(&c.key, "api-key", "", "Binance API key; prompted when empty")
	fset.BoolVar(&c.testnet, "testnet", true, "validate the keys against the spot testnet")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "binance", fset, cli.CmdFunc(c.run)
}

func (c *Binance) Description() string {
	return `

Command "binance" saves the Binance API key and secret into the secrets file.
Secret is always read from the terminal without echo so that it doesn't end up
in the shell history.

  $ spotbot setup binance --api-key=xxxx
  API secret:

Keys are validated against the exchange unless --skip-testing is given. Use
--testnet=false for the keys of a live account.

`
}

func (c *Binance) run(ctx context.Context, args []string) error {
	if _, err := c.DataFlags.CreateDataDir(); err != nil {
		return err
	}
	secretsPath, err := c.DataFlags.SecretsPath()
	if err != nil {
		return err
	}

	stdout := cli.Stdout(ctx)
	if len(c.key) == 0 {
		fmt.Fprint(stdout, "API key: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("could not read the api key: %w", err)
		}
		c.key = strings.TrimSpace(line)
	}
	fmt.Fprint(stdout, "API secret: ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(stdout)
	if err != nil {
		return fmt.Errorf("could not read the api secret: %w", err)
	}

	creds := &binance.Credentials{
		Key:    c.key,
		Secret: strings.TrimSpace(string(secret)),
	}
	if err := creds.Check(); err != nil {
		return err
	}

	if !c.skipTesting {
		ex, err := binance.New(creds, &binance.Options{Testnet: c.testnet})
		if err != nil {
			return err
		}
		defer ex.Close()
		if err := ex.ValidateCredentials(ctx); err != nil {
			return fmt.Errorf("binance rejected the keys: %w", err)
		}
	}

	secrets, err := config.ReadSecrets(secretsPath)
	if err != nil {
		return err
	}
	secrets.Binance = creds
	if err := secrets.Save(secretsPath); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Saved binance keys in %s\n", secretsPath)
	return nil
}
