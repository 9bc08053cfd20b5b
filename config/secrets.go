// Copyright (c) 2025 BVK Chaitanya

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bvk/spotbot/binance"
	"github.com/bvk/spotbot/envfile"
	"github.com/bvk/spotbot/pushover"
	"github.com/bvk/spotbot/telegram"
)

// EnvFile is the name of the optional environment file in the user's home
// directory with the exchange keys.
const EnvFile = ".spotbot.env"

const (
	APIKeyEnv    = "BINANCE_API_KEY"
	APISecretEnv = "BINANCE_API_SECRET"
)

type Secrets struct {
	Binance  *binance.Credentials `json:"binance"`
	Pushover *pushover.Keys       `json:"pushover"`
	Telegram *telegram.Secrets    `json:"telegram"`
}

// ReadSecrets reads the secrets file without applying the environment. A
// missing secrets file returns empty secrets.
func ReadSecrets(fpath string) (*Secrets, error) {
	s := new(Secrets)
	data, err := os.ReadFile(fpath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("could not parse secrets file %q: %w", fpath, err)
	}
	return s, nil
}

// SecretsFromFile reads the secrets file and applies the exchange keys from
// the environment, which is updated from the EnvFile first. A missing secrets
// file is not an error.
func SecretsFromFile(fpath string, envOpts ...envfile.Option) (*Secrets, error) {
	s, err := ReadSecrets(fpath)
	if err != nil {
		return nil, err
	}
	if err := envfile.UpdateEnv(EnvFile, envOpts...); err != nil {
		return nil, fmt.Errorf("could not load %s: %w", EnvFile, err)
	}
	s.applyEnv()
	return s, nil
}

// applyEnv overrides the exchange keys with the environment variables.
func (v *Secrets) applyEnv() {
	key, secret := os.Getenv(APIKeyEnv), os.Getenv(APISecretEnv)
	if key == "" && secret == "" {
		return
	}
	if v.Binance == nil {
		v.Binance = new(binance.Credentials)
	}
	if key != "" {
		v.Binance.Key = key
	}
	if secret != "" {
		v.Binance.Secret = secret
	}
}

// Save writes the secrets file readable only by the owner.
func (v *Secrets) Save(fpath string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(fpath, data, 0600); err != nil {
		return err
	}
	return os.Chmod(fpath, 0600)
}

func (v *Secrets) Check() error {
	if v.Binance != nil {
		if err := v.Binance.Check(); err != nil {
			return err
		}
	}
	if v.Pushover != nil {
		if err := v.Pushover.Check(); err != nil {
			return err
		}
	}
	if v.Telegram != nil {
		if err := v.Telegram.Check(); err != nil {
			return err
		}
	}
	return nil
}
