// Copyright (c) 2025 BVK Chaitanya

package cmdutil

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bvk/spotbot/config"
)

// DataFlags locate the data directory and the configuration files in it.
type DataFlags struct {
	dataDir     string
	configPath  string
	secretsPath string
}

func (f *DataFlags) SetFlags(fset *flag.FlagSet) {
	fset.StringVar(&f.dataDir, "data-dir", "", "path to the data directory (default $HOME/.spotbot)")
	fset.StringVar(&f.configPath, "config-file", "", "path to the config file (default <data-dir>/config.json)")
	fset.StringVar(&f.secretsPath, "secrets-file", "", "path to the secrets file (default <data-dir>/secrets.json)")
}

// DataDir returns the absolute path to the data directory.
func (f *DataFlags) DataDir() (string, error) {
	dir := f.dataDir
	if len(dir) == 0 {
		dir = filepath.Join(os.Getenv("HOME"), ".spotbot")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("could not determine data-dir %q absolute path: %w", dir, err)
	}
	return abs, nil
}

// CreateDataDir creates the data directory if it doesn't exist.
func (f *DataFlags) CreateDataDir() (string, error) {
	dir, err := f.DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create data directory %q: %w", dir, err)
	}
	return dir, nil
}

func (f *DataFlags) ConfigPath() (string, error) {
	if len(f.configPath) != 0 {
		return f.configPath, nil
	}
	dir, err := f.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func (f *DataFlags) SecretsPath() (string, error) {
	if len(f.secretsPath) != 0 {
		return f.secretsPath, nil
	}
	dir, err := f.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "secrets.json"), nil
}

// LoadConfig reads the config file. Default configuration is used when the
// file doesn't exist.
func (f *DataFlags) LoadConfig() (*config.Config, error) {
	fpath, err := f.ConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(fpath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
		if err := cfg.Check(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadSecrets reads the secrets file with the environment overrides applied.
func (f *DataFlags) LoadSecrets() (*config.Secrets, error) {
	fpath, err := f.SecretsPath()
	if err != nil {
		return nil, err
	}
	return config.SecretsFromFile(fpath)
}
