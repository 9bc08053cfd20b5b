// Copyright (c) 2025 BVK Chaitanya

package binance

import (
	"fmt"
	"os"
)

type Credentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

func (v *Credentials) Check() error {
	if len(v.Key) == 0 {
		return fmt.Errorf("binance api key cannot be empty: %w", os.ErrInvalid)
	}
	if len(v.Secret) == 0 {
		return fmt.Errorf("binance api secret cannot be empty: %w", os.ErrInvalid)
	}
	return nil
}
