// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"errors"
	"os"
)

func ignoreNotExist(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
