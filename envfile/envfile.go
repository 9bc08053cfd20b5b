// Copyright (c) 2025 BVK Chaitanya

// Package envfile loads environment variables from a NAME=VALUE file, which
// keeps the exchange keys out of the shell history and the process listing.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

type options struct {
	variableNamePrefix string

	dirs []string

	searchCurrentDirectory bool
	scanParentDirectories  bool

	overwriteIfExists bool
}

// Parse reads the NAME=VALUE assignments, one per line. Empty lines and the
// lines starting with # are skipped. Values are not unquoted or expanded.
func Parse(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for i := 1; scanner.Scan(); i++ {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid variable assignment on line %d: %w", i, os.ErrInvalid)
		}
		key = strings.TrimPrefix(strings.TrimSpace(key), "export ")
		if !nameRe.MatchString(key) {
			return nil, fmt.Errorf("invalid environment variable name %q on line %d: %w", key, i, os.ErrInvalid)
		}
		vars[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}

// UpdateEnv updates the process environment with the variables from the
// first env file found. Home directory of the current user is searched by
// default; options can change the search path.
func UpdateEnv(filename string, opts ...Option) error {
	if strings.ContainsRune(filename, os.PathSeparator) {
		return fmt.Errorf("file name contains path separator: %w", os.ErrInvalid)
	}
	var fopts options
	for _, v := range opts {
		if err := v.apply(&fopts); err != nil {
			return err
		}
	}
	fpaths, err := fopts.searchPaths(filename)
	if err != nil {
		return err
	}
	for _, fpath := range fpaths {
		vars, err := parseFile(fpath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%s: %w", fpath, err)
		}
		for key, value := range vars {
			key = fopts.variableNamePrefix + key
			if len(os.Getenv(key)) != 0 && !fopts.overwriteIfExists {
				continue
			}
			if err := os.Setenv(key, value); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func parseFile(fpath string) (map[string]string, error) {
	fp, err := os.Open(fpath)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return Parse(fp)
}

func (v *options) searchPaths(filename string) ([]string, error) {
	var fpaths []string
	for _, dir := range v.dirs {
		fpaths = append(fpaths, filepath.Join(dir, filename))
	}
	if v.searchCurrentDirectory {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		fpaths = append(fpaths, filepath.Join(cwd, filename))
		if v.scanParentDirectories {
			last, dir := cwd, filepath.Dir(cwd)
			for dir != last {
				fpaths = append(fpaths, filepath.Join(dir, filename))
				last, dir = dir, filepath.Dir(dir)
			}
		}
	}
	if len(fpaths) == 0 {
		u, err := user.Current()
		if err != nil {
			return nil, err
		}
		if len(u.HomeDir) == 0 {
			return nil, fmt.Errorf("could not determine current user's home directory")
		}
		fpaths = []string{filepath.Join(u.HomeDir, filename)}
	}
	return fpaths, nil
}
