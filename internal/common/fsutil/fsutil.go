// Package fsutil holds small path helpers used when locating config files.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// IsFile reports whether path names an existing regular file.
func IsFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// FirstFile returns the first candidate, after home expansion, that is an
// existing regular file.
func FirstFile(candidates ...string) (string, error) {
	for _, c := range candidates {
		p, err := ExpandHome(c)
		if err != nil {
			return "", err
		}
		if IsFile(p) {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// ErrNotFound is returned by FirstFile when no candidate exists.
var ErrNotFound = errors.New("no candidate file found")
