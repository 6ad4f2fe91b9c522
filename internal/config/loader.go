// Package config loads flickd's configuration from yaml, json or toml files
// and the FLICKD_* environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"flickd/internal/common/fsutil"
)

// SearchPaths are tried in order when no config path is given.
var SearchPaths = []string{
	"flickd.yaml", "flickd.yml", "flickd.toml", "flickd.json",
	"~/.config/flickd/config.yaml",
}

// Load reads a configuration file based on its extension and applies
// defaults to unset fields. Keys the file omits keep their default, booleans
// included. Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := seed()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Discover loads the first file in SearchPaths. found is false, with the
// defaults returned, when none exists.
func Discover() (cfg Config, path string, found bool, err error) {
	path, err = fsutil.FirstFile(SearchPaths...)
	if err != nil {
		return Default(), "", false, nil
	}
	cfg, err = Load(path)
	return cfg, path, err == nil, err
}
