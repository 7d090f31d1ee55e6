package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/vncbridge/rfbcache/tiling"
)

// Config holds cachectl's configuration: the cache directory the
// coordinator manages plus the tiling defaults reported by the "shell"
// subcommand for operator visibility.
type Config struct {
	CacheDir     string `json:"cache_dir,omitempty"`      //nolint:tagliatelle
	TileSize     int    `json:"tile_size,omitempty"`      //nolint:tagliatelle
	MinRectTiles int    `json:"min_rect_tiles,omitempty"` //nolint:tagliatelle
	DebugTiling  bool   `json:"debug_tiling,omitempty"`   //nolint:tagliatelle
}

// ConfigFileName is the default project-local config file name.
const ConfigFileName = ".cachectl.json"

var errConfigFileNotFound = errors.New("cachectl: config file not found")

// DefaultConfig returns cachectl's built-in defaults, matching the tiling
// package's own defaults so an unconfigured install behaves identically to
// one with an explicit config file spelling them out.
func DefaultConfig() Config {
	return Config{
		TileSize:     tiling.DefaultTileSize,
		MinRectTiles: tiling.DefaultMinRectTiles,
	}
}

// getGlobalConfigPath returns ~/.config/cachectl/config.json, honoring
// $XDG_CONFIG_HOME. Returns "" if no home directory can be determined.
func getGlobalConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cachectl", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "cachectl", "config.json")
}

// LoadConfig loads configuration with the following precedence (highest
// wins): defaults, then the global user config, then a project config file
// (or an explicit one named via configPath), then CLI overrides.
func LoadConfig(workDir, configPath string, cliDir string) (Config, error) {
	cfg := DefaultConfig()

	globalCfg, err := loadConfigFile(getGlobalConfigPath(), false)
	if err != nil {
		return Config{}, err
	}

	cfg = mergeConfig(cfg, globalCfg)

	projectPath := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if configPath != "" {
		projectPath = configPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	projectCfg, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	cfg = mergeConfig(cfg, projectCfg)

	if cliDir != "" {
		cfg.CacheDir = cliDir
	}

	if cfg.CacheDir == "" {
		return Config{}, errors.New("cachectl: no cache directory configured (pass one as an argument or set cache_dir)")
	}

	return cfg, nil
}

func loadConfigFile(path string, mustExist bool) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil
		}

		if mustExist {
			return Config{}, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
		}

		return Config{}, nil
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("cachectl: invalid JSONC in %s: %w", path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("cachectl: invalid JSON in %s: %w", path, err)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.CacheDir != "" {
		base.CacheDir = overlay.CacheDir
	}

	if overlay.TileSize != 0 {
		base.TileSize = overlay.TileSize
	}

	if overlay.MinRectTiles != 0 {
		base.MinRectTiles = overlay.MinRectTiles
	}

	if overlay.DebugTiling {
		base.DebugTiling = true
	}

	return base
}

// FormatConfig returns cfg as formatted JSON, for "cachectl shell"'s info
// command.
func FormatConfig(cfg Config) string {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Sprintf("<error formatting config: %v>", err)
	}

	return strings.TrimSpace(string(data))
}
