/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type EditorConfig struct {
	HoverDebounceMs  int  `yaml:"hover_debounce_ms"`
	StrictPaths      bool `yaml:"strict_paths"`
	FallbackRecovery bool `yaml:"fallback_recovery"`
}

type HistoryConfig struct {
	MaxBytes       int `yaml:"max_bytes"`
	MaxPerDocument int `yaml:"max_per_document"`
	MinIntervalMs  int `yaml:"min_interval_ms"`
}

type StorageConfig struct {
	IndexEnabled  bool `yaml:"index_enabled"`
	KeepSnapshots int  `yaml:"keep_snapshots"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Editor        EditorConfig  `yaml:"editor"`
	History       HistoryConfig `yaml:"history"`
	Storage       StorageConfig `yaml:"storage"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Editor:        EditorConfig{HoverDebounceMs: 80, StrictPaths: false, FallbackRecovery: true},
		History:       HistoryConfig{MaxBytes: 32 << 20, MaxPerDocument: 200, MinIntervalMs: 300},
		Storage:       StorageConfig{IndexEnabled: true, KeepSnapshots: 50},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath       = "CB_CONFIG"
	EnvHoverDebounceMs  = "CB_HOVER_DEBOUNCE_MS"
	EnvStrictPaths      = "CB_STRICT_PATHS"
	EnvFallbackRecovery = "CB_FALLBACK_RECOVERY"
	EnvIndexEnabled     = "CB_INDEX_ENABLED"
	EnvKeepSnapshots    = "CB_KEEP_SNAPSHOTS"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "CB_LOG_LEVEL"
	EnvLogFormat = "CB_LOG_FORMAT"
	EnvLogSource = "CB_LOG_SOURCE"
	EnvLogFile   = "CB_LOG_FILE"
)

// ConfigPath returns the per-user config file path. CB_CONFIG points it elsewhere.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "CardBuilder")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "CardBuilder")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "cardbuilder")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// A malformed file is ignored so that a broken config never blocks editing.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		fileCfg := Defaults()
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// editor
	if src.Editor.HoverDebounceMs > 0 {
		dst.Editor.HoverDebounceMs = src.Editor.HoverDebounceMs
	}
	dst.Editor.StrictPaths = src.Editor.StrictPaths
	dst.Editor.FallbackRecovery = src.Editor.FallbackRecovery
	// history
	if src.History.MaxBytes > 0 {
		dst.History.MaxBytes = src.History.MaxBytes
	}
	if src.History.MaxPerDocument > 0 {
		dst.History.MaxPerDocument = src.History.MaxPerDocument
	}
	if src.History.MinIntervalMs >= 0 {
		dst.History.MinIntervalMs = src.History.MinIntervalMs
	}
	// storage
	dst.Storage.IndexEnabled = src.Storage.IndexEnabled
	if src.Storage.KeepSnapshots >= 0 {
		dst.Storage.KeepSnapshots = src.Storage.KeepSnapshots
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvHoverDebounceMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Editor.HoverDebounceMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvStrictPaths)); v != "" {
		cfg.Editor.StrictPaths = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvFallbackRecovery)); v != "" {
		cfg.Editor.FallbackRecovery = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvIndexEnabled)); v != "" {
		cfg.Storage.IndexEnabled = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvKeepSnapshots)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Storage.KeepSnapshots = n
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"editor.hover_debounce_ms": EnvHoverDebounceMs,
	"editor.strict_paths":      EnvStrictPaths,
	"editor.fallback_recovery": EnvFallbackRecovery,
	"storage.index_enabled":    EnvIndexEnabled,
	"storage.keep_snapshots":   EnvKeepSnapshots,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// HoverDebounce returns the drag quiescence window.
func (e EditorConfig) HoverDebounce() time.Duration {
	if e.HoverDebounceMs <= 0 {
		return time.Duration(Defaults().Editor.HoverDebounceMs) * time.Millisecond
	}
	return time.Duration(e.HoverDebounceMs) * time.Millisecond
}

// MinInterval returns the undo coalescing window.
func (h HistoryConfig) MinInterval() time.Duration {
	return time.Duration(h.MinIntervalMs) * time.Millisecond
}

// String renders the effective configuration as YAML, for diagnostics.
func (c AppConfig) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
