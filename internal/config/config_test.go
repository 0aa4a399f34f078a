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
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points the config path at a fresh temp file.
func isolate(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	old := os.Getenv(EnvConfigPath)
	_ = os.Setenv(EnvConfigPath, p)
	t.Cleanup(func() { _ = os.Setenv(EnvConfigPath, old) })
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Editor.HoverDebounceMs != 80 || cfg.Editor.StrictPaths || !cfg.Editor.FallbackRecovery {
		t.Fatalf("unexpected editor defaults: %#v", cfg.Editor)
	}
	if got := cfg.Editor.HoverDebounce(); got != 80*time.Millisecond {
		t.Fatalf("HoverDebounce() = %v", got)
	}
}

func TestEnvOverridesEditor(t *testing.T) {
	isolate(t)
	oldDelay := os.Getenv(EnvHoverDebounceMs)
	oldStrict := os.Getenv(EnvStrictPaths)
	_ = os.Setenv(EnvHoverDebounceMs, "120")
	_ = os.Setenv(EnvStrictPaths, "yes")
	t.Cleanup(func() {
		_ = os.Setenv(EnvHoverDebounceMs, oldDelay)
		_ = os.Setenv(EnvStrictPaths, oldStrict)
	})
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Editor.HoverDebounceMs != 120 || !cfg.Editor.StrictPaths {
		t.Fatalf("env overrides not applied: %#v", cfg.Editor)
	}
	if name, ok := EnvOverrideFor("editor.strict_paths"); !ok || name != EnvStrictPaths {
		t.Fatalf("EnvOverrideFor(editor.strict_paths) = %q, %v", name, ok)
	}
	if _, ok := EnvOverrideFor("editor.fallback_recovery"); ok {
		t.Fatalf("fallback_recovery is not pinned by env")
	}
}

func TestMergeKeepsUnsetFileFieldsAtDefault(t *testing.T) {
	p := isolate(t)
	if err := os.WriteFile(p, []byte("editor:\n  strict_paths: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Editor.StrictPaths {
		t.Fatalf("strict_paths from file was not merged")
	}
	if !cfg.Editor.FallbackRecovery || cfg.Storage.KeepSnapshots != 50 || !cfg.Storage.IndexEnabled {
		t.Fatalf("unset fields lost their defaults: %#v", cfg)
	}
}

func TestMalformedFileIsIgnored(t *testing.T) {
	p := isolate(t)
	if err := os.WriteFile(p, []byte("editor: [not a map"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Editor.HoverDebounceMs != Defaults().Editor.HoverDebounceMs {
		t.Fatalf("malformed file leaked into config: %#v", cfg.Editor)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	cfg := Defaults()
	cfg.History.MinIntervalMs = 0
	cfg.Storage.IndexEnabled = false
	cfg.Logging.Level = "debug"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.History.MinIntervalMs != 0 || got.Storage.IndexEnabled || got.Logging.Level != "debug" {
		t.Fatalf("round trip lost fields: %#v", got)
	}
	if got.History.MinInterval() != 0 {
		t.Fatalf("MinInterval() = %v", got.History.MinInterval())
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "DEBUG "
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "C:/tmp/cb.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "C:/tmp/cb.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	oldLevel := os.Getenv(EnvLogLevel)
	oldFmt := os.Getenv(EnvLogFormat)
	oldSrc := os.Getenv(EnvLogSource)
	oldFile := os.Getenv(EnvLogFile)
	_ = os.Setenv(EnvLogLevel, "error")
	_ = os.Setenv(EnvLogFormat, "json")
	_ = os.Setenv(EnvLogSource, "1")
	_ = os.Setenv(EnvLogFile, "X:/cb.log")
	t.Cleanup(func() {
		_ = os.Setenv(EnvLogLevel, oldLevel)
		_ = os.Setenv(EnvLogFormat, oldFmt)
		_ = os.Setenv(EnvLogSource, oldSrc)
		_ = os.Setenv(EnvLogFile, oldFile)
	})
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/cb.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}
