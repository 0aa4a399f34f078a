/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log provides centralized slog-based logging for the card builder:
// a console or JSON handler on stderr, optional rotating file output, and
// an enricher that adds the edited document id carried in a context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"cardbuilder/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger initialization.
// Values can be provided directly or via environment variables:
//   - CB_LOG_LEVEL=debug|info|warn|error
//   - CB_LOG_FORMAT=console|json
//   - CB_LOG_FILE=<path> (enables file logging with rotation)
//   - CB_LOG_SOURCE=true|false (include source)
//
// Defaults: INFO level, console format, no source.
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string // optional path for JSON file logging (rotated)
}

// Rotation limits of the file output.
const (
	fileMaxSizeMB  = 10
	fileMaxBackups = 3
	fileMaxAgeDays = 28
)

var (
	defaultLoggerMu sync.RWMutex
	defaultLogger   *slog.Logger
)

// L returns the default application logger, initializing from env if needed.
func L() *slog.Logger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// Init configures the global logger writing to stderr and sets slog.Default.
func Init(opts Options) {
	logger := New(opts, os.Stderr)
	defaultLoggerMu.Lock()
	defaultLogger = logger
	defaultLoggerMu.Unlock()
	slog.SetDefault(logger)
}

// New builds a logger writing to console (and to opts.File when set)
// without touching the global default.
func New(opts Options, console io.Writer) *slog.Logger {
	lvl := parseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}

	var hs fanout
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		hs = append(hs, slog.NewJSONHandler(console, hopts))
	default:
		hs = append(hs, newConsoleHandler(console, lvl, opts.AddSource))
	}
	if f := strings.TrimSpace(opts.File); f != "" {
		w := &lj.Logger{Filename: f, MaxSize: fileMaxSizeMB, MaxBackups: fileMaxBackups, MaxAge: fileMaxAgeDays, Compress: true}
		hs = append(hs, slog.NewJSONHandler(w, hopts))
	}

	var h slog.Handler = hs
	if len(hs) == 1 {
		h = hs[0]
	}
	return slog.New(enrich{next: h}).With(
		slog.String("app", "cardbuilder"),
		slog.String("ver", version.String()),
		slog.Time("ts_init", time.Now()),
	)
}

// FromEnv builds Options from environment variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("CB_LOG_LEVEL", "info"),
		Format:    getenv("CB_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("CB_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("CB_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

// WithDocument annotates the logger with the id of the edited document.
func WithDocument(l *slog.Logger, docID string) *slog.Logger {
	return l.With(slog.String("doc", docID))
}

type docKey struct{}

// ContextWithDocument stores a document id that every record logged with the
// returned context carries as "doc".
func ContextWithDocument(ctx context.Context, docID string) context.Context {
	return context.WithValue(ctx, docKey{}, docID)
}

func documentFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(docKey{}).(string)
	return id, ok && id != ""
}
