/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package mutate is the mutation engine of the card builder. Insert, Remove,
// Move and Update each take a document value and return a new one; the input
// is never modified, so renderers holding an older snapshot are unaffected.
// Structural invariants are enforced around every call rather than in a
// separate full-tree pass.
package mutate

import (
	"errors"
	"log/slog"

	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
	applog "cardbuilder/internal/log"
)

// Append as an insert index appends to the end of the target collection.
const Append = -1

// Result is the outcome of an engine call. On failure Document is the
// unchanged input.
type Result struct {
	Document document.Document
	// Path addresses the inserted, moved or updated node, or the slot a
	// removal emptied.
	Path docpath.Path
	// Node is the node as placed (after field cleanup) or as removed.
	Node document.Node
	// Recovered is set when fallback recovery rewrote the target path.
	Recovered bool
	// Clamped is set when an out-of-range index was clamped.
	Clamped bool
	// Redirected is set when a Title insert was turned into a header update.
	Redirected bool
	// Cascaded is set when removing the last column removed its ColumnSet.
	Cascaded bool
	// NoOp is set when the request left the tree unchanged by design.
	NoOp bool
}

// Engine applies path-addressed mutations. The zero value is not usable; call New.
type Engine struct {
	strict   bool
	fallback bool
	log      *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the logger receiving engine diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithStrictPaths makes out-of-range indices fail instead of being clamped.
func WithStrictPaths(strict bool) Option {
	return func(e *Engine) { e.strict = strict }
}

// WithFallbackRecovery toggles the search for a compatible container when a
// target path lands on a container of the wrong kind. Enabled by default.
func WithFallbackRecovery(enabled bool) Option {
	return func(e *Engine) { e.fallback = enabled }
}

// New builds an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{fallback: true}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = applog.WithComponent("mutate")
	}
	return e
}

func (e *Engine) resolveOpts() docpath.Options { return docpath.Options{Strict: e.strict} }

// rejected logs a failed operation and returns the unchanged document.
func (e *Engine) rejected(doc document.Document, err *Error) (Result, error) {
	l := applog.WithOperation(e.log, err.Op).With(slog.String("path", err.Path.String()), slog.String("kind", err.Kind.String()))
	if err.Kind == KindPathResolution {
		l.Debug("mutation skipped", slog.Any("err", err.Err))
	} else {
		l.Warn("mutation rejected", slog.Any("err", err.Err))
	}
	return Result{Document: doc}, err
}

func (e *Engine) applied(op string, res Result) (Result, error) {
	applog.WithOperation(e.log, op).Debug("mutation applied",
		slog.String("path", res.Path.String()),
		slog.String("id", res.Node.ID),
		slog.String("tag", string(res.Node.Tag)),
		slog.Bool("recovered", res.Recovered),
		slog.Bool("clamped", res.Clamped),
	)
	return res, nil
}

// resolveError maps a docpath failure onto a path-resolution *Error.
func resolveError(op string, p docpath.Path, err error) *Error {
	return fail(op, KindPathResolution, p, err)
}

// isShapeMismatch reports whether err is a docpath shape mismatch and returns
// the resolver error carrying its position.
func isShapeMismatch(err error) (*docpath.ResolveError, bool) {
	var re *docpath.ResolveError
	if errors.As(err, &re) && errors.Is(re.Reason, docpath.ErrShapeMismatch) {
		return re, true
	}
	return nil, false
}
