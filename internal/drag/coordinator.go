/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package drag turns pointer drag gestures into exactly one mutation. A
// Coordinator runs the per-gesture state machine
//
//	Idle -> Dragging -> Hovering* -> Dropped | Cancelled
//
// debounces the insertion-index computation while the pointer moves, and on
// drop classifies the gesture and dispatches a single engine call.
package drag

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
	applog "cardbuilder/internal/log"
	"cardbuilder/internal/mutate"
)

// DefaultDelay is the hover quiescence window.
const DefaultDelay = 80 * time.Millisecond

// State of the current gesture.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateHovering
	StateDropped
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateHovering:
		return "hovering"
	case StateDropped:
		return "dropped"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

var (
	ErrInvalidTransition = errors.New("drag: invalid state transition")
	ErrInvalidSource     = errors.New("drag: source needs either a tag or a node path")
	ErrNoTarget          = errors.New("drag: no settled hover target")
	ErrSelfDrop          = errors.New("drag: cannot drop a node into itself or its own subtree")
	ErrIncompatible      = errors.New("drag: target container cannot hold the dragged node")
)

// Source is what the user picked up: a palette tag for a new component or
// the path of an existing node.
type Source struct {
	Tag  document.Tag
	Path docpath.Path
}

// NewComponent is a palette source.
func NewComponent(tag document.Tag) Source { return Source{Tag: tag} }

// Existing is a source for a node already in the tree.
func Existing(p docpath.Path) Source { return Source{Path: p.Clone()} }

func (s Source) isNew() bool { return s.Tag != "" }

// Hover reports the pointer over a target collection. Siblings are the
// bounding boxes of the collection's children in order.
type Hover struct {
	Target   docpath.Path
	Pointer  Pt
	Siblings []Rect
	Axis     Axis
}

// Decision is a settled hover computation.
type Decision struct {
	Target docpath.Path
	Index  int
}

// DropKind classifies a dropped gesture.
type DropKind int

const (
	DropNewComponent DropKind = iota + 1
	DropReorder
	DropCrossContainer
)

func (k DropKind) String() string {
	switch k {
	case DropNewComponent:
		return "new-component"
	case DropReorder:
		return "reorder"
	case DropCrossContainer:
		return "cross-container"
	}
	return "unknown"
}

// Outcome is the result of a drop.
type Outcome struct {
	Kind     DropKind
	Decision Decision
	Result   mutate.Result
}

// Engine is the part of the mutation engine the coordinator dispatches to.
type Engine interface {
	Insert(doc document.Document, p docpath.Path, n document.Node, index int) (mutate.Result, error)
	Move(doc document.Document, src, dst docpath.Path, index int) (mutate.Result, error)
}

// Factory builds the default node for a palette tag.
type Factory func(tag document.Tag) (document.Node, error)

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock injects the clock that schedules hover computations.
func WithClock(c Clock) Option { return func(co *Coordinator) { co.clock = c } }

// WithDelay overrides the hover quiescence window.
func WithDelay(d time.Duration) Option {
	return func(co *Coordinator) {
		if d >= 0 {
			co.delay = d
		}
	}
}

// WithFactory replaces document.NewComponent as the node factory.
func WithFactory(f Factory) Option { return func(co *Coordinator) { co.factory = f } }

// WithLogger sets the logger for gesture transitions.
func WithLogger(l *slog.Logger) Option { return func(co *Coordinator) { co.log = l } }

// WithSettle registers a callback invoked with every settled decision, e.g.
// to draw the insertion marker. It runs on the clock's goroutine.
func WithSettle(fn func(Decision)) Option { return func(co *Coordinator) { co.onSettle = fn } }

// Coordinator owns one gesture at a time. It is safe for concurrent use: the
// debounce timer fires on its own goroutine.
type Coordinator struct {
	engine   Engine
	clock    Clock
	delay    time.Duration
	factory  Factory
	log      *slog.Logger
	onSettle func(Decision)

	mu       sync.Mutex
	state    State
	gesture  uint64
	hoverSeq uint64
	source   Source
	pending  Timer
	hover    *Hover
	decision *Decision
}

// New builds a Coordinator dispatching to engine.
func New(engine Engine, opts ...Option) *Coordinator {
	c := &Coordinator{engine: engine, clock: RealClock, delay: DefaultDelay, factory: document.NewComponent}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = applog.WithComponent("drag")
	}
	return c
}

// State returns the state of the current gesture.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Decision returns the last settled hover decision of the current gesture.
func (c *Coordinator) Decision() (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decision == nil {
		return Decision{}, false
	}
	return *c.decision, true
}

// Begin starts a gesture. A previous gesture must have ended.
func (c *Coordinator) Begin(src Source) error {
	if src.isNew() == (len(src.Path) > 0) {
		return ErrInvalidSource
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDragging || c.state == StateHovering {
		return fmt.Errorf("%w: begin while %s", ErrInvalidTransition, c.state)
	}
	c.gesture++
	c.source = src
	c.resetLocked()
	c.transitionLocked(StateDragging)
	return nil
}

// Hover records a pointer move over a target collection. The insertion index
// is computed once the pointer has rested for the quiescence window; a new
// hover before that cancels and reschedules the pending computation.
func (c *Coordinator) Hover(h Hover) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDragging && c.state != StateHovering {
		return fmt.Errorf("%w: hover while %s", ErrInvalidTransition, c.state)
	}
	if c.state == StateDragging {
		c.transitionLocked(StateHovering)
	}
	if c.pending != nil {
		c.pending.Stop()
	}
	h.Target = h.Target.Clone()
	h.Siblings = append([]Rect(nil), h.Siblings...)
	c.hover = &h
	c.hoverSeq++
	gesture, seq := c.gesture, c.hoverSeq
	c.pending = c.clock.AfterFunc(c.delay, func() { c.settle(gesture, seq) })
	return nil
}

// settle computes the decision for the hover that scheduled it. A callback
// whose timer could not be stopped in time finds a newer hover sequence and
// does nothing.
func (c *Coordinator) settle(gesture, seq uint64) {
	c.mu.Lock()
	if gesture != c.gesture || seq != c.hoverSeq || c.state != StateHovering || c.hover == nil {
		c.mu.Unlock()
		return
	}
	d := c.computeLocked()
	cb := c.onSettle
	c.mu.Unlock()
	if cb != nil {
		cb(d)
	}
}

func (c *Coordinator) computeLocked() Decision {
	h := c.hover
	d := Decision{Target: h.Target, Index: InsertionIndex(h.Pointer, h.Siblings, h.Axis)}
	c.decision = &d
	c.hover = nil
	c.pending = nil
	return d
}

// Cancel aborts the gesture with no effect on the tree.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDragging && c.state != StateHovering {
		return
	}
	c.resetLocked()
	c.transitionLocked(StateCancelled)
}

// Drop ends the gesture over doc. A pending hover computation is flushed
// first. The gesture is classified and exactly one engine call is made; any
// classification, compatibility or engine failure cancels the gesture and
// returns doc unchanged in Outcome.Result.Document. A drop that never hovered
// a target cancels with ErrNoTarget.
func (c *Coordinator) Drop(doc document.Document) (Outcome, error) {
	c.mu.Lock()
	if c.state != StateDragging && c.state != StateHovering {
		state := c.state
		c.mu.Unlock()
		return Outcome{Result: mutate.Result{Document: doc}}, fmt.Errorf("%w: drop while %s", ErrInvalidTransition, state)
	}
	if c.hover != nil {
		if c.pending != nil {
			c.pending.Stop()
		}
		c.computeLocked()
	}
	decision := c.decision
	src := c.source
	gesture := c.gesture
	c.resetLocked()
	c.transitionLocked(StateDropped)
	c.mu.Unlock()

	if decision == nil {
		return c.abort(doc, Outcome{}, ErrNoTarget, gesture)
	}
	out, err := c.dispatch(doc, src, *decision)
	if err != nil {
		return c.abort(doc, out, err, gesture)
	}
	applog.WithOperation(c.log, "drop").Debug("drop applied",
		slog.String("kind", out.Kind.String()),
		slog.String("target", decision.Target.String()),
		slog.Int("index", decision.Index),
	)
	return out, nil
}

func (c *Coordinator) dispatch(doc document.Document, src Source, d Decision) (Outcome, error) {
	out := Outcome{Decision: d, Result: mutate.Result{Document: doc}}
	if src.isNew() {
		out.Kind = DropNewComponent
		n, err := c.factory(src.Tag)
		if err != nil {
			return out, err
		}
		if err := gate(doc, d.Target, n, false); err != nil {
			return out, err
		}
		res, err := c.engine.Insert(doc, d.Target, n, d.Index)
		if err != nil {
			return out, err
		}
		out.Result = res
		return out, nil
	}

	if d.Target.HasPrefix(src.Path) {
		return out, ErrSelfDrop
	}
	from, err := docpath.Resolve(doc, src.Path, docpath.Options{Strict: true})
	if err != nil {
		return out, err
	}
	if from.Kind != docpath.KindNode {
		return out, ErrInvalidSource
	}
	coll, _, _ := src.Path.Split()
	out.Kind = DropCrossContainer
	if d.Target.Equal(coll) {
		out.Kind = DropReorder
	}
	if err := gate(doc, d.Target, from.Node, true); err != nil {
		return out, err
	}
	res, err := c.engine.Move(doc, src.Path, d.Target, d.Index)
	if err != nil {
		return out, err
	}
	out.Result = res
	return out, nil
}

// gate runs the container compatibility check. A shape mismatch is left to
// the engine, whose fallback recovery handles speculative target paths.
func gate(doc document.Document, target docpath.Path, n document.Node, moving bool) error {
	err := mutate.Compatible(doc, target, n, moving)
	if err == nil || errors.Is(err, docpath.ErrShapeMismatch) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrIncompatible, err)
}

func (c *Coordinator) abort(doc document.Document, out Outcome, err error, gesture uint64) (Outcome, error) {
	c.mu.Lock()
	if c.gesture == gesture {
		c.transitionLocked(StateCancelled)
	}
	c.mu.Unlock()
	applog.WithOperation(c.log, "drop").Warn("drop rejected", slog.Any("err", err))
	out.Result = mutate.Result{Document: doc}
	return out, err
}

// resetLocked drops any pending computation and cached decision.
func (c *Coordinator) resetLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.hover = nil
	c.decision = nil
}

func (c *Coordinator) transitionLocked(s State) {
	c.log.Debug("gesture transition", slog.String("from", c.state.String()), slog.String("to", s.String()), slog.Uint64("gesture", c.gesture))
	c.state = s
}
