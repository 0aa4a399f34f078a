/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package drag

import (
	"errors"
	"sync"
	"testing"
	"time"

	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
	applog "cardbuilder/internal/log"
	"cardbuilder/internal/mutate"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type countingEngine struct {
	inner   *mutate.Engine
	inserts int
	moves   int
}

func (e *countingEngine) Insert(doc document.Document, p docpath.Path, n document.Node, index int) (mutate.Result, error) {
	e.inserts++
	return e.inner.Insert(doc, p, n, index)
}

func (e *countingEngine) Move(doc document.Document, src, dst docpath.Path, index int) (mutate.Result, error) {
	e.moves++
	return e.inner.Move(doc, src, dst, index)
}

func (e *countingEngine) calls() int { return e.inserts + e.moves }

type harness struct {
	clock   *fakeClock
	engine  *countingEngine
	co      *Coordinator
	settled []Decision
}

func newHarness() *harness {
	h := &harness{clock: &fakeClock{}, engine: &countingEngine{inner: mutate.New(mutate.WithLogger(applog.Discard()))}}
	h.co = New(h.engine,
		WithClock(h.clock),
		WithDelay(80*time.Millisecond),
		WithLogger(applog.Discard()),
		WithSettle(func(d Decision) { h.settled = append(h.settled, d) }),
	)
	return h
}

func fixture() document.Document {
	return document.Document{
		Header: &document.Node{ID: "t", Tag: document.TagTitle, Title: "Card"},
		Elements: []document.Node{
			{ID: "a", Tag: document.TagPlainText},
			{ID: "b", Tag: document.TagPlainText},
			{ID: "f", Tag: document.TagForm, Elements: []document.Node{
				{ID: "fs", Tag: document.TagColumnSet, Columns: []document.Node{
					{ID: "fc1", Tag: document.TagColumn, Weight: 1, Elements: []document.Node{{ID: "x", Tag: document.TagHr}}},
					{ID: "fc2", Tag: document.TagColumn, Weight: 1, Elements: []document.Node{
						{ID: "sub", Tag: document.TagButton, ActionType: document.ActionSubmit},
						{ID: "rst", Tag: document.TagButton, ActionType: document.ActionReset},
					}},
				}},
			}},
		},
	}
}

var rootRows = []Rect{R(0, 0, 100, 10), R(0, 10, 100, 10), R(0, 20, 100, 10)}

func fc1() docpath.Path {
	return docpath.Root(2).Child(document.KeyElements).At(0).Child(document.KeyColumns).At(0).Child(document.KeyElements)
}

func ids(nodes []document.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestHoverIsDebounced(t *testing.T) {
	h := newHarness()
	if err := h.co.Begin(NewComponent(document.TagHr)); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i, y := range []float32{1, 6, 14, 16, 24} {
		if err := h.co.Hover(Hover{Target: docpath.Body(), Pointer: Pt{5, y}, Siblings: rootRows}); err != nil {
			t.Fatalf("hover %d: %v", i, err)
		}
		h.clock.Advance(30 * time.Millisecond)
	}
	if len(h.settled) != 0 {
		t.Fatalf("hover settled during movement: %v", h.settled)
	}
	if _, ok := h.co.Decision(); ok {
		t.Fatalf("no decision expected before quiescence")
	}
	h.clock.Advance(50 * time.Millisecond)
	if len(h.settled) != 1 {
		t.Fatalf("expected exactly one computation, got %d", len(h.settled))
	}
	d, ok := h.co.Decision()
	if !ok || d.Index != 2 || !d.Target.Equal(docpath.Body()) {
		t.Fatalf("decision = %+v, %v", d, ok)
	}
	if h.engine.calls() != 0 {
		t.Fatalf("hovering must never call the engine")
	}
	if h.co.State() != StateHovering {
		t.Fatalf("state = %v", h.co.State())
	}
}

func TestDropNewComponentFlushesPendingHover(t *testing.T) {
	h := newHarness()
	doc := fixture()
	_ = h.co.Begin(NewComponent(document.TagButton))
	_ = h.co.Hover(Hover{Target: docpath.Body(), Pointer: Pt{5, 100}, Siblings: rootRows})
	out, err := h.co.Drop(doc)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if out.Kind != DropNewComponent || out.Decision.Index != 3 {
		t.Fatalf("outcome = %+v", out)
	}
	if h.engine.inserts != 1 || h.engine.moves != 0 {
		t.Fatalf("expected one insert, got inserts=%d moves=%d", h.engine.inserts, h.engine.moves)
	}
	els := out.Result.Document.Elements
	if len(els) != 4 || els[3].Tag != document.TagButton {
		t.Fatalf("button not appended: %v", ids(els))
	}
	if h.co.State() != StateDropped {
		t.Fatalf("state = %v", h.co.State())
	}
	if _, ok := h.co.Decision(); ok {
		t.Fatalf("decision must be cleared by the drop")
	}
	// The flushed timer must not fire later.
	h.clock.Advance(time.Second)
	if len(h.settled) != 0 {
		t.Fatalf("stale computation ran after drop")
	}
}

func TestDropClassification(t *testing.T) {
	cases := []struct {
		name     string
		src      docpath.Path
		hover    Hover
		kind     DropKind
		wantRoot []string
		wantFc1  []string
	}{
		{
			name:     "reorder",
			src:      docpath.Root(0),
			hover:    Hover{Target: docpath.Body(), Pointer: Pt{5, 24}, Siblings: rootRows},
			kind:     DropReorder,
			wantRoot: []string{"b", "a", "f"},
			wantFc1:  []string{"x"},
		},
		{
			name:     "cross container",
			src:      docpath.Root(0),
			hover:    Hover{Target: fc1(), Pointer: Pt{5, 0}, Siblings: []Rect{R(0, 0, 50, 10)}},
			kind:     DropCrossContainer,
			wantRoot: []string{"b", "f"},
			wantFc1:  []string{"a", "x"},
		},
		{
			name:     "out of the form",
			src:      fc1().At(0),
			hover:    Hover{Target: docpath.Body(), Pointer: Pt{5, 0}, Siblings: rootRows},
			kind:     DropCrossContainer,
			wantRoot: []string{"x", "a", "b", "f"},
			wantFc1:  []string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			if err := h.co.Begin(Existing(tc.src)); err != nil {
				t.Fatalf("begin: %v", err)
			}
			_ = h.co.Hover(tc.hover)
			h.clock.Advance(100 * time.Millisecond)
			out, err := h.co.Drop(fixture())
			if err != nil {
				t.Fatalf("drop: %v", err)
			}
			if out.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", out.Kind, tc.kind)
			}
			if h.engine.moves != 1 || h.engine.inserts != 0 {
				t.Fatalf("expected one move, got inserts=%d moves=%d", h.engine.inserts, h.engine.moves)
			}
			doc := out.Result.Document
			if diff := cmp.Diff(tc.wantRoot, ids(doc.Elements)); diff != "" {
				t.Fatalf("root mismatch (-want +got):\n%s", diff)
			}
			form := doc.Elements[len(doc.Elements)-1]
			got := ids(form.Elements[0].Columns[0].Elements)
			if diff := cmp.Diff(tc.wantFc1, got, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("first form column mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassificationUsesStructuralEquality(t *testing.T) {
	h := newHarness()
	// Separately built paths with equal content address the same container.
	src, _ := docpath.Parse("dsl.body.elements.1")
	target, _ := docpath.Parse("dsl.body.elements")
	_ = h.co.Begin(Existing(src))
	_ = h.co.Hover(Hover{Target: target, Pointer: Pt{5, 0}, Siblings: rootRows})
	out, err := h.co.Drop(fixture())
	if err != nil || out.Kind != DropReorder {
		t.Fatalf("expected reorder, got %v %v", out.Kind, err)
	}
}

func TestDropRejectionsLeaveTreeUntouched(t *testing.T) {
	cases := []struct {
		name  string
		src   Source
		hover Hover
		want  error
	}{
		{"self drop", Existing(docpath.Root(2)), Hover{Target: docpath.Root(2)}, ErrSelfDrop},
		{"into own subtree", Existing(docpath.Root(2)), Hover{Target: fc1()}, ErrSelfDrop},
		{"column set into form column", NewComponent(document.TagColumnSet), Hover{Target: fc1()}, ErrIncompatible},
		{"second form", NewComponent(document.TagForm), Hover{Target: docpath.Body()}, ErrIncompatible},
		{"leaf among columns", Existing(docpath.Root(0)), Hover{Target: docpath.Root(2).Child(document.KeyElements).At(0).Child(document.KeyColumns)}, ErrIncompatible},
		{"vanished source", Existing(docpath.Root(9)), Hover{Target: docpath.Body()}, docpath.ErrIndexOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			doc := fixture()
			if err := h.co.Begin(tc.src); err != nil {
				t.Fatalf("begin: %v", err)
			}
			_ = h.co.Hover(tc.hover)
			out, err := h.co.Drop(doc)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if h.engine.calls() != 0 {
				t.Fatalf("rejected drop reached the engine")
			}
			if h.co.State() != StateCancelled {
				t.Fatalf("state = %v", h.co.State())
			}
			if diff := cmp.Diff(fixture(), out.Result.Document); diff != "" {
				t.Fatalf("tree changed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestColumnSetIntoFormBodyAllowed(t *testing.T) {
	h := newHarness()
	_ = h.co.Begin(NewComponent(document.TagColumnSet))
	_ = h.co.Hover(Hover{Target: docpath.Root(2).Child(document.KeyElements), Pointer: Pt{0, 100}, Siblings: []Rect{R(0, 0, 10, 10)}})
	out, err := h.co.Drop(fixture())
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if got := out.Result.Document.Elements[2].Elements; len(got) != 2 || got[1].Tag != document.TagColumnSet {
		t.Fatalf("form body = %v", ids(got))
	}
}

func TestEngineFailureCancels(t *testing.T) {
	h := newHarness()
	// The guarded column passes the gate but the engine refuses to remove it.
	guarded := docpath.Root(2).Child(document.KeyElements).At(0).Child(document.KeyColumns).At(1)
	_ = h.co.Begin(Existing(guarded))
	_ = h.co.Hover(Hover{Target: docpath.Root(2).Child(document.KeyElements).At(0).Child(document.KeyColumns), Pointer: Pt{0, 0}, Siblings: []Rect{R(0, 0, 10, 10), R(10, 0, 10, 10)}, Axis: Horizontal})
	out, err := h.co.Drop(fixture())
	if !errors.Is(err, mutate.ErrGuardedColumn) {
		t.Fatalf("expected guarded column refusal, got %v", err)
	}
	if h.engine.moves != 1 || h.co.State() != StateCancelled {
		t.Fatalf("moves=%d state=%v", h.engine.moves, h.co.State())
	}
	if diff := cmp.Diff(fixture(), out.Result.Document); diff != "" {
		t.Fatalf("tree changed (-want +got):\n%s", diff)
	}
}

func TestSpeculativeTargetRecovered(t *testing.T) {
	h := newHarness()
	// The pointer geometry suggested the first root node was the form.
	stale := docpath.Root(0).Child(document.KeyElements)
	_ = h.co.Begin(NewComponent(document.TagHr))
	_ = h.co.Hover(Hover{Target: stale, Pointer: Pt{0, 0}})
	out, err := h.co.Drop(fixture())
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if !out.Result.Recovered || !out.Result.Path.HasPrefix(docpath.Root(2)) {
		t.Fatalf("expected recovery into the form, got %+v", out.Result.Path)
	}
}

func TestCancelInvalidatesDecision(t *testing.T) {
	h := newHarness()
	_ = h.co.Begin(NewComponent(document.TagHr))
	_ = h.co.Hover(Hover{Target: docpath.Body(), Pointer: Pt{5, 0}, Siblings: rootRows})
	h.clock.Advance(100 * time.Millisecond)
	if _, ok := h.co.Decision(); !ok {
		t.Fatalf("expected a settled decision")
	}
	_ = h.co.Hover(Hover{Target: docpath.Body(), Pointer: Pt{5, 25}, Siblings: rootRows})
	h.co.Cancel()
	h.clock.Advance(time.Second)
	if len(h.settled) != 1 {
		t.Fatalf("pending computation survived cancel: %d settles", len(h.settled))
	}
	if _, ok := h.co.Decision(); ok {
		t.Fatalf("decision leaked past cancel")
	}
	if h.co.State() != StateCancelled {
		t.Fatalf("state = %v", h.co.State())
	}

	// The next gesture starts clean: dropping before hovering has no target.
	if err := h.co.Begin(NewComponent(document.TagHr)); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := h.co.Drop(fixture()); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("drop without hover: %v", err)
	}
	if h.engine.calls() != 0 {
		t.Fatalf("engine called after cancel")
	}
}

func TestInvalidTransitions(t *testing.T) {
	h := newHarness()
	if err := h.co.Hover(Hover{Target: docpath.Body()}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("hover while idle: %v", err)
	}
	if err := h.co.Begin(Source{}); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("empty source: %v", err)
	}
	if err := h.co.Begin(Source{Tag: document.TagHr, Path: docpath.Root(0)}); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("ambiguous source: %v", err)
	}
	_ = h.co.Begin(NewComponent(document.TagHr))
	if err := h.co.Begin(NewComponent(document.TagHr)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("begin while dragging: %v", err)
	}
	h.co.Cancel()
	h.co.Cancel()
	if h.co.State() != StateCancelled {
		t.Fatalf("state = %v", h.co.State())
	}
	if _, err := h.co.Drop(fixture()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("drop while cancelled: %v", err)
	}
}

func TestReleaseWithoutHoverCancels(t *testing.T) {
	h := newHarness()
	doc := fixture()
	if err := h.co.Begin(NewComponent(document.TagHr)); err != nil {
		t.Fatalf("begin: %v", err)
	}
	out, err := h.co.Drop(doc)
	if !errors.Is(err, ErrNoTarget) {
		t.Fatalf("drop without hover: %v", err)
	}
	if diff := cmp.Diff(doc, out.Result.Document, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("document changed (-want +got):\n%s", diff)
	}
	if h.co.State() != StateCancelled {
		t.Fatalf("state = %v", h.co.State())
	}
	if err := h.co.Begin(Existing(docpath.Root(0))); err != nil {
		t.Fatalf("begin after release: %v", err)
	}
	if h.engine.calls() != 0 {
		t.Fatalf("engine called for a release without target")
	}
}

func TestLateTimerDoesNotSettleNewerHover(t *testing.T) {
	h := newHarness()
	_ = h.co.Begin(NewComponent(document.TagHr))
	_ = h.co.Hover(Hover{Target: docpath.Body(), Pointer: Pt{5, 1}, Siblings: rootRows})
	// The first timer is already firing when the next hover arrives, so
	// Stop cannot prevent its callback.
	first := h.clock.timers[0]
	h.clock.mu.Lock()
	first.fired = true
	h.clock.mu.Unlock()
	_ = h.co.Hover(Hover{Target: docpath.Body(), Pointer: Pt{5, 24}, Siblings: rootRows})
	first.f()
	if len(h.settled) != 0 {
		t.Fatalf("late timer settled the newer hover: %v", h.settled)
	}
	if _, ok := h.co.Decision(); ok {
		t.Fatalf("no decision expected before the newer hover rests")
	}
	h.clock.Advance(80 * time.Millisecond)
	if len(h.settled) != 1 || h.settled[0].Index != 2 {
		t.Fatalf("settled = %+v", h.settled)
	}
}

func TestRealClockSettles(t *testing.T) {
	done := make(chan Decision, 1)
	co := New(mutate.New(mutate.WithLogger(applog.Discard())),
		WithDelay(time.Millisecond),
		WithLogger(applog.Discard()),
		WithSettle(func(d Decision) { done <- d }),
	)
	_ = co.Begin(NewComponent(document.TagHr))
	_ = co.Hover(Hover{Target: docpath.Body(), Pointer: Pt{0, 100}, Siblings: rootRows})
	select {
	case d := <-done:
		if d.Index != 3 {
			t.Fatalf("index = %d", d.Index)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("hover never settled")
	}
}
