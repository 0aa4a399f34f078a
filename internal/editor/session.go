/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor owns the live card document. A Session serialises every
// mutation through one lock, hands out immutable snapshots to readers,
// records undo history and keeps the selection pointing at the same node
// across edits.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cardbuilder/internal/config"
	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
	"cardbuilder/internal/drag"
	applog "cardbuilder/internal/log"
	"cardbuilder/internal/mutate"
	"cardbuilder/internal/storage"
	"cardbuilder/internal/undo"
	"github.com/google/uuid"
)

var (
	ErrNoWorkspace = errors.New("editor: session has no workspace")
	ErrNotSelected = errors.New("editor: path does not address a node")
)

// Change is delivered to listeners after every committed edit, undo and redo.
type Change struct {
	Op       string
	Result   mutate.Result
	Revision uint64
}

// Selection tracks a node by id. Path is refreshed after every commit.
type Selection struct {
	NodeID string
	Path   docpath.Path
}

// Option customises a Session.
type Option func(*Session)

// WithEngine replaces the default mutation engine.
func WithEngine(e *mutate.Engine) Option { return func(s *Session) { s.engine = e } }

// WithHistory shares an undo manager, e.g. between sessions of one process.
func WithHistory(m *undo.Manager) Option { return func(s *Session) { s.history = m } }

// WithWorkspace attaches the workspace the document is saved to.
func WithWorkspace(wh *storage.WorkspaceHandle) Option { return func(s *Session) { s.ws = wh } }

// WithIndex enables the SQLite index and snapshot history on save, keeping at
// most keep snapshots per document.
func WithIndex(enabled bool, keep int) Option {
	return func(s *Session) {
		s.index = enabled
		s.keep = keep
	}
}

// WithAutosave saves the workspace after every commit.
func WithAutosave(on bool) Option { return func(s *Session) { s.autosave = on } }

// WithDocumentID sets the id undo history and snapshots are keyed by. It
// defaults to the workspace manifest id.
func WithDocumentID(id string) Option { return func(s *Session) { s.docID = id } }

// WithDragOptions forwards options to the session's drag coordinator.
func WithDragOptions(opts ...drag.Option) Option {
	return func(s *Session) { s.dragOpts = append(s.dragOpts, opts...) }
}

// WithNow injects the clock used for history timestamps.
func WithNow(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

// OptionsFromConfig maps the user configuration onto session options.
func OptionsFromConfig(cfg config.AppConfig) []Option {
	minInterval := cfg.History.MinInterval()
	if minInterval == 0 {
		minInterval = -1
	}
	return []Option{
		WithEngine(mutate.New(
			mutate.WithStrictPaths(cfg.Editor.StrictPaths),
			mutate.WithFallbackRecovery(cfg.Editor.FallbackRecovery),
		)),
		WithHistory(undo.NewManager(undo.Config{
			MaxBytes:       cfg.History.MaxBytes,
			MaxPerDocument: cfg.History.MaxPerDocument,
			MinInterval:    minInterval,
		})),
		WithIndex(cfg.Storage.IndexEnabled, cfg.Storage.KeepSnapshots),
		WithDragOptions(drag.WithDelay(cfg.Editor.HoverDebounce())),
	}
}

// Session is the single owner of a card document.
type Session struct {
	id       string
	docID    string
	engine   *mutate.Engine
	history  *undo.Manager
	ws       *storage.WorkspaceHandle
	index    bool
	keep     int
	autosave bool
	now      func() time.Time
	log      *slog.Logger
	dragOpts []drag.Option
	drag     *drag.Coordinator

	mu        sync.Mutex
	doc       document.Document
	rev       uint64
	dirty     bool
	sel       *Selection
	listeners []func(Change)
}

// New starts a session over doc.
func New(doc document.Document, opts ...Option) *Session {
	s := &Session{id: uuid.NewString(), doc: doc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = applog.WithComponent("editor")
	}
	if s.engine == nil {
		s.engine = mutate.New(mutate.WithLogger(s.log))
	}
	if s.history == nil {
		s.history = undo.NewManager(undo.Config{})
	}
	if s.docID == "" && s.ws != nil {
		s.docID = s.ws.Manifest.ID
	}
	if s.docID == "" {
		s.docID = s.id
	}
	s.log = s.log.With(slog.String("session", s.id), slog.String("doc_id", s.docID))
	s.drag = drag.New(s.engine, append([]drag.Option{drag.WithLogger(s.log)}, s.dragOpts...)...)
	return s
}

// Open loads the workspace at root and starts a session over its card.
func Open(root string, opts ...Option) (*Session, error) {
	wh, err := storage.Open(root)
	if err != nil {
		return nil, err
	}
	for _, is := range wh.Issues {
		applog.WithComponent("editor").Warn("node isolated on open", slog.String("location", is.Location), slog.String("reason", is.Message))
	}
	return New(wh.Manifest.Card, append([]Option{WithWorkspace(wh)}, opts...)...), nil
}

// Create initialises a workspace at root holding an empty card.
func Create(root, name string, opts ...Option) (*Session, error) {
	wh, err := storage.InitWorkspace(root, storage.NewManifest(name, document.Document{}))
	if err != nil {
		return nil, err
	}
	return New(wh.Manifest.Card, append([]Option{WithWorkspace(wh)}, opts...)...), nil
}

// ID is the session id.
func (s *Session) ID() string { return s.id }

// DocumentID is the id history and snapshots are keyed by.
func (s *Session) DocumentID() string { return s.docID }

// Workspace returns the attached workspace, or nil.
func (s *Session) Workspace() *storage.WorkspaceHandle { return s.ws }

// Snapshot returns the current document. Callers must treat it as read-only;
// later edits never modify it.
func (s *Session) Snapshot() document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Revision counts commits since the session started.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// Dirty reports unsaved commits.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// OnChange registers fn to be called after every commit. Listeners run
// outside the session lock and may read Snapshot.
func (s *Session) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Insert places n into the collection at p.
func (s *Session) Insert(p docpath.Path, n document.Node, index int) (mutate.Result, error) {
	return s.apply("insert "+string(n.Tag), func(doc document.Document) (mutate.Result, error) {
		return s.engine.Insert(doc, p, n, index)
	})
}

// InsertComponent inserts the default node for tag.
func (s *Session) InsertComponent(p docpath.Path, tag document.Tag, index int) (mutate.Result, error) {
	n, err := document.NewComponent(tag)
	if err != nil {
		return mutate.Result{Document: s.Snapshot()}, err
	}
	return s.Insert(p, n, index)
}

// InsertAtRoot inserts n at a conceptual root position.
func (s *Session) InsertAtRoot(n document.Node, pos int) (mutate.Result, error) {
	return s.apply("insert "+string(n.Tag), func(doc document.Document) (mutate.Result, error) {
		return s.engine.InsertAtRoot(doc, n, pos)
	})
}

// Remove deletes the node at p.
func (s *Session) Remove(p docpath.Path) (mutate.Result, error) {
	return s.apply("remove", func(doc document.Document) (mutate.Result, error) {
		return s.engine.Remove(doc, p)
	})
}

// Move relocates the node at src into the collection at dst.
func (s *Session) Move(src, dst docpath.Path, index int) (mutate.Result, error) {
	return s.apply("move", func(doc document.Document) (mutate.Result, error) {
		return s.engine.Move(doc, src, dst, index)
	})
}

// MoveToRoot relocates the node at src to a conceptual root position.
func (s *Session) MoveToRoot(src docpath.Path, pos int) (mutate.Result, error) {
	return s.apply("move", func(doc document.Document) (mutate.Result, error) {
		return s.engine.MoveToRoot(doc, src, pos)
	})
}

// Update replaces the node at p.
func (s *Session) Update(p docpath.Path, n document.Node) (mutate.Result, error) {
	return s.apply("update", func(doc document.Document) (mutate.Result, error) {
		return s.engine.Update(doc, p, n)
	})
}

// SetTitle fills the header slot, creating the Title when there is none.
func (s *Session) SetTitle(title, subtitle string) (mutate.Result, error) {
	n, err := document.NewComponent(document.TagTitle)
	if err != nil {
		return mutate.Result{Document: s.Snapshot()}, err
	}
	n.Title, n.Subtitle = title, subtitle
	return s.apply("set title", func(doc document.Document) (mutate.Result, error) {
		return s.engine.Insert(doc, docpath.Body(), n, 0)
	})
}

// Drag returns the coordinator for pointer gestures over this session.
// Begin, Hover and Cancel go to it directly; drops go through Drop.
func (s *Session) Drag() *drag.Coordinator { return s.drag }

// Drop ends the current gesture against the live document and commits the
// resulting mutation.
func (s *Session) Drop() (drag.Outcome, error) {
	var out drag.Outcome
	_, err := s.apply("drop", func(doc document.Document) (mutate.Result, error) {
		var err error
		out, err = s.drag.Drop(doc)
		return out.Result, err
	})
	return out, err
}

func (s *Session) apply(op string, fn func(document.Document) (mutate.Result, error)) (mutate.Result, error) {
	s.mu.Lock()
	before := s.doc
	res, err := fn(before)
	if err != nil || res.NoOp {
		s.mu.Unlock()
		if err != nil {
			res.Document = before
		}
		return res, err
	}
	blob, err := json.Marshal(before)
	if err != nil {
		s.mu.Unlock()
		return mutate.Result{Document: before}, fmt.Errorf("editor: capture undo state: %w", err)
	}
	s.history.Record(undo.Snapshot{DocID: s.docID, Label: op, Blob: blob, TS: s.now()})
	ch := s.commitLocked(op, res)
	saveErr := s.autosaveLocked(op)
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, ch)
	if saveErr != nil {
		return res, saveErr
	}
	return res, nil
}

func (s *Session) commitLocked(op string, res mutate.Result) Change {
	s.doc = res.Document
	s.rev++
	s.dirty = true
	if s.ws != nil {
		s.ws.Manifest.Card = s.doc
	}
	s.revalidateLocked()
	applog.WithOperation(s.log, op).Debug("commit", slog.Uint64("rev", s.rev), slog.String("path", res.Path.String()))
	return Change{Op: op, Result: res, Revision: s.rev}
}

func (s *Session) autosaveLocked(op string) error {
	if !s.autosave || s.ws == nil {
		return nil
	}
	return s.saveLocked(context.Background(), op)
}

func notify(listeners []func(Change), ch Change) {
	for _, fn := range listeners {
		fn(ch)
	}
}

// Undo restores the state before the last recorded edit. It reports false
// when there is nothing to undo.
func (s *Session) Undo() (bool, error) {
	return s.travel("undo", s.history.Undo)
}

// Redo re-applies the last undone edit.
func (s *Session) Redo() (bool, error) {
	return s.travel("redo", s.history.Redo)
}

func (s *Session) travel(op string, step func(string, undo.Snapshot) (undo.Snapshot, bool)) (bool, error) {
	s.mu.Lock()
	blob, err := json.Marshal(s.doc)
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("editor: capture %s state: %w", op, err)
	}
	snap, ok := step(s.docID, undo.Snapshot{Blob: blob, TS: s.now()})
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	var doc document.Document
	if err := json.Unmarshal(snap.Blob, &doc); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("editor: restore %s state: %w", op, err)
	}
	ch := s.commitLocked(op+" "+snap.Label, mutate.Result{Document: doc})
	saveErr := s.autosaveLocked(op)
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, ch)
	return true, saveErr
}

// CanUndo reports whether an undo step exists.
func (s *Session) CanUndo() bool { return s.history.CanUndo(s.docID) }

// CanRedo reports whether a redo step exists.
func (s *Session) CanRedo() bool { return s.history.CanRedo(s.docID) }

// History lists the labels of the undoable edits, oldest first.
func (s *Session) History() []string { return s.history.History(s.docID) }

// Select marks the node at p. The path is resolved strictly.
func (s *Session) Select(p docpath.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := docpath.Revalidate(s.doc, p)
	if !ok || (res.Kind != docpath.KindNode && res.Kind != docpath.KindHeader) {
		return fmt.Errorf("%w: %s", ErrNotSelected, p)
	}
	s.sel = &Selection{NodeID: res.Node.ID, Path: res.Path}
	return nil
}

// SelectID marks the node with the given id.
func (s *Session) SelectID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := docpath.Locate(s.doc, id)
	if !ok {
		return fmt.Errorf("%w: no node with id %q", ErrNotSelected, id)
	}
	s.sel = &Selection{NodeID: id, Path: p}
	return nil
}

// Selection returns the current selection.
func (s *Session) Selection() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel == nil {
		return Selection{}, false
	}
	return Selection{NodeID: s.sel.NodeID, Path: s.sel.Path.Clone()}, true
}

// ClearSelection drops the selection.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel = nil
}

// revalidateLocked keeps the selection on the same node: the old path is
// kept when it still addresses that node, otherwise the node is located by
// id, and the selection is cleared when the node is gone.
func (s *Session) revalidateLocked() {
	if s.sel == nil {
		return
	}
	if res, ok := docpath.Revalidate(s.doc, s.sel.Path); ok && res.Node.ID == s.sel.NodeID {
		return
	}
	if p, ok := docpath.Locate(s.doc, s.sel.NodeID); ok {
		s.sel.Path = p
		return
	}
	s.log.Debug("selection cleared", slog.String("node_id", s.sel.NodeID))
	s.sel = nil
}

// Save writes the card to the workspace. With the index enabled the node
// catalogue is refreshed and a snapshot is appended to the history; index
// failures are logged and do not fail the save.
func (s *Session) Save(ctx context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ws == nil {
		return ErrNoWorkspace
	}
	return s.saveLocked(ctx, label)
}

func (s *Session) saveLocked(ctx context.Context, label string) error {
	s.ws.Manifest.Card = s.doc
	if err := storage.Save(s.ws); err != nil {
		return err
	}
	s.dirty = false
	if !s.index {
		return nil
	}
	l := applog.WithOperation(s.log, "save")
	if err := storage.UpdateIndex(ctx, s.ws.Root, s.ws.Manifest); err != nil {
		l.Warn("index update failed", slog.Any("err", err))
		return nil
	}
	blob, err := json.Marshal(s.doc)
	if err != nil {
		l.Warn("snapshot encode failed", slog.Any("err", err))
		return nil
	}
	if err := storage.SaveSnapshot(ctx, s.ws, s.docID, label, blob, s.now()); err != nil {
		l.Warn("snapshot save failed", slog.Any("err", err))
		return nil
	}
	if n, err := storage.PruneOldSnapshots(ctx, s.ws, s.docID, s.keep); err != nil {
		l.Warn("snapshot prune failed", slog.Any("err", err))
	} else if n > 0 {
		l.Debug("snapshots pruned", slog.Int64("count", n))
	}
	return nil
}

// Restore replaces the document with the latest snapshot in the index
// history. The replacement is recorded as an undoable edit.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	if s.ws == nil {
		return false, ErrNoWorkspace
	}
	snap, ok, err := storage.GetLatestSnapshot(ctx, s.ws, s.docID)
	if err != nil || !ok {
		return false, err
	}
	doc, _, err := document.Decode(snap.Blob)
	if err != nil {
		return false, err
	}
	if _, err := s.apply("restore "+snap.Label, func(document.Document) (mutate.Result, error) {
		return mutate.Result{Document: doc}, nil
	}); err != nil {
		return false, err
	}
	return true, nil
}
