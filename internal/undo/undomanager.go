/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps per-document undo/redo stacks of serialised document
// states. Entries are the state *before* an edit: undoing swaps the caller's
// current state onto the redo stack and hands back the recorded one.
package undo

import (
	"sync"
	"time"
)

// Snapshot is a reversible document state.
// Blob content is opaque to the manager; size is estimated as len(Blob).
// TS is when the snapshot was captured, Label names the edit that followed it.
type Snapshot struct {
	DocID string
	Label string
	Blob  []byte
	TS    time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; older entries are pruned when exceeded.
	MaxBytes int
	// MaxPerDocument limits number of snapshots per document kept in memory (0 means unlimited).
	MaxPerDocument int
	// MinInterval coalesces edits recorded within the interval for the same
	// document: the earlier pre-edit state is kept so the burst undoes as one step.
	// A negative value disables coalescing.
	MinInterval time.Duration
}

// Manager provides an in-memory undo/redo stack per document with performance safeguards.
// It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex
	// per-document stacks
	undo map[string][]Snapshot
	redo map[string][]Snapshot
	// accounting, undo and redo entries combined
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	// Set conservative defaults if not provided
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024 // 16 MiB
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// Record stores the state a document had before an edit. Within MinInterval of
// the previous record the new one is dropped. Any record clears the redo stack.
// It reports whether a new undo step was created.
func (m *Manager) Record(s Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropRedoLocked(s.DocID)
	stack := m.undo[s.DocID]
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 {
		if s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
			// Coalesce: refresh the timestamp so a steady burst stays one step.
			stack[n-1].TS = s.TS
			return false
		}
	}
	m.undo[s.DocID] = append(stack, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked(s.DocID)
	return true
}

// Undo pops the last recorded state of docID and pushes current onto the redo stack.
func (m *Manager) Undo(docID string, current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[docID]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[docID] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Blob)
	current.DocID = docID
	current.Label = s.Label
	m.redo[docID] = append(m.redo[docID], current)
	m.totalBytes += len(current.Blob)
	return s, true
}

// Redo pops the redo stack of docID and pushes current back onto the undo stack.
func (m *Manager) Redo(docID string, current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[docID]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[docID] = r[:len(r)-1]
	m.totalBytes -= len(s.Blob)
	current.DocID = docID
	current.Label = s.Label
	m.undo[docID] = append(m.undo[docID], current)
	m.totalBytes += len(current.Blob)
	m.enforceCapsLocked(docID)
	return s, true
}

// CanUndo reports whether docID has a recorded state.
func (m *Manager) CanUndo(docID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[docID]) > 0
}

// CanRedo reports whether docID has an undone state to reapply.
func (m *Manager) CanRedo(docID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[docID]) > 0
}

// History returns the labels of the undo stack of docID, oldest first.
func (m *Manager) History(docID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.undo[docID]))
	for _, s := range m.undo[docID] {
		out = append(out, s.Label)
	}
	return out
}

// Clear clears undo/redo stacks for a document to free memory.
func (m *Manager) Clear(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[docID] {
		m.totalBytes -= len(s.Blob)
	}
	m.dropRedoLocked(docID)
	delete(m.undo, docID)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, documents int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	documents = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, documents, totalSnapshots
}

func (m *Manager) dropRedoLocked(docID string) {
	for _, s := range m.redo[docID] {
		m.totalBytes -= len(s.Blob)
	}
	delete(m.redo, docID)
}

func (m *Manager) enforceCapsLocked(docID string) {
	// Per-document depth cap
	if m.cfg.MaxPerDocument > 0 {
		stack := m.undo[docID]
		if len(stack) > m.cfg.MaxPerDocument {
			// drop the oldest extras
			toDrop := len(stack) - m.cfg.MaxPerDocument
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= len(stack[i].Blob)
			}
			m.undo[docID] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// Global memory cap: prune oldest undo entries across all documents
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		oldestDoc := ""
		found := false
		var oldestTS time.Time
		for id, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestDoc = id
				found = true
				oldestTS = stack[0].TS
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestDoc]
		m.totalBytes -= len(stack[0].Blob)
		m.undo[oldestDoc] = stack[1:]
		if len(m.undo[oldestDoc]) == 0 {
			delete(m.undo, oldestDoc)
		}
	}
}
