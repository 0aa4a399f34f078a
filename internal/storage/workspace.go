/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cardbuilder/internal/document"
	"github.com/google/uuid"
)

const (
	ManifestFileName = "card.json"
	BackupsDirName   = "backups"

	// manifestFormat is bumped when the manifest envelope changes shape.
	manifestFormat = 1
)

// Standard subfolders of a workspace.
var standardSubDirs = []string{
	"assets",
	"exports",
	BackupsDirName,
}

// Manifest is the in-memory form of card.json.
type Manifest struct {
	Format    int
	ID        string
	Name      string
	UpdatedAt time.Time
	Card      document.Document
}

type manifestWire struct {
	Format    int             `json:"format"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UpdatedAt time.Time       `json:"updated_at"`
	Card      json.RawMessage `json:"card"`
}

// NewManifest returns a manifest with a fresh card id.
func NewManifest(name string, card document.Document) Manifest {
	return Manifest{Format: manifestFormat, ID: uuid.NewString(), Name: name, Card: card}
}

// WorkspaceHandle keeps track of the workspace state loaded/saved from disk.
// Root is the workspace directory containing card.json and subfolders.
// Issues lists the nodes isolated while decoding the card on Open.
type WorkspaceHandle struct {
	Root         string
	ManifestPath string
	Manifest     Manifest
	Issues       []document.ShapeIssue
}

// InitWorkspace creates a new workspace directory at root (creating it if it doesn't exist),
// scaffolds the standard subfolders, and writes the given manifest file transactionally.
func InitWorkspace(root string, m Manifest) (*WorkspaceHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: root path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create workspace root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create subdir %s: %w", d, err)
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	wh := &WorkspaceHandle{
		Root:         root,
		ManifestPath: filepath.Join(root, ManifestFileName),
		Manifest:     m,
	}
	if err := Save(wh); err != nil {
		return nil, err
	}
	return wh, nil
}

// Open loads an existing workspace from the given root directory.
// If the current manifest cannot be read or parsed, it will attempt the latest backup.
func Open(root string) (*WorkspaceHandle, error) {
	mpath := filepath.Join(root, ManifestFileName)
	b, err := os.ReadFile(mpath)
	if err != nil {
		m, issues, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, fmt.Errorf("storage: open manifest: %w; backup attempt: %v", err, berr)
		}
		return &WorkspaceHandle{Root: root, ManifestPath: mpath, Manifest: m, Issues: issues}, nil
	}
	m, issues, derr := decodeManifest(b)
	if derr != nil {
		m, issues, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, fmt.Errorf("storage: parse manifest: %w; backup attempt: %v", derr, berr)
		}
		return &WorkspaceHandle{Root: root, ManifestPath: mpath, Manifest: m, Issues: issues}, nil
	}
	return &WorkspaceHandle{Root: root, ManifestPath: mpath, Manifest: m, Issues: issues}, nil
}

// Save writes the current WorkspaceHandle.Manifest to disk with transactional semantics
// and a timestamped backup of the previous manifest (if present).
func Save(wh *WorkspaceHandle) error {
	if wh == nil {
		return errors.New("storage: nil WorkspaceHandle")
	}
	if wh.Root == "" || wh.ManifestPath == "" {
		return errors.New("storage: invalid WorkspaceHandle: missing paths")
	}
	wh.Manifest.Format = manifestFormat
	wh.Manifest.UpdatedAt = time.Now().UTC()
	data, err := encodeManifest(wh.Manifest)
	if err != nil {
		return err
	}

	bdir := filepath.Join(wh.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("storage: ensure backups dir: %w", err)
	}

	// If a current manifest exists, copy it to a timestamped backup before replacing
	if _, statErr := os.Stat(wh.ManifestPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405")
		bname := fmt.Sprintf("%s.%s.bak", ManifestFileName, stamp)
		if cerr := copyFile(wh.ManifestPath, filepath.Join(bdir, bname)); cerr != nil {
			return fmt.Errorf("storage: backup current manifest: %w", cerr)
		}
	}

	// Transactional write: to temp file in same directory, then rename over target
	dir := filepath.Dir(wh.ManifestPath)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", ManifestFileName, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("storage: write temp manifest: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(wh.ManifestPath); err == nil {
		_ = os.Remove(wh.ManifestPath)
	}
	if rerr := os.Rename(temp, wh.ManifestPath); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("storage: replace manifest: %w", rerr)
	}
	return nil
}

// SaveAs writes the manifest to a new root folder, scaffolding structure if needed, and updates the handle.
func SaveAs(wh *WorkspaceHandle, newRoot string) error {
	if wh == nil {
		return errors.New("storage: nil WorkspaceHandle")
	}
	if newRoot == "" {
		return errors.New("storage: new root is empty")
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(newRoot, d), 0o755); err != nil {
			return fmt.Errorf("storage: create subdir %s: %w", d, err)
		}
	}
	wh.Root = newRoot
	wh.ManifestPath = filepath.Join(newRoot, ManifestFileName)
	return Save(wh)
}

func encodeManifest(m Manifest) ([]byte, error) {
	card, err := json.Marshal(m.Card)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal card: %w", err)
	}
	data, err := json.MarshalIndent(manifestWire{
		Format:    m.Format,
		ID:        m.ID,
		Name:      m.Name,
		UpdatedAt: m.UpdatedAt,
		Card:      card,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("storage: marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// decodeManifest parses card.json. The card itself goes through
// document.Decode, so malformed nodes are isolated rather than fatal.
func decodeManifest(b []byte) (Manifest, []document.ShapeIssue, error) {
	var w manifestWire
	if err := json.Unmarshal(b, &w); err != nil {
		return Manifest{}, nil, err
	}
	if len(w.Card) == 0 {
		return Manifest{}, nil, errors.New("manifest has no card")
	}
	card, issues, err := document.Decode(w.Card)
	if err != nil {
		return Manifest{}, nil, err
	}
	return Manifest{Format: w.Format, ID: w.ID, Name: w.Name, UpdatedAt: w.UpdatedAt, Card: card}, issues, nil
}

// AutosaveCrashSnapshot writes the in-memory manifest next to the backups
// without touching card.json, so a crash never replaces the last good save.
func AutosaveCrashSnapshot(wh *WorkspaceHandle) (string, error) {
	if wh == nil || wh.Root == "" {
		return "", errors.New("storage: invalid WorkspaceHandle")
	}
	data, err := encodeManifest(wh.Manifest)
	if err != nil {
		return "", err
	}
	bdir := filepath.Join(wh.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure backups dir: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(bdir, fmt.Sprintf("%s.%s.crash", ManifestFileName, stamp))
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("storage: write crash snapshot: %w", err)
	}
	return path, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// Backups lists the manifest backups of a workspace, oldest first.
func Backups(root string) ([]string, error) {
	bdir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("storage: read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

// openFromLatestBackup tries to open the latest timestamped backup.
func openFromLatestBackup(root string) (Manifest, []document.ShapeIssue, error) {
	candidates, err := Backups(root)
	if err != nil {
		return Manifest{}, nil, err
	}
	if len(candidates) == 0 {
		return Manifest{}, nil, errors.New("no backups found")
	}
	latest := candidates[len(candidates)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("read latest backup: %w", err)
	}
	m, issues, err := decodeManifest(b)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("parse latest backup: %w", err)
	}
	return m, issues, nil
}
