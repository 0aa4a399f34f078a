/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
	applog "cardbuilder/internal/log"
	"cardbuilder/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName stores all per-workspace ephemeral/index data under the workspace root.
	IndexDirName  = ".cardbuilder"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema for the embedded index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// IndexPath returns the full path to the workspace's embedded index database file.
func IndexPath(root string) string {
	return filepath.Join(root, IndexDirName, IndexFileName)
}

// InitOrOpenIndex ensures that the per-workspace SQLite index exists at .cardbuilder/index.sqlite,
// opens the database, enables WAL mode, and ensures the meta/version tables exist.
// The returned *sql.DB is ready for use. Callers may close it when no longer needed.
func InitOrOpenIndex(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: workspace root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, IndexDirName), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("storage: create index dir: %w", err)
	}

	path := IndexPath(root)
	// Use a URI with shared cache and set busy timeout. Convert to forward slashes for SQLite URI.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("storage: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("storage: create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("storage: insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("storage: read version: %w", err)
	default:
		// Update app and timestamp only; keep existing schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("storage: update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("storage: read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Never downgrade.
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// Snapshots gained an edit label.
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("storage: begin migration %d: %w", next, err)
			}
			if !columnExists(ctx, tx, "snapshots", "label") {
				if _, err := tx.ExecContext(ctx, `ALTER TABLE snapshots ADD COLUMN label TEXT NOT NULL DEFAULT '';`); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("storage: migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("storage: migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("storage: migration %d commit: %w", next, err)
			}
		default:
			// Unknown future step
		}
		cur = next
	}
	return nil
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) bool {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	return err == nil && n > 0
}

// ensureIndexSchema creates core index tables and FTS structures if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// One row per card.
		`CREATE TABLE IF NOT EXISTS documents (
			doc_id     TEXT    PRIMARY KEY,
			name       TEXT    NOT NULL,
			root       TEXT    NOT NULL,
			node_count INTEGER NOT NULL,
			has_title  INTEGER NOT NULL,
			has_form   INTEGER NOT NULL,
			updated_at TEXT    NOT NULL
		);`,
		// Node catalogue: every node of every card with its current path.
		`CREATE TABLE IF NOT EXISTS nodes (
			row_id  INTEGER PRIMARY KEY,
			doc_id  TEXT NOT NULL,
			node_id TEXT NOT NULL,
			tag     TEXT NOT NULL,
			path    TEXT NOT NULL,
			depth   INTEGER NOT NULL,
			text    TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_doc_node ON nodes(doc_id, node_id);`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_tag ON nodes(tag);`,

		// Contentless FTS5 index fed from nodes via triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_nodes USING fts5(
			text,
			content='',
			tokenize = 'unicode61'
		);`,

		// Snapshots (history of card states)
		`CREATE TABLE IF NOT EXISTS snapshots (
			id      INTEGER PRIMARY KEY,
			doc_id  TEXT    NOT NULL,
			ts      TEXT    NOT NULL,
			label   TEXT    NOT NULL DEFAULT '',
			blob    BLOB    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_doc_ts ON snapshots(doc_id, ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("storage: ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS nodes_ai AFTER INSERT ON nodes BEGIN
			INSERT INTO fts_nodes(rowid, text) VALUES (new.row_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS nodes_ad AFTER DELETE ON nodes BEGIN
			INSERT INTO fts_nodes(fts_nodes, rowid, text) VALUES ('delete', old.row_id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS nodes_au AFTER UPDATE OF text ON nodes BEGIN
			INSERT INTO fts_nodes(fts_nodes, rowid, text) VALUES ('delete', old.row_id, old.text);
			INSERT INTO fts_nodes(rowid, text) VALUES (new.row_id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("storage: ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks for corruption or missing schema and rebuilds the index if needed.
// It returns true when a rebuild was performed.
func DetectAndRebuildIndex(ctx context.Context, root string, m Manifest) (bool, error) {
	path := IndexPath(root)
	db, err := InitOrOpenIndex(root)
	if err != nil {
		backupIndexFile(path)
		_ = os.Remove(path)
		if rbErr := RebuildIndex(ctx, root, m); rbErr != nil {
			return false, fmt.Errorf("storage: rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM nodes LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	_ = os.Remove(path)
	if err := RebuildIndex(ctx, root, m); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the current index file into a timestamped backup in .cardbuilder/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

// UpdateIndex replaces the catalogue rows of the manifest's card.
func UpdateIndex(ctx context.Context, root string, m Manifest) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	return indexManifest(ctx, db, root, m)
}

// RebuildIndex drops and recreates the node catalogue and rebuilds it from the manifest.
// Meta/version tables and the snapshot history are preserved.
func RebuildIndex(ctx context.Context, root string, m Manifest) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	drops := []string{
		"DROP TRIGGER IF EXISTS nodes_ai;",
		"DROP TRIGGER IF EXISTS nodes_ad;",
		"DROP TRIGGER IF EXISTS nodes_au;",
		"DROP TABLE IF EXISTS nodes;",
		"DROP TABLE IF EXISTS fts_nodes;",
		"DROP TABLE IF EXISTS documents;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("storage: drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: drop commit: %w", err)
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		return err
	}
	return indexManifest(ctx, db, root, m)
}

type nodeRow struct {
	nodeID string
	tag    document.Tag
	path   string
	depth  int
	text   string
}

// nodeRows lists the header and every body node of card in pre-order.
func nodeRows(card document.Document) []nodeRow {
	rows := make([]nodeRow, 0, 32)
	if card.Header != nil {
		rows = append(rows, nodeRow{nodeID: card.Header.ID, tag: card.Header.Tag, path: docpath.Header().String(), depth: 0, text: nodeText(*card.Header)})
	}
	var walk func(items []document.Node, at docpath.Path)
	walk = func(items []document.Node, at docpath.Path) {
		for i, n := range items {
			p := at.At(i)
			rows = append(rows, nodeRow{nodeID: n.ID, tag: n.Tag, path: p.String(), depth: p.Depth(), text: nodeText(n)})
			if key := n.Tag.ChildKey(); key != "" {
				children, _ := n.Children(key)
				walk(children, p.Child(key))
			}
		}
	}
	walk(card.Elements, docpath.Body())
	return rows
}

// nodeText joins the user-visible strings of a node for full-text search.
func nodeText(n document.Node) string {
	parts := []string{n.Title, n.Subtitle, n.Name, n.Content, n.Label, n.Placeholder, n.Alt, n.Text}
	for _, o := range n.Options {
		parts = append(parts, o.Text)
	}
	kept := parts[:0]
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, " ")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// indexManifest replaces the document row and node rows of m's card in one transaction.
func indexManifest(ctx context.Context, db *sql.DB, root string, m Manifest) error {
	if m.ID == "" {
		return errors.New("storage: manifest has no id")
	}
	rows := nodeRows(m.Card)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents(doc_id, name, root, node_count, has_title, has_form, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(doc_id) DO UPDATE SET name=excluded.name, root=excluded.root, node_count=excluded.node_count,
			has_title=excluded.has_title, has_form=excluded.has_form, updated_at=excluded.updated_at;`,
		m.ID, m.Name, root, len(rows), boolInt(m.Card.HasTitle()), boolInt(m.Card.Count(document.TagForm) > 0),
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("storage: upsert document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE doc_id = ?;", m.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("storage: clear nodes: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, "INSERT INTO nodes(doc_id, node_id, tag, path, depth, text) VALUES(?,?,?,?,?,?);")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("storage: prepare insert: %w", err)
	}
	defer ins.Close()
	for _, r := range rows {
		if _, err := ins.ExecContext(ctx, m.ID, r.nodeID, string(r.tag), r.path, r.depth, r.text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("storage: insert node: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}
