/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// language=SQL
// dialect=SQLite
const insertSnapshotSQL = `INSERT INTO snapshots(doc_id, ts, label, blob) VALUES (?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestSnapshotSQL = `SELECT ts, label, blob FROM snapshots WHERE doc_id = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listSnapshotsSQL = `SELECT ts, label, blob FROM snapshots WHERE doc_id = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldSnapshotsSQL = `DELETE FROM snapshots WHERE doc_id = ? AND id NOT IN (
	SELECT id FROM snapshots WHERE doc_id = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// tsLayout is fixed-width so that timestamps sort lexicographically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Snapshot is one persisted card state.
type Snapshot struct {
	TS    time.Time
	Label string
	Blob  []byte
}

// SaveSnapshot persists an encoded card state with a timestamp and edit label.
func SaveSnapshot(ctx context.Context, wh *WorkspaceHandle, docID, label string, blob []byte, ts time.Time) error {
	if wh == nil {
		return errors.New("storage: nil WorkspaceHandle")
	}
	db, err := InitOrOpenIndex(wh.Root)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	_, err = db.ExecContext(ctx, insertSnapshotSQL, docID, ts.UTC().Format(tsLayout), label, blob)
	return err
}

// GetLatestSnapshot returns the latest snapshot of a card; ok is false when there is none.
func GetLatestSnapshot(ctx context.Context, wh *WorkspaceHandle, docID string) (s Snapshot, ok bool, err error) {
	if wh == nil {
		return Snapshot{}, false, errors.New("storage: nil WorkspaceHandle")
	}
	db, err := InitOrOpenIndex(wh.Root)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer func() { _ = db.Close() }()
	var tsStr string
	err = db.QueryRowContext(ctx, selectLatestSnapshotSQL, docID).Scan(&tsStr, &s.Label, &s.Blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	s.TS, _ = time.Parse(tsLayout, tsStr) // keep the blob even if ts parse fails
	return s, true, nil
}

// ListSnapshots returns up to limit most recent snapshots of a card, newest first.
func ListSnapshots(ctx context.Context, wh *WorkspaceHandle, docID string, limit int) ([]Snapshot, error) {
	if wh == nil {
		return nil, errors.New("storage: nil WorkspaceHandle")
	}
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(wh.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listSnapshotsSQL, docID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		var (
			tsStr string
			s     Snapshot
		)
		if err := rows.Scan(&tsStr, &s.Label, &s.Blob); err != nil {
			return nil, err
		}
		s.TS, _ = time.Parse(tsLayout, tsStr)
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneOldSnapshots keeps at most keepLast snapshots of the card and deletes older ones.
func PruneOldSnapshots(ctx context.Context, wh *WorkspaceHandle, docID string, keepLast int) (int64, error) {
	if wh == nil {
		return 0, errors.New("storage: nil WorkspaceHandle")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenIndex(wh.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, pruneOldSnapshotsSQL, docID, docID, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
