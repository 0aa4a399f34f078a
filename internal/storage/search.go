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
	"strings"

	"cardbuilder/internal/document"
)

// SearchQuery describes a node catalogue lookup.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Tags restricts results to the given node tags; DocID to one card.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text   string
	Tags   []document.Tag
	DocID  string
	Limit  int
	Offset int
}

// SearchResult is a single matching node.
// Snippet is a highlighted excerpt using [ ] markers when FTS text is used.
type SearchResult struct {
	DocID   string
	NodeID  string
	Tag     document.Tag
	Path    string
	Snippet string
}

// Search looks up nodes in the embedded index. When q.Text is empty it falls
// back to a plain scan over the catalogue with filters applied.
func Search(ctx context.Context, root string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: workspace root is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT n.doc_id, n.node_id, n.tag, n.path, snippet(fts_nodes, 0, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_nodes JOIN nodes n ON fts_nodes.rowid = n.row_id\n")
		sb.WriteString("WHERE fts_nodes MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT n.doc_id, n.node_id, n.tag, n.path, ''\n")
		sb.WriteString("FROM nodes n\nWHERE 1=1\n")
	}
	if len(q.Tags) > 0 {
		sb.WriteString(" AND n.tag IN (" + placeholders(len(q.Tags)) + ")\n")
		for _, t := range q.Tags {
			args = append(args, string(t))
		}
	}
	if s := strings.TrimSpace(q.DocID); s != "" {
		sb.WriteString(" AND n.doc_id = ?\n")
		args = append(args, s)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY n.doc_id, n.row_id\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var (
			r   SearchResult
			tag string
			sn  sql.NullString
		)
		if err := rows.Scan(&r.DocID, &r.NodeID, &tag, &r.Path, &sn); err != nil {
			return nil, fmt.Errorf("storage: scan row: %w", err)
		}
		r.Tag = document.Tag(tag)
		if sn.Valid {
			r.Snippet = sn.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NodePath returns the indexed path of a node, or "" when the index does not know it.
func NodePath(ctx context.Context, root, docID, nodeID string) (string, error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return "", err
	}
	defer db.Close()
	var p string
	err = db.QueryRowContext(ctx, "SELECT path FROM nodes WHERE doc_id = ? AND node_id = ? LIMIT 1", docID, nodeID).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return p, err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
	}
	return b.String()
}
