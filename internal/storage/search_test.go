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
	"strings"
	"testing"

	"cardbuilder/internal/document"
)

func TestSearch(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	m := NewManifest("Report", sampleCard())
	other := NewManifest("Other", document.Document{Elements: []document.Node{
		{ID: "o1", Tag: document.TagPlainText, Content: "quarterly outlook"},
	}})
	for _, mm := range []Manifest{m, other} {
		if err := UpdateIndex(ctx, root, mm); err != nil {
			t.Fatalf("UpdateIndex: %v", err)
		}
	}

	res, err := Search(ctx, root, SearchQuery{Text: "quarterly"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 full-text hits, got %+v", res)
	}
	if !strings.Contains(res[0].Snippet, "[") {
		t.Fatalf("expected highlighted snippet, got %q", res[0].Snippet)
	}

	res, err = Search(ctx, root, SearchQuery{Text: "quarterly", DocID: m.ID})
	if err != nil || len(res) != 1 || res[0].NodeID != "p" {
		t.Fatalf("doc filter: %+v err=%v", res, err)
	}

	res, err = Search(ctx, root, SearchQuery{Tags: []document.Tag{document.TagButton}})
	if err != nil || len(res) != 2 {
		t.Fatalf("tag filter: %+v err=%v", res, err)
	}
	for _, r := range res {
		if r.Tag != document.TagButton {
			t.Fatalf("unexpected tag %q", r.Tag)
		}
	}

	res, err = Search(ctx, root, SearchQuery{DocID: m.ID, Limit: 2, Offset: 1})
	if err != nil || len(res) != 2 || res[0].NodeID != "p" {
		t.Fatalf("pagination: %+v err=%v", res, err)
	}

	if _, err := Search(ctx, " ", SearchQuery{}); err == nil {
		t.Fatalf("expected error for blank root")
	}
}

func TestNodeTextJoinsVisibleStrings(t *testing.T) {
	n := document.Node{Tag: document.TagSelectStatic, Name: "size", Placeholder: " pick ", Options: []document.Option{{Text: "Small"}, {Text: "Large"}}}
	if got, want := nodeText(n), "size pick Small Large"; got != want {
		t.Fatalf("nodeText = %q, want %q", got, want)
	}
}
