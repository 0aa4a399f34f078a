/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mutate

import (
	"errors"
	"testing"

	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
	"github.com/google/go-cmp/cmp"
)

func TestUpdateReplacesNode(t *testing.T) {
	e := newEngine()
	doc := richDoc()
	changed := leaf("a", document.TagPlainText)
	changed.Content = "updated"
	res, err := e.Update(doc, docpath.Root(0), changed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Document.Elements[0].Content != "updated" || doc.Elements[0].Content != "" {
		t.Fatalf("update must produce a new tree and leave the input alone")
	}

	// Replacing the form with a form is not a duplicate.
	f2 := form("f2", leaf("only", document.TagHr))
	res, err = e.Update(doc, docpath.Root(1), f2)
	if err != nil || res.Document.Elements[1].ID != "f2" || res.Document.Count(document.TagForm) != 1 {
		t.Fatalf("form replacement: %v", err)
	}
}

func TestUpdateHeader(t *testing.T) {
	e := newEngine()
	res, err := e.Update(richDoc(), docpath.Header(), document.Node{ID: "t9", Tag: document.TagTitle, Title: "New"})
	if err != nil || res.Document.Header.ID != "t9" || res.Document.Header.Title != "New" {
		t.Fatalf("header update: %+v %v", res.Document.Header, err)
	}
	if _, err := e.Update(richDoc(), docpath.Header(), leaf("x", document.TagHr)); !errors.Is(err, ErrTitlePosition) {
		t.Fatalf("non-title header must fail, got %v", err)
	}
}

func TestUpdateRejections(t *testing.T) {
	e := newEngine()
	cases := []struct {
		name string
		p    docpath.Path
		n    document.Node
		want error
		kind Kind
	}{
		{"form inside form column", formCol(0).At(1), form("g", leaf("g1", document.TagHr)), ErrFormNesting, KindInvariantViolation},
		{"form inside form body", docpath.Root(1).Child(document.KeyElements).At(0), form("g", leaf("g1", document.TagHr)), ErrFormNesting, KindInvariantViolation},
		{"second form at root", docpath.Root(0), form("g", leaf("g1", document.TagHr)), ErrDuplicateForm, KindInvariantViolation},
		{"title in body", docpath.Root(0), *title("t2", "x"), ErrTitlePosition, KindInvariantViolation},
		{"leaf over column", docpath.Root(3).Child(document.KeyColumns).At(0), leaf("x", document.TagHr), ErrIncompatibleTarget, KindInvariantViolation},
		{"missing tag", docpath.Root(0), document.Node{ID: "x"}, ErrInvalidNodeShape, KindInvalidNodeShape},
		{"collection path", docpath.Body(), leaf("x", document.TagHr), ErrNotANode, KindPathResolution},
		{"shape mismatch", docpath.Root(0).Child(document.KeyElements).At(0), leaf("x", document.TagHr), docpath.ErrShapeMismatch, KindPathResolution},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Update(richDoc(), tc.p, tc.n)
			if !errors.Is(err, tc.want) || KindOf(err) != tc.kind {
				t.Fatalf("got %v (kind %v), want %v (kind %v)", err, KindOf(err), tc.want, tc.kind)
			}
			if diff := cmp.Diff(richDoc(), res.Document, treeOpts); diff != "" {
				t.Fatalf("rejected update changed the tree (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUpdateClearsRequiredOutsideForms(t *testing.T) {
	e := newEngine()
	res, err := e.Update(richDoc(), docpath.Root(0), input("a", true))
	if err != nil || res.Document.Elements[0].Required {
		t.Fatalf("required must be cleared at the root (err=%v)", err)
	}
	res, err = e.Update(richDoc(), formCol(0).At(0), input("in1", true))
	if err != nil || !res.Document.Elements[1].Elements[1].Columns[0].Elements[0].Required {
		t.Fatalf("required must survive inside the form (err=%v)", err)
	}
}
