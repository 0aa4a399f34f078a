/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mutate

import (
	"testing"

	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
	applog "cardbuilder/internal/log"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var treeOpts = cmp.Options{cmpopts.EquateEmpty(), cmpopts.EquateApprox(0, 1e-9)}

func newEngine(opts ...Option) *Engine {
	return New(append([]Option{WithLogger(applog.Discard())}, opts...)...)
}

func leaf(id string, tag document.Tag) document.Node {
	return document.Node{ID: id, Tag: tag, Text: id}
}

func input(id string, required bool) document.Node {
	return document.Node{ID: id, Tag: document.TagInput, Name: id, Required: required}
}

func col(id string, w float64, children ...document.Node) document.Node {
	return document.Node{ID: id, Tag: document.TagColumn, Width: document.WidthWeighted, Weight: w, Elements: children}
}

func set(id string, cols ...document.Node) document.Node {
	return document.Node{ID: id, Tag: document.TagColumnSet, Columns: cols}
}

func form(id string, children ...document.Node) document.Node {
	return document.Node{ID: id, Tag: document.TagForm, Name: id, Elements: children}
}

func reset(id string) document.Node {
	return document.Node{ID: id, Tag: document.TagButton, Text: "Cancel", ActionType: document.ActionReset}
}

func submit(id string) document.Node {
	return document.Node{ID: id, Tag: document.TagButton, Text: "Submit", ActionType: document.ActionSubmit}
}

func title(id, text string) *document.Node {
	return &document.Node{ID: id, Tag: document.TagTitle, Title: text}
}

// richDoc has a title, leaves at the root, a form with a two-column layout
// and a root column set.
func richDoc() document.Document {
	return document.Document{
		Header: title("t", "Card"),
		Elements: []document.Node{
			leaf("a", document.TagPlainText),
			form("f",
				leaf("fa", document.TagPlainText),
				set("fs",
					col("fc1", 1, input("in1", true), leaf("fx", document.TagHr)),
					col("fc2", 2, submit("sub"), reset("rst")),
				),
			),
			leaf("b", document.TagPlainText),
			set("s",
				col("c1", 1, leaf("c1a", document.TagPlainText)),
				col("c2", 1),
				col("c3", 2, leaf("c3a", document.TagImage), leaf("c3b", document.TagButton)),
			),
		},
	}
}

func ids(nodes []document.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

// collectionPaths lists the root list and every container collection.
func collectionPaths(doc document.Document) []docpath.Path {
	out := []docpath.Path{docpath.Body()}
	var walk func(items []document.Node, at docpath.Path)
	walk = func(items []document.Node, at docpath.Path) {
		for i, n := range items {
			key := n.Tag.ChildKey()
			if key == "" {
				continue
			}
			cp := at.At(i).Child(key)
			out = append(out, cp)
			children, _ := n.Children(key)
			walk(children, cp)
		}
	}
	walk(doc.Elements, docpath.Body())
	return out
}

// nodePaths lists the path of every body node in pre-order.
func nodePaths(doc document.Document) []docpath.Path {
	var out []docpath.Path
	var walk func(items []document.Node, at docpath.Path)
	walk = func(items []document.Node, at docpath.Path) {
		for i, n := range items {
			out = append(out, at.At(i))
			key := n.Tag.ChildKey()
			if key == "" {
				continue
			}
			children, _ := n.Children(key)
			walk(children, at.At(i).Child(key))
		}
	}
	walk(doc.Elements, docpath.Body())
	return out
}

func mustResolve(t *testing.T, doc document.Document, p docpath.Path) document.Node {
	t.Helper()
	res, err := docpath.Resolve(doc, p, docpath.Options{Strict: true})
	if err != nil {
		t.Fatalf("resolve %s: %v", p, err)
	}
	return res.Node
}
