/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mutate

import (
	"math"
	"math/rand"
	"testing"

	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestPropertyNoOpMoveIdempotence(t *testing.T) {
	e := newEngine()
	doc := richDoc()
	for _, p := range nodePaths(doc) {
		coll, idx, _ := p.Split()
		for _, at := range []int{idx, idx + 1} {
			res, err := e.Move(doc, p, coll, at)
			if err != nil {
				t.Fatalf("move %s to %s[%d]: %v", p, coll, at, err)
			}
			if diff := cmp.Diff(doc, res.Document, treeOpts); diff != "" {
				t.Fatalf("move %s to its own slot changed the tree (-want +got):\n%s", p, diff)
			}
		}
	}
}

func TestPropertyInsertRemoveRoundTrip(t *testing.T) {
	e := newEngine()
	doc := richDoc()
	for _, coll := range collectionPaths(doc) {
		res, err := docpath.Resolve(doc, coll, docpath.Options{Strict: true})
		if err != nil {
			t.Fatalf("resolve %s: %v", coll, err)
		}
		n := leaf("fresh", document.TagPlainText)
		opts := treeOpts
		if coll[len(coll)-1].Key == document.KeyColumns {
			n = col("fresh", 1)
			// Removing a column rescales its siblings by design.
			opts = append(cmp.Options{cmpopts.IgnoreFields(document.Node{}, "Weight")}, treeOpts...)
		}
		for idx := 0; idx <= len(res.Collection); idx++ {
			ins, err := e.Insert(doc, coll, n, idx)
			if err != nil {
				t.Fatalf("insert into %s[%d]: %v", coll, idx, err)
			}
			rem, err := e.Remove(ins.Document, ins.Path)
			if err != nil {
				t.Fatalf("remove %s: %v", ins.Path, err)
			}
			if diff := cmp.Diff(doc, rem.Document, opts); diff != "" {
				t.Fatalf("insert/remove at %s[%d] is not a round trip (-want +got):\n%s", coll, idx, diff)
			}
		}
	}
}

// randomOps drives the engine with a seeded mix of inserts and moves and
// checks the structural invariants after every step.
func TestPropertySingletonsAndTitleFirst(t *testing.T) {
	e := newEngine()
	rng := rand.New(rand.NewSource(7))
	tags := []document.Tag{
		document.TagTitle, document.TagForm, document.TagColumnSet, document.TagColumn,
		document.TagPlainText, document.TagInput, document.TagButton, document.TagSelectStatic,
	}
	doc := richDoc()
	applied := 0
	for step := 0; step < 400; step++ {
		var res Result
		var err error
		switch rng.Intn(4) {
		case 0, 1:
			n, ferr := document.NewComponent(tags[rng.Intn(len(tags))])
			if ferr != nil {
				t.Fatalf("factory: %v", ferr)
			}
			if n.Tag.InputLike() {
				n.Required = true
			}
			colls := collectionPaths(doc)
			res, err = e.Insert(doc, colls[rng.Intn(len(colls))], n, rng.Intn(4)-1)
		case 2:
			nodes := nodePaths(doc)
			colls := collectionPaths(doc)
			if len(nodes) == 0 {
				continue
			}
			res, err = e.Move(doc, nodes[rng.Intn(len(nodes))], colls[rng.Intn(len(colls))], rng.Intn(4)-1)
		case 3:
			n, _ := document.NewComponent(document.TagPlainText)
			res, err = e.InsertAtRoot(doc, n, rng.Intn(3))
		}
		if err != nil {
			if diff := cmp.Diff(doc, res.Document, treeOpts); diff != "" {
				t.Fatalf("step %d: failed operation changed the tree: %v\n%s", step, err, diff)
			}
			continue
		}
		applied++
		doc = res.Document
		if err := Audit(doc); err != nil {
			t.Fatalf("step %d: invariant broken: %v", step, err)
		}
		if doc.Count(document.TagForm) > 1 {
			t.Fatalf("step %d: more than one form", step)
		}
		if doc.Count(document.TagTitle) > 1 {
			t.Fatalf("step %d: more than one title", step)
		}
		if doc.HasTitle() && doc.Sequence()[0].Kind != document.SlotHeader {
			t.Fatalf("step %d: a body node precedes the title", step)
		}
	}
	if applied == 0 {
		t.Fatalf("no operation succeeded; the sequence exercised nothing")
	}
}

func TestPropertyWeightConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	e := newEngine()
	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(5)
		cols := make([]document.Node, n)
		var total float64
		for i := range cols {
			w := 0.5 + rng.Float64()*4
			total += w
			cols[i] = col(document.NewID(document.TagColumn), w)
		}
		doc := document.Document{Elements: []document.Node{set("s", cols...)}}
		victim := rng.Intn(n)
		res, err := e.Remove(doc, docpath.Root(0).Child(document.KeyColumns).At(victim))
		if err != nil {
			t.Fatalf("trial %d: remove: %v", trial, err)
		}
		var sum float64
		left := res.Document.Elements[0].Columns
		for i, c := range left {
			sum += c.Weight
			orig := cols[i]
			if i >= victim {
				orig = cols[i+1]
			}
			wantShare := orig.Weight / (total - cols[victim].Weight)
			if math.Abs(c.Weight/total-wantShare) > 1e-9 {
				t.Fatalf("trial %d: column %d lost its proportion", trial, i)
			}
		}
		if math.Abs(sum-total) > 1e-9 {
			t.Fatalf("trial %d: weights sum to %v, want %v", trial, sum, total)
		}
	}
}
