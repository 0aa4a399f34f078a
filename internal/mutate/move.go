/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mutate

import (
	"fmt"

	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
)

// Move relocates the node at src into the collection addressed by dst at
// index. index is expressed in the coordinates of the tree before the move,
// as produced by hit-testing the siblings on screen. Internally the move is a
// removal followed by an insertion: indices that sat after the vacated slot
// are shifted down by one. The removal is verified before the insertion runs;
// any failure returns the original document.
func (e *Engine) Move(doc document.Document, src, dst docpath.Path, index int) (Result, error) {
	const op = "move"
	if src.IsHeader() || dst.IsHeader() {
		return e.rejected(doc, fail(op, KindInvariantViolation, src, ErrTitlePosition))
	}
	sres, err := docpath.Resolve(doc, src, e.resolveOpts())
	if err != nil {
		return e.rejected(doc, resolveError(op, src, err))
	}
	if sres.Kind != docpath.KindNode {
		return e.rejected(doc, fail(op, KindPathResolution, src, ErrNotANode))
	}
	t, info, ferr := e.resolveTarget(doc, dst, op)
	if ferr != nil {
		return e.rejected(doc, ferr)
	}
	from := sres.Path
	if t.coll.HasPrefix(from) {
		return e.rejected(doc, fail(op, KindInvariantViolation, dst, ErrOwnSubtree))
	}
	fromColl, fromIdx, _ := from.Split()
	if t.coll.Equal(fromColl) {
		if at, _ := clampInsert(index, len(t.items)); at == fromIdx || at == fromIdx+1 {
			return e.applied(op, Result{Document: doc, Path: from, Node: sres.Node, NoOp: true})
		}
	}

	removed, ferr := removeResolved(doc, sres, op)
	if ferr != nil {
		return e.rejected(doc, ferr)
	}
	if err := verifyRemoved(removed.Document, from, sres.Node.ID); err != nil {
		return e.rejected(doc, fail(op, KindMoveVerification, from, err))
	}

	gone := removed.Path
	if t.coll.HasPrefix(gone) {
		return e.rejected(doc, fail(op, KindMoveVerification, dst, fmt.Errorf("target removed together with %s", gone)))
	}
	adjusted := shiftAfterRemoval(t.coll, gone)
	at := index
	if goneColl, goneIdx, _ := gone.Split(); at != Append && adjusted.Equal(goneColl) && at > goneIdx {
		at--
	}
	tres, err := docpath.Resolve(removed.Document, adjusted, docpath.Options{Strict: true})
	if err != nil {
		return e.rejected(doc, resolveError(op, adjusted, err))
	}
	placed, err := e.insertAt(removed.Document, targetOf(tres), sres.Node, at)
	if err != nil {
		return e.rejected(doc, fail(op, KindInvariantViolation, dst, err))
	}
	placed.Recovered = info.recovered
	placed.Clamped = placed.Clamped || info.clamped || sres.Clamped
	placed.Cascaded = removed.Cascaded
	return e.applied(op, placed)
}

// verifyRemoved confirms the node with id left both its old slot and the tree.
func verifyRemoved(doc document.Document, from docpath.Path, id string) error {
	if res, ok := docpath.Revalidate(doc, from); ok && res.Kind == docpath.KindNode && res.Node.ID == id {
		return fmt.Errorf("node %q still at %s", id, from)
	}
	if _, ok := doc.Find(id); ok {
		return fmt.Errorf("node %q still present after removal", id)
	}
	return nil
}

// shiftAfterRemoval rewrites p for a tree in which the node at gone no longer
// exists: an index of gone's collection that sat after it moves down by one.
func shiftAfterRemoval(p, gone docpath.Path) docpath.Path {
	goneColl, goneIdx, ok := gone.Split()
	if !ok || len(p) <= len(goneColl) || !p.HasPrefix(goneColl) {
		return p
	}
	seg := p[len(goneColl)]
	if !seg.IsIndex() || seg.Index <= goneIdx {
		return p
	}
	out := p.Clone()
	out[len(goneColl)] = docpath.Index(seg.Index - 1)
	return out
}
