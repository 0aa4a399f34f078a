/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mutate

import (
	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
)

// Remove deletes the node addressed by p. Removing the last column of a
// ColumnSet removes the ColumnSet as well; removing any other column rescales
// the remaining weights to the previous total. Columns holding a reset action
// are refused. The header path clears the Title.
func (e *Engine) Remove(doc document.Document, p docpath.Path) (Result, error) {
	const op = "remove"
	if p.IsHeader() {
		if doc.Header == nil {
			return e.rejected(doc, resolveError(op, p, docpath.ErrEmptyHeader))
		}
		removed := *doc.Header
		return e.applied(op, Result{Document: doc.WithHeader(nil), Path: docpath.Header(), Node: removed})
	}
	res, err := docpath.Resolve(doc, p, e.resolveOpts())
	if err != nil {
		return e.rejected(doc, resolveError(op, p, err))
	}
	if res.Kind != docpath.KindNode {
		return e.rejected(doc, fail(op, KindPathResolution, p, ErrNotANode))
	}
	out, ferr := removeResolved(doc, res, op)
	if ferr != nil {
		return e.rejected(doc, ferr)
	}
	return e.applied(op, out)
}

func removeResolved(doc document.Document, res docpath.Resolution, op string) (Result, *Error) {
	n := res.Node
	if n.Guarded() {
		return Result{}, fail(op, KindInvariantViolation, res.Path, ErrGuardedColumn)
	}
	coll, idx, _ := res.Path.Split()
	inColumnSet := res.Owner != nil && res.Owner.Tag == document.TagColumnSet
	if inColumnSet && len(res.Collection) == 1 {
		setPath, _ := coll.Owner()
		setRes, err := docpath.Resolve(doc, setPath, docpath.Options{Strict: true})
		if err != nil {
			return Result{}, resolveError(op, setPath, err)
		}
		out, ferr := removeResolved(doc, setRes, op)
		if ferr != nil {
			return Result{}, ferr
		}
		out.Cascaded = true
		out.Clamped = res.Clamped
		return out, nil
	}
	out, err := editCollection(doc, coll, func(items []document.Node) ([]document.Node, error) {
		left := deleteAt(items, idx)
		if inColumnSet {
			left = redistribute(left, n)
		}
		return left, nil
	})
	if err != nil {
		return Result{}, resolveError(op, res.Path, err)
	}
	return Result{Document: out, Path: res.Path, Node: n, Clamped: res.Clamped}, nil
}
