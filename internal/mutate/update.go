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

// Update replaces the node addressed by p with n. Beyond the placement rules
// shared with Insert it refuses to put a Form-typed node anywhere below a
// Form. The header path accepts only a Title.
func (e *Engine) Update(doc document.Document, p docpath.Path, n document.Node) (Result, error) {
	const op = "update"
	if err := document.Validate(n); err != nil {
		return e.rejected(doc, fail(op, KindInvalidNodeShape, p, err))
	}
	if p.IsHeader() {
		if n.Tag != document.TagTitle {
			return e.rejected(doc, fail(op, KindInvariantViolation, p, ErrTitlePosition))
		}
		res := setTitle(doc, n, false)
		res.Redirected = false
		return e.applied(op, res)
	}
	res, err := docpath.Resolve(doc, p, e.resolveOpts())
	if err != nil {
		return e.rejected(doc, resolveError(op, p, err))
	}
	if res.Kind != docpath.KindNode {
		return e.rejected(doc, fail(op, KindPathResolution, p, ErrNotANode))
	}
	if n.Tag == document.TagTitle {
		return e.rejected(doc, fail(op, KindInvariantViolation, res.Path, ErrTitlePosition))
	}
	coll, idx, _ := res.Path.Split()
	t := target{coll: coll, key: coll[len(coll)-1].Key, items: res.Collection, owner: res.Owner, inForm: res.InForm()}
	if t.inForm && n.Contains(document.TagForm) {
		return e.rejected(doc, fail(op, KindInvariantViolation, res.Path, ErrFormNesting))
	}
	if err := checkPlacement(doc, t, n, &res.Node); err != nil {
		return e.rejected(doc, fail(op, KindInvariantViolation, res.Path, err))
	}
	n = cleanup(n, t)
	out, err := editCollection(doc, coll, func(items []document.Node) ([]document.Node, error) {
		return replaceAt(items, idx, n), nil
	})
	if err != nil {
		return e.rejected(doc, resolveError(op, res.Path, err))
	}
	return e.applied(op, Result{Document: out, Path: res.Path, Node: n, Clamped: res.Clamped})
}
