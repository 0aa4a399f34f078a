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
	"log/slog"

	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
	applog "cardbuilder/internal/log"
)

// Insert splices n into the collection addressed by p at index, or appends
// when index is Append. p may also address a container node, in which case
// the node's own collection is the target.
//
// A Title is never inserted into the body: the request becomes an update of
// the header slot. Inserting into an empty Form body first creates the
// default two-column ColumnSet and places n in its first column. Nodes
// landing outside any Form lose their `required` flag.
func (e *Engine) Insert(doc document.Document, p docpath.Path, n document.Node, index int) (Result, error) {
	const op = "insert"
	if err := document.Validate(n); err != nil {
		return e.rejected(doc, fail(op, KindInvalidNodeShape, p, err))
	}
	if n.Tag == document.TagTitle {
		return e.applied(op, setTitle(doc, n, true))
	}
	if p.IsHeader() {
		return e.rejected(doc, fail(op, KindInvariantViolation, p, ErrTitlePosition))
	}
	t, info, ferr := e.resolveTarget(doc, p, op)
	if ferr != nil {
		return e.rejected(doc, ferr)
	}
	res, err := e.insertAt(doc, t, n, index)
	if err != nil {
		return e.rejected(doc, fail(op, KindInvariantViolation, t.coll, err))
	}
	res.Recovered = info.recovered
	res.Clamped = res.Clamped || info.clamped
	return e.applied(op, res)
}

// setTitle writes n into the header slot. With keepID the existing header
// keeps its id so that selections on the title survive the redirect.
func setTitle(doc document.Document, n document.Node, keepID bool) Result {
	n.Elements, n.Columns = nil, nil
	if keepID && doc.Header != nil {
		n.ID = doc.Header.ID
	}
	return Result{Document: doc.WithHeader(&n), Path: docpath.Header(), Node: n, Redirected: true}
}

type targetInfo struct {
	recovered bool
	clamped   bool
}

// resolveTarget resolves p to a collection. When p runs into a container of
// the wrong kind and fallback recovery is enabled, the first compatible
// container of the document replaces the failing prefix and resolution is
// retried once.
func (e *Engine) resolveTarget(doc document.Document, p docpath.Path, op string) (target, targetInfo, *Error) {
	var info targetInfo
	res, err := docpath.Resolve(doc, p, e.resolveOpts())
	if err != nil {
		re, mismatch := isShapeMismatch(err)
		if !mismatch || !e.fallback {
			return target{}, info, resolveError(op, p, err)
		}
		corrected, ok := recoverPath(doc, p, re)
		if !ok {
			return target{}, info, fail(op, KindPathResolution, p, fmt.Errorf("%w: %v", ErrNoCompatibleContainer, err))
		}
		applog.WithOperation(e.log, op).Warn("target path recovered to compatible container",
			slog.String("path", p.String()),
			slog.String("recovered", corrected.String()),
			slog.String("found", string(re.Found)),
		)
		res, err = docpath.Resolve(doc, corrected, e.resolveOpts())
		if err != nil {
			return target{}, info, fail(op, KindPathResolution, corrected, fmt.Errorf("%w: %v", ErrNoCompatibleContainer, err))
		}
		info.recovered = true
	}
	info.clamped = res.Clamped
	switch res.Kind {
	case docpath.KindCollection:
	case docpath.KindNode:
		key := res.Node.Tag.ChildKey()
		if key == "" {
			return target{}, info, fail(op, KindPathResolution, p, fmt.Errorf("%w: %q is not a container", ErrNotACollection, res.Node.Tag))
		}
		res, err = docpath.Resolve(doc, res.Path.Child(key), docpath.Options{Strict: true})
		if err != nil {
			return target{}, info, resolveError(op, p, err)
		}
	default:
		return target{}, info, fail(op, KindPathResolution, p, ErrNotACollection)
	}
	if info.clamped {
		applog.WithOperation(e.log, op).Debug("target index clamped", slog.String("path", p.String()), slog.String("resolved", res.Path.String()))
	}
	return targetOf(res), info, nil
}

// recoverPath swaps the prefix of p that ran into the wrong container for the
// path of the first container of the expected kind.
func recoverPath(doc document.Document, p docpath.Path, re *docpath.ResolveError) (docpath.Path, bool) {
	want := p.ExpectedContainer(re.Pos)
	if want == "" {
		return nil, false
	}
	found, ok := docpath.FirstContainer(doc, want)
	if !ok {
		return nil, false
	}
	corrected := found.Append(p[re.Pos:]...)
	if corrected.Equal(p) {
		return nil, false
	}
	return corrected, true
}

// insertAt places n into an already resolved target collection.
func (e *Engine) insertAt(doc document.Document, t target, n document.Node, index int) (Result, error) {
	if err := checkPlacement(doc, t, n, nil); err != nil {
		return Result{}, err
	}
	n = cleanup(n, t)
	if t.ownerTag() == document.TagForm && len(t.items) == 0 && n.Tag != document.TagColumnSet {
		scaffold := document.FormScaffold()
		scaffold.Columns[0].Elements = []document.Node{n}
		out, err := editCollection(doc, t.coll, func([]document.Node) ([]document.Node, error) {
			return []document.Node{scaffold}, nil
		})
		if err != nil {
			return Result{}, err
		}
		at := t.coll.At(0).Child(document.KeyColumns).At(0).Child(document.KeyElements).At(0)
		return Result{Document: out, Path: at, Node: n}, nil
	}
	idx, clamped := clampInsert(index, len(t.items))
	out, err := editCollection(doc, t.coll, func(items []document.Node) ([]document.Node, error) {
		return spliceIn(items, idx, n), nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Document: out, Path: t.coll.At(idx), Node: n, Clamped: clamped}, nil
}
