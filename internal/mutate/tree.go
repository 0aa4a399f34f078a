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

// editCollection rebuilds doc with the collection at coll replaced by fn's
// result. Only the nodes along the path are copied; every other subtree is
// shared with doc. coll must be a normalised collection path, e.g. the Path
// of a docpath.Resolution.
func editCollection(doc document.Document, coll docpath.Path, fn func([]document.Node) ([]document.Node, error)) (document.Document, error) {
	if !coll.IsCollection() {
		return doc, fmt.Errorf("%s: %w", coll, ErrNotACollection)
	}
	els, err := editIn(doc.Elements, coll[docpath.PrefixLen:], fn)
	if err != nil {
		return doc, err
	}
	return doc.WithElements(els), nil
}

func editIn(coll []document.Node, rest docpath.Path, fn func([]document.Node) ([]document.Node, error)) ([]document.Node, error) {
	if len(rest) == 0 {
		return fn(coll)
	}
	i, key := rest[0].Index, rest[1].Key
	if i < 0 || i >= len(coll) {
		return nil, fmt.Errorf("index %d outside collection of %d", i, len(coll))
	}
	n := coll[i]
	children, ok := n.Children(key)
	if !ok {
		return nil, fmt.Errorf("%q does not own %q", n.Tag, key)
	}
	updated, err := editIn(children, rest[2:], fn)
	if err != nil {
		return nil, err
	}
	out := make([]document.Node, len(coll))
	copy(out, coll)
	out[i] = n.WithChildren(key, updated)
	return out, nil
}

func spliceIn(coll []document.Node, i int, n document.Node) []document.Node {
	out := make([]document.Node, 0, len(coll)+1)
	out = append(out, coll[:i]...)
	out = append(out, n)
	return append(out, coll[i:]...)
}

func deleteAt(coll []document.Node, i int) []document.Node {
	out := make([]document.Node, 0, len(coll)-1)
	out = append(out, coll[:i]...)
	return append(out, coll[i+1:]...)
}

func replaceAt(coll []document.Node, i int, n document.Node) []document.Node {
	out := make([]document.Node, len(coll))
	copy(out, coll)
	out[i] = n
	return out
}

// clampInsert maps an insert index onto [0, n]; Append and any index past
// the end append.
func clampInsert(idx, n int) (int, bool) {
	switch {
	case idx == Append:
		return n, false
	case idx < 0:
		return 0, true
	case idx > n:
		return n, true
	}
	return idx, false
}
