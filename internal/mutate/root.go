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

// The root helpers take positions in the conceptual root sequence, where an
// existing Title occupies position 0 and body element i sits at i+1. Paths
// and the index arguments of Insert and Move use body coordinates.

// BodyIndex converts a conceptual root position into a body index. A
// position of 0 with a Title present yields -1; Append is passed through.
func BodyIndex(doc document.Document, pos int) int {
	if pos == Append || !doc.HasTitle() {
		return pos
	}
	return pos - 1
}

// ConceptualIndex converts a body index into its conceptual root position.
func ConceptualIndex(doc document.Document, bodyIdx int) int {
	if doc.HasTitle() {
		return bodyIdx + 1
	}
	return bodyIdx
}

// InsertAtRoot inserts n at conceptual root position pos. Position 0 is
// bumped to 1 while a Title holds the first slot; a Title itself goes to the
// header slot.
func (e *Engine) InsertAtRoot(doc document.Document, n document.Node, pos int) (Result, error) {
	if n.Tag != document.TagTitle && doc.HasTitle() && pos == 0 {
		pos = 1
	}
	return e.Insert(doc, docpath.Body(), n, BodyIndex(doc, pos))
}

// MoveToRoot moves the node at src to conceptual root position pos. Moving
// into position 0 while a Title is present is refused.
func (e *Engine) MoveToRoot(doc document.Document, src docpath.Path, pos int) (Result, error) {
	if doc.HasTitle() && pos == 0 {
		return e.rejected(doc, fail("move", KindInvariantViolation, src, ErrTitlePosition))
	}
	return e.Move(doc, src, docpath.Body(), BodyIndex(doc, pos))
}
