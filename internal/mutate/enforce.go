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
	"fmt"

	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
)

// target describes the collection a node is about to land in.
type target struct {
	coll   docpath.Path
	key    string
	items  []document.Node
	owner  *document.Node
	inForm bool
}

func targetOf(res docpath.Resolution) target {
	return target{
		coll:   res.Path,
		key:    res.Path[len(res.Path)-1].Key,
		items:  res.Collection,
		owner:  res.Owner,
		inForm: res.InForm(),
	}
}

func (t target) ownerTag() document.Tag {
	if t.owner == nil {
		return ""
	}
	return t.owner.Tag
}

// checkPlacement is the compatibility gate run before every insert, move
// and update. replaced is the subtree an update overwrites, if any.
func checkPlacement(doc document.Document, t target, n document.Node, replaced *document.Node) error {
	if n.Contains(document.TagTitle) {
		return ErrTitlePosition
	}
	if hollowColumnSet(n) {
		return ErrEmptyColumnSet
	}
	if (t.key == document.KeyColumns) != (n.Tag == document.TagColumn) {
		return fmt.Errorf("%w: %q into %q", ErrIncompatibleTarget, n.Tag, t.key)
	}
	if n.Contains(document.TagForm) {
		if t.inForm {
			return ErrFormNesting
		}
		if t.owner != nil {
			return fmt.Errorf("%w: a form belongs to the root list", ErrIncompatibleTarget)
		}
		forms := doc.Count(document.TagForm)
		if replaced != nil {
			forms -= countTag(*replaced, document.TagForm)
		}
		if forms > 0 {
			return ErrDuplicateForm
		}
	}
	// Under a Form only one level of Form -> ColumnSet nesting is allowed.
	if inFormColumns(t) && n.Contains(document.TagColumnSet) {
		return fmt.Errorf("%w: column set inside a form column", ErrIncompatibleTarget)
	}
	if (t.inForm || n.Tag == document.TagForm) && nestedColumnSet(n) {
		return fmt.Errorf("%w: nested column set inside a form", ErrIncompatibleTarget)
	}
	return nil
}

// inFormColumns reports whether t lies inside a ColumnSet of a Form.
func inFormColumns(t target) bool {
	owner := t.ownerTag()
	return t.inForm && (owner == document.TagColumn || owner == document.TagColumnSet)
}

// nestedColumnSet reports whether some ColumnSet in n holds another
// ColumnSet in one of its columns.
func nestedColumnSet(n document.Node) bool {
	if n.Tag == document.TagColumnSet {
		for _, c := range n.Columns {
			if c.Contains(document.TagColumnSet) {
				return true
			}
		}
	}
	for _, c := range n.Elements {
		if nestedColumnSet(c) {
			return true
		}
	}
	for _, c := range n.Columns {
		if nestedColumnSet(c) {
			return true
		}
	}
	return false
}

// Compatible runs the placement gate for dropping n into the collection at
// coll without mutating anything. With moving set, n is assumed to leave its
// current slot first, so a Form being moved does not count as a duplicate of
// itself. A Title is always compatible because it is redirected to the
// header slot.
func Compatible(doc document.Document, coll docpath.Path, n document.Node, moving bool) error {
	if n.Tag == document.TagTitle {
		return nil
	}
	res, err := docpath.Resolve(doc, coll, docpath.Options{})
	if err != nil {
		return err
	}
	if res.Kind == docpath.KindNode {
		key := res.Node.Tag.ChildKey()
		if key == "" {
			return ErrNotACollection
		}
		if res, err = docpath.Resolve(doc, res.Path.Child(key), docpath.Options{Strict: true}); err != nil {
			return err
		}
	}
	if res.Kind != docpath.KindCollection {
		return ErrNotACollection
	}
	var replaced *document.Node
	if moving {
		replaced = &n
	}
	return checkPlacement(doc, targetOf(res), n, replaced)
}

func hollowColumnSet(n document.Node) bool {
	if n.Tag == document.TagColumnSet && len(n.Columns) == 0 {
		return true
	}
	for _, c := range n.Elements {
		if hollowColumnSet(c) {
			return true
		}
	}
	for _, c := range n.Columns {
		if hollowColumnSet(c) {
			return true
		}
	}
	return false
}

func countTag(n document.Node, tag document.Tag) int {
	total := 0
	if n.Tag == tag {
		total++
	}
	for _, c := range n.Elements {
		total += countTag(c, tag)
	}
	for _, c := range n.Columns {
		total += countTag(c, tag)
	}
	return total
}

// cleanup drops form-only fields from a node landing outside any Form.
func cleanup(n document.Node, t target) document.Node {
	if t.inForm {
		return n
	}
	return n.ClearRequired()
}

// redistribute rescales the weights of the columns left after removing
// removed so that their sum equals the sum before removal. Each remaining
// column keeps its share: w' = w / sum(remaining) * sum(all). Weights are not
// rounded.
func redistribute(remaining []document.Node, removed document.Node) []document.Node {
	if len(remaining) == 0 {
		return remaining
	}
	var left float64
	for _, c := range remaining {
		left += c.FlexWeight()
	}
	total := left + removed.FlexWeight()
	out := make([]document.Node, len(remaining))
	for i, c := range remaining {
		if left > 0 {
			c.Weight = c.FlexWeight() / left * total
		} else {
			c.Weight = total / float64(len(remaining))
		}
		out[i] = c
	}
	return out
}

// Audit checks every structural invariant over the whole tree. The engine
// never needs it because each operation keeps the invariants locally; it
// serves imports and tests.
func Audit(doc document.Document) error {
	var errs []error
	seen := make(map[string]string)
	if doc.Header != nil {
		if doc.Header.Tag != document.TagTitle {
			errs = append(errs, fmt.Errorf("header holds %q", doc.Header.Tag))
		}
		seen[doc.Header.ID] = docpath.Header().String()
	}
	if forms := doc.Count(document.TagForm); forms > 1 {
		errs = append(errs, fmt.Errorf("%w: %d forms", ErrDuplicateForm, forms))
	}
	for i, n := range doc.Elements {
		if n.Tag == document.TagColumn {
			errs = append(errs, fmt.Errorf("%s: %w: column in the root list", docpath.Root(i), ErrIncompatibleTarget))
		}
		auditNode(n, docpath.Root(i), false, seen, &errs)
	}
	return errors.Join(errs...)
}

func auditNode(n document.Node, at docpath.Path, inForm bool, seen map[string]string, errs *[]error) {
	if first, dup := seen[n.ID]; dup {
		*errs = append(*errs, fmt.Errorf("%s: %w: %q also at %s", at, ErrDuplicateID, n.ID, first))
	} else {
		seen[n.ID] = at.String()
	}
	switch n.Tag {
	case document.TagTitle:
		*errs = append(*errs, fmt.Errorf("%s: %w", at, ErrTitlePosition))
	case document.TagForm:
		if inForm {
			*errs = append(*errs, fmt.Errorf("%s: %w", at, ErrFormNesting))
		}
		inForm = true
	case document.TagColumnSet:
		if len(n.Columns) == 0 {
			*errs = append(*errs, fmt.Errorf("%s: column set without columns", at))
		}
		if inForm && nestedColumnSet(n) {
			*errs = append(*errs, fmt.Errorf("%s: %w: nested column set inside a form", at, ErrIncompatibleTarget))
		}
	}
	if !inForm && n.Tag.InputLike() && n.Required {
		*errs = append(*errs, fmt.Errorf("%s: required flag outside a form", at))
	}
	key := n.Tag.ChildKey()
	children, _ := n.Children(key)
	for i, c := range children {
		if (key == document.KeyColumns) != (c.Tag == document.TagColumn) {
			*errs = append(*errs, fmt.Errorf("%s: %w: %q in %q", at.Child(key).At(i), ErrIncompatibleTarget, c.Tag, key))
		}
		auditNode(c, at.Child(key).At(i), inForm, seen, errs)
	}
}
