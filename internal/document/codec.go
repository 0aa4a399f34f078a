/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// wire mirrors the card DSL envelope: {"dsl": {"header": ..., "body": {"elements": [...]}}}.
// The path grammar is rooted at the same keys.
type wire struct {
	DSL wireDSL `json:"dsl"`
}

type wireDSL struct {
	Header *Node    `json:"header,omitempty"`
	Body   wireBody `json:"body"`
}

type wireBody struct {
	Elements []Node `json:"elements"`
}

// MarshalJSON encodes the document in the card DSL envelope.
func (d Document) MarshalJSON() ([]byte, error) {
	els := d.Elements
	if els == nil {
		els = []Node{}
	}
	return json.Marshal(wire{DSL: wireDSL{Header: d.Header, Body: wireBody{Elements: els}}})
}

// UnmarshalJSON decodes the card DSL envelope without validation. Use Decode
// for untrusted input.
func (d *Document) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	d.Header = w.DSL.Header
	d.Elements = w.DSL.Body.Elements
	return nil
}

// Encode serialises d in human-readable form.
func Encode(d Document) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}
	return append(data, '\n'), nil
}

// ShapeIssue reports a node that was isolated during import.
// Location uses the dotted path form, e.g. "dsl.body.elements.2.columns.0".
type ShapeIssue struct {
	Location string `json:"location"`
	Message  string `json:"message"`
}

// ShapeError is returned by Validate for a node missing its discriminant fields.
type ShapeError struct {
	ID      string
	Tag     Tag
	Message string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("document: invalid node shape (id=%q tag=%q): %s", e.ID, e.Tag, e.Message)
}

// ErrInvalidShape is matched by every *ShapeError through errors.Is.
var ErrInvalidShape = errors.New("document: invalid node shape")

func (e *ShapeError) Is(target error) bool { return target == ErrInvalidShape }

// Validate checks that n and its descendants carry an id and a known tag, and
// that children sit in the collection their parent owns.
func Validate(n Node) error {
	if n.ID == "" {
		return &ShapeError{Tag: n.Tag, Message: "missing id"}
	}
	if n.Tag == "" {
		return &ShapeError{ID: n.ID, Message: "missing tag"}
	}
	if !n.Tag.Known() {
		return &ShapeError{ID: n.ID, Tag: n.Tag, Message: "unknown tag"}
	}
	if len(n.Elements) > 0 && n.Tag.ChildKey() != KeyElements {
		return &ShapeError{ID: n.ID, Tag: n.Tag, Message: "node does not own elements"}
	}
	if len(n.Columns) > 0 && n.Tag != TagColumnSet {
		return &ShapeError{ID: n.ID, Tag: n.Tag, Message: "node does not own columns"}
	}
	for _, c := range n.Elements {
		if c.Tag == TagColumn {
			return &ShapeError{ID: c.ID, Tag: c.Tag, Message: "column outside a column set"}
		}
		if err := Validate(c); err != nil {
			return err
		}
	}
	for _, c := range n.Columns {
		if c.Tag != TagColumn {
			return &ShapeError{ID: c.ID, Tag: c.Tag, Message: "column set child is not a column"}
		}
		if err := Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses untrusted card JSON. The envelope is checked against the
// embedded JSON schema first; a schema failure rejects the whole payload.
// Individual nodes with a missing or unknown tag are isolated: they are
// dropped and reported as ShapeIssues. Missing ids are regenerated, a Title
// found in the body moves to the empty header slot, and rich text content is
// sanitised. A node repeating an id seen earlier in document order gets a
// fresh one and is reported.
func Decode(data []byte) (Document, []ShapeIssue, error) {
	if err := ValidateEnvelope(data); err != nil {
		return Document{}, nil, err
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, nil, fmt.Errorf("document: decode: %w", err)
	}
	var issues []ShapeIssue
	seen := make(map[string]struct{})
	if d.Header != nil {
		h, ok := repairNode(*d.Header, "dsl.header", seen, &issues)
		switch {
		case !ok:
			d.Header = nil
		case h.Tag != TagTitle:
			issues = append(issues, ShapeIssue{Location: "dsl.header", Message: fmt.Sprintf("header holds %q, expected %q", h.Tag, TagTitle)})
			d.Header = nil
		default:
			h.Elements, h.Columns = nil, nil
			d.Header = &h
		}
	}
	body := make([]Node, 0, len(d.Elements))
	for i, n := range d.Elements {
		loc := "dsl.body.elements." + strconv.Itoa(i)
		fixed, ok := repairNode(n, loc, seen, &issues)
		if !ok {
			continue
		}
		if fixed.Tag == TagTitle {
			if d.Header == nil {
				d.Header = &fixed
				issues = append(issues, ShapeIssue{Location: loc, Message: "title moved to header slot"})
			} else {
				issues = append(issues, ShapeIssue{Location: loc, Message: "duplicate title dropped"})
			}
			continue
		}
		if fixed.Tag == TagColumn {
			issues = append(issues, ShapeIssue{Location: loc, Message: "column outside a column set dropped"})
			continue
		}
		body = append(body, fixed)
	}
	d.Elements = body
	return d, issues, nil
}

// repairNode regenerates missing and repeated ids, sanitises rich text and
// drops children that cannot be repaired. It returns false when n itself must
// be isolated.
func repairNode(n Node, loc string, seen map[string]struct{}, issues *[]ShapeIssue) (Node, bool) {
	if n.Tag == "" {
		*issues = append(*issues, ShapeIssue{Location: loc, Message: "missing tag"})
		return Node{}, false
	}
	if !n.Tag.Known() {
		*issues = append(*issues, ShapeIssue{Location: loc, Message: fmt.Sprintf("unknown tag %q", n.Tag)})
		return Node{}, false
	}
	if n.ID == "" {
		n.ID = NewID(n.Tag)
	} else if _, dup := seen[n.ID]; dup {
		*issues = append(*issues, ShapeIssue{Location: loc, Message: fmt.Sprintf("duplicate id %q regenerated", n.ID)})
		n.ID = NewID(n.Tag)
	}
	seen[n.ID] = struct{}{}
	if n.Tag == TagRichText {
		n.Content = SanitizeRichText(n.Content)
	}
	key := n.Tag.ChildKey()
	if key != KeyElements && len(n.Elements) > 0 {
		*issues = append(*issues, ShapeIssue{Location: loc + "." + KeyElements, Message: "unexpected elements dropped"})
		n.Elements = nil
	}
	if key != KeyColumns && len(n.Columns) > 0 {
		*issues = append(*issues, ShapeIssue{Location: loc + "." + KeyColumns, Message: "unexpected columns dropped"})
		n.Columns = nil
	}
	children, _ := n.Children(key)
	if len(children) > 0 {
		kept := make([]Node, 0, len(children))
		for i, c := range children {
			cloc := loc + "." + key + "." + strconv.Itoa(i)
			fixed, ok := repairNode(c, cloc, seen, issues)
			if !ok {
				continue
			}
			if (key == KeyColumns) != (fixed.Tag == TagColumn) || fixed.Tag == TagTitle {
				*issues = append(*issues, ShapeIssue{Location: cloc, Message: fmt.Sprintf("%q not allowed in %s", fixed.Tag, key)})
				continue
			}
			kept = append(kept, fixed)
		}
		n = n.WithChildren(key, kept)
	}
	if n.Tag == TagColumnSet && len(n.Columns) == 0 {
		*issues = append(*issues, ShapeIssue{Location: loc, Message: "column set without columns dropped"})
		return Node{}, false
	}
	return n, true
}
