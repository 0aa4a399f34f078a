/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package docpath implements the address grammar of card documents and the
// recursive-descent resolver that maps an address onto a node or a collection.
//
// Grammar:
//
//	Path       = Header | Body
//	Header     = "dsl" "header"
//	Body       = "dsl" "body" "elements" { Index Key }  [ Index ]
//	Key        = "elements" | "columns"
//
// A path ending with a key addresses a collection, a path ending with an index
// addresses a node. Nesting depth is unbounded.
package docpath

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cardbuilder/internal/document"
)

// SegmentKind separates key tokens from index tokens.
type SegmentKind int

const (
	SegKey SegmentKind = iota
	SegIndex
)

// Segment is one token of a path.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// Key returns a key segment.
func Key(k string) Segment { return Segment{Kind: SegKey, Key: k} }

// Index returns an index segment.
func Index(i int) Segment { return Segment{Kind: SegIndex, Index: i} }

// IsIndex reports whether s is an index token.
func (s Segment) IsIndex() bool { return s.Kind == SegIndex }

func (s Segment) String() string {
	if s.IsIndex() {
		return strconv.Itoa(s.Index)
	}
	return s.Key
}

// Path is an ordered key/index sequence.
type Path []Segment

// Fixed tokens of the grammar.
const (
	TokenDSL    = "dsl"
	TokenBody   = "body"
	TokenHeader = "header"
)

// PrefixLen is the number of tokens of the body prefix.
const PrefixLen = 3

// Body returns the path of the root elements collection.
func Body() Path {
	return Path{Key(TokenDSL), Key(TokenBody), Key(document.KeyElements)}
}

// Header returns the fixed path of the header slot.
func Header() Path { return Path{Key(TokenDSL), Key(TokenHeader)} }

// Root returns the path of the i-th root element.
func Root(i int) Path { return Body().Append(Index(i)) }

// Append returns a new path with segs added; p is not modified.
func (p Path) Append(segs ...Segment) Path {
	out := make(Path, 0, len(p)+len(segs))
	out = append(out, p...)
	return append(out, segs...)
}

// Child returns the path of the collection key owned by the node at p.
func (p Path) Child(key string) Path { return p.Append(Key(key)) }

// At returns the path of the node at index i of collection p.
func (p Path) At(i int) Path { return p.Append(Index(i)) }

// Clone returns a copy of p.
func (p Path) Clone() Path { return p.Append() }

// Equal compares paths structurally.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether q is a prefix of p (equal paths included).
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	return p[:len(q)].Equal(q)
}

// IsAncestorOf reports whether p addresses a strict ancestor of q.
func (p Path) IsAncestorOf(q Path) bool { return len(q) > len(p) && q.HasPrefix(p) }

// IsHeader reports whether p is the header slot path.
func (p Path) IsHeader() bool { return p.Equal(Header()) }

func (p Path) hasBodyPrefix() bool {
	return len(p) >= PrefixLen && p[:PrefixLen].Equal(Body())
}

// IsNode reports whether p is a well-formed body path ending at a node.
func (p Path) IsNode() bool {
	return p.hasBodyPrefix() && len(p) > PrefixLen && p[len(p)-1].IsIndex() && p.alternates()
}

// IsCollection reports whether p is a well-formed body path ending at a collection.
func (p Path) IsCollection() bool {
	return p.hasBodyPrefix() && !p[len(p)-1].IsIndex() && p.alternates()
}

func (p Path) alternates() bool {
	for i := PrefixLen; i < len(p); i++ {
		wantIndex := (i-PrefixLen)%2 == 0
		if p[i].IsIndex() != wantIndex {
			return false
		}
		if !wantIndex && p[i].Key != document.KeyElements && p[i].Key != document.KeyColumns {
			return false
		}
	}
	return true
}

// Split breaks a node path into its owning collection and index.
func (p Path) Split() (Path, int, bool) {
	if !p.IsNode() {
		return nil, 0, false
	}
	return p[:len(p)-1].Clone(), p[len(p)-1].Index, true
}

// Owner returns the node path owning collection p. The body has no owner.
func (p Path) Owner() (Path, bool) {
	if !p.IsCollection() || len(p) == PrefixLen {
		return nil, false
	}
	return p[:len(p)-1].Clone(), true
}

// Depth is the number of index segments: 1 for a root node or a root
// container's collection, 2 one level further down, and so on.
func (p Path) Depth() int {
	if !p.hasBodyPrefix() {
		return 0
	}
	return (len(p) - PrefixLen + 1) / 2
}

// ExpectedContainer returns the tag a node must have to own the key segment at
// position keyPos: "columns" belongs to a ColumnSet, "elements" below a
// "columns" key belongs to a Column and any other "elements" to a Form.
func (p Path) ExpectedContainer(keyPos int) document.Tag {
	if keyPos <= PrefixLen || keyPos >= len(p) || p[keyPos].IsIndex() {
		return ""
	}
	if p[keyPos].Key == document.KeyColumns {
		return document.TagColumnSet
	}
	if p[keyPos-2].Key == document.KeyColumns {
		return document.TagColumn
	}
	return document.TagForm
}

// String renders p in dotted form, e.g. "dsl.body.elements.0.columns.1.elements".
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Parse accepts the dotted form produced by String or a JSON token array.
func Parse(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("docpath: empty path")
	}
	if strings.HasPrefix(s, "[") {
		var p Path
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	var p Path
	for _, tok := range strings.Split(s, ".") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, fmt.Errorf("docpath: empty token in %q", s)
		}
		if n, err := strconv.Atoi(tok); err == nil {
			p = append(p, Index(n))
			continue
		}
		p = append(p, Key(tok))
	}
	return p, nil
}

// MarshalJSON encodes p as a mixed array of strings and integers.
func (p Path) MarshalJSON() ([]byte, error) {
	out := make([]any, len(p))
	for i, s := range p {
		if s.IsIndex() {
			out[i] = s.Index
		} else {
			out[i] = s.Key
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a mixed array of strings and integers.
func (p *Path) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("docpath: decode: %w", err)
	}
	out := make(Path, 0, len(raw))
	for _, r := range raw {
		var key string
		if err := json.Unmarshal(r, &key); err == nil {
			out = append(out, Key(key))
			continue
		}
		var idx int
		if err := json.Unmarshal(r, &idx); err != nil {
			return fmt.Errorf("docpath: token %s is neither key nor index", r)
		}
		out = append(out, Index(idx))
	}
	*p = out
	return nil
}
