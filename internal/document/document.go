/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package document holds the in-memory model of a card: a root list of nodes
// plus one optional header slot carrying the Title. Values are treated as
// immutable; every edit builds a new Document that shares untouched subtrees
// with the previous one, so renderers can keep reading an old snapshot while a
// mutation is in flight.
package document

// Document is the card tree. Header is the out-of-band Title slot and is never
// a member of Elements.
type Document struct {
	Header   *Node
	Elements []Node
}

// SlotKind tells whether a conceptual slot is the header or a body element.
type SlotKind int

const (
	SlotHeader SlotKind = iota
	SlotBody
)

// Slot is one entry of the conceptual root sequence.
// Index is the position inside Elements, or -1 for the header.
type Slot struct {
	Kind  SlotKind
	Node  Node
	Index int
}

// Sequence returns the conceptual ordering of the root: the header first (when
// present) followed by the body elements.
func (d Document) Sequence() []Slot {
	out := make([]Slot, 0, len(d.Elements)+1)
	if d.Header != nil {
		out = append(out, Slot{Kind: SlotHeader, Node: *d.Header, Index: -1})
	}
	for i, n := range d.Elements {
		out = append(out, Slot{Kind: SlotBody, Node: n, Index: i})
	}
	return out
}

// HasTitle reports whether the header slot is occupied.
func (d Document) HasTitle() bool { return d.Header != nil }

// WithHeader returns a copy of d with the header replaced (nil clears it).
func (d Document) WithHeader(h *Node) Document {
	if h != nil {
		c := *h
		h = &c
	}
	d.Header = h
	return d
}

// WithElements returns a copy of d with the body replaced.
func (d Document) WithElements(els []Node) Document {
	d.Elements = els
	return d
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := Document{Elements: cloneNodes(d.Elements)}
	if d.Header != nil {
		h := d.Header.Clone()
		out.Header = &h
	}
	return out
}

// Walk visits the header and then every body node depth-first. Returning
// false from fn stops the walk.
func (d Document) Walk(fn func(n Node, depth int) bool) {
	if d.Header != nil && !fn(*d.Header, 0) {
		return
	}
	walkNodes(d.Elements, 0, fn)
}

func walkNodes(nodes []Node, depth int, fn func(Node, int) bool) bool {
	for _, n := range nodes {
		if !fn(n, depth) {
			return false
		}
		if !walkNodes(n.Elements, depth+1, fn) {
			return false
		}
		if !walkNodes(n.Columns, depth+1, fn) {
			return false
		}
	}
	return true
}

// Find returns the node with the given id.
func (d Document) Find(id string) (Node, bool) {
	var (
		found Node
		ok    bool
	)
	if id == "" {
		return found, false
	}
	d.Walk(func(n Node, _ int) bool {
		if n.ID == id {
			found, ok = n, true
			return false
		}
		return true
	})
	return found, ok
}

// Count returns how many nodes of the tag exist, header included.
func (d Document) Count(tag Tag) int {
	total := 0
	d.Walk(func(n Node, _ int) bool {
		if n.Tag == tag {
			total++
		}
		return true
	})
	return total
}
