/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package docpath

import (
	"errors"
	"fmt"

	"cardbuilder/internal/document"
)

// Resolution failures. Every *ResolveError wraps exactly one of these.
var (
	ErrMalformedPrefix = errors.New("malformed path prefix")
	ErrExpectedIndex   = errors.New("expected index segment")
	ErrExpectedKey     = errors.New("expected collection key")
	ErrShapeMismatch   = errors.New("collection key does not match node shape")
	ErrEmptyCollection = errors.New("empty collection has no index to clamp to")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrNegativeIndex   = errors.New("negative index")
	ErrEmptyHeader     = errors.New("header slot is empty")
)

// ResolveError describes where and why a path failed to resolve.
type ResolveError struct {
	Path Path
	// Pos is the offset of the offending segment inside Path.
	Pos int
	// Found is the tag of the node whose shape rejected the key, if any.
	Found  document.Tag
	Reason error
}

func (e *ResolveError) Error() string {
	if e.Found != "" {
		return fmt.Sprintf("docpath: resolve %s at segment %d (%s): %v", e.Path, e.Pos, e.Found, e.Reason)
	}
	return fmt.Sprintf("docpath: resolve %s at segment %d: %v", e.Path, e.Pos, e.Reason)
}

func (e *ResolveError) Unwrap() error { return e.Reason }

// Kind tells what a path resolved to.
type Kind int

const (
	KindHeader Kind = iota
	KindNode
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindNode:
		return "node"
	case KindCollection:
		return "collection"
	}
	return "unknown"
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	Kind Kind
	// Path is the normalised address, with clamped indices substituted.
	Path Path
	// Node is the addressed node for KindNode and KindHeader.
	Node document.Node
	// Collection is the addressed collection for KindCollection, or the
	// collection owning Node for KindNode.
	Collection []document.Node
	// Index is Node's position inside Collection.
	Index int
	// Owner is the container owning Collection; nil for the root list.
	Owner *document.Node
	// Ancestors lists the container tags traversed, outermost first.
	Ancestors []document.Tag
	// Clamped is set when at least one index was out of range.
	Clamped bool
}

// InForm reports whether the resolved item lies below a Form.
func (r Resolution) InForm() bool {
	for _, t := range r.Ancestors {
		if t == document.TagForm {
			return true
		}
	}
	return false
}

// Options tune resolution.
type Options struct {
	// Strict fails out-of-range indices instead of clamping them.
	Strict bool
}

// Resolve walks p against doc by recursive descent, consuming one index and
// one key per level and checking each key against the actual node shape.
// Out-of-range indices are clamped to the last valid index unless
// opts.Strict is set. Failures are returned as *ResolveError.
func Resolve(doc document.Document, p Path, opts Options) (Resolution, error) {
	if p.IsHeader() {
		if doc.Header == nil {
			return Resolution{}, &ResolveError{Path: p, Pos: 1, Reason: ErrEmptyHeader}
		}
		return Resolution{Kind: KindHeader, Path: p.Clone(), Node: *doc.Header, Index: -1}, nil
	}
	if !p.hasBodyPrefix() {
		return Resolution{}, &ResolveError{Path: p, Pos: 0, Reason: ErrMalformedPrefix}
	}
	r := resolver{path: p, opts: opts}
	res := Resolution{Path: Body()}
	if err := r.descend(doc.Elements, nil, PrefixLen, &res); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

type resolver struct {
	path Path
	opts Options
}

func (r *resolver) fail(pos int, found document.Tag, reason error) error {
	return &ResolveError{Path: r.path, Pos: pos, Found: found, Reason: reason}
}

func (r *resolver) descend(coll []document.Node, owner *document.Node, pos int, res *Resolution) error {
	if pos == len(r.path) {
		res.Kind = KindCollection
		res.Collection = coll
		res.Owner = owner
		res.Index = -1
		return nil
	}
	seg := r.path[pos]
	if !seg.IsIndex() {
		return r.fail(pos, "", ErrExpectedIndex)
	}
	i := seg.Index
	if i < 0 {
		return r.fail(pos, "", ErrNegativeIndex)
	}
	if len(coll) == 0 {
		return r.fail(pos, "", ErrEmptyCollection)
	}
	if i >= len(coll) {
		if r.opts.Strict {
			return r.fail(pos, "", ErrIndexOutOfRange)
		}
		i = len(coll) - 1
		res.Clamped = true
	}
	res.Path = append(res.Path, Index(i))
	node := coll[i]
	if pos+1 == len(r.path) {
		res.Kind = KindNode
		res.Node = node
		res.Collection = coll
		res.Index = i
		res.Owner = owner
		return nil
	}
	keySeg := r.path[pos+1]
	if keySeg.IsIndex() {
		return r.fail(pos+1, node.Tag, ErrExpectedKey)
	}
	children, ok := node.Children(keySeg.Key)
	if !ok {
		return r.fail(pos+1, node.Tag, ErrShapeMismatch)
	}
	res.Path = append(res.Path, keySeg)
	res.Ancestors = append(res.Ancestors, node.Tag)
	return r.descend(children, &node, pos+2, res)
}

// Revalidate resolves p strictly and reports whether it still addresses a
// node or collection. Selection holders call it after every mutation.
func Revalidate(doc document.Document, p Path) (Resolution, bool) {
	res, err := Resolve(doc, p, Options{Strict: true})
	return res, err == nil
}

// Locate returns the path of the node with the given id.
func Locate(doc document.Document, id string) (Path, bool) {
	if id == "" {
		return nil, false
	}
	if doc.Header != nil && doc.Header.ID == id {
		return Header(), true
	}
	return locateIn(doc.Elements, Body(), id)
}

func locateIn(coll []document.Node, at Path, id string) (Path, bool) {
	for i, n := range coll {
		here := at.At(i)
		if n.ID == id {
			return here, true
		}
		key := n.Tag.ChildKey()
		if key == "" {
			continue
		}
		children, _ := n.Children(key)
		if p, ok := locateIn(children, here.Child(key), id); ok {
			return p, true
		}
	}
	return nil, false
}

// FirstContainer returns the node path of the first node with the given tag
// in a pre-order walk of the root list.
func FirstContainer(doc document.Document, tag document.Tag) (Path, bool) {
	return firstIn(doc.Elements, Body(), tag)
}

func firstIn(coll []document.Node, at Path, tag document.Tag) (Path, bool) {
	for i, n := range coll {
		here := at.At(i)
		if n.Tag == tag {
			return here, true
		}
		key := n.Tag.ChildKey()
		if key == "" {
			continue
		}
		children, _ := n.Children(key)
		if p, ok := firstIn(children, here.Child(key), tag); ok {
			return p, true
		}
	}
	return nil, false
}
