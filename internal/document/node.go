/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package document

// This file defines the node model of a card document. A node is a tagged
// union: Tag selects the variant and only the fields documented for that
// variant are meaningful. The flat struct keeps the JSON shape of the card DSL
// and lets every variant round-trip through encoding/json without custom code.

// Tag discriminates the node variants.
type Tag string

const (
	TagTitle             Tag = "title"
	TagForm              Tag = "form"
	TagColumnSet         Tag = "column_set"
	TagColumn            Tag = "column"
	TagPlainText         Tag = "plain_text"
	TagRichText          Tag = "rich_text"
	TagHr                Tag = "hr"
	TagImage             Tag = "img"
	TagImageCombination  Tag = "img_combination"
	TagInput             Tag = "input"
	TagButton            Tag = "button"
	TagSelectStatic      Tag = "select_static"
	TagMultiSelectStatic Tag = "multi_select_static"
)

// Collection keys used by container nodes and by paths.
const (
	KeyElements = "elements"
	KeyColumns  = "columns"
)

// Button action types. A Column holding a reset button is guarded against removal.
const (
	ActionSubmit  = "form_submit"
	ActionReset   = "form_reset"
	ActionRequest = "request"
	ActionLink    = "link"
)

// Column width modes.
const (
	WidthWeighted = "weighted"
	WidthAuto     = "auto"
)

// Tags lists every supported tag in palette order.
var Tags = []Tag{
	TagTitle, TagForm, TagColumnSet, TagColumn,
	TagPlainText, TagRichText, TagHr, TagImage, TagImageCombination,
	TagInput, TagButton, TagSelectStatic, TagMultiSelectStatic,
}

var knownTags = func() map[Tag]struct{} {
	m := make(map[Tag]struct{}, len(Tags))
	for _, t := range Tags {
		m[t] = struct{}{}
	}
	return m
}()

// Known reports whether t is one of the supported variants.
func (t Tag) Known() bool {
	_, ok := knownTags[t]
	return ok
}

// ChildKey returns the collection key a container owns, or "" for leaves.
func (t Tag) ChildKey() string {
	switch t {
	case TagForm, TagColumn:
		return KeyElements
	case TagColumnSet:
		return KeyColumns
	default:
		return ""
	}
}

// IsContainer reports whether nodes of this tag own a child collection.
func (t Tag) IsContainer() bool { return t.ChildKey() != "" }

// InputLike reports whether the tag carries a form-only `required` flag.
func (t Tag) InputLike() bool {
	return t == TagInput || t == TagSelectStatic || t == TagMultiSelectStatic
}

// Option is a single choice of a static select.
type Option struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// Node is one addressable unit of the card tree.
type Node struct {
	ID  string `json:"id"`
	Tag Tag    `json:"tag"`

	// Title
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Theme    string `json:"theme,omitempty"`

	// Form, input-like leaves and buttons (form field name)
	Name string `json:"name,omitempty"`

	// Form, Column
	Elements []Node `json:"elements,omitempty"`

	// ColumnSet
	Columns           []Node `json:"columns,omitempty"`
	FlexMode          string `json:"flex_mode,omitempty"`
	HorizontalSpacing string `json:"horizontal_spacing,omitempty"`

	// Column
	Width         string  `json:"width,omitempty"`
	Weight        float64 `json:"weight,omitempty"`
	VerticalAlign string  `json:"vertical_align,omitempty"`

	// PlainText, RichText
	Content   string `json:"content,omitempty"`
	TextSize  string `json:"text_size,omitempty"`
	TextAlign string `json:"text_align,omitempty"`

	// Image, ImageCombination
	ImgKey          string   `json:"img_key,omitempty"`
	Alt             string   `json:"alt,omitempty"`
	ImgList         []string `json:"img_list,omitempty"`
	CombinationMode string   `json:"combination_mode,omitempty"`

	// Input, SelectStatic, MultiSelectStatic
	Label          string   `json:"label,omitempty"`
	Placeholder    string   `json:"placeholder,omitempty"`
	DefaultValue   string   `json:"default_value,omitempty"`
	Required       bool     `json:"required,omitempty"`
	Options        []Option `json:"options,omitempty"`
	InitialOption  string   `json:"initial_option,omitempty"`
	InitialOptions []string `json:"initial_options,omitempty"`

	// Button
	Text       string `json:"text,omitempty"`
	ButtonType string `json:"type,omitempty"`
	ActionType string `json:"action_type,omitempty"`
	URL        string `json:"url,omitempty"`
}

// Children returns the collection stored under key and whether the node's
// shape owns such a collection at all.
func (n Node) Children(key string) ([]Node, bool) {
	if key == "" || n.Tag.ChildKey() != key {
		return nil, false
	}
	if key == KeyColumns {
		return n.Columns, true
	}
	return n.Elements, true
}

// WithChildren returns a copy of n whose collection under key is replaced.
// The caller must pass a key the node owns.
func (n Node) WithChildren(key string, children []Node) Node {
	switch key {
	case KeyColumns:
		n.Columns = children
	case KeyElements:
		n.Elements = children
	}
	return n
}

// Clone returns a deep copy that shares no slices with n.
func (n Node) Clone() Node {
	out := n
	out.Elements = cloneNodes(n.Elements)
	out.Columns = cloneNodes(n.Columns)
	if n.ImgList != nil {
		out.ImgList = append([]string(nil), n.ImgList...)
	}
	if n.Options != nil {
		out.Options = append([]Option(nil), n.Options...)
	}
	if n.InitialOptions != nil {
		out.InitialOptions = append([]string(nil), n.InitialOptions...)
	}
	return out
}

func cloneNodes(in []Node) []Node {
	if in == nil {
		return nil
	}
	out := make([]Node, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// IsResetButton reports whether n is a button wired to reset its form.
func (n Node) IsResetButton() bool {
	return n.Tag == TagButton && n.ActionType == ActionReset
}

// Guarded reports whether n is a column that must not be removed: it holds a
// reset-type action button among its direct elements.
func (n Node) Guarded() bool {
	if n.Tag != TagColumn {
		return false
	}
	for _, el := range n.Elements {
		if el.IsResetButton() {
			return true
		}
	}
	return false
}

// FlexWeight is the column weight used for redistribution; unset weights count as 1.
func (n Node) FlexWeight() float64 {
	if n.Weight <= 0 {
		return 1
	}
	return n.Weight
}

// Contains reports whether a node with the given tag exists in n's subtree,
// n itself included.
func (n Node) Contains(tag Tag) bool {
	if n.Tag == tag {
		return true
	}
	for _, c := range n.Elements {
		if c.Contains(tag) {
			return true
		}
	}
	for _, c := range n.Columns {
		if c.Contains(tag) {
			return true
		}
	}
	return false
}

// ClearRequired returns a copy of n with `required` cleared on every
// input-like node of its subtree. Forms are left untouched because their
// descendants keep the meaning of the flag.
func (n Node) ClearRequired() Node {
	if n.Tag == TagForm {
		return n
	}
	if n.Tag.InputLike() {
		n.Required = false
	}
	if len(n.Elements) > 0 {
		els := make([]Node, len(n.Elements))
		for i, c := range n.Elements {
			els[i] = c.ClearRequired()
		}
		n.Elements = els
	}
	if len(n.Columns) > 0 {
		cols := make([]Node, len(n.Columns))
		for i, c := range n.Columns {
			cols[i] = c.ClearRequired()
		}
		n.Columns = cols
	}
	return n
}
