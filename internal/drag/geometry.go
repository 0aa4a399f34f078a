/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package drag

// Screen geometry for hover hit-testing. Float values use float32 to align
// with the UI toolkits that report pointer positions.

// Pt is a pointer position.
type Pt struct{ X, Y float32 }

// Rect is an axis-aligned bounding box defined by its min corner and size.
type Rect struct {
	X, Y float32
	W, H float32
}

// R builds a Rect from its min corner and size.
func R(x, y, w, h float32) Rect { return Rect{X: x, Y: y, W: w, H: h} }

// Center returns the midpoint of r.
func (r Rect) Center() Pt { return Pt{r.X + r.W/2, r.Y + r.H/2} }

// Axis is the direction siblings are laid out along.
type Axis int

const (
	// Vertical stacks siblings top to bottom (element lists).
	Vertical Axis = iota
	// Horizontal places siblings left to right (columns).
	Horizontal
)

func (a Axis) coord(p Pt) float32 {
	if a == Horizontal {
		return p.X
	}
	return p.Y
}

// InsertionIndex runs the before/after midpoint test: the pointer goes in
// front of the first sibling whose midpoint along axis lies beyond it, or
// after the last sibling.
func InsertionIndex(p Pt, siblings []Rect, axis Axis) int {
	at := axis.coord(p)
	for i, r := range siblings {
		if at < axis.coord(r.Center()) {
			return i
		}
	}
	return len(siblings)
}
