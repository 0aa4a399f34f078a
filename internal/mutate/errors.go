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
)

// Kind classifies engine failures. Every failure is recovered at the
// operation boundary: the caller gets the unchanged document back.
type Kind int

const (
	KindPathResolution Kind = iota + 1
	KindInvariantViolation
	KindMoveVerification
	KindInvalidNodeShape
)

func (k Kind) String() string {
	switch k {
	case KindPathResolution:
		return "path resolution failure"
	case KindInvariantViolation:
		return "invariant violation"
	case KindMoveVerification:
		return "move verification failure"
	case KindInvalidNodeShape:
		return "invalid node shape"
	}
	return "unknown failure"
}

// Kind sentinels, matched with errors.Is against any *Error.
var (
	ErrPathResolution     = errors.New("mutate: path resolution failure")
	ErrInvariantViolation = errors.New("mutate: invariant violation")
	ErrMoveVerification   = errors.New("mutate: move verification failure")
	ErrInvalidNodeShape   = errors.New("mutate: invalid node shape")
)

// Detailed causes carried in Error.Err.
var (
	ErrDuplicateForm         = errors.New("document already holds a form")
	ErrGuardedColumn         = errors.New("column holds a reset action and cannot be removed")
	ErrFormNesting           = errors.New("a form cannot be placed inside a form")
	ErrTitlePosition         = errors.New("title must stay first in the header slot")
	ErrIncompatibleTarget    = errors.New("target container cannot hold this node")
	ErrNoCompatibleContainer = errors.New("no compatible container to recover the target path")
	ErrOwnSubtree            = errors.New("cannot drop a node into itself or its own subtree")
	ErrEmptyColumnSet        = errors.New("column set needs at least one column")
	ErrNotANode              = errors.New("path does not address a node")
	ErrNotACollection        = errors.New("path does not address a collection")
	ErrDuplicateID           = errors.New("node id is not unique")
)

// Error is the structured failure returned by every engine operation.
type Error struct {
	Op   string
	Kind Kind
	Path docpath.Path
	Err  error
}

func (e *Error) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("mutate: %s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("mutate: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinel belonging to e.Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrPathResolution:
		return e.Kind == KindPathResolution
	case ErrInvariantViolation:
		return e.Kind == KindInvariantViolation
	case ErrMoveVerification:
		return e.Kind == KindMoveVerification
	case ErrInvalidNodeShape:
		return e.Kind == KindInvalidNodeShape
	}
	return false
}

// KindOf extracts the failure kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func fail(op string, kind Kind, p docpath.Path, err error) *Error {
	return &Error{Op: op, Kind: kind, Path: p.Clone(), Err: err}
}
