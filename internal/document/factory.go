/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package document

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh node id prefixed with the tag, e.g. "button_1f0c2a9e".
func NewID(tag Tag) string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if tag == "" {
		return short
	}
	return string(tag) + "_" + short
}

// NewComponent builds a fully populated default node for tag with a fresh id.
// Containers get their structural scaffold: a Form carries one ColumnSet whose
// single Column holds the Submit and Cancel buttons, a ColumnSet carries two
// weighted columns.
func NewComponent(tag Tag) (Node, error) {
	id := NewID(tag)
	switch tag {
	case TagTitle:
		return Node{ID: id, Tag: tag, Title: "Card title", Subtitle: "", Theme: "blue"}, nil
	case TagForm:
		return Node{
			ID:   id,
			Tag:  tag,
			Name: "Form_" + id[len(tag)+1:],
			Elements: []Node{
				{
					ID:                NewID(TagColumnSet),
					Tag:               TagColumnSet,
					FlexMode:          "none",
					HorizontalSpacing: "default",
					Columns: []Node{
						{
							ID:            NewID(TagColumn),
							Tag:           TagColumn,
							Width:         WidthAuto,
							Weight:        1,
							VerticalAlign: "top",
							Elements:      []Node{SubmitButton(), CancelButton()},
						},
					},
				},
			},
		}, nil
	case TagColumnSet:
		return Node{
			ID:                id,
			Tag:               tag,
			FlexMode:          "none",
			HorizontalSpacing: "default",
			Columns:           []Node{DefaultColumn(), DefaultColumn()},
		}, nil
	case TagColumn:
		n := DefaultColumn()
		return n, nil
	case TagPlainText:
		return Node{ID: id, Tag: tag, Content: "Text", TextSize: "normal", TextAlign: "left"}, nil
	case TagRichText:
		return Node{ID: id, Tag: tag, Content: SanitizeRichText("<p>Rich text</p>"), TextSize: "normal", TextAlign: "left"}, nil
	case TagHr:
		return Node{ID: id, Tag: tag}, nil
	case TagImage:
		return Node{ID: id, Tag: tag, ImgKey: "img_placeholder", Alt: "Image"}, nil
	case TagImageCombination:
		return Node{
			ID:              id,
			Tag:             tag,
			CombinationMode: "double",
			ImgList:         []string{"img_placeholder", "img_placeholder"},
		}, nil
	case TagInput:
		return Node{
			ID:          id,
			Tag:         tag,
			Name:        "Input_" + id[len(tag)+1:],
			Label:       "Input",
			Placeholder: "Please enter",
		}, nil
	case TagButton:
		return Node{ID: id, Tag: tag, Text: "Button", ButtonType: "default", ActionType: ActionRequest}, nil
	case TagSelectStatic, TagMultiSelectStatic:
		return Node{
			ID:          id,
			Tag:         tag,
			Name:        "Select_" + id[len(tag)+1:],
			Placeholder: "Please select",
			Options: []Option{
				{Text: "Option 1", Value: "1"},
				{Text: "Option 2", Value: "2"},
			},
		}, nil
	default:
		return Node{}, fmt.Errorf("document: unsupported component tag %q", tag)
	}
}

// DefaultColumn returns an empty weighted column.
func DefaultColumn() Node {
	return Node{
		ID:            NewID(TagColumn),
		Tag:           TagColumn,
		Width:         WidthWeighted,
		Weight:        1,
		VerticalAlign: "top",
		Elements:      []Node{},
	}
}

// SubmitButton returns the default submit action of a form.
func SubmitButton() Node {
	id := NewID(TagButton)
	return Node{ID: id, Tag: TagButton, Name: "Submit_" + id[len(TagButton)+1:], Text: "Submit", ButtonType: "primary", ActionType: ActionSubmit}
}

// CancelButton returns the default reset action of a form.
func CancelButton() Node {
	id := NewID(TagButton)
	return Node{ID: id, Tag: TagButton, Name: "Cancel_" + id[len(TagButton)+1:], Text: "Cancel", ButtonType: "default", ActionType: ActionReset}
}

// FormScaffold is the two-column ColumnSet created the first time a child is
// dropped into an empty Form body.
func FormScaffold() Node {
	return Node{
		ID:                NewID(TagColumnSet),
		Tag:               TagColumnSet,
		FlexMode:          "none",
		HorizontalSpacing: "default",
		Columns:           []Node{DefaultColumn(), DefaultColumn()},
	}
}
