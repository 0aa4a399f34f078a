/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package document

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed card.schema.json
var cardSchema []byte

// SchemaError lists every envelope violation found by ValidateEnvelope.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return "document: schema violation: " + strings.Join(e.Violations, "; ")
}

// ErrSchema is matched by every *SchemaError through errors.Is.
var ErrSchema = errors.New("document: schema violation")

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(cardSchema))
	})
	return schema, schemaErr
}

// Schema returns the raw embedded JSON schema of the card envelope.
func Schema() []byte { return append([]byte(nil), cardSchema...) }

// ValidateEnvelope checks data against the embedded card schema. The schema
// pins the dsl/body/elements envelope and the JSON types of node fields; tag
// and id presence are left to Decode so that bad nodes can be isolated.
func ValidateEnvelope(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("document: compile schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("document: validate: %w", err)
	}
	if res.Valid() {
		return nil
	}
	out := &SchemaError{}
	for _, e := range res.Errors() {
		out.Violations = append(out.Violations, e.String())
	}
	return out
}

var (
	richTextPolicyOnce sync.Once
	richTextPolicy     *bluemonday.Policy
)

// SanitizeRichText strips markup the card renderer must never receive
// (scripts, event handlers, iframes) while keeping ordinary formatting.
func SanitizeRichText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	richTextPolicyOnce.Do(func() {
		richTextPolicy = bluemonday.UGCPolicy()
	})
	return strings.TrimSpace(richTextPolicy.Sanitize(trimmed))
}
