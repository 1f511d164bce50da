// Copyright 2021 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	yamlv3 "gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/ident"
)

//go:embed schema/flow.schema.json
var embeddedSchema []byte

var schemaLoader = gojsonschema.NewBytesLoader(embeddedSchema)

// LoadAndValidateBundle runs the full flow compile pipeline: schema
// validation against the embedded flow schema, YAML parse into FlowDoc,
// FlowDoc compile into the Flow IR, canonical JSON encoding, and a BLAKE3
// hash of the canonical bytes. sourcePath is used only to annotate
// diagnostics; pass "" for inline/in-memory documents.
func LoadAndValidateBundle(yamlDoc []byte, sourcePath string) (*FlowBundle, *Flow, error) {
	jsonDoc, err := sigsyaml.YAMLToJSON(yamlDoc)
	if err != nil {
		return nil, nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeFlowParseError,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "parse flow yaml").Error(),
			Location: diagnostics.Location{Path: sourcePath, Span: parseSpan(yamlDoc)},
		}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(jsonDoc))
	if err != nil {
		return nil, nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeFlowSchemaInvalid,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "validate flow schema").Error(),
			Location: diagnostics.Location{Path: sourcePath},
		}
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return nil, nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeFlowSchemaInvalid,
			Severity: diagnostics.SeverityFatal,
			Message:  first.String(),
			Location: diagnostics.Location{Path: sourcePath, Span: first.Field()},
		}
	}

	var doc FlowDoc
	if err := json.Unmarshal(jsonDoc, &doc); err != nil {
		return nil, nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeFlowParseError,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "decode flow document").Error(),
			Location: diagnostics.Location{Path: sourcePath},
		}
	}

	compiled, err := compileFlow(doc, sourcePath)
	if err != nil {
		return nil, nil, err
	}

	canonicalJSON, err := canonicalizeJSON(jsonDoc)
	if err != nil {
		return nil, nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeFlowCompileError,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "canonicalize flow json").Error(),
			Location: diagnostics.Location{Path: sourcePath},
		}
	}

	hash := ident.BLAKE3Hex(canonicalJSON)

	bundle := &FlowBundle{
		ID:         doc.ID,
		Kind:       doc.Kind,
		Entry:      resolveEntry(doc),
		YAML:       string(yamlDoc),
		JSON:       canonicalJSON,
		HashBLAKE3: hash,
		Nodes:      extractComponentPins(*compiled),
	}
	return bundle, compiled, nil
}

// parseSpan re-parses a broken YAML document with a position-aware decoder
// to recover the offending line for the diagnostic span. Returns "" when
// the document parses cleanly at that layer (the failure was structural,
// not syntactic).
func parseSpan(yamlDoc []byte) string {
	var node yamlv3.Node
	err := yamlv3.Unmarshal(yamlDoc, &node)
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.Index(msg, "line "); idx >= 0 {
		span := msg[idx+len("line "):]
		if end := strings.IndexByte(span, ':'); end > 0 {
			return span[:end]
		}
	}
	return ""
}

// compileFlow validates routing invariants and produces the Flow IR: every
// node id referenced by "to" must name a known node, and an explicit start
// must refer to a known node.
func compileFlow(doc FlowDoc, sourcePath string) (*Flow, error) {
	if doc.Start != "" {
		if _, ok := doc.Nodes[doc.Start]; !ok {
			return nil, diagnostics.Diagnostic{
				Code:     diagnostics.CodeFlowCompileError,
				Severity: diagnostics.SeverityFatal,
				Message:  fmt.Sprintf("start node %q is not defined", doc.Start),
				Location: diagnostics.Location{Path: sourcePath},
			}
		}
	}

	nodes := make(map[string]IRNode, len(doc.Nodes))
	for id, n := range doc.Nodes {
		for _, target := range n.To {
			if _, ok := doc.Nodes[target]; !ok {
				return nil, diagnostics.Diagnostic{
					Code:     diagnostics.CodeFlowCompileError,
					Severity: diagnostics.SeverityFatal,
					Message:  fmt.Sprintf("node %q routes to undefined node %q", id, target),
					Location: diagnostics.Location{Path: sourcePath, Span: "nodes." + id},
				}
			}
		}
		nodes[id] = IRNode{
			NodeID: id,
			Component: ComponentPin{
				Name:       componentName(n.Component),
				VersionReq: wildcardVersionReq,
			},
			Operation: n.Component.Operation,
			Input:     n.Input,
			To:        n.To,
			SchemaRef: n.SchemaRef,
		}
	}

	return &Flow{ID: doc.ID, Kind: doc.Kind, Nodes: nodes}, nil
}

// canonicalizeJSON recursively sorts every object's keys and re-encodes the
// document, producing the same bytes for any two structurally-equal JSON
// documents regardless of original key order.
func canonicalizeJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(sortKeys(v))
}

func sortKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, orderedEntry{key: k, value: sortKeys(val[k])})
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sortKeys(item)
		}
		return out
	default:
		return val
	}
}

// orderedMap preserves explicit key order through json.Marshal, which
// encoding/json cannot do for a plain map[string]interface{}.
type orderedEntry struct {
	key   string
	value interface{}
}

type orderedMap []orderedEntry

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, e := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
