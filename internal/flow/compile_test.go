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
	"testing"

	"github.com/greenticai/packc/internal/diagnostics"
)

const validFlowYAML = `
id: demo.flow
kind: http
nodes:
  in:
    component:
      id: component.exec
      operation: receive-webhook
    to: [respond]
  respond:
    component:
      id: ai.greentic.component-responder
`

func TestLoadAndValidateBundleResolvesEntryFromIn(t *testing.T) {
	bundle, compiled, err := LoadAndValidateBundle([]byte(validFlowYAML), "flow.yaml")
	if err != nil {
		t.Fatalf("LoadAndValidateBundle: %v", err)
	}
	if bundle.Entry != "in" {
		t.Errorf("Entry = %q, want \"in\"", bundle.Entry)
	}
	if len(compiled.Nodes) != 2 {
		t.Fatalf("compiled.Nodes = %d, want 2", len(compiled.Nodes))
	}
	if bundle.HashBLAKE3 == "" {
		t.Error("HashBLAKE3 is empty")
	}
}

func TestLoadAndValidateBundleIsDeterministic(t *testing.T) {
	first, _, err := LoadAndValidateBundle([]byte(validFlowYAML), "")
	if err != nil {
		t.Fatalf("LoadAndValidateBundle: %v", err)
	}
	second, _, err := LoadAndValidateBundle([]byte(validFlowYAML), "")
	if err != nil {
		t.Fatalf("LoadAndValidateBundle: %v", err)
	}
	if first.HashBLAKE3 != second.HashBLAKE3 {
		t.Errorf("hash not stable: %s != %s", first.HashBLAKE3, second.HashBLAKE3)
	}
}

func TestExtractComponentPinsUsesOperationForSentinel(t *testing.T) {
	bundle, _, err := LoadAndValidateBundle([]byte(validFlowYAML), "")
	if err != nil {
		t.Fatalf("LoadAndValidateBundle: %v", err)
	}
	var inPin, respondPin ComponentPin
	for _, n := range bundle.Nodes {
		switch n.NodeID {
		case "in":
			inPin = n.Component
		case "respond":
			respondPin = n.Component
		}
	}
	if inPin.Name != "receive-webhook" {
		t.Errorf("in node pin = %q, want receive-webhook (sentinel resolves to operation)", inPin.Name)
	}
	if inPin.VersionReq != "*" {
		t.Errorf("in node version req = %q, want *", inPin.VersionReq)
	}
	if respondPin.Name != "ai.greentic.component-responder" {
		t.Errorf("respond node pin = %q, want component id", respondPin.Name)
	}
}

func TestLoadAndValidateBundleRejectsUndefinedRoute(t *testing.T) {
	const badYAML = `
id: demo.flow
kind: http
nodes:
  in:
    component:
      id: ai.greentic.component-a
    to: [ghost]
`
	_, _, err := LoadAndValidateBundle([]byte(badYAML), "flow.yaml")
	if err == nil {
		t.Fatal("expected FlowCompileError for route to undefined node")
	}
	d, ok := err.(diagnostics.Diagnostic)
	if !ok || d.Code != diagnostics.CodeFlowCompileError {
		t.Fatalf("got %v, want CodeFlowCompileError diagnostic", err)
	}
}

func TestLoadAndValidateBundleRejectsSchemaInvalid(t *testing.T) {
	const badYAML = `
id: demo.flow
kind: not-a-real-kind
nodes:
  in:
    component:
      id: ai.greentic.component-a
`
	_, _, err := LoadAndValidateBundle([]byte(badYAML), "flow.yaml")
	if err == nil {
		t.Fatal("expected FlowSchemaInvalid for unknown kind")
	}
	d, ok := err.(diagnostics.Diagnostic)
	if !ok || d.Code != diagnostics.CodeFlowSchemaInvalid {
		t.Fatalf("got %v, want CodeFlowSchemaInvalid diagnostic", err)
	}
}

func TestCanonicalizeJSONIsOrderInvariant(t *testing.T) {
	a, err := canonicalizeJSON([]byte(`{"b":1,"a":2}`))
	if err != nil {
		t.Fatalf("canonicalizeJSON: %v", err)
	}
	b, err := canonicalizeJSON([]byte(`{"a":2,"b":1}`))
	if err != nil {
		t.Fatalf("canonicalizeJSON: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("canonicalizeJSON not order-invariant: %s != %s", a, b)
	}
}
