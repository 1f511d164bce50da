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

// Package flow compiles FlowDoc YAML documents into the canonical Flow IR
// and the deterministic FlowBundle used for hashing and component pinning.
package flow

import "sort"

// sentinelExecComponent is the component id that defers its pin name to the
// node's operation field, rather than naming a component directly.
const sentinelExecComponent = "component.exec"

// wildcardVersionReq is applied to every extracted component pin; explicit
// per-pin version requirements are reserved for future use.
const wildcardVersionReq = "*"

// ComponentRef is the raw component binding as written in a FlowDoc node.
type ComponentRef struct {
	ID        string `yaml:"id" json:"id"`
	Operation string `yaml:"operation,omitempty" json:"operation,omitempty"`
}

// NodeDoc is one node of a FlowDoc.
type NodeDoc struct {
	Component ComponentRef           `yaml:"component" json:"component"`
	Input     map[string]interface{} `yaml:"input,omitempty" json:"input,omitempty"`
	To        []string               `yaml:"to,omitempty" json:"to,omitempty"`
	SchemaRef string                 `yaml:"schemaRef,omitempty" json:"schemaRef,omitempty"`
}

// FlowDoc is the schema-validated YAML model of a flow.
type FlowDoc struct {
	ID          string             `yaml:"id" json:"id"`
	Kind        string             `yaml:"kind" json:"kind"`
	Start       string             `yaml:"start,omitempty" json:"start,omitempty"`
	Tags        []string           `yaml:"tags,omitempty" json:"tags,omitempty"`
	Entrypoints []string           `yaml:"entrypoints,omitempty" json:"entrypoints,omitempty"`
	Nodes       map[string]NodeDoc `yaml:"nodes" json:"nodes"`
}

// ComponentPin names a component and the version requirement a flow node
// places on it.
type ComponentPin struct {
	Name       string `json:"name"`
	VersionReq string `json:"versionReq"`
}

// IRNode is one compiled node of the Flow IR.
type IRNode struct {
	NodeID    string                 `json:"nodeId"`
	Component ComponentPin           `json:"component"`
	Operation string                 `json:"operation,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	To        []string               `json:"to,omitempty"`
	SchemaRef string                 `json:"schemaRef,omitempty"`
}

// Flow is the compiled canonical form of a FlowDoc, used for pinning and
// hashing.
type Flow struct {
	ID    string             `json:"id"`
	Kind  string             `json:"kind"`
	Nodes map[string]IRNode  `json:"nodes"`
}

// NodeRef records one node's component pin and optional schema reference
// for inclusion in a FlowBundle.
type NodeRef struct {
	NodeID    string       `json:"nodeId"`
	Component ComponentPin `json:"component"`
	SchemaID  *string      `json:"schemaId"`
}

// FlowBundle is the deterministic, hashable artifact produced for one flow.
type FlowBundle struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Entry      string    `json:"entry"`
	YAML       string    `json:"-"`
	JSON       []byte    `json:"-"`
	HashBLAKE3 string    `json:"hashBlake3"`
	Nodes      []NodeRef `json:"nodes"`
}

// componentName resolves the pin name for a node: the sentinel exec
// component defers to the node's operation field, any other component id
// names the pin directly.
func componentName(ref ComponentRef) string {
	if ref.ID == sentinelExecComponent {
		if ref.Operation != "" {
			return ref.Operation
		}
		return sentinelExecComponent
	}
	return ref.ID
}

// extractComponentPins walks a compiled Flow's nodes in a stable order and
// returns each node's resolved component pin.
func extractComponentPins(f Flow) []NodeRef {
	ids := make([]string, 0, len(f.Nodes))
	for id := range f.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	refs := make([]NodeRef, 0, len(ids))
	for _, id := range ids {
		node := f.Nodes[id]
		refs = append(refs, NodeRef{
			NodeID:    id,
			Component: node.Component,
			SchemaID:  nilIfEmpty(node.SchemaRef),
		})
	}
	return refs
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// resolveEntry implements the entry resolution order: explicit start, else
// a node named "in", else the first node in insertion (map) order. Go maps
// have no insertion order, so "first node" falls back to the lexicographic
// minimum, the same deterministic tie-break canonical hashing already
// relies on elsewhere in this package.
func resolveEntry(doc FlowDoc) string {
	if doc.Start != "" {
		return doc.Start
	}
	if _, ok := doc.Nodes["in"]; ok {
		return "in"
	}
	ids := make([]string, 0, len(doc.Nodes))
	for id := range doc.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
