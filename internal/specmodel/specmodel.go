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

// Package specmodel holds the typed, in-memory representation of a pack's
// pack.yaml and the loader that produces it from a pack directory.
package specmodel

import (
	"github.com/Masterminds/semver/v3"

	"github.com/greenticai/packc/internal/ident"
)

// Kind enumerates the supported pack kinds. RolloutStrategy is reserved and
// must be rejected by the loader.
type Kind string

const (
	KindApplication             Kind = "application"
	KindSourceProvider          Kind = "source-provider"
	KindScanner                 Kind = "scanner"
	KindSigning                 Kind = "signing"
	KindAttestation              Kind = "attestation"
	KindPolicyEngine            Kind = "policy-engine"
	KindOciProvider              Kind = "oci-provider"
	KindBillingProvider          Kind = "billing-provider"
	KindSearchProvider           Kind = "search-provider"
	KindRecommendationProvider   Kind = "recommendation-provider"
	KindDistributionBundle       Kind = "distribution-bundle"
	// KindRolloutStrategy is reserved for a future phase; LoadSpec rejects
	// it with KindReserved.
	KindRolloutStrategy Kind = "rollout-strategy"
)

var validKinds = map[Kind]bool{
	KindApplication:           true,
	KindSourceProvider:        true,
	KindScanner:               true,
	KindSigning:               true,
	KindAttestation:           true,
	KindPolicyEngine:          true,
	KindOciProvider:           true,
	KindBillingProvider:       true,
	KindSearchProvider:        true,
	KindRecommendationProvider: true,
	KindDistributionBundle:    true,
}

// Import is a dependency on another pack.
type Import struct {
	PackID     string `yaml:"packId" json:"packId"`
	VersionReq string `yaml:"version" json:"version"`
}

// FlowRef references a flow document owned by this pack.
type FlowRef struct {
	ID          string   `yaml:"id" json:"id"`
	File        string   `yaml:"file" json:"file"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Entrypoints []string `yaml:"entrypoints,omitempty" json:"entrypoints,omitempty"`
}

// ComponentDecl declares a component used by this pack, either embedded or
// resolved externally by the component resolver.
type ComponentDecl struct {
	ID      string `yaml:"id" json:"id"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
	Source  string `yaml:"source,omitempty" json:"source,omitempty"`
}

// ProviderInterface declares a provider interface this pack implements or
// consumes.
type ProviderInterface struct {
	Name string `yaml:"name" json:"name"`
	Ref  string `yaml:"ref,omitempty" json:"ref,omitempty"`
}

// McpComposition declares one MCP component composition: an MCP tool or
// resource surface assembled out of one or more component operations.
type McpComposition struct {
	Name       string   `yaml:"name" json:"name"`
	Component  string   `yaml:"component" json:"component"`
	Operations []string `yaml:"operations,omitempty" json:"operations,omitempty"`
}

// Annotation is one entry of the spec's free-form annotation mapping. The
// slice is built from the decoded map, so its order is not document order.
type Annotation struct {
	Key   string
	Value interface{}
}

// PackSpec is the typed representation of a pack.yaml document.
type PackSpec struct {
	PackID      string              `yaml:"packId" json:"packId"`
	Version     string              `yaml:"version" json:"version"`
	Kind        Kind                `yaml:"kind,omitempty" json:"kind,omitempty"`
	Publisher   string              `yaml:"publisher,omitempty" json:"publisher,omitempty"`
	Authors     []string            `yaml:"authors,omitempty" json:"authors,omitempty"`
	License     string              `yaml:"license,omitempty" json:"license,omitempty"`
	Homepage    string              `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	Support     string              `yaml:"support,omitempty" json:"support,omitempty"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Imports     []Import            `yaml:"imports,omitempty" json:"imports,omitempty"`
	EntryFlows  []string            `yaml:"entryFlows,omitempty" json:"entryFlows,omitempty"`
	Annotations []Annotation        `yaml:"-" json:"-"`
	RawAnnotations map[string]interface{} `yaml:"annotations,omitempty" json:"annotations,omitempty"`
	Flows       []FlowRef           `yaml:"flows,omitempty" json:"flows,omitempty"`
	Components  []ComponentDecl     `yaml:"components,omitempty" json:"components,omitempty"`
	Assets      []string            `yaml:"assets,omitempty" json:"assets,omitempty"`
	Events      map[string]interface{} `yaml:"events,omitempty" json:"events,omitempty"`
	Messaging   map[string]interface{} `yaml:"messaging,omitempty" json:"messaging,omitempty"`
	Providers   []ProviderInterface `yaml:"providers,omitempty" json:"providers,omitempty"`
	McpCompositions []McpComposition `yaml:"mcp,omitempty" json:"mcp,omitempty"`
	DistributionHints map[string]interface{} `yaml:"distribution,omitempty" json:"distribution,omitempty"`
}

// SpecBundle pairs a loaded PackSpec with the path it was loaded from.
type SpecBundle struct {
	Spec       PackSpec
	SourcePath string
}

// ValidKind reports whether k is a usable (non-reserved) kind. An empty Kind
// is valid: kind is optional on PackSpec.
func ValidKind(k Kind) bool {
	if k == "" {
		return true
	}
	return validKinds[k]
}

// ValidVersion reports whether v parses as a semantic version.
func ValidVersion(v string) bool {
	_, err := semver.NewVersion(v)
	return err == nil
}

// ValidPackID reports whether id is a well-formed reverse-dotted pack id.
func ValidPackID(id string) bool {
	_, err := ident.NewPackId(id)
	return err == nil
}
