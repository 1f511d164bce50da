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

// Package extension validates the typed inline extension payloads a pack
// manifest carries: the "components" remote-reference list and "provider"
// declarations. Findings aggregate on a diagnostics collector rather than
// failing fast.
package extension

import (
	"sort"

	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/resolve"
)

// ComponentsExtensionKey is the manifest extension key carrying a pack's
// remote component reference list.
const ComponentsExtensionKey = "components"

// ComponentsMode enumerates the components extension's fetch mode.
type ComponentsMode string

const (
	// ModeEager fetches every listed component at build time.
	ModeEager ComponentsMode = "eager"
	// ModeLazy defers fetching until a component is actually needed.
	ModeLazy ComponentsMode = "lazy"
)

// ComponentsExtension is the "components" extension payload.
type ComponentsExtension struct {
	Refs      []string       `cbor:"refs" json:"refs"`
	Mode      ComponentsMode `cbor:"mode,omitempty" json:"mode,omitempty"`
	AllowTags bool           `cbor:"allow_tags,omitempty" json:"allow_tags,omitempty"`
}

// ValidateComponents validates a components extension payload: refs is
// required, mode must be eager or lazy when set, and
// every ref must satisfy the OCI reference grammar under the given
// allow-tags policy. Diagnostics are fatal: an invalid components
// extension cannot be silently dropped, since the builder depends on it
// to resolve remote components.
func ValidateComponents(ext ComponentsExtension, loc diagnostics.Location) *diagnostics.Collector {
	c := &diagnostics.Collector{}

	if len(ext.Refs) == 0 {
		c.Fatal(diagnostics.CodeExtensionInvalid, "components extension requires at least one ref", loc)
		return c
	}

	if ext.Mode != "" && ext.Mode != ModeEager && ext.Mode != ModeLazy {
		c.Fatal(diagnostics.CodeExtensionInvalid, "components extension mode must be \"eager\" or \"lazy\"", loc)
	}

	for _, ref := range ext.Refs {
		if err := resolve.ValidateOCIRef(ref, ext.AllowTags); err != nil {
			code := diagnostics.CodeOciRefInvalid
			if !ext.AllowTags {
				code = diagnostics.CodeOciRefRequiresDigest
			}
			c.Fatal(code, err.Error(), loc)
		}
	}

	return c
}

// ProviderExtensionKey is the manifest extension key carrying a pack's
// provider declarations.
const ProviderExtensionKey = "provider"

// ProviderRuntimeRef names the component export a provider binds to.
type ProviderRuntimeRef struct {
	ComponentRef string `cbor:"component_ref" json:"component_ref"`
	Export       string `cbor:"export" json:"export"`
	World        string `cbor:"world" json:"world"`
}

// ProviderDecl declares one provider a pack exposes.
type ProviderDecl struct {
	ProviderType    string             `cbor:"provider_type" json:"provider_type"`
	Capabilities    []string           `cbor:"capabilities,omitempty" json:"capabilities,omitempty"`
	Ops             []string           `cbor:"ops,omitempty" json:"ops,omitempty"`
	ConfigSchemaRef string             `cbor:"config_schema_ref" json:"config_schema_ref"`
	StateSchemaRef  string             `cbor:"state_schema_ref,omitempty" json:"state_schema_ref,omitempty"`
	Runtime         ProviderRuntimeRef `cbor:"runtime" json:"runtime"`
	DocsRef         string             `cbor:"docs_ref,omitempty" json:"docs_ref,omitempty"`
}

// ProviderExtension is the "provider" extension payload: an inline list of
// provider declarations.
type ProviderExtension struct {
	Providers []ProviderDecl `cbor:"providers" json:"providers"`
}

// LocalRefExists reports whether a provider-declared local reference (a
// value that is not an absolute URI) exists, checked against either a
// source directory or a built archive's entry set. The builder and the
// archive reader each supply the lookup appropriate to what they hold.
type LocalRefExists func(ref string) bool

// ValidateProviders validates a provider extension payload: no duplicate
// provider_type, and every local (non-URI)
// config_schema_ref/state_schema_ref/docs_ref must exist. Missing local
// refs are warnings unless strict is set.
func ValidateProviders(ext ProviderExtension, exists LocalRefExists, strict bool, loc diagnostics.Location) *diagnostics.Collector {
	c := &diagnostics.Collector{}

	seen := map[string]bool{}
	for _, p := range ext.Providers {
		if seen[p.ProviderType] {
			c.Fatal(diagnostics.CodeProviderDuplicate, "duplicate provider_type \""+p.ProviderType+"\"", loc)
			continue
		}
		seen[p.ProviderType] = true

		for _, ref := range referencedPaths(p) {
			if isLocalRef(ref.value) && !exists(ref.value) {
				msg := "provider \"" + p.ProviderType + "\" " + ref.label + " reference \"" + ref.value + "\" missing"
				if strict {
					c.Fatal(diagnostics.CodeProviderLocalRefMissing, msg, loc)
				} else {
					c.Warn(diagnostics.CodeProviderLocalRefMissing, msg, loc)
				}
			}
		}
	}

	return c
}

// SortedProviders returns ext.Providers sorted by provider_type, the
// order `providers list` prints them in.
func SortedProviders(ext ProviderExtension) []ProviderDecl {
	out := append([]ProviderDecl(nil), ext.Providers...)
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderType < out[j].ProviderType })
	return out
}

type namedRef struct {
	label string
	value string
}

func referencedPaths(p ProviderDecl) []namedRef {
	refs := []namedRef{{"config_schema_ref", p.ConfigSchemaRef}}
	if p.StateSchemaRef != "" {
		refs = append(refs, namedRef{"state_schema_ref", p.StateSchemaRef})
	}
	if p.DocsRef != "" {
		refs = append(refs, namedRef{"docs_ref", p.DocsRef})
	}
	return refs
}

// isLocalRef reports whether value is a local path rather than an
// absolute URI (any "://" marks a remote reference).
func isLocalRef(value string) bool {
	for i := 0; i+2 < len(value); i++ {
		if value[i] == ':' && value[i+1] == '/' && value[i+2] == '/' {
			return false
		}
	}
	return true
}
