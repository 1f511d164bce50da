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

// Package pack implements the in-archive PackManifest, the deterministic
// ZIP archive builder, and the archive reader/verifier.
package pack

import (
	"github.com/greenticai/packc/internal/component"
	"github.com/greenticai/packc/internal/flow"
	"github.com/greenticai/packc/internal/resolve"
	"github.com/greenticai/packc/internal/specmodel"
)

// SchemaVersionTag is the in-archive manifest's schema version discriminator.
const SchemaVersionTag = "pack-v1"

// ManifestFlow is one flow's typed entry inside a PackManifest: the compiled
// IR plus its hash, alongside the id/kind/entry metadata also carried on the
// FlowBundle.
type ManifestFlow struct {
	ID         string          `cbor:"id"`
	Kind       string          `cbor:"kind"`
	Entry      string          `cbor:"entry"`
	HashBLAKE3 string          `cbor:"hashBlake3"`
	IR         flow.Flow       `cbor:"ir"`
}

// ManifestComponent is one component's entry inside a PackManifest.
type ManifestComponent struct {
	Alias    string              `cbor:"alias"`
	Manifest component.Manifest  `cbor:"manifest"`
	Embedded bool                `cbor:"embedded"`
}

// SecretRequirement names one secret a pack's components collectively
// require.
type SecretRequirement struct {
	Key      string `cbor:"key"`
	Required bool   `cbor:"required"`
	Scope    string `cbor:"scope"`
}

// Signature is one entry of the manifest's signatures block.
type Signature struct {
	KeyID     string `cbor:"keyId"`
	Algorithm string `cbor:"algorithm"`
	Value     []byte `cbor:"value"`
}

// Bootstrap is an optional pack-level bootstrap directive (reserved for
// future runtime bootstrap sequencing).
type Bootstrap struct {
	Script string `cbor:"script,omitempty"`
}

// ExtensionPayload is a typed, versioned block carried in the manifest's
// extensions map. Kind-specific payloads are stored in Raw and interpreted
// by the corresponding validator in internal/extension.
type ExtensionPayload struct {
	Kind    string      `cbor:"kind"`
	Version string      `cbor:"version"`
	Raw     interface{} `cbor:"raw"`
}

// Manifest is the in-archive, canonical-binary-encoded PackManifest (v1).
type Manifest struct {
	SchemaVersion string                       `cbor:"schemaVersion"`
	PackID        string                       `cbor:"packId"`
	Version       string                       `cbor:"version"`
	Kind          specmodel.Kind               `cbor:"kind,omitempty"`
	Publisher     string                       `cbor:"publisher,omitempty"`
	Components    []ManifestComponent          `cbor:"components,omitempty"`
	Flows         []ManifestFlow               `cbor:"flows,omitempty"`
	Dependencies  []specmodel.Import           `cbor:"dependencies,omitempty"`
	Capabilities  component.Capabilities       `cbor:"capabilities,omitempty"`
	Secrets       []SecretRequirement          `cbor:"secrets,omitempty"`
	Signatures    []Signature                  `cbor:"signatures,omitempty"`
	Bootstrap     *Bootstrap                   `cbor:"bootstrap,omitempty"`
	Extensions    map[string]ExtensionPayload  `cbor:"extensions,omitempty"`
}

// Unsigned returns a copy of m with its signatures cleared, the form that
// is hashed and signed/verified.
func (m Manifest) Unsigned() Manifest {
	clone := m
	clone.Signatures = nil
	return clone
}

// componentSourcesKey is the extension key a component not embedded in the
// archive is recorded under, per the PackManifest invariant that every
// referenced component is either embedded or listed there.
const componentSourcesKey = "component-sources"

// ComponentManifestIndexKey is the extension key recording content hashes
// of every component manifest placed in the archive.
const ComponentManifestIndexKey = "component-manifest-index"

// AnnotationsExtensionKey is the extension key carrying the spec's
// free-form annotations, so deployment plan inference can read connector
// wiring back out of a built archive.
const AnnotationsExtensionKey = "annotations"

// ComponentSourceEntry is one entry of the component-sources extension:
// a locked component's resolved lock reference.
type ComponentSourceEntry struct {
	ComponentID string `cbor:"componentId"`
	Ref         string `cbor:"ref"`
	Digest      string `cbor:"digest"`
}

// SetComponentSources installs the component-sources extension payload.
func (m *Manifest) SetComponentSources(entries []ComponentSourceEntry) {
	if m.Extensions == nil {
		m.Extensions = map[string]ExtensionPayload{}
	}
	m.Extensions[componentSourcesKey] = ExtensionPayload{Kind: componentSourcesKey, Version: "v1", Raw: entries}
}

// SetComponentManifestIndex installs the component-manifest-index extension
// payload.
func (m *Manifest) SetComponentManifestIndex(entries []component.IndexEntry) {
	if m.Extensions == nil {
		m.Extensions = map[string]ExtensionPayload{}
	}
	m.Extensions[ComponentManifestIndexKey] = ExtensionPayload{Kind: ComponentManifestIndexKey, Version: "v1", Raw: entries}
}

// lockComponentsToSources adapts resolver output into component-sources
// extension entries: one per locked component that has a component id,
// whether or not it is embedded in the archive.
func lockComponentsToSources(locked []resolve.LockedComponent) []ComponentSourceEntry {
	out := make([]ComponentSourceEntry, 0, len(locked))
	for _, l := range locked {
		if l.ComponentID == "" {
			continue
		}
		out = append(out, ComponentSourceEntry{ComponentID: l.ComponentID, Ref: l.Ref, Digest: l.Digest})
	}
	return out
}
