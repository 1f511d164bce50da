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

// Package component discovers, validates and canonically encodes a
// component's typed manifest for inclusion in a pack archive.
package component

import (
	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	"github.com/greenticai/packc/internal/ident"
)

// HostFacets lists the host-provided capability facets a component
// declares it needs (e.g. secrets, telemetry, messaging).
type HostFacets struct {
	Secrets   []string `json:"secrets,omitempty" cbor:"secrets,omitempty"`
	Telemetry bool     `json:"telemetry,omitempty" cbor:"telemetry,omitempty"`
	Messaging []string `json:"messaging,omitempty" cbor:"messaging,omitempty"`
	OAuth     []string `json:"oauth,omitempty" cbor:"oauth,omitempty"`
}

// WASIFacets lists the WASI capability facets a component requires.
type WASIFacets struct {
	Clocks      bool     `json:"clocks,omitempty" cbor:"clocks,omitempty"`
	Random      bool     `json:"random,omitempty" cbor:"random,omitempty"`
	Filesystem  []string `json:"filesystem,omitempty" cbor:"filesystem,omitempty"`
	Sockets     bool     `json:"sockets,omitempty" cbor:"sockets,omitempty"`
}

// Capabilities is the union of a component's declared host and WASI
// capability facets.
type Capabilities struct {
	Host HostFacets `json:"host,omitempty" cbor:"host,omitempty"`
	WASI WASIFacets `json:"wasi,omitempty" cbor:"wasi,omitempty"`
}

// Operation is one operation a component exports.
type Operation struct {
	Name         string `json:"name" cbor:"name"`
	InputSchema  string `json:"inputSchema,omitempty" cbor:"inputSchema,omitempty"`
	OutputSchema string `json:"outputSchema,omitempty" cbor:"outputSchema,omitempty"`
}

// Profiles names a component's default and fully supported operating
// profiles (e.g. resource tiers).
type Profiles struct {
	Default   string   `json:"default,omitempty" cbor:"default,omitempty"`
	Supported []string `json:"supported,omitempty" cbor:"supported,omitempty"`
}

// ResourceHints is an optional, free-form resource sizing hint block.
type ResourceHints struct {
	CPUMillis int `json:"cpuMillis,omitempty" cbor:"cpuMillis,omitempty"`
	MemoryMB  int `json:"memoryMb,omitempty" cbor:"memoryMb,omitempty"`
}

// Manifest is the typed metadata for one component.
type Manifest struct {
	ComponentID     string          `json:"componentId" cbor:"componentId"`
	Version         string          `json:"version" cbor:"version"`
	FlowKinds       []string        `json:"flowKinds,omitempty" cbor:"flowKinds,omitempty"`
	World           string          `json:"world,omitempty" cbor:"world,omitempty"`
	Profiles        Profiles        `json:"profiles,omitempty" cbor:"profiles,omitempty"`
	Capabilities    Capabilities    `json:"capabilities,omitempty" cbor:"capabilities,omitempty"`
	Operations      []Operation     `json:"operations,omitempty" cbor:"operations,omitempty"`
	ConfigSchema    string          `json:"configSchema,omitempty" cbor:"configSchema,omitempty"`
	ResourceHints   ResourceHints   `json:"resourceHints,omitempty" cbor:"resourceHints,omitempty"`
	Configurators   []string        `json:"configurators,omitempty" cbor:"configurators,omitempty"`
}

// Validate checks the manifest's structural invariants: a well-formed
// component id, a valid semver version, and unique operation names.
func (m Manifest) Validate() error {
	if _, err := ident.NewComponentId(m.ComponentID); err != nil {
		return err
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return errors.Wrapf(err, "component %s has invalid version %q", m.ComponentID, m.Version)
	}
	seen := map[string]bool{}
	for _, op := range m.Operations {
		if seen[op.Name] {
			return errors.Errorf("component %s declares operation %q more than once", m.ComponentID, op.Name)
		}
		seen[op.Name] = true
	}
	return nil
}
