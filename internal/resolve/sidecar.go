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

// Package resolve normalizes flow node component sources into locked
// references and writes/reads the pack lockfile.
package resolve

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// SourceKind names one of the four component source kinds a sidecar node
// entry may declare.
type SourceKind string

const (
	SourceLocal SourceKind = "local"
	SourceOCI   SourceKind = "oci"
	SourceRepo  SourceKind = "repo"
	SourceStore SourceKind = "store"
)

// SourceRef is one node's component source, as declared in a flow resolve
// sidecar. Only the fields relevant to Kind are populated by callers, but
// all fields round-trip through JSON so a sidecar can be read back
// unmodified.
type SourceRef struct {
	Kind        SourceKind `json:"kind"`
	Path        string     `json:"path,omitempty"`
	Ref         string     `json:"ref,omitempty"`
	Digest      string     `json:"digest,omitempty"`
	LicenseHint string     `json:"licenseHint,omitempty"`
	Meter       *bool      `json:"meter,omitempty"`
}

// NodeResolve is one node's resolve entry inside a sidecar document.
type NodeResolve struct {
	Source SourceRef `json:"source"`
	Mode   string    `json:"mode,omitempty"`
}

// SidecarDocument is the `<flow>.resolve.json` (or `.resolve.summary.json`)
// schema: a flat map of node id to its declared component source.
type SidecarDocument struct {
	SchemaVersion int                    `json:"schemaVersion"`
	Flow          string                 `json:"flow"`
	Nodes         map[string]NodeResolve `json:"nodes"`
}

// sidecarSuffixes lists the accepted sidecar filenames for a flow file, in
// lookup order.
var sidecarSuffixes = []string{".resolve.json", ".resolve.summary.json"}

// SidecarPathsForFlow returns the candidate sidecar paths for a flow file,
// in lookup order.
func SidecarPathsForFlow(flowPath string) []string {
	paths := make([]string, len(sidecarSuffixes))
	for i, suffix := range sidecarSuffixes {
		paths[i] = flowPath + suffix
	}
	return paths
}

// ReadSidecar reads and parses the first existing sidecar for flowPath. It
// returns (nil, nil) when no sidecar exists — the caller decides whether
// that is a warning or a fatal SidecarMissingNodes condition.
func ReadSidecar(fs afero.Fs, flowPath string) (*SidecarDocument, error) {
	for _, candidate := range SidecarPathsForFlow(flowPath) {
		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", candidate)
		}
		if !exists {
			continue
		}
		raw, err := afero.ReadFile(fs, candidate)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", candidate)
		}
		var doc SidecarDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, errors.Wrapf(err, "parse %s", candidate)
		}
		return &doc, nil
	}
	return nil, nil
}
