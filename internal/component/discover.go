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

package component

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/canon"
	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/ident"
)

// DescribeRecord is the canonical-encoded sidecar a component's host-side
// describe call produces, cached next to the bytecode as
// "<wasm>.describe.cbor".
type DescribeRecord struct {
	Manifest Manifest `cbor:"manifest"`
}

// Discovered is the outcome of resolving one component's manifest: either
// a Manifest was found (Source != ""), or none was and the caller must
// apply the missing-manifest policy.
type Discovered struct {
	Manifest Manifest
	Source   string // "sibling", "describe-cache", "inline", or "" if not found
}

// Discover resolves a component's typed manifest in priority order: a
// sibling "<stem>.manifest.json" or "<stem>.manifest.cbor" next to
// wasmPath, where <stem> is wasmPath without its extension (so
// "component.manifest.json" for a cached "component.wasm"), a
// describe-cache sidecar "<wasm>.describe.cbor", or the
// spec-declared inline manifest supplied by the caller.
func Discover(fs afero.Fs, wasmPath string, inline *Manifest) (Discovered, error) {
	base := strings.TrimSuffix(wasmPath, filepath.Ext(wasmPath))

	if m, err := readSiblingJSON(fs, base+".manifest.json"); err != nil {
		return Discovered{}, err
	} else if m != nil {
		return Discovered{Manifest: *m, Source: "sibling"}, nil
	}
	if m, err := readSiblingCBOR(fs, base+".manifest.cbor"); err != nil {
		return Discovered{}, err
	} else if m != nil {
		return Discovered{Manifest: *m, Source: "sibling"}, nil
	}
	if m, err := readDescribeCache(fs, wasmPath+".describe.cbor"); err != nil {
		return Discovered{}, err
	} else if m != nil {
		return Discovered{Manifest: *m, Source: "describe-cache"}, nil
	}
	if inline != nil {
		return Discovered{Manifest: *inline, Source: "inline"}, nil
	}
	return Discovered{}, nil
}

func readSiblingJSON(fs afero.Fs, path string) (*Manifest, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil || !exists {
		return nil, err
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeManifestCorrupt,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "parse component manifest").Error(),
			Location: diagnostics.Location{Path: path},
		}
	}
	return &m, nil
}

func readSiblingCBOR(fs afero.Fs, path string) (*Manifest, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil || !exists {
		return nil, err
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var m Manifest
	if err := canon.Decode(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func readDescribeCache(fs afero.Fs, path string) (*Manifest, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil || !exists {
		return nil, err
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var rec DescribeRecord
	if err := canon.Decode(raw, &rec); err != nil {
		return nil, err
	}
	return &rec.Manifest, nil
}

// IndexEntry is one entry of the component-manifest-index extension.
type IndexEntry struct {
	Alias      string `json:"alias" cbor:"alias"`
	SHA256     string `json:"sha256" cbor:"sha256"`
	ArchivePath string `json:"archivePath" cbor:"archivePath"`
}

// Encode canonically encodes a manifest and computes the archive path and
// SHA-256 digest that belongs in the component-manifest-index, using alias
// as the stored file's basename. alias is the component id for embedded
// components, or an explicit alias taken from the spec.
func Encode(m Manifest, alias string) (encoded []byte, entry IndexEntry, err error) {
	if err := m.Validate(); err != nil {
		return nil, IndexEntry{}, err
	}
	encoded, err = canon.Encode(m)
	if err != nil {
		return nil, IndexEntry{}, errors.Wrap(err, "encode component manifest")
	}
	archivePath := "components/" + alias + ".manifest.cbor"
	entry = IndexEntry{
		Alias:       alias,
		SHA256:      ident.SHA256Digest(encoded),
		ArchivePath: archivePath,
	}
	return encoded, entry, nil
}
