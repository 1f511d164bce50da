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

// Package provenance builds the provenance record carried inside a pack
// manifest's extensions.
package provenance

import (
	"github.com/google/uuid"
)

// Record is the provenance record embedded in a built pack.
type Record struct {
	BuildID    string `cbor:"buildId" json:"buildId"`
	Builder    string `cbor:"builder" json:"builder"`
	GitCommit  string `cbor:"gitCommit,omitempty" json:"gitCommit,omitempty"`
	GitRepo    string `cbor:"gitRepo,omitempty" json:"gitRepo,omitempty"`
	Toolchain  string `cbor:"toolchain,omitempty" json:"toolchain,omitempty"`
	BuiltAtUTC string `cbor:"builtAtUtc" json:"builtAtUtc"`
	Host       string `cbor:"host,omitempty" json:"host,omitempty"`
	Notes      string `cbor:"notes,omitempty" json:"notes,omitempty"`
}

// Extension key the provenance record is stored under in a manifest's
// extensions map.
const ExtensionKey = "provenance"

// Options supplies the fields New does not derive itself. BuildID is
// optional: leave it empty for an ephemeral build id (a fresh UUID is
// generated), or set it explicitly for a reproducible build, since
// generating a random id on every call would make the build a
// non-deterministic function of its inputs.
type Options struct {
	BuildID    string
	Builder    string
	GitCommit  string
	GitRepo    string
	Toolchain  string
	BuiltAtUTC string
	Host       string
	Notes      string
}

// New builds a Record. BuiltAtUTC must be supplied by the caller (typically
// from internal/runtime.RuntimeContext.BuiltAtUTC): this package never
// reads the system clock. Reproducible-build callers must set
// opts.BuildID explicitly; leaving it empty generates a fresh UUID, which
// is only appropriate for ephemeral (doctor/inspect) builds.
func New(opts Options) Record {
	buildID := opts.BuildID
	if buildID == "" {
		buildID = uuid.NewString()
	}
	return Record{
		BuildID:    buildID,
		Builder:    opts.Builder,
		GitCommit:  opts.GitCommit,
		GitRepo:    opts.GitRepo,
		Toolchain:  opts.Toolchain,
		BuiltAtUTC: opts.BuiltAtUTC,
		Host:       opts.Host,
		Notes:      opts.Notes,
	}
}
