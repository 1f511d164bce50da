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
	"testing"

	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/canon"
)

func TestDiscoverPrefersSiblingOverDescribeCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	sibling := Manifest{ComponentID: "ai.greentic.demo", Version: "1.0.0"}
	raw, _ := json.Marshal(sibling)
	_ = afero.WriteFile(fs, "/pack/components/demo.manifest.json", raw, 0o644)

	rec := DescribeRecord{Manifest: Manifest{ComponentID: "ai.greentic.demo", Version: "9.9.9"}}
	cborRaw, err := canon.Encode(rec)
	if err != nil {
		t.Fatalf("canon.Encode: %v", err)
	}
	_ = afero.WriteFile(fs, "/pack/components/demo.wasm.describe.cbor", cborRaw, 0o644)

	got, err := Discover(fs, "/pack/components/demo.wasm", nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got.Source != "sibling" {
		t.Fatalf("Source = %q, want sibling", got.Source)
	}
	if got.Manifest.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0 (from sibling, not describe-cache)", got.Manifest.Version)
	}
}

func TestDiscoverFallsBackToDescribeCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := DescribeRecord{Manifest: Manifest{ComponentID: "ai.greentic.demo", Version: "2.0.0"}}
	raw, err := canon.Encode(rec)
	if err != nil {
		t.Fatalf("canon.Encode: %v", err)
	}
	_ = afero.WriteFile(fs, "/pack/components/demo.wasm.describe.cbor", raw, 0o644)

	got, err := Discover(fs, "/pack/components/demo.wasm", nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got.Source != "describe-cache" {
		t.Fatalf("Source = %q, want describe-cache", got.Source)
	}
}

func TestDiscoverFallsBackToInline(t *testing.T) {
	fs := afero.NewMemMapFs()
	inline := &Manifest{ComponentID: "ai.greentic.demo", Version: "3.0.0"}

	got, err := Discover(fs, "/pack/components/demo.wasm", inline)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got.Source != "inline" {
		t.Fatalf("Source = %q, want inline", got.Source)
	}
}

func TestDiscoverReturnsEmptyWhenNothingFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	got, err := Discover(fs, "/pack/components/demo.wasm", nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got.Source != "" {
		t.Fatalf("Source = %q, want empty", got.Source)
	}
}

func TestManifestValidateRejectsDuplicateOperations(t *testing.T) {
	m := Manifest{
		ComponentID: "ai.greentic.demo",
		Version:     "1.0.0",
		Operations:  []Operation{{Name: "run"}, {Name: "run"}},
	}
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for duplicate operation names")
	}
}

func TestEncodeProducesIndexEntry(t *testing.T) {
	m := Manifest{ComponentID: "ai.greentic.demo", Version: "1.0.0"}
	encoded, entry, err := Encode(m, "ai.greentic.demo")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(encoded) == 0 {
		t.Error("encoded manifest is empty")
	}
	if entry.ArchivePath != "components/ai.greentic.demo.manifest.cbor" {
		t.Errorf("ArchivePath = %q", entry.ArchivePath)
	}
	if entry.SHA256 == "" {
		t.Error("SHA256 is empty")
	}
}
