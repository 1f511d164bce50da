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

package specmodel

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/diagnostics"
)

func writeFile(t *testing.T, fs afero.Fs, path, contents string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func TestLoadSpecValid(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/pack/pack.yaml", `
packId: demo.pack
version: 1.0.0
kind: application
flows:
  - id: main
    file: flows/main.flow.yaml
`)
	writeFile(t, fs, "/pack/flows/main.flow.yaml", "nodes: []")

	bundle, err := LoadSpec(fs, "/pack")
	if err != nil {
		t.Fatalf("LoadSpec: %v", err)
	}
	if bundle.Spec.PackID != "demo.pack" {
		t.Errorf("PackID = %q, want demo.pack", bundle.Spec.PackID)
	}
	if len(bundle.Spec.EntryFlows) != 1 || bundle.Spec.EntryFlows[0] != "main" {
		t.Errorf("EntryFlows = %v, want [main] (defaulted from flow ids)", bundle.Spec.EntryFlows)
	}
}

func TestLoadSpecRejectsReservedKind(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/pack/pack.yaml", `
packId: demo.pack
version: 1.0.0
kind: rollout-strategy
`)

	_, err := LoadSpec(fs, "/pack")
	if err == nil {
		t.Fatal("expected KindReserved error")
	}
	d, ok := err.(diagnostics.Diagnostic)
	if !ok || d.Code != diagnostics.CodeKindReserved {
		t.Fatalf("got %v, want CodeKindReserved diagnostic", err)
	}
}

func TestLoadSpecRejectsPathEscape(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/pack/pack.yaml", `
packId: demo.pack
version: 1.0.0
flows:
  - id: main
    file: ../../etc/passwd
`)

	_, err := LoadSpec(fs, "/pack")
	if err == nil {
		t.Fatal("expected PathEscape error")
	}
	d, ok := err.(diagnostics.Diagnostic)
	if !ok || d.Code != diagnostics.CodePathEscape {
		t.Fatalf("got %v, want CodePathEscape diagnostic", err)
	}
}

func TestLoadSpecRejectsInvalidVersion(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/pack/pack.yaml", `
packId: demo.pack
version: not-a-version
`)

	_, err := LoadSpec(fs, "/pack")
	if err == nil {
		t.Fatal("expected SpecInvalid error")
	}
	d, ok := err.(diagnostics.Diagnostic)
	if !ok || d.Code != diagnostics.CodeSpecInvalid {
		t.Fatalf("got %v, want CodeSpecInvalid diagnostic", err)
	}
}

func TestLoadSpecRejectsMissingFlowFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/pack/pack.yaml", `
packId: demo.pack
version: 1.0.0
flows:
  - id: main
    file: flows/missing.flow.yaml
`)

	_, err := LoadSpec(fs, "/pack")
	if err == nil {
		t.Fatal("expected SpecInvalid error for missing flow file")
	}
}
