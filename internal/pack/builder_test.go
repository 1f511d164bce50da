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

package pack

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/component"
	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/flow"
	"github.com/greenticai/packc/internal/ident"
	"github.com/greenticai/packc/internal/sign"
)

var stubWasm = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

const welcomeFlowYAML = `
id: welcome
kind: messaging
nodes:
  in:
    component:
      id: templating.handlebars
`

func testManifest() component.Manifest {
	return component.Manifest{
		ComponentID: "templating.handlebars",
		Version:     "1.0.0",
		Operations:  []component.Operation{{Name: "render"}},
		Capabilities: component.Capabilities{
			Host: component.HostFacets{Secrets: []string{"API_TOKEN"}, Telemetry: true},
		},
	}
}

func buildMinimal(t *testing.T, fs afero.Fs, outPath string) *BuildResult {
	t.Helper()
	if err := afero.WriteFile(fs, "/pack/templating.handlebars.wasm", stubWasm, 0o644); err != nil {
		t.Fatalf("write stub wasm: %v", err)
	}
	bundle, ir, err := flow.LoadAndValidateBundle([]byte(welcomeFlowYAML), "flows/welcome.ygtc")
	if err != nil {
		t.Fatalf("compile flow: %v", err)
	}
	manifest := testManifest()
	diags := diagnostics.NewCollector()
	result, err := NewBuilder(fs, Meta{PackID: "demo.pack", Version: "0.1.0"}).
		WithFlow(FlowInput{Bundle: *bundle, IR: *ir}).
		WithComponent(ComponentInput{
			Alias:    "templating.handlebars",
			WasmPath: "/pack/templating.handlebars.wasm",
			Manifest: &manifest,
			Embedded: true,
		}).
		Build(outPath, diags)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return result
}

func archiveEntries(t *testing.T, fs afero.Fs, path string) map[string][]byte {
	t.Helper()
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	out := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		_ = rc.Close()
		if f.Method != zip.Store {
			t.Errorf("entry %s is compressed, want STORED", f.Name)
		}
		out[f.Name] = buf.Bytes()
	}
	return out
}

func TestBuildMinimalArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	result := buildMinimal(t, fs, "/out/demo.pack.zip")

	if result.ManifestHashBLAKE3 == "" {
		t.Error("ManifestHashBLAKE3 is empty")
	}

	entries := archiveEntries(t, fs, "/out/demo.pack.zip")
	wasm, ok := entries["components/templating.handlebars.wasm"]
	if !ok {
		t.Fatal("archive is missing components/templating.handlebars.wasm")
	}
	if got, want := ident.SHA256Digest(wasm), ident.SHA256Digest(stubWasm); got != want {
		t.Errorf("embedded wasm digest = %s, want %s", got, want)
	}
	if _, ok := entries[ManifestFileName]; !ok {
		t.Error("archive is missing manifest.cbor")
	}
	if _, ok := entries["components/templating.handlebars.manifest.cbor"]; !ok {
		t.Error("archive is missing the component manifest entry")
	}
}

func TestBuildIsReproducible(t *testing.T) {
	fsA := afero.NewMemMapFs()
	fsB := afero.NewMemMapFs()
	buildMinimal(t, fsA, "/out/a.zip")
	buildMinimal(t, fsB, "/out/b.zip")

	a, err := afero.ReadFile(fsA, "/out/a.zip")
	if err != nil {
		t.Fatal(err)
	}
	b, err := afero.ReadFile(fsB, "/out/b.zip")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two builds of the same inputs differ bytewise")
	}
}

func TestBuildEntriesAreSorted(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildMinimal(t, fs, "/out/demo.zip")

	raw, _ := afero.ReadFile(fs, "/out/demo.zip")
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatal(err)
	}
	var prev string
	for _, f := range zr.File {
		if prev != "" && f.Name < prev {
			t.Errorf("entry %s sorts before %s", f.Name, prev)
		}
		prev = f.Name
	}
}

func TestBuildMissingComponentBytecode(t *testing.T) {
	fs := afero.NewMemMapFs()
	bundle, ir, err := flow.LoadAndValidateBundle([]byte(welcomeFlowYAML), "")
	if err != nil {
		t.Fatal(err)
	}
	manifest := testManifest()
	_, err = NewBuilder(fs, Meta{PackID: "demo.pack", Version: "0.1.0"}).
		WithFlow(FlowInput{Bundle: *bundle, IR: *ir}).
		WithComponent(ComponentInput{
			Alias:    "templating.handlebars",
			WasmPath: "/nope.wasm",
			Manifest: &manifest,
			Embedded: true,
		}).
		Build("/out/demo.zip", diagnostics.NewCollector())
	if err == nil {
		t.Fatal("Build succeeded with missing bytecode")
	}
	var d diagnostics.Diagnostic
	ok := false
	if diag, isDiag := err.(diagnostics.Diagnostic); isDiag {
		d, ok = diag, true
	}
	if !ok || d.Code != diagnostics.CodeComponentMissing {
		t.Errorf("error = %v, want ComponentMissing diagnostic", err)
	}
	if exists, _ := afero.Exists(fs, "/out/demo.zip"); exists {
		t.Error("failed build left an archive behind")
	}
	if exists, _ := afero.Exists(fs, "/out/demo.zip.tmp"); exists {
		t.Error("failed build left a temp file behind")
	}
}

func TestBuildMissingManifestIsWarning(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/pack/c.wasm", stubWasm, 0o644); err != nil {
		t.Fatal(err)
	}
	bundle, ir, err := flow.LoadAndValidateBundle([]byte(welcomeFlowYAML), "")
	if err != nil {
		t.Fatal(err)
	}
	diags := diagnostics.NewCollector()
	_, err = NewBuilder(fs, Meta{PackID: "demo.pack", Version: "0.1.0"}).
		WithFlow(FlowInput{Bundle: *bundle, IR: *ir}).
		WithComponent(ComponentInput{Alias: "templating.handlebars", WasmPath: "/pack/c.wasm", Embedded: true}).
		Build("/out/demo.zip", diags)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	found := false
	for _, d := range diags.Warnings() {
		if d.Code == diagnostics.CodeComponentNotExplicit {
			found = true
		}
	}
	if !found {
		t.Error("expected a PACK_COMPONENT_NOT_EXPLICIT warning")
	}
}

func TestDevSigningEmitsSidecar(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/pack/c.wasm", stubWasm, 0o644); err != nil {
		t.Fatal(err)
	}
	bundle, ir, err := flow.LoadAndValidateBundle([]byte(welcomeFlowYAML), "")
	if err != nil {
		t.Fatal(err)
	}
	manifest := testManifest()
	_, err = NewBuilder(fs, Meta{PackID: "demo.pack", Version: "0.1.0"}).
		WithFlow(FlowInput{Bundle: *bundle, IR: *ir}).
		WithComponent(ComponentInput{Alias: "templating.handlebars", WasmPath: "/pack/c.wasm", Manifest: &manifest, Embedded: true}).
		WithSigning(sign.ModeDev, nil).
		Build("/out/demo.zip", diagnostics.NewCollector())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	entries := archiveEntries(t, fs, "/out/demo.zip")
	found := false
	for name := range entries {
		if strings.HasPrefix(name, "signatures/") {
			found = true
		}
	}
	if !found {
		t.Error("dev-signed archive has no signatures/ entry")
	}
}

func TestSBOMGenerationIsStable(t *testing.T) {
	manifest := testManifest()
	comps := []ComponentInput{{Alias: "templating.handlebars", Manifest: &manifest}}
	meta := Meta{PackID: "demo.pack", Version: "0.1.0"}
	a, err := GenerateSBOM(meta, comps)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateSBOM(meta, comps)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("SBOM generation is not deterministic")
	}
	if !strings.Contains(string(a), "CycloneDX") {
		t.Error("SBOM is not CycloneDX-shaped")
	}
}
