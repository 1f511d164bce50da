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

package driver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/ident"
	"github.com/greenticai/packc/internal/resolve"
	"github.com/greenticai/packc/internal/runtime"
)

var stubWasm = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

const packYAML = `packId: demo.pack
version: 0.1.0
annotations:
  connectors:
    messaging:
      teams:
        primary:
          flow: flow.main
          name: teams-primary
          team_id: "42"
flows:
  - id: welcome
    file: flows/welcome.ygtc
`

const welcomeFlow = `id: welcome
kind: messaging
nodes:
  in:
    component:
      id: templating.handlebars
`

const componentManifestJSON = `{
  "componentId": "templating.handlebars",
  "version": "1.0.0",
  "operations": [{"name": "render"}],
  "capabilities": {"host": {"secrets": ["API_TOKEN"], "telemetry": true}}
}`

func testCtx(t *testing.T, fs afero.Fs) *runtime.RuntimeContext {
	t.Helper()
	env, _ := ident.NewEnvId("dev")
	tenant, _ := ident.NewTenantId("acme")
	ctx, err := runtime.New(
		func() (string, error) { return "/home/test", nil },
		runtime.WithFs(fs),
		runtime.WithTenant(ident.NewTenantCtx(env, tenant)),
		runtime.WithBuiltAtUTC("2024-01-01T00:00:00Z"),
	)
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}
	return ctx
}

func seedPack(t *testing.T, fs afero.Fs) {
	t.Helper()
	files := map[string]string{
		"/pack/pack.yaml":                                          packYAML,
		"/pack/flows/welcome.ygtc":                                 welcomeFlow,
		"/pack/components/templating.handlebars.wasm":              string(stubWasm),
		"/pack/components/templating.handlebars.manifest.json":     componentManifestJSON,
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}
}

func TestUpdateCreatesSidecar(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedPack(t, fs)
	rt := testCtx(t, fs)

	diags := diagnostics.NewCollector()
	if err := Update(rt, "/pack", diags); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diags.HasFatal() {
		t.Fatalf("Update reported fatals: %v", diags.Fatals())
	}

	doc, err := resolve.ReadSidecar(fs, "/pack/flows/welcome.ygtc")
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil {
		t.Fatal("Update created no sidecar")
	}
	entry, ok := doc.Nodes["in"]
	if !ok {
		t.Fatal("sidecar has no entry for node \"in\"")
	}
	if entry.Source.Kind != resolve.SourceLocal {
		t.Errorf("source kind = %q, want local", entry.Source.Kind)
	}
}

func TestBuildEndToEnd(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedPack(t, fs)
	rt := testCtx(t, fs)

	diags := diagnostics.NewCollector()
	outcome, err := Build(context.Background(), rt, "/pack", BuildOptions{OutPath: "/out/demo.gtpack", EmitSBOM: true}, diags)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if diags.HasFatal() {
		t.Fatalf("Build reported fatals: %v", diags.Fatals())
	}
	if outcome == nil || outcome.Result == nil {
		t.Fatal("Build produced no result")
	}
	if outcome.Result.ManifestHashBLAKE3 == "" {
		t.Error("manifest hash is empty")
	}

	if exists, _ := afero.Exists(fs, "/out/demo.gtpack"); !exists {
		t.Error("archive not written")
	}
	lock, err := resolve.ReadJSON(fs, "/pack/pack.lock.json")
	if err != nil {
		t.Fatalf("read lockfile: %v", err)
	}
	if len(lock.Components) != 1 {
		t.Fatalf("lock has %d components, want 1", len(lock.Components))
	}
	if lock.Components[0].Name != "welcome___in" {
		t.Errorf("lock entry name = %q", lock.Components[0].Name)
	}
	if got, want := lock.Components[0].Digest, ident.SHA256Digest(stubWasm); got != want {
		t.Errorf("lock digest = %s, want %s", got, want)
	}
}

func TestBuildDryRunWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedPack(t, fs)
	rt := testCtx(t, fs)

	outcome, err := Build(context.Background(), rt, "/pack", BuildOptions{OutPath: "/out/demo.gtpack", DryRun: true}, diagnostics.NewCollector())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if outcome == nil {
		t.Fatal("dry run produced no outcome")
	}
	if exists, _ := afero.Exists(fs, "/out/demo.gtpack"); exists {
		t.Error("dry run wrote an archive")
	}
}

func TestResolveConflictAcrossNodes(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedPack(t, fs)

	// Two nodes bind the same component id to different digests.
	twoNode := `id: welcome
kind: messaging
nodes:
  a:
    component:
      id: templating.handlebars
    to: [b]
  b:
    component:
      id: templating.handlebars
`
	if err := afero.WriteFile(fs, "/pack/flows/welcome.ygtc", []byte(twoNode), 0o644); err != nil {
		t.Fatal(err)
	}
	sidecar := map[string]interface{}{
		"schemaVersion": 1,
		"flow":          "flows/welcome.ygtc",
		"nodes": map[string]interface{}{
			"a": map[string]interface{}{"source": map[string]interface{}{
				"kind": "oci", "ref": "ghcr.io/x/y@sha256:" + hexDigits("a"), "digest": "sha256:" + hexDigits("a"),
			}},
			"b": map[string]interface{}{"source": map[string]interface{}{
				"kind": "oci", "ref": "ghcr.io/x/y@sha256:" + hexDigits("b"), "digest": "sha256:" + hexDigits("b"),
			}},
		},
	}
	raw, _ := json.Marshal(sidecar)
	if err := afero.WriteFile(fs, "/pack/flows/welcome.ygtc.resolve.json", raw, 0o644); err != nil {
		t.Fatal(err)
	}

	rt := testCtx(t, fs)
	diags := diagnostics.NewCollector()
	_, err := Build(context.Background(), rt, "/pack", BuildOptions{OutPath: "/out/demo.gtpack", NoUpdate: true}, diags)
	if err == nil {
		t.Fatal("conflicting digests did not fail the build")
	}
	d, ok := err.(diagnostics.Diagnostic)
	if !ok || d.Code != diagnostics.CodeLockConflict {
		t.Errorf("error = %v, want LockConflict", err)
	}
}

func TestPlanInferenceFromArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedPack(t, fs)
	rt := testCtx(t, fs)

	diags := diagnostics.NewCollector()
	if _, err := Build(context.Background(), rt, "/pack", BuildOptions{OutPath: "/out/demo.gtpack"}, diags); err != nil {
		t.Fatalf("Build: %v", err)
	}

	p, err := Plan(rt, "/out/demo.gtpack", "dev", diagnostics.NewCollector())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(p.Runners) != 1 || p.Runners[0].Name != "demo.pack-runner" {
		t.Fatalf("runners = %+v", p.Runners)
	}
	if p.Messaging == nil || len(p.Messaging.Subjects) != 1 || p.Messaging.Subjects[0].Name != "primary" {
		t.Fatalf("messaging = %+v", p.Messaging)
	}
	if len(p.Channels) != 1 {
		t.Fatalf("channels = %+v", p.Channels)
	}
	if p.Channels[0].Name != "teams-primary" || p.Channels[0].FlowID != "flow.main" || p.Channels[0].Kind != "messaging.teams" {
		t.Errorf("channel = %+v", p.Channels[0])
	}
	if len(p.Secrets) != 1 || p.Secrets[0].Key != "API_TOKEN" || p.Secrets[0].Scope != "tenant" {
		t.Errorf("secrets = %+v", p.Secrets)
	}
	if p.Telemetry == nil || !p.Telemetry.Required {
		t.Errorf("telemetry = %+v", p.Telemetry)
	}
}

func TestDoctorOnArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedPack(t, fs)
	rt := testCtx(t, fs)

	if _, err := Build(context.Background(), rt, "/pack", BuildOptions{OutPath: "/out/demo.gtpack"}, diagnostics.NewCollector()); err != nil {
		t.Fatal(err)
	}
	load, err := Doctor(context.Background(), rt, "/out/demo.gtpack", "dev-ok", nil, diagnostics.NewCollector())
	if err != nil {
		t.Fatalf("Doctor: %v", err)
	}
	if load == nil || load.Manifest.PackID != "demo.pack" {
		t.Fatalf("load = %+v", load)
	}
}

// hexDigits repeats a hex digit to digest length.
func hexDigits(d string) string {
	out := ""
	for i := 0; i < 64; i++ {
		out += d
	}
	return out
}
