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

package resolve

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/diagnostics"
)

func writeSidecar(t *testing.T, fs afero.Fs, flowPath string, doc SidecarDocument) {
	t.Helper()
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal sidecar: %v", err)
	}
	if err := afero.WriteFile(fs, flowPath+".resolve.json", raw, 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
}

func TestResolveLocalComputesDigest(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/pack/components/demo.wasm", []byte("wasm-bytes"), 0o644); err != nil {
		t.Fatalf("write component: %v", err)
	}
	writeSidecar(t, fs, "/pack/flows/main.ygtc", SidecarDocument{
		SchemaVersion: 1,
		Flow:          "main.ygtc",
		Nodes: map[string]NodeResolve{
			"in": {Source: SourceRef{Kind: SourceLocal, Path: "../components/demo.wasm"}},
		},
	})

	flows := []FlowNodes{{FlowID: "main", FlowPath: "/pack/flows/main.ygtc", NodeIDs: []string{"in"}}}
	diags := diagnostics.NewCollector()
	locked, err := Resolve(fs, flows, Options{}, diags)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(locked) != 1 {
		t.Fatalf("len(locked) = %d, want 1", len(locked))
	}
	if locked[0].Ref != "file:///pack/components/demo.wasm" {
		t.Errorf("Ref = %q", locked[0].Ref)
	}
	if locked[0].Digest == "" {
		t.Error("Digest is empty")
	}
}

func TestResolveStrictModeRequiresSidecarEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	flows := []FlowNodes{{FlowID: "main", FlowPath: "/pack/flows/main.ygtc", NodeIDs: []string{"in"}}}
	diags := diagnostics.NewCollector()

	_, err := Resolve(fs, flows, Options{Strict: true}, diags)
	if err == nil {
		t.Fatal("expected SidecarMissingNodes error in strict mode")
	}
	d, ok := err.(diagnostics.Diagnostic)
	if !ok || d.Code != diagnostics.CodeSidecarMissingNodes {
		t.Fatalf("got %v, want CodeSidecarMissingNodes", err)
	}
}

func TestResolveNonStrictModeWarns(t *testing.T) {
	fs := afero.NewMemMapFs()
	flows := []FlowNodes{{FlowID: "main", FlowPath: "/pack/flows/main.ygtc", NodeIDs: []string{"in"}}}
	diags := diagnostics.NewCollector()

	locked, err := Resolve(fs, flows, Options{Strict: false}, diags)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(locked) != 0 {
		t.Errorf("locked = %v, want empty", locked)
	}
	if len(diags.Warnings()) != 1 {
		t.Fatalf("warnings = %d, want 1", len(diags.Warnings()))
	}
}

func TestResolveOfflineRequiresDigest(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSidecar(t, fs, "/pack/flows/main.ygtc", SidecarDocument{
		SchemaVersion: 1,
		Flow:          "main.ygtc",
		Nodes: map[string]NodeResolve{
			"in": {Source: SourceRef{Kind: SourceOCI, Ref: "ghcr.io/demo/component:1.0.0"}},
		},
	})
	flows := []FlowNodes{{FlowID: "main", FlowPath: "/pack/flows/main.ygtc", NodeIDs: []string{"in"}}}
	diags := diagnostics.NewCollector()

	_, err := Resolve(fs, flows, Options{Offline: true, AllowTags: true}, diags)
	if err == nil {
		t.Fatal("expected DigestRequiredOffline error")
	}
	d, ok := err.(diagnostics.Diagnostic)
	if !ok || d.Code != diagnostics.CodeDigestRequiredOffline {
		t.Fatalf("got %v, want CodeDigestRequiredOffline", err)
	}
}

func TestResolveDetectsLockConflict(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSidecar(t, fs, "/pack/flows/main.ygtc", SidecarDocument{
		SchemaVersion: 1,
		Flow:          "main.ygtc",
		Nodes: map[string]NodeResolve{
			"a": {Source: SourceRef{Kind: SourceOCI, Ref: "ghcr.io/demo/component@sha256:" + hex64("1")}},
			"b": {Source: SourceRef{Kind: SourceOCI, Ref: "ghcr.io/demo/component@sha256:" + hex64("2")}},
		},
	})
	flows := []FlowNodes{{
		FlowID:       "main",
		FlowPath:     "/pack/flows/main.ygtc",
		NodeIDs:      []string{"a", "b"},
		ComponentIDs: map[string]string{"a": "ai.greentic.demo", "b": "ai.greentic.demo"},
	}}
	diags := diagnostics.NewCollector()

	_, err := Resolve(fs, flows, Options{}, diags)
	if err == nil {
		t.Fatal("expected LockConflict error")
	}
	d, ok := err.(diagnostics.Diagnostic)
	if !ok || d.Code != diagnostics.CodeLockConflict {
		t.Fatalf("got %v, want CodeLockConflict", err)
	}
}

func hex64(seed string) string {
	out := make([]byte, 64)
	for i := range out {
		out[i] = seed[0]
	}
	return string(out)
}

func TestLockfileJSONRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	lock := NewPackLock([]LockedComponent{
		{Name: "b", Ref: "file:///b.wasm", Digest: "sha256:" + hex64("a")},
		{Name: "a", Ref: "file:///a.wasm", Digest: "sha256:" + hex64("b")},
	})
	if err := WriteJSON(fs, "/pack/pack.lock.json", lock); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	got, err := ReadJSON(fs, "/pack/pack.lock.json")
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if len(got.Components) != 2 || got.Components[0].Name != "a" {
		t.Fatalf("components not sorted: %+v", got.Components)
	}
}

func TestLockfileCBORRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	lock := NewPackLock([]LockedComponent{
		{Name: "a", Ref: "file:///a.wasm", Digest: "sha256:" + hex64("b")},
	})
	if err := WriteCBOR(fs, "/pack/pack.lock.cbor", lock); err != nil {
		t.Fatalf("WriteCBOR: %v", err)
	}
	got, err := ReadCBOR(fs, "/pack/pack.lock.cbor")
	if err != nil {
		t.Fatalf("ReadCBOR: %v", err)
	}
	if len(got.Components) != 1 || got.Components[0].Name != "a" {
		t.Fatalf("got %+v", got.Components)
	}
}

func TestValidateOCIRef(t *testing.T) {
	cases := map[string]struct {
		ref       string
		allowTags bool
		wantErr   bool
	}{
		"DigestPinned":       {ref: "ghcr.io/demo/component@sha256:" + hex64("a"), wantErr: false},
		"TagWithoutAllow":    {ref: "ghcr.io/demo/component:1.0.0", allowTags: false, wantErr: true},
		"TagWithAllow":       {ref: "ghcr.io/demo/component:1.0.0", allowTags: true, wantErr: false},
		"NoRegistryPath":     {ref: "component:1.0.0", allowTags: true, wantErr: true},
		"BadDigestLength":    {ref: "ghcr.io/demo/component@sha256:abcd", wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateOCIRef(tc.ref, tc.allowTags)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateOCIRef(%q, %v): err = %v, wantErr = %v", tc.ref, tc.allowTags, err, tc.wantErr)
			}
		})
	}
}
