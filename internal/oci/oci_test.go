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

package oci

import "testing"

func TestParseRefDigest(t *testing.T) {
	digest := "sha256:" + hexRepeat("a", 64)
	ref, err := ParseRef("ghcr.io/demo/component@" + digest)
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if !ref.Pinned() {
		t.Error("expected digest reference to be pinned")
	}
	if ref.Digest != digest {
		t.Errorf("Digest = %q, want %q", ref.Digest, digest)
	}
}

func TestParseRefTag(t *testing.T) {
	ref, err := ParseRef("ghcr.io/demo/component:1.0.0")
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if ref.Pinned() {
		t.Error("expected tag reference to be unpinned")
	}
	if ref.Tag != "1.0.0" {
		t.Errorf("Tag = %q, want 1.0.0", ref.Tag)
	}
}

func TestParseRefInvalid(t *testing.T) {
	if _, err := ParseRef("not a valid ref!!"); err == nil {
		t.Fatal("expected error for malformed reference")
	}
}

func TestRemoveDomainAndOrg(t *testing.T) {
	cases := map[string]string{
		"ghcr.io/demo/component": "component",
		"demo/component":         "component",
		"component":              "component",
	}
	for in, want := range cases {
		if got := RemoveDomainAndOrg(in); got != want {
			t.Errorf("RemoveDomainAndOrg(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArtifactName(t *testing.T) {
	if got := ArtifactName("ghcr.io/demo/component:1.0.0"); got != "component-1.0.0" {
		t.Errorf("ArtifactName = %q", got)
	}
}

func hexRepeat(s string, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = s[0]
	}
	return string(out)
}
