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

package ident

import "testing"

func TestNewPackId(t *testing.T) {
	cases := map[string]struct {
		in      string
		wantErr bool
	}{
		"Valid":       {in: "demo.pack"},
		"ValidNested": {in: "ai.greentic.component-adaptive-card"},
		"Empty":       {in: "", wantErr: true},
		"NoDot":       {in: "demo", wantErr: true},
		"LeadingDash": {in: "-demo.pack", wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewPackId(tc.in)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewPackId(%q): err = %v, wantErr = %v", tc.in, err, tc.wantErr)
			}
		})
	}
}

func TestSHA256Digest(t *testing.T) {
	stub := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	got := SHA256Digest(stub)
	if !ValidDigest(got) {
		t.Fatalf("SHA256Digest returned malformed digest: %s", got)
	}
	if again := SHA256Digest(stub); again != got {
		t.Errorf("SHA256Digest is not stable across calls: %s != %s", got, again)
	}
}

func TestValidDigest(t *testing.T) {
	cases := map[string]struct {
		in   string
		want bool
	}{
		"Valid":      {in: "sha256:" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", want: true},
		"NoPrefix":   {in: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd", want: false},
		"ShortHex":   {in: "sha256:abcd", want: false},
		"Uppercase":  {in: "sha256:" + "0123456789ABCDEF0123456789abcdef0123456789abcdef0123456789abcdef", want: false},
		"EmptyInput": {in: "", want: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := ValidDigest(tc.in); got != tc.want {
				t.Errorf("ValidDigest(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
