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

package sign

import "testing"

func TestDevKeyPairIsDeterministic(t *testing.T) {
	pub1, _ := DevKeyPair()
	pub2, _ := DevKeyPair()
	if string(pub1) != string(pub2) {
		t.Error("dev keypair is not deterministic across calls")
	}
}

func TestDevSignerSignThenVerify(t *testing.T) {
	manifest := []byte("unsigned manifest bytes")
	sig, keyID, err := (DevSigner{}).Sign(manifest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if keyID != "dev" {
		t.Errorf("keyID = %q, want dev", keyID)
	}
	pub, _ := DevKeyPair()
	if !Verify(pub, manifest, sig) {
		t.Error("expected signature to verify")
	}
}

func TestVerifyRejectsTamperedManifest(t *testing.T) {
	manifest := []byte("unsigned manifest bytes")
	sig, _, err := (DevSigner{}).Sign(manifest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	pub, _ := DevKeyPair()
	tampered := append([]byte{}, manifest...)
	tampered[0] ^= 0xFF
	if Verify(pub, tampered, sig) {
		t.Error("expected tampered manifest to fail verification")
	}
}

func TestStaticSignerRequiresFullKey(t *testing.T) {
	_, _, err := (StaticSigner{PrivateKey: []byte("too short")}).Sign([]byte("x"))
	if err == nil {
		t.Fatal("expected error for undersized private key")
	}
}
