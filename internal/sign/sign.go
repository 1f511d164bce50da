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

// Package sign implements the pack builder's three signing modes (none,
// dev, and external Ed25519 provider) and the archive verifier's signature
// policies. Key management itself is an external collaborator: this
// package depends only on the Signer capability interface, never on a key
// store.
package sign

import (
	"crypto/ed25519"
	"crypto/sha512"

	"github.com/pkg/errors"
)

// Mode names a pack's signing mode.
type Mode string

const (
	// ModeNone produces no signature at all.
	ModeNone Mode = "none"
	// ModeDev signs with a deterministic key derived from a fixed seed,
	// for reproducible local development builds.
	ModeDev Mode = "dev"
	// ModeEd25519 signs via an external Signer capability.
	ModeEd25519 Mode = "ed25519"
)

// devSeed is the fixed seed ModeDev derives its keypair from. It must never
// change: changing it would change every dev-signed archive's signature
// bytes, breaking reproducible-build expectations for dev packs.
var devSeed = sha512.Sum512([]byte("packc-dev-signing-key-v1"))

// DevKeyPair returns the deterministic keypair used by ModeDev.
func DevKeyPair() (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := devSeed[:ed25519.SeedSize]
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv
}

// Signer is the external signing capability a real key-management system
// implements. A signature is produced over the unsigned canonical manifest
// bytes (signatures block cleared).
type Signer interface {
	// Sign returns the signature bytes and the key id identifying which
	// key produced them.
	Sign(unsignedManifest []byte) (signature []byte, keyID string, err error)
}

// DevSigner implements Signer using the fixed development keypair.
type DevSigner struct {
	KeyID string
}

// Sign implements Signer.
func (d DevSigner) Sign(unsignedManifest []byte) ([]byte, string, error) {
	_, priv := DevKeyPair()
	keyID := d.KeyID
	if keyID == "" {
		keyID = "dev"
	}
	return ed25519.Sign(priv, unsignedManifest), keyID, nil
}

// StaticSigner implements Signer with a fixed keypair, for tests and for
// callers that already hold key material in memory.
type StaticSigner struct {
	KeyID      string
	PrivateKey ed25519.PrivateKey
}

// Sign implements Signer.
func (s StaticSigner) Sign(unsignedManifest []byte) ([]byte, string, error) {
	if len(s.PrivateKey) != ed25519.PrivateKeySize {
		return nil, "", errors.Errorf("sign: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(s.PrivateKey))
	}
	return ed25519.Sign(s.PrivateKey, unsignedManifest), s.KeyID, nil
}

// Verify reports whether signature is a valid Ed25519 signature of
// unsignedManifest under pub.
func Verify(pub ed25519.PublicKey, unsignedManifest, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, unsignedManifest, signature)
}

// KeySet is a named set of public keys a verifier checks declared
// signatures against, keyed by key id.
type KeySet map[string]ed25519.PublicKey

// Policy governs which signatures an archive verifier requires.
type Policy string

const (
	// PolicyDevOk allows dev or absent signatures; any present signature
	// must still verify.
	PolicyDevOk Policy = "dev-ok"
	// PolicyRequireEd25519 requires at least one Ed25519 signature that
	// verifies against the configured key set.
	PolicyRequireEd25519 Policy = "require-ed25519"
	// PolicyStrict requires every declared signature to verify.
	PolicyStrict Policy = "strict"
)
