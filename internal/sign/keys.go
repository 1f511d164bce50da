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

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// LoadPrivateKey reads an Ed25519 private key from path. Accepted formats:
// a 32-byte raw seed, a 64-byte raw private key, or either hex-encoded.
func LoadPrivateKey(fs afero.Fs, path string) (ed25519.PrivateKey, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read key %s", path)
	}
	data := normalizeKeyBytes(raw)
	switch len(data) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(data), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(data), nil
	}
	return nil, errors.Errorf("key %s is not a 32-byte seed or 64-byte ed25519 private key", path)
}

// LoadPublicKey reads an Ed25519 public key from path, raw or hex-encoded.
func LoadPublicKey(fs afero.Fs, path string) (ed25519.PublicKey, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read key %s", path)
	}
	data := normalizeKeyBytes(raw)
	if len(data) != ed25519.PublicKeySize {
		return nil, errors.Errorf("key %s is not a 32-byte ed25519 public key", path)
	}
	return ed25519.PublicKey(data), nil
}

// normalizeKeyBytes decodes trimmed hex input when the file holds hex
// digits, otherwise returns the raw bytes.
func normalizeKeyBytes(raw []byte) []byte {
	trimmed := strings.TrimSpace(string(raw))
	if decoded, err := hex.DecodeString(trimmed); err == nil {
		return decoded
	}
	return raw
}
