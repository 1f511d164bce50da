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

// Package ident provides validated, byte-wise comparable identifier types
// and the digest helpers used throughout the pack toolchain.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

const (
	// ErrInvalidIdentifier is returned when an identifier fails validation.
	ErrInvalidIdentifier = "invalid identifier"
)

// reverseDotted matches reverse-dotted identifiers such as "demo.pack" or
// "ai.greentic.component-adaptive-card". Each dot-separated segment must
// start and end with an alphanumeric character and may otherwise contain
// hyphens and underscores.
var reverseDotted = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9_-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9_-]*[A-Za-z0-9])?)+$`)

// PackId is a validated, reverse-dotted pack identifier.
type PackId string

// NewPackId validates and constructs a PackId.
func NewPackId(s string) (PackId, error) {
	if !reverseDotted.MatchString(s) {
		return "", errors.Errorf("%s: pack id %q must be reverse-dotted (e.g. demo.pack)", ErrInvalidIdentifier, s)
	}
	return PackId(s), nil
}

// String returns the identifier's wire representation.
func (p PackId) String() string { return string(p) }

// ComponentId is a validated, reverse-dotted component identifier.
type ComponentId string

// NewComponentId validates and constructs a ComponentId.
func NewComponentId(s string) (ComponentId, error) {
	if !reverseDotted.MatchString(s) {
		return "", errors.Errorf("%s: component id %q must be reverse-dotted (e.g. ai.greentic.component-adaptive-card)", ErrInvalidIdentifier, s)
	}
	return ComponentId(s), nil
}

// String returns the identifier's wire representation.
func (c ComponentId) String() string { return string(c) }

// EnvId is a validated, non-empty environment identifier.
type EnvId string

// NewEnvId validates and constructs an EnvId.
func NewEnvId(s string) (EnvId, error) {
	if s == "" {
		return "", errors.Errorf("%s: env id must not be empty", ErrInvalidIdentifier)
	}
	return EnvId(s), nil
}

// String returns the identifier's wire representation.
func (e EnvId) String() string { return string(e) }

// TenantId is a validated, non-empty tenant identifier.
type TenantId string

// NewTenantId validates and constructs a TenantId.
func NewTenantId(s string) (TenantId, error) {
	if s == "" {
		return "", errors.Errorf("%s: tenant id must not be empty", ErrInvalidIdentifier)
	}
	return TenantId(s), nil
}

// String returns the identifier's wire representation.
func (t TenantId) String() string { return string(t) }

// TenantCtx pairs an environment and a tenant for deployment-plan inference
// and runtime logging scopes.
type TenantCtx struct {
	Env    EnvId
	Tenant TenantId
}

// NewTenantCtx constructs a TenantCtx.
func NewTenantCtx(env EnvId, tenant TenantId) TenantCtx {
	return TenantCtx{Env: env, Tenant: tenant}
}

// BLAKE3Hex returns the lowercase hex BLAKE3 digest of b. Used for flow
// bundle and manifest fingerprints, which are not required to match any
// external ecosystem convention.
func BLAKE3Hex(b []byte) string {
	h := blake3.New()
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

// SHA256Digest returns the "sha256:<64 hex>" digest string for b. Used for
// artifact digests, to match OCI/ecosystem conventions.
func SHA256Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ValidDigest reports whether s is a well-formed "sha256:<64 hex>" digest.
func ValidDigest(s string) bool {
	const prefix = "sha256:"
	if len(s) != len(prefix)+64 || s[:len(prefix)] != prefix {
		return false
	}
	for _, r := range s[len(prefix):] {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}
