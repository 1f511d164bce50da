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
	"crypto/ed25519"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/canon"
	"github.com/greenticai/packc/internal/component"
	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/ident"
	"github.com/greenticai/packc/internal/sign"
	"github.com/greenticai/packc/internal/specmodel"
)

// Report summarizes what the verifier found in an opened archive.
type Report struct {
	SignatureOK bool                     `json:"signatureOk"`
	SBOMOK      bool                     `json:"sbomOk"`
	Warnings    []diagnostics.Diagnostic `json:"warnings"`
}

// Load is the outcome of opening and verifying a pack archive. The reader
// exclusively owns the decoded manifest and the in-memory entry map.
type Load struct {
	Manifest Manifest
	Report   Report
	Files    map[string][]byte
	SBOM     []byte
	// Legacy is set when the manifest was decoded through the lossy legacy
	// fallback; such a load must not be round-tripped as v1 without
	// explicit user opt-in.
	Legacy bool
}

// OpenOptions configures OpenPack.
type OpenOptions struct {
	Policy sign.Policy
	// Keys is the configured public key set signatures are verified
	// against. The dev public key is always consulted as a fallback under
	// PolicyDevOk.
	Keys sign.KeySet
}

// legacyManifest is the pre-v1 manifest shape the fallback decoder
// understands. Downgrading it to v1 is lossy: components and flows are
// left empty and the publisher is taken from the first author.
type legacyManifest struct {
	Name        string   `cbor:"name"`
	Version     string   `cbor:"version"`
	Authors     []string `cbor:"authors,omitempty"`
	Description string   `cbor:"description,omitempty"`
}

// OpenPack opens the archive at path, decodes and verifies its manifest per
// the signing policy, checks the component-manifest-index, and parses the
// SBOM if present. Verification findings land in the returned Load's
// Report; only unreadable archives and policy violations return an error.
func OpenPack(fs afero.Fs, path string, opts OpenOptions) (*Load, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeReadFailed,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "read pack archive").Error(),
			Location: diagnostics.Location{Path: path},
		}
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeReadFailed,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "open pack archive").Error(),
			Location: diagnostics.Location{Path: path},
		}
	}

	files := map[string][]byte{}
	for _, entry := range zr.File {
		rc, err := entry.Open()
		if err != nil {
			return nil, diagnostics.Diagnostic{
				Code:     diagnostics.CodeReadFailed,
				Severity: diagnostics.SeverityFatal,
				Message:  errors.Wrapf(err, "open archive entry %s", entry.Name).Error(),
				Location: diagnostics.Location{Path: path},
			}
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, diagnostics.Diagnostic{
				Code:     diagnostics.CodeReadFailed,
				Severity: diagnostics.SeverityFatal,
				Message:  errors.Wrapf(err, "read archive entry %s", entry.Name).Error(),
				Location: diagnostics.Location{Path: path},
			}
		}
		files[entry.Name] = data
	}

	load := &Load{Files: files}

	manifestBytes, ok := files[ManifestFileName]
	if !ok {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeManifestCorrupt,
			Severity: diagnostics.SeverityFatal,
			Message:  "archive has no " + ManifestFileName,
			Location: diagnostics.Location{Path: path},
		}
	}

	var m Manifest
	if err := canon.Decode(manifestBytes, &m); err != nil || m.SchemaVersion != SchemaVersionTag {
		legacy, lerr := decodeLegacy(manifestBytes)
		if lerr != nil {
			return nil, diagnostics.Diagnostic{
				Code:     diagnostics.CodeManifestCorrupt,
				Severity: diagnostics.SeverityFatal,
				Message:  "manifest is neither v1 nor a recognizable legacy document",
				Location: diagnostics.Location{Path: path},
			}
		}
		m = legacy
		load.Legacy = true
		load.Report.Warnings = append(load.Report.Warnings, diagnostics.Diagnostic{
			Code:     diagnostics.CodeLegacyManifest,
			Severity: diagnostics.SeverityWarning,
			Message:  "manifest decoded through the lossy legacy fallback",
			Location: diagnostics.Location{Path: path},
		})
	}
	load.Manifest = m

	if sbom, ok := files[SBOMFileName]; ok {
		var parsed map[string]interface{}
		if err := json.Unmarshal(sbom, &parsed); err == nil {
			load.SBOM = sbom
			load.Report.SBOMOK = true
		} else {
			load.Report.Warnings = append(load.Report.Warnings, diagnostics.Diagnostic{
				Code:     diagnostics.CodeReadFailed,
				Severity: diagnostics.SeverityWarning,
				Message:  "SBOM present but not parseable JSON",
				Location: diagnostics.Location{Path: SBOMFileName},
			})
		}
	} else {
		load.Report.Warnings = append(load.Report.Warnings, diagnostics.Diagnostic{
			Code:     diagnostics.CodeReadFailed,
			Severity: diagnostics.SeverityWarning,
			Message:  "archive carries no SBOM (" + SBOMFileName + ")",
			Location: diagnostics.Location{Path: path},
		})
	}

	if err := verifySignatures(load, opts); err != nil {
		return nil, err
	}
	verifyManifestIndex(load)

	return load, nil
}

// decodeLegacy attempts the legacy fallback decode and downgrades the
// result to v1.
func decodeLegacy(raw []byte) (Manifest, error) {
	var legacy legacyManifest
	if err := canon.Decode(raw, &legacy); err != nil {
		return Manifest{}, err
	}
	if legacy.Name == "" || legacy.Version == "" {
		return Manifest{}, errors.New("legacy manifest is missing name or version")
	}
	publisher := ""
	if len(legacy.Authors) > 0 {
		publisher = legacy.Authors[0]
	}
	return Manifest{
		SchemaVersion: SchemaVersionTag,
		PackID:        legacy.Name,
		Version:       legacy.Version,
		Kind:          specmodel.KindApplication,
		Publisher:     publisher,
	}, nil
}

// verifySignatures re-encodes the unsigned manifest and checks every
// declared signature against the policy and key set.
func verifySignatures(load *Load, opts OpenOptions) error {
	unsigned, err := canon.Encode(load.Manifest.Unsigned())
	if err != nil {
		return errors.Wrap(err, "re-encode unsigned manifest")
	}

	devPub, _ := sign.DevKeyPair()
	keyFor := func(keyID string) ed25519.PublicKey {
		if pub, ok := opts.Keys[keyID]; ok {
			return pub
		}
		if opts.Policy == sign.PolicyDevOk {
			return devPub
		}
		return nil
	}

	declared := load.Manifest.Signatures
	// Dev-mode builds carry only a signatures/ sidecar, no manifest block;
	// fold those in so policy checks see them.
	for path, data := range load.Files {
		if !strings.HasPrefix(path, "signatures/") || !strings.HasSuffix(path, ".sig") {
			continue
		}
		keyID := strings.TrimSuffix(strings.TrimPrefix(path, "signatures/"), ".sig")
		found := false
		for _, s := range declared {
			if s.KeyID == keyID {
				found = true
				break
			}
		}
		if !found {
			declared = append(declared, Signature{KeyID: keyID, Algorithm: "ed25519", Value: data})
		}
	}

	verified := 0
	for _, s := range declared {
		pub := keyFor(s.KeyID)
		if pub != nil && sign.Verify(pub, unsigned, s.Value) {
			verified++
			continue
		}
		switch opts.Policy {
		case sign.PolicyDevOk, sign.PolicyStrict:
			return diagnostics.Diagnostic{
				Code:     diagnostics.CodeSignatureInvalid,
				Severity: diagnostics.SeverityFatal,
				Message:  "signature by key " + s.KeyID + " does not verify",
			}
		case sign.PolicyRequireEd25519:
			// A non-verifying signature is tolerated as long as at least
			// one other signature verifies against the key set.
		}
	}

	switch opts.Policy {
	case sign.PolicyDevOk:
		if len(declared) == 0 {
			load.Report.Warnings = append(load.Report.Warnings, diagnostics.Diagnostic{
				Code:     diagnostics.CodeSignatureMissing,
				Severity: diagnostics.SeverityWarning,
				Message:  "archive is unsigned",
			})
		}
		load.Report.SignatureOK = verified > 0
	case sign.PolicyRequireEd25519:
		if verified == 0 {
			return diagnostics.Diagnostic{
				Code:     diagnostics.CodeSignatureMissing,
				Severity: diagnostics.SeverityFatal,
				Message:  "no declared signature verifies against the configured key set",
			}
		}
		load.Report.SignatureOK = true
	case sign.PolicyStrict:
		if len(declared) == 0 {
			return diagnostics.Diagnostic{
				Code:     diagnostics.CodeSignatureMissing,
				Severity: diagnostics.SeverityFatal,
				Message:  "archive is unsigned",
			}
		}
		load.Report.SignatureOK = verified == len(declared)
	}
	return nil
}

// verifyManifestIndex checks every component-manifest-index entry's stored
// bytes against its recorded content hash, surfacing per-entry diagnostics.
func verifyManifestIndex(load *Load) {
	ext, ok := load.Manifest.Extensions[ComponentManifestIndexKey]
	if !ok {
		return
	}
	var entries []component.IndexEntry
	if err := reencode(ext.Raw, &entries); err != nil {
		load.Report.Warnings = append(load.Report.Warnings, diagnostics.Diagnostic{
			Code:     diagnostics.CodeExtensionInvalid,
			Severity: diagnostics.SeverityWarning,
			Message:  "component-manifest-index payload is not decodable",
		})
		return
	}
	for _, e := range entries {
		data, ok := load.Files[e.ArchivePath]
		if !ok {
			load.Report.Warnings = append(load.Report.Warnings, diagnostics.Diagnostic{
				Code:     diagnostics.CodeManifestMissing,
				Severity: diagnostics.SeverityWarning,
				Message:  "manifest file missing from archive",
				Location: diagnostics.Location{Path: e.ArchivePath},
			})
			continue
		}
		if got := ident.SHA256Digest(data); got != e.SHA256 {
			load.Report.Warnings = append(load.Report.Warnings, diagnostics.Diagnostic{
				Code:     diagnostics.CodeDigestMismatch,
				Severity: diagnostics.SeverityWarning,
				Message:  "hash mismatch: index records " + e.SHA256 + ", archive holds " + got,
				Location: diagnostics.Location{Path: e.ArchivePath},
			})
		}
	}
}

// reencode converts an interface{}-typed extension payload, as produced by
// a generic CBOR decode, into its typed form via a canonical round-trip.
func reencode(raw interface{}, into interface{}) error {
	b, err := canon.Encode(raw)
	if err != nil {
		return err
	}
	return canon.Decode(b, into)
}
