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
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/canon"
	"github.com/greenticai/packc/internal/component"
	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/flow"
	"github.com/greenticai/packc/internal/ident"
	"github.com/greenticai/packc/internal/provenance"
	"github.com/greenticai/packc/internal/resolve"
	"github.com/greenticai/packc/internal/sign"
	"github.com/greenticai/packc/internal/specmodel"
)

// ManifestFileName is the archive entry holding the canonical manifest.
const ManifestFileName = "manifest.cbor"

// SBOMFileName is the archive entry holding the CycloneDX SBOM.
const SBOMFileName = "sbom.cdx.json"

// LockFileName is the archive entry holding the binary lockfile copy.
const LockFileName = "pack.lock.cbor"

// epoch is the fixed modification time stamped on every archive entry so
// that two builds of the same inputs are bytewise identical.
var epoch = time.Unix(0, 0).UTC()

// Meta is the builder's pack-level input: the normalized subset of a
// PackSpec the manifest carries.
type Meta struct {
	PackID       string
	Version      string
	Kind         specmodel.Kind
	Publisher    string
	Authors      []string
	EntryFlows   []string
	Dependencies []specmodel.Import
	Annotations  map[string]interface{}
}

// FlowInput pairs a compiled flow with its deterministic bundle.
type FlowInput struct {
	Bundle flow.FlowBundle
	IR     flow.Flow
	// EmitFiles additionally stores flows/<id>/flow.ygtc and
	// flows/<id>/flow.json entries in the archive.
	EmitFiles bool
}

// ComponentInput is one component destined for the archive. Bytecode is
// referenced by path and streamed into the archive at write time, never
// fully buffered.
type ComponentInput struct {
	Alias    string
	WasmPath string
	Manifest *component.Manifest
	Embedded bool
}

// Builder accumulates a pack's inputs and composes the final archive. It
// exclusively owns the in-progress manifest and the archive writer until
// Build returns.
type Builder struct {
	fs    afero.Fs
	meta  Meta
	flows []FlowInput
	comps []ComponentInput
	// assets maps logical archive path to verbatim bytes.
	assets map[string][]byte

	signMode sign.Mode
	signer   sign.Signer

	prov      *provenance.Record
	lock      *resolve.PackLock
	embedLock bool

	emitSBOM   bool
	components *ComponentsInline
	mcp        interface{}
}

// ComponentsInline carries a validated "components" extension payload to
// preserve verbatim in the archive.
type ComponentsInline struct {
	Raw interface{}
}

// BuildResult reports the written archive and its manifest fingerprint.
type BuildResult struct {
	OutPath            string
	ManifestHashBLAKE3 string
}

// NewBuilder constructs a Builder over fs with the given pack meta.
func NewBuilder(fs afero.Fs, meta Meta) *Builder {
	return &Builder{
		fs:       fs,
		meta:     meta,
		assets:   map[string][]byte{},
		signMode: sign.ModeNone,
	}
}

// WithFlow adds a compiled flow.
func (b *Builder) WithFlow(in FlowInput) *Builder {
	b.flows = append(b.flows, in)
	return b
}

// WithComponent adds a component.
func (b *Builder) WithComponent(in ComponentInput) *Builder {
	b.comps = append(b.comps, in)
	return b
}

// WithAssetBytes stores bytes verbatim at the given logical archive path.
func (b *Builder) WithAssetBytes(path string, data []byte) *Builder {
	b.assets[path] = data
	return b
}

// WithSigning sets the signing mode. signer may be nil for ModeNone and
// ModeDev.
func (b *Builder) WithSigning(mode sign.Mode, signer sign.Signer) *Builder {
	b.signMode = mode
	b.signer = signer
	return b
}

// WithProvenance attaches a provenance record to the manifest's extensions.
func (b *Builder) WithProvenance(rec provenance.Record) *Builder {
	b.prov = &rec
	return b
}

// WithLock records the resolver's lockfile: resolved components land in
// the component-sources extension, and when embed is set a pack.lock.cbor
// copy is stored in the archive for binary pipelines.
func (b *Builder) WithLock(lock resolve.PackLock, embed bool) *Builder {
	b.lock = &lock
	b.embedLock = embed
	return b
}

// WithSBOM enables CycloneDX SBOM generation.
func (b *Builder) WithSBOM() *Builder {
	b.emitSBOM = true
	return b
}

// WithComponentsExtension preserves a validated components extension
// payload verbatim in the manifest.
func (b *Builder) WithComponentsExtension(raw interface{}) *Builder {
	b.components = &ComponentsInline{Raw: raw}
	return b
}

// McpExtensionKey is the extension key MCP compositions are recorded
// under.
const McpExtensionKey = "mcp"

// WithMcpExtension records the pack's composed MCP bindings in the
// manifest's extensions.
func (b *Builder) WithMcpExtension(raw interface{}) *Builder {
	b.mcp = raw
	return b
}

// normalizeMeta applies the builder's defaulting rules before encoding.
func (b *Builder) normalizeMeta() {
	if len(b.meta.EntryFlows) == 0 {
		for _, f := range b.flows {
			b.meta.EntryFlows = append(b.meta.EntryFlows, f.Bundle.ID)
		}
	}
	if b.meta.Annotations == nil {
		b.meta.Annotations = map[string]interface{}{}
	}
	if _, ok := b.meta.Annotations["imports_required"]; !ok && len(b.meta.Dependencies) > 0 {
		b.meta.Annotations["imports_required"] = true
	}
}

// assembleManifest composes the unsigned manifest from the accumulated
// inputs, returning it along with the component manifest bytes keyed by
// archive path.
func (b *Builder) assembleManifest(diags *diagnostics.Collector) (Manifest, map[string][]byte, error) {
	m := Manifest{
		SchemaVersion: SchemaVersionTag,
		PackID:        b.meta.PackID,
		Version:       b.meta.Version,
		Kind:          b.meta.Kind,
		Publisher:     b.meta.Publisher,
		Dependencies:  b.meta.Dependencies,
	}

	for _, f := range b.flows {
		m.Flows = append(m.Flows, ManifestFlow{
			ID:         f.Bundle.ID,
			Kind:       f.Bundle.Kind,
			Entry:      f.Bundle.Entry,
			HashBLAKE3: f.Bundle.HashBLAKE3,
			IR:         f.IR,
		})
	}
	sort.Slice(m.Flows, func(i, j int) bool { return m.Flows[i].ID < m.Flows[j].ID })

	manifestFiles := map[string][]byte{}
	var index []component.IndexEntry

	comps := append([]ComponentInput(nil), b.comps...)
	sort.Slice(comps, func(i, j int) bool { return comps[i].Alias < comps[j].Alias })

	for _, c := range comps {
		if c.Manifest == nil {
			diags.Warn(diagnostics.CodeComponentNotExplicit,
				"component "+c.Alias+" has no discoverable manifest; it is referenced via component-sources only",
				diagnostics.Location{Path: c.WasmPath})
			continue
		}
		encoded, entry, err := component.Encode(*c.Manifest, c.Alias)
		if err != nil {
			return Manifest{}, nil, err
		}
		manifestFiles[entry.ArchivePath] = encoded
		index = append(index, entry)
		m.Components = append(m.Components, ManifestComponent{
			Alias:    c.Alias,
			Manifest: *c.Manifest,
			Embedded: c.Embedded,
		})
	}

	m.Capabilities = mergeCapabilities(m.Components)
	m.Secrets = deriveSecrets(m.Components)

	if len(index) > 0 {
		sort.Slice(index, func(i, j int) bool { return index[i].Alias < index[j].Alias })
		m.SetComponentManifestIndex(index)
	}
	if b.lock != nil {
		if entries := lockComponentsToSources(b.lock.Components); len(entries) > 0 {
			m.SetComponentSources(entries)
		}
	}
	if b.prov != nil {
		if m.Extensions == nil {
			m.Extensions = map[string]ExtensionPayload{}
		}
		m.Extensions[provenance.ExtensionKey] = ExtensionPayload{
			Kind:    provenance.ExtensionKey,
			Version: "v1",
			Raw:     *b.prov,
		}
	}
	if len(b.meta.Annotations) > 0 {
		if m.Extensions == nil {
			m.Extensions = map[string]ExtensionPayload{}
		}
		m.Extensions[AnnotationsExtensionKey] = ExtensionPayload{
			Kind:    AnnotationsExtensionKey,
			Version: "v1",
			Raw:     b.meta.Annotations,
		}
	}
	if b.components != nil {
		if m.Extensions == nil {
			m.Extensions = map[string]ExtensionPayload{}
		}
		m.Extensions["components"] = ExtensionPayload{
			Kind:    "components",
			Version: "v1",
			Raw:     b.components.Raw,
		}
	}
	if b.mcp != nil {
		if m.Extensions == nil {
			m.Extensions = map[string]ExtensionPayload{}
		}
		m.Extensions[McpExtensionKey] = ExtensionPayload{
			Kind:    McpExtensionKey,
			Version: "v1",
			Raw:     b.mcp,
		}
	}

	return m, manifestFiles, nil
}

// mergeCapabilities unions the host and WASI facets every included
// component declares.
func mergeCapabilities(comps []ManifestComponent) component.Capabilities {
	var out component.Capabilities
	secrets := map[string]bool{}
	messaging := map[string]bool{}
	oauth := map[string]bool{}
	filesystem := map[string]bool{}
	for _, c := range comps {
		caps := c.Manifest.Capabilities
		for _, s := range caps.Host.Secrets {
			secrets[s] = true
		}
		for _, s := range caps.Host.Messaging {
			messaging[s] = true
		}
		for _, s := range caps.Host.OAuth {
			oauth[s] = true
		}
		for _, s := range caps.WASI.Filesystem {
			filesystem[s] = true
		}
		out.Host.Telemetry = out.Host.Telemetry || caps.Host.Telemetry
		out.WASI.Clocks = out.WASI.Clocks || caps.WASI.Clocks
		out.WASI.Random = out.WASI.Random || caps.WASI.Random
		out.WASI.Sockets = out.WASI.Sockets || caps.WASI.Sockets
	}
	out.Host.Secrets = sortedKeys(secrets)
	out.Host.Messaging = sortedKeys(messaging)
	out.Host.OAuth = sortedKeys(oauth)
	out.WASI.Filesystem = sortedKeys(filesystem)
	return out
}

// deriveSecrets records one SecretRequirement per secret key any component
// requires, deduplicated and sorted.
func deriveSecrets(comps []ManifestComponent) []SecretRequirement {
	keys := map[string]bool{}
	for _, c := range comps {
		for _, s := range c.Manifest.Capabilities.Host.Secrets {
			keys[s] = true
		}
	}
	var out []SecretRequirement
	for _, k := range sortedKeys(keys) {
		out = append(out, SecretRequirement{Key: k, Required: true, Scope: "tenant"})
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build executes the pipeline: normalize meta, assemble and canonically
// encode the manifest, sign per the configured mode, write the archive's
// entries in sorted path order with STORED compression and epoch
// timestamps, and atomically rename the finished temp file over outPath.
func (b *Builder) Build(outPath string, diags *diagnostics.Collector) (*BuildResult, error) {
	b.normalizeMeta()

	m, manifestFiles, err := b.assembleManifest(diags)
	if err != nil {
		return nil, err
	}

	unsignedBytes, err := canon.Encode(m.Unsigned())
	if err != nil {
		return nil, errors.Wrap(err, "encode unsigned manifest")
	}

	// signatures maps archive sidecar path to signature bytes.
	signatures := map[string][]byte{}
	switch b.signMode {
	case sign.ModeNone:
	case sign.ModeDev:
		sig, keyID, err := sign.DevSigner{}.Sign(unsignedBytes)
		if err != nil {
			return nil, sigFailed(err)
		}
		signatures["signatures/"+keyID+".sig"] = sig
	case sign.ModeEd25519:
		if b.signer == nil {
			return nil, sigFailed(errors.New("ed25519 signing requested with no signer configured"))
		}
		sig, keyID, err := b.signer.Sign(unsignedBytes)
		if err != nil {
			return nil, sigFailed(err)
		}
		m.Signatures = append(m.Signatures, Signature{KeyID: keyID, Algorithm: "ed25519", Value: sig})
		signatures["signatures/"+keyID+".sig"] = sig
	default:
		return nil, sigFailed(errors.Errorf("unknown signing mode %q", b.signMode))
	}

	manifestBytes, err := canon.Encode(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode manifest")
	}
	manifestHash := ident.BLAKE3Hex(manifestBytes)

	entries := map[string][]byte{ManifestFileName: manifestBytes}
	for path, data := range manifestFiles {
		entries[path] = data
	}
	for path, data := range b.assets {
		entries[path] = data
	}
	for path, sig := range signatures {
		entries[path] = sig
	}
	for _, f := range b.flows {
		if !f.EmitFiles {
			continue
		}
		entries["flows/"+f.Bundle.ID+"/flow.ygtc"] = []byte(f.Bundle.YAML)
		entries["flows/"+f.Bundle.ID+"/flow.json"] = f.Bundle.JSON
	}
	if b.emitSBOM {
		sbom, err := GenerateSBOM(b.meta, b.comps)
		if err != nil {
			return nil, err
		}
		entries[SBOMFileName] = sbom
	}
	if b.lock != nil && b.embedLock {
		raw, err := canon.Encode(resolve.NewPackLock(b.lock.Components))
		if err != nil {
			return nil, errors.Wrap(err, "encode pack.lock.cbor")
		}
		entries[LockFileName] = raw
	}

	if err := b.writeArchive(outPath, entries); err != nil {
		return nil, err
	}
	return &BuildResult{OutPath: outPath, ManifestHashBLAKE3: manifestHash}, nil
}

// writeArchive writes entries (plus streamed component bytecode) into a
// temp file next to outPath, fsyncs, and renames it over the destination.
func (b *Builder) writeArchive(outPath string, entries map[string][]byte) error {
	if dir := filepath.Dir(outPath); dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return writeFailed(errors.Wrapf(err, "create %s", dir))
		}
	}
	tmpPath := outPath + ".tmp"
	f, err := b.fs.Create(tmpPath)
	if err != nil {
		return writeFailed(errors.Wrapf(err, "create %s", tmpPath))
	}
	// The temp file is unlinked on any failure so a cancelled or failed
	// build leaves no partial archive behind.
	cleanup := func() {
		_ = f.Close()
		_ = b.fs.Remove(tmpPath)
	}

	zw := zip.NewWriter(f)

	paths := make([]string, 0, len(entries)+len(b.comps))
	for path := range entries {
		paths = append(paths, path)
	}
	streamed := map[string]string{}
	for _, c := range b.comps {
		if !c.Embedded {
			continue
		}
		path := "components/" + c.Alias + ".wasm"
		streamed[path] = c.WasmPath
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     path,
			Method:   zip.Store,
			Modified: epoch,
		})
		if err != nil {
			cleanup()
			return writeFailed(errors.Wrapf(err, "create archive entry %s", path))
		}
		if src, ok := streamed[path]; ok {
			in, err := b.fs.Open(src)
			if err != nil {
				cleanup()
				return diagnostics.Diagnostic{
					Code:     diagnostics.CodeComponentMissing,
					Severity: diagnostics.SeverityFatal,
					Message:  errors.Wrapf(err, "open component bytecode").Error(),
					Location: diagnostics.Location{Path: src},
				}
			}
			_, err = io.Copy(w, in)
			_ = in.Close()
			if err != nil {
				cleanup()
				return writeFailed(errors.Wrapf(err, "stream component %s", src))
			}
			continue
		}
		if _, err := w.Write(entries[path]); err != nil {
			cleanup()
			return writeFailed(errors.Wrapf(err, "write archive entry %s", path))
		}
	}

	if err := zw.Close(); err != nil {
		cleanup()
		return writeFailed(errors.Wrap(err, "finalize archive"))
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return writeFailed(errors.Wrap(err, "sync archive"))
	}
	if err := f.Close(); err != nil {
		cleanup()
		return writeFailed(errors.Wrap(err, "close archive"))
	}
	if err := b.fs.Rename(tmpPath, outPath); err != nil {
		cleanup()
		return writeFailed(errors.Wrapf(err, "rename %s over %s", tmpPath, outPath))
	}
	return nil
}

func writeFailed(err error) error {
	return diagnostics.Diagnostic{
		Code:     diagnostics.CodeWriteFailed,
		Severity: diagnostics.SeverityFatal,
		Message:  err.Error(),
	}
}

func sigFailed(err error) error {
	return diagnostics.Diagnostic{
		Code:     diagnostics.CodeSignatureInvalid,
		Severity: diagnostics.SeverityFatal,
		Message:  errors.Wrap(err, "sign manifest").Error(),
	}
}
