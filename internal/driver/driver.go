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

// Package driver orchestrates the top-level pack pipeline: update spec and
// sidecars from disk, resolve components into a lockfile, compose the
// archive, and open/inspect built packs.
package driver

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/component"
	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/flow"
	"github.com/greenticai/packc/internal/ident"
	"github.com/greenticai/packc/internal/mcp"
	"github.com/greenticai/packc/internal/oci"
	"github.com/greenticai/packc/internal/pack"
	"github.com/greenticai/packc/internal/provenance"
	"github.com/greenticai/packc/internal/resolve"
	"github.com/greenticai/packc/internal/runtime"
	"github.com/greenticai/packc/internal/sign"
	"github.com/greenticai/packc/internal/specmodel"
)

// CompiledFlow pairs a spec flow reference with its compiled bundle and IR.
type CompiledFlow struct {
	Ref    specmodel.FlowRef
	Path   string
	Bundle flow.FlowBundle
	IR     flow.Flow
}

// LoadedPack is the driver's working state for one pack directory.
type LoadedPack struct {
	Dir   string
	Spec  specmodel.PackSpec
	Flows []CompiledFlow
}

// Load reads packDir's spec and compiles every referenced flow. Flow
// failures are collected so one bad flow does not hide another; a fatal
// collector state is reported by the caller.
func Load(rt *runtime.RuntimeContext, packDir string, diags *diagnostics.Collector) (*LoadedPack, error) {
	bundle, err := specmodel.LoadSpec(rt.Fs, packDir)
	if err != nil {
		return nil, err
	}
	lp := &LoadedPack{Dir: packDir, Spec: bundle.Spec}

	for _, ref := range bundle.Spec.Flows {
		path := filepath.Join(packDir, ref.File)
		raw, err := afero.ReadFile(rt.Fs, path)
		if err != nil {
			diags.Fatal(diagnostics.CodeReadFailed, errors.Wrap(err, "read flow").Error(), diagnostics.Location{Path: path})
			continue
		}
		fb, ir, err := flow.LoadAndValidateBundle(raw, path)
		if err != nil {
			if d, ok := err.(diagnostics.Diagnostic); ok {
				diags.Add(d)
			} else {
				diags.Fatal(diagnostics.CodeFlowCompileError, err.Error(), diagnostics.Location{Path: path})
			}
			continue
		}
		lp.Flows = append(lp.Flows, CompiledFlow{Ref: ref, Path: path, Bundle: *fb, IR: *ir})
	}
	sort.Slice(lp.Flows, func(i, j int) bool { return lp.Flows[i].Bundle.ID < lp.Flows[j].Bundle.ID })
	return lp, nil
}

// flowNodes adapts a compiled flow into the resolver's input view.
func flowNodes(cf CompiledFlow) resolve.FlowNodes {
	ids := make([]string, 0, len(cf.IR.Nodes))
	componentIDs := map[string]string{}
	for id, node := range cf.IR.Nodes {
		ids = append(ids, id)
		componentIDs[id] = node.Component.Name
	}
	sort.Strings(ids)
	return resolve.FlowNodes{
		FlowID:       cf.Bundle.ID,
		FlowPath:     cf.Path,
		NodeIDs:      ids,
		ComponentIDs: componentIDs,
	}
}

// Resolve runs the component resolver over every compiled flow and returns
// the locked component set.
func Resolve(rt *runtime.RuntimeContext, lp *LoadedPack, diags *diagnostics.Collector) ([]resolve.LockedComponent, error) {
	flows := make([]resolve.FlowNodes, 0, len(lp.Flows))
	for _, cf := range lp.Flows {
		flows = append(flows, flowNodes(cf))
	}
	return resolve.Resolve(rt.Fs, flows, resolve.Options{
		Strict:    rt.Strict,
		Offline:   rt.Offline,
		AllowTags: rt.AllowOCITags,
	}, diags)
}

// WriteLock resolves and writes the JSON lockfile at lockPath (defaulting
// to <packDir>/pack.lock.json).
func WriteLock(rt *runtime.RuntimeContext, packDir, lockPath string, diags *diagnostics.Collector) (*resolve.PackLock, error) {
	lp, err := Load(rt, packDir, diags)
	if err != nil {
		return nil, err
	}
	if diags.HasFatal() {
		return nil, nil
	}
	locked, err := Resolve(rt, lp, diags)
	if err != nil {
		return nil, err
	}
	lock := resolve.NewPackLock(locked)
	if lockPath == "" {
		lockPath = filepath.Join(packDir, resolve.LockFileName)
	}
	if err := resolve.WriteJSON(rt.Fs, lockPath, lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

// BuildOptions parameterizes a full pack build.
type BuildOptions struct {
	OutPath  string
	LockPath string
	// NoUpdate skips the spec/sidecar sync step.
	NoUpdate bool
	// DryRun runs the full pipeline but writes neither archive nor
	// lockfile.
	DryRun bool
	// EmitSBOM generates sbom.cdx.json into the archive.
	EmitSBOM bool
	// EmbedLock stores pack.lock.cbor inside the archive.
	EmbedLock bool
	// EmitFlowFiles additionally stores flows/<id>/flow.{ygtc,json}.
	EmitFlowFiles bool
	SignMode      sign.Mode
	Signer        sign.Signer
	Provenance    *provenance.Record
	// Registry, when set, is consulted to fetch remote components that
	// are not yet in the local cache. It is the pipeline's only
	// suspension point and honors ctx's deadline.
	Registry oci.RegistryClient
}

// BuildOutcome reports a finished build.
type BuildOutcome struct {
	Result *pack.BuildResult
	Lock   resolve.PackLock
}

// Build runs the pipeline end to end: (optional) update, load, resolve,
// component manifest discovery, archive composition, lockfile sidecar.
// Diagnostics aggregate on diags; a fatal collector state yields a nil
// outcome with no error.
func Build(ctx context.Context, rt *runtime.RuntimeContext, packDir string, opts BuildOptions, diags *diagnostics.Collector) (*BuildOutcome, error) {
	if !opts.NoUpdate {
		if err := Update(rt, packDir, diags); err != nil {
			return nil, err
		}
	}

	lp, err := Load(rt, packDir, diags)
	if err != nil {
		return nil, err
	}
	if diags.HasFatal() {
		return nil, nil
	}

	locked, err := Resolve(rt, lp, diags)
	if err != nil {
		return nil, err
	}
	lock := resolve.NewPackLock(locked)

	comps, err := collectComponents(ctx, rt, opts.Registry, locked, diags)
	if err != nil {
		return nil, err
	}
	if diags.HasFatal() {
		return nil, nil
	}

	outPath := opts.OutPath
	if outPath == "" {
		outPath = filepath.Join(packDir, lp.Spec.PackID+".gtpack")
	}

	b := pack.NewBuilder(rt.Fs, pack.Meta{
		PackID:       lp.Spec.PackID,
		Version:      lp.Spec.Version,
		Kind:         lp.Spec.Kind,
		Publisher:    lp.Spec.Publisher,
		Authors:      lp.Spec.Authors,
		EntryFlows:   lp.Spec.EntryFlows,
		Dependencies: lp.Spec.Imports,
		Annotations:  lp.Spec.RawAnnotations,
	})
	for _, cf := range lp.Flows {
		b.WithFlow(pack.FlowInput{Bundle: cf.Bundle, IR: cf.IR, EmitFiles: opts.EmitFlowFiles})
	}
	for _, c := range comps {
		b.WithComponent(c)
	}
	for _, asset := range lp.Spec.Assets {
		data, err := afero.ReadFile(rt.Fs, filepath.Join(packDir, asset))
		if err != nil {
			diags.Fatal(diagnostics.CodeReadFailed, errors.Wrap(err, "read asset").Error(), diagnostics.Location{Path: asset})
			continue
		}
		b.WithAssetBytes(filepath.ToSlash(asset), data)
	}
	if diags.HasFatal() {
		return nil, nil
	}

	if len(lp.Spec.McpCompositions) > 0 {
		composed, err := mcp.Compose(lp.Spec.McpCompositions)
		if err != nil {
			diags.Fatal(diagnostics.CodeSpecInvalid, err.Error(), diagnostics.Location{Path: lp.Dir})
			return nil, nil
		}
		b.WithMcpExtension(composed)
	}

	signMode := opts.SignMode
	if signMode == "" {
		signMode = sign.ModeNone
	}
	b.WithSigning(signMode, opts.Signer)
	b.WithLock(lock, opts.EmbedLock)
	if opts.EmitSBOM {
		b.WithSBOM()
	}
	if opts.Provenance != nil {
		b.WithProvenance(*opts.Provenance)
	} else if rt.BuiltAtUTC != "" {
		b.WithProvenance(provenance.New(provenance.Options{
			BuildID:    lp.Spec.PackID + "@" + lp.Spec.Version,
			Builder:    "packc",
			BuiltAtUTC: rt.BuiltAtUTC,
		}))
	}

	if opts.DryRun {
		return &BuildOutcome{Lock: lock}, nil
	}

	result, err := b.Build(outPath, diags)
	if err != nil {
		return nil, err
	}

	lockPath := opts.LockPath
	if lockPath == "" {
		lockPath = filepath.Join(packDir, resolve.LockFileName)
	}
	if err := resolve.WriteJSON(rt.Fs, lockPath, lock); err != nil {
		return nil, err
	}

	return &BuildOutcome{Result: result, Lock: lock}, nil
}

// collectComponents turns the locked component set into builder inputs:
// file-sourced components, and OCI components that are in the local cache
// or can be fetched into it, are embedded with their discovered manifests;
// any other component is left out of the inputs and stays a reference
// carried by the lock.
func collectComponents(ctx context.Context, rt *runtime.RuntimeContext, registry oci.RegistryClient, locked []resolve.LockedComponent, diags *diagnostics.Collector) ([]pack.ComponentInput, error) {
	// Spec-declared inline manifests are reserved; discovery falls through
	// to sibling files and the describe cache.
	var inline map[string]*component.Manifest

	var out []pack.ComponentInput
	seen := map[string]bool{}
	for _, lc := range locked {
		alias := lc.ComponentID
		if alias == "" {
			alias = lc.Name
		}

		var wasmPath string
		switch {
		case strings.HasPrefix(lc.Ref, "file://"):
			wasmPath = strings.TrimPrefix(lc.Ref, "file://")
		case strings.HasPrefix(lc.Ref, "oci://") && lc.Digest != "":
			// A remote component whose artifact is already in the local
			// content-addressed cache is embedded from there, so offline
			// builds of previously-fetched packs still produce complete
			// archives.
			path, cached, err := rt.Cache().BytecodePath(lc.Digest)
			if err != nil {
				continue
			}
			if !cached {
				if registry == nil || rt.Offline {
					continue
				}
				if path, err = fetchIntoCache(ctx, rt, registry, lc); err != nil {
					if d, ok := err.(diagnostics.Diagnostic); ok {
						diags.Add(d)
						continue
					}
					return nil, err
				}
			}
			wasmPath = path
			if lc.ComponentID == "" {
				if ref, err := oci.ParseRef(strings.TrimPrefix(lc.Ref, "oci://")); err == nil {
					alias = oci.ArtifactName(oci.RemoveDomainAndOrg(ref.Repository))
				}
			}
		default:
			continue
		}
		if seen[alias] {
			continue
		}
		seen[alias] = true
		discovered, err := component.Discover(rt.Fs, wasmPath, inline[alias])
		if err != nil {
			return nil, err
		}
		if discovered.Source == "describe-cache" && !rt.UseDescribeCache {
			discovered = component.Discovered{}
			if m := inline[alias]; m != nil {
				discovered = component.Discovered{Manifest: *m, Source: "inline"}
			}
		}
		in := pack.ComponentInput{Alias: alias, WasmPath: wasmPath, Embedded: true}
		if discovered.Source != "" {
			m := discovered.Manifest
			in.Manifest = &m
		} else if rt.RequireComponentManifests {
			diags.Fatal(diagnostics.CodeManifestMissing,
				"component "+alias+" has no discoverable manifest",
				diagnostics.Location{Path: wasmPath})
			continue
		}
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

// fetchIntoCache pulls a remote component through the registry capability,
// verifies the bytes against the locked digest, and stores them in the
// content-addressed cache, returning the cached bytecode path.
func fetchIntoCache(ctx context.Context, rt *runtime.RuntimeContext, registry oci.RegistryClient, lc resolve.LockedComponent) (string, error) {
	ref, err := oci.ParseRef(strings.TrimPrefix(lc.Ref, "oci://"))
	if err != nil {
		return "", diagnostics.Diagnostic{
			Code:     diagnostics.CodeOciRefInvalid,
			Severity: diagnostics.SeverityFatal,
			Message:  err.Error(),
			Location: diagnostics.Location{Path: lc.Name},
		}
	}
	data, digest, err := registry.Fetch(ctx, ref)
	if err != nil {
		code := diagnostics.CodeReadFailed
		if ctx.Err() != nil {
			code = diagnostics.CodeTimeout
		}
		return "", diagnostics.Diagnostic{
			Code:     code,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrapf(err, "fetch %s", lc.Ref).Error(),
			Location: diagnostics.Location{Path: lc.Name},
		}
	}
	if got := ident.SHA256Digest(data); got != lc.Digest || (digest != "" && digest != lc.Digest) {
		return "", diagnostics.Diagnostic{
			Code:     diagnostics.CodeDigestMismatch,
			Severity: diagnostics.SeverityFatal,
			Message:  "fetched component digest " + got + " does not match locked digest " + lc.Digest,
			Location: diagnostics.Location{Path: lc.Name},
		}
	}
	cache := rt.Cache()
	if err := cache.Store(lc.Digest, data, nil, ""); err != nil {
		return "", err
	}
	path, _, err := cache.BytecodePath(lc.Digest)
	return path, err
}

// Lint compiles each of packDir's flows and reports per-flow status.
func Lint(rt *runtime.RuntimeContext, packDir string, diags *diagnostics.Collector) ([]CompiledFlow, error) {
	lp, err := Load(rt, packDir, diags)
	if err != nil {
		return nil, err
	}
	return lp.Flows, nil
}

// Doctor opens an archive (or builds one ephemerally from a pack dir) and
// returns its verification load.
func Doctor(ctx context.Context, rt *runtime.RuntimeContext, path string, policy sign.Policy, keys sign.KeySet, diags *diagnostics.Collector) (*pack.Load, error) {
	isDir, err := afero.IsDir(rt.Fs, path)
	if err != nil {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeReadFailed,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "stat").Error(),
			Location: diagnostics.Location{Path: path},
		}
	}
	archivePath := path
	if isDir {
		archivePath = filepath.Join(path, ".packc-doctor.gtpack")
		outcome, err := Build(ctx, rt, path, BuildOptions{OutPath: archivePath, NoUpdate: true}, diags)
		if err != nil {
			return nil, err
		}
		if outcome == nil || outcome.Result == nil {
			return nil, nil
		}
		defer func() { _ = rt.Fs.Remove(archivePath) }()
	}
	return pack.OpenPack(rt.Fs, archivePath, pack.OpenOptions{Policy: policy, Keys: keys})
}
