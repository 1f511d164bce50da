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

package driver

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/flow"
	"github.com/greenticai/packc/internal/resolve"
	"github.com/greenticai/packc/internal/runtime"
	"github.com/greenticai/packc/internal/specmodel"
)

// flowsDir and componentsDir are the conventional pack source layout the
// update step syncs from.
const (
	flowsDir      = "flows"
	componentsDir = "components"
)

// flowFileExts lists the flow document extensions update recognizes.
var flowFileExts = map[string]bool{".ygtc": true, ".yaml": true, ".yml": true}

// Update syncs pack.yaml with the pack directory's contents — flows and
// component bytecode found on disk are added to the spec — and creates
// missing resolve sidecars for flows whose nodes can be mapped to local
// bytecode. In strict mode a node that still has no mapping afterwards is
// fatal.
func Update(rt *runtime.RuntimeContext, packDir string, diags *diagnostics.Collector) error {
	specPath := filepath.Join(packDir, specmodel.SpecFile)
	raw, err := afero.ReadFile(rt.Fs, specPath)
	if err != nil {
		return diagnostics.Diagnostic{
			Code:     diagnostics.CodeReadFailed,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "read pack spec").Error(),
			Location: diagnostics.Location{Path: specPath},
		}
	}
	var spec specmodel.PackSpec
	if err := sigsyaml.Unmarshal(raw, &spec); err != nil {
		return diagnostics.Diagnostic{
			Code:     diagnostics.CodeSpecInvalid,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "parse pack spec").Error(),
			Location: diagnostics.Location{Path: specPath},
		}
	}

	changed := syncFlows(rt.Fs, packDir, &spec)
	changed = syncComponents(rt.Fs, packDir, &spec) || changed

	if changed {
		out, err := sigsyaml.Marshal(spec)
		if err != nil {
			return errors.Wrap(err, "marshal pack spec")
		}
		if err := afero.WriteFile(rt.Fs, specPath, out, 0o644); err != nil {
			return diagnostics.Diagnostic{
				Code:     diagnostics.CodeWriteFailed,
				Severity: diagnostics.SeverityFatal,
				Message:  errors.Wrap(err, "rewrite pack spec").Error(),
				Location: diagnostics.Location{Path: specPath},
			}
		}
	}

	return syncSidecars(rt, packDir, spec, diags)
}

// syncFlows adds a FlowRef for every flow document on disk the spec does
// not already reference. The flow id defaults to the file's basename.
func syncFlows(fs afero.Fs, packDir string, spec *specmodel.PackSpec) bool {
	dir := filepath.Join(packDir, flowsDir)
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return false
	}
	known := map[string]bool{}
	for _, f := range spec.Flows {
		known[filepath.ToSlash(f.File)] = true
	}
	changed := false
	for _, info := range infos {
		if info.IsDir() || !flowFileExts[filepath.Ext(info.Name())] {
			continue
		}
		// Sidecars share the flows directory; skip anything that is a
		// sidecar for another file.
		if strings.Contains(info.Name(), ".resolve.") {
			continue
		}
		rel := flowsDir + "/" + info.Name()
		if known[rel] {
			continue
		}
		id := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
		spec.Flows = append(spec.Flows, specmodel.FlowRef{ID: id, File: rel})
		changed = true
	}
	if changed {
		sort.Slice(spec.Flows, func(i, j int) bool { return spec.Flows[i].ID < spec.Flows[j].ID })
	}
	return changed
}

// syncComponents adds a ComponentDecl for every bytecode file on disk the
// spec does not already declare. The declared id is the file's basename,
// which by convention is the component id.
func syncComponents(fs afero.Fs, packDir string, spec *specmodel.PackSpec) bool {
	dir := filepath.Join(packDir, componentsDir)
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return false
	}
	known := map[string]bool{}
	for _, c := range spec.Components {
		known[c.ID] = true
	}
	changed := false
	for _, info := range infos {
		if info.IsDir() || filepath.Ext(info.Name()) != ".wasm" {
			continue
		}
		id := strings.TrimSuffix(info.Name(), ".wasm")
		if known[id] {
			continue
		}
		spec.Components = append(spec.Components, specmodel.ComponentDecl{
			ID:     id,
			Source: componentsDir + "/" + info.Name(),
		})
		changed = true
	}
	if changed {
		sort.Slice(spec.Components, func(i, j int) bool { return spec.Components[i].ID < spec.Components[j].ID })
	}
	return changed
}

// syncSidecars compiles each flow and fills in missing sidecar node
// entries where a node's pin matches local bytecode under components/.
// Nodes that remain unmapped are fatal in strict mode, warnings otherwise.
func syncSidecars(rt *runtime.RuntimeContext, packDir string, spec specmodel.PackSpec, diags *diagnostics.Collector) error {
	for _, ref := range spec.Flows {
		flowPath := filepath.Join(packDir, ref.File)
		raw, err := afero.ReadFile(rt.Fs, flowPath)
		if err != nil {
			diags.Fatal(diagnostics.CodeReadFailed, errors.Wrap(err, "read flow").Error(), diagnostics.Location{Path: flowPath})
			continue
		}
		bundle, _, err := flow.LoadAndValidateBundle(raw, flowPath)
		if err != nil {
			if d, ok := err.(diagnostics.Diagnostic); ok {
				diags.Add(d)
			} else {
				diags.Fatal(diagnostics.CodeFlowCompileError, err.Error(), diagnostics.Location{Path: flowPath})
			}
			continue
		}

		doc, err := resolve.ReadSidecar(rt.Fs, flowPath)
		if err != nil {
			diags.Fatal(diagnostics.CodeSidecarParseError, err.Error(), diagnostics.Location{Path: flowPath})
			continue
		}
		if doc == nil {
			doc = &resolve.SidecarDocument{
				SchemaVersion: 1,
				Flow:          filepath.ToSlash(ref.File),
				Nodes:         map[string]resolve.NodeResolve{},
			}
		}
		if doc.Nodes == nil {
			doc.Nodes = map[string]resolve.NodeResolve{}
		}

		changed := false
		var unmapped []string
		for _, node := range bundle.Nodes {
			if _, ok := doc.Nodes[node.NodeID]; ok {
				continue
			}
			// The sidecar path is relative to the flow file's directory.
			local := filepath.Join(packDir, componentsDir, node.Component.Name+".wasm")
			if exists, _ := afero.Exists(rt.Fs, local); exists {
				rel, err := filepath.Rel(filepath.Dir(flowPath), local)
				if err != nil {
					rel = local
				}
				doc.Nodes[node.NodeID] = resolve.NodeResolve{
					Source: resolve.SourceRef{Kind: resolve.SourceLocal, Path: filepath.ToSlash(rel)},
				}
				changed = true
				continue
			}
			unmapped = append(unmapped, node.NodeID)
		}

		if changed {
			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return errors.Wrap(err, "marshal resolve sidecar")
			}
			sidecarPath := resolve.SidecarPathsForFlow(flowPath)[0]
			if err := afero.WriteFile(rt.Fs, sidecarPath, out, 0o644); err != nil {
				return diagnostics.Diagnostic{
					Code:     diagnostics.CodeWriteFailed,
					Severity: diagnostics.SeverityFatal,
					Message:  errors.Wrap(err, "write resolve sidecar").Error(),
					Location: diagnostics.Location{Path: sidecarPath},
				}
			}
		}

		if len(unmapped) > 0 {
			msg := "flow is missing resolve entries for nodes: " + strings.Join(unmapped, ", ")
			if rt.Strict {
				diags.Fatal(diagnostics.CodeSidecarMissingNodes, msg, diagnostics.Location{Path: bundle.ID})
			} else {
				diags.Warn(diagnostics.CodeSidecarMissingNodes, msg, diagnostics.Location{Path: bundle.ID})
			}
		}
	}
	return nil
}
