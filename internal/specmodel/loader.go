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

package specmodel

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/greenticai/packc/internal/diagnostics"
)

// SpecFile is the conventional name of a pack's spec document.
const SpecFile = "pack.yaml"

// LoadSpec reads and validates packDir/pack.yaml, producing a SpecBundle.
// Every relative path named inside the spec (flow files, asset paths) is
// normalized against packDir and rejected with a PathEscape diagnostic if it
// resolves outside the pack directory. A spec with kind "rollout-strategy"
// is rejected unconditionally: that kind is reserved for a later phase.
func LoadSpec(fs afero.Fs, packDir string) (*SpecBundle, error) {
	sourcePath := filepath.Join(packDir, SpecFile)

	raw, err := afero.ReadFile(fs, sourcePath)
	if err != nil {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeReadFailed,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "read pack spec").Error(),
			Location: diagnostics.Location{Path: sourcePath},
		}
	}

	var spec PackSpec
	if err := sigsyaml.Unmarshal(raw, &spec); err != nil {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeSpecInvalid,
			Severity: diagnostics.SeverityFatal,
			Message:  errors.Wrap(err, "parse pack spec").Error(),
			Location: diagnostics.Location{Path: sourcePath},
		}
	}

	spec.Annotations = orderedAnnotations(spec.RawAnnotations)

	if spec.Kind == KindRolloutStrategy {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeKindReserved,
			Severity: diagnostics.SeverityFatal,
			Message:  "kind \"rollout-strategy\" is reserved and must not be used",
			Location: diagnostics.Location{Path: sourcePath},
		}
	}
	if !ValidKind(spec.Kind) {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeSpecInvalid,
			Severity: diagnostics.SeverityFatal,
			Message:  "unknown pack kind: " + string(spec.Kind),
			Location: diagnostics.Location{Path: sourcePath},
		}
	}
	if !ValidPackID(spec.PackID) {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeInvalidIdentifier,
			Severity: diagnostics.SeverityFatal,
			Message:  "pack id is not well-formed: " + spec.PackID,
			Location: diagnostics.Location{Path: sourcePath},
		}
	}
	if !ValidVersion(spec.Version) {
		return nil, diagnostics.Diagnostic{
			Code:     diagnostics.CodeSpecInvalid,
			Severity: diagnostics.SeverityFatal,
			Message:  "pack version is not a valid semantic version: " + spec.Version,
			Location: diagnostics.Location{Path: sourcePath},
		}
	}

	for _, f := range spec.Flows {
		norm, err := confine(packDir, f.File)
		if err != nil {
			return nil, diagnostics.Diagnostic{
				Code:     diagnostics.CodePathEscape,
				Severity: diagnostics.SeverityFatal,
				Message:  err.Error(),
				Location: diagnostics.Location{Path: sourcePath, Span: "flows." + f.ID},
			}
		}
		if exists, _ := afero.Exists(fs, norm); !exists {
			return nil, diagnostics.Diagnostic{
				Code:     diagnostics.CodeSpecInvalid,
				Severity: diagnostics.SeverityFatal,
				Message:  "flow file does not exist: " + f.File,
				Location: diagnostics.Location{Path: sourcePath, Span: "flows." + f.ID},
			}
		}
	}

	for _, a := range spec.Assets {
		if _, err := confine(packDir, a); err != nil {
			return nil, diagnostics.Diagnostic{
				Code:     diagnostics.CodePathEscape,
				Severity: diagnostics.SeverityFatal,
				Message:  err.Error(),
				Location: diagnostics.Location{Path: sourcePath, Span: "assets"},
			}
		}
	}

	if len(spec.EntryFlows) == 0 {
		for _, f := range spec.Flows {
			spec.EntryFlows = append(spec.EntryFlows, f.ID)
		}
	}
	if spec.RawAnnotations == nil {
		spec.RawAnnotations = map[string]interface{}{}
	}
	if _, ok := spec.RawAnnotations["imports_required"]; !ok && len(spec.Imports) > 0 {
		spec.RawAnnotations["imports_required"] = true
	}

	return &SpecBundle{Spec: spec, SourcePath: sourcePath}, nil
}

// confine resolves rel against root, rejecting any path that normalizes
// outside of root.
func confine(root, rel string) (string, error) {
	if rel == "" {
		return root, nil
	}
	joined := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", errors.Errorf("path %q escapes pack root", rel)
	}
	return joined, nil
}

// orderedAnnotations is a placeholder that preserves map iteration as given
// by the YAML decoder; Go's map type does not preserve document order, so
// true order-fidelity would require a custom YAML node walk. Annotations
// consumers that care about order (deployment plan CLI rendering) sort keys
// deterministically instead of depending on source order.
func orderedAnnotations(m map[string]interface{}) []Annotation {
	if len(m) == 0 {
		return nil
	}
	out := make([]Annotation, 0, len(m))
	for k, v := range m {
		out = append(out, Annotation{Key: k, Value: v})
	}
	return out
}
