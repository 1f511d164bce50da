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

package resolve

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/ident"
)

// NodeLocation names one node a resolve request concerns, for diagnostics.
type NodeLocation struct {
	FlowID string
	NodeID string
}

// Options controls resolution policy.
type Options struct {
	// Strict requires every flow node to have a sidecar entry. When false,
	// missing entries are reported as warnings on the diagnostics
	// collector instead of aborting the build.
	Strict bool
	// Offline requires a digest on every remote (oci/repo/store) source.
	Offline bool
	// AllowTags permits tag-based (non-digest-pinned) OCI references.
	AllowTags bool
}

// LockedComponent is one resolved, deduplicated entry destined for the
// lockfile.
type LockedComponent struct {
	Name        string `json:"name"`
	Ref         string `json:"ref"`
	Digest      string `json:"digest"`
	ComponentID string `json:"componentId,omitempty"`
}

// FlowNodes is the minimal view of a flow's node ids resolution needs; the
// flow package's Flow.Nodes keys satisfy this by conversion at call sites.
type FlowNodes struct {
	FlowID   string
	FlowPath string
	NodeIDs  []string
	// ComponentIDs, when present, maps node id to the component id bound
	// to it (used for dedup keying); nodes absent from this map dedup by
	// resolved reference instead.
	ComponentIDs map[string]string
}

// normalizeLocal resolves a local source path relative to the flow's
// directory and computes its SHA-256 digest, verifying it against the
// sidecar's declared digest when present.
func normalizeLocal(fs afero.Fs, flowDir string, src SourceRef) (ref, digest string, err error) {
	abs := src.Path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(flowDir, src.Path)
	}
	abs = filepath.Clean(abs)
	ref = "file://" + filepath.ToSlash(abs)

	data, err := afero.ReadFile(fs, abs)
	if err != nil {
		return "", "", errors.Wrapf(err, "read local component %s", abs)
	}
	digest = ident.SHA256Digest(data)
	if src.Digest != "" && src.Digest != digest {
		return "", "", diagnostics.Diagnostic{
			Code:     diagnostics.CodeDigestMismatch,
			Severity: diagnostics.SeverityFatal,
			Message:  "local component digest mismatch: sidecar declared " + src.Digest + ", computed " + digest,
			Location: diagnostics.Location{Path: abs},
		}
	}
	return ref, digest, nil
}

func schemeFor(kind SourceKind, ref string) string {
	prefix := string(kind) + "://"
	if strings.Contains(ref, "://") {
		return ref
	}
	return prefix + ref
}

// normalizeRemote applies the oci/repo/store normalization rule: add the
// kind's scheme unless the reference already carries one, and require a
// digest when running offline.
func normalizeRemote(kind SourceKind, src SourceRef, opts Options, loc NodeLocation) (ref, digest string, err error) {
	ref = schemeFor(kind, src.Ref)
	digest = src.Digest

	if kind == SourceOCI {
		bare := strings.TrimPrefix(ref, "oci://")
		if err := ValidateOCIRef(bare, opts.AllowTags); err != nil {
			return "", "", diagnostics.Diagnostic{
				Code:     diagnostics.CodeOciRefInvalid,
				Severity: diagnostics.SeverityFatal,
				Message:  err.Error(),
				Location: diagnostics.Location{Path: loc.FlowID, Span: loc.NodeID},
			}
		}
	}

	if digest == "" && opts.Offline {
		return "", "", diagnostics.Diagnostic{
			Code:     diagnostics.CodeDigestRequiredOffline,
			Severity: diagnostics.SeverityFatal,
			Message:  "remote component source has no digest and the runtime is offline",
			Location: diagnostics.Location{Path: loc.FlowID, Span: loc.NodeID},
		}
	}
	return ref, digest, nil
}

// Resolve normalizes every node's source across the given flows, dedupes by
// component id (falling back to resolved reference), and returns the sorted
// set of locked components ready for the lockfile.
func Resolve(fs afero.Fs, flows []FlowNodes, opts Options, diags *diagnostics.Collector) ([]LockedComponent, error) {
	seen := map[string]LockedComponent{}
	seenByRef := map[string]bool{}
	var ordered []LockedComponent

	for _, flow := range flows {
		sidecar, err := ReadSidecar(fs, flow.FlowPath)
		if err != nil {
			return nil, errors.Wrap(err, "read resolve sidecar")
		}

		var missing []string
		for _, nodeID := range flow.NodeIDs {
			var entry NodeResolve
			var have bool
			if sidecar != nil {
				entry, have = sidecar.Nodes[nodeID]
			}
			if !have {
				missing = append(missing, nodeID)
				continue
			}

			loc := NodeLocation{FlowID: flow.FlowID, NodeID: nodeID}
			flowDir := filepath.Dir(flow.FlowPath)

			var ref, digest string
			switch entry.Source.Kind {
			case SourceLocal:
				ref, digest, err = normalizeLocal(fs, flowDir, entry.Source)
			case SourceOCI, SourceRepo, SourceStore:
				ref, digest, err = normalizeRemote(entry.Source.Kind, entry.Source, opts, loc)
			default:
				err = errors.Errorf("unknown component source kind %q", entry.Source.Kind)
			}
			if err != nil {
				return nil, err
			}

			componentID := flow.ComponentIDs[nodeID]
			name := flow.FlowID + "___" + nodeID
			locked := LockedComponent{Name: name, Ref: ref, Digest: digest, ComponentID: componentID}

			dedupKey := ref
			if componentID != "" {
				dedupKey = "id:" + componentID
			}
			if existing, ok := seen[dedupKey]; ok {
				if existing.Ref != ref || existing.Digest != digest {
					return nil, diagnostics.Diagnostic{
						Code:     diagnostics.CodeLockConflict,
						Severity: diagnostics.SeverityFatal,
						Message:  "component " + componentID + " resolves to conflicting sources across nodes " + existing.Name + " and " + nodeID,
						Location: diagnostics.Location{Path: flow.FlowID},
					}
				}
				continue
			}
			seen[dedupKey] = locked
			if !seenByRef[ref] {
				seenByRef[ref] = true
				ordered = append(ordered, locked)
			}
		}

		if len(missing) > 0 {
			if opts.Strict {
				return nil, diagnostics.Diagnostic{
					Code:     diagnostics.CodeSidecarMissingNodes,
					Severity: diagnostics.SeverityFatal,
					Message:  "flow is missing resolve entries for nodes: " + strings.Join(missing, ", "),
					Location: diagnostics.Location{Path: flow.FlowID},
				}
			}
			diags.Warn(diagnostics.CodeSidecarMissingNodes, "flow is missing resolve entries for nodes: "+strings.Join(missing, ", "), diagnostics.Location{Path: flow.FlowID})
		}
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Name != ordered[j].Name {
			return ordered[i].Name < ordered[j].Name
		}
		return ordered[i].Ref < ordered[j].Ref
	})
	return ordered, nil
}
