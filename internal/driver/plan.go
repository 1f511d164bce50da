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
	"github.com/greenticai/packc/internal/canon"
	"github.com/greenticai/packc/internal/component"
	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/pack"
	"github.com/greenticai/packc/internal/plan"
	"github.com/greenticai/packc/internal/runtime"
	"github.com/greenticai/packc/internal/sign"
)

// Plan opens a built archive and infers its deployment plan for the
// context's tenant and the given environment label.
func Plan(rt *runtime.RuntimeContext, archivePath, environment string, diags *diagnostics.Collector) (*plan.DeploymentPlan, error) {
	load, err := pack.OpenPack(rt.Fs, archivePath, pack.OpenOptions{Policy: sign.PolicyDevOk})
	if err != nil {
		return nil, err
	}
	for _, w := range load.Report.Warnings {
		diags.Add(w)
	}
	return PlanFromLoad(rt, load, environment)
}

// PlanFromLoad infers a deployment plan from an already opened archive.
func PlanFromLoad(rt *runtime.RuntimeContext, load *pack.Load, environment string) (*plan.DeploymentPlan, error) {
	m := load.Manifest

	flows := make([]plan.FlowSummary, 0, len(m.Flows))
	for _, f := range m.Flows {
		flows = append(flows, plan.FlowSummary{ID: f.ID})
	}

	comps := map[string]component.Manifest{}
	for _, c := range m.Components {
		comps[c.Manifest.ComponentID] = c.Manifest
	}

	connectors := connectorsFromManifest(m)

	p := plan.Infer(m.PackID, m.Version, flows, connectors, comps, rt.Tenant, environment)
	return &p, nil
}

// connectorsFromManifest digs the `connectors` annotation value out of the
// manifest's annotations extension, if present.
func connectorsFromManifest(m pack.Manifest) interface{} {
	ext, ok := m.Extensions[pack.AnnotationsExtensionKey]
	if !ok {
		return nil
	}
	var annotations map[string]interface{}
	if b, err := canon.Encode(ext.Raw); err == nil {
		if err := canon.Decode(b, &annotations); err != nil {
			return nil
		}
	}
	return annotations["connectors"]
}
