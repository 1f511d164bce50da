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

package plan

import (
	"testing"

	"github.com/greenticai/packc/internal/component"
	"github.com/greenticai/packc/internal/ident"
)

func tenantCtx(t *testing.T) ident.TenantCtx {
	env, err := ident.NewEnvId("dev")
	if err != nil {
		t.Fatalf("NewEnvId: %v", err)
	}
	tenant, err := ident.NewTenantId("tenant-1")
	if err != nil {
		t.Fatalf("NewTenantId: %v", err)
	}
	return ident.NewTenantCtx(env, tenant)
}

func TestInferPlanWithChannelsAndSecrets(t *testing.T) {
	connectors := map[string]interface{}{
		"messaging": map[string]interface{}{
			"teams": map[string]interface{}{
				"primary": map[string]interface{}{
					"flow":    "flow.main",
					"name":    "teams-primary",
					"team_id": "42",
				},
			},
		},
	}

	components := map[string]component.Manifest{
		"component.a": {
			ComponentID: "component.a",
			Version:     "1.0.0",
			Capabilities: component.Capabilities{
				Host: component.HostFacets{
					Secrets:   []string{"API_TOKEN"},
					Telemetry: true,
				},
			},
		},
	}

	p := Infer("demo.pack", "1.2.3", []FlowSummary{{ID: "flow.main"}}, connectors, components, tenantCtx(t), "staging")

	if p.PackID != "demo.pack" {
		t.Errorf("PackID = %q", p.PackID)
	}
	if len(p.Channels) != 1 {
		t.Fatalf("got %d channels, want 1", len(p.Channels))
	}
	if p.Channels[0].Name != "teams-primary" || p.Channels[0].FlowID != "flow.main" {
		t.Errorf("unexpected channel: %+v", p.Channels[0])
	}
	if len(p.Secrets) != 1 || p.Secrets[0].Key != "API_TOKEN" {
		t.Errorf("unexpected secrets: %+v", p.Secrets)
	}
	if p.Telemetry == nil || !p.Telemetry.Required {
		t.Error("expected telemetry required")
	}
	if p.Messaging == nil {
		t.Fatal("expected a messaging plan")
	}
	found := false
	for _, s := range p.Messaging.Subjects {
		if s.Name == "primary" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a messaging subject named primary, got %+v", p.Messaging.Subjects)
	}
}

func TestInferPlanWithoutConnectorsHasNoMessagingOrChannels(t *testing.T) {
	p := Infer("demo.pack", "0.1.0", nil, nil, nil, tenantCtx(t), "dev")
	if p.Messaging != nil {
		t.Error("expected no messaging plan")
	}
	if len(p.Channels) != 0 {
		t.Error("expected no channels")
	}
	if p.Telemetry != nil {
		t.Error("expected no telemetry plan")
	}
	if len(p.Secrets) != 0 {
		t.Error("expected no secrets")
	}
}

func TestInferPlanRunnerNamesAndCollectsFlowIDs(t *testing.T) {
	flows := []FlowSummary{{ID: "flow.a"}, {ID: "flow.b"}}
	p := Infer("demo.pack", "0.1.0", flows, nil, nil, tenantCtx(t), "dev")
	if len(p.Runners) != 1 {
		t.Fatalf("got %d runners, want 1", len(p.Runners))
	}
	if p.Runners[0].Name != "demo.pack-runner" {
		t.Errorf("runner name = %q", p.Runners[0].Name)
	}
	if len(p.Runners[0].FlowIDs) != 2 {
		t.Errorf("flow ids = %v", p.Runners[0].FlowIDs)
	}
}
