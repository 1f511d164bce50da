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

// Package plan infers a provider-agnostic DeploymentPlan from a pack's
// metadata, compiled flows, and component manifests.
package plan

import (
	"sort"

	"github.com/greenticai/packc/internal/component"
	"github.com/greenticai/packc/internal/ident"
)

// RunnerPlan is one synthetic runner the pack needs deployed.
type RunnerPlan struct {
	Name         string   `cbor:"name" json:"name"`
	Replicas     int      `cbor:"replicas" json:"replicas"`
	FlowIDs      []string `cbor:"flows" json:"flows"`
}

// MessagingSubjectPlan is one messaging subject derived from the pack's
// connector annotations.
type MessagingSubjectPlan struct {
	Name     string `cbor:"name" json:"name"`
	Purpose  string `cbor:"purpose" json:"purpose"`
	Durable  bool   `cbor:"durable" json:"durable"`
}

// MessagingPlan is the messaging configuration a pack requires, present
// only if at least one subject was derived.
type MessagingPlan struct {
	LogicalCluster string                  `cbor:"logicalCluster" json:"logicalCluster"`
	Subjects       []MessagingSubjectPlan  `cbor:"subjects" json:"subjects"`
}

// ChannelPlan is one inbound/outbound channel derived from the pack's
// connector annotations.
type ChannelPlan struct {
	Name   string                 `cbor:"name" json:"name"`
	FlowID string                 `cbor:"flowId" json:"flowId"`
	Kind   string                 `cbor:"kind" json:"kind"`
	Config map[string]interface{} `cbor:"config,omitempty" json:"config,omitempty"`
}

// SecretPlan is one secret a pack's components collectively require.
type SecretPlan struct {
	Key      string `cbor:"key" json:"key"`
	Required bool   `cbor:"required" json:"required"`
	Scope    string `cbor:"scope" json:"scope"`
}

// TelemetryPlan records whether a pack requires telemetry wiring.
type TelemetryPlan struct {
	Required          bool   `cbor:"required" json:"required"`
	SuggestedEndpoint string `cbor:"suggestedEndpoint,omitempty" json:"suggestedEndpoint,omitempty"`
}

// DeploymentPlan is the inferred, provider-agnostic deployment contract
// for a built pack.
type DeploymentPlan struct {
	PackID      string           `cbor:"packId" json:"packId"`
	PackVersion string           `cbor:"packVersion" json:"packVersion"`
	Tenant      string           `cbor:"tenant" json:"tenant"`
	Environment string           `cbor:"environment" json:"environment"`
	Runners     []RunnerPlan     `cbor:"runners" json:"runners"`
	Messaging   *MessagingPlan   `cbor:"messaging,omitempty" json:"messaging,omitempty"`
	Channels    []ChannelPlan    `cbor:"channels,omitempty" json:"channels,omitempty"`
	Secrets     []SecretPlan     `cbor:"secrets,omitempty" json:"secrets,omitempty"`
	OAuth       []string         `cbor:"oauth,omitempty" json:"oauth,omitempty"`
	Telemetry   *TelemetryPlan   `cbor:"telemetry,omitempty" json:"telemetry,omitempty"`
}

// FlowSummary is the minimal flow metadata plan inference needs.
type FlowSummary struct {
	ID string
}

// Infer builds a DeploymentPlan from pack metadata, its compiled flows,
// the raw `connectors` annotation value (if any, as decoded
// map[string]interface{}/[]interface{}/scalar JSON-shaped data), the
// pack's component manifests keyed by component id, and the requesting
// tenant context and environment label.
func Infer(packID, packVersion string, flows []FlowSummary, connectors interface{}, components map[string]component.Manifest, tenant ident.TenantCtx, environment string) DeploymentPlan {
	flowIDs := make([]string, 0, len(flows))
	for _, f := range flows {
		flowIDs = append(flowIDs, f.ID)
	}

	runners := []RunnerPlan{{
		Name:     packID + "-runner",
		Replicas: 1,
		FlowIDs:  flowIDs,
	}}

	p := DeploymentPlan{
		PackID:      packID,
		PackVersion: packVersion,
		Tenant:      tenant.Tenant.String(),
		Environment: environment,
		Runners:     runners,
		Messaging:   inferMessaging(connectors),
		Channels:    inferChannels(connectors),
		Secrets:     inferSecrets(components),
		OAuth:       []string{},
		Telemetry:   inferTelemetry(components),
	}
	return p
}

func inferMessaging(connectors interface{}) *MessagingPlan {
	root, ok := connectors.(map[string]interface{})
	if !ok {
		return nil
	}
	messagingEntry, ok := root["messaging"]
	if !ok {
		return nil
	}
	subjects := extractSubjects(messagingEntry)
	if len(subjects) == 0 {
		return nil
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return &MessagingPlan{LogicalCluster: "default", Subjects: subjects}
}

func extractSubjects(value interface{}) []MessagingSubjectPlan {
	entries, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	var subjects []MessagingSubjectPlan
	for key, entry := range entries {
		entryMap, isMap := entry.(map[string]interface{})
		if !isMap {
			continue
		}
		if _, hasFlow := entryMap["flow"]; hasFlow {
			subjects = append(subjects, MessagingSubjectPlan{Name: key, Purpose: "messaging", Durable: true})
		} else {
			subjects = append(subjects, extractSubjects(entry)...)
		}
	}
	return subjects
}

func inferChannels(connectors interface{}) []ChannelPlan {
	var out []ChannelPlan
	if connectors != nil {
		collectChannels("", connectors, &out)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func collectChannels(prefix string, value interface{}, out *[]ChannelPlan) {
	switch v := value.(type) {
	case map[string]interface{}:
		if flow, ok := v["flow"].(string); ok {
			pushChannel(prefix, flow, v, out)
			return
		}
		for key, entry := range v {
			next := key
			if prefix != "" {
				next = prefix + "." + key
			}
			collectChannels(next, entry, out)
		}
	case []interface{}:
		for _, entry := range v {
			collectChannels(prefix, entry, out)
		}
	}
}

func pushChannel(prefix, flow string, m map[string]interface{}, out *[]ChannelPlan) {
	name := prefix
	if explicit, ok := m["name"].(string); ok {
		name = explicit
	}
	config := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k == "flow" || k == "name" {
			continue
		}
		config[k] = v
	}
	*out = append(*out, ChannelPlan{Name: name, FlowID: flow, Kind: prefix, Config: config})
}

func inferSecrets(components map[string]component.Manifest) []SecretPlan {
	seen := map[string]bool{}
	var out []SecretPlan
	for _, c := range components {
		for _, key := range c.Capabilities.Host.Secrets {
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, SecretPlan{Key: key, Required: true, Scope: "tenant"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func inferTelemetry(components map[string]component.Manifest) *TelemetryPlan {
	for _, c := range components {
		if c.Capabilities.Host.Telemetry {
			return &TelemetryPlan{Required: true}
		}
	}
	return nil
}
