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

package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"

	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/ident"
	"github.com/greenticai/packc/internal/runtime"
)

// runtimeFlags are the policy flags shared by every command that builds a
// RuntimeContext.
type runtimeFlags struct {
	Strict       bool   `help:"Escalate warnings that have a strict counterpart to fatal."`
	AllowOciTags bool   `name:"allow-oci-tags" help:"Permit tag-based (non-digest-pinned) OCI references."`
	Tenant       string `help:"Tenant id for plan inference." default:"default"`
	Environment  string `help:"Environment label for plan inference." default:"default"`
	BuiltAt      string `name:"built-at" help:"RFC 3339 build timestamp for reproducible provenance."`
}

// context resolves the RuntimeContext for a command invocation.
func (f runtimeFlags) context() (*runtime.RuntimeContext, error) {
	tenant, err := ident.NewTenantId(f.Tenant)
	if err != nil {
		return nil, err
	}
	env, err := ident.NewEnvId(f.Environment)
	if err != nil {
		return nil, err
	}
	return runtime.New(nil,
		runtime.WithStrict(f.Strict),
		runtime.WithAllowOCITags(f.AllowOciTags),
		runtime.WithTenant(ident.NewTenantCtx(env, tenant)),
		runtime.WithBuiltAtUTC(f.BuiltAt),
	)
}

// emitDiagnostics prints collected diagnostics in human mode and returns an
// error when any fatal diagnostic was recorded, mapping to exit code 1.
func emitDiagnostics(diags *diagnostics.Collector) error {
	for _, d := range diags.Warnings() {
		pterm.Warning.Println(d.Error())
	}
	for _, d := range diags.Fatals() {
		pterm.Error.Println(d.Error())
	}
	if diags.HasFatal() {
		return errors.New("validation failed")
	}
	return nil
}

// emitJSON writes the diagnostics report (plus an optional payload) as the
// CLI's JSON contract and returns an error when status is error.
func emitJSON(diags *diagnostics.Collector, payload interface{}) error {
	report := diags.ToReport()
	doc := struct {
		Status   string                   `json:"status"`
		Warnings []diagnostics.Diagnostic `json:"warnings"`
		Errors   []diagnostics.Diagnostic `json:"errors"`
		Payload  interface{}              `json:"payload,omitempty"`
	}{
		Status:   report.Status,
		Warnings: report.Warnings,
		Errors:   report.Errors,
		Payload:  payload,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if diags.HasFatal() {
		return errors.New("validation failed")
	}
	return nil
}

// emit routes between human and JSON mode.
func emit(jsonMode bool, diags *diagnostics.Collector, payload interface{}, human func()) error {
	if jsonMode {
		return emitJSON(diags, payload)
	}
	if human != nil {
		human()
	}
	return emitDiagnostics(diags)
}

// printKV prints an aligned key/value line.
func printKV(key string, value interface{}) {
	pterm.Printf("%-24s %v\n", key+":", value)
}
