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

// Package diagnostics collects build/reader diagnostics so a single run can
// report every flow/component problem instead of aborting at the first
// error, per the propagation policy a pack build pipeline requires.
package diagnostics

import "fmt"

// Severity classifies a Diagnostic.
type Severity string

const (
	// SeverityWarning diagnostics never abort a run unless a --strict or
	// --require-* flag upgrades them.
	SeverityWarning Severity = "warning"
	// SeverityFatal diagnostics abort the run after the current step
	// completes.
	SeverityFatal Severity = "fatal"
)

// Error code taxonomy. These are carried as string
// constants rather than a typed exception hierarchy, matching the code's
// diagnostic aggregation model.
const (
	CodeInvalidIdentifier       = "InvalidIdentifier"
	CodeSpecInvalid             = "SpecInvalid"
	CodeKindReserved            = "KindReserved"
	CodePathEscape               = "PathEscape"
	CodeFlowParseError          = "FlowParseError"
	CodeFlowSchemaInvalid       = "FlowSchemaInvalid"
	CodeFlowCompileError        = "FlowCompileError"
	CodeSidecarMissingNodes     = "SidecarMissingNodes"
	CodeSidecarParseError       = "SidecarParseError"
	CodeOciRefInvalid           = "OciRefInvalid"
	CodeOciRefRequiresDigest    = "OciRefRequiresDigest"
	CodeDigestMismatch          = "DigestMismatch"
	CodeDigestRequiredOffline   = "DigestRequiredOffline"
	CodeLockConflict            = "LockConflict"
	CodeComponentMissing        = "ComponentMissing"
	CodeManifestMissing         = "ManifestMissing"
	CodeManifestCorrupt         = "ManifestCorrupt"
	CodeLegacyManifest          = "LegacyManifest"
	CodeSignatureInvalid        = "SignatureInvalid"
	CodeSignatureMissing        = "SignatureMissing"
	CodeWriteFailed             = "WriteFailed"
	CodeReadFailed              = "ReadFailed"
	CodeTimeout                 = "Timeout"
	CodeExtensionInvalid        = "ExtensionInvalid"
	CodeProviderDuplicate       = "ProviderDuplicate"
	CodeProviderLocalRefMissing = "ProviderLocalRefMissing"
	CodeComponentNotExplicit    = "PACK_COMPONENT_NOT_EXPLICIT"
)

// Location pinpoints a diagnostic within a source document.
type Location struct {
	Path string
	Span string
}

// String renders the location as "<path>:<span>", omitting the span when
// empty.
func (l Location) String() string {
	if l.Path == "" {
		return ""
	}
	if l.Span == "" {
		return l.Path
	}
	return fmt.Sprintf("%s:%s", l.Path, l.Span)
}

// Diagnostic is a single build or reader finding.
type Diagnostic struct {
	Code     string
	Severity Severity
	Message  string
	Location Location
}

// Error implements the error interface so a Diagnostic can be returned
// directly by functions that fail outright (e.g. KindReserved aborts spec
// loading immediately rather than being aggregated).
func (d Diagnostic) Error() string {
	if loc := d.Location.String(); loc != "" {
		return fmt.Sprintf("%s: %s (at %s)", d.Code, d.Message, loc)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// Collector aggregates diagnostics across a build or read step instead of
// aborting on the first error.
type Collector struct {
	diags []Diagnostic
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends a diagnostic.
func (c *Collector) Add(d Diagnostic) {
	c.diags = append(c.diags, d)
}

// Warn appends a warning-severity diagnostic.
func (c *Collector) Warn(code, message string, loc Location) {
	c.Add(Diagnostic{Code: code, Severity: SeverityWarning, Message: message, Location: loc})
}

// Fatal appends a fatal-severity diagnostic.
func (c *Collector) Fatal(code, message string, loc Location) {
	c.Add(Diagnostic{Code: code, Severity: SeverityFatal, Message: message, Location: loc})
}

// HasFatal reports whether any collected diagnostic is fatal.
func (c *Collector) HasFatal() bool {
	for _, d := range c.diags {
		if d.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// All returns every collected diagnostic in insertion order.
func (c *Collector) All() []Diagnostic {
	return c.diags
}

// Warnings returns only warning-severity diagnostics.
func (c *Collector) Warnings() []Diagnostic {
	var out []Diagnostic
	for _, d := range c.diags {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

// Fatals returns only fatal-severity diagnostics.
func (c *Collector) Fatals() []Diagnostic {
	var out []Diagnostic
	for _, d := range c.diags {
		if d.Severity == SeverityFatal {
			out = append(out, d)
		}
	}
	return out
}

// Report is the JSON-mode shape for aggregated diagnostics, matching the
// `{status, warnings[], errors[], payload?}` contract.
type Report struct {
	Status   string       `json:"status"`
	Warnings []Diagnostic `json:"warnings"`
	Errors   []Diagnostic `json:"errors"`
}

// ToReport summarizes the collector into the CLI's JSON-mode shape.
func (c *Collector) ToReport() Report {
	status := "ok"
	if c.HasFatal() {
		status = "error"
	} else if len(c.Warnings()) > 0 {
		status = "warning"
	}
	return Report{
		Status:   status,
		Warnings: c.Warnings(),
		Errors:   c.Fatals(),
	}
}

// ExitCode maps the collector's state to the CLI's exit code contract: any
// fatal diagnostic is 1, otherwise 0 (usage errors are handled by the CLI
// layer directly and never pass through here).
func (c *Collector) ExitCode() int {
	if c.HasFatal() {
		return 1
	}
	return 0
}
