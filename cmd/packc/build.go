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
	"context"

	"github.com/pterm/pterm"

	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/driver"
	"github.com/greenticai/packc/internal/sign"
)

type buildCmd struct {
	In        string `name:"in" required:"" type:"existingdir" help:"Pack source directory."`
	Out       string `name:"out" help:"Archive output path (defaults to <in>/<pack-id>.gtpack)."`
	GtpackOut string `name:"gtpack-out" help:"Additional alias for --out kept for pipeline compatibility."`
	Lock      string `name:"lock" help:"Lockfile output path (defaults to <in>/pack.lock.json)."`
	Sbom      bool   `name:"sbom" help:"Generate sbom.cdx.json into the archive."`
	Bundle    string `name:"bundle" enum:"cache,none" default:"cache" help:"Component bundling mode."`
	DryRun    bool   `name:"dry-run" help:"Run the full pipeline without writing outputs."`
	NoUpdate  bool   `name:"no-update" help:"Skip the spec/sidecar sync step."`
	FlowFiles bool   `name:"flow-files" help:"Store flows/<id>/flow.{ygtc,json} entries in the archive."`
	DevSign   bool   `name:"dev-sign" help:"Sign with the deterministic development key."`
	JSON      bool   `name:"json" help:"Emit machine-readable output."`

	runtimeFlags
}

func (c *buildCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}

	out := c.Out
	if out == "" {
		out = c.GtpackOut
	}

	mode := sign.ModeNone
	if c.DevSign {
		mode = sign.ModeDev
	}

	diags := diagnostics.NewCollector()
	outcome, err := driver.Build(context.Background(), rt, c.In, driver.BuildOptions{
		OutPath:       out,
		LockPath:      c.Lock,
		DryRun:        c.DryRun,
		NoUpdate:      c.NoUpdate,
		EmitSBOM:      c.Sbom,
		EmbedLock:     c.Bundle != "none",
		EmitFlowFiles: c.FlowFiles,
		SignMode:      mode,
	}, diags)
	if err != nil {
		if d, ok := err.(diagnostics.Diagnostic); ok {
			diags.Add(d)
			return emit(c.JSON, diags, nil, nil)
		}
		return err
	}

	var payload interface{}
	if outcome != nil && outcome.Result != nil {
		payload = map[string]interface{}{
			"outPath":        outcome.Result.OutPath,
			"manifestBlake3": outcome.Result.ManifestHashBLAKE3,
		}
	}
	return emit(c.JSON, diags, payload, func() {
		if outcome == nil || outcome.Result == nil {
			return
		}
		pterm.Success.Println("built " + outcome.Result.OutPath)
		printKV("manifest blake3", outcome.Result.ManifestHashBLAKE3)
	})
}
