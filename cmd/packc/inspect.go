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

	"github.com/pkg/errors"
	"github.com/pterm/pterm"

	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/driver"
	"github.com/greenticai/packc/internal/pack"
	"github.com/greenticai/packc/internal/sign"
)

type inspectCmd struct {
	Path string `arg:"" optional:"" help:"Pack archive or source directory."`
	Pack string `name:"pack" help:"Pack archive path (alternative to the positional)."`
	In   string `name:"in" type:"existingdir" help:"Pack source directory to build ephemerally."`
	JSON bool   `name:"json" help:"Emit machine-readable output."`

	runtimeFlags
}

// target picks the archive/dir path from the three accepted spellings.
func (c *inspectCmd) target() (string, error) {
	switch {
	case c.Path != "":
		return c.Path, nil
	case c.Pack != "":
		return c.Pack, nil
	case c.In != "":
		return c.In, nil
	}
	return "", errors.New("one of PATH, --pack, or --in is required")
}

func (c *inspectCmd) Run() error {
	path, err := c.target()
	if err != nil {
		return err
	}
	rt, err := c.context()
	if err != nil {
		return err
	}
	diags := diagnostics.NewCollector()
	load, err := driver.Doctor(context.Background(), rt, path, sign.PolicyDevOk, nil, diags)
	if err != nil {
		if d, ok := err.(diagnostics.Diagnostic); ok {
			diags.Add(d)
			return emit(c.JSON, diags, nil, nil)
		}
		return err
	}
	if load == nil {
		return emit(c.JSON, diags, nil, nil)
	}
	for _, w := range load.Report.Warnings {
		diags.Add(w)
	}

	payload := map[string]interface{}{
		"packId":      load.Manifest.PackID,
		"version":     load.Manifest.Version,
		"kind":        load.Manifest.Kind,
		"publisher":   load.Manifest.Publisher,
		"components":  len(load.Manifest.Components),
		"flows":       len(load.Manifest.Flows),
		"signatureOk": load.Report.SignatureOK,
		"sbomOk":      load.Report.SBOMOK,
		"legacy":      load.Legacy,
	}
	return emit(c.JSON, diags, payload, func() { printLoad(load) })
}

func printLoad(load *pack.Load) {
	printKV("pack", load.Manifest.PackID+"@"+load.Manifest.Version)
	if load.Manifest.Kind != "" {
		printKV("kind", load.Manifest.Kind)
	}
	if load.Manifest.Publisher != "" {
		printKV("publisher", load.Manifest.Publisher)
	}
	printKV("components", len(load.Manifest.Components))
	printKV("flows", len(load.Manifest.Flows))
	printKV("signature ok", load.Report.SignatureOK)
	printKV("sbom ok", load.Report.SBOMOK)
	if load.Legacy {
		pterm.Warning.Println("manifest was decoded via the legacy fallback")
	}
}

type doctorCmd struct {
	inspectCmd
}
