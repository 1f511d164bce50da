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
	"github.com/pterm/pterm"

	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/driver"
)

type lintCmd struct {
	In   string `name:"in" required:"" type:"existingdir" help:"Pack source directory."`
	JSON bool   `name:"json" help:"Emit machine-readable output."`

	runtimeFlags
}

func (c *lintCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}
	diags := diagnostics.NewCollector()
	flows, err := driver.Lint(rt, c.In, diags)
	if err != nil {
		if d, ok := err.(diagnostics.Diagnostic); ok {
			diags.Add(d)
			return emit(c.JSON, diags, nil, nil)
		}
		return err
	}
	payload := make([]map[string]string, 0, len(flows))
	for _, f := range flows {
		payload = append(payload, map[string]string{
			"id":     f.Bundle.ID,
			"kind":   f.Bundle.Kind,
			"entry":  f.Bundle.Entry,
			"blake3": f.Bundle.HashBLAKE3,
		})
	}
	return emit(c.JSON, diags, payload, func() {
		for _, f := range flows {
			pterm.Success.Println("flow " + f.Bundle.ID + " compiles (entry " + f.Bundle.Entry + ")")
		}
	})
}

type updateCmd struct {
	In   string `name:"in" required:"" type:"existingdir" help:"Pack source directory."`
	JSON bool   `name:"json" help:"Emit machine-readable output."`

	runtimeFlags
}

func (c *updateCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}
	diags := diagnostics.NewCollector()
	if err := driver.Update(rt, c.In, diags); err != nil {
		if d, ok := err.(diagnostics.Diagnostic); ok {
			diags.Add(d)
			return emit(c.JSON, diags, nil, nil)
		}
		return err
	}
	return emit(c.JSON, diags, nil, func() {
		pterm.Success.Println("pack.yaml and resolve sidecars are in sync")
	})
}

type resolveCmd struct {
	In   string `name:"in" required:"" type:"existingdir" help:"Pack source directory."`
	Lock string `name:"lock" help:"Lockfile output path (defaults to <in>/pack.lock.json)."`
	JSON bool   `name:"json" help:"Emit machine-readable output."`

	runtimeFlags
}

func (c *resolveCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}
	diags := diagnostics.NewCollector()
	lock, err := driver.WriteLock(rt, c.In, c.Lock, diags)
	if err != nil {
		if d, ok := err.(diagnostics.Diagnostic); ok {
			diags.Add(d)
			return emit(c.JSON, diags, nil, nil)
		}
		return err
	}
	return emit(c.JSON, diags, lock, func() {
		if lock == nil {
			return
		}
		pterm.Success.Printf("locked %d component(s)\n", len(lock.Components))
		for _, comp := range lock.Components {
			printKV(comp.Name, comp.Ref+" "+comp.Digest)
		}
	})
}
