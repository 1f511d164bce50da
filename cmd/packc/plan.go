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

type planCmd struct {
	Path string `arg:"" required:"" help:"Built pack archive."`
	JSON bool   `name:"json" help:"Emit machine-readable output."`

	runtimeFlags
}

func (c *planCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}
	diags := diagnostics.NewCollector()
	p, err := driver.Plan(rt, c.Path, c.Environment, diags)
	if err != nil {
		if d, ok := err.(diagnostics.Diagnostic); ok {
			diags.Add(d)
			return emit(c.JSON, diags, nil, nil)
		}
		return err
	}
	return emit(c.JSON, diags, p, func() {
		printKV("pack", p.PackID+"@"+p.PackVersion)
		printKV("tenant", p.Tenant)
		printKV("environment", p.Environment)
		for _, r := range p.Runners {
			printKV("runner "+r.Name, r.Replicas)
		}
		if p.Messaging != nil {
			for _, s := range p.Messaging.Subjects {
				printKV("subject "+s.Name, s.Purpose)
			}
		}
		for _, ch := range p.Channels {
			printKV("channel "+ch.Name, ch.Kind+" -> "+ch.FlowID)
		}
		for _, s := range p.Secrets {
			printKV("secret "+s.Key, s.Scope)
		}
		if p.Telemetry != nil && p.Telemetry.Required {
			pterm.Info.Println("telemetry wiring required")
		}
	})
}
