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

// Package mcp composes a pack's declared MCP tool/resource bindings into
// synthetic component pins: each composition surfaces a set of component
// operations as one logical MCP component reference embedding the adapter.
package mcp

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/greenticai/packc/internal/flow"
	"github.com/greenticai/packc/internal/ident"
	"github.com/greenticai/packc/internal/specmodel"
)

// AdapterComponentID is the component every MCP composition routes through.
const AdapterComponentID = "ai.greentic.mcp-adapter"

// Composition is one resolved MCP composition: the synthetic pin plus the
// adapter binding and the operations it exposes.
type Composition struct {
	Name       string           `json:"name"`
	Pin        flow.ComponentPin `json:"pin"`
	Adapter    string           `json:"adapter"`
	Component  string           `json:"component"`
	Operations []string         `json:"operations"`
}

// Compose validates and resolves a spec's MCP composition declarations.
// Composition names must be unique and each must bind a well-formed
// component id; the synthetic pin id is "<component>.mcp.<name>".
func Compose(decls []specmodel.McpComposition) ([]Composition, error) {
	seen := map[string]bool{}
	out := make([]Composition, 0, len(decls))
	for _, d := range decls {
		if d.Name == "" {
			return nil, errors.New("mcp composition requires a name")
		}
		if seen[d.Name] {
			return nil, errors.Errorf("duplicate mcp composition %q", d.Name)
		}
		seen[d.Name] = true
		if _, err := ident.NewComponentId(d.Component); err != nil {
			return nil, errors.Wrapf(err, "mcp composition %q", d.Name)
		}
		ops := append([]string(nil), d.Operations...)
		sort.Strings(ops)
		out = append(out, Composition{
			Name:       d.Name,
			Pin:        flow.ComponentPin{Name: d.Component + ".mcp." + d.Name, VersionReq: "*"},
			Adapter:    AdapterComponentID,
			Component:  d.Component,
			Operations: ops,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
