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
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/canon"
	"github.com/greenticai/packc/internal/diagnostics"
	"github.com/greenticai/packc/internal/extension"
	"github.com/greenticai/packc/internal/pack"
	"github.com/greenticai/packc/internal/runtime"
	"github.com/greenticai/packc/internal/sign"
)

// providersFile is the conventional provider declarations document inside
// a pack source directory.
const providersFile = "providers.json"

type providersCmd struct {
	List     providersListCmd     `cmd:"" help:"List declared providers."`
	Info     providersInfoCmd     `cmd:"" help:"Print one provider's full declaration."`
	Validate providersValidateCmd `cmd:"" help:"Validate provider declarations."`
}

// providerSource locates provider declarations in either a source dir or a
// built archive, returning the declarations and a local-ref existence
// check appropriate to what was opened.
type providerSource struct {
	Pack string `name:"pack" help:"Built pack archive."`
	In   string `name:"in" type:"existingdir" help:"Pack source directory."`
}

func (s providerSource) load(rt *runtime.RuntimeContext) (extension.ProviderExtension, extension.LocalRefExists, error) {
	var ext extension.ProviderExtension
	switch {
	case s.Pack != "":
		load, err := pack.OpenPack(rt.Fs, s.Pack, pack.OpenOptions{Policy: sign.PolicyDevOk})
		if err != nil {
			return ext, nil, err
		}
		payload, ok := load.Manifest.Extensions[extension.ProviderExtensionKey]
		if ok {
			raw, err := canon.Encode(payload.Raw)
			if err != nil {
				return ext, nil, err
			}
			if err := canon.Decode(raw, &ext); err != nil {
				return ext, nil, err
			}
		}
		exists := func(ref string) bool {
			_, ok := load.Files[ref]
			return ok
		}
		return ext, exists, nil
	case s.In != "":
		path := filepath.Join(s.In, providersFile)
		raw, err := afero.ReadFile(rt.Fs, path)
		if err != nil {
			return ext, nil, errors.Wrapf(err, "read %s", path)
		}
		if err := json.Unmarshal(raw, &ext); err != nil {
			return ext, nil, errors.Wrapf(err, "parse %s", path)
		}
		exists := func(ref string) bool {
			ok, _ := afero.Exists(rt.Fs, filepath.Join(s.In, ref))
			return ok
		}
		return ext, exists, nil
	}
	return ext, nil, errors.New("one of --pack or --in is required")
}

type providersListCmd struct {
	providerSource
	JSON bool `name:"json" help:"Emit machine-readable output."`

	runtimeFlags
}

func (c *providersListCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}
	ext, _, err := c.load(rt)
	if err != nil {
		return err
	}
	sorted := extension.SortedProviders(ext)
	return emit(c.JSON, diagnostics.NewCollector(), sorted, func() {
		if len(sorted) == 0 {
			pterm.Info.Println("no providers declared")
			return
		}
		for _, p := range sorted {
			printKV(p.ProviderType, p.Runtime.ComponentRef)
		}
	})
}

type providersInfoCmd struct {
	Type string `arg:"" required:"" help:"Provider type id."`
	providerSource
	JSON bool `name:"json" help:"Emit machine-readable output."`

	runtimeFlags
}

func (c *providersInfoCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}
	ext, _, err := c.load(rt)
	if err != nil {
		return err
	}
	for _, p := range ext.Providers {
		if p.ProviderType != c.Type {
			continue
		}
		return emit(c.JSON, diagnostics.NewCollector(), p, func() {
			printKV("provider", p.ProviderType)
			printKV("component", p.Runtime.ComponentRef)
			printKV("export", p.Runtime.Export)
			printKV("world", p.Runtime.World)
			printKV("config schema", p.ConfigSchemaRef)
			if p.StateSchemaRef != "" {
				printKV("state schema", p.StateSchemaRef)
			}
			if p.DocsRef != "" {
				printKV("docs", p.DocsRef)
			}
			for _, cap := range p.Capabilities {
				printKV("capability", cap)
			}
			for _, op := range p.Ops {
				printKV("op", op)
			}
		})
	}
	return errors.Errorf("no provider %q declared", c.Type)
}

type providersValidateCmd struct {
	providerSource
	JSON bool `name:"json" help:"Emit machine-readable output."`

	runtimeFlags
}

func (c *providersValidateCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}
	ext, exists, err := c.load(rt)
	if err != nil {
		return err
	}
	loc := diagnostics.Location{Path: c.Pack + c.In}
	diags := extension.ValidateProviders(ext, exists, rt.Strict, loc)
	return emit(c.JSON, diags, nil, func() {
		if !diags.HasFatal() && len(diags.Warnings()) == 0 {
			pterm.Success.Printf("%d provider(s) validate\n", len(ext.Providers))
		}
	})
}
