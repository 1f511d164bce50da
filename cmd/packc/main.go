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

// packc is the pack toolchain CLI: it compiles a pack source directory
// into a signed, content-addressed archive, resolves and locks component
// references, and inspects, verifies and plans built packs.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pterm/pterm"

	"github.com/greenticai/packc/internal/version"
)

type versionFlag bool

// BeforeApply prints the client version (and, when the release channel is
// reachable, any newer published version) and exits.
func (v versionFlag) BeforeApply(ctx *kong.Context) error { //nolint:unparam
	fmt.Fprintln(ctx.Stdout, "Client Version: "+version.GetVersion())

	qctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if local, remote, ok := version.NewInformer().CanUpgrade(qctx); ok {
		fmt.Fprintf(ctx.Stdout, "A newer version is available: %s (current %s)\n", remote, local)
	}

	ctx.Exit(0)
	return nil
}

type cli struct {
	Version versionFlag `short:"v" name:"version" help:"Print version and exit."`

	Build     buildCmd     `cmd:"" help:"Build a pack archive from a source directory."`
	Lint      lintCmd      `cmd:"" help:"Compile each flow and report status."`
	Update    updateCmd    `cmd:"" help:"Sync pack.yaml and resolve sidecars from the pack directory."`
	Resolve   resolveCmd   `cmd:"" help:"Resolve components and emit pack.lock.json."`
	Inspect   inspectCmd   `cmd:"" help:"Open a pack archive (or build ephemerally) and print its report."`
	Doctor    doctorCmd    `cmd:"" help:"Alias for inspect."`
	Sign      signCmd      `cmd:"" help:"Sign a built pack archive with an ed25519 key."`
	Verify    verifyCmd    `cmd:"" help:"Verify a built pack archive against a public key."`
	Plan      planCmd      `cmd:"" help:"Derive a deployment plan from a built pack archive."`
	Providers providersCmd `cmd:"" help:"List, show, and validate provider declarations."`
	Config    configCmd    `cmd:"" help:"Print the resolved runtime configuration."`

	Quiet bool `short:"q" help:"Suppress all human-readable output."`
}

// AfterApply configures global output settings before running commands.
func (c *cli) AfterApply(ctx *kong.Context) error { //nolint:unparam
	if c.Quiet {
		pterm.DisableOutput()
	}
	pterm.DisableStyling()
	return nil
}

func main() {
	c := cli{}
	parser, err := kong.New(&c,
		kong.Name("packc"),
		kong.Description("Pack toolchain for the workload-distribution platform."),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := ctx.Run(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}
