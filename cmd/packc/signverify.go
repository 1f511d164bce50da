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

	"github.com/greenticai/packc/internal/pack"
	"github.com/greenticai/packc/internal/sign"
)

type signCmd struct {
	Pack  string `name:"pack" required:"" help:"Pack archive to sign."`
	Key   string `name:"key" required:"" type:"existingfile" help:"Ed25519 private key (raw or hex seed)."`
	KeyID string `name:"key-id" default:"dev" help:"Key id recorded with the signature."`

	runtimeFlags
}

func (c *signCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}
	priv, err := sign.LoadPrivateKey(rt.Fs, c.Key)
	if err != nil {
		return err
	}
	if err := pack.SignArchive(rt.Fs, c.Pack, sign.StaticSigner{KeyID: c.KeyID, PrivateKey: priv}); err != nil {
		return err
	}
	pterm.Success.Println("signed " + c.Pack + " as key " + c.KeyID)
	return nil
}

type verifyCmd struct {
	Pack  string `name:"pack" required:"" help:"Pack archive to verify."`
	Key   string `name:"key" required:"" type:"existingfile" help:"Ed25519 public key (raw or hex)."`
	KeyID string `name:"key-id" default:"dev" help:"Key id the signature is expected under."`

	runtimeFlags
}

func (c *verifyCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}
	pub, err := sign.LoadPublicKey(rt.Fs, c.Key)
	if err != nil {
		return err
	}
	load, err := pack.OpenPack(rt.Fs, c.Pack, pack.OpenOptions{
		Policy: sign.PolicyRequireEd25519,
		Keys:   sign.KeySet{c.KeyID: pub},
	})
	if err != nil {
		return err
	}
	for _, w := range load.Report.Warnings {
		pterm.Warning.Println(w.Error())
	}
	pterm.Success.Println("signature verifies for " + load.Manifest.PackID + "@" + load.Manifest.Version)
	return nil
}
