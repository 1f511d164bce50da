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
	"github.com/greenticai/packc/internal/diagnostics"
)

type configCmd struct {
	JSON bool `name:"json" help:"Emit machine-readable output."`

	runtimeFlags
}

func (c *configCmd) Run() error {
	rt, err := c.context()
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"cacheDir":         rt.CacheDir,
		"offline":          rt.Offline,
		"useDescribeCache": rt.UseDescribeCache,
		"allowOciTags":     rt.AllowOCITags,
		"strict":           rt.Strict,
		"tenant":           rt.Tenant.Tenant.String(),
		"environment":      rt.Tenant.Env.String(),
	}
	return emit(c.JSON, diagnostics.NewCollector(), payload, func() {
		printKV("cache dir", rt.CacheDir)
		printKV("offline", rt.Offline)
		printKV("describe cache", rt.UseDescribeCache)
		printKV("allow oci tags", rt.AllowOCITags)
		printKV("strict", rt.Strict)
		printKV("tenant", rt.Tenant.Tenant.String())
		printKV("environment", rt.Tenant.Env.String())
	})
}
