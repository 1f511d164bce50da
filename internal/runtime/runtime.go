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

// Package runtime resolves the build pipeline's ambient configuration —
// cache directory, offline policy, describe-cache policy, tenant context
// and telemetry scaffolding — into one explicit RuntimeContext value built
// from a HomeDirFn and environment overrides, never package-level globals.
package runtime

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/cache"
	"github.com/greenticai/packc/internal/ident"
	"github.com/greenticai/packc/internal/logging"
)

// Environment variables the runtime honors.
const (
	EnvCacheDir       = "GREENTIC_PACK_CACHE_DIR"
	EnvOffline        = "GREENTIC_DIST_OFFLINE"
	EnvUseDescribe    = "GREENTIC_PACK_USE_DESCRIBE_CACHE"
	defaultCacheDir   = ".cache/packc"
)

// HomeDirFn indicates the location of a user's home directory. A function
// value rather than a direct os.UserHomeDir call so tests can override it.
type HomeDirFn func() (string, error)

// TelemetryConfig is threaded through the runtime but never wired to an
// actual exporter: telemetry pipelines are an external collaborator,
// reachable only through this named interface.
type TelemetryConfig struct {
	Enabled bool
	Scope   string
}

// RuntimeContext is the resolved, explicit configuration a build/resolve/
// plan invocation threads through every step. Nothing in the core reads
// environment variables or the clock directly except through this value.
type RuntimeContext struct {
	Fs afero.Fs

	// CacheDir is the resolved artifact cache root.
	CacheDir string
	// Offline forces strict digest requirements on remote component
	// sources.
	Offline bool
	// UseDescribeCache enables describe-cache sidecar lookup during
	// component manifest discovery.
	UseDescribeCache bool
	// AllowOCITags permits tag-based (non-digest-pinned) OCI references.
	AllowOCITags bool
	// Strict enforces sidecar-node-mapping completeness and other
	// warn-vs-fatal escalations across the pipeline.
	Strict bool
	// RequireComponentManifests upgrades the PACK_COMPONENT_NOT_EXPLICIT
	// warning to fatal.
	RequireComponentManifests bool

	// Tenant scopes deployment plan inference.
	Tenant ident.TenantCtx
	// BuiltAtUTC pins the provenance timestamp for reproducible builds;
	// nothing else in the pipeline reads the system clock.
	BuiltAtUTC string

	Telemetry TelemetryConfig
	Log       logr.Logger
}

// Option configures a RuntimeContext built by New.
type Option func(*RuntimeContext)

// WithFs overrides the virtual filesystem (defaults to the OS filesystem).
func WithFs(fs afero.Fs) Option { return func(r *RuntimeContext) { r.Fs = fs } }

// WithStrict sets strict mode.
func WithStrict(strict bool) Option { return func(r *RuntimeContext) { r.Strict = strict } }

// WithAllowOCITags sets the allow-tags OCI policy.
func WithAllowOCITags(allow bool) Option { return func(r *RuntimeContext) { r.AllowOCITags = allow } }

// WithRequireComponentManifests upgrades the missing-manifest warning to
// fatal.
func WithRequireComponentManifests(require bool) Option {
	return func(r *RuntimeContext) { r.RequireComponentManifests = require }
}

// WithTenant sets the tenant/environment context used by plan inference.
func WithTenant(t ident.TenantCtx) Option { return func(r *RuntimeContext) { r.Tenant = t } }

// WithBuiltAtUTC pins the provenance timestamp for reproducible builds.
func WithBuiltAtUTC(ts string) Option { return func(r *RuntimeContext) { r.BuiltAtUTC = ts } }

// WithCacheDir overrides the resolved cache directory, bypassing
// EnvCacheDir/HomeDirFn resolution entirely.
func WithCacheDir(dir string) Option { return func(r *RuntimeContext) { r.CacheDir = dir } }

// New resolves a RuntimeContext from the process environment and the given
// options, in that precedence order: explicit options win over environment
// variables, which win over defaults.
func New(home HomeDirFn, opts ...Option) (*RuntimeContext, error) {
	if home == nil {
		home = os.UserHomeDir
	}

	r := &RuntimeContext{
		Fs:               afero.NewOsFs(),
		Offline:          os.Getenv(EnvOffline) == "1",
		UseDescribeCache: os.Getenv(EnvUseDescribe) == "1",
		Log:              logging.NewLogger(logging.VerbosityFromEnv()),
	}

	if dir := os.Getenv(EnvCacheDir); dir != "" {
		r.CacheDir = dir
	} else if h, err := home(); err == nil {
		r.CacheDir = filepath.Join(h, defaultCacheDir)
	} else {
		r.CacheDir = defaultCacheDir
	}

	for _, opt := range opts {
		opt(r)
	}
	r.CacheDir = resolveTilde(r.CacheDir, home)
	return r, nil
}

// resolveTilde expands a leading "~/" against the home dir function.
func resolveTilde(path string, home HomeDirFn) string {
	const tilde = "~/"
	if !strings.HasPrefix(path, tilde) {
		return path
	}
	h, err := home()
	if err != nil {
		return path
	}
	return filepath.Join(h, strings.TrimPrefix(path, tilde))
}

// Cache constructs the content-addressed artifact cache rooted at this
// context's resolved CacheDir.
func (r *RuntimeContext) Cache() *cache.Cache {
	return cache.New(r.Fs, r.CacheDir)
}
