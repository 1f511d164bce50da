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

// Package cache implements the per-user, content-addressed artifact cache:
// one subdirectory per artifact digest, holding the cached component bytecode
// and its optionally-discovered manifest. Entries are immutable once
// written and access is serialized per digest so concurrent builders
// resolving the same artifact do not race.
package cache

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// BytecodeFile is the cached component bytecode's fixed basename.
const BytecodeFile = "component.wasm"

// ManifestFileJSON and ManifestFileCBOR are the cached manifest's fixed
// basenames. Load tries ManifestFileCBOR first, then ManifestFileJSON.
const (
	ManifestFileJSON = "component.manifest.json"
	ManifestFileCBOR = "component.manifest.cbor"
)

// Cache is a content-addressed, per-user artifact cache rooted at the directory
// passed to New.
type Cache struct {
	fs   afero.Fs
	root string

	mu      sync.Mutex
	digests map[string]*sync.Mutex
}

// New constructs a Cache rooted at root. root is used as given; callers
// resolve "~" and environment overrides (see internal/runtime) before
// calling New.
func New(fs afero.Fs, root string) *Cache {
	return &Cache{fs: fs, root: root, digests: map[string]*sync.Mutex{}}
}

// entryDir returns the cache subdirectory for a "sha256:<hex>" digest,
// named by the bare hex payload.
func (c *Cache) entryDir(digest string) (string, error) {
	hex := strings.TrimPrefix(digest, "sha256:")
	if hex == digest || len(hex) != 64 {
		return "", errors.Errorf("cache: %q is not a well-formed sha256 digest", digest)
	}
	return filepath.Join(c.root, hex), nil
}

// lockFor returns the in-process mutex guarding operations against digest.
// Combined with the on-disk ".lock" sentinel in withLock, this keyes access
// both within this process and across concurrent invocations sharing the
// cache directory.
func (c *Cache) lockFor(digest string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.digests[digest]
	if !ok {
		m = &sync.Mutex{}
		c.digests[digest] = m
	}
	return m
}

// withLock serializes fn against concurrent callers, in this process via an
// in-memory mutex and across processes via an exclusive-create lock file
// inside the entry directory.
func (c *Cache) withLock(digest, dir string, fn func() error) error {
	local := c.lockFor(digest)
	local.Lock()
	defer local.Unlock()

	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create cache dir %s", dir)
	}
	lockPath := filepath.Join(dir, ".lock")
	f, err := c.fs.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		defer func() {
			_ = f.Close()
			_ = c.fs.Remove(lockPath)
		}()
	}
	// An existing lock file from a crashed process is not fatal: the entry
	// is write-once, so a concurrent writer either succeeds identically or
	// the entry already exists and Store below is a no-op.
	return fn()
}

// BytecodePath returns the on-disk path of digest's cached bytecode and
// whether the entry exists, for callers that stream the artifact rather
// than buffering it.
func (c *Cache) BytecodePath(digest string) (string, bool, error) {
	dir, err := c.entryDir(digest)
	if err != nil {
		return "", false, err
	}
	path := filepath.Join(dir, BytecodeFile)
	exists, err := afero.Exists(c.fs, path)
	return path, exists, err
}

// Has reports whether an entry for digest is already cached.
func (c *Cache) Has(digest string) (bool, error) {
	dir, err := c.entryDir(digest)
	if err != nil {
		return false, err
	}
	return afero.Exists(c.fs, filepath.Join(dir, BytecodeFile))
}

// Store writes the component bytecode and, when non-nil, its discovered
// manifest into the cache entry for digest. Entries are immutable once
// written: a second Store for the same digest is a no-op rather than an
// overwrite.
func (c *Cache) Store(digest string, wasm []byte, manifest []byte, manifestFile string) error {
	dir, err := c.entryDir(digest)
	if err != nil {
		return err
	}
	return c.withLock(digest, dir, func() error {
		exists, err := afero.Exists(c.fs, filepath.Join(dir, BytecodeFile))
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if err := afero.WriteFile(c.fs, filepath.Join(dir, BytecodeFile), wasm, 0o644); err != nil {
			return errors.Wrap(err, "write cached component bytecode")
		}
		if manifest != nil {
			name := manifestFile
			if name == "" {
				name = ManifestFileJSON
			}
			if err := afero.WriteFile(c.fs, filepath.Join(dir, name), manifest, 0o644); err != nil {
				return errors.Wrap(err, "write cached component manifest")
			}
		}
		return nil
	})
}

// Load reads a cached component's bytecode and, if present, its manifest.
// ok is false when no entry exists for digest.
func (c *Cache) Load(digest string) (wasm []byte, manifest []byte, manifestFile string, ok bool, err error) {
	dir, derr := c.entryDir(digest)
	if derr != nil {
		return nil, nil, "", false, derr
	}
	wasmPath := filepath.Join(dir, BytecodeFile)
	exists, err := afero.Exists(c.fs, wasmPath)
	if err != nil || !exists {
		return nil, nil, "", false, err
	}
	wasm, err = afero.ReadFile(c.fs, wasmPath)
	if err != nil {
		return nil, nil, "", false, errors.Wrap(err, "read cached component bytecode")
	}
	for _, name := range []string{ManifestFileCBOR, ManifestFileJSON} {
		p := filepath.Join(dir, name)
		if exists, _ := afero.Exists(c.fs, p); exists {
			manifest, err = afero.ReadFile(c.fs, p)
			if err != nil {
				return nil, nil, "", false, errors.Wrapf(err, "read cached manifest %s", p)
			}
			return wasm, manifest, name, true, nil
		}
	}
	return wasm, nil, "", true, nil
}
