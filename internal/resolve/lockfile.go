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

package resolve

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/canon"
)

// LockFileName is the canonical JSON lockfile name.
const LockFileName = "pack.lock.json"

// LockFileNameCBOR is the canonical-encoded binary lockfile variant,
// accepted as an equivalent input for binary pipelines.
const LockFileNameCBOR = "pack.lock.cbor"

// PackLock is the schema_version-1 lockfile document.
type PackLock struct {
	SchemaVersion int               `json:"schemaVersion" cbor:"schemaVersion"`
	Components    []LockedComponent `json:"components" cbor:"components"`
}

// NewPackLock builds a schema_version-1 lockfile, sorted by name then ref.
func NewPackLock(components []LockedComponent) PackLock {
	sorted := make([]LockedComponent, len(components))
	copy(sorted, components)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Ref < sorted[j].Ref
	})
	return PackLock{SchemaVersion: 1, Components: sorted}
}

// Validate checks the lockfile's structural invariants.
func (l PackLock) Validate() error {
	if l.SchemaVersion != 1 {
		return errors.Errorf("pack.lock schema_version must be 1, got %d", l.SchemaVersion)
	}
	for _, c := range l.Components {
		if strings.TrimSpace(c.Name) == "" {
			return errors.New("pack.lock component name must not be empty")
		}
		if strings.TrimSpace(c.Ref) == "" {
			return errors.New("pack.lock component ref must not be empty")
		}
		if !strings.HasPrefix(c.Digest, "sha256:") || len(c.Digest) <= len("sha256:") {
			return errors.Errorf("pack.lock component digest for %s must start with sha256:<hex>", c.Name)
		}
	}
	return nil
}

// WriteJSON writes the lockfile as pretty-printed, deterministically sorted
// JSON.
func WriteJSON(fs afero.Fs, path string, lock PackLock) error {
	normalized := NewPackLock(lock.Components)
	normalized.SchemaVersion = lock.SchemaVersion
	if err := normalized.Validate(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal pack.lock.json")
	}
	if err := afero.WriteFile(fs, path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// ReadJSON reads and validates a pack.lock.json document.
func ReadJSON(fs afero.Fs, path string) (PackLock, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return PackLock{}, errors.Wrapf(err, "read %s", path)
	}
	var lock PackLock
	if err := json.Unmarshal(raw, &lock); err != nil {
		return PackLock{}, errors.Wrapf(err, "parse %s", path)
	}
	if err := lock.Validate(); err != nil {
		return PackLock{}, err
	}
	return lock, nil
}

// WriteCBOR writes the lockfile using the canonical binary encoding, for
// pipelines that prefer pack.lock.cbor over JSON.
func WriteCBOR(fs afero.Fs, path string, lock PackLock) error {
	normalized := NewPackLock(lock.Components)
	normalized.SchemaVersion = lock.SchemaVersion
	if err := normalized.Validate(); err != nil {
		return err
	}
	raw, err := canon.Encode(normalized)
	if err != nil {
		return errors.Wrap(err, "encode pack.lock.cbor")
	}
	if err := afero.WriteFile(fs, path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// ReadCBOR reads and validates a pack.lock.cbor document.
func ReadCBOR(fs afero.Fs, path string) (PackLock, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return PackLock{}, errors.Wrapf(err, "read %s", path)
	}
	var lock PackLock
	if err := canon.Decode(raw, &lock); err != nil {
		return PackLock{}, err
	}
	if err := lock.Validate(); err != nil {
		return PackLock{}, err
	}
	return lock, nil
}
