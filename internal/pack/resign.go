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

package pack

import (
	"archive/zip"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/greenticai/packc/internal/canon"
	"github.com/greenticai/packc/internal/sign"
)

// SignArchive signs an existing archive in place: the unsigned manifest is
// re-encoded and signed, the signature is appended to the manifest's
// signatures block and written as a signatures/<key-id>.sig sidecar, and
// the archive is rewritten deterministically via an atomic rename.
func SignArchive(fs afero.Fs, path string, signer sign.Signer) error {
	load, err := OpenPack(fs, path, OpenOptions{Policy: sign.PolicyDevOk})
	if err != nil {
		return err
	}
	if load.Legacy {
		return errors.New("refusing to re-sign a legacy archive as v1")
	}

	m := load.Manifest
	unsigned, err := canon.Encode(m.Unsigned())
	if err != nil {
		return errors.Wrap(err, "encode unsigned manifest")
	}
	sig, keyID, err := signer.Sign(unsigned)
	if err != nil {
		return errors.Wrap(err, "sign manifest")
	}

	kept := m.Signatures[:0]
	for _, s := range m.Signatures {
		if s.KeyID != keyID {
			kept = append(kept, s)
		}
	}
	m.Signatures = append(kept, Signature{KeyID: keyID, Algorithm: "ed25519", Value: sig})

	manifestBytes, err := canon.Encode(m)
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}

	entries := load.Files
	entries[ManifestFileName] = manifestBytes
	entries["signatures/"+keyID+".sig"] = sig

	return rewriteArchive(fs, path, entries)
}

// rewriteArchive writes the entry map back out with the same determinism
// rules as a fresh build.
func rewriteArchive(fs afero.Fs, path string, entries map[string][]byte) error {
	tmpPath := path + ".tmp"
	f, err := fs.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmpPath)
	}
	cleanup := func() {
		_ = f.Close()
		_ = fs.Remove(tmpPath)
	}

	zw := zip.NewWriter(f)
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p, Method: zip.Store, Modified: epoch})
		if err != nil {
			cleanup()
			return errors.Wrapf(err, "create archive entry %s", p)
		}
		if _, err := w.Write(entries[p]); err != nil {
			cleanup()
			return errors.Wrapf(err, "write archive entry %s", p)
		}
	}
	if err := zw.Close(); err != nil {
		cleanup()
		return errors.Wrap(err, "finalize archive")
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return errors.Wrap(err, "sync archive")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return errors.Wrap(err, "close archive")
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		cleanup()
		return errors.Wrapf(err, "rename %s over %s", tmpPath, path)
	}
	return nil
}
