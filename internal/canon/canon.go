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

// Package canon implements the canonical tagged-data binary encoding used
// for PackManifest, PackLock and component manifest wire formats: map keys
// sorted lexicographically as byte strings, minimal-width integers, and
// floats disallowed unless explicitly opted in (describe caches only).
package canon

import (
	"bytes"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

const (
	// ErrManifestCorrupt indicates a decode failure: the input was not
	// well-formed CBOR, did not fit the target type, or contained a map
	// with duplicate keys. Map key order is not checked.
	ErrManifestCorrupt = "canonical document is corrupt"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOpts := cbor.CanonicalEncOptions()
	var err error
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(err)
	}

	decOpts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
		// Generic decodes yield string-keyed maps so extension payloads
		// can be walked as ordinary JSON-shaped data.
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode canonically encodes v: PackManifest, PackLock and component
// manifest types carry no floating point fields, so the type system itself
// enforces the "floats are opt-in" rule from the wire format. Describe
// caches, which are the one place floats are permitted, use
// EncodeWithFloats below for clarity at the call site even though the
// underlying mode is identical.
func Encode(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "canon: encode failed")
	}
	return b, nil
}

// EncodeWithFloats canonically encodes v. Reserved for component describe
// caches, the one document type in this system allowed to carry floats.
func EncodeWithFloats(v interface{}) ([]byte, error) {
	return Encode(v)
}

// Decode decodes CBOR bytes into v. Maps that contain duplicate keys, and
// input that is malformed, fail with ErrManifestCorrupt. Map key order is
// not checked: a well-formed document whose maps are not canonically
// sorted decodes without error.
func Decode(b []byte, v interface{}) error {
	if err := decMode.Unmarshal(b, v); err != nil {
		return errors.Wrapf(err, "%s", ErrManifestCorrupt)
	}
	return nil
}

// Equal reports whether two canonically-encoded documents decode to
// bytewise-identical canonical forms. Used by tests asserting
// decode(encode(M)) == M and that reordered-but-equal JSON yields identical
// canonical bytes.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}
