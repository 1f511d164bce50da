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

// Package oci parses and validates OCI component references. It never
// performs registry I/O: fetching and pushing are the RegistryClient
// capability's job, not this package's.
package oci

import (
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/pkg/errors"
)

// Ref is a parsed OCI component reference split into its repository and its
// pin, which is either a tag or a digest.
type Ref struct {
	Repository string
	Tag        string
	Digest     string
}

// Pinned reports whether the reference names a digest rather than a tag.
func (r Ref) Pinned() bool {
	return r.Digest != ""
}

// ParseRef parses reference using the OCI distribution grammar
// (go-containerregistry's name package), accepting both tag- and
// digest-qualified forms. It does not enforce allow-tags policy; callers
// needing that enforce it against the returned Ref.
func ParseRef(reference string) (Ref, error) {
	if idx := strings.LastIndex(reference, "@"); idx >= 0 {
		d, err := name.NewDigest(reference, name.WeakValidation)
		if err != nil {
			return Ref{}, errors.Wrapf(err, "parse OCI digest reference %q", reference)
		}
		return Ref{Repository: d.Repository.Name(), Digest: d.DigestStr()}, nil
	}
	t, err := name.NewTag(reference, name.WeakValidation)
	if err != nil {
		return Ref{}, errors.Wrapf(err, "parse OCI tag reference %q", reference)
	}
	return Ref{Repository: t.Repository.Name(), Tag: t.TagStr()}, nil
}

// RemoveDomainAndOrg strips the registry domain (and, if present, the
// organization segment) from a repository path, leaving just the artifact
// name — used when deriving a component's on-disk alias from its OCI
// reference.
func RemoveDomainAndOrg(src string) string {
	parts := strings.SplitN(src, "/", 3)
	switch len(parts) {
	case 3:
		return parts[2]
	case 2:
		return parts[1]
	default:
		return src
	}
}

// ArtifactName derives a filesystem-safe artifact name from a reference,
// replacing any ":" tag separator with "-" so the result is safe to use as
// a cache directory or archive entry basename.
func ArtifactName(reference string) string {
	parts := strings.Split(reference, "/")
	last := parts[len(parts)-1]
	return strings.ReplaceAll(last, ":", "-")
}
