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
	"strings"

	"github.com/pkg/errors"

	"github.com/greenticai/packc/internal/ident"
)

// ValidateOCIRef checks an OCI component reference against the grammar:
// "<registry>/<repo>@sha256:<64 hex>" is always accepted, "<registry>/<repo>:<tag>"
// is accepted only when allowTags is set, and anything else is rejected.
func ValidateOCIRef(reference string, allowTags bool) error {
	if repo, digest, ok := strings.Cut(reference, "@"); ok {
		// rsplit on '@' in the original grammar: a ref may not itself
		// contain '@' elsewhere, so Cut's first match is equivalent.
		if strings.TrimSpace(repo) == "" {
			return errors.Errorf("OCI component ref is missing a repository before the digest: %q", reference)
		}
		if !ident.ValidDigest(digest) {
			return errors.Errorf("OCI component ref must include a 64-character hex sha256 digest: %q", reference)
		}
		if !strings.Contains(repo, "/") {
			return errors.Errorf("OCI component ref must include a registry/repository path: %q", reference)
		}
		return nil
	}

	lastSlash := strings.LastIndex(reference, "/")
	if lastSlash < 0 {
		return errors.Errorf("OCI component ref must include a registry/repository path: %q", reference)
	}
	lastColon := strings.LastIndex(reference, ":")
	if lastColon < 0 {
		suffix := ""
		if allowTags {
			suffix = " or include a tag (:tag)"
		}
		return errors.Errorf("OCI component ref must be digest-pinned (...@sha256:...)%s: %q", suffix, reference)
	}
	if lastColon <= lastSlash {
		return errors.Errorf("OCI component ref must include a tag or digest: %q", reference)
	}

	tag := reference[lastColon+1:]
	if tag == "" {
		return errors.Errorf("OCI component ref tag must not be empty: %q", reference)
	}
	if !allowTags {
		return errors.Errorf("OCI component ref must be digest-pinned (...@sha256:...); re-run with --allow-oci-tags to permit tags: %q", reference)
	}
	return nil
}
