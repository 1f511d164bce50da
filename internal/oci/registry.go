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

package oci

import "context"

// RegistryClient is the capability interface a real OCI transport
// implements. The build pipeline consumes it to pull component artifacts
// it has not cached; it never implements registry I/O itself. Fetch
// honors ctx's deadline and returns the artifact bytes together with
// their "sha256:<hex>" digest.
type RegistryClient interface {
	Fetch(ctx context.Context, ref Ref) (data []byte, digest string, err error)
}
