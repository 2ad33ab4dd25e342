// Copyright 2023 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vuln

import "fmt"

// TransportError wraps a network/HTTP failure from the vulnerability
// collaborator. The resolver's policy (spec.md §7) is to treat this as an
// empty VulnerabilityList (fail-open); that decision is made by the
// caller, not hidden inside the adapter.
type TransportError struct {
	Keyword string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("vuln: %q: transport error: %v", e.Keyword, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError wraps a malformed CVE payload.
type DecodeError struct {
	Keyword string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("vuln: %q: malformed payload: %v", e.Keyword, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
