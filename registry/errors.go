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

package registry

import "fmt"

// ErrNotFound is returned when a package is missing or no published
// version satisfies the requested range, mirroring the ErrNotFound
// sentinel pattern of deps.dev/util/resolve's Client.
type ErrNotFound struct {
	Name  string
	Range string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("registry: %s@%s: not found", e.Name, e.Range)
}

// TransportError wraps a network/HTTP failure from the registry
// collaborator.
type TransportError struct {
	Name string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("registry: %s: transport error: %v", e.Name, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError wraps a malformed registry payload.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("registry: %s: malformed payload: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// AuthError indicates the registry collaborator rejected credentials.
// Authentication itself is the collaborator's concern (spec.md §6); this
// type exists purely so callers can distinguish the failure mode.
type AuthError struct {
	Name string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("registry: %s: auth error: %v", e.Name, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
