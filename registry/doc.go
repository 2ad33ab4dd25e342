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

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// versionRecord is one entry of a registry document: a single published
// version plus its three dependency maps. Keys in the *Deps maps are
// unique package names; values are range strings. Per spec.md §4.3, an
// absent map defaults to empty, not nil-vs-absent ambiguity.
type versionRecord struct {
	Runtime map[string]string `json:"runtime_deps"`
	Dev     map[string]string `json:"dev_deps"`
	Peer    map[string]string `json:"peer_deps"`
}

// rawDoc is the complete registry document for one package: a map from
// version string to its record. This is the ecosystem-agnostic analogue of
// the teacher's protobuf package payload (see DESIGN.md); the real wire
// format is the registry collaborator's concern (spec.md §6), this module
// only defines the minimal envelope it needs.
type rawDoc map[string]versionRecord

func decodeDoc(name string, raw []byte) (rawDoc, error) {
	var doc rawDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &DecodeError{Name: name, Err: errors.Wrapf(err, "decoding registry document for %s", name)}
	}
	return doc, nil
}
