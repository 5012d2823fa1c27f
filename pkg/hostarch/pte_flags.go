// Copyright 2026 The Kestrel Authors.
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

package hostarch

// PTEFlags is the architecture-neutral form of a page-table entry's
// permission bits.
type PTEFlags struct {
	// Present is true if the entry maps a frame.
	Present bool

	// Writable is true if the mapped page may be written.
	Writable bool

	// Execute is true if instruction fetches from the mapped page are
	// allowed.
	Execute bool

	// User is true if the mapping is accessible from userspace; otherwise it
	// is supervisor-only.
	User bool
}

// AccessType returns the access types permitted by f. Present entries are
// always readable.
func (f PTEFlags) AccessType() AccessType {
	if !f.Present {
		return NoAccess
	}
	return AccessType{
		Read:    true,
		Write:   f.Writable,
		Execute: f.Execute,
	}
}
