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

package mm

import (
	"bytes"
	"fmt"
)

// MapsString returns the registry's regions rendered in the style of
// /proc/[pid]/maps, one line per region including the trailing newline.
// All regions are anonymous, so the offset, device and inode columns are
// always zero.
func (mm *MemoryManager) MapsString() string {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	var b bytes.Buffer
	mm.forEachLocked(func(v *vma) bool {
		private := "p"
		if v.flags.Shared {
			private = "s"
		}
		fmt.Fprintf(&b, "%08x-%08x %s%s %08x %02x:%02x %d\n",
			uintptr(v.ar.Start), uintptr(v.ar.End), v.perms, private, 0, 0, 0, 0)
		return true
	})
	return b.String()
}
