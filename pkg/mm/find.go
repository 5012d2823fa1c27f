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
	"github.com/kestrel-os/kestrel/pkg/hostarch"
)

// RegionFinder chooses start addresses for mappings that were not given a
// usable hint.
type RegionFinder interface {
	// FindFreeRegion returns a page-aligned address at which a free range of
	// length bytes begins, or ok == false if the mmap window cannot satisfy
	// the request.
	//
	// Preconditions: mm.mu must be locked; length is a positive multiple of
	// the page size.
	FindFreeRegion(mm *MemoryManager, length uint64) (addr hostarch.Addr, ok bool)
}

// FirstFitFinder is the default RegionFinder: a first-fit search that starts
// at the manager's cursor and walks upward past conflicting regions. Because
// the cursor only advances, gaps freed below it are never reused; swapping in
// a reclaiming finder changes that without touching the rest of the
// registry.
type FirstFitFinder struct{}

// FindFreeRegion implements RegionFinder.FindFreeRegion.
func (FirstFitFinder) FindFreeRegion(mm *MemoryManager, length uint64) (hostarch.Addr, bool) {
	addr := mm.cursor
	for {
		ar, valid := addr.ToRange(length)
		if !valid || ar.End > mm.layout.MmapLimit {
			return 0, false
		}
		conflict := mm.firstConflictLocked(ar)
		if conflict == nil {
			return addr, true
		}
		// Skip past the conflicting region and retry.
		addr = conflict.ar.End.MustRoundUp()
	}
}

// firstConflictLocked returns the lowest vma overlapping ar, or nil.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) firstConflictLocked(ar hostarch.AddrRange) *vma {
	if vs := mm.overlappingLocked(ar); len(vs) != 0 {
		return vs[0]
	}
	return nil
}
