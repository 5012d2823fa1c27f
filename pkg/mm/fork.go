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
	"github.com/kestrel-os/kestrel/pkg/kernelerr"
	"github.com/kestrel-os/kestrel/pkg/memmap"
)

// Fork duplicates mm into a new address space whose page tables are
// childMapper, sharing all backed frames copy-on-write.
//
// Every region is duplicated with identical range, protection and flags.
// Each backed page keeps its frame in both parent and child: the parent's
// installed mapping is downgraded to read-only, the child gets a read-only
// mapping of the same frame, both CoW flags are set, and the frame's
// reference count is incremented. Unbacked pages remain demand-paging holes
// on both sides and never share a frame.
//
// Shared regions fail with ENOTSUP: writes through a MAP_SHARED mapping must
// stay visible to both sides after fork, which needs a shared backing object
// rather than copy-on-write.
//
// The caller provides the child's Mapper; allocator, CoW table, layout and
// region finder are inherited. On error the partially built child must be
// discarded; parent pages already downgraded stay CoW-marked, which is safe
// since their next write simply takes the copy path.
func (mm *MemoryManager) Fork(childMapper memmap.Mapper) (*MemoryManager, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	// Reject before any downgrade so a failed fork leaves the parent
	// untouched.
	shared := false
	mm.forEachLocked(func(v *vma) bool {
		shared = v.flags.Shared
		return !shared
	})
	if shared {
		return nil, kernelerr.ENOTSUP
	}

	child := NewMemoryManager(mm.alloc, childMapper, mm.cowRefs, mm.layout)
	child.finder = mm.finder
	child.cursor = mm.cursor

	var err error
	mm.forEachLocked(func(v *vma) bool {
		var cv *vma
		if cv, err = mm.forkVMALocked(v, childMapper); err != nil {
			return false
		}
		child.insertLocked(cv)
		return true
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// forkVMALocked duplicates one region into a child address space, marking
// every backed page CoW in both copies.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) forkVMALocked(v *vma, childMapper memmap.Mapper) (*vma, error) {
	cv := v.slice(v.ar)
	roFlags := v.perms.PTEFlags(true)
	roFlags.Writable = false
	for i, f := range v.frames {
		if f == nil {
			continue
		}
		va := v.pageAddr(i)
		if !v.cowPages[i] {
			// First sharing of this frame: write-protect the parent's
			// installed mapping.
			if err := mm.mapper.UpdatePageFlags(va, roFlags); err != nil {
				return nil, err
			}
			v.cowPages[i] = true
		}
		if err := childMapper.MapPage(va, f, roFlags, mm.alloc); err != nil {
			return nil, err
		}
		cv.cowPages[i] = true
		mm.cowRefs.Increment(f.PhysAddr())
	}
	return cv, nil
}
