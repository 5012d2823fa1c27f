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
	"github.com/kestrel-os/kestrel/pkg/kernelerr"
	"github.com/kestrel-os/kestrel/pkg/memmap"
)

// MMap establishes a memory mapping. It implements the semantics of
// mmap(2) for anonymous mappings; file-backed mappings are not supported.
//
// No frames are allocated here: every page of the new mapping starts as a
// demand-paging hole and is backed on first touch by HandlePageFault.
func (mm *MemoryManager) MMap(opts memmap.MMapOpts) (hostarch.Addr, error) {
	if opts.Length == 0 {
		return 0, kernelerr.EINVAL
	}
	length, ok := hostarch.Addr(opts.Length).RoundUp()
	if !ok {
		return 0, kernelerr.ENOMEM
	}
	if !opts.Flags.Anonymous {
		return 0, kernelerr.ENOTSUP
	}
	if opts.Flags.Private == opts.Flags.Shared {
		// Exactly one sharing mode must be requested.
		return 0, kernelerr.EINVAL
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	addr, err := mm.resolveAddrLocked(opts, uint64(length))
	if err != nil {
		return 0, err
	}
	ar, _ := addr.ToRange(uint64(length))

	v := newVMA(ar, opts.Perms, opts.Flags)
	mm.insertLocked(v)
	if ar.End > mm.cursor {
		mm.cursor = ar.End
	}
	return addr, nil
}

// resolveAddrLocked decides where a new mapping of the given length goes,
// force-unmapping the target range first for fixed mappings.
//
// Preconditions: mm.mu must be locked; length is a positive page multiple.
func (mm *MemoryManager) resolveAddrLocked(opts memmap.MMapOpts, length uint64) (hostarch.Addr, error) {
	if opts.Flags.Fixed {
		if opts.Addr == 0 || !opts.Addr.IsPageAligned() {
			return 0, kernelerr.EINVAL
		}
		ar, ok := opts.Addr.ToRange(length)
		if !ok {
			return 0, kernelerr.EINVAL
		}
		// MAP_FIXED replaces anything already in the target range.
		if err := mm.unmapLocked(ar); err != nil {
			return 0, err
		}
		return opts.Addr, nil
	}
	if opts.Addr != 0 && opts.Addr.IsPageAligned() {
		if ar, ok := opts.Addr.ToRange(length); ok && mm.firstConflictLocked(ar) == nil {
			return opts.Addr, nil
		}
	}
	addr, ok := mm.finder.FindFreeRegion(mm, length)
	if !ok {
		return 0, kernelerr.ENOMEM
	}
	return addr, nil
}

// MUnmap removes all mappings in [addr, addr+length), implementing the
// semantics of munmap(2). Regions partially covered by the range are split
// or trimmed; frames backing removed pages are unmapped and returned to the
// allocator.
func (mm *MemoryManager) MUnmap(addr hostarch.Addr, length uint64) error {
	ar, err := checkPageRange(addr, length)
	if err != nil {
		return err
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.unmapLocked(ar)
}

// checkPageRange validates a page-aligned addr/length pair from userspace
// and converts it to a range.
func checkPageRange(addr hostarch.Addr, length uint64) (hostarch.AddrRange, error) {
	if !addr.IsPageAligned() || length == 0 || length&hostarch.PageMask != 0 {
		return hostarch.AddrRange{}, kernelerr.EINVAL
	}
	ar, ok := addr.ToRange(length)
	if !ok {
		return hostarch.AddrRange{}, kernelerr.EINVAL
	}
	return ar, nil
}

// unmapLocked implements the munmap algorithm over ar.
//
// Each intersecting region is handled independently: fully covered regions
// are destroyed; a region strictly containing ar is split in two; regions
// overlapping one end are trimmed. A region is removed from the registry
// before its surviving fragments are inserted, and every backed page in ar
// is unmapped and has its frame freed exactly once.
//
// Preconditions: mm.mu must be locked; ar is page-aligned and non-empty.
func (mm *MemoryManager) unmapLocked(ar hostarch.AddrRange) error {
	for _, v := range mm.overlappingLocked(ar) {
		isect := v.ar.Intersect(ar)
		mm.removeLocked(v)
		if err := mm.freeRangeLocked(v, isect); err != nil {
			return err
		}
		// Re-insert the surviving prefix and/or suffix, if any.
		if v.ar.Start < isect.Start {
			mm.insertLocked(v.slice(hostarch.AddrRange{Start: v.ar.Start, End: isect.Start}))
		}
		if isect.End < v.ar.End {
			mm.insertLocked(v.slice(hostarch.AddrRange{Start: isect.End, End: v.ar.End}))
		}
	}
	return nil
}

// freeRangeLocked unmaps and releases every backed page of v within ar,
// clearing the corresponding slots. A CoW-shared frame is returned to the
// allocator only when this was its last reference; until then the sibling
// address spaces keep it and its count is merely decremented.
//
// Preconditions: mm.mu must be locked; ar is a page-aligned subrange of
// v.ar.
func (mm *MemoryManager) freeRangeLocked(v *vma, ar hostarch.AddrRange) error {
	lo := v.pageIndex(ar.Start)
	hi := lo + ar.NumPages()
	for i := lo; i < hi; i++ {
		f := v.frames[i]
		if f == nil {
			continue
		}
		_, flush, err := mm.mapper.UnmapPage(v.pageAddr(i))
		if err != nil {
			return err
		}
		flush()
		if !v.cowPages[i] || mm.cowRefs.Decrement(f.PhysAddr()) == 0 {
			mm.alloc.Deallocate(f)
		}
		v.frames[i] = nil
		v.cowPages[i] = false
	}
	return nil
}

// MProtect changes the protection of [addr, addr+length), implementing a
// restricted mprotect(2): the range must exactly match one region. Partial
// and multi-region protection changes are rejected with EINVAL before
// anything is mutated. The region's protection is replaced, page-table flags
// are rewritten for every backed page, and unbacked pages pick up the new
// protection when they are eventually faulted in.
func (mm *MemoryManager) MProtect(addr hostarch.Addr, length uint64, perms hostarch.AccessType) error {
	ar, err := checkPageRange(addr, length)
	if err != nil {
		return err
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()

	v := mm.findLocked(ar.Start)
	if v == nil || v.ar != ar {
		return kernelerr.EINVAL
	}

	// Rewrite installed page-table flags before committing the record's
	// protection, rolling back on failure so the record and its mappings
	// never disagree.
	flags := perms.PTEFlags(true)
	oldFlags := v.perms.PTEFlags(true)
	for i, f := range v.frames {
		if f == nil {
			continue
		}
		if err := mm.mapper.UpdatePageFlags(v.pageAddr(i), flags); err != nil {
			for j := 0; j < i; j++ {
				if v.frames[j] != nil {
					mm.mapper.UpdatePageFlags(v.pageAddr(j), oldFlags)
				}
			}
			return err
		}
	}
	v.perms = perms
	return nil
}

// RemoveVMA detaches the region starting exactly at addr from the registry
// without unmapping pages or freeing frames. It is used when another
// subsystem owns the frames' lifetime, e.g. shared memory detach.
func (mm *MemoryManager) RemoveVMA(addr hostarch.Addr) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	v, ok := mm.vmas.Get(&vma{ar: hostarch.AddrRange{Start: addr}})
	if !ok {
		return kernelerr.EINVAL
	}
	mm.removeLocked(v)
	return nil
}
