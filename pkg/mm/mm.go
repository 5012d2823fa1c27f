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

// Package mm provides a memory management subsystem: per-address-space
// tracking of virtual memory regions, demand paging, and copy-on-write
// sharing of frames across address spaces.
//
// A MemoryManager owns an ordered registry of region records (vmas) that
// partitions the mapped portion of its address space into non-overlapping,
// page-aligned ranges. All physical frame lifecycle goes through the injected
// memmap.FrameAllocator, and all page-table manipulation through the injected
// memmap.Mapper; the MemoryManager itself is pure bookkeeping.
//
// Lock order:
//
//	MemoryManager.mu
//	  memmap.Mapper (implementation-internal)
//	    memmap.FrameAllocator (implementation-internal)
//
// Every public operation holds mu for its full duration and never blocks
// inside the critical section.
package mm

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/kestrel-os/kestrel/pkg/hostarch"
	"github.com/kestrel-os/kestrel/pkg/memmap"
)

// vmaDegree is the btree degree for the vma registry. Address spaces here
// hold tens of vmas, not thousands; a shallow tree keeps rebalancing cheap.
const vmaDegree = 8

// Layout describes the window from which non-fixed mappings are allocated.
type Layout struct {
	// MmapBase is the lowest address handed out. Page-aligned.
	MmapBase hostarch.Addr

	// MmapLimit is the exclusive upper bound of the window. Page-aligned.
	MmapLimit hostarch.Addr
}

// MemoryManager manages the virtual memory regions of one address space.
type MemoryManager struct {
	// alloc, mapper and cowRefs are the machine capabilities this manager
	// was constructed with. Immutable.
	alloc   memmap.FrameAllocator
	mapper  memmap.Mapper
	cowRefs memmap.CowRefTable

	// layout bounds the mmap window. Immutable.
	layout Layout

	// finder chooses start addresses for non-fixed mappings. Immutable
	// after the first operation.
	finder RegionFinder

	// mu serializes all operations on the address space, including the
	// fault handlers, which may be invoked from trap context.
	mu sync.Mutex

	// vmas is the region registry, ordered by vma.ar.Start.
	vmas *btree.BTreeG[*vma]

	// cursor is the next candidate address for the first-fit search. It
	// only ever advances; gaps freed below it are not reused.
	cursor hostarch.Addr
}

// NewMemoryManager returns a MemoryManager for an empty address space.
// The default region finder is a FirstFitFinder.
func NewMemoryManager(alloc memmap.FrameAllocator, mapper memmap.Mapper, cowRefs memmap.CowRefTable, layout Layout) *MemoryManager {
	if !layout.MmapBase.IsPageAligned() || !layout.MmapLimit.IsPageAligned() || layout.MmapBase >= layout.MmapLimit {
		panic(fmt.Sprintf("invalid mmap layout [%#x, %#x)", uintptr(layout.MmapBase), uintptr(layout.MmapLimit)))
	}
	return &MemoryManager{
		alloc:   alloc,
		mapper:  mapper,
		cowRefs: cowRefs,
		layout:  layout,
		finder:  FirstFitFinder{},
		vmas: btree.NewG(vmaDegree, func(a, b *vma) bool {
			return a.ar.Start < b.ar.Start
		}),
		cursor: layout.MmapBase,
	}
}

// SetRegionFinder replaces the free-region search strategy. It must be
// called before the first operation on mm.
func (mm *MemoryManager) SetRegionFinder(f RegionFinder) {
	mm.finder = f
}

// findLocked returns the vma containing addr, or nil.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) findLocked(addr hostarch.Addr) *vma {
	var found *vma
	mm.vmas.DescendLessOrEqual(&vma{ar: hostarch.AddrRange{Start: addr}}, func(v *vma) bool {
		if v.ar.Contains(addr) {
			found = v
		}
		return false
	})
	return found
}

// overlappingLocked returns the vmas intersecting ar, in address order.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) overlappingLocked(ar hostarch.AddrRange) []*vma {
	var vs []*vma
	// The first intersecting vma may start below ar.
	if v := mm.findLocked(ar.Start); v != nil {
		vs = append(vs, v)
	}
	mm.vmas.AscendGreaterOrEqual(&vma{ar: hostarch.AddrRange{Start: ar.Start}}, func(v *vma) bool {
		if v.ar.Start >= ar.End {
			return false
		}
		if len(vs) == 0 || vs[len(vs)-1] != v {
			vs = append(vs, v)
		}
		return true
	})
	return vs
}

// insertLocked adds v to the registry.
//
// Preconditions: mm.mu must be locked; v's range must not overlap any
// existing vma.
func (mm *MemoryManager) insertLocked(v *vma) {
	if vs := mm.overlappingLocked(v.ar); len(vs) != 0 {
		panic(fmt.Sprintf("inserting vma %v over existing vma %v", v.ar, vs[0].ar))
	}
	mm.vmas.ReplaceOrInsert(v)
}

// removeLocked removes v from the registry.
//
// Preconditions: mm.mu must be locked; v must be in the registry.
func (mm *MemoryManager) removeLocked(v *vma) {
	if _, ok := mm.vmas.Delete(v); !ok {
		panic(fmt.Sprintf("removing vma %v not in registry", v.ar))
	}
}

// forEachLocked calls f on every vma in address order until f returns false.
//
// Preconditions: mm.mu must be locked. f must not mutate the registry.
func (mm *MemoryManager) forEachLocked(f func(*vma) bool) {
	mm.vmas.Ascend(f)
}

// VMACount returns the number of region records in the registry.
func (mm *MemoryManager) VMACount() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.vmas.Len()
}

// MappedBytes returns the total length of all regions.
func (mm *MemoryManager) MappedBytes() uint64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	var n uint64
	mm.forEachLocked(func(v *vma) bool {
		n += v.ar.Length()
		return true
	})
	return n
}

// BackedPages returns the number of pages currently holding a frame, across
// all regions.
func (mm *MemoryManager) BackedPages() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	var n int
	mm.forEachLocked(func(v *vma) bool {
		for _, f := range v.frames {
			if f != nil {
				n++
			}
		}
		return true
	})
	return n
}
