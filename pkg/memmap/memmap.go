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

// Package memmap defines semantics for memory mappings and the capability
// interfaces through which the region registry reaches the rest of the
// machine.
//
// The registry (pkg/mm) never touches physical memory or page tables
// directly; it is constructed with a FrameAllocator, a Mapper and a
// CowRefTable and owns nothing below them. This keeps the frame allocator,
// the page-table walker and the fork-time reference counting independently
// replaceable, and lets tests substitute doubles for all three.
package memmap

import (
	"github.com/kestrel-os/kestrel/pkg/hostarch"
)

// Frame is a handle to one physical page frame of hostarch.PageSize bytes.
//
// Frame handles are comparable; two handles are equal iff they name the same
// frame.
type Frame interface {
	// PhysAddr returns the frame's physical base address. It is page-aligned
	// and unique among live frames.
	PhysAddr() uintptr

	// Bytes returns the frame's contents. The returned slice is exactly
	// hostarch.PageSize long and remains valid until the frame is
	// deallocated.
	Bytes() []byte
}

// FrameAllocator hands out and reclaims physical page frames.
//
// Implementations are independently locked; see the lock ordering note on
// Mapper.
type FrameAllocator interface {
	// Allocate returns a free frame. ok is false iff physical memory is
	// exhausted. The contents of the returned frame are unspecified; callers
	// that require zeroed memory must zero it themselves.
	Allocate() (f Frame, ok bool)

	// Deallocate returns f to the free pool. f must have been returned by a
	// previous call to Allocate and not deallocated since.
	Deallocate(f Frame)
}

// Flush invalidates any cached translations made stale by the page-table
// update that returned it. Callers must invoke the returned Flush on all
// exit paths, including error paths.
type Flush func()

// Mapper installs, removes and updates page-table entries for single virtual
// pages.
//
// Lock ordering: implementations may acquire internal locks, but must never
// call back into the region registry. The registry acquires its own lock
// first, then calls the Mapper, then the FrameAllocator.
type Mapper interface {
	// MapPage installs a mapping from the page containing va to f. alloc may
	// be used to allocate intermediate page-table frames. It is an error to
	// map a page that is already mapped.
	MapPage(va hostarch.Addr, f Frame, flags hostarch.PTEFlags, alloc FrameAllocator) error

	// UnmapPage removes the mapping for the page containing va and returns
	// the frame it mapped. The returned Flush must be invoked on all exit
	// paths once the caller is ready for the translation to disappear.
	UnmapPage(va hostarch.Addr) (Frame, Flush, error)

	// UpdatePageFlags rewrites the flags of the existing mapping for the
	// page containing va, leaving its frame unchanged.
	UpdatePageFlags(va hostarch.Addr, flags hostarch.PTEFlags) error
}

// CowRefTable tracks, per physical frame, how many virtual mappings
// currently reference it. Only frames shared by fork are registered; a
// freshly faulted private frame has no table entry.
type CowRefTable interface {
	// Increment records one additional mapping of the frame at phys.
	Increment(phys uintptr)

	// Decrement records the removal of one mapping of the frame at phys and
	// returns the number of references remaining.
	Decrement(phys uintptr) uint64
}

// MapFlags is the set of flags accepted by mmap, in decoded form.
type MapFlags struct {
	// Shared is true if writes through the mapping would be visible to other
	// mappings of the same object (MAP_SHARED).
	Shared bool

	// Private is true if the mapping is copy-on-write private (MAP_PRIVATE).
	Private bool

	// Anonymous is true if the mapping has no backing object
	// (MAP_ANONYMOUS). Only anonymous mappings are supported.
	Anonymous bool

	// Fixed is true if the mapping must be placed exactly at Addr
	// (MAP_FIXED), replacing anything already there.
	Fixed bool
}

// MMapOpts specifies a request to create a memory mapping.
type MMapOpts struct {
	// Length is the length of the mapping in bytes. It must be positive, and
	// is rounded up to a multiple of hostarch.PageSize.
	Length uint64

	// Addr is the suggested address for the mapping. If Flags.Fixed is set
	// it is mandatory and must be non-zero and page-aligned.
	Addr hostarch.Addr

	// Perms is the set of permissions applied to the mapping.
	Perms hostarch.AccessType

	// Flags is the decoded mmap flag set.
	Flags MapFlags
}
