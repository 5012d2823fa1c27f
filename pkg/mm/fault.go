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
)

// HandlePageFault handles a not-present fault at addr by backing the
// faulting page with a fresh frame (demand paging). The trap dispatcher must
// only route not-present faults here; a fault on an already-backed page is a
// protection violation and fails with EACCES.
//
// Anonymous pages are zero-filled before the mapping becomes visible. The
// faulting instruction is expected to be retried by the caller.
func (mm *MemoryManager) HandlePageFault(addr hostarch.Addr) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	v := mm.findLocked(addr)
	if v == nil {
		return kernelerr.EFAULT
	}
	i := v.pageIndex(addr)
	if v.frames[i] != nil {
		return kernelerr.EACCES
	}

	f, ok := mm.alloc.Allocate()
	if !ok {
		return kernelerr.ENOMEM
	}
	if v.flags.Anonymous {
		clear(f.Bytes())
	}
	if err := mm.mapper.MapPage(v.pageAddr(i), f, v.perms.PTEFlags(true), mm.alloc); err != nil {
		mm.alloc.Deallocate(f)
		return err
	}
	v.frames[i] = f
	return nil
}

// HandleCowPageFault handles a write fault on a present but write-protected
// page at addr. oldPhys is the physical address of the frame currently
// backing the page, as observed by the trap dispatcher.
//
// The shared frame's contents are copied into a fresh private frame, the
// page is remapped to it with the region's full protection, and the shared
// frame's reference count is decremented. When this was the last reference,
// the shared frame is returned to the allocator. The triggering write is
// expected to be retried by the caller.
func (mm *MemoryManager) HandleCowPageFault(addr hostarch.Addr, oldPhys uintptr) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	v := mm.findLocked(addr)
	if v == nil {
		return kernelerr.EFAULT
	}
	if !v.perms.Write {
		// A true protection violation, not a CoW break.
		return kernelerr.EACCES
	}
	i := v.pageIndex(addr)
	if !v.cowPages[i] {
		// A write fault on a present, non-CoW page should never reach this
		// handler.
		return kernelerr.EINVAL
	}

	newf, ok := mm.alloc.Allocate()
	if !ok {
		return kernelerr.ENOMEM
	}
	old := v.frames[i]
	copy(newf.Bytes(), old.Bytes())

	_, flush, err := mm.mapper.UnmapPage(v.pageAddr(i))
	if err != nil {
		mm.alloc.Deallocate(newf)
		return err
	}
	flush()
	if err := mm.mapper.MapPage(v.pageAddr(i), newf, v.perms.PTEFlags(true), mm.alloc); err != nil {
		mm.alloc.Deallocate(newf)
		return err
	}
	if mm.cowRefs.Decrement(oldPhys) == 0 {
		mm.alloc.Deallocate(old)
	}
	v.cowPages[i] = false
	v.frames[i] = newf
	return nil
}
