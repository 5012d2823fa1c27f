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
	"testing"

	"github.com/kestrel-os/kestrel/pkg/hostarch"
	"github.com/kestrel-os/kestrel/pkg/kernelerr"
	"github.com/kestrel-os/kestrel/pkg/memmap"
)

func TestFirstTouchBacksPageWithZeroedFrame(t *testing.T) {
	e := newTestEnv(4)
	addr := e.mmap(t, 2)

	// Fault on an unaligned address inside the second page; the whole page
	// must be backed.
	e.fault(t, addr+hostarch.PageSize+123)

	m, ok := e.mapper.entries[addr+hostarch.PageSize]
	if !ok {
		t.Fatalf("page at %#x not mapped after fault", uintptr(addr+hostarch.PageSize))
	}
	if !bytes.Equal(m.frame.Bytes(), make([]byte, hostarch.PageSize)) {
		t.Errorf("anonymous page not zero-filled")
	}
	want := hostarch.ReadWrite.PTEFlags(true)
	if m.flags != want {
		t.Errorf("page mapped with flags %+v want %+v", m.flags, want)
	}
	if _, ok := e.mapper.entries[addr]; ok {
		t.Errorf("untouched first page was mapped")
	}
	e.alloc.checkConservation(t, e.mm)
}

func TestFaultIdempotenceAtBoundary(t *testing.T) {
	e := newTestEnv(4)
	addr := e.mmap(t, 1)

	if err := e.mm.HandlePageFault(addr); err != nil {
		t.Fatalf("first HandlePageFault got err %v want nil", err)
	}
	if err := e.mm.HandlePageFault(addr); err != kernelerr.EACCES {
		t.Errorf("second HandlePageFault got err %v want EACCES", err)
	}
}

func TestFaultOutsideAnyMapping(t *testing.T) {
	e := newTestEnv(4)
	addr := e.mmap(t, 1)
	if err := e.mm.HandlePageFault(addr + hostarch.PageSize); err != kernelerr.EFAULT {
		t.Errorf("HandlePageFault got err %v want EFAULT", err)
	}
}

func TestFaultFrameExhaustion(t *testing.T) {
	e := newTestEnv(1)
	addr := e.mmap(t, 2)
	e.fault(t, addr)
	if err := e.mm.HandlePageFault(addr + hostarch.PageSize); err != kernelerr.ENOMEM {
		t.Errorf("HandlePageFault got err %v want ENOMEM", err)
	}
	e.alloc.checkConservation(t, e.mm)
}

func TestFaultUsesProtectionAtFaultTime(t *testing.T) {
	e := newTestEnv(4)
	addr := e.mmap(t, 2) // mapped rw-

	if err := e.mm.MProtect(addr, 2*hostarch.PageSize, hostarch.ReadExecute); err != nil {
		t.Fatalf("MProtect got err %v want nil", err)
	}
	e.fault(t, addr)
	m := e.mapper.entries[addr]
	if want := hostarch.ReadExecute.PTEFlags(true); m.flags != want {
		t.Errorf("page faulted in with flags %+v want %+v", m.flags, want)
	}
}

func TestFaultMapperFailureReleasesFrame(t *testing.T) {
	e := newTestEnv(4)
	addr := e.mmap(t, 1)

	// Pre-insert a conflicting page-table entry so MapPage fails.
	stray := &testFrame{phys: 0xdead000}
	e.mapper.entries[addr] = testMapping{frame: stray, flags: hostarch.PTEFlags{Present: true}}

	if err := e.mm.HandlePageFault(addr); err == nil || err == kernelerr.EACCES {
		t.Fatalf("HandlePageFault got err %v want mapper error", err)
	}
	if got, want := e.alloc.free, e.alloc.total; got != want {
		t.Errorf("frame leaked on mapper failure: free %d want %d", got, want)
	}
}

// TestDemandPagingScenario follows the worked example: map two pages, touch
// the first, unmap the second, then check mprotect exactness on what
// remains.
func TestDemandPagingScenario(t *testing.T) {
	e := newTestEnv(4)
	addr, err := e.mm.MMap(memmap.MMapOpts{
		Length: 2 * hostarch.PageSize,
		Perms:  hostarch.ReadWrite,
		Flags:  testPrivate,
	})
	if err != nil {
		t.Fatalf("MMap got err %v want nil", err)
	}
	e.fault(t, addr)

	if err := e.mm.MUnmap(addr+hostarch.PageSize, hostarch.PageSize); err != nil {
		t.Fatalf("MUnmap got err %v want nil", err)
	}
	if got := e.mm.MappedBytes(); got != hostarch.PageSize {
		t.Errorf("MappedBytes got %d want %d", got, hostarch.PageSize)
	}
	if got := e.mm.BackedPages(); got != 1 {
		t.Errorf("BackedPages got %d want 1", got)
	}
	e.alloc.checkConservation(t, e.mm)
}
