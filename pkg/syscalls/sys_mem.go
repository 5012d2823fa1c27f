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

// Package syscalls implements the userspace-facing surface of the memory
// management subsystem: the mmap/munmap/mprotect syscalls and the two page
// fault entry points invoked by the trap dispatcher.
//
// This layer translates Linux ABI bit masks into hostarch/memmap types and
// resolves the calling address space; all semantics live in pkg/mm.
package syscalls

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kestrel-os/kestrel/pkg/abi/linux"
	"github.com/kestrel-os/kestrel/pkg/hostarch"
	"github.com/kestrel-os/kestrel/pkg/kernelerr"
	"github.com/kestrel-os/kestrel/pkg/memmap"
	"github.com/kestrel-os/kestrel/pkg/mm"
)

// Mem dispatches memory syscalls and page faults to the owning address
// space's MemoryManager.
type Mem struct {
	table *mm.Table
	log   *logrus.Logger
}

// NewMem returns a Mem dispatching through table. logger may be nil, in
// which case the logrus standard logger is used.
func NewMem(table *mm.Table, logger *logrus.Logger) *Mem {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Mem{
		table: table,
		log:   logger,
	}
}

// prot translates PROT_* bits into an access type.
func prot(bits uint64) hostarch.AccessType {
	return hostarch.AccessType{
		Read:    bits&linux.PROT_READ != 0,
		Write:   bits&linux.PROT_WRITE != 0,
		Execute: bits&linux.PROT_EXEC != 0,
	}
}

// mapFlags translates MAP_* bits into decoded map flags.
func mapFlags(bits uint64) memmap.MapFlags {
	return memmap.MapFlags{
		Shared:    bits&linux.MAP_SHARED != 0,
		Private:   bits&linux.MAP_PRIVATE != 0,
		Anonymous: bits&linux.MAP_ANONYMOUS != 0,
		Fixed:     bits&linux.MAP_FIXED != 0,
	}
}

func (s *Mem) manager(id mm.ASID) (*mm.MemoryManager, error) {
	mgr := s.table.Get(id)
	if mgr == nil {
		return nil, kernelerr.ESRCH
	}
	return mgr, nil
}

// Mmap implements mmap(2). fd and offset are accepted for ABI compatibility
// but ignored: file-backed mappings are unsupported and rejected below by
// the anonymous check.
func (s *Mem) Mmap(id mm.ASID, addr uintptr, length uint64, protBits, flagBits uint64, fd int32, offset uint64) (uintptr, error) {
	mgr, err := s.manager(id)
	if err != nil {
		return 0, err
	}
	a, err := mgr.MMap(memmap.MMapOpts{
		Length: length,
		Addr:   hostarch.Addr(addr),
		Perms:  prot(protBits),
		Flags:  mapFlags(flagBits),
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"asid":   id,
			"addr":   fmt.Sprintf("%#x", addr),
			"length": length,
		}).Debugf("mmap failed: %v", err)
		return 0, err
	}
	return uintptr(a), nil
}

// Munmap implements munmap(2).
func (s *Mem) Munmap(id mm.ASID, addr uintptr, length uint64) error {
	mgr, err := s.manager(id)
	if err != nil {
		return err
	}
	if err := mgr.MUnmap(hostarch.Addr(addr), length); err != nil {
		s.log.WithFields(logrus.Fields{
			"asid":   id,
			"addr":   fmt.Sprintf("%#x", addr),
			"length": length,
		}).Debugf("munmap failed: %v", err)
		return err
	}
	return nil
}

// Mprotect implements mprotect(2).
func (s *Mem) Mprotect(id mm.ASID, addr uintptr, length uint64, protBits uint64) error {
	mgr, err := s.manager(id)
	if err != nil {
		return err
	}
	if err := mgr.MProtect(hostarch.Addr(addr), length, prot(protBits)); err != nil {
		s.log.WithFields(logrus.Fields{
			"asid":   id,
			"addr":   fmt.Sprintf("%#x", addr),
			"length": length,
			"prot":   prot(protBits).String(),
		}).Debugf("mprotect failed: %v", err)
		return err
	}
	return nil
}

// PageFault is the not-present fault entry point. The trap dispatcher must
// route present-but-write-protected faults to CowPageFault instead.
func (s *Mem) PageFault(id mm.ASID, faultAddr uintptr) error {
	mgr, err := s.manager(id)
	if err != nil {
		return err
	}
	return mgr.HandlePageFault(hostarch.Addr(faultAddr))
}

// CowPageFault is the copy-on-write fault entry point, for write faults on
// present but write-protected pages. oldPhys is the physical address of the
// frame currently backing the faulting page.
func (s *Mem) CowPageFault(id mm.ASID, faultAddr uintptr, oldPhys uintptr) error {
	mgr, err := s.manager(id)
	if err != nil {
		return err
	}
	return mgr.HandleCowPageFault(hostarch.Addr(faultAddr), oldPhys)
}
