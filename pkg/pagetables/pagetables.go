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

// Package pagetables is the production memmap.Mapper. It keeps one entry per
// mapped virtual page and models the deferred translation flush a hardware
// TLB requires after an entry is removed or rewritten.
package pagetables

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kestrel-os/kestrel/pkg/hostarch"
	"github.com/kestrel-os/kestrel/pkg/memmap"
)

type entry struct {
	frame memmap.Frame
	flags hostarch.PTEFlags
}

// PageTables maps virtual pages to frames for one address space.
type PageTables struct {
	mu      sync.Mutex
	entries map[hostarch.Addr]entry

	// flushes counts invoked translation flushes. Updated atomically so the
	// returned Flush closures need not reacquire mu.
	flushes atomic.Uint64
}

// New returns empty PageTables.
func New() *PageTables {
	return &PageTables{
		entries: make(map[hostarch.Addr]entry),
	}
}

// MapPage implements memmap.Mapper.MapPage.
//
// The alloc parameter exists for mappers that build multi-level hardware
// tables and need frames for interior nodes; this implementation keeps a flat
// map and does not consume it.
func (pt *PageTables) MapPage(va hostarch.Addr, f memmap.Frame, flags hostarch.PTEFlags, alloc memmap.FrameAllocator) error {
	vp := va.RoundDown()
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if old, ok := pt.entries[vp]; ok {
		return fmt.Errorf("page %#x already maps frame %#x", uintptr(vp), old.frame.PhysAddr())
	}
	pt.entries[vp] = entry{frame: f, flags: flags}
	return nil
}

// UnmapPage implements memmap.Mapper.UnmapPage.
func (pt *PageTables) UnmapPage(va hostarch.Addr) (memmap.Frame, memmap.Flush, error) {
	vp := va.RoundDown()
	pt.mu.Lock()
	defer pt.mu.Unlock()
	e, ok := pt.entries[vp]
	if !ok {
		return nil, nil, fmt.Errorf("page %#x is not mapped", uintptr(vp))
	}
	delete(pt.entries, vp)
	return e.frame, func() {
		pt.flushes.Add(1)
	}, nil
}

// UpdatePageFlags implements memmap.Mapper.UpdatePageFlags.
func (pt *PageTables) UpdatePageFlags(va hostarch.Addr, flags hostarch.PTEFlags) error {
	vp := va.RoundDown()
	pt.mu.Lock()
	defer pt.mu.Unlock()
	e, ok := pt.entries[vp]
	if !ok {
		return fmt.Errorf("page %#x is not mapped", uintptr(vp))
	}
	e.flags = flags
	pt.entries[vp] = e
	return nil
}

// Lookup returns the frame and flags mapped at the page containing va, if
// any.
func (pt *PageTables) Lookup(va hostarch.Addr) (memmap.Frame, hostarch.PTEFlags, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	e, ok := pt.entries[va.RoundDown()]
	return e.frame, e.flags, ok
}

// MappedPages returns the number of live entries.
func (pt *PageTables) MappedPages() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.entries)
}

// TranslationFlushes returns the number of flushes invoked so far.
func (pt *PageTables) TranslationFlushes() uint64 {
	return pt.flushes.Load()
}
