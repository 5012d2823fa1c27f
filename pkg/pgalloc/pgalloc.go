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

// Package pgalloc provides the production physical frame allocator.
//
// Arena carves a single contiguous slab of memory into hostarch.PageSize
// frames and hands them out from a LIFO free list. Frame contents are real
// bytes, so zero-fill on first touch and copy-on-write duplication operate on
// actual memory rather than on placeholders.
package pgalloc

import (
	"fmt"
	"sync"

	"github.com/kestrel-os/kestrel/pkg/hostarch"
	"github.com/kestrel-os/kestrel/pkg/memmap"
)

// Arena is a memmap.FrameAllocator backed by one slab of totalFrames frames.
type Arena struct {
	mu sync.Mutex

	// base is the physical address of frame 0. Immutable.
	base uintptr

	// mem is the slab; frame i occupies mem[i*PageSize:(i+1)*PageSize].
	// Immutable (the slice header; contents are frame data).
	mem []byte

	// frames[i] is the unique handle for frame i. Handles are allocated once
	// so that a frame's identity is stable across allocate/deallocate cycles.
	frames []frame

	// freeList holds the indexes of free frames, most recently freed last.
	freeList []uint32

	// allocated[i] is true iff frame i is currently allocated.
	allocated []bool
}

type frame struct {
	arena *Arena
	index uint32
}

// PhysAddr implements memmap.Frame.PhysAddr.
func (f *frame) PhysAddr() uintptr {
	return f.arena.base + uintptr(f.index)<<hostarch.PageShift
}

// Bytes implements memmap.Frame.Bytes.
func (f *frame) Bytes() []byte {
	off := int(f.index) << hostarch.PageShift
	return f.arena.mem[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

// NewArena returns an Arena of totalFrames frames whose physical addresses
// start at base. base must be page-aligned and totalFrames positive.
func NewArena(base uintptr, totalFrames int) *Arena {
	if !hostarch.Addr(base).IsPageAligned() {
		panic(fmt.Sprintf("unaligned arena base %#x", base))
	}
	if totalFrames <= 0 {
		panic(fmt.Sprintf("invalid arena size %d", totalFrames))
	}
	a := &Arena{
		base:      base,
		mem:       make([]byte, totalFrames<<hostarch.PageShift),
		frames:    make([]frame, totalFrames),
		freeList:  make([]uint32, 0, totalFrames),
		allocated: make([]bool, totalFrames),
	}
	for i := range a.frames {
		a.frames[i] = frame{arena: a, index: uint32(i)}
		// Push in reverse so that the lowest frame is allocated first.
		a.freeList = append(a.freeList, uint32(totalFrames-1-i))
	}
	return a
}

// Allocate implements memmap.FrameAllocator.Allocate.
func (a *Arena) Allocate() (memmap.Frame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.freeList) == 0 {
		return nil, false
	}
	i := a.freeList[len(a.freeList)-1]
	a.freeList = a.freeList[:len(a.freeList)-1]
	a.allocated[i] = true
	return &a.frames[i], true
}

// Deallocate implements memmap.FrameAllocator.Deallocate.
func (a *Arena) Deallocate(f memmap.Frame) {
	fr, ok := f.(*frame)
	if !ok || fr.arena != a {
		panic(fmt.Sprintf("deallocating foreign frame %#x", f.PhysAddr()))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.allocated[fr.index] {
		panic(fmt.Sprintf("double free of frame %#x", f.PhysAddr()))
	}
	a.allocated[fr.index] = false
	a.freeList = append(a.freeList, fr.index)
}

// FreeFrames returns the number of frames currently available.
func (a *Arena) FreeFrames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.freeList)
}

// TotalFrames returns the arena's capacity in frames.
func (a *Arena) TotalFrames() int {
	return len(a.frames)
}
