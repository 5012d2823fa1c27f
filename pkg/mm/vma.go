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
	"fmt"

	"github.com/kestrel-os/kestrel/pkg/hostarch"
	"github.com/kestrel-os/kestrel/pkg/memmap"
)

// vma is one region record: a contiguous virtual range with uniform
// protection and flags, plus one frame slot and one CoW flag per page.
//
// Invariants: ar is page-aligned with ar.Length() > 0;
// len(frames) == len(cowPages) == ar.NumPages(); cowPages[i] implies
// frames[i] != nil.
type vma struct {
	ar    hostarch.AddrRange
	perms hostarch.AccessType
	flags memmap.MapFlags

	// frames[i] is the frame backing the i'th page, or nil if the page has
	// not been touched yet.
	frames []memmap.Frame

	// cowPages[i] is true iff frames[i] is shared with another address space
	// and must be copied before the i'th page may be written.
	cowPages []bool
}

func newVMA(ar hostarch.AddrRange, perms hostarch.AccessType, flags memmap.MapFlags) *vma {
	if !ar.IsPageAligned() || ar.Length() == 0 {
		panic(fmt.Sprintf("creating vma with invalid range %v", ar))
	}
	n := ar.NumPages()
	return &vma{
		ar:       ar,
		perms:    perms,
		flags:    flags,
		frames:   make([]memmap.Frame, n),
		cowPages: make([]bool, n),
	}
}

// pageIndex returns the index of the page containing addr.
//
// Preconditions: v.ar.Contains(addr).
func (v *vma) pageIndex(addr hostarch.Addr) int {
	return int((addr.RoundDown() - v.ar.Start) >> hostarch.PageShift)
}

// pageAddr returns the virtual address of the i'th page.
func (v *vma) pageAddr(i int) hostarch.Addr {
	return v.ar.Start + hostarch.Addr(i)<<hostarch.PageShift
}

// slice returns a new vma covering sub, carrying copies of the corresponding
// frame slots and CoW flags. v itself is unchanged; the caller is expected to
// discard it.
//
// Preconditions: sub is page-aligned, non-empty, and contained in v.ar.
func (v *vma) slice(sub hostarch.AddrRange) *vma {
	if !v.ar.IsSupersetOf(sub) {
		panic(fmt.Sprintf("slicing vma %v to non-subrange %v", v.ar, sub))
	}
	nv := newVMA(sub, v.perms, v.flags)
	lo := v.pageIndex(sub.Start)
	copy(nv.frames, v.frames[lo:lo+nv.ar.NumPages()])
	copy(nv.cowPages, v.cowPages[lo:lo+nv.ar.NumPages()])
	return nv
}
