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

package hostarch

import "testing"

func TestAddrRounding(t *testing.T) {
	for _, tc := range []struct {
		addr Addr
		down Addr
		up   Addr
	}{
		{0, 0, 0},
		{1, 0, PageSize},
		{PageSize - 1, 0, PageSize},
		{PageSize, PageSize, PageSize},
		{PageSize + 1, PageSize, 2 * PageSize},
	} {
		if got := tc.addr.RoundDown(); got != tc.down {
			t.Errorf("Addr(%#x).RoundDown() got %#x want %#x", uintptr(tc.addr), uintptr(got), uintptr(tc.down))
		}
		up, ok := tc.addr.RoundUp()
		if !ok || up != tc.up {
			t.Errorf("Addr(%#x).RoundUp() got (%#x, %t) want (%#x, true)", uintptr(tc.addr), uintptr(up), ok, uintptr(tc.up))
		}
	}
	if _, ok := Addr(^uintptr(0)).RoundUp(); ok {
		t.Errorf("RoundUp of the maximum address did not report wraparound")
	}
}

func TestAddrAddLengthOverflow(t *testing.T) {
	if end, ok := Addr(PageSize).AddLength(2 * PageSize); !ok || end != 3*PageSize {
		t.Errorf("AddLength got (%#x, %t) want (%#x, true)", uintptr(end), ok, uintptr(3*PageSize))
	}
	if _, ok := Addr(^uintptr(0) - 1).AddLength(2); ok {
		t.Errorf("AddLength did not report wraparound")
	}
}

func TestAddrRangePredicates(t *testing.T) {
	r := AddrRange{Start: PageSize, End: 3 * PageSize}
	if !r.Contains(PageSize) || !r.Contains(3*PageSize-1) {
		t.Errorf("%v does not contain its own endpoints", r)
	}
	if r.Contains(3 * PageSize) {
		t.Errorf("%v contains its exclusive end", r)
	}
	if !r.Overlaps(AddrRange{Start: 0, End: PageSize + 1}) {
		t.Errorf("%v does not overlap a crossing range", r)
	}
	if r.Overlaps(AddrRange{Start: 3 * PageSize, End: 4 * PageSize}) {
		t.Errorf("%v overlaps an adjacent range", r)
	}
	if !r.IsSupersetOf(r) {
		t.Errorf("%v is not a superset of itself", r)
	}
	if got, want := r.Intersect(AddrRange{Start: 2 * PageSize, End: 5 * PageSize}), (AddrRange{Start: 2 * PageSize, End: 3 * PageSize}); got != want {
		t.Errorf("Intersect got %v want %v", got, want)
	}
	if got := r.Intersect(AddrRange{Start: 4 * PageSize, End: 5 * PageSize}); got.Length() != 0 {
		t.Errorf("Intersect of disjoint ranges got non-empty %v", got)
	}
	if got := r.NumPages(); got != 2 {
		t.Errorf("NumPages got %d want 2", got)
	}
}

func TestAccessTypeString(t *testing.T) {
	for _, tc := range []struct {
		a    AccessType
		want string
	}{
		{NoAccess, "---"},
		{Read, "r--"},
		{ReadWrite, "rw-"},
		{ReadExecute, "r-x"},
		{AnyAccess, "rwx"},
	} {
		if got := tc.a.String(); got != tc.want {
			t.Errorf("%+v.String() got %q want %q", tc.a, got, tc.want)
		}
	}
}

func TestAccessTypePTEFlags(t *testing.T) {
	f := ReadWrite.PTEFlags(true)
	if !f.Present || !f.Writable || f.Execute || !f.User {
		t.Errorf("ReadWrite.PTEFlags(true) got %+v", f)
	}
	if got := f.AccessType(); got != ReadWrite {
		t.Errorf("PTEFlags round trip got %v want %v", got, ReadWrite)
	}
	if f := Read.PTEFlags(false); f.User {
		t.Errorf("Read.PTEFlags(false) set User")
	}
}

func TestAccessTypeEffective(t *testing.T) {
	if got := Write.Effective(); !got.Read {
		t.Errorf("Write.Effective() got %v, Read not implied", got)
	}
	if got := NoAccess.Effective(); got.Any() {
		t.Errorf("NoAccess.Effective() got %v want no access", got)
	}
}
