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

package pgalloc

import (
	"sync"
)

// CowRefTable is the production memmap.CowRefTable. It holds entries only
// for frames that are shared; a frame with no entry has exactly one implicit
// reference, its sole mapping.
type CowRefTable struct {
	mu   sync.Mutex
	refs map[uintptr]uint64
}

// NewCowRefTable returns an empty CowRefTable.
func NewCowRefTable() *CowRefTable {
	return &CowRefTable{
		refs: make(map[uintptr]uint64),
	}
}

// Increment implements memmap.CowRefTable.Increment. Incrementing a frame
// with no entry first materializes the implicit reference, so the first
// Increment takes a frame from 1 reference to 2.
func (t *CowRefTable) Increment(phys uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.refs[phys]; !ok {
		t.refs[phys] = 1
	}
	t.refs[phys]++
}

// Decrement implements memmap.CowRefTable.Decrement. When the count returns
// to 1 the entry is dropped, restoring the implicit single-reference state.
func (t *CowRefTable) Decrement(phys uintptr) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.refs[phys]
	if !ok {
		return 0
	}
	n--
	if n <= 1 {
		delete(t.refs, phys)
	} else {
		t.refs[phys] = n
	}
	return n
}

// Refs returns the current reference count recorded for phys; 1 if no entry
// exists.
func (t *CowRefTable) Refs(phys uintptr) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.refs[phys]; ok {
		return n
	}
	return 1
}
