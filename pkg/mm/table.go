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
	"sync"
)

// ASID identifies an address space.
type ASID uint32

// Table maps address-space identifiers to their MemoryManagers. The fault
// dispatcher resolves the faulting task's ASID through a Table before
// delegating to the owning manager; each manager keeps its own lock, so
// operations on distinct address spaces never contend.
type Table struct {
	mu     sync.RWMutex
	spaces map[ASID]*MemoryManager
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{
		spaces: make(map[ASID]*MemoryManager),
	}
}

// Add registers mm under id, replacing any previous registration.
func (t *Table) Add(id ASID, mm *MemoryManager) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spaces[id] = mm
}

// Get returns the manager registered under id, or nil.
func (t *Table) Get(id ASID) *MemoryManager {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.spaces[id]
}

// Remove drops the registration for id. The caller is responsible for
// tearing down the address space's mappings first.
func (t *Table) Remove(id ASID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.spaces, id)
}
