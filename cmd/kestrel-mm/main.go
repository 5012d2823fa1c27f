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

// kestrel-mm runs the memory management subsystem against a simulated
// machine: it plays the role of the trap dispatcher, issuing syscalls and
// routing page faults for a parent and a forked child address space, and
// prints the resulting state.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/kestrel-os/kestrel/pkg/abi/linux"
	"github.com/kestrel-os/kestrel/pkg/config"
	"github.com/kestrel-os/kestrel/pkg/hostarch"
	"github.com/kestrel-os/kestrel/pkg/mm"
	"github.com/kestrel-os/kestrel/pkg/pagetables"
	"github.com/kestrel-os/kestrel/pkg/pgalloc"
	"github.com/kestrel-os/kestrel/pkg/syscalls"
)

const (
	parentAS mm.ASID = 1
	childAS  mm.ASID = 2
)

var (
	configPath = flag.String("config", "", "path to a TOML machine configuration; defaults apply if empty")
	debug      = flag.Bool("debug", false, "enable debug logging")
)

// machine bundles the simulated hardware the dispatcher drives.
type machine struct {
	arena  *pgalloc.Arena
	tables map[mm.ASID]*pagetables.PageTables
	mem    *syscalls.Mem
}

// write simulates a userspace store: it walks the page tables the way the
// MMU would and raises the appropriate fault when the page is absent or
// write-protected, retrying the access afterwards.
func (m *machine) write(id mm.ASID, addr uintptr, b byte) error {
	pt := m.tables[id]
	for {
		frame, flags, ok := pt.Lookup(hostarch.Addr(addr))
		if !ok {
			if err := m.mem.PageFault(id, addr); err != nil {
				return fmt.Errorf("page fault at %#x: %w", addr, err)
			}
			continue
		}
		if !flags.Writable {
			if err := m.mem.CowPageFault(id, addr, frame.PhysAddr()); err != nil {
				return fmt.Errorf("cow fault at %#x: %w", addr, err)
			}
			continue
		}
		frame.Bytes()[addr&hostarch.PageMask] = b
		return nil
	}
}

// read simulates a userspace load.
func (m *machine) read(id mm.ASID, addr uintptr) (byte, error) {
	pt := m.tables[id]
	for {
		frame, _, ok := pt.Lookup(hostarch.Addr(addr))
		if ok {
			return frame.Bytes()[addr&hostarch.PageMask], nil
		}
		if err := m.mem.PageFault(id, addr); err != nil {
			return 0, fmt.Errorf("page fault at %#x: %w", addr, err)
		}
	}
}

func run() error {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	log := logrus.New()
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	m := &machine{
		arena:  pgalloc.NewArena(uintptr(cfg.Machine.FrameBase), cfg.Machine.Frames),
		tables: make(map[mm.ASID]*pagetables.PageTables),
	}
	layout := mm.Layout{
		MmapBase:  hostarch.Addr(cfg.Layout.MmapBase),
		MmapLimit: hostarch.Addr(cfg.Layout.MmapLimit),
	}
	cowRefs := pgalloc.NewCowRefTable()
	table := mm.NewTable()

	m.tables[parentAS] = pagetables.New()
	parent := mm.NewMemoryManager(m.arena, m.tables[parentAS], cowRefs, layout)
	table.Add(parentAS, parent)
	m.mem = syscalls.NewMem(table, log)

	log.Infof("machine: %d frames at %#x, mmap window [%#x, %#x)",
		cfg.Machine.Frames, cfg.Machine.FrameBase, cfg.Layout.MmapBase, cfg.Layout.MmapLimit)

	// Map four pages and touch two of them.
	addr, err := m.mem.Mmap(parentAS, 0, 4*hostarch.PageSize,
		linux.PROT_READ|linux.PROT_WRITE, linux.MAP_PRIVATE|linux.MAP_ANONYMOUS, -1, 0)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	log.Infof("mmap returned %#x", addr)
	if err := m.write(parentAS, addr, 'k'); err != nil {
		return err
	}
	if err := m.write(parentAS, addr+hostarch.PageSize, 'e'); err != nil {
		return err
	}
	log.Infof("after two first-touch faults: %d frames free", m.arena.FreeFrames())

	// Fork and break CoW in the child.
	m.tables[childAS] = pagetables.New()
	child, err := parent.Fork(m.tables[childAS])
	if err != nil {
		return fmt.Errorf("fork: %w", err)
	}
	table.Add(childAS, child)
	if err := m.write(childAS, addr, 'K'); err != nil {
		return err
	}
	pb, err := m.read(parentAS, addr)
	if err != nil {
		return err
	}
	cb, err := m.read(childAS, addr)
	if err != nil {
		return err
	}
	log.Infof("after CoW break: parent reads %q, child reads %q", pb, cb)

	// Punch a hole in the parent's mapping and tighten the rest.
	if err := m.mem.Munmap(parentAS, addr+hostarch.PageSize, hostarch.PageSize); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	if err := m.mem.Mprotect(parentAS, addr, hostarch.PageSize, linux.PROT_READ); err != nil {
		return fmt.Errorf("mprotect: %w", err)
	}

	fmt.Printf("parent maps:\n%s", parent.MapsString())
	fmt.Printf("child maps:\n%s", child.MapsString())
	log.Infof("%d frames free, %d translation flushes",
		m.arena.FreeFrames(), m.tables[parentAS].TranslationFlushes())
	return nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kestrel-mm: %v\n", err)
		os.Exit(1)
	}
}
