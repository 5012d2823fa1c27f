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

// Package config holds the machine and address-space layout configuration
// consumed by kestrel binaries. Library packages take explicit parameters;
// only binaries read configuration files.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/kestrel-os/kestrel/pkg/hostarch"
)

// Config is the top-level configuration.
type Config struct {
	Layout  Layout  `toml:"layout"`
	Machine Machine `toml:"machine"`
}

// Layout bounds the mmap window of every address space.
type Layout struct {
	// MmapBase is the lowest address handed out to non-fixed mappings.
	MmapBase uint64 `toml:"mmap_base"`

	// MmapLimit is the exclusive upper bound of the mmap window.
	MmapLimit uint64 `toml:"mmap_limit"`
}

// Machine describes the simulated physical memory.
type Machine struct {
	// FrameBase is the physical address of the first frame.
	FrameBase uint64 `toml:"frame_base"`

	// Frames is the number of physical page frames.
	Frames int `toml:"frames"`
}

// Default returns the configuration used when no file is given: a 1 GiB
// mmap window and 1024 frames (4 MiB of physical memory).
func Default() Config {
	return Config{
		Layout: Layout{
			MmapBase:  0x4000_0000,
			MmapLimit: 0x8000_0000,
		},
		Machine: Machine{
			FrameBase: 0x10_0000,
			Frames:    1024,
		},
	}
}

// Load reads a TOML configuration file. Fields absent from the file keep
// their Default values.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, fmt.Errorf("loading config %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return c, nil
}

// Validate checks alignment and ordering constraints.
func (c Config) Validate() error {
	if !hostarch.Addr(c.Layout.MmapBase).IsPageAligned() {
		return fmt.Errorf("mmap_base %#x is not page-aligned", c.Layout.MmapBase)
	}
	if !hostarch.Addr(c.Layout.MmapLimit).IsPageAligned() {
		return fmt.Errorf("mmap_limit %#x is not page-aligned", c.Layout.MmapLimit)
	}
	if c.Layout.MmapBase >= c.Layout.MmapLimit {
		return fmt.Errorf("mmap window [%#x, %#x) is empty", c.Layout.MmapBase, c.Layout.MmapLimit)
	}
	if !hostarch.Addr(c.Machine.FrameBase).IsPageAligned() {
		return fmt.Errorf("frame_base %#x is not page-aligned", c.Machine.FrameBase)
	}
	if c.Machine.Frames <= 0 {
		return fmt.Errorf("frames must be positive, got %d", c.Machine.Frames)
	}
	return nil
}
