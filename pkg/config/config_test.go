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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default config failed validation: %v", err)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"unaligned mmap_base", func(c *Config) { c.Layout.MmapBase++ }},
		{"unaligned mmap_limit", func(c *Config) { c.Layout.MmapLimit++ }},
		{"empty window", func(c *Config) { c.Layout.MmapLimit = c.Layout.MmapBase }},
		{"inverted window", func(c *Config) { c.Layout.MmapBase = c.Layout.MmapLimit + 0x1000 }},
		{"unaligned frame_base", func(c *Config) { c.Machine.FrameBase++ }},
		{"zero frames", func(c *Config) { c.Machine.Frames = 0 }},
	} {
		c := Default()
		tc.mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Validate got nil err", tc.name)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kestrel.toml")
	data := `
[layout]
mmap_base = 0x10000000
mmap_limit = 0x20000000

[machine]
frames = 64
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load got err %v want nil", err)
	}
	want := Default()
	want.Layout.MmapBase = 0x1000_0000
	want.Layout.MmapLimit = 0x2000_0000
	want.Machine.Frames = 64
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kestrel.toml")
	if err := os.WriteFile(path, []byte("[layout]\nmmap_base = 0x123\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("Load of an unaligned mmap_base got nil err")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Errorf("Load of a missing file got nil err")
	}
}
