// Copyright 2025 The Halfmoon Authors.
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

// Package config describes the simulated machine: memory size and the
// address-space layout constants consumed by the CLI and test harnesses.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
)

// Address is a hostarch.Addr that unmarshals from hex TOML strings like
// "0x400000".
type Address hostarch.Addr

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText.
func (a *Address) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", s, err)
	}
	*a = Address(v)
	return nil
}

// Addr converts to the hostarch type.
func (a Address) Addr() hostarch.Addr { return hostarch.Addr(a) }

// Machine configures physical memory.
type Machine struct {
	// MemoryFrames is the number of allocatable 4KiB frames.
	MemoryFrames int `toml:"memory-frames"`
}

// Layout configures the user address-space layout.
type Layout struct {
	// ImageBase is the load address of a process's executable image.
	ImageBase Address `toml:"image-base"`

	// StackBase and StackPages place the initial thread's stack mapping.
	StackBase  Address `toml:"stack-base"`
	StackPages int     `toml:"stack-pages"`
}

// Config is the machine description.
type Config struct {
	Machine Machine `toml:"machine"`
	Layout  Layout  `toml:"layout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Machine: Machine{MemoryFrames: 4096},
		Layout: Layout{
			ImageBase:  0x400000,
			StackBase:  0x7fff_ff00_0000,
			StackPages: 32,
		},
	}
}

// Load reads a TOML machine description, applying defaults for omitted
// fields.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if c.Machine.MemoryFrames <= 0 {
		return fmt.Errorf("machine.memory-frames must be positive, got %d", c.Machine.MemoryFrames)
	}
	if !c.Layout.ImageBase.Addr().IsPageAligned() || !c.Layout.ImageBase.Addr().InUserHalf() {
		return fmt.Errorf("layout.image-base %v must be a page-aligned user address", c.Layout.ImageBase.Addr())
	}
	if !c.Layout.StackBase.Addr().IsPageAligned() || !c.Layout.StackBase.Addr().InUserHalf() {
		return fmt.Errorf("layout.stack-base %v must be a page-aligned user address", c.Layout.StackBase.Addr())
	}
	if c.Layout.StackPages <= 0 {
		return fmt.Errorf("layout.stack-pages must be positive, got %d", c.Layout.StackPages)
	}
	return nil
}
