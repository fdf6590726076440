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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "machine.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 4096, c.Machine.MemoryFrames)
	assert.Equal(t, hostarch.Addr(0x400000), c.Layout.ImageBase.Addr())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[machine]
memory-frames = 1024

[layout]
image-base = "0x500000"
stack-base = "0x7ffe00000000"
stack-pages = 16
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, c.Machine.MemoryFrames)
	assert.Equal(t, hostarch.Addr(0x500000), c.Layout.ImageBase.Addr())
	assert.Equal(t, hostarch.Addr(0x7ffe00000000), c.Layout.StackBase.Addr())
	assert.Equal(t, 16, c.Layout.StackPages)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[machine]
memory-frames = 64
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, c.Machine.MemoryFrames)
	// Omitted sections fall back to the defaults.
	assert.Equal(t, Default().Layout, c.Layout)
}

func TestLoadErrors(t *testing.T) {
	for _, test := range []struct {
		name     string
		contents string
	}{
		{
			name: "negative frames",
			contents: `
[machine]
memory-frames = -1
`,
		},
		{
			name: "unaligned image base",
			contents: `
[layout]
image-base = "0x400010"
`,
		},
		{
			name: "kernel-half stack",
			contents: `
[layout]
stack-base = "0xffff800000000000"
`,
		},
		{
			name: "zero stack pages",
			contents: `
[layout]
stack-pages = 0
`,
		},
		{
			name: "malformed address",
			contents: `
[layout]
image-base = "four hundred"
`,
		},
		{
			name:     "not toml",
			contents: `{"machine": {}}`,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, test.contents))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
