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

package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/kernelerr"
)

func TestFDTableStandardStreams(t *testing.T) {
	ft := NewFDTable()
	for fd := int32(0); fd <= 2; fd++ {
		assert.False(t, ft.MappableFD(fd), "fd %d must not be mappable", fd)
		assert.ErrorIs(t, ft.Close(fd), kernelerr.BadDescriptor)
		assert.ErrorIs(t, ft.ReadPage(fd, 0, make([]byte, 1)), kernelerr.BadDescriptor)
	}
}

func TestFDTableOpenClose(t *testing.T) {
	ft := NewFDTable()
	fd := ft.Open("a", bytesReaderAt("contents"))
	assert.GreaterOrEqual(t, fd, int32(3))
	assert.True(t, ft.MappableFD(fd))

	require.NoError(t, ft.Close(fd))
	assert.False(t, ft.MappableFD(fd))
	assert.ErrorIs(t, ft.Close(fd), kernelerr.BadDescriptor)

	// Descriptors are not reused.
	fd2 := ft.Open("b", bytesReaderAt("x"))
	assert.Greater(t, fd2, fd)
}

func TestFDTableReadPage(t *testing.T) {
	ft := NewFDTable()
	contents := "0123456789"
	fd := ft.Open("short", bytesReaderAt(contents))

	// A page read over a short file is zero-filled past end-of-file.
	b := make([]byte, hostarch.PageSize)
	b[len(contents)] = 0xff
	require.NoError(t, ft.ReadPage(fd, 0, b))
	assert.Equal(t, contents, string(b[:len(contents)]))
	assert.Zero(t, b[len(contents)])

	// A read entirely past end-of-file yields a zero page.
	b[0] = 0xff
	require.NoError(t, ft.ReadPage(fd, hostarch.PageSize, b))
	assert.Zero(t, b[0])

	assert.ErrorIs(t, ft.ReadPage(99, 0, b), kernelerr.BadDescriptor)
}

func TestFDTableForkShares(t *testing.T) {
	ft := NewFDTable()
	fd := ft.Open("shared", bytesReaderAt("shared contents"))

	child := ft.Fork()
	assert.True(t, child.MappableFD(fd))

	// Close in one table is invisible in the other.
	require.NoError(t, ft.Close(fd))
	assert.False(t, ft.MappableFD(fd))
	assert.True(t, child.MappableFD(fd))

	// Files opened after the fork are private to their table, even though
	// both tables continue numbering from the same point.
	a := ft.Open("a", bytesReaderAt("a"))
	b := child.Open("b", bytesReaderAt("b"))
	assert.Equal(t, a, b)
	assert.True(t, ft.MappableFD(a))
	assert.True(t, child.MappableFD(b))
}
