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
	"errors"
	"io"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/kernelerr"
	"github.com/halfmoon-os/halfmoon/pkg/sync"
)

// openFile is one open file description, shared across descriptor tables
// after fork.
type openFile struct {
	name string

	// data provides the file's contents. nil for the standard streams,
	// which exist in every table but can never back a mapping.
	data io.ReaderAt
}

// FDTable maps descriptors to open files. It implements
// memmap.BackingStore for the owning process's address space.
type FDTable struct {
	mu    sync.Mutex
	files map[int32]*openFile
	next  int32
}

// NewFDTable returns a table with the standard streams occupying fds 0-2.
func NewFDTable() *FDTable {
	t := &FDTable{
		files: make(map[int32]*openFile),
		next:  3,
	}
	for fd, name := range map[int32]string{0: "stdin", 1: "stdout", 2: "stderr"} {
		t.files[fd] = &openFile{name: name}
	}
	return t
}

// Open registers a file's contents and returns its descriptor.
func (t *FDTable) Open(name string, data io.ReaderAt) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.next
	t.next++
	t.files[fd] = &openFile{name: name, data: data}
	return fd
}

// Close removes a descriptor. The standard streams cannot be closed here.
// Existing mappings backed by the file remain valid until munmap, per the
// Unix convention; pages already populated are unaffected in any case.
func (t *FDTable) Close(fd int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd <= 2 {
		return kernelerr.BadDescriptor
	}
	if _, ok := t.files[fd]; !ok {
		return kernelerr.BadDescriptor
	}
	delete(t.files, fd)
	return nil
}

// Fork returns a copy of the table for a child process. Open file
// descriptions are shared, as in the Unix file model.
func (t *FDTable) Fork() *FDTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	nt := &FDTable{
		files: make(map[int32]*openFile, len(t.files)),
		next:  t.next,
	}
	for fd, f := range t.files {
		nt.files[fd] = f
	}
	return nt
}

// MappableFD implements memmap.BackingStore.MappableFD.
func (t *FDTable) MappableFD(fd int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	return ok && f.data != nil
}

// ReadPage implements memmap.BackingStore.ReadPage. Reads past end-of-file
// are zero-filled.
func (t *FDTable) ReadPage(fd int32, off uint64, b []byte) error {
	t.mu.Lock()
	f, ok := t.files[fd]
	t.mu.Unlock()
	if !ok || f.data == nil {
		return kernelerr.BadDescriptor
	}

	if off > uint64(hostarch.MaxUserAddr) {
		return kernelerr.InvalidArgument
	}
	n, err := f.data.ReadAt(b, int64(off))
	for i := n; i < len(b); i++ {
		b[i] = 0
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
