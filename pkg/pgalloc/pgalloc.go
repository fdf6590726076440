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

// Package pgalloc contains the FrameTable, the machine's arena of physical
// page frames.
//
// Frames are reference-counted: under copy-on-write, the same frame may be
// mapped by PTEs in multiple address spaces, and a frame's count must equal
// the number of present PTEs pointing at it. Address spaces refer to frames
// only by FrameID, never by pointer; the sharing graph is an index
// relationship inside the table.
package pgalloc

import (
	"fmt"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/kernelerr"
	"github.com/halfmoon-os/halfmoon/pkg/sync"
)

// FrameID identifies a physical frame. The zero FrameID is never allocated,
// so a zero-valued PTE cannot alias frame contents. A frame's physical base
// address is FrameID << hostarch.PageShift.
type FrameID uint64

// Base returns the physical base address of the frame.
func (id FrameID) Base() uint64 {
	return uint64(id) << hostarch.PageShift
}

type frame struct {
	refs int64
	data []byte
}

// FrameTable owns all physical frames. All methods are safe to call
// concurrently.
type FrameTable struct {
	mu sync.Mutex

	// capacity is the number of allocatable frames.
	capacity int

	// frames maps live FrameIDs to their state. Slot reuse goes through
	// free; next grows the arena until capacity is reached.
	frames map[FrameID]*frame
	free   []FrameID
	next   FrameID
}

// NewFrameTable returns a FrameTable backed by capacity frames.
func NewFrameTable(capacity int) *FrameTable {
	return &FrameTable{
		capacity: capacity,
		frames:   make(map[FrameID]*frame),
		next:     1,
	}
}

func (ft *FrameTable) allocLocked() (FrameID, *frame, error) {
	if len(ft.frames) >= ft.capacity {
		return 0, nil, kernelerr.ResourceExhausted
	}
	var id FrameID
	if n := len(ft.free); n > 0 {
		id = ft.free[n-1]
		ft.free = ft.free[:n-1]
	} else {
		id = ft.next
		ft.next++
	}
	f := &frame{refs: 1, data: make([]byte, hostarch.PageSize)}
	ft.frames[id] = f
	return id, f, nil
}

func (ft *FrameTable) frameLocked(id FrameID) *frame {
	f, ok := ft.frames[id]
	if !ok {
		panic(fmt.Sprintf("pgalloc: use of non-allocated frame %d", id))
	}
	return f
}

// Allocate returns a zero-filled frame with a reference count of 1.
func (ft *FrameTable) Allocate() (FrameID, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	id, _, err := ft.allocLocked()
	return id, err
}

// AllocateFill returns a frame with a reference count of 1 whose contents
// are b, zero-padded to the page size. len(b) must not exceed the page size.
func (ft *FrameTable) AllocateFill(b []byte) (FrameID, error) {
	if len(b) > hostarch.PageSize {
		panic(fmt.Sprintf("pgalloc: fill of %d bytes exceeds page size", len(b)))
	}
	ft.mu.Lock()
	defer ft.mu.Unlock()
	id, f, err := ft.allocLocked()
	if err != nil {
		return 0, err
	}
	copy(f.data, b)
	return id, nil
}

// IncRef increments the frame's reference count. The caller must already
// hold a reference.
func (ft *FrameTable) IncRef(id FrameID) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.frameLocked(id).refs++
}

// DecRef decrements the frame's reference count, releasing the frame when
// the count reaches zero.
func (ft *FrameTable) DecRef(id FrameID) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	f := ft.frameLocked(id)
	f.refs--
	switch {
	case f.refs < 0:
		panic(fmt.Sprintf("pgalloc: negative reference count on frame %d", id))
	case f.refs == 0:
		delete(ft.frames, id)
		ft.free = append(ft.free, id)
	}
}

// Refs returns the frame's current reference count.
func (ft *FrameTable) Refs(id FrameID) int64 {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.frameLocked(id).refs
}

// Unshare prepares the frame for a write by the calling address space and
// returns the frame the caller's PTE must point at.
//
// If the frame is no longer shared (count of 1), Unshare returns the same
// id with copied=false: the caller may simply make its PTE writable. If the
// frame is shared, Unshare allocates a new frame, copies the contents, and
// drops one reference from the old frame, returning the new id with
// copied=true.
//
// The check, copy, and decrement form a single critical section; two
// sharers faulting on the same frame concurrently cannot both conclude the
// frame is exclusively theirs.
func (ft *FrameTable) Unshare(id FrameID) (FrameID, bool, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	old := ft.frameLocked(id)
	if old.refs == 1 {
		return id, false, nil
	}
	newID, newf, err := ft.allocLocked()
	if err != nil {
		return 0, false, err
	}
	copy(newf.data, old.data)
	old.refs--
	return newID, true, nil
}

// Read copies the contents of the frame at offset off into b. The caller
// must hold a reference on the frame.
func (ft *FrameTable) Read(id FrameID, b []byte, off uint64) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	f := ft.frameLocked(id)
	if off+uint64(len(b)) > hostarch.PageSize {
		panic(fmt.Sprintf("pgalloc: read of [%d, %d) overruns frame", off, off+uint64(len(b))))
	}
	copy(b, f.data[off:])
}

// Write copies b into the frame at offset off. The caller must hold a
// reference on the frame and must have established write permission via
// Unshare or an exclusively owned frame.
func (ft *FrameTable) Write(id FrameID, b []byte, off uint64) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	f := ft.frameLocked(id)
	if off+uint64(len(b)) > hostarch.PageSize {
		panic(fmt.Sprintf("pgalloc: write of [%d, %d) overruns frame", off, off+uint64(len(b))))
	}
	copy(f.data[off:], b)
}

// Allocated returns the number of live frames.
func (ft *FrameTable) Allocated() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.frames)
}
