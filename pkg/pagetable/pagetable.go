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

// Package pagetable provides the per-address-space translation table.
//
// Entries carry the live permission bits, which deliberately diverge from
// the owning region's nominal permissions during copy-on-write: a page of a
// writable region is read-only while its frame is shared. Debug queries
// report the true current entry for exactly this reason.
package pagetable

import (
	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/pgalloc"
)

// Raw permission bits, in x86-64 PTE layout. These are the values reported
// by the debug permission-bit query.
const (
	// BitPresent is the present bit (P).
	BitPresent uint64 = 1 << 0

	// BitWritable is the read/write bit (RW).
	BitWritable uint64 = 1 << 1

	// BitUser is the user/supervisor bit (US).
	BitUser uint64 = 1 << 2

	// BitNoExecute is the execute-disable bit (XD).
	BitNoExecute uint64 = 1 << 63
)

// Entry is a page table entry for one virtual page.
type Entry struct {
	// Frame is the mapped physical frame.
	Frame pgalloc.FrameID

	// Present indicates that the translation is valid.
	Present bool

	// Writable reflects the current copy-on-write state, not the owning
	// region's declared permission.
	Writable bool

	// User indicates a user-accessible page.
	User bool

	// NoExecute is the negation of the owning region's execute permission
	// and never changes across copy-on-write.
	NoExecute bool
}

// Bits returns the raw permission-bit vector for the entry.
func (e Entry) Bits() uint64 {
	var bits uint64
	if e.Present {
		bits |= BitPresent
	}
	if e.Writable {
		bits |= BitWritable
	}
	if e.User {
		bits |= BitUser
	}
	if e.NoExecute {
		bits |= BitNoExecute
	}
	return bits
}

// PageTable maps page-aligned virtual addresses to Entries.
//
// PageTable is not synchronized; the owning address space serializes all
// access under its own mutex.
type PageTable struct {
	entries map[hostarch.Addr]Entry
}

// New returns an empty PageTable.
func New() *PageTable {
	return &PageTable{entries: make(map[hostarch.Addr]Entry)}
}

func checkAligned(va hostarch.Addr) {
	if !va.IsPageAligned() {
		panic("pagetable: unaligned virtual address")
	}
}

// Lookup returns the entry mapped at va.
func (pt *PageTable) Lookup(va hostarch.Addr) (Entry, bool) {
	checkAligned(va)
	e, ok := pt.entries[va]
	return e, ok
}

// Install sets the entry mapped at va, replacing any existing entry.
func (pt *PageTable) Install(va hostarch.Addr, e Entry) {
	checkAligned(va)
	pt.entries[va] = e
}

// Clear removes the entry mapped at va and returns it.
func (pt *PageTable) Clear(va hostarch.Addr) (Entry, bool) {
	checkAligned(va)
	e, ok := pt.entries[va]
	if ok {
		delete(pt.entries, va)
	}
	return e, ok
}

// SetWritable updates the writable bit of the entry mapped at va. It
// returns false if no entry is present.
func (pt *PageTable) SetWritable(va hostarch.Addr, writable bool) bool {
	checkAligned(va)
	e, ok := pt.entries[va]
	if !ok {
		return false
	}
	e.Writable = writable
	pt.entries[va] = e
	return true
}

// ForEach calls f for every present entry. Iteration order is unspecified.
// f must not mutate the table; collect and apply instead.
func (pt *PageTable) ForEach(f func(va hostarch.Addr, e Entry)) {
	for va, e := range pt.entries {
		f(va, e)
	}
}

// Len returns the number of present entries.
func (pt *PageTable) Len() int {
	return len(pt.entries)
}
