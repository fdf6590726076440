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

// Package mm provides the per-process address space: region bookkeeping,
// mmap/munmap, demand paging, and the copy-on-write fork protocol.
//
// An AddressSpace is shared by reference among the threads of one process
// and deep-cloned with shared frames at fork; the two ownership modes are
// never mixed implicitly.
//
// Lock order: AddressSpace.mu precedes FrameTable's internal mutex. The
// address-space lock is never held across a BackingStore read.
package mm

import (
	"sync/atomic"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/kernelerr"
	"github.com/halfmoon-os/halfmoon/pkg/memmap"
	"github.com/halfmoon-os/halfmoon/pkg/pagetable"
	"github.com/halfmoon-os/halfmoon/pkg/pgalloc"
	"github.com/halfmoon-os/halfmoon/pkg/sync"
)

// AddressSpace is the memory state of one process.
type AddressSpace struct {
	// users is the number of thread references to this AddressSpace. When
	// it reaches zero the space is torn down and every referenced frame
	// released.
	users atomic.Int64

	// mu serializes all region and page-table mutations.
	mu sync.Mutex

	// regions is the ordered set of mapped regions, image segments
	// included.
	regions *memmap.RegionSet

	// pt holds the live translations.
	pt *pagetable.PageTable

	// ft is the machine's frame table.
	ft *pgalloc.FrameTable

	// backing populates file-backed pages.
	backing memmap.BackingStore
}

// NewAddressSpace returns an empty AddressSpace with a user count of 1.
func NewAddressSpace(ft *pgalloc.FrameTable, backing memmap.BackingStore) *AddressSpace {
	as := &AddressSpace{
		regions: memmap.NewRegionSet(),
		pt:      pagetable.New(),
		ft:      ft,
		backing: backing,
	}
	as.users.Store(1)
	return as
}

// IncUsers adds a thread reference.
func (as *AddressSpace) IncUsers() {
	if as.users.Add(1) <= 1 {
		panic("mm: IncUsers on a dead AddressSpace")
	}
}

// DecUsers drops a thread reference, tearing the space down when the last
// reference is released. Teardown walks every PTE and drops its frame
// reference; this runs on both normal exit and abnormal termination.
func (as *AddressSpace) DecUsers() {
	n := as.users.Add(-1)
	if n < 0 {
		panic("mm: DecUsers without a matching reference")
	}
	if n > 0 {
		return
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	var vas []hostarch.Addr
	as.pt.ForEach(func(va hostarch.Addr, _ pagetable.Entry) {
		vas = append(vas, va)
	})
	for _, va := range vas {
		e, _ := as.pt.Clear(va)
		as.ft.DecRef(e.Frame)
	}
}

// Users returns the current thread reference count.
func (as *AddressSpace) Users() int64 {
	return as.users.Load()
}

// ImageSegment describes one segment of a process's executable image.
type ImageSegment struct {
	// Base is the segment's page-aligned load address.
	Base hostarch.Addr

	// Data is the segment's initial contents. The segment extends to
	// len(Data) rounded up to the page size, zero-filled.
	Data []byte

	// Perms is the segment's protection, typically r-x for text and rw-
	// for data.
	Perms hostarch.AccessType
}

// MapImage installs the process's executable image. Image segments are
// populated eagerly, participate in copy-on-write across fork, cannot be
// unmapped, and block any overlapping mmap.
func (as *AddressSpace) MapImage(segments []ImageSegment) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, seg := range segments {
		length := uint64(hostarch.Addr(len(seg.Data)).MustRoundUp())
		r := &memmap.Region{
			Base:    seg.Base,
			Length:  length,
			Perms:   seg.Perms,
			Backing: memmap.Backing{Kind: memmap.Anonymous},
			Image:   true,
		}
		if err := as.regions.Insert(r); err != nil {
			return err
		}
		for off := uint64(0); off < length; off += hostarch.PageSize {
			var content []byte
			if off < uint64(len(seg.Data)) {
				end := off + hostarch.PageSize
				if end > uint64(len(seg.Data)) {
					end = uint64(len(seg.Data))
				}
				content = seg.Data[off:end]
			}
			fid, err := as.ft.AllocateFill(content)
			if err != nil {
				return err
			}
			as.pt.Install(seg.Base+hostarch.Addr(off), pagetable.Entry{
				Frame:     fid,
				Present:   true,
				Writable:  seg.Perms.Write,
				User:      true,
				NoExecute: !seg.Perms.Execute,
			})
		}
	}
	return nil
}

// SetBackingStore repoints the backing-store collaborator. Fork leaves the
// child pointing at the parent's store; the surrounding kernel swaps in the
// child's own descriptor table before the child runs.
func (as *AddressSpace) SetBackingStore(bs memmap.BackingStore) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.backing = bs
}

// FindRegion returns a copy of the region containing addr.
func (as *AddressSpace) FindRegion(addr hostarch.Addr) (memmap.Region, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	r := as.regions.FindContaining(addr)
	if r == nil {
		return memmap.Region{}, false
	}
	return *r, true
}

// checkUserRange validates that [addr, addr+length) is a well-formed
// user-half range.
func checkUserRange(addr hostarch.Addr, length uint64) error {
	if addr == 0 {
		return kernelerr.InvalidAddress
	}
	end, ok := addr.AddLength(length)
	if !ok || addr >= hostarch.MaxUserAddr || end > hostarch.MaxUserAddr {
		return kernelerr.InvalidAddress
	}
	return nil
}
