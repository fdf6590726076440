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

// Package memmap defines semantics for memory mappings: the Region type,
// its backing variants, and the options accepted by mmap.
package memmap

import (
	"fmt"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
)

// BackingKind discriminates a Region's backing variant.
type BackingKind int

const (
	// Anonymous regions are zero-filled on first touch.
	Anonymous BackingKind = iota

	// FileBacked regions are populated from an open file.
	FileBacked
)

// Backing describes what populates a region's pages.
type Backing struct {
	// Kind is the backing variant.
	Kind BackingKind

	// FD is the backing file descriptor. Meaningful only when Kind is
	// FileBacked.
	FD int32

	// Offset is the file offset corresponding to the region's base.
	// Meaningful only when Kind is FileBacked.
	Offset uint64
}

// String implements fmt.Stringer.String.
func (b Backing) String() string {
	if b.Kind == Anonymous {
		return "anon"
	}
	return fmt.Sprintf("fd %d offset %#x", b.FD, b.Offset)
}

// Region is a contiguous, page-aligned range of virtual memory with uniform
// protection and backing. It is the unit of mmap and munmap, owned
// exclusively by its address space.
type Region struct {
	// Base is the region's first address. Page-aligned, never zero.
	Base hostarch.Addr

	// Length is the region's extent in bytes, a multiple of the page size.
	Length uint64

	// Perms is the region's declared protection. Under copy-on-write the
	// live PTE permissions may be more restrictive.
	Perms hostarch.AccessType

	// Backing is what populates the region's pages.
	Backing Backing

	// Image marks a segment of the process's executable image. Image
	// regions are installed at process creation and cannot be unmapped.
	Image bool
}

// Range returns the address range spanned by the region.
func (r *Region) Range() hostarch.AddrRange {
	return hostarch.AddrRange{Start: r.Base, End: r.Base + hostarch.Addr(r.Length)}
}

// String implements fmt.Stringer.String.
func (r *Region) String() string {
	return fmt.Sprintf("%v %v %v", r.Range(), r.Perms, r.Backing)
}

// MMapOpts specifies a request to create a memory mapping. The system does
// not choose addresses; Addr is always required and returned verbatim on
// success.
type MMapOpts struct {
	// Addr is the requested base address.
	Addr hostarch.Addr

	// Length is the requested length in bytes.
	Length uint64

	// Perms is the requested protection. At least one access type is
	// required.
	Perms hostarch.AccessType

	// Backing selects anonymous or file backing.
	Backing Backing
}

// BackingStore is the file-system collaborator that populates file-backed
// pages. The address-space lock is never held across ReadPage, so a slow
// backing read cannot block unrelated faults.
type BackingStore interface {
	// ReadPage fills b with the file's contents at offset off, zero-filling
	// any portion past end-of-file.
	ReadPage(fd int32, off uint64, b []byte) error

	// MappableFD reports whether fd refers to an open file that may back a
	// mapping. The standard streams are never mappable.
	MappableFD(fd int32) bool
}
