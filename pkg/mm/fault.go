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

package mm

import (
	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/kernelerr"
	"github.com/halfmoon-os/halfmoon/pkg/memmap"
	"github.com/halfmoon-os/halfmoon/pkg/pagetable"
)

// HandleFault resolves a page fault at addr for the given access.
//
// A fault on an unpopulated page of a live region installs a fresh
// translation (zero-filled for anonymous regions, read from the backing
// file otherwise). A write fault on a present-but-read-only page of a
// writable region breaks copy-on-write. Faults outside any region, or
// beyond the region's permissions, return an error for the surrounding
// kernel to turn into the faulting task's termination.
func (as *AddressSpace) HandleFault(addr hostarch.Addr, at hostarch.AccessType) error {
	if !addr.InUserHalf() {
		return kernelerr.InvalidAddress
	}
	va := addr.RoundDown()

	for {
		as.mu.Lock()
		r := as.regions.FindContaining(addr)
		if r == nil {
			as.mu.Unlock()
			return kernelerr.InvalidAddress
		}
		if !r.Perms.SupersetOf(at) {
			as.mu.Unlock()
			return kernelerr.PermissionDenied
		}

		e, ok := as.pt.Lookup(va)
		if !ok {
			if r.Backing.Kind == memmap.FileBacked {
				done, err := as.populateFileLocked(va, r)
				if err != nil {
					return err
				}
				if done {
					return nil
				}
				// Raced with an unmap or a concurrent populate; start over.
				continue
			}
			fid, err := as.ft.Allocate()
			if err != nil {
				as.mu.Unlock()
				return err
			}
			as.pt.Install(va, pagetable.Entry{
				Frame:     fid,
				Present:   true,
				Writable:  r.Perms.Write,
				User:      true,
				NoExecute: !r.Perms.Execute,
			})
			as.mu.Unlock()
			return nil
		}

		if at.Write && !e.Writable {
			// Copy-on-write break. The region's write permission was
			// verified above; the unshare decision, content copy, and old
			// reference drop are one frame-table critical section.
			fid, _, err := as.ft.Unshare(e.Frame)
			if err != nil {
				as.mu.Unlock()
				return err
			}
			e.Frame = fid
			e.Writable = true
			as.pt.Install(va, e)
			as.mu.Unlock()
			return nil
		}

		// Spurious fault: another thread resolved it first.
		as.mu.Unlock()
		return nil
	}
}

// populateFileLocked installs a translation for the unpopulated file-backed
// page at va. It is called with as.mu held and always releases it: the
// backing read happens with the lock dropped, so a slow read cannot block
// other threads' unrelated faults.
//
// done is false if the world changed while the lock was dropped and the
// caller must re-evaluate the fault.
func (as *AddressSpace) populateFileLocked(va hostarch.Addr, r *memmap.Region) (done bool, err error) {
	base := r.Base
	fd := r.Backing.FD
	off := r.Backing.Offset + uint64(va-r.Base)
	as.mu.Unlock()

	buf := make([]byte, hostarch.PageSize)
	if err := as.backing.ReadPage(fd, off, buf); err != nil {
		return false, err
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	cur := as.regions.FindContaining(va)
	if cur == nil || cur.Base != base {
		// The region was unmapped (and possibly replaced) during the read.
		return false, nil
	}
	if _, ok := as.pt.Lookup(va); ok {
		// Another thread populated the page first.
		return false, nil
	}
	fid, err := as.ft.AllocateFill(buf)
	if err != nil {
		return false, err
	}
	as.pt.Install(va, pagetable.Entry{
		Frame:     fid,
		Present:   true,
		Writable:  cur.Perms.Write,
		User:      true,
		NoExecute: !cur.Perms.Execute,
	})
	return true, nil
}
