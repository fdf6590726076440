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
)

// The Copy routines are the machine's loads and stores: user reads and
// writes go through them, faulting pages in on demand exactly as a
// hardware access would. A store to a shared copy-on-write page breaks the
// share here, via HandleFault.

// CopyIn copies len(dst) bytes from the user address addr into dst.
func (as *AddressSpace) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	return as.copyPages(addr, dst, false)
}

// CopyOut copies src into user memory at addr.
func (as *AddressSpace) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	return as.copyPages(addr, src, true)
}

func (as *AddressSpace) copyPages(addr hostarch.Addr, b []byte, write bool) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if err := checkUserRange(addr, uint64(len(b))); err != nil {
		return 0, err
	}

	at := hostarch.Read
	if write {
		at = hostarch.Write
	}

	done := 0
	for done < len(b) {
		cur := addr + hostarch.Addr(done)
		va := cur.RoundDown()
		n := int(hostarch.PageSize - cur.PageOffset())
		if n > len(b)-done {
			n = len(b) - done
		}
		if err := as.copyPage(va, cur.PageOffset(), b[done:done+n], at); err != nil {
			return done, err
		}
		done += n
	}
	return done, nil
}

// copyPage transfers one page's worth of data at [va+off, va+off+len(b)).
// The PTE check and the frame access happen under the address-space lock,
// so a concurrent fork cannot write-protect the page between the check and
// a store.
func (as *AddressSpace) copyPage(va hostarch.Addr, off uint64, b []byte, at hostarch.AccessType) error {
	for {
		as.mu.Lock()
		if e, ok := as.pt.Lookup(va); ok && (!at.Write || e.Writable) {
			// A present entry can always be read: a region unreadable by
			// its declared permissions never gets a translation installed.
			if at.Write {
				as.ft.Write(e.Frame, b, off)
			} else {
				as.ft.Read(e.Frame, b, off)
			}
			as.mu.Unlock()
			return nil
		}
		as.mu.Unlock()
		if err := as.HandleFault(va, at); err != nil {
			return err
		}
	}
}

// AccessOK reports whether the whole range may be accessed by the user,
// for write access if write is set. It consults region permissions only
// and populates nothing; syscalls use it to validate user buffers before
// touching them.
func (as *AddressSpace) AccessOK(ar hostarch.AddrRange, write bool) bool {
	if !ar.WellFormed() || ar.Length() == 0 {
		return false
	}
	if ar.Start == 0 || ar.End > hostarch.MaxUserAddr {
		return false
	}
	at := hostarch.Read
	if write {
		at = hostarch.ReadWrite
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	for va := ar.Start; va < ar.End; {
		r := as.regions.FindContaining(va)
		if r == nil || !r.Perms.SupersetOf(at) {
			return false
		}
		va = r.Range().End
	}
	return true
}

// CheckTotalAccess is a convenience wrapper for syscall argument
// validation: it resolves [addr, addr+length) and applies AccessOK.
func (as *AddressSpace) CheckTotalAccess(addr hostarch.Addr, length uint64, write bool) error {
	ar, ok := addr.ToRange(length)
	if !ok {
		return kernelerr.InvalidAddress
	}
	if !as.AccessOK(ar, write) {
		return kernelerr.InvalidAddress
	}
	return nil
}
