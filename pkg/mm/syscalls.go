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
)

// MMap establishes a memory mapping at exactly opts.Addr; the system does
// not choose an alternate address.
//
// Pages are populated on demand: the mapping itself installs no
// translations, and the first touch of each page faults into HandleFault.
func (as *AddressSpace) MMap(opts memmap.MMapOpts) (hostarch.Addr, error) {
	if opts.Length == 0 {
		return 0, kernelerr.InvalidArgument
	}
	length, ok := hostarch.Addr(opts.Length).RoundUp()
	if !ok {
		return 0, kernelerr.InvalidArgument
	}
	opts.Length = uint64(length)

	if opts.Addr == 0 || !opts.Addr.IsPageAligned() {
		return 0, kernelerr.InvalidAddress
	}
	if err := checkUserRange(opts.Addr, opts.Length); err != nil {
		return 0, err
	}

	// PROT_NONE-equivalent requests are rejected: every mapping must be at
	// least readable.
	if !opts.Perms.Read {
		return 0, kernelerr.PermissionDenied
	}

	switch opts.Backing.Kind {
	case memmap.Anonymous:
		opts.Backing.FD = -1
		opts.Backing.Offset = 0
	case memmap.FileBacked:
		if opts.Backing.FD <= 2 {
			// The standard streams are never mappable, and negative fds
			// should have been routed to an anonymous mapping.
			return 0, kernelerr.BadDescriptor
		}
		if !as.backing.MappableFD(opts.Backing.FD) {
			return 0, kernelerr.BadDescriptor
		}
		if opts.Backing.Offset%hostarch.PageSize != 0 {
			return 0, kernelerr.InvalidArgument
		}
	}

	r := &memmap.Region{
		Base:    opts.Addr,
		Length:  opts.Length,
		Perms:   opts.Perms,
		Backing: opts.Backing,
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	if err := as.regions.Insert(r); err != nil {
		return 0, err
	}
	return opts.Addr, nil
}

// MUnmap removes the mapping whose base address is exactly addr, releasing
// every frame backing its pages. An addr strictly inside a region fails;
// there is no partial unmap. Subsequent access to any address in the former
// region faults.
func (as *AddressSpace) MUnmap(addr hostarch.Addr) error {
	if err := checkUserRange(addr, hostarch.PageSize); err != nil {
		return err
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	r, err := as.regions.RemoveExact(addr)
	if err != nil {
		return err
	}
	for va := r.Base; va < r.Base+hostarch.Addr(r.Length); va += hostarch.PageSize {
		if e, ok := as.pt.Clear(va); ok {
			as.ft.DecRef(e.Frame)
		}
	}
	return nil
}
