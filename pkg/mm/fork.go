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
	"github.com/mohae/deepcopy"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/memmap"
	"github.com/halfmoon-os/halfmoon/pkg/pagetable"
)

// Fork clones the address space for a child process.
//
// Region metadata is deep-copied. Every present translation in the parent
// is installed in the child pointing at the same frame with an incremented
// reference count, and the writable bit is forced off in both parent and
// child so that the next write by either side traps. The no-execute bit is
// carried over untouched: an executable page stays executable in both
// processes throughout.
//
// Pages of read-only regions were never writable, so they stay shared
// permanently and are never copied.
func (as *AddressSpace) Fork() (*AddressSpace, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	child := NewAddressSpace(as.ft, as.backing)

	var err error
	as.regions.ForEach(func(r *memmap.Region) bool {
		cr := deepcopy.Copy(r).(*memmap.Region)
		if err = child.regions.Insert(cr); err != nil {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	type update struct {
		va hostarch.Addr
		e  pagetable.Entry
	}
	var demoted []hostarch.Addr
	var shared []update
	as.pt.ForEach(func(va hostarch.Addr, e pagetable.Entry) {
		if e.Writable {
			demoted = append(demoted, va)
		}
		ce := e
		ce.Writable = false
		shared = append(shared, update{va, ce})
	})

	for _, va := range demoted {
		as.pt.SetWritable(va, false)
	}
	for _, u := range shared {
		as.ft.IncRef(u.e.Frame)
		child.pt.Install(u.va, u.e)
	}
	return child, nil
}
