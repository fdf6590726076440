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
	"sync/atomic"

	"github.com/halfmoon-os/halfmoon/pkg/mm"
)

// Process is one user process: an address space, a descriptor table, and
// the threads running in them.
type Process struct {
	k    *Kernel
	pid  int32
	name string
	as   *mm.AddressSpace
	fds  *FDTable

	// released flips once when the process's own address-space reference
	// is dropped.
	released atomic.Bool
}

// CreateProcess builds a process with the given executable image mapped.
// The image segments are eagerly populated, cannot be unmapped, and block
// overlapping mmaps.
//
// The returned process holds one reference on its address space; Release
// drops it. Threads hold their own references for their lifetimes.
func (k *Kernel) CreateProcess(name string, image []mm.ImageSegment) (*Process, error) {
	fds := NewFDTable()
	as := mm.NewAddressSpace(k.ft, fds)
	if err := as.MapImage(image); err != nil {
		as.DecUsers()
		return nil, err
	}
	p := &Process{
		k:    k,
		pid:  k.allocPID(),
		name: name,
		as:   as,
		fds:  fds,
	}
	k.log.WithFields(map[string]any{"pid": p.pid, "name": name}).Debug("process created")
	return p, nil
}

// PID returns the process id.
func (p *Process) PID() int32 { return p.pid }

// Kernel returns the owning kernel.
func (p *Process) Kernel() *Kernel { return p.k }

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// AddressSpace returns the process's address space, shared by all of its
// threads.
func (p *Process) AddressSpace() *mm.AddressSpace { return p.as }

// FDTable returns the process's descriptor table.
func (p *Process) FDTable() *FDTable { return p.fds }

// Fork creates a child process with a copy-on-write clone of the address
// space and a copy of the descriptor table sharing the parent's open
// files. The child runs nothing until a task is created in it.
func (p *Process) Fork() (*Process, error) {
	childFDs := p.fds.Fork()
	childAS, err := p.as.Fork()
	if err != nil {
		return nil, err
	}
	// The clone's backing store is the parent's table; repoint it at the
	// child's own copy.
	childAS.SetBackingStore(childFDs)
	child := &Process{
		k:    p.k,
		pid:  p.k.allocPID(),
		name: p.name,
		as:   childAS,
		fds:  childFDs,
	}
	p.k.log.WithFields(map[string]any{"pid": p.pid, "child": child.pid}).Debug("fork")
	return child, nil
}

// Release drops the process's own address-space reference. It is the
// process-exit path, normal or abnormal: once Release is called and every
// thread has terminated, all frames referenced by the address space are
// released. Release is idempotent.
func (p *Process) Release() {
	if p.released.CompareAndSwap(false, true) {
		p.as.DecUsers()
	}
}
