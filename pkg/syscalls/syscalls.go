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

// Package syscalls implements the syscall-shaped boundary of the memory
// subsystem. Every function returns a signed status: a non-negative result
// on success, or a negative errno-style value in -1..-255. Failures are
// local and recoverable; nothing here is fatal to the kernel.
package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/kernel"
	"github.com/halfmoon-os/halfmoon/pkg/kernelerr"
	"github.com/halfmoon-os/halfmoon/pkg/memmap"
)

// protToAccess decodes PROT_* bits into an AccessType.
func protToAccess(prot int32) hostarch.AccessType {
	return hostarch.AccessType{
		Read:    prot&unix.PROT_READ != 0,
		Write:   prot&unix.PROT_WRITE != 0,
		Execute: prot&unix.PROT_EXEC != 0,
	}
}

// Mmap establishes a mapping at exactly addr and returns it. fd == -1
// requests an anonymous mapping; fd values for the standard streams or
// with no open file fail with -EBADF.
func Mmap(t *kernel.Task, addr, length uint64, prot int32, fd int32, offset uint64) int64 {
	backing := memmap.Backing{Kind: memmap.Anonymous}
	if fd >= 0 {
		backing = memmap.Backing{Kind: memmap.FileBacked, FD: fd, Offset: offset}
	}
	va, err := t.AddressSpace().MMap(memmap.MMapOpts{
		Addr:    hostarch.Addr(addr),
		Length:  length,
		Perms:   protToAccess(prot),
		Backing: backing,
	})
	if err != nil {
		return kernelerr.Status(err)
	}
	return int64(va)
}

// Munmap removes the mapping based at exactly addr.
func Munmap(t *kernel.Task, addr uint64) int64 {
	return kernelerr.Status(t.AddressSpace().MUnmap(hostarch.Addr(addr)))
}

// Fork clones the calling task's process with copy-on-write and starts the
// child's initial thread at entry. The caller receives the child's pid;
// the child's entry receives arg, standing in for fork's zero return in
// the child continuation.
//
// The returned process is released when its last thread exits and the
// supervisor drops it; entry implementations conventionally end with
// t.Process().Release().
func Fork(t *kernel.Task, entry kernel.EntryFunc, arg uint64) (int64, *kernel.Process) {
	child, err := t.Process().Fork()
	if err != nil {
		return kernelerr.Status(err), nil
	}
	child.NewTask(t.Name(), entry, arg)
	return int64(child.PID()), child
}

// ThreadCreate starts a thread sharing the caller's address space, on a
// stack the caller mapped beforehand. Returns the new thread id, always
// positive.
func ThreadCreate(t *kernel.Task, name string, stackTop uint64, entry kernel.EntryFunc, arg uint64) int64 {
	tid, err := t.Process().ThreadCreate(name, hostarch.Addr(stackTop), entry, arg)
	if err != nil {
		return kernelerr.Status(err)
	}
	return int64(tid)
}

// ThreadJoin blocks until thread tid exits and stores its exit code in
// *exitCode.
func ThreadJoin(t *kernel.Task, tid int32, exitCode *int32) int64 {
	code, err := t.Process().Kernel().ThreadJoin(tid)
	if err != nil {
		return kernelerr.Status(err)
	}
	if exitCode != nil {
		*exitCode = code
	}
	return 0
}

// GetPhys is the debug introspection syscall used by test harnesses: mode
// 0 returns the physical address backing addr, mode 1 the raw
// permission-bit vector of the live PTE. Note that a permission vector
// with the execute-disable bit set is negative as an int64 but far outside
// the -1..-255 error range, matching the convention user programs test
// against.
func GetPhys(t *kernel.Task, addr, mode uint64) int64 {
	v, err := t.AddressSpace().GetPhys(hostarch.Addr(addr), mode)
	if err != nil {
		return kernelerr.Status(err)
	}
	return int64(v)
}
