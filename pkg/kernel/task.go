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
	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/kernelerr"
	"github.com/halfmoon-os/halfmoon/pkg/mm"
)

// EntryFunc is a thread body. It receives the running task and the
// caller-supplied argument and returns the thread's exit code.
type EntryFunc func(t *Task, arg uint64) int32

// Task is one schedulable thread. Sibling tasks of a process execute
// within the same AddressSpace object: a write by one is immediately
// visible to the others, with no copy-on-write trap between them.
type Task struct {
	k    *Kernel
	p    *Process
	tid  int32
	name string

	// exitCode is written exactly once, before done is closed.
	exitCode int32
	done     chan struct{}
}

// TID returns the thread id.
func (t *Task) TID() int32 { return t.tid }

// Name returns the thread name.
func (t *Task) Name() string { return t.name }

// Process returns the owning process.
func (t *Task) Process() *Process { return t.p }

// AddressSpace returns the process's shared address space.
func (t *Task) AddressSpace() *mm.AddressSpace { return t.p.as }

// NewTask starts the process's initial thread. The bootstrap thread runs
// on a kernel-provided context, so no user stack is validated.
func (p *Process) NewTask(name string, entry EntryFunc, arg uint64) *Task {
	return p.startTask(name, entry, arg)
}

// ThreadCreate starts an additional thread in the process, sharing the
// creator's address space by reference. The caller provides the stack: top
// of a previously mmap'd writable range. The manager does not allocate
// stacks.
func (p *Process) ThreadCreate(name string, stackTop hostarch.Addr, entry EntryFunc, arg uint64) (int32, error) {
	if stackTop < 8 || stackTop > hostarch.MaxUserAddr {
		return 0, kernelerr.InvalidAddress
	}
	// The first push must land in mapped writable memory.
	if !p.as.AccessOK(hostarch.AddrRange{Start: stackTop - 8, End: stackTop}, true) {
		return 0, kernelerr.InvalidAddress
	}
	t := p.startTask(name, entry, arg)
	return t.tid, nil
}

func (p *Process) startTask(name string, entry EntryFunc, arg uint64) *Task {
	t := &Task{
		k:    p.k,
		p:    p,
		name: name,
		done: make(chan struct{}),
	}
	p.as.IncUsers()
	p.k.registerTask(t)
	p.k.log.WithFields(map[string]any{"pid": p.pid, "tid": t.tid, "name": name}).Debug("thread start")

	go func() {
		t.exitCode = entry(t, arg)
		p.as.DecUsers()
		close(t.done)
	}()
	return t
}

// Join waits for the task and returns its exit code via the kernel's join
// path.
func (t *Task) Join() (int32, error) {
	return t.k.ThreadJoin(t.tid)
}
