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

// Package kernel ties the memory subsystem to processes and threads: it
// owns the frame table, creates processes with executable images, forks
// them with copy-on-write, and runs threads that share one address space.
package kernel

import (
	"github.com/sirupsen/logrus"

	"github.com/halfmoon-os/halfmoon/pkg/kernelerr"
	"github.com/halfmoon-os/halfmoon/pkg/pgalloc"
	"github.com/halfmoon-os/halfmoon/pkg/sync"
)

// DefaultMemoryFrames is the frame-table capacity used when Options does
// not specify one.
const DefaultMemoryFrames = 4096

// Options configures a Kernel.
type Options struct {
	// MemoryFrames is the number of allocatable physical frames.
	MemoryFrames int

	// Log receives kernel debug logging. Defaults to the standard logger.
	Log *logrus.Logger
}

// Kernel is the top-level machine state.
type Kernel struct {
	ft  *pgalloc.FrameTable
	log *logrus.Entry

	mu      sync.Mutex
	nextPID int32
	nextTID int32
	tasks   map[int32]*Task
}

// New creates a Kernel.
func New(opts Options) *Kernel {
	frames := opts.MemoryFrames
	if frames <= 0 {
		frames = DefaultMemoryFrames
	}
	logger := opts.Log
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Kernel{
		ft:    pgalloc.NewFrameTable(frames),
		log:   logger.WithField("component", "kernel"),
		tasks: make(map[int32]*Task),
	}
}

// FrameTable returns the machine's frame table.
func (k *Kernel) FrameTable() *pgalloc.FrameTable {
	return k.ft
}

func (k *Kernel) allocPID() int32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.nextPID++
	return k.nextPID
}

func (k *Kernel) registerTask(t *Task) int32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.nextTID++
	t.tid = k.nextTID
	k.tasks[t.tid] = t
	return t.tid
}

// ThreadJoin blocks until the thread identified by tid terminates and
// returns its exit code. A tid that was never created, or that has already
// been joined, fails with kernelerr.NoSuchThread.
func (k *Kernel) ThreadJoin(tid int32) (int32, error) {
	k.mu.Lock()
	t, ok := k.tasks[tid]
	k.mu.Unlock()
	if !ok {
		return 0, kernelerr.NoSuchThread
	}

	<-t.done

	// First joiner claims the exit code; a concurrent duplicate join loses.
	k.mu.Lock()
	_, ok = k.tasks[tid]
	if ok {
		delete(k.tasks, tid)
	}
	k.mu.Unlock()
	if !ok {
		return 0, kernelerr.NoSuchThread
	}
	return t.exitCode, nil
}
