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

package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/kernel"
	"github.com/halfmoon-os/halfmoon/pkg/mm"
	"github.com/halfmoon-os/halfmoon/pkg/syscalls"
)

// demoCmd implements subcommands.Command for the "demo" command: it runs a
// fork/copy-on-write scenario and logs the observable page state at each
// step.
type demoCmd struct{}

// Name implements subcommands.Command.Name.
func (*demoCmd) Name() string {
	return "demo"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*demoCmd) Synopsis() string {
	return "run a fork/copy-on-write walkthrough"
}

// Usage implements subcommands.Command.Usage.
func (*demoCmd) Usage() string {
	return `demo - map a page, fork, write from the child, and show how the
two processes' translations diverge.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*demoCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*demoCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	c := loadConfig()
	k := kernel.New(kernel.Options{MemoryFrames: c.Machine.MemoryFrames})

	p, err := k.CreateProcess("demo", []mm.ImageSegment{
		{Base: c.Layout.ImageBase.Addr(), Data: []byte{0xc3}, Perms: hostarch.ReadExecute},
	})
	if err != nil {
		logrus.Errorf("creating process: %v", err)
		return subcommands.ExitFailure
	}
	defer p.Release()

	code, err := p.NewTask("main", func(t *kernel.Task, _ uint64) int32 {
		const base = uint64(0xA000)
		if rv := syscalls.Mmap(t, base, hostarch.PageSize, unix.PROT_READ|unix.PROT_WRITE, -1, 0); rv < 0 {
			logrus.Errorf("mmap: %d", rv)
			return 1
		}
		if _, err := t.AddressSpace().CopyOut(hostarch.Addr(base), []byte("before fork")); err != nil {
			logrus.Errorf("populate: %v", err)
			return 1
		}
		logrus.WithField("pa", syscalls.GetPhys(t, base, 0)).Info("pre-fork")

		childDone := make(chan struct{})
		pid, child := syscalls.Fork(t, func(ct *kernel.Task, _ uint64) int32 {
			defer close(childDone)
			logrus.WithFields(logrus.Fields{
				"pa":   syscalls.GetPhys(ct, base, 0),
				"bits": syscalls.GetPhys(ct, base, 1),
			}).Info("child before write (shared, read-only)")
			if _, err := ct.AddressSpace().CopyOut(hostarch.Addr(base), []byte("child wrote")); err != nil {
				logrus.Errorf("child write: %v", err)
				return 1
			}
			logrus.WithFields(logrus.Fields{
				"pa":   syscalls.GetPhys(ct, base, 0),
				"bits": syscalls.GetPhys(ct, base, 1),
			}).Info("child after write (private copy)")
			return 0
		}, 0)
		if pid < 0 {
			logrus.Errorf("fork: %d", pid)
			return 1
		}
		defer child.Release()

		<-childDone
		buf := make([]byte, 11)
		if _, err := t.AddressSpace().CopyIn(hostarch.Addr(base), buf); err != nil {
			logrus.Errorf("read back: %v", err)
			return 1
		}
		logrus.WithFields(logrus.Fields{
			"pa":   syscalls.GetPhys(t, base, 0),
			"data": string(buf),
		}).Info("parent after child write (unchanged)")
		return 0
	}, 0).Join()

	if err != nil || code != 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
