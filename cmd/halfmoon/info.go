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
	"fmt"

	"github.com/google/subcommands"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
)

// infoCmd implements subcommands.Command for the "info" command.
type infoCmd struct{}

// Name implements subcommands.Command.Name.
func (*infoCmd) Name() string {
	return "info"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*infoCmd) Synopsis() string {
	return "print the machine description and address-space layout"
}

// Usage implements subcommands.Command.Usage.
func (*infoCmd) Usage() string {
	return `info - print the machine description and address-space layout
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*infoCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*infoCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	c := loadConfig()
	fmt.Printf("page size:      %#x\n", hostarch.PageSize)
	fmt.Printf("user half:      [0x1000, %v)\n", hostarch.MaxUserAddr)
	fmt.Printf("kernel base:    %v\n", hostarch.KernelBase)
	fmt.Printf("memory frames:  %d (%d MiB)\n", c.Machine.MemoryFrames, c.Machine.MemoryFrames*hostarch.PageSize/(1<<20))
	fmt.Printf("image base:     %v\n", c.Layout.ImageBase.Addr())
	fmt.Printf("stack:          %v + %d pages\n", c.Layout.StackBase.Addr(), c.Layout.StackPages)
	return subcommands.ExitSuccess
}
