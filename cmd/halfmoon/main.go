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

// Binary halfmoon drives the simulated memory subsystem from the command
// line.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/halfmoon-os/halfmoon/pkg/config"
)

var (
	configPath = flag.String("config", "", "path to a TOML machine description; defaults apply if empty")
	debug      = flag.Bool("debug", false, "enable debug logging")
)

func loadConfig() config.Config {
	if *configPath == "" {
		return config.Default()
	}
	c, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("loading config: %v", err)
	}
	return c
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(infoCmd), "")
	subcommands.Register(new(demoCmd), "")

	flag.Parse()

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}
