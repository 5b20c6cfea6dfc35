// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/relabs-tech/aoa_locator/internal/app"
	"github.com/relabs-tech/aoa_locator/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to KEY=VALUE config file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: switch_mode [-config file] <mode.json>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunSwitchMode(flag.Arg(0)); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
