// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/aoa_locator/internal/app"
	"github.com/relabs-tech/aoa_locator/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to KEY=VALUE config file")
	flag.Parse()

	log.Println("starting aoa-locator console (MQTT subscriber)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
