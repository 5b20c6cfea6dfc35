// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/relabs-tech/aoa_locator/internal/config"
)

// loadModeDocument reads a JSON file and returns it compacted.
func loadModeDocument(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("compact %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// RunSwitchMode publishes the JSON document at path to TOPIC_CONFIG,
// switching the anchor's operating mode.
func RunSwitchMode(path string) error {
	cfg := config.Get()

	payload, err := loadModeDocument(path)
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg.MQTTBroker, config.ClientID(cfg.MQTTClientIDSwitch, "switch"), "switch")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := mqttPublisher(client, 0, false)(cfg.TopicConfig, payload); err != nil {
		return fmt.Errorf("switch: publish to %s: %w", cfg.TopicConfig, err)
	}
	log.Printf("switch: published %s to %s", path, cfg.TopicConfig)
	return nil
}
