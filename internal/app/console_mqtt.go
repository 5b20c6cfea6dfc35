// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/aoa_locator/internal/aoa"
	"github.com/relabs-tech/aoa_locator/internal/config"
)

// printReport writes one console line for a published position.
func printReport(w io.Writer, topic string, payload []byte) error {
	if len(payload) == 0 {
		_, err := fmt.Fprintf(w, "[GONE] %s\n", aoa.TagIDFromTopic(topic))
		return err
	}

	var r aoa.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("position unmarshal error: %w", err)
	}
	_, err := fmt.Fprintf(w,
		"[POS] %-22s X=%7.2f  Y=%7.2f  Z=%6.2f  dist=%6.2fm  az=%7.2f° el=%6.2f°  %s\n",
		r.Tag, r.X, r.Y, r.Z, r.HorizontalDistance, r.AzimuthDeg, r.ElevationDeg, r.Time,
	)
	return err
}

// RunConsoleMQTT prints every published tag position until interrupted.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, config.ClientID(cfg.MQTTClientIDConsole, "console"), "console")
	if err != nil {
		return err
	}

	if err := subscribe(client, cfg.PositionTopic("+"), "console", func(_ mqtt.Client, msg mqtt.Message) {
		if err := printReport(os.Stdout, msg.Topic(), msg.Payload()); err != nil {
			log.Printf("console: %v", err)
		}
	}); err != nil {
		client.Disconnect(250)
		return err
	}

	waitForSignal()

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
