// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/aoa_locator/internal/aoa"
	"github.com/relabs-tech/aoa_locator/internal/config"
)

// glitchEvery injects a flipped azimuth into the mock stream this often.
const glitchEvery = 50

type mockTag struct {
	id     string
	topic  string
	source aoa.Source
}

func newMockTags(cfg *config.Config) []mockTag {
	base := cfg.BaseStation()
	tags := make([]mockTag, 0, len(cfg.ProducerTags))
	for i, id := range cfg.ProducerTags {
		phase := 2 * math.Pi * float64(i) / float64(len(cfg.ProducerTags))
		tags = append(tags, mockTag{
			id:     id,
			topic:  cfg.AngleTopic(cfg.ProducerAnchor, id),
			source: aoa.NewMockSource(base, phase, glitchEvery),
		})
	}
	return tags
}

// publishTick publishes one reading for every mock tag.
func publishTick(tags []mockTag, publish publishFunc) error {
	for _, tag := range tags {
		r, err := tag.source.Next()
		if err != nil {
			return fmt.Errorf("mock source %s: %w", tag.id, err)
		}
		if err := publishJSON(publish, tag.topic, r); err != nil {
			return fmt.Errorf("publish %s: %w", tag.topic, err)
		}
	}
	return nil
}

// produceLoop publishes one tick per value on ticks until stop fires.
func produceLoop(tags []mockTag, publish publishFunc, ticks <-chan time.Time, stop <-chan os.Signal) {
	for {
		select {
		case <-stop:
			return
		case <-ticks:
			if err := publishTick(tags, publish); err != nil {
				log.Printf("producer: %v", err)
			}
		}
	}
}

// RunProducer publishes synthetic AoA readings for PRODUCER_TAGS so the
// locator can run without an anchor.
func RunProducer() error {
	cfg := config.Get()
	if len(cfg.ProducerTags) == 0 {
		return fmt.Errorf("producer: PRODUCER_TAGS is empty")
	}

	client, err := connectMQTT(cfg.MQTTBroker, config.ClientID(cfg.MQTTClientIDProducer, "producer"), "producer")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	tags := newMockTags(cfg)
	publish := mqttPublisher(client, 0, false)

	ticker := time.NewTicker(time.Duration(cfg.ProducerInterval) * time.Millisecond)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Printf("producer: publishing %d mock tags every %dms", len(tags), cfg.ProducerInterval)
	produceLoop(tags, publish, ticker.C, sigCh)
	log.Println("producer: shutting down")
	return nil
}
