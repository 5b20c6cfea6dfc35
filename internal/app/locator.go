// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/aoa_locator/internal/aoa"
	"github.com/relabs-tech/aoa_locator/internal/config"
	"github.com/relabs-tech/aoa_locator/internal/locator"
)

// angleHandler turns angle messages into published positions.
type angleHandler struct {
	loc           *locator.Locator
	publish       publishFunc
	positionTopic func(tagID string) string
	logRejections bool
	now           func() time.Time
}

// handle processes one angle message and publishes the position if accepted.
func (h *angleHandler) handle(topic string, payload []byte) locator.Result {
	now := h.now()
	res := h.loc.HandleMessage(topic, payload, now)

	for _, id := range res.Evicted {
		h.forget(id, "tag limit reached, evicted")
	}

	switch res.Outcome {
	case locator.Accepted:
		p := res.Position.Point
		log.Printf("locator: %s Tag @ X=%.2f, Y=%.2f, Z=%.2f | Dist XY = %.2fm",
			res.TagID, p.X, p.Y, p.Z, res.Position.HorizontalDistance)

		report := aoa.NewReport(res.TagID, res.Reading, res.Position, now)
		if err := publishJSON(h.publish, h.positionTopic(res.TagID), report); err != nil {
			log.Printf("locator: publish position for %s: %v", res.TagID, err)
		}

	case locator.JumpRejected:
		if h.logRejections {
			log.Printf("locator: %s azimuth jump Δ=%.1f° (%s), reading dropped",
				res.TagID, res.Decision.Delta, res.Decision.To)
		}

	case locator.FlatDirection:
		if h.logRejections {
			log.Printf("locator: %s direction too flat, skipped", res.TagID)
		}

	case locator.Malformed:
		log.Printf("locator: %s bad payload on %s: %v", res.TagID, topic, res.Err)
	}

	if res.Decision.Created {
		log.Printf("locator: %s first azimuth %.2f°, waiting for a stable step", res.TagID, res.Reading.AzimuthDeg)
	} else if res.Decision.Accepted && res.Decision.From != res.Decision.To {
		log.Printf("locator: %s azimuth stable (Δ=%.1f°), jump checks active", res.TagID, res.Decision.Delta)
	}

	return res
}

// forget clears the retained position of a tag the locator no longer tracks,
// so late subscribers do not see it.
func (h *angleHandler) forget(tagID, reason string) {
	log.Printf("locator: %s %s", tagID, reason)
	if err := h.publish(h.positionTopic(tagID), nil); err != nil {
		log.Printf("locator: clear retained position for %s: %v", tagID, err)
	}
}

// RunLocator subscribes to the anchor's angle topic, solves tag positions
// and publishes every accepted position to <TOPIC_POSITION_PREFIX>/<tag>.
func RunLocator() error {
	cfg := config.Get()

	lc := cfg.LocatorConfig()
	loc := locator.New(lc)
	base := lc.Base
	log.Printf("locator: base station at (%.2f, %.2f, %.2f), orientation (%.1f, %.1f, %.1f), tag height %.2f, max jump %.1f°",
		base.Position.X, base.Position.Y, base.Position.Z,
		base.Orientation.XDeg, base.Orientation.YDeg, base.Orientation.ZDeg,
		base.TagHeight, loc.Config().MaxAzimuthJump)

	client, err := connectMQTT(cfg.MQTTBroker, config.ClientID(cfg.MQTTClientIDLocator, "locator"), "locator")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	h := &angleHandler{
		loc:           loc,
		publish:       mqttPublisher(client, 0, true),
		positionTopic: cfg.PositionTopic,
		logRejections: cfg.LogRejections,
		now:           time.Now,
	}

	// paho delivers messages for one subscription in order, so readings of
	// a tag are processed one at a time.
	if err := subscribe(client, cfg.TopicAngle, "locator", func(_ mqtt.Client, msg mqtt.Message) {
		h.handle(msg.Topic(), msg.Payload())
	}); err != nil {
		return err
	}

	done := make(chan struct{})
	if lc.IdleTimeout > 0 {
		go pruneLoop(h, time.Duration(cfg.TagPruneInterval)*time.Second, done)
	}

	waitForSignal()
	close(done)
	log.Println("locator: shutting down")
	return nil
}

// pruneLoop evicts idle tags until done is closed.
func pruneLoop(h *angleHandler, every time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case t := <-ticker.C:
			for _, id := range h.loc.Prune(t) {
				h.forget(id, "idle, state dropped")
			}
		}
	}
}
