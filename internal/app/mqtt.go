// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// publishFunc sends one payload to topic. It is the only thing the message
// handlers need from an MQTT client.
type publishFunc func(topic string, payload []byte) error

// connectMQTT connects to broker and logs the result under component.
func connectMQTT(broker, clientID, component string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("%s: MQTT connection lost: %v", component, err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("%s: MQTT connect to %s: %w", component, broker, token.Error())
	}
	log.Printf("%s: connected to MQTT broker at %s", component, broker)
	return client, nil
}

// subscribe subscribes handler to topic at QoS 0 and waits for the ack.
func subscribe(client mqtt.Client, topic, component string, handler mqtt.MessageHandler) error {
	token := client.Subscribe(topic, 0, handler)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("%s: subscribe %s: %w", component, topic, token.Error())
	}
	log.Printf("%s: subscribed to %s", component, topic)
	return nil
}

// mqttPublisher publishes with the given QoS and retain flag and waits for
// each publish to complete.
func mqttPublisher(client mqtt.Client, qos byte, retained bool) publishFunc {
	return func(topic string, payload []byte) error {
		token := client.Publish(topic, qos, retained, payload)
		token.Wait()
		return token.Error()
	}
}

func publishJSON(publish publishFunc, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return publish(topic, payload)
}

// waitForSignal blocks until Ctrl+C or SIGTERM.
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
