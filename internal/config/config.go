// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/aoa_locator/internal/aoa"
	"github.com/relabs-tech/aoa_locator/internal/geometry"
	"github.com/relabs-tech/aoa_locator/internal/locator"
)

// DefaultPath is where the mains look for the configuration file.
const DefaultPath = "locator_config.txt"

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDLocator  string
	MQTTClientIDWeb      string
	MQTTClientIDConsole  string
	MQTTClientIDProducer string
	MQTTClientIDSwitch   string

	// Topics
	TopicAngle          string // subscription filter, tag id is the last segment
	TopicPositionPrefix string // accepted positions go to <prefix>/<tag>
	TopicConfig         string // anchor mode switch

	// Base station
	BasePositionX    float64 // meters
	BasePositionY    float64
	BasePositionZ    float64
	BaseOrientationX float64 // degrees, applied X then Y then Z
	BaseOrientationY float64
	BaseOrientationZ float64
	TagHeight        float64 // world Z of every tag

	// Filtering
	MaxAzimuthJump float64 // degrees

	// Tag bookkeeping
	TagMaxCount      int
	TagIdleTimeout   int // seconds, 0 disables
	TagPruneInterval int // seconds

	// Web Server
	WebServerPort int

	// Logging
	LogRejections bool

	// Mock producer
	ProducerInterval int // milliseconds
	ProducerTags     []string
	ProducerAnchor   string
}

// Package-level state for the process-wide configuration. InitGlobal sets it
// once; Get reads it under a read lock.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns a Config with every optional value filled in.
func Defaults() *Config {
	return &Config{
		TopicAngle:          "silabs/aoa/angle/ble-pd-0CAE5F9301A8/+",
		TopicPositionPrefix: "aoa/position",
		TopicConfig:         "silabs/aoa/config/ble-pd-0CAE5F9301A8",

		BasePositionZ:    1.4,
		BaseOrientationX: 90,
		BaseOrientationZ: 180,

		MaxAzimuthJump: 30,

		TagMaxCount:      locator.DefaultMaxTags,
		TagIdleTimeout:   600,
		TagPruneInterval: 30,

		WebServerPort: 8080,
		LogRejections: true,

		ProducerInterval: 100,
		ProducerTags:     []string{"tag-1"},
		ProducerAnchor:   "ble-pd-0CAE5F9301A8",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be finite, got %q", key, value)
	}
	return f, nil
}

func parseNonNegInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %d", key, n)
	}
	return n, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_LOCATOR":
		c.MQTTClientIDLocator = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_SWITCH":
		c.MQTTClientIDSwitch = value

	// Topics
	case "TOPIC_ANGLE":
		c.TopicAngle = value
	case "TOPIC_POSITION_PREFIX":
		c.TopicPositionPrefix = strings.TrimSuffix(value, "/")
	case "TOPIC_CONFIG":
		c.TopicConfig = value

	// Base station
	case "BASE_POSITION_X":
		c.BasePositionX, err = parseFloat(key, value)
	case "BASE_POSITION_Y":
		c.BasePositionY, err = parseFloat(key, value)
	case "BASE_POSITION_Z":
		c.BasePositionZ, err = parseFloat(key, value)
	case "BASE_ORIENTATION_X":
		c.BaseOrientationX, err = parseFloat(key, value)
	case "BASE_ORIENTATION_Y":
		c.BaseOrientationY, err = parseFloat(key, value)
	case "BASE_ORIENTATION_Z":
		c.BaseOrientationZ, err = parseFloat(key, value)
	case "TAG_HEIGHT":
		c.TagHeight, err = parseFloat(key, value)

	// Filtering
	case "MAX_AZIMUTH_JUMP":
		jump, perr := parseFloat(key, value)
		if perr != nil {
			return perr
		}
		if jump <= 0 || jump > 180 {
			return fmt.Errorf("MAX_AZIMUTH_JUMP must be in (0, 180] degrees, got %v", jump)
		}
		c.MaxAzimuthJump = jump

	// Tag bookkeeping
	case "TAG_MAX_COUNT":
		n, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid TAG_MAX_COUNT %q: %w", value, perr)
		}
		if n < 1 {
			return fmt.Errorf("TAG_MAX_COUNT must be >= 1, got %d", n)
		}
		c.TagMaxCount = n
	case "TAG_IDLE_TIMEOUT":
		c.TagIdleTimeout, err = parseNonNegInt(key, value)
	case "TAG_PRUNE_INTERVAL":
		c.TagPruneInterval, err = parseNonNegInt(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		port, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, perr)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", port)
		}
		c.WebServerPort = port

	// Logging
	case "LOG_REJECTIONS":
		b, perr := strconv.ParseBool(value)
		if perr != nil {
			return fmt.Errorf("invalid LOG_REJECTIONS %q: %w", value, perr)
		}
		c.LogRejections = b

	// Mock producer
	case "PRODUCER_INTERVAL":
		c.ProducerInterval, err = parseNonNegInt(key, value)
	case "PRODUCER_TAGS":
		var tags []string
		for _, tag := range strings.Split(value, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		c.ProducerTags = tags
	case "PRODUCER_ANCHOR":
		c.ProducerAnchor = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicAngle == "" {
		return fmt.Errorf("TOPIC_ANGLE is required")
	}
	if !singleAnchor(c.TopicAngle) {
		return fmt.Errorf("TOPIC_ANGLE must name a single anchor, got %q", c.TopicAngle)
	}
	if c.TopicPositionPrefix == "" {
		return fmt.Errorf("TOPIC_POSITION_PREFIX is required")
	}
	if c.TagPruneInterval == 0 && c.TagIdleTimeout > 0 {
		return fmt.Errorf("TAG_PRUNE_INTERVAL is required when TAG_IDLE_TIMEOUT is set")
	}
	if c.ProducerInterval == 0 {
		return fmt.Errorf("PRODUCER_INTERVAL must be > 0")
	}
	return nil
}

// BaseStation returns the configured anchor.
func (c *Config) BaseStation() aoa.BaseStation {
	return aoa.BaseStation{
		Position: geometry.Vec3{X: c.BasePositionX, Y: c.BasePositionY, Z: c.BasePositionZ},
		Orientation: geometry.Orientation{
			XDeg: c.BaseOrientationX,
			YDeg: c.BaseOrientationY,
			ZDeg: c.BaseOrientationZ,
		},
		TagHeight: c.TagHeight,
	}
}

// LocatorConfig maps the file settings onto a locator.Config.
func (c *Config) LocatorConfig() locator.Config {
	return locator.Config{
		Base:           c.BaseStation(),
		MaxAzimuthJump: c.MaxAzimuthJump,
		MaxTags:        c.TagMaxCount,
		IdleTimeout:    time.Duration(c.TagIdleTimeout) * time.Second,
	}
}

// ClientID returns id, or a fresh "aoa-<role>-<uuid>" when id is empty.
// Brokers drop the older session when two clients share an id.
func ClientID(id, role string) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("aoa-%s-%s", role, uuid.NewString())
}

// PositionTopic returns the topic a tag's accepted positions are published on.
func (c *Config) PositionTopic(tagID string) string {
	return c.TopicPositionPrefix + "/" + tagID
}

// singleAnchor reports whether topic is "<prefix>/<anchor>/<tag or +>" with
// no wildcard before the tag segment. Tags are keyed by the last segment only,
// so readings from two anchors must never share a subscription.
func singleAnchor(topic string) bool {
	segments := strings.Split(topic, "/")
	if len(segments) < 2 {
		return false
	}
	for _, seg := range segments[:len(segments)-1] {
		if seg == "" || strings.ContainsAny(seg, "+#") {
			return false
		}
	}
	last := segments[len(segments)-1]
	return last == "+" || (last != "" && !strings.ContainsAny(last, "+#"))
}

// AngleTopic returns the topic the anchor reports a tag's angles on,
// built from TopicAngle with its anchor and tag segments replaced.
func (c *Config) AngleTopic(anchor, tagID string) string {
	prefix := c.TopicAngle
	for i := 0; i < 2; i++ {
		if j := strings.LastIndex(prefix, "/"); j >= 0 {
			prefix = prefix[:j]
		} else {
			prefix = ""
		}
	}
	if prefix == "" || strings.ContainsAny(prefix, "+#") {
		prefix = "silabs/aoa/angle"
	}
	return prefix + "/" + anchor + "/" + tagID
}

// InitGlobal loads the configuration from file once per process.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
