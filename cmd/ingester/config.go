package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ruleiq-io/ruleiq/internal/config"
)

// Sentinel errors for configuration validation.
var (
	// ErrNoBrokers is returned when no Kafka brokers are configured.
	ErrNoBrokers = errors.New("at least one Kafka broker is required")
	// ErrEmptyTopic is returned when the topic is empty.
	ErrEmptyTopic = errors.New("Kafka topic cannot be empty")
	// ErrEmptyGroupID is returned when the consumer group ID is empty.
	ErrEmptyGroupID = errors.New("Kafka consumer group ID cannot be empty")
)

const (
	defaultTopic          = "rule-executions"
	defaultGroupID        = "ruleiq-ingester"
	defaultCommitInterval = 0 // synchronous commits, at-least-once
	defaultMinBytes       = 1
	defaultMaxBytes       = 10 * 1024 * 1024
	defaultMaxWait        = 500 * time.Millisecond
)

// Config holds all configuration for the telemetry ingester.
type Config struct {
	// Brokers is the list of Kafka bootstrap addresses.
	Brokers []string

	// Topic is the execution telemetry topic.
	Topic string

	// GroupID is the consumer group for offset tracking.
	GroupID string

	// MinBytes and MaxBytes bound fetch sizes.
	MinBytes int
	MaxBytes int

	// MaxWait bounds how long a fetch blocks waiting for MinBytes.
	MaxWait time.Duration
}

// LoadConfig loads ingester configuration from environment variables.
func LoadConfig() (*Config, error) {
	brokers := splitBrokers(config.GetEnvStr("RULEIQ_KAFKA_BROKERS", "localhost:9092"))

	cfg := &Config{
		Brokers:  brokers,
		Topic:    config.GetEnvStr("RULEIQ_KAFKA_TOPIC", defaultTopic),
		GroupID:  config.GetEnvStr("RULEIQ_KAFKA_GROUP_ID", defaultGroupID),
		MinBytes: config.GetEnvInt("RULEIQ_KAFKA_MIN_BYTES", defaultMinBytes),
		MaxBytes: config.GetEnvInt("RULEIQ_KAFKA_MAX_BYTES", defaultMaxBytes),
		MaxWait:  config.GetEnvDuration("RULEIQ_KAFKA_MAX_WAIT", defaultMaxWait),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}

	if c.Topic == "" {
		return ErrEmptyTopic
	}

	if c.GroupID == "" {
		return ErrEmptyGroupID
	}

	return nil
}

// splitBrokers parses a comma-separated broker list, dropping empty entries.
func splitBrokers(raw string) []string {
	var brokers []string

	for _, broker := range strings.Split(raw, ",") {
		broker = strings.TrimSpace(broker)
		if broker != "" {
			brokers = append(brokers, broker)
		}
	}

	return brokers
}
