package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ruleiq-io/ruleiq/internal/analytics"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

// executionEvent is the wire format of one telemetry message on the
// execution topic. It matches the JSON body accepted by the HTTP recording
// endpoint, so producers can target either transport.
type executionEvent struct {
	RuleID          string         `json:"ruleId"`
	UserID          string         `json:"userId"`
	ExecutionTimeMs float64        `json:"executionTimeMs"`
	Success         bool           `json:"success"`
	Triggered       bool           `json:"triggered"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
	Timestamp       *time.Time     `json:"timestamp,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
}

// Consumer reads execution telemetry from Kafka and feeds the analytics
// service. Offsets are committed only after the record has been handed off,
// giving at-least-once delivery; malformed or invalid payloads are logged and
// committed so a poison message cannot block the partition.
type Consumer struct {
	reader    *kafka.Reader
	analytics *analytics.Service
	logger    *slog.Logger
}

// NewConsumer creates a consumer bound to the configured topic and group.
func NewConsumer(cfg *Config, analyticsService *analytics.Service, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
		CommitInterval: defaultCommitInterval,
	})

	return &Consumer{
		reader:    reader,
		analytics: analyticsService,
		logger:    logger,
	}
}

// Run consumes messages until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return fmt.Errorf("failed to fetch message: %w", err)
		}

		c.handle(ctx, message)

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return fmt.Errorf("failed to commit offset: %w", err)
		}
	}
}

// handle decodes and records one message. Decode and validation failures are
// logged, never returned: the offset is committed regardless so ingestion
// keeps moving.
func (c *Consumer) handle(ctx context.Context, message kafka.Message) {
	var event executionEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		c.logger.Warn("Skipping malformed telemetry message",
			slog.String("topic", message.Topic),
			slog.Int("partition", message.Partition),
			slog.Int64("offset", message.Offset),
			slog.String("error", err.Error()),
		)

		return
	}

	record := &storage.ExecutionRecord{
		RuleID:          event.RuleID,
		UserID:          event.UserID,
		ExecutionTimeMs: event.ExecutionTimeMs,
		Success:         event.Success,
		Triggered:       event.Triggered,
		ErrorMessage:    event.ErrorMessage,
		Context:         event.Context,
	}
	if event.Timestamp != nil {
		record.Timestamp = *event.Timestamp
	}

	if err := c.analytics.RecordExecution(ctx, record); err != nil {
		c.logger.Warn("Skipping invalid telemetry message",
			slog.String("rule_id", event.RuleID),
			slog.Int64("offset", message.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close releases the Kafka reader.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka reader: %w", err)
	}

	return nil
}
