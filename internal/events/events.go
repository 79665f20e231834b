package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const (
	EventSubmissionConfirmed = "submission.confirmed"
	EventSubmissionFailed    = "submission.failed"
)

// SubmissionEvent is published after the ledger answers a composed submission.
type SubmissionEvent struct {
	Operation   string    `json:"operation"`
	Caller      string    `json:"caller"`
	GoalID      string    `json:"goal_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Digest      string    `json:"digest,omitempty"`
	Steps       []string  `json:"steps"`
	Invalidated []string  `json:"invalidated,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
	Close() error
}

// PublishSubmission encodes and publishes ev keyed by goal so one goal's events stay ordered.
func PublishSubmission(ctx context.Context, p Publisher, eventType string, ev SubmissionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	key := ev.GoalID
	if key == "" {
		key = ev.Caller
	}
	return p.Publish(ctx, eventType, payload, key)
}

// LogPublisher writes events to the log instead of a broker. Used in development
// and when no brokers are configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	slog.Info("event (log mode)", "type", eventType, "key", partitionKey, "payload", string(payload))
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
