package notifier

import (
	"context"
	"time"

	"alertbot/internal/evidence"
)

// Config controls the async push pipeline.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    float64
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// Job asks for the latest evidence to be pushed to one recipient.
type Job struct {
	Recipient string
	// Reason is carried into events and audit ("welcome").
	Reason     string
	EnqueuedAt time.Time
}

// EvidenceSource resolves the evidence to push at send time.
type EvidenceSource interface {
	Latest(ctx context.Context) (evidence.Event, error)
}

// HistoryItem is one finished push, kept for the state command and tests.
type HistoryItem struct {
	At        time.Time
	Recipient string
	ImageRef  string
	Attempts  int
	Err       string
}
