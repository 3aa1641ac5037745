package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SnapshotEvent is the wire form of a stored snapshot on every sink.
type SnapshotEvent struct {
	EventID     string    `json:"event_id"`
	PublishedAt time.Time `json:"published_at"`
	Snapshot
}

// NewSnapshotEvent stamps s with a fresh event id.
func NewSnapshotEvent(s Snapshot, now time.Time) SnapshotEvent {
	return SnapshotEvent{
		EventID:     uuid.NewString(),
		PublishedAt: now.UTC(),
		Snapshot:    s,
	}
}

// Validate rejects events no sink should accept.
func (e SnapshotEvent) Validate() error {
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	if e.InstrumentID == "" {
		return errors.New("instrument_id is required")
	}
	if e.Price <= 0 {
		return errors.New("price must be positive")
	}
	if e.ObservedAt.IsZero() {
		return errors.New("observed_at is required")
	}
	return nil
}
