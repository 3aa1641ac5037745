package repository

import (
	"context"

	"FinPulse/internal/domain/models"
)

// MarketData is the market data provider contract.
type MarketData interface {
	// Latest returns the most recent daily bar within the last lookbackDays days,
	// models.ErrNoData when the range is empty and models.ErrProviderDegraded when rate limited.
	Latest(ctx context.Context, instrumentID string, lookbackDays int) (*models.Bar, error)
	Profile(ctx context.Context, instrumentID string) (*models.Profile, error)
}

// SnapshotStore is the bounded in-memory history. One writer, many readers.
type SnapshotStore interface {
	Append(s models.Snapshot)
	All() []models.Snapshot
	Window(n int) []models.Snapshot
	View() models.StoreView
	Len() int
	Capacity() int
}

// SnapshotSink receives appended snapshots for publication outside the process.
type SnapshotSink interface {
	Publish(ctx context.Context, e *models.SnapshotEvent) error
	Close() error
}

// SnapshotArchive persists snapshots for offline analysis. Never read back by the service.
type SnapshotArchive interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, e *models.SnapshotEvent) error
	StoreBatch(ctx context.Context, events []*models.SnapshotEvent) error
	Health(ctx context.Context) error
	Close() error
}

// SnapshotObserver is notified after every append. Implementations must not block.
type SnapshotObserver interface {
	OnSnapshot(s models.Snapshot)
}

type Metrics interface {
	RecordSnapshotStored(provenance, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordQuery(mode string)
	RecordCycle(attempted, failed int)
	SetStoreSize(entries, unique int)
	SetModes(sourceDegraded, generativeOnline bool)
}
