package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	pkgkafka "FinPulse/pkg/kafka"
)

// SnapshotArchiver consumes snapshot events from Kafka and writes them to the archive.
type SnapshotArchiver struct {
	topic   string
	archive domrepo.SnapshotArchive
	metrics domrepo.Metrics
	clock   Clock
}

func NewSnapshotArchiver(topic string, archive domrepo.SnapshotArchive, metrics domrepo.Metrics, clock Clock) *SnapshotArchiver {
	if clock == nil {
		clock = RealClock{}
	}
	return &SnapshotArchiver{topic: topic, archive: archive, metrics: metrics, clock: clock}
}

func (h *SnapshotArchiver) Topic() string { return h.topic }

// Handle stores one event. Undecodable or invalid payloads are permanent
// failures and skip straight to the DLQ; storage errors are retried.
func (h *SnapshotArchiver) Handle(ctx context.Context, b []byte) error {
	var e models.SnapshotEvent
	if err := json.Unmarshal(b, &e); err != nil {
		h.metrics.RecordError("archive_decode")
		return pkgkafka.Permanent(fmt.Errorf("decode snapshot event: %w", err))
	}
	if err := e.Validate(); err != nil {
		h.metrics.RecordError("archive_invalid")
		return pkgkafka.Permanent(fmt.Errorf("snapshot event %s: %w", e.EventID, err))
	}

	// publish-to-archive lag, measured from when the pipeline stamped the event
	if !e.PublishedAt.IsZero() {
		h.metrics.RecordLatency("archive_lag", h.clock.Now().Sub(e.PublishedAt).Seconds())
	}

	start := time.Now()
	err := h.archive.Store(ctx, &e)
	h.metrics.RecordLatency("archive_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("archive_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*SnapshotArchiver)(nil)
