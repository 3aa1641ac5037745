package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/domain/repository"
)

// KafkaWriter is the slice of pkg/kafka.Producer the publisher needs.
type KafkaWriter interface {
	Publish(ctx context.Context, key []byte, value interface{}) error
	Close() error
}

// KafkaSnapshotPublisher publishes snapshot events keyed by instrument id, so
// every instrument stays on one partition and consumers see it in order.
type KafkaSnapshotPublisher struct {
	producer KafkaWriter
}

func NewKafkaSnapshotPublisher(producer KafkaWriter) *KafkaSnapshotPublisher {
	return &KafkaSnapshotPublisher{producer: producer}
}

func (p *KafkaSnapshotPublisher) Publish(ctx context.Context, e *models.SnapshotEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot event: %w", err)
	}
	return p.producer.Publish(ctx, []byte(e.InstrumentID), e)
}

func (p *KafkaSnapshotPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// JetStreamPublisher is the slice of pkg/natsx.Client the publisher needs.
type JetStreamPublisher interface {
	EnsureStream(ctx context.Context, name string, subjects []string, maxAge time.Duration) error
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
	Close() error
}

// NATSSnapshotPublisher publishes snapshot events to <prefix>.<instrument id>.
type NATSSnapshotPublisher struct {
	js     JetStreamPublisher
	stream string
	prefix string
	maxAge time.Duration
}

func NewNATSSnapshotPublisher(js JetStreamPublisher, stream, subjectPrefix string, maxAge time.Duration) *NATSSnapshotPublisher {
	return &NATSSnapshotPublisher{
		js:     js,
		stream: stream,
		prefix: strings.TrimSuffix(subjectPrefix, "."),
		maxAge: maxAge,
	}
}

// Init ensures the stream capturing every instrument subject exists.
func (p *NATSSnapshotPublisher) Init(ctx context.Context) error {
	return p.js.EnsureStream(ctx, p.stream, []string{p.prefix + ".>"}, p.maxAge)
}

// Subject maps an instrument id to its subject. Dots in ids such as
// "RELIANCE.NS" would split the token, so they become underscores.
func (p *NATSSnapshotPublisher) Subject(instrumentID string) string {
	return p.prefix + "." + strings.ReplaceAll(instrumentID, ".", "_")
}

func (p *NATSSnapshotPublisher) Publish(ctx context.Context, e *models.SnapshotEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot event: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal snapshot event: %w", err)
	}
	return p.js.Publish(ctx, p.Subject(e.InstrumentID), data, e.EventID)
}

func (p *NATSSnapshotPublisher) Close() error {
	if p.js != nil {
		return p.js.Close()
	}
	return nil
}

// BatchInserter is the slice of pkg/clickhouse.Client the archive needs.
type BatchInserter interface {
	InitSchema(ctx context.Context, stmts []string) error
	InsertBatch(ctx context.Context, query string, rows [][]any) error
	Health(ctx context.Context) error
	Close() error
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const snapshotColumns = "event_id, observed_at, published_at, instrument_id, display_name, price, change, change_percent, " +
	"open, high, low, volume, market_cap, pe_ratio, sector, provenance, narrative"

// ClickHouseSnapshotStorage appends snapshot events to a ReplacingMergeTree
// table. Re-delivered events collapse on event_id during merges.
type ClickHouseSnapshotStorage struct {
	ch       BatchInserter
	database string
	table    string
	ttlDays  int
}

func NewClickHouseSnapshotStorage(ch BatchInserter, database, table string, ttlDays int) (*ClickHouseSnapshotStorage, error) {
	if !identRe.MatchString(database) || !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse identifier %q.%q", database, table)
	}
	return &ClickHouseSnapshotStorage{ch: ch, database: database, table: table, ttlDays: ttlDays}, nil
}

func (s *ClickHouseSnapshotStorage) fqtn() string { return s.database + "." + s.table }

// Schema returns the idempotent DDL for the archive table.
func (s *ClickHouseSnapshotStorage) Schema() []string {
	ttl := ""
	if s.ttlDays > 0 {
		ttl = fmt.Sprintf("\nTTL toDateTime(observed_at) + INTERVAL %d DAY", s.ttlDays)
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    event_id       String,
    observed_at    DateTime64(3, 'UTC'),
    published_at   DateTime64(3, 'UTC'),
    instrument_id  LowCardinality(String),
    display_name   String,
    price          Float64,
    change         Float64,
    change_percent Float64,
    open           Float64,
    high           Float64,
    low            Float64,
    volume         Int64,
    market_cap     Nullable(Float64),
    pe_ratio       Nullable(Float64),
    sector         Nullable(String),
    provenance     LowCardinality(String),
    narrative      String
)
ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(observed_at)
ORDER BY (instrument_id, observed_at, event_id)%s`, s.fqtn(), ttl),
	}
}

func (s *ClickHouseSnapshotStorage) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, s.Schema())
}

func (s *ClickHouseSnapshotStorage) insertQuery() string {
	return fmt.Sprintf("INSERT INTO %s (%s)", s.fqtn(), snapshotColumns)
}

func (s *ClickHouseSnapshotStorage) Store(ctx context.Context, e *models.SnapshotEvent) error {
	return s.StoreBatch(ctx, []*models.SnapshotEvent{e})
}

// StoreBatch skips invalid events and writes the rest in one block.
func (s *ClickHouseSnapshotStorage) StoreBatch(ctx context.Context, events []*models.SnapshotEvent) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		if e == nil || e.Validate() != nil {
			continue
		}
		rows = append(rows, snapshotRow(e))
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.ch.InsertBatch(ctx, s.insertQuery(), rows); err != nil {
		return fmt.Errorf("store snapshots: %w", err)
	}
	return nil
}

// Publish lets the archive act as a direct sink (sink.type=clickhouse).
func (s *ClickHouseSnapshotStorage) Publish(ctx context.Context, e *models.SnapshotEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot event: %w", err)
	}
	return s.Store(ctx, e)
}

func (s *ClickHouseSnapshotStorage) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *ClickHouseSnapshotStorage) Close() error {
	return s.ch.Close()
}

func snapshotRow(e *models.SnapshotEvent) []any {
	return []any{
		e.EventID,
		e.ObservedAt.UTC(),
		e.PublishedAt.UTC(),
		e.InstrumentID,
		e.DisplayName,
		e.Price,
		e.Change,
		e.ChangePercent,
		e.Open,
		e.High,
		e.Low,
		e.Volume,
		e.MarketCap,
		e.PERatio,
		e.Sector,
		string(e.Provenance),
		e.Narrative,
	}
}

var (
	_ repository.SnapshotSink    = (*KafkaSnapshotPublisher)(nil)
	_ repository.SnapshotSink    = (*NATSSnapshotPublisher)(nil)
	_ repository.SnapshotSink    = (*ClickHouseSnapshotStorage)(nil)
	_ repository.SnapshotArchive = (*ClickHouseSnapshotStorage)(nil)
)
