package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
	"FinPulse/pkg/logger"
)

// SnapshotPipeline sits between the ingestion loop and an outbound sink.
// OnSnapshot never blocks: events are validated, throttled per instrument and
// buffered; a single worker publishes them with bounded retries.
type SnapshotPipeline struct {
	sink       domrepo.SnapshotSink
	metrics    domrepo.Metrics
	log        *logger.Logger
	now        func() time.Time
	bufSize    int
	attempts   int
	backoffMin time.Duration
	backoffMax time.Duration
	timeout    time.Duration
	minGap     time.Duration

	bufCh    chan *models.SnapshotEvent
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	lastSeen map[string]time.Time
}

type PipelineOption func(*SnapshotPipeline)

// WithBufferSize sets how many events may wait for the sink.
func WithBufferSize(n int) PipelineOption {
	return func(p *SnapshotPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithMaxAttempts bounds publish attempts per event.
func WithMaxAttempts(n int) PipelineOption {
	return func(p *SnapshotPipeline) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithBackoff sets the retry backoff range. The delay doubles per failure up to max.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *SnapshotPipeline) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

// WithPublishTimeout bounds a single publish call.
func WithPublishTimeout(d time.Duration) PipelineOption {
	return func(p *SnapshotPipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMinInterval drops snapshots of an instrument arriving closer than d to
// the previous accepted one. Zero disables throttling.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *SnapshotPipeline) { p.minGap = d }
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *SnapshotPipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *SnapshotPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewSnapshotPipeline creates a pipeline publishing to sink.
func NewSnapshotPipeline(sink domrepo.SnapshotSink, metrics domrepo.Metrics, opts ...PipelineOption) *SnapshotPipeline {
	p := &SnapshotPipeline{
		sink:       sink,
		metrics:    metrics,
		log:        logger.Nop(),
		now:        time.Now,
		bufSize:    1000,
		attempts:   5,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		timeout:    5 * time.Second,
		stopCh:     make(chan struct{}),
		lastSeen:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.SnapshotEvent, p.bufSize)
	return p
}

// OnSnapshot enqueues s for publication. It is called from the ingestion goroutine.
func (p *SnapshotPipeline) OnSnapshot(s models.Snapshot) {
	e := models.NewSnapshotEvent(s, p.now())
	if err := e.Validate(); err != nil {
		p.metrics.RecordError("pipeline_validate")
		p.log.Warn("snapshot rejected by pipeline", logger.String("instrument", s.InstrumentID), logger.Error(err))
		return
	}
	if !p.allow(s.InstrumentID, s.ObservedAt) {
		p.metrics.RecordError("pipeline_throttle")
		return
	}

	select {
	case p.bufCh <- &e:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

// Pending returns the number of buffered events.
func (p *SnapshotPipeline) Pending() int { return len(p.bufCh) }

// Start launches the publishing worker. It stops on Stop or when ctx ends.
func (p *SnapshotPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case e := <-p.bufCh:
				p.publish(ctx, e)
			}
		}
	}()
}

// Stop stops the worker and waits for the in-flight publish to return.
// Buffered events are discarded.
func (p *SnapshotPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
	if n := len(p.bufCh); n > 0 {
		p.log.Warn("snapshot pipeline stopped with pending events", logger.Int("pending", n))
	}
}

func (p *SnapshotPipeline) publish(ctx context.Context, e *models.SnapshotEvent) {
	backoff := p.backoffMin
	for attempt := 1; ; attempt++ {
		start := time.Now()
		pctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.sink.Publish(pctx, e)
		cancel()
		if err == nil {
			p.metrics.RecordLatency("sink_publish", time.Since(start).Seconds())
			return
		}

		p.metrics.RecordError("sink_publish")
		if attempt >= p.attempts || errors.Is(err, context.Canceled) {
			p.metrics.RecordError("pipeline_drop")
			p.log.Error("snapshot publish failed",
				logger.String("instrument", e.InstrumentID),
				logger.String("event_id", e.EventID),
				logger.Int("attempts", attempt),
				logger.Error(err),
			)
			return
		}

		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-p.stopCh:
			t.Stop()
			return
		case <-ctx.Done():
			t.Stop()
			return
		}
		if backoff *= 2; backoff > p.backoffMax {
			backoff = p.backoffMax
		}
	}
}

func (p *SnapshotPipeline) allow(instrumentID string, at time.Time) bool {
	if p.minGap <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok := p.lastSeen[instrumentID]
	if ok && at.Sub(last) < p.minGap {
		return false
	}
	p.lastSeen[instrumentID] = at
	return true
}

var _ domrepo.SnapshotObserver = (*SnapshotPipeline)(nil)
