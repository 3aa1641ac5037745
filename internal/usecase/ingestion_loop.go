package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"FinPulse/internal/domain/models"
	drepo "FinPulse/internal/domain/repository"
	dsvc "FinPulse/internal/domain/service"
	"FinPulse/internal/services/narrative"
	"FinPulse/pkg/logger"
)

// NewUniverse builds the instrument table in symbol order.
func NewUniverse(symbols []string, names map[string]string, refs map[string]float64) []models.Instrument {
	out := make([]models.Instrument, 0, len(symbols))
	for _, id := range symbols {
		inst := models.Instrument{ID: id, Name: names[id]}
		if p, ok := refs[id]; ok {
			inst.ReferencePrice = models.Float64Ptr(p)
		}
		out = append(out, inst)
	}
	return out
}

// IngestionLoop is the single writer of the snapshot store. Each cycle walks the
// universe once, fetching live bars or, once the provider has rate limited us,
// synthesizing them.
type IngestionLoop struct {
	universe []models.Instrument
	fetcher  *SnapshotFetcher
	synth    *SyntheticGenerator
	store    drepo.SnapshotStore
	embedder dsvc.Embedder
	metrics  drepo.Metrics
	clock    Clock
	rand     Rand
	log      *logger.Logger

	interval     time.Duration
	pacingMin    time.Duration
	pacingMax    time.Duration
	failureRatio float64
	cooldown     time.Duration
	embedTimeout time.Duration
	loc          *time.Location

	observers []drepo.SnapshotObserver

	degraded      atomic.Bool
	syntheticOnly bool
	cycles        atomic.Int64

	mu          sync.RWMutex
	lastCycleAt time.Time

	// last appended snapshot per instrument, touched only by the writer
	last map[string]models.Snapshot
}

type LoopOption func(*IngestionLoop)

func WithInterval(d time.Duration) LoopOption {
	return func(l *IngestionLoop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithPacing sets the random delay range between two live fetches.
func WithPacing(min, max time.Duration) LoopOption {
	return func(l *IngestionLoop) {
		if min >= 0 && max >= min {
			l.pacingMin, l.pacingMax = min, max
		}
	}
}

// WithCooldown adds extra sleep after a cycle whose failure ratio exceeded ratio.
func WithCooldown(ratio float64, d time.Duration) LoopOption {
	return func(l *IngestionLoop) {
		l.failureRatio = ratio
		l.cooldown = d
	}
}

func WithEmbedTimeout(d time.Duration) LoopOption {
	return func(l *IngestionLoop) {
		if d > 0 {
			l.embedTimeout = d
		}
	}
}

// WithNarrativeLocation sets the time zone of the rendered "Last Updated" line.
func WithNarrativeLocation(loc *time.Location) LoopOption {
	return func(l *IngestionLoop) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithSyntheticOnly starts degraded and never leaves synthetic mode.
func WithSyntheticOnly(on bool) LoopOption {
	return func(l *IngestionLoop) {
		l.syntheticOnly = on
	}
}

func WithObservers(obs ...drepo.SnapshotObserver) LoopOption {
	return func(l *IngestionLoop) {
		l.observers = append(l.observers, obs...)
	}
}

func WithLoopClock(c Clock) LoopOption {
	return func(l *IngestionLoop) {
		l.clock = c
	}
}

func WithLoopRand(r Rand) LoopOption {
	return func(l *IngestionLoop) {
		l.rand = r
	}
}

func WithLoopLogger(log *logger.Logger) LoopOption {
	return func(l *IngestionLoop) {
		l.log = log
	}
}

func NewIngestionLoop(
	universe []models.Instrument,
	fetcher *SnapshotFetcher,
	store drepo.SnapshotStore,
	embedder dsvc.Embedder,
	metrics drepo.Metrics,
	walkPct float64,
	opts ...LoopOption,
) *IngestionLoop {
	l := &IngestionLoop{
		universe:     universe,
		fetcher:      fetcher,
		store:        store,
		embedder:     embedder,
		metrics:      metrics,
		clock:        RealClock{},
		rand:         NewRealRand(time.Now().UnixNano()),
		log:          logger.Nop(),
		interval:     60 * time.Second,
		pacingMin:    500 * time.Millisecond,
		pacingMax:    1500 * time.Millisecond,
		failureRatio: 0.6,
		cooldown:     30 * time.Second,
		embedTimeout: 5 * time.Second,
		loc:          time.UTC,
		last:         make(map[string]models.Snapshot, len(universe)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.synth = NewSyntheticGenerator(l.rand, l.clock, walkPct)
	if l.syntheticOnly {
		l.degraded.Store(true)
	}
	return l
}

// Run executes cycles until ctx is cancelled.
func (l *IngestionLoop) Run(ctx context.Context) error {
	l.log.Info("ingestion loop started",
		logger.Int("instruments", len(l.universe)),
		logger.Duration("interval", l.interval),
		logger.String("source", string(l.SourceMode())),
	)

	for {
		report := l.RunCycle(ctx)
		if ctx.Err() != nil {
			l.log.Info("ingestion loop stopped", logger.Int64("cycles", l.cycles.Load()))
			return nil
		}

		wait := l.interval
		if report.CooledDown {
			wait += l.cooldown
			l.log.Warn("high failure ratio, cooling down",
				logger.Float64("failure_ratio", report.FailureRatio()),
				logger.Duration("cooldown", l.cooldown),
			)
		}
		if err := l.clock.Sleep(ctx, wait); err != nil {
			l.log.Info("ingestion loop stopped", logger.Int64("cycles", l.cycles.Load()))
			return nil
		}
	}
}

// RunCycle walks the universe once. It must not run concurrently with itself.
func (l *IngestionLoop) RunCycle(ctx context.Context) models.CycleReport {
	start := l.clock.Now()
	report := models.CycleReport{Cycle: l.cycles.Load() + 1}
	liveFetches := 0

	for _, inst := range l.universe {
		if ctx.Err() != nil {
			break
		}

		if !l.degraded.Load() {
			if liveFetches > 0 {
				if err := l.clock.Sleep(ctx, l.pacing()); err != nil {
					break
				}
			}
			liveFetches++

			snap, err := l.fetcher.Fetch(ctx, inst)
			switch {
			case err == nil:
				report.Attempted++
				l.append(ctx, *snap)
				report.Appended++
				continue
			case errors.Is(err, models.ErrProviderDegraded) && snap != nil:
				// the bar arrived, only enrichment was rate limited
				report.Attempted++
				l.append(ctx, *snap)
				report.Appended++
				l.degrade(inst.ID, err)
				continue
			case errors.Is(err, models.ErrProviderDegraded):
				l.degrade(inst.ID, err)
			case ctx.Err() != nil:
				// shutdown mid-fetch is not a provider failure
			default:
				report.Attempted++
				report.Failed++
				l.metrics.RecordError("fetch")
				l.log.Warn("instrument skipped this cycle", logger.String("instrument", inst.ID), logger.Error(err))
				continue
			}
			if ctx.Err() != nil {
				break
			}
		}

		report.Attempted++
		var last *models.Snapshot
		if prev, ok := l.last[inst.ID]; ok {
			last = &prev
		}
		l.append(ctx, l.synth.Generate(inst, last))
		report.Appended++
		report.Synthetic++
	}

	now := l.clock.Now()
	report.Duration = now.Sub(start)
	report.Degraded = l.degraded.Load()
	report.CooledDown = l.cooldown > 0 && report.FailureRatio() > l.failureRatio

	l.cycles.Add(1)
	l.mu.Lock()
	l.lastCycleAt = now
	l.mu.Unlock()

	l.metrics.RecordCycle(report.Attempted, report.Failed)
	l.metrics.RecordLatency("ingestion_cycle", report.Duration.Seconds())
	l.log.Info("ingestion cycle complete",
		logger.Int64("cycle", report.Cycle),
		logger.Int("attempted", report.Attempted),
		logger.Int("appended", report.Appended),
		logger.Int("failed", report.Failed),
		logger.Int("synthetic", report.Synthetic),
		logger.Int("stored", l.store.Len()),
		logger.Duration("took", report.Duration),
	)
	return report
}

func (l *IngestionLoop) pacing() time.Duration {
	return time.Duration(uniform(l.rand, float64(l.pacingMin), float64(l.pacingMax)))
}

func (l *IngestionLoop) degrade(id string, err error) {
	if l.degraded.CompareAndSwap(false, true) {
		l.metrics.RecordError("provider_degraded")
		l.log.Warn("provider rate limited, switching to synthetic data",
			logger.String("instrument", id),
			logger.Error(err),
		)
	}
}

// append renders and embeds s, then stores it and notifies observers.
func (l *IngestionLoop) append(ctx context.Context, s models.Snapshot) {
	s.Narrative = narrative.Render(s, l.loc)
	s.Embedding = l.embed(ctx, s.InstrumentID, s.Narrative)

	l.store.Append(s)
	l.last[s.InstrumentID] = s

	l.metrics.RecordSnapshotStored(string(s.Provenance), s.InstrumentID)
	l.metrics.RecordLastPrice(s.InstrumentID, s.Price)

	for _, o := range l.observers {
		o.OnSnapshot(s)
	}
}

// embed never fails: an embedding error yields a zero vector of the embedder's dimension.
func (l *IngestionLoop) embed(ctx context.Context, id, text string) []float64 {
	ctx, cancel := context.WithTimeout(ctx, l.embedTimeout)
	defer cancel()

	vec, err := l.embedder.Embed(ctx, text)
	if err == nil && len(vec) == l.embedder.Dimension() {
		return vec
	}
	if err == nil {
		err = errors.New("dimension mismatch")
	}

	l.metrics.RecordError("embedding")
	l.log.Warn("embedding failed, storing zero vector",
		logger.String("instrument", id),
		logger.Error(errors.Join(models.ErrEmbeddingFailed, err)),
	)
	return make([]float64, l.embedder.Dimension())
}

// ResetSource clears the degraded flag so the next cycle tries the live provider again.
// It has no effect when the loop runs synthetic-only.
func (l *IngestionLoop) ResetSource() models.SourceMode {
	if !l.syntheticOnly && l.degraded.CompareAndSwap(true, false) {
		l.log.Info("source reset to live by operator")
	}
	return l.SourceMode()
}

func (l *IngestionLoop) SourceMode() models.SourceMode {
	if l.degraded.Load() {
		return models.SourceSynthetic
	}
	return models.SourceLive
}

func (l *IngestionLoop) Cycles() int64 {
	return l.cycles.Load()
}

// LastCycleAt is the completion time of the latest cycle, zero before the first one.
func (l *IngestionLoop) LastCycleAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastCycleAt
}

// Universe returns the tracked instruments.
func (l *IngestionLoop) Universe() []models.Instrument {
	return l.universe
}
