package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"FinPulse/internal/domain/models"
	drepo "FinPulse/internal/domain/repository"
	"FinPulse/internal/services/features"
	"FinPulse/pkg/logger"
)

// SnapshotFetcher turns the provider's latest daily bar into a live Snapshot.
type SnapshotFetcher struct {
	provider       drepo.MarketData
	clock          Clock
	log            *logger.Logger
	maxAttempts    int
	baseDelay      time.Duration
	requestTimeout time.Duration
	lookback       int
	widened        int
	enrich         bool
}

type FetcherOption func(*SnapshotFetcher)

// WithRetry sets the attempt budget and the first backoff delay, which doubles after every failure.
func WithRetry(attempts int, base time.Duration) FetcherOption {
	return func(f *SnapshotFetcher) {
		if attempts > 0 {
			f.maxAttempts = attempts
		}
		if base >= 0 {
			f.baseDelay = base
		}
	}
}

// WithRequestTimeout bounds every provider call.
func WithRequestTimeout(d time.Duration) FetcherOption {
	return func(f *SnapshotFetcher) {
		if d > 0 {
			f.requestTimeout = d
		}
	}
}

// WithLookback sets the primary and the widened lookback in days.
// The widened range is asked for when the primary one has no bar.
func WithLookback(primary, widened int) FetcherOption {
	return func(f *SnapshotFetcher) {
		if primary > 0 {
			f.lookback = primary
		}
		f.widened = widened
	}
}

// WithProfileEnrichment toggles the company profile lookup.
func WithProfileEnrichment(on bool) FetcherOption {
	return func(f *SnapshotFetcher) {
		f.enrich = on
	}
}

func WithFetcherClock(c Clock) FetcherOption {
	return func(f *SnapshotFetcher) {
		f.clock = c
	}
}

func WithFetcherLogger(l *logger.Logger) FetcherOption {
	return func(f *SnapshotFetcher) {
		f.log = l
	}
}

func NewSnapshotFetcher(provider drepo.MarketData, opts ...FetcherOption) *SnapshotFetcher {
	f := &SnapshotFetcher{
		provider:       provider,
		clock:          RealClock{},
		log:            logger.Nop(),
		maxAttempts:    3,
		baseDelay:      600 * time.Millisecond,
		requestTimeout: 10 * time.Second,
		lookback:       1,
		widened:        5,
		enrich:         true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns a live snapshot of inst.
//
// A rate limit answer is returned at once as models.ErrProviderDegraded. Any other
// failure is retried with exponential backoff; once the attempts are spent the
// result is a *models.FetchError. A rate limit on the profile lookup returns the
// unenriched snapshot together with models.ErrProviderDegraded.
func (f *SnapshotFetcher) Fetch(ctx context.Context, inst models.Instrument) (*models.Snapshot, error) {
	var lastErr error
	delay := f.baseDelay

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		bar, err := f.attempt(ctx, inst.ID)
		if err == nil {
			return f.build(ctx, inst, bar)
		}
		if errors.Is(err, models.ErrProviderDegraded) {
			return nil, err
		}
		lastErr = err

		f.log.Debug("fetch attempt failed",
			logger.String("instrument", inst.ID),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)

		if attempt == f.maxAttempts {
			break
		}
		if err := f.clock.Sleep(ctx, delay); err != nil {
			return nil, &models.FetchError{InstrumentID: inst.ID, Attempts: attempt, Err: err}
		}
		delay *= 2
	}

	return nil, &models.FetchError{InstrumentID: inst.ID, Attempts: f.maxAttempts, Err: lastErr}
}

func (f *SnapshotFetcher) attempt(ctx context.Context, id string) (*models.Bar, error) {
	bar, err := f.latest(ctx, id, f.lookback)
	if errors.Is(err, models.ErrNoData) && f.widened > f.lookback {
		bar, err = f.latest(ctx, id, f.widened)
	}
	if err != nil {
		return nil, err
	}
	if err := validateBar(bar); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return bar, nil
}

func (f *SnapshotFetcher) latest(ctx context.Context, id string, days int) (*models.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, f.requestTimeout)
	defer cancel()
	return f.provider.Latest(ctx, id, days)
}

func validateBar(b *models.Bar) error {
	switch {
	case b == nil:
		return errors.New("empty bar")
	case !features.Valid(b.Close):
		return fmt.Errorf("malformed close %v", b.Close)
	case b.Open < 0 || math.IsNaN(b.Open) || math.IsInf(b.Open, 0):
		return fmt.Errorf("malformed open %v", b.Open)
	case b.Volume < 0:
		return fmt.Errorf("negative volume %d", b.Volume)
	}
	return nil
}

func (f *SnapshotFetcher) build(ctx context.Context, inst models.Instrument, bar *models.Bar) (*models.Snapshot, error) {
	s := &models.Snapshot{
		InstrumentID:  inst.ID,
		DisplayName:   inst.Name,
		Price:         bar.Close,
		Change:        bar.Close - bar.Open,
		ChangePercent: features.ChangePercent(bar.Close, bar.Open),
		Open:          bar.Open,
		High:          bar.High,
		Low:           bar.Low,
		Volume:        bar.Volume,
		ObservedAt:    f.clock.Now(),
		Provenance:    models.ProvenanceLive,
	}

	var err error
	if f.enrich {
		err = f.applyProfile(ctx, s)
	}
	if s.DisplayName == "" {
		s.DisplayName = inst.ID
	}
	return s, err
}

// applyProfile fills the optional fields. A failing lookup leaves them unknown;
// only a rate limit is reported back.
func (f *SnapshotFetcher) applyProfile(ctx context.Context, s *models.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, f.requestTimeout)
	defer cancel()

	p, err := f.provider.Profile(ctx, s.InstrumentID)
	switch {
	case errors.Is(err, models.ErrProviderDegraded):
		f.log.Warn("profile lookup rate limited", logger.String("instrument", s.InstrumentID), logger.Error(err))
		return err
	case err != nil:
		f.log.Debug("profile unavailable", logger.String("instrument", s.InstrumentID), logger.Error(err))
		return nil
	case p == nil:
		return nil
	}
	if s.DisplayName == "" {
		s.DisplayName = p.Name
	}
	s.MarketCap = p.MarketCap
	s.PERatio = p.PERatio
	s.Sector = p.Sector
	return nil
}
