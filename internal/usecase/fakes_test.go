package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"FinPulse/internal/domain/models"
	dsvc "FinPulse/internal/domain/service"
)

var t0 = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fixedRand always returns the same draw.
type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64     { return r.f }
func (r fixedRand) Int63n(n int64) int64 { return int64(float64(n) * r.f) }

type fakeProvider struct {
	mu         sync.Mutex
	bars       map[string]*models.Bar
	queued     map[string][]error
	always     map[string]error
	calls      map[string]int
	lookbacks  []int
	profile    *models.Profile
	profileErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		bars:   map[string]*models.Bar{},
		queued: map[string][]error{},
		always: map[string]error{},
		calls:  map[string]int{},
	}
}

func (p *fakeProvider) Latest(_ context.Context, id string, days int) (*models.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[id]++
	p.lookbacks = append(p.lookbacks, days)

	if err := p.always[id]; err != nil {
		return nil, err
	}
	if q := p.queued[id]; len(q) > 0 {
		p.queued[id] = q[1:]
		if q[0] != nil {
			return nil, q[0]
		}
	}
	b, ok := p.bars[id]
	if !ok {
		return nil, models.ErrNoData
	}
	cp := *b
	return &cp, nil
}

func (p *fakeProvider) Profile(context.Context, string) (*models.Profile, error) {
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	if p.profile == nil {
		return &models.Profile{}, nil
	}
	cp := *p.profile
	return &cp, nil
}

func (p *fakeProvider) Calls(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

// fakeEmbedder returns vectors[text] when known, else a constant vector.
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float64
	err     error
	mu      sync.Mutex
	calls   int
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	v := make([]float64, e.dim)
	for i := range v {
		v[i] = 1
	}
	return v, nil
}

func (e *fakeEmbedder) Dimension() int { return e.dim }

type fakeGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	pingErr error
	block   bool
	calls   int
	last    dsvc.GenerateRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req dsvc.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.calls++
	g.last = req
	block, text, err := g.block, g.text, g.err
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return text, err
}

func (g *fakeGenerator) Ping(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pingErr
}

func (g *fakeGenerator) Model() string { return "test-model" }

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeMetrics struct {
	mu      sync.Mutex
	errors  map[string]int
	stored  map[string]int
	queries map[string]int
	cycles  int
	stores  [][2]int
	modes   [][2]bool
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: map[string]int{}, stored: map[string]int{}, queries: map[string]int{}}
}

func (m *fakeMetrics) RecordSnapshotStored(provenance, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[provenance]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordQuery(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[mode]++
}

func (m *fakeMetrics) RecordCycle(int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
}

func (m *fakeMetrics) Errors(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func (m *fakeMetrics) SetStoreSize(entries, unique int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores = append(m.stores, [2]int{entries, unique})
}

func (m *fakeMetrics) SetModes(sourceDegraded, generativeOnline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes = append(m.modes, [2]bool{sourceDegraded, generativeOnline})
}

func (m *fakeMetrics) RecordLastPrice(string, float64) {}
func (m *fakeMetrics) RecordLatency(string, float64)   {}

type recordingObserver struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

func (o *recordingObserver) OnSnapshot(s models.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snaps = append(o.snaps, s)
}

var errTransport = errors.New("connection reset by peer")

func bar(open, close float64) *models.Bar {
	return &models.Bar{Open: open, High: max(open, close) + 5, Low: min(open, close) - 5, Close: close, Volume: 250000, Time: t0}
}

func snap(id string, price, pct float64, at time.Time) models.Snapshot {
	open := price / (1 + pct/100)
	return models.Snapshot{
		InstrumentID:  id,
		DisplayName:   id,
		Price:         price,
		Open:          open,
		Change:        price - open,
		ChangePercent: pct,
		High:          price,
		Low:           open,
		Volume:        1000,
		ObservedAt:    at,
		Provenance:    models.ProvenanceLive,
	}
}
