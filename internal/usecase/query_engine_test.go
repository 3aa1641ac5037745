package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/repository"
	"FinPulse/internal/services/narrative"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryFixture struct {
	store     *repository.SnapshotStore
	embedder  *fakeEmbedder
	generator *fakeGenerator
	metrics   *fakeMetrics
	engine    *QueryEngine
}

// newQueryFixture stores TCS, INFY and RELIANCE with orthogonal embeddings.
// The question "tcs" is closest to TCS, then RELIANCE.
func newQueryFixture(t *testing.T, opts ...QueryOption) *queryFixture {
	t.Helper()
	f := &queryFixture{
		store: repository.NewSnapshotStore(10),
		embedder: &fakeEmbedder{dim: 3, vectors: map[string][]float64{
			"tcs":                     {1, 0, 0.5},
			"which stocks gained?":    {1, 1, 1},
			"what is the best stock?": {1, 1, 1},
		}},
		generator: &fakeGenerator{text: "TCS is up 2% on strong volume."},
		metrics:   newFakeMetrics(),
	}

	add := func(s models.Snapshot, vec []float64) {
		s.Narrative = narrative.Render(s, time.UTC)
		s.Embedding = vec
		f.store.Append(s)
	}
	add(snap("TCS", 3570, 2, at(1)), []float64{1, 0, 0})
	add(snap("INFY", 1490, -0.67, at(1)), []float64{0, 1, 0})
	add(snap("RELIANCE", 2500, 1, at(1)), []float64{0, 0, 1})

	f.engine = NewQueryEngine(f.store, f.embedder, f.generator, f.metrics,
		append([]QueryOption{WithQueryClock(newFakeClock()), WithTopK(2)}, opts...)...)
	return f
}

func TestAnswer_RejectsBlankQuestion(t *testing.T) {
	f := newQueryFixture(t)
	_, err := f.engine.Answer(context.Background(), "   ")
	assert.ErrorIs(t, err, models.ErrQueryMalformed)
}

func TestAnswer_InitializingOnEmptyStore(t *testing.T) {
	engine := NewQueryEngine(repository.NewSnapshotStore(5), &fakeEmbedder{dim: 3}, &fakeGenerator{}, newFakeMetrics())

	ans, err := engine.Answer(context.Background(), "how is TCS doing?")
	require.NoError(t, err)
	assert.Equal(t, models.ModeInitializing, ans.Mode)
	assert.Empty(t, ans.Sources)
	assert.NotEmpty(t, ans.Answer)
	assert.NotEmpty(t, ans.QueryID)
}

func TestAnswer_OnlineUsesRetrievedContext(t *testing.T) {
	f := newQueryFixture(t, WithMaxTokens(256))
	require.NoError(t, f.engine.Probe(context.Background()))
	assert.Equal(t, models.ModeOnline, f.engine.Mode())

	ans, err := f.engine.Answer(context.Background(), "tcs")
	require.NoError(t, err)

	assert.Equal(t, models.ModeOnline, ans.Mode)
	assert.Equal(t, "TCS is up 2% on strong volume.", ans.Answer)
	assert.Equal(t, "test-model", ans.Model)
	assert.Equal(t, []string{"TCS", "RELIANCE"}, ans.Sources)
	assert.Empty(t, ans.Diagnostic)

	req := f.generator.last
	assert.Equal(t, SystemInstruction, req.System)
	assert.Equal(t, "tcs", req.Question)
	assert.Equal(t, 256, req.MaxTokens)
	require.Contains(t, req.Context, "Stock: TCS")
	assert.Less(t, strings.Index(req.Context, "Stock: TCS"), strings.Index(req.Context, "Stock: RELIANCE"))
	assert.NotContains(t, req.Context, "Stock: INFY")
}

func TestAnswer_GenerativeTimeoutFallsBackOffline(t *testing.T) {
	f := newQueryFixture(t, WithGenerationTimeout(20*time.Millisecond), WithTopK(3))
	require.NoError(t, f.engine.Probe(context.Background()))
	f.generator.block = true

	ans, err := f.engine.Answer(context.Background(), "which stocks gained?")
	require.NoError(t, err)

	assert.Equal(t, models.ModeOffline, ans.Mode)
	assert.Contains(t, ans.Answer, "average price 2520.00")
	assert.Contains(t, ans.Answer, "TCS (+2.00%)")
	assert.NotContains(t, ans.Answer, "INFY (")
	assert.Contains(t, ans.Diagnostic, "deadline exceeded")
	assert.LessOrEqual(t, len(ans.Diagnostic), 120)

	// one failure does not trip the breaker
	assert.Equal(t, models.ModeOnline, f.engine.Mode())
	assert.Equal(t, 1, f.metrics.Errors("generative"))
}

func TestAnswer_SustainedFailuresTripBreaker(t *testing.T) {
	f := newQueryFixture(t, WithFailureLimit(2))
	require.NoError(t, f.engine.Probe(context.Background()))
	f.generator.err = errors.New("503 service unavailable")

	for i := 0; i < 2; i++ {
		ans, err := f.engine.Answer(context.Background(), "tcs")
		require.NoError(t, err)
		assert.Equal(t, models.ModeOffline, ans.Mode)
	}
	assert.Equal(t, models.ModeOffline, f.engine.Mode())

	ans, err := f.engine.Answer(context.Background(), "tcs")
	require.NoError(t, err)
	assert.Equal(t, models.ModeOffline, ans.Mode)
	assert.Empty(t, ans.Diagnostic)
	assert.Equal(t, 2, f.generator.Calls())
}

func TestAnswer_SuccessResetsFailureCount(t *testing.T) {
	f := newQueryFixture(t, WithFailureLimit(2))
	require.NoError(t, f.engine.Probe(context.Background()))

	f.generator.err = errors.New("boom")
	_, _ = f.engine.Answer(context.Background(), "tcs")
	f.generator.err = nil
	_, _ = f.engine.Answer(context.Background(), "tcs")
	f.generator.err = errors.New("boom")
	_, _ = f.engine.Answer(context.Background(), "tcs")

	assert.Equal(t, models.ModeOnline, f.engine.Mode())
}

func TestProbe_FailureIsOneWayUntilReset(t *testing.T) {
	f := newQueryFixture(t, WithTopK(3))
	f.generator.pingErr = errors.New("401 invalid api key")

	err := f.engine.Probe(context.Background())
	assert.ErrorIs(t, err, models.ErrGenerativeUnavailable)
	assert.Equal(t, models.ModeOffline, f.engine.Mode())

	ans, err := f.engine.Answer(context.Background(), "what is the best stock?")
	require.NoError(t, err)
	assert.Equal(t, models.ModeOffline, ans.Mode)
	assert.Contains(t, ans.Answer, "Highest price: TCS at 3570.00")
	assert.Equal(t, 0, f.generator.Calls())

	f.generator.pingErr = nil
	mode, err := f.engine.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ModeOnline, mode)
}

func TestProbe_NoGeneratorStaysOffline(t *testing.T) {
	engine := NewQueryEngine(repository.NewSnapshotStore(5), &fakeEmbedder{dim: 3}, nil, newFakeMetrics())
	assert.ErrorIs(t, engine.Probe(context.Background()), models.ErrGenerativeUnavailable)
	assert.Equal(t, models.ModeOffline, engine.Mode())
}

func TestAnswer_EmbeddingFailureRanksByRecency(t *testing.T) {
	f := newQueryFixture(t)
	f.embedder.err = errors.New("embedder down")

	ans, err := f.engine.Answer(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE", "INFY"}, ans.Sources)
	assert.Equal(t, 1, f.metrics.Errors("embedding"))
}
