package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"FinPulse/internal/domain/models"
	drepo "FinPulse/internal/domain/repository"
	dsvc "FinPulse/internal/domain/service"
	"FinPulse/internal/services/narrative"
	"FinPulse/internal/services/retrieval"
	"FinPulse/pkg/logger"
	"FinPulse/pkg/util"

	"github.com/google/uuid"
)

const (
	SystemInstruction = "You are an expert market analyst with access to real-time instrument snapshots. " +
		"Answer only from the supplied data. Be specific and data-driven: cite prices, changes, " +
		"volumes and sectors from the snapshots, and say so when the data does not cover the question."

	initializingMessage = "No market data is available yet. Please wait for the data stream to initialize."

	maxGenerationTimeout = 30 * time.Second
	maxDiagnosticLen     = 120
)

// QueryEngine answers questions from the store, online through the generative
// provider or offline from templates.
//
// The online mode is a one-way breaker: a failed startup probe, or FailureLimit
// consecutive failed calls, switch to offline until Reset succeeds. A single
// failed call only degrades its own answer.
type QueryEngine struct {
	store     drepo.SnapshotStore
	embedder  dsvc.Embedder
	generator dsvc.Generator
	metrics   drepo.Metrics
	clock     Clock
	log       *logger.Logger

	topK         int
	maxTokens    int
	timeout      time.Duration
	embedTimeout time.Duration
	failureLimit int32

	online   atomic.Bool
	failures atomic.Int32
}

type QueryOption func(*QueryEngine)

func WithTopK(k int) QueryOption {
	return func(q *QueryEngine) {
		if k > 0 {
			q.topK = k
		}
	}
}

func WithMaxTokens(n int) QueryOption {
	return func(q *QueryEngine) {
		if n > 0 {
			q.maxTokens = n
		}
	}
}

// WithGenerationTimeout bounds every generative call. Values above 30s are capped.
func WithGenerationTimeout(d time.Duration) QueryOption {
	return func(q *QueryEngine) {
		if d > 0 {
			q.timeout = min(d, maxGenerationTimeout)
		}
	}
}

func WithQueryEmbedTimeout(d time.Duration) QueryOption {
	return func(q *QueryEngine) {
		if d > 0 {
			q.embedTimeout = d
		}
	}
}

// WithFailureLimit trips the breaker after n consecutive failed calls. 0 disables it.
func WithFailureLimit(n int) QueryOption {
	return func(q *QueryEngine) {
		if n >= 0 {
			q.failureLimit = int32(n)
		}
	}
}

func WithQueryClock(c Clock) QueryOption {
	return func(q *QueryEngine) {
		q.clock = c
	}
}

func WithQueryLogger(l *logger.Logger) QueryOption {
	return func(q *QueryEngine) {
		q.log = l
	}
}

// NewQueryEngine builds an engine in offline mode; call Probe to go online.
// generator may be nil, in which case the engine stays offline.
func NewQueryEngine(
	store drepo.SnapshotStore,
	embedder dsvc.Embedder,
	generator dsvc.Generator,
	metrics drepo.Metrics,
	opts ...QueryOption,
) *QueryEngine {
	q := &QueryEngine{
		store:        store,
		embedder:     embedder,
		generator:    generator,
		metrics:      metrics,
		clock:        RealClock{},
		log:          logger.Nop(),
		topK:         5,
		maxTokens:    1024,
		timeout:      25 * time.Second,
		embedTimeout: 5 * time.Second,
		failureLimit: 5,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Mode reports whether answers are currently generated online.
func (q *QueryEngine) Mode() models.AnswerMode {
	if q.online.Load() {
		return models.ModeOnline
	}
	return models.ModeOffline
}

// Probe checks the generative provider once and sets the mode from the result.
func (q *QueryEngine) Probe(ctx context.Context) error {
	if q.generator == nil {
		q.online.Store(false)
		return fmt.Errorf("%w: not configured", models.ErrGenerativeUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	if err := q.generator.Ping(ctx); err != nil {
		q.online.Store(false)
		q.log.Warn("generative provider unavailable, answering offline",
			logger.String("model", q.generator.Model()),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %v", models.ErrGenerativeUnavailable, err)
	}

	q.failures.Store(0)
	q.online.Store(true)
	q.log.Info("generative provider online", logger.String("model", q.generator.Model()))
	return nil
}

// Reset is the operator override of the breaker: it probes again and returns the resulting mode.
func (q *QueryEngine) Reset(ctx context.Context) (models.AnswerMode, error) {
	q.log.Info("generative breaker reset requested")
	err := q.Probe(ctx)
	return q.Mode(), err
}

// Answer retrieves the snapshots closest to question and answers from them.
// Only a blank question is an error; every provider failure degrades to an offline answer.
func (q *QueryEngine) Answer(ctx context.Context, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", models.ErrQueryMalformed)
	}

	start := q.clock.Now()
	ans := &models.Answer{
		QueryID:   uuid.NewString(),
		Sources:   []string{},
		Timestamp: start,
	}
	defer func() {
		q.metrics.RecordQuery(string(ans.Mode))
		q.metrics.RecordLatency("query", q.clock.Now().Sub(start).Seconds())
	}()

	view := q.store.View()
	if view.Len() == 0 {
		ans.Mode = models.ModeInitializing
		ans.Answer = initializingMessage
		return ans, nil
	}

	results := retrieval.Search(view, q.embed(ctx, question), q.topK)
	blocks := make([]string, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		text := r.Snapshot.Narrative
		if text == "" {
			text = narrative.Render(r.Snapshot, time.UTC)
		}
		blocks = append(blocks, text)
		if _, ok := seen[r.Snapshot.InstrumentID]; !ok {
			seen[r.Snapshot.InstrumentID] = struct{}{}
			ans.Sources = append(ans.Sources, r.Snapshot.InstrumentID)
		}
	}
	contextText := narrative.Join(blocks)

	if q.online.Load() {
		text, err := q.generate(ctx, question, contextText)
		if err == nil {
			ans.Mode = models.ModeOnline
			ans.Answer = text
			ans.Model = q.generator.Model()
			return ans, nil
		}
		ans.Diagnostic = util.Truncate(err.Error(), maxDiagnosticLen)
	}

	ans.Mode = models.ModeOffline
	ans.Answer = OfflineAnswer(question, contextText, ans.Sources)
	return ans, nil
}

func (q *QueryEngine) generate(ctx context.Context, question, contextText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	text, err := q.generator.Generate(ctx, dsvc.GenerateRequest{
		System:    SystemInstruction,
		Context:   contextText,
		Question:  question,
		MaxTokens: q.maxTokens,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty completion")
	}
	if err == nil {
		q.failures.Store(0)
		return text, nil
	}

	q.metrics.RecordError("generative")
	n := q.failures.Add(1)
	q.log.Warn("generative call failed, answering offline",
		logger.Int("consecutive_failures", int(n)),
		logger.Error(err),
	)
	if q.failureLimit > 0 && n >= q.failureLimit && q.online.CompareAndSwap(true, false) {
		q.log.Error("generative provider failing repeatedly, switched to offline",
			logger.Int("consecutive_failures", int(n)),
		)
	}
	return "", fmt.Errorf("%w: %v", models.ErrGenerativeUnavailable, err)
}

// embed falls back to a zero vector, which ranks by recency alone.
func (q *QueryEngine) embed(ctx context.Context, text string) []float64 {
	ctx, cancel := context.WithTimeout(ctx, q.embedTimeout)
	defer cancel()

	vec, err := q.embedder.Embed(ctx, text)
	if err != nil {
		q.metrics.RecordError("embedding")
		q.log.Warn("query embedding failed", logger.Error(err))
		return make([]float64, q.embedder.Dimension())
	}
	return vec
}
