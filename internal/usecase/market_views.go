package usecase

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"FinPulse/internal/domain/models"
	drepo "FinPulse/internal/domain/repository"
	"FinPulse/internal/services/features"
)

// SourceState is the ingestion side of the health view.
type SourceState interface {
	SourceMode() models.SourceMode
	Cycles() int64
	LastCycleAt() time.Time
	Universe() []models.Instrument
}

// GenerativeState is the query side of the health view.
type GenerativeState interface {
	Mode() models.AnswerMode
}

// MarketViews derives read models from the store on every call. Nothing is cached.
type MarketViews struct {
	store           drepo.SnapshotStore
	alertWindow     int
	alertThreshold  float64
	analyticsWindow int
	source          SourceState
	generative      GenerativeState
}

type ViewOption func(*MarketViews)

// WithAlertRule sets the trailing window scanned for alerts and the |change%| threshold.
func WithAlertRule(window int, threshold float64) ViewOption {
	return func(v *MarketViews) {
		if window > 0 {
			v.alertWindow = window
		}
		if threshold > 0 {
			v.alertThreshold = threshold
		}
	}
}

func WithAnalyticsWindow(n int) ViewOption {
	return func(v *MarketViews) {
		if n > 0 {
			v.analyticsWindow = n
		}
	}
}

func WithHealthSources(src SourceState, gen GenerativeState) ViewOption {
	return func(v *MarketViews) {
		v.source = src
		v.generative = gen
	}
}

func NewMarketViews(store drepo.SnapshotStore, opts ...ViewOption) *MarketViews {
	v := &MarketViews{
		store:           store,
		alertWindow:     200,
		alertThreshold:  3.0,
		analyticsWindow: 100,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Latest returns the most recent snapshot of every stored instrument,
// newest first in discovery order.
func (v *MarketViews) Latest() []models.Snapshot {
	return latestOf(v.store.All())
}

func latestOf(entries []models.Snapshot) []models.Snapshot {
	seen := make(map[string]struct{})
	out := make([]models.Snapshot, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		id := entries[i].InstrumentID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, entries[i])
	}
	return out
}

// Instrument returns the latest snapshot of id, or models.ErrNotFound.
func (v *MarketViews) Instrument(id string) (models.Snapshot, error) {
	entries := v.store.All()
	for i := len(entries) - 1; i >= 0; i-- {
		if strings.EqualFold(entries[i].InstrumentID, id) {
			return entries[i], nil
		}
	}
	return models.Snapshot{}, fmt.Errorf("instrument %s: %w", id, models.ErrNotFound)
}

// Top sorts Latest by change percent and keeps the first n. Equal changes keep discovery order.
func (v *MarketViews) Top(n int, descending bool) []models.Snapshot {
	latest := v.Latest()
	sort.SliceStable(latest, func(i, j int) bool {
		if descending {
			return latest[i].ChangePercent > latest[j].ChangePercent
		}
		return latest[i].ChangePercent < latest[j].ChangePercent
	})
	if n < 0 {
		n = 0
	}
	if n < len(latest) {
		latest = latest[:n]
	}
	return latest
}

func (v *MarketViews) TopGainers(n int) []models.Snapshot { return v.Top(n, true) }

func (v *MarketViews) TopLosers(n int) []models.Snapshot { return v.Top(n, false) }

// Alerts takes the latest snapshot per instrument inside the alert window and
// keeps those whose move exceeds the threshold, at most limit of them.
func (v *MarketViews) Alerts(limit int) []models.AlertView {
	out := make([]models.AlertView, 0)
	if limit <= 0 {
		return out
	}

	for _, s := range latestOf(v.store.Window(v.alertWindow)) {
		if math.Abs(s.ChangePercent) <= v.alertThreshold {
			continue
		}
		kind := models.AlertSurge
		if s.ChangePercent < 0 {
			kind = models.AlertDrop
		}
		out = append(out, models.AlertView{
			InstrumentID:  s.InstrumentID,
			DisplayName:   s.DisplayName,
			Price:         s.Price,
			ChangePercent: s.ChangePercent,
			Kind:          kind,
			Message:       fmt.Sprintf("%s moved %+.2f%% - High volatility detected!", s.InstrumentID, s.ChangePercent),
			ObservedAt:    s.ObservedAt,
			Provenance:    s.Provenance,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

// Analytics aggregates every instrument present in the last window entries, sorted by id.
// window <= 0 uses the configured default.
func (v *MarketViews) Analytics(window int) []models.AnalyticsView {
	if window <= 0 {
		window = v.analyticsWindow
	}

	type series struct {
		prices  []float64
		changes []float64
		volume  int64
	}
	groups := make(map[string]*series)
	for _, s := range v.store.Window(window) {
		g, ok := groups[s.InstrumentID]
		if !ok {
			g = &series{}
			groups[s.InstrumentID] = g
		}
		g.prices = append(g.prices, s.Price)
		g.changes = append(g.changes, s.ChangePercent)
		g.volume += s.Volume
	}

	out := make([]models.AnalyticsView, 0, len(groups))
	for id, g := range groups {
		sum, ok := features.Summarize(g.prices)
		if !ok {
			continue
		}
		out = append(out, models.AnalyticsView{
			InstrumentID:     id,
			Samples:          len(g.prices),
			AvgPrice:         features.Round(sum.Mean, 2),
			MaxPrice:         sum.Max,
			MinPrice:         sum.Min,
			PriceSwing:       features.Round(sum.Swing(), 2),
			TotalVolume:      g.volume,
			AvgChangePercent: features.Round(features.Mean(g.changes), 2),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

// Health combines store counts with the ingestion and query modes.
func (v *MarketViews) Health() models.Health {
	h := models.Health{
		StoredCount:    v.store.Len(),
		UniqueCount:    len(v.Latest()),
		Capacity:       v.store.Capacity(),
		SourceMode:     models.SourceLive,
		GenerativeMode: models.ModeOffline,
	}
	if v.source != nil {
		h.TrackedCount = len(v.source.Universe())
		h.SourceMode = v.source.SourceMode()
		h.Cycles = v.source.Cycles()
		if t := v.source.LastCycleAt(); !t.IsZero() {
			h.LastCycleAt = &t
		}
	}
	if v.generative != nil {
		h.GenerativeMode = v.generative.Mode()
	}

	switch {
	case h.StoredCount == 0:
		h.Status = "initializing"
	case h.SourceMode == models.SourceSynthetic || h.GenerativeMode != models.ModeOnline:
		h.Status = "degraded"
	default:
		h.Status = "healthy"
	}
	return h
}
