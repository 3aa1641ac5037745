package usecase

import (
	"fmt"

	"FinPulse/internal/domain/models"
	drepo "FinPulse/internal/domain/repository"
	"FinPulse/pkg/logger"
)

// HeartbeatJob publishes the health summary to logs and gauges on a schedule
// and logs each volatility alert once.
type HeartbeatJob struct {
	views      *MarketViews
	metrics    drepo.Metrics
	log        *logger.Logger
	alertLimit int
	seen       map[string]struct{}
}

func NewHeartbeatJob(views *MarketViews, metrics drepo.Metrics, log *logger.Logger) *HeartbeatJob {
	if log == nil {
		log = logger.Nop()
	}
	return &HeartbeatJob{
		views:      views,
		metrics:    metrics,
		log:        log,
		alertLimit: 20,
		seen:       make(map[string]struct{}),
	}
}

func (j *HeartbeatJob) Name() string { return "heartbeat" }

// Run is called by the scheduler, which never runs two heartbeats at once.
func (j *HeartbeatJob) Run() error {
	h := j.views.Health()
	j.metrics.SetStoreSize(h.StoredCount, h.UniqueCount)
	j.metrics.SetModes(h.SourceMode == models.SourceSynthetic, h.GenerativeMode == models.ModeOnline)

	fields := []logger.Field{
		logger.String("status", h.Status),
		logger.Int("tracked", h.TrackedCount),
		logger.Int("stored", h.StoredCount),
		logger.Int("unique", h.UniqueCount),
		logger.String("source_mode", string(h.SourceMode)),
		logger.String("generative_mode", string(h.GenerativeMode)),
		logger.Int64("cycles", h.Cycles),
	}
	if h.Status == "healthy" {
		j.log.Info("heartbeat", fields...)
	} else {
		j.log.Warn("heartbeat", fields...)
	}

	j.logNewAlerts()
	return nil
}

func (j *HeartbeatJob) logNewAlerts() {
	current := make(map[string]struct{})
	for _, a := range j.views.Alerts(j.alertLimit) {
		key := fmt.Sprintf("%s@%d", a.InstrumentID, a.ObservedAt.UnixNano())
		current[key] = struct{}{}
		if _, ok := j.seen[key]; ok {
			continue
		}
		j.log.Warn(a.Message,
			logger.String("instrument", a.InstrumentID),
			logger.String("kind", string(a.Kind)),
			logger.Float64("change_percent", a.ChangePercent),
			logger.String("provenance", string(a.Provenance)),
		)
	}
	// alerts that left the window may fire again if they come back
	j.seen = current
}
