package models

import "time"

type AlertKind string

const (
	AlertSurge AlertKind = "SURGE"
	AlertDrop  AlertKind = "DROP"
)

// AlertView flags an instrument whose latest move exceeded the volatility threshold.
type AlertView struct {
	InstrumentID  string     `json:"instrument_id"`
	DisplayName   string     `json:"display_name"`
	Price         float64    `json:"price"`
	ChangePercent float64    `json:"change_percent"`
	Kind          AlertKind  `json:"kind"`
	Message       string     `json:"message"`
	ObservedAt    time.Time  `json:"observed_at"`
	Provenance    Provenance `json:"provenance"`
}

// AnalyticsView aggregates one instrument over a trailing window of the store.
type AnalyticsView struct {
	InstrumentID     string  `json:"instrument_id"`
	Samples          int     `json:"samples"`
	AvgPrice         float64 `json:"avg_price"`
	MaxPrice         float64 `json:"max_price"`
	MinPrice         float64 `json:"min_price"`
	PriceSwing       float64 `json:"price_swing"`
	TotalVolume      int64   `json:"total_volume"`
	AvgChangePercent float64 `json:"avg_change_percent"`
}

type SourceMode string

const (
	SourceLive      SourceMode = "live"
	SourceSynthetic SourceMode = "synthetic"
)

type AnswerMode string

const (
	ModeOnline       AnswerMode = "online"
	ModeOffline      AnswerMode = "offline"
	ModeInitializing AnswerMode = "initializing"
)

// Answer is the result of a question. Diagnostic is set only when an online
// attempt failed and the answer was produced offline.
type Answer struct {
	QueryID    string     `json:"query_id"`
	Answer     string     `json:"answer"`
	Sources    []string   `json:"sources"`
	Mode       AnswerMode `json:"mode"`
	Model      string     `json:"model,omitempty"`
	Diagnostic string     `json:"diagnostic,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

type Health struct {
	Status         string     `json:"status"`
	TrackedCount   int        `json:"tracked_count"`
	StoredCount    int        `json:"stored_count"`
	UniqueCount    int        `json:"unique_count"`
	Capacity       int        `json:"capacity"`
	SourceMode     SourceMode `json:"source_mode"`
	GenerativeMode AnswerMode `json:"generative_mode"`
	Cycles         int64      `json:"cycles"`
	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
}

// CycleReport summarizes one pass of the ingestion loop over the universe.
type CycleReport struct {
	Cycle      int64         `json:"cycle"`
	Attempted  int           `json:"attempted"`
	Appended   int           `json:"appended"`
	Failed     int           `json:"failed"`
	Synthetic  int           `json:"synthetic"`
	Degraded   bool          `json:"degraded"`
	CooledDown bool          `json:"cooled_down"`
	Duration   time.Duration `json:"duration"`
}

// FailureRatio is Failed/Attempted, or 0 for an empty cycle.
func (r CycleReport) FailureRatio() float64 {
	if r.Attempted == 0 {
		return 0
	}
	return float64(r.Failed) / float64(r.Attempted)
}
