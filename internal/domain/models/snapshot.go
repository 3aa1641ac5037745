package models

import "time"

// Provenance tells whether a snapshot came from the provider or from the synthetic walk.
type Provenance string

const (
	ProvenanceLive      Provenance = "live"
	ProvenanceSynthetic Provenance = "synthetic"
)

// Instrument is one member of the tracked universe.
type Instrument struct {
	ID             string
	Name           string
	ReferencePrice *float64
}

// Snapshot is a point-in-time quote for one instrument.
// MarketCap, PERatio and Sector are nil when the provider did not report them.
type Snapshot struct {
	InstrumentID  string     `json:"instrument_id"`
	DisplayName   string     `json:"display_name"`
	Price         float64    `json:"price"`
	Change        float64    `json:"change"`
	ChangePercent float64    `json:"change_percent"`
	Open          float64    `json:"open"`
	High          float64    `json:"high"`
	Low           float64    `json:"low"`
	Volume        int64      `json:"volume"`
	MarketCap     *float64   `json:"market_cap,omitempty"`
	PERatio       *float64   `json:"pe_ratio,omitempty"`
	Sector        *string    `json:"sector,omitempty"`
	ObservedAt    time.Time  `json:"observed_at"`
	Provenance    Provenance `json:"provenance"`
	Narrative     string     `json:"narrative,omitempty"`
	Embedding     []float64  `json:"-"`
}

// Bar is the latest daily OHLCV bar returned by the market data provider.
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	Time   time.Time
}

// Profile is optional company metadata. Every field may be unknown.
type Profile struct {
	Name      string   `json:"name,omitempty"`
	MarketCap *float64 `json:"market_cap,omitempty"`
	PERatio   *float64 `json:"pe_ratio,omitempty"`
	Sector    *string  `json:"sector,omitempty"`
}

// StoreView is an immutable, index-aligned view over the stored snapshots and their vectors.
// Vectors[i] is the embedding of Entries[i].
type StoreView struct {
	Entries []Snapshot
	Vectors [][]float64
}

// Len returns the number of entries in the view.
func (v StoreView) Len() int { return len(v.Entries) }

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 { return &f }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
