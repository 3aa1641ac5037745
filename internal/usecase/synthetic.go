package usecase

import (
	"FinPulse/internal/domain/models"
	"FinPulse/internal/services/features"
)

const (
	defaultReferencePrice = 1000.0
	syntheticMinVolume    = 100_000
	syntheticMaxVolume    = 10_000_000
)

// SyntheticGenerator produces random-walk snapshots while the live source is degraded.
type SyntheticGenerator struct {
	rand    Rand
	clock   Clock
	walkPct float64
}

func NewSyntheticGenerator(r Rand, c Clock, walkPct float64) *SyntheticGenerator {
	if walkPct <= 0 {
		walkPct = 3
	}
	return &SyntheticGenerator{rand: r, clock: c, walkPct: walkPct}
}

// Generate walks at most walkPct percent away from the reference price of inst.
// The reference is the configured price, else the last stored price, else 1000.
func (g *SyntheticGenerator) Generate(inst models.Instrument, last *models.Snapshot) models.Snapshot {
	ref := defaultReferencePrice
	switch {
	case inst.ReferencePrice != nil && features.Valid(*inst.ReferencePrice):
		ref = *inst.ReferencePrice
	case last != nil && features.Valid(last.Price):
		ref = last.Price
	}

	u := uniform(g.rand, -1, 1)
	price := features.Round(ref*(1+u*g.walkPct/100), 2)
	high := features.Round(price*(1+g.rand.Float64()/100), 2)
	low := features.Round(price*(1-g.rand.Float64()/100), 2)
	open := features.Round(ref, 2)

	name := inst.Name
	if name == "" {
		name = inst.ID
	}

	return models.Snapshot{
		InstrumentID:  inst.ID,
		DisplayName:   name,
		Price:         price,
		Change:        features.Round(price-open, 2),
		ChangePercent: features.Round(features.ChangePercent(price, open), 2),
		Open:          open,
		High:          high,
		Low:           low,
		Volume:        syntheticMinVolume + g.rand.Int63n(syntheticMaxVolume-syntheticMinVolume),
		ObservedAt:    g.clock.Now(),
		Provenance:    models.ProvenanceSynthetic,
	}
}
