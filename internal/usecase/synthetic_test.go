package usecase

import (
	"testing"

	"FinPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestSyntheticGenerator_StaysInsideWalk(t *testing.T) {
	g := NewSyntheticGenerator(NewRealRand(42), newFakeClock(), 3)
	inst := models.Instrument{ID: "RELIANCE", Name: "Reliance Industries", ReferencePrice: models.Float64Ptr(2450)}

	for i := 0; i < 1000; i++ {
		s := g.Generate(inst, nil)
		assert.InDelta(t, 2450, s.Price, 2450*0.03+0.01)
		assert.GreaterOrEqual(t, s.High, s.Price)
		assert.LessOrEqual(t, s.Low, s.Price)
		assert.GreaterOrEqual(t, s.Volume, int64(syntheticMinVolume))
		assert.Less(t, s.Volume, int64(syntheticMaxVolume))
		assert.Equal(t, 2450.0, s.Open)
		assert.Equal(t, models.ProvenanceSynthetic, s.Provenance)
		assert.Equal(t, "Reliance Industries", s.DisplayName)
		assert.Equal(t, t0, s.ObservedAt)
	}
}

func TestSyntheticGenerator_ReferenceFallbacks(t *testing.T) {
	// u = 2*0.75-1 = 0.5, so the walk is +1.5%
	g := NewSyntheticGenerator(fixedRand{f: 0.75}, newFakeClock(), 3)

	tests := []struct {
		name string
		inst models.Instrument
		last *models.Snapshot
		want float64
	}{
		{
			name: "reference table",
			inst: models.Instrument{ID: "TCS", ReferencePrice: models.Float64Ptr(3500)},
			last: &models.Snapshot{Price: 9999},
			want: 3552.5,
		},
		{
			name: "last stored price",
			inst: models.Instrument{ID: "NEWCO"},
			last: &models.Snapshot{Price: 200},
			want: 203,
		},
		{
			name: "default",
			inst: models.Instrument{ID: "NEWCO"},
			want: 1015,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := g.Generate(tt.inst, tt.last)
			assert.InDelta(t, tt.want, s.Price, 1e-9)
			assert.InDelta(t, 1.5, s.ChangePercent, 1e-9)
			assert.Equal(t, tt.inst.ID, s.DisplayName)
		})
	}
}
