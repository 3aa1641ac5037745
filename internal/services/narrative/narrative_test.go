package narrative

import (
	"testing"
	"time"

	"FinPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() models.Snapshot {
	return models.Snapshot{
		InstrumentID:  "TCS",
		DisplayName:   "Tata Consultancy Services",
		Price:         3512.4,
		Change:        12.4,
		ChangePercent: 0.3543,
		Open:          3500,
		High:          3520,
		Low:           3480,
		Volume:        1234567,
		MarketCap:     models.Float64Ptr(1270000),
		Sector:        models.StringPtr("Technology"),
		ObservedAt:    time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC),
		Provenance:    models.ProvenanceLive,
	}
}

func TestRender(t *testing.T) {
	text := Render(sample(), time.UTC)

	assert.Contains(t, text, "Stock: TCS (Tata Consultancy Services)\n")
	assert.Contains(t, text, "Sector: Technology\n")
	assert.Contains(t, text, "Current Price: 3512.40\n")
	assert.Contains(t, text, "Change: +12.40 (+0.35%)\n")
	assert.Contains(t, text, "Day Range: 3480.00 - 3520.00\n")
	assert.Contains(t, text, "Volume: 1,234,567\n")
	assert.Contains(t, text, "Market Cap: 1,270,000.00\n")
	assert.Contains(t, text, "PE Ratio: N/A\n")
	assert.Contains(t, text, "Last Updated: 2026-03-02 09:15:00 UTC")
}

func TestRender_UnknownFieldsAreNotSentinels(t *testing.T) {
	s := sample()
	s.MarketCap = nil
	s.Sector = nil
	s.DisplayName = ""

	text := Render(s, nil)
	assert.Contains(t, text, "Stock: TCS\n")
	assert.Contains(t, text, "Sector: N/A\n")
	assert.Contains(t, text, "Market Cap: N/A\n")
	assert.NotContains(t, text, "Market Cap: 0")
}

func TestParse_RoundTripsRenderedBlocks(t *testing.T) {
	a := sample()
	b := sample()
	b.InstrumentID = "INFY"
	b.DisplayName = ""
	b.Price = 1480.05
	b.ChangePercent = -1.25

	markers := Parse(Join([]string{Render(a, nil), Render(b, nil)}))
	require.Len(t, markers, 2)

	assert.Equal(t, "TCS", markers[0].InstrumentID)
	assert.InDelta(t, 3512.40, markers[0].Price, 1e-9)
	require.NotNil(t, markers[0].ChangePercent)
	assert.InDelta(t, 0.35, *markers[0].ChangePercent, 1e-9)

	assert.Equal(t, "INFY", markers[1].InstrumentID)
	assert.InDelta(t, 1480.05, markers[1].Price, 1e-9)
	assert.InDelta(t, -1.25, *markers[1].ChangePercent, 1e-9)
}

func TestParse_ToleratesCurrencyAndGrouping(t *testing.T) {
	markers := Parse("Stock: RELIANCE\nCurrent Price: ₹2,450.35\nChange: ₹-10.00 (-0.41%)")
	require.Len(t, markers, 1)
	assert.InDelta(t, 2450.35, markers[0].Price, 1e-9)
	assert.InDelta(t, -0.41, *markers[0].ChangePercent, 1e-9)
}

func TestParse_SkipsBlocksWithoutPrice(t *testing.T) {
	assert.Empty(t, Parse("nothing to see here"))
	assert.Empty(t, Parse(""))
}
