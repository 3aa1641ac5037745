package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	s, ok := Summarize([]float64{100, 110, 90})
	require.True(t, ok)
	assert.InDelta(t, 100, s.Mean, 1e-9)
	assert.Equal(t, 110.0, s.Max)
	assert.Equal(t, 90.0, s.Min)
	assert.Equal(t, 20.0, s.Swing())

	_, ok = Summarize(nil)
	assert.False(t, ok)
}

func TestChangePercent(t *testing.T) {
	assert.InDelta(t, 5.0, ChangePercent(105, 100), 1e-9)
	assert.InDelta(t, -2.5, ChangePercent(97.5, 100), 1e-9)
	assert.Equal(t, 0.0, ChangePercent(10, 0))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(0.01))
	assert.False(t, Valid(0))
	assert.False(t, Valid(-3))
	assert.False(t, Valid(math.NaN()))
	assert.False(t, Valid(math.Inf(1)))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 3.14, Round(3.14159, 2))
	assert.Equal(t, -1.5, Round(-1.49999, 1))
}
