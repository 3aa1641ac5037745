package usecase

import (
	"testing"

	"FinPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatJob_UpdatesGauges(t *testing.T) {
	store := storeWith(10,
		snap("TCS", 3570, 1, at(1)),
		snap("INFY", 1490, -0.5, at(1)),
		snap("TCS", 3580, 1.2, at(2)),
	)
	views := NewMarketViews(store, WithHealthSources(stubSource{mode: models.SourceSynthetic}, stubGenerative(models.ModeOnline)))
	m := newFakeMetrics()
	job := NewHeartbeatJob(views, m, nil)

	assert.Equal(t, "heartbeat", job.Name())
	require.NoError(t, job.Run())

	require.Len(t, m.stores, 1)
	assert.Equal(t, [2]int{3, 2}, m.stores[0])
	require.Len(t, m.modes, 1)
	assert.Equal(t, [2]bool{true, true}, m.modes[0])
}

func TestHeartbeatJob_TracksAlertsOnce(t *testing.T) {
	store := storeWith(10,
		snap("TCS", 3570, 4.5, at(1)),
		snap("INFY", 1490, -6, at(1)),
	)
	views := NewMarketViews(store)
	job := NewHeartbeatJob(views, newFakeMetrics(), nil)

	require.NoError(t, job.Run())
	assert.Len(t, job.seen, 2)

	require.NoError(t, job.Run())
	assert.Len(t, job.seen, 2)

	// a calmer TCS print replaces its alert; the set shrinks to INFY
	store.Append(snap("TCS", 3575, 0.2, at(2)))
	require.NoError(t, job.Run())
	assert.Len(t, job.seen, 1)
}
