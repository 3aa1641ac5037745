package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_CountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordSnapshotStored("live", "TCS")
	r.RecordSnapshotStored("live", "TCS")
	r.RecordSnapshotStored("synthetic", "TCS")
	r.RecordError("fetch")
	r.RecordLastPrice("TCS", 3512.5)
	r.RecordQuery("offline")
	r.SetStoreSize(42, 7)
	r.SetModes(true, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.snapshotsStored.WithLabelValues("live", "TCS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.snapshotsStored.WithLabelValues("synthetic", "TCS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("fetch")))
	assert.Equal(t, 3512.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("TCS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("offline")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.storeEntries))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.storeUnique))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sourceDegraded))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.generativeUp))
}

func TestRecorder_PrivateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegisterer(prometheus.NewRegistry())
		NewWithRegisterer(prometheus.NewRegistry())
	})
}
