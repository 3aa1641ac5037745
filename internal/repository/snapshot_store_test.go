package repository

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"FinPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(id string, price float64, seq int) models.Snapshot {
	return models.Snapshot{
		InstrumentID: id,
		Price:        price,
		Open:         price,
		ObservedAt:   time.Date(2026, 3, 2, 9, 15, seq, 0, time.UTC),
		Provenance:   models.ProvenanceLive,
		Embedding:    []float64{float64(seq), 1},
	}
}

func TestSnapshotStore_EvictsHeadAtCapacity(t *testing.T) {
	s := NewSnapshotStore(3)

	for i, id := range []string{"A", "B", "C", "D"} {
		s.Append(snap(id, float64(10*(i+1)), i))
	}

	require.Equal(t, 3, s.Len())
	ids := make([]string, 0, 3)
	for _, e := range s.All() {
		ids = append(ids, e.InstrumentID)
	}
	assert.Equal(t, []string{"B", "C", "D"}, ids)

	view := s.View()
	require.Len(t, view.Vectors, 3)
	for i := range view.Entries {
		assert.Equal(t, view.Entries[i].Embedding, view.Vectors[i], "entry %d misaligned", i)
	}
}

func TestSnapshotStore_Window(t *testing.T) {
	s := NewSnapshotStore(10)
	for i := 0; i < 5; i++ {
		s.Append(snap(fmt.Sprintf("S%d", i), 1, i))
	}

	w := s.Window(2)
	require.Len(t, w, 2)
	assert.Equal(t, "S3", w[0].InstrumentID)
	assert.Equal(t, "S4", w[1].InstrumentID)

	assert.Len(t, s.Window(50), 5)
	assert.Empty(t, s.Window(0))
}

func TestSnapshotStore_ViewIsStableAcrossLaterAppends(t *testing.T) {
	s := NewSnapshotStore(2)
	s.Append(snap("A", 1, 0))
	s.Append(snap("B", 2, 1))

	before := s.All()
	s.Append(snap("C", 3, 2))
	s.Append(snap("D", 4, 3))

	require.Len(t, before, 2)
	assert.Equal(t, "A", before[0].InstrumentID)
	assert.Equal(t, "B", before[1].InstrumentID)

	// appending to a view must not leak into the store
	_ = append(before, snap("X", 9, 9))
	assert.Equal(t, "C", s.All()[0].InstrumentID)
}

func TestSnapshotStore_ConcurrentReadersSeeAlignedViews(t *testing.T) {
	const capacity = 50
	s := NewSnapshotStore(capacity)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v := s.View()
				if len(v.Entries) != len(v.Vectors) || len(v.Entries) > capacity {
					t.Errorf("bad view: %d entries, %d vectors", len(v.Entries), len(v.Vectors))
					return
				}
				for i := range v.Entries {
					if v.Entries[i].Embedding[0] != v.Vectors[i][0] {
						t.Errorf("entry %d misaligned", i)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		s.Append(snap("A", float64(i), i))
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, capacity, s.Len())
	assert.Equal(t, float64(1999), s.All()[capacity-1].Price)
}
