package vision

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// TrackerConfig holds configuration parameters for the centroid tracker.
type TrackerConfig struct {
	MaxDisappeared int     // Consecutive unmatched frames before a track is removed
	MaxDistance    float64 // Maximum association cost for a match (pixels)
	HistoryLength  int     // Centroids retained per track for trajectory rendering
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxDisappeared: 60,
		MaxDistance:    150,
		HistoryLength:  10,
	}
}

// CentroidTracker associates per-frame detections to persistent identities by
// predicted-centroid distance weighted by bounding-box size similarity.
//
// Assignment is greedy, not optimal bipartite matching: rows are resolved in
// ascending order of their minimum cost so the most confident matches win
// first, and each row takes its argmin column if still free and within
// MaxDistance. Per-frame person counts are small and costs are rarely
// near-tied, so the occasional suboptimal pairing is accepted. Do not replace
// this with an exact solver without revisiting the tests that pin the
// assignment order.
type CentroidTracker struct {
	Tracks map[int64]*Track
	NextID int64
	Config TrackerConfig

	mu sync.RWMutex
}

// NewCentroidTracker creates a tracker with the specified configuration.
func NewCentroidTracker(config TrackerConfig) *CentroidTracker {
	return &CentroidTracker{
		Tracks: make(map[int64]*Track),
		NextID: 1,
		Config: config,
	}
}

// Update processes one frame of detections and returns the live identities.
// A frame with no detections ages every track by one disappeared tick; a
// frame arriving at an empty tracker registers every detection as new.
func (t *CentroidTracker) Update(dets []Detection, timestamp time.Time) []TrackedPerson {
	t.mu.Lock()
	defer t.mu.Unlock()

	nowNanos := timestamp.UnixNano()

	switch {
	case len(dets) == 0:
		for id := range t.Tracks {
			t.markMissed(id)
		}
	case len(t.Tracks) == 0:
		for _, d := range dets {
			t.register(d, nowNanos)
		}
	default:
		t.assign(dets, nowNanos)
	}

	return t.livePeople()
}

// assign solves the frame-to-frame association for a non-empty tracker and a
// non-empty detection set.
func (t *CentroidTracker) assign(dets []Detection, nowNanos int64) {
	ids := t.sortedIDs()
	tracks := make([]*Track, len(ids))
	for i, id := range ids {
		tracks[i] = t.Tracks[id]
	}

	costs := costMatrix(tracks, dets)

	// Rows ordered by their minimum cost: most confident matches first.
	rowMin := make([]float64, len(tracks))
	rowArg := make([]int, len(tracks))
	for i := range tracks {
		row := mat.Row(nil, i, costs)
		rowArg[i] = floats.MinIdx(row)
		rowMin[i] = row[rowArg[i]]
	}
	order := make([]int, len(tracks))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return rowMin[order[a]] < rowMin[order[b]] })

	usedRows := make(map[int]bool)
	usedCols := make(map[int]bool)

	for _, row := range order {
		col := rowArg[row]
		if usedRows[row] || usedCols[col] {
			continue
		}
		if costs.At(row, col) > t.Config.MaxDistance {
			continue
		}
		tracks[row].observe(dets[col], t.Config.HistoryLength, nowNanos)
		usedRows[row] = true
		usedCols[col] = true
	}

	// Unmatched rows age by one tick; unmatched columns always become new
	// identities, even when rows remain unmatched this frame.
	for row, id := range ids {
		if !usedRows[row] {
			t.markMissed(id)
		}
	}
	for col, d := range dets {
		if !usedCols[col] {
			t.register(d, nowNanos)
		}
	}
}

// register creates a new track for an unmatched detection. Velocity starts at
// zero and the history seeds with the first centroid.
func (t *CentroidTracker) register(d Detection, nowNanos int64) *Track {
	id := t.NextID
	t.NextID++

	w, h := d.Size()
	tr := &Track{
		ID:             id,
		Centroid:       d.Centroid(),
		Width:          w,
		Height:         h,
		Box:            d.Box(),
		History:        []Point{d.Centroid()},
		FirstUnixNanos: nowNanos,
		LastUnixNanos:  nowNanos,
	}
	t.Tracks[id] = tr
	return tr
}

// markMissed ages a track by one disappeared tick and removes it once the
// count exceeds MaxDisappeared. Removal deletes all per-track state; the
// identity is never reassigned.
func (t *CentroidTracker) markMissed(id int64) {
	tr := t.Tracks[id]
	tr.Disappeared++
	if tr.Disappeared > t.Config.MaxDisappeared {
		delete(t.Tracks, id)
	}
}

// sortedIDs returns the live track IDs in ascending order. IDs are assigned
// monotonically, so this matches registration order and keeps the greedy
// assignment deterministic.
func (t *CentroidTracker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(t.Tracks))
	for id := range t.Tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// livePeople snapshots the live identities. Caller must hold at least a read
// lock.
func (t *CentroidTracker) livePeople() []TrackedPerson {
	people := make([]TrackedPerson, 0, len(t.Tracks))
	for _, id := range t.sortedIDs() {
		tr := t.Tracks[id]
		people = append(people, TrackedPerson{ID: tr.ID, Box: tr.Box})
	}
	return people
}

// ActiveIDs returns the identities currently tracked.
func (t *CentroidTracker) ActiveIDs() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedIDs()
}

// ActiveTracks returns copies of the live tracks, ordered by identity. The
// copies are taken under the tracker lock so callers may read them, history
// included, while updates continue.
func (t *CentroidTracker) ActiveTracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tracks := make([]Track, 0, len(t.Tracks))
	for _, id := range t.sortedIDs() {
		tracks = append(tracks, t.Tracks[id].snapshot())
	}
	return tracks
}

// TrackCount returns the number of live tracks.
func (t *CentroidTracker) TrackCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.Tracks)
}

// getTrack returns the live track for an identity, or nil. The pointer is
// only valid under single-goroutine use; external readers go through
// ActiveTracks.
func (t *CentroidTracker) getTrack(id int64) *Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Tracks[id]
}
