package vision

import (
	"sort"
	"sync"
	"time"
)

// MinOverlap is the IoU floor for the overlap tracker: a detection only
// continues a track when their boxes overlap at least this much.
const MinOverlap = 0.3

// OverlapTracker is the fallback backend: detections continue the existing
// track with the highest bounding-box IoU. It has no motion model, so it
// suits low frame-to-frame displacement; the centroid tracker is the default.
type OverlapTracker struct {
	Tracks map[int64]*Track
	NextID int64
	Config TrackerConfig

	mu sync.RWMutex
}

// NewOverlapTracker creates an overlap tracker with the specified
// configuration.
func NewOverlapTracker(config TrackerConfig) *OverlapTracker {
	return &OverlapTracker{
		Tracks: make(map[int64]*Track),
		NextID: 1,
		Config: config,
	}
}

// iou returns the intersection-over-union of two [x1, y1, x2, y2] boxes.
func iou(a, b [4]int) float64 {
	ix1 := max(a[0], b[0])
	iy1 := max(a[1], b[1])
	ix2 := min(a[2], b[2])
	iy2 := min(a[3], b[3])

	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}

	inter := (ix2 - ix1) * (iy2 - iy1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Update matches each detection, in input order, to the free track with the
// best IoU above MinOverlap. Unmatched detections register new identities;
// unmatched tracks age by one disappeared tick and are removed past
// MaxDisappeared, same lifecycle as the centroid tracker.
func (t *OverlapTracker) Update(dets []Detection, timestamp time.Time) []TrackedPerson {
	t.mu.Lock()
	defer t.mu.Unlock()

	nowNanos := timestamp.UnixNano()
	matched := make(map[int64]bool)

	for _, d := range dets {
		box := d.Box()

		var bestID int64
		bestIoU := MinOverlap
		for _, id := range t.sortedIDs() {
			if matched[id] {
				continue
			}
			if ov := iou(box, t.Tracks[id].Box); ov > bestIoU {
				bestIoU = ov
				bestID = id
			}
		}

		if bestID != 0 {
			t.Tracks[bestID].observe(d, t.Config.HistoryLength, nowNanos)
			matched[bestID] = true
			continue
		}

		id := t.register(d, nowNanos)
		matched[id] = true
	}

	for _, id := range t.sortedIDs() {
		if matched[id] {
			continue
		}
		tr := t.Tracks[id]
		tr.Disappeared++
		if tr.Disappeared > t.Config.MaxDisappeared {
			delete(t.Tracks, id)
		}
	}

	people := make([]TrackedPerson, 0, len(t.Tracks))
	for _, id := range t.sortedIDs() {
		tr := t.Tracks[id]
		people = append(people, TrackedPerson{ID: tr.ID, Box: tr.Box})
	}
	return people
}

func (t *OverlapTracker) register(d Detection, nowNanos int64) int64 {
	id := t.NextID
	t.NextID++

	w, h := d.Size()
	t.Tracks[id] = &Track{
		ID:             id,
		Centroid:       d.Centroid(),
		Width:          w,
		Height:         h,
		Box:            d.Box(),
		History:        []Point{d.Centroid()},
		FirstUnixNanos: nowNanos,
		LastUnixNanos:  nowNanos,
	}
	return id
}

func (t *OverlapTracker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(t.Tracks))
	for id := range t.Tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// ActiveIDs returns the identities currently tracked.
func (t *OverlapTracker) ActiveIDs() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedIDs()
}

// ActiveTracks returns copies of the live tracks, ordered by identity, taken
// under the tracker lock.
func (t *OverlapTracker) ActiveTracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tracks := make([]Track, 0, len(t.Tracks))
	for _, id := range t.sortedIDs() {
		tracks = append(tracks, t.Tracks[id].snapshot())
	}
	return tracks
}

// TrackCount returns the number of live tracks.
func (t *OverlapTracker) TrackCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.Tracks)
}
