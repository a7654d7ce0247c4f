package vision

import (
	"fmt"
	"time"
)

// TrackedPerson is the per-frame output handed to the counter and the UI: a
// stable identity plus the current bounding box [x1, y1, x2, y2].
type TrackedPerson struct {
	ID  int64  `json:"id"`
	Box [4]int `json:"bbox"`
}

// Tracker abstracts the tracking implementation. Both the centroid tracker
// and the overlap fallback satisfy one update contract, so the backend is a
// construction-time choice rather than a per-call capability check.
type Tracker interface {
	// Update processes one frame of detections and returns the live
	// identities with their bounding boxes.
	Update(dets []Detection, timestamp time.Time) []TrackedPerson

	// ActiveIDs returns the identities currently tracked. The line
	// counter prunes its per-identity state against this set.
	ActiveIDs() []int64

	// ActiveTracks returns copies of the live tracks, ordered by
	// identity. The copies are safe to read while updates continue; no
	// live pointer ever leaves the tracker's lock.
	ActiveTracks() []Track

	// TrackCount returns the number of live tracks.
	TrackCount() int
}

// TrackerKind selects a tracking backend at construction time.
type TrackerKind string

const (
	TrackerCentroid TrackerKind = "centroid" // predicted-centroid distance + size similarity
	TrackerOverlap  TrackerKind = "overlap"  // bounding-box IoU fallback
)

// NewTracker constructs the tracking backend for the given kind.
func NewTracker(kind TrackerKind, config TrackerConfig) (Tracker, error) {
	switch kind {
	case TrackerCentroid, "":
		return NewCentroidTracker(config), nil
	case TrackerOverlap:
		return NewOverlapTracker(config), nil
	default:
		return nil, fmt.Errorf("unknown tracker kind %q", kind)
	}
}

// Verify at compile time that both backends implement Tracker.
var (
	_ Tracker = (*CentroidTracker)(nil)
	_ Tracker = (*OverlapTracker)(nil)
)
