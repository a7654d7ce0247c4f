package vision

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatesense/doorcount/internal/monitoring"
)

// SessionConfig holds the runtime-tunable counting parameters. Segment, when
// set, selects the oblique-segment counter instead of the axis-aligned line;
// the line fields are then ignored and fixed for the session's lifetime.
type SessionConfig struct {
	LinePosition     int         // scalar line coordinate, pixels
	Orientation      Orientation // horizontal or vertical
	MaxCapacity      int         // occupancy above this is over capacity
	ConfidenceMin    float64     // detections below this never reach the tracker
	HysteresisMargin int         // dead band around the line, 0 = off
	Segment          *Segment    // oblique counting segment, nil = axis-aligned line
}

// DefaultSessionConfig returns the default counting parameters.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		LinePosition:  240,
		Orientation:   Horizontal,
		MaxCapacity:   10,
		ConfidenceMin: 0.4,
	}
}

// Snapshot is the per-frame summary handed to the UI and the summary store:
// the four persisted values (timestamp, in, out, occupancy) plus live state.
type Snapshot struct {
	SessionID    string          `json:"session_id"`
	Timestamp    time.Time       `json:"timestamp"`
	CountIn      int             `json:"count_in"`
	CountOut     int             `json:"count_out"`
	Occupancy    int             `json:"current_occupancy"`
	OverCapacity bool            `json:"over_capacity"`
	ActiveTracks int             `json:"active_tracks"`
	PeakTracks   int             `json:"peak_tracks"`
	Frames       int64           `json:"frames"`
	People       []TrackedPerson `json:"people"`
}

// Session runs the frame-synchronous pipeline: filter detections, update the
// tracker, check crossings, prune counter memory, derive occupancy. One
// detection→tracking→counting cycle completes fully before the next frame is
// accepted; a single mutex covers the whole cycle because track and counter
// state are shared mutable structures with no synchronization of their own
// (the tracker's internal lock only protects direct reads through the
// Tracker interface).
type Session struct {
	mu sync.Mutex

	id      string
	tracker Tracker
	counter Counter

	// line is the axis-aligned counter when that geometry is active, nil
	// for a segment session. The line mutators require it.
	line    *LineCounter
	segment *Segment

	maxCapacity   int
	confidenceMin float64

	peakTracks int
	frames     int64
	lastPeople []TrackedPerson
}

// NewSession creates a session over the given tracking backend. The counter
// geometry (axis-aligned line or oblique segment) is chosen here and fixed
// for the session's lifetime.
func NewSession(tracker Tracker, config SessionConfig) *Session {
	s := &Session{
		id:            uuid.NewString(),
		tracker:       tracker,
		maxCapacity:   config.MaxCapacity,
		confidenceMin: config.ConfidenceMin,
	}
	if config.Segment != nil {
		seg := *config.Segment
		s.segment = &seg
		s.counter = NewSegmentCounter(seg.Start, seg.End)
		return s
	}
	line := NewLineCounter(config.LinePosition, config.Orientation)
	line.HysteresisMargin = config.HysteresisMargin
	s.line = line
	s.counter = line
	return s
}

// ID returns the session identifier stamped on persisted summaries.
func (s *Session) ID() string {
	return s.id
}

// ProcessFrame runs one full frame cycle and returns the resulting snapshot.
// A nil or empty detection slice is a legitimate frame: every track ages one
// tick and no identity is registered. Detector failures upstream degrade to
// exactly this case rather than surfacing an error.
func (s *Session) ProcessFrame(dets []Detection) Snapshot {
	return s.ProcessFrameAt(dets, time.Now())
}

// ProcessFrameAt is ProcessFrame with an explicit frame timestamp.
func (s *Session) ProcessFrameAt(dets []Detection, timestamp time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	people := s.tracker.Update(s.filter(dets), timestamp)

	for _, p := range people {
		if dir := s.counter.CheckCrossing(p.ID, p.Box); dir != DirectionNone {
			in, out := s.counter.Counts()
			monitoring.Logf("track %d crossed %s (in=%d out=%d)", p.ID, dir, in, out)
		}
	}

	// Prune runs before any other read so the counter can never hold state
	// for a deregistered identity.
	s.counter.Prune(s.tracker.ActiveIDs())

	if len(people) > s.peakTracks {
		s.peakTracks = len(people)
	}
	s.frames++
	s.lastPeople = people

	return s.snapshotLocked(timestamp)
}

// filter drops detections that must never reach the tracker: degenerate
// boxes, non-person classes and low-confidence hits.
func (s *Session) filter(dets []Detection) []Detection {
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if !d.Valid() {
			continue
		}
		if d.Class != "" && d.Class != PersonClass {
			continue
		}
		if d.Confidence < s.confidenceMin {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// Snapshot returns the current state without advancing a frame.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(time.Now())
}

func (s *Session) snapshotLocked(timestamp time.Time) Snapshot {
	in, out := s.counter.Counts()
	occupancy := in - out
	if occupancy < 0 {
		// Counting artifacts can push out ahead of in; never report
		// negative occupancy.
		occupancy = 0
	}

	people := make([]TrackedPerson, len(s.lastPeople))
	copy(people, s.lastPeople)

	return Snapshot{
		SessionID:    s.id,
		Timestamp:    timestamp,
		CountIn:      in,
		CountOut:     out,
		Occupancy:    occupancy,
		OverCapacity: occupancy > s.maxCapacity,
		ActiveTracks: s.tracker.TrackCount(),
		PeakTracks:   s.peakTracks,
		Frames:       s.frames,
		People:       people,
	}
}

// Reset zeroes both counters and all per-identity counter state. Tracker
// identities are unaffected. Mutually exclusive with an in-flight frame
// cycle; idempotent.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter.Reset()
}

// ActiveTracks returns copies of the live tracks for read-only inspection
// (trajectory rendering, debug endpoints). The backend never hands out a
// mutable view.
func (s *Session) ActiveTracks() []Track {
	return s.tracker.ActiveTracks()
}

// Config returns the current runtime parameters. For a segment session the
// line fields are zero and Segment carries the geometry.
func (s *Session) Config() SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := SessionConfig{
		MaxCapacity:   s.maxCapacity,
		ConfidenceMin: s.confidenceMin,
	}
	if s.line != nil {
		cfg.LinePosition = s.line.Position
		cfg.Orientation = s.line.Orientation
		cfg.HysteresisMargin = s.line.HysteresisMargin
	}
	if s.segment != nil {
		seg := *s.segment
		cfg.Segment = &seg
	}
	return cfg
}

// Runtime mutators. Each validates its input and keeps the prior value on
// rejection; none of them reset track or counter state. The line mutators
// only apply to the axis-aligned geometry.

var errSegmentGeometry = fmt.Errorf("session counts against a segment; line parameters do not apply")

// SetLinePosition moves the counting line.
func (s *Session) SetLinePosition(position int) error {
	if position < 0 {
		return fmt.Errorf("line position must be non-negative, got %d", position)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.line == nil {
		return errSegmentGeometry
	}
	s.line.Position = position
	return nil
}

// SetOrientation switches the line geometry.
func (s *Session) SetOrientation(o Orientation) error {
	if !o.Valid() {
		return fmt.Errorf("orientation must be %q or %q, got %q", Horizontal, Vertical, o)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.line == nil {
		return errSegmentGeometry
	}
	s.line.Orientation = o
	return nil
}

// SetMaxCapacity changes the over-capacity threshold.
func (s *Session) SetMaxCapacity(capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("max capacity must be positive, got %d", capacity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxCapacity = capacity
	return nil
}

// SetConfidenceMin changes the detection confidence threshold.
func (s *Session) SetConfidenceMin(confidence float64) error {
	if confidence <= 0 || confidence >= 1 {
		return fmt.Errorf("confidence threshold must be in (0, 1), got %v", confidence)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confidenceMin = confidence
	return nil
}

// SetHysteresisMargin changes the dead band around the line. Zero restores
// the default count-every-flip behaviour.
func (s *Session) SetHysteresisMargin(margin int) error {
	if margin < 0 {
		return fmt.Errorf("hysteresis margin must be non-negative, got %d", margin)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.line == nil {
		return errSegmentGeometry
	}
	s.line.HysteresisMargin = margin
	return nil
}
