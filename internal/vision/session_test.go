package vision

import (
	"testing"
	"time"
)

func newTestSession(cfg SessionConfig) *Session {
	return NewSession(NewCentroidTracker(testConfig()), cfg)
}

func defaultTestSession() *Session {
	cfg := DefaultSessionConfig()
	return newTestSession(cfg)
}

func TestSession_FiltersInvalidDetections(t *testing.T) {
	s := defaultTestSession()
	now := time.Now()

	snap := s.ProcessFrameAt([]Detection{
		{X1: 100, Y1: 100, X2: 100, Y2: 300, Confidence: 0.9, Class: PersonClass}, // degenerate
		{X1: 100, Y1: 100, X2: 200, Y2: 300, Confidence: 0.9, Class: "car"},       // wrong class
		{X1: 100, Y1: 100, X2: 200, Y2: 300, Confidence: 0.1, Class: PersonClass}, // low confidence
	}, now)

	if snap.ActiveTracks != 0 {
		t.Errorf("expected no tracks from filtered detections, got %d", snap.ActiveTracks)
	}
}

func TestSession_CrossingThroughPipeline(t *testing.T) {
	s := defaultTestSession()
	now := time.Now()

	s.ProcessFrameAt([]Detection{detAt(100, 200)}, now)
	snap := s.ProcessFrameAt([]Detection{detAt(100, 280)}, now.Add(33*time.Millisecond))

	if snap.CountIn != 1 || snap.CountOut != 0 {
		t.Errorf("expected in=1 out=0, got %d/%d", snap.CountIn, snap.CountOut)
	}
	if snap.Occupancy != 1 {
		t.Errorf("expected occupancy 1, got %d", snap.Occupancy)
	}
	if snap.ActiveTracks != 1 || len(snap.People) != 1 {
		t.Errorf("expected 1 live identity, got %d (%d people)", snap.ActiveTracks, len(snap.People))
	}
	if snap.People[0].ID != 1 {
		t.Errorf("expected identity 1, got %d", snap.People[0].ID)
	}
	if snap.SessionID == "" {
		t.Error("expected non-empty session id")
	}
}

func TestSession_OccupancyClampedAtZero(t *testing.T) {
	// First seen below the line, then exits upward: out leads in, but the
	// reported occupancy never goes negative.
	s := defaultTestSession()
	now := time.Now()

	s.ProcessFrameAt([]Detection{detAt(100, 280)}, now)
	snap := s.ProcessFrameAt([]Detection{detAt(100, 200)}, now.Add(33*time.Millisecond))

	if snap.CountOut != 1 {
		t.Fatalf("expected out=1, got %d", snap.CountOut)
	}
	if snap.Occupancy != 0 {
		t.Errorf("expected occupancy clamped to 0, got %d", snap.Occupancy)
	}
}

func TestSession_OverCapacity(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.MaxCapacity = 1
	s := newTestSession(cfg)
	now := time.Now()

	// Two people enter.
	s.ProcessFrameAt([]Detection{detAt(100, 200), detAt(500, 200)}, now)
	snap := s.ProcessFrameAt([]Detection{detAt(100, 280), detAt(500, 280)}, now.Add(33*time.Millisecond))

	if snap.CountIn != 2 {
		t.Fatalf("expected in=2, got %d", snap.CountIn)
	}
	if !snap.OverCapacity {
		t.Error("expected over capacity at occupancy 2 > capacity 1")
	}
}

func TestSession_PruneDrivenByTrackerLiveness(t *testing.T) {
	s := defaultTestSession()
	now := time.Now()

	s.ProcessFrameAt([]Detection{detAt(100, 200)}, now)
	if !s.counter.Seen(1) {
		t.Fatal("expected counter state for live identity")
	}

	// Age the track past MaxDisappeared; the prune inside the frame cycle
	// must drop the counter state the moment the tracker removes it.
	for i := 0; i <= testConfig().MaxDisappeared; i++ {
		now = now.Add(33 * time.Millisecond)
		s.ProcessFrameAt(nil, now)
	}

	if s.tracker.TrackCount() != 0 {
		t.Fatal("expected tracker to have removed the identity")
	}
	if s.counter.Seen(1) {
		t.Error("expected counter state pruned with the identity")
	}
}

func TestSession_ResetIdempotentAndLeavesTracker(t *testing.T) {
	s := defaultTestSession()
	now := time.Now()

	s.ProcessFrameAt([]Detection{detAt(100, 200)}, now)
	s.ProcessFrameAt([]Detection{detAt(100, 280)}, now.Add(33*time.Millisecond))

	s.Reset()
	s.Reset()

	snap := s.Snapshot()
	if snap.CountIn != 0 || snap.CountOut != 0 || snap.Occupancy != 0 {
		t.Errorf("expected zeroed counters, got in=%d out=%d occ=%d", snap.CountIn, snap.CountOut, snap.Occupancy)
	}
	if snap.ActiveTracks != 1 {
		t.Errorf("counter reset must not touch tracker identities, got %d tracks", snap.ActiveTracks)
	}
}

func TestSession_MutatorsValidateAndKeepPrior(t *testing.T) {
	s := defaultTestSession()

	if err := s.SetMaxCapacity(0); err == nil {
		t.Error("expected rejection of non-positive capacity")
	}
	if err := s.SetConfidenceMin(1.5); err == nil {
		t.Error("expected rejection of out-of-range confidence")
	}
	if err := s.SetOrientation("diagonal"); err == nil {
		t.Error("expected rejection of unknown orientation")
	}
	if err := s.SetLinePosition(-5); err == nil {
		t.Error("expected rejection of negative line position")
	}
	if err := s.SetHysteresisMargin(-1); err == nil {
		t.Error("expected rejection of negative margin")
	}

	got := s.Config()
	want := DefaultSessionConfig()
	if got != want {
		t.Errorf("rejected mutators must keep prior config: got %+v want %+v", got, want)
	}

	if err := s.SetMaxCapacity(25); err != nil {
		t.Errorf("valid capacity rejected: %v", err)
	}
	if s.Config().MaxCapacity != 25 {
		t.Errorf("expected capacity 25, got %d", s.Config().MaxCapacity)
	}
}

func TestSession_MutatorsPreserveCounterState(t *testing.T) {
	s := defaultTestSession()
	now := time.Now()

	s.ProcessFrameAt([]Detection{detAt(100, 200)}, now)
	s.ProcessFrameAt([]Detection{detAt(100, 280)}, now.Add(33*time.Millisecond))

	if err := s.SetLinePosition(300); err != nil {
		t.Fatalf("SetLinePosition: %v", err)
	}
	if err := s.SetMaxCapacity(50); err != nil {
		t.Fatalf("SetMaxCapacity: %v", err)
	}

	snap := s.Snapshot()
	if snap.CountIn != 1 {
		t.Errorf("mutators must not reset counters, got in=%d", snap.CountIn)
	}
	if !s.counter.Seen(1) {
		t.Error("mutators must not clear per-identity state")
	}
}

func TestSession_PeakTracks(t *testing.T) {
	s := defaultTestSession()
	now := time.Now()

	s.ProcessFrameAt([]Detection{detAt(100, 200), detAt(500, 200)}, now)
	snap := s.ProcessFrameAt([]Detection{detAt(100, 200)}, now.Add(33*time.Millisecond))

	if snap.PeakTracks != 2 {
		t.Errorf("expected peak of 2, got %d", snap.PeakTracks)
	}
}

func TestSession_SegmentGeometry(t *testing.T) {
	// A segment session counts against the oblique counter; crossing the
	// directed segment left-to-right along its normal counts out, the
	// reverse counts in.
	cfg := DefaultSessionConfig()
	cfg.Segment = &Segment{Start: Point{X: 0, Y: 240}, End: Point{X: 640, Y: 240}}
	s := newTestSession(cfg)
	now := time.Now()

	s.ProcessFrameAt([]Detection{detAt(100, 200)}, now)
	snap := s.ProcessFrameAt([]Detection{detAt(100, 280)}, now.Add(33*time.Millisecond))
	if snap.CountIn != 0 || snap.CountOut != 1 {
		t.Errorf("expected in=0 out=1, got %d/%d", snap.CountIn, snap.CountOut)
	}

	snap = s.ProcessFrameAt([]Detection{detAt(100, 200)}, now.Add(66*time.Millisecond))
	if snap.CountIn != 1 {
		t.Errorf("expected return crossing counted in, got in=%d", snap.CountIn)
	}

	if s.Config().Segment == nil {
		t.Error("expected segment geometry reported in config")
	}

	// Line parameters do not apply to a segment session.
	if err := s.SetLinePosition(300); err == nil {
		t.Error("expected line position rejected for segment geometry")
	}
	if err := s.SetOrientation(Vertical); err == nil {
		t.Error("expected orientation rejected for segment geometry")
	}
	if err := s.SetHysteresisMargin(5); err == nil {
		t.Error("expected hysteresis rejected for segment geometry")
	}
	if err := s.SetMaxCapacity(5); err != nil {
		t.Errorf("capacity must stay mutable: %v", err)
	}
}

func TestSession_TrajectoryReadsDuringFrames(t *testing.T) {
	// Trajectory rendering reads track histories while frames keep
	// arriving. ActiveTracks hands out copies, so the read side never
	// observes a history slice mid-rewrite. Run under -race.
	s := defaultTestSession()
	now := time.Now()
	s.ProcessFrameAt([]Detection{detAt(100, 100)}, now)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 200; i++ {
			s.ProcessFrameAt([]Detection{detAt(100+i, 100)}, now.Add(time.Duration(i)*33*time.Millisecond))
		}
	}()

	for i := 0; i < 200; i++ {
		for _, tr := range s.ActiveTracks() {
			for _, p := range tr.History {
				if p.Y != 100 {
					t.Errorf("unexpected history point %+v", p)
				}
			}
		}
	}
	<-done
}
