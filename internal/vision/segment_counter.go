package vision

// Segment is an arbitrary directed counting segment, selected through
// SessionConfig as the alternative to the axis-aligned line.
type Segment struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Valid reports whether the segment has distinct endpoints.
func (s Segment) Valid() bool {
	return s.Start != s.End
}

// SegmentCounter counts crossings of an arbitrary line segment. The side
// test is the sign of the cross product of the segment direction with the
// vector to the point, so the line need not be axis-aligned. Functionally
// equivalent to LineCounter for axis-aligned segments; kept as the variant
// geometry for oblique counting lines.
//
// Like LineCounter it carries no internal locking; the owning session
// serialises access.
type SegmentCounter struct {
	Start Point
	End   Point

	CountIn  int
	CountOut int

	above map[int64]bool
}

// NewSegmentCounter creates a counter for the segment from start to end.
func NewSegmentCounter(start, end Point) *SegmentCounter {
	return &SegmentCounter{
		Start: start,
		End:   end,
		above: make(map[int64]bool),
	}
}

// isAbove reports which half-plane the point falls in relative to the
// directed segment.
func (sc *SegmentCounter) isAbove(p Point) bool {
	return (p.X-sc.Start.X)*(sc.End.Y-sc.Start.Y)-(p.Y-sc.Start.Y)*(sc.End.X-sc.Start.X) > 0
}

// CheckCrossing records one observation of an identity. Same contract as
// LineCounter.CheckCrossing: the first observation records the side silently;
// each subsequent side flip counts exactly once, into CountIn when the
// identity moves to the positive half-plane and CountOut otherwise.
func (sc *SegmentCounter) CheckCrossing(id int64, box [4]int) Direction {
	p := Point{X: (box[0] + box[2]) / 2, Y: (box[1] + box[3]) / 2}
	above := sc.isAbove(p)

	prev, seen := sc.above[id]
	sc.above[id] = above

	if !seen || prev == above {
		return DirectionNone
	}
	if above {
		sc.CountIn++
		return DirectionIn
	}
	sc.CountOut++
	return DirectionOut
}

// Seen reports whether the counter holds side state for an identity.
func (sc *SegmentCounter) Seen(id int64) bool {
	_, ok := sc.above[id]
	return ok
}

// Prune deletes side state for identities not in the active set.
func (sc *SegmentCounter) Prune(active []int64) {
	live := make(map[int64]bool, len(active))
	for _, id := range active {
		live[id] = true
	}
	for id := range sc.above {
		if !live[id] {
			delete(sc.above, id)
		}
	}
}

// Counts returns the directional totals.
func (sc *SegmentCounter) Counts() (in, out int) {
	return sc.CountIn, sc.CountOut
}

// Reset zeroes both counters and forgets all per-identity state.
func (sc *SegmentCounter) Reset() {
	sc.CountIn = 0
	sc.CountOut = 0
	sc.above = make(map[int64]bool)
}
