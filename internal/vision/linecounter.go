package vision

// Orientation selects the counting line geometry.
type Orientation string

const (
	Horizontal Orientation = "horizontal" // fixed y; people cross moving up/down
	Vertical   Orientation = "vertical"   // fixed x; people cross moving left/right
)

// Valid reports whether the orientation is one of the supported values.
func (o Orientation) Valid() bool {
	return o == Horizontal || o == Vertical
}

// Side names the half-plane a position falls in relative to the line.
type Side string

const (
	SideAbove Side = "above"
	SideBelow Side = "below"
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Direction is the outcome of one crossing check.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionIn   Direction = "in"  // above→below or left→right
	DirectionOut  Direction = "out" // below→above or right→left
)

// Counter is the crossing-counter contract shared by the axis-aligned line
// and the segment geometry. The session drives exactly one of them per frame
// cycle; neither carries internal locking.
type Counter interface {
	CheckCrossing(id int64, box [4]int) Direction
	Prune(active []int64)
	Seen(id int64) bool
	Counts() (in, out int)
	Reset()
}

var (
	_ Counter = (*LineCounter)(nil)
	_ Counter = (*SegmentCounter)(nil)
)

// sideState is the per-identity memory: which side the identity was last
// seen on and its last scalar position along the crossing axis.
type sideState struct {
	side Side
	pos  int
}

// LineCounter converts a stream of (identity, position) observations into
// directional crossing counts against a fixed horizontal or vertical line.
//
// There is no debounce by default: an identity oscillating across the line
// produces one count per observed side flip. That is the documented policy,
// not a bug; set HysteresisMargin to require the position to clear the line
// by a dead band before a flip registers.
//
// The counter has no internal locking. The owning session serialises all
// access, counters included, under its frame mutex.
type LineCounter struct {
	Position         int
	Orientation      Orientation
	HysteresisMargin int

	CountIn  int
	CountOut int

	states map[int64]sideState
}

// NewLineCounter creates a counter for a line at the given scalar position
// with the given orientation and no hysteresis.
func NewLineCounter(position int, orientation Orientation) *LineCounter {
	return &LineCounter{
		Position:    position,
		Orientation: orientation,
		states:      make(map[int64]sideState),
	}
}

// sideOf classifies a centroid against the line. Points exactly on the line
// fall below (horizontal) or right (vertical).
func (lc *LineCounter) sideOf(c Point) (Side, int) {
	if lc.Orientation == Vertical {
		if c.X < lc.Position {
			return SideLeft, c.X
		}
		return SideRight, c.X
	}
	if c.Y < lc.Position {
		return SideAbove, c.Y
	}
	return SideBelow, c.Y
}

// CheckCrossing records one observation of an identity and reports whether
// it crossed the line. The first observation only records the side, since
// there is no previous side to compare against. Every later observation on
// the opposite side emits exactly one crossing; the stored side and position
// are overwritten unconditionally either way.
func (lc *LineCounter) CheckCrossing(id int64, box [4]int) Direction {
	c := Point{X: (box[0] + box[2]) / 2, Y: (box[1] + box[3]) / 2}
	side, pos := lc.sideOf(c)

	prev, seen := lc.states[id]
	if !seen {
		lc.states[id] = sideState{side: side, pos: pos}
		return DirectionNone
	}

	// With a hysteresis margin, a position still inside the dead band keeps
	// the previous side; the flip registers only once the line is cleared by
	// more than the margin.
	if lc.HysteresisMargin > 0 && side != prev.side {
		if d := pos - lc.Position; d >= -lc.HysteresisMargin && d <= lc.HysteresisMargin {
			side = prev.side
		}
	}

	dir := DirectionNone
	if side != prev.side {
		switch {
		case prev.side == SideAbove && side == SideBelow,
			prev.side == SideLeft && side == SideRight:
			lc.CountIn++
			dir = DirectionIn
		case prev.side == SideBelow && side == SideAbove,
			prev.side == SideRight && side == SideLeft:
			lc.CountOut++
			dir = DirectionOut
		}
	}

	lc.states[id] = sideState{side: side, pos: pos}
	return dir
}

// Prune deletes side state for every identity not in the active set. The
// tracker's liveness decision is the only staleness source; the counter never
// ages state on its own. Call once per frame cycle, immediately after the
// tracker update.
func (lc *LineCounter) Prune(active []int64) {
	live := make(map[int64]bool, len(active))
	for _, id := range active {
		live[id] = true
	}
	for id := range lc.states {
		if !live[id] {
			delete(lc.states, id)
		}
	}
}

// Seen reports whether the counter holds side state for an identity.
func (lc *LineCounter) Seen(id int64) bool {
	_, ok := lc.states[id]
	return ok
}

// Counts returns the directional totals. Both are monotonically
// non-decreasing between resets.
func (lc *LineCounter) Counts() (in, out int) {
	return lc.CountIn, lc.CountOut
}

// Reset zeroes both counters and forgets all per-identity state. Idempotent.
func (lc *LineCounter) Reset() {
	lc.CountIn = 0
	lc.CountOut = 0
	lc.states = make(map[int64]sideState)
}
