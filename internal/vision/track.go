package vision

// Velocity smoothing coefficients. The velocity estimate is an exponential
// moving average: sustained motion dominates while single-frame jitter decays.
const (
	velocityDecay = 0.7
	velocityGain  = 0.3
)

// Point is a pixel-coordinate position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Track represents one person followed across frames. The identity is a
// stable integer assigned at registration and never reused within a session.
type Track struct {
	// Identity
	ID int64

	// Current observation
	Centroid Point
	Width    int
	Height   int
	Box      [4]int

	// Smoothed velocity estimate in pixels per frame
	VX float64
	VY float64

	// Bounded history of recent centroids, oldest first
	History []Point

	// Consecutive frames with no matching detection
	Disappeared int

	// Timestamps
	FirstUnixNanos int64
	LastUnixNanos  int64
}

// Predicted returns the position the track is expected to occupy this frame:
// one-step linear extrapolation from the last centroid along the smoothed
// velocity. Used for association only; it never mutates the track.
func (tr *Track) Predicted() (x, y float64) {
	return float64(tr.Centroid.X) + tr.VX, float64(tr.Centroid.Y) + tr.VY
}

// observe applies a matched detection: velocity EMA update against the
// previous centroid, then centroid, size, box and history. The history keeps
// the most recent historyLength points, dropping the oldest.
func (tr *Track) observe(d Detection, historyLength int, nowNanos int64) {
	c := d.Centroid()

	tr.VX = velocityDecay*tr.VX + velocityGain*float64(c.X-tr.Centroid.X)
	tr.VY = velocityDecay*tr.VY + velocityGain*float64(c.Y-tr.Centroid.Y)

	tr.Centroid = c
	tr.Width, tr.Height = d.Size()
	tr.Box = d.Box()
	tr.Disappeared = 0
	tr.LastUnixNanos = nowNanos

	tr.History = append(tr.History, c)
	if len(tr.History) > historyLength {
		tr.History = tr.History[1:]
	}
}

// Age returns the number of observed positions, a proxy for track stability.
func (tr *Track) Age() int {
	return len(tr.History)
}

// snapshot returns a copy safe to read after the tracker lock is released.
// The history slice is copied so later observations cannot write through it.
func (tr *Track) snapshot() Track {
	cp := *tr
	cp.History = make([]Point, len(tr.History))
	copy(cp.History, tr.History)
	return cp
}
