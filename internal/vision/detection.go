package vision

// PersonClass is the detector class label that reaches the tracker.
// Detections carrying any other label are dropped at the pipeline boundary.
const PersonClass = "person"

// Detection is a single detector output for one frame: an axis-aligned
// bounding box in pixel coordinates plus the detector's confidence and class
// label. Detections are transient inputs; the tracker never retains them.
type Detection struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
}

// Valid reports whether the bounding box has positive extent. Degenerate
// boxes are skipped before they reach the tracker.
func (d Detection) Valid() bool {
	return d.X2 > d.X1 && d.Y2 > d.Y1
}

// Centroid returns the geometric centre of the bounding box. The centroid is
// the position proxy for both tracking and line-crossing.
func (d Detection) Centroid() Point {
	return Point{X: (d.X1 + d.X2) / 2, Y: (d.Y1 + d.Y2) / 2}
}

// Size returns the bounding box width and height.
func (d Detection) Size() (w, h int) {
	return d.X2 - d.X1, d.Y2 - d.Y1
}

// Box returns the bounding box as [x1, y1, x2, y2].
func (d Detection) Box() [4]int {
	return [4]int{d.X1, d.Y1, d.X2, d.Y2}
}
