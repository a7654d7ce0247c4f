package vision

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// sizeSimilarity returns the area ratio min/max of two bounding box sizes,
// clamped to (0, 1]. A degenerate size (zero width or height) yields 1.0 so
// an unknown size never penalises the match.
func sizeSimilarity(w1, h1, w2, h2 int) float64 {
	area1 := w1 * h1
	area2 := w2 * h2
	if area1 <= 0 || area2 <= 0 {
		return 1.0
	}
	if area1 < area2 {
		return float64(area1) / float64(area2)
	}
	return float64(area2) / float64(area1)
}

// associationCost scores a track against a detection: Euclidean distance from
// the track's predicted position to the detection centroid, divided by the
// size similarity. Similar sizes leave the distance untouched; mismatched
// sizes inflate it. Lower is better.
func associationCost(tr *Track, d Detection) float64 {
	px, py := tr.Predicted()
	c := d.Centroid()
	dist := math.Hypot(px-float64(c.X), py-float64(c.Y))

	w, h := d.Size()
	return dist / sizeSimilarity(tr.Width, tr.Height, w, h)
}

// costMatrix builds the dense track×detection cost matrix for one frame.
// Rows follow the order of tracks, columns the order of detections.
func costMatrix(tracks []*Track, dets []Detection) *mat.Dense {
	costs := mat.NewDense(len(tracks), len(dets), nil)
	for i, tr := range tracks {
		for j, d := range dets {
			costs.Set(i, j, associationCost(tr, d))
		}
	}
	return costs
}
