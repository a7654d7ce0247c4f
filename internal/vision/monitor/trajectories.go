package monitor

import (
	"fmt"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// handleTrajectories renders the live tracks' position histories as a PNG.
// The Y axis is inverted so the plot matches image coordinates (origin top
// left).
func (h *Handlers) handleTrajectories(w http.ResponseWriter, r *http.Request) {
	tracks := h.session.ActiveTracks()

	p := plot.New()
	p.Title.Text = "Track trajectories"
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"

	for i, tr := range tracks {
		pts := make(plotter.XYs, 0, len(tr.History))
		for _, pos := range tr.History {
			pts = append(pts, plotter.XY{X: float64(pos.X), Y: -float64(pos.Y)})
		}
		if len(pts) < 2 {
			continue
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to build line for track %d: %v", tr.ID, err), http.StatusInternalServerError)
			return
		}
		line.Width = vg.Points(1)
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("track %d", tr.ID), line)
	}

	wt, err := p.WriterTo(10*vg.Inch, 7*vg.Inch, "png")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		// Client likely went away mid-write; nothing useful to do.
		return
	}
}
