// Package monitor serves debugging-only visualisations of the counting
// session: an occupancy timeline over persisted summaries and a PNG plot of
// live track trajectories. No auth; mount behind the debug mux only.
package monitor

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/gatesense/doorcount/internal/db"
	"github.com/gatesense/doorcount/internal/vision"
)

// Handlers bundles the session and store the debug endpoints read from.
type Handlers struct {
	session *vision.Session
	db      *db.DB
}

// New creates the debug handlers. db may be nil; the occupancy timeline then
// reports 503.
func New(session *vision.Session, database *db.DB) *Handlers {
	return &Handlers{session: session, db: database}
}

// SetupRoutes registers the debug endpoints on mux.
func (h *Handlers) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/occupancy", h.handleOccupancyChart)
	mux.HandleFunc("/debug/trajectories.png", h.handleTrajectories)
}

// handleOccupancyChart renders a quick timeline (HTML) of in/out counts and
// occupancy from the summary store using go-echarts.
// Query params:
//   - session_id (optional; defaults to all sessions)
//   - limit (optional; default 200) number of summary rows
func (h *Handlers) handleOccupancyChart(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "summary store not configured", http.StatusServiceUnavailable)
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	summaries, err := h.db.Summaries(r.URL.Query().Get("session_id"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Summaries come newest-first; the timeline reads left to right.
	x := make([]string, 0, len(summaries))
	in := make([]opts.LineData, 0, len(summaries))
	out := make([]opts.LineData, 0, len(summaries))
	occ := make([]opts.LineData, 0, len(summaries))
	for i := len(summaries) - 1; i >= 0; i-- {
		s := summaries[i]
		x = append(x, s.RecordedAt.Format(time.TimeOnly))
		in = append(in, opts.LineData{Value: s.CountIn})
		out = append(out, opts.LineData{Value: s.CountOut})
		occ = append(occ, opts.LineData{Value: s.Occupancy})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Doorcount Occupancy", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy Timeline", Subtitle: fmt.Sprintf("rows=%d", len(summaries))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("in", in).
		AddSeries("out", out).
		AddSeries("occupancy", occ)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
