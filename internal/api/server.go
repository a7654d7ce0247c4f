package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gatesense/doorcount/internal/config"
	"github.com/gatesense/doorcount/internal/db"
	"github.com/gatesense/doorcount/internal/version"
	"github.com/gatesense/doorcount/internal/vision"
)

// ANSI escape codes for request log colouring
const (
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Server exposes the counting session over HTTP: frame ingest, live status,
// runtime tuning, counter reset and persisted summaries.
type Server struct {
	session *vision.Session
	db      *db.DB

	// tuningMu guards the tuning struct: params GET and POST can arrive
	// concurrently and Merge rewrites its pointer fields.
	tuningMu sync.Mutex
	tuning   *config.TuningConfig
}

// NewServer creates an API server over the given session and summary store.
// The db may be nil; summary endpoints then report 503.
func NewServer(session *vision.Session, database *db.DB, tuning *config.TuningConfig) *Server {
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &Server{
		session: session,
		db:      database,
		tuning:  tuning,
	}
}

// SetupRoutes registers the API handlers on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/frame", s.handleFrame)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/summaries", s.handleSummaries)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s %vms",
			statusCodeColor(lrw.statusCode), r.Method, r.URL.Path,
			time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "doorcount", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus returns the live session snapshot: tracked people with
// bounding boxes, directional counts, occupancy and the capacity flag.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleFrame ingests one frame of detections from the external detector and
// runs a full frame cycle. An empty body, an empty array, or a detector that
// failed upstream all process as "zero detections observed"; a frame is
// never fatal.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var dets []vision.Detection
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &dets); err != nil {
			// Malformed detector output degrades to an empty frame; the
			// tracks still age so a wedged detector cannot pin occupancy.
			log.Printf("frame ingest: unparseable detections (%v), processing empty frame", err)
			dets = nil
		}
	}

	writeJSON(w, http.StatusOK, s.session.ProcessFrame(dets))
}

// handleReset clears both counters and all per-identity counter state.
// Tracker identities are unaffected.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	s.session.Reset()
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleParams reads (GET) or updates (POST) the runtime tuning parameters.
// Updates are partial JSON in the TuningConfig schema; an invalid update is
// rejected whole and every prior value kept.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.tuningSnapshot())
	case http.MethodPost:
		update := config.EmptyTuningConfig()
		if err := json.NewDecoder(r.Body).Decode(update); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid params: %v", err))
			return
		}
		if err := s.applyUpdate(update); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.tuningSnapshot())
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "GET or POST only")
	}
}

// tuningSnapshot copies the tuning struct under the lock. Merge only swaps
// the pointer fields, never writes through them, so a shallow copy is enough.
func (s *Server) tuningSnapshot() config.TuningConfig {
	s.tuningMu.Lock()
	defer s.tuningMu.Unlock()
	return *s.tuning
}

// applyUpdate validates a partial tuning update and applies it to the live
// session. Tracker construction parameters are fixed at startup; changing
// them requires a restart, so they are rejected here.
func (s *Server) applyUpdate(update *config.TuningConfig) error {
	if err := update.Validate(); err != nil {
		return err
	}
	if update.TrackerKind != nil || update.MaxDisappeared != nil ||
		update.MaxDistance != nil || update.HistoryLength != nil {
		return errors.New("tracker parameters are fixed at startup")
	}
	if update.Segment != nil {
		// Swapping counter geometry mid-session would discard every
		// identity's side state.
		return errors.New("counter geometry is fixed at startup")
	}

	if update.LinePosition != nil {
		if err := s.session.SetLinePosition(*update.LinePosition); err != nil {
			return err
		}
	}
	if update.LineOrientation != nil {
		if err := s.session.SetOrientation(vision.Orientation(*update.LineOrientation)); err != nil {
			return err
		}
	}
	if update.MaxCapacity != nil {
		if err := s.session.SetMaxCapacity(*update.MaxCapacity); err != nil {
			return err
		}
	}
	if update.ConfidenceMin != nil {
		if err := s.session.SetConfidenceMin(*update.ConfidenceMin); err != nil {
			return err
		}
	}
	if update.HysteresisMargin != nil {
		if err := s.session.SetHysteresisMargin(*update.HysteresisMargin); err != nil {
			return err
		}
	}

	s.tuningMu.Lock()
	s.tuning.Merge(update)
	s.tuningMu.Unlock()
	return nil
}

// handleSummaries lists persisted summaries (GET) or records the current
// session state as a new summary row (POST).
func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "summary store not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil {
				limit = v
			}
		}
		summaries, err := s.db.Summaries(r.URL.Query().Get("session_id"), limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if summaries == nil {
			summaries = []db.SessionSummary{}
		}
		writeJSON(w, http.StatusOK, summaries)
	case http.MethodPost:
		snap := s.session.Snapshot()
		summary := &db.SessionSummary{
			SessionID:  snap.SessionID,
			RecordedAt: snap.Timestamp,
			CountIn:    snap.CountIn,
			CountOut:   snap.CountOut,
			Occupancy:  snap.Occupancy,
			PeakTracks: snap.PeakTracks,
		}
		if err := s.db.RecordSummary(summary); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, summary)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "GET or POST only")
	}
}
