package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gatesense/doorcount/internal/config"
	"github.com/gatesense/doorcount/internal/db"
	"github.com/gatesense/doorcount/internal/vision"
)

func newTestServer(t *testing.T, database *db.DB) (*Server, *http.ServeMux) {
	t.Helper()
	tracker := vision.NewCentroidTracker(vision.DefaultTrackerConfig())
	session := vision.NewSession(tracker, vision.DefaultSessionConfig())
	server := NewServer(session, database, config.EmptyTuningConfig())
	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	return server, mux
}

func postFrame(t *testing.T, mux *http.ServeMux, body string) vision.Snapshot {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/frame", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("frame ingest: status %d: %s", rec.Code, rec.Body.String())
	}
	var snap vision.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	return snap
}

func TestHandleHealth(t *testing.T) {
	_, mux := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status": "ok"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}

func TestHandleFrame_CountsCrossing(t *testing.T) {
	_, mux := newTestServer(t, nil)

	postFrame(t, mux, `[{"x1":80,"y1":160,"x2":120,"y2":240,"confidence":0.9,"class":"person"}]`)
	snap := postFrame(t, mux, `[{"x1":80,"y1":240,"x2":120,"y2":320,"confidence":0.9,"class":"person"}]`)

	if snap.CountIn != 1 || snap.CountOut != 0 {
		t.Errorf("expected in=1 out=0, got %d/%d", snap.CountIn, snap.CountOut)
	}
	if len(snap.People) != 1 || snap.People[0].ID != 1 {
		t.Errorf("unexpected people list: %+v", snap.People)
	}
}

func TestHandleFrame_EmptyAndMalformedDegradeToEmptyFrame(t *testing.T) {
	_, mux := newTestServer(t, nil)

	postFrame(t, mux, `[{"x1":80,"y1":160,"x2":120,"y2":240,"confidence":0.9,"class":"person"}]`)

	// Empty body: a legitimate zero-detection frame, tracks age.
	snap := postFrame(t, mux, "")
	if snap.ActiveTracks != 1 {
		t.Errorf("expected track retained on empty frame, got %d", snap.ActiveTracks)
	}

	// Malformed body: detector failure degrades to an empty frame, not 500.
	snap = postFrame(t, mux, `{"not":"an array`)
	if snap.ActiveTracks != 1 {
		t.Errorf("expected track retained on malformed frame, got %d", snap.ActiveTracks)
	}
}

func TestHandleFrame_MethodNotAllowed(t *testing.T) {
	_, mux := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/frame", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	_, mux := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap vision.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.CountIn != 0 || snap.Occupancy != 0 {
		t.Errorf("expected pristine session, got %+v", snap)
	}
}

func TestHandleReset(t *testing.T) {
	_, mux := newTestServer(t, nil)

	postFrame(t, mux, `[{"x1":80,"y1":160,"x2":120,"y2":240,"confidence":0.9,"class":"person"}]`)
	postFrame(t, mux, `[{"x1":80,"y1":240,"x2":120,"y2":320,"confidence":0.9,"class":"person"}]`)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var snap vision.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.CountIn != 0 || snap.CountOut != 0 {
		t.Errorf("expected zeroed counters, got %d/%d", snap.CountIn, snap.CountOut)
	}
	if snap.ActiveTracks != 1 {
		t.Errorf("reset must keep tracker identities, got %d", snap.ActiveTracks)
	}
}

func TestHandleParams_UpdateAndReject(t *testing.T) {
	server, mux := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/params",
		strings.NewReader(`{"line_position": 300, "max_capacity": 20}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := server.session.Config(); got.LinePosition != 300 || got.MaxCapacity != 20 {
		t.Errorf("update not applied: %+v", got)
	}

	// Invalid update: rejected whole, prior values kept.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/params",
		strings.NewReader(`{"max_capacity": -3}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := server.session.Config(); got.MaxCapacity != 20 {
		t.Errorf("rejected update must keep prior capacity, got %d", got.MaxCapacity)
	}

	// Tracker construction params cannot change at runtime.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/params",
		strings.NewReader(`{"max_disappeared": 10}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for tracker param update, got %d", rec.Code)
	}

	// Neither can the counter geometry.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/params",
		strings.NewReader(`{"segment": {"x1": 0, "y1": 240, "x2": 640, "y2": 240}}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for geometry update, got %d", rec.Code)
	}
}

func TestHandleParams_ConcurrentReadsAndUpdates(t *testing.T) {
	// Params GET and POST arrive from independent clients; the tuning
	// struct is shared between them. Run under -race.
	_, mux := newTestServer(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		pos := 100 + i
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/params",
				strings.NewReader(fmt.Sprintf(`{"line_position": %d}`, pos))))
			if rec.Code != http.StatusOK {
				t.Errorf("update: status %d: %s", rec.Code, rec.Body.String())
			}
		}()
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/params", nil))
			if rec.Code != http.StatusOK {
				t.Errorf("read: status %d", rec.Code)
			}
		}()
	}
	wg.Wait()
}

func TestHandleSummaries(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer database.Close()

	_, mux := newTestServer(t, database)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/summaries", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summaries", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summaries []db.SessionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(summaries) != 1 {
		t.Errorf("expected 1 summary, got %d", len(summaries))
	}
}

func TestHandleSummaries_NoStore(t *testing.T) {
	_, mux := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summaries", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a store, got %d", rec.Code)
	}
}
