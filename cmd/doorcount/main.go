// Command doorcount runs the people counting service: it accepts per-frame
// detections from an external detector over HTTP, tracks identities across
// frames, counts directional line crossings, and periodically persists
// session summaries to sqlite.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatesense/doorcount/internal/api"
	"github.com/gatesense/doorcount/internal/config"
	"github.com/gatesense/doorcount/internal/db"
	"github.com/gatesense/doorcount/internal/version"
	"github.com/gatesense/doorcount/internal/vision"
	"github.com/gatesense/doorcount/internal/vision/monitor"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	dbPath        = flag.String("db", "doorcount.db", "Path to the summary database")
	configPath    = flag.String("config", "", "Path to a tuning JSON file (defaults to coded defaults)")
	migrationsDir = flag.String("migrations", "migrations", "Path to the migrations directory")
	noMigrate     = flag.Bool("no-migrate", false, "Skip running migrations on boot")
)

func main() {
	flag.Parse()

	log.Printf("doorcount %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if !*noMigrate {
		if err := database.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	tracker, err := vision.NewTracker(
		vision.TrackerKind(tuning.GetTrackerKind()),
		vision.TrackerConfig{
			MaxDisappeared: tuning.GetMaxDisappeared(),
			MaxDistance:    tuning.GetMaxDistance(),
			HistoryLength:  tuning.GetHistoryLength(),
		},
	)
	if err != nil {
		log.Fatalf("failed to construct tracker: %v", err)
	}

	sessionConfig := vision.SessionConfig{
		LinePosition:     tuning.GetLinePosition(),
		Orientation:      vision.Orientation(tuning.GetLineOrientation()),
		MaxCapacity:      tuning.GetMaxCapacity(),
		ConfidenceMin:    tuning.GetConfidenceMin(),
		HysteresisMargin: tuning.GetHysteresisMargin(),
	}
	if seg := tuning.Segment; seg != nil {
		sessionConfig.Segment = &vision.Segment{
			Start: vision.Point{X: seg.X1, Y: seg.Y1},
			End:   vision.Point{X: seg.X2, Y: seg.Y2},
		}
	}
	session := vision.NewSession(tracker, sessionConfig)
	log.Printf("session %s started: tracker=%s line=%s@%d capacity=%d",
		session.ID(), tuning.GetTrackerKind(), tuning.GetLineOrientation(),
		tuning.GetLinePosition(), tuning.GetMaxCapacity())

	mux := http.NewServeMux()
	api.NewServer(session, database, tuning).SetupRoutes(mux)
	monitor.New(session, database).SetupRoutes(mux)
	database.AttachAdminRoutes(mux)

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Periodic auto-save of the session summary so a crash loses at most one
	// interval of counter history.
	go autosave(ctx, session, database, tuning.GetSaveInterval())

	go func() {
		log.Printf("Starting HTTP server on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	// Final summary and stats on the way out.
	snap := session.Snapshot()
	if err := recordSnapshot(database, snap); err != nil {
		log.Printf("failed to record final summary: %v", err)
	}
	log.Printf("final statistics: entered=%d exited=%d inside=%d peak_tracks=%d frames=%d",
		snap.CountIn, snap.CountOut, snap.Occupancy, snap.PeakTracks, snap.Frames)
}

func autosave(ctx context.Context, session *vision.Session, database *db.DB, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := recordSnapshot(database, session.Snapshot()); err != nil {
				log.Printf("autosave failed: %v", err)
			}
		}
	}
}

func recordSnapshot(database *db.DB, snap vision.Snapshot) error {
	return database.RecordSummary(&db.SessionSummary{
		SessionID:  snap.SessionID,
		RecordedAt: snap.Timestamp,
		CountIn:    snap.CountIn,
		CountOut:   snap.CountOut,
		Occupancy:  snap.Occupancy,
		PeakTracks: snap.PeakTracks,
	})
}
