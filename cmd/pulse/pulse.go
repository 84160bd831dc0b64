// Command pulse runs the heart rate estimation server: it reads brightness
// samples from a producer, drives the estimation pipeline, records estimates,
// and serves the HTTP API and live view.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pulse "github.com/banshee-data/pulse.report"
	"github.com/banshee-data/pulse.report/internal/api"
	"github.com/banshee-data/pulse.report/internal/config"
	"github.com/banshee-data/pulse.report/internal/db"
	"github.com/banshee-data/pulse.report/internal/framesource"
	"github.com/banshee-data/pulse.report/internal/pipeline"
	"github.com/banshee-data/pulse.report/internal/timeutil"
	"github.com/banshee-data/pulse.report/internal/units"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (serve ./static from disk)")
	listen     = flag.String("listen", ":8080", "Listen address")
	sourceKind = flag.String("source", "synthetic", "Sample producer: synthetic, serial, or camera")
	serialPort = flag.String("port", "/dev/ttyUSB0", "Serial port path (serial source)")
	cameraURL  = flag.String("camera-url", "http://localhost:8081/frame", "Frame endpoint (camera source)")
	configPath = flag.String("config", "", "Path to tuning config JSON (optional)")
	rateUnits  = flag.String("units", units.BPM, "Rate units for API responses: bpm or hz")
	dbPath     = flag.String("db", "pulse.db", "SQLite database path (empty disables persistence)")
	notes      = flag.String("notes", "", "Free-form note stored with the session")
)

func buildSource(cfg *config.TuningConfig) (framesource.SampleSource, error) {
	clock := timeutil.RealClock{}
	switch *sourceKind {
	case "synthetic":
		// a plausible resting pulse so the dev loop has something to show
		return framesource.NewSyntheticSource(clock, cfg.GetTargetFPS(), 72, 10, 128), nil
	case "serial":
		return framesource.NewSerialSource(*serialPort, framesource.PortOptions{}, clock)
	case "camera":
		return framesource.NewCameraSource(*cameraURL, cfg.GetTargetFPS(), cfg.GetROIWidth(), cfg.GetROIHeight(), clock), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want synthetic, serial, or camera)", *sourceKind)
	}
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*rateUnits) {
		log.Fatalf("Invalid units %q (valid: %s)", *rateUnits, units.GetValidUnitsString())
	}

	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	src, err := buildSource(cfg)
	if err != nil {
		log.Fatalf("Failed to create sample source: %v", err)
	}
	defer src.Close()

	var database *db.DB
	var sessionID string
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		sessionID, err = database.StartSession(*sourceKind, *notes)
		if err != nil {
			log.Fatalf("Failed to start session: %v", err)
		}
		log.Printf("recording estimates to session %s", sessionID)
		defer func() {
			if err := database.EndSession(sessionID); err != nil {
				log.Printf("failed to end session: %v", err)
			}
		}()
	}

	pipe := pipeline.NewController(pipeline.Config{
		BufferSize:      cfg.GetBufferSize(),
		SmoothingWindow: cfg.GetSmoothingWindow(),
		MinHz:           cfg.GetMinHz(),
		MaxHz:           cfg.GetMaxHz(),
	})
	pipe.Start()
	defer pipe.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the sample source
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := src.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor sample source: %v", err)
			stop()
		}
		log.Print("monitor routine terminated")
	}()

	// feed producer samples into the pipeline
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, samples := src.Subscribe()
		defer src.Unsubscribe(id)
		for {
			select {
			case s, ok := <-samples:
				if !ok {
					return
				}
				pipe.Step(s)
			case <-ctx.Done():
				log.Printf("sample routine terminated")
				return
			}
		}
	}()

	// record completed cycles
	if database != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, cycles := pipe.Subscribe()
			defer pipe.Unsubscribe(id)
			for {
				select {
				case result, ok := <-cycles:
					if !ok {
						return
					}
					if err := database.RecordEstimate(sessionID, result.HeartRateBPM, result.FPS); err != nil {
						log.Printf("failed to record estimate: %v", err)
					}
				case <-ctx.Done():
					log.Printf("recorder routine terminated")
					return
				}
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		apiMux := api.NewServer(src, pipe, database, cfg, *rateUnits).ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/events", apiMux)
		mux.Handle("/debug/waveform-chart", apiMux)

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticFS, err := fs.Sub(pulse.StaticFiles, "static")
			if err != nil {
				log.Fatalf("failed to open embedded static files: %v", err)
			}
			staticHandler = http.FileServer(http.FS(staticFS))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
