package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/fabric.inspect/internal/admin"
	"github.com/banshee-data/fabric.inspect/internal/analyser"
	"github.com/banshee-data/fabric.inspect/internal/capture"
	"github.com/banshee-data/fabric.inspect/internal/config"
	"github.com/banshee-data/fabric.inspect/internal/db"
	"github.com/banshee-data/fabric.inspect/internal/ingest"
	"github.com/banshee-data/fabric.inspect/internal/monitoring"
	"github.com/banshee-data/fabric.inspect/internal/sensor"
	"github.com/banshee-data/fabric.inspect/internal/velocity"
	"github.com/banshee-data/fabric.inspect/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON config file (defaults are built in)")
	devMode     = flag.Bool("dev", false, "Run against a scripted sensor and simulated cameras")
	fixtures    = flag.String("fixtures", "", "Velocity readings to replay in dev mode, one per line")
	port        = flag.String("port", "", "Serial port of the velocity sensor (overrides config)")
	dbPath      = flag.String("db", "", "Path to the sqlite run journal (empty disables)")
	listen      = flag.String("listen", "localhost:8080", "Admin listen address (empty disables)")
	debugLog    = flag.Bool("debug", false, "Log per-tick debug output")
	showVersion = flag.Bool("version", false, "Print version and exit")
	ttlFlag     string
)

func init() {
	flag.StringVar(&ttlFlag, "ttl", "", "Stop after this many seconds (0 or empty runs until interrupted)")
	flag.StringVar(&ttlFlag, "t", "", "Shorthand for -ttl")
}

// devReadings is the sensor script used in dev mode without a fixtures file.
var devReadings = []float64{0.48, 0.5, 0.52, 0.5}

// errInvalidTTL is reported when -ttl is not a non-negative number of seconds.
var errInvalidTTL = errors.New("invalid ttl value")

func parseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%w: %q", errInvalidTTL, s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

type options struct {
	ttl      time.Duration
	dev      bool
	fixtures string
	port     string
	dbPath   string
	listen   string
}

// sender is what both the capture and publish paths forward to.
type sender interface {
	capture.BatchSender
	analyser.Publisher
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	ttl, err := parseTTL(ttlFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, errInvalidTTL)
		flag.Usage()
		os.Exit(2)
	}

	monitoring.SetDebug(*debugLog)

	cfg := config.EmptyConfig()
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	os.Exit(runUntilSignal(context.Background(), cfg, options{
		ttl:      ttl,
		dev:      *devMode,
		fixtures: *fixtures,
		port:     *port,
		dbPath:   *dbPath,
		listen:   *listen,
	}, os.Stderr))
}

// notifyContext is replaced in tests.
var notifyContext = signal.NotifyContext

// runUntilSignal runs the rig until SIGINT, SIGTERM, the ttl or parent ends
// it. Signal handling is released before it returns, so the caller may exit.
func runUntilSignal(parent context.Context, cfg *config.InspectorConfig, o options, stderr io.Writer) int {
	ctx, stop := notifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg, o, stderr)
}

// run wires the rig together and blocks until ctx is done or the ttl expires.
// It returns the process exit code.
func run(ctx context.Context, cfg *config.InspectorConfig, o options, stderr io.Writer) int {
	log.Printf("%s starting", version.String())

	client := ingest.NewClient(cfg.GetIngestURL(), ingest.NewStandardClient(&http.Client{Timeout: cfg.GetHTTPTimeout()}))
	pingCtx, cancel := context.WithTimeout(ctx, cfg.GetHTTPTimeout())
	err := client.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Printf("ping %s: %v", client.BaseURL(), err)
		fmt.Fprintln(stderr, "API server failed or is not running.")
		return 1
	}

	var out sender = client
	var journal *db.DB
	if o.dbPath != "" {
		journal, err = db.Open(o.dbPath)
		if err != nil {
			log.Printf("failed to open journal: %v", err)
			return 1
		}
		defer journal.Close()
		out = db.NewRecordingDispatcher(client, journal)
	}

	src, err := buildSensor(cfg, o)
	if err != nil {
		log.Printf("failed to set up sensor: %v", err)
		return 1
	}
	if !o.dev {
		log.Printf("no camera driver configured, using simulated rig")
	}
	rig := capture.NewSimulatedRig(0, 0)

	tracker, err := velocity.NewTracker(src, velocity.Config{
		SamplingRateHz: cfg.GetSamplingRateHz(),
		Window:         cfg.GetWindowSize(),
		Units:          cfg.GetSensorUnits(),
	})
	if err != nil {
		log.Printf("failed to create tracker: %v", err)
		return 1
	}
	coordinator := capture.NewCoordinator(rig, out, nil)
	board := admin.NewStatusBoard(cfg.GetStatusHistory())
	tracker.RegisterObserver(coordinator)
	tracker.RegisterObserver(board)

	a, err := analyser.New(analyser.Config{
		VerticalFOV:    cfg.GetVerticalFOV(),
		PublishWorkers: cfg.GetPublishWorkers(),
		CaptureWorkers: cfg.GetCaptureWorkers(),
		PublishQueue:   cfg.GetPublishQueue(),
		CaptureQueue:   cfg.GetCaptureQueue(),
		ShutdownGrace:  cfg.GetShutdownGrace(),
	}, tracker, coordinator, out, nil)
	if err != nil {
		log.Printf("failed to create analyser: %v", err)
		return 1
	}

	var wg sync.WaitGroup
	adminCtx, stopAdmin := context.WithCancel(ctx)
	defer func() {
		stopAdmin()
		wg.Wait()
	}()

	if o.listen != "" {
		mux := http.NewServeMux()
		admin.NewServer(board, a).WithCaptureStats(coordinator.Stats).AttachAdminRoutes(mux)
		if journal != nil {
			if err := journal.AttachAdminRoutes(mux); err != nil {
				log.Printf("journal admin routes disabled: %v", err)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveAdmin(adminCtx, o.listen, mux)
		}()
	}

	if err := a.Run(ctx, o.ttl); err != nil {
		log.Printf("analyser: %v", err)
		return 1
	}
	log.Printf("Graceful shutdown complete")
	return 0
}

func buildSensor(cfg *config.InspectorConfig, o options) (velocity.Sensor, error) {
	if o.dev {
		if o.fixtures != "" {
			return sensor.LoadFixtures(o.fixtures)
		}
		return sensor.NewScriptedSensor(devReadings...), nil
	}
	path := cfg.GetSerialPort()
	if o.port != "" {
		path = o.port
	}
	return sensor.NewSerialSensor(path, cfg.GetSerial()), nil
}

func serveAdmin(ctx context.Context, addr string, h http.Handler) {
	server := &http.Server{
		Addr:    addr,
		Handler: h,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("admin server failed: %v", err)
		}
	}()
	log.Printf("admin pages on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("admin server force close error: %v", err)
		}
	}
}
