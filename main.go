package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/vigil.report/internal/api"
	"github.com/banshee-data/vigil.report/internal/config"
	"github.com/banshee-data/vigil.report/internal/db"
	"github.com/banshee-data/vigil.report/internal/monitoring"
	"github.com/banshee-data/vigil.report/internal/notify"
	"github.com/banshee-data/vigil.report/internal/report"
	"github.com/banshee-data/vigil.report/internal/source"
	"github.com/banshee-data/vigil.report/internal/storage/jsonl"
	"github.com/banshee-data/vigil.report/internal/version"
	"github.com/banshee-data/vigil.report/internal/vigil"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON config file (optional, defaults apply)")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	dbPath      = flag.String("db", "", "Path to the sqlite archive (overrides config)")
	dataDir     = flag.String("data-dir", "", "Flat-file data directory (overrides config)")
	replayPath  = flag.String("replay", "", "Replay a recorded batch stream instead of watching captures")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: vigil-report [flags] [command]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  (none)    run the monitor\n")
	fmt.Fprintf(os.Stderr, "  migrate   apply pending database migrations and exit\n")
	fmt.Fprintf(os.Stderr, "  report    print the daily report for a date (report [YYYY-MM-DD])\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}

func loadConfig() (*config.MonitorConfig, error) {
	if *configPath == "" {
		return config.Empty(), nil
	}
	return config.Load(*configPath)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("vigil-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = listen
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *dataDir != "" {
		cfg.DataDir = dataDir
	}

	log, err := monitoring.NewLogger(cfg.GetLogLevel(), cfg.GetLogFormat(), "vigil-report")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	for _, key := range cfg.UnknownKeys() {
		log.Warn("unrecognized config key", zap.String("key", key))
	}

	switch flag.Arg(0) {
	case "":
		runMonitor(cfg, log)
	case "migrate":
		runMigrate(cfg, log)
	case "report":
		runReport(cfg, log, flag.Arg(1))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}
}

func openArchive(cfg *config.MonitorConfig, log *zap.Logger) *db.DB {
	archive, err := db.Open(cfg.GetDBPath())
	if err != nil {
		log.Fatal("failed to open archive database", zap.Error(err))
	}
	if err := archive.MigrateUp(); err != nil {
		log.Fatal("failed to apply migrations", zap.Error(err))
	}
	return archive
}

func runMigrate(cfg *config.MonitorConfig, log *zap.Logger) {
	archive := openArchive(cfg, log)
	defer archive.Close()

	version, dirty, err := archive.MigrateVersion()
	if err != nil {
		log.Fatal("failed to read migration version", zap.Error(err))
	}
	log.Info("database schema is up to date",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
}

func runReport(cfg *config.MonitorConfig, log *zap.Logger, dateArg string) {
	archive := openArchive(cfg, log)
	defer archive.Close()

	day := time.Now()
	if dateArg != "" {
		parsed, err := time.ParseInLocation("2006-01-02", dateArg, time.Local)
		if err != nil {
			log.Fatal("invalid report date, want YYYY-MM-DD", zap.String("date", dateArg))
		}
		day = parsed
	}

	events, err := archive.EventsForDay(day, day.Location())
	if err != nil {
		log.Fatal("failed to load events", zap.Error(err))
	}
	fmt.Print(report.FormatText(report.BuildDailyReport(events, day)))
}

func runMonitor(cfg *config.MonitorConfig, log *zap.Logger) {
	archive := openArchive(cfg, log)
	defer archive.Close()

	store, err := jsonl.Open(cfg.GetDataDir(), log)
	if err != nil {
		log.Fatal("failed to open data store", zap.Error(err))
	}
	defer store.Close()

	events, err := store.LoadEvents()
	if err != nil {
		log.Fatal("failed to load movement log", zap.Error(err))
	}
	patterns, err := store.LoadPatterns()
	if err != nil {
		log.Fatal("failed to load pattern snapshot", zap.Error(err))
	}
	log.Info("loaded persisted state",
		zap.Int("events", len(events)),
		zap.Int("patterns", len(patterns)))

	baseline := vigil.NewBaseline(vigil.BaselineConfig{
		MinBaselineDays: cfg.GetMinBaselineDays(),
	}, store, events, patterns, log)

	tracker := vigil.NewTracker(vigil.TrackerConfig{
		HeartbeatInterval: cfg.GetHeartbeatInterval(),
		StalenessCeiling:  cfg.GetStalenessCeiling(),
	})

	policyCfg := vigil.PolicyConfig{
		Cooldown:        cfg.GetCooldown(),
		UnknownInterval: cfg.GetUnknownInterval(),
		QuietEnabled:    cfg.GetQuietEnabled(),
	}
	if len(cfg.EmergencyKeywords) > 0 {
		policyCfg.EmergencyKeywords = cfg.EmergencyKeywords
	}
	startMin, endMin, err := vigil.ParseQuietHours(cfg.GetQuietStart(), cfg.GetQuietEnd())
	if err != nil {
		log.Fatal("invalid quiet hours", zap.Error(err))
	}
	policyCfg.QuietStartMin, policyCfg.QuietEndMin = startMin, endMin
	policy := vigil.NewAlertPolicy(policyCfg)

	detector := vigil.NewDetector(vigil.DetectorConfig{
		PositionDistanceThreshold: cfg.GetPositionDistanceThreshold(),
	}, baseline)

	filter := vigil.NewDetectionFilter(vigil.FilterConfig{
		MinConfidence: cfg.GetMinConfidence(),
	})

	var notifier vigil.Notifier = notify.NewLogNotifier(log)
	if url := cfg.GetWebhookURL(); url != "" {
		notifier = notify.Multi{notify.NewLogNotifier(log), notify.NewWebhookNotifier(url, nil)}
	}

	monitor := vigil.NewMonitor(vigil.MonitorConfig{
		PollInterval:   cfg.GetPollInterval(),
		SweepInterval:  cfg.GetSweepInterval(),
		StatusInterval: cfg.GetStatusInterval(),
	}, tracker, policy, baseline, detector, filter, notifier, archive, vigil.SystemClock{}, log)

	var sources []vigil.Source
	if *replayPath != "" {
		sources = append(sources, source.NewReplaySource(*replayPath, "replay", log))
	} else {
		cameras := cfg.Cameras
		if len(cameras) == 0 {
			cameras = discoverCameras(cfg.GetCapturesDir(), log)
		}
		for _, camera := range cameras {
			sources = append(sources, source.NewDirectorySource(cfg.GetCapturesDir(), camera, log))
		}
	}
	if len(sources) == 0 {
		log.Warn("no cameras configured or discovered; only the API will be served")
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx, sources)
		log.Info("monitor stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := api.NewServer(monitor, tracker, baseline, archive, vigil.SystemClock{}, log).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, "vigil-report: see /api/health")
		})

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(log, mux),
		}

		go func() {
			log.Info("http server listening", zap.String("addr", cfg.GetListen()))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("failed to start http server", zap.Error(err))
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown error", zap.Error(err))
		}
		log.Info("http server stopped")
	}()

	wg.Wait()
	log.Info("graceful shutdown complete")
}

// discoverCameras treats each subdirectory of the captures dir as a camera.
func discoverCameras(capturesDir string, log *zap.Logger) []string {
	entries, err := os.ReadDir(capturesDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("failed to read captures dir", zap.Error(err))
		}
		return nil
	}
	var cameras []string
	for _, entry := range entries {
		if entry.IsDir() {
			cameras = append(cameras, entry.Name())
		}
	}
	return cameras
}
