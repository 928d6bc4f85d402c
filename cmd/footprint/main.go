package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/footprintcz/footprint/internal/browser"
	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/engine"
	"github.com/footprintcz/footprint/internal/models"
	"github.com/footprintcz/footprint/internal/progress"
	"github.com/footprintcz/footprint/internal/scheduler"
	"github.com/footprintcz/footprint/internal/sites"
	"github.com/footprintcz/footprint/internal/store/sqlite"
	"github.com/footprintcz/footprint/internal/trackers"
)

var (
	// Command-line flags
	configPath     = flag.String("config", "", "Path to config.yaml (default: ./config.yaml when present)")
	sitesFile      = flag.String("sites", "", "Override sites CSV file path")
	concurrency    = flag.Int("concurrency", 0, "Override number of concurrent browser contexts")
	modesFlag      = flag.String("modes", "ignore,accept,reject", "Comma-separated consent modes to run")
	limit          = flag.Int("limit", 0, "Only crawl first N sites (for testing)")
	headed         = flag.Bool("headed", false, "Run in headed mode (visible browser windows)")
	verbose        = flag.Bool("verbose", false, "Enable verbose (debug) logging")
	resume         = flag.Bool("resume", false, "Skip sites/modes already crawled successfully")
	noColor        = flag.Bool("no-color", false, "Disable colored output")
	noFingerprint  = flag.Bool("no-fingerprint", false, "Disable fingerprint detection")
	noAds          = flag.Bool("no-ads", false, "Disable ad detection entirely")
	noAdCapture    = flag.Bool("no-ad-capture", false, "Skip individual ad screenshots (still detects/counts ads)")
	adCaptureLimit = flag.Int("ad-capture-limit", -1, "Max ad screenshots per session (default: 20)")
	measureBody    = flag.Bool("measure-body-size", false, "Read response bodies for accurate resource size (slower)")
	showVersion    = flag.Bool("version", false, "Print version information")
)

func main() {
	common.InstallCrashHandler("logs")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion {
		fmt.Printf("Footprint version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner

	// Auto-discover config file if not specified
	path := *configPath
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	cfg, err := common.Load(path)
	if err != nil {
		// Config isn't loaded yet; fall back to the default console logger.
		common.GetLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	applyFlagOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		common.GetLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(cfg).WithCorrelationId(uuid.New().String())

	common.PrintBanner(common.GetVersion())

	modes, err := parseModes(*modesFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	siteList, err := sites.Load(cfg.SitesFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.SitesFile).Msg("Failed to load sites")
		os.Exit(1)
	}
	if *limit > 0 && *limit < len(siteList) {
		siteList = siteList[:*limit]
	}
	if len(siteList) == 0 {
		logger.Fatal().Str("path", cfg.SitesFile).Msg("Sites file contains no sites")
		os.Exit(1)
	}

	store, err := sqlite.NewStore(logger, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open database")
		os.Exit(1)
	}
	defer store.Close()

	trackerDB := trackers.New(logger)
	trackerDB.LoadDisconnect(cfg.Trackers.DisconnectFile)
	trackerDB.LoadRegional(cfg.Trackers.RegionalFile)

	logger.Info().
		Int("sites", len(siteList)).
		Int("tracker_domains", trackerDB.DomainCount()).
		Str("db", cfg.Database.Path).
		Msg("Crawl configuration loaded")

	// First interrupt stops admission and aborts running tasks; a
	// second one falls through to the default handler and kills the
	// process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	tasks, skipped, err := scheduler.BuildTasks(ctx, store, siteList, modes, *resume)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build task list")
		os.Exit(1)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks to run (all sites already crawled). Use without --resume to re-crawl.")
		return
	}

	display := progress.New(os.Stdout, len(tasks), !*noColor && isTerminal(os.Stdout))
	display.PrintHeader(cfg, len(siteList), modes)
	if skipped > 0 {
		fmt.Printf("  Skipped %d already-crawled tasks (--resume)\n\n", skipped)
	}

	br := browser.New(cfg.Browser, cfg.Crawler.Headless, logger)
	if err := br.Start(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start browser")
		os.Exit(1)
	}

	runID := time.Now().UTC().Format("20060102_150405")
	eng := engine.New(cfg, br, trackerDB, runID, logger)

	sched := scheduler.New(cfg, eng, store, display, logger)
	sched.Run(ctx, tasks)

	br.Stop()

	stats, err := store.Stats(context.Background())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read database statistics")
	}
	display.PrintSummary(cfg.Database.Path, stats)
}

// applyFlagOverrides layers CLI flags over the loaded configuration.
func applyFlagOverrides(cfg *common.Config) {
	if *sitesFile != "" {
		cfg.SitesFile = *sitesFile
	}
	if *concurrency > 0 {
		cfg.Crawler.Concurrency = *concurrency
	}
	if *headed {
		cfg.Crawler.Headless = false
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *noFingerprint {
		cfg.Fingerprinting.Enabled = false
	}
	if *noAds {
		cfg.Ads.Enabled = false
	}
	if *noAdCapture {
		cfg.AdCapture.Enabled = false
	}
	if *adCaptureLimit >= 0 {
		cfg.AdCapture.MaxCaptures = *adCaptureLimit
	}
	if *measureBody {
		cfg.ResourceWeight.MeasureBodySize = true
	}
}

func parseModes(value string) ([]models.ConsentMode, error) {
	var modes []models.ConsentMode
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		mode, err := models.ParseConsentMode(name)
		if err != nil {
			return nil, err
		}
		modes = append(modes, mode)
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("no consent modes given")
	}
	return modes, nil
}

// isTerminal reports whether f is a character device, i.e. output goes
// to a terminal rather than a pipe or file.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
