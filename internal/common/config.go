// Package common provides configuration, logging and shared runtime
// utilities used by every other package.
package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration tree. Defaults cover a
// Czech-locale crawl; every value can be overridden by the YAML file,
// then by FOOTPRINT_* environment variables, then by CLI flags.
type Config struct {
	Crawler         CrawlerSettings        `yaml:"crawler"`
	Browser         BrowserSettings        `yaml:"browser"`
	Database        DatabaseSettings       `yaml:"database"`
	ConsentPatterns ConsentPatterns        `yaml:"consent_patterns"`
	Output          OutputSettings         `yaml:"output"`
	SitesFile       string                 `yaml:"sites_file"`
	Logging         LoggingSettings        `yaml:"logging"`
	Fingerprinting  FingerprintingSettings `yaml:"fingerprinting"`
	Ads             AdsSettings            `yaml:"ads"`
	AdCapture       AdCaptureSettings      `yaml:"ad_capture"`
	ResourceWeight  ResourceWeightSettings `yaml:"resource_weight"`
	Trackers        TrackerSettings        `yaml:"trackers"`
}

// CrawlerSettings controls the per-task timeline and the scheduler.
type CrawlerSettings struct {
	Concurrency       int  `yaml:"concurrency" validate:"gte=1,lte=64"`
	PageTimeoutMs     int  `yaml:"page_timeout_ms" validate:"gte=1000"`
	ConsentTimeoutMs  int  `yaml:"consent_timeout_ms" validate:"gte=500"`
	PostConsentWaitMs int  `yaml:"post_consent_wait_ms" validate:"gte=0"`
	FinalDwellMs      int  `yaml:"final_dwell_ms" validate:"gte=0"`
	ScrollSteps       int  `yaml:"scroll_steps" validate:"gte=0,lte=20"`
	ScrollDelayMs     int  `yaml:"scroll_delay_ms" validate:"gte=0"`
	InterSiteDelayMs  int  `yaml:"inter_site_delay_ms" validate:"gte=0"`
	MaxRetries        int  `yaml:"max_retries" validate:"gte=0,lte=10"`
	Screenshot        bool `yaml:"screenshot"`
	Headless          bool `yaml:"headless"`
}

type Geolocation struct {
	Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
}

type Viewport struct {
	Width  int `yaml:"width" validate:"gte=320"`
	Height int `yaml:"height" validate:"gte=240"`
}

// BrowserSettings shape every freshly created browser context.
type BrowserSettings struct {
	Locale      string      `yaml:"locale"`
	Timezone    string      `yaml:"timezone"`
	Geolocation Geolocation `yaml:"geolocation"`
	Viewport    Viewport    `yaml:"viewport"`
	UserAgent   string      `yaml:"user_agent"`
}

type DatabaseSettings struct {
	Path string `yaml:"path" validate:"required"`
}

// ConsentPatterns are the ordered phrase lists the resolver matches
// against button text. Lowercase substrings, Czech plus English.
type ConsentPatterns struct {
	Accept []string `yaml:"accept"`
	Reject []string `yaml:"reject"`
}

type OutputSettings struct {
	ExportDir     string `yaml:"export_dir"`
	ScreenshotDir string `yaml:"screenshot_dir"`
}

type LoggingSettings struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // optional log file path
}

type FingerprintingSettings struct {
	Enabled bool `yaml:"enabled"`
}

type AdsSettings struct {
	Enabled         bool    `yaml:"enabled"`
	MinWidth        float64 `yaml:"min_width" validate:"gte=0"`
	MinHeight       float64 `yaml:"min_height" validate:"gte=0"`
	IABTolerancePct float64 `yaml:"iab_tolerance_pct" validate:"gte=0,lte=100"`
}

type AdCaptureSettings struct {
	Enabled      bool   `yaml:"enabled"`
	MaxCaptures  int    `yaml:"max_captures" validate:"gte=0"`
	OutputDir    string `yaml:"output_dir"`
	CropFallback bool   `yaml:"crop_fallback"`
}

type ResourceWeightSettings struct {
	Enabled         bool `yaml:"enabled"`
	MeasureBodySize bool `yaml:"measure_body_size"`
}

// TrackerSettings point at optional JSON extensions merged over the
// built-in tracker table at startup.
type TrackerSettings struct {
	DisconnectFile string `yaml:"disconnect_file"`
	RegionalFile   string `yaml:"regional_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Crawler: CrawlerSettings{
			Concurrency:       8,
			PageTimeoutMs:     45000,
			ConsentTimeoutMs:  15000,
			PostConsentWaitMs: 60000,
			FinalDwellMs:      15000,
			ScrollSteps:       4,
			ScrollDelayMs:     1500,
			InterSiteDelayMs:  1000,
			MaxRetries:        3,
			Screenshot:        false,
			Headless:          true,
		},
		Browser: BrowserSettings{
			Locale:   "cs-CZ",
			Timezone: "Europe/Prague",
			Geolocation: Geolocation{
				Latitude:  50.0755,
				Longitude: 14.4378,
			},
			Viewport: Viewport{
				Width:  1920,
				Height: 1080,
			},
		},
		Database: DatabaseSettings{
			Path: "data/footprint.db",
		},
		ConsentPatterns: ConsentPatterns{
			Accept: []string{
				"přijmout vše", "souhlasím", "accept all", "přijmout",
				"souhlasím se vším", "povolit vše", "Souhlasím", "Rozumím",
				"Přijmout a zavřít", "Přijmout cookies",
			},
			Reject: []string{
				"odmítnout vše", "odmítnout", "pouze nezbytné", "reject all",
				"nesouhlasím", "pouze technické", "jen nezbytné", "Odmítnout vše",
			},
		},
		Output: OutputSettings{
			ExportDir:     "output/",
			ScreenshotDir: "output/screenshots/",
		},
		SitesFile: "data/sites/czech_top_100.csv",
		Logging: LoggingSettings{
			Level: "info",
		},
		Fingerprinting: FingerprintingSettings{
			Enabled: true,
		},
		Ads: AdsSettings{
			Enabled:         true,
			MinWidth:        50,
			MinHeight:       40,
			IABTolerancePct: 10,
		},
		AdCapture: AdCaptureSettings{
			Enabled:      true,
			MaxCaptures:  20,
			OutputDir:    "output/ad_captures/",
			CropFallback: true,
		},
		ResourceWeight: ResourceWeightSettings{
			Enabled: true,
		},
		Trackers: TrackerSettings{
			DisconnectFile: "data/trackers/disconnect.json",
			RegionalFile:   "data/trackers/czech_trackers.json",
		},
	}
}

// Load reads one YAML file over the defaults and then applies
// environment overrides. A missing file is not an error when path is
// empty; an unreadable or unparsable file is.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies FOOTPRINT_* environment variables over the
// file configuration.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("FOOTPRINT_DB_PATH"); v != "" {
		config.Database.Path = v
	}
	if v := os.Getenv("FOOTPRINT_SITES_FILE"); v != "" {
		config.SitesFile = v
	}
	if v := os.Getenv("FOOTPRINT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Crawler.Concurrency = n
		}
	}
	if v := os.Getenv("FOOTPRINT_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Crawler.Headless = b
		}
	}
	if v := os.Getenv("FOOTPRINT_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// Validate checks ranges on the loaded configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
