package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate runs database migrations
func (s *Store) migrate() error {
	ctx := context.Background()

	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "initial_schema", up: migrateV1},
		{version: 2, name: "observer_columns", up: migrateV2},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (s *Store) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *Store) runMigration(ctx context.Context, m migration) error {
	// Check if migration already applied
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		return nil // Already applied
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// migrateV1 creates the core schema: sites, sessions and the request and
// cookie detail tables.
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sites (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL,
			domain TEXT NOT NULL UNIQUE,
			category TEXT,
			rank_cz INTEGER,
			created_at TEXT DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS crawl_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			site_id INTEGER NOT NULL REFERENCES sites(id),
			consent_mode TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			final_url TEXT,
			page_title TEXT,
			load_time_ms INTEGER,
			total_requests INTEGER DEFAULT 0,
			third_party_requests INTEGER DEFAULT 0,
			total_cookies_set INTEGER DEFAULT 0,
			tracking_cookies_set INTEGER DEFAULT 0,
			consent_banner_detected BOOLEAN,
			consent_cmp TEXT,
			consent_button_text TEXT,
			consent_action_taken BOOLEAN,
			screenshot_path TEXT,
			error TEXT,
			status TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
			url TEXT NOT NULL,
			domain TEXT,
			method TEXT,
			resource_type TEXT,
			is_third_party BOOLEAN,
			tracker_entity TEXT,
			tracker_category TEXT,
			status_code INTEGER,
			response_size_bytes INTEGER,
			timing_ms REAL,
			timestamp TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS cookies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
			name TEXT,
			domain TEXT,
			value_hash TEXT,
			path TEXT,
			expires_at TEXT,
			lifetime_days REAL,
			is_secure BOOLEAN,
			is_http_only BOOLEAN,
			same_site TEXT,
			is_session BOOLEAN,
			is_tracking_cookie BOOLEAN,
			tracker_entity TEXT,
			set_before_consent BOOLEAN,
			timestamp TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_site ON crawl_sessions(site_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_mode ON crawl_sessions(consent_mode)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON crawl_sessions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_session ON requests(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_domain ON requests(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_tracker ON requests(tracker_entity)`,
		`CREATE INDEX IF NOT EXISTS idx_cookies_session ON cookies(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cookies_domain ON cookies(domain)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// migrateV2 adds the observer surface: fingerprint, ad and resource-weight
// summary columns on sessions, per-request categorization, and the
// fingerprint_events / ad_elements / ad_captures detail tables. Additive
// only; existing rows keep their defaults.
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`ALTER TABLE crawl_sessions ADD COLUMN fp_severity TEXT`,
		`ALTER TABLE crawl_sessions ADD COLUMN fp_event_count INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN fp_canvas BOOLEAN DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN fp_webgl BOOLEAN DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN fp_audio BOOLEAN DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN fp_font BOOLEAN DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN fp_navigator BOOLEAN DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN fp_storage BOOLEAN DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN fp_unique_apis INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN fp_unique_entities INTEGER DEFAULT 0`,

		`ALTER TABLE crawl_sessions ADD COLUMN ad_count INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN ad_visible_count INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN ad_density REAL DEFAULT 0.0`,
		`ALTER TABLE crawl_sessions ADD COLUMN ad_total_area_px INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN ad_iab_standard_count INTEGER DEFAULT 0`,

		`ALTER TABLE crawl_sessions ADD COLUMN ad_captures_total INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN ad_captures_failed INTEGER DEFAULT 0`,

		`ALTER TABLE crawl_sessions ADD COLUMN rw_total_bytes INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN rw_content_1p_bytes INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN rw_cdn_bytes INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN rw_tracker_bytes INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN rw_ad_bytes INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN rw_functional_3p_bytes INTEGER DEFAULT 0`,
		`ALTER TABLE crawl_sessions ADD COLUMN rw_unknown_3p_bytes INTEGER DEFAULT 0`,

		`ALTER TABLE requests ADD COLUMN resource_category TEXT`,
		`ALTER TABLE requests ADD COLUMN content_type TEXT`,

		`CREATE TABLE IF NOT EXISTS fingerprint_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
			api TEXT NOT NULL,
			method TEXT NOT NULL,
			call_stack_domain TEXT,
			tracker_entity TEXT,
			details TEXT,
			timestamp TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS ad_elements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
			selector TEXT,
			tag_name TEXT,
			ad_id TEXT,
			ad_class TEXT,
			x REAL,
			y REAL,
			width REAL,
			height REAL,
			is_visible BOOLEAN,
			is_iframe BOOLEAN,
			iframe_src TEXT,
			iab_size TEXT,
			ad_network TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS ad_captures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
			ad_element_id INTEGER REFERENCES ad_elements(id),
			ad_index INTEGER,
			screenshot_path TEXT,
			metadata_path TEXT,
			width INTEGER,
			height INTEGER,
			capture_method TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_fp_events_session ON fingerprint_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fp_events_api ON fingerprint_events(api)`,
		`CREATE INDEX IF NOT EXISTS idx_ad_elements_session ON ad_elements(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ad_captures_session ON ad_captures(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_category ON requests(resource_category)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}
