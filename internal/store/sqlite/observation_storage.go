package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/footprintcz/footprint/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// timeFormat is how timestamps are stored. TEXT keeps the schema
// readable from the sqlite3 shell and sorts lexicographically.
const timeFormat = time.RFC3339Nano

// UpsertSite inserts a site row or returns the existing ID for its domain.
// Concurrent tasks for the same site race here; ON CONFLICT keeps the
// first row and the follow-up SELECT resolves the winner's ID.
func (s *Store) UpsertSite(ctx context.Context, site models.Site) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sites (url, domain, category, rank_cz) VALUES (?, ?, ?, ?) ON CONFLICT(domain) DO NOTHING",
		site.URL, site.Domain, nullIfEmpty(site.Category), nullIfZero(site.RankCZ))
	if err != nil {
		return 0, fmt.Errorf("failed to insert site: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, "SELECT id FROM sites WHERE domain = ?", site.Domain).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to look up site: %w", err)
	}
	return id, nil
}

// HasSuccessfulSession reports whether a successful session already exists
// for this domain and consent mode. The scheduler uses it for --resume.
func (s *Store) HasSuccessfulSession(ctx context.Context, domain string, mode models.ConsentMode) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM crawl_sessions cs
		JOIN sites s ON cs.site_id = s.id
		WHERE s.domain = ? AND cs.consent_mode = ? AND cs.status = ?
		LIMIT 1`,
		domain, string(mode), string(models.StatusSuccess)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query sessions: %w", err)
	}
	return true, nil
}

// SaveObservation persists a complete observation (session row plus all
// detail tables) in one transaction and returns the new session ID.
// Summary counters are derived here from the collections being written,
// so the session row can never disagree with its detail rows.
func (s *Store) SaveObservation(ctx context.Context, obs *models.Observation) (int64, error) {
	siteID, err := s.UpsertSite(ctx, obs.Site)
	if err != nil {
		return 0, err
	}

	thirdPartyRequests := obs.ThirdPartyCount()
	trackingCookies := obs.TrackingCookieCount()

	var bannerDetected, cmp, buttonText, actionTaken interface{}
	if c := obs.Consent; c != nil {
		bannerDetected = c.BannerDetected
		cmp = nullIfEmpty(c.CMPPlatform)
		buttonText = nullIfEmpty(c.ButtonText)
		actionTaken = c.ActionTaken
	}

	var fpSeverity interface{}
	var fpEventCount, fpUniqueAPIs, fpUniqueEntities int
	var fpCanvas, fpWebGL, fpAudio, fpFont, fpNavigator, fpStorage bool
	if fp := obs.Fingerprint; fp != nil {
		fpSeverity = string(fp.Severity)
		fpEventCount = len(fp.Events)
		fpCanvas = fp.CanvasDetected
		fpWebGL = fp.WebGLDetected
		fpAudio = fp.AudioDetected
		fpFont = fp.FontDetected
		fpNavigator = fp.NavigatorDetected
		fpStorage = fp.StorageDetected
		fpUniqueAPIs = fp.UniqueAPIs
		fpUniqueEntities = fp.UniqueEntities
	}

	var adCount, adVisibleCount, adIABCount int
	var adDensity float64
	var adTotalArea int64
	if ad := obs.AdDetection; ad != nil {
		adCount = ad.TotalAdCount
		adVisibleCount = ad.VisibleAdCount
		adDensity = ad.AdDensity
		adTotalArea = ad.TotalAdAreaPx
		adIABCount = ad.IABStandardCount
	}

	var capturesTotal, capturesFailed int
	if ac := obs.AdCaptures; ac != nil {
		capturesTotal = ac.TotalCaptured
		capturesFailed = ac.TotalFailed
	}

	var rwTotal, rwContent1P, rwCDN, rwTracker, rwAd, rwFunctional3P, rwUnknown3P int64
	if rw := obs.ResourceWeight; rw != nil {
		rwTotal = rw.TotalBytes
		rwContent1P = rw.Content1PBytes
		rwCDN = rw.CDNBytes
		rwTracker = rw.TrackerBytes
		rwAd = rw.AdBytes
		rwFunctional3P = rw.Functional3PBytes
		rwUnknown3P = rw.Unknown3PBytes
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO crawl_sessions (
			site_id, consent_mode, started_at, completed_at,
			final_url, page_title, load_time_ms,
			total_requests, third_party_requests,
			total_cookies_set, tracking_cookies_set,
			consent_banner_detected, consent_cmp,
			consent_button_text, consent_action_taken,
			screenshot_path, error, status,
			fp_severity, fp_event_count, fp_canvas, fp_webgl, fp_audio,
			fp_font, fp_navigator, fp_storage, fp_unique_apis, fp_unique_entities,
			ad_count, ad_visible_count, ad_density, ad_total_area_px, ad_iab_standard_count,
			ad_captures_total, ad_captures_failed,
			rw_total_bytes, rw_content_1p_bytes, rw_cdn_bytes, rw_tracker_bytes,
			rw_ad_bytes, rw_functional_3p_bytes, rw_unknown_3p_bytes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?)`,
		siteID,
		string(obs.ConsentMode),
		formatTime(obs.StartedAt),
		formatTimeOrNil(obs.CompletedAt),
		nullIfEmpty(obs.FinalURL),
		nullIfEmpty(obs.PageTitle),
		obs.LoadTimeMs,
		len(obs.Requests),
		thirdPartyRequests,
		len(obs.Cookies),
		trackingCookies,
		bannerDetected,
		cmp,
		buttonText,
		actionTaken,
		nullIfEmpty(obs.ScreenshotPath),
		nullIfEmpty(obs.Error),
		string(obs.Status),
		fpSeverity, fpEventCount, fpCanvas, fpWebGL, fpAudio,
		fpFont, fpNavigator, fpStorage, fpUniqueAPIs, fpUniqueEntities,
		adCount, adVisibleCount, adDensity, adTotalArea, adIABCount,
		capturesTotal, capturesFailed,
		rwTotal, rwContent1P, rwCDN, rwTracker,
		rwAd, rwFunctional3P, rwUnknown3P,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read session id: %w", err)
	}

	if err := insertRequests(ctx, tx, sessionID, obs.Requests); err != nil {
		return 0, err
	}
	if err := insertCookies(ctx, tx, sessionID, obs.Cookies); err != nil {
		return 0, err
	}
	if obs.Fingerprint != nil {
		if err := insertFingerprintEvents(ctx, tx, sessionID, obs.Fingerprint.Events); err != nil {
			return 0, err
		}
	}

	var adElementIDs []int64
	if obs.AdDetection != nil {
		adElementIDs, err = insertAdElements(ctx, tx, sessionID, obs.AdDetection.Ads)
		if err != nil {
			return 0, err
		}
	}
	if obs.AdCaptures != nil {
		if err := insertAdCaptures(ctx, tx, sessionID, adElementIDs, obs.AdCaptures.Captures); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session: %w", err)
	}

	s.logger.Debug().
		Str("domain", obs.Site.Domain).
		Str("mode", string(obs.ConsentMode)).
		Int64("session_id", sessionID).
		Int("requests", len(obs.Requests)).
		Int("cookies", len(obs.Cookies)).
		Msg("Saved crawl session")
	return sessionID, nil
}

func insertRequests(ctx context.Context, tx *sql.Tx, sessionID int64, requests []models.RequestRecord) error {
	if len(requests) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO requests (
			session_id, url, domain, method, resource_type,
			is_third_party, tracker_entity, tracker_category,
			status_code, response_size_bytes, timing_ms, timestamp,
			resource_category, content_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare request insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range requests {
		_, err := stmt.ExecContext(ctx,
			sessionID, r.URL, r.Domain, r.Method, r.ResourceType,
			r.IsThirdParty, nullIfEmpty(r.TrackerEntity), nullIfEmpty(r.TrackerCategory),
			r.StatusCode, r.ResponseSizeBytes, r.TimingMs, formatTime(r.Timestamp),
			nullIfEmpty(r.ResourceCategory), nullIfEmpty(r.ContentType))
		if err != nil {
			return fmt.Errorf("failed to insert request: %w", err)
		}
	}
	return nil
}

func insertCookies(ctx context.Context, tx *sql.Tx, sessionID int64, cookies []models.CookieRecord) error {
	if len(cookies) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cookies (
			session_id, name, domain, value_hash, path,
			expires_at, lifetime_days, is_secure, is_http_only,
			same_site, is_session, is_tracking_cookie,
			tracker_entity, set_before_consent, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cookie insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range cookies {
		var expiresAt interface{}
		if c.ExpiresAt != nil {
			expiresAt = formatTime(*c.ExpiresAt)
		}
		_, err := stmt.ExecContext(ctx,
			sessionID, c.Name, c.Domain, c.ValueHash, c.Path,
			expiresAt, c.LifetimeDays, c.IsSecure, c.IsHTTPOnly,
			nullIfEmpty(c.SameSite), c.IsSession, c.IsTrackingCookie,
			nullIfEmpty(c.TrackerEntity), c.SetBeforeConsent, formatTime(c.Timestamp))
		if err != nil {
			return fmt.Errorf("failed to insert cookie: %w", err)
		}
	}
	return nil
}

func insertFingerprintEvents(ctx context.Context, tx *sql.Tx, sessionID int64, events []models.FingerprintEvent) error {
	if len(events) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fingerprint_events (
			session_id, api, method, call_stack_domain,
			tracker_entity, details, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fingerprint insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.ExecContext(ctx,
			sessionID, e.API, e.Method, nullIfEmpty(e.CallStackDomain),
			nullIfEmpty(e.TrackerEntity), nullIfEmpty(e.Details), formatTime(e.Timestamp))
		if err != nil {
			return fmt.Errorf("failed to insert fingerprint event: %w", err)
		}
	}
	return nil
}

// insertAdElements returns the assigned row IDs in input order so captures
// can reference their element by index.
func insertAdElements(ctx context.Context, tx *sql.Tx, sessionID int64, ads []models.AdElement) ([]int64, error) {
	if len(ads) == 0 {
		return nil, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ad_elements (
			session_id, selector, tag_name, ad_id, ad_class,
			x, y, width, height, is_visible, is_iframe,
			iframe_src, iab_size, ad_network
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare ad element insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(ads))
	for _, ad := range ads {
		res, err := stmt.ExecContext(ctx,
			sessionID, ad.Selector, ad.TagName, nullIfEmpty(ad.AdID), nullIfEmpty(ad.AdClass),
			ad.X, ad.Y, ad.Width, ad.Height, ad.IsVisible, ad.IsIframe,
			nullIfEmpty(ad.IframeSrc), nullIfEmpty(ad.IABSize), nullIfEmpty(ad.AdNetwork))
		if err != nil {
			return nil, fmt.Errorf("failed to insert ad element: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read ad element id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func insertAdCaptures(ctx context.Context, tx *sql.Tx, sessionID int64, adElementIDs []int64, captures []models.AdCapture) error {
	if len(captures) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ad_captures (
			session_id, ad_element_id, ad_index, screenshot_path,
			metadata_path, width, height, capture_method
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ad capture insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range captures {
		var elementID interface{}
		if c.AdIndex >= 0 && c.AdIndex < len(adElementIDs) {
			elementID = adElementIDs[c.AdIndex]
		}
		_, err := stmt.ExecContext(ctx,
			sessionID, elementID, c.AdIndex, nullIfEmpty(c.ScreenshotPath),
			c.MetadataPath, c.Width, c.Height, c.CaptureMethod)
		if err != nil {
			return fmt.Errorf("failed to insert ad capture: %w", err)
		}
	}
	return nil
}

// SessionRecord is the summary row of one persisted session, as read back
// from the store.
type SessionRecord struct {
	ID                 int64
	SiteDomain         string
	ConsentMode        models.ConsentMode
	Status             models.CrawlStatus
	StartedAt          time.Time
	CompletedAt        *time.Time
	FinalURL           string
	PageTitle          string
	LoadTimeMs         *int64
	TotalRequests      int
	ThirdPartyRequests int
	TotalCookiesSet    int
	TrackingCookiesSet int
	Consent            *models.ConsentInfo
	ScreenshotPath     string
	Error              string
}

// LatestSession returns the most recent session for a domain and mode, or
// ErrNotFound when none exists.
func (s *Store) LatestSession(ctx context.Context, domain string, mode models.ConsentMode) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cs.id, s.domain, cs.consent_mode, cs.status,
			cs.started_at, cs.completed_at, cs.final_url, cs.page_title,
			cs.load_time_ms, cs.total_requests, cs.third_party_requests,
			cs.total_cookies_set, cs.tracking_cookies_set,
			cs.consent_banner_detected, cs.consent_cmp,
			cs.consent_button_text, cs.consent_action_taken,
			cs.screenshot_path, cs.error
		FROM crawl_sessions cs
		JOIN sites s ON cs.site_id = s.id
		WHERE s.domain = ? AND cs.consent_mode = ?
		ORDER BY cs.id DESC
		LIMIT 1`,
		domain, string(mode))

	var (
		rec            SessionRecord
		modeStr        string
		status         string
		startedAt      string
		completedAt    sql.NullString
		finalURL       sql.NullString
		pageTitle      sql.NullString
		loadTimeMs     sql.NullInt64
		bannerDetected sql.NullBool
		cmp            sql.NullString
		buttonText     sql.NullString
		actionTaken    sql.NullBool
		screenshotPath sql.NullString
		errText        sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.SiteDomain, &modeStr, &status,
		&startedAt, &completedAt, &finalURL, &pageTitle,
		&loadTimeMs, &rec.TotalRequests, &rec.ThirdPartyRequests,
		&rec.TotalCookiesSet, &rec.TrackingCookiesSet,
		&bannerDetected, &cmp, &buttonText, &actionTaken,
		&screenshotPath, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	rec.ConsentMode = models.ConsentMode(modeStr)
	rec.Status = models.CrawlStatus(status)
	rec.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at: %w", err)
		}
		rec.CompletedAt = &t
	}
	rec.FinalURL = finalURL.String
	rec.PageTitle = pageTitle.String
	if loadTimeMs.Valid {
		rec.LoadTimeMs = &loadTimeMs.Int64
	}
	if bannerDetected.Valid || actionTaken.Valid {
		rec.Consent = &models.ConsentInfo{
			BannerDetected: bannerDetected.Bool,
			CMPPlatform:    cmp.String,
			ButtonText:     buttonText.String,
			ActionTaken:    actionTaken.Bool,
		}
	}
	rec.ScreenshotPath = screenshotPath.String
	rec.Error = errText.String
	return &rec, nil
}

// SessionRequests reads back all request records of a session in insert
// order.
func (s *Store) SessionRequests(ctx context.Context, sessionID int64) ([]models.RequestRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, domain, method, resource_type, is_third_party,
			tracker_entity, tracker_category, status_code,
			response_size_bytes, timing_ms, timestamp,
			resource_category, content_type
		FROM requests WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var records []models.RequestRecord
	for rows.Next() {
		var (
			r             models.RequestRecord
			entity        sql.NullString
			category      sql.NullString
			statusCode    sql.NullInt64
			responseBytes sql.NullInt64
			timingMs      sql.NullFloat64
			timestamp     string
			resCategory   sql.NullString
			contentType   sql.NullString
		)
		err := rows.Scan(&r.URL, &r.Domain, &r.Method, &r.ResourceType, &r.IsThirdParty,
			&entity, &category, &statusCode, &responseBytes, &timingMs, &timestamp,
			&resCategory, &contentType)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		r.TrackerEntity = entity.String
		r.TrackerCategory = category.String
		if statusCode.Valid {
			code := int(statusCode.Int64)
			r.StatusCode = &code
		}
		if responseBytes.Valid {
			r.ResponseSizeBytes = &responseBytes.Int64
		}
		if timingMs.Valid {
			r.TimingMs = &timingMs.Float64
		}
		r.Timestamp, err = parseTime(timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse request timestamp: %w", err)
		}
		r.ResourceCategory = resCategory.String
		r.ContentType = contentType.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// SessionCookies reads back all cookie records of a session in insert
// order.
func (s *Store) SessionCookies(ctx context.Context, sessionID int64) ([]models.CookieRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, domain, value_hash, path, expires_at, lifetime_days,
			is_secure, is_http_only, same_site, is_session,
			is_tracking_cookie, tracker_entity, set_before_consent, timestamp
		FROM cookies WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}
	defer rows.Close()

	var records []models.CookieRecord
	for rows.Next() {
		var (
			c            models.CookieRecord
			expiresAt    sql.NullString
			lifetimeDays sql.NullFloat64
			sameSite     sql.NullString
			entity       sql.NullString
			timestamp    string
		)
		err := rows.Scan(&c.Name, &c.Domain, &c.ValueHash, &c.Path, &expiresAt, &lifetimeDays,
			&c.IsSecure, &c.IsHTTPOnly, &sameSite, &c.IsSession,
			&c.IsTrackingCookie, &entity, &c.SetBeforeConsent, &timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cookie: %w", err)
		}
		if expiresAt.Valid {
			t, err := parseTime(expiresAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse cookie expiry: %w", err)
			}
			c.ExpiresAt = &t
		}
		if lifetimeDays.Valid {
			c.LifetimeDays = &lifetimeDays.Float64
		}
		c.SameSite = sameSite.String
		c.TrackerEntity = entity.String
		c.Timestamp, err = parseTime(timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cookie timestamp: %w", err)
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

// Stats are end-of-run totals across the whole database.
type Stats struct {
	TotalSites         int64
	TotalSessions      int64
	SuccessfulSessions int64
	TotalRequests      int64
	ThirdPartyRequests int64
	TotalCookies       int64
}

// Stats returns aggregate counts over everything persisted so far.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	queries := []struct {
		dest  *int64
		query string
	}{
		{&st.TotalSites, "SELECT COUNT(*) FROM sites"},
		{&st.TotalSessions, "SELECT COUNT(*) FROM crawl_sessions"},
		{&st.SuccessfulSessions, "SELECT COUNT(*) FROM crawl_sessions WHERE status = 'success'"},
		{&st.TotalRequests, "SELECT COUNT(*) FROM requests"},
		{&st.ThirdPartyRequests, "SELECT COUNT(*) FROM requests WHERE is_third_party = 1"},
		{&st.TotalCookies, "SELECT COUNT(*) FROM cookies"},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("failed to query stats: %w", err)
		}
	}
	return st, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}
