package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/models"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	config := &common.DatabaseSettings{Path: t.TempDir() + "/test.db"}
	logger := arbor.NewLogger()

	store, err := NewStore(logger, config)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	cleanup := func() {
		store.Close()
	}
	return store, cleanup
}

// sampleObservation builds a fully populated observation with
// deterministic timestamps so read-back comparisons are exact.
func sampleObservation(domain string, mode models.ConsentMode) *models.Observation {
	started := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	completed := started.Add(42 * time.Second)
	loadTime := int64(1830)
	statusOK := 200
	docSize := int64(51200)
	docTiming := 88.5
	expires := started.Add(400 * 24 * time.Hour)
	lifetime := 400.0

	return &models.Observation{
		Site: models.Site{
			URL:    "https://www." + domain,
			Domain: domain,
		},
		ConsentMode: mode,
		Status:      models.StatusSuccess,
		StartedAt:   started,
		CompletedAt: completed,
		FinalURL:    "https://www." + domain + "/",
		PageTitle:   "Zprávy",
		LoadTimeMs:  &loadTime,
		Requests: []models.RequestRecord{
			{
				URL:               "https://www." + domain + "/index.html",
				Domain:            domain,
				Method:            "GET",
				ResourceType:      "document",
				IsThirdParty:      false,
				StatusCode:        &statusOK,
				ResponseSizeBytes: &docSize,
				TimingMs:          &docTiming,
				Timestamp:         started.Add(100 * time.Millisecond),
				ResourceCategory:  models.ResourceContent1P,
				ContentType:       "text/html",
			},
			{
				URL:              "https://www.google-analytics.com/g/collect",
				Domain:           "google-analytics.com",
				Method:           "POST",
				ResourceType:     "xhr",
				IsThirdParty:     true,
				TrackerEntity:    "Google",
				TrackerCategory:  "analytics",
				Timestamp:        started.Add(2*time.Second + 123456789*time.Nanosecond),
				ResourceCategory: models.ResourceTracker,
			},
		},
		Cookies: []models.CookieRecord{
			{
				Name:             "_ga",
				Domain:           domain,
				ValueHash:        "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
				Path:             "/",
				ExpiresAt:        &expires,
				LifetimeDays:     &lifetime,
				IsSecure:         true,
				SameSite:         "Lax",
				IsTrackingCookie: true,
				TrackerEntity:    "Google",
				SetBeforeConsent: true,
				Timestamp:        started.Add(time.Second),
			},
			{
				Name:      "sid",
				Domain:    "www." + domain,
				ValueHash: "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae",
				Path:      "/",
				IsSession: true,
				Timestamp: started.Add(3 * time.Second),
			},
		},
		Consent: &models.ConsentInfo{
			BannerDetected: true,
			CMPPlatform:    "onetrust",
			ButtonText:     "Přijmout vše",
			ActionTaken:    true,
		},
		Fingerprint: &models.FingerprintResult{
			Events: []models.FingerprintEvent{
				{
					API:             "canvas",
					Method:          "toDataURL",
					CallStackDomain: "google-analytics.com",
					TrackerEntity:   "Google",
					Timestamp:       started.Add(5 * time.Second),
				},
			},
			Severity:       models.SeverityActive,
			CanvasDetected: true,
			UniqueAPIs:     1,
			UniqueEntities: 1,
		},
		AdDetection: &models.AdDetectionResult{
			Ads: []models.AdElement{
				{
					Selector:  ".adsbygoogle",
					TagName:   "ins",
					AdClass:   "adsbygoogle",
					X:         100, Y: 200, Width: 728, Height: 90,
					IsVisible: true,
					IABSize:   "728x90",
					AdNetwork: "Google",
				},
				{
					Selector: "iframe[src*='doubleclick']",
					TagName:  "iframe",
					X:        0, Y: 1400, Width: 300, Height: 250,
					IsIframe:  true,
					IframeSrc: "https://googleads.g.doubleclick.net/pagead/ads",
					IABSize:   "300x250",
					AdNetwork: "Google",
				},
			},
			TotalAdCount:     2,
			VisibleAdCount:   1,
			AdDensity:        0.0316,
			TotalAdAreaPx:    65520,
			IABStandardCount: 2,
		},
		AdCaptures: &models.AdCaptureResult{
			Captures: []models.AdCapture{
				{
					AdIndex:        0,
					ScreenshotPath: "output/ad_captures/20251103_100000/" + domain + "/" + domain + "__accept__ad_000__Google__728x90.png",
					MetadataPath:   "output/ad_captures/20251103_100000/" + domain + "/" + domain + "__accept__ad_000__Google__728x90.json",
					Width:          728,
					Height:         90,
					CaptureMethod:  models.CaptureMethodElement,
				},
			},
			TotalCaptured: 1,
			TotalFailed:   0,
		},
		ResourceWeight: &models.ResourceWeightResult{
			TotalBytes:       51200,
			Content1PBytes:   51200,
			RequestsWithSize: 1,
		},
	}
}

func TestSaveObservation_RoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	obs := sampleObservation("idnes.cz", models.ConsentModeAccept)
	sessionID, err := store.SaveObservation(ctx, obs)
	require.NoError(t, err)
	require.Greater(t, sessionID, int64(0))

	rec, err := store.LatestSession(ctx, "idnes.cz", models.ConsentModeAccept)
	require.NoError(t, err)
	assert.Equal(t, sessionID, rec.ID)
	assert.Equal(t, models.StatusSuccess, rec.Status)
	assert.Equal(t, "Zprávy", rec.PageTitle)
	assert.True(t, obs.StartedAt.Equal(rec.StartedAt))
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, obs.CompletedAt.Equal(*rec.CompletedAt))
	require.NotNil(t, rec.LoadTimeMs)
	assert.Equal(t, int64(1830), *rec.LoadTimeMs)

	// Counters derive from the persisted collections.
	assert.Equal(t, len(obs.Requests), rec.TotalRequests)
	assert.Equal(t, 1, rec.ThirdPartyRequests)
	assert.Equal(t, len(obs.Cookies), rec.TotalCookiesSet)
	assert.Equal(t, 1, rec.TrackingCookiesSet)

	require.NotNil(t, rec.Consent)
	assert.True(t, rec.Consent.BannerDetected)
	assert.Equal(t, "onetrust", rec.Consent.CMPPlatform)
	assert.Equal(t, "Přijmout vše", rec.Consent.ButtonText)
	assert.True(t, rec.Consent.ActionTaken)

	requests, err := store.SessionRequests(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, obs.Requests, requests)

	cookies, err := store.SessionCookies(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, obs.Cookies, cookies)
}

func TestSaveObservation_ObserverColumns(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	obs := sampleObservation("seznam.cz", models.ConsentModeAccept)
	sessionID, err := store.SaveObservation(ctx, obs)
	require.NoError(t, err)

	var (
		severity  string
		fpEvents  int
		fpCanvas  bool
		adCount   int
		adDensity float64
		capTotal  int
		rwContent int64
	)
	err = store.DB().QueryRow(`
		SELECT fp_severity, fp_event_count, fp_canvas, ad_count, ad_density,
			ad_captures_total, rw_content_1p_bytes
		FROM crawl_sessions WHERE id = ?`, sessionID).
		Scan(&severity, &fpEvents, &fpCanvas, &adCount, &adDensity, &capTotal, &rwContent)
	require.NoError(t, err)
	assert.Equal(t, "active", severity)
	assert.Equal(t, 1, fpEvents)
	assert.True(t, fpCanvas)
	assert.Equal(t, 2, adCount)
	assert.InDelta(t, 0.0316, adDensity, 1e-9)
	assert.Equal(t, 1, capTotal)
	assert.Equal(t, int64(51200), rwContent)

	var eventCount int
	err = store.DB().QueryRow("SELECT COUNT(*) FROM fingerprint_events WHERE session_id = ?", sessionID).Scan(&eventCount)
	require.NoError(t, err)
	assert.Equal(t, 1, eventCount)

	var elementCount int
	err = store.DB().QueryRow("SELECT COUNT(*) FROM ad_elements WHERE session_id = ?", sessionID).Scan(&elementCount)
	require.NoError(t, err)
	assert.Equal(t, 2, elementCount)

	// The capture row must reference the first ad element by row ID.
	var firstElementID, capturedElementID int64
	err = store.DB().QueryRow("SELECT id FROM ad_elements WHERE session_id = ? ORDER BY id LIMIT 1", sessionID).Scan(&firstElementID)
	require.NoError(t, err)
	err = store.DB().QueryRow("SELECT ad_element_id FROM ad_captures WHERE session_id = ?", sessionID).Scan(&capturedElementID)
	require.NoError(t, err)
	assert.Equal(t, firstElementID, capturedElementID)
}

func TestSaveObservation_WithoutObservers(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	started := time.Date(2025, 11, 3, 11, 0, 0, 0, time.UTC)
	obs := &models.Observation{
		Site:        models.Site{URL: "https://example.cz", Domain: "example.cz"},
		ConsentMode: models.ConsentModeIgnore,
		Status:      models.StatusError,
		StartedAt:   started,
		CompletedAt: started.Add(5 * time.Second),
		Error:       "net::ERR_NAME_NOT_RESOLVED",
	}

	sessionID, err := store.SaveObservation(ctx, obs)
	require.NoError(t, err)

	var severity sql.NullString
	var banner sql.NullBool
	var fpEvents, adCount int
	err = store.DB().QueryRow(`
		SELECT fp_severity, consent_banner_detected, fp_event_count, ad_count
		FROM crawl_sessions WHERE id = ?`, sessionID).
		Scan(&severity, &banner, &fpEvents, &adCount)
	require.NoError(t, err)
	assert.False(t, severity.Valid, "severity should be NULL when fingerprinting never ran")
	assert.False(t, banner.Valid, "consent columns should be NULL without a consent result")
	assert.Zero(t, fpEvents)
	assert.Zero(t, adCount)

	rec, err := store.LatestSession(ctx, "example.cz", models.ConsentModeIgnore)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, rec.Status)
	assert.Equal(t, "net::ERR_NAME_NOT_RESOLVED", rec.Error)
	assert.Nil(t, rec.Consent)
}

func TestUpsertSite_SameDomainSameID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	site := models.Site{URL: "https://www.novinky.cz", Domain: "novinky.cz", Category: "news", RankCZ: 2}

	id1, err := store.UpsertSite(ctx, site)
	require.NoError(t, err)
	id2, err := store.UpsertSite(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	other, err := store.UpsertSite(ctx, models.Site{URL: "https://www.idnes.cz", Domain: "idnes.cz"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, other)
}

func TestHasSuccessfulSession(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	ok, err := store.HasSuccessfulSession(ctx, "idnes.cz", models.ConsentModeAccept)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.SaveObservation(ctx, sampleObservation("idnes.cz", models.ConsentModeAccept))
	require.NoError(t, err)

	ok, err = store.HasSuccessfulSession(ctx, "idnes.cz", models.ConsentModeAccept)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same domain, different mode: not covered.
	ok, err = store.HasSuccessfulSession(ctx, "idnes.cz", models.ConsentModeReject)
	require.NoError(t, err)
	assert.False(t, ok)

	// A failed session never satisfies resume.
	failed := sampleObservation("idnes.cz", models.ConsentModeReject)
	failed.Status = models.StatusTimeout
	_, err = store.SaveObservation(ctx, failed)
	require.NoError(t, err)

	ok, err = store.HasSuccessfulSession(ctx, "idnes.cz", models.ConsentModeReject)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatestSession_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.LatestSession(context.Background(), "nowhere.cz", models.ConsentModeIgnore)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStats(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.SaveObservation(ctx, sampleObservation("idnes.cz", models.ConsentModeAccept))
	require.NoError(t, err)

	failed := sampleObservation("idnes.cz", models.ConsentModeReject)
	failed.Status = models.StatusError
	failed.Requests = nil
	failed.Cookies = nil
	_, err = store.SaveObservation(ctx, failed)
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalSites)
	assert.Equal(t, int64(2), stats.TotalSessions)
	assert.Equal(t, int64(1), stats.SuccessfulSessions)
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.ThirdPartyRequests)
	assert.Equal(t, int64(2), stats.TotalCookies)
}
