// Package engine drives one (site, consent mode) task through its
// phases: navigate, pre-consent snapshot, consent resolution, post-
// consent dwell, scroll, final dwell, collection. Each task runs in a
// freshly created browser context that is destroyed on every exit path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/browser"
	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/consent"
	"github.com/footprintcz/footprint/internal/domains"
	"github.com/footprintcz/footprint/internal/models"
	"github.com/footprintcz/footprint/internal/observers/ads"
	"github.com/footprintcz/footprint/internal/observers/fingerprint"
	"github.com/footprintcz/footprint/internal/observers/weight"
	"github.com/footprintcz/footprint/internal/trackers"
)

// ProgressFunc receives live phase updates from a running task. It may
// be called from many tasks concurrently.
type ProgressFunc func(phase, detail string)

// Engine crawls one site per Crawl call against a shared browser
// process. Safe for concurrent use.
type Engine struct {
	cfg      *common.Config
	browser  *browser.Browser
	trackers *trackers.DB
	consent  *consent.Handler
	fp       *fingerprint.Detector
	detector *ads.Detector
	capturer *ads.Capturer
	runID    string
	logger   arbor.ILogger
}

func New(cfg *common.Config, br *browser.Browser, trackerDB *trackers.DB, runID string, logger arbor.ILogger) *Engine {
	return &Engine{
		cfg:      cfg,
		browser:  br,
		trackers: trackerDB,
		consent:  consent.NewHandler(cfg.ConsentPatterns, logger),
		fp:       fingerprint.NewDetector(cfg.Fingerprinting, trackerDB, logger),
		detector: ads.NewDetector(cfg.Ads, logger),
		capturer: ads.NewCapturer(cfg.AdCapture, logger),
		runID:    runID,
		logger:   logger,
	}
}

// Crawl runs one task to completion and returns its observation. ctx
// cancellation aborts in-flight browser work; the observation then
// reports status error. Crawl never returns nil.
func (e *Engine) Crawl(ctx context.Context, site models.Site, mode models.ConsentMode, onProgress ProgressFunc) *models.Observation {
	obs := &models.Observation{
		Site:        site,
		ConsentMode: mode,
		StartedAt:   time.Now().UTC(),
	}
	start := time.Now()
	log := e.logger.WithCorrelationId(site.Domain + ":" + string(mode))

	notify := func(phase, detail string) {
		if onProgress != nil {
			onProgress(phase, detail)
		}
	}

	pg, err := e.browser.NewPage()
	if err != nil {
		obs.Status = models.StatusError
		obs.Error = err.Error()
		obs.CompletedAt = time.Now().UTC()
		return obs
	}
	defer pg.Close()

	// Tear the page down when the run is cancelled so blocked chromedp
	// calls return instead of waiting out their timeouts.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			pg.Close()
		case <-finished:
		}
	}()

	if err := e.fp.Inject(pg.Ctx); err != nil {
		log.Debug().Err(err).Msg("Fingerprint hook injection failed")
	}

	siteRegDomain := domains.Registered(site.URL)
	reqLog := newRequestLog(siteRegDomain, e.trackers, e.cfg.ResourceWeight.Enabled, e.cfg.ResourceWeight.MeasureBodySize)
	chromedp.ListenTarget(pg.Ctx, reqLog.handle)

	notify("loading", site.URL)
	if err := e.navigate(pg.Ctx, site.URL); err != nil {
		if isTimeout(err) {
			log.Warn().Str("url", site.URL).Msg("Timeout loading page")
			loadTime := int64(e.cfg.Crawler.PageTimeoutMs)
			obs.Status = models.StatusTimeout
			obs.LoadTimeMs = &loadTime
			obs.Requests = reqLog.snapshot()
			obs.Error = err.Error()
			obs.CompletedAt = time.Now().UTC()
			return obs
		}
		return e.fail(obs, reqLog, log, err)
	}
	loadTime := time.Since(start).Milliseconds()
	obs.LoadTimeMs = &loadTime

	// Let async scripts fire before the pre-consent snapshot.
	e.sleep(pg.Ctx, 2*time.Second)

	notify("pre-consent", "")
	preConsent := e.cookieSet(pg)
	preCount := reqLog.count()

	consentInfo := models.ConsentInfo{}
	if mode != models.ConsentModeIgnore {
		notify("consent", string(mode))
		consentCtx, cancel := context.WithTimeout(pg.Ctx, time.Duration(e.cfg.Crawler.ConsentTimeoutMs)*time.Millisecond)
		consentInfo = e.consent.Resolve(consentCtx, mode, pg.BrowserContextID)
		cancel()

		if consentInfo.ActionTaken {
			e.dwell(pg.Ctx, reqLog, preCount, log, notify)
		}
	}
	obs.Consent = &consentInfo

	notify("scrolling", "")
	for i := 0; i < e.cfg.Crawler.ScrollSteps; i++ {
		if err := chromedp.Run(pg.Ctx, chromedp.Evaluate(`window.scrollBy(0, window.innerHeight / 2)`, nil)); err != nil {
			break
		}
		if !e.sleep(pg.Ctx, time.Duration(e.cfg.Crawler.ScrollDelayMs)*time.Millisecond) {
			break
		}
	}

	if d := time.Duration(e.cfg.Crawler.FinalDwellMs) * time.Millisecond; d > 0 {
		notify("final-wait", fmt.Sprintf("%ds", int(d.Seconds())))
		e.sleep(pg.Ctx, d)
	}

	notify("capturing", "")

	if e.cfg.Fingerprinting.Enabled {
		notify("fingerprint", "collecting")
		obs.Fingerprint = e.fp.Collect(pg.Ctx)
	}

	if e.cfg.Ads.Enabled {
		notify("ads", "scanning")
		obs.AdDetection = e.detector.Detect(pg.Ctx)
	}

	if e.cfg.AdCapture.Enabled && obs.AdDetection != nil && len(obs.AdDetection.Ads) > 0 {
		notify("ads", fmt.Sprintf("capturing %d ads", len(obs.AdDetection.Ads)))
		obs.AdCaptures = e.capturer.Capture(pg.Ctx, obs.AdDetection.Ads, e.runID, site.Domain, mode)
	}

	obs.Requests = reqLog.snapshot()

	if e.cfg.ResourceWeight.Enabled {
		result := weight.Aggregate(obs.Requests)
		obs.ResourceWeight = &result
	}

	obs.Cookies = e.captureCookies(pg, preConsent, log)

	var title, location string
	_ = chromedp.Run(pg.Ctx, chromedp.Title(&title), chromedp.Location(&location))
	obs.PageTitle = title
	obs.FinalURL = location

	if e.cfg.Crawler.Screenshot {
		obs.ScreenshotPath = e.screenshot(pg.Ctx, site.Domain, mode, log)
	}

	if ctx.Err() != nil {
		obs.Status = models.StatusError
		obs.Error = "crawl interrupted"
		obs.CompletedAt = time.Now().UTC()
		return obs
	}

	obs.Status = models.StatusSuccess
	obs.CompletedAt = time.Now().UTC()
	return obs
}

// navigate loads a URL and returns once DOMContentLoaded fires. Ad-
// heavy pages keep loading subresources long after the DOM is usable,
// so waiting for the full load event would time out constantly.
func (e *Engine) navigate(pageCtx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(pageCtx, time.Duration(e.cfg.Crawler.PageTimeoutMs)*time.Millisecond)
	defer cancel()

	domReady := make(chan struct{}, 1)
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventDomContentEventFired); ok {
			select {
			case domReady <- struct{}{}:
			default:
			}
		}
	})

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("navigation failed: %s", errText)
		}
		return nil
	}))
	if err != nil {
		return err
	}

	select {
	case <-domReady:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dwell waits out the post-consent window in 5s chunks so the progress
// feed can show cascading tracker traffic as it arrives.
func (e *Engine) dwell(ctx context.Context, reqLog *requestLog, preCount int, log arbor.ILogger, notify ProgressFunc) {
	total := time.Duration(e.cfg.Crawler.PostConsentWaitMs) * time.Millisecond
	if total <= 0 {
		return
	}

	notify("dwell", fmt.Sprintf("%ds post-consent", int(total.Seconds())))
	log.Info().Int("seconds", int(total.Seconds())).Msg("Dwelling post-consent")

	const chunk = 5 * time.Second
	for elapsed := time.Duration(0); elapsed < total; {
		wait := chunk
		if remaining := total - elapsed; remaining < wait {
			wait = remaining
		}
		if !e.sleep(ctx, wait) {
			return
		}
		elapsed += wait
		notify("dwell", fmt.Sprintf("%d/%ds, %d new req",
			int(elapsed.Seconds()), int(total.Seconds()), reqLog.count()-preCount))
	}

	log.Info().Int("new_requests", reqLog.count()-preCount).Msg("Post-consent dwell complete")
}

// sleep waits unless the context dies first.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	return chromedp.Run(ctx, chromedp.Sleep(d)) == nil
}

func (e *Engine) fail(obs *models.Observation, reqLog *requestLog, log arbor.ILogger, err error) *models.Observation {
	log.Error().Err(err).Str("url", obs.Site.URL).Msg("Crawl failed")
	obs.Status = models.StatusError
	obs.Error = err.Error()
	obs.Requests = reqLog.snapshot()
	obs.CompletedAt = time.Now().UTC()
	return obs
}

// cookieSet snapshots the (name, domain) pairs currently in the jar.
func (e *Engine) cookieSet(pg *browser.Page) map[string]bool {
	set := make(map[string]bool)
	cookies, err := e.readCookies(pg)
	if err != nil {
		return set
	}
	for _, c := range cookies {
		set[c.Name+"\x00"+c.Domain] = true
	}
	return set
}

func (e *Engine) readCookies(pg *browser.Page) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(pg.Ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().WithBrowserContextID(pg.BrowserContextID).Do(ctx)
		return err
	}))
	return cookies, err
}

// captureCookies reads the final jar and classifies every cookie. The
// raw value never leaves this function, only its hash.
func (e *Engine) captureCookies(pg *browser.Page, preConsent map[string]bool, log arbor.ILogger) []models.CookieRecord {
	raw, err := e.readCookies(pg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to capture cookies")
		return nil
	}

	nowSec := float64(time.Now().UnixNano()) / 1e9
	records := make([]models.CookieRecord, 0, len(raw))
	for _, c := range raw {
		record := models.CookieRecord{
			Name:             c.Name,
			Domain:           c.Domain,
			ValueHash:        domains.HashCookieValue(c.Value),
			Path:             c.Path,
			IsSecure:         c.Secure,
			IsHTTPOnly:       c.HTTPOnly,
			SameSite:         sameSiteLabel(c.SameSite),
			IsSession:        c.Expires <= 0,
			SetBeforeConsent: preConsent[c.Name+"\x00"+c.Domain],
			Timestamp:        time.Now().UTC(),
		}
		if !record.IsSession {
			sec, frac := math.Modf(c.Expires)
			expiresAt := time.Unix(int64(sec), int64(frac*1e9)).UTC()
			record.ExpiresAt = &expiresAt
			lifetime := (c.Expires - nowSec) / 86400
			record.LifetimeDays = &lifetime
		}

		cookieDomain := strings.TrimPrefix(c.Domain, ".")
		record.IsTrackingCookie = e.trackers.IsTrackingCookie(c.Name, cookieDomain)
		record.TrackerEntity, _ = e.trackers.Classify(cookieDomain)

		records = append(records, record)
	}
	return records
}

// screenshot writes a viewport PNG to the screenshot directory.
func (e *Engine) screenshot(ctx context.Context, domain string, mode models.ConsentMode, log arbor.ILogger) string {
	dir := e.cfg.Output.ScreenshotDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Screenshot failed")
		return ""
	}

	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		log.Warn().Err(err).Msg("Screenshot failed")
		return ""
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", domain, mode))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Screenshot failed")
		return ""
	}
	return path
}

func sameSiteLabel(s network.CookieSameSite) string {
	if s == "" {
		return "None"
	}
	return string(s)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// requestLog accumulates intercepted requests for one task. Network
// events arrive on the target's event goroutine while the task
// goroutine reads counts and snapshots, so every access locks.
type requestLog struct {
	mu      sync.Mutex
	records []models.RequestRecord
	open    map[network.RequestID]int
	started map[network.RequestID]time.Time

	siteDomain string
	trackers   *trackers.DB
	classify   bool
	bodySize   bool
}

func newRequestLog(siteDomain string, trackerDB *trackers.DB, classify, bodySize bool) *requestLog {
	return &requestLog{
		open:       make(map[network.RequestID]int),
		started:    make(map[network.RequestID]time.Time),
		siteDomain: siteDomain,
		trackers:   trackerDB,
		classify:   classify,
		bodySize:   bodySize,
	}
}

// handle dispatches network events from the target listener.
func (l *requestLog) handle(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		l.onRequest(ev)
	case *network.EventResponseReceived:
		l.onResponse(ev)
	case *network.EventLoadingFinished:
		l.onLoadingFinished(ev)
	}
}

func (l *requestLog) onRequest(ev *network.EventRequestWillBeSent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// A redirect hop reuses the request ID; close out the previous hop
	// with the redirect response before opening a new record.
	if ev.RedirectResponse != nil {
		if idx, ok := l.open[ev.RequestID]; ok {
			l.fillResponse(idx, ev.RedirectResponse, ev.RequestID)
		}
	}

	reqDomain := domains.Registered(ev.Request.URL)
	record := models.RequestRecord{
		URL:          ev.Request.URL,
		Domain:       reqDomain,
		Method:       ev.Request.Method,
		ResourceType: strings.ToLower(string(ev.Type)),
		IsThirdParty: domains.IsThirdParty(domains.Hostname(ev.Request.URL), l.siteDomain),
		Timestamp:    time.Now().UTC(),
	}
	record.TrackerEntity, record.TrackerCategory = l.trackers.Classify(reqDomain)
	if l.classify {
		record.ResourceCategory = l.trackers.ResourceCategory(&record)
	}

	l.open[ev.RequestID] = len(l.records)
	l.started[ev.RequestID] = time.Now()
	l.records = append(l.records, record)
}

func (l *requestLog) onResponse(ev *network.EventResponseReceived) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.open[ev.RequestID]; ok {
		l.fillResponse(idx, ev.Response, ev.RequestID)
	}
}

// onLoadingFinished backfills the transfer size for responses that
// carried no content-length header. Only active when body measurement
// is enabled.
func (l *requestLog) onLoadingFinished(ev *network.EventLoadingFinished) {
	if !l.bodySize {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.open[ev.RequestID]
	if !ok {
		return
	}
	record := &l.records[idx]
	if record.ResponseSizeBytes == nil && ev.EncodedDataLength > 0 {
		n := int64(ev.EncodedDataLength)
		record.ResponseSizeBytes = &n
	}
}

// fillResponse attaches response fields to an open record once. Caller
// holds the lock.
func (l *requestLog) fillResponse(idx int, resp *network.Response, id network.RequestID) {
	record := &l.records[idx]
	if record.StatusCode != nil {
		return
	}

	status := int(resp.Status)
	record.StatusCode = &status

	if v := headerValue(resp.Headers, "content-length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			record.ResponseSizeBytes = &n
		}
	}
	if v := headerValue(resp.Headers, "content-type"); v != "" {
		record.ContentType = v
	} else if resp.MimeType != "" {
		record.ContentType = resp.MimeType
	}

	if start, ok := l.started[id]; ok {
		ms := float64(time.Since(start).Microseconds()) / 1000.0
		record.TimingMs = &ms
	}
}

func (l *requestLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// snapshot copies the records so callers can read them while events
// keep arriving.
func (l *requestLog) snapshot() []models.RequestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.RequestRecord, len(l.records))
	copy(out, l.records)
	return out
}

// headerValue reads one header case-insensitively from a CDP header
// map.
func headerValue(headers network.Headers, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
