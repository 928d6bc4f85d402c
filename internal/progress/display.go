// Package progress renders the live crawl display: a run header, one
// line per finished task, an in-place ANSI status line and a final
// summary block. All methods are safe for concurrent use.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/models"
	"github.com/footprintcz/footprint/internal/store/sqlite"
)

const (
	ansiDim       = "\033[2m"
	ansiBold      = "\033[1m"
	ansiGreen     = "\033[32m"
	ansiYellow    = "\033[33m"
	ansiRed       = "\033[31m"
	ansiCyan      = "\033[36m"
	ansiMagenta   = "\033[35m"
	ansiReset     = "\033[0m"
	ansiClearLine = "\033[2K\r"
)

// statusRefreshInterval throttles in-place status line rewrites; dwell
// callbacks from concurrent tasks arrive far faster than a terminal
// needs repainting.
const statusRefreshInterval = 100 * time.Millisecond

// Display is the live progress printer. With color disabled (flag or
// non-TTY output) the in-place status line is suppressed entirely and
// only plain result lines are written.
type Display struct {
	out      io.Writer
	useColor bool

	mu                sync.Mutex
	total             int
	completed         int
	errors            int
	totalRequests     int
	total3P           int
	totalCookies      int
	totalTracking     int
	bannersDetected   int
	bannersActed      int
	totalFPEvents     int
	totalAds          int
	totalAdCaptures   int
	totalTrackerBytes int64
	active            map[string]string
	activeOrder       []string
	startTime         time.Time
	throttle          *rate.Limiter
}

func New(out io.Writer, totalTasks int, useColor bool) *Display {
	return &Display{
		out:       out,
		useColor:  useColor,
		total:     totalTasks,
		active:    make(map[string]string),
		startTime: time.Now(),
		throttle:  rate.NewLimiter(rate.Every(statusRefreshInterval), 1),
	}
}

func (d *Display) c(code, text string) string {
	if !d.useColor {
		return text
	}
	return code + text + ansiReset
}

// UpdateActive records the current phase of a running task and repaints
// the status line, throttled.
func (d *Display) UpdateActive(taskKey, phase, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	label := phase
	if detail != "" {
		label = phase + " " + detail
	}
	if _, ok := d.active[taskKey]; !ok {
		d.activeOrder = append(d.activeOrder, taskKey)
	}
	d.active[taskKey] = label

	if !d.useColor || !d.throttle.Allow() {
		return
	}
	fmt.Fprint(d.out, ansiClearLine+d.statusLine())
}

// RemoveActive drops a task from the active set.
func (d *Display) RemoveActive(taskKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.active[taskKey]; !ok {
		return
	}
	delete(d.active, taskKey)
	for i, key := range d.activeOrder {
		if key == taskKey {
			d.activeOrder = append(d.activeOrder[:i], d.activeOrder[i+1:]...)
			break
		}
	}
}

// PrintResult prints one finished task on its own line and folds its
// numbers into the run totals.
func (d *Display) PrintResult(obs *models.Observation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.completed++
	reqCount := len(obs.Requests)
	thirdParty := obs.ThirdPartyCount()
	cookieCount := len(obs.Cookies)
	tracking := obs.TrackingCookieCount()

	d.totalRequests += reqCount
	d.total3P += thirdParty
	d.totalCookies += cookieCount
	d.totalTracking += tracking
	if obs.Status != models.StatusSuccess {
		d.errors++
	}
	if c := obs.Consent; c != nil && c.BannerDetected {
		d.bannersDetected++
		if c.ActionTaken {
			d.bannersActed++
		}
	}
	if fp := obs.Fingerprint; fp != nil {
		d.totalFPEvents += len(fp.Events)
	}
	if ad := obs.AdDetection; ad != nil {
		d.totalAds += ad.TotalAdCount
	}
	if ac := obs.AdCaptures; ac != nil {
		d.totalAdCaptures += ac.TotalCaptured
	}
	if rw := obs.ResourceWeight; rw != nil {
		d.totalTrackerBytes += rw.TrackerBytes + rw.AdBytes
	}

	elapsed := obs.CompletedAt.Sub(obs.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	var status string
	switch obs.Status {
	case models.StatusSuccess:
		status = d.c(ansiGreen, fmt.Sprintf("%-8s", "OK"))
	case models.StatusTimeout:
		status = d.c(ansiYellow, fmt.Sprintf("%-8s", "TIMEOUT"))
	default:
		status = d.c(ansiRed, fmt.Sprintf("%-8s", "ERROR"))
	}

	modeColors := map[models.ConsentMode]string{
		models.ConsentModeIgnore: ansiDim,
		models.ConsentModeAccept: ansiCyan,
		models.ConsentModeReject: ansiMagenta,
	}
	modeStr := d.c(modeColors[obs.ConsentMode], fmt.Sprintf("%-8s", string(obs.ConsentMode)))

	catStr := fmt.Sprintf("%-14s", "")
	if obs.Site.Category != "" {
		catStr = d.c(ansiDim, fmt.Sprintf("%-14s", "["+obs.Site.Category+"]"))
	}

	var consentStr string
	if c := obs.Consent; c != nil && c.BannerDetected {
		cmp := c.CMPPlatform
		if cmp == "" {
			cmp = "?"
		}
		if c.ActionTaken {
			consentStr = d.c(ansiGreen, " banner:"+cmp)
		} else {
			consentStr = d.c(ansiYellow, " banner:"+cmp+"(no click)")
		}
	} else if obs.ConsentMode != models.ConsentModeIgnore {
		consentStr = d.c(ansiDim, " no banner")
	}

	reqStr := fmt.Sprintf("%4d req", reqCount)
	if thirdParty > 0 {
		reqStr += d.c(ansiYellow, fmt.Sprintf(" (%d 3p)", thirdParty))
	} else {
		reqStr += d.c(ansiDim, " (0 3p)")
	}

	cookStr := fmt.Sprintf("%2d cookies", cookieCount)
	if tracking > 0 {
		cookStr += d.c(ansiRed, fmt.Sprintf(" (%d trk)", tracking))
	} else {
		cookStr += d.c(ansiDim, " (0 trk)")
	}

	var mini []string
	if fp := obs.Fingerprint; fp != nil && len(fp.Events) > 0 {
		mini = append(mini, "fp:"+string(fp.Severity))
	}
	if ad := obs.AdDetection; ad != nil && ad.TotalAdCount > 0 {
		mini = append(mini, fmt.Sprintf("ads:%d", ad.TotalAdCount))
	}
	var miniStr string
	if len(mini) > 0 {
		miniStr = d.c(ansiDim, " "+strings.Join(mini, "|"))
	}

	if d.useColor {
		fmt.Fprint(d.out, ansiClearLine)
	}
	fmt.Fprintf(d.out, "  %s %s %-28s %s %s %s  %s%s%s  %s\n",
		d.c(ansiDim, fmt.Sprintf("%4d.", d.completed)),
		status,
		obs.Site.Domain,
		modeStr,
		catStr,
		reqStr,
		cookStr,
		consentStr,
		miniStr,
		d.c(ansiDim, formatDuration(elapsed)))
	if d.useColor {
		fmt.Fprint(d.out, d.statusLine())
	}
}

// PrintHeader prints the run banner block before the first task starts.
func (d *Display) PrintHeader(cfg *common.Config, sitesCount int, modes []models.ConsentMode) {
	modeNames := make([]string, 0, len(modes))
	for _, m := range modes {
		modeNames = append(modeNames, string(m))
	}

	w := d.out
	fmt.Fprintln(w)
	fmt.Fprintln(w, d.c(ansiBold, "  FOOTPRINT CRAWLER - Czech Internet Tracking Observatory"))
	fmt.Fprintln(w, d.c(ansiDim, "  "+strings.Repeat("=", 60)))
	fmt.Fprintf(w, "  Sites: %d  |  Modes: %s  |  Tasks: %d\n",
		sitesCount, strings.Join(modeNames, ", "), d.total)
	fmt.Fprintf(w, "  Concurrency: %d  |  Post-consent dwell: %ds  |  Headless: %v\n",
		cfg.Crawler.Concurrency, cfg.Crawler.PostConsentWaitMs/1000, cfg.Crawler.Headless)

	var modules []string
	if cfg.Fingerprinting.Enabled {
		modules = append(modules, "fingerprint")
	}
	if cfg.Ads.Enabled {
		modules = append(modules, "ads")
	}
	if cfg.AdCapture.Enabled {
		modules = append(modules, "ad-capture")
	}
	if cfg.ResourceWeight.Enabled {
		modules = append(modules, "resource-weight")
	}
	if len(modules) > 0 {
		fmt.Fprintf(w, "  Observers: %s\n", strings.Join(modules, ", "))
	}
	fmt.Fprintln(w, d.c(ansiDim, "  "+strings.Repeat("-", 60)))
	fmt.Fprintln(w)
}

// PrintSummary prints the end-of-run block. stats may be nil when the
// store could not be queried; the summary still prints.
func (d *Display) PrintSummary(dbPath string, stats *sqlite.Stats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	w := d.out
	fmt.Fprintln(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, d.c(ansiBold, "  CRAWL COMPLETE"))
	fmt.Fprintln(w, d.c(ansiDim, "  "+strings.Repeat("=", 60)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Duration        %s\n", formatDuration(elapsed))

	errPart := d.c(ansiGreen, " (0 errors)")
	if d.errors > 0 {
		errPart = d.c(ansiRed, fmt.Sprintf(" (%d errors)", d.errors))
	}
	fmt.Fprintf(w, "  Tasks           %d/%d%s\n", d.completed, d.total, errPart)
	fmt.Fprintln(w)

	pct3p := d.total3P * 100 / max(d.totalRequests, 1)
	fmt.Fprintf(w, "  Requests        %s total\n", humanize.Comma(int64(d.totalRequests)))
	fmt.Fprintf(w, "  3rd-party       %s%s\n",
		humanize.Comma(int64(d.total3P)), d.c(ansiDim, fmt.Sprintf(" (%d%% of all)", pct3p)))
	fmt.Fprintf(w, "  Cookies         %s total\n", humanize.Comma(int64(d.totalCookies)))
	fmt.Fprintf(w, "  Tracking        %s tracking cookies\n", humanize.Comma(int64(d.totalTracking)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Banners found   %d\n", d.bannersDetected)
	fmt.Fprintf(w, "  Banners clicked %d\n", d.bannersActed)

	if d.totalFPEvents > 0 || d.totalAds > 0 || d.totalAdCaptures > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, d.c(ansiBold, "  Observers"))
		fmt.Fprintf(w, "  FP events       %s\n", humanize.Comma(int64(d.totalFPEvents)))
		fmt.Fprintf(w, "  Ads detected    %s\n", humanize.Comma(int64(d.totalAds)))
		fmt.Fprintf(w, "  Ad captures     %s\n", humanize.Comma(int64(d.totalAdCaptures)))
		if d.totalTrackerBytes > 0 {
			mb := float64(d.totalTrackerBytes) / (1024 * 1024)
			fmt.Fprintf(w, "  Tracker weight  %.1f MB (tracker + ad)\n", mb)
		}
	}

	if stats != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  DB sessions     %s total, %s successful\n",
			humanize.Comma(stats.TotalSessions), humanize.Comma(stats.SuccessfulSessions))
		fmt.Fprintf(w, "  DB requests     %s (%s third-party)\n",
			humanize.Comma(stats.TotalRequests), humanize.Comma(stats.ThirdPartyRequests))
		fmt.Fprintf(w, "  DB cookies      %s\n", humanize.Comma(stats.TotalCookies))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Database        %s\n", dbPath)
	fmt.Fprintln(w, d.c(ansiDim, "  "+strings.Repeat("=", 60)))
	fmt.Fprintln(w)
}

// statusLine renders the in-place progress bar. Caller holds d.mu.
func (d *Display) statusLine() string {
	elapsed := time.Since(d.startTime).Seconds()
	var perSec float64
	if elapsed > 0 {
		perSec = float64(d.completed) / elapsed
	}
	var eta time.Duration
	if perSec > 0 {
		eta = time.Duration(float64(d.total-d.completed) / perSec * float64(time.Second))
	}
	var pct float64
	if d.total > 0 {
		pct = float64(d.completed) / float64(d.total) * 100
	}

	parts := []string{
		fmt.Sprintf("%s %5.1f%%", bar(d.completed, d.total, 20), pct),
		fmt.Sprintf("%d/%d done", d.completed, d.total),
	}
	if d.errors > 0 {
		parts = append(parts, d.c(ansiRed, fmt.Sprintf("%d err", d.errors)))
	}
	parts = append(parts, "ETA "+formatDuration(eta))

	if len(d.activeOrder) > 0 {
		shown := d.activeOrder
		extra := ""
		if len(shown) > 3 {
			extra = fmt.Sprintf(" +%d", len(shown)-3)
			shown = shown[:3]
		}
		parts = append(parts, d.c(ansiDim, "active: "+strings.Join(shown, ", ")+extra))
	}

	return strings.Join(parts, "  ")
}

func bar(current, total, width int) string {
	if total == 0 {
		return "[" + strings.Repeat(" ", width) + "]"
	}
	filled := width * current / total
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func formatDuration(d time.Duration) string {
	s := int(d.Seconds())
	if s < 60 {
		return fmt.Sprintf("%ds", s)
	}
	if s < 3600 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
}
