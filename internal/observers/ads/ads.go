// Package ads detects advertising elements in loaded pages and captures
// them as individual screenshots. Detection combines a CSS-selector DOM
// scan with an iframe walk keyed on known ad-serving domains; elements
// are measured against the IAB standard size table and attributed to an
// ad network where the markup gives it away.
package ads

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/models"
)

// adSelectors match known ad markup: Google publisher tags, generic
// container id/class patterns, Czech networks (Sklik, R2B2, iMedia) and
// header-bidding slots.
var adSelectors = []string{
	// Google Ads
	"ins.adsbygoogle",
	"[id^='google_ads_']",
	"[id^='div-gpt-ad']",
	"div[data-google-query-id]",
	"div[data-ad-slot]",
	"iframe[id^='google_ads_iframe']",
	"iframe[src*='doubleclick.net']",
	"iframe[src*='googlesyndication']",
	// Generic ad containers (ID patterns)
	"[id*='ad-container']", "[id*='ad-wrapper']", "[id*='ad-slot']",
	"[id*='ad_container']", "[id*='ad_wrapper']", "[id*='ad_slot']",
	"[id*='advert']", "[id*='banner-ad']", "[id*='sponsor']",
	"[id*='adsense']", "[id*='adform']", "[id*='dfp']",
	// Generic ad containers (class patterns)
	"[class*='ad-container']", "[class*='ad-wrapper']", "[class*='ad-slot']",
	"[class*='ad-unit']", "[class*='advert']", "[class*='banner-ad']",
	"[class*='sponsored']", "[class*='commercial']",
	// Czech-specific
	"[class*='reklama']", "[class*='inzerce']",
	"[id*='sklik']",
	"iframe[src*='sklik']",
	"iframe[src*='r2b2']",
	"iframe[src*='imedia']",
	"iframe[src*='sssp.cz']",
	"iframe[src*='ad.seznam.cz']",
	// Data attribute patterns
	"[data-ad]", "[data-ad-slot]", "[data-ad-unit]",
	"[data-advertisement]", "[data-sponsor]", "[data-adservice]",
	// IAB / header bidding
	"[id^='pb-slot']",
	"[class*='prebid']",
	// Other ad networks
	"iframe[src*='adform']",
	"iframe[src*='amazon-adsystem']",
	"iframe[src*='criteo']",
	"iframe[src*='taboola']",
	"iframe[src*='outbrain']",
	// Generic iframe ad patterns
	"iframe[src*='/ads/']",
	"iframe[src*='adserver']",
}

// iabSize is one entry of the IAB standard ad size table.
type iabSize struct {
	W, H int
	Name string
}

var iabStandardSizes = []iabSize{
	{728, 90, "leaderboard"},
	{300, 250, "medium_rectangle"},
	{160, 600, "wide_skyscraper"},
	{120, 600, "skyscraper"},
	{300, 600, "half_page"},
	{320, 50, "mobile_leaderboard"},
	{320, 100, "large_mobile_banner"},
	{970, 250, "billboard"},
	{970, 90, "large_leaderboard"},
	{300, 50, "mobile_banner"},
	{468, 60, "full_banner"},
	{234, 60, "half_banner"},
	{336, 280, "large_rectangle"},
	{250, 250, "square"},
	{180, 150, "rectangle"},
	{300, 1050, "portrait"},
	{580, 400, "netboard"},
	{480, 120, "superboard"},
}

// networkPattern maps a substring of src/id/class to an ad network
// label. Order matters: first match wins.
type networkPattern struct {
	Pattern string
	Network string
}

var adNetworkPatterns = []networkPattern{
	{"googlesyndication", "Google"},
	{"doubleclick", "Google"},
	{"googleadservices", "Google"},
	{"google_ads", "Google"},
	{"adform", "Adform"},
	{"sklik", "Seznam.cz"},
	{"ad.seznam", "Seznam.cz"},
	{"sssp.cz", "Seznam.cz"},
	{"imedia", "Seznam.cz"},
	{"r2b2", "R2B2"},
	{"criteo", "Criteo"},
	{"amazon-adsystem", "Amazon"},
	{"taboola", "Taboola"},
	{"outbrain", "Outbrain"},
	{"facebook.com/plugins/ad", "Meta"},
}

// adFrameDomains flag an iframe as an ad by URL substring alone.
var adFrameDomains = []string{
	"googlesyndication",
	"doubleclick",
	"appnexus",
	"rubiconproject",
	"criteo",
	"adform",
	"amazon-adsystem",
	"taboola",
	"outbrain",
	"sklik",
	"sssp.cz",
	"r2b2",
	"imedia",
	"ad.seznam",
	"adnxs",
	"pubmatic",
	"openx",
	"smartadserver",
	"casalemedia",
	"indexexchange",
	"33across",
	"yieldmo",
	"sharethrough",
}

const detectionScriptTemplate = `
(() => {
	const SELECTORS = %s;
	const seen = new Set();
	const results = [];

	function rectKey(el) {
		const rect = el.getBoundingClientRect();
		return Math.round(rect.x) + ',' + Math.round(rect.y) + ',' +
			Math.round(rect.width) + ',' + Math.round(rect.height);
	}

	function isVisible(el) {
		if (!el.offsetParent && el.tagName !== 'BODY' && el.tagName !== 'HTML') {
			const style = window.getComputedStyle(el);
			if (style.position !== 'fixed' && style.position !== 'sticky') return false;
		}
		const style = window.getComputedStyle(el);
		if (style.display === 'none') return false;
		if (style.visibility === 'hidden') return false;
		if (parseFloat(style.opacity) < 0.1) return false;
		return true;
	}

	for (const selector of SELECTORS) {
		try {
			const elements = document.querySelectorAll(selector);
			for (const el of elements) {
				const rect = el.getBoundingClientRect();
				if (rect.width <= 0 || rect.height <= 0) continue;

				const key = rectKey(el);
				if (seen.has(key)) continue;
				seen.add(key);

				const tagName = el.tagName.toLowerCase();
				let iframeSrc = '';
				if (tagName === 'iframe') {
					try { iframeSrc = el.src || el.getAttribute('src') || ''; } catch (e) {}
				}

				results.push({
					selector: selector,
					tagName: tagName,
					id: el.id || '',
					className: (el.className && typeof el.className === 'string')
						? el.className.substring(0, 200) : '',
					x: Math.round(rect.x),
					y: Math.round(rect.y),
					width: Math.round(rect.width),
					height: Math.round(rect.height),
					visible: isVisible(el),
					iframeSrc: iframeSrc
				});
			}
		} catch (e) {}
	}

	return results;
})()
`

// frameScanScript walks the document tree collecting every iframe with
// its viewport-absolute bounding box. Same-origin nested documents are
// descended with accumulated offsets; cross-origin frames still appear
// as elements of their parent document.
const frameScanScript = `
(() => {
	const out = [];
	const walk = (doc, ox, oy) => {
		let frames;
		try { frames = doc.querySelectorAll('iframe'); } catch (e) { return; }
		for (const el of frames) {
			const rect = el.getBoundingClientRect();
			if (rect.width <= 0 || rect.height <= 0) continue;
			let src = '';
			try { src = el.src || el.getAttribute('src') || ''; } catch (e) {}
			let visible = true;
			try {
				const style = doc.defaultView.getComputedStyle(el);
				visible = style.display !== 'none' && style.visibility !== 'hidden' &&
					parseFloat(style.opacity) >= 0.1;
			} catch (e) {}
			out.push({
				src: src.substring(0, 500),
				x: Math.round(rect.x + ox),
				y: Math.round(rect.y + oy),
				width: Math.round(rect.width),
				height: Math.round(rect.height),
				visible: visible
			});
			try {
				if (el.contentDocument) walk(el.contentDocument, rect.x + ox, rect.y + oy);
			} catch (e) {}
		}
	};
	walk(document, 0, 0);
	return out;
})()
`

const viewportScript = `(() => ({w: window.innerWidth, h: window.innerHeight}))()`

// Detector scans loaded pages for ad elements.
type Detector struct {
	cfg       common.AdsSettings
	tolerance float64
	logger    arbor.ILogger
}

func NewDetector(cfg common.AdsSettings, logger arbor.ILogger) *Detector {
	return &Detector{
		cfg:       cfg,
		tolerance: cfg.IABTolerancePct / 100.0,
		logger:    logger,
	}
}

type rawAd struct {
	Selector  string  `json:"selector"`
	TagName   string  `json:"tagName"`
	ID        string  `json:"id"`
	ClassName string  `json:"className"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Visible   bool    `json:"visible"`
	IframeSrc string  `json:"iframeSrc"`
}

type rawFrame struct {
	Src     string  `json:"src"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Visible bool    `json:"visible"`
}

// Detect scans the page for ads. Call after load and dwell so lazily
// filled slots are populated. Selector hits and frame hits are merged
// with position+size dedup, selector hits first.
func (d *Detector) Detect(ctx context.Context) *models.AdDetectionResult {
	if !d.cfg.Enabled {
		return &models.AdDetectionResult{}
	}

	selectorJSON, _ := json.Marshal(adSelectors)
	script := fmt.Sprintf(detectionScriptTemplate, selectorJSON)

	var raw []rawAd
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		d.logger.Debug().Err(err).Msg("Ad detection script failed")
	}

	var frames []rawFrame
	if err := chromedp.Run(ctx, chromedp.Evaluate(frameScanScript, &frames)); err != nil {
		d.logger.Debug().Err(err).Msg("Frame scan script failed")
	}

	var viewport struct {
		W int `json:"w"`
		H int `json:"h"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(viewportScript, &viewport)); err != nil || viewport.W <= 0 {
		viewport.W, viewport.H = 1920, 1080
	}
	viewportArea := int64(viewport.W) * int64(viewport.H)

	var ads []models.AdElement
	var totalArea int64
	seen := make(map[string]bool)

	for _, r := range raw {
		if r.Width < d.cfg.MinWidth || r.Height < d.cfg.MinHeight {
			continue
		}
		key := rectKey(r.X, r.Y, r.Width, r.Height)
		if seen[key] {
			continue
		}
		seen[key] = true

		ads = append(ads, models.AdElement{
			Selector:  r.Selector,
			TagName:   r.TagName,
			AdID:      r.ID,
			AdClass:   r.ClassName,
			X:         r.X,
			Y:         r.Y,
			Width:     r.Width,
			Height:    r.Height,
			IsVisible: r.Visible,
			IsIframe:  r.TagName == "iframe",
			IframeSrc: r.IframeSrc,
			IABSize:   d.matchIABSize(int(r.Width), int(r.Height)),
			AdNetwork: detectAdNetwork(r.IframeSrc, r.ID, r.ClassName),
		})
		if r.Visible {
			totalArea += int64(r.Width) * int64(r.Height)
		}
	}

	frameAds := 0
	for _, f := range frames {
		if f.Src == "" || f.Src == "about:blank" {
			continue
		}
		if f.Width < d.cfg.MinWidth || f.Height < d.cfg.MinHeight {
			continue
		}

		// A frame counts as an ad when it points at a known ad domain,
		// or it is sized exactly like a standard ad unit.
		srcLower := strings.ToLower(f.Src)
		isAdDomain := false
		for _, dom := range adFrameDomains {
			if strings.Contains(srcLower, dom) {
				isAdDomain = true
				break
			}
		}
		iab := d.matchIABSize(int(f.Width), int(f.Height))
		if !isAdDomain && iab == "" {
			continue
		}

		key := rectKey(f.X, f.Y, f.Width, f.Height)
		if seen[key] {
			continue
		}
		seen[key] = true

		ads = append(ads, models.AdElement{
			Selector:  "frame:" + head(f.Src, 100),
			TagName:   "iframe",
			X:         f.X,
			Y:         f.Y,
			Width:     f.Width,
			Height:    f.Height,
			IsVisible: f.Visible,
			IsIframe:  true,
			IframeSrc: head(f.Src, 500),
			IABSize:   iab,
			AdNetwork: detectAdNetwork(f.Src, "", ""),
		})
		frameAds++
		if f.Visible {
			totalArea += int64(f.Width) * int64(f.Height)
		}
	}

	visibleCount := 0
	iabCount := 0
	for _, a := range ads {
		if a.IsVisible {
			visibleCount++
		}
		if a.IABSize != "" {
			iabCount++
		}
	}

	density := 0.0
	if viewportArea > 0 {
		density = float64(totalArea) / float64(viewportArea)
	}

	result := &models.AdDetectionResult{
		Ads:              ads,
		TotalAdCount:     len(ads),
		VisibleAdCount:   visibleCount,
		AdDensity:        math.Round(density*10000) / 10000,
		TotalAdAreaPx:    totalArea,
		IABStandardCount: iabCount,
	}

	d.logger.Debug().
		Int("total", len(ads)).
		Int("visible", visibleCount).
		Int("from_frames", frameAds).
		Float64("density_pct", math.Round(density*1000)/10).
		Int("iab_standard", iabCount).
		Msg("Ad detection complete")

	return result
}

// matchIABSize returns "WxH" for the first standard size both
// dimensions fall within tolerance of, or "".
func (d *Detector) matchIABSize(w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	for _, std := range iabStandardSizes {
		if math.Abs(float64(w-std.W))/float64(std.W) <= d.tolerance &&
			math.Abs(float64(h-std.H))/float64(std.H) <= d.tolerance {
			return fmt.Sprintf("%dx%d", std.W, std.H)
		}
	}
	return ""
}

// detectAdNetwork identifies the serving network from iframe src and
// element attributes. First pattern match wins.
func detectAdNetwork(iframeSrc, elementID, elementClass string) string {
	var parts []string
	if iframeSrc != "" {
		parts = append(parts, strings.ToLower(iframeSrc))
	}
	if elementID != "" {
		parts = append(parts, strings.ToLower(elementID))
	}
	if elementClass != "" {
		parts = append(parts, strings.ToLower(elementClass))
	}
	if len(parts) == 0 {
		return ""
	}

	combined := strings.Join(parts, " ")
	for _, p := range adNetworkPatterns {
		if strings.Contains(combined, p.Pattern) {
			return p.Network
		}
	}
	return ""
}

func rectKey(x, y, w, h float64) string {
	return fmt.Sprintf("%d,%d,%d,%d", int(x), int(y), int(w), int(h))
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
