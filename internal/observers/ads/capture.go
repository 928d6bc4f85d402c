package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/models"
)

// Capturer screenshots individual ad elements. Three strategies run in
// order until one produces a PNG: element screenshot of the iframe
// found by src, element screenshot via the detection selector, then a
// crop from a viewport screenshot. The JSON sidecar is written even
// when all three fail.
type Capturer struct {
	cfg    common.AdCaptureSettings
	logger arbor.ILogger
}

func NewCapturer(cfg common.AdCaptureSettings, logger arbor.ILogger) *Capturer {
	return &Capturer{cfg: cfg, logger: logger}
}

// captureMetadata is the sidecar written next to each ad screenshot.
type captureMetadata struct {
	SourceSite     string `json:"source_site"`
	ConsentMode    string `json:"consent_mode"`
	AdNetwork      string `json:"ad_network,omitempty"`
	ElementTag     string `json:"element_tag"`
	ElementID      string `json:"element_id,omitempty"`
	ElementClasses string `json:"element_classes,omitempty"`
	IframeSrc      string `json:"iframe_src,omitempty"`
	Position       struct {
		X int `json:"x"`
		Y int `json:"y"`
	} `json:"position"`
	Size struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"size"`
	IABFormat      string `json:"iab_format,omitempty"`
	IsAboveFold    bool   `json:"is_above_fold"`
	CapturedAt     string `json:"captured_at"`
	ScreenshotFile string `json:"screenshot_file"`
}

// Capture screenshots up to MaxCaptures detected ads into
// {output_dir}/{run_id}/{domain}/.
func (c *Capturer) Capture(ctx context.Context, ads []models.AdElement, runID, domain string, mode models.ConsentMode) *models.AdCaptureResult {
	if !c.cfg.Enabled || len(ads) == 0 {
		return &models.AdCaptureResult{}
	}

	baseDir := filepath.Join(c.cfg.OutputDir, runID, safeFilename(domain))
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		c.logger.Warn().Err(err).Str("dir", baseDir).Msg("Failed to create ad capture directory")
		return &models.AdCaptureResult{}
	}

	limit := len(ads)
	if c.cfg.MaxCaptures > 0 && limit > c.cfg.MaxCaptures {
		limit = c.cfg.MaxCaptures
	}

	captures := make([]models.AdCapture, 0, limit)
	for i := 0; i < limit; i++ {
		captures = append(captures, c.captureOne(ctx, ads[i], i, baseDir, domain, mode))
	}

	captured, failed := 0, 0
	for _, shot := range captures {
		if shot.CaptureMethod == models.CaptureMethodFailed {
			failed++
		} else {
			captured++
		}
	}

	c.logger.Debug().
		Int("captured", captured).
		Int("failed", failed).
		Str("domain", domain).
		Str("mode", string(mode)).
		Msg("Ad capture complete")

	return &models.AdCaptureResult{
		Captures:      captures,
		TotalCaptured: captured,
		TotalFailed:   failed,
	}
}

func (c *Capturer) captureOne(ctx context.Context, ad models.AdElement, index int, baseDir, domain string, mode models.ConsentMode) models.AdCapture {
	network := safeFilename(ad.AdNetwork)
	if network == "" {
		network = "unknown"
	}
	w, h := int(ad.Width), int(ad.Height)

	filename := fmt.Sprintf("%s__%s__ad_%03d__%s__%dx%d", safeFilename(domain), mode, index, network, w, h)
	ssPath := filepath.Join(baseDir, filename+".png")
	metaPath := filepath.Join(baseDir, filename+".json")

	meta := captureMetadata{
		SourceSite:     domain,
		ConsentMode:    string(mode),
		AdNetwork:      ad.AdNetwork,
		ElementTag:     ad.TagName,
		ElementID:      ad.AdID,
		ElementClasses: ad.AdClass,
		IframeSrc:      ad.IframeSrc,
		IABFormat:      ad.IABSize,
		IsAboveFold:    ad.Y < 1080,
		CapturedAt:     time.Now().UTC().Format(time.RFC3339),
		ScreenshotFile: filename + ".png",
	}
	meta.Position.X = int(ad.X)
	meta.Position.Y = int(ad.Y)
	meta.Size.Width = w
	meta.Size.Height = h

	if data, err := json.MarshalIndent(meta, "", "  "); err == nil {
		if err := os.WriteFile(metaPath, data, 0o644); err != nil {
			c.logger.Debug().Err(err).Str("path", metaPath).Msg("Failed to write ad metadata")
		}
	}

	capture := models.AdCapture{
		AdIndex:      index,
		MetadataPath: metaPath,
		Width:        w,
		Height:       h,
	}

	if ad.IsIframe && ad.IframeSrc != "" {
		if c.elementScreenshot(ctx, iframeSelector(ad.IframeSrc), 500*time.Millisecond, ssPath) {
			capture.ScreenshotPath = ssPath
			capture.CaptureMethod = models.CaptureMethodFrameElement
			return capture
		}
	}

	if c.elementScreenshot(ctx, elementSelector(ad), 300*time.Millisecond, ssPath) {
		capture.ScreenshotPath = ssPath
		capture.CaptureMethod = models.CaptureMethodElement
		return capture
	}

	if c.cfg.CropFallback && c.cropFallback(ctx, ad, ssPath) {
		capture.ScreenshotPath = ssPath
		capture.CaptureMethod = models.CaptureMethodCropFallback
		return capture
	}

	capture.CaptureMethod = models.CaptureMethodFailed
	return capture
}

// elementScreenshot scrolls the first selector match into view, lets
// rendering settle, and screenshots it.
func (c *Capturer) elementScreenshot(ctx context.Context, sel string, settle time.Duration, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var buf []byte
	err := chromedp.Run(ctx,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.Screenshot(sel, &buf, chromedp.ByQuery),
	)
	if err != nil || len(buf) == 0 {
		return false
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("Failed to write ad screenshot")
		return false
	}
	return true
}

// cropFallback screenshots the viewport and cuts out the ad's bounding
// box, clamped to image bounds.
func (c *Capturer) cropFallback(ctx context.Context, ad models.AdElement, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return false
	}

	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return false
	}

	bounds := img.Bounds()
	x1 := maxInt(0, int(ad.X))
	y1 := maxInt(0, int(ad.Y))
	x2 := minInt(bounds.Max.X, int(ad.X+ad.Width))
	y2 := minInt(bounds.Max.Y, int(ad.Y+ad.Height))
	if x2 <= x1 || y2 <= y1 {
		return false
	}

	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return false
	}
	cropped := sub.SubImage(image.Rect(x1, y1, x2, y2))

	f, err := os.Create(path)
	if err != nil {
		return false
	}
	defer f.Close()

	return png.Encode(f, cropped) == nil
}

// iframeSelector builds a css selector matching an iframe by the head
// of its src URL.
func iframeSelector(src string) string {
	return fmt.Sprintf("iframe[src*='%s']", escapeCSS(head(src, 80)))
}

// elementSelector picks the most specific stable selector for an ad.
func elementSelector(ad models.AdElement) string {
	switch {
	case ad.AdID != "":
		return fmt.Sprintf("[id='%s']", escapeCSS(ad.AdID))
	case ad.IsIframe && ad.IframeSrc != "":
		return iframeSelector(ad.IframeSrc)
	default:
		return ad.Selector
	}
}

var cssEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `"`, `\"`)

func escapeCSS(s string) string {
	return cssEscaper.Replace(s)
}

// safeFilename keeps letters, digits and "._-", replacing everything
// else with underscores.
func safeFilename(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
