package ads

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/models"
)

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "www.idnes.cz", safeFilename("www.idnes.cz"))
	assert.Equal(t, "a_b_c", safeFilename("a/b:c"))
	assert.Equal(t, "škoda-auto", safeFilename("škoda-auto"))
	assert.Equal(t, "ad_000_final_v2", safeFilename("ad 000 final v2"))
	assert.Equal(t, "", safeFilename(""))
}

func TestIframeSelector(t *testing.T) {
	assert.Equal(t,
		"iframe[src*='https://ads.example.com/frame']",
		iframeSelector("https://ads.example.com/frame"))

	// Quotes in the URL must not break out of the selector.
	assert.Equal(t,
		`iframe[src*='https://x.example/a\'b']`,
		iframeSelector("https://x.example/a'b"))

	long := "https://ads.example.com/" + strings.Repeat("x", 200)
	sel := iframeSelector(long)
	assert.LessOrEqual(t, len(sel), len("iframe[src*='']")+80, "src head is bounded")
}

func TestElementSelector(t *testing.T) {
	assert.Equal(t, "[id='banner-1']", elementSelector(models.AdElement{
		AdID:      "banner-1",
		IsIframe:  true,
		IframeSrc: "https://ads.example.com/f",
		Selector:  "ins.adsbygoogle",
	}), "element id beats everything")

	assert.Equal(t, "iframe[src*='https://ads.example.com/f']", elementSelector(models.AdElement{
		IsIframe:  true,
		IframeSrc: "https://ads.example.com/f",
		Selector:  "ins.adsbygoogle",
	}))

	assert.Equal(t, "ins.adsbygoogle", elementSelector(models.AdElement{
		Selector: "ins.adsbygoogle",
	}))
}

func TestCapture_DisabledOrEmpty(t *testing.T) {
	c := NewCapturer(common.AdCaptureSettings{Enabled: false}, arbor.NewLogger())
	res := c.Capture(context.Background(), []models.AdElement{{Width: 300, Height: 250}}, "run", "idnes.cz", models.ConsentModeAccept)
	assert.Zero(t, res.TotalCaptured)
	assert.Empty(t, res.Captures)

	c = NewCapturer(common.AdCaptureSettings{Enabled: true}, arbor.NewLogger())
	res = c.Capture(context.Background(), nil, "run", "idnes.cz", models.ConsentModeAccept)
	assert.Empty(t, res.Captures)
}

// Without a browser attached every screenshot strategy fails, but the
// metadata sidecars are still written and the captures reported.
func TestCapture_WritesMetadataSidecars(t *testing.T) {
	dir := t.TempDir()
	c := NewCapturer(common.AdCaptureSettings{
		Enabled:      true,
		MaxCaptures:  2,
		OutputDir:    dir,
		CropFallback: true,
	}, arbor.NewLogger())

	ads := []models.AdElement{
		{
			Selector: "ins.adsbygoogle", TagName: "ins",
			AdID: "ad-top", AdClass: "adsbygoogle",
			X: 100, Y: 50, Width: 728, Height: 90,
			IsVisible: true, IABSize: "728x90", AdNetwork: "Google",
		},
		{
			Selector: "iframe[src*='sklik']", TagName: "iframe",
			X: 0, Y: 2000, Width: 300, Height: 600,
			IsIframe: true, IframeSrc: "https://c.sklik.cz/frame", AdNetwork: "Seznam.cz",
		},
		{
			Selector: "[class*='reklama']", TagName: "div",
			X: 0, Y: 0, Width: 300, Height: 250,
		},
	}

	res := c.Capture(context.Background(), ads, "20260825_120000", "idnes.cz", models.ConsentModeAccept)

	require.Len(t, res.Captures, 2, "max_captures caps the batch")
	assert.Equal(t, 0, res.TotalCaptured)
	assert.Equal(t, 2, res.TotalFailed)
	for _, shot := range res.Captures {
		assert.Equal(t, models.CaptureMethodFailed, shot.CaptureMethod)
		assert.Empty(t, shot.ScreenshotPath)
	}

	metaPath := filepath.Join(dir, "20260825_120000", "idnes.cz", "idnes.cz__accept__ad_000__Google__728x90.json")
	data, err := os.ReadFile(metaPath)
	require.NoError(t, err)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "idnes.cz", meta["source_site"])
	assert.Equal(t, "accept", meta["consent_mode"])
	assert.Equal(t, "Google", meta["ad_network"])
	assert.Equal(t, "728x90", meta["iab_format"])
	assert.Equal(t, true, meta["is_above_fold"])
	assert.Equal(t, "idnes.cz__accept__ad_000__Google__728x90.png", meta["screenshot_file"])

	// Second ad sits below the fold and has no element id.
	belowPath := filepath.Join(dir, "20260825_120000", "idnes.cz", "idnes.cz__accept__ad_001__Seznam.cz__300x600.json")
	data, err = os.ReadFile(belowPath)
	require.NoError(t, err)
	meta = map[string]any{}
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, false, meta["is_above_fold"])
	assert.NotContains(t, meta, "element_id")
	assert.Equal(t, "https://c.sklik.cz/frame", meta["iframe_src"])
}
