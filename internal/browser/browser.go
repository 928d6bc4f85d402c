// Package browser manages the shared Chrome process and hands out
// isolated per-task browser contexts.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/common"
)

// Browser owns a single Chrome process. Tasks never share a cookie jar:
// each call to NewPage creates a disposable CDP browser context with its
// own storage, emulation and permissions.
type Browser struct {
	settings common.BrowserSettings
	headless bool
	logger   arbor.ILogger

	ctx             context.Context
	cancel          context.CancelFunc
	allocatorCancel context.CancelFunc

	mu          sync.Mutex
	initialized bool
}

// Page is one isolated tab. Ctx is a chromedp context; Close destroys
// the tab and with it the backing browser context and all its cookies.
type Page struct {
	Ctx              context.Context
	TargetID         target.ID
	BrowserContextID cdp.BrowserContextID

	cancel context.CancelFunc
	logger arbor.ILogger
}

func New(settings common.BrowserSettings, headless bool, logger arbor.ILogger) *Browser {
	return &Browser{
		settings: settings,
		headless: headless,
		logger:   logger,
	}
}

// Start launches Chrome and verifies it responds. It must be called
// once before NewPage.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return fmt.Errorf("browser already started")
	}

	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("lang", b.settings.Locale),
		chromedp.WindowSize(b.settings.Viewport.Width, b.settings.Viewport.Height),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	b.ctx = browserCtx
	b.cancel = browserCancel
	b.allocatorCancel = allocatorCancel
	b.initialized = true

	b.logger.Info().
		Bool("headless", b.headless).
		Str("locale", b.settings.Locale).
		Str("timezone", b.settings.Timezone).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser started")

	return nil
}

// Stop shuts down Chrome and releases all resources.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return
	}

	if b.cancel != nil {
		b.cancel()
	}
	if b.allocatorCancel != nil {
		b.allocatorCancel()
	}
	b.initialized = false
	b.logger.Info().Msg("Browser stopped")
}

// NewPage creates a fresh isolated browser context plus a blank tab in
// it, applies locale, timezone, geolocation and viewport emulation, and
// wires JavaScript dialogs to auto-dismiss. The returned page is ready
// for listeners and navigation.
func (b *Browser) NewPage() (*Page, error) {
	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser not started")
	}
	rootCtx := b.ctx
	b.mu.Unlock()

	var browserContextID cdp.BrowserContextID
	var targetID target.ID

	createCtx, createCancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer createCancel()

	err := chromedp.Run(createCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		browserContextID, err = target.CreateBrowserContext().
			WithDisposeOnDetach(true).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to create browser context: %w", err)
		}

		err = cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{cdpbrowser.PermissionTypeGeolocation}).
			WithBrowserContextID(browserContextID).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to grant geolocation permission: %w", err)
		}

		targetID, err = target.CreateTarget("about:blank").
			WithBrowserContextID(browserContextID).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to create target: %w", err)
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}

	pageCtx, pageCancel := chromedp.NewContext(rootCtx, chromedp.WithTargetID(targetID))

	p := &Page{
		Ctx:              pageCtx,
		TargetID:         targetID,
		BrowserContextID: browserContextID,
		cancel:           pageCancel,
		logger:           b.logger,
	}

	chromedp.ListenTarget(pageCtx, func(ev interface{}) {
		if dialog, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			b.logger.Debug().
				Str("dialog_type", string(dialog.Type)).
				Str("url", dialog.URL).
				Msg("Auto-dismissing JavaScript dialog")
			go func() {
				if err := chromedp.Run(pageCtx, page.HandleJavaScriptDialog(false)); err != nil {
					b.logger.Debug().Err(err).Msg("Failed to dismiss dialog")
				}
			}()
		}
	})

	setupCtx, setupCancel := context.WithTimeout(pageCtx, 30*time.Second)
	defer setupCancel()

	setup := []chromedp.Action{
		network.Enable(),
		emulation.SetTimezoneOverride(b.settings.Timezone),
		emulation.SetLocaleOverride().WithLocale(b.settings.Locale),
		emulation.SetGeolocationOverride().
			WithLatitude(b.settings.Geolocation.Latitude).
			WithLongitude(b.settings.Geolocation.Longitude).
			WithAccuracy(100),
		chromedp.EmulateViewport(int64(b.settings.Viewport.Width), int64(b.settings.Viewport.Height)),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage(b.settings.Locale)}),
	}
	if b.settings.UserAgent != "" {
		setup = append(setup, emulation.SetUserAgentOverride(b.settings.UserAgent))
	}

	if err := chromedp.Run(setupCtx, setup...); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to configure browser context: %w", err)
	}

	return p, nil
}

// Close tears down the tab. DisposeOnDetach removes the backing browser
// context, so cookies and storage from this task never leak into the
// next one.
func (p *Page) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Debug().Str("target_id", string(p.TargetID)).Msg("Page closed")
}

// acceptLanguage expands a BCP 47 locale into an Accept-Language header
// value, e.g. "cs-CZ" becomes "cs-CZ,cs;q=0.9,en;q=0.8".
func acceptLanguage(locale string) string {
	base, _, found := strings.Cut(locale, "-")
	if !found || base == "" {
		return locale
	}
	return fmt.Sprintf("%s,%s;q=0.9,en;q=0.8", locale, base)
}
