// Package consent detects cookie consent banners and clicks the
// accept or reject control, cascading through known CMPs, shadow DOM
// hosts, iframes and text heuristics until one strategy lands.
package consent

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/models"
)

const evalTimeout = 5 * time.Second

// Handler resolves consent banners on loaded pages. It is stateless
// and safe for concurrent use across tasks.
type Handler struct {
	acceptTexts []string
	rejectTexts []string
	logger      arbor.ILogger
}

func NewHandler(patterns common.ConsentPatterns, logger arbor.ILogger) *Handler {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, t := range in {
			out = append(out, strings.ToLower(t))
		}
		return out
	}
	return &Handler{
		acceptTexts: lower(patterns.Accept),
		rejectTexts: lower(patterns.Reject),
		logger:      logger,
	}
}

// Resolve runs the strategy cascade against an already-loaded page.
// ctx must derive from the page's chromedp context; the caller bounds
// it with the consent timeout. Strategies run in fixed order and the
// first hit wins; a CMP that is detected but resists every click is
// reported with ActionTaken false.
func (h *Handler) Resolve(ctx context.Context, mode models.ConsentMode, browserContextID cdp.BrowserContextID) models.ConsentInfo {
	if mode == models.ConsentModeIgnore {
		return models.ConsentInfo{}
	}
	texts := h.textsFor(mode)

	// Many banners load with a delay.
	if err := chromedp.Run(ctx, chromedp.Sleep(2*time.Second)); err != nil {
		return models.ConsentInfo{}
	}

	type strategy func() *models.ConsentInfo
	strategies := []strategy{
		func() *models.ConsentInfo { return h.tryKnownCMPs(ctx, cmpDefinitions, mode) },
		func() *models.ConsentInfo { return h.tryKnownCMPs(ctx, czechCMPDefinitions, mode) },
		func() *models.ConsentInfo { return h.tryShadowHosts(ctx, texts) },
		func() *models.ConsentInfo { return h.tryFrameCMPs(ctx, mode, browserContextID) },
		func() *models.ConsentInfo { return h.tryTwoStep(ctx, mode, texts) },
		func() *models.ConsentInfo { return h.tryTextEngine(ctx, texts) },
		func() *models.ConsentInfo { return h.tryRole(ctx, texts) },
		func() *models.ConsentInfo { return h.tryCSSBanner(ctx, texts) },
		func() *models.ConsentInfo { return h.tryTextMatch(ctx, mode, texts) },
		func() *models.ConsentInfo { return h.tryDidomiAPI(ctx, mode) },
		func() *models.ConsentInfo { return h.tryFrameText(ctx, texts, browserContextID) },
		func() *models.ConsentInfo { return h.tryNestedFrameCMP(ctx, texts, browserContextID) },
	}

	for _, try := range strategies {
		if ctx.Err() != nil {
			return models.ConsentInfo{}
		}
		if info := try(); info != nil {
			return *info
		}
	}

	h.logger.Debug().Msg("No consent banner detected")
	return models.ConsentInfo{}
}

func (h *Handler) textsFor(mode models.ConsentMode) []string {
	if mode == models.ConsentModeAccept {
		return h.acceptTexts
	}
	return h.rejectTexts
}

// eval runs a strategy script and decodes its outcome. A failed
// evaluation counts as a miss, never as an error.
func (h *Handler) eval(ctx context.Context, script string) (clickOutcome, bool) {
	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	var res clickOutcome
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(script, &res)); err != nil {
		return clickOutcome{}, false
	}
	return res, true
}

func (h *Handler) sleep(ctx context.Context, d time.Duration) {
	_ = chromedp.Run(ctx, chromedp.Sleep(d))
}

func (h *Handler) location(ctx context.Context) string {
	locCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	var url string
	if err := chromedp.Run(locCtx, chromedp.Location(&url)); err != nil {
		return ""
	}
	return url
}

// Strategies 1+2: known CMPs on the main page

func (h *Handler) tryKnownCMPs(ctx context.Context, cmps []CMPDefinition, mode models.ConsentMode) *models.ConsentInfo {
	for _, cmp := range cmps {
		selectors := cmp.AcceptSelectors
		if mode == models.ConsentModeReject {
			selectors = cmp.RejectSelectors
		}

		res, ok := h.eval(ctx, cmpClickScript(cmp, selectors, true))
		if !ok || !res.Found {
			continue
		}

		if res.Clicked {
			h.logger.Info().
				Str("cmp", cmp.Name).
				Str("button", res.ButtonText).
				Msg("Clicked CMP button")
			return &models.ConsentInfo{
				BannerDetected: true,
				CMPPlatform:    cmp.Name,
				ButtonText:     res.ButtonText,
				ActionTaken:    true,
			}
		}
		h.logger.Info().Str("cmp", cmp.Name).Msg("Detected CMP but no clickable button")
		return &models.ConsentInfo{BannerDetected: true, CMPPlatform: cmp.Name}
	}
	return nil
}

// Strategy 3: shadow DOM hosts

func (h *Handler) tryShadowHosts(ctx context.Context, texts []string) *models.ConsentInfo {
	for _, host := range shadowDOMHosts {
		res, ok := h.eval(ctx, shadowHostScript(host, texts))
		if !ok || !res.Found {
			continue
		}
		if res.Clicked {
			h.logger.Info().
				Str("host", host).
				Str("button", res.ButtonText).
				Msg("Shadow DOM click")
			return &models.ConsentInfo{
				BannerDetected: true,
				CMPPlatform:    "shadow_dom_" + host,
				ButtonText:     res.ButtonText,
				ActionTaken:    true,
			}
		}
		h.logger.Debug().Str("host", host).Msg("Shadow DOM host found but no matching button")
	}
	return nil
}

// Strategy 4: known CMPs inside iframes

func (h *Handler) tryFrameCMPs(ctx context.Context, mode models.ConsentMode, browserContextID cdp.BrowserContextID) *models.ConsentInfo {
	all := make([]CMPDefinition, 0, len(cmpDefinitions)+len(czechCMPDefinitions))
	all = append(all, cmpDefinitions...)
	all = append(all, czechCMPDefinitions...)

	res, ok := h.eval(ctx, frameCMPScript(all, mode == models.ConsentModeAccept))
	if ok && res.Found {
		h.logger.Info().Str("cmp", res.Platform).Msg("Detected CMP in iframe")
		return &models.ConsentInfo{
			BannerDetected: true,
			CMPPlatform:    res.Platform,
			ButtonText:     res.ButtonText,
			ActionTaken:    res.Clicked,
		}
	}

	// Cross-origin frames render in their own targets.
	frames := h.frameTargets(ctx, browserContextID, nil)
	defer releaseFrames(frames)

	for _, frame := range frames {
		for _, cmp := range all {
			selectors := cmp.AcceptSelectors
			if mode == models.ConsentModeReject {
				selectors = cmp.RejectSelectors
			}
			res, ok := h.eval(frame.ctx, cmpClickScript(cmp, selectors, false))
			if !ok || !res.Found {
				continue
			}
			h.logger.Info().Str("cmp", cmp.Name).Str("frame_url", frame.url).Msg("Detected CMP in iframe")
			return &models.ConsentInfo{
				BannerDetected: true,
				CMPPlatform:    cmp.Name,
				ButtonText:     res.ButtonText,
				ActionTaken:    res.Clicked,
			}
		}
	}
	return nil
}

// Strategy 5: two-step flows

func (h *Handler) tryTwoStep(ctx context.Context, mode models.ConsentMode, texts []string) *models.ConsentInfo {
	// Seznam: click the szn-cwl dialog, follow the redirect to
	// cmp.seznam.cz, then consent there.
	res, ok := h.eval(ctx, seznamInitialClickScript)
	if ok && res.Found {
		h.logger.Info().Msg("Seznam szn-cwl initial click, waiting for CMP redirect")
		h.sleep(ctx, 3*time.Second)

		url := h.location(ctx)
		if strings.Contains(url, "cmp.seznam.cz") || strings.Contains(url, "cmp.") {
			h.logger.Info().Str("url", url).Msg("Redirected to CMP page")

			if r, ok := h.eval(ctx, exactTextScript(texts)); ok && r.Clicked {
				h.logger.Info().Str("button", r.ButtonText).Msg("Seznam CMP: clicked by exact text")
				return &models.ConsentInfo{
					BannerDetected: true,
					CMPPlatform:    "seznam_cwl",
					ButtonText:     r.ButtonText,
					ActionTaken:    true,
				}
			}

			if r, ok := h.eval(ctx, roleClickScript(texts, false)); ok && r.Clicked {
				h.logger.Info().Str("button", r.ButtonText).Msg("Seznam CMP: clicked by role")
				return &models.ConsentInfo{
					BannerDetected: true,
					CMPPlatform:    "seznam_cwl",
					ButtonText:     r.ButtonText,
					ActionTaken:    true,
				}
			}

			// Keyboard fallback: focus the first control and activate it.
			_ = chromedp.Run(ctx,
				chromedp.KeyEvent(kb.Tab),
				chromedp.Sleep(300*time.Millisecond),
				chromedp.KeyEvent(kb.Enter),
				chromedp.Sleep(2*time.Second),
			)
			if url := h.location(ctx); url != "" && !strings.Contains(url, "cmp") {
				h.logger.Info().Msg("Seznam CMP: success via keyboard")
				return &models.ConsentInfo{
					BannerDetected: true,
					CMPPlatform:    "seznam_cwl",
					ButtonText:     "keyboard",
					ActionTaken:    true,
				}
			}

			return &models.ConsentInfo{BannerDetected: true, CMPPlatform: "seznam_cwl"}
		}
	}

	// Generic two-step: open the preferences dialog, then run the text
	// sweep against whatever it revealed.
	res, ok = h.eval(ctx, settingsClickScript())
	if ok && res.Clicked {
		h.logger.Info().Str("button", res.ButtonText).Msg("Two-step: clicked settings")
		h.sleep(ctx, 1500*time.Millisecond)

		if info := h.tryTextMatch(ctx, mode, texts); info != nil {
			info.CMPPlatform = "two_step_" + info.CMPPlatform
			return info
		}
	}
	return nil
}

// Strategy 6: text engine lookup (pierces open shadow roots)

func (h *Handler) tryTextEngine(ctx context.Context, texts []string) *models.ConsentInfo {
	res, ok := h.eval(ctx, substringTextScript(texts))
	if !ok || !res.Clicked {
		return nil
	}
	h.logger.Info().Str("button", res.ButtonText).Msg("Text engine click")
	return &models.ConsentInfo{
		BannerDetected: true,
		CMPPlatform:    "get_by_text",
		ButtonText:     res.ButtonText,
		ActionTaken:    true,
	}
}

// Strategy 7: accessible role lookup

func (h *Handler) tryRole(ctx context.Context, texts []string) *models.ConsentInfo {
	res, ok := h.eval(ctx, roleClickScript(texts, true))
	if !ok || !res.Clicked {
		return nil
	}
	h.logger.Info().Str("button", res.ButtonText).Msg("Role lookup click")
	return &models.ConsentInfo{
		BannerDetected: true,
		CMPPlatform:    "get_by_role",
		ButtonText:     res.ButtonText,
		ActionTaken:    true,
	}
}

// Strategy 8: generic banner containers

func (h *Handler) tryCSSBanner(ctx context.Context, texts []string) *models.ConsentInfo {
	res, ok := h.eval(ctx, cssBannerScript(texts))
	if !ok || !res.Clicked {
		return nil
	}
	h.logger.Info().Str("button", res.ButtonText).Msg("CSS banner button clicked")
	return &models.ConsentInfo{
		BannerDetected: true,
		CMPPlatform:    "css_banner",
		ButtonText:     res.ButtonText,
		ActionTaken:    true,
	}
}

// Strategy 9: full-page text sweep, with OK fallback for accept

func (h *Handler) tryTextMatch(ctx context.Context, mode models.ConsentMode, texts []string) *models.ConsentInfo {
	res, ok := h.eval(ctx, textMatchScript(texts))
	if ok && res.Clicked {
		h.logger.Info().Str("button", res.ButtonText).Msg("Text match clicked")
		return &models.ConsentInfo{
			BannerDetected: true,
			CMPPlatform:    "text_match",
			ButtonText:     res.ButtonText,
			ActionTaken:    true,
		}
	}

	if mode == models.ConsentModeAccept {
		res, ok := h.eval(ctx, okButtonScript())
		if ok && res.Clicked {
			h.logger.Info().Msg("OK button clicked in consent context")
			return &models.ConsentInfo{
				BannerDetected: true,
				CMPPlatform:    "ok_fallback",
				ButtonText:     "OK",
				ActionTaken:    true,
			}
		}
	}
	return nil
}

// Strategy 10: Didomi JS API

func (h *Handler) tryDidomiAPI(ctx context.Context, mode models.ConsentMode) *models.ConsentInfo {
	method := "setUserAgreeToAll"
	if mode == models.ConsentModeReject {
		method = "setUserDisagreeToAll"
	}

	res, ok := h.eval(ctx, didomiAPIScript(method))
	if !ok || !res.Clicked {
		return nil
	}
	h.logger.Info().Str("method", method).Msg("Didomi JS API consent")
	return &models.ConsentInfo{
		BannerDetected: true,
		CMPPlatform:    "didomi_api",
		ButtonText:     method,
		ActionTaken:    true,
	}
}

// Strategy 11: text sweep inside iframes

func (h *Handler) tryFrameText(ctx context.Context, texts []string, browserContextID cdp.BrowserContextID) *models.ConsentInfo {
	res, ok := h.eval(ctx, frameTextScript(texts))
	if ok && res.Clicked {
		h.logger.Info().Str("button", res.ButtonText).Msg("Text match in iframe")
		return &models.ConsentInfo{
			BannerDetected: true,
			CMPPlatform:    "iframe_text",
			ButtonText:     res.ButtonText,
			ActionTaken:    true,
		}
	}

	frames := h.frameTargets(ctx, browserContextID, nil)
	defer releaseFrames(frames)

	for _, frame := range frames {
		res, ok := h.eval(frame.ctx, docTextScript(texts, 30))
		if ok && res.Clicked {
			h.logger.Info().
				Str("button", res.ButtonText).
				Str("frame_url", frame.url).
				Msg("Text match in iframe")
			return &models.ConsentInfo{
				BannerDetected: true,
				CMPPlatform:    "iframe_text",
				ButtonText:     res.ButtonText,
				ActionTaken:    true,
			}
		}
	}
	return nil
}

// Strategy 12: CMPs nested in consent-looking iframes

func (h *Handler) tryNestedFrameCMP(ctx context.Context, texts []string, browserContextID cdp.BrowserContextID) *models.ConsentInfo {
	res, ok := h.eval(ctx, frameURLCMPScript(texts))
	if ok && res.Clicked {
		h.logger.Info().
			Str("button", res.ButtonText).
			Str("frame_url", truncate(res.FrameURL, 60)).
			Msg("Nested iframe CMP click")
		return &models.ConsentInfo{
			BannerDetected: true,
			CMPPlatform:    "iframe_cmp",
			ButtonText:     res.ButtonText,
			ActionTaken:    true,
		}
	}

	frames := h.frameTargets(ctx, browserContextID, frameURLKeywords)
	defer releaseFrames(frames)

	for _, frame := range frames {
		res, ok := h.eval(frame.ctx, docTextScript(texts, 20))
		if ok && res.Clicked {
			h.logger.Info().
				Str("button", res.ButtonText).
				Str("frame_url", truncate(frame.url, 60)).
				Msg("Nested iframe CMP click")
			return &models.ConsentInfo{
				BannerDetected: true,
				CMPPlatform:    "iframe_cmp",
				ButtonText:     res.ButtonText,
				ActionTaken:    true,
			}
		}
	}
	return nil
}

// Frame target plumbing

type frameTarget struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string
}

// frameTargets attaches to out-of-process iframe targets belonging to
// this task's browser context, optionally filtered by URL keywords.
// Callers must releaseFrames the result.
func (h *Handler) frameTargets(ctx context.Context, browserContextID cdp.BrowserContextID, urlKeywords []string) []frameTarget {
	listCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	var infos []*target.Info
	err := chromedp.Run(listCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		infos, err = target.GetTargets().Do(ctx)
		return err
	}))
	if err != nil {
		h.logger.Debug().Err(err).Msg("Failed to list frame targets")
		return nil
	}

	var frames []frameTarget
	for _, info := range infos {
		if info.Type != "iframe" || info.BrowserContextID != browserContextID {
			continue
		}
		if urlKeywords != nil && !containsAny(strings.ToLower(info.URL), urlKeywords) {
			continue
		}
		frameCtx, frameCancel := chromedp.NewContext(ctx, chromedp.WithTargetID(info.TargetID))
		frames = append(frames, frameTarget{ctx: frameCtx, cancel: frameCancel, url: info.URL})
	}
	return frames
}

func releaseFrames(frames []frameTarget) {
	for _, frame := range frames {
		frame.cancel()
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
