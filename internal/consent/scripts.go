package consent

import (
	"encoding/json"
	"fmt"
)

// Clickable element sets. Locator-style queries pierce open shadow
// roots the way Playwright-era tooling does; frame scans stay within
// their own document tree.
const (
	basicButtonsJS     = `"button, a, [role='button']"`
	pageButtonsJS      = `"button, a, [role='button'], input[type='submit'], input[type='button']"`
	containerButtonsJS = `"button, a, [role='button'], input[type='submit'], input[type='button'], span[onclick], div[onclick]"`
	shadowButtonsJS    = `"button, a, [role='button'], span[onclick], div[onclick]"`
	roleButtonsJS      = `"button, [role='button'], input[type='button'], input[type='submit']"`
)

// consentHelpersJS is prepended to every strategy script. All scripts
// are synchronous IIFEs that always return an object, never undefined.
const consentHelpersJS = `
const __visible = (el) => {
	if (!el || !el.getBoundingClientRect) return false;
	const win = (el.ownerDocument && el.ownerDocument.defaultView) || window;
	let style = null;
	try { style = win.getComputedStyle(el); } catch (e) { return false; }
	if (!style || style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
};
const __text = (el) => ((el.innerText || el.textContent || '') + '').trim();
const __normText = (el) => ((el.textContent || '') + '').replace(/\s+/g, ' ').trim().toLowerCase();
const __inConsentContext = (el) => {
	const keywords = ['cookie', 'consent', 'gdpr', 'privacy', 'souhlas', 'soukrom',
		'cwl', 'cmp', 'didomi', 'onetrust', 'cookiebot'];
	let node = el.parentElement;
	for (let i = 0; i < 10 && node; i++) {
		const cls = (typeof node.className === 'string' ? node.className : '').toLowerCase();
		const id = (node.id || '').toLowerCase();
		const role = (node.getAttribute('role') || '').toLowerCase();
		const tag = node.tagName.toLowerCase();
		for (const kw of keywords) {
			if (cls.includes(kw) || id.includes(kw) || tag.includes(kw)) return true;
		}
		if (role === 'dialog' || role === 'alertdialog') return true;
		node = node.parentElement;
	}
	return false;
};
const __shadowRoots = (doc) => {
	const out = [doc];
	const walk = (root, depth) => {
		if (depth > 4) return;
		let all = [];
		try { all = root.querySelectorAll('*'); } catch (e) { return; }
		for (const el of all) {
			if (el.shadowRoot) { out.push(el.shadowRoot); walk(el.shadowRoot, depth + 1); }
		}
	};
	walk(doc, 0);
	return out;
};
const __docRoots = () => __shadowRoots(document);
const __frameDocs = () => {
	const out = [];
	const seen = new Set();
	const collect = (doc, depth) => {
		if (depth > 3) return;
		for (const root of __shadowRoots(doc)) {
			let frames = [];
			try { frames = root.querySelectorAll('iframe, frame'); } catch (e) { continue; }
			for (const f of frames) {
				let cd = null;
				try { cd = f.contentDocument; } catch (e) { cd = null; }
				if (cd && !seen.has(cd)) { seen.add(cd); out.push(cd); collect(cd, depth + 1); }
			}
		}
	};
	collect(document, 0);
	return out;
};
const __query = (roots, sel) => {
	for (const root of roots) {
		try { const el = root.querySelector(sel); if (el) return el; } catch (e) {}
	}
	return null;
};
const __queryAll = (roots, sel) => {
	const out = [];
	for (const root of roots) {
		try { out.push(...root.querySelectorAll(sel)); } catch (e) {}
	}
	return out;
};
const __scanEls = (els, texts, limit, needContext) => {
	for (const pattern of texts) {
		if (pattern === 'ok') continue;
		let checked = 0;
		for (const el of els) {
			if (checked >= limit) break;
			if (!__visible(el)) continue;
			checked++;
			const t = __text(el);
			if (!t.toLowerCase().includes(pattern)) continue;
			if (t.length > 80) continue;
			if (needContext && !__inConsentContext(el) && t.length < 4) continue;
			try { el.click(); } catch (e) { continue; }
			return { clicked: true, buttonText: t };
		}
	}
	return null;
};
const __smallestTextMatches = (roots, pattern, exact) => {
	const out = [];
	for (const root of roots) {
		let all = [];
		try { all = root.querySelectorAll('*'); } catch (e) { continue; }
		for (const el of all) {
			const tag = el.tagName;
			if (tag === 'SCRIPT' || tag === 'STYLE' || tag === 'HTML' || tag === 'HEAD') continue;
			const t = __normText(el);
			if (exact ? t !== pattern : !t.includes(pattern)) continue;
			let childMatch = false;
			for (const c of el.children) {
				const ct = __normText(c);
				if (exact ? ct === pattern : ct.includes(pattern)) { childMatch = true; break; }
			}
			if (!childMatch) out.push(el);
		}
	}
	return out;
};
`

// clickOutcome is the JSON shape every strategy script resolves to.
type clickOutcome struct {
	Found      bool   `json:"found"`
	Clicked    bool   `json:"clicked"`
	ButtonText string `json:"buttonText"`
	Platform   string `json:"platform"`
	FrameURL   string `json:"frameUrl"`
}

func jsArg(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// cmpClickScript detects one CMP banner and clicks the first visible
// action button. Returns found=false when the banner is absent (or,
// with requireVisible, hidden); found=true, clicked=false when it
// resisted every selector.
func cmpClickScript(cmp CMPDefinition, selectors []string, requireVisible bool) string {
	return fmt.Sprintf(`(() => {%s
	const roots = __docRoots();
	const banner = __query(roots, %s);
	if (!banner || (%t && !__visible(banner))) return { found: false };
	for (const sel of %s) {
		const btn = __query(roots, sel);
		if (!btn || !__visible(btn)) continue;
		const t = __text(btn);
		try { btn.click(); } catch (e) { continue; }
		return { found: true, clicked: true, buttonText: t };
	}
	return { found: true, clicked: false };
})()`, consentHelpersJS, jsArg(cmp.DetectSelector), requireVisible, jsArg(selectors))
}

// frameCMPScript walks same-origin child frames looking for any known
// CMP. Detection inside a frame is terminal even when no button could
// be clicked.
func frameCMPScript(cmps []CMPDefinition, accept bool) string {
	type frameCMP struct {
		Name      string   `json:"name"`
		Detect    string   `json:"detect"`
		Selectors []string `json:"selectors"`
	}
	defs := make([]frameCMP, 0, len(cmps))
	for _, cmp := range cmps {
		selectors := cmp.AcceptSelectors
		if !accept {
			selectors = cmp.RejectSelectors
		}
		defs = append(defs, frameCMP{Name: cmp.Name, Detect: cmp.DetectSelector, Selectors: selectors})
	}

	return fmt.Sprintf(`(() => {%s
	for (const doc of __frameDocs()) {
		const roots = __shadowRoots(doc);
		for (const cmp of %s) {
			const banner = __query(roots, cmp.detect);
			if (!banner) continue;
			for (const sel of cmp.selectors) {
				const btn = __query(roots, sel);
				if (!btn || !__visible(btn)) continue;
				const t = __text(btn);
				try { btn.click(); } catch (e) { continue; }
				return { found: true, clicked: true, platform: cmp.name, buttonText: t };
			}
			return { found: true, clicked: false, platform: cmp.name };
		}
	}
	return { found: false };
})()`, consentHelpersJS, jsArg(defs))
}

// shadowHostScript pierces one shadow host and clicks the first button
// whose text contains any pattern.
func shadowHostScript(host string, texts []string) string {
	return fmt.Sprintf(`(() => {%s
	let host = null;
	try { host = document.querySelector(%s); } catch (e) { return { found: false }; }
	if (!host) return { found: false };
	const root = host.shadowRoot;
	if (!root) return { found: false };
	const buttons = root.querySelectorAll(%s);
	for (const btn of buttons) {
		const btnText = ((btn.innerText || btn.textContent || '') + '').toLowerCase().trim();
		if (!btnText) continue;
		for (const pattern of %s) {
			if (btnText.includes(pattern)) {
				btn.click();
				return { found: true, clicked: true, buttonText: btnText };
			}
		}
	}
	return { found: true, clicked: false };
})()`, consentHelpersJS, jsArg(host), shadowButtonsJS, jsArg(texts))
}

// seznamInitialClickScript clicks through the first step of Seznam's
// <szn-cwl> dialog, which redirects to cmp.seznam.cz.
const seznamInitialClickScript = `(() => {
	const cwl = document.querySelector('szn-cwl');
	if (cwl && cwl.shadowRoot) {
		const dialog = cwl.shadowRoot.querySelector('.cwl-dialog, .cwl-content, [class*="dialog"], [class*="banner"]');
		if (dialog) { dialog.click(); return { found: true }; }
		cwl.click();
		return { found: true };
	}
	return { found: false };
})()`

// exactTextScript clicks the smallest visible element whose whole text
// equals one of the patterns, shadow roots included.
func exactTextScript(texts []string) string {
	return fmt.Sprintf(`(() => {%s
	const roots = __docRoots();
	for (const pattern of %s) {
		const matches = __smallestTextMatches(roots, pattern, true);
		for (const el of matches) {
			if (!__visible(el)) continue;
			try { el.click(); } catch (e) { continue; }
			return { found: true, clicked: true, buttonText: pattern };
		}
	}
	return { found: false };
})()`, consentHelpersJS, jsArg(texts))
}

// substringTextScript mirrors a text-engine lookup: for each pattern it
// checks the first few smallest matching elements and clicks the first
// one that is visible, short and in a consent-like container.
func substringTextScript(texts []string) string {
	return fmt.Sprintf(`(() => {%s
	const roots = __docRoots();
	for (const pattern of %s) {
		if (pattern === 'ok') continue;
		const matches = __smallestTextMatches(roots, pattern, false);
		let checked = 0;
		for (const el of matches) {
			if (checked >= 5) break;
			checked++;
			if (!__visible(el)) continue;
			const t = __text(el);
			if (t.length > 80) continue;
			if (!__inConsentContext(el)) continue;
			try { el.click(); } catch (e) { continue; }
			return { found: true, clicked: true, buttonText: t };
		}
	}
	return { found: false };
})()`, consentHelpersJS, jsArg(texts))
}

// roleClickScript finds buttons by accessible name. Only the first
// name match per pattern is considered.
func roleClickScript(texts []string, needContext bool) string {
	return fmt.Sprintf(`(() => {%s
	const needContext = %t;
	const els = __queryAll(__docRoots(), %s);
	const nameOf = (el) => {
		const tag = el.tagName;
		if (tag === 'INPUT') return (el.value || el.getAttribute('aria-label') || '').replace(/\s+/g, ' ').trim();
		return (el.getAttribute('aria-label') || __text(el)).replace(/\s+/g, ' ').trim();
	};
	for (const pattern of %s) {
		if (pattern === 'ok') continue;
		let first = null;
		for (const el of els) {
			if (nameOf(el).toLowerCase() === pattern) { first = el; break; }
		}
		if (!first) continue;
		if (!__visible(first)) continue;
		if (needContext && !__inConsentContext(first)) continue;
		const t = __text(first) || nameOf(first);
		try { first.click(); } catch (e) { continue; }
		return { found: true, clicked: true, buttonText: t };
	}
	return { found: false };
})()`, consentHelpersJS, needContext, roleButtonsJS, jsArg(texts))
}

// settingsClickScript clicks a "manage/settings" style button inside a
// consent container, the first step of a generic two-step flow.
func settingsClickScript() string {
	return fmt.Sprintf(`(() => {%s
	const patterns = %s;
	const els = __queryAll(__docRoots(), %s);
	let checked = 0;
	for (const el of els) {
		if (checked >= 40) break;
		if (!__visible(el)) continue;
		checked++;
		const t = __text(el);
		if (t.length > 60) continue;
		const lower = t.toLowerCase();
		for (const pattern of patterns) {
			if (!lower.includes(pattern)) continue;
			if (__inConsentContext(el)) {
				try { el.click(); } catch (e) { break; }
				return { found: true, clicked: true, buttonText: t };
			}
			break;
		}
	}
	return { found: false };
})()`, consentHelpersJS, jsArg(settingsPatterns), basicButtonsJS)
}

// textMatchScript is the full-page text sweep across visible clickable
// elements.
func textMatchScript(texts []string) string {
	return fmt.Sprintf(`(() => {%s
	const hit = __scanEls(__queryAll(__docRoots(), %s), %s, 50, true);
	if (hit) return { found: true, clicked: true, buttonText: hit.buttonText };
	return { found: false };
})()`, consentHelpersJS, pageButtonsJS, jsArg(texts))
}

// okButtonScript is the accept-mode last resort: a literal OK button
// inside a consent container.
func okButtonScript() string {
	return fmt.Sprintf(`(() => {%s
	const els = __queryAll(__docRoots(), "button, [role='button']");
	let checked = 0;
	for (const el of els) {
		if (checked >= 30) break;
		if (!__visible(el)) continue;
		checked++;
		const t = __text(el);
		if (t.toUpperCase() !== 'OK') continue;
		if (!__inConsentContext(el)) continue;
		try { el.click(); } catch (e) { continue; }
		return { found: true, clicked: true, buttonText: 'OK' };
	}
	return { found: false };
})()`, consentHelpersJS)
}

// didomiAPIScript drives the Didomi JS API directly, bypassing hidden
// banners.
func didomiAPIScript(method string) string {
	return fmt.Sprintf(`(() => {
	if (window.Didomi && typeof window.Didomi[%s] === 'function') {
		window.Didomi[%s]();
		return { found: true, clicked: true, buttonText: %s };
	}
	return { found: false };
})()`, jsArg(method), jsArg(method), jsArg(method))
}

// frameTextScript sweeps same-origin child frames for buttons matching
// the patterns.
func frameTextScript(texts []string) string {
	return fmt.Sprintf(`(() => {%s
	for (const doc of __frameDocs()) {
		const hit = __scanEls(__queryAll(__shadowRoots(doc), %s), %s, 30, false);
		if (hit) return { found: true, clicked: true, buttonText: hit.buttonText };
	}
	return { found: false };
})()`, consentHelpersJS, basicButtonsJS, jsArg(texts))
}

// frameURLCMPScript targets frames whose URL looks like a CMP host
// (Sourcepoint, Quantcast and friends).
func frameURLCMPScript(texts []string) string {
	return fmt.Sprintf(`(() => {%s
	const keywords = %s;
	for (const doc of __frameDocs()) {
		let url = '';
		try { url = (doc.location && doc.location.href) || ''; } catch (e) { continue; }
		const lower = url.toLowerCase();
		if (!keywords.some((kw) => lower.includes(kw))) continue;
		const hit = __scanEls(__queryAll(__shadowRoots(doc), %s), %s, 20, false);
		if (hit) return { found: true, clicked: true, buttonText: hit.buttonText, frameUrl: url };
	}
	return { found: false };
})()`, consentHelpersJS, jsArg(frameURLKeywords), basicButtonsJS, jsArg(texts))
}

// docTextScript is the single-document variant used inside attached
// out-of-process iframe targets.
func docTextScript(texts []string, limit int) string {
	return fmt.Sprintf(`(() => {%s
	const hit = __scanEls(__queryAll(__docRoots(), %s), %s, %d, false);
	if (hit) return { found: true, clicked: true, buttonText: hit.buttonText };
	return { found: false };
})()`, consentHelpersJS, basicButtonsJS, jsArg(texts), limit)
}

// cssBannerScript finds a generically named banner container and clicks
// a matching button inside it.
func cssBannerScript(texts []string) string {
	return fmt.Sprintf(`(() => {%s
	const roots = __docRoots();
	for (const sel of %s) {
		const candidates = __queryAll(roots, sel);
		let container = null;
		for (const c of candidates) {
			if (__visible(c)) { container = c; break; }
		}
		if (!container) continue;
		let els = [];
		try { els = container.querySelectorAll(%s); } catch (e) { continue; }
		const hit = __scanEls(els, %s, 30, false);
		if (hit) return { found: true, clicked: true, buttonText: hit.buttonText };
	}
	return { found: false };
})()`, consentHelpersJS, jsArg(bannerCSSSelectors), containerButtonsJS, jsArg(texts))
}
