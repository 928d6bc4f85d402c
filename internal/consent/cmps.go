package consent

// CMPDefinition describes a known Consent Management Platform: how to
// detect its banner and which buttons accept or reject consent. Action
// selectors are ordered fallbacks.
type CMPDefinition struct {
	Name            string
	DetectSelector  string
	AcceptSelectors []string
	RejectSelectors []string
}

var cmpDefinitions = []CMPDefinition{
	{
		Name:           "onetrust",
		DetectSelector: "#onetrust-banner-sdk",
		AcceptSelectors: []string{
			"#onetrust-accept-btn-handler",
			".onetrust-close-btn-handler",
			"#accept-recommended-btn-handler",
		},
		RejectSelectors: []string{
			"#onetrust-reject-all-handler",
			".ot-pc-refuse-all-handler",
			"#onetrust-pc-btn-handler",
		},
	},
	{
		Name:           "cookiebot",
		DetectSelector: "#CybotCookiebotDialog",
		AcceptSelectors: []string{
			"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
			"#CybotCookiebotDialogBodyButtonAccept",
			"#CybotCookiebotDialogBodyLevelButtonAccept",
			"a[data-cb-accept]",
		},
		RejectSelectors: []string{
			"#CybotCookiebotDialogBodyButtonDecline",
			"#CybotCookiebotDialogBodyLevelButtonLevelOptinDeclineAll",
			"a[data-cb-decline]",
		},
	},
	{
		Name:            "cookieyes",
		DetectSelector:  ".cky-consent-container",
		AcceptSelectors: []string{".cky-btn-accept"},
		RejectSelectors: []string{".cky-btn-reject", ".cky-btn-customize"},
	},
	{
		Name:           "didomi",
		DetectSelector: "#didomi-popup, #didomi-notice",
		AcceptSelectors: []string{
			"#didomi-notice-agree-button",
			"[data-testid='notice-accept-btn']",
			".didomi-components-button--color.didomi-button-highlight",
		},
		RejectSelectors: []string{
			"#didomi-notice-disagree-button",
			"[data-testid='notice-disagree-btn']",
			".didomi-components-button:not(.didomi-button-highlight)",
		},
	},
	{
		Name:           "quantcast",
		DetectSelector: ".qc-cmp2-container, .qc-cmp-ui-container",
		AcceptSelectors: []string{
			"[data-testid='GDPR-CTA-accept']",
			".qc-cmp2-summary-buttons button:first-child",
			".qc-cmp-button[mode='primary']",
		},
		RejectSelectors: []string{
			"[data-testid='GDPR-CTA-refuse']",
			".qc-cmp2-summary-buttons button:last-child",
			".qc-cmp-button[mode='secondary']",
		},
	},
	{
		Name:            "termly",
		DetectSelector:  "#termly-code-snippet-support",
		AcceptSelectors: []string{"[data-tid='banner-accept']"},
		RejectSelectors: []string{"[data-tid='banner-decline']"},
	},
	{
		Name:            "osano",
		DetectSelector:  ".osano-cm-window",
		AcceptSelectors: []string{".osano-cm-accept-all", ".osano-cm-accept"},
		RejectSelectors: []string{".osano-cm-deny", ".osano-cm-denyAll"},
	},
	{
		Name:           "trustarc",
		DetectSelector: "#truste-consent-track, .truste_box_overlay, #consent_blackbar",
		AcceptSelectors: []string{
			"#truste-consent-button",
			".truste-consent-button",
			".call[data-accept]",
		},
		RejectSelectors: []string{
			"#truste-consent-required",
			".truste-consent-required",
		},
	},
	{
		Name:           "iubenda",
		DetectSelector: ".iubenda-cs-container, #iubenda-cs-banner",
		AcceptSelectors: []string{
			".iubenda-cs-accept-btn",
			"#iubenda-cs-accept-btn",
		},
		RejectSelectors: []string{
			".iubenda-cs-reject-btn",
			"#iubenda-cs-reject-btn",
		},
	},
	{
		Name:           "klaro",
		DetectSelector: ".klaro .cookie-notice, .klaro .cookie-modal",
		AcceptSelectors: []string{
			".klaro .cm-btn-accept-all",
			".klaro .cm-btn-accept",
		},
		RejectSelectors: []string{
			".klaro .cm-btn-decline",
			".klaro .cm-btn-deny",
		},
	},
	{
		Name:           "complianz",
		DetectSelector: ".cmplz-cookiebanner, #cmplz-cookiebanner-container",
		AcceptSelectors: []string{
			".cmplz-btn.cmplz-accept",
			".cmplz-accept-all",
		},
		RejectSelectors: []string{
			".cmplz-btn.cmplz-deny",
			".cmplz-deny",
		},
	},
	{
		Name:           "cookie_notice",
		DetectSelector: "#cookie-notice, .cookie-notice-container",
		AcceptSelectors: []string{
			"#cn-accept-cookie",
			".cn-set-cookie",
			"#cookie-notice .cn-button",
		},
		RejectSelectors: []string{
			"#cn-refuse-cookie",
			".cn-decline-cookie",
		},
	},
	{
		Name:           "civic_uk",
		DetectSelector: "#ccc, .ccc-notify",
		AcceptSelectors: []string{
			"#ccc-recommended-settings",
			".ccc-accept-button",
		},
		RejectSelectors: []string{
			"#ccc-reject-settings",
			".ccc-reject-button",
		},
	},
	{
		Name:           "sourcepoint",
		DetectSelector: "[id^='sp_message_container']",
		AcceptSelectors: []string{
			"button[title='Accept']",
			"button[title='Accept All']",
			"button[title='OK']",
		},
		RejectSelectors: []string{
			"button[title='Reject']",
			"button[title='Reject All']",
		},
	},
}

// Czech sites favour home-grown banners over the global CMPs, so they
// get their own definitions.
var czechCMPDefinitions = []CMPDefinition{
	{
		Name:           "alza",
		DetectSelector: "div.js-cookies-info, .cookies-info",
		AcceptSelectors: []string{
			"a.js-cookies-info-accept",
			".js-cookies-info-accept",
		},
		RejectSelectors: []string{
			"a.js-cookies-info-reject",
			".js-cookies-info-reject",
		},
	},
	{
		Name:           "idnes_content_wall",
		DetectSelector: "#content-wall, .content-wall, .cookie-info",
		AcceptSelectors: []string{
			".btn-cons.contentwall_ok",
			".contentwall_ok",
			"button.accept-cookies",
		},
		RejectSelectors: []string{
			".btn-cons.contentwall_reject",
			"button.reject-cookies",
		},
	},
	{
		Name:           "allegro_group",
		DetectSelector: "[data-testid='cookie-consent-dialog'], [data-testid='consent-popup']",
		AcceptSelectors: []string{
			"button[data-testid='accept_home_view_action']",
			"button[data-testid='consent-accept-all']",
		},
		RejectSelectors: []string{
			"button[data-testid='reject_home_view_action']",
			"button[data-testid='consent-reject-all']",
		},
	},
	{
		Name:           "cpex",
		DetectSelector: "#cpexSubs, [id^='cpexSubs']",
		AcceptSelectors: []string{
			"#cpexSubs_consentButton",
			"button[id*='consent']",
		},
		RejectSelectors: []string{
			"#cpexSubs_rejectButton",
			"button[id*='reject']",
		},
	},
}

// bannerCSSSelectors match generic cookie banners by id/class naming.
var bannerCSSSelectors = []string{
	"[id*='cookie-bar']",
	"[id*='cookie-banner']",
	"[id*='cookie-consent']",
	"[id*='cookie-notice']",
	"[id*='cookie-popup']",
	"[id*='cookie-modal']",
	"[id*='cookie-dialog']",
	"[id*='cookie-layer']",
	"[id*='cookie-wall']",
	"[id*='cookiebar']",
	"[id*='cookiebanner']",
	"[id*='cookieconsent']",
	"[id*='cookienotice']",
	"[id*='consent-banner']",
	"[id*='consent-bar']",
	"[id*='consent-popup']",
	"[id*='consent-modal']",
	"[id*='consent-dialog']",
	"[id*='gdpr-banner']",
	"[id*='gdpr-consent']",
	"[id*='gdpr-popup']",
	"[id*='gdpr']",
	"[id*='privacy-bar']",
	"[id*='privacy-banner']",
	"[class*='cookie-bar']",
	"[class*='cookie-banner']",
	"[class*='cookie-consent']",
	"[class*='cookie-notice']",
	"[class*='cookie-popup']",
	"[class*='cookie-modal']",
	"[class*='cookie-wall']",
	"[class*='cookiebar']",
	"[class*='cookiebanner']",
	"[class*='cookieconsent']",
	"[class*='consent-banner']",
	"[class*='consent-bar']",
	"[class*='consent-popup']",
	"[class*='consent-modal']",
	"[class*='gdpr-banner']",
	"[class*='gdpr-consent']",
	"[class*='gdpr-popup']",
	"[class*='privacy-bar']",
	"[class*='privacy-banner']",
	"[class*='cc-window']",
	"[class*='cc-banner']",
}

// shadowDOMHosts are custom elements known to wrap consent banners
// inside a shadow root, most importantly Seznam's <szn-cwl>.
var shadowDOMHosts = []string{
	"szn-cwl",
	"#didomi-host",
	"cookie-consent-widget",
	"[data-consent-shadow]",
	"consent-manager",
	"cookie-banner",
}

// settingsPatterns mark buttons that open a preference dialog in
// two-step consent flows.
var settingsPatterns = []string{
	"nastavit", "upravit", "nastavení", "volby", "spravovat",
	"manage", "customize", "settings", "options", "preferences",
}

// frameURLKeywords identify iframes that are likely to host a CMP.
var frameURLKeywords = []string{
	"consent", "cookie", "gdpr", "privacy", "cmp", "sp_message",
	"sourcepoint", "quantcast",
}
