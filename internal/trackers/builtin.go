package trackers

// Entry names the owning entity and category of a tracker domain.
// Categories: advertising, analytics, social, fingerprinting, cdn, other.
type Entry struct {
	Entity   string
	Category string
}

// builtinTrackers covers the major global trackers plus the Czech
// ecosystem (Seznam, Heureka, Gemius, Adform, R2B2 and friends).
var builtinTrackers = map[string]Entry{
	// Google
	"google-analytics.com":  {"Google", "analytics"},
	"googletagmanager.com":  {"Google", "analytics"},
	"googleadservices.com":  {"Google", "advertising"},
	"googlesyndication.com": {"Google", "advertising"},
	"doubleclick.net":       {"Google", "advertising"},
	"googletagservices.com": {"Google", "advertising"},
	"google.com":            {"Google", "analytics"},
	"googleapis.com":        {"Google", "cdn"},
	"gstatic.com":           {"Google", "cdn"},
	"youtube.com":           {"Google", "social"},
	"ytimg.com":             {"Google", "cdn"},
	"ggpht.com":             {"Google", "cdn"},
	"googlevideo.com":       {"Google", "cdn"},
	"googleusercontent.com": {"Google", "cdn"},

	// Meta / Facebook
	"facebook.com":         {"Meta", "social"},
	"facebook.net":         {"Meta", "advertising"},
	"fbcdn.net":            {"Meta", "cdn"},
	"instagram.com":        {"Meta", "social"},
	"connect.facebook.net": {"Meta", "social"},
	"fbsbx.com":            {"Meta", "social"},

	// Microsoft
	"bing.com":      {"Microsoft", "advertising"},
	"msn.com":       {"Microsoft", "advertising"},
	"microsoft.com": {"Microsoft", "analytics"},
	"clarity.ms":    {"Microsoft", "analytics"},
	"msecnd.net":    {"Microsoft", "cdn"},

	// Amazon
	"amazon-adsystem.com": {"Amazon", "advertising"},
	"amazonaws.com":       {"Amazon", "cdn"},
	"cloudfront.net":      {"Amazon", "cdn"},

	// Twitter / X
	"twitter.com": {"Twitter/X", "social"},
	"t.co":        {"Twitter/X", "social"},
	"twimg.com":   {"Twitter/X", "cdn"},

	// Adobe
	"demdex.net":  {"Adobe", "advertising"},
	"omtrdc.net":  {"Adobe", "analytics"},
	"2o7.net":     {"Adobe", "analytics"},
	"adobe.com":   {"Adobe", "analytics"},
	"typekit.net": {"Adobe", "cdn"},

	// Criteo
	"criteo.com": {"Criteo", "advertising"},
	"criteo.net": {"Criteo", "advertising"},

	// Taboola / Outbrain
	"taboola.com":  {"Taboola", "advertising"},
	"outbrain.com": {"Outbrain", "advertising"},

	// AppNexus / Xandr
	"adnxs.com": {"Xandr", "advertising"},

	// The Trade Desk
	"adsrvr.org": {"The Trade Desk", "advertising"},

	// Hotjar
	"hotjar.com": {"Hotjar", "analytics"},

	// HubSpot
	"hubspot.com":      {"HubSpot", "analytics"},
	"hsforms.com":      {"HubSpot", "analytics"},
	"hs-analytics.net": {"HubSpot", "analytics"},

	// Quantcast
	"quantserve.com": {"Quantcast", "advertising"},
	"quantcount.com": {"Quantcast", "analytics"},

	// Oracle / BlueKai
	"bluekai.com": {"Oracle", "advertising"},
	"addthis.com": {"Oracle", "social"},

	// Cloudflare
	"cloudflare.com":         {"Cloudflare", "cdn"},
	"cloudflareinsights.com": {"Cloudflare", "analytics"},

	// New Relic
	"newrelic.com": {"New Relic", "analytics"},
	"nr-data.net":  {"New Relic", "analytics"},

	// Sentry
	"sentry.io": {"Sentry", "analytics"},

	// Pinterest
	"pinimg.com":    {"Pinterest", "social"},
	"pinterest.com": {"Pinterest", "social"},

	// LinkedIn
	"linkedin.com": {"LinkedIn", "social"},
	"licdn.com":    {"LinkedIn", "cdn"},

	// Snap
	"snapchat.com":  {"Snap", "social"},
	"sc-static.net": {"Snap", "cdn"},

	// TikTok
	"tiktok.com":      {"TikTok", "social"},
	"byteoversea.com": {"TikTok", "analytics"},

	// Yandex
	"yandex.ru":    {"Yandex", "analytics"},
	"mc.yandex.ru": {"Yandex", "analytics"},

	// --- Czech-specific trackers ---
	// Seznam.cz
	"sklik.cz":   {"Seznam.cz", "advertising"},
	"imedia.cz":  {"Seznam.cz", "advertising"},
	"im.cz":      {"Seznam.cz", "advertising"},
	"sssp.cz":    {"Seznam.cz", "advertising"},
	"seznam.cz":  {"Seznam.cz", "analytics"},
	"toplist.cz": {"Seznam.cz", "analytics"},
	"zbozi.cz":   {"Seznam.cz", "analytics"},

	// Heureka Group
	"heureka.cz": {"Heureka Group", "analytics"},
	"glami.cz":   {"Heureka Group", "analytics"},
	"glami.eco":  {"Heureka Group", "analytics"},

	// Gemius
	"gemius.com":    {"Gemius", "analytics"},
	"gemius.pl":     {"Gemius", "analytics"},
	"gemiuscdn.com": {"Gemius", "analytics"},

	// Adform
	"adform.net":    {"Adform", "advertising"},
	"adform.com":    {"Adform", "advertising"},
	"adformdsp.net": {"Adform", "advertising"},

	// R2B2
	"r2b2.cz": {"R2B2", "advertising"},
	"r2b2.io": {"R2B2", "advertising"},

	// Impression Media
	"impressionmedia.cz": {"Impression Media", "advertising"},

	// Mediaresearch / NetMonitor
	"netmonitor.cz":    {"Mediaresearch", "analytics"},
	"mediaresearch.cz": {"Mediaresearch", "analytics"},

	// Smartsupp
	"smartsupp.com": {"Smartsupp", "analytics"},

	// Exponea / Bloomreach
	"exponea.com":    {"Bloomreach", "analytics"},
	"bloomreach.com": {"Bloomreach", "analytics"},
}

// trackingCookiePatterns match tracking cookies by name: a cookie name
// matches when it case-insensitively equals a pattern or has one as a
// prefix.
var trackingCookiePatterns = []string{
	// Google Analytics
	"_ga", "_gid", "_gat", "_gcl_au", "_gac_",
	// Google Ads
	"IDE", "NID", "DSID", "1P_JAR", "ANID", "CONSENT",
	// Facebook / Meta
	"_fbp", "_fbc", "fr", "datr", "sb",
	// Microsoft
	"_uetsid", "_uetvid", "MUID", "_clck", "_clsk",
	// Hotjar
	"_hjid", "_hjSession", "_hjSessionUser", "_hjAbsoluteSessionInProgress",
	// HubSpot
	"hubspotutk", "__hssc", "__hssrc", "__hstc",
	// UTM / general
	"__utm",
	// Criteo
	"cto_bundle", "cto_bidid",
	// Adobe
	"s_cc", "s_sq", "s_vi",
	// Seznam / Sklik
	"sid", "lps",
	// Matomo/Piwik
	"_pk_id", "_pk_ses",
}
