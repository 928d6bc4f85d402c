package trackers

import (
	"strings"

	"github.com/footprintcz/footprint/internal/models"
)

// CDN hosts that typically serve first-party assets.
var cdnDomains = map[string]struct{}{
	"cdnjs.cloudflare.com":       {},
	"fonts.googleapis.com":       {},
	"fonts.gstatic.com":          {},
	"cdn.jsdelivr.net":           {},
	"unpkg.com":                  {},
	"ajax.googleapis.com":        {},
	"maxcdn.bootstrapcdn.com":    {},
	"stackpath.bootstrapcdn.com": {},
	"code.jquery.com":            {},
}

var cdnPatterns = []string{
	"cloudfront.net",
	"akamaized.net",
	"akamai.net",
	"fastly.net",
	"azureedge.net",
	"cloudflare.com",
}

// Functional third-party services (payments, captchas, embeds).
var functional3PDomains = map[string]struct{}{
	"recaptcha.net":        {},
	"hcaptcha.com":         {},
	"stripe.com":           {},
	"paypal.com":           {},
	"braintreegateway.com": {},
	"gstatic.com":          {},
	"twimg.com":            {},
}

var functional3PPatterns = []string{
	"maps.google",
	"maps.googleapis",
	"recaptcha",
	"hcaptcha",
}

// Ad-serving domains not always labeled advertising by the entity table.
var adDomainPatterns = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"amazon-adsystem.com",
	"adnxs.com",
	"adsrvr.org",
}

// ResourceCategory assigns one of the resource categories to a request.
// First-party requests are content_1p regardless of entity; third-party
// requests fall through entity category, CDN tables, functional tables
// and ad patterns, in that order.
func (d *DB) ResourceCategory(record *models.RequestRecord) string {
	if !record.IsThirdParty {
		return models.ResourceContent1P
	}

	domain := strings.ToLower(record.Domain)
	entity, category := d.Classify(domain)

	if category == "advertising" {
		return models.ResourceAd
	}
	if category == "analytics" || category == "fingerprinting" || category == "social" {
		return models.ResourceTracker
	}

	if _, ok := cdnDomains[domain]; ok {
		return models.ResourceCDN
	}
	for _, pattern := range cdnPatterns {
		if strings.Contains(domain, pattern) {
			return models.ResourceCDN
		}
	}

	if _, ok := functional3PDomains[domain]; ok {
		return models.ResourceFunctional3P
	}
	for _, pattern := range functional3PPatterns {
		if strings.Contains(domain, pattern) {
			return models.ResourceFunctional3P
		}
	}

	for _, pattern := range adDomainPatterns {
		if strings.Contains(domain, pattern) {
			return models.ResourceAd
		}
	}

	if entity != "" {
		return models.ResourceTracker
	}

	return models.ResourceUnknown3P
}
