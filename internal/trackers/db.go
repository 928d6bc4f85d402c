// Package trackers classifies domains to tracker entities, cookie names
// to tracking status, and requests to resource categories. All lookups
// are table-driven and read-only after construction.
package trackers

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/domains"
)

// DB is the tracker classification database: a flat domain -> entry map
// built from the built-in table plus optional JSON extensions. Safe for
// concurrent readers once constructed.
type DB struct {
	lookup map[string]Entry
	logger arbor.ILogger
}

// New returns a DB seeded with the built-in tracker table.
func New(logger arbor.ILogger) *DB {
	lookup := make(map[string]Entry, len(builtinTrackers))
	for domain, entry := range builtinTrackers {
		lookup[domain] = entry
	}
	return &DB{lookup: lookup, logger: logger}
}

// DomainCount returns the number of domain entries loaded.
func (d *DB) DomainCount() int {
	return len(d.lookup)
}

// LoadDisconnect merges a Disconnect.me services.json file into the
// lookup table. Missing or malformed files warn and leave the table
// unchanged; entries loaded here override the built-ins.
func (d *DB) LoadDisconnect(path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		d.logger.Warn().Str("path", path).Err(err).Msg("Disconnect.me file not loaded")
		return
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		d.logger.Warn().Str("path", path).Err(err).Msg("Failed to parse Disconnect.me file")
		return
	}

	// The categories map may sit under a "categories" key or be the
	// whole document.
	categoriesRaw, ok := doc["categories"]
	if !ok {
		categoriesRaw = data
	}

	var categories map[string][]map[string]map[string]any
	if err := json.Unmarshal(categoriesRaw, &categories); err != nil {
		d.logger.Warn().Str("path", path).Err(err).Msg("Failed to parse Disconnect.me categories")
		return
	}

	count := 0
	for categoryName, entries := range categories {
		category := normalizeCategory(categoryName)
		for _, entry := range entries {
			for entityName, entityData := range entry {
				for _, value := range entityData {
					domainList, ok := value.([]any)
					if !ok {
						continue
					}
					for _, item := range domainList {
						domain, ok := item.(string)
						if !ok || !strings.Contains(domain, ".") {
							continue
						}
						d.lookup[domain] = Entry{Entity: entityName, Category: category}
						count++
					}
				}
			}
		}
	}
	d.logger.Info().Int("domains", count).Str("path", path).Msg("Loaded Disconnect.me trackers")
}

// LoadRegional merges a regional tracker JSON file keyed by entity slug:
//
//	{"seznam": {"name": "Seznam.cz", "category": "advertising",
//	            "domains": ["sklik.cz", ...]}, ...}
func (d *DB) LoadRegional(path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		d.logger.Warn().Str("path", path).Err(err).Msg("Regional trackers file not loaded")
		return
	}

	var entries map[string]struct {
		Name     string   `json:"name"`
		Category string   `json:"category"`
		Domains  []string `json:"domains"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		d.logger.Warn().Str("path", path).Err(err).Msg("Failed to parse regional trackers file")
		return
	}

	count := 0
	for slug, entry := range entries {
		entity := entry.Name
		if entity == "" {
			entity = slug
		}
		category := entry.Category
		if category == "" {
			category = "other"
		}
		for _, domain := range entry.Domains {
			d.lookup[domain] = Entry{Entity: entity, Category: normalizeCategory(category)}
			count++
		}
	}
	d.logger.Info().Int("domains", count).Str("path", path).Msg("Loaded regional trackers")
}

// Classify maps a domain to its tracker entity and category. Returns
// empty strings for unclassified domains. The lookup walks up the
// hierarchy: exact host, then registered domain, then each parent one
// label at a time (ads.doubleclick.net -> doubleclick.net).
func (d *DB) Classify(domain string) (entity, category string) {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	if domain == "" {
		return "", ""
	}

	if entry, ok := d.lookup[domain]; ok {
		return entry.Entity, entry.Category
	}

	if entry, ok := d.lookup[domains.Registered(domain)]; ok {
		return entry.Entity, entry.Category
	}

	parts := strings.Split(domain, ".")
	for i := 1; i < len(parts); i++ {
		parent := strings.Join(parts[i:], ".")
		if entry, ok := d.lookup[parent]; ok {
			return entry.Entity, entry.Category
		}
	}

	return "", ""
}

// IsTrackingCookie reports whether a cookie is likely a tracking cookie,
// by name pattern or by the domain classifying to any entity.
func (d *DB) IsTrackingCookie(name, domain string) bool {
	if IsTrackingCookieName(name) {
		return true
	}
	entity, _ := d.Classify(domain)
	return entity != ""
}

// IsTrackingCookieName matches a cookie name against the known tracking
// patterns: case-insensitive equality or prefix.
func IsTrackingCookieName(name string) bool {
	nameLower := strings.ToLower(name)
	for _, pattern := range trackingCookiePatterns {
		patternLower := strings.ToLower(pattern)
		if nameLower == patternLower || strings.HasPrefix(nameLower, patternLower) {
			return true
		}
	}
	return false
}

// normalizeCategory folds external category names onto the closed set
// advertising, analytics, social, fingerprinting, cdn, other.
func normalizeCategory(name string) string {
	c := strings.ToLower(strings.TrimSpace(name))
	switch c {
	case "advertising", "analytics", "social", "fingerprinting", "cdn", "other":
		return c
	}
	if strings.Contains(c, "fingerprint") {
		return "fingerprinting"
	}
	if strings.Contains(c, "advert") {
		return "advertising"
	}
	if strings.Contains(c, "social") {
		return "social"
	}
	if strings.Contains(c, "analytic") {
		return "analytics"
	}
	if strings.Contains(c, "content") || strings.Contains(c, "cdn") {
		return "cdn"
	}
	return "other"
}
