package models

import "time"

// Site identifies one crawl target from the site list. Sites are created
// once per run, keyed by registered domain, and never mutated afterwards.
type Site struct {
	URL       string    `json:"url"`      // canonical URL, scheme-normalized, no trailing slash
	Domain    string    `json:"domain"`   // registered domain label
	Category  string    `json:"category"` // optional semantic category (news, e-commerce, ...)
	RankCZ    int       `json:"rank_cz"`  // optional popularity rank, 0 = unranked
	CreatedAt time.Time `json:"created_at"`
}
