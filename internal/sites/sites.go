// Package sites loads the crawl target list from CSV.
package sites

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/footprintcz/footprint/internal/domains"
	"github.com/footprintcz/footprint/internal/models"
)

// Load reads sites from a CSV file with header url,domain,category and
// an optional rank_* column. URLs are scheme-normalized; a blank domain
// column falls back to the registered domain of the URL; blank ranks
// and categories are permitted.
func Load(path string) ([]models.Site, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sites file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read sites header: %w", err)
	}

	urlCol, domainCol, categoryCol, rankCol := -1, -1, -1, -1
	for i, name := range header {
		switch col := strings.ToLower(strings.TrimSpace(name)); {
		case col == "url":
			urlCol = i
		case col == "domain":
			domainCol = i
		case col == "category":
			categoryCol = i
		case strings.HasPrefix(col, "rank_") && rankCol < 0:
			rankCol = i
		}
	}
	if urlCol < 0 {
		return nil, fmt.Errorf("sites file %s has no url column", path)
	}

	var sites []models.Site
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read sites row %d: %w", line, err)
		}
		line++

		raw := field(row, urlCol)
		if raw == "" {
			continue
		}
		url := domains.NormalizeURL(raw)

		site := models.Site{
			URL:      url,
			Domain:   field(row, domainCol),
			Category: field(row, categoryCol),
		}
		if site.Domain == "" {
			site.Domain = domains.Registered(url)
		}
		if rank := field(row, rankCol); rank != "" {
			if n, err := strconv.Atoi(rank); err == nil {
				site.RankCZ = n
			}
		}
		sites = append(sites, site)
	}

	return sites, nil
}

func field(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
