// Package weight sums response sizes per resource category so a page's
// byte footprint can be split into first-party content, CDN, tracker,
// ad and other third-party traffic.
package weight

import "github.com/footprintcz/footprint/internal/models"

// Aggregate tallies the recorded response sizes into per-category byte
// totals. Requests without a known size contribute nothing; requests
// without a category count as unknown third-party.
func Aggregate(requests []models.RequestRecord) models.ResourceWeightResult {
	var result models.ResourceWeightResult
	for i := range requests {
		var size int64
		if requests[i].ResponseSizeBytes != nil {
			size = *requests[i].ResponseSizeBytes
		}
		result.TotalBytes += size
		if size > 0 {
			result.RequestsWithSize++
		}

		category := requests[i].ResourceCategory
		if category == "" {
			category = models.ResourceUnknown3P
		}
		switch category {
		case models.ResourceContent1P:
			result.Content1PBytes += size
		case models.ResourceCDN:
			result.CDNBytes += size
		case models.ResourceTracker:
			result.TrackerBytes += size
		case models.ResourceAd:
			result.AdBytes += size
		case models.ResourceFunctional3P:
			result.Functional3PBytes += size
		default:
			result.Unknown3PBytes += size
		}
	}
	return result
}
