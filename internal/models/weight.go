package models

// Resource categories assigned to individual requests.
const (
	ResourceContent1P    = "content_1p"
	ResourceCDN          = "cdn"
	ResourceTracker      = "tracker"
	ResourceAd           = "ad"
	ResourceFunctional3P = "functional_3p"
	ResourceUnknown3P    = "unknown_3p"
)

// ResourceWeightResult sums the response bytes per resource category for
// one session. Only requests with a known response size contribute.
type ResourceWeightResult struct {
	TotalBytes        int64 `json:"total_bytes"`
	Content1PBytes    int64 `json:"content_1p_bytes"`
	CDNBytes          int64 `json:"cdn_bytes"`
	TrackerBytes      int64 `json:"tracker_bytes"`
	AdBytes           int64 `json:"ad_bytes"`
	Functional3PBytes int64 `json:"functional_3p_bytes"`
	Unknown3PBytes    int64 `json:"unknown_3p_bytes"`

	RequestsWithSize int `json:"requests_with_size"`
}
