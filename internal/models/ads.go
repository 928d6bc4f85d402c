package models

// AdElement is one ad detected in the DOM or frame tree.
type AdElement struct {
	Selector  string  `json:"selector"`
	TagName   string  `json:"tag_name"`
	AdID      string  `json:"ad_id,omitempty"`
	AdClass   string  `json:"ad_class,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	IsVisible bool    `json:"is_visible"`
	IsIframe  bool    `json:"is_iframe"`
	IframeSrc string  `json:"iframe_src,omitempty"`
	IABSize   string  `json:"iab_size,omitempty"`   // "728x90" when matched
	AdNetwork string  `json:"ad_network,omitempty"` // Google, Seznam.cz, Criteo, ...
}

// AdDetectionResult summarizes one ad scan.
type AdDetectionResult struct {
	Ads              []AdElement `json:"ads"`
	TotalAdCount     int         `json:"total_ad_count"`
	VisibleAdCount   int         `json:"visible_ad_count"`
	AdDensity        float64     `json:"ad_density"` // visible ad area / viewport area
	TotalAdAreaPx    int64       `json:"total_ad_area_px"`
	IABStandardCount int         `json:"iab_standard_count"`
}

// Capture method labels, in strategy order.
const (
	CaptureMethodFrameElement = "frame_element"
	CaptureMethodElement      = "element"
	CaptureMethodCropFallback = "crop_fallback"
	CaptureMethodFailed       = "failed"
)

// AdCapture is one attempted ad screenshot. ScreenshotPath is empty when
// every capture strategy failed; the JSON sidecar is always written.
type AdCapture struct {
	AdIndex        int    `json:"ad_index"` // index into AdDetectionResult.Ads
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	MetadataPath   string `json:"metadata_path"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	CaptureMethod  string `json:"capture_method"`
}

// AdCaptureResult summarizes the capture pass.
type AdCaptureResult struct {
	Captures      []AdCapture `json:"captures"`
	TotalCaptured int         `json:"total_captured"`
	TotalFailed   int         `json:"total_failed"`
}
