package models

import "time"

// RequestRecord is one intercepted HTTP request. Response fields stay nil
// when no response arrived (cancelled or blocked requests).
type RequestRecord struct {
	URL               string    `json:"url"`
	Domain            string    `json:"domain"` // registered domain of the request URL
	Method            string    `json:"method"`
	ResourceType      string    `json:"resource_type"` // document, script, image, xhr, fetch, font, media, other
	IsThirdParty      bool      `json:"is_third_party"`
	TrackerEntity     string    `json:"tracker_entity,omitempty"`
	TrackerCategory   string    `json:"tracker_category,omitempty"`
	StatusCode        *int      `json:"status_code,omitempty"`
	ResponseSizeBytes *int64    `json:"response_size_bytes,omitempty"`
	TimingMs          *float64  `json:"timing_ms,omitempty"` // request to response wall-clock latency
	Timestamp         time.Time `json:"timestamp"`
	ResourceCategory  string    `json:"resource_category,omitempty"` // content_1p, cdn, tracker, ad, functional_3p, unknown_3p
	ContentType       string    `json:"content_type,omitempty"`
}

// CookieRecord is one cookie visible at session end. The raw value is
// never retained, only its SHA-256.
type CookieRecord struct {
	Name             string     `json:"name"`
	Domain           string     `json:"domain"`
	ValueHash        string     `json:"value_hash"`
	Path             string     `json:"path"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	LifetimeDays     *float64   `json:"lifetime_days,omitempty"`
	IsSecure         bool       `json:"is_secure"`
	IsHTTPOnly       bool       `json:"is_http_only"`
	SameSite         string     `json:"same_site,omitempty"`
	IsSession        bool       `json:"is_session"`
	IsTrackingCookie bool       `json:"is_tracking_cookie"`
	TrackerEntity    string     `json:"tracker_entity,omitempty"`
	SetBeforeConsent bool       `json:"set_before_consent"`
	Timestamp        time.Time  `json:"timestamp"`
}

// ConsentInfo reports what the consent resolver found and did.
type ConsentInfo struct {
	BannerDetected bool   `json:"banner_detected"`
	CMPPlatform    string `json:"cmp_platform,omitempty"` // strategy label: onetrust, seznam_cwl, text_match, ...
	ButtonText     string `json:"button_text,omitempty"`
	ActionTaken    bool   `json:"action_taken"`
}

// Observation is the complete output of one task. It is assembled by the
// crawl engine and persisted atomically; nothing mutates it afterwards.
type Observation struct {
	Site        Site        `json:"site"`
	ConsentMode ConsentMode `json:"consent_mode"`
	Status      CrawlStatus `json:"status"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	FinalURL    string    `json:"final_url,omitempty"`
	PageTitle   string    `json:"page_title,omitempty"`
	LoadTimeMs  *int64    `json:"load_time_ms,omitempty"`

	Requests []RequestRecord `json:"requests"`
	Cookies  []CookieRecord  `json:"cookies"`

	Consent        *ConsentInfo          `json:"consent,omitempty"`
	Fingerprint    *FingerprintResult    `json:"fingerprint,omitempty"`
	AdDetection    *AdDetectionResult    `json:"ad_detection,omitempty"`
	AdCaptures     *AdCaptureResult      `json:"ad_captures,omitempty"`
	ResourceWeight *ResourceWeightResult `json:"resource_weight,omitempty"`

	ScreenshotPath string `json:"screenshot_path,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ThirdPartyCount returns the number of third-party requests.
func (o *Observation) ThirdPartyCount() int {
	n := 0
	for _, r := range o.Requests {
		if r.IsThirdParty {
			n++
		}
	}
	return n
}

// TrackingCookieCount returns the number of tracking cookies.
func (o *Observation) TrackingCookieCount() int {
	n := 0
	for _, c := range o.Cookies {
		if c.IsTrackingCookie {
			n++
		}
	}
	return n
}
