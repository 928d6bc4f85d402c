package models

import "time"

// FingerprintSeverity grades how aggressively a page fingerprinted the
// browser, derived from which API families were exercised.
type FingerprintSeverity string

const (
	SeverityNone       FingerprintSeverity = "none"       // no events at all
	SeverityPassive    FingerprintSeverity = "passive"    // only navigator/font/storage reads
	SeverityActive     FingerprintSeverity = "active"     // one of canvas/webgl/audio
	SeverityAggressive FingerprintSeverity = "aggressive" // two or more of canvas/webgl/audio
)

// FingerprintEvent is one observed fingerprint-relevant API call, read
// back from the injected hook log.
type FingerprintEvent struct {
	API             string    `json:"api"`    // canvas, webgl, audio, navigator, font, storage
	Method          string    `json:"method"` // toDataURL, getParameter, ...
	CallStackDomain string    `json:"call_stack_domain,omitempty"`
	TrackerEntity   string    `json:"tracker_entity,omitempty"`
	Details         string    `json:"details,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// FingerprintResult aggregates the harvested events for one session.
type FingerprintResult struct {
	Events   []FingerprintEvent  `json:"events"`
	Severity FingerprintSeverity `json:"severity"`

	CanvasDetected    bool `json:"canvas_detected"`
	WebGLDetected     bool `json:"webgl_detected"`
	AudioDetected     bool `json:"audio_detected"`
	FontDetected      bool `json:"font_detected"`
	NavigatorDetected bool `json:"navigator_detected"`
	StorageDetected   bool `json:"storage_detected"`

	UniqueAPIs     int `json:"unique_apis"`
	UniqueEntities int `json:"unique_entities"`
}
