package models

import "fmt"

// ConsentMode is the stance a task takes toward consent banners.
type ConsentMode string

const (
	ConsentModeIgnore ConsentMode = "ignore" // leave banners alone
	ConsentModeAccept ConsentMode = "accept" // attempt to agree
	ConsentModeReject ConsentMode = "reject" // attempt to refuse
)

// ParseConsentMode converts a CLI/config string to a ConsentMode.
func ParseConsentMode(s string) (ConsentMode, error) {
	switch ConsentMode(s) {
	case ConsentModeIgnore, ConsentModeAccept, ConsentModeReject:
		return ConsentMode(s), nil
	}
	return "", fmt.Errorf("unknown consent mode %q (want ignore, accept or reject)", s)
}

// CrawlStatus is the terminal outcome of one task.
type CrawlStatus string

const (
	StatusSuccess CrawlStatus = "success"
	StatusTimeout CrawlStatus = "timeout"
	StatusError   CrawlStatus = "error"
	StatusBlocked CrawlStatus = "blocked"
)

// Task is the unit of work: one site crawled under one consent mode.
// Tasks run to completion independently and share no mutable state.
type Task struct {
	Site Site        `json:"site"`
	Mode ConsentMode `json:"mode"`
}

// Key returns the task identity used in logs and progress output.
func (t Task) Key() string {
	return t.Site.Domain + ":" + string(t.Mode)
}
