package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservationCounters(t *testing.T) {
	obs := &Observation{
		Requests: []RequestRecord{
			{Domain: "idnes.cz"},
			{Domain: "google-analytics.com", IsThirdParty: true},
			{Domain: "sklik.cz", IsThirdParty: true},
		},
		Cookies: []CookieRecord{
			{Name: "_ga", IsTrackingCookie: true},
			{Name: "sid"},
		},
	}

	assert.Equal(t, 2, obs.ThirdPartyCount())
	assert.Equal(t, 1, obs.TrackingCookieCount())
}

func TestObservationCounters_Empty(t *testing.T) {
	obs := &Observation{}
	assert.Zero(t, obs.ThirdPartyCount())
	assert.Zero(t, obs.TrackingCookieCount())
}

func TestParseConsentMode(t *testing.T) {
	for _, name := range []string{"ignore", "accept", "reject"} {
		mode, err := ParseConsentMode(name)
		require.NoError(t, err)
		assert.Equal(t, ConsentMode(name), mode)
	}

	_, err := ParseConsentMode("maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maybe")
}

func TestTaskKey(t *testing.T) {
	task := Task{
		Site: Site{Domain: "idnes.cz"},
		Mode: ConsentModeAccept,
	}
	assert.Equal(t, "idnes.cz:accept", task.Key())
}
