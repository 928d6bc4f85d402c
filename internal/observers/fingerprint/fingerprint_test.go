package fingerprint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/models"
)

func TestDomainFromStack(t *testing.T) {
	tests := []struct {
		name  string
		stack string
		want  string
	}{
		{
			name:  "chrome frame",
			stack: "at t.getFp (https://cdn.seznam.cz/ssp/fp.min.js:2:12345)",
			want:  "seznam.cz",
		},
		{
			name:  "first url wins",
			stack: "at a (https://static.doubleclick.net/fp.js:1:1) | at b (https://www.idnes.cz/x.js:9:9)",
			want:  "doubleclick.net",
		},
		{
			name:  "subdomain collapses to registered domain",
			stack: "at https://metrics.cdn.smartlook.com/recorder.js:3:40",
			want:  "smartlook.com",
		},
		{
			name:  "no url in stack",
			stack: "at <anonymous>:1:1 | at eval (eval at <anonymous>)",
			want:  "",
		},
		{
			name:  "empty stack",
			stack: "",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domainFromStack(tt.stack))
		})
	}
}

func TestClassifySeverity(t *testing.T) {
	apis := func(names ...string) map[string]bool {
		m := make(map[string]bool, len(names))
		for _, n := range names {
			m[n] = true
		}
		return m
	}

	tests := []struct {
		name   string
		apis   map[string]bool
		events int
		want   models.FingerprintSeverity
	}{
		{"no events", apis(), 0, models.SeverityNone},
		{"enumeration only", apis("navigator", "storage", "font"), 12, models.SeverityPassive},
		{"single active vector", apis("canvas", "navigator"), 5, models.SeverityActive},
		{"two active vectors", apis("canvas", "webgl"), 4, models.SeverityAggressive},
		{"full battery", apis("canvas", "webgl", "audio", "navigator"), 20, models.SeverityAggressive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySeverity(tt.apis, tt.events))
		})
	}
}

func TestDetector_DisabledShortCircuits(t *testing.T) {
	d := NewDetector(common.FingerprintingSettings{Enabled: false}, nil, arbor.NewLogger())

	require.NoError(t, d.Inject(context.Background()))

	res := d.Collect(context.Background())
	require.NotNil(t, res)
	assert.Equal(t, models.SeverityNone, res.Severity)
	assert.Empty(t, res.Events)
}

func TestMonitorScript_CoversHookedAPIs(t *testing.T) {
	for _, hook := range []string{
		"window.__fp_log",
		"toDataURL",
		"getImageData",
		"getParameter",
		"UNMASKED_RENDERER_WEBGL",
		"OfflineAudioContext",
		"hardwareConcurrency",
		"fonts.check",
		"indexedDB.open",
	} {
		assert.Contains(t, monitorScript, hook)
	}
}
