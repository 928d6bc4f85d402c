package consent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSArg_EscapesForEmbedding(t *testing.T) {
	assert.Equal(t, `"přijmout vše"`, jsArg("přijmout vše"))
	assert.Equal(t, `"say \"ok\""`, jsArg(`say "ok"`))
	assert.Equal(t, `["a","b"]`, jsArg([]string{"a", "b"}))
	assert.Equal(t, "null", jsArg(make(chan int)), "unmarshalable values degrade to null")
}

func TestClickOutcome_DecodesScriptResult(t *testing.T) {
	var res clickOutcome
	require.NoError(t, json.Unmarshal([]byte(
		`{"found":true,"clicked":true,"buttonText":"Přijmout vše","platform":"onetrust","frameUrl":"https://cmp.example/f"}`,
	), &res))

	assert.True(t, res.Found)
	assert.True(t, res.Clicked)
	assert.Equal(t, "Přijmout vše", res.ButtonText)
	assert.Equal(t, "onetrust", res.Platform)
	assert.Equal(t, "https://cmp.example/f", res.FrameURL)
}

func TestClickOutcome_ZeroOnMiss(t *testing.T) {
	var res clickOutcome
	require.NoError(t, json.Unmarshal([]byte(`{"found":false}`), &res))
	assert.False(t, res.Found)
	assert.False(t, res.Clicked)
}

func TestCMPClickScript_EmbedsSelectors(t *testing.T) {
	cmp := cmpDefinitions[0] // onetrust
	script := cmpClickScript(cmp, cmp.AcceptSelectors, true)

	assert.Contains(t, script, `"#onetrust-banner-sdk"`)
	assert.Contains(t, script, "#onetrust-accept-btn-handler")
	assert.Contains(t, script, "__visible(banner)")
	assert.Contains(t, script, "{ found: false }")

	// Hidden banners only count when visibility is required.
	relaxed := cmpClickScript(cmp, cmp.AcceptSelectors, false)
	assert.Contains(t, script, "(true && !__visible(banner))")
	assert.Contains(t, relaxed, "(false && !__visible(banner))")
}

func TestFrameCMPScript_CarriesModeSelectors(t *testing.T) {
	accept := frameCMPScript(cmpDefinitions[:2], true)
	assert.Contains(t, accept, "#onetrust-accept-btn-handler")
	assert.NotContains(t, accept, "#onetrust-reject-all-handler")

	reject := frameCMPScript(cmpDefinitions[:2], false)
	assert.Contains(t, reject, "#onetrust-reject-all-handler")
	assert.NotContains(t, reject, "#onetrust-accept-btn-handler")
}

func TestTextScripts_EmbedPatterns(t *testing.T) {
	texts := []string{"přijmout vše", "souhlasím"}

	for name, script := range map[string]string{
		"exact":     exactTextScript(texts),
		"substring": substringTextScript(texts),
		"role":      roleClickScript(texts, true),
		"textMatch": textMatchScript(texts),
		"frameText": frameTextScript(texts),
		"docText":   docTextScript(texts, 30),
		"cssBanner": cssBannerScript(texts),
		"frameCMP":  frameURLCMPScript(texts),
	} {
		assert.Contains(t, script, `"přijmout vše"`, "%s script", name)
		assert.Contains(t, script, `"souhlasím"`, "%s script", name)
		assert.True(t, strings.HasPrefix(script, "(() => {"), "%s script must be an IIFE", name)
		assert.True(t, strings.HasSuffix(script, "})()"), "%s script must be an IIFE", name)
	}
}

func TestDidomiAPIScript_SelectsMethod(t *testing.T) {
	assert.Contains(t, didomiAPIScript("setUserAgreeToAll"), `window.Didomi["setUserAgreeToAll"]`)
	assert.Contains(t, didomiAPIScript("setUserDisagreeToAll"), `window.Didomi["setUserDisagreeToAll"]`)
}

func TestSettingsClickScript_UsesCzechPatterns(t *testing.T) {
	script := settingsClickScript()
	assert.Contains(t, script, `"nastavit"`)
	assert.Contains(t, script, `"manage"`)
}
