package consent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/models"
)

func newTestHandler() *Handler {
	return NewHandler(common.ConsentPatterns{
		Accept: []string{"Přijmout vše", "Souhlasím", "ACCEPT ALL"},
		Reject: []string{"Odmítnout vše", "pouze nezbytné"},
	}, arbor.NewLogger())
}

func TestNewHandler_LowercasesPatterns(t *testing.T) {
	h := newTestHandler()

	assert.Equal(t, []string{"přijmout vše", "souhlasím", "accept all"}, h.acceptTexts)
	assert.Equal(t, []string{"odmítnout vše", "pouze nezbytné"}, h.rejectTexts)
}

func TestTextsFor(t *testing.T) {
	h := newTestHandler()

	assert.Equal(t, h.acceptTexts, h.textsFor(models.ConsentModeAccept))
	assert.Equal(t, h.rejectTexts, h.textsFor(models.ConsentModeReject))
}

func TestCMPDefinitions_WellFormed(t *testing.T) {
	seen := map[string]bool{}
	for _, cmp := range append(append([]CMPDefinition{}, cmpDefinitions...), czechCMPDefinitions...) {
		require.NotEmpty(t, cmp.Name)
		assert.False(t, seen[cmp.Name], "duplicate CMP name %s", cmp.Name)
		seen[cmp.Name] = true

		assert.NotEmpty(t, cmp.DetectSelector, "%s has no detect selector", cmp.Name)
		assert.NotEmpty(t, cmp.AcceptSelectors, "%s has no accept selectors", cmp.Name)
		assert.NotEmpty(t, cmp.RejectSelectors, "%s has no reject selectors", cmp.Name)
	}

	// The platforms the crawl most depends on must stay in the table.
	for _, name := range []string{"onetrust", "cookiebot", "didomi", "alza", "cpex"} {
		assert.True(t, seen[name], "missing CMP definition %s", name)
	}
}

func TestContainsAny(t *testing.T) {
	assert.True(t, containsAny("https://cdn.cmp.seznam.cz/consent", []string{"consent", "gdpr"}))
	assert.False(t, containsAny("https://example.com/app.js", []string{"consent", "gdpr"}))
	assert.False(t, containsAny("anything", nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
	assert.Equal(t, "", truncate("", 5))
}
