package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/common"
)

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "cs-CZ,cs;q=0.9,en;q=0.8", acceptLanguage("cs-CZ"))
	assert.Equal(t, "sk-SK,sk;q=0.9,en;q=0.8", acceptLanguage("sk-SK"))
	assert.Equal(t, "en", acceptLanguage("en"), "bare language passes through")
	assert.Equal(t, "", acceptLanguage(""))
}

func TestNewPage_RequiresStart(t *testing.T) {
	b := New(common.Default().Browser, true, arbor.NewLogger())

	_, err := b.NewPage()
	assert.ErrorContains(t, err, "browser not started")
}

func TestStop_BeforeStartIsNoop(t *testing.T) {
	b := New(common.Default().Browser, true, arbor.NewLogger())
	b.Stop()
	b.Stop()
}
