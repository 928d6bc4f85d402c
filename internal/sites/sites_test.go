package sites

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/footprintcz/footprint/internal/models"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeCSV(t, `url,domain,category,rank_cz
https://www.idnes.cz,idnes.cz,news,6
https://www.seznam.cz,seznam.cz,search,1
`)

	sites, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sites, 2)

	assert.Equal(t, models.Site{
		URL:      "https://www.idnes.cz",
		Domain:   "idnes.cz",
		Category: "news",
		RankCZ:   6,
	}, sites[0])
	assert.Equal(t, "seznam.cz", sites[1].Domain)
	assert.Equal(t, 1, sites[1].RankCZ)
}

func TestLoad_FillsMissingFields(t *testing.T) {
	path := writeCSV(t, `url,domain,category,rank_cz
www.novinky.cz,,,
https://alza.cz/,alza.cz,,
`)

	sites, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sites, 2)

	// Scheme added, domain derived from the URL, blanks stay zero.
	assert.Equal(t, "https://www.novinky.cz", sites[0].URL)
	assert.Equal(t, "novinky.cz", sites[0].Domain)
	assert.Empty(t, sites[0].Category)
	assert.Zero(t, sites[0].RankCZ)

	assert.Equal(t, "https://alza.cz", sites[1].URL, "trailing slash stripped")
}

func TestLoad_AcceptsAnyRankColumn(t *testing.T) {
	path := writeCSV(t, `url,domain,category,rank_sk
https://www.sme.sk,sme.sk,news,3
`)

	sites, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, 3, sites[0].RankCZ)
}

func TestLoad_SkipsBlankURLRows(t *testing.T) {
	path := writeCSV(t, `url,domain,category,rank_cz
https://www.idnes.cz,idnes.cz,news,6
,,,
https://www.blesk.cz,blesk.cz,news,10
`)

	sites, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, sites, 2)
}

func TestLoad_MissingURLColumn(t *testing.T) {
	path := writeCSV(t, `domain,category
idnes.cz,news
`)

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no url column")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
