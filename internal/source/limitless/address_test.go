package limitless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

// TestCardAddress verifies the detail page layout and the Japanese translation flag.
func TestCardAddress(t *testing.T) {
	t.Parallel()

	got, err := CardAddress(DefaultBaseURL, "en", "SSP", 57)
	require.NoError(t, err)
	assert.Equal(t, "https://limitlesstcg.com/cards/en/SSP/57", got)

	got, err = CardAddress(DefaultBaseURL+"/", "jp", "SV8", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://limitlesstcg.com/cards/jp/SV8/1?translate=en", got)

	_, err = CardAddress(DefaultBaseURL, "en", "SSP", 0)
	require.Error(t, err)
	_, err = CardAddress("limitlesstcg.com", "en", "SSP", 1)
	require.Error(t, err)
}

// TestSetAddress points at the set overview.
func TestSetAddress(t *testing.T) {
	t.Parallel()

	got, err := SetAddress(DefaultBaseURL, "en", "SSP")
	require.NoError(t, err)
	assert.Equal(t, "https://limitlesstcg.com/cards/en/SSP", got)
}

// TestParseSetPath accepts lang/set and rejects anything else.
func TestParseSetPath(t *testing.T) {
	t.Parallel()

	lang, set, err := ParseSetPath(" EN/SSP/ ")
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
	assert.Equal(t, "SSP", set)

	for _, bad := range []string{"", "en", "en/", "/SSP", "en/SSP/57"} {
		_, _, err := ParseSetPath(bad)
		assert.Error(t, err, bad)
	}
}

// TestAddresser resolves indexes to card pages with archive names.
func TestAddresser(t *testing.T) {
	t.Parallel()

	resolve, err := Addresser(catalog.Segment{Source: catalog.SourceLimitless, ID: "en/SSP", BaseAddress: "en/SSP"}, DefaultBaseURL)
	require.NoError(t, err)

	addr, err := resolve(3)
	require.NoError(t, err)
	assert.Equal(t, "https://limitlesstcg.com/cards/en/SSP/3", addr.URL)
	assert.Equal(t, "en_SSP_3", addr.Name)

	_, err = resolve(0)
	require.Error(t, err)

	_, err = Addresser(catalog.Segment{BaseAddress: "bogus"}, DefaultBaseURL)
	require.Error(t, err)
}
