package cardrush

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

// TestPageAddress verifies the listing URL layout.
func TestPageAddress(t *testing.T) {
	t.Parallel()

	got, err := PageAddress("https://www.cardrush-pokemon.jp/product-group/267", 2, 100)
	require.NoError(t, err)
	assert.Equal(t, "https://www.cardrush-pokemon.jp/product-group/267/0/photo?num=100&page=2", got)

	got, err = PageAddress("https://www.cardrush-pokemon.jp/product-group/267/?sort=new", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://www.cardrush-pokemon.jp/product-group/267/0/photo?num=100&page=1", got)
}

// TestPageAddressRejectsMalformedBase covers the setup errors that stop a segment.
func TestPageAddressRejectsMalformedBase(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"", "   ", "product-group/267", "ftp://host/x", "https://"} {
		_, err := PageAddress(base, 1, 100)
		assert.Error(t, err, base)
	}
	_, err := PageAddress("https://www.cardrush-pokemon.jp/product-group/267", 0, 100)
	assert.Error(t, err)
}

// TestAddresser verifies resolved addresses carry archive names.
func TestAddresser(t *testing.T) {
	t.Parallel()

	seg := catalog.Segment{ID: "SV2a 151", BaseAddress: "https://www.cardrush-pokemon.jp/product-group/267"}
	resolve, err := Addresser(seg, 50)
	require.NoError(t, err)

	addr, err := resolve(3)
	require.NoError(t, err)
	assert.Equal(t, "https://www.cardrush-pokemon.jp/product-group/267/0/photo?num=50&page=3", addr.URL)
	assert.Equal(t, "SV2a_151_3", addr.Name)

	_, err = Addresser(catalog.Segment{ID: "bad", BaseAddress: "::"}, 50)
	assert.Error(t, err)
}
