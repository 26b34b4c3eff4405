package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParsePrice covers currency-formatted listings and digitless inputs.
func TestParsePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want *float64
	}{
		{name: "yen with separator", in: "79,800円", want: ptr(79800)},
		{name: "plain digits", in: "450", want: ptr(450)},
		{name: "leading label", in: "販売価格: 1,200円(税込)", want: ptr(1200)},
		{name: "full-width digits", in: "７９，８００円", want: ptr(79800)},
		{name: "full-width digits ascii comma", in: "７９,８００円", want: ptr(79800)},
		{name: "empty", in: "", want: nil},
		{name: "no digits", in: "SOLD OUT", want: nil},
		{name: "separator only", in: ",円", want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ParsePrice(tc.in)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tc.want, *got, 0.0001)
		})
	}
}

// TestObservationDateUsesUTC verifies the history bucket ignores the caller's zone.
func TestObservationDateUsesUTC(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*60*60)
	at := time.Date(2026, 3, 2, 8, 30, 0, 0, tokyo)
	assert.Equal(t, "2026-03-01", ObservationDate(at))
}

func ptr(v float64) *float64 { return &v }
