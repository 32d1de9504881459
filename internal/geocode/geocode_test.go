package geocode_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/internal/geocode"
	"github.com/hugh/chimeo/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		name                      string
		address, city, state, zip string
		want                      string
	}{
		{"full", "1 Main St", "Springfield", "IL", "62701", "1 Main St, Springfield, IL 62701"},
		{"no zip", "1 Main St", "Springfield", "IL", "", "1 Main St, Springfield, IL"},
		{"city only", "", "Springfield", "", "", "Springfield"},
		{"empty", "", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, geocode.FormatAddress(tt.address, tt.city, tt.state, tt.zip))
		})
	}
}

func newNominatim(url string) *geocode.Nominatim {
	return geocode.NewNominatim(url, "chimeo-test", util.DiscardLogger(),
		geocode.WithRetries(2, time.Millisecond, 5*time.Millisecond))
}

func TestNominatim_Geocode(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "chimeo-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		switch r.URL.Query().Get("q") {
		case "1 Main St, Springfield, IL 62701":
			_, _ = w.Write([]byte(`[{"lat":"39.7990","lon":"-89.6440","address":{"town":"Springfield","state":"Illinois","postcode":"62701"}}]`))
		case "nowhere":
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	g := newNominatim(srv.URL)

	t.Run("match", func(t *testing.T) {
		res, err := g.Geocode(testContext(t), "1 Main St, Springfield, IL 62701")
		require.NoError(t, err)
		assert.InDelta(t, 39.799, res.Latitude, 1e-6)
		assert.InDelta(t, -89.644, res.Longitude, 1e-6)
		assert.Equal(t, "Springfield", res.City)
		assert.Equal(t, "62701", res.Zip)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := g.Geocode(testContext(t), "nowhere")
		assert.ErrorIs(t, err, geocode.ErrNoMatch)
	})

	t.Run("server error retries then fails", func(t *testing.T) {
		calls.Store(0)
		_, err := g.Geocode(testContext(t), "broken")
		assert.ErrorIs(t, err, apperr.ErrExternal)
		assert.Equal(t, int32(3), calls.Load())
	})
}

func TestStatic(t *testing.T) {
	g := geocode.Static{Latitude: 1, Longitude: 2}
	res, err := g.Geocode(testContext(t), "anything")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Latitude)

	_, err = g.Geocode(testContext(t), " ")
	assert.ErrorIs(t, err, geocode.ErrNoMatch)
}
