// Package geocode resolves postal addresses to coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hugh/chimeo/internal/apperr"
)

var ErrNoMatch = fmt.Errorf("%w: address not found", apperr.ErrNotFound)

// Result is a resolved coordinate plus the normalized locality fields the
// provider returned. Empty locality fields mean the provider had none.
type Result struct {
	Latitude  float64
	Longitude float64
	City      string
	State     string
	Zip       string
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// FormatAddress renders "address, city, state zip", skipping empty parts.
func FormatAddress(address, city, state, zip string) string {
	var parts []string
	for _, p := range []string{address, city} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	tail := strings.TrimSpace(strings.TrimSpace(state) + " " + strings.TrimSpace(zip))
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}

// Nominatim queries a Nominatim-compatible search endpoint.
type Nominatim struct {
	client    *retryablehttp.Client
	baseURL   string
	userAgent string
}

type Option func(*retryablehttp.Client)

// WithRetries overrides the retry budget and backoff bounds.
func WithRetries(max int, waitMin, waitMax time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryMax = max
		c.RetryWaitMin = waitMin
		c.RetryWaitMax = waitMax
	}
}

func NewNominatim(baseURL, userAgent string, logger *slog.Logger, opts ...Option) *Nominatim {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = logger
	for _, opt := range opts {
		opt(client)
	}
	return &Nominatim{client: client, baseURL: baseURL, userAgent: userAgent}
}

type nominatimPlace struct {
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Address struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		State    string `json:"state"`
		Postcode string `json:"postcode"`
	} `json:"address"`
}

func (n *Nominatim) Geocode(ctx context.Context, address string) (*Result, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrNoMatch
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	q.Set("limit", "1")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, apperr.External("geocoder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.External("geocoder", fmt.Errorf("status %d", resp.StatusCode))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, apperr.External("geocoder", err)
	}
	if len(places) == 0 {
		return nil, ErrNoMatch
	}

	p := places[0]
	lat, errLat := strconv.ParseFloat(p.Lat, 64)
	lon, errLon := strconv.ParseFloat(p.Lon, 64)
	if err := errors.Join(errLat, errLon); err != nil {
		return nil, apperr.External("geocoder", err)
	}

	city := p.Address.City
	if city == "" {
		city = p.Address.Town
	}
	if city == "" {
		city = p.Address.Village
	}

	return &Result{
		Latitude:  lat,
		Longitude: lon,
		City:      city,
		State:     p.Address.State,
		Zip:       p.Address.Postcode,
	}, nil
}

// Static answers every query with the same coordinate. Used in development
// and when GEOCODER_URL is empty or "static".
type Static struct {
	Latitude  float64
	Longitude float64
}

func (s Static) Geocode(_ context.Context, address string) (*Result, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrNoMatch
	}
	return &Result{Latitude: s.Latitude, Longitude: s.Longitude}, nil
}
