package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when a lookup succeeds but resolves no coordinate.
// Callers treat it the same as any other lookup failure: a valid miss.
var ErrNotFound = errors.New("address not resolved")

// Geocoder resolves a free-text address into a coordinate. Best-effort:
// a single attempt per call, failure is a normal outcome.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (Coordinate, error)
}

// HTTPGeocoder queries a Nominatim-style search endpoint
// (GET {base}/search?q=...&format=json&limit=1).
type HTTPGeocoder struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[Coordinate]
	sfg     singleflight.Group
}

func NewHTTPGeocoder(baseURL string, client *http.Client) *HTTPGeocoder {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[Coordinate](gobreaker.Settings{
			Name:    "geocoder",
			Timeout: 30 * time.Second,
		}),
	}
}

// Resolve looks up the address. Concurrent lookups for the same address are
// collapsed into one upstream call; the breaker opens after repeated upstream
// failures so a dead geocoder does not stall every estimate.
func (g *HTTPGeocoder) Resolve(ctx context.Context, address string) (Coordinate, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Coordinate{}, ErrNotFound
	}
	v, err, _ := g.sfg.Do(address, func() (interface{}, error) {
		return g.breaker.Execute(func() (Coordinate, error) {
			return g.fetch(ctx, address)
		})
	})
	if err != nil {
		return Coordinate{}, err
	}
	return v.(Coordinate), nil
}

func (g *HTTPGeocoder) fetch(ctx context.Context, address string) (Coordinate, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return Coordinate{}, fmt.Errorf("build geocode request: %w", err)
	}
	res, err := g.client.Do(req)
	if err != nil {
		return Coordinate{}, fmt.Errorf("geocode request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Coordinate{}, fmt.Errorf("geocoder returned status %d", res.StatusCode)
	}

	// Nominatim encodes lat/lon as strings.
	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(res.Body).Decode(&hits); err != nil {
		return Coordinate{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(hits) == 0 {
		return Coordinate{}, ErrNotFound
	}
	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("parse lat: %w", err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("parse lon: %w", err)
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// Static resolves addresses from a fixed map. Used in tests and as the
// default when no geocoder endpoint is configured.
type Static map[string]Coordinate

func (s Static) Resolve(_ context.Context, address string) (Coordinate, error) {
	c, ok := s[strings.TrimSpace(address)]
	if !ok {
		return Coordinate{}, ErrNotFound
	}
	return c, nil
}
