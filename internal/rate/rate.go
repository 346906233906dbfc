package rate

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"shopinfra/internal/geo"
)

// ErrInvalidInput is returned when a required field of an estimate request is
// absent. It is the only fatal condition: lookup failures degrade instead.
var ErrInvalidInput = errors.New("invalid rate request")

// Address is a free-form postal address. Presence is the only validation;
// format is up to the geocoder.
type Address struct {
	Country    string `json:"country"`
	State      string `json:"state"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
}

// Empty reports whether no field of the address is set.
func (a Address) Empty() bool {
	return strings.TrimSpace(a.Country) == "" &&
		strings.TrimSpace(a.State) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.PostalCode) == ""
}

// FreeText renders the address as a single lookup string for geocoding.
func (a Address) FreeText() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.City, a.State, a.PostalCode, a.Country} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Package describes the parcel to quote. Weight in kilograms, dimensions in
// centimeters, declared value in currency units.
type Package struct {
	Weight float64 `json:"weight"`
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Value  float64 `json:"value"`
}

// Offer is one priced shipping service quote.
type Offer struct {
	ServiceName      string  `json:"serviceName"`
	Rate             float64 `json:"rate"`
	Currency         string  `json:"currency"`
	EstimatedDaysMin int     `json:"estimatedDaysMin"`
	EstimatedDaysMax int     `json:"estimatedDaysMax"`
	Carrier          string  `json:"carrier"`
}

// Estimator produces shipping offers for an origin/destination/package
// triple, sorted ascending by rate.
type Estimator interface {
	Estimate(ctx context.Context, origin, destination Address, pkg Package) ([]Offer, error)
}

// TierProvider appends extra carrier offers on top of the built-in tiers.
// Extension point for carrier integrations; the core ships none.
type TierProvider interface {
	Tiers(ctx context.Context, origin, destination Address, pkg Package, base float64) []Offer
}

const (
	// DefaultDistanceKm substitutes for the real distance whenever either
	// address fails to geocode. The estimator must always quote something.
	DefaultDistanceKm = 1000.0

	// MinRate floors every quote regardless of distance or weight.
	MinRate = 2.0

	defaultCurrency = "USD"
	defaultCarrier  = "internal"

	// FallbackRate prices the single offer emitted when no tier produced one.
	FallbackRate = 9.99
)

// BaseRate derives the base price from distance and weight:
// max(5.0 + distanceKm*0.01 + weightKg*0.5, MinRate).
func BaseRate(distanceKm, weightKg float64) float64 {
	base := 5.0 + distanceKm*0.01 + weightKg*0.5
	if base < MinRate {
		return MinRate
	}
	return base
}

// Distance estimates rates from the great-circle distance between the two
// addresses, resolved through a geocoder.
type Distance struct {
	geocoder geo.Geocoder
	extra    []TierProvider
}

func NewDistance(g geo.Geocoder, extra ...TierProvider) *Distance {
	if g == nil {
		g = geo.Static{}
	}
	return &Distance{geocoder: g, extra: extra}
}

// Estimate resolves both addresses concurrently; if either lookup fails the
// default distance is used instead of aborting. The returned offers are
// sorted ascending by rate, ties keeping their emit order.
func (d *Distance) Estimate(ctx context.Context, origin, destination Address, pkg Package) ([]Offer, error) {
	if origin.Empty() || destination.Empty() {
		return nil, ErrInvalidInput
	}

	var from, to geo.Coordinate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := d.geocoder.Resolve(gctx, origin.FreeText())
		from = c
		return err
	})
	g.Go(func() error {
		c, err := d.geocoder.Resolve(gctx, destination.FreeText())
		to = c
		return err
	})

	distanceKm := DefaultDistanceKm
	if err := g.Wait(); err == nil {
		distanceKm = geo.Haversine(from, to)
	}

	base := BaseRate(distanceKm, pkg.Weight)
	offers := []Offer{
		{ServiceName: "Standard", Rate: base, Currency: defaultCurrency, EstimatedDaysMin: 3, EstimatedDaysMax: 7, Carrier: defaultCarrier},
		{ServiceName: "Express", Rate: base * 1.5, Currency: defaultCurrency, EstimatedDaysMin: 1, EstimatedDaysMax: 3, Carrier: defaultCarrier},
	}
	for _, p := range d.extra {
		offers = append(offers, p.Tiers(ctx, origin, destination, pkg, base)...)
	}
	return sorted(offers), nil
}

// Flat ignores distance entirely and quotes the fixed fallback offer.
// Kept as a provider for environments with no geocoding at all.
type Flat struct{}

func NewFlat() *Flat { return &Flat{} }

func (f *Flat) Estimate(_ context.Context, origin, destination Address, _ Package) ([]Offer, error) {
	if origin.Empty() || destination.Empty() {
		return nil, ErrInvalidInput
	}
	return []Offer{fallbackOffer()}, nil
}

// sorted orders offers ascending by rate (stable) and guarantees at least one
// offer by substituting the fallback when the list is empty.
func sorted(offers []Offer) []Offer {
	if len(offers) == 0 {
		return []Offer{fallbackOffer()}
	}
	sort.SliceStable(offers, func(i, j int) bool { return offers[i].Rate < offers[j].Rate })
	return offers
}

func fallbackOffer() Offer {
	return Offer{
		ServiceName:      "Standard Shipping",
		Rate:             FallbackRate,
		Currency:         defaultCurrency,
		EstimatedDaysMin: 3,
		EstimatedDaysMax: 7,
		Carrier:          defaultCarrier,
	}
}

// NewByName returns an Estimator by provider name.
// Unknown names fall back to the distance estimator.
func NewByName(name string, g geo.Geocoder) Estimator {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "flat":
		return NewFlat()
	case "distance", "":
		return NewDistance(g)
	default:
		return NewDistance(g)
	}
}
