// Package ratecard holds the per-carrier pricing configuration. Cards are
// loaded once at startup and never mutated afterwards.
package ratecard

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"freightquote/internal/freight"
	"freightquote/internal/tax"
	"freightquote/internal/weight"
)

// MissingZonePolicy decides what a carrier does when its matrix has no rate
// for a zone pair.
type MissingZonePolicy string

const (
	// MissingZoneReject reports the shipment as not deliverable.
	MissingZoneReject MissingZonePolicy = "reject"
	// MissingZoneRowAverage uses the mean of the origin zone's row, or of
	// the whole matrix when the origin has no row.
	MissingZoneRowAverage MissingZonePolicy = "row_average"
	// MissingZoneFlat uses Card.FallbackRate.
	MissingZoneFlat MissingZonePolicy = "flat"
)

var ErrInvalidCard = errors.New("invalid rate card")

// Service overrides card defaults for one carrier sub-service. Zero fields
// inherit from the card.
type Service struct {
	Divisor        float64      `json:"divisor,omitempty"`
	Weight         *weight.Rule `json:"weight,omitempty"`
	RateMultiplier float64      `json:"rate_multiplier,omitempty"`
	MinFreight     float64      `json:"min_freight,omitempty"`
	// NonODAOnly restricts the service to destinations the carrier itself
	// does not flag as ODA.
	NonODAOnly bool `json:"non_oda_only,omitempty"`
}

// Card is one carrier's complete rate configuration.
type Card struct {
	Carrier           string      `json:"carrier"`
	VolumetricDivisor float64     `json:"volumetric_divisor"`
	Weight            weight.Rule `json:"weight"`

	// Rates is the zone matrix: from-zone → to-zone → ₹/kg.
	Rates        map[string]map[string]float64 `json:"rates"`
	MissingZone  MissingZonePolicy             `json:"missing_zone"`
	FallbackRate float64                       `json:"fallback_rate,omitempty"`

	MinFreight           float64 `json:"min_freight"`
	DocketFee            float64 `json:"docket_fee,omitempty"`
	FuelPct              float64 `json:"fuel_pct,omitempty"`
	ODAFee               float64 `json:"oda_fee,omitempty"`
	ODAPerKg             float64 `json:"oda_per_kg,omitempty"`
	ReversePickupFee     float64 `json:"reverse_pickup_fee,omitempty"`
	InsurancePct         float64 `json:"insurance_pct,omitempty"`
	InsuranceMin         float64 `json:"insurance_min,omitempty"`
	DemurragePerKgPerDay float64 `json:"demurrage_per_kg_per_day,omitempty"`
	FreeStorageDays      int     `json:"free_storage_days,omitempty"`
	HandlingFee          float64 `json:"handling_fee,omitempty"`
	HandlingPieceKg      float64 `json:"handling_piece_kg,omitempty"`

	TaxBase tax.Base `json:"tax_base"`

	DefaultService freight.ServiceType             `json:"default_service,omitempty"`
	Services       map[freight.ServiceType]Service `json:"services,omitempty"`
}

// Normalize upper-cases zone codes and fills defaults in place.
func (c *Card) Normalize() {
	c.Carrier = strings.TrimSpace(c.Carrier)
	if c.MissingZone == "" {
		c.MissingZone = MissingZoneReject
	}
	if len(c.TaxBase) == 0 {
		c.TaxBase = append(tax.Base(nil), tax.BaseFreightAndFuel...)
	}
	rates := make(map[string]map[string]float64, len(c.Rates))
	for from, row := range c.Rates {
		r := make(map[string]float64, len(row))
		for to, v := range row {
			r[normZone(to)] = v
		}
		rates[normZone(from)] = r
	}
	c.Rates = rates
}

// Validate checks the card is usable. It does not require every zone pair to
// be present; gaps are handled by MissingZone.
func (c Card) Validate() error {
	if c.Carrier == "" {
		return fmt.Errorf("%w: carrier name is empty", ErrInvalidCard)
	}
	if !(c.VolumetricDivisor > 0) {
		return fmt.Errorf("%w: %s: volumetric_divisor must be positive", ErrInvalidCard, c.Carrier)
	}
	if len(c.Rates) == 0 {
		return fmt.Errorf("%w: %s: empty zone matrix", ErrInvalidCard, c.Carrier)
	}
	for from, row := range c.Rates {
		for to, v := range row {
			if !(v > 0) {
				return fmt.Errorf("%w: %s: rate %s→%s must be positive", ErrInvalidCard, c.Carrier, from, to)
			}
		}
	}
	switch c.MissingZone {
	case MissingZoneReject, MissingZoneRowAverage:
	case MissingZoneFlat:
		if !(c.FallbackRate > 0) {
			return fmt.Errorf("%w: %s: flat missing-zone policy needs fallback_rate", ErrInvalidCard, c.Carrier)
		}
	default:
		return fmt.Errorf("%w: %s: unknown missing_zone policy %q", ErrInvalidCard, c.Carrier, c.MissingZone)
	}
	for _, name := range c.TaxBase {
		if !tax.KnownCharge(name) {
			return fmt.Errorf("%w: %s: unknown tax base charge %q", ErrInvalidCard, c.Carrier, name)
		}
	}
	for _, v := range []float64{c.MinFreight, c.DocketFee, c.FuelPct, c.ODAFee, c.ODAPerKg, c.ReversePickupFee,
		c.InsurancePct, c.InsuranceMin, c.DemurragePerKgPerDay, c.HandlingFee, c.HandlingPieceKg} {
		if v < 0 {
			return fmt.Errorf("%w: %s: negative charge setting", ErrInvalidCard, c.Carrier)
		}
	}
	if len(c.Services) > 0 || c.DefaultService != "" {
		if _, ok := c.Services[c.DefaultService]; !ok {
			return fmt.Errorf("%w: %s: default service %q not configured", ErrInvalidCard, c.Carrier, c.DefaultService)
		}
	}
	for name, s := range c.Services {
		if _, err := freight.ParseServiceType(string(name)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidCard, c.Carrier, err)
		}
		if s.Divisor < 0 || s.RateMultiplier < 0 || s.MinFreight < 0 {
			return fmt.Errorf("%w: %s: negative setting on service %s", ErrInvalidCard, c.Carrier, name)
		}
		// An override replaces the card's weight rule, so it must round up on its own.
		if s.Weight != nil && !(s.Weight.Step > 0) && len(s.Weight.Slabs) == 0 {
			return fmt.Errorf("%w: %s: weight override on service %s needs step or slabs", ErrInvalidCard, c.Carrier, name)
		}
	}
	return nil
}

// Rate looks up the matrix. ok is false when the pair is absent.
func (c Card) Rate(from, to string) (float64, bool) {
	row, ok := c.Rates[normZone(from)]
	if !ok {
		return 0, false
	}
	v, ok := row[normZone(to)]
	return v, ok
}

// RowAverage is the mean rate out of from, falling back to the mean of the
// whole matrix when from has no row. ok is false for an empty matrix.
func (c Card) RowAverage(from string) (float64, bool) {
	if row, ok := c.Rates[normZone(from)]; ok && len(row) > 0 {
		return mean(row), true
	}
	all := map[string]float64{}
	for from, row := range c.Rates {
		for to, v := range row {
			all[from+"→"+to] = v
		}
	}
	if len(all) == 0 {
		return 0, false
	}
	return mean(all), true
}

// Service resolves the effective settings for s. An empty s selects the
// card's default service. ok is false for services the card does not offer.
func (c Card) Service(s freight.ServiceType) (Resolved, bool) {
	res := Resolved{
		Name:           c.DefaultService,
		Divisor:        c.VolumetricDivisor,
		Weight:         c.Weight,
		RateMultiplier: 1,
		MinFreight:     c.MinFreight,
	}
	if len(c.Services) == 0 {
		// Cards without sub-services only offer the standard service.
		res.Name = freight.ServiceStandard
		if s == "" || s == freight.ServiceStandard {
			return res, true
		}
		return Resolved{}, false
	}
	if s == "" {
		s = c.DefaultService
	}
	o, ok := c.Services[s]
	if !ok {
		return Resolved{}, false
	}
	res.Name = s
	if o.Divisor > 0 {
		res.Divisor = o.Divisor
	}
	if o.Weight != nil {
		res.Weight = *o.Weight
	}
	if o.RateMultiplier > 0 {
		res.RateMultiplier = o.RateMultiplier
	}
	if o.MinFreight > 0 {
		res.MinFreight = o.MinFreight
	}
	res.NonODAOnly = o.NonODAOnly
	return res, true
}

// ServiceNames lists the sub-services in a stable order.
func (c Card) ServiceNames() []freight.ServiceType {
	names := make([]freight.ServiceType, 0, len(c.Services))
	for n := range c.Services {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Resolved is a card's settings after applying a service override.
type Resolved struct {
	Name           freight.ServiceType
	Divisor        float64
	Weight         weight.Rule
	RateMultiplier float64
	MinFreight     float64
	NonODAOnly     bool
}

func normZone(z string) string {
	return strings.ToUpper(strings.TrimSpace(z))
}

// mean sums in key order so repeated quotes agree to the last bit.
func mean(row map[string]float64) float64 {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += row[k]
	}
	return sum / float64(len(row))
}
