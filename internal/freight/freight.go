// Package freight holds the request and result types shared by the quote
// engine, the carrier strategies and the transport layer.
package freight

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"freightquote/internal/pincode"
	"freightquote/internal/tax"
)

// ErrInvalidInput marks caller bugs: malformed pincodes, non-positive
// weights or dimensions, empty shipments.
var ErrInvalidInput = errors.New("invalid quote input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Item is one physical piece of a shipment.
type Item struct {
	WeightKg  float64 `json:"weight_kg"`
	LengthCm  float64 `json:"length_cm"`
	BreadthCm float64 `json:"breadth_cm"`
	HeightCm  float64 `json:"height_cm"`
}

// Upper bounds for a single piece. Anything larger is a unit mistake, not
// surface freight.
const (
	MaxPieceWeightKg = 10000.0
	MaxDimensionCm   = 2000.0
	MaxInsuredValue  = 1e10
)

// Validate rejects pieces with non-positive, non-finite or oversized weight
// or dimensions.
func (it Item) Validate() error {
	switch {
	case !(it.WeightKg > 0):
		return invalid("weight_kg must be positive, got %v", it.WeightKg)
	case !(it.WeightKg <= MaxPieceWeightKg):
		return invalid("weight_kg must be at most %g, got %v", MaxPieceWeightKg, it.WeightKg)
	case !(it.LengthCm > 0), !(it.BreadthCm > 0), !(it.HeightCm > 0):
		return invalid("dimensions must be positive, got %vx%vx%v cm", it.LengthCm, it.BreadthCm, it.HeightCm)
	case !(it.LengthCm <= MaxDimensionCm), !(it.BreadthCm <= MaxDimensionCm), !(it.HeightCm <= MaxDimensionCm):
		return invalid("dimensions must be at most %g cm, got %vx%vx%v cm", MaxDimensionCm, it.LengthCm, it.BreadthCm, it.HeightCm)
	}
	return nil
}

// ServiceType is a carrier sub-service such as LTL or MPS.
type ServiceType string

const (
	ServiceStandard ServiceType = "standard"
	ServiceLTL      ServiceType = "ltl"
	ServiceCFT      ServiceType = "cft"
	ServiceMPS      ServiceType = "mps"
)

// ParseServiceType normalises a service name. Unknown names are an error.
func ParseServiceType(s string) (ServiceType, error) {
	st := ServiceType(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case ServiceStandard, ServiceLTL, ServiceCFT, ServiceMPS:
		return st, nil
	}
	return "", invalid("unknown service type %q", s)
}

// QuoteInput is the engine's boundary contract.
type QuoteInput struct {
	OriginPincode        string   `json:"origin_pincode"`
	DestinationPincode   string   `json:"destination_pincode"`
	Items                []Item   `json:"items"`
	ReversePickup        bool     `json:"reverse_pickup"`
	InsuredValue         float64  `json:"insured_value"`
	DaysInTransitStorage int      `json:"days_in_transit_storage"`
	GSTMode              tax.Mode `json:"gst_mode"`
	// Services picks a sub-service per carrier; carriers without an entry
	// quote their default service.
	Services map[string]ServiceType `json:"services,omitempty"`
}

// Validate checks the input and fills defaults. It returns the normalised
// copy so the caller's value is never modified.
func (in QuoteInput) Validate() (QuoteInput, error) {
	out := in
	out.OriginPincode = strings.TrimSpace(in.OriginPincode)
	out.DestinationPincode = strings.TrimSpace(in.DestinationPincode)
	if !pincode.Valid(out.OriginPincode) {
		return QuoteInput{}, invalid("origin pincode %q is not 6 digits", in.OriginPincode)
	}
	if !pincode.Valid(out.DestinationPincode) {
		return QuoteInput{}, invalid("destination pincode %q is not 6 digits", in.DestinationPincode)
	}
	if len(in.Items) == 0 {
		return QuoteInput{}, invalid("shipment has no items")
	}
	out.Items = make([]Item, len(in.Items))
	for i, it := range in.Items {
		if err := it.Validate(); err != nil {
			return QuoteInput{}, fmt.Errorf("item %d: %w", i+1, err)
		}
		out.Items[i] = it
	}
	if in.InsuredValue < 0 || math.IsNaN(in.InsuredValue) {
		return QuoteInput{}, invalid("insured_value must not be negative")
	}
	if in.InsuredValue > MaxInsuredValue {
		return QuoteInput{}, invalid("insured_value must be at most %g", MaxInsuredValue)
	}
	if in.DaysInTransitStorage < 0 {
		return QuoteInput{}, invalid("days_in_transit_storage must not be negative")
	}
	mode, err := tax.ParseMode(string(in.GSTMode))
	if err != nil {
		return QuoteInput{}, invalid("%v", err)
	}
	out.GSTMode = mode
	if len(in.Services) > 0 {
		out.Services = make(map[string]ServiceType, len(in.Services))
		for carrier, s := range in.Services {
			st, err := ParseServiceType(string(s))
			if err != nil {
				return QuoteInput{}, fmt.Errorf("carrier %s: %w", carrier, err)
			}
			out.Services[pincode.CarrierKey(carrier)] = st
		}
	}
	return out, nil
}

// ServiceFor returns the requested service for carrier, or "" for the
// carrier's default.
func (in QuoteInput) ServiceFor(carrier string) ServiceType {
	return in.Services[pincode.CarrierKey(carrier)]
}

// ActualWeight is the sum of the pieces' actual weights.
func (in QuoteInput) ActualWeight() float64 {
	var w float64
	for _, it := range in.Items {
		w += it.WeightKg
	}
	return w
}

// Reason codes let callers tell missing reference data apart from routes a
// carrier genuinely does not serve.
const (
	ReasonPincodeNotFound    = "pincode_not_found"
	ReasonNotServiceable     = "not_serviceable"
	ReasonNoRateForZonePair  = "no_rate_for_zone_pair"
	ReasonServiceUnavailable = "service_unavailable"
	ReasonWeightOutOfRange   = "weight_out_of_range"
	ReasonInternalError      = "internal_error"
)

// QuoteResult is one carrier's answer for one QuoteInput.
type QuoteResult struct {
	Carrier          string             `json:"carrier"`
	Service          ServiceType        `json:"service,omitempty"`
	Deliverable      bool               `json:"deliverable"`
	FromZone         string             `json:"from_zone,omitempty"`
	ToZone           string             `json:"to_zone,omitempty"`
	ActualWeight     float64            `json:"actual_weight,omitempty"`
	ChargeableWeight float64            `json:"chargeable_weight"`
	RatePerKg        float64            `json:"rate_per_kg"`
	BaseFreight      float64            `json:"base_freight"`
	Surcharges       map[string]float64 `json:"surcharges"`
	TotalBeforeGST   float64            `json:"total_before_gst"`
	GSTRate          float64            `json:"gst_rate"`
	GSTAmount        float64            `json:"gst_amount"`
	GST              tax.Breakdown      `json:"gst"`
	TotalAfterGST    float64            `json:"total_after_gst"`
	ReasonCode       string             `json:"reason_code,omitempty"`
	Reason           string             `json:"reason,omitempty"`
}

// Surcharge returns the named surcharge, zero when absent.
func (r QuoteResult) Surcharge(name string) float64 {
	return r.Surcharges[name]
}

// Undeliverable builds a not-deliverable result.
func Undeliverable(carrier, code, reason string) QuoteResult {
	return QuoteResult{
		Carrier:    carrier,
		Surcharges: map[string]float64{},
		ReasonCode: code,
		Reason:     reason,
	}
}
