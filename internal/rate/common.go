package rate

import (
	"fmt"
	"math"
	"strings"

	"freightquote/internal/freight"
	"freightquote/internal/pincode"
	"freightquote/internal/ratecard"
	"freightquote/internal/tax"
)

// quoteBase runs the steps every carrier shares: service resolution,
// coverage, billable weight, zone rate and the freight floor. When the
// returned Partial is not deliverable the carrier stops there.
func quoteBase(card ratecard.Card, in freight.QuoteInput, from, to pincode.Record, chargeable float64) (Partial, pincode.Coverage, error) {
	if !(chargeable > 0) || math.IsInf(chargeable, 0) {
		return Partial{}, pincode.Coverage{}, fmt.Errorf("%w: chargeable weight must be positive, got %v", freight.ErrInvalidInput, chargeable)
	}
	p := Partial{ChargeableWeight: chargeable, Surcharges: map[string]float64{}}

	requested := in.ServiceFor(card.Carrier)
	svc, ok := card.Service(requested)
	if !ok {
		p.Service = requested
		return reject(p, freight.ReasonServiceUnavailable, fmt.Sprintf("%s does not offer %s service", card.Carrier, requested)), pincode.Coverage{}, nil
	}
	p.Service = svc.Name

	fromCov, toCov, reason := resolveCoverage(card.Carrier, from, to)
	p.FromZone, p.ToZone = fromCov.Zone, toCov.Zone
	if reason != "" {
		return reject(p, freight.ReasonNotServiceable, reason), toCov, nil
	}
	if svc.NonODAOnly && toCov.ODA == pincode.ODAYes {
		return reject(p, freight.ReasonServiceUnavailable,
			fmt.Sprintf("%s %s is only offered to non-ODA destinations; %s is ODA", card.Carrier, svc.Name, to.Pincode)), toCov, nil
	}

	billable, ok := svc.Weight.Apply(chargeable)
	if !ok {
		return reject(p, freight.ReasonWeightOutOfRange,
			fmt.Sprintf("chargeable weight %.2f kg is above the largest %s slab of %g kg", chargeable, card.Carrier, svc.Weight.MaxSlab())), toCov, nil
	}
	p.ChargeableWeight = billable

	rate, ok := zoneRate(card, fromCov.Zone, toCov.Zone)
	if !ok {
		return reject(p, freight.ReasonNoRateForZonePair,
			fmt.Sprintf("%s has no rate for zone pair %s→%s", card.Carrier, fromCov.Zone, toCov.Zone)), toCov, nil
	}
	rate *= svc.RateMultiplier
	p.RatePerKg = math.Round(rate*1e4) / 1e4
	p.BaseFreight = applyMinimumFloor(tax.Round2(billable*rate), svc.MinFreight)
	p.Deliverable = true
	return p, toCov, nil
}

func reject(p Partial, code, reason string) Partial {
	p.Deliverable = false
	p.ReasonCode = code
	p.Reason = reason
	p.RatePerKg, p.BaseFreight = 0, 0
	p.Surcharges = map[string]float64{}
	return p
}

// resolveCoverage returns the carrier's view of both ends. reason is empty
// when the carrier can serve the lane. A pincode whose ODA status the
// carrier has not classified is treated as unserviceable.
func resolveCoverage(carrier string, from, to pincode.Record) (fromCov, toCov pincode.Coverage, reason string) {
	fromCov, fromOK := from.Coverage(carrier)
	toCov, toOK := to.Coverage(carrier)
	switch {
	case !fromOK || !fromCov.Serviceable():
		return fromCov, toCov, uncovered(carrier, "origin", from.Pincode, fromCov)
	case !to.Deliverable:
		return fromCov, toCov, fmt.Sprintf("destination pincode %s is marked not deliverable", to.Pincode)
	case !toOK || !toCov.Serviceable():
		return fromCov, toCov, uncovered(carrier, "destination", to.Pincode, toCov)
	}
	return fromCov, toCov, ""
}

// uncovered explains why cov is not serviceable.
func uncovered(carrier, end, code string, cov pincode.Coverage) string {
	if strings.TrimSpace(cov.Zone) != "" {
		return fmt.Sprintf("%s has not classified %s pincode %s as ODA or non-ODA", carrier, end, code)
	}
	return fmt.Sprintf("%s does not service %s pincode %s", carrier, end, code)
}

// zoneRate looks up ₹/kg for the lane, falling back per the card's
// missing-zone policy.
func zoneRate(card ratecard.Card, fromZone, toZone string) (float64, bool) {
	if r, ok := card.Rate(fromZone, toZone); ok {
		return r, true
	}
	switch card.MissingZone {
	case ratecard.MissingZoneRowAverage:
		return card.RowAverage(fromZone)
	case ratecard.MissingZoneFlat:
		return card.FallbackRate, card.FallbackRate > 0
	}
	return 0, false
}

// applyMinimumFloor raises freight to the carrier minimum. Surcharges are
// added on top of the floored value, never absorbed by it.
func applyMinimumFloor(freight, floor float64) float64 {
	return math.Max(freight, floor)
}

// fuelSurcharge is a percentage of base freight only.
func fuelSurcharge(card ratecard.Card, baseFreight float64) float64 {
	return tax.Round2(baseFreight * card.FuelPct / 100)
}

func docketFee(card ratecard.Card) float64 {
	return card.DocketFee
}

// odaSurcharge applies when the carrier's own flag for the destination is
// ODA. It is the larger of the flat fee and the per-kg fee.
func odaSurcharge(card ratecard.Card, dest pincode.Coverage, billable float64) float64 {
	if dest.ODA != pincode.ODAYes {
		return 0
	}
	return tax.Round2(math.Max(card.ODAFee, card.ODAPerKg*billable))
}

func reversePickupFee(card ratecard.Card, reverse bool) float64 {
	if !reverse {
		return 0
	}
	return card.ReversePickupFee
}

// insuranceFee is a percentage of declared value with a minimum, charged
// only when a value is declared.
func insuranceFee(card ratecard.Card, insured float64) float64 {
	if insured <= 0 || card.InsurancePct <= 0 {
		return 0
	}
	return tax.Round2(math.Max(insured*card.InsurancePct/100, card.InsuranceMin))
}

// demurrageFee charges per billable kg for each storage day beyond the free
// allowance.
func demurrageFee(card ratecard.Card, billable float64, days int) float64 {
	extra := days - card.FreeStorageDays
	if extra <= 0 || card.DemurragePerKgPerDay <= 0 {
		return 0
	}
	return tax.Round2(float64(extra) * card.DemurragePerKgPerDay * billable)
}

// handlingFee charges per piece heavier than the card's handling threshold.
func handlingFee(card ratecard.Card, items []freight.Item) float64 {
	if card.HandlingFee <= 0 || card.HandlingPieceKg <= 0 {
		return 0
	}
	var heavy int
	for _, it := range items {
		if it.WeightKg > card.HandlingPieceKg {
			heavy++
		}
	}
	return tax.Round2(float64(heavy) * card.HandlingFee)
}

// addCharge records non-zero charges only, so absent keys read as zero.
func addCharge(charges map[string]float64, name string, amount float64) {
	if amount > 0 {
		charges[name] = tax.Round2(amount)
	}
}
