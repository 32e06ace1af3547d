package rate

import (
	"freightquote/internal/freight"
	"freightquote/internal/pincode"
	"freightquote/internal/tax"
)

// Safexpress prices surface LTL on a seven-zone matrix. It carries no fuel
// or docket charge but bills storage and heavy-piece handling.
type Safexpress struct {
	cardStrategy
}

func (s *Safexpress) Quote(in freight.QuoteInput, from, to pincode.Record, chargeable float64) (Partial, error) {
	p, dest, err := quoteBase(s.card, in, from, to, chargeable)
	if err != nil || !p.Deliverable {
		return p, err
	}
	addCharge(p.Surcharges, tax.ChargeFuel, fuelSurcharge(s.card, p.BaseFreight))
	addCharge(p.Surcharges, tax.ChargeODA, odaSurcharge(s.card, dest, p.ChargeableWeight))
	addCharge(p.Surcharges, tax.ChargeReversePickup, reversePickupFee(s.card, in.ReversePickup))
	addCharge(p.Surcharges, tax.ChargeInsurance, insuranceFee(s.card, in.InsuredValue))
	addCharge(p.Surcharges, tax.ChargeDemurrage, demurrageFee(s.card, p.ChargeableWeight, in.DaysInTransitStorage))
	addCharge(p.Surcharges, tax.ChargeHandling, handlingFee(s.card, in.Items))
	return p, nil
}
