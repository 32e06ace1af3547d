package rate

import (
	"freightquote/internal/freight"
	"freightquote/internal/pincode"
	"freightquote/internal/tax"
)

// Gati bills on fixed weight slabs between hub-city zones. Weights above the
// top slab are not quoted.
type Gati struct {
	cardStrategy
}

func (g *Gati) Quote(in freight.QuoteInput, from, to pincode.Record, chargeable float64) (Partial, error) {
	p, dest, err := quoteBase(g.card, in, from, to, chargeable)
	if err != nil || !p.Deliverable {
		return p, err
	}
	addCharge(p.Surcharges, tax.ChargeDocket, docketFee(g.card))
	addCharge(p.Surcharges, tax.ChargeFuel, fuelSurcharge(g.card, p.BaseFreight))
	addCharge(p.Surcharges, tax.ChargeODA, odaSurcharge(g.card, dest, p.ChargeableWeight))
	addCharge(p.Surcharges, tax.ChargeReversePickup, reversePickupFee(g.card, in.ReversePickup))
	addCharge(p.Surcharges, tax.ChargeInsurance, insuranceFee(g.card, in.InsuredValue))
	return p, nil
}
