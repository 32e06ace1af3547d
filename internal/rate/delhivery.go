package rate

import (
	"freightquote/internal/freight"
	"freightquote/internal/pincode"
	"freightquote/internal/tax"
)

// Delhivery offers LTL, CFT and MPS sub-services. MPS is restricted to
// destinations Delhivery itself does not flag as ODA; quoteBase enforces
// that through the service's NonODAOnly setting.
type Delhivery struct {
	cardStrategy
}

func (d *Delhivery) Quote(in freight.QuoteInput, from, to pincode.Record, chargeable float64) (Partial, error) {
	p, dest, err := quoteBase(d.card, in, from, to, chargeable)
	if err != nil || !p.Deliverable {
		return p, err
	}
	addCharge(p.Surcharges, tax.ChargeDocket, docketFee(d.card))
	addCharge(p.Surcharges, tax.ChargeFuel, fuelSurcharge(d.card, p.BaseFreight))
	addCharge(p.Surcharges, tax.ChargeODA, odaSurcharge(d.card, dest, p.ChargeableWeight))
	addCharge(p.Surcharges, tax.ChargeReversePickup, reversePickupFee(d.card, in.ReversePickup))
	addCharge(p.Surcharges, tax.ChargeInsurance, insuranceFee(d.card, in.InsuredValue))
	addCharge(p.Surcharges, tax.ChargeDemurrage, demurrageFee(d.card, p.ChargeableWeight, in.DaysInTransitStorage))
	return p, nil
}
