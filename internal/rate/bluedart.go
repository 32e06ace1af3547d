package rate

import (
	"freightquote/internal/freight"
	"freightquote/internal/pincode"
	"freightquote/internal/tax"
)

// BlueDart is the air express partner: half-kilo steps, a heavy fuel
// surcharge and an ODA fee that scales with weight. Reverse pickup is not
// offered.
type BlueDart struct {
	cardStrategy
}

func (b *BlueDart) Quote(in freight.QuoteInput, from, to pincode.Record, chargeable float64) (Partial, error) {
	p, dest, err := quoteBase(b.card, in, from, to, chargeable)
	if err != nil || !p.Deliverable {
		return p, err
	}
	if in.ReversePickup {
		return reject(p, freight.ReasonServiceUnavailable, "reverse pickup is not offered by "+b.card.Carrier), nil
	}
	addCharge(p.Surcharges, tax.ChargeFuel, fuelSurcharge(b.card, p.BaseFreight))
	addCharge(p.Surcharges, tax.ChargeODA, odaSurcharge(b.card, dest, p.ChargeableWeight))
	addCharge(p.Surcharges, tax.ChargeInsurance, insuranceFee(b.card, in.InsuredValue))
	return p, nil
}
