package rate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"freightquote/internal/freight"
	"freightquote/internal/pincode"
	"freightquote/internal/ratecard"
	"freightquote/internal/tax"
)

// Strategy prices a shipment for one courier partner. Implementations are
// immutable and safe for concurrent use.
type Strategy interface {
	// Carrier returns the partner name used in results and pincode columns.
	Carrier() string
	// Services lists the sub-services the carrier offers.
	Services() []freight.ServiceType
	// Divisor is the volumetric divisor for service; ok is false when the
	// carrier does not offer it.
	Divisor(service freight.ServiceType) (divisor float64, ok bool)
	// TaxBase names the charges GST is computed on.
	TaxBase() tax.Base
	// Quote prices the shipment. Not-deliverable outcomes are returned as a
	// Partial with Deliverable=false; errors are reserved for bad input.
	Quote(in freight.QuoteInput, from, to pincode.Record, chargeable float64) (Partial, error)
}

// Partial is a strategy's answer before GST.
type Partial struct {
	Service          freight.ServiceType
	Deliverable      bool
	ReasonCode       string
	Reason           string
	FromZone         string
	ToZone           string
	ChargeableWeight float64
	RatePerKg        float64
	BaseFreight      float64
	Surcharges       map[string]float64
}

// Total is base freight plus every surcharge.
func (p Partial) Total() float64 {
	names := make([]string, 0, len(p.Surcharges))
	for n := range p.Surcharges {
		names = append(names, n)
	}
	sort.Strings(names)
	total := p.BaseFreight
	for _, n := range names {
		total += p.Surcharges[n]
	}
	return tax.Round2(total)
}

// Charges returns base freight and surcharges keyed by charge name, the
// shape tax.Base.Amount expects.
func (p Partial) Charges() map[string]float64 {
	out := make(map[string]float64, len(p.Surcharges)+1)
	for n, v := range p.Surcharges {
		out[n] = v
	}
	out[tax.ChargeFreight] = p.BaseFreight
	return out
}

var ErrUnsupportedCarrier = errors.New("unsupported carrier")

// New returns the strategy for card's carrier.
func New(card ratecard.Card) (Strategy, error) {
	card.Normalize()
	if err := card.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(card.Carrier)) {
	case "safexpress":
		return &Safexpress{cardStrategy{card}}, nil
	case "delhivery":
		return &Delhivery{cardStrategy{card}}, nil
	case "gati":
		return &Gati{cardStrategy{card}}, nil
	case "bluedart":
		return &BlueDart{cardStrategy{card}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCarrier, card.Carrier)
	}
}

// NewAll builds one strategy per card, keeping card order.
func NewAll(cards []ratecard.Card) ([]Strategy, error) {
	out := make([]Strategy, 0, len(cards))
	for _, c := range cards {
		s, err := New(c)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// cardStrategy carries the parts every variant answers straight from its card.
type cardStrategy struct {
	card ratecard.Card
}

func (s cardStrategy) Carrier() string { return s.card.Carrier }

func (s cardStrategy) TaxBase() tax.Base { return s.card.TaxBase }

func (s cardStrategy) Services() []freight.ServiceType {
	if len(s.card.Services) == 0 {
		return []freight.ServiceType{freight.ServiceStandard}
	}
	return s.card.ServiceNames()
}

func (s cardStrategy) Divisor(service freight.ServiceType) (float64, bool) {
	svc, ok := s.card.Service(service)
	if !ok {
		return 0, false
	}
	return svc.Divisor, true
}
