// Package quote fans a shipment out to every registered carrier strategy and
// composes GST on each answer.
package quote

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"freightquote/internal/freight"
	"freightquote/internal/pincode"
	"freightquote/internal/rate"
	"freightquote/internal/tax"
	"freightquote/internal/weight"
)

var (
	ErrUnknownCarrier = errors.New("unknown carrier")
	ErrNoCarriers     = errors.New("no carriers registered")
)

// Engine is safe for concurrent use. It holds no per-call state.
type Engine struct {
	lookup     pincode.Lookup
	strategies []rate.Strategy
	log        logrus.FieldLogger
}

type Option func(*Engine)

// WithLogger sets the logger used for isolated carrier failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine registers strategies in the order results are returned.
func NewEngine(lookup pincode.Lookup, strategies []rate.Strategy, opts ...Option) (*Engine, error) {
	if lookup == nil {
		return nil, errors.New("pincode lookup is required")
	}
	if len(strategies) == 0 {
		return nil, ErrNoCarriers
	}
	seen := map[string]bool{}
	for _, s := range strategies {
		key := pincode.CarrierKey(s.Carrier())
		if seen[key] {
			return nil, fmt.Errorf("carrier %s registered twice", s.Carrier())
		}
		seen[key] = true
	}
	e := &Engine{
		lookup:     lookup,
		strategies: append([]rate.Strategy(nil), strategies...),
		log:        logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Carrier describes a registered partner.
type Carrier struct {
	Name     string                `json:"name"`
	Services []freight.ServiceType `json:"services"`
	TaxBase  tax.Base              `json:"tax_base"`
}

func (e *Engine) Carriers() []Carrier {
	out := make([]Carrier, 0, len(e.strategies))
	for _, s := range e.strategies {
		out = append(out, Carrier{Name: s.Carrier(), Services: s.Services(), TaxBase: s.TaxBase()})
	}
	return out
}

// GetAllPartnerQuotes returns one result per registered carrier, in
// registration order. The error is non-nil only for invalid input; carrier
// failures become not-deliverable results.
func (e *Engine) GetAllPartnerQuotes(in freight.QuoteInput) ([]freight.QuoteResult, error) {
	in, err := in.Validate()
	if err != nil {
		return nil, err
	}
	from, fromOK := e.lookup.Lookup(in.OriginPincode)
	to, toOK := e.lookup.Lookup(in.DestinationPincode)

	results := make([]freight.QuoteResult, 0, len(e.strategies))
	for _, s := range e.strategies {
		results = append(results, e.quote(s, in, endpoint{from, fromOK}, endpoint{to, toOK}))
	}
	return results, nil
}

// Quote prices the shipment for a single carrier.
func (e *Engine) Quote(carrier string, in freight.QuoteInput) (freight.QuoteResult, error) {
	in, err := in.Validate()
	if err != nil {
		return freight.QuoteResult{}, err
	}
	key := pincode.CarrierKey(carrier)
	for _, s := range e.strategies {
		if pincode.CarrierKey(s.Carrier()) != key {
			continue
		}
		from, fromOK := e.lookup.Lookup(in.OriginPincode)
		to, toOK := e.lookup.Lookup(in.DestinationPincode)
		return e.quote(s, in, endpoint{from, fromOK}, endpoint{to, toOK}), nil
	}
	return freight.QuoteResult{}, fmt.Errorf("%w: %s", ErrUnknownCarrier, carrier)
}

type endpoint struct {
	rec   pincode.Record
	found bool
}

func (e *Engine) quote(s rate.Strategy, in freight.QuoteInput, from, to endpoint) (res freight.QuoteResult) {
	carrier := s.Carrier()
	log := e.log.WithFields(logrus.Fields{
		"carrier":     carrier,
		"origin":      in.OriginPincode,
		"destination": in.DestinationPincode,
	})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("carrier strategy panicked")
			res = freight.Undeliverable(carrier, freight.ReasonInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if !from.found || !to.found {
		return freight.Undeliverable(carrier, freight.ReasonPincodeNotFound, missingPincodes(in, from.found, to.found))
	}

	service := in.ServiceFor(carrier)
	divisor, ok := s.Divisor(service)
	if !ok {
		res = freight.Undeliverable(carrier, freight.ReasonServiceUnavailable, fmt.Sprintf("%s does not offer %s service", carrier, service))
		res.Service = service
		return res
	}
	chargeable, err := weight.Chargeable(in.Items, divisor)
	if err != nil {
		log.WithError(err).Error("chargeable weight failed")
		return freight.Undeliverable(carrier, freight.ReasonInternalError, err.Error())
	}

	p, err := s.Quote(in, from.rec, to.rec, chargeable)
	if err != nil {
		log.WithError(err).Error("carrier strategy failed")
		return freight.Undeliverable(carrier, freight.ReasonInternalError, err.Error())
	}
	res = freight.QuoteResult{
		Carrier:          carrier,
		Service:          p.Service,
		Deliverable:      p.Deliverable,
		FromZone:         p.FromZone,
		ToZone:           p.ToZone,
		ActualWeight:     in.ActualWeight(),
		ChargeableWeight: p.ChargeableWeight,
		Surcharges:       map[string]float64{},
		ReasonCode:       p.ReasonCode,
		Reason:           p.Reason,
	}
	if !p.Deliverable {
		log.WithField("reason_code", p.ReasonCode).Debug(p.Reason)
		return res
	}

	for n, v := range p.Surcharges {
		res.Surcharges[n] = v
	}
	res.RatePerKg = p.RatePerKg
	res.BaseFreight = p.BaseFreight
	res.TotalBeforeGST = p.Total()
	applied, err := tax.Apply(res.TotalBeforeGST, s.TaxBase().Amount(p.Charges()), in.GSTMode)
	if err != nil {
		log.WithError(err).Error("gst composition failed")
		return freight.Undeliverable(carrier, freight.ReasonInternalError, err.Error())
	}
	res.GSTRate = applied.Rate
	res.GSTAmount = applied.GST
	res.GST = tax.Split(applied.GST, from.rec.State, to.rec.State)
	res.TotalAfterGST = applied.TotalAfterGST
	return res
}

func missingPincodes(in freight.QuoteInput, fromOK, toOK bool) string {
	var missing []string
	if !fromOK {
		missing = append(missing, "origin pincode "+in.OriginPincode)
	}
	if !toOK {
		missing = append(missing, "destination pincode "+in.DestinationPincode)
	}
	return strings.Join(missing, " and ") + " not found in pincode master"
}
