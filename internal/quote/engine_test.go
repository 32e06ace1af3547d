package quote

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightquote/internal/freight"
	"freightquote/internal/pincode"
	"freightquote/internal/rate"
	"freightquote/internal/ratecard"
	"freightquote/internal/tax"
)

func master(t *testing.T) *pincode.Master {
	t.Helper()
	records, err := pincode.CSVSource{Path: "../pincode/testdata/pincodes.csv"}.Load(context.Background())
	require.NoError(t, err)
	m, err := pincode.NewMaster(records)
	require.NoError(t, err)
	return m
}

func defaultStrategies(t *testing.T) []rate.Strategy {
	t.Helper()
	cards, err := ratecard.Defaults()
	require.NoError(t, err)
	s, err := rate.NewAll(cards)
	require.NoError(t, err)
	return s
}

func newEngine(t *testing.T, strategies []rate.Strategy) (*Engine, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	e, err := NewEngine(master(t), strategies, WithLogger(logger))
	require.NoError(t, err)
	return e, hook
}

func shipment(from, to string, kg float64) freight.QuoteInput {
	return freight.QuoteInput{
		OriginPincode:      from,
		DestinationPincode: to,
		Items:              []freight.Item{{WeightKg: kg, LengthCm: 1, BreadthCm: 1, HeightCm: 1}},
	}
}

func TestGetAllPartnerQuotes_WorkedExample(t *testing.T) {
	e, _ := newEngine(t, defaultStrategies(t))

	results, err := e.GetAllPartnerQuotes(shipment("560001", "631502", 73))
	require.NoError(t, err)
	require.Len(t, results, 4)
	names := []string{}
	for _, r := range results {
		names = append(names, r.Carrier)
	}
	assert.Equal(t, []string{"Safexpress", "Delhivery", "Gati", "BlueDart"}, names)

	sx := results[0]
	require.True(t, sx.Deliverable, sx.Reason)
	assert.Equal(t, 73.0, sx.ActualWeight)
	assert.Equal(t, 73.0, sx.ChargeableWeight)
	assert.Equal(t, 791.32, sx.BaseFreight)
	assert.Equal(t, 600.0, sx.Surcharge(tax.ChargeODA))
	assert.Equal(t, 1391.32, sx.TotalBeforeGST)
	assert.Equal(t, 0.18, sx.GSTRate)
	assert.Equal(t, 142.44, sx.GSTAmount, "ODA is not in Safexpress's taxable base")
	assert.Equal(t, 1533.76, sx.TotalAfterGST)
	assert.Equal(t, tax.Breakdown{IGST: 142.44}, sx.GST)
}

func TestGetAllPartnerQuotes_IntrastateSplit(t *testing.T) {
	e, _ := newEngine(t, defaultStrategies(t))

	results, err := e.GetAllPartnerQuotes(shipment("560001", "560100", 73))
	require.NoError(t, err)
	sx := results[0]
	require.True(t, sx.Deliverable)
	assert.Equal(t, 540.2, sx.BaseFreight)
	assert.Equal(t, 97.24, sx.GSTAmount)
	assert.Equal(t, tax.Breakdown{CGST: 48.62, SGST: 48.62}, sx.GST)
}

func TestGetAllPartnerQuotes_TaxBaseInvariant(t *testing.T) {
	e, _ := newEngine(t, defaultStrategies(t))
	in := shipment("560001", "635109", 100)
	in.GSTMode = tax.Mode12

	results, err := e.GetAllPartnerQuotes(in)
	require.NoError(t, err)
	for _, r := range results {
		if !r.Deliverable {
			continue
		}
		charges := map[string]float64{tax.ChargeFreight: r.BaseFreight}
		sum := r.BaseFreight
		for n, v := range r.Surcharges {
			charges[n] = v
			sum += v
		}
		base := strategyFor(t, e, r.Carrier).TaxBase()
		assert.Equal(t, 0.12, r.GSTRate, r.Carrier)
		assert.Equal(t, 100.0, r.ActualWeight, r.Carrier)
		assert.Equal(t, tax.Round2(0.12*base.Amount(charges)), r.GSTAmount, r.Carrier)
		assert.Equal(t, tax.Round2(sum), r.TotalBeforeGST, r.Carrier)
		assert.Equal(t, tax.Round2(r.TotalBeforeGST+r.GSTAmount), r.TotalAfterGST, r.Carrier)
		assert.GreaterOrEqual(t, r.TotalAfterGST, r.TotalBeforeGST, r.Carrier)
	}

	dl := results[1]
	require.True(t, dl.Deliverable)
	assert.Equal(t, 1563.0, dl.TotalBeforeGST)
	assert.Equal(t, 85.56, dl.GSTAmount, "docket and ODA pass through untaxed")
	assert.Equal(t, 1648.56, dl.TotalAfterGST)
}

func strategyFor(t *testing.T, e *Engine, carrier string) rate.Strategy {
	t.Helper()
	for _, s := range e.strategies {
		if s.Carrier() == carrier {
			return s
		}
	}
	t.Fatalf("carrier %s not registered", carrier)
	return nil
}

func TestGetAllPartnerQuotes_MissingPincode(t *testing.T) {
	e, _ := newEngine(t, defaultStrategies(t))

	results, err := e.GetAllPartnerQuotes(shipment("560001", "999999", 10))
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.False(t, r.Deliverable)
		assert.Equal(t, freight.ReasonPincodeNotFound, r.ReasonCode)
		assert.Contains(t, r.Reason, "destination pincode 999999")
		assert.NotContains(t, r.Reason, "origin")
		assert.Zero(t, r.TotalAfterGST)
	}

	results, err = e.GetAllPartnerQuotes(shipment("999998", "999999", 10))
	require.NoError(t, err)
	assert.Contains(t, results[0].Reason, "origin pincode 999998")
	assert.Contains(t, results[0].Reason, "destination pincode 999999")
}

func TestGetAllPartnerQuotes_NotServiceableIsDistinct(t *testing.T) {
	e, _ := newEngine(t, defaultStrategies(t))

	results, err := e.GetAllPartnerQuotes(shipment("560001", "682001", 10))
	require.NoError(t, err)
	for _, r := range results {
		assert.False(t, r.Deliverable)
		assert.Equal(t, freight.ReasonNotServiceable, r.ReasonCode)
	}
}

func TestGetAllPartnerQuotes_InvalidInput(t *testing.T) {
	e, _ := newEngine(t, defaultStrategies(t))

	cases := map[string]freight.QuoteInput{
		"short pincode": shipment("56000", "600001", 10),
		"no items":      {OriginPincode: "560001", DestinationPincode: "600001"},
		"zero weight":   shipment("560001", "600001", 0),
		"bad gst mode":  func() freight.QuoteInput { in := shipment("560001", "600001", 10); in.GSTMode = "7pct"; return in }(),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			results, err := e.GetAllPartnerQuotes(in)
			assert.True(t, errors.Is(err, freight.ErrInvalidInput), "got %v", err)
			assert.Nil(t, results)
		})
	}
}

type fakeStrategy struct {
	name  string
	quote func() (rate.Partial, error)
}

func (f fakeStrategy) Carrier() string { return f.name }
func (f fakeStrategy) Services() []freight.ServiceType {
	return []freight.ServiceType{freight.ServiceStandard}
}
func (f fakeStrategy) Divisor(freight.ServiceType) (float64, bool) { return 5000, true }
func (f fakeStrategy) TaxBase() tax.Base                          { return tax.BaseFreightAndFuel }
func (f fakeStrategy) Quote(freight.QuoteInput, pincode.Record, pincode.Record, float64) (rate.Partial, error) {
	return f.quote()
}

func TestGetAllPartnerQuotes_IsolatesCarrierFailures(t *testing.T) {
	panicky := fakeStrategy{name: "Panicky", quote: func() (rate.Partial, error) { panic("boom") }}
	broken := fakeStrategy{name: "Broken", quote: func() (rate.Partial, error) { return rate.Partial{}, errors.New("rate table offline") }}
	strategies := append([]rate.Strategy{panicky, broken}, defaultStrategies(t)[0])
	e, hook := newEngine(t, strategies)

	results, err := e.GetAllPartnerQuotes(shipment("560001", "600001", 73))
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "Panicky", results[0].Carrier)
	assert.False(t, results[0].Deliverable)
	assert.Equal(t, freight.ReasonInternalError, results[0].ReasonCode)
	assert.Contains(t, results[0].Reason, "boom")

	assert.Equal(t, freight.ReasonInternalError, results[1].ReasonCode)
	assert.Contains(t, results[1].Reason, "rate table offline")

	assert.True(t, results[2].Deliverable)
	assert.Equal(t, 791.32, results[2].TotalBeforeGST)

	var logged []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			logged = append(logged, entry.Data["carrier"].(string))
		}
	}
	assert.Equal(t, []string{"Panicky", "Broken"}, logged)
}

func TestGetAllPartnerQuotes_Idempotent(t *testing.T) {
	e, _ := newEngine(t, defaultStrategies(t))
	in := shipment("560001", "577201", 42.3)
	in.InsuredValue = 25000
	in.DaysInTransitStorage = 9

	first, err := e.GetAllPartnerQuotes(in)
	require.NoError(t, err)

	var wg sync.WaitGroup
	got := make([][]freight.QuoteResult, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = e.GetAllPartnerQuotes(in)
		}(i)
	}
	wg.Wait()
	for _, g := range got {
		assert.Equal(t, first, g)
	}
}

func TestQuote_SingleCarrier(t *testing.T) {
	e, _ := newEngine(t, defaultStrategies(t))

	r, err := e.Quote("delhivery", shipment("560001", "600001", 100))
	require.NoError(t, err)
	assert.Equal(t, "Delhivery", r.Carrier)
	assert.Equal(t, freight.ServiceLTL, r.Service)
	assert.True(t, r.Deliverable)

	in := shipment("560001", "600001", 10)
	in.Services = map[string]freight.ServiceType{"Safexpress": freight.ServiceMPS}
	r, err = e.Quote("Safexpress", in)
	require.NoError(t, err)
	assert.False(t, r.Deliverable)
	assert.Equal(t, freight.ReasonServiceUnavailable, r.ReasonCode)

	_, err = e.Quote("pigeon", shipment("560001", "600001", 10))
	assert.True(t, errors.Is(err, ErrUnknownCarrier))
}

func TestCarriers(t *testing.T) {
	e, _ := newEngine(t, defaultStrategies(t))
	carriers := e.Carriers()
	require.Len(t, carriers, 4)
	assert.Equal(t, "Delhivery", carriers[1].Name)
	assert.Equal(t, []freight.ServiceType{"cft", "ltl", "mps"}, carriers[1].Services)
	assert.Equal(t, tax.BaseFreightFuelDocket, carriers[2].TaxBase)
}

func TestNewEngine_Rejects(t *testing.T) {
	s := defaultStrategies(t)
	_, err := NewEngine(nil, s)
	assert.Error(t, err)
	_, err = NewEngine(master(t), nil)
	assert.True(t, errors.Is(err, ErrNoCarriers))
	_, err = NewEngine(master(t), []rate.Strategy{s[0], s[0]})
	assert.Error(t, err)
}
