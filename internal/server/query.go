package server

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"freightquote/internal/freight"
	"freightquote/internal/tax"
)

// Accepted spellings for GET /rates parameters, first match wins.
var (
	originKeys  = []string{"from", "origin", "origin_pincode"}
	destKeys    = []string{"to", "destination", "destination_pincode"}
	weightKeys  = []string{"weight_kg", "weight"}
	lengthKeys  = []string{"length_cm", "length"}
	breadthKeys = []string{"breadth_cm", "breadth", "width_cm", "width"}
	heightKeys  = []string{"height_cm", "height"}
	carrierKeys = []string{"carrier", "carrier_code"}
	serviceKeys = []string{"service", "service_type"}
	gstKeys     = []string{"gst_mode", "gst"}
	insuredKeys = []string{"insured_value", "declared_value"}
	reverseKeys = []string{"reverse_pickup", "reverse"}
	storageKeys = []string{"days_in_transit_storage", "storage_days"}
)

const defaultDimCm = 1.0

// rateQuery builds a single-piece QuoteInput from query parameters. Omitted
// dimensions default to 1 cm so a weight-only lookup is priced on actual
// weight.
func rateQuery(q url.Values) (freight.QuoteInput, error) {
	in := freight.QuoteInput{
		OriginPincode:      firstOf(q, originKeys),
		DestinationPincode: firstOf(q, destKeys),
		GSTMode:            tax.Mode(firstOf(q, gstKeys)),
	}
	weight, err := floatParam(q, weightKeys, 0)
	if err != nil {
		return freight.QuoteInput{}, err
	}
	if weight == 0 {
		return freight.QuoteInput{}, fmt.Errorf("weight_kg is required")
	}
	item := freight.Item{WeightKg: weight}
	for _, dim := range []struct {
		keys []string
		dst  *float64
	}{
		{lengthKeys, &item.LengthCm},
		{breadthKeys, &item.BreadthCm},
		{heightKeys, &item.HeightCm},
	} {
		if *dim.dst, err = floatParam(q, dim.keys, defaultDimCm); err != nil {
			return freight.QuoteInput{}, err
		}
	}
	in.Items = []freight.Item{item}

	if in.InsuredValue, err = floatParam(q, insuredKeys, 0); err != nil {
		return freight.QuoteInput{}, err
	}
	if v := firstOf(q, reverseKeys); v != "" {
		if in.ReversePickup, err = strconv.ParseBool(v); err != nil {
			return freight.QuoteInput{}, fmt.Errorf("%s must be true or false", reverseKeys[0])
		}
	}
	if v := firstOf(q, storageKeys); v != "" {
		if in.DaysInTransitStorage, err = strconv.Atoi(v); err != nil {
			return freight.QuoteInput{}, fmt.Errorf("%s must be a whole number of days", storageKeys[0])
		}
	}
	if svc := firstOf(q, serviceKeys); svc != "" {
		carrier := firstOf(q, carrierKeys)
		if carrier == "" {
			return freight.QuoteInput{}, fmt.Errorf("service requires a carrier")
		}
		in.Services = map[string]freight.ServiceType{carrier: freight.ServiceType(svc)}
	}
	return in, nil
}

// firstOf returns the first non-empty value among the candidate keys.
func firstOf(q url.Values, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func floatParam(q url.Values, keys []string, def float64) (float64, error) {
	v := firstOf(q, keys)
	if v == "" {
		return def, nil
	}
	f, err := parseFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", keys[0])
	}
	return f, nil
}

func parseFloat(s string) (float64, error) {
	var n json.Number = json.Number(s)
	return n.Float64()
}
