package tax

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Mode selects the GST rate applied to a quote.
type Mode string

const (
	Mode5  Mode = "5pct"
	Mode12 Mode = "12pct"
	Mode18 Mode = "18pct"

	DefaultMode = Mode18
)

var ErrUnknownMode = errors.New("unknown gst mode")

// Rate returns the mode as a fraction.
func (m Mode) Rate() (float64, error) {
	switch m {
	case Mode5:
		return 0.05, nil
	case Mode12:
		return 0.12, nil
	case Mode18:
		return 0.18, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, string(m))
}

// ParseMode accepts "18", "18pct", "18%", "gst18" and similar spellings.
// An empty string yields DefaultMode.
func ParseMode(s string) (Mode, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return DefaultMode, nil
	}
	v = strings.TrimPrefix(v, "gst")
	v = strings.TrimSuffix(v, "pct")
	v = strings.TrimSuffix(v, "%")
	switch v {
	case "5":
		return Mode5, nil
	case "12":
		return Mode12, nil
	case "18":
		return Mode18, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Applied is the outcome of taxing one quote.
type Applied struct {
	Rate          float64
	GST           float64
	TotalAfterGST float64
}

// Apply computes GST on taxableBase and adds it to totalBeforeGST. Charges
// outside the taxable base (docket, ODA on most cards) are already inside
// totalBeforeGST and pass through untaxed.
func Apply(totalBeforeGST, taxableBase float64, mode Mode) (Applied, error) {
	rate, err := mode.Rate()
	if err != nil {
		return Applied{}, err
	}
	if taxableBase < 0 {
		return Applied{}, fmt.Errorf("negative taxable base %.2f", taxableBase)
	}
	gst := Round2(rate * taxableBase)
	return Applied{Rate: rate, GST: gst, TotalAfterGST: Round2(totalBeforeGST + gst)}, nil
}

// Base names the charges that form a carrier's taxable base.
type Base []string

// Charge names shared by rate cards and quote results.
const (
	ChargeFreight       = "freight"
	ChargeFuel          = "fuel"
	ChargeDocket        = "docket"
	ChargeODA           = "oda"
	ChargeReversePickup = "reverse_pickup"
	ChargeInsurance     = "insurance"
	ChargeDemurrage     = "demurrage"
	ChargeHandling      = "handling"
)

var (
	BaseFreightAndFuel    = Base{ChargeFreight, ChargeFuel}
	BaseFreightFuelDocket = Base{ChargeFreight, ChargeFuel, ChargeDocket}
)

// KnownCharge reports whether name is one of the charge constants.
func KnownCharge(name string) bool {
	switch name {
	case ChargeFreight, ChargeFuel, ChargeDocket, ChargeODA, ChargeReversePickup,
		ChargeInsurance, ChargeDemurrage, ChargeHandling:
		return true
	}
	return false
}

// Amount sums the charges in b. Missing charges count as zero.
func (b Base) Amount(charges map[string]float64) float64 {
	var sum float64
	for _, name := range b {
		sum += charges[name]
	}
	return Round2(sum)
}

// Breakdown splits GST into its central/state or integrated components.
type Breakdown struct {
	CGST float64 `json:"cgst"`
	SGST float64 `json:"sgst"`
	IGST float64 `json:"igst"`
}

// Split assigns gst to CGST+SGST for an intrastate movement and to IGST when
// the states differ or either is unknown.
func Split(gst float64, originState, destState string) Breakdown {
	o := strings.ToLower(strings.TrimSpace(originState))
	d := strings.ToLower(strings.TrimSpace(destState))
	if o == "" || d == "" || o != d {
		return Breakdown{IGST: gst}
	}
	half := Round2(gst / 2)
	return Breakdown{CGST: half, SGST: Round2(gst - half)}
}

// Round2 rounds to paise, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100+math.Copysign(1e-7, v)) / 100
}
