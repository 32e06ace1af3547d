package pincode

import (
	"errors"
	"fmt"
	"strings"
)

// ODA is the tri-state out-of-delivery-area flag a carrier keeps for a pincode.
// The zero value is ODAUnknown so a missing column never reads as serviceable.
type ODA int8

const (
	ODAUnknown ODA = iota
	ODANo
	ODAYes
)

func (o ODA) String() string {
	switch o {
	case ODANo:
		return "no"
	case ODAYes:
		return "yes"
	default:
		return "unknown"
	}
}

// MarshalText lets ODA render as "yes"/"no"/"unknown" in JSON.
func (o ODA) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// ParseODA reads the spreadsheet/CSV spellings used in carrier ODA lists.
// An empty cell means the carrier has not classified the pincode.
func ParseODA(s string) (ODA, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ODAUnknown, nil
	case "y", "yes", "true", "1", "oda":
		return ODAYes, nil
	case "n", "no", "false", "0":
		return ODANo, nil
	default:
		return ODAUnknown, fmt.Errorf("unrecognised oda flag %q", s)
	}
}

// Coverage is one carrier's view of a pincode.
type Coverage struct {
	Zone string `json:"zone"`
	ODA  ODA    `json:"oda"`
}

// Serviceable reports whether the carrier has zoned and classified the pincode.
func (c Coverage) Serviceable() bool {
	return strings.TrimSpace(c.Zone) != "" && c.ODA != ODAUnknown
}

// Record is a row of the pincode master.
type Record struct {
	Pincode     string              `json:"pincode"`
	City        string              `json:"city"`
	State       string              `json:"state"`
	Deliverable bool                `json:"deliverable"`
	Carriers    map[string]Coverage `json:"carriers"`
}

// Coverage returns the record's entry for carrier. Carrier names are matched
// case-insensitively.
func (r Record) Coverage(carrier string) (Coverage, bool) {
	c, ok := r.Carriers[CarrierKey(carrier)]
	return c, ok
}

// CarrierKey normalises a carrier name for use as a Carriers map key.
func CarrierKey(carrier string) string {
	return strings.ToLower(strings.TrimSpace(carrier))
}

// Lookup resolves a pincode to its master record. The boolean is false when
// the pincode is absent; absence is not an error.
type Lookup interface {
	Lookup(pincode string) (Record, bool)
}

var (
	ErrInvalidPincode   = errors.New("invalid pincode")
	ErrDuplicatePincode = errors.New("duplicate pincode")
)

// Valid reports whether code is exactly six ASCII digits.
func Valid(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Master is the in-memory, read-only pincode master. It is built once and
// shared by all callers; nothing mutates it after NewMaster returns.
type Master struct {
	records map[string]Record
}

// NewMaster indexes records by pincode. Malformed or repeated pincodes are
// rejected rather than silently overwritten.
func NewMaster(records []Record) (*Master, error) {
	m := &Master{records: make(map[string]Record, len(records))}
	for _, r := range records {
		if !Valid(r.Pincode) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPincode, r.Pincode)
		}
		if _, exists := m.records[r.Pincode]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePincode, r.Pincode)
		}
		carriers := make(map[string]Coverage, len(r.Carriers))
		for name, c := range r.Carriers {
			c.Zone = strings.ToUpper(strings.TrimSpace(c.Zone))
			carriers[CarrierKey(name)] = c
		}
		r.Carriers = carriers
		m.records[r.Pincode] = r
	}
	return m, nil
}

func (m *Master) Lookup(code string) (Record, bool) {
	if m == nil {
		return Record{}, false
	}
	r, ok := m.records[code]
	return r, ok
}

// Len returns the number of pincodes held.
func (m *Master) Len() int {
	if m == nil {
		return 0
	}
	return len(m.records)
}
