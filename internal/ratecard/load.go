package ratecard

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"freightquote/internal/freight"
	"freightquote/internal/weight"
)

//go:embed defaults.json
var defaultCards []byte

// Defaults returns the built-in cards for the four partner carriers.
func Defaults() ([]Card, error) {
	return LoadJSON(bytes.NewReader(defaultCards))
}

// LoadJSON reads either a single card object or an array of cards.
func LoadJSON(r io.Reader) ([]Card, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	var cards []Card
	if len(body) > 0 && body[0] == '{' {
		var c Card
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, fmt.Errorf("decode rate card: %w", err)
		}
		cards = []Card{c}
	} else if err := json.Unmarshal(body, &cards); err != nil {
		return nil, fmt.Errorf("decode rate cards: %w", err)
	}
	return finish(cards)
}

// Sheet names of the workbook layout read by LoadXLSX.
const (
	SheetSettings = "settings"
	SheetRates    = "rates"
	SheetServices = "services"
)

// LoadXLSX reads one carrier's card from a workbook:
//
//	settings: key | value rows (carrier, volumetric_divisor, min_freight, ...)
//	rates:    header row of to-zones, then one row per from-zone; blank = no rate
//	services: optional; service | divisor | min_kg | step | rate_multiplier | min_freight | non_oda_only
func LoadXLSX(r io.Reader) (Card, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Card{}, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	var c Card
	settings, err := f.GetRows(SheetSettings)
	if err != nil {
		return Card{}, fmt.Errorf("read %s sheet: %w", SheetSettings, err)
	}
	for i, row := range settings {
		if len(row) < 2 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if err := setSetting(&c, strings.ToLower(strings.TrimSpace(row[0])), strings.TrimSpace(row[1])); err != nil {
			return Card{}, fmt.Errorf("%s row %d: %w", SheetSettings, i+1, err)
		}
	}

	rates, err := f.GetRows(SheetRates)
	if err != nil {
		return Card{}, fmt.Errorf("read %s sheet: %w", SheetRates, err)
	}
	c.Rates, err = parseMatrix(rates)
	if err != nil {
		return Card{}, err
	}

	if idx, _ := f.GetSheetIndex(SheetServices); idx >= 0 {
		rows, err := f.GetRows(SheetServices)
		if err != nil {
			return Card{}, fmt.Errorf("read %s sheet: %w", SheetServices, err)
		}
		c.Services, err = parseServices(rows)
		if err != nil {
			return Card{}, err
		}
	}

	cards, err := finish([]Card{c})
	if err != nil {
		return Card{}, err
	}
	return cards[0], nil
}

// LoadDir reads every *.json and *.xlsx card in dir, in file-name order.
func LoadDir(dir string) ([]Card, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read rate card dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var cards []Card
	seen := map[string]string{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		var loaded []Card
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json":
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			loaded, err = LoadJSON(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		case ".xlsx":
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			c, err := LoadXLSX(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			loaded = []Card{c}
		default:
			continue
		}
		for _, c := range loaded {
			key := strings.ToLower(c.Carrier)
			if prev, dup := seen[key]; dup {
				return nil, fmt.Errorf("%w: carrier %s defined in both %s and %s", ErrInvalidCard, c.Carrier, prev, name)
			}
			seen[key] = name
			cards = append(cards, c)
		}
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("no rate cards found in %s", dir)
	}
	return cards, nil
}

func finish(cards []Card) ([]Card, error) {
	for i := range cards {
		cards[i].Normalize()
		if err := cards[i].Validate(); err != nil {
			return nil, err
		}
	}
	return cards, nil
}

func setSetting(c *Card, key, value string) error {
	num := func() (float64, error) {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, value)
		}
		return v, nil
	}
	var (
		v   float64
		err error
	)
	switch key {
	case "carrier":
		c.Carrier = value
		return nil
	case "missing_zone":
		c.MissingZone = MissingZonePolicy(strings.ToLower(value))
		return nil
	case "tax_base":
		c.TaxBase = splitList(value)
		return nil
	case "default_service":
		st, err := freight.ParseServiceType(value)
		if err != nil {
			return err
		}
		c.DefaultService = st
		return nil
	case "slabs":
		c.Weight.Slabs, err = parseFloats(value)
		return err
	}

	if v, err = num(); err != nil {
		return err
	}
	switch key {
	case "volumetric_divisor":
		c.VolumetricDivisor = v
	case "min_kg":
		c.Weight.MinKg = v
	case "step":
		c.Weight.Step = v
	case "fallback_rate":
		c.FallbackRate = v
	case "min_freight":
		c.MinFreight = v
	case "docket_fee":
		c.DocketFee = v
	case "fuel_pct":
		c.FuelPct = v
	case "oda_fee":
		c.ODAFee = v
	case "oda_per_kg":
		c.ODAPerKg = v
	case "reverse_pickup_fee":
		c.ReversePickupFee = v
	case "insurance_pct":
		c.InsurancePct = v
	case "insurance_min":
		c.InsuranceMin = v
	case "demurrage_per_kg_per_day":
		c.DemurragePerKgPerDay = v
	case "free_storage_days":
		c.FreeStorageDays = int(v)
	case "handling_fee":
		c.HandlingFee = v
	case "handling_piece_kg":
		c.HandlingPieceKg = v
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func parseMatrix(rows [][]string) (map[string]map[string]float64, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s sheet needs a header row and at least one zone row", ErrInvalidCard, SheetRates)
	}
	header := rows[0]
	matrix := map[string]map[string]float64{}
	for i, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		from := strings.TrimSpace(row[0])
		out := map[string]float64{}
		for j := 1; j < len(row) && j < len(header); j++ {
			cell := strings.TrimSpace(row[j])
			to := strings.TrimSpace(header[j])
			if cell == "" || to == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: rate %s→%s %q is not a number", SheetRates, i+2, from, to, cell)
			}
			out[to] = v
		}
		matrix[from] = out
	}
	return matrix, nil
}

func parseServices(rows [][]string) (map[freight.ServiceType]Service, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	services := map[freight.ServiceType]Service{}
	for i, row := range rows[1:] {
		cells := map[string]string{}
		for j, v := range row {
			if j < len(header) {
				cells[header[j]] = strings.TrimSpace(v)
			}
		}
		if cells["service"] == "" {
			continue
		}
		name, err := freight.ParseServiceType(cells["service"])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", SheetServices, i+2, err)
		}
		var s Service
		var rule weight.Rule
		var hasRule bool
		for key, ptr := range map[string]*float64{
			"divisor":         &s.Divisor,
			"rate_multiplier": &s.RateMultiplier,
			"min_freight":     &s.MinFreight,
			"min_kg":          &rule.MinKg,
			"step":            &rule.Step,
		} {
			if cells[key] == "" {
				continue
			}
			v, err := strconv.ParseFloat(cells[key], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %s %q is not a number", SheetServices, i+2, key, cells[key])
			}
			*ptr = v
			if key == "min_kg" || key == "step" {
				hasRule = true
			}
		}
		if hasRule {
			s.Weight = &rule
		}
		s.NonODAOnly = parseYes(cells["non_oda_only"])
		services[name] = s
	}
	return services, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range splitList(s) {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("slab %q is not a number", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1":
		return true
	}
	return false
}
