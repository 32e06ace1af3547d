package pincode

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Source produces the full set of master records. Implementations block on
// I/O and are only called from Loader.
type Source interface {
	Load(ctx context.Context) ([]Record, error)
}

// CSVSource reads a header-mapped CSV export of the master:
//
//	pincode,city,state,deliverable,<carrier>_zone,<carrier>_oda,...
//
// Column order is free; unknown columns are ignored.
type CSVSource struct {
	Path string
}

func (s CSVSource) Load(ctx context.Context) ([]Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open pincode csv: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV parses the CSV layout described on CSVSource.
func ParseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.ToLower(strings.TrimSpace(headers[i]))
	}
	if !contains(headers, "pincode") {
		return nil, errors.New("pincode csv: missing pincode column")
	}

	var records []Record
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", line, err)
		}

		rec := Record{Carriers: map[string]Coverage{}}
		odaCells := map[string]string{}
		for i, value := range row {
			if i >= len(headers) {
				break
			}
			value = strings.TrimSpace(value)
			switch h := headers[i]; {
			case h == "pincode":
				rec.Pincode = value
			case h == "city":
				rec.City = value
			case h == "state":
				rec.State = value
			case h == "deliverable":
				rec.Deliverable = parseBool(value)
			case strings.HasSuffix(h, "_zone"):
				carrier := strings.TrimSuffix(h, "_zone")
				c := rec.Carriers[carrier]
				c.Zone = value
				rec.Carriers[carrier] = c
			case strings.HasSuffix(h, "_oda"):
				odaCells[strings.TrimSuffix(h, "_oda")] = value
			}
		}
		for carrier, cell := range odaCells {
			oda, err := ParseODA(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d, carrier %s: %w", line, carrier, err)
			}
			c := rec.Carriers[carrier]
			c.ODA = oda
			rec.Carriers[carrier] = c
		}
		// A carrier with neither zone nor ODA flag has no coverage at all.
		for carrier, c := range rec.Carriers {
			if c.Zone == "" && c.ODA == ODAUnknown {
				delete(rec.Carriers, carrier)
			}
		}
		if !Valid(rec.Pincode) {
			return nil, fmt.Errorf("line %d: %w: %q", line, ErrInvalidPincode, rec.Pincode)
		}
		records = append(records, rec)
	}
	return records, nil
}

// PostgresSource reads the master from the pincode tables:
//
//	pincode_master(pincode text primary key, city text, state text, deliverable bool)
//	pincode_carrier_coverage(pincode text, carrier text, zone text, oda bool null)
//
// A NULL oda column is read as ODAUnknown.
type PostgresSource struct {
	Pool *pgxpool.Pool
}

const masterQuery = `
    SELECT m.pincode, m.city, m.state, m.deliverable, c.carrier, c.zone, c.oda
    FROM pincode_master m
    LEFT JOIN pincode_carrier_coverage c ON c.pincode = m.pincode
    ORDER BY m.pincode`

func (s PostgresSource) Load(ctx context.Context) ([]Record, error) {
	if s.Pool == nil {
		return nil, errors.New("pincode: postgres pool is nil")
	}
	rows, err := s.Pool.Query(ctx, masterQuery)
	if err != nil {
		return nil, fmt.Errorf("query pincode master: %w", err)
	}
	defer rows.Close()

	var records []Record
	index := map[string]int{}
	for rows.Next() {
		var (
			code, city, state string
			deliverable       bool
			carrier, zone     *string
			oda               *bool
		)
		if err := rows.Scan(&code, &city, &state, &deliverable, &carrier, &zone, &oda); err != nil {
			return nil, fmt.Errorf("scan pincode row: %w", err)
		}
		i, seen := index[code]
		if !seen {
			records = append(records, Record{
				Pincode:     code,
				City:        city,
				State:       state,
				Deliverable: deliverable,
				Carriers:    map[string]Coverage{},
			})
			i = len(records) - 1
			index[code] = i
		}
		if carrier == nil {
			continue
		}
		c := Coverage{ODA: ODAUnknown}
		if zone != nil {
			c.Zone = *zone
		}
		if oda != nil {
			c.ODA = ODANo
			if *oda {
				c.ODA = ODAYes
			}
		}
		records[i].Carriers[CarrierKey(*carrier)] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pincode rows: %w", err)
	}
	return records, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1":
		return true
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
