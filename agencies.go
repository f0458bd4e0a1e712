package blindspot

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// NewsAgency is one row of the agency seed table plus owner-level
// aggregates derived over the whole file.
type NewsAgency struct {
	Feed           string
	Owner          string
	Reach          float64
	LeftRight      float64
	OwnerReach     float64
	OwnerAgencies  int
	LeftRightLabel string
}

// LoadAgencies reads the agency seed CSV (semicolon separated:
// url;owner;reach;left_right) and derives per-owner totals and the
// political-lean label for each agency. An empty left_right field means
// the agency has not been measured.
func LoadAgencies(path string) (map[string]NewsAgency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open agencies file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ';'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse agencies file: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("agencies file %s has no data rows", path)
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"url", "owner", "reach", "left_right"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("agencies file is missing column %q", required)
		}
	}

	agencies := make(map[string]NewsAgency, len(records)-1)
	for i, record := range records[1:] {
		reach, err := strconv.ParseFloat(strings.TrimSpace(record[col["reach"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("agencies row %d: bad reach value: %w", i+2, err)
		}

		leftRight := math.NaN()
		if raw := strings.TrimSpace(record[col["left_right"]]); raw != "" {
			leftRight, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("agencies row %d: bad left_right value: %w", i+2, err)
			}
		}

		feed := strings.TrimSpace(record[col["url"]])
		agencies[feed] = NewsAgency{
			Feed:           feed,
			Owner:          strings.TrimSpace(record[col["owner"]]),
			Reach:          reach,
			LeftRight:      leftRight,
			LeftRightLabel: leftRightLabel(leftRight),
		}
	}

	// Owner aggregates: total reach and agency count per owner.
	ownerReach := make(map[string]float64)
	ownerAgencies := make(map[string]int)
	for _, agency := range agencies {
		ownerReach[agency.Owner] += agency.Reach
		ownerAgencies[agency.Owner]++
	}
	for feed, agency := range agencies {
		agency.OwnerReach = ownerReach[agency.Owner]
		agency.OwnerAgencies = ownerAgencies[agency.Owner]
		agencies[feed] = agency
	}

	return agencies, nil
}

// leftRightLabel bands the left_right score into a coverage label.
// Scores run from -1 (left) to +1 (right); NaN means unmeasured.
func leftRightLabel(v float64) string {
	switch {
	case math.IsNaN(v):
		return "unmeasured"
	case v >= 0.4:
		return "right"
	case v >= 0.2:
		return "centre right"
	case v > -0.2:
		return "centre"
	case v > -0.4:
		return "centre left"
	default:
		return "left"
	}
}
