// Package sua normalizes product 13 special use airspace reports. The
// product is being phased out in favor of NOTAM-TMOA and is off by
// default; the field layout comes from FAA/SBS SRT-047 rev 01.
package sua

import (
	"fmt"
	"strconv"
	"strings"

	"fisb_decode/internal/fisbtime"
	"fisb_decode/internal/patterns"
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
)

func init() {
	products.Register(&normalizer{})
}

var formats = patterns.NewCompiler([]patterns.Format{
	{
		// The valid time is just when the provider last validated the
		// entry and is often boilerplate; only the schedule id matters.
		Name:    "sua",
		Pattern: `SUA (?P<valid>{DDHHMM}) (?P<schedule_id>{REST})`,
	},
}, nil).MustCompile()

// Pipe-delimited field indexes of an SUA report.
const (
	fieldHeader = iota
	fieldAirspaceID
	fieldStatus
	fieldAirspaceType
	fieldAirspaceName
	fieldStartTime
	fieldEndTime
	fieldLowAltitude
	fieldHighAltitude
	fieldSeparationRule
	fieldShapeDefined
	fieldNFDCID
	fieldNFDCName
	fieldDAFIFID
	fieldDAFIFName
	fieldCount
)

type normalizer struct{}

func (n *normalizer) Name() string           { return "sua" }
func (n *normalizer) Keys() []string         { return []string{"13"} }
func (n *normalizer) Priority() int          { return 10 }
func (n *normalizer) QuickCheck(string) bool { return true }

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	t := f.APDU.TWGO
	if t == nil || len(t.Records) == 0 {
		return nil, fmt.Errorf("sua: frame has no text records")
	}
	r0 := t.Records[0]
	reportID := strconv.Itoa(r0.ReportYear) + "-" + strconv.Itoa(r0.ReportNumber)

	// Cancellations never show up here.
	if r0.ReportStatus == 0 {
		return nil, fmt.Errorf("sua: cancellations not implemented")
	}

	fields := strings.Split(strings.TrimRight(r0.Text, "\n "), "|")
	if len(fields) < fieldCount {
		return nil, fmt.Errorf("sua: %d fields", len(fields))
	}

	m := formats.Parse(fields[fieldHeader])
	if m == nil {
		return nil, fmt.Errorf("sua: header did not match: %q", fields[fieldHeader])
	}

	start, err := fisbtime.FromNOTAMString(f.ReceivedAt.Year(), fields[fieldStartTime])
	if err != nil {
		return nil, fmt.Errorf("sua: start time: %w", err)
	}
	end, err := fisbtime.FromNOTAMString(f.ReceivedAt.Year(), fields[fieldEndTime])
	if err != nil {
		return nil, fmt.Errorf("sua: end time: %w", err)
	}

	low, err := strconv.Atoi(fields[fieldLowAltitude])
	if err != nil {
		return nil, fmt.Errorf("sua: low altitude: %w", err)
	}
	high, err := strconv.Atoi(fields[fieldHighAltitude])
	if err != nil {
		return nil, fmt.Errorf("sua: high altitude: %w", err)
	}

	// A blank separation rule has never been seen; map it to U for
	// unspecified anyway.
	separation := fields[fieldSeparationRule]
	if separation == "" || separation == " " {
		separation = "U"
	}

	rec := &products.Record{
		Type:           products.TypeSUA,
		UniqueName:     reportID,
		AirspaceName:   fields[fieldAirspaceName],
		StartTime:      start,
		EndTime:        end,
		ScheduleID:     m.Captures["schedule_id"],
		AirspaceID:     fields[fieldAirspaceID],
		Status:         fields[fieldStatus],
		AirspaceType:   fields[fieldAirspaceType],
		LowAltitude:    low * 100,
		HighAltitude:   high * 100,
		SeparationRule: separation,
		ShapeDefined:   fields[fieldShapeDefined],
		ExpirationTime: end,
	}

	// The catalog cross references are either all present or all missing.
	if fields[fieldNFDCID] != "" {
		rec.NFDCID = fields[fieldNFDCID]
		rec.NFDCName = fields[fieldNFDCName]
		rec.DAFIFID = fields[fieldDAFIFID]
		rec.DAFIFName = fields[fieldDAFIFName]
	}

	return []*products.Record{rec}, nil
}
