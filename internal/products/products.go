// Package products turns reconstructed FIS-B frames into normalized,
// self-contained records: every record carries its own identity, full UTC
// timestamps, and an expiration time. Product families live in
// subpackages that register themselves with the dispatch registry.
package products

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// Record types that are not named after their product.
const (
	TypeMETAR            = "METAR"
	TypeTAF              = "TAF"
	TypePIREP            = "PIREP"
	TypeSUA              = "SUA"
	TypeNOTAM            = "NOTAM"
	TypeGAirmet          = "G_AIRMET"
	TypeCRL              = "CRL"
	TypeServiceStatus    = "SERVICE_STATUS"
	TypeFISBUnavailable  = "FIS_B_UNAVAILABLE"
	TypeCancelNOTAM      = "CANCEL_NOTAM"
	TypeCancelCWA        = "CANCEL_CWA"
	TypeCancelGAirmet    = "CANCEL_G_AIRMET"
	TypeRSR              = "RSR"
	TypeImage            = "IMAGE"
)

// Altitudes is the high/low altitude envelope of a geometry item. The
// reference is MSL or AGL; TRA and TMOA merges may mix them.
type Altitudes struct {
	High    float64 `json:"high"`
	HighRef string  `json:"high_ref"`
	Low     float64 `json:"low"`
	LowRef  string  `json:"low_ref"`
}

// Geometry is one normalized overlay item.
type Geometry struct {
	Type      string    `json:"type"` // POLYGON, POLYLINE, CIRCLE, POINT
	Altitudes Altitudes `json:"altitudes"`

	StartTime time.Time `json:"start_time,omitzero"`
	StopTime  time.Time `json:"stop_time,omitzero"`

	// Hour-only applicability (date/time format 3) as "hhmm" strings.
	StartHour string `json:"start_hour,omitempty"`
	StopHour  string `json:"stop_hour,omitempty"`

	Cancelled  bool     `json:"cancelled,omitempty"`
	Element    string   `json:"element,omitempty"`
	AirportID  string   `json:"airport_id,omitempty"`
	Conditions []string `json:"conditions,omitempty"`

	// Coordinates for polygons and polylines as [lon, lat] pairs; points
	// and circles use Center.
	Coordinates [][]float64 `json:"coordinates,omitempty"`
	Center      []float64   `json:"center,omitempty"`
	RadiusNM    float64     `json:"radius_nm,omitempty"`
}

// Record is a normalized product. Type and UniqueName identify the record;
// most other fields are per-family. The zero value of a time field means
// the family does not carry it.
type Record struct {
	Type       string `json:"type"`
	UniqueName string `json:"unique_name"`
	Subtype    string `json:"subtype,omitempty"`

	Station  string `json:"station,omitempty"`
	Location string `json:"location,omitempty"`
	Contents string `json:"contents,omitempty"`

	ObservationTime      time.Time `json:"observation_time,omitzero"`
	ValidTime            time.Time `json:"valid_time,omitzero"`
	IssuedTime           time.Time `json:"issued_time,omitzero"`
	ModelRunTime         time.Time `json:"model_run_time,omitzero"`
	ValidPeriodBeginTime time.Time `json:"valid_period_begin_time,omitzero"`
	ValidPeriodEndTime   time.Time `json:"valid_period_end_time,omitzero"`
	ForUseFromTime       time.Time `json:"for_use_from_time,omitzero"`
	ForUseToTime         time.Time `json:"for_use_to_time,omitzero"`
	ReportTime           time.Time `json:"report_time,omitzero"`
	StartOfActivityTime  time.Time `json:"start_of_activity_time,omitzero"`
	EndOfValidityTime    time.Time `json:"end_of_validity_time,omitzero"`
	StartTime            time.Time `json:"start_time,omitzero"`
	EndTime              time.Time `json:"end_time,omitzero"`

	// PIREP.
	ReportType string            `json:"report_type,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`

	// FIS-B unavailable.
	Product string   `json:"product,omitempty"`
	Centers []string `json:"centers,omitempty"`

	// NOTAM.
	Accountable string `json:"accountable,omitempty"`
	Affected    string `json:"affected,omitempty"`
	Keyword     string `json:"keyword,omitempty"`
	Number      string `json:"number,omitempty"`

	// SUA.
	AirspaceName   string `json:"airspace_name,omitempty"`
	ScheduleID     string `json:"schedule_id,omitempty"`
	AirspaceID     string `json:"airspace_id,omitempty"`
	Status         string `json:"status,omitempty"`
	AirspaceType   string `json:"airspace_type,omitempty"`
	LowAltitude    int    `json:"low_altitude,omitempty"`
	HighAltitude   int    `json:"high_altitude,omitempty"`
	SeparationRule string `json:"separation_rule,omitempty"`
	ShapeDefined   string `json:"shape_defined,omitempty"`
	NFDCID         string `json:"nfdc_id,omitempty"`
	NFDCName       string `json:"nfdc_name,omitempty"`
	DAFIFID        string `json:"dafif_id,omitempty"`
	DAFIFName      string `json:"dafif_name,omitempty"`

	Geometry []Geometry `json:"geometry,omitempty"`

	// GeoJSON replaces Geometry once the harvester converts it for storage.
	GeoJSON *geojson.FeatureCollection `json:"geojson,omitempty"`

	// Cancel holds the unique name of a cancelled report. The harvester
	// stores a tombstone record carrying it in place of the original.
	Cancel string `json:"cancel,omitempty"`

	// Imagery tiles.
	AltBlockNumber *int      `json:"alt_bn,omitempty"`
	ScaleFactor    *int      `json:"scale_factor,omitempty"`
	Bins           []byte    `json:"bins,omitempty"`
	BBox           []float64 `json:"bbox,omitempty"`

	// CRL.
	ProductID   int      `json:"product_id,omitempty"`
	RangeNM     int      `json:"range_nm,omitempty"`
	HasOverflow bool     `json:"has_overflow,omitempty"`
	Reports     []string `json:"reports,omitempty"`

	// Service status.
	Traffic []string `json:"traffic,omitempty"`

	// RSR.
	ReceptionPercent int `json:"reception_percent,omitempty"`

	// NoMsgDigest marks record types the deduplicator must pass through.
	NoMsgDigest bool `json:"no_msg_digest,omitempty"`

	InsertTime     time.Time `json:"insert_time,omitzero"`
	ExpirationTime time.Time `json:"expiration_time"`
}

// Key is the store document key, shaped <TYPE>-<unique_name>.
func (r *Record) Key() string {
	return r.Type + "-" + r.UniqueName
}
