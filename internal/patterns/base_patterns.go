// Package patterns provides shared regex patterns and helper functions for
// FAA text product parsing. This file contains grok-style base patterns for
// use with the Compiler.

package patterns

// BasePatterns defines reusable regex components for grok-style pattern
// composition. These are referenced in format patterns using {PATTERN_NAME}
// syntax.
var BasePatterns = map[string]string{
	// Reporting locations.
	"ICAO4": `[0-9A-Z]{4}`, // four character station (METAR/TAF)
	"LOC3":  `[0-9A-Z]{3}`, // three character station (winds aloft)

	// FAA time strings.
	"DDHHMM":    `[0-3]\d[0-2]\d[0-5]\d`, // day-of-month, hour, minute
	"DDHHMMANY": `\d{6}`,                 // ddhhmm with loose digits
	"DDHH":      `\d{4}`,                 // day-of-month plus hour
	"NOTAMTIME": `\d\d[01]\d[0-3]\d[0-2]\d[0-5]\d`, // yymmddhhmm

	// Free-form tokens.
	"WORD": `[^ ]+`,
	"REST": `.+`,

	// Report numbering.
	"TFRNUM": `[0-9]/[0-9]{4}`, // NOTAM-TFR number, e.g. 4/2149
}
