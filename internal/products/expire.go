package products

import "time"

// TwgoExpiration picks the expiration time for a TWGO record. The station
// keeps sending these for 60 minutes after the last change, so the default
// is receive time plus the configured interval. A NOTAM end of validity is
// better when present (callers withhold PERM times, since those would hide
// the station dropping the report), and failing that the latest geometry
// stop time is used when every geometry item carries one.
func TwgoExpiration(cfg *Config, rcvd time.Time, geometry []Geometry, notamExpire time.Time) time.Time {
	if !cfg.BypassSmartExpiration {
		if !notamExpire.IsZero() {
			return notamExpire
		}
		if stop, ok := latestStopTime(geometry); ok {
			return stop
		}
	}
	return rcvd.Add(cfg.TWGODefaultExpire)
}

// latestStopTime returns the latest geometry stop time, valid only when
// every item has one.
func latestStopTime(geometry []Geometry) (time.Time, bool) {
	if len(geometry) == 0 {
		return time.Time{}, false
	}

	var latest time.Time
	for _, g := range geometry {
		if g.StopTime.IsZero() {
			return time.Time{}, false
		}
		if g.StopTime.After(latest) {
			latest = g.StopTime
		}
	}
	return latest, true
}
