package uplink

import "time"

// RSR measures the reception success rate per station: the percentage of
// expected ground-uplink packets actually received over a sliding window.
type RSR struct {
	windowSecs int
	strideSecs int

	// perSecond counts packets per station per wall second.
	perSecond map[int64]map[string]int

	lastReport int64
}

// NewRSR builds an accumulator with the given window and reporting stride,
// both in seconds.
func NewRSR(windowSecs, strideSecs int) *RSR {
	if windowSecs <= 0 {
		windowSecs = 30
	}
	if strideSecs <= 0 {
		strideSecs = windowSecs
	}
	return &RSR{
		windowSecs: windowSecs,
		strideSecs: strideSecs,
		perSecond:  make(map[int64]map[string]int),
	}
}

// Observe records one received packet.
func (r *RSR) Observe(p *Packet) {
	sec := p.ReceivedAt.Unix()
	m := r.perSecond[sec]
	if m == nil {
		m = make(map[string]int)
		r.perSecond[sec] = m
	}
	m[p.Station]++
}

// Report is the reception success rate for one station over the window.
type Report struct {
	Station string
	Percent int
}

// Tick returns per-station reports when a stride has elapsed, dropping
// counts that fell out of the window. tiers maps station to its expected
// packets/second (see ExpectedPacketsPerSecond); stations without an entry
// assume 1.
func (r *RSR) Tick(now time.Time, tiers map[string]int) []Report {
	sec := now.Unix()
	if r.lastReport != 0 && sec-r.lastReport < int64(r.strideSecs) {
		return nil
	}
	r.lastReport = sec

	oldest := sec - int64(r.windowSecs)
	totals := make(map[string]int)
	for s, stations := range r.perSecond {
		if s < oldest {
			delete(r.perSecond, s)
			continue
		}
		for station, n := range stations {
			totals[station] += n
		}
	}

	var reports []Report
	for station, total := range totals {
		perSec := tiers[station]
		if perSec <= 0 {
			perSec = 1
		}
		expected := perSec * r.windowSecs
		pct := (total*100 + expected/2) / expected
		if pct > 100 {
			pct = 100
		}
		reports = append(reports, Report{Station: station, Percent: pct})
	}
	return reports
}
