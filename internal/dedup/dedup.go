// Package dedup drops retransmissions before they reach the harvester.
// FIS-B resends every product on a schedule, and overlapping ground
// stations resend each other's products; the digest cache keeps each
// distinct record to a single emission.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"fisb_decode/internal/products"
)

// Options configures the deduplicator.
type Options struct {
	// ExpireMsgTime is how long an unseen digest stays cached. Every
	// repeat resets the clock, so an entry only expires after its record
	// stops being transmitted.
	ExpireMsgTime time.Duration `toml:"expire_msg_time"`

	// ExpungeInterval is how often the cache sweep runs.
	ExpungeInterval time.Duration `toml:"expunge_interval"`

	// StorePIREPs runs PIREPs through the cache. Recommended outside of
	// test streams, since it avoids re-resolving locations downstream.
	StorePIREPs bool `toml:"store_pireps"`
}

// Deduplicator is a digest cache over normalized records. It makes no
// changes to records; it only decides whether each one goes out.
type Deduplicator struct {
	opts      Options
	seen      map[string]time.Time
	lastSweep time.Time
}

// New returns a Deduplicator with the given options.
func New(opts Options) *Deduplicator {
	return &Deduplicator{
		opts: opts,
		seen: make(map[string]time.Time),
	}
}

// Admit reports whether the record should go out. Bypassed types always
// pass; everything else passes only when its digest is new. The cache
// entry's last-seen time refreshes either way.
func (d *Deduplicator) Admit(r *products.Record, now time.Time) (bool, error) {
	if r.NoMsgDigest || d.bypass(r.Type) {
		return true, nil
	}

	// InsertTime is stamped per reception, so it has to stay out of the
	// digest or a retransmission would never match.
	c := *r
	c.InsertTime = time.Time{}
	payload, err := json.Marshal(&c)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum224(payload)
	digest := hex.EncodeToString(sum[:])

	_, dup := d.seen[digest]
	d.seen[digest] = now

	if now.Sub(d.lastSweep) > d.opts.ExpungeInterval {
		d.Sweep(now)
	}

	return !dup, nil
}

// bypass reports whether the type skips the cache. TWGO products are kept
// alive by retransmission (the standard holds them 60 minutes past the
// last one), so their repeats must flow through; the CRL and service
// status records exist to be refreshed.
func (d *Deduplicator) bypass(recordType string) bool {
	switch recordType {
	case products.TypeFISBUnavailable,
		products.TypeNOTAM,
		"AIRMET", "SIGMET", "WST", "CWA",
		products.TypeCRL,
		products.TypeServiceStatus:
		return true
	case products.TypePIREP:
		return !d.opts.StorePIREPs
	}
	return strings.HasPrefix(recordType, products.TypeGAirmet)
}

// Sweep drops digests not seen within the expire interval.
func (d *Deduplicator) Sweep(now time.Time) {
	for digest, lastSeen := range d.seen {
		if now.Sub(lastSeen) > d.opts.ExpireMsgTime {
			delete(d.seen, digest)
		}
	}
	d.lastSweep = now
}
