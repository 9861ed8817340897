package dedup

import (
	"testing"
	"time"

	"fisb_decode/internal/products"
)

func testOptions() Options {
	return Options{
		ExpireMsgTime:   30 * time.Minute,
		ExpungeInterval: time.Minute,
		StorePIREPs:     true,
	}
}

func metar(station, contents string, insert time.Time) *products.Record {
	return &products.Record{
		Type:           products.TypeMETAR,
		UniqueName:     station,
		Location:       station,
		Contents:       contents,
		InsertTime:     insert,
		ExpirationTime: insert.Add(2 * time.Hour),
	}
}

func TestAdmitDropsRetransmission(t *testing.T) {
	d := New(testOptions())
	now := time.Unix(1756000000, 0).UTC()

	ok, err := d.Admit(metar("KBOS", "METAR KBOS 241154Z", now), now)
	if err != nil || !ok {
		t.Fatalf("first = %v, %v", ok, err)
	}

	ok, err = d.Admit(metar("KBOS", "METAR KBOS 241154Z", now), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if ok {
		t.Error("retransmission admitted")
	}
}

func TestAdmitIgnoresInsertTime(t *testing.T) {
	d := New(testOptions())
	now := time.Unix(1756000000, 0).UTC()

	d.Admit(metar("KBOS", "METAR KBOS 241154Z", now), now)

	// Same report received again a minute later: only InsertTime differs.
	later := metar("KBOS", "METAR KBOS 241154Z", now)
	later.InsertTime = now.Add(time.Minute)

	ok, err := d.Admit(later, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if ok {
		t.Error("restamped retransmission admitted")
	}
}

func TestAdmitDistinguishesContents(t *testing.T) {
	d := New(testOptions())
	now := time.Unix(1756000000, 0).UTC()

	d.Admit(metar("KBOS", "METAR KBOS 241154Z", now), now)

	ok, err := d.Admit(metar("KBOS", "METAR KBOS 241254Z", now), now)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !ok {
		t.Error("updated report dropped")
	}
}

func TestAdmitBypassesKeepAliveTypes(t *testing.T) {
	d := New(testOptions())
	now := time.Unix(1756000000, 0).UTC()

	for _, typ := range []string{
		products.TypeNOTAM, "AIRMET", "SIGMET", "WST", "CWA",
		products.TypeCRL, products.TypeServiceStatus,
		products.TypeFISBUnavailable,
		products.TypeGAirmet + "_00_HR",
	} {
		r := &products.Record{Type: typ, UniqueName: "X", Contents: "SAME"}
		for i := 0; i < 2; i++ {
			ok, err := d.Admit(r, now)
			if err != nil {
				t.Fatalf("%s: %v", typ, err)
			}
			if !ok {
				t.Errorf("%s retransmission dropped", typ)
			}
		}
	}
}

func tile(event time.Time) *products.Record {
	altBN := 614340
	scale := 0
	bins := make([]byte, 128)
	bins[0] = 3
	return &products.Record{
		Type:            "NEXRAD_REGIONAL",
		UniqueName:      "NR-" + event.Format("2006-01-02T15:04:05Z"),
		AltBlockNumber:  &altBN,
		ScaleFactor:     &scale,
		Bins:            bins,
		ObservationTime: event,
		ExpirationTime:  event.Add(75 * time.Minute),
	}
}

func TestAdmitDropsRetransmittedImagery(t *testing.T) {
	d := New(testOptions())
	now := time.Unix(1756000000, 0).UTC()
	event := now.Truncate(time.Hour)

	ok, err := d.Admit(tile(event), now)
	if err != nil || !ok {
		t.Fatalf("first = %v, %v", ok, err)
	}

	// Imagery runs through the digest cache like any other record; the
	// same tile a minute later is a retransmission.
	ok, err = d.Admit(tile(event), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if ok {
		t.Error("retransmitted tile admitted")
	}
}

func TestAdmitPIREPToggle(t *testing.T) {
	now := time.Unix(1756000000, 0).UTC()
	pirep := &products.Record{Type: products.TypePIREP, UniqueName: "1", Contents: "UA /OV KBOS"}

	// With the cache on, the repeat is dropped.
	d := New(testOptions())
	d.Admit(pirep, now)
	if ok, _ := d.Admit(pirep, now); ok {
		t.Error("PIREP retransmission admitted with cache on")
	}

	// With the cache off, PIREPs flow through unchecked.
	opts := testOptions()
	opts.StorePIREPs = false
	d = New(opts)
	d.Admit(pirep, now)
	if ok, _ := d.Admit(pirep, now); !ok {
		t.Error("PIREP dropped with cache off")
	}
}

func TestSweepForgetsIdleDigests(t *testing.T) {
	opts := testOptions()
	opts.ExpireMsgTime = 10 * time.Minute
	d := New(opts)
	now := time.Unix(1756000000, 0).UTC()

	d.Admit(metar("KBOS", "METAR KBOS 241154Z", now), now)
	d.Sweep(now.Add(11 * time.Minute))

	// After the transmission stops and the digest ages out, the same
	// record is new again.
	ok, err := d.Admit(metar("KBOS", "METAR KBOS 241154Z", now), now.Add(11*time.Minute))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !ok {
		t.Error("aged-out record still dropped")
	}
}

func TestRepeatsRefreshTheClock(t *testing.T) {
	opts := testOptions()
	opts.ExpireMsgTime = 10 * time.Minute
	opts.ExpungeInterval = time.Hour
	d := New(opts)
	now := time.Unix(1756000000, 0).UTC()

	d.Admit(metar("KBOS", "METAR KBOS 241154Z", now), now)
	// A repeat at 8 minutes refreshes the entry.
	d.Admit(metar("KBOS", "METAR KBOS 241154Z", now), now.Add(8*time.Minute))

	d.Sweep(now.Add(15 * time.Minute))
	if ok, _ := d.Admit(metar("KBOS", "METAR KBOS 241154Z", now), now.Add(15*time.Minute)); ok {
		t.Error("refreshed digest swept")
	}
}
