package reconstruct

import (
	"errors"
	"fmt"
	"time"

	"fisb_decode/internal/apdu"
)

var (
	// ErrTextRecordCount reports a text TWGO with other than one record.
	ErrTextRecordCount = errors.New("reconstruct: expected exactly one text record")

	// ErrRecordFormat reports a TWGO record format other than text or
	// graphic.
	ErrRecordFormat = errors.New("reconstruct: unknown TWGO record format")
)

// Matched is a matcher emission: the text portion of a report, optionally
// joined with its cached graphic portion.
type Matched struct {
	Text     *apdu.TWGO
	Graphics *apdu.TWGO
}

// Matcher pairs the separately transmitted text and graphic portions of
// TWGO reports (NOTAM, AIRMET, SIGMET, WST, CWA, TRA, TMOA). Text always
// goes out on arrival; a graphic waits until its text shows up. Entries
// unmatched for the expire interval are evicted.
type Matcher struct {
	expire  time.Duration
	entries map[string]*matchEntry
}

type matchEntry struct {
	createdAt time.Time
	text      *apdu.TWGO
	graphics  *apdu.TWGO
}

// NewMatcher returns a Matcher evicting unmatched portions after expire.
func NewMatcher(expire time.Duration) *Matcher {
	return &Matcher{
		expire:  expire,
		entries: make(map[string]*matchEntry),
	}
}

// NeedsMatching reports whether the product's text and graphics arrive as
// separate transmissions. G-AIRMET is graphics only and SUA is text only,
// so neither goes through the matcher.
func NeedsMatching(productID int) bool {
	switch productID {
	case 8, 11, 12, 15, 16, 17:
		return true
	}
	return false
}

// Match processes one TWGO APDU. A nil result means nothing goes out yet
// (graphic with no text, or a repeat of unchanged empty text).
func (m *Matcher) Match(a *apdu.APDU, now time.Time) (*Matched, error) {
	t := a.TWGO
	if t == nil || len(t.Records) == 0 {
		return nil, fmt.Errorf("%w: empty TWGO", ErrRecordFormat)
	}

	if t.RecordFormat == apdu.RecordFormatText && len(t.Records) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrTextRecordCount, len(t.Records))
	}

	// Report identity per DO-358B B.3.3; the location matters for
	// D-NOTAMs, where report numbers repeat across stations.
	record := t.Records[0]
	key := fmt.Sprintf("%d-%d-%d-%s-%d", a.ProductID, record.ReportYear,
		record.ReportNumber, location(t), a.Month)

	entry, ok := m.entries[key]
	if !ok {
		entry = &matchEntry{createdAt: now}
		m.entries[key] = entry
	}

	switch t.RecordFormat {
	case apdu.RecordFormatGraphic:
		entry.graphics = t
		if entry.text != nil {
			return &Matched{Text: entry.text, Graphics: t}, nil
		}
		return nil, nil

	case apdu.RecordFormatText:
		return m.matchText(entry, a.ProductID, t, record)

	default:
		return nil, fmt.Errorf("%w: %d", ErrRecordFormat, t.RecordFormat)
	}
}

func (m *Matcher) matchText(entry *matchEntry, productID int, t *apdu.TWGO, record apdu.TWGORecord) (*Matched, error) {
	// Cancellations always go out, and are not cached: the next active
	// report under this identity starts fresh.
	if record.ReportStatus == 0 {
		return &Matched{Text: t}, nil
	}

	// Active reports with empty text are keep-alives. Only the TFR NOTAM
	// renewal goes out; everything else waits for a real text portion.
	if record.Text == "" {
		if productID != 8 {
			return nil, nil
		}
		return &Matched{Text: t}, nil
	}

	if entry.text == nil {
		entry.text = t
		return &Matched{Text: t, Graphics: entry.graphics}, nil
	}

	if entry.text.Records[0].Text != record.Text {
		// Changed text starts a new report; any cached graphic may no
		// longer agree with it.
		entry.graphics = nil
		entry.text = t
		return &Matched{Text: t}, nil
	}

	// Unchanged text. With a graphic cached the combined record already
	// went out; without one the text keeps refreshing downstream.
	entry.text = t
	if entry.graphics != nil {
		return nil, nil
	}
	return &Matched{Text: t}, nil
}

// location returns the TWGO location, or a placeholder when absent.
func location(t *apdu.TWGO) string {
	if t.Location == "" {
		return "X"
	}
	return t.Location
}

// Sweep drops entries older than the expire interval.
func (m *Matcher) Sweep(now time.Time) {
	for key, entry := range m.entries {
		if now.Sub(entry.createdAt) >= m.expire {
			delete(m.entries, key)
		}
	}
}
