package reconstruct

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"fisb_decode/internal/apdu"
)

// twgoHeaderBytes is the TWGO header repeated at the front of every
// segment; only the first segment's copy survives reassembly.
const twgoHeaderBytes = 6

// ErrSegmentIndex reports an APDU number outside the product file.
var ErrSegmentIndex = errors.New("reconstruct: segment index out of bounds")

// Desegmenter collects the segments of multi-APDU product files and emits a
// single reassembled APDU once every segment has arrived. Product files
// that never complete are evicted after the expire interval.
type Desegmenter struct {
	expire  time.Duration
	pending map[string]*pendingFile
}

type pendingFile struct {
	insertedAt time.Time
	have       int
	segments   []*apdu.APDU
}

// NewDesegmenter returns a Desegmenter evicting incomplete product files
// after expire.
func NewDesegmenter(expire time.Duration) *Desegmenter {
	return &Desegmenter{
		expire:  expire,
		pending: make(map[string]*pendingFile),
	}
}

// Add stores one segment. It returns the reassembled APDU when this segment
// completes its product file, nil while segments are still missing.
func (d *Desegmenter) Add(a *apdu.APDU, now time.Time) (*apdu.APDU, error) {
	key := fmt.Sprintf("S%d-%d", a.ProductID, a.ProductFileID)
	index := a.APDUNumber - 1

	pf, ok := d.pending[key]
	if !ok {
		pf = &pendingFile{
			insertedAt: now,
			segments:   make([]*apdu.APDU, a.ProductFileLength),
		}
		d.pending[key] = pf
	}

	if index < 0 || index >= len(pf.segments) {
		return nil, fmt.Errorf("%w: segment %d of %d", ErrSegmentIndex,
			a.APDUNumber, len(pf.segments))
	}

	// Retransmissions of a slot we already hold are ignored.
	if pf.segments[index] != nil {
		return nil, nil
	}
	pf.segments[index] = a
	pf.have++

	if pf.have < len(pf.segments) {
		return nil, nil
	}

	delete(d.pending, key)
	return consolidate(pf.segments)
}

// consolidate joins the segment payloads and decodes the whole product
// file. The first segment keeps its payload intact; every later segment
// drops the repeated TWGO header.
func consolidate(segments []*apdu.APDU) (*apdu.APDU, error) {
	var payload []byte
	for i, seg := range segments {
		raw, err := hex.DecodeString(seg.SegmentPayload)
		if err != nil {
			return nil, fmt.Errorf("reconstruct: segment %d payload: %w", i+1, err)
		}
		if i > 0 && len(raw) > twgoHeaderBytes {
			raw = raw[twgoHeaderBytes:]
		}
		payload = append(payload, raw...)
	}

	// The first segment carries the header fields for the whole file. The
	// product file id stays, as it is the only way to trace a reassembled
	// message back to its segments.
	whole := *segments[0]
	whole.Segmented = false
	whole.ProductFileLength = 0
	whole.APDUNumber = 0
	whole.SegmentPayload = ""

	if err := whole.DecodePayload(payload); err != nil {
		return nil, err
	}
	return &whole, nil
}

// Sweep drops product files that have waited longer than the expire
// interval for their missing segments.
func (d *Desegmenter) Sweep(now time.Time) {
	for key, pf := range d.pending {
		if now.Sub(pf.insertedAt) >= d.expire {
			delete(d.pending, key)
		}
	}
}
