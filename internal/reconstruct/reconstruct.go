// Package reconstruct rebuilds complete FIS-B reports from the fragments a
// ground station transmits: it reassembles segmented product files and
// pairs the text and graphic portions of TWGO reports.
package reconstruct

import (
	"time"

	"github.com/sirupsen/logrus"

	"fisb_decode/internal/apdu"
	"fisb_decode/internal/uplink"
)

// Frame is one reconstructed frame, carrying the packet metadata the later
// stages need. Matched TWGO products move their payload into Text and
// Graphics; everything else keeps it on the APDU.
type Frame struct {
	ReceivedAt time.Time `json:"rcvd_time"`
	Station    string    `json:"station"`
	Type       int       `json:"frame_type"`

	APDU     *apdu.APDU `json:"apdu,omitempty"`
	Text     *apdu.TWGO `json:"contents_text,omitempty"`
	Graphics *apdu.TWGO `json:"contents_graphics,omitempty"`

	CRL           *uplink.CRL           `json:"crl,omitempty"`
	ServiceStatus *uplink.ServiceStatus `json:"service_status,omitempty"`
}

// Options configures the reconstruction stage.
type Options struct {
	// SegmentExpire is how long incomplete product files wait for their
	// missing segments.
	SegmentExpire time.Duration `toml:"segment_expire"`

	// TWGOExpire is how long unmatched text or graphic portions are held.
	TWGOExpire time.Duration `toml:"twgo_expire"`

	// SweepInterval is how often the eviction sweeps run.
	SweepInterval time.Duration `toml:"sweep_interval"`
}

// Reconstructor runs the desegmenter and the text/graphic matcher over a
// packet stream. Frames that fail to reconstruct are logged and dropped;
// one damaged frame does not take down the stream.
type Reconstructor struct {
	log       *logrus.Logger
	deseg     *Desegmenter
	matcher   *Matcher
	sweepEach time.Duration
	lastSweep time.Time
}

// New returns a Reconstructor with the given options.
func New(log *logrus.Logger, opts Options) *Reconstructor {
	return &Reconstructor{
		log:       log,
		deseg:     NewDesegmenter(opts.SegmentExpire),
		matcher:   NewMatcher(opts.TWGOExpire),
		sweepEach: opts.SweepInterval,
	}
}

// Process runs one packet's frames through reconstruction. Non-APDU frames
// pass through untouched; segmented APDUs and unmatched TWGO portions are
// held back until their counterparts arrive.
func (r *Reconstructor) Process(p *uplink.Packet) []Frame {
	now := p.ReceivedAt
	r.maybeSweep(now)

	var out []Frame
	for _, f := range p.Frames {
		frame := Frame{
			ReceivedAt:    p.ReceivedAt,
			Station:       p.Station,
			Type:          f.Type,
			CRL:           f.CRL,
			ServiceStatus: f.ServiceStatus,
		}

		if f.Type != uplink.FrameTypeAPDU || f.APDU == nil {
			out = append(out, frame)
			continue
		}

		a := f.APDU
		if a.Segmented {
			whole, err := r.deseg.Add(a, now)
			if err != nil {
				r.log.WithError(err).WithFields(logrus.Fields{
					"product_id":      a.ProductID,
					"product_file_id": a.ProductFileID,
				}).Warn("dropping segmented frame")
				continue
			}
			if whole == nil {
				continue
			}
			a = whole
		}

		if NeedsMatching(a.ProductID) && a.TWGO != nil {
			matched, err := r.matcher.Match(a, now)
			if err != nil {
				r.log.WithError(err).WithField("product_id", a.ProductID).
					Warn("dropping TWGO frame")
				continue
			}
			if matched == nil {
				continue
			}

			// The matched portions replace the raw TWGO payload.
			stripped := *a
			stripped.TWGO = nil
			frame.APDU = &stripped
			frame.Text = matched.Text
			frame.Graphics = matched.Graphics
			out = append(out, frame)
			continue
		}

		frame.APDU = a
		out = append(out, frame)
	}

	return out
}

func (r *Reconstructor) maybeSweep(now time.Time) {
	if r.lastSweep.IsZero() {
		r.lastSweep = now
		return
	}
	if now.Sub(r.lastSweep) < r.sweepEach {
		return
	}
	r.deseg.Sweep(now)
	r.matcher.Sweep(now)
	r.lastSweep = now
}
