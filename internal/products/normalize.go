package products

import (
	"errors"

	"github.com/sirupsen/logrus"

	"fisb_decode/internal/apdu"
	"fisb_decode/internal/reconstruct"
)

// ErrSegmented reports a still-segmented APDU reaching the normalizer.
var ErrSegmented = errors.New("products: segmented APDU not reassembled")

// Engine runs reconstructed frames through the normalizer registry. A frame
// that fails to normalize is logged and dropped; one bad report does not
// take down the stream.
type Engine struct {
	log *logrus.Logger
	reg *Registry
	cfg *Config
}

// NewEngine returns an Engine dispatching on the default registry.
func NewEngine(log *logrus.Logger, cfg *Config) *Engine {
	reg := Default()
	reg.Sort()
	return &Engine{log: log, reg: reg, cfg: cfg}
}

// Normalize converts one frame into normalized records.
func (e *Engine) Normalize(f *reconstruct.Frame) []*Record {
	if f.APDU != nil && f.APDU.Segmented {
		e.log.WithField("product_id", f.APDU.ProductID).Error(ErrSegmented)
		return nil
	}

	// Stations transmit TWGO test payloads with out-of-band reference
	// points; those are dropped without comment.
	for _, t := range []*apdu.TWGO{twgoOf(f), f.Text, f.Graphics} {
		if t != nil && !twgoSane(t) {
			return nil
		}
	}

	records, err := e.reg.Dispatch(f, e.cfg)
	if err != nil {
		log := e.log.WithError(err)
		if f.APDU != nil {
			log = log.WithField("product_id", f.APDU.ProductID)
		}
		log.Warn("dropping frame")
		return nil
	}

	for _, r := range records {
		r.InsertTime = f.ReceivedAt
		if r.Station == "" {
			r.Station = f.Station
		}
	}
	return records
}

func twgoOf(f *reconstruct.Frame) *apdu.TWGO {
	if f.APDU == nil {
		return nil
	}
	return f.APDU.TWGO
}

// twgoSane reports whether a TWGO section carries a known record format and
// a standard reference point.
func twgoSane(t *apdu.TWGO) bool {
	if t.RecordFormat != apdu.RecordFormatText && t.RecordFormat != apdu.RecordFormatGraphic {
		return false
	}
	return t.RecordReferencePoint == 0 || t.RecordReferencePoint == 255
}
