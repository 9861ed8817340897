// Package harvest is the persistence end of the pipeline. It takes
// deduplicated records, maintains the current-state store, keeps CRLs
// annotated with report completeness, and runs the image tile lifecycle.
package harvest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fisb_decode/internal/products"
	"fisb_decode/internal/storage"
)

// Config holds the harvester's knobs.
type Config struct {
	// ImageDirectory is where tile files are written.
	ImageDirectory string `toml:"image_directory"`

	// MaintInterval is how often Maintain should run.
	MaintInterval time.Duration `toml:"maint_interval"`

	// QuietImageTime suppresses tile rendering until no new data has
	// arrived for this long, so an active upload produces one render
	// instead of dozens.
	QuietImageTime time.Duration `toml:"quiet_image_seconds"`

	// ProcessImages enables the image tile lifecycle.
	ProcessImages bool `toml:"process_images"`

	// AnnotateCRLReports marks arriving CRL reports complete against the
	// store. Query heavy; turn off when nothing reads CRLs.
	AnnotateCRLReports bool `toml:"annotate_crl_reports"`

	// ImmediateCRLUpdate re-marks the matching CRL entry as each report
	// arrives, instead of waiting for the next CRL transmission.
	ImmediateCRLUpdate bool `toml:"immediate_crl_update"`

	// ExpireMessages enables dropping dead-on-arrival records and the
	// periodic expiration sweep. Off is useful when replaying old data.
	ExpireMessages bool `toml:"expire_messages"`
}

// DefaultConfig returns the standard-compliant settings.
func DefaultConfig() Config {
	return Config{
		ImageDirectory:     "images",
		MaintInterval:      10 * time.Second,
		QuietImageTime:     10 * time.Second,
		ProcessImages:      true,
		AnnotateCRLReports: true,
		ImmediateCRLUpdate: true,
		ExpireMessages:     true,
	}
}

// Harvester writes normalized records to the store.
type Harvester struct {
	log    *logrus.Logger
	store  storage.Store
	cfg    Config
	images *ImageManager

	// digests holds the last stored payload digest per document key, so
	// refreshed-but-unchanged records skip the write.
	digests map[string]string

	// planes merges service status traffic across messages. A busy
	// station splits its aircraft over several frames; the stored record
	// is the pooled view of every address still in its window.
	planes map[string]time.Time
}

// New returns a Harvester over the given store.
func New(log *logrus.Logger, store storage.Store, renderer Renderer, cfg Config) *Harvester {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &Harvester{
		log:     log,
		store:   store,
		cfg:     cfg,
		images:  NewImageManager(log, store, renderer, cfg.ImageDirectory, cfg.QuietImageTime),
		digests: make(map[string]string),
		planes:  make(map[string]time.Time),
	}
}

// Process stores one record. Decode-side errors never reach here; an error
// return means the store itself failed.
func (h *Harvester) Process(ctx context.Context, r *products.Record, now time.Time) error {
	// Dead on arrival. Happens when replaying old captures.
	if h.cfg.ExpireMessages && !r.ExpirationTime.IsZero() && !r.ExpirationTime.After(now) {
		return nil
	}

	switch {
	case r.AltBlockNumber != nil:
		if !h.cfg.ProcessImages {
			return nil
		}
		return h.images.Ingest(r, now)
	case r.Type == products.TypeCRL:
		return h.processCRL(ctx, r)
	case r.Type == products.TypeServiceStatus:
		return h.processServiceStatus(ctx, r, now)
	case r.Type == products.TypeCancelNOTAM:
		return h.processCancel(ctx, r, products.TypeNOTAM)
	case r.Type == products.TypeCancelCWA:
		return h.processCancel(ctx, r, "CWA")
	case r.Type == products.TypeCancelGAirmet:
		return h.processCancelGAirmet(ctx, r)
	case r.Type == products.TypeImage:
		// IMAGE records are produced here, never consumed.
		return nil
	}

	return h.processDefault(ctx, r)
}

// Maintain runs one maintenance tick: the store expiration sweep and the
// image lifecycle. Call it every MaintInterval.
func (h *Harvester) Maintain(ctx context.Context, now time.Time) {
	if h.cfg.ExpireMessages {
		n, err := h.store.DeleteMany(ctx, storage.CollectionMSG, storage.Filter{ExpiredBefore: now})
		if err != nil {
			h.log.WithError(err).Warn("expiration sweep failed")
		} else if n > 0 {
			h.log.WithField("expired", n).Debug("expired records removed")
		}
	}

	if h.cfg.ProcessImages {
		h.images.PeriodicUpdate(ctx, now)
	}
}

// processDefault handles every plain record: skip when unchanged, convert
// geometry, upsert, and keep the matching CRL entry current.
func (h *Harvester) processDefault(ctx context.Context, r *products.Record) error {
	digest, err := payloadDigest(r)
	if err != nil {
		return err
	}
	if h.digests[r.Key()] == digest {
		return nil
	}

	if err := geometryToGeoJSON(r); err != nil {
		return err
	}

	if err := h.store.Upsert(ctx, storage.CollectionMSG, r); err != nil {
		return err
	}
	h.digests[r.Key()] = digest

	if h.cfg.ImmediateCRLUpdate {
		if pid, ok := crlProduct(r); ok {
			hasTG := r.Contents != "" && r.GeoJSON != nil
			if err := h.updateCRL(ctx, pid, r.UniqueName, r.Station, hasTG); err != nil {
				return err
			}
		}
	}
	return nil
}

// crlProduct maps a record to the product id of the CRL that tracks it.
func crlProduct(r *products.Record) (int, bool) {
	switch r.Type {
	case products.TypeNOTAM:
		switch r.Subtype {
		case "TFR":
			return 8, true
		case "TRA":
			return 16, true
		case "TMOA":
			return 17, true
		}
	case "AIRMET":
		return 11, true
	case "SIGMET", "WST":
		return 12, true
	case "CWA":
		return 15, true
	case products.TypeGAirmet:
		return 14, true
	}
	return 0, false
}

// updateCRL re-marks one entry of a station's CRL after its report arrived.
func (h *Harvester) updateCRL(ctx context.Context, productID int, reportID, station string, hasTextAndGraphics bool) error {
	key := products.TypeCRL + "-CRL-" + strconv.Itoa(productID) + "-" + station
	crl, err := h.store.FindOne(ctx, storage.CollectionMSG, key)
	if err != nil {
		return err
	}
	if crl == nil {
		return nil
	}

	for i, report := range crl.Reports {
		if !strings.HasPrefix(report, reportID+"/") {
			continue
		}

		report = strings.TrimSuffix(report, "*")

		// Text-and-graphics reports are only complete with both parts.
		if !strings.Contains(report, "/TG") || hasTextAndGraphics {
			report += "*"
		}
		crl.Reports[i] = report

		return h.store.Upsert(ctx, storage.CollectionMSG, crl)
	}
	return nil
}

// processCRL annotates and stores an arriving CRL.
func (h *Harvester) processCRL(ctx context.Context, r *products.Record) error {
	if h.cfg.AnnotateCRLReports {
		stored, err := h.storedReportParts(ctx, r.ProductID)
		if err != nil {
			return err
		}
		annotateReports(r.Reports, stored)
	}
	return h.store.Upsert(ctx, storage.CollectionMSG, r)
}

// storedReportParts returns, for every stored report the CRL's product
// covers, which content classes the store actually holds.
func (h *Harvester) storedReportParts(ctx context.Context, productID int) (map[string]string, error) {
	var candidates []*products.Record

	switch productID {
	case 8, 16, 17:
		found, err := h.store.FindMany(ctx, storage.CollectionMSG, storage.Filter{Type: products.TypeNOTAM})
		if err != nil {
			return nil, err
		}
		want := map[int]string{8: "TFR", 16: "TRA", 17: "TMOA"}[productID]
		for _, rec := range found {
			if rec.Subtype == want {
				candidates = append(candidates, rec)
			}
		}
	case 11, 12, 15:
		// AIRMET, SIGMET, WST, and CWA identities never collide, so one
		// pool serves all three CRLs.
		for _, typ := range []string{"AIRMET", "SIGMET", "WST", "CWA"} {
			found, err := h.store.FindMany(ctx, storage.CollectionMSG, storage.Filter{Type: typ})
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, found...)
		}
	case 14:
		found, err := h.store.FindMany(ctx, storage.CollectionMSG, storage.Filter{Type: products.TypeGAirmet})
		if err != nil {
			return nil, err
		}
		candidates = found
	default:
		return nil, fmt.Errorf("harvest: no CRL defined for product %d", productID)
	}

	parts := make(map[string]string, len(candidates))
	for _, rec := range candidates {
		switch {
		case rec.Contents != "" && rec.GeoJSON != nil:
			parts[rec.UniqueName] = "/TG"
		case rec.Contents != "":
			parts[rec.UniqueName] = "/TO"
		default:
			parts[rec.UniqueName] = "/GO"
		}
	}
	return parts, nil
}

// annotateReports marks each CRL entry complete when the store holds every
// part its tag requires.
func annotateReports(reports []string, stored map[string]string) {
	for i, report := range reports {
		report = strings.TrimSuffix(report, "*")
		reports[i] = report

		reportID, _, _ := strings.Cut(report, "/")
		parts, ok := stored[reportID]
		if !ok {
			continue
		}

		if !strings.Contains(report, "/TG") || parts == "/TG" {
			reports[i] = report + "*"
		}
	}
}

// processServiceStatus folds the frame's traffic into the pooled per-radio
// view and stores the merged list.
func (h *Harvester) processServiceStatus(ctx context.Context, r *products.Record, now time.Time) error {
	for _, addr := range r.Traffic {
		h.planes[addr] = r.ExpirationTime
	}

	merged := make([]string, 0, len(h.planes))
	for addr, expires := range h.planes {
		if !expires.After(now) {
			delete(h.planes, addr)
			continue
		}
		merged = append(merged, addr)
	}

	out := *r
	out.Traffic = merged
	return h.store.Upsert(ctx, storage.CollectionMSG, &out)
}

// processCancel replaces the named report with a tombstone in its own
// stream, so consumers watching that type see the cancellation.
func (h *Harvester) processCancel(ctx context.Context, r *products.Record, targetType string) error {
	digest, err := payloadDigest(r)
	if err != nil {
		return err
	}
	if h.digests[r.Key()] == digest {
		return nil
	}
	h.digests[r.Key()] = digest

	tomb := *r
	tomb.Type = targetType
	tomb.Cancel = r.UniqueName
	return h.store.Upsert(ctx, storage.CollectionMSG, &tomb)
}

// processCancelGAirmet stores the cancellation record and removes the
// G-AIRMET it names.
func (h *Harvester) processCancelGAirmet(ctx context.Context, r *products.Record) error {
	digest, err := payloadDigest(r)
	if err != nil {
		return err
	}
	if h.digests[r.Key()] == digest {
		return nil
	}
	h.digests[r.Key()] = digest

	if err := h.store.Upsert(ctx, storage.CollectionMSG, r); err != nil {
		return err
	}
	return h.store.Delete(ctx, storage.CollectionMSG, products.TypeGAirmet+"-"+r.UniqueName)
}

// payloadDigest hashes the record body. InsertTime is stamped per
// reception and stays out of the digest.
func payloadDigest(r *products.Record) (string, error) {
	c := *r
	c.InsertTime = time.Time{}
	payload, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("digest record: %w", err)
	}
	sum := sha256.Sum224(payload)
	return hex.EncodeToString(sum[:]), nil
}
