package harvest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"fisb_decode/internal/products"
	"fisb_decode/internal/storage"
)

// imageProducts is every image-bearing record type. Each gets its own tile
// state; icing and turbulence have one per altitude level.
var imageProducts = []string{
	"NEXRAD_REGIONAL", "NEXRAD_CONUS",
	"CLOUD_TOPS", "LIGHTNING",
	"ICING_02000", "ICING_04000", "ICING_06000", "ICING_08000",
	"ICING_10000", "ICING_12000", "ICING_14000", "ICING_16000",
	"ICING_18000", "ICING_20000", "ICING_22000", "ICING_24000",
	"TURBULENCE_02000", "TURBULENCE_04000", "TURBULENCE_06000",
	"TURBULENCE_08000", "TURBULENCE_10000", "TURBULENCE_12000",
	"TURBULENCE_14000", "TURBULENCE_16000", "TURBULENCE_18000",
	"TURBULENCE_20000", "TURBULENCE_22000", "TURBULENCE_24000",
}

// Layer is one rendered tile of an image product. Most products render a
// single layer; icing packs three data items per bin and lightning two, so
// they split into one tile per item.
type Layer struct {
	// Suffix goes between the product name and the .tif extension.
	Suffix string

	// Extract pulls this layer's value out of a packed bin byte.
	Extract func(byte) byte
}

// Tile is the unit of work handed to a renderer.
type Tile struct {
	Product     string
	Layer       Layer
	ScaleFactor int
	Bins        map[int][]byte
	BBox        []float64
}

// Renderer encodes a tile to a file. The raster format is the renderer's
// business; the manager owns geometry, lifecycle, and naming.
type Renderer interface {
	Render(filename string, tile *Tile) error
}

// NopRenderer skips tile encoding. Image state, IMAGE records, and bounding
// boxes are still maintained.
type NopRenderer struct{}

func (NopRenderer) Render(string, *Tile) error { return nil }

func identityByte(b byte) byte    { return b }
func icingSLD(b byte) byte        { return (b >> 6) & 0x03 }
func icingSeverity(b byte) byte   { return (b >> 3) & 0x07 }
func icingProbability(b byte) byte { return b & 0x07 }
func lightningAll(b byte) byte    { return b & 0x07 }

// lightningPositive keeps only positive polarity strikes.
func lightningPositive(b byte) byte {
	if b&0x08 != 0 {
		return b & 0x07
	}
	return 0
}

type binEntry struct {
	bins     []byte
	official time.Time
}

// imageState tracks one product's bins between renders.
type imageState struct {
	// Static per product.
	revertToNoData time.Duration
	maxLatency     time.Duration
	observation    bool
	scale          int
	layers         []Layer

	hasData        bool
	fileCreation   time.Time
	lastChanged    time.Time
	newestOfficial time.Time
	oldestOfficial time.Time
	bins           map[int]binEntry
}

func newImageState(product string) *imageState {
	s := &imageState{bins: make(map[int]binEntry)}

	switch product {
	case "NEXRAD_REGIONAL", "NEXRAD_CONUS", "LIGHTNING":
		// Radar and lightning tiles may mix observation times up to ten
		// minutes apart; everything else is a single snapshot.
		s.revertToNoData = 75 * time.Minute
		s.maxLatency = 10 * time.Minute
		s.observation = true
	default:
		s.revertToNoData = 105 * time.Minute
		s.maxLatency = 0
		s.observation = false
	}

	switch product {
	case "NEXRAD_REGIONAL", "LIGHTNING", "CLOUD_TOPS":
		s.scale = 0
	default:
		s.scale = 1
	}

	switch {
	case product == "LIGHTNING":
		s.layers = []Layer{
			{"_ALL", lightningAll},
			{"_POS", lightningPositive},
		}
	case len(product) > 5 && product[:5] == "ICING":
		s.layers = []Layer{
			{"_SLD", icingSLD},
			{"_SEV", icingSeverity},
			{"_PRB", icingProbability},
		}
	default:
		s.layers = []Layer{{"", identityByte}}
	}

	return s
}

// ImageManager owns the tile lifecycle for every image product.
type ImageManager struct {
	log      *logrus.Logger
	store    storage.Store
	renderer Renderer
	dir      string
	quiet    time.Duration
	states   map[string]*imageState
}

// NewImageManager builds fresh no-data state for every image product and
// removes any tile files left over from a previous run.
func NewImageManager(log *logrus.Logger, store storage.Store, renderer Renderer, dir string, quiet time.Duration) *ImageManager {
	m := &ImageManager{
		log:      log,
		store:    store,
		renderer: renderer,
		dir:      dir,
		quiet:    quiet,
		states:   make(map[string]*imageState, len(imageProducts)),
	}
	for _, p := range imageProducts {
		m.states[p] = newImageState(p)
		m.removeFiles(p)
	}
	return m
}

func (m *ImageManager) filenames(product string) []string {
	layers := m.states[product].layers
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = filepath.Join(m.dir, product+l.Suffix+".tif")
	}
	return names
}

func (m *ImageManager) removeFiles(product string) {
	for _, name := range m.filenames(product) {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			m.log.WithError(err).WithField("file", name).Warn("failed to remove tile file")
		}
	}
}

// Ingest stores one block record's bins. Duplicates are ignored; a newer
// official time on a no-latency product starts a fresh image.
func (m *ImageManager) Ingest(r *products.Record, now time.Time) error {
	s, ok := m.states[r.Type]
	if !ok {
		return fmt.Errorf("harvest: no image state for %q", r.Type)
	}
	if r.AltBlockNumber == nil {
		return fmt.Errorf("harvest: image record without block number")
	}

	altBN := *r.AltBlockNumber
	official := r.ValidTime
	if s.observation {
		official = r.ObservationTime
	}

	if cur, ok := s.bins[altBN]; ok {
		if cur.official.Equal(official) && bytes.Equal(cur.bins, r.Bins) {
			return nil
		}
	}

	if official.After(s.newestOfficial) {
		s.newestOfficial = official
		if s.maxLatency == 0 {
			s.bins = make(map[int]binEntry)
		}
	}

	s.bins[altBN] = binEntry{bins: r.Bins, official: official}
	s.lastChanged = now
	s.hasData = true
	return nil
}

// PeriodicUpdate drops stale bins, resets empty products, and renders any
// product whose data has settled.
func (m *ImageManager) PeriodicUpdate(ctx context.Context, now time.Time) {
	for _, product := range imageProducts {
		s := m.states[product]
		if !s.hasData {
			continue
		}

		oldest := s.newestOfficial
		changed := false
		for altBN, entry := range s.bins {
			drop := false

			if s.maxLatency > 0 {
				if s.newestOfficial.Sub(entry.official) >= s.maxLatency {
					drop = true
				} else if entry.official.Before(oldest) {
					oldest = entry.official
				}
			}
			if now.Sub(entry.official) >= s.revertToNoData {
				drop = true
			}

			if drop {
				delete(s.bins, altBN)
				changed = true
			}
		}
		s.oldestOfficial = oldest
		if changed {
			s.lastChanged = now
		}

		if len(s.bins) == 0 {
			m.removeFiles(product)
			if err := m.store.Delete(ctx, storage.CollectionMSG, products.TypeImage+"-"+product); err != nil {
				m.log.WithError(err).WithField("product", product).Warn("failed to delete image record")
			}
			m.states[product] = newImageState(product)
			continue
		}

		if err := m.render(ctx, product, now); err != nil {
			m.log.WithError(err).WithField("product", product).Warn("tile render failed")
		}
	}
}

// render encodes the product's tiles and upserts its IMAGE record, but only
// when data changed since the last render and the quiet period has passed.
func (m *ImageManager) render(ctx context.Context, product string, now time.Time) error {
	s := m.states[product]

	if m.quiet > 0 && now.Sub(s.lastChanged) < m.quiet {
		return nil
	}
	if s.fileCreation.After(s.lastChanged) {
		return nil
	}

	bbox := bboxSlice(binsBound(s.bins, s.scale))

	rawBins := make(map[int][]byte, len(s.bins))
	for altBN, entry := range s.bins {
		rawBins[altBN] = entry.bins
	}

	names := m.filenames(product)
	for i, layer := range s.layers {
		tile := &Tile{
			Product:     product,
			Layer:       layer,
			ScaleFactor: s.scale,
			Bins:        rawBins,
			BBox:        bbox,
		}
		if err := m.renderer.Render(names[i], tile); err != nil {
			return err
		}
	}

	rec := &products.Record{
		Type:           products.TypeImage,
		UniqueName:     product,
		BBox:           bbox,
		InsertTime:     now,
		ExpirationTime: s.oldestOfficial.Add(s.revertToNoData),
	}
	if s.observation {
		rec.ObservationTime = s.oldestOfficial
	} else {
		rec.ValidTime = s.oldestOfficial
	}

	if err := m.store.Upsert(ctx, storage.CollectionMSG, rec); err != nil {
		return err
	}

	s.fileCreation = now
	return nil
}
