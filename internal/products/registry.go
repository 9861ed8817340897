package products

import (
	"errors"
	"sort"
	"strconv"
	"sync"

	"fisb_decode/internal/fisbtime"
	"fisb_decode/internal/reconstruct"
)

// ErrNoNormalizer reports a frame no registered normalizer claimed.
var ErrNoNormalizer = errors.New("products: no normalizer for frame")

// Normalizer is implemented by each product family.
type Normalizer interface {
	// Name returns the normalizer's unique identifier.
	Name() string

	// Keys returns the dispatch keys this normalizer handles: the decimal
	// product id for APDU frames, or "crl"/"service_status" for the
	// station-scoped frame types.
	Keys() []string

	// QuickCheck performs a fast string check on the frame text before the
	// full parse. Only the generic-text product (413) carries multiple
	// families under one key; everything else returns true.
	QuickCheck(text string) bool

	// Priority determines order when multiple normalizers share a key.
	// Lower number = checked first.
	Priority() int

	// Normalize converts one frame into zero or more records. A nil slice
	// with a nil error means the frame is intentionally dropped (stale
	// repeats, known-bad reports).
	Normalize(f *reconstruct.Frame, cfg *Config) ([]*Record, error)
}

// Registry holds registered normalizers organised by dispatch key.
type Registry struct {
	mu     sync.RWMutex
	byKey  map[string][]Normalizer
	sorted bool
}

// New creates a new Registry instance.
func New() *Registry {
	return &Registry{byKey: make(map[string][]Normalizer)}
}

var defaultRegistry = New()

// Default returns the global registry instance.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a normalizer to the default registry. Called during init()
// in each product package.
func Register(n Normalizer) {
	defaultRegistry.Register(n)
}

// Register adds a normalizer to the registry.
func (r *Registry) Register(n Normalizer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range n.Keys() {
		r.byKey[key] = append(r.byKey[key], n)
	}
	r.sorted = false
}

// Sort sorts each key's normalizers by priority. Call before dispatching.
func (r *Registry) Sort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sorted {
		return
	}
	for key := range r.byKey {
		ns := r.byKey[key]
		sort.Slice(ns, func(i, j int) bool {
			return ns[i].Priority() < ns[j].Priority()
		})
	}
	r.sorted = true
}

// DispatchKey derives the registry key for a frame.
func DispatchKey(f *reconstruct.Frame) string {
	switch {
	case f.CRL != nil:
		return "crl"
	case f.ServiceStatus != nil:
		return "service_status"
	case f.APDU != nil:
		return strconv.Itoa(f.APDU.ProductID)
	}
	return ""
}

// Dispatch routes a frame to its normalizer. Exactly one family handles
// each frame; the first normalizer whose QuickCheck passes wins.
func (r *Registry) Dispatch(f *reconstruct.Frame, cfg *Config) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := DispatchKey(f)
	ns, ok := r.byKey[key]
	if !ok {
		return nil, ErrNoNormalizer
	}

	var text string
	if f.APDU != nil && f.APDU.Text != "" {
		text = fisbtime.CleanText(f.APDU.Text)
	}

	for _, n := range ns {
		if !n.QuickCheck(text) {
			continue
		}
		return n.Normalize(f, cfg)
	}

	return nil, ErrNoNormalizer
}

// RegisteredKeys returns all dispatch keys that have normalizers.
func (r *Registry) RegisteredKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.byKey))
	for key := range r.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
