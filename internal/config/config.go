// Package config loads the pipeline's TOML configuration. Every stage keeps
// its own settings struct; this package only glues them into one file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"fisb_decode/internal/dedup"
	"fisb_decode/internal/harvest"
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
	"fisb_decode/internal/storage"
	"fisb_decode/internal/transport"
)

// DecodeConfig holds the settings of the packet-facing stages.
type DecodeConfig struct {
	// BlockSUAMessages drops product 13 APDUs at decode.
	BlockSUAMessages bool `toml:"block_sua_messages"`

	// CalculateRSR turns on reception success rate reports.
	CalculateRSR bool `toml:"calculate_rsr"`

	// RSRWindowSeconds is the sliding window the rate is measured over.
	RSRWindowSeconds int `toml:"rsr_window_seconds"`

	// RSRStrideSeconds is how often a report is emitted.
	RSRStrideSeconds int `toml:"rsr_stride_seconds"`
}

// Config is the full pipeline configuration.
type Config struct {
	// LogLevel is a logrus level name.
	LogLevel string `toml:"log_level"`

	Decode      DecodeConfig        `toml:"decode"`
	Reconstruct reconstruct.Options `toml:"reconstruct"`
	Products    products.Config     `toml:"products"`
	Dedup       dedup.Options       `toml:"dedup"`
	Storage     storage.Config      `toml:"storage"`
	Harvest     harvest.Config      `toml:"harvest"`
	NATS        transport.Config    `toml:"nats"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Decode: DecodeConfig{
			BlockSUAMessages: false,
			CalculateRSR:     false,
			RSRWindowSeconds: 30,
			RSRStrideSeconds: 30,
		},
		Reconstruct: reconstruct.Options{
			SegmentExpire: 60 * time.Second,
			TWGOExpire:    10 * time.Minute,
			SweepInterval: 10 * time.Second,
		},
		Products: products.Defaults(),
		Dedup: dedup.Options{
			ExpireMsgTime:   30 * time.Minute,
			ExpungeInterval: time.Minute,
			StorePIREPs:     true,
		},
		Storage: storage.DefaultConfig(),
		Harvest: harvest.DefaultConfig(),
		NATS:    transport.DefaultConfig(),
	}
}

// Load reads a TOML file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	return cfg, nil
}
