// Command-line entry point for the FIS-B decode pipeline.
//
// Each stage name runs the chain from raw demodulator lines up to that
// stage and emits the stage's output as JSON lines:
//
//	frame       decoded ground-uplink packets
//	apdu        decoded APDUs
//	reconstruct reassembled and matched frames
//	normalize   typed product records
//	dedup       records surviving the retransmission filter
//	harvest     records written to the store (no stdout output)
//	pipeline    the full chain, optionally publishing records to NATS
//
// Input is the demodulator line protocol: '+<hex>;t=<epoch>'. Lines
// starting with '#' or '-' (UAT ADS-B) and empty lines are skipped.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fisb_decode/internal/apdu"
	"fisb_decode/internal/config"
	"fisb_decode/internal/dedup"
	"fisb_decode/internal/harvest"
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
	"fisb_decode/internal/storage"
	"fisb_decode/internal/transport"
	"fisb_decode/internal/uplink"

	// Register all product normalizers via init().
	_ "fisb_decode/internal/products/block"
	_ "fisb_decode/internal/products/crl"
	_ "fisb_decode/internal/products/gairmet"
	_ "fisb_decode/internal/products/metar"
	_ "fisb_decode/internal/products/notam"
	_ "fisb_decode/internal/products/pirep"
	_ "fisb_decode/internal/products/sigwx"
	_ "fisb_decode/internal/products/sua"
	_ "fisb_decode/internal/products/svcstatus"
	_ "fisb_decode/internal/products/taf"
	_ "fisb_decode/internal/products/winds"
)

var stages = []string{"frame", "apdu", "reconstruct", "normalize", "dedup", "harvest", "pipeline"}

func usage(w io.Writer) {
	fmt.Fprintln(w, "fisb - FIS-B uplink decode pipeline")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fisb <stage> [-config fisb.toml] [-input lines.txt] [--pp] [-publish]")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Stages: %s\n", strings.Join(stages, ", "))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - Input lines are '+<hex432>;t=<epoch_seconds>' from the demodulator.")
	fmt.Fprintln(w, "  - Lines starting with '#' or '-' and empty lines are ignored.")
	fmt.Fprintln(w, "  - -publish sends emitted records to the configured NATS subject.")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	stage := strings.ToLower(os.Args[1])
	switch stage {
	case "-h", "--help", "help":
		usage(os.Stdout)
		return
	}

	known := false
	for _, s := range stages {
		if stage == s {
			known = true
			break
		}
	}
	if !known {
		fmt.Fprintf(os.Stderr, "Unknown stage: %s\n\n", stage)
		usage(os.Stderr)
		os.Exit(2)
	}

	if err := run(stage, os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "fisb %s: %v\n", stage, err)
		os.Exit(1)
	}
}

func run(stage string, args []string) error {
	fs := flag.NewFlagSet(stage, flag.ExitOnError)
	cfgPath := fs.String("config", "", "TOML configuration file")
	inPath := fs.String("input", "", "Input line file (default: stdin)")
	pretty := fs.Bool("pp", false, "Indent JSON output")
	publish := fs.Bool("publish", false, "Publish emitted records to NATS")
	subscribe := fs.Bool("subscribe", false, "Consume records from NATS instead of stdin (harvest only)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	var in io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	p, err := newPipeline(stage, log, cfg, *pretty, *publish)
	if err != nil {
		return err
	}
	defer p.close()

	if *subscribe {
		if stage != "harvest" {
			return fmt.Errorf("-subscribe only applies to the harvest stage")
		}
		return p.runSubscribed()
	}
	return p.runLines(in)
}

// pipeline holds every stage; stages past the requested one stay nil.
type pipeline struct {
	stage  string
	log    *logrus.Logger
	cfg    config.Config
	out    *json.Encoder
	pretty bool

	apduOpts apdu.Options
	recon    *reconstruct.Reconstructor
	engine   *products.Engine
	dedup    *dedup.Deduplicator

	rsr   *uplink.RSR
	tiers map[string]int

	store     storage.Store
	archive   *storage.Archive
	harvester *harvest.Harvester
	lastMaint time.Time

	publisher *transport.Publisher
}

func newPipeline(stage string, log *logrus.Logger, cfg config.Config, pretty, publish bool) (*pipeline, error) {
	p := &pipeline{
		stage:    stage,
		log:      log,
		cfg:      cfg,
		out:      json.NewEncoder(os.Stdout),
		pretty:   pretty,
		apduOpts: apdu.Options{BlockSUA: cfg.Decode.BlockSUAMessages},
	}
	if pretty {
		p.out.SetIndent("", "  ")
	}

	if p.after("frame") {
		p.recon = reconstruct.New(log, cfg.Reconstruct)
	}
	if p.after("reconstruct") {
		prodCfg := cfg.Products
		p.engine = products.NewEngine(log, &prodCfg)
		if cfg.Decode.CalculateRSR {
			p.rsr = uplink.NewRSR(cfg.Decode.RSRWindowSeconds, cfg.Decode.RSRStrideSeconds)
			p.tiers = make(map[string]int)
		}
	}
	if p.after("normalize") {
		p.dedup = dedup.New(cfg.Dedup)
	}
	if p.after("dedup") {
		store, err := storage.Open(context.Background(), cfg.Storage)
		if err != nil {
			return nil, err
		}
		p.store = store
		p.harvester = harvest.New(log, store, nil, cfg.Harvest)

		if cfg.Storage.Archive {
			archive, err := storage.OpenArchive(context.Background(), cfg.Storage.ClickHouse)
			if err != nil {
				store.Close()
				return nil, err
			}
			p.archive = archive
		}
	}
	if publish {
		pub, err := transport.NewPublisher(log, cfg.NATS)
		if err != nil {
			return nil, err
		}
		p.publisher = pub
	}

	return p, nil
}

// after reports whether the requested stage runs past the named one.
func (p *pipeline) after(stage string) bool {
	pos := func(name string) int {
		for i, s := range stages {
			if s == name {
				return i
			}
		}
		return len(stages)
	}
	return pos(p.stage) > pos(stage)
}

func (p *pipeline) close() {
	if p.publisher != nil {
		if err := p.publisher.Close(); err != nil {
			p.log.WithError(err).Warn("closing publisher")
		}
	}
	if p.archive != nil {
		if err := p.archive.Close(); err != nil {
			p.log.WithError(err).Warn("closing archive")
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			p.log.WithError(err).Warn("closing store")
		}
	}
}

// runSubscribed feeds the harvester from the NATS record subject, for a
// deployment split between a decode host and a store host. Maintenance runs
// on wall time since there is no stream clock to follow.
func (p *pipeline) runSubscribed() error {
	// Delivery and maintenance run on different goroutines; the harvester's
	// tables are single-owner.
	var mu sync.Mutex

	sub, err := transport.NewSubscriber(p.log, p.cfg.NATS, func(r *products.Record) {
		now := time.Now().UTC()
		mu.Lock()
		defer mu.Unlock()
		if err := p.harvester.Process(context.Background(), r, now); err != nil {
			p.log.WithError(err).WithField("type", r.Type).Warn("store write failed")
		}
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	ticker := time.NewTicker(p.cfg.Harvest.MaintInterval)
	defer ticker.Stop()
	for now := range ticker.C {
		mu.Lock()
		p.harvester.Maintain(context.Background(), now.UTC())
		mu.Unlock()
	}
	return nil
}

func (p *pipeline) runLines(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '-' {
			continue
		}

		pkt, err := uplink.ParseLine(line, p.apduOpts)
		if err != nil {
			p.log.WithError(err).Warn("dropping line")
			continue
		}

		if err := p.processPacket(pkt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (p *pipeline) processPacket(pkt *uplink.Packet) error {
	now := pkt.ReceivedAt

	if p.stage == "frame" {
		return p.out.Encode(pkt)
	}
	if p.stage == "apdu" {
		for _, f := range pkt.Frames {
			if f.APDU == nil {
				continue
			}
			if err := p.out.Encode(f.APDU); err != nil {
				return err
			}
		}
		return nil
	}

	// Application data marked invalid never reaches normalization.
	if !pkt.AppDataValid {
		return nil
	}

	if p.rsr != nil {
		p.rsr.Observe(pkt)
		p.tiers[pkt.Station] = uplink.ExpectedPacketsPerSecond(pkt.TISBSiteID)
	}

	frames := p.recon.Process(pkt)
	if p.stage == "reconstruct" {
		for i := range frames {
			if err := p.out.Encode(&frames[i]); err != nil {
				return err
			}
		}
		return nil
	}

	for i := range frames {
		for _, r := range p.engine.Normalize(&frames[i]) {
			if err := p.emit(r, now); err != nil {
				return err
			}
		}
	}

	if p.rsr != nil {
		for _, report := range p.rsr.Tick(now, p.tiers) {
			stride := time.Duration(p.cfg.Decode.RSRStrideSeconds) * time.Second
			r := &products.Record{
				Type:             products.TypeRSR,
				UniqueName:       report.Station,
				Station:          report.Station,
				ReceptionPercent: report.Percent,
				InsertTime:       now,
				ExpirationTime:   now.Add(2 * stride),
			}
			if err := p.emit(r, now); err != nil {
				return err
			}
		}
	}

	return p.maybeMaintain(now)
}

// emit runs one normalized record through the remaining stages.
func (p *pipeline) emit(r *products.Record, now time.Time) error {
	if p.stage == "normalize" {
		return p.out.Encode(r)
	}

	ok, err := p.dedup.Admit(r, now)
	if err != nil {
		p.log.WithError(err).WithField("type", r.Type).Warn("dropping record")
		return nil
	}
	if !ok {
		return nil
	}

	if p.stage == "dedup" {
		return p.out.Encode(r)
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(r); err != nil {
			p.log.WithError(err).Warn("publish failed")
		}
	}
	if p.archive != nil {
		if err := p.archive.Append(context.Background(), []*products.Record{r}); err != nil {
			p.log.WithError(err).Warn("archive append failed")
		}
	}

	return p.harvester.Process(context.Background(), r, now)
}

// maybeMaintain runs a maintenance tick on the stream clock, so replayed
// captures expire on their own timeline.
func (p *pipeline) maybeMaintain(now time.Time) error {
	if p.harvester == nil {
		return nil
	}
	if !p.lastMaint.IsZero() && now.Sub(p.lastMaint) < p.cfg.Harvest.MaintInterval {
		return nil
	}
	p.lastMaint = now
	p.harvester.Maintain(context.Background(), now)
	return nil
}
