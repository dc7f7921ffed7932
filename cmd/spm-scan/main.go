// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spm-scan acquires frames from a (simulated) SPM controller
// and stores them with scanio: scan frames as forward/backward pairs
// (.scb or .asc), frames of other orders as CSV tables.
//
// Usage: spm-scan [OPTIONS]
//
// Example:
//
//  $> spm-scan -p profile.yaml -o /data/run42 -frames 2
//  spm-scan: acquiring profile "afm-topo-256"
//  spm-scan: ch00 frame    0: wrote /data/run42/afm-topo-256-ch00-0000_fwd.scb
//  spm-scan: ch00 frame    0: wrote /data/run42/afm-topo-256-ch00-0000_bwd.scb
//  [...]
//  spm-scan: ch00: wrote 2 frame(s)
package main // import "github.com/go-spm/spmc/cmd/spm-scan"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-spm/spmc/daq"
	"github.com/go-spm/spmc/internal/profcfg"
	"github.com/go-spm/spmc/meta"
	"github.com/go-spm/spmc/scanio"
)

const usage = `spm-scan acquires frames from a (simulated) SPM controller and
stores them with scanio: scan frames as forward/backward pairs (.scb
or .asc), frames of other orders as CSV tables.

Usage: spm-scan [OPTIONS]

Example:

 $> spm-scan -p profile.yaml -o /data/run42 -frames 2
 spm-scan: acquiring profile "afm-topo-256"
 spm-scan: ch00 frame    0: wrote /data/run42/afm-topo-256-ch00-0000_fwd.scb
 spm-scan: ch00 frame    0: wrote /data/run42/afm-topo-256-ch00-0000_bwd.scb
 [...]
 spm-scan: ch00: wrote 2 frame(s)

`

func main() {
	log.SetPrefix("spm-scan: ")
	log.SetFlags(0)

	var (
		pname   = flag.String("p", "profile.yaml", "path to the acquisition profile")
		odir    = flag.String("o", ".", "directory for output files")
		ascii   = flag.Bool("ascii", false, "write scan frames as ascii instead of binary")
		frames  = flag.Int("frames", 0, "frames to acquire per channel (0 for the profile's setting)")
		rate    = flag.Duration("rate", 0, "pacing between simulated deliveries")
		seed    = flag.Uint64("seed", 0, "seed of the simulated controller (0 for the built-in default)")
		partial = flag.Bool("partial", false, "poll partial frames and log progress instead of waiting for completion events")
		poll    = flag.Duration("poll", 250*time.Millisecond, "polling period with -partial")
	)

	flag.Usage = func() {
		fmt.Print(usage)
		flag.PrintDefaults()
	}

	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		<-sig
		cancel()
	}()

	opts := options{
		binary:  !*ascii,
		frames:  *frames,
		rate:    *rate,
		seed:    *seed,
		partial: *partial,
		poll:    *poll,
	}
	err := run(ctx, *pname, *odir, opts)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

// options are the acquisition knobs of the tool.
type options struct {
	binary  bool
	frames  int
	rate    time.Duration
	seed    uint64
	partial bool
	poll    time.Duration
}

// target tracks the frames still wanted from one buffered channel.
type target struct {
	ch   int
	want int // 0 to acquire until interrupted
	got  int
}

func run(ctx context.Context, pname, odir string, opts options) error {
	cfg, err := profcfg.Load(pname)
	if err != nil {
		return err
	}

	simCfg, err := cfg.Sim()
	if err != nil {
		return err
	}
	if opts.frames != 0 {
		simCfg.Frames = opts.frames
	}
	simCfg.Rate = opts.rate
	if opts.seed != 0 {
		simCfg.Seed = opts.seed
	}

	prof, err := cfg.Profile()
	if err != nil {
		return err
	}
	name := prof.Name
	if name == "" {
		name = "scan"
	}

	cl, err := daq.New(daq.NewSim(simCfg))
	if err != nil {
		return fmt.Errorf("could not create client: %w", err)
	}
	defer cl.Close()

	if err := prof.Apply(cl); err != nil {
		return fmt.Errorf("could not apply profile %q: %w", name, err)
	}

	var (
		mask daq.Event
		tgts []*target
	)
	for _, pc := range prof.Channels {
		switch pc.Config.Trigger {
		case daq.TrigScanner, daq.TrigTimer:
			// paced channels deliver on their own
		default:
			continue
		}
		if cl.FrameSize(pc.Channel) == 0 {
			log.Printf("ch%02d: buffering disabled, skipping", pc.Channel)
			continue
		}
		mask |= daq.EvtData(pc.Channel)
		tgts = append(tgts, &target{ch: pc.Channel, want: simCfg.Frames})
	}
	if len(tgts) == 0 {
		return fmt.Errorf("profile %q has no buffered channels", name)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pump := make(chan error, 1)
	go func() { pump <- cl.Run(ctx) }()

	log.Printf("acquiring profile %q", name)

	var (
		pumpErr error
		pumped  bool
	)
loop:
	for {
		// harvest before waiting: completion events are not latched.
		idle := true
		for _, t := range tgts {
			if t.want > 0 && t.got >= t.want {
				continue
			}
			switch {
			case opts.partial:
				size := cl.FrameSize(t.ch)
				fr, err := cl.DataBuffer(t.ch, false)
				if err != nil {
					return err
				}
				switch {
				case size > 0 && len(fr.Data) == size:
					if err := save(odir, name, opts.binary, fr); err != nil {
						return err
					}
					t.got++
					idle = false
				case len(fr.Data) > 0:
					log.Printf("ch%02d frame %4d: %d/%d samples", t.ch, fr.No, len(fr.Data), size)
				}
			default:
				fr, err := cl.DataBuffer(t.ch, true)
				switch {
				case err == nil:
					if err := save(odir, name, opts.binary, fr); err != nil {
						return err
					}
					t.got++
					idle = false
				case errors.Is(err, daq.ErrOutOfRange):
					// nothing completed yet
				default:
					return err
				}
			}
		}

		done := true
		for _, t := range tgts {
			if t.want <= 0 || t.got < t.want {
				done = false
				break
			}
		}
		if done {
			break loop
		}
		if !idle {
			continue
		}

		select {
		case pumpErr = <-pump:
			pumped = true
			for _, t := range tgts {
				fr, err := cl.DataBuffer(t.ch, true)
				if err != nil {
					continue
				}
				if err := save(odir, name, opts.binary, fr); err != nil {
					return err
				}
				t.got++
			}
			break loop
		default:
		}

		switch {
		case opts.partial:
			select {
			case <-ctx.Done():
			case <-time.After(opts.poll):
			}
		default:
			cl.WaitForEvent(500*time.Millisecond, mask, 0)
		}
	}

	cancel()
	if !pumped {
		pumpErr = <-pump
	}
	if pumpErr != nil {
		return fmt.Errorf("could not pump deliveries: %w", pumpErr)
	}

	for _, t := range tgts {
		log.Printf("ch%02d: wrote %d frame(s)", t.ch, t.got)
	}
	return nil
}

// save stores one frame under odir, both line directions for scan
// frames.
func save(odir, name string, binary bool, fr daq.Frame) error {
	base := filepath.Join(odir, fmt.Sprintf("%s-ch%02d-%04d", name, fr.Channel, fr.No))
	hdr := scanio.Header{
		Meta:    fr.Meta,
		FrameNo: fr.No,
		Index:   fr.Index,
	}

	if !fr.Meta.Order.Scan() {
		fname, err := scanio.Write(base, binary, true, hdr, fr.Data)
		if err != nil {
			return fmt.Errorf("could not write frame %d of channel %d: %w", fr.No, fr.Channel, err)
		}
		log.Printf("ch%02d frame %4d: wrote %s", fr.Channel, fr.No, fname)
		return nil
	}

	for _, fwd := range []bool{true, false} {
		fname, err := scanio.Write(base, binary, fwd, hdr, fr.Data)
		switch {
		case err == nil:
			log.Printf("ch%02d frame %4d: wrote %s", fr.Channel, fr.No, fname)
		case errors.Is(err, meta.ErrOutOfRange):
			// single-direction order: no lines scanned the other way
		default:
			return fmt.Errorf("could not write frame %d of channel %d: %w", fr.No, fr.Channel, err)
		}
	}
	return nil
}
