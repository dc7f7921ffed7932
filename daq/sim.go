// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"golang.org/x/exp/rand"
	"golang.org/x/xerrors"

	"github.com/go-spm/spmc/meta"
)

const (
	simZMax     = 2e-9  // [m] peak height of the synthetic surface
	simStepVal  = 1e-12 // [m] physical size of one LSB on height channels
	simVoltLSB  = 20.0 / (1 << 16)
	simChunkLen = 64 // samples per delivery on timer-paced channels
)

// SimConfig describes the synthetic controller behind a Sim.
type SimConfig struct {
	Order            meta.Order // scan order, FbScan when not a scan order
	NX, NY           int
	StepX, StepY     float64 // [m]
	OriginX, OriginY float64 // [m]
	Rot              float64 // [rad]

	Frames int           // scan frames per scanner channel, 0 for unbounded
	Rate   time.Duration // pacing between deliveries, 0 for none
	Seed   uint64
}

// Sim is a Transport serving synthetic data in-process, standing in
// for a controller reachable over the wire. Scanner-paced channels
// sample a seeded topography of gaussian bumps over the configured
// scan grid, one packet per scan line; timer-paced channels deliver a
// noisy mains-like sine. Channels on other triggers stay silent.
// Parameters are a plain store: sets are echoed as parameter events,
// asynchronous gets answer with the stored value.
type Sim struct {
	cfg SimConfig

	mu      sync.Mutex
	rnd     *rand.Rand
	closed  bool
	chans   [NumChannels]simChan
	params  map[simKey]int32
	events  []ParamEvent
	profile string
	bumps   []bump
	cursor  int
}

type simKey struct {
	p   Param
	idx int32
}

type simChan struct {
	active bool
	cfg    ChanConfig
	line   int // next scan line (scanner pacing)
	frames int // completed scan frames
	tick   int // sample clock (timer pacing)
	done   bool
}

type bump struct {
	x, y, sigma, height float64
}

// NewSim returns a simulated transport. Zero fields of cfg get
// workable defaults (128x128 grid, 10 nm steps).
func NewSim(cfg SimConfig) *Sim {
	if !cfg.Order.Scan() {
		cfg.Order = meta.FbScan
	}
	if cfg.NX <= 0 {
		cfg.NX = 128
	}
	if cfg.NY <= 0 {
		cfg.NY = 128
	}
	if cfg.StepX <= 0 {
		cfg.StepX = 10e-9
	}
	if cfg.StepY <= 0 {
		cfg.StepY = cfg.StepX
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1234
	}

	sim := &Sim{
		cfg:    cfg,
		rnd:    rand.New(rand.NewSource(cfg.Seed)),
		params: make(map[simKey]int32),
	}
	w := float64(cfg.NX) * cfg.StepX
	h := float64(cfg.NY) * cfg.StepY
	for i := 0; i < 12; i++ {
		sim.bumps = append(sim.bumps, bump{
			x:      cfg.OriginX + sim.rnd.Float64()*w,
			y:      cfg.OriginY + sim.rnd.Float64()*h,
			sigma:  (0.02 + 0.08*sim.rnd.Float64()) * w,
			height: (0.2 + 0.8*sim.rnd.Float64()) * simZMax,
		})
	}
	return sim
}

// height samples the synthetic topography at a physical position.
func (sim *Sim) height(x, y float64) float64 {
	var z float64
	for _, b := range sim.bumps {
		dx := (x - b.x) / b.sigma
		dy := (y - b.y) / b.sigma
		z += b.height * math.Exp(-0.5*(dx*dx+dy*dy))
	}
	return z
}

func (sim *Sim) scanMeta() meta.Meta {
	return meta.Meta{
		Order:   sim.cfg.Order,
		NX:      sim.cfg.NX,
		NY:      sim.cfg.NY,
		StepX:   sim.cfg.StepX,
		StepY:   sim.cfg.StepY,
		OriginX: sim.cfg.OriginX,
		OriginY: sim.cfg.OriginY,
		Rot:     sim.cfg.Rot,
		UnitXY:  meta.Unit{Dim: meta.DimMeter},
		StepVal: simStepVal,
		UnitVal: meta.Unit{Dim: meta.DimMeter},
	}
}

func timerMeta(cfg ChanConfig, n int) meta.Meta {
	return meta.Meta{
		Order:   meta.Linear,
		NX:      n,
		StepX:   cfg.SampleTime.Seconds(),
		UnitXY:  meta.Unit{Dim: meta.DimSecond},
		StepVal: simVoltLSB,
		UnitVal: meta.Unit{Dim: meta.DimVolt},
	}
}

// scanLine produces the packet for the next scan line of a channel.
// mu must be held.
func (sim *Sim) scanLine(chn int, sc *simChan) Packet {
	m := sim.scanMeta()
	base := sc.line * m.NX
	data := make([]int32, m.NX)
	for i := range data {
		x, y, _ := m.Coord2(base + i)
		z := sim.height(x, y) + 0.01*simZMax*sim.rnd.NormFloat64()
		data[i] = int32(math.Round(z / simStepVal))
	}

	sc.line++
	if sc.line == m.NY {
		sc.line = 0
		sc.frames++
		if sim.cfg.Frames > 0 && sc.frames >= sim.cfg.Frames {
			sc.done = true
		}
	}
	return Packet{Channel: chn, Index: base, Data: data, Meta: m}
}

// timerChunk produces the next run of samples of a timer-paced
// channel. mu must be held.
func (sim *Sim) timerChunk(chn int, sc *simChan) Packet {
	data := make([]int32, simChunkLen)
	dt := sc.cfg.SampleTime.Seconds()
	for i := range data {
		t := float64(sc.tick+i) * dt
		v := 3.0*math.Sin(2*math.Pi*50*t) + 0.02*sim.rnd.NormFloat64()
		data[i] = int32(math.Round(v / simVoltLSB))
	}
	pkt := Packet{Channel: chn, Index: sc.tick, Data: data, Meta: timerMeta(sc.cfg, simChunkLen)}
	sc.tick += simChunkLen
	return pkt
}

// ConfigureChannel implements Transport.
func (sim *Sim) ConfigureChannel(ch int, cfg ChanConfig) error {
	if ch < 0 || ch >= NumChannels {
		return xerrors.Errorf("daq: invalid channel %d: %w", ch, ErrOutOfRange)
	}
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.closed {
		return xerrors.Errorf("daq: sim transport is closed: %w", ErrServerLost)
	}
	sim.chans[ch] = simChan{
		active: cfg.Trigger == TrigScanner || cfg.Trigger == TrigTimer,
		cfg:    cfg,
	}
	return nil
}

// SetParam implements Transport. The new value is echoed back as a
// parameter event.
func (sim *Sim) SetParam(p Param, idx, v int32) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.closed {
		return xerrors.Errorf("daq: sim transport is closed: %w", ErrServerLost)
	}
	sim.params[simKey{p, idx}] = v
	sim.events = append(sim.events, ParamEvent{Param: p, Index: idx, Value: v})
	return nil
}

// SetParamSync implements Transport.
func (sim *Sim) SetParamSync(p Param, idx, v int32) (int32, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.closed {
		return 0, xerrors.Errorf("daq: sim transport is closed: %w", ErrServerLost)
	}
	sim.params[simKey{p, idx}] = v
	return v, nil
}

// GetParam implements Transport. Unset parameters read as 0.
func (sim *Sim) GetParam(p Param, idx int32) (int32, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.closed {
		return 0, xerrors.Errorf("daq: sim transport is closed: %w", ErrServerLost)
	}
	return sim.params[simKey{p, idx}], nil
}

// GetParamAsync implements Transport.
func (sim *Sim) GetParamAsync(p Param, idx int32) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.closed {
		return xerrors.Errorf("daq: sim transport is closed: %w", ErrServerLost)
	}
	sim.events = append(sim.events, ParamEvent{Param: p, Index: idx, Value: sim.params[simKey{p, idx}]})
	return nil
}

// SendProfile implements Transport.
func (sim *Sim) SendProfile(name string) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.closed {
		return xerrors.Errorf("daq: sim transport is closed: %w", ErrServerLost)
	}
	sim.profile = name
	return nil
}

// ProfileName returns the profile last loaded with SendProfile.
func (sim *Sim) ProfileName() string {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.profile
}

// Recv implements Transport. Once every scanner-paced channel has
// produced its frame budget and no timer-paced channel is active,
// Recv reports io.EOF.
func (sim *Sim) Recv(ctx context.Context) (Msg, error) {
	for {
		msg, ok, err := sim.poll()
		if err != nil {
			return Msg{}, err
		}
		if ok {
			if sim.cfg.Rate > 0 {
				select {
				case <-ctx.Done():
					return Msg{}, ctx.Err()
				case <-time.After(sim.cfg.Rate):
				}
			}
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return Msg{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// poll produces the next delivery, round-robin over the active
// channels. Parameter events take precedence over data.
func (sim *Sim) poll() (Msg, bool, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	if sim.closed {
		return Msg{}, false, io.EOF
	}
	if len(sim.events) > 0 {
		ev := sim.events[0]
		sim.events = sim.events[1:]
		return Msg{Evt: &ev}, true, nil
	}

	var active, exhausted int
	for off := 0; off < NumChannels; off++ {
		i := (sim.cursor + off) % NumChannels
		sc := &sim.chans[i]
		if !sc.active {
			continue
		}
		active++
		if sc.done {
			exhausted++
			continue
		}
		var pkt Packet
		switch sc.cfg.Trigger {
		case TrigScanner:
			pkt = sim.scanLine(i, sc)
		case TrigTimer:
			pkt = sim.timerChunk(i, sc)
		default:
			continue
		}
		sim.cursor = i + 1
		return Msg{Pkt: &pkt}, true, nil
	}
	if active > 0 && active == exhausted {
		return Msg{}, false, io.EOF
	}
	return Msg{}, false, nil
}

// Close implements Transport.
func (sim *Sim) Close() error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.closed = true
	return nil
}

var _ Transport = (*Sim)(nil)
