// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package profcfg loads acquisition profiles from YAML files, the
// offline counterpart of the profdb condition database.
package profcfg // import "github.com/go-spm/spmc/internal/profcfg"

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-spm/spmc/daq"
	"github.com/go-spm/spmc/meta"
)

// Config is one acquisition profile as stored on disk.
type Config struct {
	Name     string `yaml:"name"`
	Scan     Scan   `yaml:"scan"`
	Channels []Chan `yaml:"channels"`
}

// Scan is the scan geometry of a profile. Profiles without one (timer
// or spectroscopy setups) leave it empty.
type Scan struct {
	Order   string  `yaml:"order"` // scan order name, e.g. "fb-scan"
	NX      int     `yaml:"points_x"`
	NY      int     `yaml:"points_y"`
	StepX   float64 `yaml:"step_x"`   // [m]
	StepY   float64 `yaml:"step_y"`   // [m]
	OriginX float64 `yaml:"origin_x"` // [m]
	OriginY float64 `yaml:"origin_y"` // [m]
	Rot     float64 `yaml:"rotation"` // [rad]
	Frames  int     `yaml:"frames"`   // scan frames to acquire, 0 for unbounded
}

// Chan is the acquisition setup of one data channel.
type Chan struct {
	Channel    int           `yaml:"channel"`
	Trigger    string        `yaml:"trigger"` // trigger name, e.g. "scanner"
	Source     int32         `yaml:"source"`
	Average    bool          `yaml:"average"`
	SampleTime time.Duration `yaml:"sample_time"`
	Buffer     int           `yaml:"buffer"` // buffer size, 0 for subscription mode
}

// Load reads a profile from a YAML file.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("profcfg: could not read profile file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("profcfg: could not parse profile file %q: %w", path, err)
	}
	return cfg, nil
}

// Profile converts the file form into the acquisition form consumed
// by daq.Profile.Apply.
func (cfg Config) Profile() (daq.Profile, error) {
	prof := daq.Profile{Name: cfg.Name}
	for _, ch := range cfg.Channels {
		trig, err := ParseTrigger(ch.Trigger)
		if err != nil {
			return daq.Profile{}, fmt.Errorf("profcfg: channel %d: %w", ch.Channel, err)
		}
		prof.Channels = append(prof.Channels, daq.ProfChan{
			Channel: ch.Channel,
			Config: daq.ChanConfig{
				Trigger:    trig,
				Source:     daq.Source(ch.Source),
				Average:    ch.Average,
				SampleTime: ch.SampleTime,
			},
			Buffer: ch.Buffer,
		})
	}
	return prof, nil
}

// Sim converts the scan geometry into a simulated-controller setup.
// An absent order falls back to the simulator's default.
func (cfg Config) Sim() (daq.SimConfig, error) {
	sim := daq.SimConfig{
		NX:      cfg.Scan.NX,
		NY:      cfg.Scan.NY,
		StepX:   cfg.Scan.StepX,
		StepY:   cfg.Scan.StepY,
		OriginX: cfg.Scan.OriginX,
		OriginY: cfg.Scan.OriginY,
		Rot:     cfg.Scan.Rot,
		Frames:  cfg.Scan.Frames,
	}
	if cfg.Scan.Order != "" {
		order, err := ParseOrder(cfg.Scan.Order)
		if err != nil {
			return daq.SimConfig{}, err
		}
		sim.Order = order
	}
	return sim, nil
}

// ParseOrder resolves a scan order name as printed by meta.Order.
func ParseOrder(name string) (meta.Order, error) {
	for o := meta.Linear; o <= meta.BfScan; o++ {
		if o.String() == name {
			return o, nil
		}
	}
	return 0, fmt.Errorf("profcfg: unknown scan order %q", name)
}

// ParseTrigger resolves a trigger name as printed by daq.Trigger.
func ParseTrigger(name string) (daq.Trigger, error) {
	for t := daq.TrigDisabled; t <= daq.TrigCommand; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("profcfg: unknown trigger %q", name)
}
