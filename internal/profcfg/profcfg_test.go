// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package profcfg

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-spm/spmc/daq"
	"github.com/go-spm/spmc/meta"
)

const testProfile = `name: afm-topo-256
scan:
  order: fb-scan
  points_x: 256
  points_y: 256
  step_x: 4e-9
  step_y: 4e-9
  origin_x: 1e-6
  origin_y: 1e-6
  rotation: 0.25
  frames: 2
channels:
  - channel: 0
    trigger: scanner
    source: 3
    average: true
  - channel: 5
    trigger: timer
    source: 12
    sample_time: 250us
    buffer: 8192
`

func TestLoad(t *testing.T) {
	dir, err := os.MkdirTemp("", "spm-profcfg-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(dir)

	fname := filepath.Join(dir, "profile.yaml")
	err = os.WriteFile(fname, []byte(testProfile), 0644)
	if err != nil {
		t.Fatalf("could not write profile file: %+v", err)
	}

	cfg, err := Load(fname)
	if err != nil {
		t.Fatalf("could not load profile: %+v", err)
	}

	want := Config{
		Name: "afm-topo-256",
		Scan: Scan{
			Order: "fb-scan",
			NX:    256, NY: 256,
			StepX: 4e-9, StepY: 4e-9,
			OriginX: 1e-6, OriginY: 1e-6,
			Rot:    0.25,
			Frames: 2,
		},
		Channels: []Chan{
			{Channel: 0, Trigger: "scanner", Source: 3, Average: true},
			{Channel: 5, Trigger: "timer", Source: 12, SampleTime: 250 * time.Microsecond, Buffer: 8192},
		},
	}
	if got := cfg; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid profile config:\ngot= %#v\nwant=%#v", got, want)
	}

	prof, err := cfg.Profile()
	if err != nil {
		t.Fatalf("could not convert profile: %+v", err)
	}
	wantProf := daq.Profile{
		Name: "afm-topo-256",
		Channels: []daq.ProfChan{
			{
				Channel: 0,
				Config: daq.ChanConfig{
					Trigger: daq.TrigScanner,
					Source:  3,
					Average: true,
				},
			},
			{
				Channel: 5,
				Config: daq.ChanConfig{
					Trigger:    daq.TrigTimer,
					Source:     12,
					SampleTime: 250 * time.Microsecond,
				},
				Buffer: 8192,
			},
		},
	}
	if got := prof; !reflect.DeepEqual(got, wantProf) {
		t.Fatalf("invalid profile:\ngot= %#v\nwant=%#v", got, wantProf)
	}

	sim, err := cfg.Sim()
	if err != nil {
		t.Fatalf("could not convert scan geometry: %+v", err)
	}
	wantSim := daq.SimConfig{
		Order: meta.FbScan,
		NX:    256, NY: 256,
		StepX: 4e-9, StepY: 4e-9,
		OriginX: 1e-6, OriginY: 1e-6,
		Rot:    0.25,
		Frames: 2,
	}
	if got := sim; !reflect.DeepEqual(got, wantSim) {
		t.Fatalf("invalid sim config:\ngot= %#v\nwant=%#v", got, wantSim)
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("testdata/does-not-exist.yaml")
	if err == nil {
		t.Fatalf("expected an error for a missing file")
	}

	dir, err := os.MkdirTemp("", "spm-profcfg-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(dir)

	fname := filepath.Join(dir, "profile.yaml")
	err = os.WriteFile(fname, []byte("channels: {not: [a, list}"), 0644)
	if err != nil {
		t.Fatalf("could not write profile file: %+v", err)
	}

	_, err = Load(fname)
	if err == nil {
		t.Fatalf("expected an error for a malformed file")
	}
}

func TestParseOrder(t *testing.T) {
	for _, tc := range []struct {
		name string
		want meta.Order
		ok   bool
	}{
		{"linear", meta.Linear, true},
		{"triggered", meta.Triggered, true},
		{"cyclic", meta.Cyclic, true},
		{"ff-scan", meta.FfScan, true},
		{"fb-scan", meta.FbScan, true},
		{"bb-scan", meta.BbScan, true},
		{"bf-scan", meta.BfScan, true},
		{"", 0, false},
		{"snake", 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseOrder(tc.name)
			if (err == nil) != tc.ok {
				t.Fatalf("invalid error state: err=%+v, want ok=%v", err, tc.ok)
			}
			if err != nil {
				return
			}
			if got != tc.want {
				t.Fatalf("invalid order: got=%v, want=%v", got, tc.want)
			}
		})
	}
}

func TestParseTrigger(t *testing.T) {
	for _, tc := range []struct {
		name string
		want daq.Trigger
		ok   bool
	}{
		{"disabled", daq.TrigDisabled, true},
		{"scanner", daq.TrigScanner, true},
		{"timer", daq.TrigTimer, true},
		{"spec-0", daq.TrigSpec0, true},
		{"spec-3", daq.TrigSpec3, true},
		{"command", daq.TrigCommand, true},
		{"", 0, false},
		{"laser", 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTrigger(tc.name)
			if (err == nil) != tc.ok {
				t.Fatalf("invalid error state: err=%+v, want ok=%v", err, tc.ok)
			}
			if err != nil {
				return
			}
			if got != tc.want {
				t.Fatalf("invalid trigger: got=%v, want=%v", got, tc.want)
			}
		})
	}
}
