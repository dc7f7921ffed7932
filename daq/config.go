// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"time"

	"golang.org/x/xerrors"
)

// Trigger selects the event source pacing sample production on a
// data channel.
type Trigger uint8

const (
	TrigDisabled Trigger = iota // channel produces no data
	TrigScanner                 // new sample whenever the scanner moved
	TrigTimer                   // new sample every SampleTime
	TrigSpec0                   // spectroscopy engine 0
	TrigSpec1                   // spectroscopy engine 1
	TrigSpec2                   // spectroscopy engine 2
	TrigSpec3                   // spectroscopy engine 3
	TrigCommand                 // single sample on explicit request
)

func (t Trigger) String() string {
	switch t {
	case TrigDisabled:
		return "disabled"
	case TrigScanner:
		return "scanner"
	case TrigTimer:
		return "timer"
	case TrigSpec0, TrigSpec1, TrigSpec2, TrigSpec3:
		return fmt.Sprintf("spec-%d", t-TrigSpec0)
	case TrigCommand:
		return "command"
	}
	return "invalid"
}

func (t Trigger) valid() bool { return t <= TrigCommand }

// Source selects the quantity a channel transports. The values are
// product specific (ADC inputs, feedback signals, axis positions) and
// are passed through to the controller unchanged.
type Source int32

// ChanConfig describes the acquisition setup of one data channel.
type ChanConfig struct {
	Trigger    Trigger
	Source     Source
	Average    bool          // average between triggers instead of point sampling
	SampleTime time.Duration // sample distance on timer-paced channels
}

// Validate checks the configuration for values the controller would
// reject outright.
func (cfg ChanConfig) Validate() error {
	if !cfg.Trigger.valid() {
		return xerrors.Errorf("daq: invalid trigger %d: %w", uint8(cfg.Trigger), ErrOutOfRange)
	}
	if cfg.SampleTime < 0 {
		return xerrors.Errorf("daq: invalid sample time %v: %w", cfg.SampleTime, ErrOutOfRange)
	}
	if cfg.Trigger == TrigTimer && cfg.SampleTime == 0 {
		return xerrors.Errorf("daq: timer trigger needs a sample time: %w", ErrOutOfRange)
	}
	return nil
}
