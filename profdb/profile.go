// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package profdb

import (
	"context"
	"time"

	"github.com/go-spm/spmc/daq"
)

// Profile is one named acquisition profile.
type Profile struct {
	ID      int64
	Name    string
	Created time.Time
}

// Channel is the stored configuration of one data channel of a
// profile.
type Channel struct {
	ProfileID  int64
	Channel    int32
	Trigger    uint8
	Source     int32
	Average    bool
	SampleTime int64 // ns
	Buffer     int32
}

// Scan is the scan geometry stored with a profile.
type Scan struct {
	ProfileID int64
	NX, NY    int32
	StepX     float64
	StepY     float64
	Rot       float64
}

// ProfChan converts the stored row into the acquisition form.
func (ch Channel) ProfChan() daq.ProfChan {
	return daq.ProfChan{
		Channel: int(ch.Channel),
		Config: daq.ChanConfig{
			Trigger:    daq.Trigger(ch.Trigger),
			Source:     daq.Source(ch.Source),
			Average:    ch.Average,
			SampleTime: time.Duration(ch.SampleTime),
		},
		Buffer: int(ch.Buffer),
	}
}

// Load retrieves the named profile and assembles it into the form
// consumed by daq.Profile.Apply.
func (db *DB) Load(ctx context.Context, name string) (daq.Profile, error) {
	p, err := db.Profile(ctx, name)
	if err != nil {
		return daq.Profile{}, err
	}

	chans, err := db.Channels(ctx, p.ID)
	if err != nil {
		return daq.Profile{}, err
	}

	prof := daq.Profile{Name: p.Name}
	for _, ch := range chans {
		prof.Channels = append(prof.Channels, ch.ProfChan())
	}
	return prof, nil
}
