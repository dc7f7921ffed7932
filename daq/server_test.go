// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/go-daq/tdaq"

	"github.com/go-spm/spmc/meta"
	"github.com/go-spm/spmc/scanio"
)

func TestServerCollect(t *testing.T) {
	m := meta.Meta{
		Order:   meta.FfScan,
		NX:      4,
		NY:      2,
		StepX:   1e-9,
		StepY:   1e-9,
		UnitXY:  meta.Unit{Dim: meta.DimMeter},
		StepVal: 0.001,
		UnitVal: meta.Unit{Dim: meta.DimVolt},
	}

	srv := NewServer(NewSim(SimConfig{}), Profile{})

	// unbuffered: a send returns once collect picked the frame up.
	sink := make(chan Frame)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- srv.collect(ctx, sink) }()

	fr := Frame{
		Channel: 0,
		No:      1,
		Index:   0,
		Data:    []int32{1, 2, 3, 4, 5, 6, 7, 8},
		Meta:    m,
	}

	srv.started.Store(true)
	sink <- fr

	select {
	case raw := <-srv.data:
		var (
			hdr  scanio.Header
			data []int32
		)
		err := scanio.NewDecoder(bytes.NewReader(raw)).Decode(&hdr, &data)
		if err != nil {
			t.Fatalf("could not decode published frame: %+v", err)
		}
		if got, want := hdr.FrameNo, fr.No; got != want {
			t.Fatalf("invalid frame number: got=%d, want=%d", got, want)
		}
		if got, want := hdr.Dir, scanio.Both; got != want {
			t.Fatalf("invalid direction: got=%v, want=%v", got, want)
		}
		if !reflect.DeepEqual(hdr.Meta, m) {
			t.Fatalf("invalid frame header:\ngot= %#v\nwant=%#v", hdr.Meta, m)
		}
		if !reflect.DeepEqual(data, fr.Data) {
			t.Fatalf("invalid frame data:\ngot= %v\nwant=%v", data, fr.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for a published frame")
	}

	// frames arriving while the run is stopped are dropped.
	srv.started.Store(false)
	fr.No = 2
	sink <- fr

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("could not collect frames: %+v", err)
	}
	if n := len(srv.data); n != 0 {
		t.Fatalf("stopped run published %d frame(s)", n)
	}
}

func TestServerOutput(t *testing.T) {
	srv := NewServer(NewSim(SimConfig{}), Profile{})

	payload := []byte("frame-payload")
	srv.data <- payload

	var dst tdaq.Frame
	err := srv.Output(tdaq.Context{Ctx: context.Background()}, &dst)
	if err != nil {
		t.Fatalf("could not fetch output frame: %+v", err)
	}
	if !bytes.Equal(dst.Body, payload) {
		t.Fatalf("invalid output frame: got=%q, want=%q", dst.Body, payload)
	}

	// a canceled run drains the port with empty frames.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dst.Body = []byte("stale")
	err = srv.Output(tdaq.Context{Ctx: ctx}, &dst)
	if err != nil {
		t.Fatalf("could not drain output port: %+v", err)
	}
	if dst.Body != nil {
		t.Fatalf("invalid drained frame: got=%q, want=nil", dst.Body)
	}
}
