// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq acquires sample frames from a scanning-probe-microscope
// controller.
//
// A Client drives the acquisition against a Transport, the link to
// the controller's application server. Exactly one goroutine, the one
// running Client.Run, pumps deliveries from the transport into
// per-channel frame buffers; consumers retrieve completed or partial
// frames with Client.DataBuffer, subscribe to owned frames with
// Client.Subscribe, or block on acquisition events with
// Client.WaitForEvent.
package daq // import "github.com/go-spm/spmc/daq"

import (
	"context"
	"errors"

	"github.com/go-spm/spmc/meta"
)

const (
	// NumChannels is the number of data channels of the controller.
	NumChannels = 14

	// MinBufSize is the smallest buffer size eligible for buffering on
	// timer-paced channels; smaller sizes leave buffering disabled to
	// bound the completion-event rate.
	MinBufSize = 128

	// MaxBufSize is the largest configurable buffer size.
	MaxBufSize = 1 << 20
)

var (
	// ErrOutOfRange is returned for an invalid channel index or buffer
	// size, and by full-only retrieval when no frame is ready.
	ErrOutOfRange = errors.New("daq: out of range")

	// ErrWrongContext is returned when a synchronous request/response
	// operation is issued from the delivery context, where it could
	// never complete.
	ErrWrongContext = errors.New("daq: synchronous call from delivery context")

	// ErrTimeout reports that the transport gave up waiting for the
	// server. Transports return it as-is or wrapped.
	ErrTimeout = errors.New("daq: request timed out")

	// ErrServerLost reports that the connection to the application
	// server broke down.
	ErrServerLost = errors.New("daq: connection to server lost")
)

// Param addresses a controller parameter. The address values and
// their meaning are product specific; together with a subindex a
// Param selects one scalar value in the controller.
type Param uint32

// Packet is one raw delivery from the controller: a run of samples of
// one channel together with the metadata snapshot they were produced
// under. Index is the stream index of the first sample; it restarts
// at 0 on the first sample of every new scan frame and may be reset
// by the controller for unbounded streams.
type Packet struct {
	Channel int
	Index   int
	Data    []int32
	Meta    meta.Meta
}

// ParamEvent reports a parameter value pushed by the controller,
// either unsolicited or in answer to an asynchronous get.
type ParamEvent struct {
	Param Param
	Index int32
	Value int32
}

// Msg is one message from the transport's delivery stream: either a
// data packet or a parameter event.
type Msg struct {
	Pkt *Packet
	Evt *ParamEvent
}

// Frame is one retrievable unit of samples: a frame number, the
// stream index of the first sample, the raw samples and the metadata
// they belong to. Data is owned by the receiver; the acquisition
// never aliases it afterwards.
type Frame struct {
	Channel int
	No      int32
	Index   int
	Data    []int32
	Meta    meta.Meta
}

// Transport is the link to the controller's application server. The
// wire protocol behind it is not this package's concern; Sim
// implements the interface in-process.
//
// Recv blocks until the next delivery and is driven by exactly one
// goroutine (Client.Run). Buffers handed out through Recv are owned
// by the receiver. Recv returns io.EOF on orderly shutdown. Transport
// failures are reported as (or wrapped around) ErrTimeout and
// ErrServerLost.
type Transport interface {
	ConfigureChannel(ch int, cfg ChanConfig) error

	SetParam(p Param, idx, v int32) error               // fire and forget
	SetParamSync(p Param, idx, v int32) (int32, error)  // returns the value the server settled on
	GetParam(p Param, idx int32) (int32, error)         // waits for the value
	GetParamAsync(p Param, idx int32) error             // value arrives as a ParamEvent

	SendProfile(name string) error

	Recv(ctx context.Context) (Msg, error)
	Close() error
}

// Profile names a set of channel configurations applied together,
// typically loaded from the condition database or a profile file.
type Profile struct {
	Name     string
	Channels []ProfChan
}

// ProfChan is the acquisition setup of one channel inside a Profile.
type ProfChan struct {
	Channel int
	Config  ChanConfig
	Buffer  int // buffer size, 0 for subscription mode
}

// Apply configures all channels of the profile on the client.
func (p Profile) Apply(cl *Client) error {
	for _, pc := range p.Channels {
		if err := cl.ConfigureChannel(pc.Channel, pc.Config); err != nil {
			return err
		}
		if err := cl.EnableBuffering(pc.Channel, pc.Buffer); err != nil {
			return err
		}
	}
	return nil
}
