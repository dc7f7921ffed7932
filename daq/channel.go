// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"log"
	"math"
	"sync"

	"golang.org/x/xerrors"

	"github.com/go-spm/spmc/meta"
)

type chanState uint8

const (
	stIdle  chanState = iota // no accumulation in progress
	stAccum                  // samples accumulating toward a frame
)

// accum is a frame being assembled.
type accum struct {
	index int // stream index of the first sample
	size  int // completion size
	data  []int32
	meta  meta.Meta
}

// channel holds the delivery state of one data channel. All fields
// are guarded by mu: deliveries from the pump goroutine and
// retrievals from consumers may race.
type channel struct {
	mu sync.Mutex

	num int
	msg *log.Logger

	cfg     ChanConfig
	bufSize int // >0: buffered mode, 0: subscription mode

	state chanState
	acc   accum
	rdy   *Frame // completed frame awaiting retrieval
	next  int32  // number of the frame being assembled

	last meta.Meta // metadata of the most recent delivery

	sinks   []chan Frame
	handler func(Frame)
}

// frameSize returns the completion size of a frame delivered under m:
// the scan hardware's frame for bounded orders, the configured buffer
// size for unbounded streams.
func frameSize(m meta.Meta, bufSize int) int {
	switch {
	case m.Order.Scan():
		return m.NX * m.NY
	case m.Order == meta.Cyclic:
		return m.NX
	default:
		return bufSize
	}
}

// nextFrameNo advances a frame number, wrapping to 0 past the largest
// representable value.
func nextFrameNo(n int32) int32 {
	if n == math.MaxInt32 {
		return 0
	}
	return n + 1
}

// deliver ingests one packet, advancing the accumulation state
// machine. It returns the frames completed by this packet for
// subscription delivery and whether a frame-completed event must be
// signaled.
func (ch *channel) deliver(pkt Packet) (out []Frame, completed bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.last = pkt.Meta

	if ch.bufSize == 0 {
		if len(ch.sinks) == 0 && ch.handler == nil {
			return nil, false
		}
		fr := Frame{
			Channel: ch.num,
			No:      ch.next,
			Index:   pkt.Index,
			Data:    pkt.Data,
			Meta:    pkt.Meta,
		}
		ch.next = nextFrameNo(ch.next)
		return []Frame{fr}, true
	}

	size := frameSize(pkt.Meta, ch.bufSize)
	if size <= 0 {
		ch.msg.Printf("channel %d: dropping packet with unusable frame geometry (order=%v nx=%d ny=%d)",
			ch.num, pkt.Meta.Order, pkt.Meta.NX, pkt.Meta.NY)
		return nil, false
	}

	if ch.state == stAccum && ch.stale(pkt, size) {
		ch.msg.Printf("channel %d: dropping stale partial frame %d (%d/%d samples)",
			ch.num, ch.next, len(ch.acc.data), ch.acc.size)
		// the dropped number stays observable as a gap.
		ch.next = nextFrameNo(ch.next)
		ch.acc = accum{}
		ch.state = stIdle
	}

	if ch.state == stIdle {
		ch.acc = accum{
			index: pkt.Index,
			size:  size,
			data:  make([]int32, 0, size),
			meta:  pkt.Meta,
		}
		ch.state = stAccum
	}

	data := pkt.Data
	for len(data) > 0 {
		n := ch.acc.size - len(ch.acc.data)
		if n > len(data) {
			n = len(data)
		}
		ch.acc.data = append(ch.acc.data, data[:n]...)
		data = data[n:]
		if len(ch.acc.data) < ch.acc.size {
			break
		}

		completed = true
		fr := ch.complete()
		switch {
		case len(ch.sinks) > 0 || ch.handler != nil:
			out = append(out, fr)
		default:
			if ch.rdy != nil {
				ch.msg.Printf("channel %d: overwriting unretrieved frame %d", ch.num, ch.rdy.No)
			}
			ch.rdy = &fr
		}

		if len(data) > 0 {
			idx := 0 // in-frame indexes restart on every bounded frame
			if !pkt.Meta.Order.Bounded() {
				idx = pkt.Index + len(pkt.Data) - len(data)
			}
			ch.acc = accum{
				index: idx,
				size:  size,
				data:  make([]int32, 0, size),
				meta:  pkt.Meta,
			}
			ch.state = stAccum
		}
	}
	return out, completed
}

// stale reports whether pkt starts a new frame while a partial one is
// still assembling. For unbounded streams the metadata's NX only
// frames packets, so it may vary freely.
func (ch *channel) stale(pkt Packet, size int) bool {
	if len(ch.acc.data) == 0 {
		return false
	}
	if ch.acc.meta.Order != pkt.Meta.Order {
		return true
	}
	if !pkt.Meta.Order.Bounded() {
		return false
	}
	if m := ch.acc.meta; m.NX != pkt.Meta.NX || m.NY != pkt.Meta.NY {
		return true
	}
	if size != ch.acc.size {
		return true
	}
	return pkt.Index == 0
}

// complete finalizes the running accumulation into a frame.
func (ch *channel) complete() Frame {
	fr := Frame{
		Channel: ch.num,
		No:      ch.next,
		Index:   ch.acc.index,
		Data:    ch.acc.data,
		Meta:    ch.acc.meta,
	}
	ch.next = nextFrameNo(ch.next)
	ch.acc = accum{}
	ch.state = stIdle
	return fr
}

// take retrieves the channel's frame. With fullOnly set only a
// completed frame qualifies and its ownership moves to the caller.
// Otherwise a completed frame is consumed first and, failing that, a
// snapshot of the running accumulation is returned.
func (ch *channel) take(fullOnly bool) (Frame, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.rdy != nil {
		fr := *ch.rdy
		ch.rdy = nil
		return fr, nil
	}
	if fullOnly {
		return Frame{}, xerrors.Errorf("daq: no full frame on channel %d: %w", ch.num, ErrOutOfRange)
	}
	m := ch.acc.meta
	if ch.state == stIdle {
		m = ch.last
	}
	return Frame{
		Channel: ch.num,
		No:      ch.next,
		Index:   ch.acc.index,
		Data:    append([]int32(nil), ch.acc.data...),
		Meta:    m,
	}, nil
}

// forward hands a completed frame to the channel's consumers. Sinks
// that cannot keep up lose the frame. Every consumer receives sample
// data it owns.
func (ch *channel) forward(fr Frame) {
	ch.mu.Lock()
	sinks := ch.sinks
	handler := ch.handler
	ch.mu.Unlock()

	for i, sink := range sinks {
		out := fr
		if i > 0 || handler != nil {
			out.Data = append([]int32(nil), fr.Data...)
		}
		select {
		case sink <- out:
		default:
			ch.msg.Printf("channel %d: subscriber lagging, dropping frame %d", ch.num, fr.No)
		}
	}
	if handler != nil {
		handler(fr)
	}
}

// configure installs a new acquisition setup, resetting the channel
// to idle.
func (ch *channel) configure(cfg ChanConfig) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.cfg = cfg
	ch.dropLocked()
}

func (ch *channel) config() ChanConfig {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.cfg
}

// setBufSize switches the channel between buffered and subscription
// mode, discarding whatever was assembling.
func (ch *channel) setBufSize(size int) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if size > 0 && (len(ch.sinks) > 0 || ch.handler != nil) {
		return xerrors.Errorf("daq: channel %d has subscribers: %w", ch.num, ErrOutOfRange)
	}
	ch.bufSize = size
	ch.dropLocked()
	return nil
}

// subscribe registers a new frame sink of the given capacity.
func (ch *channel) subscribe(cap int) (<-chan Frame, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.bufSize > 0 {
		return nil, xerrors.Errorf("daq: channel %d is buffered: %w", ch.num, ErrOutOfRange)
	}
	if cap < 1 {
		cap = 1
	}
	sink := make(chan Frame, cap)
	ch.sinks = append(ch.sinks, sink)
	return sink, nil
}

// expectedSize reports the size of the channel's next full frame,
// 0 when unknown.
func (ch *channel) expectedSize() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state == stAccum {
		return ch.acc.size
	}
	return frameSize(ch.last, ch.bufSize)
}

// reset discards accumulation state, e.g. after a transport failure.
func (ch *channel) reset() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.dropLocked()
}

// dropLocked discards accumulation state. mu must be held.
func (ch *channel) dropLocked() {
	ch.acc = accum{}
	ch.rdy = nil
	ch.state = stIdle
}
