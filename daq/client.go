// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/xerrors"
)

// Client drives the acquisition against a Transport. A Client is safe
// for concurrent use, with one restriction: the synchronous
// request/response operations must not be called from the delivery
// context (see Run).
type Client struct {
	tr  Transport
	msg *log.Logger

	hub   *eventHub
	chans [NumChannels]channel

	handshake Param // parameter whose events signal EvtHandshake, 0 for none

	pump atomic.Int64 // goroutine id of the delivery pump, 0 when not running
}

type config struct {
	msg       *log.Logger
	handshake Param
	handlers  map[int]func(Frame)
}

func newConfig() config {
	return config{
		msg:      log.New(os.Stdout, "daq: ", 0),
		handlers: make(map[int]func(Frame)),
	}
}

// Option configures a Client.
type Option func(*config)

// WithLogger sets the logger messages are sent to.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithHandshakeParam declares the parameter whose events signal a
// handshake request from the controller.
func WithHandshakeParam(p Param) Option {
	return func(cfg *config) {
		cfg.handshake = p
	}
}

// WithHandler registers an inline frame handler for a channel. The
// handler runs on the delivery goroutine: it must be quick and must
// not issue synchronous calls.
func WithHandler(ch int, fn func(Frame)) Option {
	return func(cfg *config) {
		cfg.handlers[ch] = fn
	}
}

// New returns a client for the given transport.
func New(tr Transport, opts ...Option) (*Client, error) {
	if tr == nil {
		return nil, xerrors.New("daq: nil transport")
	}
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cl := &Client{
		tr:        tr,
		msg:       cfg.msg,
		hub:       newEventHub(),
		handshake: cfg.handshake,
	}
	for i := range cl.chans {
		cl.chans[i].num = i
		cl.chans[i].msg = cl.msg
	}
	for ch, fn := range cfg.handlers {
		if ch < 0 || ch >= NumChannels {
			return nil, xerrors.Errorf("daq: invalid handler channel %d: %w", ch, ErrOutOfRange)
		}
		cl.chans[ch].handler = fn
	}
	return cl, nil
}

// Run pumps deliveries from the transport until ctx is done, the
// transport shuts down or fails. The goroutine running it is the
// delivery context: inline handlers execute on it and synchronous
// request/response calls issued from it fail with ErrWrongContext.
func (cl *Client) Run(ctx context.Context) error {
	cl.pump.Store(goid())
	defer cl.pump.Store(0)

	for {
		msg, err := cl.tr.Recv(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF),
				errors.Is(err, context.Canceled),
				errors.Is(err, context.DeadlineExceeded):
				// orderly shutdown: buffered frames stay retrievable.
				return nil
			default:
				cl.drop()
				return xerrors.Errorf("daq: could not receive from transport: %w", err)
			}
		}
		switch {
		case msg.Pkt != nil:
			cl.deliver(*msg.Pkt)
		case msg.Evt != nil:
			cl.notify(*msg.Evt)
		}
	}
}

func (cl *Client) deliver(pkt Packet) {
	if pkt.Channel < 0 || pkt.Channel >= NumChannels {
		cl.msg.Printf("dropping packet for invalid channel %d", pkt.Channel)
		return
	}
	ch := &cl.chans[pkt.Channel]
	frames, completed := ch.deliver(pkt)
	for _, fr := range frames {
		ch.forward(fr)
	}
	if completed {
		cl.hub.signal(EvtData(pkt.Channel), 0)
	}
}

func (cl *Client) notify(ev ParamEvent) {
	evt := EvtCustom
	if cl.handshake != 0 && ev.Param == cl.handshake {
		evt |= EvtHandshake
	}
	cl.hub.signal(evt, ev.Param)
}

// drop resets all channels, e.g. when the transport broke down.
func (cl *Client) drop() {
	for i := range cl.chans {
		cl.chans[i].reset()
	}
}

// ConfigureChannel applies the acquisition setup of one data channel,
// both on the controller and locally. The channel returns to idle.
func (cl *Client) ConfigureChannel(ch int, cfg ChanConfig) error {
	if ch < 0 || ch >= NumChannels {
		return xerrors.Errorf("daq: invalid channel %d: %w", ch, ErrOutOfRange)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cl.tr.ConfigureChannel(ch, cfg); err != nil {
		return xerrors.Errorf("daq: could not configure channel %d: %w", ch, err)
	}
	cl.chans[ch].configure(cfg)
	return nil
}

// ChannelConfig returns the locally known setup of a channel.
func (cl *Client) ChannelConfig(ch int) (ChanConfig, error) {
	if ch < 0 || ch >= NumChannels {
		return ChanConfig{}, xerrors.Errorf("daq: invalid channel %d: %w", ch, ErrOutOfRange)
	}
	return cl.chans[ch].config(), nil
}

// EnableBuffering switches a channel to buffered delivery with the
// given size, or back to subscription mode with size 0. On timer-paced
// channels a size below MinBufSize leaves buffering disabled; this is
// not an error. Buffered frames are retrieved with DataBuffer;
// completion is signaled through EvtData events.
func (cl *Client) EnableBuffering(ch, size int) error {
	if ch < 0 || ch >= NumChannels {
		return xerrors.Errorf("daq: invalid channel %d: %w", ch, ErrOutOfRange)
	}
	if size < 0 || size > MaxBufSize {
		return xerrors.Errorf("daq: invalid buffer size %d: %w", size, ErrOutOfRange)
	}
	c := &cl.chans[ch]
	if size > 0 && size < MinBufSize && c.config().Trigger == TrigTimer {
		cl.msg.Printf("channel %d: buffer size %d below minimum %d, buffering left disabled", ch, size, MinBufSize)
		return c.setBufSize(0)
	}
	return c.setBufSize(size)
}

// DataBuffer retrieves the buffered samples of a channel. With
// fullOnly set, only a completed frame qualifies and ErrOutOfRange is
// returned when none is ready. Otherwise a completed frame is
// consumed first and, failing that, a possibly empty snapshot of the
// accumulating frame is returned; the snapshot's frame number tells
// consecutive retrievals of the same frame apart from the next one.
//
// The returned frame's sample data is owned by the caller.
func (cl *Client) DataBuffer(ch int, fullOnly bool) (Frame, error) {
	if ch < 0 || ch >= NumChannels {
		return Frame{}, xerrors.Errorf("daq: invalid channel %d: %w", ch, ErrOutOfRange)
	}
	return cl.chans[ch].take(fullOnly)
}

// FrameSize reports the expected sample count of the channel's next
// full frame, 0 when the channel is not delivering and no buffering
// is configured.
func (cl *Client) FrameSize(ch int) int {
	if ch < 0 || ch >= NumChannels {
		return 0
	}
	return cl.chans[ch].expectedSize()
}

// Subscribe returns a sink receiving every frame the channel
// completes, with the given buffering capacity. Frames are dropped,
// with a log message, when the sink is not drained fast enough. The
// channel must not be in buffered mode. Multiple subscriptions
// compose; every sink receives sample data it owns.
func (cl *Client) Subscribe(ch, cap int) (<-chan Frame, error) {
	if ch < 0 || ch >= NumChannels {
		return nil, xerrors.Errorf("daq: invalid channel %d: %w", ch, ErrOutOfRange)
	}
	return cl.chans[ch].subscribe(cap)
}

// WaitForEvent blocks until an event in mask fires or timeout
// elapses, and returns the satisfied bits, 0 on timeout. A waiter
// interested in EvtCustom names the parameter with custom. Events are
// not latched: only events fired while the call is blocked are
// observed, so callers needing race-free completion must check state
// (e.g. DataBuffer) before waiting. The timeout is the only way the
// call unblocks without an event.
func (cl *Client) WaitForEvent(timeout time.Duration, mask Event, custom Param) Event {
	return cl.hub.wait(timeout, mask, custom)
}

// SetParam sets a controller parameter without waiting for the
// outcome. Safe from any goroutine, including the delivery context.
func (cl *Client) SetParam(p Param, idx, v int32) error {
	return cl.tr.SetParam(p, idx, v)
}

// SetParamSync sets a controller parameter and returns the value the
// server settled on, which may differ from v (clipping, quantization).
func (cl *Client) SetParamSync(p Param, idx, v int32) (int32, error) {
	if err := cl.checkCtx("set-param-sync"); err != nil {
		return 0, err
	}
	return cl.tr.SetParamSync(p, idx, v)
}

// GetParam reads a controller parameter, waiting for the value.
func (cl *Client) GetParam(p Param, idx int32) (int32, error) {
	if err := cl.checkCtx("get-param"); err != nil {
		return 0, err
	}
	return cl.tr.GetParam(p, idx)
}

// GetParamAsync requests a parameter value without waiting; the value
// arrives as a ParamEvent and wakes EvtCustom waiters. Safe from any
// goroutine, including the delivery context.
func (cl *Client) GetParamAsync(p Param, idx int32) error {
	return cl.tr.GetParamAsync(p, idx)
}

// SendProfile asks the server to load a named settings profile.
func (cl *Client) SendProfile(name string) error {
	if err := cl.checkCtx("send-profile"); err != nil {
		return err
	}
	return cl.tr.SendProfile(name)
}

// Close closes the underlying transport.
func (cl *Client) Close() error {
	return cl.tr.Close()
}

func (cl *Client) checkCtx(op string) error {
	if cl.pump.Load() == goid() {
		return xerrors.Errorf("daq: %s issued from the delivery context: %w", op, ErrWrongContext)
	}
	return nil
}

// goid returns the id of the calling goroutine, as printed by runtime
// stack traces.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return -1
	}
	id, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return -1
	}
	return id
}
