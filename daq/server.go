// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-daq/tdaq"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/go-spm/spmc/scanio"
)

// Server exposes an acquisition transport as a TDAQ process. The
// profile's channels are configured and subscribed on /config, the
// client pump and the frame collectors run under the TDAQ run
// handler, and completed frames are published on an output port as
// scan-binary payloads while the run is started.
type Server struct {
	tr   Transport
	prof Profile

	mu    sync.Mutex
	cl    *Client
	sinks []<-chan Frame

	data    chan []byte
	n       int
	started atomic.Bool
}

// NewServer returns a TDAQ server publishing the frames of the
// profile's channels.
func NewServer(tr Transport, prof Profile) *Server {
	return &Server{
		tr:   tr,
		prof: prof,
		data: make(chan []byte, 64),
	}
}

// Client returns the acquisition client, nil before /config.
func (srv *Server) Client() *Client {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.cl
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.cl != nil {
		return nil
	}

	cl, err := New(srv.tr)
	if err != nil {
		ctx.Msg.Errorf("could not create acquisition client: %+v", err)
		return xerrors.Errorf("could not create acquisition client: %w", err)
	}
	for _, pc := range srv.prof.Channels {
		err := cl.ConfigureChannel(pc.Channel, pc.Config)
		if err != nil {
			ctx.Msg.Errorf("could not configure channel %d: %+v", pc.Channel, err)
			return xerrors.Errorf("could not configure channel %d: %w", pc.Channel, err)
		}
		// the output port is the buffer: frames flow as subscriptions.
		sink, err := cl.Subscribe(pc.Channel, 64)
		if err != nil {
			ctx.Msg.Errorf("could not subscribe to channel %d: %+v", pc.Channel, err)
			return xerrors.Errorf("could not subscribe to channel %d: %w", pc.Channel, err)
		}
		srv.sinks = append(srv.sinks, sink)
		ctx.Msg.Infof("channel %d: trigger=%v source=%d", pc.Channel, pc.Config.Trigger, pc.Config.Source)
	}
	srv.cl = cl
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.n = 0
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.n = 0
	srv.started.Store(false)
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	srv.started.Store(true)
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.started.Store(false)
	srv.mu.Lock()
	n := srv.n
	srv.mu.Unlock()
	ctx.Msg.Debugf("received /stop command... -> frames=%d", n)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return srv.tr.Close()
}

// OnProfile loads a named settings profile on the controller.
func (srv *Server) OnProfile(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
	name := dec.ReadStr()

	cl := srv.Client()
	if cl == nil {
		return xerrors.New("server not configured")
	}
	err := cl.SendProfile(name)
	if err != nil {
		return xerrors.Errorf("could not send profile %q: %w", name, err)
	}
	ctx.Msg.Infof("loaded profile %q", name)
	return nil
}

// Output publishes the next collected frame payload.
func (srv *Server) Output(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

// Loop drives the acquisition for the lifetime of the TDAQ process.
func (srv *Server) Loop(ctx tdaq.Context) error {
	for srv.Client() == nil {
		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}

	srv.mu.Lock()
	cl := srv.cl
	sinks := srv.sinks
	srv.mu.Unlock()

	grp, gctx := errgroup.WithContext(ctx.Ctx)
	grp.Go(func() error {
		return cl.Run(gctx)
	})
	for _, sink := range sinks {
		sink := sink
		grp.Go(func() error {
			return srv.collect(gctx, sink)
		})
	}
	return grp.Wait()
}

// collect encodes completed frames and queues them for the output
// port. Frames arriving while the run is stopped, or while the port
// is saturated, are dropped.
func (srv *Server) collect(ctx context.Context, sink <-chan Frame) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fr := <-sink:
			if !srv.started.Load() {
				continue
			}
			buf := new(bytes.Buffer)
			err := scanio.NewEncoder(buf).Encode(scanio.Header{
				Meta:    fr.Meta,
				FrameNo: fr.No,
				Index:   fr.Index,
				Dir:     scanio.Both,
			}, fr.Data)
			if err != nil {
				return xerrors.Errorf("daq: could not encode frame %d of channel %d: %w", fr.No, fr.Channel, err)
			}
			select {
			case srv.data <- buf.Bytes():
				srv.mu.Lock()
				srv.n++
				srv.mu.Unlock()
			default:
			}
		}
	}
}
