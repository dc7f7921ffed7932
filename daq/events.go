// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"sync"
	"time"
)

// Event is a bitmask of acquisition events.
type Event uint32

const (
	// EvtHandshake signals that the controller requests a handshake,
	// e.g. at a scripted point of a lithography path.
	EvtHandshake Event = 1 << 14

	// EvtCustom signals the arrival of a value for the parameter a
	// waiter registered interest in.
	EvtCustom Event = 1 << 15

	// EvtAllData is the mask of all per-channel frame events.
	EvtAllData Event = 1<<NumChannels - 1
)

// EvtData returns the event bit signaling a completed frame on the
// given data channel, 0 if ch is not a valid channel.
func EvtData(ch int) Event {
	if ch < 0 || ch >= NumChannels {
		return 0
	}
	return 1 << ch
}

// waiter is one blocked WaitForEvent call.
type waiter struct {
	mask   Event
	custom Param
	ch     chan Event
}

// eventHub wakes waiters when acquisition events fire. Events are not
// latched: a waiter only observes events fired while it is blocked.
type eventHub struct {
	mu      sync.Mutex
	waiters map[*waiter]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{waiters: make(map[*waiter]struct{})}
}

// signal wakes every waiter whose mask intersects evt. The EvtCustom
// bit only matches waiters registered for parameter p.
func (hub *eventHub) signal(evt Event, p Param) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for w := range hub.waiters {
		got := w.mask & evt
		if got&EvtCustom != 0 && w.custom != p {
			got &^= EvtCustom
		}
		if got == 0 {
			continue
		}
		select {
		case w.ch <- got:
		default:
		}
		delete(hub.waiters, w)
	}
}

// wait blocks until an event in mask fires or timeout elapses and
// returns the satisfied bits, 0 on timeout.
func (hub *eventHub) wait(timeout time.Duration, mask Event, custom Param) Event {
	w := &waiter{mask: mask, custom: custom, ch: make(chan Event, 1)}
	hub.mu.Lock()
	hub.waiters[w] = struct{}{}
	hub.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case evt := <-w.ch:
		return evt
	case <-timer.C:
		hub.mu.Lock()
		delete(hub.waiters, w)
		hub.mu.Unlock()
		// a signal may have slipped in before the removal.
		select {
		case evt := <-w.ch:
			return evt
		default:
			return 0
		}
	}
}
