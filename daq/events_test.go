// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"testing"
	"time"
)

func TestEvtData(t *testing.T) {
	for _, tc := range []struct {
		ch   int
		want Event
	}{
		{ch: -1, want: 0},
		{ch: 0, want: 0x1},
		{ch: 1, want: 0x2},
		{ch: 13, want: 0x2000},
		{ch: NumChannels, want: 0},
	} {
		if got := EvtData(tc.ch); got != tc.want {
			t.Errorf("channel %d: invalid event bit: got=%#x, want=%#x", tc.ch, got, tc.want)
		}
	}

	if got, want := EvtAllData, Event(0x3fff); got != want {
		t.Fatalf("invalid all-data mask: got=%#x, want=%#x", got, want)
	}
}

func TestEventHubNoLatch(t *testing.T) {
	hub := newEventHub()

	// an event fired with nobody blocked is not latched.
	hub.signal(EvtData(3), 0)

	if got := hub.wait(50*time.Millisecond, EvtData(3), 0); got != 0 {
		t.Fatalf("observed an event fired before the wait: got=%#x", got)
	}
}

func TestEventHubMask(t *testing.T) {
	hub := newEventHub()

	got := make(chan Event, 1)
	go func() { got <- hub.wait(5*time.Second, EvtData(1)|EvtData(2), 0) }()

	// wait for the waiter to block.
	for {
		hub.mu.Lock()
		n := len(hub.waiters)
		hub.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	hub.signal(EvtData(0), 0) // not in the mask
	hub.signal(EvtData(2)|EvtData(5), 0)

	if g, want := <-got, EvtData(2); g != want {
		t.Fatalf("invalid event bits: got=%#x, want=%#x", g, want)
	}

	// the waiter is gone after its wake-up.
	hub.mu.Lock()
	n := len(hub.waiters)
	hub.mu.Unlock()
	if n != 0 {
		t.Fatalf("stale waiters: got=%d, want=0", n)
	}
}
