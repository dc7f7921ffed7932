// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package profdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/go-spm/spmc/daq"
	"github.com/go-spm/spmc/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open profdb: %+v", err)
	}
	defer db.Close()
}

func TestLastProfile(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open profdb: %+v", err)
	}
	defer db.Close()

	created := time.Date(2023, 8, 2, 10, 30, 0, 0, time.UTC)
	_ = fakedb.Run(context.Background(), []fakedb.Rows{
		{
			Names: []string{"id", "name", "created"},
			Values: [][]driver.Value{
				{int64(42), "afm-topo-512", created},
			},
		},
	}, func(ctx context.Context) error {
		p, err := db.LastProfile(ctx)
		if err != nil {
			t.Fatalf("could not retrieve last profile: %+v", err)
		}

		want := Profile{ID: 42, Name: "afm-topo-512", Created: created}
		if got := p; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid last profile:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})
}

func TestProfile(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open profdb: %+v", err)
	}
	defer db.Close()

	created := time.Date(2023, 8, 2, 10, 30, 0, 0, time.UTC)
	_ = fakedb.Run(context.Background(), []fakedb.Rows{
		{
			Names: []string{"id", "name", "created"},
			Values: [][]driver.Value{
				{int64(7), "stm-spectro", created},
			},
		},
	}, func(ctx context.Context) error {
		p, err := db.Profile(ctx, "stm-spectro")
		if err != nil {
			t.Fatalf("could not retrieve profile: %+v", err)
		}

		want := Profile{ID: 7, Name: "stm-spectro", Created: created}
		if got := p; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid profile:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})

	_ = fakedb.Run(context.Background(), []fakedb.Rows{
		{
			Names: []string{"id", "name", "created"},
		},
	}, func(ctx context.Context) error {
		_, err := db.Profile(ctx, "no-such-profile")
		if !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("invalid error for missing profile: %+v", err)
		}
		return nil
	})
}

func TestChannels(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open profdb: %+v", err)
	}
	defer db.Close()

	want := []Channel{
		{ProfileID: 42, Channel: 0, Trigger: 1, Source: 3, Average: true, SampleTime: 0, Buffer: 0},
		{ProfileID: 42, Channel: 1, Trigger: 1, Source: 4, Average: true, SampleTime: 0, Buffer: 0},
		{ProfileID: 42, Channel: 5, Trigger: 2, Source: 12, Average: false, SampleTime: 250000, Buffer: 8192},
	}
	_ = fakedb.Run(context.Background(), []fakedb.Rows{
		{
			Names: []string{
				"profile_id", "channel", "trig", "source",
				"average", "sample_time_ns", "buffer_size",
			},
			Values: [][]driver.Value{
				{want[0].ProfileID, want[0].Channel, want[0].Trigger, want[0].Source, want[0].Average, want[0].SampleTime, want[0].Buffer},
				{want[1].ProfileID, want[1].Channel, want[1].Trigger, want[1].Source, want[1].Average, want[1].SampleTime, want[1].Buffer},
				{want[2].ProfileID, want[2].Channel, want[2].Trigger, want[2].Source, want[2].Average, want[2].SampleTime, want[2].Buffer},
			},
		},
	}, func(ctx context.Context) error {
		chans, err := db.Channels(ctx, 42)
		if err != nil {
			t.Fatalf("could not retrieve channels: %+v", err)
		}

		if got, want := chans, want; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid channels:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})
}

func TestScanGeometry(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open profdb: %+v", err)
	}
	defer db.Close()

	want := Scan{
		ProfileID: 42,
		NX:        512, NY: 512,
		StepX: 2e-9,
		StepY: 2e-9,
		Rot:   0.5,
	}
	_ = fakedb.Run(context.Background(), []fakedb.Rows{
		{
			Names: []string{
				"profile_id", "points_x", "points_y",
				"step_x", "step_y", "rotation",
			},
			Values: [][]driver.Value{
				{want.ProfileID, want.NX, want.NY, want.StepX, want.StepY, want.Rot},
			},
		},
	}, func(ctx context.Context) error {
		sc, err := db.Scan(ctx, 42)
		if err != nil {
			t.Fatalf("could not retrieve scan geometry: %+v", err)
		}

		if got := sc; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid scan geometry:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})

	_ = fakedb.Run(context.Background(), []fakedb.Rows{
		{
			Names: []string{
				"profile_id", "points_x", "points_y",
				"step_x", "step_y", "rotation",
			},
		},
	}, func(ctx context.Context) error {
		_, err := db.Scan(ctx, 43)
		if !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("invalid error for missing geometry: %+v", err)
		}
		return nil
	})
}

func TestQueryContext(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open profdb: %+v", err)
	}
	defer db.Close()

	const queryLastID = "SELECT id FROM profiles ORDER BY created DESC LIMIT 1"

	_ = fakedb.Run(context.Background(), []fakedb.Rows{
		{
			Names: []string{"id"},
			Values: [][]driver.Value{
				{int64(42)},
			},
		},
	}, func(ctx context.Context) error {
		rows, err := db.QueryContext(context.Background(), queryLastID)
		if err != nil {
			t.Fatalf("could not execute query %q: %+v", queryLastID, err)
		}
		defer rows.Close()

		var id int64
		for rows.Next() {
			err = rows.Scan(&id)
			if err != nil {
				t.Fatalf("could not scan profile id: %+v", err)
			}
		}

		if err := rows.Err(); err != nil {
			t.Fatalf("could not scan profile id: %+v", err)
		}

		if got, want := id, int64(42); got != want {
			t.Fatalf("invalid last profile id: got=%d, want=%d", got, want)
		}
		return nil
	})
}

func TestLoad(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open profdb: %+v", err)
	}
	defer db.Close()

	created := time.Date(2023, 8, 2, 10, 30, 0, 0, time.UTC)
	_ = fakedb.Run(context.Background(), []fakedb.Rows{
		{
			Names: []string{"id", "name", "created"},
			Values: [][]driver.Value{
				{int64(42), "afm-topo-512", created},
			},
		},
		{
			Names: []string{
				"profile_id", "channel", "trig", "source",
				"average", "sample_time_ns", "buffer_size",
			},
			Values: [][]driver.Value{
				{int64(42), int32(0), uint8(1), int32(3), true, int64(0), int32(0)},
				{int64(42), int32(5), uint8(2), int32(12), false, int64(250000), int32(8192)},
			},
		},
	}, func(ctx context.Context) error {
		prof, err := db.Load(ctx, "afm-topo-512")
		if err != nil {
			t.Fatalf("could not load profile: %+v", err)
		}

		want := daq.Profile{
			Name: "afm-topo-512",
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
		if got := prof; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid profile:\ngot= %#v\nwant=%#v", got, want)
		}

		cl, err := daq.New(daq.NewSim(daq.SimConfig{}))
		if err != nil {
			t.Fatalf("could not create client: %+v", err)
		}
		if err := prof.Apply(cl); err != nil {
			t.Fatalf("could not apply profile: %+v", err)
		}

		cfg, err := cl.ChannelConfig(0)
		if err != nil {
			t.Fatalf("could not get channel config: %+v", err)
		}
		if got, want := cfg.Trigger, daq.TrigScanner; got != want {
			t.Fatalf("invalid trigger: got=%v, want=%v", got, want)
		}
		if got, want := cl.FrameSize(5), 8192; got != want {
			t.Fatalf("invalid frame size: got=%d, want=%d", got, want)
		}
		return nil
	})

	_ = fakedb.Run(context.Background(), []fakedb.Rows{
		{
			Names: []string{"id", "name", "created"},
		},
	}, func(ctx context.Context) error {
		_, err := db.Load(ctx, "no-such-profile")
		if !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("invalid error for missing profile: %+v", err)
		}
		return nil
	})
}
