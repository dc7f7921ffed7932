// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package profdb reads named acquisition profiles from the lab's
// condition database.
//
// A profile is a set of channel configurations plus, for scans, the
// geometry they were curated for. The package is read-only; profiles
// are maintained through the lab's web frontend.
package profdb // import "github.com/go-spm/spmc/profdb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to retrieve acquisition profiles
// from the SPM condition database.
type DB struct {
	db   *sql.DB
	name string // name of the profile database
}

// Open opens a connection to the profile database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("profdb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("profdb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	// parseTime: profiles carry a DATETIME creation stamp.
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("profdb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastProfile returns the most recently created profile.
func (db *DB) LastProfile(ctx context.Context) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var p Profile
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, name, created FROM profiles ORDER BY created DESC LIMIT 1",
	)
	if err != nil {
		return p, fmt.Errorf("profdb: could not query last profile: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&p.ID, &p.Name, &p.Created)
		if err != nil {
			return p, fmt.Errorf("profdb: could not get last profile: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return p, fmt.Errorf("profdb: could not scan db for last profile: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return p, fmt.Errorf("profdb: context error while retrieving last profile: %w", err)
	}

	return p, nil
}

// Profile returns the profile named name. When no such profile
// exists, the returned error wraps sql.ErrNoRows.
func (db *DB) Profile(ctx context.Context, name string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		p  Profile
		ok bool
	)
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, name, created FROM profiles WHERE name=? LIMIT 1",
		name,
	)
	if err != nil {
		return p, fmt.Errorf("profdb: could not query profile %q: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&p.ID, &p.Name, &p.Created)
		if err != nil {
			return p, fmt.Errorf("profdb: could not get profile %q: %w", name, err)
		}
		ok = true
	}

	if err := rows.Err(); err != nil {
		return p, fmt.Errorf("profdb: could not scan db for profile %q: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return p, fmt.Errorf("profdb: context error while retrieving profile %q: %w", name, err)
	}

	if !ok {
		return p, fmt.Errorf("profdb: could not find profile %q: %w", name, sql.ErrNoRows)
	}

	return p, nil
}

// Channels returns the channel configurations of the profile with the
// given id, ordered by channel number.
func (db *DB) Channels(ctx context.Context, profileID int64) ([]Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var chans []Channel
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT profile_id, channel, trig, source, average, sample_time_ns, buffer_size
FROM profile_channels
WHERE profile_id=?
ORDER BY channel
`,
		profileID,
	)
	if err != nil {
		return chans, fmt.Errorf("profdb: could not run channels query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var ch Channel
		err = rows.Scan(
			&ch.ProfileID, &ch.Channel, &ch.Trigger, &ch.Source,
			&ch.Average, &ch.SampleTime, &ch.Buffer,
		)
		if err != nil {
			return chans, fmt.Errorf("profdb: could not scan row %d for channels: %w", i, err)
		}
		i++

		chans = append(chans, ch)
	}

	if err := rows.Err(); err != nil {
		return chans, fmt.Errorf("profdb: could not scan db for channels: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return chans, fmt.Errorf("profdb: context error while retrieving channels: %w", err)
	}

	return chans, nil
}

// Scan returns the scan geometry stored with the profile with the
// given id. Profiles without one (timer or spectroscopy setups) yield
// an error wrapping sql.ErrNoRows.
func (db *DB) Scan(ctx context.Context, profileID int64) (Scan, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		sc Scan
		ok bool
	)
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT profile_id, points_x, points_y, step_x, step_y, rotation FROM scans WHERE profile_id=? LIMIT 1",
		profileID,
	)
	if err != nil {
		return sc, fmt.Errorf("profdb: could not query scan geometry: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&sc.ProfileID, &sc.NX, &sc.NY, &sc.StepX, &sc.StepY, &sc.Rot)
		if err != nil {
			return sc, fmt.Errorf("profdb: could not get scan geometry: %w", err)
		}
		ok = true
	}

	if err := rows.Err(); err != nil {
		return sc, fmt.Errorf("profdb: could not scan db for scan geometry: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return sc, fmt.Errorf("profdb: context error while retrieving scan geometry: %w", err)
	}

	if !ok {
		return sc, fmt.Errorf("profdb: no scan geometry for profile %d: %w", profileID, sql.ErrNoRows)
	}

	return sc, nil
}
