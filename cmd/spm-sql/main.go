// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spm-sql inspects the acquisition profiles stored in the
// lab's condition database.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/go-spm/spmc/profdb"
	_ "github.com/go-sql-driver/mysql"
)

const (
	dbname = "spmcond"
)

func main() {
	log.SetPrefix("spm-sql: ")
	log.SetFlags(0)

	var (
		pname = flag.String("p", "", "profile to inspect (default: most recent)")
	)

	flag.Parse()

	log.Printf("profile: %q", *pname)

	db, err := profdb.Open(dbname)
	if err != nil {
		log.Fatalf("could not open SPM condition db: %+v", err)
	}
	defer db.Close()

	err = doQuery(db, *pname)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(db *profdb.DB, pname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var p profdb.Profile
	switch pname {
	case "":
		v, err := db.LastProfile(ctx)
		if err != nil {
			return fmt.Errorf("could not get last profile: %w", err)
		}
		if v.Name == "" {
			return fmt.Errorf("condition db holds no profile")
		}
		p = v
	default:
		v, err := db.Profile(ctx, pname)
		if err != nil {
			return fmt.Errorf("could not get profile %q: %w", pname, err)
		}
		p = v
	}
	log.Printf("profile: %q (id=%d, created=%v)", p.Name, p.ID, p.Created)

	chans, err := db.Channels(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("could not get channels of profile %d: %w", p.ID, err)
	}
	log.Printf("channels: %d", len(chans))
	for i, ch := range chans {
		log.Printf("row[%d]: %#v", i, ch)
	}

	sc, err := db.Scan(ctx, p.ID)
	switch {
	case err == nil:
		log.Printf("scan: %dx%d, step=(%g, %g), rot=%g", sc.NX, sc.NY, sc.StepX, sc.StepY, sc.Rot)
	case errors.Is(err, sql.ErrNoRows):
		log.Printf("scan: none")
	default:
		return fmt.Errorf("could not get scan geometry of profile %d: %w", p.ID, err)
	}

	{
		rows, err := db.QueryContext(ctx, "SELECT id, name, created FROM profiles ORDER BY created DESC")
		if err != nil {
			return fmt.Errorf("could not list profiles: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id      int64
				name    string
				created time.Time
			)
			err = rows.Scan(&id, &name, &created)
			if err != nil {
				return fmt.Errorf("could not scan profile row: %w", err)
			}
			log.Printf(">>> id=%03d, name=%q, created=%v", id, name, created)
		}
	}

	return nil
}
