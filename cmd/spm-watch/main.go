// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spm-watch monitors a directory where acquisition tools write
// their scan files and raises an alert whenever one of these files
// stops growing, a tell-tale sign of a stalled acquisition.
package main // import "github.com/go-spm/spmc/cmd/spm-watch"

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mail "gopkg.in/gomail.v2"
)

func main() {
	var (
		dir  = flag.String("dir", ".", "directory to monitor")
		glob = flag.String("glob", "*.scb", "pattern of the files to monitor")
		freq = flag.Duration("freq", 30*time.Second, "probing interval")
	)

	flag.Parse()

	log.SetPrefix("spm-watch: ")
	log.SetFlags(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt)
	go func() {
		<-sigch
		cancel()
	}()

	run(ctx, *dir, *glob, *freq)
}

func run(ctx context.Context, dir, glob string, freq time.Duration) {
	w := newWatcher(dir, glob, freq)
	log.Printf("monitoring %q every %v...", filepath.Join(dir, glob), freq)
	w.run(ctx)
}

// after that many alerts for the same file, stop nagging people about
// it (the log keeps recording).
const maxAlerts = 5

type watcher struct {
	dir  string
	glob string
	freq time.Duration

	alerts map[string]int // number of alerts raised, per file
}

func newWatcher(dir, glob string, freq time.Duration) *watcher {
	return &watcher{
		dir:    dir,
		glob:   glob,
		freq:   freq,
		alerts: make(map[string]int),
	}
}

func (w *watcher) run(ctx context.Context) {
	tick := time.NewTicker(w.freq)
	defer tick.Stop()

	sizes := make(map[string]int64)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			cur, err := w.list()
			if err != nil {
				log.Printf("could not list files: %+v", err)
				continue
			}
			w.compare(sizes, cur)
			sizes = cur
		}
	}
}

// list returns the sizes of the monitored files, keyed by path.
func (w *watcher) list() (map[string]int64, error) {
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("could not read directory %q: %w", w.dir, err)
	}

	sizes := make(map[string]int64, len(ents))
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		ok, err := filepath.Match(w.glob, ent.Name())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", w.glob, err)
		}
		if !ok {
			continue
		}
		fi, err := ent.Info()
		if err != nil {
			return nil, fmt.Errorf("could not stat %q: %w", ent.Name(), err)
		}
		sizes[filepath.Join(w.dir, ent.Name())] = fi.Size()
	}
	return sizes, nil
}

// compare raises an alert for every file whose size did not change
// between the two probes. Files seen for the first time are given a
// grace period until the next probe.
func (w *watcher) compare(ref, chk map[string]int64) {
	for fname, size := range chk {
		old, ok := ref[fname]
		if ok && old == size {
			w.alert(fname, size)
		}
	}
}

func (w *watcher) alert(fname string, size int64) {
	log.Printf("file %q didn't change in the last %v (size=%d bytes)",
		fname, w.freq, size,
	)
	w.alerts[fname]++

	if w.alerts[fname] < maxAlerts {
		w.alertMail(fname, size)
		//w.alertSMS(fname, size)
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func (w *watcher) alertMail(fname string, size int64) {
	switch {
	case alertMailUsr == "", alertMailPwd == "",
		alertMailSrv == "", alertMailPort == 0,
		len(alertMailTgts) == 0:
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[spm-watch] stalled scan file: %q", fname))
	msg.SetBody("text/plain", fmt.Sprintf(
		"scan file %q stopped growing.\n\nsize: %d bytes\nprobe interval: %v\n",
		fname, size, w.freq,
	))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

var alertSMSEndPoint = os.Getenv("SMS_ENDPOINT")

func (w *watcher) alertSMS(fname string, size int64) {
	if alertSMSEndPoint == "" {
		log.Printf("could not send sms alert: no end-point")
		return
	}

	var msg struct {
		Action string `json:"action"`
		Data   struct {
			All bool   `json:"all"`
			Msg string `json:"message"`
		}
	}
	msg.Action = "send"
	msg.Data.All = true
	msg.Data.Msg = fmt.Sprintf("[spm-watch]: stalled file=%q size=%d freq=%v",
		fname, size, w.freq,
	)

	body := new(bytes.Buffer)
	err := json.NewEncoder(body).Encode(msg)
	if err != nil {
		log.Printf("could not encode sms to json: %+v", err)
		return
	}
	resp, err := http.Post(alertSMSEndPoint, "application/json", body)
	if err != nil {
		log.Printf("could not POST sms alert: %+v", err)
		return
	}
	defer resp.Body.Close()

	var status struct {
		Msg string `json:"status"`
	}
	err = json.NewDecoder(resp.Body).Decode(&status)
	if err != nil {
		log.Printf("could not decode sms reply: %+v", err)
		return
	}
	if status.Msg != "success" {
		log.Printf("could not send sms: status=%q", status.Msg)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
