// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spm-boot (re)starts the SPM lab's acquisition processes and
// supervises them: when one of them fails, the others are brought
// down too.
package main // import "github.com/go-spm/spmc/cmd/spm-boot"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	cmds = []*exec.Cmd{
		exec.Command("spm-appsrv"),
		exec.Command("spm-hwd"),
		// exec.Command("spm-vidsrv"),
		exec.Command("spm-watch", "-dir", "/data/spm"),
	}
	dir = os.Getenv("SPMLOGDIR")

	doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")

	stop = make(chan os.Signal, 1)
)

func main() {
	flag.Parse()

	log.SetPrefix("spm-boot: ")
	log.SetFlags(0)

	err := run(*doMon, *doFreq, cmds, dir, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(doMon bool, freq time.Duration, cmds []*exec.Cmd, dir string, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	// clear leftovers from a previous (possibly crashed) boot.
	for _, cmd := range cmds {
		name := filepath.Base(cmd.Path)
		kill := exec.Command("killall", name)
		kill.Stderr = os.Stderr
		kill.Stdout = os.Stdout
		if err := kill.Run(); err != nil {
			log.Printf("could not kill %q: %+v", name, err)
		}
	}

	if dir == "" {
		dir = "/var/log/spm"
	}

	grp, ctx := errgroup.WithContext(context.Background())
	kill := make(chan int)

	for i := range cmds {
		p := proc{cmd: cmds[i], dir: dir, mon: doMon, freq: freq}
		grp.Go(func() error {
			return p.supervise(ctx, kill)
		})
	}

	go func() {
		<-stop
		close(kill)
	}()

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("could not boot SPM acquisition: %w", err)
	}
	return nil
}

// proc is one supervised acquisition process.
type proc struct {
	cmd  *exec.Cmd
	dir  string
	mon  bool
	freq time.Duration
}

func (p proc) name() string { return filepath.Base(p.cmd.Path) }

// supervise launches the process and waits for it to end, for the
// boot sequence to be interrupted, or for a sibling to fail. In the
// last two cases the process is torn down.
func (p proc) supervise(ctx context.Context, kill chan int) error {
	out, err := os.Create(filepath.Join(p.dir, p.name()+".log"))
	if err != nil {
		return fmt.Errorf("could not create output log file for %q: %w", p.name(), err)
	}
	defer out.Close()

	p.cmd.Stdout = out
	p.cmd.Stderr = out

	log.Printf("starting %q...", p.name())
	err = p.cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", p.name(), err)
	}

	if p.mon {
		done, err := p.monitor()
		if err != nil {
			return err
		}
		defer done()
	}

	errch := make(chan error)
	go func() { errch <- p.cmd.Wait() }()

	select {
	case <-kill:
		return p.teardown()
	case <-ctx.Done():
		// a sibling failed: bring this process down too.
		return p.teardown()
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", p.name(), err)
		}
	}
	return nil
}

func (p proc) teardown() error {
	err := p.cmd.Process.Kill()
	if err != nil {
		return fmt.Errorf("could not kill %q: %+v", p.name(), err)
	}
	return nil
}

// monitor attaches a pmon resource monitor to the running process,
// logging to <name>-pmon.log. The returned function detaches it.
func (p proc) monitor() (func(), error) {
	mon, err := pmon.Monitor(p.cmd.Process.Pid)
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring %q (pid=%d): %w", p.name(), p.cmd.Process.Pid, err)
	}
	f, err := os.Create(filepath.Join(p.dir, p.name()+"-pmon.log"))
	if err != nil {
		mon.Kill()
		return nil, fmt.Errorf("could not create pmon log file for command %q: %w", p.name(), err)
	}
	mon.W = f
	mon.Freq = p.freq

	go func() {
		log.Printf("run pmon %q...", p.name())
		if err := mon.Run(); err != nil {
			log.Printf("could not monitor %q: %+v", p.name(), err)
		}
	}()

	return func() {
		if err := mon.Kill(); err != nil {
			log.Printf("could not stop monitoring %q: %+v", p.name(), err)
		}
		f.Close()
	}, nil
}
