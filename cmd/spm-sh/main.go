// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spm-sh is an interactive shell to poke at an SPM controller
// (the built-in simulated one, for now): read and write parameters,
// configure channels and inspect the frames they deliver.
//
// Usage: spm-sh [OPTIONS]
//
// Example:
//
//  $> spm-sh -p profile.yaml
//  spm> get 0x30
//  0x30[0] = 0
//  spm> set 0x30 0 250
//  spm> frame 0
//  ch00 frame 0: 512/16384 samples (fb-scan)
//  spm> quit
package main // import "github.com/go-spm/spmc/cmd/spm-sh"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/go-spm/spmc/daq"
	"github.com/go-spm/spmc/internal/profcfg"
)

const usage = `spm-sh is an interactive shell to poke at an SPM controller.

Usage: spm-sh [OPTIONS]

Options:
`

const cmds = `commands:
 get <param> [idx]                  read a controller parameter
 set <param> <idx> <val>            write a parameter, fire and forget
 setw <param> <idx> <val>           write a parameter, wait for the settled value
 config <ch> <trigger> <src> [dt]   configure a channel (trigger: disabled,
                                    scanner, timer, spec-0..3, command)
 buffer <ch> <size>                 switch a channel to buffered delivery
 frame <ch>                         retrieve the channel's frame or snapshot
 wait <timeout> <ch>                wait for a frame completion on a channel
 load <file>                        apply an acquisition profile from YAML
 profile <name>                     ask the server to load a named profile
 help                               this help
 quit                               leave the shell
`

func main() {
	log.SetPrefix("spm-sh: ")
	log.SetFlags(0)

	var (
		pname = flag.String("p", "", "acquisition profile to apply at startup")
		seed  = flag.Uint64("seed", 0, "seed of the simulated controller (0 for the built-in default)")
	)

	flag.Usage = func() {
		fmt.Print(usage)
		flag.PrintDefaults()
	}

	flag.Parse()

	err := xmain(*pname, *seed)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func xmain(pname string, seed uint64) error {
	var (
		simCfg daq.SimConfig
		prof   daq.Profile
	)
	if pname != "" {
		cfg, err := profcfg.Load(pname)
		if err != nil {
			return err
		}
		simCfg, err = cfg.Sim()
		if err != nil {
			return err
		}
		prof, err = cfg.Profile()
		if err != nil {
			return err
		}
	}
	if seed != 0 {
		simCfg.Seed = seed
	}

	cl, err := daq.New(daq.NewSim(simCfg))
	if err != nil {
		return fmt.Errorf("could not create client: %w", err)
	}
	defer cl.Close()

	if len(prof.Channels) > 0 {
		if err := prof.Apply(cl); err != nil {
			return fmt.Errorf("could not apply profile %q: %w", prof.Name, err)
		}
		log.Printf("applied profile %q", prof.Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cl.Run(ctx) }()

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	hist := historyFile()
	if f, err := os.Open(hist); err == nil {
		term.ReadHistory(f)
		f.Close()
	}

loop:
	for {
		line, err := term.Prompt("spm> ")
		switch {
		case err == io.EOF:
			fmt.Println()
			break loop
		case err == liner.ErrPromptAborted:
			continue
		case err != nil:
			return fmt.Errorf("could not read line: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := execCmd(cl, line, os.Stdout)
		if err != nil {
			log.Printf("%+v", err)
		}
		if quit {
			break loop
		}
	}

	if f, err := os.Create(hist); err == nil {
		term.WriteHistory(f)
		f.Close()
	}

	cancel()
	return <-done
}

func historyFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".spm-sh_history")
}

// execCmd runs one shell command against the client, printing results
// to w. It reports whether the shell should exit.
func execCmd(cl *daq.Client, line string, w io.Writer) (bool, error) {
	toks := strings.Fields(line)
	cmd, args := toks[0], toks[1:]

	switch cmd {
	case "quit", "exit":
		return true, nil

	case "help":
		fmt.Fprint(w, cmds)

	case "get":
		if len(args) < 1 || len(args) > 2 {
			return false, fmt.Errorf("usage: get <param> [idx]")
		}
		p, err := parseParam(args[0])
		if err != nil {
			return false, err
		}
		var idx int32
		if len(args) == 2 {
			idx, err = parseI32(args[1])
			if err != nil {
				return false, err
			}
		}
		v, err := cl.GetParam(p, idx)
		if err != nil {
			return false, fmt.Errorf("could not get %s[%d]: %w", args[0], idx, err)
		}
		fmt.Fprintf(w, "%s[%d] = %d\n", args[0], idx, v)

	case "set", "setw":
		if len(args) != 3 {
			return false, fmt.Errorf("usage: %s <param> <idx> <val>", cmd)
		}
		p, err := parseParam(args[0])
		if err != nil {
			return false, err
		}
		idx, err := parseI32(args[1])
		if err != nil {
			return false, err
		}
		v, err := parseI32(args[2])
		if err != nil {
			return false, err
		}
		switch cmd {
		case "set":
			err = cl.SetParam(p, idx, v)
			if err != nil {
				return false, fmt.Errorf("could not set %s[%d]: %w", args[0], idx, err)
			}
		default:
			v, err = cl.SetParamSync(p, idx, v)
			if err != nil {
				return false, fmt.Errorf("could not set %s[%d]: %w", args[0], idx, err)
			}
			fmt.Fprintf(w, "%s[%d] = %d\n", args[0], idx, v)
		}

	case "config":
		if len(args) < 3 || len(args) > 4 {
			return false, fmt.Errorf("usage: config <ch> <trigger> <src> [dt]")
		}
		ch, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("invalid channel %q: %w", args[0], err)
		}
		trig, err := profcfg.ParseTrigger(args[1])
		if err != nil {
			return false, err
		}
		src, err := parseI32(args[2])
		if err != nil {
			return false, err
		}
		cfg := daq.ChanConfig{Trigger: trig, Source: daq.Source(src)}
		if len(args) == 4 {
			cfg.SampleTime, err = time.ParseDuration(args[3])
			if err != nil {
				return false, fmt.Errorf("invalid sample time %q: %w", args[3], err)
			}
		}
		err = cl.ConfigureChannel(ch, cfg)
		if err != nil {
			return false, fmt.Errorf("could not configure channel %d: %w", ch, err)
		}

	case "buffer":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: buffer <ch> <size>")
		}
		ch, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("invalid channel %q: %w", args[0], err)
		}
		size, err := strconv.Atoi(args[1])
		if err != nil {
			return false, fmt.Errorf("invalid buffer size %q: %w", args[1], err)
		}
		err = cl.EnableBuffering(ch, size)
		if err != nil {
			return false, fmt.Errorf("could not enable buffering on channel %d: %w", ch, err)
		}

	case "frame":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: frame <ch>")
		}
		ch, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("invalid channel %q: %w", args[0], err)
		}
		size := cl.FrameSize(ch)
		fr, err := cl.DataBuffer(ch, false)
		if err != nil {
			return false, fmt.Errorf("could not retrieve frame of channel %d: %w", ch, err)
		}
		fmt.Fprintf(w, "ch%02d frame %d: %d/%d samples (%v)\n",
			fr.Channel, fr.No, len(fr.Data), size, fr.Meta.Order)

	case "wait":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: wait <timeout> <ch>")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return false, fmt.Errorf("invalid timeout %q: %w", args[0], err)
		}
		ch, err := strconv.Atoi(args[1])
		if err != nil {
			return false, fmt.Errorf("invalid channel %q: %w", args[1], err)
		}
		evt := cl.WaitForEvent(d, daq.EvtData(ch), 0)
		switch evt {
		case 0:
			fmt.Fprintf(w, "timeout\n")
		default:
			fmt.Fprintf(w, "evt=%#x\n", evt)
		}

	case "load":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: load <file>")
		}
		cfg, err := profcfg.Load(args[0])
		if err != nil {
			return false, err
		}
		prof, err := cfg.Profile()
		if err != nil {
			return false, err
		}
		err = prof.Apply(cl)
		if err != nil {
			return false, fmt.Errorf("could not apply profile %q: %w", prof.Name, err)
		}
		fmt.Fprintf(w, "applied profile %q\n", prof.Name)

	case "profile":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: profile <name>")
		}
		err := cl.SendProfile(args[0])
		if err != nil {
			return false, fmt.Errorf("could not send profile %q: %w", args[0], err)
		}

	default:
		return false, fmt.Errorf("unknown command %q (try \"help\")", cmd)
	}

	return false, nil
}

func parseParam(s string) (daq.Param, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid parameter %q: %w", s, err)
	}
	return daq.Param(v), nil
}

func parseI32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return int32(v), nil
}
