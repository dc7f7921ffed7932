// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spm-daq exposes the SPM acquisition client as a TDAQ
// process. The scan profile is loaded from a YAML file, channels are
// configured on /config and completed frames are published on the
// /frames output port, encoded in the scan-binary format, while the
// run is started.
//
// Example:
//
//	$ spm-daq -rc-addr=:44000 ./testdata/topo.yaml
package main // import "github.com/go-spm/spmc/cmd/spm-daq"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"

	"github.com/go-spm/spmc/daq"
	"github.com/go-spm/spmc/internal/profcfg"
)

func main() {
	cmd := flags.New()

	log.SetPrefix("spm-daq: ")
	log.SetFlags(0)

	if len(cmd.Args) < 1 {
		log.Fatalf("missing profile file")
	}

	cfg, err := profcfg.Load(cmd.Args[0])
	if err != nil {
		log.Fatalf("could not load profile %q: %+v", cmd.Args[0], err)
	}
	simCfg, err := cfg.Sim()
	if err != nil {
		log.Fatalf("could not derive scan setup: %+v", err)
	}
	prof, err := cfg.Profile()
	if err != nil {
		log.Fatalf("could not derive channel setup: %+v", err)
	}

	dev := daq.NewServer(daq.NewSim(simCfg), prof)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)
	srv.CmdHandle("/profile", dev.OnProfile)

	srv.OutputHandle("/frames", dev.Output)

	srv.RunHandle(dev.Loop)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
