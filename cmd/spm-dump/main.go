// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spm-dump displays the contents of scan-binary (.scb) files.
//
// Usage: spm-dump [OPTIONS] file1.scb [file2.scb [...]]
//
// Example:
//
//  $> spm-dump ./topo-ch00-0000_fwd.scb
//  $> spm-dump -v ./topo-ch00-0000_fwd.scb
//
// Options:
//   -v	print every sample of each frame
package main // import "github.com/go-spm/spmc/cmd/spm-dump"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"golang.org/x/xerrors"

	"github.com/go-spm/spmc/meta"
	"github.com/go-spm/spmc/scanio"
)

const usage = `spm-dump displays the contents of scan-binary (.scb) files.

Usage: spm-dump [OPTIONS] file1.scb [file2.scb [...]]

Example:

 $> spm-dump ./topo-ch00-0000_fwd.scb
 $> spm-dump -v ./topo-ch00-0000_fwd.scb

Options:
`

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("spm-dump: ")
	log.SetFlags(0)

	var (
		fset    = flag.NewFlagSet("spm-dump", flag.ExitOnError)
		verbose = fset.Bool("v", false, "print every sample of each frame")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse args %q: %+v", args, err)
	}

	if fset.NArg() < 1 {
		fset.Usage()
		log.Fatalf("missing input file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, *verbose)
		if err != nil {
			log.Fatalf("could not process %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, verbose bool) error {
	f, err := os.Open(fname)
	if err != nil {
		return xerrors.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	fmt.Fprintf(w, ">>> %s\n", fname)

	var (
		dec  = scanio.NewDecoder(f)
		hdr  scanio.Header
		data []int32
	)
	for i := 0; ; i++ {
		err := dec.Decode(&hdr, &data)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("could not decode frame %d: %w", i, err)
		}
		dump(w, hdr, data, verbose)
	}
}

func dump(w io.Writer, hdr scanio.Header, data []int32, verbose bool) {
	m := hdr.Meta
	fmt.Fprintf(w, "=== frame %d ===\n", hdr.FrameNo)
	fmt.Fprintf(w, "order:     %v\n", m.Order)
	switch {
	case m.Order.Scan():
		fmt.Fprintf(w, "direction: %v\n", hdr.Dir)
		fmt.Fprintf(w, "points:    %dx%d\n", m.NX, m.NY)
	case m.Order.Bounded():
		fmt.Fprintf(w, "points:    %d\n", m.NX)
	}
	fmt.Fprintf(w, "index:     %d\n", hdr.Index)
	fmt.Fprintf(w, "step:      %s x %s\n", fmtPhys(m.StepX, m.UnitXY), fmtPhys(m.StepY, m.UnitXY))
	fmt.Fprintf(w, "origin:    %s, %s\n", fmtPhys(m.OriginX, m.UnitXY), fmtPhys(m.OriginY, m.UnitXY))
	fmt.Fprintf(w, "rotation:  %v\n", m.Rot)
	if hdr.Comment != "" {
		fmt.Fprintf(w, "comment:   %s\n", hdr.Comment)
	}
	fmt.Fprintf(w, "samples:   %d\n", len(data))
	if len(data) > 0 {
		min, max, mean := stats(m, data)
		fmt.Fprintf(w, "min/max:   %s / %s\n", fmtPhys(min, m.UnitVal), fmtPhys(max, m.UnitVal))
		fmt.Fprintf(w, "mean:      %s\n", fmtPhys(mean, m.UnitVal))
	}

	if !verbose {
		return
	}
	idxs := rowIndexes(hdr, len(data))
	for k, v := range data {
		switch {
		case k < len(idxs) && m.Order.Scan():
			px, py, err := m.Pixel(idxs[k])
			if err != nil {
				fmt.Fprintf(w, "%4d raw=%6d val=%s\n", k, v, fmtPhys(m.Phys(v), m.UnitVal))
				continue
			}
			fmt.Fprintf(w, "%4d (%d,%d) raw=%6d val=%s\n", k, px, py, v, fmtPhys(m.Phys(v), m.UnitVal))
		default:
			fmt.Fprintf(w, "%4d raw=%6d val=%s\n", k, v, fmtPhys(m.Phys(v), m.UnitVal))
		}
	}
}

// rowIndexes maps file rows back to their stream indexes. Scan files
// hold only the lines of one direction, so the mapping walks the
// frame's index space and keeps the matching lines.
func rowIndexes(hdr scanio.Header, n int) []int {
	m := hdr.Meta
	idxs := make([]int, 0, n)
	if !m.Order.Scan() || hdr.Dir == scanio.Both {
		for i := 0; i < n; i++ {
			idxs = append(idxs, hdr.Index+i)
		}
		return idxs
	}
	fwd := hdr.Dir == scanio.Fwd
	for j := hdr.Index; len(idxs) < n; j++ {
		f, _, err := m.Dir(j)
		if err != nil {
			break
		}
		if f == fwd {
			idxs = append(idxs, j)
		}
	}
	return idxs
}

func stats(m meta.Meta, data []int32) (min, max, mean float64) {
	min = math.Inf(+1)
	max = math.Inf(-1)
	for _, raw := range data {
		v := m.Phys(raw)
		min = math.Min(min, v)
		max = math.Max(max, v)
		mean += v
	}
	mean /= float64(len(data))
	return min, max, mean
}

func fmtPhys(v float64, u meta.Unit) string {
	val, sym := meta.Format(v, u)
	return fmt.Sprintf("%.4g %s", val, sym)
}
