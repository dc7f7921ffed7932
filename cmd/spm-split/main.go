// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spm-split splits a multi-frame scan-binary file into
// per-frame files, grouping the forward and backward halves of each
// scan frame into the same output file.
package main // import "github.com/go-spm/spmc/cmd/spm-split"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-spm/spmc/scanio"
)

var (
	msg = log.New(os.Stdout, "spm-split: ", 0)
)

func main() {
	xmain(os.Args[1:])
}

func xmain(args []string) {
	var (
		fset = flag.NewFlagSet("spm", flag.ExitOnError)

		oname = fset.String("o", "out.scb", "path to output scan-binary file")
	)

	fset.Usage = func() {
		fmt.Printf(`Usage: spm-split [OPTIONS] file.scb

ex:
 $> spm-split -o out.scb ./capture.scb

options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() < 1 {
		fset.Usage()
		msg.Fatalf("missing input scan-binary file")
	}

	if *oname == "" {
		fset.Usage()
		msg.Fatalf("invalid output scan-binary file")
	}

	for _, arg := range fset.Args() {
		err := process(*oname, arg)
		if err != nil {
			msg.Fatalf("could not split scan file %q: %+v", arg, err)
		}
	}
}

func process(oname, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open scan file: %w", err)
	}
	defer f.Close()

	out := make(map[int32]*scanio.Encoder)

	dec := scanio.NewDecoder(f)

loop:
	for {
		var (
			hdr  scanio.Header
			data []int32
		)
		err := dec.Decode(&hdr, &data)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode frame: %w", err)
		}

		enc, ok := out[hdr.FrameNo]
		if !ok {
			oid := outFileFrom(oname, hdr.FrameNo)
			msg.Printf("creating output file %q...", oid)
			o, err := os.Create(oid)
			if err != nil {
				return fmt.Errorf("could not create output file: %w", err)
			}
			defer o.Close()

			enc = scanio.NewEncoder(o)
			out[hdr.FrameNo] = enc
		}

		err = enc.Encode(hdr, data)
		if err != nil {
			return fmt.Errorf("could not encode frame %d: %w", hdr.FrameNo, err)
		}
	}

	return nil
}

func outFileFrom(fname string, no int32) string {
	var (
		ext   = filepath.Ext(fname)
		oname = strings.Replace(fname, ext, fmt.Sprintf("-%04d%s", no, ext), 1)
	)
	return oname
}
