// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scanio stores acquisition frames as files. Scan frames go
// to a versioned binary container (.scb) or an ascii rendition
// (.asc), one line direction per file; frames of all other orders go
// to tabular CSV (.csv). The binary container is the only format the
// package also reads back.
package scanio // import "github.com/go-spm/spmc/scanio"

import (
	"os"

	"golang.org/x/xerrors"

	"github.com/go-spm/spmc/meta"
)

// Dir selects which scan-line direction a file holds.
type Dir uint8

const (
	Both Dir = iota // all samples
	Fwd             // forward lines only
	Bwd             // backward lines only
)

func (d Dir) String() string {
	switch d {
	case Both:
		return "both"
	case Fwd:
		return "forward"
	case Bwd:
		return "backward"
	}
	return "invalid"
}

// Header describes one frame in a scanio file.
type Header struct {
	Meta    meta.Meta
	FrameNo int32
	Index   int // stream index of the first sample of the frame
	Dir     Dir
	Comment string
}

// Write stores one frame under base, choosing encoding and file name
// from the frame's order. Scan frames go to base_fwd/base_bwd plus a
// .scb (binary) or .asc extension, holding only the lines scanned in
// the direction selected by forward; hdr.Dir is derived from forward.
// Frames of all other orders go to base.csv, where the binary and
// forward flags do not apply and are ignored.
//
// Write returns the name of the file written. Asking for a direction
// the frame has no lines of (e.g. backward lines of an ff-scan), or
// writing an empty frame, fails with an out-of-range error.
func Write(base string, binary, forward bool, hdr Header, data []int32) (string, error) {
	if len(data) == 0 {
		return "", xerrors.Errorf("scanio: empty frame: %w", meta.ErrOutOfRange)
	}
	if err := hdr.Meta.Validate(); err != nil {
		return "", err
	}

	if !hdr.Meta.Order.Scan() {
		name := base + ".csv"
		err := writeFile(name, func(f *os.File) error {
			return writeTable(f, hdr, data)
		})
		if err != nil {
			return "", err
		}
		return name, nil
	}

	hdr.Dir = Bwd
	suffix := "_bwd"
	if forward {
		hdr.Dir = Fwd
		suffix = "_fwd"
	}
	rows, err := dirRows(hdr.Meta, hdr.Index, data, forward)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", xerrors.Errorf("scanio: frame has no %v lines: %w", hdr.Dir, meta.ErrOutOfRange)
	}

	name := base + suffix + ".asc"
	if binary {
		name = base + suffix + ".scb"
	}
	err = writeFile(name, func(f *os.File) error {
		if binary {
			return NewEncoder(f).Encode(hdr, rows)
		}
		return writeASCII(f, hdr, rows)
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

func writeFile(name string, fn func(*os.File) error) error {
	f, err := os.Create(name)
	if err != nil {
		return xerrors.Errorf("scanio: could not create %q: %w", name, err)
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("scanio: could not close %q: %w", name, err)
	}
	return nil
}

// dirRows keeps the samples of the lines scanned in the wanted
// direction.
func dirRows(m meta.Meta, index int, data []int32, forward bool) ([]int32, error) {
	out := make([]int32, 0, len(data)/2+m.NX)
	for i := range data {
		fwd, _, err := m.Dir(index + i)
		if err != nil {
			return nil, err
		}
		if fwd == forward {
			out = append(out, data[i])
		}
	}
	return out, nil
}
