// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scanio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/go-spm/spmc/meta"
)

func testMeta(o meta.Order, nx, ny int) meta.Meta {
	return meta.Meta{
		Order:   o,
		NX:      nx,
		NY:      ny,
		StepX:   10e-9,
		StepY:   10e-9,
		OriginX: 1e-6,
		OriginY: -2e-6,
		Rot:     0.25,
		UnitXY:  meta.Unit{Dim: meta.DimMeter},
		StepVal: 1e-12,
		StepNum: 0,
		OffVal:  5e-12,
		UnitVal: meta.Unit{Dim: meta.DimMeter},
	}
}

func seq(start, n int) []int32 {
	data := make([]int32, n)
	for i := range data {
		data[i] = int32(start + i)
	}
	return data
}

func TestWriteScanBinary(t *testing.T) {
	tmp, err := os.MkdirTemp("", "spm-scanio-")
	if err != nil {
		t.Fatalf("could not create tmpdir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	m := testMeta(meta.FbScan, 4, 4)
	data := seq(0, 16)
	hdr := Header{Meta: m, FrameNo: 42, Index: 0, Comment: "test frame"}

	for _, tc := range []struct {
		forward bool
		suffix  string
		dir     Dir
		want    []int32
	}{
		// fb-scan: even rows forward, odd rows backward.
		{forward: true, suffix: "_fwd.scb", dir: Fwd, want: []int32{0, 1, 2, 3, 8, 9, 10, 11}},
		{forward: false, suffix: "_bwd.scb", dir: Bwd, want: []int32{4, 5, 6, 7, 12, 13, 14, 15}},
	} {
		base := filepath.Join(tmp, "frame")
		name, err := Write(base, true, tc.forward, hdr, data)
		if err != nil {
			t.Fatalf("could not write frame: %+v", err)
		}
		if got, want := name, base+tc.suffix; got != want {
			t.Fatalf("invalid file name: got=%q, want=%q", got, want)
		}

		f, err := os.Open(name)
		if err != nil {
			t.Fatalf("could not open %q: %+v", name, err)
		}
		defer f.Close()

		var (
			ghdr  Header
			gdata []int32
		)
		err = NewDecoder(f).Decode(&ghdr, &gdata)
		if err != nil {
			t.Fatalf("could not decode %q: %+v", name, err)
		}
		if got, want := ghdr.Meta, m; got != want {
			t.Fatalf("invalid metadata:\ngot= %#v\nwant=%#v", got, want)
		}
		if got, want := ghdr.FrameNo, int32(42); got != want {
			t.Fatalf("invalid frame number: got=%d, want=%d", got, want)
		}
		if got, want := ghdr.Dir, tc.dir; got != want {
			t.Fatalf("invalid direction: got=%v, want=%v", got, want)
		}
		if got, want := ghdr.Comment, "test frame"; got != want {
			t.Fatalf("invalid comment: got=%q, want=%q", got, want)
		}
		if got, want := len(gdata), len(tc.want); got != want {
			t.Fatalf("invalid sample count: got=%d, want=%d", got, want)
		}
		for i, v := range gdata {
			if v != tc.want[i] {
				t.Fatalf("invalid sample %d: got=%d, want=%d", i, v, tc.want[i])
			}
		}
	}
}

func TestWriteScanASCII(t *testing.T) {
	tmp, err := os.MkdirTemp("", "spm-scanio-")
	if err != nil {
		t.Fatalf("could not create tmpdir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	m := testMeta(meta.FfScan, 4, 2)
	data := seq(0, 8)
	hdr := Header{Meta: m, FrameNo: 7, Comment: "ascii check"}

	base := filepath.Join(tmp, "topo")
	name, err := Write(base, false, true, hdr, data)
	if err != nil {
		t.Fatalf("could not write frame: %+v", err)
	}
	if got, want := name, base+"_fwd.asc"; got != want {
		t.Fatalf("invalid file name: got=%q, want=%q", got, want)
	}

	f, err := os.Open(name)
	if err != nil {
		t.Fatalf("could not open %q: %+v", name, err)
	}
	defer f.Close()

	var (
		keys   = make(map[string]string)
		values []float64
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			if k, v, ok := strings.Cut(strings.TrimPrefix(line, "# "), " : "); ok {
				keys[k] = v
			}
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			t.Fatalf("could not parse sample %q: %+v", line, err)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("could not scan %q: %+v", name, err)
	}

	for _, tc := range []struct{ k, v string }{
		{"order", "ff-scan"},
		{"frame", "7"},
		{"direction", "forward"},
		{"points-x", "4"},
		{"points-y", "2"},
		{"samples", "8"},
		{"comment", "ascii check"},
		{"unit-val", "m"},
		{"step-val", "1e-12"},
	} {
		if got, want := keys[tc.k], tc.v; got != want {
			t.Fatalf("invalid header %q: got=%q, want=%q", tc.k, got, want)
		}
	}

	if got, want := len(values), 8; got != want {
		t.Fatalf("invalid sample count: got=%d, want=%d", got, want)
	}
	// physical values: raw*stepVal + offVal.
	if got, want := values[3], m.Phys(3); got != want {
		t.Fatalf("invalid sample 3: got=%v, want=%v", got, want)
	}
}

func TestWriteTable(t *testing.T) {
	tmp, err := os.MkdirTemp("", "spm-scanio-")
	if err != nil {
		t.Fatalf("could not create tmpdir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	m := meta.Meta{
		Order:   meta.Cyclic,
		NX:      8,
		StepX:   0.5,
		OriginX: -2,
		UnitXY:  meta.Unit{Dim: meta.DimVolt},
		StepVal: 2e-9,
		UnitVal: meta.Unit{Dim: meta.DimAmpere},
	}
	data := seq(100, 8)
	hdr := Header{Meta: m, FrameNo: 3, Comment: "iv sweep"}

	// the binary and forward flags do not apply to 1-variable frames.
	base := filepath.Join(tmp, "sweep")
	name, err := Write(base, true, true, hdr, data)
	if err != nil {
		t.Fatalf("could not write frame: %+v", err)
	}
	if got, want := name, base+".csv"; got != want {
		t.Fatalf("invalid file name: got=%q, want=%q", got, want)
	}

	raw, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("could not read %q: %+v", name, err)
	}
	var rows [][]string
	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil {
			t.Fatalf("could not parse row %q: %+v", line, err)
		}
		rows = append(rows, rec)
	}

	if got, want := len(rows), 9; got != want { // header + 8 samples
		t.Fatalf("invalid row count: got=%d, want=%d", got, want)
	}
	if got, want := rows[0][1], "x[V]"; got != want {
		t.Fatalf("invalid coordinate column: got=%q, want=%q", got, want)
	}
	if got, want := rows[0][3], "val[A]"; got != want {
		t.Fatalf("invalid value column: got=%q, want=%q", got, want)
	}
	// row 5: index 4, x = -2 + 4*0.5, raw 104, val = 104*2e-9.
	if got, want := rows[5][0], "4"; got != want {
		t.Fatalf("invalid index: got=%q, want=%q", got, want)
	}
	if got, want := rows[5][1], "0"; got != want {
		t.Fatalf("invalid coordinate: got=%q, want=%q", got, want)
	}
	if got, want := rows[5][2], "104"; got != want {
		t.Fatalf("invalid raw sample: got=%q, want=%q", got, want)
	}
	if got, want := rows[5][3], ftoa(m.Phys(104)); got != want {
		t.Fatalf("invalid value: got=%q, want=%q", got, want)
	}
}

func TestWriteErrors(t *testing.T) {
	tmp, err := os.MkdirTemp("", "spm-scanio-")
	if err != nil {
		t.Fatalf("could not create tmpdir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	scan := testMeta(meta.FfScan, 4, 2)

	_, err = Write(filepath.Join(tmp, "empty"), true, true, Header{Meta: scan}, nil)
	if !errors.Is(err, meta.ErrOutOfRange) {
		t.Fatalf("expected an out-of-range error for an empty frame, got %+v", err)
	}

	// an ff-scan has no backward lines.
	_, err = Write(filepath.Join(tmp, "nodir"), true, false, Header{Meta: scan}, seq(0, 8))
	if !errors.Is(err, meta.ErrOutOfRange) {
		t.Fatalf("expected an out-of-range error for a missing direction, got %+v", err)
	}

	_, err = Write(filepath.Join(tmp, "badmeta"), true, true, Header{Meta: meta.Meta{Order: meta.Order(99)}}, seq(0, 8))
	if !errors.Is(err, meta.ErrInvalid) {
		t.Fatalf("expected an invalid-metadata error, got %+v", err)
	}

	_, err = Write(filepath.Join(tmp, "missing", "out"), true, true, Header{Meta: scan}, seq(0, 8))
	var perr *fs.PathError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a path error for an unwritable destination, got %+v", err)
	}
}

func TestEncoderMultiFrame(t *testing.T) {
	m := testMeta(meta.BfScan, 2, 2)
	buf := new(bytes.Buffer)

	enc := NewEncoder(buf)
	for no := int32(0); no < 3; no++ {
		err := enc.Encode(Header{Meta: m, FrameNo: no, Dir: Both}, seq(int(no)*4, 4))
		if err != nil {
			t.Fatalf("could not encode frame %d: %+v", no, err)
		}
	}

	dec := NewDecoder(buf)
	var (
		hdr  Header
		data []int32
		n    int32
	)
	for {
		err := dec.Decode(&hdr, &data)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("could not decode frame %d: %+v", n, err)
		}
		if got, want := hdr.FrameNo, n; got != want {
			t.Fatalf("invalid frame number: got=%d, want=%d", got, want)
		}
		if got, want := data[0], n*4; got != want {
			t.Fatalf("invalid first sample: got=%d, want=%d", got, want)
		}
		n++
	}
	if got, want := n, int32(3); got != want {
		t.Fatalf("invalid frame count: got=%d, want=%d", got, want)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	m := testMeta(meta.FfScan, 2, 2)

	buf := new(bytes.Buffer)
	if err := NewEncoder(buf).Encode(Header{Meta: m}, seq(0, 4)); err != nil {
		t.Fatalf("could not encode frame: %+v", err)
	}
	raw := buf.Bytes()

	for _, tc := range []struct {
		name string
		raw  []byte
	}{
		{name: "bad-magic", raw: append([]byte("SPMX"), raw[4:]...)},
		{name: "bad-version", raw: append(append([]byte{}, raw[:4]...), append([]byte{0xff, 0xff}, raw[6:]...)...)},
		{name: "truncated", raw: raw[:len(raw)-5]},
		{name: "bad-crc", raw: flipByte(raw, len(raw)-8)}, // inside the samples
	} {
		t.Run(tc.name, func(t *testing.T) {
			var (
				hdr  Header
				data []int32
			)
			err := NewDecoder(bytes.NewReader(tc.raw)).Decode(&hdr, &data)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if err == io.EOF {
				t.Fatalf("corrupted stream reported as clean end")
			}
		})
	}
}

func flipByte(raw []byte, i int) []byte {
	out := append([]byte{}, raw...)
	out[i] ^= 0xff
	return out
}

func TestDecodeBadCRC(t *testing.T) {
	m := testMeta(meta.FfScan, 2, 2)

	buf := new(bytes.Buffer)
	if err := NewEncoder(buf).Encode(Header{Meta: m}, seq(0, 4)); err != nil {
		t.Fatalf("could not encode frame: %+v", err)
	}
	raw := flipByte(buf.Bytes(), buf.Len()-8) // inside the samples

	var (
		hdr  Header
		data []int32
	)
	err := NewDecoder(bytes.NewReader(raw)).Decode(&hdr, &data)
	if !errors.Is(err, meta.ErrInvalid) {
		t.Fatalf("expected an invalid-frame error, got %+v", err)
	}
	if !strings.Contains(err.Error(), "inconsistent frame CRC") {
		t.Fatalf("invalid error: %v", err)
	}
}
