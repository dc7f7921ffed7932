// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scanio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/xerrors"
)

// writeTable stores a 1-variable frame as CSV: index, physical
// coordinate, raw sample, physical value. Header lines carry the
// frame description, prefixed with '#'.
func writeTable(w io.Writer, hdr Header, data []int32) error {
	m := hdr.Meta

	fmt.Fprintf(w, "# spm data table\n")
	if hdr.Comment != "" {
		fmt.Fprintf(w, "# comment : %s\n", hdr.Comment)
	}
	fmt.Fprintf(w, "# order : %v\n", m.Order)
	fmt.Fprintf(w, "# frame : %d\n", hdr.FrameNo)
	fmt.Fprintf(w, "# step-x : %s\n", ftoa(m.StepX))
	fmt.Fprintf(w, "# origin-x : %s\n", ftoa(m.OriginX))
	fmt.Fprintf(w, "# step-val : %s\n", ftoa(m.StepVal))
	fmt.Fprintf(w, "# off-val : %s\n", ftoa(m.OffVal))

	cw := csv.NewWriter(w)
	err := cw.Write([]string{
		"index",
		fmt.Sprintf("x[%v]", m.UnitXY),
		"raw",
		fmt.Sprintf("val[%v]", m.UnitVal),
	})
	if err != nil {
		return xerrors.Errorf("scanio: could not write table header: %w", err)
	}

	for i, v := range data {
		idx := hdr.Index + i
		x, err := m.Coord1(idx)
		if err != nil {
			return xerrors.Errorf("scanio: could not compute coordinate of sample %d: %w", idx, err)
		}
		err = cw.Write([]string{
			strconv.Itoa(idx),
			ftoa(x),
			strconv.FormatInt(int64(v), 10),
			ftoa(m.Phys(v)),
		})
		if err != nil {
			return xerrors.Errorf("scanio: could not write sample %d: %w", idx, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return xerrors.Errorf("scanio: could not write table: %w", err)
	}
	return nil
}
