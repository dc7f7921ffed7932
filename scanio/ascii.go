// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scanio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/xerrors"
)

// writeASCII stores a scan frame as "# key : value" header lines
// followed by one physical sample value per line.
func writeASCII(w io.Writer, hdr Header, data []int32) error {
	bw := bufio.NewWriter(w)
	m := hdr.Meta

	fmt.Fprintf(bw, "# spm scan data\n")
	fmt.Fprintf(bw, "# created : %s\n", time.Now().UTC().Format(time.RFC3339))
	if hdr.Comment != "" {
		fmt.Fprintf(bw, "# comment : %s\n", hdr.Comment)
	}
	fmt.Fprintf(bw, "# order : %v\n", m.Order)
	fmt.Fprintf(bw, "# frame : %d\n", hdr.FrameNo)
	fmt.Fprintf(bw, "# start-index : %d\n", hdr.Index)
	fmt.Fprintf(bw, "# direction : %v\n", hdr.Dir)
	fmt.Fprintf(bw, "# points-x : %d\n", m.NX)
	fmt.Fprintf(bw, "# points-y : %d\n", m.NY)
	fmt.Fprintf(bw, "# step-x : %s\n", ftoa(m.StepX))
	fmt.Fprintf(bw, "# step-y : %s\n", ftoa(m.StepY))
	fmt.Fprintf(bw, "# origin-x : %s\n", ftoa(m.OriginX))
	fmt.Fprintf(bw, "# origin-y : %s\n", ftoa(m.OriginY))
	fmt.Fprintf(bw, "# rotation : %s\n", ftoa(m.Rot))
	fmt.Fprintf(bw, "# unit-xy : %v\n", m.UnitXY)
	fmt.Fprintf(bw, "# unit-val : %v\n", m.UnitVal)
	fmt.Fprintf(bw, "# step-val : %s\n", ftoa(m.StepVal))
	fmt.Fprintf(bw, "# step-num : %s\n", ftoa(m.StepNum))
	fmt.Fprintf(bw, "# off-val : %s\n", ftoa(m.OffVal))
	fmt.Fprintf(bw, "# samples : %d\n", len(data))

	for _, v := range data {
		fmt.Fprintf(bw, "%s\n", ftoa(m.Phys(v)))
	}

	if err := bw.Flush(); err != nil {
		return xerrors.Errorf("scanio: could not write ascii frame: %w", err)
	}
	return nil
}

// ftoa formats a float so that parsing it back returns the exact
// same value.
func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
