// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spm-plot renders scan-binary (.scb) files as 2D heat maps.
// The forward and backward files of one frame may be given together to
// assemble the complete image; lines missing from the inputs stay
// empty. Axes are the scan frame's own coordinates, the in-plane
// rotation is not applied.
//
// Usage: spm-plot [OPTIONS] file1.scb [file2.scb [...]]
//
// Example:
//
//  $> spm-plot -o topo.png ./topo-ch00-0000_fwd.scb ./topo-ch00-0000_bwd.scb
package main // import "github.com/go-spm/spmc/cmd/spm-plot"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"golang.org/x/xerrors"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/vg"

	"github.com/go-spm/spmc/meta"
	"github.com/go-spm/spmc/scanio"
)

const usage = `spm-plot renders scan-binary (.scb) files as 2D heat maps.
The forward and backward files of one frame may be given together to
assemble the complete image.

Usage: spm-plot [OPTIONS] file1.scb [file2.scb [...]]

Example:

 $> spm-plot -o topo.png ./topo-ch00-0000_fwd.scb ./topo-ch00-0000_bwd.scb

Options:
`

func main() {
	log.SetPrefix("spm-plot: ")
	log.SetFlags(0)

	var (
		fset  = flag.NewFlagSet("spm-plot", flag.ExitOnError)
		oname = fset.String("o", "", "path to the output image (default: first input with a .png extension)")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("could not parse args: %+v", err)
	}

	if fset.NArg() < 1 {
		fset.Usage()
		log.Fatalf("missing input file")
	}

	out := *oname
	if out == "" {
		fname := fset.Arg(0)
		out = strings.TrimSuffix(fname, filepath.Ext(fname)) + ".png"
	}

	err = process(out, fset.Args())
	if err != nil {
		log.Fatalf("could not plot %v: %+v", fset.Args(), err)
	}
	log.Printf("wrote %s", out)
}

// frame is the image being assembled: one value slot per pixel, later
// inputs overwrite earlier ones.
type frame struct {
	meta meta.Meta
	no   int32
	vals []float64
	seen []bool
}

func process(oname string, fnames []string) error {
	var img *frame
	for _, fname := range fnames {
		f, err := os.Open(fname)
		if err != nil {
			return xerrors.Errorf("could not open %q: %w", fname, err)
		}
		img, err = ingest(img, f)
		f.Close()
		if err != nil {
			return xerrors.Errorf("could not ingest %q: %w", fname, err)
		}
	}
	if img == nil {
		return xerrors.Errorf("no frame found in %v", fnames)
	}
	return plot(oname, img)
}

// ingest folds the frames of one scan-binary stream into the image.
func ingest(img *frame, r io.Reader) (*frame, error) {
	var (
		dec  = scanio.NewDecoder(r)
		hdr  scanio.Header
		data []int32
	)
	for {
		err := dec.Decode(&hdr, &data)
		if err == io.EOF {
			return img, nil
		}
		if err != nil {
			return img, err
		}

		m := hdr.Meta
		if !m.Order.Scan() {
			return img, xerrors.Errorf("order %v is not a scan: %w", m.Order, meta.ErrNotApplicable)
		}
		if m.NX <= 0 || m.NY <= 0 {
			return img, xerrors.Errorf("invalid scan geometry %dx%d: %w", m.NX, m.NY, meta.ErrInvalid)
		}
		if m.StepX == 0 || m.StepY == 0 {
			return img, xerrors.Errorf("degenerate scan steps (%v, %v): %w", m.StepX, m.StepY, meta.ErrInvalid)
		}
		if img == nil {
			img = &frame{
				meta: m,
				no:   hdr.FrameNo,
				vals: make([]float64, m.NX*m.NY),
				seen: make([]bool, m.NX*m.NY),
			}
		}
		if m.NX != img.meta.NX || m.NY != img.meta.NY || m.Order != img.meta.Order {
			return img, xerrors.Errorf("mismatched scan geometry (%v %dx%d vs %v %dx%d): %w",
				m.Order, m.NX, m.NY, img.meta.Order, img.meta.NX, img.meta.NY, meta.ErrInvalid)
		}

		// scan files hold the lines of one direction only: walk the
		// frame's index space and pair the matching pixels with the
		// file's rows.
		row := 0
		for idx := 0; idx < m.NX*m.NY && row < len(data); idx++ {
			fwd, _, err := m.Dir(idx)
			if err != nil {
				return img, err
			}
			if hdr.Dir == scanio.Fwd && !fwd {
				continue
			}
			if hdr.Dir == scanio.Bwd && fwd {
				continue
			}
			px, py, err := m.Pixel(idx)
			if err != nil {
				return img, err
			}
			img.vals[py*m.NX+px] = m.Phys(data[row])
			img.seen[py*m.NX+px] = true
			row++
		}
	}
}

func plot(oname string, img *frame) error {
	m := img.meta

	var zmax float64
	for i, v := range img.vals {
		if img.seen[i] {
			zmax = math.Max(zmax, math.Abs(v))
		}
	}
	zval, zsym := meta.Format(zmax, m.UnitVal)
	zscale := scale(zval, zmax)

	xval, xsym := meta.Format(float64(m.NX)*m.StepX, m.UnitXY)
	xscale := scale(xval, float64(m.NX)*m.StepX)

	h := hbook.NewH2D(
		m.NX,
		(m.OriginX-0.5*m.StepX)*xscale,
		(m.OriginX+(float64(m.NX)-0.5)*m.StepX)*xscale,
		m.NY,
		(m.OriginY-0.5*m.StepY)*xscale,
		(m.OriginY+(float64(m.NY)-0.5)*m.StepY)*xscale,
	)
	for py := 0; py < m.NY; py++ {
		for px := 0; px < m.NX; px++ {
			if !img.seen[py*m.NX+px] {
				continue
			}
			h.Fill(
				(m.OriginX+float64(px)*m.StepX)*xscale,
				(m.OriginY+float64(py)*m.StepY)*xscale,
				img.vals[py*m.NX+px]*zscale,
			)
		}
	}

	p := hplot.New()
	p.Title.Text = fmt.Sprintf("frame %d [%s]", img.no, zsym)
	p.X.Label.Text = fmt.Sprintf("x [%s]", xsym)
	p.Y.Label.Text = fmt.Sprintf("y [%s]", xsym)
	p.Add(hplot.NewH2D(h, palette.Heat(256, 1)))

	err := p.Save(15*vg.Centimeter, 15*vg.Centimeter, oname)
	if err != nil {
		return xerrors.Errorf("could not save plot: %w", err)
	}
	return nil
}

// scale maps raw physical values to the display unit chosen by
// meta.Format.
func scale(formatted, raw float64) float64 {
	if raw == 0 {
		return 1
	}
	return formatted / raw
}
