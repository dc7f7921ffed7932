// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package meta describes how the raw sample stream of a controller
// channel maps to physical coordinates and values.
//
// Every frame of samples travels with one Meta record. The record is
// immutable for the lifetime of its frame: samples and metadata are
// always interpreted as a matched pair.
package meta // import "github.com/go-spm/spmc/meta"

import (
	"errors"
	"math"

	"golang.org/x/xerrors"
)

var (
	// ErrNotApplicable is returned when a query is undefined for the
	// data order at hand (e.g. scan lines of a time series).
	ErrNotApplicable = errors.New("meta: not applicable")

	// ErrInvalid is returned when a metadata record is malformed:
	// an order or unit outside its enumeration, or a scan geometry
	// that can not describe a frame.
	ErrInvalid = errors.New("meta: invalid metadata")

	// ErrOutOfRange is returned when a sample index lies outside the
	// frame described by the metadata.
	ErrOutOfRange = errors.New("meta: index out of range")
)

// Order describes the topology of the independent variable(s) of a
// sample stream.
type Order uint8

const (
	Linear    Order = iota // unbounded time-like stream, no defined origin
	Triggered              // unbounded stream with a defined t=0
	Cyclic                 // one bounded periodic sweep
	FfScan                 // scan, every line forward
	FbScan                 // scan, alternating line directions, first forward
	BbScan                 // scan, every line backward
	BfScan                 // scan, alternating line directions, first backward
)

func (o Order) String() string {
	switch o {
	case Linear:
		return "linear"
	case Triggered:
		return "triggered"
	case Cyclic:
		return "cyclic"
	case FfScan:
		return "ff-scan"
	case FbScan:
		return "fb-scan"
	case BbScan:
		return "bb-scan"
	case BfScan:
		return "bf-scan"
	}
	return "invalid"
}

func (o Order) valid() bool { return o <= BfScan }

// Scan reports whether the order describes a 2-variable scan frame.
func (o Order) Scan() bool { return o >= FfScan && o <= BfScan }

// Bounded reports whether the stream has an absolute physical extent.
func (o Order) Bounded() bool { return o >= Cyclic && o <= BfScan }

// Meta describes one frame of raw samples.
//
// The field order is fixed and append-only: frames and metadata are
// exchanged together and decoded positionally by scanio.
type Meta struct {
	Order   Order
	NX      int     // samples per line, sweep or packet
	NY      int     // lines per frame, scan orders only
	StepX   float64 // physical distance between adjacent samples
	StepY   float64 // physical distance between adjacent lines
	OriginX float64 // physical position of sample index 0
	OriginY float64
	Rot     float64 // in-plane rotation of the scan area [rad]
	UnitXY  Unit    // unit of the independent variable(s)
	StepVal float64 // physical size of one LSB of a raw sample
	StepNum float64 // alternate scale numerator, reserved
	OffVal  float64 // physical value of a raw sample of zero
	UnitVal Unit    // unit of the dependent variable
}

// Validate reports whether the record is well formed: order and both
// units must lie inside their enumerations.
func (m Meta) Validate() error {
	if !m.Order.valid() {
		return xerrors.Errorf("meta: unknown data order %d: %w", uint8(m.Order), ErrInvalid)
	}
	if !m.UnitXY.valid() {
		return xerrors.Errorf("meta: malformed unit-xy (dim=%d, exp=%d): %w", uint8(m.UnitXY.Dim), m.UnitXY.Exp, ErrInvalid)
	}
	if !m.UnitVal.valid() {
		return xerrors.Errorf("meta: malformed unit-val (dim=%d, exp=%d): %w", uint8(m.UnitVal.Dim), m.UnitVal.Exp, ErrInvalid)
	}
	return nil
}

// PointsX returns the number of samples in one scan line (scan
// orders), in one sweep (Cyclic), or in one delivered packet
// (Linear, Triggered), where it frames packets rather than a
// physical length.
func (m Meta) PointsX() (int, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	return m.NX, nil
}

// PointsY returns the number of lines in a scan frame.
func (m Meta) PointsY() (int, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if !m.Order.Scan() {
		return 0, xerrors.Errorf("meta: no line count for order %v: %w", m.Order, ErrNotApplicable)
	}
	return m.NY, nil
}

// RangeX returns the physical extent covered by one line, sweep or
// frame along the first independent variable: (pointsX-1)*stepX.
// Unbounded orders (Linear, Triggered) have no absolute extent.
func (m Meta) RangeX() (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if !m.Order.Bounded() {
		return 0, xerrors.Errorf("meta: no physical range for order %v: %w", m.Order, ErrNotApplicable)
	}
	if m.NX <= 0 {
		return 0, xerrors.Errorf("meta: non-positive points-x %d: %w", m.NX, ErrInvalid)
	}
	return float64(m.NX-1) * m.StepX, nil
}

// RangeY returns the physical extent of a scan frame along the second
// independent variable: (pointsY-1)*stepY.
func (m Meta) RangeY() (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if !m.Order.Scan() {
		return 0, xerrors.Errorf("meta: no physical range for order %v: %w", m.Order, ErrNotApplicable)
	}
	if m.NY <= 0 {
		return 0, xerrors.Errorf("meta: non-positive points-y %d: %w", m.NY, ErrInvalid)
	}
	return float64(m.NY-1) * m.StepY, nil
}

// Pixel maps a sample index to its pixel coordinate inside a scan
// frame: x counts columns left-to-right, y counts rows bottom-to-top,
// origin at the bottom-left corner, independent of the physical scan
// path.
func (m Meta) Pixel(index int) (x, y int, err error) {
	if err := m.Validate(); err != nil {
		return 0, 0, err
	}
	if !m.Order.Scan() {
		return 0, 0, xerrors.Errorf("meta: no pixel coordinates for order %v: %w", m.Order, ErrNotApplicable)
	}
	if m.NX <= 0 || m.NY <= 0 {
		return 0, 0, xerrors.Errorf("meta: invalid scan geometry %dx%d: %w", m.NX, m.NY, ErrInvalid)
	}
	if index < 0 || index >= m.NX*m.NY {
		return 0, 0, xerrors.Errorf("meta: index %d outside %dx%d frame: %w", index, m.NX, m.NY, ErrOutOfRange)
	}
	return index % m.NX, index / m.NX, nil
}

// Dir reports the scan direction of the line a sample belongs to.
// Rows are enumerated bottom-to-top within one frame, so upward is
// always true; forward follows the order and the row parity.
func (m Meta) Dir(index int) (forward, upward bool, err error) {
	_, y, err := m.Pixel(index)
	if err != nil {
		return false, false, err
	}
	switch m.Order {
	case FfScan:
		forward = true
	case BbScan:
		forward = false
	case FbScan:
		forward = y%2 == 0
	case BfScan:
		forward = y%2 != 0
	}
	return forward, true, nil
}

// Coord1 maps a sample index to the physical value of the single
// independent variable: originX + index*stepX. For Linear streams the
// absolute value is meaningless (no defined origin exists) but
// differences remain valid; the formula is the same. Indices of
// Cyclic streams are taken as delivered: the controller resets them
// per sweep so that the formula holds.
func (m Meta) Coord1(index int) (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if m.Order.Scan() {
		return 0, xerrors.Errorf("meta: order %v has two independent variables: %w", m.Order, ErrNotApplicable)
	}
	return m.OriginX + float64(index)*m.StepX, nil
}

// Coord2 maps a sample index to the physical position of its pixel:
// the pixel offset (px*stepX, py*stepY) rotated in-plane about the
// origin, translated by the origin.
func (m Meta) Coord2(index int) (x, y float64, err error) {
	px, py, err := m.Pixel(index)
	if err != nil {
		return 0, 0, err
	}
	var (
		dx       = float64(px) * m.StepX
		dy       = float64(py) * m.StepY
		sin, cos = math.Sincos(m.Rot)
	)
	return m.OriginX + dx*cos - dy*sin, m.OriginY + dx*sin + dy*cos, nil
}

// Phys converts a raw sample to its physical value, in units of
// UnitVal: raw*stepVal + offVal.
//
// StepNum, the alternate scale numerator of the record, is reserved:
// no selection rule between it and StepVal is defined by the
// controller contract, so the conversion consults StepVal only.
func (m Meta) Phys(raw int32) float64 {
	return float64(raw)*m.StepVal + m.OffVal
}
