// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"math"
	"strings"

	"golang.org/x/xerrors"
)

// Dim is the physical dimension carried by a Unit.
type Dim uint8

const (
	DimNone   Dim = iota // dimensionless, the "no unit" sentinel
	DimMeter             // m
	DimVolt              // V
	DimHertz             // Hz
	DimSecond            // s
	DimAmpere            // A
	DimWatt              // W
	DimTesla             // T
	DimKelvin            // K
	DimDegree            // angular degree
	DimCos               // cosine value
	DimDB                // decibel
	DimLSB               // raw least-significant bits
)

func (d Dim) valid() bool { return d <= DimLSB }

// String returns the base symbol of the dimension, "?" for DimNone.
func (d Dim) String() string {
	switch d {
	case DimMeter:
		return "m"
	case DimVolt:
		return "V"
	case DimHertz:
		return "Hz"
	case DimSecond:
		return "s"
	case DimAmpere:
		return "A"
	case DimWatt:
		return "W"
	case DimTesla:
		return "T"
	case DimKelvin:
		return "K"
	case DimDegree:
		return "deg"
	case DimCos:
		return "cos"
	case DimDB:
		return "dB"
	case DimLSB:
		return "LSB"
	}
	return "?"
}

// Unit is the unit of a physical quantity: a base dimension together
// with an explicit power-of-1000 exponent relative to it (DimMeter
// with Exp=-3 is a nanometer). The zero value is the "no unit"
// sentinel, rejected by all print and convert operations.
type Unit struct {
	Dim Dim
	Exp int8 // power of 1000 relative to the base unit
}

// SI prefixes, indexed by exponent-minExp.
var prefixes = [...]string{
	"y", "z", "a", "f", "p", "n", "u", "m",
	"",
	"k", "M", "G", "T", "P", "E", "Z", "Y",
}

const (
	minExp = -8 // yocto
	maxExp = +8 // yotta
)

func (u Unit) valid() bool {
	if !u.Dim.valid() || u.Exp < minExp || u.Exp > maxExp {
		return false
	}
	if u.Dim == DimNone && u.Exp != 0 {
		return false
	}
	return true
}

// IsNone reports whether the unit is the "no unit" sentinel.
func (u Unit) IsNone() bool { return u.Dim == DimNone }

// String returns the SI-prefixed symbol of the unit ("mV", "um"),
// or "?" when the unit is the sentinel or malformed.
func (u Unit) String() string {
	if !u.valid() || u.Dim == DimNone {
		return "?"
	}
	return prefixes[int(u.Exp)-minExp] + u.Dim.String()
}

// Format rescales v, expressed in unit u, by powers of 1000 until its
// magnitude lies in [1, 1000), folding the shift into the unit prefix,
// and returns the rescaled value with the prefixed symbol. Values
// beyond the prefix table clamp at its edge; zero keeps the unit's own
// prefix. The "no unit" sentinel returns v unchanged and "?".
func Format(v float64, u Unit) (float64, string) {
	if !u.valid() || u.Dim == DimNone {
		return v, "?"
	}
	exp := int(u.Exp)
	abs := math.Abs(v)
	if abs == 0 {
		return v, u.String()
	}
	for abs >= 1000 && exp < maxExp {
		v /= 1000
		abs /= 1000
		exp++
	}
	for abs < 1 && exp > minExp {
		v *= 1000
		abs *= 1000
		exp--
	}
	return v, prefixes[exp-minExp] + u.Dim.String()
}

// dims that ParseUnit matches, longest symbols first so that "cos"
// wins over "s" and "dB" over nothing.
var dimSymbols = []struct {
	sym string
	dim Dim
}{
	{"LSB", DimLSB},
	{"deg", DimDegree},
	{"cos", DimCos},
	{"Hz", DimHertz},
	{"dB", DimDB},
	{"m", DimMeter},
	{"V", DimVolt},
	{"s", DimSecond},
	{"A", DimAmpere},
	{"W", DimWatt},
	{"T", DimTesla},
	{"K", DimKelvin},
}

// ParseUnit is the inverse of Unit.String: it decodes an SI-prefixed
// symbol into a Unit. "?" decodes to the "no unit" sentinel.
func ParseUnit(s string) (Unit, error) {
	if s == "?" {
		return Unit{}, nil
	}
	for _, ds := range dimSymbols {
		if !strings.HasSuffix(s, ds.sym) {
			continue
		}
		pre := strings.TrimSuffix(s, ds.sym)
		if pre == "" {
			return Unit{Dim: ds.dim}, nil
		}
		for i, p := range prefixes {
			if p == pre {
				return Unit{Dim: ds.dim, Exp: int8(i + minExp)}, nil
			}
		}
	}
	return Unit{}, xerrors.Errorf("meta: unknown unit symbol %q: %w", s, ErrInvalid)
}
