// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crc16 implements the 16-bit cyclic redundancy check, or
// CRC-16, checksum guarding scan-binary frames against corruption.
package crc16 // import "github.com/go-spm/spmc/internal/crc16"

import "hash"

// Size of a CRC-16 checksum in bytes.
const Size = 2

// Hash16 is the common interface implemented by all 16-bit hash
// functions.
type Hash16 interface {
	hash.Hash
	Sum16() uint16
}

// Table is a 256-word table representing the polynomial for efficient
// processing.
type Table [256]uint16

// CCITT is the CCITT polynomial, x^16 + x^12 + x^5 + 1.
const CCITT = 0x1021

var ccittTable = MakeTable(CCITT)

// MakeTable returns a Table constructed from the specified polynomial.
func MakeTable(poly uint16) *Table {
	tab := new(Table)
	for i := range tab {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		tab[i] = crc
	}
	return tab
}

// Update returns the result of adding the bytes in p to the crc.
func Update(crc uint16, tab *Table, p []byte) uint16 {
	for _, v := range p {
		crc = crc<<8 ^ tab[byte(crc>>8)^v]
	}
	return crc
}

type digest struct {
	crc uint16
	tab *Table
}

// New creates a new Hash16 computing the CRC-16 checksum using the
// polynomial represented by the Table. A nil Table selects the CCITT
// polynomial with an initial value of 0xffff.
func New(tab *Table) Hash16 {
	if tab == nil {
		tab = ccittTable
	}
	return &digest{crc: 0xffff, tab: tab}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = 0xffff }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = Update(d.crc, d.tab, p)
	return len(p), nil
}

func (d *digest) Sum16() uint16 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	s := d.Sum16()
	return append(in, byte(s>>8), byte(s))
}
