// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scanio

import (
	"encoding/binary"
	"io"
	"math"

	"golang.org/x/xerrors"

	"github.com/go-spm/spmc/internal/crc16"
	"github.com/go-spm/spmc/meta"
)

const (
	version = 1 // scan-binary container version

	maxSamples = 1 << 26 // sanity bound when reading back
	maxComment = 1 << 16
)

var magic = [4]byte{'S', 'P', 'M', 'B'}

// Encoder writes frames to an output stream in the scan-binary
// format. All multi-byte values are little-endian. Encoder computes
// a CRC-16 checksum on the fly and appends it to every frame.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	crc crc16.Hash16
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Encode appends one frame to the stream.
func (enc *Encoder) Encode(hdr Header, data []int32) error {
	if len(hdr.Comment) >= maxComment {
		return xerrors.Errorf("scanio: comment too long (%d bytes): %w", len(hdr.Comment), meta.ErrOutOfRange)
	}

	enc.crc.Reset()

	enc.write(magic[:])
	if enc.err != nil {
		return xerrors.Errorf("scanio: could not write magic: %w", enc.err)
	}
	enc.writeU16(version)

	m := hdr.Meta
	enc.writeU8(uint8(m.Order))
	enc.writeU8(uint8(hdr.Dir))
	enc.writeI32(hdr.FrameNo)
	enc.writeI64(int64(hdr.Index))
	enc.writeI32(int32(m.NX))
	enc.writeI32(int32(m.NY))
	enc.writeF64(m.StepX)
	enc.writeF64(m.StepY)
	enc.writeF64(m.OriginX)
	enc.writeF64(m.OriginY)
	enc.writeF64(m.Rot)
	enc.writeU8(uint8(m.UnitXY.Dim))
	enc.writeU8(uint8(m.UnitXY.Exp))
	enc.writeU8(uint8(m.UnitVal.Dim))
	enc.writeU8(uint8(m.UnitVal.Exp))
	enc.writeF64(m.StepVal)
	enc.writeF64(m.StepNum)
	enc.writeF64(m.OffVal)
	enc.writeU32(uint32(len(hdr.Comment)))
	enc.write([]byte(hdr.Comment))
	if enc.err != nil {
		return xerrors.Errorf("scanio: could not write frame header: %w", enc.err)
	}

	enc.writeU32(uint32(len(data)))
	for _, v := range data {
		enc.writeI32(v)
	}
	if enc.err != nil {
		return xerrors.Errorf("scanio: could not write frame samples: %w", enc.err)
	}

	enc.writeU16(enc.crc.Sum16())
	if enc.err != nil {
		return xerrors.Errorf("scanio: could not write frame checksum: %w", enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
	if enc.err == nil {
		_, _ = enc.crc.Write(p) // can not fail.
	}
}

func (enc *Encoder) writeU8(v uint8) {
	const n = 1
	enc.buf[0] = v
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU16(v uint16) {
	const n = 2
	binary.LittleEndian.PutUint16(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU32(v uint32) {
	const n = 4
	binary.LittleEndian.PutUint32(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU64(v uint64) {
	const n = 8
	binary.LittleEndian.PutUint64(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeI32(v int32) { enc.writeU32(uint32(v)) }
func (enc *Encoder) writeI64(v int64) { enc.writeU64(uint64(v)) }

func (enc *Encoder) writeF64(v float64) { enc.writeU64(math.Float64bits(v)) }

// Decoder reads frames back from a scan-binary stream, validating
// the CRC-16 checksum of every frame on the fly.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
	crc crc16.Hash16
}

// NewDecoder creates a decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Decode reads the next frame of the stream into hdr and data,
// growing *data as needed. It returns io.EOF once the stream is
// exhausted.
func (dec *Decoder) Decode(hdr *Header, data *[]int32) error {
	dec.crc.Reset()

	var mgc [4]byte
	dec.read(mgc[:])
	if dec.err != nil {
		if dec.err == io.EOF {
			return io.EOF
		}
		return xerrors.Errorf("scanio: could not read magic: %w", dec.err)
	}
	if mgc != magic {
		return xerrors.Errorf("scanio: invalid magic %q: %w", mgc[:], meta.ErrInvalid)
	}

	v := dec.readU16()
	if dec.err != nil {
		return xerrors.Errorf("scanio: could not read version: %w", dec.err)
	}
	if v != version {
		return xerrors.Errorf("scanio: unknown version %d: %w", v, meta.ErrInvalid)
	}

	m := &hdr.Meta
	m.Order = meta.Order(dec.readU8())
	hdr.Dir = Dir(dec.readU8())
	hdr.FrameNo = dec.readI32()
	hdr.Index = int(dec.readI64())
	m.NX = int(dec.readI32())
	m.NY = int(dec.readI32())
	m.StepX = dec.readF64()
	m.StepY = dec.readF64()
	m.OriginX = dec.readF64()
	m.OriginY = dec.readF64()
	m.Rot = dec.readF64()
	m.UnitXY.Dim = meta.Dim(dec.readU8())
	m.UnitXY.Exp = int8(dec.readU8())
	m.UnitVal.Dim = meta.Dim(dec.readU8())
	m.UnitVal.Exp = int8(dec.readU8())
	m.StepVal = dec.readF64()
	m.StepNum = dec.readF64()
	m.OffVal = dec.readF64()

	nc := dec.readU32()
	if dec.err != nil {
		return xerrors.Errorf("scanio: could not read frame header: %w", dec.err)
	}
	if nc >= maxComment {
		return xerrors.Errorf("scanio: corrupted comment length %d: %w", nc, meta.ErrInvalid)
	}
	raw := make([]byte, nc)
	dec.read(raw)
	hdr.Comment = string(raw)

	n := dec.readU32()
	if dec.err != nil {
		return xerrors.Errorf("scanio: could not read sample count: %w", dec.err)
	}
	if n > maxSamples {
		return xerrors.Errorf("scanio: corrupted sample count %d: %w", n, meta.ErrInvalid)
	}

	if cap(*data) < int(n) {
		*data = make([]int32, n)
	}
	*data = (*data)[:n]
	for i := range *data {
		(*data)[i] = dec.readI32()
	}
	if dec.err != nil {
		return xerrors.Errorf("scanio: could not read %d samples: %w", n, dec.err)
	}

	var (
		compCRC = dec.crc.Sum16()
		recvCRC = dec.readU16()
	)
	if dec.err != nil {
		return xerrors.Errorf("scanio: could not read frame checksum: %w", dec.err)
	}
	if compCRC != recvCRC {
		return xerrors.Errorf("scanio: inconsistent frame CRC: recv=0x%04x comp=0x%04x: %w",
			recvCRC, compCRC, meta.ErrInvalid)
	}

	if err := hdr.Meta.Validate(); err != nil {
		return xerrors.Errorf("scanio: corrupted frame header: %w", err)
	}
	return nil
}

func (dec *Decoder) read(p []byte) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, p)
	if dec.err == nil {
		_, _ = dec.crc.Write(p) // can not fail.
	}
}

func (dec *Decoder) readU8() uint8 {
	const n = 1
	dec.read(dec.buf[:n])
	if dec.err != nil {
		return 0
	}
	return dec.buf[0]
}

func (dec *Decoder) readU16() uint16 {
	const n = 2
	dec.read(dec.buf[:n])
	if dec.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint16(dec.buf[:n])
}

func (dec *Decoder) readU32() uint32 {
	const n = 4
	dec.read(dec.buf[:n])
	if dec.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(dec.buf[:n])
}

func (dec *Decoder) readU64() uint64 {
	const n = 8
	dec.read(dec.buf[:n])
	if dec.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(dec.buf[:n])
}

func (dec *Decoder) readI32() int32 { return int32(dec.readU32()) }
func (dec *Decoder) readI64() int64 { return int64(dec.readU64()) }

func (dec *Decoder) readF64() float64 { return math.Float64frombits(dec.readU64()) }
