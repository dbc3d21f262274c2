// Package kstream implements the byte-stream reader: random-access typed
// reads over an immutable byte region, a bit accumulator for sub-byte
// reads, and sub-stream carving. It is the leaf dependency of the module —
// nothing here imports any other kstruct package.
package kstream

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Stream is a cursor over an immutable byte region. The zero value is not
// usable; construct with New or Substream.
type Stream struct {
	buf           []byte
	pos           int
	bitBuffer     uint64
	bitsRemaining int
	// bitsLE remembers which bit-order the accumulator was last filled
	// under, so mixing read_bits_int_be/le on the same leftover bits is
	// rejected rather than silently misinterpreted.
	bitsLE bool
}

// New wraps buf (borrowed, not copied) in a Stream starting at position 0.
func New(buf []byte) *Stream {
	return &Stream{buf: buf}
}

// Size returns the total length of the backing byte region.
func (s *Stream) Size() int64 { return int64(len(s.buf)) }

// Pos returns the current byte offset.
func (s *Stream) Pos() int64 { return int64(s.pos) }

// EOF reports whether the cursor has reached the end of the region. A
// partially-consumed bit accumulator does not count as more data available.
func (s *Stream) EOF() bool { return s.pos >= len(s.buf) }

// Seek moves the cursor to an absolute byte offset and discards any
// in-flight bit accumulator, mirroring the implicit byte-align rule any
// non-bit operation carries.
func (s *Stream) Seek(pos int64) error {
	if pos < 0 || pos > int64(len(s.buf)) {
		return &EndOfStreamError{Pos: pos, Requested: 0}
	}
	s.pos = int(pos)
	s.alignToByte()
	return nil
}

// AlignToByte discards any partially-consumed bit accumulator.
func (s *Stream) AlignToByte() { s.alignToByte() }

func (s *Stream) alignToByte() {
	s.bitBuffer = 0
	s.bitsRemaining = 0
}

func (s *Stream) requireBytes(n int) error {
	if n < 0 || s.pos+n > len(s.buf) {
		return &EndOfStreamError{Pos: int64(s.pos), Requested: int64(n)}
	}
	return nil
}

func (s *Stream) readRaw(n int) ([]byte, error) {
	if err := s.requireBytes(n); err != nil {
		return nil, err
	}
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	s.alignToByte()
	return b, nil
}

// ReadBytes reads n raw bytes and advances the cursor. The returned slice
// aliases the backing region; callers that need an owned copy must copy it.
func (s *Stream) ReadBytes(n int) ([]byte, error) { return s.readRaw(n) }

// ReadBytesFull returns every remaining byte and advances the cursor to
// the end of the region.
func (s *Stream) ReadBytesFull() ([]byte, error) {
	b := s.buf[s.pos:]
	s.pos = len(s.buf)
	s.alignToByte()
	return b, nil
}

// ReadU1 reads one unsigned byte.
func (s *Stream) ReadU1() (uint8, error) {
	b, err := s.readRaw(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadS1 reads one signed byte.
func (s *Stream) ReadS1() (int8, error) {
	v, err := s.ReadU1()
	return int8(v), err
}

// ReadU2le/be, ReadU4le/be, ReadU8le/be, and their signed and float
// counterparts follow the same shape: read the fixed width, decode with
// the named byte order.

func (s *Stream) ReadU2le() (uint16, error) {
	b, err := s.readRaw(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (s *Stream) ReadU2be() (uint16, error) {
	b, err := s.readRaw(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (s *Stream) ReadS2le() (int16, error) {
	v, err := s.ReadU2le()
	return int16(v), err
}

func (s *Stream) ReadS2be() (int16, error) {
	v, err := s.ReadU2be()
	return int16(v), err
}

func (s *Stream) ReadU4le() (uint32, error) {
	b, err := s.readRaw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s *Stream) ReadU4be() (uint32, error) {
	b, err := s.readRaw(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (s *Stream) ReadS4le() (int32, error) {
	v, err := s.ReadU4le()
	return int32(v), err
}

func (s *Stream) ReadS4be() (int32, error) {
	v, err := s.ReadU4be()
	return int32(v), err
}

func (s *Stream) ReadU8le() (uint64, error) {
	b, err := s.readRaw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (s *Stream) ReadU8be() (uint64, error) {
	b, err := s.readRaw(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (s *Stream) ReadS8le() (int64, error) {
	v, err := s.ReadU8le()
	return int64(v), err
}

func (s *Stream) ReadS8be() (int64, error) {
	v, err := s.ReadU8be()
	return int64(v), err
}

func (s *Stream) ReadF4le() (float32, error) {
	v, err := s.ReadU4le()
	return math.Float32frombits(v), err
}

func (s *Stream) ReadF4be() (float32, error) {
	v, err := s.ReadU4be()
	return math.Float32frombits(v), err
}

func (s *Stream) ReadF8le() (float64, error) {
	v, err := s.ReadU8le()
	return math.Float64frombits(v), err
}

func (s *Stream) ReadF8be() (float64, error) {
	v, err := s.ReadU8be()
	return math.Float64frombits(v), err
}

// TermParams configures a terminated read.
type TermParams struct {
	Term     byte
	Include  bool
	Consume  bool
	EOSError bool
}

// ReadBytesTerm scans forward from the current position for Term: on a
// hit, pos lands past the terminator when Consume is set, otherwise at
// the terminator; on a miss, pos lands at N unless EOSError requires
// failure.
func (s *Stream) ReadBytesTerm(p TermParams) ([]byte, error) {
	start := s.pos
	end := start
	found := false
	for end < len(s.buf) {
		if s.buf[end] == p.Term {
			found = true
			break
		}
		end++
	}
	if !found {
		if p.EOSError {
			return nil, &EndOfStreamError{Pos: int64(start), Requested: -1}
		}
		s.pos = len(s.buf)
		s.alignToByte()
		return s.buf[start:end], nil
	}
	var result []byte
	if p.Include {
		result = s.buf[start : end+1]
	} else {
		result = s.buf[start:end]
	}
	if p.Consume {
		s.pos = end + 1
	} else {
		s.pos = end
	}
	s.alignToByte()
	return result, nil
}

// Substream carves a bounded, disjoint window B[pos..pos+size) into its
// own Stream and advances the parent's position past it.
func (s *Stream) Substream(size int64) (*Stream, error) {
	if size < 0 {
		return nil, fmt.Errorf("kstream: negative substream size %d", size)
	}
	if err := s.requireBytes(int(size)); err != nil {
		return nil, err
	}
	sub := New(s.buf[s.pos : s.pos+int(size)])
	s.pos += int(size)
	s.alignToByte()
	return sub, nil
}

// ReadBitsIntBe reads n (1..64) bits, most-significant-bit-first within
// each freshly loaded byte.
func (s *Stream) ReadBitsIntBe(n int) (uint64, error) {
	if n < 1 || n > 64 {
		return 0, fmt.Errorf("kstream: read_bits_int_be: n=%d out of range", n)
	}
	if s.bitsRemaining > 0 && s.bitsLE {
		return 0, fmt.Errorf("kstream: cannot mix read_bits_int_be with pending little-endian bits")
	}
	var result uint64
	bitsNeeded := n
	for bitsNeeded > 0 {
		if s.bitsRemaining == 0 {
			b, err := s.readRaw(1)
			if err != nil {
				return 0, err
			}
			s.bitBuffer = uint64(b[0])
			s.bitsRemaining = 8
			s.bitsLE = false
		}
		take := bitsNeeded
		if take > s.bitsRemaining {
			take = s.bitsRemaining
		}
		shift := s.bitsRemaining - take
		mask := uint64(1)<<uint(s.bitsRemaining) - 1
		chunk := (s.bitBuffer & mask) >> uint(shift)
		result = (result << uint(take)) | chunk
		s.bitsRemaining -= take
		bitsNeeded -= take
	}
	return result, nil
}

// ReadBitsIntLe reads n (1..64) bits, least-significant-bit-first within
// each freshly loaded byte, assembling the result with the first bits read
// occupying the low-order positions of the output.
func (s *Stream) ReadBitsIntLe(n int) (uint64, error) {
	if n < 1 || n > 64 {
		return 0, fmt.Errorf("kstream: read_bits_int_le: n=%d out of range", n)
	}
	if s.bitsRemaining > 0 && !s.bitsLE {
		return 0, fmt.Errorf("kstream: cannot mix read_bits_int_le with pending big-endian bits")
	}
	var result uint64
	bitsNeeded := n
	shiftOut := 0
	for bitsNeeded > 0 {
		if s.bitsRemaining == 0 {
			b, err := s.readRaw(1)
			if err != nil {
				return 0, err
			}
			s.bitBuffer = uint64(b[0])
			s.bitsRemaining = 8
			s.bitsLE = true
		}
		take := bitsNeeded
		if take > s.bitsRemaining {
			take = s.bitsRemaining
		}
		consumed := 8 - s.bitsRemaining
		chunk := (s.bitBuffer >> uint(consumed)) & (uint64(1)<<uint(take) - 1)
		result |= chunk << uint(shiftOut)
		shiftOut += take
		s.bitsRemaining -= take
		bitsNeeded -= take
	}
	return result, nil
}
