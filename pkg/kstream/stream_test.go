package kstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedReadsAdvancePosition(t *testing.T) {
	s := New([]byte{0x01, 0x00, 0x0A, 0x00, 0x00, 0x00})
	v, err := s.ReadU2le()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), v)
	assert.Equal(t, int64(2), s.Pos())

	n, err := s.ReadU4le()
	require.NoError(t, err)
	assert.Equal(t, uint32(10), n)
	assert.Equal(t, int64(6), s.Pos())
}

func TestReadU4AtShortfallFailsAndLeavesPositionUnchanged(t *testing.T) {
	s := New([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	err := s.Seek(2)
	require.NoError(t, err)
	_, err = s.ReadU4le()
	require.Error(t, err)
	var eof *EndOfStreamError
	require.ErrorAs(t, err, &eof)
	assert.Equal(t, int64(2), s.Pos())
}

func TestReadU4AtNMinus3(t *testing.T) {
	s := New(make([]byte, 5))
	require.NoError(t, s.Seek(2))
	_, err := s.ReadU4le()
	require.Error(t, err)
	assert.Equal(t, int64(2), s.Pos())
}

func TestSignedAndUnsignedBigEndian(t *testing.T) {
	s := New([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	u, err := s.ReadU4be()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), u)

	s2 := New([]byte{0xFF, 0xFF})
	sv, err := s2.ReadS2be()
	require.NoError(t, err)
	assert.Equal(t, int16(-1), sv)
}

func TestFloats(t *testing.T) {
	// 1.0 as IEEE-754 le f4
	s := New([]byte{0x00, 0x00, 0x80, 0x3F})
	f, err := s.ReadF4le()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(f), 1e-9)
}

func TestTerminatedReadFoundConsume(t *testing.T) {
	s := New([]byte("hello\x00world"))
	b, err := s.ReadBytesTerm(TermParams{Term: 0, Include: false, Consume: true, EOSError: false})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	assert.Equal(t, int64(6), s.Pos())
}

func TestTerminatedReadNotFoundNoEOSError(t *testing.T) {
	s := New([]byte("nomatchhere"))
	b, err := s.ReadBytesTerm(TermParams{Term: 0, Include: false, Consume: true, EOSError: false})
	require.NoError(t, err)
	assert.Equal(t, "nomatchhere", string(b))
	assert.Equal(t, int64(11), s.Pos())
}

func TestTerminatedReadNotFoundWithEOSError(t *testing.T) {
	s := New([]byte("nomatchhere"))
	_, err := s.ReadBytesTerm(TermParams{Term: 0, EOSError: true})
	require.Error(t, err)
}

func TestReadBitsIntBeEqualsReadU1WhenByteAligned(t *testing.T) {
	s1 := New([]byte{0xAB})
	v, err := s1.ReadBitsIntBe(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xAB), v)

	s2 := New([]byte{0xAB})
	u, err := s2.ReadU1()
	require.NoError(t, err)
	assert.Equal(t, uint64(u), v)
}

func TestReadBitsIntBeTakesMostSignificantBitsFirst(t *testing.T) {
	// 0b1011_0110, 0b1010_1010 -> top 3 bits = 0b101 = 5
	s := New([]byte{0xB6, 0xAA})
	v, err := s.ReadBitsIntBe(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x5), v)
}

func TestReadBitsIntLeAssemblesLowOrderFirst(t *testing.T) {
	// low 3 bits of 0b0000_0101 = 0b101 = 5, occupy low bits of the 3-bit result.
	s := New([]byte{0x05})
	v, err := s.ReadBitsIntLe(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x5), v)
}

func TestAlignToByteDiscardsBitBuffer(t *testing.T) {
	s := New([]byte{0xFF, 0x01})
	_, err := s.ReadBitsIntBe(3)
	require.NoError(t, err)
	s.AlignToByte()
	v, err := s.ReadU1()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), v)
}

func TestSubstreamAdvancesParentByExactSizeAndIsIndependent(t *testing.T) {
	parent := New([]byte{1, 2, 3, 4, 5, 6})
	err := parent.Seek(1)
	require.NoError(t, err)
	sub, err := parent.Substream(3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), parent.Pos())

	b, err := sub.ReadBytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 4}, b)
	assert.True(t, sub.EOF())

	// Parent's byte region is untouched by the substream's cursor.
	rest, err := parent.ReadBytes(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6}, rest)
}

func TestRepeatEOSOnZeroLengthStreamYieldsImmediateEOF(t *testing.T) {
	s := New(nil)
	assert.True(t, s.EOF())
}

func TestSeekPastEndFails(t *testing.T) {
	s := New([]byte{1, 2, 3})
	err := s.Seek(10)
	require.Error(t, err)
}
