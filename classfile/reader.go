package classfile

import (
	"math"

	"golang.org/x/crypto/cryptobyte"
)

// ByteReader is a big-endian cursor over a fixed byte range. The first failed
// read is sticky: later reads return zero values and Err reports the failure.
type ByteReader struct {
	s     cryptobyte.String
	limit int
	err   error
}

func NewByteReader(data []byte) *ByteReader {
	return &ByteReader{s: cryptobyte.String(data), limit: len(data)}
}

// NewByteReaderRange reads data[offset:offset+length]. Positions stay
// relative to data.
func NewByteReaderRange(data []byte, offset, length int) (*ByteReader, error) {
	if offset < 0 || length < 0 || offset+length > len(data) {
		return nil, formatError(ErrTruncatedInput, "range [%d, %d) exceeds %d bytes", offset, offset+length, len(data))
	}
	return &ByteReader{
		s:     cryptobyte.String(data[offset : offset+length]),
		limit: offset + length,
	}, nil
}

func (r *ByteReader) fail(want int) {
	if r.err == nil {
		r.err = formatError(ErrTruncatedInput, "truncated class file: need %d bytes at offset %d, %d available",
			want, r.Position(), len(r.s))
	}
}

func (r *ByteReader) Err() error { return r.err }

func (r *ByteReader) Position() int { return r.limit - len(r.s) }

func (r *ByteReader) Remaining() int { return len(r.s) }

// AssertExhausted fails with ErrTrailingBytes unless every byte was consumed.
func (r *ByteReader) AssertExhausted() error {
	if r.err != nil {
		return r.err
	}
	if !r.s.Empty() {
		return formatError(ErrTrailingBytes, "%d extra bytes at offset %d", len(r.s), r.Position())
	}
	return nil
}

func (r *ByteReader) ReadU1() uint8 {
	var v uint8
	if r.err != nil {
		return 0
	}
	if !r.s.ReadUint8(&v) {
		r.fail(1)
	}
	return v
}

func (r *ByteReader) ReadU2() uint16 {
	var v uint16
	if r.err != nil {
		return 0
	}
	if !r.s.ReadUint16(&v) {
		r.fail(2)
	}
	return v
}

func (r *ByteReader) ReadU4() uint32 {
	var v uint32
	if r.err != nil {
		return 0
	}
	if !r.s.ReadUint32(&v) {
		r.fail(4)
	}
	return v
}

func (r *ByteReader) ReadU8() uint64 {
	var v uint64
	if r.err != nil {
		return 0
	}
	if !r.s.ReadUint64(&v) {
		r.fail(8)
	}
	return v
}

func (r *ByteReader) ReadS1() int8  { return int8(r.ReadU1()) }
func (r *ByteReader) ReadS2() int16 { return int16(r.ReadU2()) }
func (r *ByteReader) ReadS4() int32 { return int32(r.ReadU4()) }
func (r *ByteReader) ReadS8() int64 { return int64(r.ReadU8()) }

func (r *ByteReader) ReadFloat() float32 { return math.Float32frombits(r.ReadU4()) }

func (r *ByteReader) ReadDouble() float64 { return math.Float64frombits(r.ReadU8()) }

// ReadBytes returns a view of the next n bytes without copying.
func (r *ByteReader) ReadBytes(n int) []byte {
	var v []byte
	if r.err != nil {
		return nil
	}
	if n < 0 || !r.s.ReadBytes(&v, n) {
		r.fail(n)
		return nil
	}
	return v
}

// ReadUtf8 reads a u2 length followed by that many modified UTF-8 bytes and
// returns a view of the bytes.
func (r *ByteReader) ReadUtf8() []byte {
	var v cryptobyte.String
	if r.err != nil {
		return nil
	}
	if !r.s.ReadUint16LengthPrefixed(&v) {
		r.fail(2)
		return nil
	}
	return v
}

func (r *ByteReader) Skip(n int) {
	if r.err != nil {
		return
	}
	if n < 0 || !r.s.Skip(n) {
		r.fail(n)
	}
}
