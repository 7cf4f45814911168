// Package wire is the node's binary codec: a small, type-tagged,
// length-prefixed encoding used for every peer protocol message and for
// the write-ahead log. It favors a fixed, hand-rolled layout over a
// general-purpose schema language, matching a closed peer set with a fixed
// message catalog.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/forgebound/ledgercore/memory"
)

// ErrShortRead is returned when a Reader runs out of bytes mid-field.
var ErrShortRead = errors.New("wire: short read")

// Writer builds a canonical byte buffer. Its underlying buffer comes from
// memory's size-classed buffer pools; call PutWriter when done to return it.
type Writer struct {
	buf *bytes.Buffer
}

// GetWriter returns a Writer backed by a pooled buffer, reset and ready to use.
func GetWriter() *Writer {
	return &Writer{buf: memory.GetBuffer(memory.SmallBufferSize)}
}

// PutWriter returns the Writer's underlying buffer to its pool. Callers
// must not use w after calling PutWriter.
func PutWriter(w *Writer) {
	memory.PutBuffer(w.buf)
	w.buf = nil
}

// Bytes returns the accumulated bytes. The slice is only valid until the
// next call into w or until the Writer is released.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) { w.buf.WriteByte(v) }

// WriteUint16 appends a big-endian uint16.
func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint32 appends a big-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint64 appends a big-endian uint64.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteBytes appends a length-prefixed byte slice.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf.Write(b)
}

// WriteFixed appends raw bytes with no length prefix, for fixed-width
// fields like hashes where the length is implied by the schema.
func (w *Writer) WriteFixed(b []byte) {
	w.buf.Write(b)
}

// Reader consumes a byte slice sequentially, tracking position.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential reading.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, ErrShortRead
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrShortRead
	}
	v := binary.BigEndian.Uint16(r.data[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrShortRead
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

// ReadUint64 reads a big-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	if r.Remaining() < 8 {
		return 0, ErrShortRead
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// ReadBytes reads a length-prefixed byte slice.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return r.ReadFixed(int(n))
}

// ReadFixed reads exactly n raw bytes with no length prefix.
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrShortRead
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// TypeID tags the wire format of every peer protocol and WAL message with
// a stable, single-byte discriminator.
type TypeID uint8

// Marshaler is implemented by every wire message.
type Marshaler interface {
	MarshalWire(w *Writer)
	TypeID() TypeID
}

// Unmarshaler decodes a message body previously produced by MarshalWire.
type Unmarshaler interface {
	UnmarshalWire(r *Reader) error
}

// Encode writes a tagged envelope: one byte of TypeID followed by the
// message's own encoding.
func Encode(m Marshaler) []byte {
	w := GetWriter()
	defer PutWriter(w)
	w.WriteUint8(uint8(m.TypeID()))
	m.MarshalWire(w)
	out := make([]byte, len(w.Bytes()))
	copy(out, w.Bytes())
	return out
}

// Decode reads the TypeID tag and constructs + decodes the matching
// message via factory, a registry of TypeID -> zero-value constructor.
func Decode(data []byte, factory map[TypeID]func() Unmarshaler) (TypeID, Unmarshaler, error) {
	if len(data) < 1 {
		return 0, nil, ErrShortRead
	}
	typeID := TypeID(data[0])
	newMsg, ok := factory[typeID]
	if !ok {
		return typeID, nil, fmt.Errorf("wire: unknown type id %d", typeID)
	}
	msg := newMsg()
	if err := msg.UnmarshalWire(NewReader(data[1:])); err != nil {
		return typeID, nil, err
	}
	return typeID, msg, nil
}
