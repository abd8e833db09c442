package programs

import (
	"encoding/binary"
	"fmt"

	"github.com/R3E-Network/launch_layer/internal/solana"
)

// Discriminator is the 8-byte instruction selector prefixed to Anchor
// instruction data.
type Discriminator [8]byte

// Writer builds borsh-encoded instruction data.
type Writer struct {
	buf []byte
}

// NewWriter starts instruction data with the given discriminator.
func NewWriter(d Discriminator) *Writer {
	w := &Writer{buf: make([]byte, 0, 128)}
	w.buf = append(w.buf, d[:]...)
	return w
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) U16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) U64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

// Str writes a u32 length prefix followed by the UTF-8 bytes.
func (w *Writer) Str(s string) *Writer {
	w.U32(uint32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

func (w *Writer) PublicKey(pk solana.PublicKey) *Writer {
	w.buf = append(w.buf, pk[:]...)
	return w
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reader decodes borsh-encoded instruction data.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader checks the discriminator and positions the reader after it.
func NewReader(data []byte, want Discriminator) (*Reader, error) {
	if len(data) < len(want) {
		return nil, fmt.Errorf("instruction data too short: %d bytes", len(data))
	}
	var got Discriminator
	copy(got[:], data)
	if got != want {
		return nil, fmt.Errorf("discriminator mismatch: got %v, want %v", got, want)
	}
	return &Reader{buf: data, pos: len(want)}, nil
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("instruction data truncated at offset %d (need %d bytes)", r.pos, n)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) U8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) U16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) U32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) U64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *Reader) Str() string {
	n := r.U32()
	if b := r.take(int(n)); b != nil {
		return string(b)
	}
	return ""
}

func (r *Reader) PublicKey() solana.PublicKey {
	var pk solana.PublicKey
	if b := r.take(solana.PublicKeyLength); b != nil {
		copy(pk[:], b)
	}
	return pk
}

// Finish returns the first decode error, or an error if bytes remain.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.buf) {
		return fmt.Errorf("instruction data has %d trailing bytes", len(r.buf)-r.pos)
	}
	return nil
}
