// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

// FlushHandler consumes buffered bytes when a buffer flushes. It returns
// how many bytes of the prefix of p it consumed; the remainder stays
// buffered and shifts to the front. deep is set for a deep flush, which a
// chaining handler must cascade to its downstream buffer or sink.
type FlushHandler func(deep bool, p []byte) (consumed int, err error)

// Buffer is a contiguous byte arena with a request/commit write
// discipline. An entry writer requests an upper bound of contiguous
// space, encodes, then commits exactly the bytes written; a request may
// trigger a flush to make room. Implementations are not safe for
// concurrent use.
//
// A Buffer binds to at most one Trace; the binding is exclusive and
// symmetric.
type Buffer interface {
	// Request returns a writable region of at least n contiguous bytes,
	// flushing first if needed, or ErrBufferNotAvail.
	Request(n int) ([]byte, error)
	// Commit advances the write cursor by exactly the bytes used after the
	// preceding Request.
	Commit(n int) error
	// Avail returns the remaining writable byte count.
	Avail() int
	// Bytes returns the buffered content.
	Bytes() []byte
	// Len returns the number of buffered bytes.
	Len() int
	// Clear discards all buffered bytes.
	Clear()
	// Flush hands buffered bytes to the handler.
	Flush() error
	// DeepFlush flushes and asks chaining handlers to cascade downstream.
	DeepFlush() error

	boundTrace() *Trace
	bindTrace(t *Trace)
}

// LinearBuffer is a single write region. On flush the handler may consume
// any prefix of the buffered bytes; the rest shifts to the front.
type LinearBuffer struct {
	bytes  []byte
	pos    int
	handle FlushHandler
	trace  *Trace
}

// NewLinearBuffer creates a linear buffer of the given capacity. handle
// may be nil for a pure accumulation buffer.
func NewLinearBuffer(capacity int, handle FlushHandler) *LinearBuffer {
	return &LinearBuffer{bytes: make([]byte, capacity), handle: handle}
}

// NewFixedBuffer creates a linear buffer.
//
// Deprecated: legacy spelling, use NewLinearBuffer.
func NewFixedBuffer(capacity int, handle FlushHandler) *LinearBuffer {
	return NewLinearBuffer(capacity, handle)
}

func (b *LinearBuffer) Request(n int) ([]byte, error) {
	if b.handle != nil && b.pos+n > len(b.bytes) {
		_ = b.flush(false)
	}
	if b.pos+n <= len(b.bytes) {
		return b.bytes[b.pos:], nil
	}
	return nil, ErrBufferNotAvail
}

func (b *LinearBuffer) Commit(n int) error {
	if b.pos+n <= len(b.bytes) {
		b.pos += n
		return nil
	}
	return ErrBufferOverflow
}

func (b *LinearBuffer) Avail() int { return len(b.bytes) - b.pos }

func (b *LinearBuffer) Bytes() []byte { return b.bytes[:b.pos] }

func (b *LinearBuffer) Len() int { return b.pos }

func (b *LinearBuffer) Clear() { b.pos = 0 }

func (b *LinearBuffer) Flush() error { return b.flush(false) }

func (b *LinearBuffer) DeepFlush() error { return b.flush(true) }

func (b *LinearBuffer) flush(deep bool) error {
	if b.handle == nil {
		return nil
	}
	consumed, err := b.handle(deep, b.bytes[:b.pos])
	if consumed > 0 {
		if consumed >= b.pos {
			b.pos = 0
		} else {
			copy(b.bytes, b.bytes[consumed:b.pos])
			b.pos -= consumed
		}
	}
	return err
}

func (b *LinearBuffer) boundTrace() *Trace { return b.trace }

func (b *LinearBuffer) bindTrace(t *Trace) { b.trace = t }
