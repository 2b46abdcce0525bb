// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

// Ring section header layout: 0x00, SECT, counter, len_lo, len_hi,
// used_lo, used_hi. The counter's low nibble is the write-pass count
// (1..15, wrapping back to 1, never 0 after first use); the 0x80 bit marks
// the last section of the ring.
const sectionHeaderSize = 7

// SectionInit is invoked whenever a write advances the ring into its next
// section, with the section already reset to empty. It is not invoked for
// the first section, which WriteSectionEntries enters directly. A typical init re-emits the head
// entry so that a reader can start decoding from any section boundary.
// The callback must write less than sectionLen - sectionHeaderSize bytes.
type SectionInit func(b *RingBuffer, t *Trace)

// RingBuffer pre-partitions its capacity into fixed-size sections used
// cyclically. Until WriteSectionEntries commits the section layout the
// buffer behaves linearly; afterwards every write lands in the current
// section and a write that does not fit advances to the next section,
// recycling it.
//
// Section mode relinquishes program-order on the arena: readers must
// reconstruct order from the section counters.
type RingBuffer struct {
	bytes []byte
	pos   int
	init  SectionInit

	// section mode state; first < 0 while still linear
	first   int
	current int
	secLen  int
	secPos  int

	trace *Trace
}

// NewRingBuffer creates a ring buffer of the given capacity. The section
// layout is established later by WriteSectionEntries.
func NewRingBuffer(capacity int, init SectionInit) *RingBuffer {
	return &RingBuffer{bytes: make([]byte, capacity), init: init, first: -1, current: -1}
}

func (b *RingBuffer) Request(n int) ([]byte, error) {
	if b.first < 0 {
		if b.pos+n <= len(b.bytes) {
			return b.bytes[b.pos:], nil
		}
		return nil, ErrBufferNotAvail
	}
	if b.secPos+n <= b.secLen {
		return b.bytes[b.current+sectionHeaderSize+b.secPos:], nil
	}
	// Advance to the next section and recycle it.
	b.current += sectionHeaderSize + b.sectionLen(b.current)
	if b.current >= len(b.bytes) {
		b.current = b.first
	}
	counter := b.bytes[b.current+2]&0x0f + 1
	if counter >= 16 {
		counter = 1
	}
	b.bytes[b.current+2] = counter | b.bytes[b.current+2]&0x80
	b.secLen = b.sectionLen(b.current)
	b.secPos = 0
	b.putUsed(0)
	if b.init != nil {
		b.init(b, b.trace)
	}
	if b.secPos+n <= b.secLen {
		return b.bytes[b.current+sectionHeaderSize+b.secPos:], nil
	}
	return nil, ErrBufferNotAvail
}

func (b *RingBuffer) Commit(n int) error {
	if b.first < 0 {
		if b.pos+n <= len(b.bytes) {
			b.pos += n
			return nil
		}
		return ErrBufferOverflow
	}
	if b.secPos+n <= b.secLen {
		b.secPos += n
		b.putUsed(b.secPos)
		return nil
	}
	return ErrBufferOverflow
}

func (b *RingBuffer) Avail() int {
	if b.first < 0 {
		return len(b.bytes) - b.pos
	}
	return b.secLen - b.secPos
}

func (b *RingBuffer) Bytes() []byte { return b.bytes[:b.Len()] }

func (b *RingBuffer) Len() int {
	if b.first < 0 {
		return b.pos
	}
	return len(b.bytes)
}

func (b *RingBuffer) Clear() {
	b.pos = 0
	b.first = -1
	b.current = -1
}

// Flush has no meaning for a ring buffer; sections are recycled in place.
func (b *RingBuffer) Flush() error { return ErrBufferUnknownCommand }

func (b *RingBuffer) DeepFlush() error { return ErrBufferUnknownCommand }

func (b *RingBuffer) sectionLen(at int) int {
	return int(b.bytes[at+3]) | int(b.bytes[at+4])<<8
}

func (b *RingBuffer) putUsed(used int) {
	b.bytes[b.current+5] = byte(used)
	b.bytes[b.current+6] = byte(used >> 8)
}

// sectionCommit freezes the section headers written since the linear
// phase and enters section mode on the first section.
func (b *RingBuffer) sectionCommit() error {
	if b.first >= 0 {
		return ErrBufferOverflow
	}
	b.first = b.pos
	b.current = b.pos
	b.pos = len(b.bytes)
	b.bytes[b.current+2]++
	b.secLen = b.sectionLen(b.current)
	b.secPos = 0
	return nil
}

func (b *RingBuffer) boundTrace() *Trace { return b.trace }

func (b *RingBuffer) bindTrace(t *Trace) { b.trace = t }

// WriteSectionEntries partitions the remaining space of a ring buffer
// into noOfSections section entries and commits the section layout. The
// last section absorbs the remainder and carries the 0x80 counter mark.
func WriteSectionEntries(b Buffer, noOfSections int) error {
	rb, ok := b.(*RingBuffer)
	if !ok {
		return ErrBufferUnknownCommand
	}
	if noOfSections <= 0 {
		return ErrInvalidValue
	}
	if rb.first >= 0 {
		return ErrBufferOverflow
	}
	avail := len(rb.bytes) - rb.pos
	bytes := rb.bytes[rb.pos:]
	sectionSize := avail / noOfSections
	contentSize := sectionSize - sectionHeaderSize
	lastContentSize := avail - sectionSize*(noOfSections-1) - sectionHeaderSize
	if contentSize < 16 || lastContentSize < 16 || contentSize > 0xffff || lastContentSize > 0xffff {
		return ErrBufferNotAvail
	}
	w := 0
	for n := 0; n < noOfSections; n++ {
		counter := byte(0)
		if n == noOfSections-1 {
			counter = 0x80
			contentSize = lastContentSize
		}
		bytes[w] = 0
		bytes[w+1] = EntrySect
		bytes[w+2] = counter
		bytes[w+3] = byte(contentSize)
		bytes[w+4] = byte(contentSize >> 8)
		bytes[w+5] = 0
		bytes[w+6] = 0
		w += sectionHeaderSize + contentSize
	}
	return rb.sectionCommit()
}
