// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux_test

import (
	"bytes"
	"errors"
	"testing"

	"code.hybscloud.com/flux"
)

const sectionHeaderSize = 7

func TestWriteSectionEntriesLayout(t *testing.T) {
	b := flux.NewRingBuffer(768, nil)
	if err := flux.WriteSectionEntries(b, 3); err != nil {
		t.Fatal(err)
	}
	arena := b.Bytes()
	if len(arena) != 768 {
		t.Fatalf("arena len=%d", len(arena))
	}
	// 3 sections of 256 bytes: 249 content each.
	for n, off := range []int{0, 256, 512} {
		if arena[off] != 0 || arena[off+1] != flux.EntrySect {
			t.Fatalf("section %d: bad header tag % x", n, arena[off:off+2])
		}
		if size := int(arena[off+3]) | int(arena[off+4])<<8; size != 249 {
			t.Fatalf("section %d: content size %d, want 249", n, size)
		}
	}
	// First section entered (counter 1), last carries the overflow mark.
	if arena[2] != 1 {
		t.Fatalf("first counter %#x, want 1", arena[2])
	}
	if arena[256+2] != 0 {
		t.Fatalf("middle counter %#x, want 0", arena[256+2])
	}
	if arena[512+2] != 0x80 {
		t.Fatalf("last counter %#x, want 0x80", arena[512+2])
	}
}

func TestWriteSectionEntriesRequiresRing(t *testing.T) {
	b := flux.NewLinearBuffer(768, nil)
	if err := flux.WriteSectionEntries(b, 3); !errors.Is(err, flux.ErrBufferUnknownCommand) {
		t.Fatalf("err=%v, want ErrBufferUnknownCommand", err)
	}
}

func TestWriteSectionEntriesTooSmall(t *testing.T) {
	b := flux.NewRingBuffer(32, nil)
	if err := flux.WriteSectionEntries(b, 3); !errors.Is(err, flux.ErrBufferNotAvail) {
		t.Fatalf("err=%v, want ErrBufferNotAvail", err)
	}
}

// fillRing writes n binary data entries of payloadLen bytes each.
func fillRing(t *testing.T, b flux.Buffer, n, payloadLen int) {
	t.Helper()
	payload := bytes.Repeat([]byte{0x5a}, payloadLen)
	for i := 0; i < n; i++ {
		if err := flux.WriteBinaryDataEntry(b, 1, false, 0, payload); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}
}

func TestRingRecyclesSections(t *testing.T) {
	b := flux.NewRingBuffer(768, nil)
	if err := flux.WriteSectionEntries(b, 3); err != nil {
		t.Fatal(err)
	}

	// Each entry is 103 bytes (1 tagged id + 2 size prefix + 100 payload);
	// a 249-byte section holds two. Seven entries therefore advance three
	// times and wrap back into the first section.
	fillRing(t, b, 7, 100)

	arena := b.Bytes()
	if got := arena[2]; got != 2 {
		t.Fatalf("first section counter %#x, want 2 after recycling", got)
	}
	if got := arena[256+2]; got != 1 {
		t.Fatalf("middle section counter %#x, want 1", got)
	}
	if got := arena[512+2]; got != 0x81 {
		t.Fatalf("last section counter %#x, want 0x81", got)
	}
	// The recycled first section holds exactly one committed entry.
	if used := int(arena[5]) | int(arena[6])<<8; used != 103 {
		t.Fatalf("recycled section used=%d, want 103", used)
	}
	// Untouched middle section still reports both entries.
	if used := int(arena[256+5]) | int(arena[256+6])<<8; used != 206 {
		t.Fatalf("middle section used=%d, want 206", used)
	}
}

func TestRingCounterNibbleWraps(t *testing.T) {
	b := flux.NewRingBuffer(768, nil)
	if err := flux.WriteSectionEntries(b, 3); err != nil {
		t.Fatal(err)
	}
	// 3 sections x 2 entries per pass; 50 passes force nibble wrapping.
	fillRing(t, b, 300, 100)

	arena := b.Bytes()
	for _, off := range []int{0, 256, 512} {
		nibble := arena[off+2] & 0x0f
		if nibble == 0 || nibble > 15 {
			t.Fatalf("section at %d: counter nibble %d out of 1..15", off, nibble)
		}
	}
	if arena[512+2]&0x80 == 0 {
		t.Fatalf("last section lost its overflow mark: %#x", arena[512+2])
	}
}

func TestRingSectionInitReemitsHead(t *testing.T) {
	b := flux.NewRingBuffer(768, func(rb *flux.RingBuffer, tr *flux.Trace) {
		_ = flux.WriteHeadEntry(rb, "flux", 0, "ring", "", flux.ModeHeadNormal, 0, 0)
	})
	if err := flux.WriteSectionEntries(b, 3); err != nil {
		t.Fatal(err)
	}
	fillRing(t, b, 3, 100)

	// The third entry advanced into section 1; its content must start
	// with the re-emitted head entry.
	arena := b.Bytes()
	content := arena[256+sectionHeaderSize:]
	want := []byte{0x00, flux.EntryHead, 'f', 'l', 'u', 'x'}
	if !bytes.Equal(content[:len(want)], want) {
		t.Fatalf("section 1 starts % x, want head entry", content[:len(want)])
	}
}

func TestRingEntryLargerThanSectionFails(t *testing.T) {
	b := flux.NewRingBuffer(768, nil)
	if err := flux.WriteSectionEntries(b, 3); err != nil {
		t.Fatal(err)
	}
	err := flux.WriteBinaryDataEntry(b, 1, false, 0, make([]byte, 400))
	if !errors.Is(err, flux.ErrBufferNotAvail) {
		t.Fatalf("err=%v, want ErrBufferNotAvail", err)
	}
}

func TestRingFlushUnsupported(t *testing.T) {
	b := flux.NewRingBuffer(768, nil)
	if err := b.Flush(); !errors.Is(err, flux.ErrBufferUnknownCommand) {
		t.Fatalf("err=%v, want ErrBufferUnknownCommand", err)
	}
}
