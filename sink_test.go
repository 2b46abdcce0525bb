// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux_test

import (
	"bytes"
	"errors"
	"testing"

	"code.hybscloud.com/iox"

	"code.hybscloud.com/flux"
)

// wouldBlockWriter accepts at most limit bytes per call, signalling
// iox.ErrWouldBlock on partial progress.
type wouldBlockWriter struct {
	buf    bytes.Buffer
	limit  int
	stalls int
}

func (w *wouldBlockWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := w.limit
	if n > len(p) {
		n = len(p)
	}
	if n <= 0 {
		w.stalls++
		return 0, iox.ErrWouldBlock
	}
	_, _ = w.buf.Write(p[:n])
	if n < len(p) {
		w.stalls++
		return n, iox.ErrWouldBlock
	}
	return n, nil
}

type syncWriter struct {
	bytes.Buffer
	synced int
}

func (w *syncWriter) Sync() error {
	w.synced++
	return nil
}

func TestWriteToConsumesAll(t *testing.T) {
	var out bytes.Buffer
	b := flux.NewLinearBuffer(64, flux.WriteTo(&out))
	region, _ := b.Request(8)
	copy(region, "entrydat")
	_ = b.Commit(8)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "entrydat" || b.Len() != 0 {
		t.Fatalf("out=%q len=%d", out.String(), b.Len())
	}
}

func TestWriteToRetriesWouldBlock(t *testing.T) {
	w := &wouldBlockWriter{limit: 3}
	b := flux.NewLinearBuffer(64, flux.WriteTo(w, flux.WithBlock()))
	region, _ := b.Request(10)
	copy(region, "0123456789")
	_ = b.Commit(10)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if w.buf.String() != "0123456789" {
		t.Fatalf("sunk %q", w.buf.String())
	}
	if w.stalls == 0 {
		t.Fatal("writer never stalled; test is vacuous")
	}
}

func TestWriteToNonblockSurfacesWouldBlock(t *testing.T) {
	w := &wouldBlockWriter{limit: 4}
	b := flux.NewLinearBuffer(64, flux.WriteTo(w, flux.WithNonblock()))
	region, _ := b.Request(10)
	copy(region, "0123456789")
	_ = b.Commit(10)

	err := b.Flush()
	if !errors.Is(err, flux.ErrWouldBlock) {
		t.Fatalf("err=%v, want ErrWouldBlock", err)
	}
	// Partial progress was consumed; the rest stays buffered.
	if w.buf.String() != "0123" {
		t.Fatalf("sunk %q", w.buf.String())
	}
	if b.Len() != 6 || !bytes.Equal(b.Bytes(), []byte("456789")) {
		t.Fatalf("len=%d bytes=%q", b.Len(), b.Bytes())
	}
}

func TestWriteToDeepFlushSyncs(t *testing.T) {
	w := &syncWriter{}
	b := flux.NewLinearBuffer(64, flux.WriteTo(w))
	region, _ := b.Request(4)
	copy(region, "data")
	_ = b.Commit(4)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if w.synced != 0 {
		t.Fatal("plain flush must not sync")
	}
	region, _ = b.Request(4)
	copy(region, "more")
	_ = b.Commit(4)
	if err := b.DeepFlush(); err != nil {
		t.Fatal(err)
	}
	if w.synced != 1 {
		t.Fatalf("synced=%d, want 1", w.synced)
	}
}

func TestCopyChainsBuffers(t *testing.T) {
	var out bytes.Buffer
	downstream := flux.NewLinearBuffer(256, flux.WriteTo(&out))
	upstream := flux.NewLinearBuffer(32, flux.Copy(downstream))

	// Fill the upstream buffer beyond capacity so it flushes through.
	for i := 0; i < 8; i++ {
		if err := flux.WriteBinaryDataEntry(upstream, 1, false, 0, []byte("payload")); err != nil {
			t.Fatal(err)
		}
	}
	if err := upstream.DeepFlush(); err != nil {
		t.Fatal(err)
	}
	// 8 entries of 9 bytes each end up at the final sink.
	if out.Len() != 72 {
		t.Fatalf("final sink got %d bytes, want 72", out.Len())
	}
	if !bytes.Contains(out.Bytes(), []byte("payload")) {
		t.Fatal("payload lost in the chain")
	}
}

func TestCompressChainEmitsPackEntries(t *testing.T) {
	var out bytes.Buffer
	downstream := flux.NewLinearBuffer(4096, flux.WriteTo(&out))
	upstream := flux.NewLinearBuffer(512, flux.CompressLZ4(downstream))

	payload := bytes.Repeat([]byte("waveform"), 32)
	if err := flux.WriteBinaryDataEntry(upstream, 1, false, 0, payload); err != nil {
		t.Fatal(err)
	}
	if err := upstream.DeepFlush(); err != nil {
		t.Fatal(err)
	}
	sunk := out.Bytes()
	if len(sunk) < 3 || sunk[0] != 0x00 || sunk[1] != flux.EntryPblk || sunk[2] != flux.PackLZ4 {
		t.Fatalf("sink starts % x, want a packed block", sunk[:3])
	}
	// The upstream buffer drained fully.
	if upstream.Len() != 0 {
		t.Fatalf("upstream kept %d bytes", upstream.Len())
	}
}

func TestCompressFLZChain(t *testing.T) {
	var out bytes.Buffer
	downstream := flux.NewLinearBuffer(4096, flux.WriteTo(&out))
	upstream := flux.NewLinearBuffer(512, flux.CompressFLZ(downstream))

	payload := bytes.Repeat([]byte("waveform"), 32)
	if err := flux.WriteBinaryDataEntry(upstream, 1, false, 0, payload); err != nil {
		t.Fatal(err)
	}
	if err := upstream.DeepFlush(); err != nil {
		t.Fatal(err)
	}
	sunk := out.Bytes()
	if len(sunk) < 3 || sunk[1] != flux.EntryPblk || sunk[2] != flux.PackFLZ {
		t.Fatalf("sink starts % x, want an FLZ packed block", sunk[:3])
	}
}

func TestTraceFlushCascadesChain(t *testing.T) {
	w := &syncWriter{}
	downstream := flux.NewLinearBuffer(4096, flux.WriteTo(w))
	upstream := flux.NewLinearBuffer(512, flux.Copy(downstream))
	tr, err := flux.NewTrace(0, 2, flux.WithBuffer(upstream))
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.AddHead("chained", ""); err != nil {
		t.Fatal(err)
	}
	if err := tr.Flush(); err != nil {
		t.Fatal(err)
	}
	if w.Len() == 0 {
		t.Fatal("deep flush did not reach the final sink")
	}
	if w.synced != 1 {
		t.Fatalf("synced=%d, want 1", w.synced)
	}
	if !bytes.HasPrefix(w.Bytes(), []byte{0x00, flux.EntryHead, 'f', 'l', 'u', 'x'}) {
		t.Fatalf("sink starts % x", w.Bytes()[:6])
	}
}
