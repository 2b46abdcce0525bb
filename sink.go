// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"io"
	"runtime"
	"time"

	"code.hybscloud.com/iox"
	"github.com/klauspost/compress/s2"
	"github.com/pierrec/lz4/v4"
)

// These are provided as package-level aliases so callers can reference the
// semantic control-flow errors without importing iox directly.
var (
	// ErrWouldBlock means "no further progress without waiting". Configure
	// the retry policy via WithRetryDelay / WithBlock / WithNonblock.
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrMore means "this completion is usable and more completions will
	// follow".
	ErrMore = iox.ErrMore
)

// Pack modes carried in a packed-block entry.
const (
	PackLZ4 byte = 0
	PackFLZ byte = 1
)

// WritePackEntry compresses value with the given mode and writes it as a
// packed-block entry: mode, original size, compressed size, payload.
func WritePackEntry(b Buffer, mode byte, value []byte) error {
	var packed []byte
	switch mode {
	case PackLZ4:
		var c lz4.Compressor
		dst := make([]byte, lz4.CompressBlockBound(len(value)))
		n, err := c.CompressBlock(value, dst)
		if err != nil {
			return err
		}
		if n == 0 {
			// incompressible input
			return ErrInvalidDataSize
		}
		packed = dst[:n]
	case PackFLZ:
		packed = s2.Encode(make([]byte, s2.MaxEncodedLen(len(value))), value)
	default:
		return ErrInvalidPackMode
	}

	request := 3 + maxVarint32*2 + len(packed)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryPblk
	bytes[w+2] = mode
	w += 3
	w += putVarint(bytes[w:], uint64(len(value)))
	w += putVarint(bytes[w:], uint64(len(packed)))
	w += copy(bytes[w:], packed)
	return b.Commit(w)
}

// Copy returns a flush handler that copies flushed bytes into a downstream
// buffer. On a deep flush the downstream buffer is flushed as well.
func Copy(downstream Buffer) FlushHandler {
	return func(deep bool, p []byte) (int, error) {
		bytes, err := downstream.Request(len(p))
		if err != nil {
			if deep {
				_ = downstream.DeepFlush()
			}
			return 0, err
		}
		copy(bytes, p)
		if err := downstream.Commit(len(p)); err != nil {
			return 0, err
		}
		if deep {
			return len(p), downstream.DeepFlush()
		}
		return len(p), nil
	}
}

// CompressLZ4 returns a flush handler that compresses flushed bytes into a
// packed-block entry (LZ4 mode) on a downstream buffer. Incompressible
// input falls back to a raw copy. On a deep flush the downstream buffer
// cascades.
func CompressLZ4(downstream Buffer) FlushHandler {
	return compress(PackLZ4, downstream)
}

// CompressFLZ is CompressLZ4 with the FLZ pack mode. FLZ encoding does not
// report incompressible input, so every flush becomes a packed block.
func CompressFLZ(downstream Buffer) FlushHandler {
	return compress(PackFLZ, downstream)
}

func compress(mode byte, downstream Buffer) FlushHandler {
	raw := Copy(downstream)
	return func(deep bool, p []byte) (int, error) {
		if len(p) > 0 {
			err := WritePackEntry(downstream, mode, p)
			if err == ErrInvalidDataSize {
				return raw(deep, p)
			}
			if err != nil {
				return 0, err
			}
		}
		if deep {
			return len(p), downstream.DeepFlush()
		}
		return len(p), nil
	}
}

// syncer is the flush surface of *os.File and friends.
type syncer interface{ Sync() error }

// WriteTo returns a flush handler that writes flushed bytes to w,
// consuming everything it manages to write. iox.ErrWouldBlock from w is
// retried per the configured policy; a deep flush syncs w when it
// supports that.
func WriteTo(w io.Writer, opts ...Option) FlushHandler {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	return func(deep bool, p []byte) (int, error) {
		written := 0
		for written < len(p) {
			n, err := w.Write(p[written:])
			written += n
			if err == ErrWouldBlock && waitOnce(o.RetryDelay) {
				continue
			}
			if err != nil {
				return written, err
			}
			if n == 0 {
				return written, io.ErrShortWrite
			}
		}
		if deep {
			if s, ok := w.(syncer); ok {
				return written, s.Sync()
			}
		}
		return written, nil
	}
}

// waitOnce applies the retry policy once and reports whether the caller
// should retry.
func waitOnce(retryDelay time.Duration) bool {
	if retryDelay < 0 {
		return false
	}
	if retryDelay == 0 {
		runtime.Gosched()
		return true
	}
	time.Sleep(retryDelay)
	return true
}
