// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import "time"

// Options configures trace construction and sink retry behavior.
type Options struct {
	// MaxEntrySize is the maximum entry size announced in head entries.
	// ParseControlInput takes its buffer size as a separate argument.
	MaxEntrySize int

	// MultiOpen enables per-item open sequences. When disabled the trace
	// keeps no item registry and only the root (item 0) can be opened;
	// definitions are checked only for their id range, and samples only
	// against the root sequence.
	MultiOpen bool

	// Buffer is the initial output buffer bound to the trace.
	Buffer Buffer

	// RetryDelay controls how sinks handle iox.ErrWouldBlock from an
	// underlying writer or reader:
	//   - negative: nonblock, surface ErrWouldBlock immediately
	//   - zero: yield (runtime.Gosched) and retry
	//   - positive: sleep for the duration and retry
	RetryDelay time.Duration
}

var defaultOptions = Options{
	MaxEntrySize: 4096,
	MultiOpen:    true,
	RetryDelay:   0, // default: cooperative blocking
}

type Option func(*Options)

// WithMaxEntrySize sets the maximum entry size.
func WithMaxEntrySize(n int) Option {
	return func(o *Options) { o.MaxEntrySize = n }
}

// WithSingleOpen elides the item registry: only the whole-trace sequence
// (item 0) can be opened and per-item validation is skipped.
func WithSingleOpen() Option {
	return func(o *Options) { o.MultiOpen = false }
}

// WithBuffer binds an initial output buffer.
func WithBuffer(b Buffer) Option {
	return func(o *Options) { o.Buffer = b }
}

// WithRetryDelay sets the wait policy used when an underlying transport
// returns iox.ErrWouldBlock.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) { o.RetryDelay = d }
}

// WithBlock enables cooperative blocking (yield-and-retry) on
// iox.ErrWouldBlock.
func WithBlock() Option {
	return func(o *Options) { o.RetryDelay = 0 }
}

// WithNonblock forces non-blocking behavior (surface iox.ErrWouldBlock
// immediately).
func WithNonblock() Option {
	return func(o *Options) { o.RetryDelay = -1 }
}
