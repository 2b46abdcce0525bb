// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package flux implements an embeddable waveform-trace producer and its
// request/response control channel.
//
// A producer streams hierarchical signal definitions and time-ordered value
// samples (logic, integer, float, text, binary, event, and struct values)
// as a compact binary record sequence. A consumer (a viewer) drives the
// producer over a bidirectional pipe with typed control messages; the
// producer answers by emitting trace records plus control-result records on
// the same stream.
//
// Semantics and design:
//   - Buffer substrate: every write goes through a Buffer (linear or
//     ring-of-sections) using a request/commit discipline. An entry is never
//     split across a request/commit pair, so no partial entry ever reaches a
//     sink.
//   - Sink chaining: a linear buffer's flush handler may write to an
//     io.Writer, compress into a downstream buffer (LZ4 or FLZ pack
//     blocks), or copy into a downstream buffer. Non-blocking sinks are
//     supported via iox.ErrWouldBlock with a configurable retry policy.
//   - Trace state machine: item definitions, open/close sequence lifecycle
//     with container propagation, and monotonic domain positions are
//     validated before any bytes are written.
//   - Single-threaded: all operations run on the caller's thread; a Buffer
//     is bound to at most one Trace and is not safe for concurrent writers.
//
// Wire format: every structural entry is `0x00 | tag | body`. Data samples
// start directly with a tagged item id varint (never zero, so the two kinds
// cannot be confused). Integers are 7-bit little-endian continuation
// varints or minimized-length little-endian with a size prefix; an embedded
// primitive's size prefix may pack a 4-bit data-format code in its low
// nibble.
package flux

// Version is the stream format version emitted in head entries.
const Version byte = 4
