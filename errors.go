// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import "errors"

// Buffer errors.
var (
	// ErrBufferUnknownCommand reports an unsupported buffer operation
	// (for example a section commit on a linear buffer).
	ErrBufferUnknownCommand = errors.New("flux: unknown buffer command")

	// ErrBufferOverflow reports a commit beyond the writable region.
	ErrBufferOverflow = errors.New("flux: buffer overflow")

	// ErrBufferNotAvail reports that a requested region cannot be made
	// contiguous, even after a flush.
	ErrBufferNotAvail = errors.New("flux: buffer space not available")

	// ErrBufferAlreadyUsed reports an attempt to bind a buffer that is
	// already bound to another trace.
	ErrBufferAlreadyUsed = errors.New("flux: buffer already used by another trace")
)

// Argument errors.
var (
	// ErrInvalidValue reports a nil or otherwise unusable value argument.
	ErrInvalidValue = errors.New("flux: invalid value")

	// ErrInvalidDataSize reports a value size outside the encodable range.
	ErrInvalidDataSize = errors.New("flux: invalid data size")

	// ErrInvalidID reports an item id outside its range ([1, maxItemId] for
	// definitions, [0, maxItemId] for Open and Close), or an Open or Close
	// of an id >= 1 on a single-open trace.
	ErrInvalidID = errors.New("flux: invalid id")

	// ErrInvalidPackMode reports an unknown compression mode tag.
	ErrInvalidPackMode = errors.New("flux: invalid pack mode")
)

// Trace lifecycle errors.
var (
	// ErrNoBuffer reports a trace operation without a bound buffer.
	ErrNoBuffer = errors.New("flux: no buffer")

	// ErrInvalidOpenClose reports an open/close sequencing violation.
	ErrInvalidOpenClose = errors.New("flux: invalid open/close")

	// ErrItemAlreadyDefined reports a second definition of an item id.
	ErrItemAlreadyDefined = errors.New("flux: item already defined")

	// ErrItemNotDefined reports a reference to an undefined item.
	ErrItemNotDefined = errors.New("flux: item not defined")

	// ErrParentNotDefined reports a parent id that is not a defined scope.
	ErrParentNotDefined = errors.New("flux: parent not defined")

	// ErrAlreadyOpen reports an open on an item that is inside an open
	// sequence already.
	ErrAlreadyOpen = errors.New("flux: already open")

	// ErrChildrenAlreadyOpen reports an open on an item one of whose
	// descendants holds an open sequence.
	ErrChildrenAlreadyOpen = errors.New("flux: children already open")

	// ErrNotOpen reports a sample write outside any open sequence.
	ErrNotOpen = errors.New("flux: not open")

	// ErrPositionLessThanCurrent reports a sample behind the current
	// domain position.
	ErrPositionLessThanCurrent = errors.New("flux: position less than current")
)

// Parser errors.
var (
	// ErrRead reports a failed read from the control input.
	ErrRead = errors.New("flux: read error")

	// ErrCommandParse reports malformed bytes on the control stream.
	ErrCommandParse = errors.New("flux: command parse error")

	// ErrNeedMoreData reports a truncated entry; unconsumed bytes stay in
	// the buffer and parsing resumes with the next frame.
	ErrNeedMoreData = errors.New("flux: command parse needs more data")

	// ErrInsufficientInput reports a control frame shorter than its
	// declared length.
	ErrInsufficientInput = errors.New("flux: insufficient input")
)
