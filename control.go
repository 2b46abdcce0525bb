// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"io"
	"time"
)

// ControlCommand identifies the phase of a control-handler callback.
type ControlCommand byte

const (
	// ControlEnterMessage opens a message; the handler resets its
	// parameter state.
	ControlEnterMessage ControlCommand = iota
	// ControlParseParameter offers one parameter; the handler provides a
	// decode destination or leaves it nil to skip.
	ControlParseParameter
	// ControlLeaveMessage closes a message; the handler reacts to the
	// accumulated parameters.
	ControlLeaveMessage
)

// ControlArg carries the parameter exchange of a ControlParseParameter
// callback. The parser sets Size to the encoded payload size; the handler
// sets Dst (and Signed for integers) to receive the decoded value, or
// leaves Dst nil to skip the parameter.
//
// Integers decode sign-extended into the full width of Dst in native byte
// order; floats require len(Dst) equal to the encoded width; text and
// binary copy into Dst and len(Dst) bounds the accepted payload.
type ControlArg struct {
	Size   int
	Signed bool
	Dst    []byte
}

// ControlParseFunc receives control-message callbacks. arg is nil for
// ControlEnterMessage and ControlLeaveMessage. A non-nil error from a
// ControlParseParameter callback skips that parameter.
type ControlParseFunc func(cmd ControlCommand, controlID, messageID, memberID uint32, typ byte, arg *ControlArg) error

// Database control scheme.
const (
	ControlDBScheme uint32 = 0x00000100

	// ControlDBReqScheme asks for the adapter capability set
	// {version, maxTraceItems}.
	ControlDBReqScheme = ControlDBScheme
	// ControlDBReqItems asks for the item hierarchy.
	ControlDBReqItems = ControlDBScheme + 0x01
	// ControlDBReqTrace asks for value changes of a packed id set.
	ControlDBReqTrace = ControlDBScheme + 0x02
)

// CAN-bus control scheme.
const (
	ControlCanBusScheme uint32 = 0x00000200

	ControlCanBusReqScheme = ControlCanBusScheme
	ControlCanBusReqAvail  = ControlCanBusScheme + 0x01
	ControlCanBusResAvail  = ControlCanBusScheme + 0x02
	ControlCanBusReqOpen   = ControlCanBusScheme + 0x03
	ControlCanBusReqClose  = ControlCanBusScheme + 0x04
	ControlCanBusReqIdent  = ControlCanBusScheme + 0x05
	ControlCanBusReqSend   = ControlCanBusScheme + 0x06
	ControlCanBusReqFilter = ControlCanBusScheme + 0x07

	ControlCanBusIDCan    = 1
	ControlCanBusIDStatus = 2
	ControlCanBusIDError  = 3

	ControlCanBusMessageStandard = 0x0
	ControlCanBusMessageRTR      = 0x1
	ControlCanBusMessageExtended = 0x2
	ControlCanBusMessageStatus   = 0x80
)

// HandleControl returns a flush handler that parses control entries from
// the flushed bytes and dispatches them to parse. A truncated entry
// returns ErrNeedMoreData with everything before it consumed; the
// remainder stays buffered for the next frame.
func HandleControl(parse ControlParseFunc) FlushHandler {
	return func(deep bool, p []byte) (int, error) {
		consumed := 0
		for len(p)-consumed > 0 {
			if len(p)-consumed < 3 {
				return consumed, ErrNeedMoreData
			}
			pos := consumed
			if p[pos] != 0 {
				return pos + 1, ErrCommandParse
			}
			pos++
			switch p[pos] {
			case EntryCreq:
				pos++
				next, err := parseControlRequest(p, pos, parse)
				if err != nil {
					return consumed, err
				}
				pos = next
			case EntryCres:
				pos++
			default:
				return consumed, ErrCommandParse
			}
			consumed = pos
		}
		return consumed, nil
	}
}

// parseControlRequest scans one request entry starting at the body and
// returns the position after it.
func parseControlRequest(p []byte, pos int, parse ControlParseFunc) (int, error) {
	controlID64, n := readVarint(p[pos:])
	if n == 0 {
		return 0, ErrNeedMoreData
	}
	pos += n
	messageID64, n := readVarint(p[pos:])
	if n == 0 {
		return 0, ErrNeedMoreData
	}
	pos += n
	count, n := readVarint(p[pos:])
	if n == 0 {
		return 0, ErrNeedMoreData
	}
	pos += n

	controlID, messageID := uint32(controlID64), uint32(messageID64)
	if parse != nil {
		_ = parse(ControlEnterMessage, controlID, messageID, 0, 0, nil)
	}

	for i := uint64(0); i < count; i++ {
		memberID64, n := readVarint(p[pos:])
		if n == 0 {
			return 0, ErrNeedMoreData
		}
		pos += n
		if pos >= len(p) {
			return 0, ErrNeedMoreData
		}
		typ := p[pos]
		pos++

		size64, n := readVarint(p[pos:])
		if n == 0 {
			return 0, ErrNeedMoreData
		}
		skip := n + int(size64)
		if pos+skip > len(p) {
			return 0, ErrNeedMoreData
		}

		if parse != nil {
			arg := ControlArg{Size: int(size64)}
			err := parse(ControlParseParameter, controlID, messageID, uint32(memberID64), typ, &arg)
			if err == nil && arg.Dst != nil && len(arg.Dst) > 0 {
				if err := decodeParameter(typ, &arg, p[pos:]); err != nil {
					return 0, err
				}
			}
		}
		pos += skip
	}

	if parse != nil {
		_ = parse(ControlLeaveMessage, controlID, messageID, 0, 0, nil)
	}
	return pos, nil
}

func decodeParameter(typ byte, arg *ControlArg, p []byte) error {
	read := 0
	switch typ & MemberTypeMask {
	case MemberEnum, MemberLocalEnum, MemberMergeEnum, MemberInteger:
		if len(arg.Dst) >= arg.Size {
			read = readInt(arg.Dst, arg.Signed, p)
		}
	case MemberFloat:
		if len(arg.Dst) == arg.Size {
			read = readFloat(arg.Dst, p)
		}
	case MemberText, MemberBinary:
		if len(arg.Dst) >= arg.Size {
			read, arg.Size = readBin(arg.Dst, p)
		}
	default:
		return ErrCommandParse
	}
	if read == 0 {
		return ErrNeedMoreData
	}
	return nil
}

// ParseControlInput reads length-prefixed control frames from r and feeds
// them through a linear buffer into the control parser until r is
// exhausted. Each frame is one byte whose 0x80 bit requests an immediate
// parse and whose low seven bits give the payload length, followed by
// that many bytes. iox.ErrWouldBlock from r is retried per the configured
// policy.
func ParseControlInput(r io.Reader, maxEntrySize int, parse ControlParseFunc, opts ...Option) error {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	buffer := NewLinearBuffer(maxEntrySize, HandleControl(parse))

	var header [1]byte
	for {
		if err := readFull(r, header[:], o.RetryDelay); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		flush := header[0]&0x80 != 0
		request := int(header[0] & 0x7f)

		bytes, err := buffer.Request(request)
		if err != nil {
			return err
		}
		if err := readFull(r, bytes[:request], o.RetryDelay); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return ErrInsufficientInput
			}
			return err
		}
		if err := buffer.Commit(request); err != nil {
			return err
		}
		if flush {
			if err := buffer.Flush(); err != nil && err != ErrNeedMoreData {
				return err
			}
		}
	}
}

// readFull fills p from r, retrying iox.ErrWouldBlock per the policy and
// guarding against readers that return (0, nil).
func readFull(r io.Reader, p []byte, retryDelay time.Duration) error {
	got := 0
	for got < len(p) {
		n, err := r.Read(p[got:])
		got += n
		if err == ErrWouldBlock && waitOnce(retryDelay) {
			continue
		}
		if err == io.EOF && got > 0 && got < len(p) {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			if got == len(p) {
				return nil
			}
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}
