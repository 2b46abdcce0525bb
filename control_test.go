// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"code.hybscloud.com/flux"
)

// message records the callbacks one parsed control message produced.
type message struct {
	controlID, messageID uint32
	params               []param
}

type param struct {
	memberID uint32
	typ      byte
	value    []byte
}

// recorder is a ControlParseFunc that accumulates messages and decodes
// every parameter into a fresh destination of the given width.
type recorder struct {
	dstLen   int
	signed   bool
	messages []message
}

func (r *recorder) parse(cmd flux.ControlCommand, controlID, messageID, memberID uint32, typ byte, arg *flux.ControlArg) error {
	switch cmd {
	case flux.ControlEnterMessage:
		r.messages = append(r.messages, message{controlID: controlID, messageID: messageID})
	case flux.ControlParseParameter:
		dst := make([]byte, r.dstLen)
		if typ&flux.MemberTypeMask == flux.MemberFloat {
			dst = make([]byte, arg.Size)
		}
		arg.Dst = dst
		arg.Signed = r.signed
		last := &r.messages[len(r.messages)-1]
		last.params = append(last.params, param{memberID: memberID, typ: typ, value: dst})
	case flux.ControlLeaveMessage:
	}
	return nil
}

// frame wraps payload chunks into control frames, flushing on the last.
func frame(payload []byte) []byte {
	var out []byte
	for len(payload) > 0 {
		n := len(payload)
		if n > 127 {
			n = 127
		}
		header := byte(n)
		if n == len(payload) {
			header |= 0x80
		}
		out = append(out, header)
		out = append(out, payload[:n]...)
		payload = payload[n:]
	}
	return out
}

func TestParseControlEmptyRequest(t *testing.T) {
	rec := &recorder{dstLen: 8}
	input := frame([]byte{0x00, 0x80, 0x01, 0x02, 0x00})
	err := flux.ParseControlInput(bytes.NewReader(input), 256, rec.parse)
	if err != nil {
		t.Fatal(err)
	}
	want := []message{{controlID: 1, messageID: 2}}
	if diff := cmp.Diff(want, rec.messages, cmp.AllowUnexported(message{}, param{})); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestControlRoundTrip(t *testing.T) {
	// Encode a request with the entry writer, feed it back through the
	// parser.
	b := flux.NewLinearBuffer(512, nil)
	members := []flux.MemberValue{
		flux.NewMember(0, "", flux.MemberInteger, ""),
		flux.NewMember(1, "", flux.MemberText, ""),
		flux.NewMember(2, "", flux.MemberBinary, ""),
	}
	members[0].SetInt(-7, 4, true)
	members[1].SetText("viewer")
	members[2].SetBinary([]byte{0xde, 0xad})
	if err := flux.WriteControlReqEntry(b, flux.ControlDBReqTrace, 9, members); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{dstLen: 16, signed: true}
	err := flux.ParseControlInput(bytes.NewReader(frame(b.Bytes())), 512, rec.parse)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.messages) != 1 {
		t.Fatalf("%d messages", len(rec.messages))
	}
	msg := rec.messages[0]
	if msg.controlID != flux.ControlDBReqTrace || msg.messageID != 9 {
		t.Fatalf("ids = (%#x,%d)", msg.controlID, msg.messageID)
	}
	if len(msg.params) != 3 {
		t.Fatalf("%d params", len(msg.params))
	}
	// Integer: sign-extended into the 16-byte destination; the significant
	// byte sits at the native low end, the rest is sign fill.
	intDst := msg.params[0].value
	if intDst[0] != 0xf9 && intDst[len(intDst)-1] != 0xf9 {
		t.Fatalf("int param decoded % x", intDst)
	}
	if !bytes.Contains(intDst, []byte{0xff}) {
		t.Fatalf("int param missing sign extension: % x", intDst)
	}
	if got := string(msg.params[1].value[:6]); got != "viewer" {
		t.Fatalf("text param %q", got)
	}
	if !bytes.Equal(msg.params[2].value[:2], []byte{0xde, 0xad}) {
		t.Fatalf("binary param % x", msg.params[2].value[:2])
	}
}

func TestControlFloatParameter(t *testing.T) {
	b := flux.NewLinearBuffer(256, nil)
	members := []flux.MemberValue{flux.NewMember(0, "", flux.MemberFloat, "")}
	members[0].SetFloat64(1.5)
	if err := flux.WriteControlReqEntry(b, 1, 1, members); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	if err := flux.ParseControlInput(bytes.NewReader(frame(b.Bytes())), 256, rec.parse); err != nil {
		t.Fatal(err)
	}
	got := rec.messages[0].params[0].value
	// 1.5 as little-endian IEEE 754 double.
	want := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf8, 0x3f}
	if len(got) != 8 {
		t.Fatalf("float dst len %d", len(got))
	}
	if !bytes.Equal(got, want) && !bytes.Equal(got, reverse(want)) {
		t.Fatalf("float param % x", got)
	}
}

func reverse(p []byte) []byte {
	out := make([]byte, len(p))
	for i, b := range p {
		out[len(p)-1-i] = b
	}
	return out
}

func TestControlSkipsUninterestedParameters(t *testing.T) {
	b := flux.NewLinearBuffer(256, nil)
	members := []flux.MemberValue{
		flux.NewMember(0, "", flux.MemberInteger, ""),
		flux.NewMember(1, "", flux.MemberInteger, ""),
	}
	members[0].SetUint(1, 4)
	members[1].SetUint(2, 4)
	if err := flux.WriteControlReqEntry(b, 1, 1, members); err != nil {
		t.Fatal(err)
	}

	var seen []uint32
	parse := func(cmd flux.ControlCommand, controlID, messageID, memberID uint32, typ byte, arg *flux.ControlArg) error {
		if cmd == flux.ControlParseParameter {
			seen = append(seen, memberID)
			// Leave arg.Dst nil: parameter is skipped, parsing continues.
		}
		return nil
	}
	if err := flux.ParseControlInput(bytes.NewReader(frame(b.Bytes())), 256, parse); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0, 1}, seen); diff != "" {
		t.Fatalf("members offered (-want +got):\n%s", diff)
	}
}

func TestControlGarbageFails(t *testing.T) {
	input := frame([]byte{0x01, 0x02, 0x03})
	err := flux.ParseControlInput(bytes.NewReader(input), 256, nil)
	if !errors.Is(err, flux.ErrCommandParse) {
		t.Fatalf("err=%v, want ErrCommandParse", err)
	}
}

func TestControlUnknownTagFails(t *testing.T) {
	input := frame([]byte{0x00, 0x10, 0x00})
	err := flux.ParseControlInput(bytes.NewReader(input), 256, nil)
	if !errors.Is(err, flux.ErrCommandParse) {
		t.Fatalf("err=%v, want ErrCommandParse", err)
	}
}

func TestControlTruncatedEntryResumesNextFrame(t *testing.T) {
	b := flux.NewLinearBuffer(256, nil)
	members := []flux.MemberValue{flux.NewMember(0, "", flux.MemberText, "")}
	members[0].SetText("split across frames")
	if err := flux.WriteControlReqEntry(b, 5, 6, members); err != nil {
		t.Fatal(err)
	}
	wire := b.Bytes()

	// First frame carries a truncated prefix and demands a flush; the
	// parser must keep the bytes and finish with the second frame.
	cut := 6
	var input []byte
	input = append(input, byte(cut)|0x80)
	input = append(input, wire[:cut]...)
	input = append(input, byte(len(wire)-cut)|0x80)
	input = append(input, wire[cut:]...)

	rec := &recorder{dstLen: 64}
	if err := flux.ParseControlInput(bytes.NewReader(input), 256, rec.parse); err != nil {
		t.Fatal(err)
	}
	// The truncated first attempt already entered the message; the
	// re-parse after the second frame enters it again, which is why
	// handlers reset their state on enter.
	if len(rec.messages) != 2 {
		t.Fatalf("%d messages, want 2 (re-entered after truncation)", len(rec.messages))
	}
	last := rec.messages[len(rec.messages)-1]
	if got := string(last.params[0].value[:19]); got != "split across frames" {
		t.Fatalf("text = %q", got)
	}
}

func TestControlShortFrame(t *testing.T) {
	// Frame announces 10 bytes but the stream ends after 2.
	input := []byte{0x8a, 0x00, 0x80}
	err := flux.ParseControlInput(bytes.NewReader(input), 256, nil)
	if !errors.Is(err, flux.ErrInsufficientInput) {
		t.Fatalf("err=%v, want ErrInsufficientInput", err)
	}
}

func TestControlResultEntriesSkipped(t *testing.T) {
	// An inbound result tag is stepped over without a handler call.
	payload := []byte{0x00, 0x81, 0x00, 0x80, 0x01, 0x02, 0x00}
	rec := &recorder{}
	if err := flux.ParseControlInput(bytes.NewReader(frame(payload)), 256, rec.parse); err != nil {
		t.Fatal(err)
	}
	if len(rec.messages) != 1 || rec.messages[0].controlID != 1 {
		t.Fatalf("messages = %+v", rec.messages)
	}
}

func TestHandleControlReportsConsumed(t *testing.T) {
	handler := flux.HandleControl(nil)
	// One full empty request followed by a truncated second entry.
	p := []byte{0x00, 0x80, 0x01, 0x02, 0x00, 0x00, 0x80, 0x03}
	consumed, err := handler(false, p)
	if !errors.Is(err, flux.ErrNeedMoreData) {
		t.Fatalf("err=%v, want ErrNeedMoreData", err)
	}
	if consumed != 5 {
		t.Fatalf("consumed=%d, want 5", consumed)
	}
}

func TestParseControlInputEOF(t *testing.T) {
	if err := flux.ParseControlInput(bytes.NewReader(nil), 256, nil); err != nil {
		t.Fatalf("clean EOF: %v", err)
	}
	if err := flux.ParseControlInput(io.LimitReader(bytes.NewReader([]byte{0x85}), 1), 256, nil); !errors.Is(err, flux.ErrInsufficientInput) {
		t.Fatalf("truncated frame: err=%v, want ErrInsufficientInput", err)
	}
}
