// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package adapter_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"code.hybscloud.com/flux"
	"code.hybscloud.com/flux/adapter"
)

const changeList = `# demo change list
domain,ns
var,1,top,clk,logic,1
var,2,top/alu,busy,logic,1
var,3,top/alu,result,float,64
var,4,top,note,text,0
at,0,1,0
at,0,2,0
at,5,1,1
at,10,1,0
at,10,2,1
at,10,3,2.5
at,15,4,hello
`

func loadSource(t *testing.T) *adapter.CSVSource {
	t.Helper()
	src, err := adapter.LoadCSV(strings.NewReader(changeList))
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func TestLoadCSVGeometry(t *testing.T) {
	src := loadSource(t)
	if src.MaxVarID() != 4 {
		t.Fatalf("max var id %d", src.MaxVarID())
	}
	base, start, end := src.Bounds()
	if base != "ns" || start != 0 || end != 15 {
		t.Fatalf("bounds = (%s,%d,%d)", base, start, end)
	}
}

func TestCSVHierarchyWalk(t *testing.T) {
	src := loadSource(t)
	var walk []string
	err := src.Hierarchy(func(n adapter.Node) error {
		switch n.Kind {
		case adapter.NodeScope:
			walk = append(walk, "scope:"+n.Name)
		case adapter.NodeUpscope:
			walk = append(walk, "up")
		case adapter.NodeVar:
			walk = append(walk, "var:"+n.Name)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"scope:top", "var:clk", "var:note",
		"scope:alu", "var:busy", "var:result", "up",
		"up",
	}
	if diff := cmp.Diff(want, walk); diff != "" {
		t.Fatalf("walk mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVChangesMask(t *testing.T) {
	src := loadSource(t)
	var times []int64
	err := src.Changes(func(id uint32) bool { return id == 1 }, func(c adapter.Change) error {
		times = append(times, c.Time)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{0, 5, 10}, times); diff != "" {
		t.Fatalf("times mismatch (-want +got):\n%s", diff)
	}
}

func TestDomainBase(t *testing.T) {
	tests := []struct {
		exponent int
		want     string
	}{
		{0, "s"}, {1, "s10"}, {2, "s100"},
		{-1, "ms100"}, {-3, "ms"}, {-6, "us"},
		{-9, "ns"}, {-12, "ps"}, {-15, "fs"}, {-18, "as"},
	}
	for _, tc := range tests {
		if got := adapter.DomainBase(tc.exponent); got != tc.want {
			t.Errorf("DomainBase(%d) = %q, want %q", tc.exponent, got, tc.want)
		}
	}
}

// request encodes one control request and wraps it into flush frames.
func request(t *testing.T, controlID, messageID uint32, members []flux.MemberValue) []byte {
	t.Helper()
	b := flux.NewLinearBuffer(512, nil)
	if err := flux.WriteControlReqEntry(b, controlID, messageID, members); err != nil {
		t.Fatal(err)
	}
	wire := b.Bytes()
	var out []byte
	for len(wire) > 0 {
		n := len(wire)
		if n > 127 {
			n = 127
		}
		header := byte(n)
		if n == len(wire) {
			header |= 0x80
		}
		out = append(out, header)
		out = append(out, wire[:n]...)
		wire = wire[n:]
	}
	return out
}

func traceRequestMembers(t *testing.T, ids []uint32, moreToCome bool) []flux.MemberValue {
	t.Helper()
	var packed []byte
	for _, id := range ids {
		packed = flux.AppendVarint(packed, uint64(id))
	}
	members := []flux.MemberValue{
		flux.NewMember(0, "", flux.MemberBinary, ""),
		flux.NewMember(0, "", flux.MemberEnum, ""),
	}
	members[0].SetBinary(packed)
	more := uint64(0)
	if moreToCome {
		more = 1
	}
	members[1].SetUint(more, 4)
	members[1].Type = flux.MemberEnum
	return members
}

func TestServeSession(t *testing.T) {
	src := loadSource(t)

	var in bytes.Buffer
	in.Write(request(t, flux.ControlDBReqScheme, 1, nil))
	in.Write(request(t, flux.ControlDBReqItems, 2, nil))
	in.Write(request(t, flux.ControlDBReqTrace, 3, traceRequestMembers(t, []uint32{1, 3}, false)))

	var out bytes.Buffer
	if err := adapter.Serve(&in, &out, "demo", src, adapter.DefaultConfig); err != nil {
		t.Fatal(err)
	}
	stream := out.Bytes()

	// The stream leads with a head entry.
	if !bytes.HasPrefix(stream, []byte{0x00, flux.EntryHead, 'f', 'l', 'u', 'x'}) {
		t.Fatalf("stream starts % x", stream[:6])
	}
	// Item enumeration defined the scopes and signals by name.
	for _, name := range []string{"top", "alu", "clk", "busy", "result", "note"} {
		if !bytes.Contains(stream, []byte(name)) {
			t.Fatalf("stream misses item %q", name)
		}
	}
	// Each request got a control result: 0x00 0x81, control id varint.
	for _, controlID := range []uint32{flux.ControlDBReqScheme, flux.ControlDBReqItems, flux.ControlDBReqTrace} {
		marker := flux.AppendVarint([]byte{0x00, flux.EntryCres}, uint64(controlID))
		if !bytes.Contains(stream, marker) {
			t.Fatalf("stream misses result for control %#x", controlID)
		}
	}
	// The scheme answer carries version and item budget as members.
	schemeRes := flux.AppendVarint([]byte{0x00, flux.EntryCres}, uint64(flux.ControlDBReqScheme))
	idx := bytes.Index(stream, schemeRes)
	rest := stream[idx+len(schemeRes):]
	// message id, count=2, member 0 tuple follows
	if rest[0] != 1 || rest[1] != 2 || rest[2] != 0 || rest[3] != flux.MemberInteger {
		t.Fatalf("scheme result body % x", rest[:4])
	}
}

func TestServeMoreToComeAccumulates(t *testing.T) {
	src := loadSource(t)

	var in bytes.Buffer
	in.Write(request(t, flux.ControlDBReqItems, 1, nil))
	in.Write(request(t, flux.ControlDBReqTrace, 2, traceRequestMembers(t, []uint32{1}, true)))
	in.Write(request(t, flux.ControlDBReqTrace, 3, traceRequestMembers(t, []uint32{2}, false)))

	var out bytes.Buffer
	if err := adapter.Serve(&in, &out, "demo", src, adapter.DefaultConfig); err != nil {
		t.Fatal(err)
	}
	stream := out.Bytes()

	// No result for the accumulating request, one for the closing one.
	marker := flux.AppendVarint([]byte{0x00, flux.EntryCres}, uint64(flux.ControlDBReqTrace))
	first := bytes.Index(stream, marker)
	if first < 0 {
		t.Fatal("no trace result")
	}
	if rest := stream[first+len(marker):]; rest[0] != 3 {
		t.Fatalf("trace result for message %d, want 3", rest[0])
	}
	if bytes.Index(stream[first+len(marker):], marker) >= 0 {
		t.Fatal("accumulating request answered early")
	}
}
