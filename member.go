// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"math"

	"code.hybscloud.com/flux/internal/bo"
)

// Member types, carried as the low nibble of a member's type byte. The
// MemberModHidden bit marks members a viewer should not list.
const (
	MemberUnknown   byte = 0
	MemberText      byte = 1
	MemberEnum      byte = 2
	MemberInteger   byte = 3
	MemberFloat     byte = 4
	MemberBinary    byte = 6
	MemberLocalEnum byte = 7
	MemberMergeEnum byte = 8

	MemberTypeMask  byte = 0x0f
	MemberModHidden byte = 0x80
)

// MemberValue describes one field of a composite (struct) value or one
// parameter of a control message. Value holds the raw native-order bytes
// for integer and float members, and the text/payload bytes otherwise.
// Invalid members are skipped on write.
type MemberValue struct {
	MemberID   uint32
	Type       byte
	Label      string
	Descriptor string
	Value      []byte
	Signed     bool
	Valid      bool
}

// NewMember initializes a member definition; its value is set separately
// and starts out invalid.
func NewMember(memberID uint32, label string, memberType byte, descriptor string) MemberValue {
	return MemberValue{MemberID: memberID, Label: label, Type: memberType, Descriptor: descriptor}
}

// Set assigns raw value bytes.
func (m *MemberValue) Set(value []byte, signed, valid bool) {
	m.Value = value
	m.Signed = signed
	m.Valid = valid
}

// SetInt assigns an integer value of the given raw byte width.
func (m *MemberValue) SetInt(v int64, size int, signed bool) {
	raw := make([]byte, size)
	bo.PutUintN(raw, uint64(v), size)
	m.Value = raw
	m.Signed = signed
	m.Valid = true
}

// SetUint assigns an unsigned integer value of the given raw byte width.
func (m *MemberValue) SetUint(v uint64, size int) {
	raw := make([]byte, size)
	bo.PutUintN(raw, v, size)
	m.Value = raw
	m.Signed = false
	m.Valid = true
}

// SetFloat64 assigns an 8-byte float value.
func (m *MemberValue) SetFloat64(v float64) {
	raw := make([]byte, 8)
	bo.PutUintN(raw, math.Float64bits(v), 8)
	m.Value = raw
	m.Signed = false
	m.Valid = true
}

// SetFloat32 assigns a 4-byte float value.
func (m *MemberValue) SetFloat32(v float32) {
	raw := make([]byte, 4)
	bo.PutUintN(raw, uint64(math.Float32bits(v)), 4)
	m.Value = raw
	m.Signed = false
	m.Valid = true
}

// SetText assigns a text value.
func (m *MemberValue) SetText(s string) {
	m.Value = []byte(s)
	m.Signed = false
	m.Valid = true
}

// SetBinary assigns a binary value.
func (m *MemberValue) SetBinary(p []byte) {
	m.Value = p
	m.Signed = false
	m.Valid = true
}

// putMembers writes the valid members of value as
// {memberId | type | payload} tuples. With an szDf selector the whole
// block gets a back-patched length prefix (data samples); with szDfNone
// the caller's member count delimits the block (control messages).
func putMembers(b []byte, value []MemberValue, szDf byte) int {
	w := 0
	sizeBytes := 0
	if szDf != szDfNone {
		maxSize := 0
		for n := range value {
			if value[n].Valid {
				size := len(value[n].Value)
				maxSize += varintLen(uint64(value[n].MemberID)) + 1 + varintLen(uint64(size)) + size
			}
		}
		sizeBytes = reservedSizeLen(maxSize, szDf)
		w += sizeBytes
	}
	for n := range value {
		m := &value[n]
		if !m.Valid {
			continue
		}
		w += putVarint(b[w:], uint64(m.MemberID))
		b[w] = m.Type
		w++
		switch m.Type & MemberTypeMask {
		case MemberEnum, MemberLocalEnum, MemberMergeEnum, MemberInteger:
			w += putInt(b[w:], m.Value, m.Signed, szDfSizeOnly)
		case MemberFloat:
			w += putFloat(b[w:], m.Value, szDfSizeOnly)
		case MemberText, MemberBinary:
			w += putBin(b[w:], m.Value, szDfSizeOnly)
		}
	}
	if szDf != szDfNone {
		size := w - sizeBytes
		if szDf == szDfSizeOnly {
			putVarintFixed(b, uint64(size), sizeBytes)
		} else {
			putVarintFixed(b, uint64(size)<<4|uint64(szDf&0x0f), sizeBytes)
		}
	}
	return w
}
