// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"math/bits"

	"code.hybscloud.com/flux/internal/bo"
)

// 7-bit continuation varint layout.
const (
	maskPlus     = 0x80
	maskPlusData = 0x7f
	plusShift    = 7
)

// Upper bounds for a single encoded primitive, used to size buffer
// requests: a varint prefix plus the widest raw value.
const (
	maxVarint32 = 5
	maxVarint64 = 9
)

// Size-and-format prefix selectors. szDfNone suppresses the prefix,
// szDfSizeOnly emits the plain size; any other value packs the low nibble
// as a data-format code: emitted = (size << 4) | (szDf & 0x0f).
const (
	szDfNone     byte = 0xff
	szDfSizeOnly byte = 0x00
)

// Data-format codes carried in the low nibble of a sample's size prefix.
const (
	dfNone      byte = 0
	dfDefault   byte = 1
	dfEnumEvent byte = 2

	dfLogic2  byte = 1
	dfLogic4  byte = 2
	dfLogic16 byte = 3

	xdfLogicPack0            byte = 0
	xdfLogicPack1            byte = 4
	xdfLogicPackRightAligned byte = 8

	xdfInteger32 byte = 4
	xdfInteger64 byte = 8
	xdfFloat32   byte = 4
	xdfFloat64   byte = 8
)

func varintLen(v uint64) int {
	n := 1
	for v > maskPlusData {
		v >>= plusShift
		n++
	}
	return n
}

// putVarint writes v into b as a 7-bit continuation varint and returns the
// number of bytes written. b must hold varintLen(v) bytes.
func putVarint(b []byte, v uint64) int {
	n := 0
	for v > maskPlusData {
		b[n] = byte(v&maskPlusData) | maskPlus
		v >>= plusShift
		n++
	}
	b[n] = byte(v)
	return n + 1
}

// putVarintFixed writes v as exactly size continuation bytes, used to
// back-patch a reserved length prefix once the payload size is known.
func putVarintFixed(b []byte, v uint64, size int) int {
	for n := 0; n < size-1; n++ {
		b[n] = byte(v&maskPlusData) | maskPlus
		v >>= plusShift
	}
	b[size-1] = byte(v & maskPlusData)
	return size
}

// readVarint decodes a varint from p. It returns the value and the number
// of bytes consumed; consumed is 0 when p ends before the final byte.
func readVarint(p []byte) (uint64, int) {
	var v uint64
	var shift uint
	for n := 0; n < len(p); n++ {
		c := p[n]
		v |= uint64(c&maskPlusData) << shift
		if c&maskPlus == 0 {
			return v, n + 1
		}
		shift += plusShift
	}
	return 0, 0
}

// ReadVarint decodes a 7-bit continuation varint from p, returning the
// value and the bytes consumed (0 when p ends before the final byte).
// Adapters use it to unpack binary id-set parameters of value-change
// requests.
func ReadVarint(p []byte) (uint64, int) { return readVarint(p) }

// AppendVarint appends the varint encoding of v to dst, the inverse of
// ReadVarint.
func AppendVarint(dst []byte, v uint64) []byte {
	var tmp [maxVarint64 + 1]byte
	n := putVarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

// putSzDf emits the size prefix for an embedded primitive, honoring the
// szDfNone / szDfSizeOnly selectors.
func putSzDf(b []byte, size int, szDf byte) int {
	if szDf == szDfNone {
		return 0
	}
	if szDf == szDfSizeOnly {
		return putVarint(b, uint64(size))
	}
	return putVarint(b, uint64(size)<<4|uint64(szDf&0x0f))
}

func textLen(s string, incLen bool) int {
	if s == "" && !incLen {
		return 0
	}
	n := len(s)
	if incLen {
		// 1 extra byte matches the upper-bound arithmetic of the entry
		// writers; the exact prefix is varintLen(n).
		return n + 1 + varintLen(uint64(n+1))
	}
	return n
}

// putText writes a length-prefixed text.
func putText(b []byte, s string) int {
	w := putVarint(b, uint64(len(s)))
	w += copy(b[w:], s)
	return w
}

// putTextN writes a text with an szDf-selected prefix.
func putTextN(b []byte, s string, szDf byte) int {
	w := putSzDf(b, len(s), szDf)
	w += copy(b[w:], s)
	return w
}

// putBin writes raw bytes with an szDf-selected prefix.
func putBin(b []byte, v []byte, szDf byte) int {
	w := putSzDf(b, len(v), szDf)
	w += copy(b[w:], v)
	return w
}

// putInt writes a minimized-length integer. value holds the raw
// native-order representation; leading insignificant bytes (zeros, or 0xff
// runs for negative signed values) are stripped as long as the next
// remaining byte's high bit preserves the sign. The retained bytes are
// emitted little-endian after the szDf-selected prefix.
func putInt(b []byte, value []byte, signed bool, szDf byte) int {
	size := len(value)
	rsize := size
	if bo.Little() {
		signed = signed && size > 0 && value[size-1]&0x80 != 0
		for n := size - 1; n >= 0; n-- {
			if !signed && value[n] == 0 && (n == 0 || value[n-1]&0x80 == 0) {
				rsize--
			} else if signed && n > 0 && value[n] == 0xff && value[n-1]&0x80 != 0 {
				rsize--
			} else {
				break
			}
		}
		w := putSzDf(b, rsize, szDf)
		w += copy(b[w:], value[:rsize])
		return w
	}
	signed = signed && size > 0 && value[0]&0x80 != 0
	for n := 0; n < size; n++ {
		if !signed && value[n] == 0 && (n == size-1 || value[n+1]&0x80 == 0) {
			rsize--
		} else if signed && n < size-1 && value[n] == 0xff && value[n+1]&0x80 != 0 {
			rsize--
		} else {
			break
		}
	}
	w := putSzDf(b, rsize, szDf)
	for n := size - 1; n >= size-rsize; n-- {
		b[w] = value[n]
		w++
	}
	return w
}

// putIntValue writes a minimized integer from a uint64 holding the low
// size bytes of the value.
func putIntValue(b []byte, v uint64, size int, signed bool, szDf byte) int {
	var tmp [8]byte
	bo.PutUintN(tmp[:], v, size)
	return putInt(b, tmp[:size], signed, szDf)
}

// reservedSizeLen returns the number of continuation bytes reserved for a
// back-patched length prefix covering a payload of at most maxSize bytes.
func reservedSizeLen(maxSize int, szDf byte) int {
	sizeBits := bits.Len32(uint32(maxSize))
	extra := 0
	if szDf != szDfSizeOnly {
		extra = 4
	}
	n := (sizeBits + extra + 6) / 7
	if n == 0 {
		n = 1
	}
	return n
}

// putIntArray writes count minimized integers of intsize raw bytes each,
// preceded by a back-patched total-size prefix.
func putIntArray(b []byte, value []byte, intsize int, signed bool, count int, szDf byte) int {
	w := 0
	sizeBytes := 0
	if szDf != szDfNone {
		sizeBytes = reservedSizeLen((1+intsize)*count, szDf)
		w += sizeBytes
	}
	for n := 0; n < count; n++ {
		w += putInt(b[w:], value[n*intsize:(n+1)*intsize], signed, szDfSizeOnly)
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

// putFloat writes an IEEE float from its raw native-order bytes,
// little-endian on the wire. Only 4- and 8-byte widths are encodable.
func putFloat(b []byte, value []byte, szDf byte) int {
	size := len(value)
	if size != 4 && size != 8 {
		return 0
	}
	w := putSzDf(b, size, szDf)
	if bo.Little() {
		w += copy(b[w:], value)
		return w
	}
	for n := size - 1; n >= 0; n-- {
		b[w] = value[n]
		w++
	}
	return w
}

func putFloatArray(b []byte, value []byte, floatsize, count int, szDf byte) int {
	w := putSzDf(b, floatsize*count, szDf)
	for n := 0; n < count; n++ {
		w += putFloat(b[w:], value[n*floatsize:(n+1)*floatsize], szDfNone)
	}
	return w
}

// readInt decodes a size-prefixed minimized integer into dst (native
// order, sign-extended to len(dst)). It returns the bytes consumed, or 0
// when p is truncated or the encoded value does not fit dst.
func readInt(dst []byte, signed bool, p []byte) int {
	rsize64, n := readVarint(p)
	rsize := int(rsize64)
	if n == 0 || rsize > len(dst) || n+rsize > len(p) {
		return 0
	}
	v := p[n : n+rsize]
	signed = signed && rsize > 0 && v[rsize-1]&0x80 != 0
	fill := byte(0)
	if signed {
		fill = 0xff
	}
	if bo.Little() {
		for i := range dst {
			if i < rsize {
				dst[i] = v[i]
			} else {
				dst[i] = fill
			}
		}
	} else {
		size := len(dst)
		for i := 0; i < size; i++ {
			if i < rsize {
				dst[size-1-i] = v[i]
			} else {
				dst[size-1-i] = fill
			}
		}
	}
	return n + rsize
}

// readFloat decodes a size-prefixed float into dst; the encoded width must
// equal len(dst) exactly.
func readFloat(dst []byte, p []byte) int {
	rsize64, n := readVarint(p)
	rsize := int(rsize64)
	if n == 0 || rsize != len(dst) || n+rsize > len(p) {
		return 0
	}
	v := p[n : n+rsize]
	if bo.Little() {
		copy(dst, v)
	} else {
		for i := 0; i < rsize; i++ {
			dst[rsize-1-i] = v[i]
		}
	}
	return n + rsize
}

// readBin decodes size-prefixed raw bytes into dst. It returns the bytes
// consumed and the decoded size; consumed is 0 when p is truncated or dst
// is too small.
func readBin(dst []byte, p []byte) (int, int) {
	rsize64, n := readVarint(p)
	rsize := int(rsize64)
	if n == 0 || rsize > len(dst) || n+rsize > len(p) {
		return 0, 0
	}
	copy(dst, p[n:n+rsize])
	return n + rsize, rsize
}
