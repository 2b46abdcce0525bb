// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bo

// PutUintN stores the low n bytes of v into b[:n] in native order.
func PutUintN(b []byte, v uint64, n int) {
	if Little() {
		for i := 0; i < n; i++ {
			b[i] = byte(v >> (8 * i))
		}
		return
	}
	for i := 0; i < n; i++ {
		b[n-1-i] = byte(v >> (8 * i))
	}
}

// UintN loads an n-byte native-order unsigned integer from b[:n].
func UintN(b []byte, n int) uint64 {
	var v uint64
	if Little() {
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
