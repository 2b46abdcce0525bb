//go:build s390x || mips || mips64 || ppc64

// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bo

import "encoding/binary"

// Native returns the native byte order for known big-endian Go ports.
func Native() binary.ByteOrder { return binary.BigEndian }

// Little reports whether the native byte order is little-endian.
func Little() bool { return false }
