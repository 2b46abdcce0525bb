// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bo provides native byte order selection and native-order
// fixed-width integer load/store.
//
// The minimizing integer codec strips insignificant bytes from a value's
// in-memory representation, so it must know which end of that
// representation is significant. Implementation is architecture-specific
// via build tags where commonly known, and falls back to a portable
// runtime detection elsewhere.
package bo
