// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero clears secret material, such as decoded private keys read
// from the terminal, from memory.
package zero

// Bytes sets all bytes in the passed slice to zero.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
