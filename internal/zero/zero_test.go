// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package zero

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytes(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 31, 32, 33, 52, 513} {
		b := bytes.Repeat([]byte{1}, n)
		Bytes(b)
		require.Equal(t, make([]byte, n), b, "n=%d", n)
	}
}
