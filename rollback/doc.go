// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rollback implements a contract whose outputs can only be spent by
// returning them, in full, to the address that paid them in.
package rollback
