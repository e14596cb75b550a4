// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btccustody/ledger"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	flags "github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/require"
)

func TestParseAndSetDebugLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"CUST=trace,CHAN=warn", true},
		{"loud", false},
		{"CUST", false},
		{"NOPE=info", false},
		{"CUST=loud", false},
	}

	for _, test := range tests {
		err := parseAndSetDebugLevels(test.level)
		if test.valid {
			require.NoError(t, err, test.level)
		} else {
			require.Error(t, err, test.level)
		}
	}
	setLogLevels(defaultLogLevel)
}

func TestValidDbType(t *testing.T) {
	require.True(t, validDbType("bdb"))
	require.True(t, validDbType("sqlite"))
	require.True(t, validDbType(defaultConfig().DbType))
	require.False(t, validDbType("postgres"))
	require.False(t, validDbType(""))
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	require.Equal(t, defaultGuardedAsset, cfg.GuardedAsset.Hash.String())
	require.NotEqual(t, cfg.DepositContract.Address,
		cfg.RollbackContract.Address)
	require.Equal(t, "custody.db", dbFileName("bdb"))
	require.Equal(t, "custody.sqlite", dbFileName("sqlite"))
}

func TestReadTxFile(t *testing.T) {
	t.Parallel()

	tx := &ledger.Tx{
		Nonce:  3,
		Inputs: []wire.OutPoint{{Hash: chainhash.Hash{0x01}, Index: 1}},
		Outputs: []ledger.Output{{
			Address: ledger.Address{0xaa},
			AssetID: chainhash.Hash{0x9b},
			Value:   42,
		}},
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "tx.hex")
	encoded := hex.EncodeToString(tx.Bytes()) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(encoded), 0600))

	got, err := readTxFile(flags.Filename(path))
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), got.TxHash())

	bad := filepath.Join(dir, "bad.hex")
	require.NoError(t, os.WriteFile(bad, []byte("zz"), 0600))
	_, err = readTxFile(flags.Filename(bad))
	require.ErrorIs(t, err, ledger.ErrMalformedInput)
}
