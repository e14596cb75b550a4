// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/btcsuite/btccustody/chain"
	"github.com/btcsuite/btccustody/contractdb"
	_ "github.com/btcsuite/btccustody/contractdb/bdb"
	_ "github.com/btcsuite/btccustody/contractdb/sqlitedb"
	"github.com/btcsuite/btccustody/custodian"
	"github.com/btcsuite/btccustody/internal/cfgutil"
	"github.com/btcsuite/btccustody/ledger"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/jessevdk/go-flags"
)

const defaultGuardedAsset = "c56f33fc6ecfcd0c225c4ab356fee59390af8560be0e930faebe74a6daff7c9b"

var datadir = btcutil.AppDataDir("btccustody", false)

// Flags.
var opts = struct {
	DbPath          string              `long:"db" description:"Path to ledger database"`
	DbType          string              `long:"dbtype" description:"Database backend" choice:"bdb" choice:"sqlite"`
	DepositContract cfgutil.AddressFlag `long:"depositcontract" required:"yes" description:"Script address of the deposit/withdraw contract (20-byte hex)"`
	GuardedAsset    cfgutil.HashFlag    `long:"guardedasset" description:"Asset id accepted by the deposit contract"`
	Unspent         bool                `short:"u" long:"unspent" description:"Also list every unspent output"`
}{
	DbPath: filepath.Join(datadir, "custody.db"),
	DbType: "bdb",
}

func init() {
	guarded, err := chainhash.NewHashFromStr(defaultGuardedAsset)
	if err != nil {
		panic(err)
	}
	opts.GuardedAsset.Hash = *guarded

	_, err = flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}
}

func main() {
	os.Exit(mainInt())
}

func mainInt() int {
	fmt.Println("Database path:", opts.DbPath)
	exists, err := cfgutil.FileExists(opts.DbPath)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	if !exists {
		fmt.Println("Database file does not exist")
		return 1
	}

	db, err := contractdb.Open(opts.DbType, opts.DbPath)
	if err != nil {
		fmt.Println("Failed to open database:", err)
		return 1
	}
	defer db.Close()

	c := custodian.New(&custodian.Config{
		ScriptAddress: opts.DepositContract.Address,
		GuardedAsset:  opts.GuardedAsset.Hash,
	})
	ch, err := chain.New(db, &chain.Config{
		Contracts: []chain.Contract{c},
	})
	if err != nil {
		fmt.Println("Failed to load ledger:", err)
		return 1
	}

	if err := dumpCustodian(ch, c); err != nil {
		fmt.Println("Failed to read custodian state:", err)
		return 1
	}

	if !opts.Unspent {
		return 0
	}
	fmt.Println("Unspent outputs:")
	err = ch.ForEachUnspent(func(op wire.OutPoint, out ledger.Output) error {
		fmt.Printf("  %v  %v  %v  %d\n", op, out.Address, out.AssetID,
			int64(out.Value))
		return nil
	})
	if err != nil {
		fmt.Println("Failed to read unspent outputs:", err)
		return 1
	}

	return 0
}

// dumpCustodian prints every balance held by the custodian and the total
// of guarded asset it owns on the ledger.
func dumpCustodian(ch *chain.Chain, c *custodian.Custodian) error {
	fmt.Println("Custodian:", c.ScriptAddress())

	total := new(big.Int)
	err := ch.ContractView(c.ScriptAddress(),
		func(ns contractdb.ReadBucket) error {
			balances, err := custodian.NewBalanceLedger(ns)
			if err != nil {
				return err
			}
			return balances.ForEach(
				func(addr ledger.Address, amount *big.Int) error {
					fmt.Printf("  %v  %v\n", addr, amount)
					total.Add(total, amount)
					return nil
				},
			)
		},
	)
	if err != nil {
		return err
	}

	held := new(big.Int)
	guarded := c.GuardedAsset()
	err = ch.ForEachUnspent(func(_ wire.OutPoint, out ledger.Output) error {
		if out.Address == c.ScriptAddress() && out.AssetID == guarded {
			held.Add(held, big.NewInt(int64(out.Value)))
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Credited balances: %v\n", total)
	fmt.Printf("Held on ledger:    %v (%v)\n", held, guarded)
	return nil
}
