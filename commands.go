// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btccustody/chain"
	"github.com/btcsuite/btccustody/contractdb"
	_ "github.com/btcsuite/btccustody/contractdb/bdb"
	_ "github.com/btcsuite/btccustody/contractdb/sqlitedb"
	"github.com/btcsuite/btccustody/custodian"
	"github.com/btcsuite/btccustody/internal/cfgutil"
	"github.com/btcsuite/btccustody/internal/zero"
	"github.com/btcsuite/btccustody/ledger"
	"github.com/btcsuite/btccustody/rollback"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/davecgh/go-spew/spew"
	flags "github.com/jessevdk/go-flags"
	"golang.org/x/term"
)

// commandRunner is implemented by every subcommand.
type commandRunner interface {
	run(ctx context.Context, cfg *config) error
}

// txFileArgs is the positional argument of commands operating on a hex
// encoded transaction file.
type txFileArgs struct {
	TxFile flags.Filename `positional-arg-name:"txfile" description:"File holding a hex encoded transaction"`
}

type balanceOfCmd struct {
	Args struct {
		Address cfgutil.AddressFlag `positional-arg-name:"address" description:"20-byte hex address"`
	} `positional-args:"yes" required:"yes"`
}

type withdrawTargetCmd struct {
	Args struct {
		TxHash cfgutil.HashFlag `positional-arg-name:"txhash" description:"Hash of the withdraw transaction"`
	} `positional-args:"yes" required:"yes"`
}

type submitCmd struct {
	Args txFileArgs `positional-args:"yes" required:"yes"`
}

type verifyCmd struct {
	Args txFileArgs `positional-args:"yes" required:"yes"`
}

type genesisCmd struct {
	Args txFileArgs `positional-args:"yes" required:"yes"`
}

type decodeTxCmd struct {
	Args txFileArgs `positional-args:"yes" required:"yes"`
}

type signTxCmd struct {
	WIF  string         `long:"wif" default-mask:"-" description:"Private key in wallet import format (prompted for when unset)"`
	Out  flags.Filename `short:"o" long:"out" description:"Write the signed transaction to this file instead of stdout"`
	Args txFileArgs     `positional-args:"yes" required:"yes"`
}

// addCommands registers the subcommands with parser and returns the runner
// of each by name.
func addCommands(parser *flags.Parser) map[string]commandRunner {
	commands := []struct {
		name, short, long string
		runner            commandRunner
	}{
		{"balanceof", "Show a deposit balance",
			"Show the balance the deposit contract holds for an address.",
			&balanceOfCmd{}},
		{"withdrawtarget", "Show a withdrawal recipient",
			"Show the recipient recorded by a withdraw transaction.",
			&withdrawTargetCmd{}},
		{"submit", "Apply a transaction",
			"Verify a transaction and apply it to the ledger.",
			&submitCmd{}},
		{"verify", "Check a transaction",
			"Verify a transaction against the ledger without applying it.",
			&verifyCmd{}},
		{"genesis", "Apply a funding transaction",
			"Apply a transaction without inputs that creates new outputs.",
			&genesisCmd{}},
		{"decodetx", "Decode a transaction",
			"Print the decoded contents of a transaction.",
			&decodeTxCmd{}},
		{"signtx", "Sign a transaction",
			"Add a witness signed by a private key to a transaction.",
			&signTxCmd{}},
	}

	runners := make(map[string]commandRunner, len(commands))
	for _, c := range commands {
		_, err := parser.AddCommand(c.name, c.short, c.long, c.runner)
		if err != nil {
			panic(err)
		}
		runners[c.name] = c.runner
	}
	return runners
}

// readTxFile decodes the hex encoded transaction stored in path.
func readTxFile(path flags.Filename) (*ledger.Tx, error) {
	b, err := os.ReadFile(cleanAndExpandPath(string(path)))
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrMalformedInput, err)
	}
	return ledger.DecodeTx(raw)
}

// dbFileName returns the name of the database file for a backend.
func dbFileName(dbType string) string {
	if dbType == "sqlite" {
		return strings.TrimSuffix(dbName, ".db") + ".sqlite"
	}
	return dbName
}

// custodyLedger is the chain and contracts opened from the configured data
// directory.
type custodyLedger struct {
	db        contractdb.DB
	chain     *chain.Chain
	custodian *custodian.Custodian
}

// openLedger opens the ledger database, creating it if needed, and registers
// the configured contracts.
func openLedger(cfg *config) (*custodyLedger, error) {
	dbPath := filepath.Join(cfg.DataDir.Value, dbFileName(cfg.DbType))
	exists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		return nil, err
	}

	var db contractdb.DB
	if exists {
		db, err = contractdb.Open(cfg.DbType, dbPath)
	} else {
		log.Infof("Creating %s ledger database at %s", cfg.DbType,
			dbPath)
		db, err = contractdb.Create(cfg.DbType, dbPath)
	}
	if err != nil {
		return nil, err
	}

	c := custodian.New(&custodian.Config{
		ScriptAddress: cfg.DepositContract.Address,
		GuardedAsset:  cfg.GuardedAsset.Hash,
	})
	ch, err := chain.New(db, &chain.Config{
		Contracts: []chain.Contract{
			c, rollback.New(cfg.RollbackContract.Address),
		},
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &custodyLedger{db: db, chain: ch, custodian: c}, nil
}

func (l *custodyLedger) Close() {
	if err := l.db.Close(); err != nil {
		log.Errorf("Unable to close ledger database: %v", err)
	}
}

func withLedger(cfg *config, f func(l *custodyLedger) error) error {
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()
	return f(l)
}

func (c *balanceOfCmd) run(_ context.Context, cfg *config) error {
	return withLedger(cfg, func(l *custodyLedger) error {
		addr := c.Args.Address.Address
		return l.chain.ContractView(l.custodian.ScriptAddress(),
			func(ns contractdb.ReadBucket) error {
				balance, err := l.custodian.BalanceOf(ns, addr[:])
				if err != nil {
					return err
				}
				fmt.Println(balance)
				return nil
			},
		)
	})
}

func (c *withdrawTargetCmd) run(_ context.Context, cfg *config) error {
	return withLedger(cfg, func(l *custodyLedger) error {
		hash := c.Args.TxHash.Hash
		return l.chain.ContractView(l.custodian.ScriptAddress(),
			func(ns contractdb.ReadBucket) error {
				target, err := l.custodian.WithdrawTarget(
					ns, hash[:],
				)
				if err != nil {
					return err
				}
				if target.IsNone() {
					fmt.Println("none")
				}
				target.WhenSome(func(a ledger.Address) {
					fmt.Println(a)
				})
				return nil
			},
		)
	})
}

func (c *submitCmd) run(ctx context.Context, cfg *config) error {
	tx, err := readTxFile(c.Args.TxFile)
	if err != nil {
		return err
	}
	return withLedger(cfg, func(l *custodyLedger) error {
		if err := l.chain.Submit(ctx, tx); err != nil {
			return err
		}
		fmt.Println(tx.TxHash())
		return nil
	})
}

func (c *verifyCmd) run(ctx context.Context, cfg *config) error {
	tx, err := readTxFile(c.Args.TxFile)
	if err != nil {
		return err
	}
	return withLedger(cfg, func(l *custodyLedger) error {
		if err := l.chain.Verify(ctx, tx); err != nil {
			return err
		}
		fmt.Printf("%v: ok\n", tx.TxHash())
		return nil
	})
}

func (c *genesisCmd) run(ctx context.Context, cfg *config) error {
	tx, err := readTxFile(c.Args.TxFile)
	if err != nil {
		return err
	}
	return withLedger(cfg, func(l *custodyLedger) error {
		if err := l.chain.Genesis(ctx, tx); err != nil {
			return err
		}
		fmt.Println(tx.TxHash())
		return nil
	})
}

func (c *decodeTxCmd) run(_ context.Context, _ *config) error {
	tx, err := readTxFile(c.Args.TxFile)
	if err != nil {
		return err
	}
	fmt.Printf("hash: %v\n", tx.TxHash())
	spew.Dump(tx)
	return nil
}

// readWIF returns the private key given by flag or read from the terminal
// without echo.
func (c *signTxCmd) readWIF() (*btcutil.WIF, error) {
	if c.WIF != "" {
		return btcutil.DecodeWIF(c.WIF)
	}

	fmt.Fprint(os.Stderr, "Private key (WIF): ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(b)

	return btcutil.DecodeWIF(strings.TrimSpace(string(b)))
}

func (c *signTxCmd) run(_ context.Context, _ *config) error {
	tx, err := readTxFile(c.Args.TxFile)
	if err != nil {
		return err
	}
	wif, err := c.readWIF()
	if err != nil {
		return err
	}
	tx.Sign(wif.PrivKey)
	log.Debugf("Signed %v as %v", tx.TxHash(),
		ledger.AddressFromPubKey(wif.PrivKey.PubKey()))

	encoded := hex.EncodeToString(tx.Bytes())
	if c.Out == "" {
		fmt.Println(encoded)
		return nil
	}
	return os.WriteFile(
		cleanAndExpandPath(string(c.Out)), []byte(encoded+"\n"), 0600,
	)
}
