// Package config parses the block-producer's command-line and environment
// configuration into the structs the rest of the program consumes.
package config

import (
	"fmt"
	"time"

	"github.com/rollup-labs/block-producer/internal/mempool"
	"github.com/urfave/cli/v2"
)

// Config is the fully resolved configuration for a block-producer process.
type Config struct {
	ListenURL string
	StoreURL  string

	BatchInterval time.Duration
	BlockInterval time.Duration

	MaxConcurrentBatchProvers int
	BatchProverURL            string
	BlockProverURL            string

	Budgets Budgets

	LogFile  string
	LogLevel string
}

// Budgets bundles the per-batch and per-block resource limits named in §4.5.
type Budgets struct {
	MaxTxsPerBatch        int
	MaxAccountsPerBatch   int
	MaxInputNotesPerBatch int
	MaxOutputNotesPerBatch int

	MaxBatchesPerBlock     int
	MaxAccountsPerBlock    int
	MaxInputNotesPerBlock  int
	MaxOutputNotesPerBlock int
}

// BatchBudget converts the flat CLI budget fields into a mempool.BatchBudget.
func (b Budgets) BatchBudget() mempool.BatchBudget {
	return mempool.BatchBudget{
		MaxTxs:         b.MaxTxsPerBatch,
		MaxAccounts:    b.MaxAccountsPerBatch,
		MaxInputNotes:  b.MaxInputNotesPerBatch,
		MaxOutputNotes: b.MaxOutputNotesPerBatch,
	}
}

// BlockBudget converts the flat CLI budget fields into a mempool.BlockBudget.
func (b Budgets) BlockBudget() mempool.BlockBudget {
	return mempool.BlockBudget{
		MaxBatches:     b.MaxBatchesPerBlock,
		MaxAccounts:    b.MaxAccountsPerBlock,
		MaxInputNotes:  b.MaxInputNotesPerBlock,
		MaxOutputNotes: b.MaxOutputNotesPerBlock,
	}
}

var (
	listenURLFlag = &cli.StringFlag{Name: "listen-url", Usage: "address the inbound RPC server binds to", Required: true, EnvVars: []string{"BLOCK_PRODUCER_LISTEN_URL"}}
	storeURLFlag  = &cli.StringFlag{Name: "store-url", Usage: "address of the authoritative store service", Required: true, EnvVars: []string{"BLOCK_PRODUCER_STORE_URL"}}

	batchIntervalFlag = &cli.DurationFlag{Name: "batch-interval", Usage: "batch builder tick period", Value: 2 * time.Second}
	blockIntervalFlag = &cli.DurationFlag{Name: "block-interval", Usage: "block builder tick period", Value: 5 * time.Second}

	maxConcurrentBatchProversFlag = &cli.IntFlag{Name: "max-concurrent-batch-provers", Usage: "parallel batch proving tasks", Value: 4}
	batchProverURLFlag            = &cli.StringFlag{Name: "batch-prover-url", Usage: "remote batch prover address; empty uses the local in-process prover"}
	blockProverURLFlag            = &cli.StringFlag{Name: "block-prover-url", Usage: "remote block prover address; empty uses the local in-process prover"}

	maxTxsPerBatchFlag         = &cli.IntFlag{Name: "max-txs-per-batch", Value: 64}
	maxAccountsPerBatchFlag    = &cli.IntFlag{Name: "max-accounts-per-batch", Value: 64}
	maxInputNotesPerBatchFlag  = &cli.IntFlag{Name: "max-input-notes-per-batch", Value: 256}
	maxOutputNotesPerBatchFlag = &cli.IntFlag{Name: "max-output-notes-per-batch", Value: 256}

	maxBatchesPerBlockFlag     = &cli.IntFlag{Name: "max-batches-per-block", Value: 16}
	maxAccountsPerBlockFlag    = &cli.IntFlag{Name: "max-accounts-per-block", Value: 1024}
	maxInputNotesPerBlockFlag  = &cli.IntFlag{Name: "max-input-notes-per-block", Value: 4096}
	maxOutputNotesPerBlockFlag = &cli.IntFlag{Name: "max-output-notes-per-block", Value: 4096}

	logFileFlag  = &cli.StringFlag{Name: "log-file", Usage: "rotate structured logs to this file instead of stderr"}
	logLevelFlag = &cli.StringFlag{Name: "log-level", Value: "info"}
)

// Flags is the full flag set the CLI app should register.
var Flags = []cli.Flag{
	listenURLFlag, storeURLFlag,
	batchIntervalFlag, blockIntervalFlag,
	maxConcurrentBatchProversFlag, batchProverURLFlag, blockProverURLFlag,
	maxTxsPerBatchFlag, maxAccountsPerBatchFlag, maxInputNotesPerBatchFlag, maxOutputNotesPerBatchFlag,
	maxBatchesPerBlockFlag, maxAccountsPerBlockFlag, maxInputNotesPerBlockFlag, maxOutputNotesPerBlockFlag,
	logFileFlag, logLevelFlag,
}

// FromContext resolves a Config from a parsed cli.Context.
func FromContext(c *cli.Context) (Config, error) {
	cfg := Config{
		ListenURL:                 c.String(listenURLFlag.Name),
		StoreURL:                  c.String(storeURLFlag.Name),
		BatchInterval:             c.Duration(batchIntervalFlag.Name),
		BlockInterval:             c.Duration(blockIntervalFlag.Name),
		MaxConcurrentBatchProvers: c.Int(maxConcurrentBatchProversFlag.Name),
		BatchProverURL:            c.String(batchProverURLFlag.Name),
		BlockProverURL:            c.String(blockProverURLFlag.Name),
		Budgets: Budgets{
			MaxTxsPerBatch:         c.Int(maxTxsPerBatchFlag.Name),
			MaxAccountsPerBatch:    c.Int(maxAccountsPerBatchFlag.Name),
			MaxInputNotesPerBatch:  c.Int(maxInputNotesPerBatchFlag.Name),
			MaxOutputNotesPerBatch: c.Int(maxOutputNotesPerBatchFlag.Name),
			MaxBatchesPerBlock:     c.Int(maxBatchesPerBlockFlag.Name),
			MaxAccountsPerBlock:    c.Int(maxAccountsPerBlockFlag.Name),
			MaxInputNotesPerBlock:  c.Int(maxInputNotesPerBlockFlag.Name),
			MaxOutputNotesPerBlock: c.Int(maxOutputNotesPerBlockFlag.Name),
		},
		LogFile:  c.String(logFileFlag.Name),
		LogLevel: c.String(logLevelFlag.Name),
	}
	if cfg.ListenURL == "" {
		return Config{}, fmt.Errorf("config: listen-url is required")
	}
	if cfg.StoreURL == "" {
		return Config{}, fmt.Errorf("config: store-url is required")
	}
	return cfg, nil
}
