// Command block-producer runs the rollup's mempool, batch builder, block
// builder, and inbound RPC server as a single process.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rollup-labs/block-producer/internal/batchbuilder"
	"github.com/rollup-labs/block-producer/internal/blockbuilder"
	"github.com/rollup-labs/block-producer/internal/config"
	"github.com/rollup-labs/block-producer/internal/mempool"
	"github.com/rollup-labs/block-producer/internal/prover"
	"github.com/rollup-labs/block-producer/internal/server"
	"github.com/rollup-labs/block-producer/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "block-producer",
		Usage: "assembles proven transactions into batches and blocks for a ZK rollup",
		Flags: config.Flags,
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	log.SetDefault(logger)

	mp := mempool.New(mempool.Config{
		MaxTxsPerBatch:     cfg.Budgets.MaxTxsPerBatch,
		MaxBatchesPerBlock: cfg.Budgets.MaxBatchesPerBlock,
		BatchBudget:        cfg.Budgets.BatchBudget(),
		BlockBudget:        cfg.Budgets.BlockBudget(),
		Log:                logger.New("component", "mempool"),
	})

	storeClient, err := dialStore(cfg)
	if err != nil {
		return fmt.Errorf("dialing store: %w", err)
	}

	batchProver, blockProver := dialProvers(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bb := &batchbuilder.Builder{
		Mempool:       mp,
		Store:         storeClient,
		Prover:        batchProver,
		Interval:      cfg.BatchInterval,
		MaxConcurrent: cfg.MaxConcurrentBatchProvers,
		Log:           logger.New("component", "batchbuilder"),
	}
	blkb := &blockbuilder.Builder{
		Mempool:  mp,
		Store:    storeClient,
		Prover:   blockProver,
		Interval: cfg.BlockInterval,
		Log:      logger.New("component", "blockbuilder"),
	}

	go bb.Run(ctx)
	go blkb.Run(ctx)

	grpcServer, err := startServer(cfg, mp, logger)
	if err != nil {
		return fmt.Errorf("starting rpc server: %w", err)
	}

	waitForShutdown()
	logger.Info("shutting down")
	cancel()
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(gracePeriod):
		logger.Warn("rpc server did not drain within grace period, forcing stop")
		grpcServer.Stop()
	}
	return nil
}

func newLogger(cfg config.Config) log.Logger {
	var handler log.Handler
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		handler = log.StreamHandler(rotator, log.TerminalFormat(false))
	} else {
		handler = log.StreamHandler(os.Stderr, log.TerminalFormat(true))
	}

	lvl, err := log.LvlFromString(cfg.LogLevel)
	if err != nil {
		lvl = log.LvlInfo
	}
	logger := log.New()
	logger.SetHandler(log.LvlFilterHandler(lvl, handler))
	return logger
}

func dialStore(cfg config.Config) (store.Client, error) {
	conn, err := grpc.Dial(cfg.StoreURL, grpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	transport := newGRPCStoreTransport(conn)
	return store.NewRPCClient(transport)
}

func dialProvers(cfg config.Config) (prover.BatchProver, prover.BlockProver) {
	if cfg.BatchProverURL == "" && cfg.BlockProverURL == "" {
		// Local in-process proving: the Prove functions here are a seam a
		// real deployment fills in with the rollup's actual proving crate
		// bound through cgo or a subprocess; left nil triggers a clear
		// panic rather than a silent no-op if wired up without one.
		return &prover.LocalBatchProver{}, &prover.LocalBlockProver{}
	}
	// Remote proving dials lazily; connection errors surface as
	// ErrProvingFailed on first use via the retrying RemoteProver.
	var batchConn, blockConn *grpc.ClientConn
	if cfg.BatchProverURL != "" {
		batchConn, _ = grpc.Dial(cfg.BatchProverURL, grpc.WithInsecure())
	}
	if cfg.BlockProverURL != "" {
		blockConn, _ = grpc.Dial(cfg.BlockProverURL, grpc.WithInsecure())
	}
	var batchProver prover.BatchProver = &prover.LocalBatchProver{}
	if cfg.BatchProverURL != "" {
		batchProver = prover.NewRemoteProver(newGRPCProverTransport(batchConn), 0)
	}
	var blockProver prover.BlockProver = &prover.LocalBlockProver{}
	if cfg.BlockProverURL != "" {
		blockProver = prover.NewRemoteProver(newGRPCProverTransport(blockConn), 0)
	}
	return batchProver, blockProver
}

func startServer(cfg config.Config, mp *mempool.Mempool, logger log.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", cfg.ListenURL)
	if err != nil {
		return nil, err
	}
	srv := &server.Server{
		Mempool: mp,
		Decode:  decodeTransaction,
		Log:     logger.New("component", "server"),
	}
	gs := server.NewGRPCServer(srv)
	go func() {
		if err := gs.Serve(lis); err != nil {
			logger.Error("rpc server stopped", "err", err)
		}
	}()
	return gs, nil
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

// gracePeriod bounds how long shutdown waits for GracefulStop to drain
// in-flight RPCs before forcing the server to stop.
const gracePeriod = 30 * time.Second
