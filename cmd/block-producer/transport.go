package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"google.golang.org/grpc"

	"github.com/rollup-labs/block-producer/internal/mempool"
	"github.com/rollup-labs/block-producer/internal/prover"
	"github.com/rollup-labs/block-producer/internal/rpcwire"
	"github.com/rollup-labs/block-producer/internal/store"
)

var gobCodec = grpc.CallContentSubtype(rpcwire.Name)

// grpcStoreTransport drives the store's RPC surface by hand through
// conn.Invoke, matching server.Server's hand-written grpc.ServiceDesc: no
// protoc-generated stub exists on either side of this wire.
type grpcStoreTransport struct {
	conn *grpc.ClientConn
}

func newGRPCStoreTransport(conn *grpc.ClientConn) store.Transport {
	return &grpcStoreTransport{conn: conn}
}

func (t *grpcStoreTransport) GetTransactionInputs(ctx context.Context, account mempool.AccountID, nullifiers []mempool.NoteID) (store.TransactionInputs, error) {
	var out store.TransactionInputs
	in := &struct {
		Account    mempool.AccountID
		Nullifiers []mempool.NoteID
	}{account, nullifiers}
	err := t.conn.Invoke(ctx, "/store.Store/GetTransactionInputs", in, &out, gobCodec)
	return out, err
}

func (t *grpcStoreTransport) GetBatchInputs(ctx context.Context, unauthenticatedNotes []mempool.NoteID) ([]store.NoteAuthentication, error) {
	var out []store.NoteAuthentication
	err := t.conn.Invoke(ctx, "/store.Store/GetBatchInputs", unauthenticatedNotes, &out, gobCodec)
	return out, err
}

func (t *grpcStoreTransport) GetBlockInputs(ctx context.Context, accounts []mempool.AccountID, nullifiers, unauthenticatedNotes []mempool.NoteID) (store.BlockInputs, error) {
	var out store.BlockInputs
	in := &struct {
		Accounts             []mempool.AccountID
		Nullifiers           []mempool.NoteID
		UnauthenticatedNotes []mempool.NoteID
	}{accounts, nullifiers, unauthenticatedNotes}
	err := t.conn.Invoke(ctx, "/store.Store/GetBlockInputs", in, &out, gobCodec)
	return out, err
}

func (t *grpcStoreTransport) ApplyBlock(ctx context.Context, blockBytes []byte) error {
	var out struct{}
	return t.conn.Invoke(ctx, "/store.Store/ApplyBlock", blockBytes, &out, gobCodec)
}

// grpcProverTransport drives a remote prover the same hand-rolled way.
type grpcProverTransport struct {
	conn *grpc.ClientConn
}

func newGRPCProverTransport(conn *grpc.ClientConn) prover.RemoteTransport {
	return &grpcProverTransport{conn: conn}
}

func (t *grpcProverTransport) ProveBatch(ctx context.Context, req prover.BatchProvingRequest) ([]byte, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("prover transport: no connection configured")
	}
	var out []byte
	err := t.conn.Invoke(ctx, "/prover.Prover/ProveBatch", &req, &out, gobCodec)
	return out, err
}

func (t *grpcProverTransport) ProveBlock(ctx context.Context, req prover.BlockProvingRequest) ([]byte, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("prover transport: no connection configured")
	}
	var out []byte
	err := t.conn.Invoke(ctx, "/prover.Prover/ProveBlock", &req, &out, gobCodec)
	return out, err
}

// decodeTransaction parses a submitted transaction's wire payload. The
// rollup's own transaction encoding is external to this repo (§1
// Non-goal); this decodes a fixed envelope: account id, initial and final
// account commitments (32 bytes each), a big-endian 8-byte expiration
// height, and then the opaque proof bytes. No note ids are decoded, so the
// resulting transaction consumes and produces no notes.
func decodeTransaction(raw []byte) (*mempool.Transaction, error) {
	const minLen = 32 + 32 + 32 + 8
	if len(raw) < minLen {
		return nil, fmt.Errorf("transaction envelope too short: %d bytes", len(raw))
	}
	var tx mempool.Transaction
	copy(tx.Account[:], raw[0:32])
	copy(tx.InitialAccount[:], raw[32:64])
	copy(tx.FinalAccount[:], raw[64:96])
	tx.Expiration = binary.BigEndian.Uint64(raw[96:104])
	tx.Proof = append([]byte(nil), raw[104:]...)
	tx.ID = deriveTxID(&tx)
	return &tx, nil
}

func deriveTxID(tx *mempool.Transaction) mempool.TxID {
	return mempool.DeriveTransactionID(tx.Account, tx.InitialAccount, tx.FinalAccount, tx.Expiration, tx.Proof)
}
