// Package server exposes the block-producer's single inbound RPC,
// submit_proven_transaction (§6), over gRPC. No protobuf codegen is used:
// messages are opaque byte payloads the caller has already serialized and
// proven, so the service is wired by hand through grpc.ServiceDesc rather
// than through a generated stub.
package server

import (
	"context"
	"fmt"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ethereum/go-ethereum/log"

	"github.com/rollup-labs/block-producer/internal/mempool"
	_ "github.com/rollup-labs/block-producer/internal/rpcwire"
)

// Decoder turns a wire-format transaction payload into a mempool
// transaction. Kept as an injected function so the server package does not
// need to know the rollup's transaction encoding.
type Decoder func(raw []byte) (*mempool.Transaction, error)

// Server implements the block-producer's inbound RPC surface over the
// mempool.
type Server struct {
	Mempool *mempool.Mempool
	Decode  Decoder
	Log     log.Logger
}

// SubmitProvenTransactionRequest is the unary request for the sole inbound
// RPC: a raw, already-proven transaction payload.
type SubmitProvenTransactionRequest struct {
	TransactionBytes []byte
}

// SubmitProvenTransactionResponse acks admission with the mempool's
// currently committed block height, letting the client reason about how
// stale its own view of chain state might be.
type SubmitProvenTransactionResponse struct {
	CommittedHeight mempool.BlockHeight
}

// SubmitProvenTransaction validates and admits a proven transaction. Errors
// are mapped to gRPC status codes: a malformed payload is InvalidArgument,
// a mempool validation verdict is FailedPrecondition (see toGRPCCode), and
// any other error is Unavailable.
func (s *Server) SubmitProvenTransaction(ctx context.Context, req *SubmitProvenTransactionRequest) (*SubmitProvenTransactionResponse, error) {
	reqID := uuid.New().String()
	log := s.Log.New("req", reqID)

	tx, err := s.Decode(req.TransactionBytes)
	if err != nil {
		log.Debug("rejected malformed transaction", "err", err)
		return nil, status.Errorf(codes.InvalidArgument, "malformed transaction: %v", err)
	}

	height, err := s.Mempool.AddTransaction(tx)
	if err != nil {
		log.Debug("rejected transaction", "tx", tx.ID, "err", err)
		return nil, status.Error(toGRPCCode(err), err.Error())
	}

	log.Debug("admitted transaction", "tx", tx.ID)
	return &SubmitProvenTransactionResponse{CommittedHeight: height}, nil
}

// toGRPCCode maps a §7 error kind to a gRPC status code. codes.Unavailable
// is reserved for genuine store.ErrUnavailable-class transience: every
// mempool validation error here is a synchronous verdict against the
// transaction as submitted, so blindly retrying the same bytes can never
// turn it into an admission. StaleAccountState and AccountStateMismatch
// need a freshly-built transaction against current state, not a retry;
// NoteAlreadyConsumed, UnauthenticatedNoteNotFound, and Expired are flatly
// non-recoverable. FailedPrecondition signals all of these the same way:
// "don't resend these exact bytes".
func toGRPCCode(err error) codes.Code {
	switch err {
	case mempool.ErrExpired,
		mempool.ErrTransactionAlreadyInMempool,
		mempool.ErrStaleAccountState,
		mempool.ErrAccountStateMismatch,
		mempool.ErrNoteAlreadyConsumed,
		mempool.ErrUnauthenticatedNoteNotFound:
		return codes.FailedPrecondition
	default:
		return codes.Unavailable
	}
}

// serviceName is used as the gRPC fully-qualified service name in the
// hand-rolled ServiceDesc below.
const serviceName = "blockproducer.BlockProducer"

// serviceDesc is the hand-rolled analogue of a protoc-generated
// ServiceDesc, registering the single unary RPC this service exposes.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*blockProducerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitProvenTransaction",
			Handler:    submitProvenTransactionHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "blockproducer.proto",
}

type blockProducerServer interface {
	SubmitProvenTransaction(ctx context.Context, req *SubmitProvenTransactionRequest) (*SubmitProvenTransactionResponse, error)
}

func submitProvenTransactionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitProvenTransactionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(blockProducerServer).SubmitProvenTransaction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fmt.Sprintf("/%s/SubmitProvenTransaction", serviceName)}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(blockProducerServer).SubmitProvenTransaction(ctx, req.(*SubmitProvenTransactionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// NewGRPCServer builds a *grpc.Server with recovery and logging
// interceptors chained in, and the block-producer service registered.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	chain := grpc.ChainUnaryInterceptor(
		grpc_middleware.ChainUnaryServer(
			loggingInterceptor(s.Log),
			grpc_recovery.UnaryServerInterceptor(),
		),
	)
	gs := grpc.NewServer(append(opts, chain)...)
	gs.RegisterService(&serviceDesc, s)
	return gs
}

func loggingInterceptor(l log.Logger) grpc.UnaryServerInterceptor {
	if l == nil {
		l = log.Root()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			l.Debug("rpc failed", "method", info.FullMethod, "err", err)
		}
		return resp, err
	}
}
