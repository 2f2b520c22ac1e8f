// Package rpcwire registers a gob-based gRPC codec so the block-producer's
// hand-rolled services (§1 Non-goal: no protobuf codegen) can still ride
// real gRPC framing, flow control, and the go-grpc-middleware interceptor
// chain instead of inventing a bespoke transport.
package rpcwire

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// Name is the codec's content-subtype, negotiated via
// grpc.CallContentSubtype on the client and matched automatically by the
// server for any call using it.
const Name = "gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return Name }
