package grpcstore

import (
	"context"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/digitloom/digitloom/blockid"
	"github.com/digitloom/digitloom/blockstore"
)

// Server exposes a blockstore.Store over the BlockStore gRPC service.
type Server struct {
	UnimplementedBlockStoreServer
	Store blockstore.Store
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	_ = ctx
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	b := in.GetValue()
	// Enforce the repo's CID contract on the server side too.
	expected, err := blockid.For(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.Store.Put(b)
	if err != nil {
		return nil, mapErr(err)
	}
	if id.String() != expected.String() {
		return nil, status.Error(codes.DataLoss, blockstore.ErrCIDMismatch.Error())
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, blockstore.ErrInvalidCID.Error())
	}
	b, err := s.Store.Get(id)
	if err != nil {
		return nil, mapErr(err)
	}
	got, err := blockid.For(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	if got.String() != id.String() {
		return nil, status.Error(codes.DataLoss, blockstore.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	_ = ctx
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, blockstore.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.Store.Has(id)), nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case err == blockstore.ErrNotFound:
		return status.Error(codes.NotFound, err.Error())
	case err == blockstore.ErrInvalidCID:
		return status.Error(codes.InvalidArgument, err.Error())
	case err == blockstore.ErrCIDMismatch:
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
