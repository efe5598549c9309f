package grpcstore

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/digitloom/digitloom/blockstore"
)

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return blockstore.ErrNotFound
	case codes.InvalidArgument:
		// Server uses InvalidArgument for malformed/undefined CIDs.
		return blockstore.ErrInvalidCID
	case codes.DataLoss:
		// Server uses DataLoss when bytes do not match the requested CID.
		return blockstore.ErrCIDMismatch
	default:
		// Best-effort: if the server sent a known blockstore error message, preserve it.
		switch st.Message() {
		case blockstore.ErrNotFound.Error():
			return blockstore.ErrNotFound
		case blockstore.ErrInvalidCID.Error():
			return blockstore.ErrInvalidCID
		case blockstore.ErrCIDMismatch.Error():
			return blockstore.ErrCIDMismatch
		default:
			return err
		}
	}
}
