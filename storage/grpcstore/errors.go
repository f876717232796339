package grpcstore

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/authledger/storage"
)

// mapRPC turns a gRPC status back into the storage sentinel the server saw.
// Transport failures become storage.ErrUnavailable so they are never mistaken
// for an absent key.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", storage.ErrInvalidRecord, st.Message())
	case codes.DataLoss:
		return fmt.Errorf("%w: %s", storage.ErrCorrupt, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted:
		return fmt.Errorf("%w: %s: %s", storage.ErrUnavailable, st.Code(), st.Message())
	default:
		return fmt.Errorf("grpcstore: %s: %s", st.Code(), st.Message())
	}
}
