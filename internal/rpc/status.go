package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kainosnoema/remq/pkg/message"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// argumentErrors travel as InvalidArgument with the sentinel text leading
// the status message, so clients can restore them.
var argumentErrors = []error{
	message.ErrInvalidPattern,
	message.ErrInvalidChannel,
	message.ErrInvalidCursor,
	message.ErrInvalidPolicy,
}

// ToStatus converts a log error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range argumentErrors {
		if errors.Is(err, sentinel) {
			return status.Error(codes.InvalidArgument, sentinel.Error()+": "+err.Error())
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, message.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus maps a call error back onto the remq error taxonomy. Anything
// that is not a caller mistake or a cancellation means the store could not
// be used.
func fromStatus(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc: %s: %w: %w", op, message.ErrStoreUnavailable, err)
	}
	switch st.Code() {
	case codes.InvalidArgument:
		for _, sentinel := range argumentErrors {
			if strings.HasPrefix(st.Message(), sentinel.Error()) {
				return fmt.Errorf("rpc: %s: %w%s", op, sentinel, strings.TrimPrefix(st.Message(), sentinel.Error()))
			}
		}
		return fmt.Errorf("rpc: %s: %s", op, st.Message())
	case codes.Canceled:
		return fmt.Errorf("rpc: %s: %w", op, context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("rpc: %s: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("rpc: %s: %w: %s", op, message.ErrStoreUnavailable, st.Message())
}
