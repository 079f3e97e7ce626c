package errutil

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var grpcCodes = map[CoreStatus]codes.Code{
	StatusValidationFailed:     codes.InvalidArgument,
	StatusBadRequest:           codes.InvalidArgument,
	StatusUnsupportedMediaType: codes.InvalidArgument,
	StatusUnprocessableEntity:  codes.FailedPrecondition,
	StatusNotFound:             codes.NotFound,
	StatusConflict:             codes.FailedPrecondition,
	StatusUnauthorized:         codes.Unauthenticated,
	StatusForbidden:            codes.PermissionDenied,
	StatusTooManyRequests:      codes.ResourceExhausted,
	StatusClientClosedRequest:  codes.Canceled,
	StatusTimeout:              codes.DeadlineExceeded,
	StatusGatewayTimeout:       codes.DeadlineExceeded,
	StatusBadGateway:           codes.Unavailable,
	StatusServiceUnavailable:   codes.Unavailable,
	StatusNotImplemented:       codes.Unimplemented,
	StatusPartialFailure:       codes.Aborted,
	StatusInternal:             codes.Internal,
}

// GRPCCode is the closest gRPC code for the status. State conflicts such as a
// payout already settled map to FailedPrecondition.
func (s CoreStatus) GRPCCode() codes.Code {
	if c, ok := grpcCodes[s]; ok {
		return c
	}
	return codes.Unknown
}

// ToGRPCError converts a domain error into a gRPC status error.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	if code := Code(err); code != StatusUnknown {
		var base BaseError
		if errors.As(err, &base) {
			return status.Error(code.GRPCCode(), base.messageWithErr())
		}
		return status.Error(code.GRPCCode(), err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
