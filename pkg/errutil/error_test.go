package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestConstructorsWrapCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := BadGateway("gateway unavailable", cause)

	require.ErrorIs(t, err, cause)
	require.True(t, Is(err, StatusBadGateway))
	require.Equal(t, "[UPSTREAM_FAILURE] gateway unavailable: connection reset", err.Error())
}

func TestCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("approve payout: %w", NotFound("payout not found", nil))

	require.Equal(t, StatusNotFound, Code(err))
	require.False(t, Is(err, StatusConflict))
	require.Equal(t, StatusUnknown, Code(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusValidationFailed: http.StatusBadRequest,
		StatusNotFound:         http.StatusNotFound,
		StatusConflict:         http.StatusConflict,
		StatusBadGateway:       http.StatusBadGateway,
		StatusForbidden:        http.StatusForbidden,
		StatusInternal:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), code)
	}
}

func TestToGRPCError(t *testing.T) {
	err := ToGRPCError(Conflict("wallet not activated", nil))

	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.FailedPrecondition, st.Code())
	require.Equal(t, "wallet not activated", st.Message())

	st, _ = status.FromError(ToGRPCError(BadGateway("gateway down", errors.New("timeout"))))
	require.Equal(t, codes.Unavailable, st.Code())
	require.Equal(t, "gateway down: timeout", st.Message())

	st, _ = status.FromError(ToGRPCError(errors.New("plain")))
	require.Equal(t, codes.Internal, st.Code())

	require.Equal(t, codes.Unknown, StatusUnknown.GRPCCode())
	require.NoError(t, ToGRPCError(nil))
}

func TestJSONEnvelope(t *testing.T) {
	err := New(StatusValidationFailed, "invalid request",
		WithDetails(Detail{Field: "amount", Message: "must be > 0"}),
		WithErr(errors.New("amount=0")),
	)

	var be BaseError
	require.True(t, errors.As(err, &be))
	body := be.JSON()
	require.Equal(t, StatusValidationFailed, body.Error.Code)
	require.Equal(t, "invalid request: amount=0", body.Error.Message)
	require.Len(t, body.Error.Details, 1)
	require.Equal(t, "amount", body.Error.Details[0].Field)
}
