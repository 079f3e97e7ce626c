package errutil

import "net/http"

// CoreStatus is the machine-checkable reason carried by every BaseError.
type CoreStatus string

const (
	StatusValidationFailed     CoreStatus = "VALIDATION"
	StatusBadRequest           CoreStatus = "BAD_REQUEST"
	StatusNotFound             CoreStatus = "NOT_FOUND"
	StatusConflict             CoreStatus = "CONFLICT"
	StatusBadGateway           CoreStatus = "UPSTREAM_FAILURE"
	StatusPartialFailure       CoreStatus = "PARTIAL_FAILURE"
	StatusUnauthorized         CoreStatus = "UNAUTHORIZED"
	StatusForbidden            CoreStatus = "FORBIDDEN"
	StatusUnprocessableEntity  CoreStatus = "UNPROCESSABLE_ENTITY"
	StatusUnsupportedMediaType CoreStatus = "UNSUPPORTED_MEDIA_TYPE"
	StatusTooManyRequests      CoreStatus = "TOO_MANY_REQUESTS"
	StatusClientClosedRequest  CoreStatus = "CLIENT_CLOSED_REQUEST"
	StatusTimeout              CoreStatus = "TIMEOUT"
	StatusGatewayTimeout       CoreStatus = "GATEWAY_TIMEOUT"
	StatusServiceUnavailable   CoreStatus = "SERVICE_UNAVAILABLE"
	StatusNotImplemented       CoreStatus = "NOT_IMPLEMENTED"
	StatusInternal             CoreStatus = "INTERNAL"
	StatusUnknown              CoreStatus = "UNKNOWN"
)

// HTTPStatus converts the CoreStatus to the HTTP status used by the gin adapter.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusValidationFailed, StatusBadRequest:
		return http.StatusBadRequest
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case StatusUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusClientClosedRequest:
		return 499
	case StatusTimeout:
		return http.StatusRequestTimeout
	case StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	case StatusBadGateway:
		return http.StatusBadGateway
	case StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusPartialFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}
