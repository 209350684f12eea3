package proto

import (
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// APIError is the error taxonomy shared by REST and gRPC responses.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

var (
	ErrInvalidStrategy = APIError{Code: "INVALID_STRATEGY", Message: "Strategy validation failed"}
	ErrInvalidParams   = APIError{Code: "INVALID_PARAMS", Message: "Invalid parameters provided"}
	ErrDataNotFound    = APIError{Code: "DATA_NOT_FOUND", Message: "Required data not available"}
	ErrExecutionFailed = APIError{Code: "EXECUTION_FAILED", Message: "Strategy execution failed"}
	ErrTimeout         = APIError{Code: "TIMEOUT", Message: "Operation timed out"}
	ErrNotFound        = APIError{Code: "NOT_FOUND", Message: "Job not found"}
)

func (e *APIError) Error() string {
	if e.Details == "" {
		return e.Code + ": " + e.Message
	}
	return e.Code + ": " + e.Message + ": " + e.Details
}

// WithDetails returns a copy of e carrying details.
func (e APIError) WithDetails(details string) *APIError {
	e.Details = details
	return &e
}

func (e *APIError) HTTPStatus() int {
	switch e.Code {
	case ErrInvalidStrategy.Code, ErrInvalidParams.Code:
		return http.StatusBadRequest
	case ErrDataNotFound.Code:
		return http.StatusUnprocessableEntity
	case ErrNotFound.Code:
		return http.StatusNotFound
	case ErrTimeout.Code:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus lets status.FromError recover the code from an *APIError.
func (e *APIError) GRPCStatus() *status.Status {
	var c codes.Code
	switch e.Code {
	case ErrInvalidStrategy.Code, ErrInvalidParams.Code:
		c = codes.InvalidArgument
	case ErrDataNotFound.Code:
		c = codes.FailedPrecondition
	case ErrNotFound.Code:
		c = codes.NotFound
	case ErrTimeout.Code:
		c = codes.DeadlineExceeded
	default:
		c = codes.Internal
	}
	return status.New(c, e.Error())
}
