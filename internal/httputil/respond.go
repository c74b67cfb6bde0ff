// Package httputil provides the shared HTTP response helpers.
package httputil

import (
	"github.com/gin-gonic/gin"

	"github.com/orgmgr/orgmgr/internal/errors"
)

// ErrorBody is the JSON envelope for error responses.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable error information.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// AbortWithError terminates the request with the JSON rendering of err.
// Non-service errors are reported as opaque internal failures.
func AbortWithError(c *gin.Context, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("internal server error", err)
	}
	c.AbortWithStatusJSON(se.HTTPStatus, ErrorBody{Error: ErrorDetail{
		Code:    string(se.Code),
		Message: se.Message,
		Details: se.Details,
	}})
}
