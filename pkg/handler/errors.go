package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/partnerforge/progression/pkg/common"
	"github.com/partnerforge/progression/pkg/progression"
	"github.com/partnerforge/progression/pkg/store"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var (
		verr  *progression.ValidationError
		vErrs validator.ValidationErrors
	)

	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr), errors.As(err, &vErrs):
		return http.StatusBadRequest
	default:
		// StorageError and anything unexpected.
		return http.StatusInternalServerError
	}
}

// respondError writes err to the client and records it on the request scope.
func respondError(c *gin.Context, scope *common.Scope, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}

	var (
		verr *progression.ValidationError
		serr *store.StorageError
	)
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	if errors.As(err, &serr) {
		body.Error = "storage unavailable"
		body.Retryable = true
	}

	if status >= http.StatusInternalServerError {
		scope.TraceError(err)
		scope.Log.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	} else {
		scope.Log.Debugf("%s %s rejected: %v", c.Request.Method, c.FullPath(), err)
	}

	c.AbortWithStatusJSON(status, body)
}

// badRequest rejects a request whose body or parameters could not be bound.
func badRequest(c *gin.Context, scope *common.Scope, field string, err error) {
	respondError(c, scope, &progression.ValidationError{Field: field, Reason: err.Error(), Err: err})
}
