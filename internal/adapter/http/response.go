package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aq2208/orders-service/internal/apperr"
)

// apiResponse is the envelope every endpoint answers with, success or not.
type apiResponse struct {
	IsSuccess bool     `json:"isSuccess"`
	Data      any      `json:"data"`
	Message   string   `json:"message,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, apiResponse{IsSuccess: true, Data: data})
}

func respondErr(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = &apperr.Error{Kind: apperr.KindUnexpected, Message: err.Error()}
	}
	_ = c.Error(err)
	c.JSON(statusOf(ae.Kind), apiResponse{
		Message: ae.Message,
		Errors:  ae.Errors,
	})
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidationFailed:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindServiceOverloaded, apperr.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
