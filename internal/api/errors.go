package api

import (
	"errors"
	"net/http"

	"holidaysync/internal/planner"
	"holidaysync/internal/service"
	"holidaysync/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var statusByCode = map[service.Code]int{
	service.CodeValidation:        http.StatusBadRequest,
	service.CodeUnauthenticated:   http.StatusUnauthorized,
	service.CodeUnauthorized:      http.StatusForbidden,
	service.CodeNotFound:          http.StatusNotFound,
	service.CodeCapacityExceeded:  http.StatusConflict,
	service.CodeInvalidTransition: http.StatusConflict,
	service.CodeConflict:          http.StatusConflict,
	service.CodeUnavailable:       http.StatusServiceUnavailable,
}

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

// respondError writes err as {error, code}. Internal failures are logged and
// answered with a generic message.
func respondError(c *gin.Context, err error) {
	var se *service.Error
	if errors.As(err, &se) {
		if status, ok := statusByCode[se.Code]; ok {
			abortWithError(c, status, string(se.Code), se.Message)
			return
		}
	}

	util.GetLogger().Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	abortWithError(c, http.StatusInternalServerError, string(service.CodeInternal), "internal server error")
}

func respondPlannerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, planner.ErrInvalidRequest):
		abortWithError(c, http.StatusBadRequest, string(service.CodeValidation), err.Error())
	case errors.Is(err, planner.ErrBadResponse):
		util.GetLogger().Warn("Planner produced no usable answer", zap.Error(err))
		abortWithError(c, http.StatusBadGateway, string(service.CodeInternal), "the planner could not answer, try again")
	default:
		respondError(c, err)
	}
}

func badRequest(c *gin.Context, msg string) {
	abortWithError(c, http.StatusBadRequest, string(service.CodeValidation), msg)
}
