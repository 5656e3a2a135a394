package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"support360/internal/auth"
	"support360/internal/middleware"
	"support360/internal/models"
	"support360/internal/services"
	"support360/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Pages    int         `json:"pages"`
}

// SuccessResponse 成功响应结构
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// respondError maps domain errors to a status code and the standard error body.
// Anything unrecognised is logged and reported as 500.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status, title := http.StatusInternalServerError, "Internal Server Error"
	switch {
	case errors.Is(err, services.ErrForbidden):
		status, title = http.StatusForbidden, "Forbidden"
	case errors.Is(err, store.ErrNotFound):
		status, title = http.StatusNotFound, "Not Found"
	case errors.Is(err, store.ErrInvalid), errors.Is(err, store.ErrReference):
		status, title = http.StatusBadRequest, "Bad Request"
	case errors.Is(err, store.ErrConflict):
		status, title = http.StatusConflict, "Conflict"
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrUserUnavailable):
		status, title = http.StatusUnauthorized, "Unauthorized"
	}
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: title, Message: err.Error(), Code: status})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Message: msg,
		Code:    http.StatusBadRequest,
	})
}

// paramID parses a numeric path parameter, writing a 400 when it is malformed.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid " + name,
			Message: "ID must be a valid number",
			Code:    http.StatusBadRequest,
		})
		return 0, false
	}
	return uint(id), true
}

func currentUser(c *gin.Context) *models.User {
	return middleware.CurrentUser(c)
}

func defaultLogger(logger *logrus.Logger) *logrus.Logger {
	if logger == nil {
		return logrus.New()
	}
	return logger
}
