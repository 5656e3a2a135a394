package handlers

import (
	"context"
	"net/http"

	"support360/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SessionIssuer opens sessions from credentials.
type SessionIssuer interface {
	Authenticate(ctx context.Context, email, password string) (*auth.Session, error)
}

// AuthHandler 登录与当前用户
type AuthHandler struct {
	sessions SessionIssuer
	logger   *logrus.Logger
}

func NewAuthHandler(sessions SessionIssuer, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: defaultLogger(logger)}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := h.sessions.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.WithField("email", req.Email).Info("Login rejected")
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Me GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c).Profile())
}
