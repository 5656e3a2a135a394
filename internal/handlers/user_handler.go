package handlers

import (
	"fmt"
	"net/http"

	"support360/internal/models"
	"support360/internal/services"
	"support360/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UserHandler 用户管理处理器
type UserHandler struct {
	store  *store.Store
	logger *logrus.Logger
}

func NewUserHandler(st *store.Store, logger *logrus.Logger) *UserHandler {
	return &UserHandler{store: st, logger: defaultLogger(logger)}
}

func profiles(users []models.User) []models.UserProfile {
	out := make([]models.UserProfile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out
}

// ListUsers GET /api/v1/users?role=agent
func (h *UserHandler) ListUsers(c *gin.Context) {
	var role *models.Role
	if q := c.Query("role"); q != "" {
		r := models.Role(q)
		if !r.Valid() {
			respondError(c, h.logger, fmt.Errorf("unknown role %q: %w", q, store.ErrInvalid))
			return
		}
		role = &r
	}
	c.JSON(http.StatusOK, gin.H{"data": profiles(h.store.GetUsers(role))})
}

// ListAgents GET /api/v1/agents
func (h *UserHandler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": profiles(h.store.GetAvailableAgents())})
}

// GetUser is open to staff and to the user themself.
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	actor := currentUser(c)
	if !actor.Role.IsStaff() && actor.ID != id {
		respondError(c, h.logger, services.ErrForbidden)
		return
	}
	u, err := h.store.GetUser(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u.Profile())
}

// CreateUser 创建用户 (admin)
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req store.UserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.store.CreateUser(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role, "actor_id": currentUser(c).ID}).Info("User created")
	c.JSON(http.StatusCreated, u.Profile())
}

// UpdateUser lets admins edit anyone and other users edit their own name,
// email and password. Only admins toggle is_active.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req store.UserPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor := currentUser(c)
	if actor.Role != models.RoleAdmin && (actor.ID != id || req.IsActive != nil) {
		respondError(c, h.logger, services.ErrForbidden)
		return
	}
	u, err := h.store.UpdateUser(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u.Profile())
}

// DeleteUser 删除用户 (admin). Admins cannot delete their own account.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	actor := currentUser(c)
	if actor.ID == id {
		respondError(c, h.logger, fmt.Errorf("cannot delete the signed-in account: %w", store.ErrConflict))
		return
	}
	if err := h.store.DeleteUser(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.WithFields(logrus.Fields{"user_id": id, "actor_id": actor.ID}).Info("User deleted")
	c.JSON(http.StatusOK, SuccessResponse{Message: "User deleted"})
}
