package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"support360/internal/models"
	"support360/internal/services"
	"support360/internal/store"
	"support360/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TicketHandler 工单处理器
type TicketHandler struct {
	tickets *services.TicketService
	board   *services.BoardService
	logger  *logrus.Logger
}

func NewTicketHandler(tickets *services.TicketService, board *services.BoardService, logger *logrus.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, board: board, logger: defaultLogger(logger)}
}

// ContentRequest is the body of message and comment posts.
type ContentRequest struct {
	Content string `json:"content" binding:"required"`
}

// MoveRequest 看板拖动请求
type MoveRequest struct {
	Status models.Status `json:"status" binding:"required"`
}

// ListTickets GET /api/v1/tickets
func (h *TicketHandler) ListTickets(c *gin.Context) {
	var req services.TicketListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tickets, total, err := h.tickets.ListTickets(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	page, size := services.NormalizePage(req.Page, req.PageSize)
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     tickets,
		Total:    total,
		Page:     page,
		PageSize: size,
		Pages:    int((total + int64(size) - 1) / int64(size)),
	})
}

// GetTicket GET /api/v1/tickets/:id
func (h *TicketHandler) GetTicket(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	detail, err := h.tickets.GetTicket(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// CreateTicket POST /api/v1/tickets
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	var req store.TicketInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	t, err := h.tickets.CreateTicket(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// UpdateTicket PUT /api/v1/tickets/:id
func (h *TicketHandler) UpdateTicket(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req store.TicketPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	t, err := h.tickets.UpdateTicket(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) ListMessages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	msgs, err := h.tickets.ListMessages(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

// PostMessage POST /api/v1/tickets/:id/messages
func (h *TicketHandler) PostMessage(c *gin.Context) {
	id, content, ok := h.bindContent(c)
	if !ok {
		return
	}
	m, err := h.tickets.PostMessage(c.Request.Context(), currentUser(c), id, content)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *TicketHandler) ListComments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	comments, err := h.tickets.ListComments(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": comments})
}

func (h *TicketHandler) PostComment(c *gin.Context) {
	id, content, ok := h.bindContent(c)
	if !ok {
		return
	}
	cm, err := h.tickets.PostComment(c.Request.Context(), currentUser(c), id, content)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

// Board GET /api/v1/board
func (h *TicketHandler) Board(c *gin.Context) {
	b, err := h.board.Board(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// MoveCard PUT /api/v1/board/tickets/:id
func (h *TicketHandler) MoveCard(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	t, err := h.board.Move(c.Request.Context(), currentUser(c), id, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) bindContent(c *gin.Context) (uint, string, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return 0, "", false
	}
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return 0, "", false
	}
	if !utils.ValidateMessage(req.Content) {
		badRequest(c, fmt.Sprintf("content must be 1 to %d characters", utils.MaxMessageLength))
		return 0, "", false
	}
	return id, strings.TrimSpace(req.Content), true
}
