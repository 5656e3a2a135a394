package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"support360/internal/models"
	"support360/internal/store"

	"github.com/sirupsen/logrus"
)

// ErrForbidden is returned when the acting user may not see or change a resource.
var ErrForbidden = errors.New("forbidden")

// TicketService 工单管理服务
type TicketService struct {
	store  *store.Store
	logger *logrus.Logger
}

// NewTicketService 创建工单服务
func NewTicketService(st *store.Store, logger *logrus.Logger) *TicketService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TicketService{store: st, logger: logger}
}

// TicketListRequest 工单列表请求
type TicketListRequest struct {
	Page       int      `form:"page,default=1"`
	PageSize   int      `form:"page_size,default=20"`
	Status     []string `form:"status"`
	Priority   []string `form:"priority"`
	AgentID    *uint    `form:"agent_id"`
	CustomerID *uint    `form:"customer_id"`
	Search     string   `form:"search"`
	SortBy     string   `form:"sort_by,default=updated_at"`
	SortOrder  string   `form:"sort_order,default=desc"`
}

// TicketView is a ticket with its requester and assignee resolved.
type TicketView struct {
	models.Ticket
	Requester *models.UserProfile `json:"requester,omitempty"`
	Assignee  *models.UserProfile `json:"assignee,omitempty"`
}

// MessageView is a message with its author resolved; Author is nil for AI replies.
type MessageView struct {
	models.Message
	Author *models.UserProfile `json:"author,omitempty"`
}

type CommentView struct {
	models.Comment
	Author *models.UserProfile `json:"author,omitempty"`
}

// TicketDetail 工单详情
type TicketDetail struct {
	TicketView
	Messages []MessageView `json:"messages"`
	Comments []CommentView `json:"comments"`
}

// CanView reports whether actor may see ticket t. Customers only see their own tickets.
func CanView(actor *models.User, t *models.Ticket) bool {
	if actor == nil {
		return false
	}
	if actor.Role.IsStaff() {
		return true
	}
	return t.UserID == actor.ID
}

// CanManage reports whether actor may change status or priority of t:
// admins always, agents when the ticket is theirs or unassigned.
func CanManage(actor *models.User, t *models.Ticket) bool {
	switch {
	case actor == nil:
		return false
	case actor.Role == models.RoleAdmin:
		return true
	case actor.Role == models.RoleAgent:
		return t.AssignedToID == nil || t.AssignedTo(actor.ID)
	}
	return false
}

// ListTickets returns one page of the tickets actor may see, plus the total match count.
func (s *TicketService) ListTickets(ctx context.Context, actor *models.User, req *TicketListRequest) ([]TicketView, int64, error) {
	if actor == nil {
		return nil, 0, ErrForbidden
	}
	if req == nil {
		req = &TicketListRequest{}
	}

	filter := store.TicketFilter{}
	for _, st := range req.Status {
		status := models.Status(st)
		if !status.Valid() {
			return nil, 0, fmt.Errorf("%w: unknown status %q", store.ErrInvalid, st)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if actor.Role == models.RoleCustomer {
		filter.UserID = &actor.ID
	} else {
		filter.UserID = req.CustomerID
		filter.AssignedToID = req.AgentID
	}

	priorities := make(map[models.Priority]bool, len(req.Priority))
	for _, p := range req.Priority {
		priorities[models.Priority(p)] = true
	}
	search := strings.ToLower(strings.TrimSpace(req.Search))

	all := s.store.GetTickets(filter)
	matched := all[:0]
	for _, t := range all {
		if len(priorities) > 0 && !priorities[t.Priority] {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Subject), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		matched = append(matched, t)
	}
	sortTickets(matched, req.SortBy, req.SortOrder)

	total := int64(len(matched))
	page, size := NormalizePage(req.Page, req.PageSize)
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := min(start+size, len(matched))

	profiles := s.profiles()
	out := make([]TicketView, 0, end-start)
	for _, t := range matched[start:end] {
		out = append(out, viewOf(t, profiles))
	}
	return out, total, nil
}

// GetTicket 获取工单详情，包含消息和评论
func (s *TicketService) GetTicket(ctx context.Context, actor *models.User, id uint) (*TicketDetail, error) {
	t, err := s.visibleTicket(actor, id)
	if err != nil {
		return nil, err
	}
	profiles := s.profiles()
	detail := &TicketDetail{
		TicketView: viewOf(*t, profiles),
		Messages:   messageViews(s.store.GetTicketMessages(id), profiles),
		Comments:   commentViews(s.store.GetTicketComments(id), profiles),
	}
	return detail, nil
}

// CreateTicket opens a ticket. Customers always file for themselves with default
// status and no assignee; staff may file on behalf of any user.
func (s *TicketService) CreateTicket(ctx context.Context, actor *models.User, in store.TicketInput) (*models.Ticket, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	if actor.Role == models.RoleCustomer {
		in.UserID = actor.ID
		in.Status = models.StatusOpen
		in.AssignedToID = nil
	} else if in.UserID == 0 {
		in.UserID = actor.ID
	}

	t, err := s.store.CreateTicket(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"ticket_id": t.ID, "user_id": t.UserID, "actor_id": actor.ID}).Info("Ticket created")
	return t, nil
}

// UpdateTicket 更新工单. Reassignment is admin only.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *models.User, id uint, patch store.TicketPatch) (*models.Ticket, error) {
	t, err := s.visibleTicket(actor, id)
	if err != nil {
		return nil, err
	}
	if !CanManage(actor, t) {
		return nil, ErrForbidden
	}
	if (patch.AssignedToID != nil || patch.ClearAssignee) && actor.Role != models.RoleAdmin {
		selfAssign := patch.AssignedToID != nil && *patch.AssignedToID == actor.ID && !patch.ClearAssignee
		if !selfAssign {
			return nil, ErrForbidden
		}
	}

	updated, err := s.store.UpdateTicket(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"ticket_id": id, "actor_id": actor.ID, "status": updated.Status}).Info("Ticket updated")
	return updated, nil
}

func (s *TicketService) ListMessages(ctx context.Context, actor *models.User, ticketID uint) ([]MessageView, error) {
	if _, err := s.visibleTicket(actor, ticketID); err != nil {
		return nil, err
	}
	return messageViews(s.store.GetTicketMessages(ticketID), s.profiles()), nil
}

// PostMessage appends a message by actor. Posting to a closed ticket reopens it.
func (s *TicketService) PostMessage(ctx context.Context, actor *models.User, ticketID uint, content string) (*MessageView, error) {
	if _, err := s.visibleTicket(actor, ticketID); err != nil {
		return nil, err
	}
	m, err := s.store.CreateMessage(ctx, store.MessageInput{Content: content, TicketID: ticketID, UserID: actor.ID})
	if err != nil {
		return nil, err
	}
	p := actor.Profile()
	return &MessageView{Message: *m, Author: &p}, nil
}

func (s *TicketService) ListComments(ctx context.Context, actor *models.User, ticketID uint) ([]CommentView, error) {
	if _, err := s.visibleTicket(actor, ticketID); err != nil {
		return nil, err
	}
	return commentViews(s.store.GetTicketComments(ticketID), s.profiles()), nil
}

func (s *TicketService) PostComment(ctx context.Context, actor *models.User, ticketID uint, content string) (*CommentView, error) {
	if _, err := s.visibleTicket(actor, ticketID); err != nil {
		return nil, err
	}
	c, err := s.store.CreateComment(ctx, store.CommentInput{Content: content, TicketID: ticketID, UserID: actor.ID})
	if err != nil {
		return nil, err
	}
	p := actor.Profile()
	return &CommentView{Comment: *c, Author: &p}, nil
}

// visibleTicket loads a ticket, hiding other customers' tickets as not found.
func (s *TicketService) visibleTicket(actor *models.User, id uint) (*models.Ticket, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	t, err := s.store.GetTicket(id)
	if err != nil {
		return nil, err
	}
	if !CanView(actor, t) {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (s *TicketService) profiles() map[uint]models.UserProfile {
	users := s.store.GetUsers(nil)
	out := make(map[uint]models.UserProfile, len(users))
	for _, u := range users {
		out[u.ID] = u.Profile()
	}
	return out
}

func viewOf(t models.Ticket, profiles map[uint]models.UserProfile) TicketView {
	v := TicketView{Ticket: t}
	if p, ok := profiles[t.UserID]; ok {
		v.Requester = &p
	}
	if t.AssignedToID != nil {
		if p, ok := profiles[*t.AssignedToID]; ok {
			v.Assignee = &p
		}
	}
	return v
}

func messageViews(msgs []models.Message, profiles map[uint]models.UserProfile) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := MessageView{Message: m}
		if !m.IsAI {
			if p, ok := profiles[m.UserID]; ok {
				v.Author = &p
			}
		}
		out = append(out, v)
	}
	return out
}

func commentViews(comments []models.Comment, profiles map[uint]models.UserProfile) []CommentView {
	out := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		v := CommentView{Comment: c}
		if p, ok := profiles[c.UserID]; ok {
			v.Author = &p
		}
		out = append(out, v)
	}
	return out
}

func sortTickets(ts []models.Ticket, by, order string) {
	desc := !strings.EqualFold(order, "asc")
	less := func(a, b models.Ticket) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	switch by {
	case "created_at":
		less = func(a, b models.Ticket) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "id":
		less = func(a, b models.Ticket) bool { return a.ID < b.ID }
	case "priority":
		less = func(a, b models.Ticket) bool { return priorityRank(a.Priority) < priorityRank(b.Priority) }
	}
	sort.SliceStable(ts, func(i, j int) bool {
		if desc {
			return less(ts[j], ts[i])
		}
		return less(ts[i], ts[j])
	})
}

func priorityRank(p models.Priority) int {
	for i, q := range models.Priorities {
		if p == q {
			return i
		}
	}
	return -1
}

// NormalizePage clamps paging to page >= 1 and 1..100 items, default 20.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
