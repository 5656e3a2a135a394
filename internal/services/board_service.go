package services

import (
	"context"
	"fmt"
	"sort"

	"support360/internal/models"
	"support360/internal/store"

	"github.com/sirupsen/logrus"
)

// BoardColumn is one kanban column.
type BoardColumn struct {
	Status models.Status `json:"status"`
	Title  string        `json:"title"`
	Cards  []TicketView  `json:"cards"`
}

// Board 看板视图，列顺序固定为 open, in_progress, resolved, closed
type Board struct {
	Columns []BoardColumn `json:"columns"`
	Total   int           `json:"total"`
}

var columnTitles = map[models.Status]string{
	models.StatusOpen:       "Open",
	models.StatusInProgress: "In Progress",
	models.StatusResolved:   "Resolved",
	models.StatusClosed:     "Closed",
}

// BoardService 看板服务
type BoardService struct {
	store  *store.Store
	logger *logrus.Logger
}

func NewBoardService(st *store.Store, logger *logrus.Logger) *BoardService {
	if logger == nil {
		logger = logrus.New()
	}
	return &BoardService{store: st, logger: logger}
}

// Board groups the tickets actor can see by status. Customers get their own
// tickets, staff get every ticket. Cards are newest-updated first.
func (s *BoardService) Board(ctx context.Context, actor *models.User) (*Board, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	filter := store.TicketFilter{}
	if actor.Role == models.RoleCustomer {
		filter.UserID = &actor.ID
	}
	tickets := s.store.GetTickets(filter)
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].UpdatedAt.After(tickets[j].UpdatedAt)
	})

	profiles := make(map[uint]models.UserProfile)
	for _, u := range s.store.GetUsers(nil) {
		profiles[u.ID] = u.Profile()
	}

	board := &Board{Columns: make([]BoardColumn, 0, len(models.Statuses)), Total: len(tickets)}
	index := make(map[models.Status]int, len(models.Statuses))
	for i, st := range models.Statuses {
		index[st] = i
		board.Columns = append(board.Columns, BoardColumn{Status: st, Title: columnTitles[st], Cards: []TicketView{}})
	}
	for _, t := range tickets {
		i, ok := index[t.Status]
		if !ok {
			continue
		}
		board.Columns[i].Cards = append(board.Columns[i].Cards, viewOf(t, profiles))
	}
	return board, nil
}

// Move drops a card into the column for status. Admins move any card, agents
// only cards assigned to them or unassigned.
func (s *BoardService) Move(ctx context.Context, actor *models.User, ticketID uint, status models.Status) (*models.Ticket, error) {
	if actor == nil || !actor.Role.IsStaff() {
		return nil, ErrForbidden
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalid, status)
	}
	current, err := s.store.GetTicket(ticketID)
	if err != nil {
		return nil, err
	}
	if !CanManage(actor, current) {
		return nil, ErrForbidden
	}
	t, err := s.store.UpdateTicket(ctx, ticketID, store.TicketPatch{Status: &status})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"ticket_id": ticketID, "status": status, "actor_id": actor.ID}).Info("Board card moved")
	return t, nil
}
