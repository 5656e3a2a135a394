package store

import (
	"context"
	"fmt"
	"strings"

	"support360/internal/models"
)

// TicketFilter narrows GetTickets; nil/empty fields match everything and
// set fields are AND-combined.
type TicketFilter struct {
	UserID       *uint
	AssignedToID *uint
	Statuses     []models.Status
}

func (f TicketFilter) match(t models.Ticket) bool {
	if f.UserID != nil && t.UserID != *f.UserID {
		return false
	}
	if f.AssignedToID != nil && !t.AssignedTo(*f.AssignedToID) {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, st := range f.Statuses {
			if t.Status == st {
				return true
			}
		}
		return false
	}
	return true
}

// TicketInput 创建工单请求
type TicketInput struct {
	Subject      string          `json:"subject" binding:"required"`
	Description  string          `json:"description"`
	Status       models.Status   `json:"status"`
	Priority     models.Priority `json:"priority"`
	UserID       uint            `json:"user_id"`
	AssignedToID *uint           `json:"assigned_to_id"`
}

// TicketPatch 更新工单请求. ClearAssignee unassigns the ticket.
type TicketPatch struct {
	Subject       *string          `json:"subject"`
	Description   *string          `json:"description"`
	Status        *models.Status   `json:"status"`
	Priority      *models.Priority `json:"priority"`
	AssignedToID  *uint            `json:"assigned_to_id"`
	ClearAssignee bool             `json:"clear_assignee"`
}

func (s *Store) GetTickets(filter TicketFilter) []models.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Ticket, 0)
	for _, t := range s.tickets {
		if filter.match(t) {
			out = append(out, cloneTicket(t))
		}
	}
	return out
}

func (s *Store) GetTicket(id uint) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.ticketIndex(id); i >= 0 {
		t := cloneTicket(s.tickets[i])
		return &t, nil
	}
	return nil, fmt.Errorf("ticket %d: %w", id, ErrNotFound)
}

func (s *Store) CreateTicket(ctx context.Context, in TicketInput) (*models.Ticket, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	if in.Subject == "" {
		return nil, fmt.Errorf("subject is required: %w", ErrInvalid)
	}
	if in.Status == "" {
		in.Status = models.StatusOpen
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("status %q: %w", in.Status, ErrInvalid)
	}
	if !in.Priority.Valid() {
		return nil, fmt.Errorf("priority %q: %w", in.Priority, ErrInvalid)
	}

	var created models.Ticket
	err := s.mutate(ctx, func() (Event, []string, error) {
		if s.userIndex(in.UserID) < 0 {
			return Event{}, nil, fmt.Errorf("ticket owner %d: %w", in.UserID, ErrReference)
		}
		if in.AssignedToID != nil {
			if err := s.checkAssigneeLocked(*in.AssignedToID); err != nil {
				return Event{}, nil, err
			}
		}
		now := s.now()
		s.seq.Tickets++
		created = models.Ticket{
			ID:           s.seq.Tickets,
			Subject:      in.Subject,
			Description:  in.Description,
			Status:       in.Status,
			Priority:     in.Priority,
			CreatedAt:    now,
			UpdatedAt:    now,
			UserID:       in.UserID,
			AssignedToID: copyID(in.AssignedToID),
		}
		s.tickets = append(s.tickets, created)
		return Event{
			Type:     EventTicketCreated,
			TicketID: created.ID,
			OwnerID:  created.UserID,
			Payload:  cloneTicket(created),
		}, []string{SlotTickets}, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTicket merges patch into the ticket and always advances updated_at.
func (s *Store) UpdateTicket(ctx context.Context, id uint, patch TicketPatch) (*models.Ticket, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("status %q: %w", *patch.Status, ErrInvalid)
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return nil, fmt.Errorf("priority %q: %w", *patch.Priority, ErrInvalid)
	}

	var updated models.Ticket
	err := s.mutate(ctx, func() (Event, []string, error) {
		i := s.ticketIndex(id)
		if i < 0 {
			return Event{}, nil, fmt.Errorf("ticket %d: %w", id, ErrNotFound)
		}
		t := s.tickets[i]
		if patch.Subject != nil {
			subject := strings.TrimSpace(*patch.Subject)
			if subject == "" {
				return Event{}, nil, fmt.Errorf("subject is empty: %w", ErrInvalid)
			}
			t.Subject = subject
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		switch {
		case patch.ClearAssignee:
			t.AssignedToID = nil
		case patch.AssignedToID != nil:
			if err := s.checkAssigneeLocked(*patch.AssignedToID); err != nil {
				return Event{}, nil, err
			}
			t.AssignedToID = copyID(patch.AssignedToID)
		}
		t.UpdatedAt = s.stamp(t.UpdatedAt)
		s.tickets[i] = t
		updated = cloneTicket(t)
		return Event{
			Type:     EventTicketUpdated,
			TicketID: t.ID,
			OwnerID:  t.UserID,
			Payload:  cloneTicket(t),
		}, []string{SlotTickets}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) checkAssigneeLocked(agentID uint) error {
	i := s.userIndex(agentID)
	if i < 0 {
		return fmt.Errorf("assignee %d: %w", agentID, ErrReference)
	}
	if s.users[i].Role != models.RoleAgent {
		return fmt.Errorf("assignee %d is not an agent: %w", agentID, ErrReference)
	}
	return nil
}

func (s *Store) ticketIndex(id uint) int {
	for i := range s.tickets {
		if s.tickets[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneTicket(t models.Ticket) models.Ticket {
	t.AssignedToID = copyID(t.AssignedToID)
	return t
}

func copyID(id *uint) *uint {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
