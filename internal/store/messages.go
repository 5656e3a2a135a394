package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"support360/internal/models"
)

// MessageInput 工单消息请求. UserID may be zero for assistant messages.
type MessageInput struct {
	TicketID uint   `json:"ticket_id"`
	UserID   uint   `json:"user_id"`
	Content  string `json:"content" binding:"required"`
	IsAI     bool   `json:"is_ai"`
}

// CommentInput 工单评论请求
type CommentInput struct {
	TicketID uint   `json:"ticket_id"`
	UserID   uint   `json:"user_id"`
	Content  string `json:"content" binding:"required"`
}

// GetTicketMessages returns the ticket's messages oldest first.
func (s *Store) GetTicketMessages(ticketID uint) []models.Message {
	s.mu.RLock()
	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if m.TicketID == ticketID {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CreateMessage appends a message, bumps the parent ticket's updated_at and
// reopens the ticket when it was closed. Both writes commit together.
func (s *Store) CreateMessage(ctx context.Context, in MessageInput) (*models.Message, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return nil, fmt.Errorf("content is required: %w", ErrInvalid)
	}

	var created models.Message
	err := s.mutate(ctx, func() (Event, []string, error) {
		ti := s.ticketIndex(in.TicketID)
		if ti < 0 {
			return Event{}, nil, fmt.Errorf("ticket %d: %w", in.TicketID, ErrReference)
		}
		if !in.IsAI && s.userIndex(in.UserID) < 0 {
			return Event{}, nil, fmt.Errorf("author %d: %w", in.UserID, ErrReference)
		}

		s.seq.Messages++
		created = models.Message{
			ID:        s.seq.Messages,
			Content:   in.Content,
			CreatedAt: s.now(),
			TicketID:  in.TicketID,
			UserID:    in.UserID,
			IsAI:      in.IsAI,
		}
		s.messages = append(s.messages, created)

		t := s.tickets[ti]
		t.UpdatedAt = s.stamp(t.UpdatedAt)
		if t.Status == models.StatusClosed {
			t.Status = models.StatusOpen
		}
		s.tickets[ti] = t

		return Event{
			Type:     EventMessageCreated,
			TicketID: t.ID,
			OwnerID:  t.UserID,
			Payload:  created,
		}, []string{SlotMessages, SlotTickets}, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetTicketComments returns the ticket's comments oldest first.
func (s *Store) GetTicketComments(ticketID uint) []models.Comment {
	s.mu.RLock()
	out := make([]models.Comment, 0)
	for _, c := range s.comments {
		if c.TicketID == ticketID {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) CreateComment(ctx context.Context, in CommentInput) (*models.Comment, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return nil, fmt.Errorf("content is required: %w", ErrInvalid)
	}

	var created models.Comment
	err := s.mutate(ctx, func() (Event, []string, error) {
		ti := s.ticketIndex(in.TicketID)
		if ti < 0 {
			return Event{}, nil, fmt.Errorf("ticket %d: %w", in.TicketID, ErrReference)
		}
		if s.userIndex(in.UserID) < 0 {
			return Event{}, nil, fmt.Errorf("author %d: %w", in.UserID, ErrReference)
		}
		s.seq.Comments++
		created = models.Comment{
			ID:        s.seq.Comments,
			Content:   in.Content,
			CreatedAt: s.now(),
			TicketID:  in.TicketID,
			UserID:    in.UserID,
		}
		s.comments = append(s.comments, created)
		return Event{
			Type:     EventCommentCreated,
			TicketID: in.TicketID,
			OwnerID:  s.tickets[ti].UserID,
			Payload:  created,
		}, []string{SlotComments}, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}
