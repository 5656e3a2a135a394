package store

import (
	"context"
	"fmt"
	"strings"

	"support360/internal/models"
)

// KbArticleInput 创建知识库文章请求
type KbArticleInput struct {
	Title       string `json:"title" binding:"required"`
	Content     string `json:"content" binding:"required"`
	Category    string `json:"category"`
	IsAgentOnly bool   `json:"is_agent_only"`
}

// KbArticlePatch 更新知识库文章请求
type KbArticlePatch struct {
	Title       *string `json:"title"`
	Content     *string `json:"content"`
	Category    *string `json:"category"`
	IsAgentOnly *bool   `json:"is_agent_only"`
}

// GetKbArticles returns all articles when includeAgentOnly is set, otherwise only public ones.
func (s *Store) GetKbArticles(includeAgentOnly bool) []models.KbArticle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.KbArticle, 0, len(s.articles))
	for _, a := range s.articles {
		if includeAgentOnly || !a.IsAgentOnly {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) GetKbArticle(id uint) (*models.KbArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.articleIndex(id); i >= 0 {
		a := s.articles[i]
		return &a, nil
	}
	return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
}

// IncrementArticleViews adds one view under the store lock and returns the new count.
func (s *Store) IncrementArticleViews(ctx context.Context, id uint) (int, error) {
	var count int
	err := s.mutate(ctx, func() (Event, []string, error) {
		i := s.articleIndex(id)
		if i < 0 {
			return Event{}, nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
		}
		s.articles[i].ViewCount++
		count = s.articles[i].ViewCount
		return Event{Type: EventArticleUpdated, Payload: s.articles[i]}, []string{SlotArticles}, nil
	})
	return count, err
}

func (s *Store) CreateKbArticle(ctx context.Context, in KbArticleInput) (*models.KbArticle, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("title and content are required: %w", ErrInvalid)
	}
	if in.Category == "" {
		in.Category = "General"
	}

	var created models.KbArticle
	err := s.mutate(ctx, func() (Event, []string, error) {
		now := s.now()
		s.seq.Articles++
		created = models.KbArticle{
			ID:          s.seq.Articles,
			Title:       in.Title,
			Content:     in.Content,
			Category:    in.Category,
			CreatedAt:   now,
			UpdatedAt:   now,
			IsAgentOnly: in.IsAgentOnly,
		}
		s.articles = append(s.articles, created)
		return Event{Type: EventArticleCreated, Payload: created}, []string{SlotArticles}, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateKbArticle(ctx context.Context, id uint, patch KbArticlePatch) (*models.KbArticle, error) {
	var updated models.KbArticle
	err := s.mutate(ctx, func() (Event, []string, error) {
		i := s.articleIndex(id)
		if i < 0 {
			return Event{}, nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
		}
		a := s.articles[i]
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return Event{}, nil, fmt.Errorf("title is empty: %w", ErrInvalid)
			}
			a.Title = title
		}
		if patch.Content != nil {
			a.Content = *patch.Content
		}
		if patch.Category != nil {
			a.Category = *patch.Category
		}
		if patch.IsAgentOnly != nil {
			a.IsAgentOnly = *patch.IsAgentOnly
		}
		a.UpdatedAt = s.stamp(a.UpdatedAt)
		s.articles[i] = a
		updated = a
		return Event{Type: EventArticleUpdated, Payload: a}, []string{SlotArticles}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteKbArticle(ctx context.Context, id uint) error {
	return s.mutate(ctx, func() (Event, []string, error) {
		i := s.articleIndex(id)
		if i < 0 {
			return Event{}, nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
		}
		removed := s.articles[i]
		s.articles = append(s.articles[:i], s.articles[i+1:]...)
		return Event{Type: EventArticleDeleted, Payload: removed}, []string{SlotArticles}, nil
	})
}

func (s *Store) articleIndex(id uint) int {
	for i := range s.articles {
		if s.articles[i].ID == id {
			return i
		}
	}
	return -1
}
