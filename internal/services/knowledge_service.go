package services

import (
	"bytes"
	"context"
	"html"
	"sort"
	"strings"
	"sync"
	"time"

	"support360/internal/models"
	"support360/internal/store"
	"support360/pkg/utils"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdownOnce   sync.Once
	markdownEngine goldmark.Markdown
	htmlPolicy     *bluemonday.Policy
)

func markdown() (goldmark.Markdown, *bluemonday.Policy) {
	markdownOnce.Do(func() {
		markdownEngine = goldmark.New(goldmark.WithExtensions(extension.GFM))
		htmlPolicy = bluemonday.UGCPolicy()
	})
	return markdownEngine, htmlPolicy
}

// RenderMarkdown converts article markdown to sanitised HTML.
func RenderMarkdown(src string) (string, error) {
	md, policy := markdown()
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return string(policy.SanitizeBytes(buf.Bytes())), nil
}

// ArticleSummary is a list entry without the body.
type ArticleSummary struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Excerpt     string    `json:"excerpt"`
	ViewCount   int       `json:"view_count"`
	IsAgentOnly bool      `json:"is_agent_only"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdatedAgo  string    `json:"updated_ago"`
}

// ArticleView 文章详情，包含渲染后的 HTML
type ArticleView struct {
	models.KbArticle
	HTML       string `json:"html"`
	UpdatedAgo string `json:"updated_ago"`
}

// KnowledgeService 知识库服务
type KnowledgeService struct {
	store  *store.Store
	logger *logrus.Logger
	now    func() time.Time
}

func NewKnowledgeService(st *store.Store, logger *logrus.Logger) *KnowledgeService {
	if logger == nil {
		logger = logrus.New()
	}
	return &KnowledgeService{store: st, logger: logger, now: time.Now}
}

// List returns the articles actor may read, filtered by category and a text query,
// most viewed first. Agent-only articles are hidden from customers.
func (s *KnowledgeService) List(ctx context.Context, actor *models.User, category, query string) ([]ArticleSummary, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	articles := s.store.GetKbArticles(actor.Role.IsStaff())
	query = strings.ToLower(strings.TrimSpace(query))

	now := s.now()
	out := make([]ArticleSummary, 0, len(articles))
	for _, a := range articles {
		if category != "" && !strings.EqualFold(a.Category, category) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(a.Title), query) &&
			!strings.Contains(strings.ToLower(a.Content), query) {
			continue
		}
		out = append(out, ArticleSummary{
			ID:          a.ID,
			Title:       a.Title,
			Category:    a.Category,
			Excerpt:     utils.Truncate(plainText(a.Content), 160),
			ViewCount:   a.ViewCount,
			IsAgentOnly: a.IsAgentOnly,
			UpdatedAt:   a.UpdatedAt,
			UpdatedAgo:  utils.RelativeTime(a.UpdatedAt, now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ViewCount > out[j].ViewCount })
	return out, nil
}

// Categories lists the distinct categories visible to actor, sorted.
func (s *KnowledgeService) Categories(actor *models.User) []string {
	if actor == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, a := range s.store.GetKbArticles(actor.Role.IsStaff()) {
		if !seen[a.Category] {
			seen[a.Category] = true
			out = append(out, a.Category)
		}
	}
	sort.Strings(out)
	return out
}

// Get reads one article and counts the view.
func (s *KnowledgeService) Get(ctx context.Context, actor *models.User, id uint) (*ArticleView, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	a, err := s.store.GetKbArticle(id)
	if err != nil {
		return nil, err
	}
	if a.IsAgentOnly && !actor.Role.IsStaff() {
		return nil, store.ErrNotFound
	}
	views, err := s.store.IncrementArticleViews(ctx, id)
	if err != nil {
		return nil, err
	}
	a.ViewCount = views

	rendered, err := RenderMarkdown(a.Content)
	if err != nil {
		s.logger.WithError(err).WithField("article_id", id).Warn("Markdown render failed")
	}
	return &ArticleView{KbArticle: *a, HTML: rendered, UpdatedAgo: utils.RelativeTime(a.UpdatedAt, s.now())}, nil
}

// Search ranks articles by keyword hits, title hits weighing triple. Used to ground
// assistant answers; words shorter than three letters are ignored.
func (s *KnowledgeService) Search(query string, includeAgentOnly bool, limit int) []models.KbArticle {
	var terms []string
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	}) {
		if len([]rune(w)) >= 3 {
			terms = append(terms, w)
		}
	}
	if len(terms) == 0 || limit <= 0 {
		return nil
	}

	type hit struct {
		article models.KbArticle
		score   int
	}
	var hits []hit
	for _, a := range s.store.GetKbArticles(includeAgentOnly) {
		title, body := strings.ToLower(a.Title), strings.ToLower(a.Content)
		score := 0
		for _, t := range terms {
			score += 3*strings.Count(title, t) + strings.Count(body, t)
		}
		if score > 0 {
			hits = append(hits, hit{a, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].article.ViewCount > hits[j].article.ViewCount
	})

	out := make([]models.KbArticle, 0, min(limit, len(hits)))
	for i := 0; i < len(hits) && i < limit; i++ {
		out = append(out, hits[i].article)
	}
	return out
}

func (s *KnowledgeService) Create(ctx context.Context, actor *models.User, in store.KbArticleInput) (*models.KbArticle, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	a, err := s.store.CreateKbArticle(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"article_id": a.ID, "actor_id": actor.ID}).Info("Article created")
	return a, nil
}

func (s *KnowledgeService) Update(ctx context.Context, actor *models.User, id uint, patch store.KbArticlePatch) (*models.KbArticle, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.store.UpdateKbArticle(ctx, id, patch)
}

func (s *KnowledgeService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if actor == nil || actor.Role != models.RoleAdmin {
		return ErrForbidden
	}
	if err := s.store.DeleteKbArticle(ctx, id); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"article_id": id, "actor_id": actor.ID}).Info("Article deleted")
	return nil
}

// plainText renders markdown and strips every tag, for excerpts.
func plainText(md string) string {
	rendered, err := RenderMarkdown(md)
	if err != nil {
		rendered = md
	}
	text := html.UnescapeString(bluemonday.StrictPolicy().Sanitize(rendered))
	return strings.Join(strings.Fields(text), " ")
}
