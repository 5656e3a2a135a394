package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"support360/internal/config"
	"support360/internal/metrics"
	"support360/internal/models"
	"support360/internal/store"
	"support360/pkg/genai"
	"support360/pkg/utils"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	notConfiguredReply = "AI is not configured. Please add your Gemini API key in the AI Settings."
	escalationReply    = "I understand you'd like to speak with a human agent. I'm connecting you with one of our support representatives now. They'll be with you shortly."
	maxHistoryTurns    = 10
)

var escalationKeywords = []string{"agent", "human", "refund", "frustrated"}

var fallbackReplies = []string{
	"I'd be happy to help you with that. Could you provide a few more details?",
	"Thank you for the information. Based on what you've shared, I recommend checking our knowledge base for an article that addresses this specific issue.",
	"I understand your concern. This is a common question, and the solution is to reset your account preferences in the Settings menu.",
	"Let me look that up for you. According to our documentation, you'll need to clear your browser cache and cookies, then log in again.",
	"Thank you for your patience. I'm checking our database for the most up-to-date information on this topic.",
}

// Strategies reported in ChatResponse.Strategy.
const (
	StrategyGenAI      = "genai"
	StrategyFallback   = "fallback"
	StrategyEscalation = "escalation"
	StrategyError      = "error"
)

// Generator is the generative text backend.
type Generator interface {
	Configured() bool
	Generate(ctx context.Context, prompt string, history []genai.Content) (string, error)
	SetAPIKey(key string)
	MaskedKey() string
	Model() string
}

// ChatTurn is one prior exchange supplied by the client. Role is "user" or "assistant".
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 对话请求. With TicketID set, both sides of the exchange are stored on the ticket.
type ChatRequest struct {
	Message  string     `json:"message" binding:"required"`
	History  []ChatTurn `json:"history"`
	TicketID *uint      `json:"ticket_id"`
}

type ArticleRef struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

// ChatResponse 对话响应
type ChatResponse struct {
	Reply    string        `json:"reply"`
	Strategy string        `json:"strategy"`
	Escalate bool          `json:"escalate"`
	TicketID *uint         `json:"ticket_id,omitempty"`
	Sources  []ArticleRef  `json:"sources,omitempty"`
	Duration time.Duration `json:"duration"`
}

// AIService 智能助手服务. Replies come from the generative API when a key is
// configured and the breaker allows it, otherwise from a rule-based assistant.
type AIService struct {
	client          Generator
	kb              *KnowledgeService
	store           *store.Store
	breaker         *CircuitBreaker
	breakerEnabled  bool
	contextArticles int
	pick            func(n int) int
	logger          *logrus.Logger
}

// NewAIService 创建 AI 服务
func NewAIService(client Generator, kb *KnowledgeService, st *store.Store, cfg config.AIConfig, logger *logrus.Logger) *AIService {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.ContextArticles <= 0 {
		cfg.ContextArticles = 3
	}
	return &AIService{
		client:          client,
		kb:              kb,
		store:           st,
		breaker:         NewCircuitBreaker(cfg.CircuitBreaker),
		breakerEnabled:  cfg.CircuitBreaker.Enabled,
		contextArticles: cfg.ContextArticles,
		pick:            rand.Intn,
		logger:          logger,
	}
}

func (s *AIService) Configured() bool {
	return s.client != nil && s.client.Configured()
}

// Complete answers a bare prompt. It never fails: problems are reported in the text.
func (s *AIService) Complete(ctx context.Context, prompt string) string {
	if !s.Configured() {
		return notConfiguredReply
	}
	start := time.Now()
	text, err := s.generate(ctx, prompt, nil)
	metrics.ObserveAI(StrategyGenAI, time.Since(start))
	if err != nil {
		return errorReply(err)
	}
	return text
}

// Chat answers a user message with optional prior turns and ticket context.
func (s *AIService) Chat(ctx context.Context, actor *models.User, req ChatRequest) (*ChatResponse, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	msg := strings.TrimSpace(req.Message)
	if !utils.ValidateMessage(msg) {
		return nil, fmt.Errorf("%w: message must be 1-%d characters", store.ErrInvalid, utils.MaxMessageLength)
	}

	var ticket *models.Ticket
	if req.TicketID != nil {
		t, err := s.store.GetTicket(*req.TicketID)
		if err != nil {
			return nil, err
		}
		if !CanView(actor, t) {
			return nil, store.ErrNotFound
		}
		ticket = t
	}

	tracer := otel.Tracer("support360/services")
	ctx, span := tracer.Start(ctx, "ai.Chat")
	defer span.End()

	start := time.Now()
	resp := &ChatResponse{}
	docs := s.kb.Search(msg, actor.Role.IsStaff(), s.contextArticles)

	switch {
	case !s.Configured():
		s.ruleBased(msg, resp)
	default:
		text, err := s.generate(ctx, s.buildPrompt(msg, docs), historyContents(req.History))
		switch {
		case errors.Is(err, ErrCircuitOpen):
			s.logger.Warn("Generative API circuit open, using rule-based assistant")
			s.ruleBased(msg, resp)
		case err != nil:
			resp.Reply, resp.Strategy = errorReply(err), StrategyError
		default:
			resp.Reply, resp.Strategy = text, StrategyGenAI
			for _, d := range docs {
				resp.Sources = append(resp.Sources, ArticleRef{ID: d.ID, Title: d.Title})
			}
		}
	}
	resp.Duration = time.Since(start)
	metrics.ObserveAI(resp.Strategy, resp.Duration)
	span.SetAttributes(attribute.String("strategy", resp.Strategy), attribute.Int("sources", len(resp.Sources)))

	if ticket != nil {
		if err := s.recordExchange(ctx, actor, ticket.ID, msg, resp.Reply); err != nil {
			return nil, err
		}
		resp.TicketID = &ticket.ID
	} else if resp.Escalate && actor.Role == models.RoleCustomer {
		t, err := s.escalate(ctx, actor, msg, resp.Reply)
		if err != nil {
			return nil, err
		}
		resp.TicketID = &t.ID
	}
	return resp, nil
}

// NeedsEscalation reports whether text asks for a person.
func NeedsEscalation(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range escalationKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// SetAPIKey installs a new generative API key at runtime and closes the breaker.
func (s *AIService) SetAPIKey(key string) error {
	if s.client == nil {
		return genai.ErrNotConfigured
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: api key is required", store.ErrInvalid)
	}
	s.client.SetAPIKey(key)
	s.breaker.Reset()
	s.logger.Info("Generative API key updated")
	return nil
}

// Status is shown on the AI settings page.
func (s *AIService) Status() map[string]interface{} {
	st := map[string]interface{}{
		"configured":      s.Configured(),
		"breaker_enabled": s.breakerEnabled,
		"circuit_breaker": s.breaker.Stats(),
	}
	if s.client != nil {
		st["model"] = s.client.Model()
		st["api_key"] = s.client.MaskedKey()
	}
	return st
}

func (s *AIService) generate(ctx context.Context, prompt string, history []genai.Content) (string, error) {
	if !s.breakerEnabled {
		return s.client.Generate(ctx, prompt, history)
	}
	var text string
	err := s.breaker.Execute(func() error {
		var err error
		text, err = s.client.Generate(ctx, prompt, history)
		if errors.Is(err, genai.ErrBlocked) {
			// a refusal is not an outage
			return nil
		}
		return err
	})
	if err == nil && text == "" {
		err = genai.ErrBlocked
	}
	return text, err
}

func (s *AIService) ruleBased(msg string, resp *ChatResponse) {
	if NeedsEscalation(msg) {
		resp.Reply, resp.Strategy, resp.Escalate = escalationReply, StrategyEscalation, true
		return
	}
	resp.Reply, resp.Strategy = fallbackReplies[s.pick(len(fallbackReplies))], StrategyFallback
}

// buildPrompt grounds the question in the matching knowledge base articles.
func (s *AIService) buildPrompt(query string, docs []models.KbArticle) string {
	var b strings.Builder
	b.WriteString("You are SUPPORTLINE's customer support assistant. Answer the customer's question politely and concisely.\n\n")
	if len(docs) > 0 {
		b.WriteString("Relevant knowledge base articles:\n")
		for i, d := range docs {
			fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, d.Title, utils.Truncate(d.Content, 1500))
		}
		b.WriteString("Prefer the articles above. If they do not cover the question, say so and suggest contacting a support agent.\n\n")
	}
	fmt.Fprintf(&b, "Customer question: %s", query)
	return b.String()
}

func (s *AIService) recordExchange(ctx context.Context, actor *models.User, ticketID uint, question, reply string) error {
	if _, err := s.store.CreateMessage(ctx, store.MessageInput{TicketID: ticketID, UserID: actor.ID, Content: question}); err != nil {
		return err
	}
	_, err := s.store.CreateMessage(ctx, store.MessageInput{TicketID: ticketID, Content: reply, IsAI: true})
	return err
}

// escalate opens a high priority ticket carrying the chat exchange.
func (s *AIService) escalate(ctx context.Context, actor *models.User, question, reply string) (*models.Ticket, error) {
	t, err := s.store.CreateTicket(ctx, store.TicketInput{
		Subject:     "Chat escalation: " + utils.Truncate(question, 60),
		Description: question,
		Priority:    models.PriorityHigh,
		UserID:      actor.ID,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.store.CreateMessage(ctx, store.MessageInput{TicketID: t.ID, Content: reply, IsAI: true}); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"ticket_id": t.ID, "user_id": actor.ID}).Info("Chat escalated to ticket")
	return t, nil
}

func historyContents(turns []ChatTurn) []genai.Content {
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}
	out := make([]genai.Content, 0, len(turns))
	for _, t := range turns {
		text := strings.TrimSpace(t.Content)
		if text == "" {
			continue
		}
		if t.Role == "assistant" || t.Role == genai.RoleModel {
			out = append(out, genai.ModelTurn(text))
		} else {
			out = append(out, genai.UserTurn(text))
		}
	}
	return out
}

func errorReply(err error) string {
	return "Sorry, I encountered an error: " + err.Error()
}
