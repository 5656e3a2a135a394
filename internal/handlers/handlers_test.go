package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"support360/internal/auth"
	"support360/internal/config"
	"support360/internal/models"
	"support360/internal/services"
	"support360/internal/store"
	"support360/pkg/genai"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
)

type apiFixture struct {
	router   *gin.Engine
	store    *store.Store
	auth     *auth.Authenticator
	admin    *models.User
	agent    *models.User
	customer *models.User
	other    *models.User
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.GetDefaultConfig()
	cfg.Security.RateLimiting.Enabled = false
	cfg.Monitoring.Tracing.Enabled = false

	st := store.New(store.Options{BcryptCost: bcrypt.MinCost})
	require.NoError(t, st.Initialize(context.Background()))
	authn := auth.NewAuthenticator(st, "test-secret", time.Hour, nil)

	kb := services.NewKnowledgeService(st, nil)
	analytics := services.NewAnalyticsService(st, nil)
	ai := services.NewAIService(genai.NewClient(&genai.Config{}, nil), kb, st, cfg.AI, nil)

	f := &apiFixture{store: st, auth: authn}
	f.admin = f.user(t, "Ada Admin", "admin@example.com", models.RoleAdmin)
	f.agent = f.user(t, "Sarah Agent", "sarah@example.com", models.RoleAgent)
	f.customer = f.user(t, "Carl Customer", "carl@example.com", models.RoleCustomer)
	f.other = f.user(t, "Olga Other", "olga@example.com", models.RoleCustomer)

	f.router = NewRouter(Dependencies{
		Config:    cfg,
		Version:   "test",
		Store:     st,
		Sessions:  authn,
		Verifier:  authn,
		Tickets:   services.NewTicketService(st, nil),
		Board:     services.NewBoardService(st, nil),
		Knowledge: kb,
		Analytics: analytics,
		Export:    services.NewExportService(st, analytics, nil),
		AI:        ai,
		Hub:       services.NewWebSocketHub(nil),
		Stats:     services.NewStatsWorker(st, "", nil),
	})
	return f
}

func (f *apiFixture) user(t *testing.T, name, email string, role models.Role) *models.User {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), store.UserInput{Name: name, Email: email, Role: role, Password: "pw"})
	require.NoError(t, err)
	return u
}

func (f *apiFixture) do(t *testing.T, as *models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, _, err := f.auth.IssueToken(as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func TestAuthEndpoints(t *testing.T) {
	f := newAPI(t)

	w := f.do(t, nil, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "carl@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sess auth.Session
	decode(t, w, &sess)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, f.customer.ID, sess.User.ID)
	assert.NotContains(t, w.Body.String(), "password")

	w = f.do(t, nil, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "carl@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = f.do(t, nil, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "carl@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, nil, http.MethodGet, "/api/v1/auth/me", nil).Code)
	w = f.do(t, f.agent, http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me models.UserProfile
	decode(t, w, &me)
	assert.Equal(t, models.RoleAgent, me.Role)
}

func TestUserEndpoints(t *testing.T) {
	f := newAPI(t)

	assert.Equal(t, http.StatusForbidden, f.do(t, f.customer, http.MethodGet, "/api/v1/users", nil).Code)
	w := f.do(t, f.agent, http.MethodGet, "/api/v1/users?role=customer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct{ Data []models.UserProfile }
	decode(t, w, &list)
	assert.Len(t, list.Data, 2)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.agent, http.MethodGet, "/api/v1/users?role=boss", nil).Code)

	in := gin.H{"name": "New Agent", "email": "new@example.com", "role": "agent"}
	assert.Equal(t, http.StatusForbidden, f.do(t, f.agent, http.MethodPost, "/api/v1/users", in).Code)
	w = f.do(t, f.admin, http.MethodPost, "/api/v1/users", in)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, http.StatusConflict, f.do(t, f.admin, http.MethodPost, "/api/v1/users", in).Code)

	assert.Equal(t, http.StatusOK, f.do(t, f.customer, http.MethodGet, "/api/v1/users/3", nil).Code, "own profile")
	assert.Equal(t, http.StatusForbidden, f.do(t, f.customer, http.MethodGet, "/api/v1/users/2", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.agent, http.MethodGet, "/api/v1/users/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.agent, http.MethodGet, "/api/v1/users/99", nil).Code)

	name := "Carl C."
	w = f.do(t, f.customer, http.MethodPut, "/api/v1/users/3", gin.H{"name": name})
	require.Equal(t, http.StatusOK, w.Code)
	active := false
	assert.Equal(t, http.StatusForbidden, f.do(t, f.customer, http.MethodPut, "/api/v1/users/3", gin.H{"is_active": active}).Code)

	assert.Equal(t, http.StatusConflict, f.do(t, f.admin, http.MethodDelete, "/api/v1/users/1", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, f.admin, http.MethodDelete, "/api/v1/users/4", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, f.other, http.MethodGet, "/api/v1/auth/me", nil).Code, "deleted users lose their session")

	w = f.do(t, f.agent, http.MethodGet, "/api/v1/agents", nil)
	decode(t, w, &list)
	assert.Len(t, list.Data, 2)
}

func TestTicketEndpoints(t *testing.T) {
	f := newAPI(t)

	w := f.do(t, f.customer, http.MethodPost, "/api/v1/tickets", gin.H{
		"subject": "Cannot log in", "description": "Error 500", "priority": "high", "status": "closed",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tk models.Ticket
	decode(t, w, &tk)
	assert.Equal(t, models.StatusOpen, tk.Status, "customers always open tickets")
	assert.Equal(t, f.customer.ID, tk.UserID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, f.customer, http.MethodPost, "/api/v1/tickets", gin.H{"description": "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.customer, http.MethodPost, "/api/v1/tickets", gin.H{"subject": "x", "priority": "panic"}).Code)

	w = f.do(t, f.other, http.MethodGet, "/api/v1/tickets", nil)
	var page PaginatedResponse
	decode(t, w, &page)
	assert.EqualValues(t, 0, page.Total)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.other, http.MethodGet, "/api/v1/tickets/1", nil).Code)

	w = f.do(t, f.agent, http.MethodGet, "/api/v1/tickets?status=open&page_size=5", nil)
	decode(t, w, &page)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 5, page.PageSize)
	assert.Equal(t, 1, page.Pages)

	assert.Equal(t, http.StatusForbidden, f.do(t, f.customer, http.MethodPut, "/api/v1/tickets/1", gin.H{"status": "resolved"}).Code)
	w = f.do(t, f.agent, http.MethodPut, "/api/v1/tickets/1", gin.H{"status": "closed", "assigned_to_id": f.agent.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, f.customer, http.MethodPost, "/api/v1/tickets/1/messages", gin.H{"content": "  still broken  "})
	require.Equal(t, http.StatusCreated, w.Code)
	var msg services.MessageView
	decode(t, w, &msg)
	assert.Equal(t, "still broken", msg.Content)
	assert.Equal(t, "Carl Customer", msg.Author.Name)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.customer, http.MethodPost, "/api/v1/tickets/1/messages", gin.H{"content": "   "}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.customer, http.MethodPost, "/api/v1/tickets/1/messages",
		gin.H{"content": strings.Repeat("x", 4097)}).Code)

	w = f.do(t, f.agent, http.MethodPost, "/api/v1/tickets/1/comments", gin.H{"content": "checking logs"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, f.customer, http.MethodGet, "/api/v1/tickets/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail services.TicketDetail
	decode(t, w, &detail)
	assert.Equal(t, models.StatusOpen, detail.Status, "a message reopens a closed ticket")
	assert.Len(t, detail.Messages, 1)
	assert.Len(t, detail.Comments, 1)
	assert.Equal(t, "Sarah Agent", detail.Assignee.Name)
}

func TestBoardEndpoints(t *testing.T) {
	f := newAPI(t)
	f.do(t, f.customer, http.MethodPost, "/api/v1/tickets", gin.H{"subject": "A"})

	assert.Equal(t, http.StatusForbidden, f.do(t, f.customer, http.MethodPut, "/api/v1/board/tickets/1", gin.H{"status": "resolved"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.agent, http.MethodPut, "/api/v1/board/tickets/1", gin.H{"status": "done"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.agent, http.MethodPut, "/api/v1/board/tickets/9", gin.H{"status": "resolved"}).Code)
	require.Equal(t, http.StatusOK, f.do(t, f.agent, http.MethodPut, "/api/v1/board/tickets/1", gin.H{"status": "resolved"}).Code)

	w := f.do(t, f.customer, http.MethodGet, "/api/v1/board", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var board services.Board
	decode(t, w, &board)
	require.Len(t, board.Columns, 4)
	assert.Len(t, board.Columns[2].Cards, 1)
	assert.Equal(t, "Resolved", board.Columns[2].Title)
}

func TestKnowledgeEndpoints(t *testing.T) {
	f := newAPI(t)
	public := gin.H{"title": "Reset password", "content": "Use **forgot password**.", "category": "Account"}
	internal := gin.H{"title": "Escalation runbook", "content": "Page on-call.", "category": "Internal", "is_agent_only": true}

	assert.Equal(t, http.StatusForbidden, f.do(t, f.agent, http.MethodPost, "/api/v1/kb/articles", public).Code)
	require.Equal(t, http.StatusCreated, f.do(t, f.admin, http.MethodPost, "/api/v1/kb/articles", public).Code)
	require.Equal(t, http.StatusCreated, f.do(t, f.admin, http.MethodPost, "/api/v1/kb/articles", internal).Code)

	w := f.do(t, f.customer, http.MethodGet, "/api/v1/kb/articles", nil)
	var list struct {
		Data       []services.ArticleSummary
		Categories []string
	}
	decode(t, w, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, []string{"Account"}, list.Categories)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.customer, http.MethodGet, "/api/v1/kb/articles/2", nil).Code)

	w = f.do(t, f.customer, http.MethodGet, "/api/v1/kb/articles/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view services.ArticleView
	decode(t, w, &view)
	assert.Equal(t, 1, view.ViewCount)
	assert.Contains(t, view.HTML, "<strong>forgot password</strong>")

	title := "Reset your password"
	require.Equal(t, http.StatusOK, f.do(t, f.admin, http.MethodPut, "/api/v1/kb/articles/1", gin.H{"title": title}).Code)
	require.Equal(t, http.StatusOK, f.do(t, f.admin, http.MethodDelete, "/api/v1/kb/articles/2", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.admin, http.MethodGet, "/api/v1/kb/articles/2", nil).Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	f := newAPI(t)
	f.do(t, f.customer, http.MethodPost, "/api/v1/tickets", gin.H{"subject": "A", "priority": "urgent"})
	f.do(t, f.other, http.MethodPost, "/api/v1/tickets", gin.H{"subject": "B"})

	w := f.do(t, f.customer, http.MethodGet, "/api/v1/analytics/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct{ Data services.Summary }
	decode(t, w, &summary)
	assert.Equal(t, 1, summary.Data.Total, "customers see their own numbers")
	assert.Equal(t, 1, summary.Data.Urgent)

	w = f.do(t, f.admin, http.MethodGet, "/api/v1/analytics/trend?timeframe=weekly", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trend struct{ Data []services.TrendPoint }
	decode(t, w, &trend)
	assert.Len(t, trend.Data, 12)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.admin, http.MethodGet, "/api/v1/analytics/trend?timeframe=hourly", nil).Code)

	for _, p := range []string{"status", "priority", "satisfaction"} {
		assert.Equal(t, http.StatusOK, f.do(t, f.agent, http.MethodGet, "/api/v1/analytics/"+p, nil).Code, p)
	}
	assert.Equal(t, http.StatusForbidden, f.do(t, f.agent, http.MethodGet, "/api/v1/analytics/agents", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, f.agent, http.MethodGet, "/api/v1/analytics/export", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.admin, http.MethodGet, "/api/v1/analytics/export?status=lost", nil).Code)

	w = f.do(t, f.admin, http.MethodGet, "/api/v1/analytics/export?status=open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))
	wb, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Tickets")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestAIEndpoints(t *testing.T) {
	f := newAPI(t)

	w := f.do(t, f.customer, http.MethodPost, "/api/v1/chat", gin.H{"message": "I need a human"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp services.ChatResponse
	decode(t, w, &resp)
	assert.True(t, resp.Escalate)
	require.NotNil(t, resp.TicketID)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.customer, http.MethodPost, "/api/v1/chat", gin.H{}).Code)

	assert.Equal(t, http.StatusForbidden, f.do(t, f.customer, http.MethodPost, "/api/v1/ai/complete", gin.H{"prompt": "hi"}).Code)
	w = f.do(t, f.agent, http.MethodPost, "/api/v1/ai/complete", gin.H{"prompt": "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "not configured")

	assert.Equal(t, http.StatusForbidden, f.do(t, f.agent, http.MethodGet, "/api/v1/settings/ai", nil).Code)
	w = f.do(t, f.admin, http.MethodGet, "/api/v1/settings/ai", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"configured":false`)

	assert.Equal(t, http.StatusBadRequest, f.do(t, f.admin, http.MethodPut, "/api/v1/settings/ai", gin.H{"api_key": ""}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.admin, http.MethodPut, "/api/v1/settings/ai", gin.H{"api_key": "   "}).Code)
	w = f.do(t, f.admin, http.MethodPut, "/api/v1/settings/ai", gin.H{"api_key": "AIza-test-key"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"configured":true`)
	assert.NotContains(t, w.Body.String(), "AIza-test-key")
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPI(t)

	w := f.do(t, nil, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	decode(t, w, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "fallback", health.Services["ai"].Status)
	assert.Contains(t, health.Services, "store")

	assert.Equal(t, http.StatusOK, f.do(t, nil, http.MethodGet, "/ready", nil).Code)

	w = f.do(t, nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "support360_http_requests_total")

	w = f.do(t, nil, http.MethodOptions, "/api/v1/tickets", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
