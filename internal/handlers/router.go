package handlers

import (
	"support360/internal/config"
	"support360/internal/middleware"
	"support360/internal/models"
	"support360/internal/services"
	"support360/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Dependencies are the components the HTTP API is built on.
type Dependencies struct {
	Config    *config.Config
	Version   string
	Store     *store.Store
	Sessions  SessionIssuer
	Verifier  middleware.TokenVerifier
	Tickets   *services.TicketService
	Board     *services.BoardService
	Knowledge *services.KnowledgeService
	Analytics *services.AnalyticsService
	Export    *services.ExportService
	AI        *services.AIService
	Hub       *services.WebSocketHub
	Stats     *services.StatsWorker
	Logger    *logrus.Logger
}

// NewRouter 创建路由
func NewRouter(d Dependencies) *gin.Engine {
	cfg := d.Config
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}
	logger := defaultLogger(d.Logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.NewRateLimiter(cfg.Security.RateLimiting).Middleware())
	if cfg.Monitoring.Enabled {
		router.Use(middleware.Metrics())
	}
	if cfg.Monitoring.Tracing.Enabled {
		router.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	health := NewHealthHandler(d.Store, d.AI, d.Hub, d.Stats, d.Version)
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
	if cfg.Monitoring.Enabled {
		path := cfg.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	authH := NewAuthHandler(d.Sessions, logger)
	users := NewUserHandler(d.Store, logger)
	tickets := NewTicketHandler(d.Tickets, d.Board, logger)
	kb := NewKnowledgeHandler(d.Knowledge, logger)
	analytics := NewAnalyticsHandler(d.Analytics, d.Export, logger)
	ai := NewAIHandler(d.AI, logger)
	ws := NewWebSocketHandler(d.Hub, logger)

	staff := middleware.RequireStaff()
	admin := middleware.RequireRoles(models.RoleAdmin)

	api := router.Group("/api/v1")
	api.POST("/auth/login", authH.Login)

	protected := api.Group("", middleware.Auth(d.Verifier))
	{
		protected.GET("/auth/me", authH.Me)

		protected.GET("/users", staff, users.ListUsers)
		protected.POST("/users", admin, users.CreateUser)
		protected.GET("/users/:id", users.GetUser)
		protected.PUT("/users/:id", users.UpdateUser)
		protected.DELETE("/users/:id", admin, users.DeleteUser)
		protected.GET("/agents", staff, users.ListAgents)

		protected.GET("/tickets", tickets.ListTickets)
		protected.POST("/tickets", tickets.CreateTicket)
		protected.GET("/tickets/:id", tickets.GetTicket)
		protected.PUT("/tickets/:id", tickets.UpdateTicket)
		protected.GET("/tickets/:id/messages", tickets.ListMessages)
		protected.POST("/tickets/:id/messages", tickets.PostMessage)
		protected.GET("/tickets/:id/comments", tickets.ListComments)
		protected.POST("/tickets/:id/comments", tickets.PostComment)

		protected.GET("/board", tickets.Board)
		protected.PUT("/board/tickets/:id", staff, tickets.MoveCard)

		protected.GET("/kb/articles", kb.ListArticles)
		protected.POST("/kb/articles", admin, kb.CreateArticle)
		protected.GET("/kb/articles/:id", kb.GetArticle)
		protected.PUT("/kb/articles/:id", admin, kb.UpdateArticle)
		protected.DELETE("/kb/articles/:id", admin, kb.DeleteArticle)

		protected.GET("/analytics/summary", analytics.Summary)
		protected.GET("/analytics/status", analytics.StatusBreakdown)
		protected.GET("/analytics/priority", analytics.PriorityBreakdown)
		protected.GET("/analytics/trend", analytics.Trend)
		protected.GET("/analytics/agents", admin, analytics.AgentPerformance)
		protected.GET("/analytics/satisfaction", analytics.Satisfaction)
		protected.GET("/analytics/export", admin, analytics.Export)

		protected.POST("/chat", ai.Chat)
		protected.POST("/ai/complete", staff, ai.Complete)
		protected.GET("/settings/ai", admin, ai.GetSettings)
		protected.PUT("/settings/ai", admin, ai.UpdateSettings)

		protected.GET("/ws", ws.HandleWebSocket)
		protected.GET("/ws/stats", staff, ws.GetStats)
	}

	return router
}
