package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"support360/internal/models"
	"support360/internal/services"
	"support360/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AnalyticsHandler 仪表盘统计与导出
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
	export    *services.ExportService
	logger    *logrus.Logger
}

func NewAnalyticsHandler(analytics *services.AnalyticsService, export *services.ExportService, logger *logrus.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, export: export, logger: defaultLogger(logger)}
}

func (h *AnalyticsHandler) Summary(c *gin.Context) {
	s, err := h.analytics.Summary(c.Request.Context(), currentUser(c))
	h.reply(c, s, err)
}

func (h *AnalyticsHandler) StatusBreakdown(c *gin.Context) {
	s, err := h.analytics.StatusBreakdown(c.Request.Context(), currentUser(c))
	h.reply(c, s, err)
}

func (h *AnalyticsHandler) PriorityBreakdown(c *gin.Context) {
	s, err := h.analytics.PriorityBreakdown(c.Request.Context(), currentUser(c))
	h.reply(c, s, err)
}

// Trend GET /api/v1/analytics/trend?timeframe=daily|weekly|monthly
func (h *AnalyticsHandler) Trend(c *gin.Context) {
	tf := services.Timeframe(c.DefaultQuery("timeframe", string(services.TimeframeDaily)))
	points, err := h.analytics.Trend(c.Request.Context(), currentUser(c), tf)
	h.reply(c, points, err)
}

func (h *AnalyticsHandler) AgentPerformance(c *gin.Context) {
	rows, err := h.analytics.AgentPerformance(c.Request.Context(), currentUser(c))
	h.reply(c, rows, err)
}

func (h *AnalyticsHandler) Satisfaction(c *gin.Context) {
	s, err := h.analytics.Satisfaction(c.Request.Context(), currentUser(c))
	h.reply(c, s, err)
}

// Export GET /api/v1/analytics/export?status=open&status=closed streams an xlsx workbook.
func (h *AnalyticsHandler) Export(c *gin.Context) {
	var filter services.ExportFilter
	for _, s := range c.QueryArray("status") {
		status := models.Status(s)
		if !status.Valid() {
			respondError(c, h.logger, fmt.Errorf("unknown status %q: %w", s, store.ErrInvalid))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	var buf bytes.Buffer
	n, err := h.export.WriteTicketsWorkbook(c.Request.Context(), currentUser(c), filter, &buf)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	name := fmt.Sprintf("tickets-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("X-Total-Count", fmt.Sprint(n))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *AnalyticsHandler) reply(c *gin.Context, data interface{}, err error) {
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}
