package handlers

import (
	"net/http"
	"runtime"
	"time"

	"support360/internal/services"
	"support360/internal/store"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	store   *store.Store
	ai      *services.AIService
	hub     *services.WebSocketHub
	stats   *services.StatsWorker
	version string
	started time.Time
}

func NewHealthHandler(st *store.Store, ai *services.AIService, hub *services.WebSocketHub, stats *services.StatsWorker, version string) *HealthHandler {
	return &HealthHandler{store: st, ai: ai, hub: hub, stats: stats, version: version, started: time.Now()}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 服务信息
type ServiceInfo struct {
	Status  string      `json:"status"`
	Details interface{} `json:"details,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

// Health reports "healthy", or "degraded" when the store is not initialized.
// The assistant never degrades health since it falls back to rule-based replies.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(h.started).Round(time.Second).String(),
			GoVersion: runtime.Version(),
		},
	}

	storeInfo := ServiceInfo{Status: "healthy", Details: h.store.Stats()}
	if !h.store.Initialized() {
		storeInfo.Status = "unhealthy"
		resp.Status = "degraded"
	}
	resp.Services["store"] = storeInfo

	if h.ai != nil {
		aiStatus := "fallback"
		if h.ai.Configured() {
			aiStatus = "healthy"
		}
		resp.Services["ai"] = ServiceInfo{Status: aiStatus, Details: h.ai.Status()}
	}
	if h.hub != nil {
		resp.Services["websocket"] = ServiceInfo{Status: "healthy", Details: gin.H{"clients": h.hub.GetClientCount()}}
	}
	if h.stats != nil {
		if snap := h.stats.Last(); snap != nil {
			resp.Services["stats"] = ServiceInfo{Status: "healthy", Details: snap}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Ready 就绪检查端点
func (h *HealthHandler) Ready(c *gin.Context) {
	ready := h.store.Initialized()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "timestamp": time.Now()})
}
