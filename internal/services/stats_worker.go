package services

import (
	"context"
	"fmt"
	"sync"

	"support360/internal/metrics"
	"support360/internal/models"
	"support360/internal/store"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StatsSnapshot is the result of one refresh.
type StatsSnapshot struct {
	TicketsByStatus   map[models.Status]int   `json:"tickets_by_status"`
	TicketsByPriority map[models.Priority]int `json:"tickets_by_priority"`
	UsersByRole       map[models.Role]int     `json:"users_by_role"`
}

// StatsWorker 定时刷新 Prometheus 统计指标
type StatsWorker struct {
	store    *store.Store
	schedule string
	cron     *cron.Cron
	logger   *logrus.Logger

	mu   sync.RWMutex
	last *StatsSnapshot
}

// NewStatsWorker creates a worker running on the given cron schedule, e.g. "@every 1m".
func NewStatsWorker(st *store.Store, schedule string, logger *logrus.Logger) *StatsWorker {
	if logger == nil {
		logger = logrus.New()
	}
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &StatsWorker{
		store:    st,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		logger:   logger,
	}
}

// Start refreshes once and then schedules the job.
func (w *StatsWorker) Start() error {
	w.Refresh()
	if _, err := w.cron.AddFunc(w.schedule, func() { w.Refresh() }); err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", w.schedule, err)
	}
	w.cron.Start()
	w.logger.Infof("Stats worker scheduled (%s)", w.schedule)
	return nil
}

// Stop waits for a running refresh to finish or ctx to expire.
func (w *StatsWorker) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Refresh recomputes the gauges from the store.
func (w *StatsWorker) Refresh() *StatsSnapshot {
	snap := &StatsSnapshot{
		TicketsByStatus:   make(map[models.Status]int),
		TicketsByPriority: make(map[models.Priority]int),
		UsersByRole:       make(map[models.Role]int),
	}
	for _, t := range w.store.GetTickets(store.TicketFilter{}) {
		snap.TicketsByStatus[t.Status]++
		snap.TicketsByPriority[t.Priority]++
	}
	for _, u := range w.store.GetUsers(nil) {
		snap.UsersByRole[u.Role]++
	}

	for _, st := range models.Statuses {
		metrics.SetTicketsByStatus(string(st), snap.TicketsByStatus[st])
	}
	for _, p := range models.Priorities {
		metrics.SetTicketsByPriority(string(p), snap.TicketsByPriority[p])
	}
	for _, r := range []models.Role{models.RoleCustomer, models.RoleAgent, models.RoleAdmin} {
		metrics.SetUsersByRole(string(r), snap.UsersByRole[r])
	}
	metrics.IncStatsRun()

	w.mu.Lock()
	w.last = snap
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"open":        snap.TicketsByStatus[models.StatusOpen],
		"in_progress": snap.TicketsByStatus[models.StatusInProgress],
		"urgent":      snap.TicketsByPriority[models.PriorityUrgent],
		"agents":      snap.UsersByRole[models.RoleAgent],
	}).Debug("Stats refreshed")
	return snap
}

// Last returns the most recent snapshot, nil before the first run.
func (w *StatsWorker) Last() *StatsSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}
