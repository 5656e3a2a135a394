package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"support360/internal/models"
	"support360/internal/store"

	"github.com/sirupsen/logrus"
)

// Timeframe of a trend series.
type Timeframe string

const (
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
)

// Summary 仪表盘汇总
type Summary struct {
	Total             int     `json:"total"`
	Open              int     `json:"open"`
	InProgress        int     `json:"in_progress"`
	Resolved          int     `json:"resolved"`
	Closed            int     `json:"closed"`
	Urgent            int     `json:"urgent"`
	High              int     `json:"high"`
	ResolutionRate    float64 `json:"resolution_rate"`
	AvgResolutionDays float64 `json:"avg_resolution_days"`
}

// Slice is one named value of a breakdown chart.
type Slice struct {
	Name  string `json:"name"`
	Key   string `json:"key,omitempty"`
	Value int    `json:"value"`
}

// TrendPoint is one bucket of a trend series. AvgResponseHours is the mean
// time to the first reply from someone other than the requester, over the
// bucket's tickets that have such a reply.
type TrendPoint struct {
	Label            string    `json:"label"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Tickets          int       `json:"tickets"`
	Resolved         int       `json:"resolved"`
	AvgResponseHours float64   `json:"avg_response_hours"`
}

// AgentPerformance 客服绩效
type AgentPerformance struct {
	AgentID        uint    `json:"agent_id"`
	Name           string  `json:"name"`
	Tickets        int     `json:"tickets"`
	Resolved       int     `json:"resolved"`
	ResolutionTime float64 `json:"resolution_time"`
	ResolutionRate float64 `json:"resolution_rate"`
}

// AnalyticsService computes dashboard aggregates over the tickets visible to a user:
// customers see their own, agents the ones assigned to them, admins all.
type AnalyticsService struct {
	store  *store.Store
	logger *logrus.Logger
	now    func() time.Time
}

func NewAnalyticsService(st *store.Store, logger *logrus.Logger) *AnalyticsService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AnalyticsService{store: st, logger: logger, now: time.Now}
}

// WithClock overrides the reference time for trend buckets.
func (s *AnalyticsService) WithClock(now func() time.Time) *AnalyticsService {
	s.now = now
	return s
}

func (s *AnalyticsService) scoped(actor *models.User) ([]models.Ticket, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	var filter store.TicketFilter
	switch actor.Role {
	case models.RoleCustomer:
		filter.UserID = &actor.ID
	case models.RoleAgent:
		filter.AssignedToID = &actor.ID
	}
	return s.store.GetTickets(filter), nil
}

func (s *AnalyticsService) Summary(ctx context.Context, actor *models.User) (*Summary, error) {
	tickets, err := s.scoped(actor)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Total: len(tickets)}
	for _, t := range tickets {
		switch t.Status {
		case models.StatusOpen:
			sum.Open++
		case models.StatusInProgress:
			sum.InProgress++
		case models.StatusResolved:
			sum.Resolved++
		case models.StatusClosed:
			sum.Closed++
		}
		switch t.Priority {
		case models.PriorityUrgent:
			sum.Urgent++
		case models.PriorityHigh:
			sum.High++
		}
	}
	if sum.Total > 0 {
		sum.ResolutionRate = round1(float64(sum.Resolved+sum.Closed) / float64(sum.Total) * 100)
	}
	sum.AvgResolutionDays = avgResolutionDays(tickets)
	return sum, nil
}

func (s *AnalyticsService) StatusBreakdown(ctx context.Context, actor *models.User) ([]Slice, error) {
	tickets, err := s.scoped(actor)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.Status]int)
	for _, t := range tickets {
		counts[t.Status]++
	}
	out := make([]Slice, 0, len(models.Statuses))
	for _, st := range models.Statuses {
		out = append(out, Slice{Name: columnTitles[st], Key: string(st), Value: counts[st]})
	}
	return out, nil
}

var priorityNames = map[models.Priority]string{
	models.PriorityLow:    "Low",
	models.PriorityMedium: "Medium",
	models.PriorityHigh:   "High",
	models.PriorityUrgent: "Urgent",
}

func (s *AnalyticsService) PriorityBreakdown(ctx context.Context, actor *models.User) ([]Slice, error) {
	tickets, err := s.scoped(actor)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.Priority]int)
	for _, t := range tickets {
		counts[t.Priority]++
	}
	out := make([]Slice, 0, len(models.Priorities))
	for _, p := range models.Priorities {
		out = append(out, Slice{Name: priorityNames[p], Key: string(p), Value: counts[p]})
	}
	return out, nil
}

// Trend buckets tickets by creation time: 15 days, 12 weeks or 12 months ending now,
// oldest bucket first.
func (s *AnalyticsService) Trend(ctx context.Context, actor *models.User, tf Timeframe) ([]TrendPoint, error) {
	tickets, err := s.scoped(actor)
	if err != nil {
		return nil, err
	}
	buckets, err := trendBuckets(tf, s.now())
	if err != nil {
		return nil, err
	}
	rangeStart, rangeEnd := buckets[0].Start, buckets[len(buckets)-1].End

	firstReply := s.firstReplies(tickets)
	type acc struct {
		hours float64
		n     int
	}
	resp := make([]acc, len(buckets))
	for _, t := range tickets {
		if t.CreatedAt.Before(rangeStart) || t.CreatedAt.After(rangeEnd) {
			continue
		}
		for i := range buckets {
			b := &buckets[i]
			if t.CreatedAt.Before(b.Start) || t.CreatedAt.After(b.End) {
				continue
			}
			b.Tickets++
			if t.Status.Done() {
				b.Resolved++
			}
			if at, ok := firstReply[t.ID]; ok {
				resp[i].hours += at.Sub(t.CreatedAt).Hours()
				resp[i].n++
			}
			break
		}
	}
	for i := range buckets {
		if resp[i].n > 0 {
			buckets[i].AvgResponseHours = round1(resp[i].hours / float64(resp[i].n))
		}
	}
	return buckets, nil
}

// trendBuckets lays out contiguous, non-overlapping buckets ending at now.
func trendBuckets(tf Timeframe, now time.Time) ([]TrendPoint, error) {
	endOfDay := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
	}
	startOfDay := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}

	var out []TrendPoint
	switch tf {
	case TimeframeDaily, "":
		for i := 14; i >= 0; i-- {
			day := now.AddDate(0, 0, -i)
			out = append(out, TrendPoint{Label: day.Format("Jan 02"), Start: startOfDay(day), End: endOfDay(day)})
		}
	case TimeframeWeekly:
		for i := 11; i >= 0; i-- {
			weekEnd := now.AddDate(0, 0, -7*i)
			weekStart := weekEnd.AddDate(0, 0, -6)
			out = append(out, TrendPoint{
				Label: weekStart.Format("Jan 02") + " - " + weekEnd.Format("Jan 02"),
				Start: startOfDay(weekStart),
				End:   endOfDay(weekEnd),
			})
		}
	case TimeframeMonthly:
		for i := 11; i >= 0; i-- {
			monthEnd := subMonths(now, i)
			monthStart := subMonths(now, i+1)
			out = append(out, TrendPoint{
				Label: monthEnd.Format("Jan 2006"),
				Start: monthStart.Add(time.Nanosecond),
				End:   monthEnd,
			})
		}
	default:
		return nil, fmt.Errorf("%w: unknown timeframe %q", store.ErrInvalid, tf)
	}
	return out, nil
}

// subMonths steps back n calendar months, clamping the day to the target
// month's last day so Mar 31 minus one month is Feb 28/29.
func subMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()-time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(t.Day(), lastDay)-1)
}

// firstReplies maps ticket id to the time of its first non-requester reply.
func (s *AnalyticsService) firstReplies(tickets []models.Ticket) map[uint]time.Time {
	out := make(map[uint]time.Time)
	for _, t := range tickets {
		for _, m := range s.store.GetTicketMessages(t.ID) {
			if m.IsAI || m.UserID != t.UserID {
				if !m.CreatedAt.Before(t.CreatedAt) {
					out[t.ID] = m.CreatedAt
				}
				break
			}
		}
	}
	return out
}

// AgentPerformance ranks agents by resolved tickets, top 10. Admin only.
func (s *AnalyticsService) AgentPerformance(ctx context.Context, actor *models.User) ([]AgentPerformance, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	role := models.RoleAgent
	agents := s.store.GetUsers(&role)
	tickets := s.store.GetTickets(store.TicketFilter{})

	byAgent := make(map[uint][]models.Ticket)
	for _, t := range tickets {
		if t.AssignedToID != nil {
			byAgent[*t.AssignedToID] = append(byAgent[*t.AssignedToID], t)
		}
	}

	out := make([]AgentPerformance, 0, len(agents))
	for _, a := range agents {
		assigned := byAgent[a.ID]
		perf := AgentPerformance{AgentID: a.ID, Name: a.FirstName(), Tickets: len(assigned)}
		for _, t := range assigned {
			if t.Status.Done() {
				perf.Resolved++
			}
		}
		perf.ResolutionTime = avgResolutionDays(assigned)
		if perf.Tickets > 0 {
			perf.ResolutionRate = math.Round(float64(perf.Resolved) / float64(perf.Tickets) * 100)
		}
		out = append(out, perf)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Resolved > out[j].Resolved })
	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}

// Satisfaction estimates ratings as a fixed split of resolved and closed tickets.
func (s *AnalyticsService) Satisfaction(ctx context.Context, actor *models.User) ([]Slice, error) {
	tickets, err := s.scoped(actor)
	if err != nil {
		return nil, err
	}
	resolved := 0
	for _, t := range tickets {
		if t.Status.Done() {
			resolved++
		}
	}
	share := func(p float64) int { return int(math.Floor(float64(resolved) * p)) }
	return []Slice{
		{Name: "Very Satisfied", Value: share(0.45)},
		{Name: "Satisfied", Value: share(0.30)},
		{Name: "Neutral", Value: share(0.15)},
		{Name: "Unsatisfied", Value: share(0.10)},
	}, nil
}

// avgResolutionDays averages |updated_at - created_at| over resolved and closed tickets.
func avgResolutionDays(tickets []models.Ticket) float64 {
	var total float64
	n := 0
	for _, t := range tickets {
		if !t.Status.Done() {
			continue
		}
		total += math.Abs(t.UpdatedAt.Sub(t.CreatedAt).Hours()) / 24
		n++
	}
	if n == 0 {
		return 0
	}
	return round1(total / float64(n))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
