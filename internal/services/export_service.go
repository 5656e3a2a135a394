package services

import (
	"context"
	"fmt"
	"io"
	"sort"

	"support360/internal/models"
	"support360/internal/store"
	"support360/pkg/utils"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	sheetTickets = "Tickets"
	sheetSummary = "Summary"
	sheetAgents  = "Agents"
)

var ticketColumns = []interface{}{
	"ID", "Subject", "Status", "Priority", "Requester", "Requester Email", "Assignee", "Created At", "Updated At", "Messages",
}

// ExportService 导出服务
type ExportService struct {
	store     *store.Store
	analytics *AnalyticsService
	logger    *logrus.Logger
}

func NewExportService(st *store.Store, analytics *AnalyticsService, logger *logrus.Logger) *ExportService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ExportService{store: st, analytics: analytics, logger: logger}
}

// ExportFilter narrows the exported tickets.
type ExportFilter struct {
	Statuses []models.Status
}

// WriteTicketsWorkbook writes an .xlsx workbook with one row per ticket, a status
// and priority summary and an agent performance sheet. Admin only.
func (s *ExportService) WriteTicketsWorkbook(ctx context.Context, actor *models.User, filter ExportFilter, w io.Writer) (int, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return 0, ErrForbidden
	}

	tickets := s.store.GetTickets(store.TicketFilter{Statuses: filter.Statuses})
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
	users := make(map[uint]models.User)
	for _, u := range s.store.GetUsers(nil) {
		users[u.ID] = u
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetTickets); err != nil {
		return 0, err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4299E1"}},
	})
	if err != nil {
		return 0, err
	}

	if err := f.SetSheetRow(sheetTickets, "A1", &ticketColumns); err != nil {
		return 0, err
	}
	if err := f.SetCellStyle(sheetTickets, "A1", "J1", header); err != nil {
		return 0, err
	}
	for i, t := range tickets {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		requester := users[t.UserID]
		assignee := ""
		if t.AssignedToID != nil {
			assignee = users[*t.AssignedToID].Name
		}
		row := []interface{}{
			t.ID, t.Subject, string(t.Status), string(t.Priority),
			requester.Name, requester.Email, assignee,
			utils.FormatTime(t.CreatedAt), utils.FormatTime(t.UpdatedAt),
			len(s.store.GetTicketMessages(t.ID)),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetTickets, cell, &row); err != nil {
			return 0, err
		}
	}
	_ = f.SetColWidth(sheetTickets, "B", "B", 48)
	_ = f.SetColWidth(sheetTickets, "E", "G", 24)
	_ = f.SetColWidth(sheetTickets, "H", "I", 18)
	_ = f.SetPanes(sheetTickets, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if err := s.writeSummary(ctx, f, actor, header); err != nil {
		return 0, err
	}
	if err := s.writeAgents(ctx, f, actor, header); err != nil {
		return 0, err
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"rows": len(tickets), "actor_id": actor.ID}).Info("Tickets exported")
	return len(tickets), nil
}

func (s *ExportService) writeSummary(ctx context.Context, f *excelize.File, actor *models.User, header int) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}
	status, err := s.analytics.StatusBreakdown(ctx, actor)
	if err != nil {
		return err
	}
	priority, err := s.analytics.PriorityBreakdown(ctx, actor)
	if err != nil {
		return err
	}

	row := 1
	write := func(title string, slices []Slice) error {
		if err := f.SetSheetRow(sheetSummary, fmt.Sprintf("A%d", row), &[]interface{}{title, "Tickets"}); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetSummary, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), header); err != nil {
			return err
		}
		row++
		for _, sl := range slices {
			if err := f.SetSheetRow(sheetSummary, fmt.Sprintf("A%d", row), &[]interface{}{sl.Name, sl.Value}); err != nil {
				return err
			}
			row++
		}
		row++
		return nil
	}
	if err := write("Status", status); err != nil {
		return err
	}
	return write("Priority", priority)
}

func (s *ExportService) writeAgents(ctx context.Context, f *excelize.File, actor *models.User, header int) error {
	if _, err := f.NewSheet(sheetAgents); err != nil {
		return err
	}
	perf, err := s.analytics.AgentPerformance(ctx, actor)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetAgents, "A1", &[]interface{}{"Agent", "Tickets", "Resolved", "Avg Resolution (days)", "Resolution Rate (%)"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetAgents, "A1", "E1", header); err != nil {
		return err
	}
	for i, p := range perf {
		if err := f.SetSheetRow(sheetAgents, fmt.Sprintf("A%d", i+2), &[]interface{}{p.Name, p.Tickets, p.Resolved, p.ResolutionTime, p.ResolutionRate}); err != nil {
			return err
		}
	}
	return nil
}
