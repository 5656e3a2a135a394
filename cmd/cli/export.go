package cli

import (
	"fmt"
	"os"

	"support360/internal/models"
	"support360/internal/services"

	"github.com/spf13/cobra"
)

var (
	flagExportOut    string
	flagExportStatus []string
)

// exportCmd writes the tickets workbook as the first active admin.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tickets and dashboard figures to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		var filter services.ExportFilter
		for _, s := range flagExportStatus {
			status := models.Status(s)
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", s)
			}
			filter.Statuses = append(filter.Statuses, status)
		}

		st, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		role := models.RoleAdmin
		var admin *models.User
		for _, u := range st.GetUsers(&role) {
			if u.IsActive {
				admin = &u
				break
			}
		}
		if admin == nil {
			return fmt.Errorf("no active admin account in the store")
		}

		f, err := os.Create(flagExportOut)
		if err != nil {
			return err
		}
		svc := services.NewExportService(st, services.NewAnalyticsService(st, logger), logger)
		n, err := svc.WriteTicketsWorkbook(cmd.Context(), admin, filter, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tickets to %s\n", n, flagExportOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&flagExportOut, "out", "o", "tickets.xlsx", "output file")
	exportCmd.Flags().StringSliceVar(&flagExportStatus, "status", nil, "only export tickets with these statuses")
}
