package cli

import (
	"fmt"
	"time"

	"support360/internal/auth"

	"github.com/spf13/cobra"
)

var (
	flagUserID uint
	flagTTL    time.Duration
)

// tokenCmd mints a session token for an existing user, for scripts and testing.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a session token (HS256 JWT) for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		user, err := st.GetUser(flagUserID)
		if err != nil {
			return fmt.Errorf("user %d: %w", flagUserID, err)
		}
		if !user.IsActive {
			return fmt.Errorf("user %d is inactive", flagUserID)
		}
		ttl := flagTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}
		token, expiresAt, err := auth.NewAuthenticator(st, cfg.Auth.JWTSecret, ttl, logger).IssueToken(user)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "user=%s role=%s expires=%s\n", user.Email, user.Role, expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().UintVar(&flagUserID, "user-id", 1, "id of the user to issue the token for")
	tokenCmd.Flags().DurationVar(&flagTTL, "ttl", 0, "token time-to-live (default auth.token_ttl)")
}
