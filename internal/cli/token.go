package cli

import (
	"fmt"
	"time"

	"holidaysync/config"
	"holidaysync/internal/auth"
	"holidaysync/internal/models"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		email  string
		ttl    time.Duration
	)

	c := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user (operators and local testing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != models.RoleUser && role != models.RoleAdmin {
				return fmt.Errorf("invalid --role %q (want %s or %s)", role, models.RoleUser, models.RoleAdmin)
			}
			cfg := config.Load()
			if ttl <= 0 {
				ttl = time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
			}

			tok, err := auth.NewTokens(cfg.Auth.JWTSecret, ttl).Issue(auth.Caller{UserID: userID, Role: role, Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	c.Flags().StringVar(&userID, "user-id", "", "user id (from DB)")
	c.Flags().StringVar(&role, "role", models.RoleUser, "USER or ADMIN")
	c.Flags().StringVar(&email, "email", "", "email claim")
	c.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_TTL_HOURS)")
	_ = c.MarkFlagRequired("user-id")
	return c
}
