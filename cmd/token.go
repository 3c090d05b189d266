package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calsync/internal/server"
)

func newTokenCmd() *cobra.Command {
	var (
		userID    string
		ttl       time.Duration
		jwtSecret string
		jwtIssuer string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a caller token for local development",
		Long: `Issue an HS256 bearer token for the callable endpoints.

In production the household app issues these tokens; this command signs one
with the same secret so the service can be exercised with curl:

  curl -H "Authorization: Bearer $(calsync token --user alice)" \
       -d '{"data":{}}' http://localhost:8080/callable/calendarStatus`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if jwtSecret == "" {
				jwtSecret = os.Getenv("CALSYNC_JWT_SECRET")
			}
			if jwtIssuer == "" {
				jwtIssuer = os.Getenv("CALSYNC_JWT_ISSUER")
			}

			auth, err := server.NewAuthenticator(jwtSecret, jwtIssuer)
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id to put in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "HS256 signing secret (at least 32 bytes). Can also use CALSYNC_JWT_SECRET env var.")
	cmd.Flags().StringVar(&jwtIssuer, "jwt-issuer", "", "Token issuer. Can also use CALSYNC_JWT_ISSUER env var.")

	return cmd
}
