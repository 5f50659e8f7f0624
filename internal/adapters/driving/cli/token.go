package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/northwind-labs/atlas/internal/adapters/driving/httpapi"
)

var (
	tokenUserID string
	tokenName   string
	tokenEmail  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development JWT",
	Long: `Signs a bearer token with the configured JWT secret for testing the
HTTP API. Production token issuance is an external concern; this command
exists for development and integration tests.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "dev-user", "subject claim")
	tokenCmd.Flags().StringVar(&tokenName, "name", "Dev User", "name claim")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "dev@northwind.com", "email claim")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured (set ATLAS_JWT_SECRET)")
	}

	token, err := httpapi.IssueToken(httpapi.AuthConfig{
		Enabled: true,
		Secret:  cfg.Auth.JWTSecret,
		Expiry:  time.Duration(cfg.Auth.ExpiryHours) * time.Hour,
	}, httpapi.User{
		ID:    tokenUserID,
		Name:  tokenName,
		Email: tokenEmail,
	})
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	cmd.Println(token)
	return nil
}
