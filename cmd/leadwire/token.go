package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leadwire/leadwire/internal/auth"
)

var tokenFlags struct {
	tenant    string
	role      string
	customer  string
	subject   string
	expiresIn string
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development token signed with the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		expires := tokenFlags.expiresIn
		if expires == "" {
			expires = cfg.Auth.JWTExpiresIn
		}
		ttl, err := time.ParseDuration(expires)
		if err != nil {
			return fmt.Errorf("invalid expiry %q: %w", expires, err)
		}
		token, expiresAt, err := auth.GenerateToken(auth.Claims{
			Subject:    tokenFlags.subject,
			TenantID:   tokenFlags.tenant,
			Role:       tokenFlags.role,
			CustomerID: tokenFlags.customer,
		}, cfg.Auth.JWTSecret, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenFlags.tenant, "tenant", "", "tenant id (required)")
	f.StringVar(&tokenFlags.role, "role", "ADMIN", "role claim; CLIENT for customer sessions")
	f.StringVar(&tokenFlags.customer, "customer", "", "customer id for CLIENT tokens")
	f.StringVar(&tokenFlags.subject, "subject", "", "subject claim")
	f.StringVar(&tokenFlags.expiresIn, "expires-in", "", "token lifetime, defaults to auth.jwt_expires_in")
	_ = tokenCmd.MarkFlagRequired("tenant")
}
