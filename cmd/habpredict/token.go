package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zfurman56/hab-predictor/internal/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long:  "Sign an HS256 token with HAB_AUTH_JWT_SECRET for the authenticated API routes.",
	RunE:  runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject, e.g. the client name (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.MarkFlagRequired("subject")
}

func runToken(cmd *cobra.Command, args []string) error {
	secret := os.Getenv("HAB_AUTH_JWT_SECRET")
	if secret == "" {
		return errors.New("HAB_AUTH_JWT_SECRET is not set")
	}
	if tokenTTL <= 0 {
		return fmt.Errorf("--ttl must be positive, got %s", tokenTTL)
	}
	token, err := auth.Issue([]byte(secret), tokenSubject, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
