package main

import (
	"fmt"
	"strconv"
	"time"

	"venue-membership/internal/config"
	"venue-membership/internal/infra/api"

	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <member-id>",
	Short: "Issue a member bearer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		memberID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || memberID <= 0 {
			return fmt.Errorf("invalid member id %q", args[0])
		}
		cfg, err := config.Load(cfgPath, devMode)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		tok, err := api.NewAuthManager(cfg.HTTP.JWTSecret, cfg.HTTP.JWTIssuer).Issue(memberID, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
