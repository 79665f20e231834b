package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/piggybank/internal/config"
	"github.com/templui/piggybank/internal/service"
)

// TokenCmd issues a session token locally. In production the wallet-connection
// service issues tokens with the same secret.
func TokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <address>",
		Short: "Issue a bearer token for a wallet address (development)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to issue tokens with APP_ENV=production")
			}

			token, err := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry).GenerateJWT(args[0])
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
