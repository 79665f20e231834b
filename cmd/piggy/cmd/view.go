package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/templui/piggybank/internal/aggregator"
	"github.com/templui/piggybank/internal/config"
	"github.com/templui/piggybank/internal/ledger"
	"github.com/templui/piggybank/internal/logger"
	"github.com/templui/piggybank/internal/refresh"
	"github.com/templui/piggybank/internal/service"
	"github.com/templui/piggybank/internal/units"
)

func ViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <address>",
		Short: "Print an address's deposits and rewards from the global ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Init(cfg.IsDevelopment(), "", cfg.AppEnv)

			client := ledger.NewClient(ledger.ClientConfig{
				URL:                cfg.LedgerRPCURL,
				Timeout:            cfg.LedgerTimeout,
				BreakerMaxFailures: cfg.BreakerMaxFailures,
				BreakerOpenTimeout: cfg.BreakerOpenTimeout,
			})
			ledgerService := service.NewLedgerService(
				aggregator.New(client, cfg.GlobalLedgerID),
				refresh.NewMemoryCache(time.Minute),
				nil,
				units.New(cfg.BaseSymbol, cfg.BaseDecimals),
			)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.LedgerTimeout)
			defer cancel()

			view, err := ledgerService.UserView(ctx, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
}
