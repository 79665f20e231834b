package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/templui/piggybank/internal/app"
	"github.com/templui/piggybank/internal/config"
	"github.com/templui/piggybank/internal/logger"
)

func IndexCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Copy goal events from the ledger into the history index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Init(cfg.IsDevelopment(), cfg.SentryDSN, cfg.AppEnv)
			defer logger.Flush()

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !once {
				a.Indexer.Run(ctx)
				return nil
			}

			total := 0
			for {
				n, more, err := a.Indexer.PollOnce(ctx)
				total += n
				if err != nil {
					return err
				}
				if !more {
					break
				}
			}
			fmt.Printf("indexed %d events\n", total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "index until caught up, then exit")
	return cmd
}
