package main

import (
	"github.com/spf13/cobra"

	"gestescal/internal/refresh"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one refresh cycle and exit",
		Long:  "Run one fetch, parse and publish cycle. The exit status is non-zero if any stage fails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}

			r, err := refresh.New(conf, newFetcher(conf))
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			return r.RefreshOnce(ctx)
		},
	}
}
