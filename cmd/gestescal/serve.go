package main

import (
	"sync"

	"github.com/spf13/cobra"

	appLog "gestescal/internal/log"
	"gestescal/internal/refresh"
	"gestescal/internal/web"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh loop and the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				conf.Listen = listen
			}

			appLog.Info("gestescal starting",
				"version", version,
				"listen", conf.Listen,
				"refresh", conf.Refresh,
				"mode", conf.Portal.Mode,
				"user", conf.Portal.Username,
				"tls", conf.TLSCert != "",
			)

			r, err := refresh.New(conf, newFetcher(conf))
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.Run(ctx)
			}()

			err = web.NewServer(conf, r).ListenAndServe(ctx)
			if err != nil {
				appLog.Error("http server failed", err)
			}
			cancel()
			wg.Wait()

			appLog.Info("gestescal exiting")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
