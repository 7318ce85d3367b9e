package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmadzakiakmal/scrumchain/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the synchronizers and the pending transaction sweeper",
		Long: `Connects to PostgreSQL and to the CometBFT node RPC, then serves the
HTTP API. Failing to reach either aborts start-up. Pending transactions
whose confirmation timed out are swept on sweep.interval.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, logger, err := rootOpts.load()
			if err != nil {
				return err
			}
			if port != "" {
				c.HTTP.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := connect(ctx, c, logger)
			if err != nil {
				return err
			}
			defer st.client.Close()

			svc := st.services(c, logger)
			sweepCtx, stopSweep := context.WithCancel(context.Background())
			sweepDone := make(chan struct{})
			go func() {
				defer close(sweepDone)
				st.sweeper(c, logger).Run(sweepCtx)
			}()

			webserver := server.NewWebServer(c.HTTP.Port, svc, logger)
			if err := webserver.Start(); err != nil {
				stopSweep()
				return err
			}

			<-ctx.Done()

			// Create deadline to wait for server shutdown
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := webserver.Shutdown(shutdownCtx); err != nil {
				logger.Error("Shutting down HTTP web server", "err", err)
			}
			stopSweep()
			<-sweepDone
			if err := closeAll(shutdownCtx, svc); err != nil {
				logger.Error("Background ledger work did not finish", "err", err)
			}
			logger.Info("HTTP web server gracefully stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "http-port", "", "HTTP web server port, overrides http.port")
	return cmd
}
