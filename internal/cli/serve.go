package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/motti-landau/kvstore/internal/server"
)

const shutdownTimeout = 5 * time.Second

func serveCommand(g *globals) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a live HTML view with a mutation API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(a *app) error {
				if cmd.Flags().Changed("host") {
					a.cfg.Server.Host = host
				}
				if cmd.Flags().Changed("port") {
					a.cfg.Server.Port = port
				}
				addr := a.cfg.Addr()

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				srv := server.New(a.store, server.Options{Logger: a.log, DataSource: a.source})
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Serving kvstore viewer at http://%s\n", addr)
				fmt.Fprintf(out, "Namespace: %s\n", a.cfg.Namespace)
				fmt.Fprintf(out, "Data source: %s\n", a.source)
				fmt.Fprintln(out, "Press Ctrl+C to stop.")

				eg, gctx := errgroup.WithContext(ctx)
				eg.Go(func() error { return srv.Start(addr) })
				eg.Go(func() error {
					<-gctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					return srv.Shutdown(sctx)
				})
				return eg.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "listen host")
	cmd.Flags().IntVar(&port, "port", 7878, "listen port")
	return cmd
}
