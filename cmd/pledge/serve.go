package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/api"
	audithook "github.com/xraph/pledge/audit_hook"
)

var serveAudit bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var opts []pledge.Option
		if serveAudit {
			opts = append(opts, pledge.WithPlugin(audithook.New(auditLogger(slog.Default()))))
		}

		l, err := openLedger(ctx, opts...)
		if err != nil {
			return err
		}
		defer func() {
			if err := l.Stop(); err != nil {
				slog.Warn("pledge: stop", "error", err)
			}
		}()

		handler := api.New(l,
			api.WithBasePath(viper.GetString("serve.base_path")),
			api.WithLogger(slog.Default()),
		)
		c := cors.New(cors.Options{
			AllowedOrigins: viper.GetStringSlice("serve.allowed_origins"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type", api.CallerHeader},
		})

		srv := &http.Server{
			Addr:              viper.GetString("serve.listen"),
			Handler:           c.Handler(handler),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			slog.Info("pledge api listening", "addr", srv.Addr, "base_path", viper.GetString("serve.base_path"))
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("pledge api shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("listen", "127.0.0.1:8080", "listen address")
	serveCmd.Flags().BoolVar(&serveAudit, "audit", false, "Log audit events")
	_ = viper.BindPFlag("serve.listen", serveCmd.Flags().Lookup("listen"))
	rootCmd.AddCommand(serveCmd)
}

// auditLogger writes audit events to the log.
func auditLogger(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, ev *audithook.AuditEvent) error {
		logger.Info("audit",
			"action", ev.Action,
			"resource", ev.Resource,
			"resource_id", ev.ResourceID,
			"category", ev.Category,
			"severity", ev.Severity,
			"outcome", ev.Outcome,
		)
		return nil
	})
}
