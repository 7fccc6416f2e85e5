package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/api/router"
	"github.com/wolfman30/dental-agenda/internal/app/bootstrap"
	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/appointments/fakeapi"
	httpmiddleware "github.com/wolfman30/dental-agenda/internal/http/middleware"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

func serveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the agenda over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			c.logger.Info("starting dental agenda server",
				"env", cfg.Env,
				"port", cfg.Port,
				"api_base_url", cfg.APIBaseURL,
			)

			metricsHandler, m := bootstrap.BuildMetrics()
			client := bootstrap.BuildAPIClient(cfg, nil, c.logger, m)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var limiter *httpmiddleware.RateLimiter
			if cfg.MutationRate > 0 {
				limiter = httpmiddleware.NewRateLimiter(cfg.MutationRate, max(cfg.MutationBurst, 1))
				go limiter.Run(ctx, 5*time.Minute, 10*time.Minute)
			}

			r := router.New(&router.Config{
				Logger:             c.logger,
				AgendaHandler:      agenda.NewHandler(client, c.slots, c.logger, m),
				MetricsHandler:     metricsHandler,
				MetricsToken:       cfg.MetricsToken,
				CORSAllowedOrigins: cfg.CORSAllowedOrigins,
				AuthSecret:         cfg.AuthSecret,
				MutationLimiter:    limiter,
			})

			return serveUntilSignal(&http.Server{
				Addr:         ":" + cfg.Port,
				Handler:      r,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}, c.logger)
		},
	}
}

func devAPICmd(c *cli) *cobra.Command {
	var (
		paginate bool
		seed     bool
	)
	cmd := &cobra.Command{
		Use:   "devapi",
		Short: "Run an in-memory stand-in for the clinic API",
		RunE: func(cmd *cobra.Command, args []string) error {
			fake := fakeapi.New(fakeapi.Options{
				Secret:        c.cfg.DevAPIToken,
				Paginate:      paginate,
				EmbedPatients: true,
			}, c.logger)
			if seed {
				for i, name := range []string{"Ana Souza", "Bruno Lima", "Carla Mendes", "Diego Rocha"} {
					fake.AddPatient(appointments.Patient{ID: int64(i + 1), Name: name})
				}
			}
			if c.cfg.DevAPIToken != "" {
				token, err := fakeapi.IssueToken(c.cfg.DevAPIToken, 1, 24*time.Hour)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "agenda login --token %s\n", token)
			}

			return serveUntilSignal(&http.Server{
				Addr:              ":" + c.cfg.DevAPIPort,
				Handler:           fake.Routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}, c.logger)
		},
	}
	cmd.Flags().BoolVar(&paginate, "paginate", false, "wrap list responses in a {results} envelope")
	cmd.Flags().BoolVar(&seed, "seed", true, "register a few sample patients")
	return cmd
}

// serveUntilSignal runs srv until SIGINT or SIGTERM, then shuts it down
// gracefully.
func serveUntilSignal(srv *http.Server, logger *logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
