package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	digestapp "github.com/offertesting/outreach_services/internal/digest_service/app"
	"github.com/offertesting/outreach_services/internal/platform/database"
	grpcadapter "github.com/offertesting/outreach_services/internal/scheduler_service/adapters/grpc"
	adminhttp "github.com/offertesting/outreach_services/internal/scheduler_service/adapters/http"
	"github.com/offertesting/outreach_services/internal/scheduler_service/app"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run lane tickers, the digest, the reclaim sweep and the admin servers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply migrations before starting")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	if serveMigrate {
		if err := database.MigrateUp(cfg.Database.MigrationsPath, cfg.Database.DSN, appLog); err != nil {
			return err
		}
	}

	c, err := buildComponents(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	defer c.Close()

	laneNames := make([]string, 0, len(c.lanes))
	for _, l := range c.lanes {
		laneNames = append(laneNames, l.Name())
	}
	health := grpcadapter.NewHealthServer(laneNames, appLog)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: adminhttp.NewRouter(c.operator, adminhttp.AuthConfig{
			JWTSecret:  cfg.Auth.JWTSecret,
			APIKeyHash: cfg.Auth.APIKeyHash,
		}, appLog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(ctx)

	for _, lane := range c.lanes {
		lane := lane
		g.Go(func() error {
			every(groupCtx, cfg.Serve.TickInterval, func(ctx context.Context) {
				res, err := lane.RunOnce(ctx)
				if err != nil {
					appLog.ErrorContext(ctx, "Lane invocation failed", "lane", lane.Name(), "error", err)
					return
				}
				health.SetLaneServing(lane.Name(), res.Reason != string(app.ReasonProviderDown))
			})
			return nil
		})
	}

	if cfg.Digest.Enabled {
		g.Go(func() error {
			every(groupCtx, cfg.Serve.DigestInterval, func(ctx context.Context) {
				res, err := c.digest.RunDue(ctx)
				if err != nil {
					appLog.ErrorContext(ctx, "Digest run failed", "error", err)
					return
				}
				if res.Result != digestapp.ResultNotDue {
					appLog.InfoContext(ctx, "Digest run", "result", res.Result, "entries", res.Entries)
				}
			})
			return nil
		})
	}

	g.Go(func() error {
		every(groupCtx, cfg.Serve.ReclaimInterval, func(ctx context.Context) {
			if _, err := c.reclaimer.Sweep(ctx); err != nil {
				appLog.ErrorContext(ctx, "Reclaim sweep failed", "error", err)
			}
		})
		return nil
	})

	g.Go(func() error {
		appLog.Info("Starting admin HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		appLog.Info("Starting gRPC health server", "address", addr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLog.Info("Shutting down servers")
		health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), cfg.Serve.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLog.Error("Admin HTTP server shutdown failed", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	appLog.Info("Outreach scheduler started", "lanes", laneNames, "tick_interval", cfg.Serve.TickInterval)
	if err := g.Wait(); err != nil {
		appLog.Error("Outreach scheduler stopped with error", "error", err)
		return err
	}
	appLog.Info("Outreach scheduler stopped")
	return nil
}

// every runs fn immediately and then on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
