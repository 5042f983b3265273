package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/httpapi"
	"github.com/MrEthical07/tenantauth/internal/config"
	"github.com/MrEthical07/tenantauth/internal/security"
	"github.com/MrEthical07/tenantauth/mailer"
	promexport "github.com/MrEthical07/tenantauth/metrics/export/prometheus"
	"github.com/MrEthical07/tenantauth/store/pg"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			log, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger, migrate bool) error {
	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	if err := logReport(log, security.BuildReport(engCfg, cfg.IsProd())); err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	var engine *tenantauth.Engine
	store, err := pg.Open(cfg.Database.DSN, cfg.PoolConfig(), pg.WithRoleChangeHook(func(roleID string) {
		engine.InvalidateRolePermissions(roleID)
	}))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if migrate {
		applied, err := store.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied", zap.Strings("versions", applied))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}

	sink := tenantauth.NewZapSink(log)
	if cfg.Database.AuditToDB {
		sink = tenantauth.MultiSink{sink, tenantauth.TolerantSink(store.AuditWriter(), log)}
	}

	perms, err := store.ListPermissions(ctx)
	if err != nil {
		return fmt.Errorf("load permissions: %w", err)
	}

	engine, err = tenantauth.New().
		WithConfig(engCfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithNotifier(notifier).
		WithPermissions(perms...).
		WithLogger(log).
		WithAuditSink(sink).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if _, err := promexport.Register(reg, engine); err != nil {
		return fmt.Errorf("register engine metrics: %w", err)
	}

	opts := cfg.HTTPOptions()
	opts.Registry = reg
	opts.HealthChecks = map[string]func(context.Context) error{"database": store.Ping}
	api, err := httpapi.New(engine, opts, log)
	if err != nil {
		return err
	}

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr,
		Handler:           api,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func newNotifier(cfg *config.Config, log *zap.Logger) (tenantauth.Notifier, error) {
	if cfg.SMTP.Host == "" {
		if cfg.IsProd() {
			return nil, errors.New("smtp.host is required in prod")
		}
		log.Warn("smtp not configured; codes and reset tokens are not delivered")
		return mailer.NewLogNotifier(log), nil
	}
	return mailer.NewSMTPNotifier(cfg.SMTP, log)
}
