package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/accounts/internal/account"
	"github.com/wolfeidau/accounts/internal/auth"
	httpapi "github.com/wolfeidau/accounts/internal/http"
	"github.com/wolfeidau/accounts/internal/logger"
	"github.com/wolfeidau/accounts/internal/outbox"
	"github.com/wolfeidau/accounts/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"ACCOUNTS_LISTEN"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"ACCOUNTS_CORS_ORIGINS"`

	// Development and operational modes
	Tracing     bool    `help:"enable tracing" default:"false" env:"ACCOUNTS_TRACING"`
	SampleRatio float64 `help:"fraction of traces recorded" default:"1" env:"ACCOUNTS_TRACE_SAMPLE_RATIO"`
	NoWorkers   bool    `help:"do not run sync workers in this process" default:"false" env:"ACCOUNTS_NO_WORKERS"`
	DevUser     string  `help:"sign up this username at startup and log an access token (memory store only)" env:"ACCOUNTS_DEV_USER"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"ACCOUNTS_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Sync          SyncFlags          `embed:"" prefix:"sync-"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)
	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		shutdown := startTelemetry(ctx, log, telemetry.Config{
			ServiceName: "accounts-server",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		defer shutdown()
	}

	targets, err := c.Sync.load()
	if err != nil {
		return err
	}
	dispatcher := outbox.NewDispatcher(targets.Registry(), targets.Lanes)

	var b *backend
	switch c.StoreType {
	case "postgres":
		b, err = openPostgres(ctx, log, &c.PostgresStore, dispatcher)
		if err != nil {
			return err
		}
	default:
		if c.NoWorkers {
			return errors.New("--no-workers requires the postgres store")
		}
		b = openMemory(dispatcher)
		log.Info().Msg("Using in-memory stores")
	}
	defer b.close()

	svc := b.services()

	if c.DevUser != "" {
		if c.StoreType != "memory" {
			return errors.New("--dev-user is only supported with the memory store")
		}
		_, token, err := createUser(ctx, b, svc, account.SignUpParams{
			Username:      c.DevUser,
			Email:         c.DevUser + "@localhost",
			EmailVerified: true,
		}, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("failed to create dev user: %w", err)
		}
		log.Warn().Str("username", c.DevUser).Str("token", token).Msg("Created development user")
	}

	authn := auth.NewTokenAuthenticator(b.tokens, b.users, b.memberships)
	api := httpapi.NewHandler(httpapi.Services{
		Accounts:      svc.accounts,
		Organizations: svc.organizations,
		Invitations:   svc.invitations,
	}, authn.Middleware())

	var handler http.Handler = api.Routes(log)
	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "accounts")
	}
	handler = withCORS(c.CORSOrigins, handler)

	srv := configureHTTPServer(c.Listen, handler)

	g, ctx := errgroup.WithContext(ctx)

	if !c.NoWorkers {
		pool, err := b.workerPool(targets, c.Sync.config())
		if err != nil {
			return err
		}
		g.Go(func() error {
			return pool.Run(ctx)
		})
	}

	g.Go(func() error {
		log.Info().Str("addr", c.Listen).Int("targets", len(targets.Targets)).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setupLogger(globals *Globals) zerolog.Logger {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log
	return log
}

func withCORS(origins []string, h http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}

	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"WWW-Authenticate"},
		AllowCredentials: false,
		MaxAge:           7200, // 2 hours in seconds
	})
	return middleware.Handler(h)
}
