package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/accounts/internal/account"
	"github.com/wolfeidau/accounts/internal/client"
	"github.com/wolfeidau/accounts/internal/invitation"
	"github.com/wolfeidau/accounts/internal/organization"
	"github.com/wolfeidau/accounts/internal/outbox"
	"github.com/wolfeidau/accounts/internal/permission"
	"github.com/wolfeidau/accounts/internal/store"
	memorystore "github.com/wolfeidau/accounts/internal/store/memory"
	postgresstore "github.com/wolfeidau/accounts/internal/store/postgres"
	"github.com/wolfeidau/accounts/internal/telemetry"
	"github.com/wolfeidau/accounts/internal/worker"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Store Configuration
	QueryTimeout int32 `help:"statement timeout in seconds outside transactions" default:"10" env:"ACCOUNTS_POSTGRES_QUERY_TIMEOUT"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"ACCOUNTS_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
	}
}

// SyncFlags configures sync targets and delivery.
type SyncFlags struct {
	Targets           string        `help:"path to the sync targets YAML file" env:"ACCOUNTS_SYNC_TARGETS"`
	MaxAttempts       int           `help:"delivery attempts before a task is dead lettered" default:"5" env:"ACCOUNTS_SYNC_MAX_ATTEMPTS"`
	InitialInterval   time.Duration `help:"delay before the first retry" default:"2s" env:"ACCOUNTS_SYNC_INITIAL_INTERVAL"`
	MaxInterval       time.Duration `help:"upper bound on the retry delay" default:"5m" env:"ACCOUNTS_SYNC_MAX_INTERVAL"`
	VisibilityTimeout time.Duration `help:"how long a claimed task stays hidden from other workers" default:"2m" env:"ACCOUNTS_SYNC_VISIBILITY_TIMEOUT"`
	PollInterval      time.Duration `help:"how often idle lanes check for due retries" default:"5s" env:"ACCOUNTS_SYNC_POLL_INTERVAL"`
}

// load returns the configured targets. Without a targets file nothing is synced.
func (s *SyncFlags) load() (*client.TargetsFile, error) {
	if s.Targets == "" {
		return &client.TargetsFile{Lanes: outbox.DefaultLanes}, nil
	}
	return client.LoadTargets(s.Targets)
}

func (s *SyncFlags) config() worker.Config {
	return worker.Config{
		MaxAttempts:       s.MaxAttempts,
		InitialInterval:   s.InitialInterval,
		MaxInterval:       s.MaxInterval,
		VisibilityTimeout: s.VisibilityTimeout,
		PollInterval:      s.PollInterval,
	}
}

// backend is the storage shared by every command.
type backend struct {
	tx            store.Transactor
	users         store.UserStore
	tokens        store.TokenStore
	organizations store.OrganizationStore
	memberships   store.MembershipStore
	invitations   store.InvitationStore
	queue         store.TaskQueue
	dispatcher    *outbox.Dispatcher

	close func()
}

func openMemory(dispatcher *outbox.Dispatcher) *backend {
	db := memorystore.NewDB(dispatcher)
	return &backend{
		tx:            db,
		users:         memorystore.NewUserStore(db),
		tokens:        memorystore.NewTokenStore(db),
		organizations: memorystore.NewOrganizationStore(db),
		memberships:   memorystore.NewMembershipStore(db),
		invitations:   memorystore.NewInvitationStore(db),
		queue:         memorystore.NewTaskQueue(db),
		dispatcher:    dispatcher,
		close:         func() {},
	}
}

func openPostgres(ctx context.Context, log zerolog.Logger, flags *PostgresStoreFlags, dispatcher *outbox.Dispatcher) (*backend, error) {
	if err := flags.Validate(); err != nil {
		return nil, err
	}

	pool, err := postgresstore.NewPool(ctx, flags.poolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if flags.AutoMigrate {
		if err := postgresstore.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("Database migrations completed")
	}

	db, err := postgresstore.NewDB(pool, postgresstore.Config{QueryTimeoutSeconds: flags.QueryTimeout}, dispatcher)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	db.Start()

	log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	return &backend{
		tx:            db,
		users:         postgresstore.NewUserStore(db),
		tokens:        postgresstore.NewTokenStore(db),
		organizations: postgresstore.NewOrganizationStore(db),
		memberships:   postgresstore.NewMembershipStore(db),
		invitations:   postgresstore.NewInvitationStore(db),
		queue:         postgresstore.NewTaskQueue(db),
		dispatcher:    dispatcher,
		close:         db.Stop,
	}, nil
}

type services struct {
	engine        *permission.Engine
	accounts      *account.Service
	organizations *organization.Service
	invitations   *invitation.Service
}

func (b *backend) services() *services {
	engine := permission.NewEngine()
	orgs := organization.NewService(organization.Stores{
		Tx:            b.tx,
		Organizations: b.organizations,
		Memberships:   b.memberships,
	}, engine)

	return &services{
		engine: engine,
		accounts: account.NewService(account.Stores{
			Tx:            b.tx,
			Users:         b.users,
			Organizations: b.organizations,
			Memberships:   b.memberships,
		}, orgs, engine),
		organizations: orgs,
		invitations: invitation.NewService(invitation.Stores{
			Tx:            b.tx,
			Invitations:   b.invitations,
			Organizations: b.organizations,
			Memberships:   b.memberships,
			Users:         b.users,
		}, orgs, engine),
	}
}

// workerPool builds the sync consumers for the configured targets.
func (b *backend) workerPool(targets *client.TargetsFile, cfg worker.Config) (*worker.Pool, error) {
	clients, err := client.NewClients(targets.Targets, nil)
	if err != nil {
		return nil, err
	}

	senders := make(map[string]worker.Sender, len(clients))
	for name, c := range clients {
		senders[name] = c
	}

	resolver := worker.NewResolver(b.organizations, b.memberships, b.users)
	processor := worker.NewProcessor(resolver, senders, b.queue, cfg)
	return worker.NewPool(processor, b.queue, b.dispatcher), nil
}

// startTelemetry returns a function that flushes and stops the exporters.
func startTelemetry(ctx context.Context, log zerolog.Logger, cfg telemetry.Config) func() {
	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
