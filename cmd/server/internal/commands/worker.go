package commands

import (
	"context"

	"github.com/wolfeidau/accounts/internal/outbox"
	"github.com/wolfeidau/accounts/internal/telemetry"
)

// WorkerCmd runs sync consumers against a shared postgres store, separate from
// the API servers that enqueue tasks.
type WorkerCmd struct {
	Tracing     bool    `help:"enable tracing" default:"false" env:"ACCOUNTS_TRACING"`
	SampleRatio float64 `help:"fraction of traces recorded" default:"1" env:"ACCOUNTS_TRACE_SAMPLE_RATIO"`

	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Sync          SyncFlags          `embed:"" prefix:"sync-"`
}

func (c *WorkerCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)
	log.Info().Str("version", globals.Version).Msg("Starting sync worker")

	if c.Tracing {
		shutdown := startTelemetry(ctx, log, telemetry.Config{
			ServiceName: "accounts-worker",
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

	b, err := openPostgres(ctx, log, &c.PostgresStore, dispatcher)
	if err != nil {
		return err
	}
	defer b.close()

	pool, err := b.workerPool(targets, c.Sync.config())
	if err != nil {
		return err
	}

	return pool.Run(ctx)
}
