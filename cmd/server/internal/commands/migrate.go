package commands

import (
	"context"
	"fmt"

	postgresstore "github.com/wolfeidau/accounts/internal/store/postgres"
)

type MigrateCmd struct {
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(globals)

	if err := c.PostgresStore.Validate(); err != nil {
		return err
	}

	pool, err := postgresstore.NewPool(ctx, c.PostgresStore.poolConfig())
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	return postgresstore.RunMigrations(ctx, pool)
}
