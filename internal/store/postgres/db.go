package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/outbox"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// DB implements store.Transactor on a shared connection pool and hands the
// active transaction to the stores through the context.
type DB struct {
	pool       *pgxpool.Pool
	cfg        Config
	dispatcher *outbox.Dispatcher

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDB wraps an existing pool. Committed pending sync records are expanded
// into sync tasks by the dispatcher.
func NewDB(pool *pgxpool.Pool, cfg Config, dispatcher *outbox.Dispatcher) (*DB, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &DB{
		pool:       pool,
		cfg:        cfg,
		dispatcher: dispatcher,
		stopCh:     make(chan struct{}),
	}, nil
}

// Start starts background pool monitoring.
func (db *DB) Start() {
	db.wg.Add(1)
	go func() {
		defer db.wg.Done()
		db.monitorConnectionPool()
	}()
}

// Stop stops background tasks and closes the pool.
func (db *DB) Stop() {
	log.Info().Msg("Stopping PostgreSQL store")
	close(db.stopCh)
	db.wg.Wait()
	db.pool.Close()
}

// InTx runs fn in a database transaction. The sync tasks expanded from the
// transaction's pending records are inserted just before commit.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	var tasks []*models.SyncTask
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		pending := outbox.NewPending()
		txCtx := outbox.WithPending(context.WithValue(ctx, txKey{}, tx), pending)

		if err := fn(txCtx); err != nil {
			return err
		}

		tasks = db.dispatcher.Expand(pending.Changes(), time.Now().UTC())
		return insertTasks(ctx, tx, tasks)
	})
	if err != nil {
		return err
	}

	if len(tasks) > 0 {
		log.Debug().Int("tasks", len(tasks)).Msg("Committed sync tasks")
	}
	db.dispatcher.Committed(ctx, tasks)
	return nil
}

// q returns the transaction carried by ctx, or the pool.
func (db *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db.pool
}

// withTimeout applies the query timeout to statements issued outside a transaction.
func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok || db.cfg.QueryTimeoutSeconds < 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(db.cfg.QueryTimeoutSeconds)*time.Second)
}

func insertTasks(ctx context.Context, tx pgx.Tx, tasks []*models.SyncTask) error {
	if len(tasks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range tasks {
		batch.Queue(`
			INSERT INTO sync_tasks (
				task_id, entity_type, action, entity_key, target_service,
				lane, next_attempt_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING seq
		`, t.TaskID, t.EntityType, t.Action, t.EntityKey, t.Target, t.Lane, t.NextAttemptAt, t.CreatedAt,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&t.Seq)
		})
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert sync tasks: %w", mapPostgresError(err, nil, nil))
	}
	return nil
}

// monitorConnectionPool logs connection pool statistics periodically.
func (db *DB) monitorConnectionPool() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := db.pool.Stat()
			log.Debug().
				Int32("total_conns", stats.TotalConns()).
				Int32("idle_conns", stats.IdleConns()).
				Int32("acquired_conns", stats.AcquiredConns()).
				Int64("acquire_count", stats.AcquireCount()).
				Msg("Connection pool stats")
		case <-db.stopCh:
			return
		}
	}
}
