package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/outbox"
)

type DeadLettersCmd struct {
	List    DeadLettersListCmd    `cmd:"" help:"List dead lettered sync tasks, most recent first"`
	Requeue DeadLettersRequeueCmd `cmd:"" help:"Move a dead lettered task back into the queue"`
}

type DeadLettersListCmd struct {
	Limit int `help:"maximum number of dead letters to show" default:"50"`

	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *DeadLettersListCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)

	b, err := openPostgres(ctx, log, &c.PostgresStore, outbox.NewDispatcher(outbox.NewRegistry(), outbox.DefaultLanes))
	if err != nil {
		return err
	}
	defer b.close()

	letters, err := b.queue.ListDeadLetters(ctx, c.Limit)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tTARGET\tENTITY\tACTION\tKEY\tATTEMPTS\tFAILED\tREASON")
	for _, dl := range letters {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			dl.TaskID, dl.Target, dl.EntityType, dl.Action, dl.EntityKey,
			dl.AttemptCount, dl.FailedAt.Format(time.RFC3339), dl.Reason)
	}
	return w.Flush()
}

type DeadLettersRequeueCmd struct {
	TaskID string `arg:"" help:"ID of the dead lettered task"`

	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *DeadLettersRequeueCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)

	taskID, err := uuid.Parse(c.TaskID)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", c.TaskID, err)
	}

	b, err := openPostgres(ctx, log, &c.PostgresStore, outbox.NewDispatcher(outbox.NewRegistry(), outbox.DefaultLanes))
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.queue.RequeueDeadLetter(ctx, taskID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to requeue %s: %w", taskID, err)
	}

	log.Info().Str("task_id", taskID.String()).Msg("Requeued dead letter")
	return nil
}
