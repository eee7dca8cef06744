package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/accounts/internal/outbox"
	"github.com/wolfeidau/accounts/internal/store"
	"github.com/wolfeidau/accounts/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// Pool runs one consumer per lane. A lane handles one task at a time, so tasks
// for the same entity are delivered in commit order while different lanes run
// in parallel.
type Pool struct {
	processor  *Processor
	queue      store.TaskQueue
	dispatcher *outbox.Dispatcher
	cfg        Config
}

func NewPool(processor *Processor, queue store.TaskQueue, dispatcher *outbox.Dispatcher) *Pool {
	return &Pool{
		processor:  processor,
		queue:      queue,
		dispatcher: dispatcher,
		cfg:        processor.cfg,
	}
}

// Run consumes every lane until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	log.Info().
		Int("lanes", p.dispatcher.Lanes()).
		Dur("poll_interval", p.cfg.PollInterval).
		Dur("visibility_timeout", p.cfg.VisibilityTimeout).
		Msg("Sync worker pool starting")

	g, ctx := errgroup.WithContext(ctx)
	for lane := range p.dispatcher.Lanes() {
		g.Go(func() error {
			p.runLane(ctx, lane)
			return nil
		})
	}

	err := g.Wait()
	log.Info().Msg("Sync worker pool stopped")
	return err
}

func (p *Pool) runLane(ctx context.Context, lane int) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.drainLane(ctx, lane)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.dispatcher.Wake(lane):
		}
	}
}

// Drain processes every task that is currently due, lane by lane, and returns
// how many were handled.
func (p *Pool) Drain(ctx context.Context) int {
	total := 0
	for lane := range p.dispatcher.Lanes() {
		total += p.drainLane(ctx, lane)
	}
	return total
}

func (p *Pool) drainLane(ctx context.Context, lane int) int {
	handled := 0
	for ctx.Err() == nil {
		now := time.Now()
		task, err := p.queue.Claim(ctx, lane, now, now.Add(p.cfg.VisibilityTimeout))
		if err != nil {
			log.Error().Err(err).Int("lane", lane).Msg("Failed to claim sync task")
			return handled
		}
		if task == nil {
			return handled
		}

		telemetry.GetMetrics().TasksClaimedTotal.Add(ctx, 1, metric.WithAttributes(
			telemetry.AttrTarget.String(task.Target),
			telemetry.AttrEntityType.String(string(task.EntityType)),
		))

		if _, err := p.processor.Handle(ctx, task); err != nil {
			log.Error().Err(err).Int("lane", lane).Msg("Failed to handle sync task")
			return handled
		}
		handled++
	}
	return handled
}
