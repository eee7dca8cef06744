package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/accounts/internal/client"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/store"
	"github.com/wolfeidau/accounts/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Sender delivers a representation to one target service. *client.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, method, path string, body any) error
}

// Config controls delivery attempts and lane polling.
type Config struct {
	MaxAttempts       int
	InitialInterval   time.Duration
	MaxInterval       time.Duration
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		InitialInterval:   2 * time.Second,
		MaxInterval:       5 * time.Minute,
		VisibilityTimeout: 2 * time.Minute,
		PollInterval:      5 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = def.MaxInterval
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = def.VisibilityTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
}

// Delay returns the wait before the given retry attempt (1 based).
func (c Config) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.Reset()

	var d time.Duration
	for range max(attempt, 1) {
		d = b.NextBackOff()
	}
	return d
}

// TransientError is a failure worth retrying: network errors, timeouts, 5xx, 408 and 429.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a failure that no retry will fix.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Classify wraps err as a TransientError or PermanentError.
func Classify(err error) error {
	var te *TransientError
	var pe *PermanentError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}

	var se *client.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode >= 500,
			se.StatusCode == http.StatusTooManyRequests,
			se.StatusCode == http.StatusRequestTimeout:
			return &TransientError{Err: err}
		default:
			return &PermanentError{Err: err}
		}
	}

	if errors.Is(err, ErrInvalidKey) {
		return &PermanentError{Err: err}
	}

	return &TransientError{Err: err}
}

// Outcome is the disposition of a processed task.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeSkipped
	OutcomeRetry
	OutcomeDeadLetter
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRetry:
		return "retry"
	case OutcomeDeadLetter:
		return "dead_letter"
	}
	return "unknown"
}

// Result describes what happened to a task and what the queue should do with it.
type Result struct {
	Outcome Outcome
	Reason  string
	Err     error
	RetryAt time.Time
}

// Processor delivers sync tasks to target services.
type Processor struct {
	resolver *Resolver
	targets  map[string]Sender
	queue    store.TaskQueue
	cfg      Config
	now      func() time.Time
}

func NewProcessor(resolver *Resolver, targets map[string]Sender, queue store.TaskQueue, cfg Config) *Processor {
	cfg.applyDefaults()
	return &Processor{
		resolver: resolver,
		targets:  targets,
		queue:    queue,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Process performs one delivery attempt for the task. Entity state is read
// fresh so a late task always carries the latest committed state.
func (p *Processor) Process(ctx context.Context, task *models.SyncTask) Result {
	sender, ok := p.targets[task.Target]
	if !ok {
		return Result{Outcome: OutcomeDeadLetter, Reason: fmt.Sprintf("unknown target %q", task.Target)}
	}

	res, err := p.resolver.Resolve(ctx, task.EntityType, task.EntityKey)
	if err != nil {
		return p.failed(task, err)
	}

	switch task.Action {
	case models.SyncActionDelete:
		if res.Found {
			// recreated since the delete committed; a later task carries the create
			return Result{Outcome: OutcomeSkipped, Reason: "entity exists locally"}
		}
		err = sender.Send(ctx, http.MethodDelete, res.Path, nil)
		if client.IsNotFound(err) {
			return Result{Outcome: OutcomeDelivered, Reason: "already absent remotely"}
		}

	case models.SyncActionCreate, models.SyncActionUpdate:
		if !res.Found {
			// deleted since enqueue; the delete task follows in this lane
			return Result{Outcome: OutcomeSkipped, Reason: "entity no longer exists locally"}
		}
		err = p.upsert(ctx, sender, task.Action, res)

	default:
		return Result{Outcome: OutcomeDeadLetter, Reason: fmt.Sprintf("unknown action %q", task.Action)}
	}

	if err != nil {
		return p.failed(task, err)
	}
	return Result{Outcome: OutcomeDelivered}
}

// upsert sends a create as POST and an update as PATCH, falling back to the
// other verb when the remote disagrees about whether the entity exists.
func (p *Processor) upsert(ctx context.Context, sender Sender, action models.SyncAction, res *Resource) error {
	if action == models.SyncActionCreate {
		err := sender.Send(ctx, http.MethodPost, res.Path, res.Body)
		if isStatus(err, http.StatusConflict) {
			return sender.Send(ctx, http.MethodPatch, res.Path, res.Body)
		}
		return err
	}

	err := sender.Send(ctx, http.MethodPatch, res.Path, res.Body)
	if client.IsNotFound(err) {
		return sender.Send(ctx, http.MethodPost, res.Path, res.Body)
	}
	return err
}

func (p *Processor) failed(task *models.SyncTask, err error) Result {
	err = Classify(err)

	var pe *PermanentError
	if errors.As(err, &pe) {
		return Result{Outcome: OutcomeDeadLetter, Reason: err.Error(), Err: err}
	}

	attempts := task.AttemptCount + 1
	if attempts >= p.cfg.MaxAttempts {
		return Result{
			Outcome: OutcomeDeadLetter,
			Reason:  fmt.Sprintf("gave up after %d attempts: %s", attempts, err),
			Err:     err,
		}
	}

	return Result{
		Outcome: OutcomeRetry,
		Reason:  err.Error(),
		Err:     err,
		RetryAt: p.now().Add(p.cfg.Delay(attempts)),
	}
}

// Handle processes a claimed task and records the outcome in the queue.
func (p *Processor) Handle(ctx context.Context, task *models.SyncTask) (Result, error) {
	started := p.now()

	attrs := []attribute.KeyValue{
		telemetry.AttrTarget.String(task.Target),
		telemetry.AttrEntityType.String(string(task.EntityType)),
		telemetry.AttrAction.String(string(task.Action)),
	}

	ctx, span := telemetry.Tracer().Start(ctx, "sync.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
		trace.WithAttributes(
			attribute.String("sync.task_id", task.TaskID.String()),
			attribute.String("sync.entity_key", task.EntityKey),
			attribute.Int("sync.attempt", task.AttemptCount+1),
		),
	)
	defer span.End()

	result := p.Process(ctx, task)

	// shutting down mid delivery; the claim lapses and the task is reclaimed
	if result.Outcome == OutcomeRetry && ctx.Err() != nil {
		return result, ctx.Err()
	}

	logger := log.With().
		Str("task_id", task.TaskID.String()).
		Str("target", task.Target).
		Str("entity_type", string(task.EntityType)).
		Str("action", string(task.Action)).
		Str("entity_key", task.EntityKey).
		Int("attempt", task.AttemptCount+1).
		Logger()

	m := telemetry.GetMetrics()
	var err error

	switch result.Outcome {
	case OutcomeDelivered:
		err = p.queue.Complete(ctx, task.TaskID)
		m.TasksDeliveredTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
		logger.Debug().Msg("Sync task delivered")

	case OutcomeSkipped:
		err = p.queue.Complete(ctx, task.TaskID)
		m.TasksSkippedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
		logger.Debug().Str("reason", result.Reason).Msg("Sync task skipped")

	case OutcomeRetry:
		err = p.queue.Reschedule(ctx, task.TaskID, task.AttemptCount+1, result.RetryAt, result.Reason)
		m.TasksRetriedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
		logger.Warn().Err(result.Err).Time("next_attempt_at", result.RetryAt).Msg("Sync task failed, will retry")

	case OutcomeDeadLetter:
		err = p.queue.DeadLetter(ctx, task.TaskID, result.Reason, p.now())
		m.TasksDeadLetteredTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
		logger.Error().Err(result.Err).Str("reason", result.Reason).Msg("Sync task dead lettered")
	}

	span.SetAttributes(telemetry.AttrOutcome.String(result.Outcome.String()))
	if result.Err != nil {
		span.RecordError(result.Err)
	}
	if result.Outcome == OutcomeDeadLetter || err != nil {
		span.SetStatus(codes.Error, result.Reason)
	}

	m.DeliveryDuration.Record(ctx, float64(p.now().Sub(started).Milliseconds()),
		metric.WithAttributes(append(attrs, telemetry.AttrOutcome.String(result.Outcome.String()))...))

	if err != nil {
		return result, fmt.Errorf("failed to record %s outcome for task %s: %w", result.Outcome, task.TaskID, err)
	}
	return result, nil
}

func isStatus(err error, code int) bool {
	var se *client.StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
