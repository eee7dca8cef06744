package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/accounts/internal/client"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/outbox"
	"github.com/wolfeidau/accounts/internal/store/memory"
)

type call struct {
	Method string
	Path   string
	Body   any
}

// fakeSender replays scripted responses in order and succeeds once they run out.
type fakeSender struct {
	mu        sync.Mutex
	calls     []call
	responses []error
}

func (f *fakeSender) Send(ctx context.Context, method, path string, body any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: method, Path: path, Body: body})
	if len(f.responses) == 0 {
		return nil
	}
	err := f.responses[0]
	f.responses = f.responses[1:]
	return err
}

func (f *fakeSender) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func status(code int) error {
	return &client.StatusError{Method: "X", URL: "http://remote", StatusCode: code}
}

var errTimeout = fmt.Errorf("dial remote: %w", os.ErrDeadlineExceeded)

type testEnv struct {
	db         *memory.DB
	dispatcher *outbox.Dispatcher
	orgs       *memory.OrganizationStore
	members    *memory.MembershipStore
	users      *memory.UserStore
	queue      *memory.TaskQueue
	sender     *fakeSender
	processor  *Processor
	clock      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := outbox.NewRegistry()
	registry.Register("documents", models.EntityOrganization, models.EntityMembership, models.EntityUser)
	dispatcher := outbox.NewDispatcher(registry, 4)
	db := memory.NewDB(dispatcher)

	env := &testEnv{
		db:         db,
		dispatcher: dispatcher,
		orgs:       memory.NewOrganizationStore(db),
		members:    memory.NewMembershipStore(db),
		users:      memory.NewUserStore(db),
		queue:      memory.NewTaskQueue(db),
		sender:     &fakeSender{},
		clock:      time.Now(),
	}

	resolver := NewResolver(env.orgs, env.members, env.users)
	env.processor = NewProcessor(resolver, map[string]Sender{"documents": env.sender}, env.queue, DefaultConfig())
	env.processor.now = func() time.Time { return env.clock }

	return env
}

func (e *testEnv) createOrg(t *testing.T) *models.Organization {
	t.Helper()
	now := time.Now().UTC()
	org := &models.Organization{OrgID: uuid.Must(uuid.NewV7()), Name: "Acme", Slug: "acme", Plan: "free", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, e.db.InTx(context.Background(), func(ctx context.Context) error {
		return e.orgs.Create(ctx, org)
	}))
	return org
}

// claimNext advances the clock past any backoff and claims the next task from every lane.
func (e *testEnv) claimNext(t *testing.T) *models.SyncTask {
	t.Helper()
	e.clock = e.clock.Add(time.Hour)
	for lane := range e.dispatcher.Lanes() {
		task, err := e.queue.Claim(context.Background(), lane, e.clock, e.clock.Add(time.Minute))
		require.NoError(t, err)
		if task != nil {
			return task
		}
	}
	return nil
}

func (e *testEnv) deadLetters(t *testing.T) []*models.DeadLetter {
	t.Helper()
	dls, err := e.queue.ListDeadLetters(context.Background(), 0)
	require.NoError(t, err)
	return dls
}

func (e *testEnv) pending(t *testing.T) int {
	t.Helper()
	n, err := e.queue.Pending(context.Background())
	require.NoError(t, err)
	return n
}

func TestProcessor_retriesTransientFailuresThenDelivers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	org := env.createOrg(t)
	env.sender.responses = []error{errTimeout, status(http.StatusServiceUnavailable), errTimeout}

	var outcomes []Outcome
	for {
		task := env.claimNext(t)
		if task == nil {
			break
		}
		result, err := env.processor.Handle(ctx, task)
		require.NoError(t, err)
		outcomes = append(outcomes, result.Outcome)
	}

	require.Equal(t, []Outcome{OutcomeRetry, OutcomeRetry, OutcomeRetry, OutcomeDelivered}, outcomes)
	require.Equal(t, []string{"POST", "POST", "POST", "POST"}, env.sender.methods())
	require.Equal(t, "organizations/"+org.OrgID.String(), env.sender.calls[0].Path)
	require.Equal(t, 0, env.pending(t))
	require.Empty(t, env.deadLetters(t))
}

func TestProcessor_exhaustedRetriesDeadLetter(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createOrg(t)
	env.sender.responses = []error{errTimeout, errTimeout, errTimeout, errTimeout, errTimeout, errTimeout}

	attempts := 0
	for {
		task := env.claimNext(t)
		if task == nil {
			break
		}
		_, err := env.processor.Handle(ctx, task)
		require.NoError(t, err)
		attempts++
	}

	require.Equal(t, 5, attempts)
	require.Equal(t, 0, env.pending(t))

	dls := env.deadLetters(t)
	require.Len(t, dls, 1)
	require.Equal(t, 4, dls[0].AttemptCount)
	require.Contains(t, dls[0].Reason, "gave up after 5 attempts")
}

func TestProcessor_permanentFailureDeadLettersImmediately(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createOrg(t)
	env.sender.responses = []error{status(http.StatusBadRequest)}

	task := env.claimNext(t)
	require.NotNil(t, task)

	result, err := env.processor.Handle(ctx, task)
	require.NoError(t, err)
	require.Equal(t, OutcomeDeadLetter, result.Outcome)
	require.Len(t, env.sender.calls, 1)
	require.Len(t, env.deadLetters(t), 1)
	require.Nil(t, env.claimNext(t))
}

func TestProcessor_deleteNotFoundIsSuccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	org := env.createOrg(t)

	require.NoError(t, env.db.InTx(ctx, func(ctx context.Context) error {
		return env.orgs.Delete(ctx, org.OrgID)
	}))
	require.Equal(t, 2, env.pending(t))

	env.sender.responses = []error{status(http.StatusNotFound)}

	var outcomes []Outcome
	for {
		task := env.claimNext(t)
		if task == nil {
			break
		}
		result, err := env.processor.Handle(ctx, task)
		require.NoError(t, err)
		outcomes = append(outcomes, result.Outcome)
	}

	// the create is skipped because the org is gone, then the delete hits a 404
	require.Equal(t, []Outcome{OutcomeSkipped, OutcomeDelivered}, outcomes)
	require.Equal(t, []string{"DELETE"}, env.sender.methods())
	require.Equal(t, 0, env.pending(t))
	require.Empty(t, env.deadLetters(t))
}

func TestProcessor_missingEntityIsNoop(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	task := &models.SyncTask{
		TaskID:     uuid.Must(uuid.NewV7()),
		EntityType: models.EntityOrganization,
		Action:     models.SyncActionUpdate,
		EntityKey:  uuid.NewString(),
		Target:     "documents",
	}

	result := env.processor.Process(ctx, task)
	require.Equal(t, OutcomeSkipped, result.Outcome)
	require.Empty(t, env.sender.calls)
}

func TestProcessor_staleDeleteSkipped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	org := env.createOrg(t)

	task := &models.SyncTask{
		TaskID:     uuid.Must(uuid.NewV7()),
		EntityType: models.EntityOrganization,
		Action:     models.SyncActionDelete,
		EntityKey:  org.OrgID.String(),
		Target:     "documents",
	}

	result := env.processor.Process(ctx, task)
	require.Equal(t, OutcomeSkipped, result.Outcome)
	require.Empty(t, env.sender.calls)
}

func TestProcessor_upsertFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		action    models.SyncAction
		responses []error
		methods   []string
		outcome   Outcome
	}{
		{
			name:      "update of unknown remote entity creates it",
			action:    models.SyncActionUpdate,
			responses: []error{status(http.StatusNotFound)},
			methods:   []string{"PATCH", "POST"},
			outcome:   OutcomeDelivered,
		},
		{
			name:      "duplicate create patches",
			action:    models.SyncActionCreate,
			responses: []error{status(http.StatusConflict)},
			methods:   []string{"POST", "PATCH"},
			outcome:   OutcomeDelivered,
		},
		{
			name:      "fallback failure is classified",
			action:    models.SyncActionUpdate,
			responses: []error{status(http.StatusNotFound), status(http.StatusBadGateway)},
			methods:   []string{"PATCH", "POST"},
			outcome:   OutcomeRetry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			org := env.createOrg(t)
			env.sender.responses = tt.responses

			result := env.processor.Process(context.Background(), &models.SyncTask{
				TaskID:     uuid.Must(uuid.NewV7()),
				EntityType: models.EntityOrganization,
				Action:     tt.action,
				EntityKey:  org.OrgID.String(),
				Target:     "documents",
			})
			require.Equal(t, tt.outcome, result.Outcome)
			require.Equal(t, tt.methods, env.sender.methods())
		})
	}
}

func TestProcessor_payloads(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	org := env.createOrg(t)

	user := &models.User{
		UserID:   uuid.Must(uuid.NewV7()),
		Username: "jane",
		Name:     "Jane",
		Emails:   []models.EmailAddress{{Email: "jane@example.com", Verified: true, Primary: true}},
	}
	require.NoError(t, env.db.InTx(ctx, func(ctx context.Context) error {
		if err := env.users.Create(ctx, user); err != nil {
			return err
		}
		return env.members.Create(ctx, &models.Membership{OrgID: org.OrgID, UserID: user.UserID, Admin: true})
	}))

	tests := []struct {
		name       string
		entityType models.EntityType
		key        string
		path       string
		body       any
	}{
		{
			name:       "organization",
			entityType: models.EntityOrganization,
			key:        org.OrgID.String(),
			path:       "organizations/" + org.OrgID.String(),
			body:       organizationBody{UUID: org.OrgID.String(), Name: "Acme", Slug: "acme", Plan: "free"},
		},
		{
			name:       "user",
			entityType: models.EntityUser,
			key:        user.UserID.String(),
			path:       "users/" + user.UserID.String(),
			body:       userBody{UUID: user.UserID.String(), Username: "jane", Name: "Jane", Email: "jane@example.com"},
		},
		{
			name:       "membership",
			entityType: models.EntityMembership,
			key:        models.MembershipKey(org.OrgID, user.UserID),
			path:       "organizations/" + org.OrgID.String() + "/memberships/" + user.UserID.String(),
			body:       membershipBody{Organization: org.OrgID.String(), User: user.UserID.String(), Admin: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.sender.calls = nil
			result := env.processor.Process(ctx, &models.SyncTask{
				TaskID:     uuid.Must(uuid.NewV7()),
				EntityType: tt.entityType,
				Action:     models.SyncActionUpdate,
				EntityKey:  tt.key,
				Target:     "documents",
			})
			require.Equal(t, OutcomeDelivered, result.Outcome)
			require.Len(t, env.sender.calls, 1)
			require.Equal(t, tt.path, env.sender.calls[0].Path)
			require.Equal(t, tt.body, env.sender.calls[0].Body)
		})
	}
}

func TestProcessor_invalidTaskDeadLetters(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		task *models.SyncTask
	}{
		{name: "unknown target", task: &models.SyncTask{EntityType: models.EntityUser, Action: models.SyncActionCreate, EntityKey: uuid.NewString(), Target: "billing"}},
		{name: "bad key", task: &models.SyncTask{EntityType: models.EntityMembership, Action: models.SyncActionCreate, EntityKey: "nope", Target: "documents"}},
		{name: "unknown action", task: &models.SyncTask{EntityType: models.EntityUser, Action: "merge", EntityKey: uuid.NewString(), Target: "documents"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := env.processor.Process(context.Background(), tt.task)
			require.Equal(t, OutcomeDeadLetter, result.Outcome)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "timeout", err: errTimeout, transient: true},
		{name: "500", err: status(http.StatusInternalServerError), transient: true},
		{name: "429", err: status(http.StatusTooManyRequests), transient: true},
		{name: "408", err: status(http.StatusRequestTimeout), transient: true},
		{name: "400", err: status(http.StatusBadRequest)},
		{name: "403", err: status(http.StatusForbidden)},
		{name: "invalid key", err: ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err)
			var te *TransientError
			require.Equal(t, tt.transient, errors.As(err, &te))
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestConfig_Delay(t *testing.T) {
	cfg := Config{InitialInterval: time.Second, MaxInterval: 10 * time.Second}

	// randomization factor is 0.5 around an interval that grows by 1.5x
	first := cfg.Delay(1)
	require.GreaterOrEqual(t, first, 500*time.Millisecond)
	require.LessOrEqual(t, first, 1500*time.Millisecond)

	capped := cfg.Delay(20)
	require.LessOrEqual(t, capped, 15*time.Second)
	require.GreaterOrEqual(t, capped, 5*time.Second)
}
