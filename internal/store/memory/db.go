package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/outbox"
)

// DB holds all in-memory state and implements store.Transactor.
// This implementation is for testing and local development only - data is lost on restart.
//
// Transactions are serialized by a single lock. A transaction works on a copy of
// the state which replaces the committed state only when the transaction succeeds.
type DB struct {
	mu         sync.Mutex
	state      *state
	seq        int64
	dispatcher *outbox.Dispatcher
}

// NewDB creates an empty in-memory database. Committed pending sync records are
// expanded into tasks by the dispatcher.
func NewDB(dispatcher *outbox.Dispatcher) *DB {
	return &DB{state: newState(), dispatcher: dispatcher}
}

type membershipKey struct {
	orgID  uuid.UUID
	userID uuid.UUID
}

type state struct {
	organizations map[uuid.UUID]models.Organization
	memberships   map[membershipKey]models.Membership
	invitations   map[uuid.UUID]models.Invitation
	users         map[uuid.UUID]models.User
	tokens        map[string]models.OAuth2Token // fingerprint -> token
	tasks         map[uuid.UUID]models.SyncTask
	deadLetters   map[uuid.UUID]models.DeadLetter
}

func newState() *state {
	return &state{
		organizations: make(map[uuid.UUID]models.Organization),
		memberships:   make(map[membershipKey]models.Membership),
		invitations:   make(map[uuid.UUID]models.Invitation),
		users:         make(map[uuid.UUID]models.User),
		tokens:        make(map[string]models.OAuth2Token),
		tasks:         make(map[uuid.UUID]models.SyncTask),
		deadLetters:   make(map[uuid.UUID]models.DeadLetter),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.organizations {
		c.organizations[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.invitations {
		c.invitations[k] = cloneInvitation(v)
	}
	for k, v := range s.users {
		c.users[k] = cloneUser(v)
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.deadLetters {
		c.deadLetters[k] = v
	}
	return c
}

func cloneUser(u models.User) models.User {
	u.Emails = append([]models.EmailAddress(nil), u.Emails...)
	return u
}

func cloneInvitation(inv models.Invitation) models.Invitation {
	if inv.UserID != nil {
		id := *inv.UserID
		inv.UserID = &id
	}
	return inv
}

type txKey struct{}

// InTx runs fn against a private copy of the state and commits it, together with
// the sync tasks expanded from the transaction's pending records, if fn succeeds.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}

	tasks, err := db.commit(ctx, fn)
	if err != nil {
		return err
	}

	db.dispatcher.Committed(ctx, tasks)
	return nil
}

func (db *DB) commit(ctx context.Context, fn func(ctx context.Context) error) ([]*models.SyncTask, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	working := db.state.clone()
	pending := outbox.NewPending()
	txCtx := outbox.WithPending(context.WithValue(ctx, txKey{}, working), pending)

	if err := fn(txCtx); err != nil {
		return nil, err
	}

	tasks := db.dispatcher.Expand(pending.Changes(), time.Now().UTC())
	for _, task := range tasks {
		db.seq++
		task.Seq = db.seq
		working.tasks[task.TaskID] = *task
	}

	db.state = working
	return tasks, nil
}

// view runs fn against the transaction's state when ctx carries one, otherwise
// against the committed state under the lock.
func (db *DB) view(ctx context.Context, fn func(s *state) error) error {
	if s, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(s)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.state)
}

func (db *DB) nextSeq() int64 {
	db.seq++
	return db.seq
}
