// Package pairing implements the Pairing FSM (spec component C6): the
// server-side handle tracking a multi-step thing setup, from the
// initial PairThing call through to ConfirmPairing or expiry.
// Grounded on internal/registry's RWMutex-guarded map bookkeeping and
// pkg/integration.Base's time.AfterFunc-driven timeout pattern.
package pairing

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/pkg/catalog"
)

// State is one step of a pairing transaction's lifecycle (spec.md §4.6:
// "Created → AwaitingConfirmation → [Confirmed | Failed | Expired]").
type State string

const (
	StateCreated              State = "Created"
	StateAwaitingConfirmation State = "AwaitingConfirmation"
	StateConfirmed            State = "Confirmed"
	StateFailed               State = "Failed"
	StateExpired              State = "Expired"
)

// DefaultTTL is used when Store is constructed with ttl <= 0.
const DefaultTTL = 5 * time.Minute

// Transaction is a single in-flight pairing attempt.
type Transaction struct {
	ID           uuid.UUID
	ThingClassID uuid.UUID
	ThingID      *uuid.UUID // set for reconfigure-via-pairing
	Name         string
	Params       catalog.ParamList
	ParentID     *uuid.UUID
	SetupMethod  catalog.SetupMethod
	CreatedAt    time.Time

	mu         sync.Mutex
	state      State
	oAuthURL   string
	confirming bool
	timer      *time.Timer
}

// State returns the transaction's current state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetOAuthURL records the browser target surfaced to the client for
// SetupMethod OAuth transactions.
func (t *Transaction) SetOAuthURL(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.oAuthURL = url
}

// OAuthURL returns the URL set via SetOAuthURL, if any.
func (t *Transaction) OAuthURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.oAuthURL
}

// Snapshot returns the serializable, lock-free view of t exposed across
// the JSON-RPC façade as catalog.PairingTransaction.
func (t *Transaction) Snapshot() catalog.PairingTransaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return catalog.PairingTransaction{
		ID:           t.ID,
		ThingClassID: t.ThingClassID,
		ThingID:      t.ThingID,
		Name:         t.Name,
		Params:       t.Params,
		ParentID:     t.ParentID,
		SetupMethod:  t.SetupMethod,
		OAuthURL:     t.oAuthURL,
		CreatedAt:    t.CreatedAt,
	}
}

// Store owns every in-flight pairing transaction.
type Store struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*Transaction
	ttl          time.Duration
	logger       *zap.Logger
}

// New creates a Pairing FSM store. ttl <= 0 falls back to DefaultTTL,
// which is never below the spec's 5 minute floor.
func New(ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		transactions: make(map[uuid.UUID]*Transaction),
		ttl:          ttl,
		logger:       logger,
	}
}

// Create starts a new transaction in state Created, ahead of the
// plugin's startPairing call. Call Activate once that call succeeds, or
// Fail if it does not.
func (s *Store) Create(thingClassID uuid.UUID, thingID *uuid.UUID, name string, params catalog.ParamList, parentID *uuid.UUID, setupMethod catalog.SetupMethod) *Transaction {
	tx := &Transaction{
		ID:           uuid.New(),
		ThingClassID: thingClassID,
		ThingID:      thingID,
		Name:         name,
		Params:       params,
		ParentID:     parentID,
		SetupMethod:  setupMethod,
		CreatedAt:    time.Now(),
		state:        StateCreated,
	}
	s.mu.Lock()
	s.transactions[tx.ID] = tx
	s.mu.Unlock()
	return tx
}

// Activate transitions a Created transaction to AwaitingConfirmation and
// starts its expiry timer. No-op if id is unknown.
func (s *Store) Activate(id uuid.UUID) {
	tx, ok := s.lookup(id)
	if !ok {
		return
	}
	tx.mu.Lock()
	tx.state = StateAwaitingConfirmation
	tx.timer = time.AfterFunc(s.ttl, func() { s.expire(id) })
	tx.mu.Unlock()
}

// Fail transitions a transaction straight to Failed and removes it —
// used when the plugin's startPairing call itself reports an error.
func (s *Store) Fail(id uuid.UUID) {
	s.mu.Lock()
	tx, ok := s.transactions[id]
	if ok {
		delete(s.transactions, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	tx.mu.Lock()
	if tx.timer != nil {
		tx.timer.Stop()
	}
	tx.state = StateFailed
	tx.mu.Unlock()
}

func (s *Store) expire(id uuid.UUID) {
	s.mu.Lock()
	tx, ok := s.transactions[id]
	if ok {
		delete(s.transactions, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	tx.mu.Lock()
	tx.state = StateExpired
	tx.mu.Unlock()
	s.logger.Info("pairing transaction expired", zap.String("transaction_id", id.String()))
}

func (s *Store) lookup(id uuid.UUID) (*Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	return tx, ok
}

// Find returns the transaction with id, if it is still live (not yet
// confirmed, failed, or expired).
func (s *Store) Find(id uuid.UUID) (*Transaction, bool) {
	return s.lookup(id)
}

// BeginConfirm validates that id is AwaitingConfirmation and not already
// being confirmed by a concurrent call, marking it in-flight and
// returning it for the caller to relay to the plugin's confirmPairing.
// Per spec.md §4.6, a transaction not in AwaitingConfirmation — expired,
// already confirmed, or unknown — reports AuthenticationFailure.
func (s *Store) BeginConfirm(id uuid.UUID) (*Transaction, catalog.ThingError) {
	tx, ok := s.lookup(id)
	if !ok {
		return nil, catalog.AuthenticationFailure
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != StateAwaitingConfirmation || tx.confirming {
		return nil, catalog.AuthenticationFailure
	}
	tx.confirming = true
	return tx, catalog.NoError
}

// Finish transitions an in-flight confirm to its terminal state and
// removes the transaction from the store. No-op if id is unknown (it
// may have expired while the plugin's confirmPairing call was running).
func (s *Store) Finish(id uuid.UUID, success bool) {
	s.mu.Lock()
	tx, ok := s.transactions[id]
	if ok {
		delete(s.transactions, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	tx.mu.Lock()
	if tx.timer != nil {
		tx.timer.Stop()
	}
	if success {
		tx.state = StateConfirmed
	} else {
		tx.state = StateFailed
	}
	tx.mu.Unlock()
}

// Pending returns the number of transactions currently tracked.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}
