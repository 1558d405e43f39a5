package pairing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/pkg/catalog"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func TestCreate_StartsInCreatedState(t *testing.T) {
	s := New(time.Minute, testLogger())
	tx := s.Create(uuid.New(), nil, "switch", nil, nil, catalog.SetupPushButton)

	if tx.State() != StateCreated {
		t.Errorf("State() = %v, want Created", tx.State())
	}
}

func TestActivate_TransitionsToAwaitingConfirmation(t *testing.T) {
	s := New(time.Minute, testLogger())
	tx := s.Create(uuid.New(), nil, "switch", nil, nil, catalog.SetupPushButton)

	s.Activate(tx.ID)

	if tx.State() != StateAwaitingConfirmation {
		t.Errorf("State() = %v, want AwaitingConfirmation", tx.State())
	}
}

func TestSnapshot_ReflectsOAuthURLAndFields(t *testing.T) {
	s := New(time.Minute, testLogger())
	thingClassID := uuid.New()
	tx := s.Create(thingClassID, nil, "switch", nil, nil, catalog.SetupOAuth)
	tx.SetOAuthURL("https://example.com/authorize")

	snap := tx.Snapshot()
	if snap.ID != tx.ID {
		t.Errorf("Snapshot().ID = %v, want %v", snap.ID, tx.ID)
	}
	if snap.ThingClassID != thingClassID {
		t.Errorf("Snapshot().ThingClassID = %v, want %v", snap.ThingClassID, thingClassID)
	}
	if snap.OAuthURL != "https://example.com/authorize" {
		t.Errorf("Snapshot().OAuthURL = %q, want the set URL", snap.OAuthURL)
	}
	if snap.Name != "switch" {
		t.Errorf("Snapshot().Name = %q, want switch", snap.Name)
	}
}

func TestFail_RemovesTransaction(t *testing.T) {
	s := New(time.Minute, testLogger())
	tx := s.Create(uuid.New(), nil, "switch", nil, nil, catalog.SetupPushButton)

	s.Fail(tx.ID)

	if tx.State() != StateFailed {
		t.Errorf("State() = %v, want Failed", tx.State())
	}
	if _, ok := s.Find(tx.ID); ok {
		t.Error("Find() found transaction after Fail()")
	}
}

func TestBeginConfirm_RejectsWhenNotAwaitingConfirmation(t *testing.T) {
	s := New(time.Minute, testLogger())
	tx := s.Create(uuid.New(), nil, "switch", nil, nil, catalog.SetupPushButton)

	_, err := s.BeginConfirm(tx.ID)
	if err != catalog.AuthenticationFailure {
		t.Errorf("BeginConfirm() on Created transaction = %v, want AuthenticationFailure", err)
	}
}

func TestBeginConfirm_RejectsUnknownTransaction(t *testing.T) {
	s := New(time.Minute, testLogger())
	if _, err := s.BeginConfirm(uuid.New()); err != catalog.AuthenticationFailure {
		t.Errorf("BeginConfirm(unknown) = %v, want AuthenticationFailure", err)
	}
}

func TestBeginConfirm_RejectsConcurrentConfirm(t *testing.T) {
	s := New(time.Minute, testLogger())
	tx := s.Create(uuid.New(), nil, "switch", nil, nil, catalog.SetupPushButton)
	s.Activate(tx.ID)

	if _, err := s.BeginConfirm(tx.ID); err != catalog.NoError {
		t.Fatalf("first BeginConfirm() = %v, want NoError", err)
	}
	if _, err := s.BeginConfirm(tx.ID); err != catalog.AuthenticationFailure {
		t.Errorf("second concurrent BeginConfirm() = %v, want AuthenticationFailure", err)
	}
}

func TestFinish_ConfirmedRemovesTransaction(t *testing.T) {
	s := New(time.Minute, testLogger())
	tx := s.Create(uuid.New(), nil, "switch", nil, nil, catalog.SetupPushButton)
	s.Activate(tx.ID)
	if _, err := s.BeginConfirm(tx.ID); err != catalog.NoError {
		t.Fatalf("BeginConfirm() = %v", err)
	}

	s.Finish(tx.ID, true)

	if tx.State() != StateConfirmed {
		t.Errorf("State() = %v, want Confirmed", tx.State())
	}
	if _, ok := s.Find(tx.ID); ok {
		t.Error("Find() found transaction after Finish()")
	}
}

func TestFinish_FailureRemovesTransaction(t *testing.T) {
	s := New(time.Minute, testLogger())
	tx := s.Create(uuid.New(), nil, "switch", nil, nil, catalog.SetupPushButton)
	s.Activate(tx.ID)
	if _, err := s.BeginConfirm(tx.ID); err != catalog.NoError {
		t.Fatalf("BeginConfirm() = %v", err)
	}

	s.Finish(tx.ID, false)

	if tx.State() != StateFailed {
		t.Errorf("State() = %v, want Failed", tx.State())
	}
}

func TestExpiry_TransitionsToExpiredAfterTTL(t *testing.T) {
	s := New(20*time.Millisecond, testLogger())
	tx := s.Create(uuid.New(), nil, "switch", nil, nil, catalog.SetupPushButton)
	s.Activate(tx.ID)

	deadline := time.After(time.Second)
	for tx.State() != StateExpired {
		select {
		case <-deadline:
			t.Fatalf("transaction did not expire in time, state = %v", tx.State())
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, ok := s.Find(tx.ID); ok {
		t.Error("Find() found transaction after expiry")
	}
}

func TestConfirmPairing_RejectsAfterExpiry(t *testing.T) {
	s := New(20*time.Millisecond, testLogger())
	tx := s.Create(uuid.New(), nil, "switch", nil, nil, catalog.SetupPushButton)
	s.Activate(tx.ID)

	deadline := time.After(time.Second)
	for tx.State() != StateExpired {
		select {
		case <-deadline:
			t.Fatalf("transaction did not expire in time")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := s.BeginConfirm(tx.ID); err != catalog.AuthenticationFailure {
		t.Errorf("BeginConfirm() after expiry = %v, want AuthenticationFailure", err)
	}
}

func TestNew_ZeroTTLFallsBackToDefault(t *testing.T) {
	s := New(0, testLogger())
	if s.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want DefaultTTL (%v)", s.ttl, DefaultTTL)
	}
}

func TestOAuthURL_RoundTrips(t *testing.T) {
	s := New(time.Minute, testLogger())
	tx := s.Create(uuid.New(), nil, "thermostat", nil, nil, catalog.SetupOAuth)

	tx.SetOAuthURL("https://example.com/authorize")
	if got := tx.OAuthURL(); got != "https://example.com/authorize" {
		t.Errorf("OAuthURL() = %q", got)
	}
}

func TestPending_ReflectsLiveTransactionCount(t *testing.T) {
	s := New(time.Minute, testLogger())
	if s.Pending() != 0 {
		t.Fatalf("Pending() initially = %d, want 0", s.Pending())
	}

	tx1 := s.Create(uuid.New(), nil, "a", nil, nil, catalog.SetupPushButton)
	s.Create(uuid.New(), nil, "b", nil, nil, catalog.SetupPushButton)
	if s.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", s.Pending())
	}

	s.Fail(tx1.ID)
	if s.Pending() != 1 {
		t.Errorf("Pending() after Fail() = %d, want 1", s.Pending())
	}
}
