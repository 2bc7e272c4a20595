package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatagent-backend/config"
	"chatagent-backend/models"
)

type fakeSessionStore struct {
	sessions map[string]string
	saves    int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]string)}
}

func (s *fakeSessionStore) Lookup(appID, chatID string) (string, error) {
	return s.sessions[appID+"/"+chatID], nil
}

func (s *fakeSessionStore) Save(appID, chatID, sessionID string) error {
	s.sessions[appID+"/"+chatID] = sessionID
	s.saves++
	return nil
}

type fakeBackend struct {
	submitted         []string
	submittedSessions []string
	polls             int
	// pollStates returned in order; the last one repeats
	pollStates []RunState
	result     string
	submitErr  error
	resultErr  error
}

func (b *fakeBackend) CreateSession(ctx context.Context) (string, error) {
	return "sess-1", nil
}

func (b *fakeBackend) Submit(ctx context.Context, sessionID, content string) (string, error) {
	if b.submitErr != nil {
		return "", b.submitErr
	}
	b.submitted = append(b.submitted, content)
	b.submittedSessions = append(b.submittedSessions, sessionID)
	return "run-1", nil
}

func (b *fakeBackend) PollStatus(ctx context.Context, sessionID, runID string) (RunState, error) {
	i := b.polls
	if i >= len(b.pollStates) {
		i = len(b.pollStates) - 1
	}
	b.polls++
	return b.pollStates[i], nil
}

func (b *fakeBackend) FetchResult(ctx context.Context, sessionID string) (string, error) {
	if b.resultErr != nil {
		return "", b.resultErr
	}
	return b.result, nil
}

func testDispatcher(backend *fakeBackend, sessions SessionStore, budget time.Duration) *Dispatcher {
	return NewDispatcher(
		func(app *models.App) AssistantBackend { return backend },
		sessions,
		config.DispatchConfig{PollInterval: time.Millisecond, Budget: budget, MaxAttempts: 3},
	)
}

func TestDispatchCreatesSessionOnFirstMessage(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{pollStates: []RunState{RunPending, RunCompleted}, result: "hi there"}
	sessions := newFakeSessionStore()
	d := testDispatcher(backend, sessions, time.Second)

	app := &models.App{AppID: "app-1"}
	result, err := d.Dispatch(context.Background(), app, "chat-1", "hello")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Reply != "hi there" {
		t.Fatalf("unexpected reply: %q", result.Reply)
	}
	if result.SessionID != "sess-1" {
		t.Fatalf("unexpected session: %q", result.SessionID)
	}
	if sessions.saves != 1 {
		t.Fatalf("expected one session save, got %d", sessions.saves)
	}
	if len(backend.submitted) != 1 || backend.submitted[0] != "hello" {
		t.Fatalf("unexpected submissions: %#v", backend.submitted)
	}
}

func TestDispatchReusesExistingSession(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{pollStates: []RunState{RunCompleted}, result: "again"}
	sessions := newFakeSessionStore()
	sessions.sessions["app-1/chat-1"] = "sess-old"
	d := testDispatcher(backend, sessions, time.Second)

	result, err := d.Dispatch(context.Background(), &models.App{AppID: "app-1"}, "chat-1", "second turn")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.SessionID != "sess-old" {
		t.Fatalf("expected the stored session, got %q", result.SessionID)
	}
	if sessions.saves != 0 {
		t.Fatalf("existing session must not be re-saved")
	}
}

// firstWriterWinsStore mimics the database store under a concurrent
// first-turn: by the time this dispatcher saves, another dispatcher already
// stored its session, and the unique constraint keeps that one.
type firstWriterWinsStore struct {
	winner string
	saved  bool
}

func (s *firstWriterWinsStore) Lookup(appID, chatID string) (string, error) {
	if s.saved {
		return s.winner, nil
	}
	return "", nil
}

func (s *firstWriterWinsStore) Save(appID, chatID, sessionID string) error {
	s.saved = true
	return nil
}

func TestDispatchLostSessionRaceUsesStoredSession(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{pollStates: []RunState{RunCompleted}, result: "ok"}
	sessions := &firstWriterWinsStore{winner: "sess-win"}
	d := testDispatcher(backend, sessions, time.Second)

	result, err := d.Dispatch(context.Background(), &models.App{AppID: "app-1"}, "chat-1", "hello")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.SessionID != "sess-win" {
		t.Fatalf("expected the stored session, got %q", result.SessionID)
	}
	if len(backend.submittedSessions) != 1 || backend.submittedSessions[0] != "sess-win" {
		t.Fatalf("submit went to an orphan session: %#v", backend.submittedSessions)
	}
}

func TestDispatchTimeout(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{pollStates: []RunState{RunPending}}
	d := testDispatcher(backend, newFakeSessionStore(), 20*time.Millisecond)

	result, err := d.Dispatch(context.Background(), &models.App{AppID: "app-1"}, "chat-1", "slow")
	if !errors.Is(err, ErrDispatchTimeout) {
		t.Fatalf("expected ErrDispatchTimeout, got %v", err)
	}
	if result == nil || result.SessionID != "sess-1" {
		t.Fatalf("timeout must keep the session usable: %#v", result)
	}
}

func TestDispatchRunFailure(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{pollStates: []RunState{RunPending, RunFailed}}
	d := testDispatcher(backend, newFakeSessionStore(), time.Second)

	_, err := d.Dispatch(context.Background(), &models.App{AppID: "app-1"}, "chat-1", "boom")
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
}

func TestDispatchSubmitFailure(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{submitErr: errors.New("401 invalid api key")}
	d := testDispatcher(backend, newFakeSessionStore(), time.Second)

	_, err := d.Dispatch(context.Background(), &models.App{AppID: "app-1"}, "chat-1", "hello")
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
}
