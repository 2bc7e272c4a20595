package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"chatagent-backend/config"
	"chatagent-backend/models"
)

// Dispatcher runs one inbound message through the tenant's assistant: it
// resolves the persistent AI session, submits the content, polls the run to
// completion within the time budget and returns the reply text.
type Dispatcher struct {
	factory  AssistantFactory
	sessions SessionStore
	poll     time.Duration
	budget   time.Duration
}

func NewDispatcher(factory AssistantFactory, sessions SessionStore, cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{
		factory:  factory,
		sessions: sessions,
		poll:     cfg.PollInterval,
		budget:   cfg.Budget,
	}
}

// DispatchResult carries the assistant's reply and the session it ran in.
type DispatchResult struct {
	Reply     string
	SessionID string
}

// Dispatch submits content to the app's assistant and waits for the reply.
// Returns ErrDispatchTimeout when the run does not finish within the budget
// and ErrDispatchFailed when the run itself fails; both leave the session
// usable for the next message.
func (d *Dispatcher) Dispatch(ctx context.Context, app *models.App, chatID, content string) (*DispatchResult, error) {
	backend := d.factory(app)

	sessionID, err := d.sessions.Lookup(app.AppID, chatID)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID, err = backend.CreateSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
		}
		if err := d.sessions.Save(app.AppID, chatID, sessionID); err != nil {
			return nil, err
		}
		// Two first-turn dispatches can race on creation; the store keeps
		// whichever mapping landed first, so re-read it and submit there
		// instead of into an orphan session.
		stored, err := d.sessions.Lookup(app.AppID, chatID)
		if err != nil {
			return nil, err
		}
		if stored != "" && stored != sessionID {
			log.Printf("🔁 [Dispatcher] Session race for app=%s chat=%s; using stored %s", app.AppID, chatID, stored)
			sessionID = stored
		}
		log.Printf("🆕 [Dispatcher] Using AI session %s for app=%s chat=%s", sessionID, app.AppID, chatID)
	}

	runID, err := backend.Submit(ctx, sessionID, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	deadline := time.Now().Add(d.budget)
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		state, err := backend.PollStatus(ctx, sessionID, runID)
		if err != nil {
			// Transient poll failures burn budget, not the run.
			log.Printf("⚠️ [Dispatcher] Poll error for run %s: %v", runID, err)
		}

		switch state {
		case RunCompleted:
			reply, err := backend.FetchResult(ctx, sessionID)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
			}
			return &DispatchResult{Reply: reply, SessionID: sessionID}, nil
		case RunFailed:
			return &DispatchResult{SessionID: sessionID}, ErrDispatchFailed
		}

		if time.Now().After(deadline) {
			return &DispatchResult{SessionID: sessionID}, ErrDispatchTimeout
		}

		select {
		case <-ctx.Done():
			return &DispatchResult{SessionID: sessionID}, ErrDispatchTimeout
		case <-ticker.C:
		}
	}
}
