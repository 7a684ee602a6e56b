// Package view implements client-side conversation state as a pull
// reconciliation machine: the server is the source of truth and the
// view re-fetches on demand instead of subscribing to updates.
package view

import (
	"context"
	"sync"

	"smartscribe/pkg/client"
	"smartscribe/pkg/models"
)

// State is the view lifecycle: Idle before any session is selected,
// Loading while a fetch is in flight, Ready once a snapshot is held.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

// Snapshot is one consistent pull of a session's visible state.
type Snapshot struct {
	SessionID   string
	Title       string
	Messages    []models.Message
	Transcripts []models.Transcript
}

// Conversation reconciles one visible session against the server.
// Switching sessions discards any in-flight fetch for the previous
// session: stale responses are detected by epoch and dropped.
type Conversation struct {
	api *client.Client

	mu      sync.Mutex
	state   State
	session string
	epoch   uint64
	snap    Snapshot
}

func NewConversation(api *client.Client) *Conversation {
	return &Conversation{api: api}
}

// State returns the current lifecycle state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the last reconciled snapshot. Only meaningful in
// StateReady.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Switch selects a session and pulls its state. A Switch while a
// previous fetch is in flight wins: the older fetch's result is
// discarded when it lands.
func (c *Conversation) Switch(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.session = sessionID
	c.state = StateLoading
	c.snap = Snapshot{SessionID: sessionID}
	c.mu.Unlock()

	return c.pull(ctx, sessionID, epoch)
}

// Refresh re-pulls the selected session. Callers use this after
// abandoning an exchange or to observe transcript status changes.
func (c *Conversation) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.session == "" {
		c.mu.Unlock()
		return nil
	}
	c.epoch++
	epoch := c.epoch
	sessionID := c.session
	c.state = StateLoading
	c.mu.Unlock()

	return c.pull(ctx, sessionID, epoch)
}

func (c *Conversation) pull(ctx context.Context, sessionID string, epoch uint64) error {
	s, err := c.api.GetSession(ctx, sessionID)
	if err != nil {
		c.abandon(epoch)
		return err
	}
	msgs, err := c.api.ListMessages(ctx, sessionID)
	if err != nil {
		c.abandon(epoch)
		return err
	}
	ts, err := c.api.ListTranscripts(ctx, sessionID)
	if err != nil {
		c.abandon(epoch)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		// a newer Switch/Refresh superseded this fetch
		return nil
	}
	c.snap = Snapshot{SessionID: sessionID, Title: s.Title, Messages: msgs, Transcripts: ts}
	c.state = StateReady
	return nil
}

// abandon rolls a failed fetch back to idle unless a newer fetch took
// over in the meantime.
func (c *Conversation) abandon(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch == c.epoch && c.state == StateLoading {
		c.state = StateIdle
	}
}

// Exchange runs the two-phase saga against the selected session: store
// the user message, then request the reply. On success both stored
// messages are folded into the snapshot locally. On failure after phase
// one the view re-pulls instead of re-submitting: the user message is
// already durable server-side, and reconciliation is the only safe way
// to show it.
func (c *Conversation) Exchange(ctx context.Context, text string) error {
	c.mu.Lock()
	sessionID := c.session
	epoch := c.epoch
	c.mu.Unlock()
	if sessionID == "" {
		return nil
	}

	userMsg, err := c.api.StoreMessage(ctx, sessionID, text)
	if err != nil {
		// never auto-resubmit; reconcile to pick up whatever landed
		_ = c.Refresh(ctx)
		return err
	}

	_, reply, err := c.api.Talk(ctx, sessionID, text)
	if err != nil {
		// the user message survived phase two; re-pull to show it
		_ = c.Refresh(ctx)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.session != sessionID {
		// user switched away mid-exchange; drop the local fold
		return nil
	}
	c.snap.Messages = append(c.snap.Messages, userMsg, reply)
	return nil
}
