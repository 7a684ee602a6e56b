package view

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/client"
	"smartscribe/pkg/models"
)

// fakeBackend serves just enough of the HTTP surface for the view, with
// a controllable per-session response delay.
type fakeBackend struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	messages map[string][]models.Message
	delays   map[string]time.Duration
	talkFail bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessions: map[string]models.Session{},
		messages: map[string][]models.Message{},
		delays:   map[string]time.Duration{},
	}
}

func (f *fakeBackend) addSession(id, title string, msgs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = models.Session{ID: id, Title: title, UserID: "u1"}
	for i, m := range msgs {
		f.messages[id] = append(f.messages[id], models.Message{
			ID: id + "-m", Session: id, Sender: models.SenderUser, Text: m, TS: int64(i),
		})
	}
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/sessions/")
		f.sleep(id)
		f.mu.Lock()
		s, ok := f.sessions[id]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"session": s})
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var req struct {
				Session string `json:"session_id"`
				Text    string `json:"text"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.mu.Lock()
			m := models.Message{ID: "msg-stored", Session: req.Session, Sender: models.SenderUser, Text: req.Text, TS: 100}
			f.messages[req.Session] = append(f.messages[req.Session], m)
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"message_doc": m})
			return
		}
		id := r.URL.Query().Get("session_id")
		f.sleep(id)
		f.mu.Lock()
		msgs := append([]models.Message{}, f.messages[id]...)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": msgs})
	})
	mux.HandleFunc("/transcripts/by-session", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"transcripts": []models.Transcript{}})
	})
	mux.HandleFunc("/talk", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Session string `json:"session_id"`
			Prompt  string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		fail := f.talkFail
		var reply models.Message
		if !fail {
			// phase two appends only the assistant reply
			reply = models.Message{Session: req.Session, Sender: models.SenderAssistant, Text: "echo: " + req.Prompt, TS: 101}
			f.messages[req.Session] = append(f.messages[req.Session], reply)
		}
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "model down"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": reply.Text, "message": reply})
	})
	return mux
}

func (f *fakeBackend) sleep(id string) {
	f.mu.Lock()
	d := f.delays[id]
	f.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func newView(t *testing.T, f *fakeBackend) *Conversation {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewConversation(client.New(srv.URL))
}

func TestSwitchLoadsSnapshot(t *testing.T) {
	f := newFakeBackend()
	f.addSession("ses-1", "Lecture 1", "hello", "world")
	v := newView(t, f)

	require.Equal(t, StateIdle, v.State())
	require.NoError(t, v.Switch(context.Background(), "ses-1"))
	require.Equal(t, StateReady, v.State())

	snap := v.Snapshot()
	require.Equal(t, "Lecture 1", snap.Title)
	require.Len(t, snap.Messages, 2)
	require.Equal(t, "hello", snap.Messages[0].Text)
}

func TestSwitchDiscardsStaleFetch(t *testing.T) {
	f := newFakeBackend()
	f.addSession("ses-slow", "Slow", "old stuff")
	f.addSession("ses-fast", "Fast", "new stuff")
	f.mu.Lock()
	f.delays["ses-slow"] = 100 * time.Millisecond
	f.mu.Unlock()

	v := newView(t, f)

	done := make(chan error, 1)
	go func() { done <- v.Switch(context.Background(), "ses-slow") }()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, v.Switch(context.Background(), "ses-fast"))

	require.NoError(t, <-done)

	// the slow fetch landed after the switch and must not win
	snap := v.Snapshot()
	require.Equal(t, "ses-fast", snap.SessionID)
	require.Equal(t, "Fast", snap.Title)
	require.Equal(t, "new stuff", snap.Messages[0].Text)
	require.Equal(t, StateReady, v.State())
}

func TestSwitchUnknownSessionSurfacesNotFound(t *testing.T) {
	f := newFakeBackend()
	v := newView(t, f)

	err := v.Switch(context.Background(), "ses-missing")
	require.Error(t, err)
	require.True(t, apperr.IsNotFound(err))
	require.Equal(t, StateIdle, v.State())
}

func TestExchangeFoldsBothMessages(t *testing.T) {
	f := newFakeBackend()
	f.addSession("ses-1", "Lecture 1")
	v := newView(t, f)
	require.NoError(t, v.Switch(context.Background(), "ses-1"))

	require.NoError(t, v.Exchange(context.Background(), "hi"))
	snap := v.Snapshot()
	require.Len(t, snap.Messages, 2)
	require.Equal(t, models.SenderUser, snap.Messages[0].Sender)
	require.Equal(t, "hi", snap.Messages[0].Text)
	require.Equal(t, "msg-stored", snap.Messages[0].ID, "the folded user message is the stored document, not a synthesized one")
	require.Equal(t, "echo: hi", snap.Messages[1].Text)
}

func TestExchangeFailureReconcilesInsteadOfResubmit(t *testing.T) {
	f := newFakeBackend()
	f.addSession("ses-1", "Lecture 1")
	f.mu.Lock()
	f.talkFail = true
	f.mu.Unlock()

	v := newView(t, f)
	require.NoError(t, v.Switch(context.Background(), "ses-1"))

	err := v.Exchange(context.Background(), "hi")
	require.Error(t, err)

	// the view re-pulled: the stored user message is visible, with no
	// duplicate and no assistant reply
	snap := v.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "hi", snap.Messages[0].Text)
	require.Equal(t, StateReady, v.State())
}

func TestRefreshPicksUpServerChanges(t *testing.T) {
	f := newFakeBackend()
	f.addSession("ses-1", "Lecture 1", "first")
	v := newView(t, f)
	require.NoError(t, v.Switch(context.Background(), "ses-1"))
	require.Len(t, v.Snapshot().Messages, 1)

	f.mu.Lock()
	f.messages["ses-1"] = append(f.messages["ses-1"],
		models.Message{Session: "ses-1", Sender: models.SenderAssistant, Text: "late reply", TS: 50})
	f.mu.Unlock()

	require.NoError(t, v.Refresh(context.Background()))
	snap := v.Snapshot()
	require.Len(t, snap.Messages, 2)
	require.Equal(t, "late reply", snap.Messages[1].Text)
}
