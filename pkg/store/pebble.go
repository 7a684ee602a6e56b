// Package store persists sessions, their append-only message logs and
// transcript records in a Pebble database. Writes within a session are
// serialized by key construction: message keys embed a monotone
// timestamp+sequence pair so prefix iteration always yields the
// append-only total order.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/logger"
	"smartscribe/pkg/models"
)

var db *pebble.DB

// seq reduces key collisions when multiple messages share the same
// nanosecond timestamp.
var seq uint64

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpened() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// SaveSession writes the session metadata and the ownership index entry.
// It is also the rename path: a rename is a single overwrite of the meta
// key, last writer wins.
func SaveSession(s models.Session) error {
	if db == nil {
		return notOpened()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set(sessionMetaKey(s.ID), data, nil); err != nil {
		return err
	}
	if s.UserID != "" {
		if err := b.Set(userSessionKey(s.UserID, s.ID), []byte(s.ID), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("save_session_failed", "session", s.ID, "error", err)
		return err
	}
	logger.Info("session_saved", "session", s.ID, "user", s.UserID)
	return nil
}

// GetSession returns the session for id, or a NotFoundError.
func GetSession(id string) (models.Session, error) {
	var s models.Session
	if db == nil {
		return s, notOpened()
	}
	v, closer, err := db.Get(sessionMetaKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return s, apperr.NotFound("session", id)
		}
		return s, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &s); err != nil {
		return s, fmt.Errorf("invalid session metadata: %w", err)
	}
	return s, nil
}

// ListSessions returns every session owned by userID, most recently
// created first. The order is stable across calls absent mutation.
func ListSessions(userID string) ([]models.Session, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("user:" + userID + ":session:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Session
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		id := string(iter.Value())
		s, gerr := GetSession(id)
		if gerr != nil {
			// index entry without meta; skip rather than fail the listing
			logger.Warn("session_index_dangling", "session", id, "error", gerr)
			continue
		}
		out = append(out, s)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS > out[j].CreatedTS })
	return out, nil
}

// AppendMessage appends a message to its session's log. The caller must
// have verified the session exists; the key's timestamp+sequence pair
// makes the append position total and irrevocable.
func AppendMessage(m models.Message) error {
	if db == nil {
		return notOpened()
	}
	if m.TS == 0 {
		m.TS = time.Now().UTC().UnixNano()
	}
	s := atomic.AddUint64(&seq, 1)
	key := MsgKey(m.Session, m.TS, s)
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("append_message_failed", "session", m.Session, "key", string(key), "error", err)
		return err
	}
	logger.Info("message_appended", "session", m.Session, "msg_id", m.ID, "sender", m.Sender)
	return nil
}

// ListMessages returns all messages for a session in append order. A
// positive limit keeps only the most recent messages.
func ListMessages(sessionID string, limit int) ([]models.Message, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("session:" + sessionID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid message at %s: %w", iter.Key(), err)
		}
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// SaveTranscript writes a transcript record and its session index entry.
func SaveTranscript(t models.Transcript) error {
	if db == nil {
		return notOpened()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set(transcriptMetaKey(t.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(sessionTranscriptKey(t.Session, t.ID), []byte(t.ID), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("save_transcript_failed", "transcript", t.ID, "error", err)
		return err
	}
	logger.Info("transcript_saved", "transcript", t.ID, "session", t.Session, "status", t.Status)
	return nil
}

// GetTranscript returns the transcript for id, or a NotFoundError.
func GetTranscript(id string) (models.Transcript, error) {
	var t models.Transcript
	if db == nil {
		return t, notOpened()
	}
	v, closer, err := db.Get(transcriptMetaKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return t, apperr.NotFound("transcript", id)
		}
		return t, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &t); err != nil {
		return t, fmt.Errorf("invalid transcript record: %w", err)
	}
	return t, nil
}

// ListSessionTranscripts returns all transcripts attached to a session,
// oldest first.
func ListSessionTranscripts(sessionID string) ([]models.Transcript, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("session:" + sessionID + ":transcript:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Transcript
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		t, gerr := GetTranscript(string(iter.Value()))
		if gerr != nil {
			logger.Warn("transcript_index_dangling", "transcript", string(iter.Value()), "error", gerr)
			continue
		}
		out = append(out, t)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS < out[j].CreatedTS })
	return out, nil
}

// CompleteTranscript moves a pending transcript to ready and stores its
// text. The transition is monotone: anything but pending is rejected.
func CompleteTranscript(id, text string) error {
	return transitionTranscript(id, models.TranscriptReady, func(t *models.Transcript) {
		t.OriginalText = text
	})
}

// FailTranscript moves a pending transcript to failed with a reason.
func FailTranscript(id, reason string) error {
	return transitionTranscript(id, models.TranscriptFailed, func(t *models.Transcript) {
		t.Error = reason
	})
}

// transitionMu serializes the read-check-write below so concurrent
// callers (a worker completing, the janitor failing) cannot both
// observe pending and overwrite each other's terminal state.
var transitionMu sync.Mutex

func transitionTranscript(id, status string, mutate func(*models.Transcript)) error {
	if db == nil {
		return notOpened()
	}
	transitionMu.Lock()
	defer transitionMu.Unlock()
	t, err := GetTranscript(id)
	if err != nil {
		return err
	}
	if t.Status != models.TranscriptPending {
		return fmt.Errorf("transcript %s is %s; cannot transition to %s", id, t.Status, status)
	}
	t.Status = status
	t.UpdatedTS = time.Now().UTC().UnixNano()
	mutate(&t)
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	if err := db.Set(transcriptMetaKey(id), data, pebble.Sync); err != nil {
		logger.Error("transcript_transition_failed", "transcript", id, "status", status, "error", err)
		return err
	}
	logger.Info("transcript_transitioned", "transcript", id, "status", status)
	return nil
}

// ListPendingTranscripts returns every transcript still in the pending
// state. Used by the retention janitor.
func ListPendingTranscripts() ([]models.Transcript, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("transcript:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Transcript
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var t models.Transcript
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		if t.Status == models.TranscriptPending {
			out = append(out, t)
		}
	}
	return out, iter.Error()
}
