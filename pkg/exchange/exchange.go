// Package exchange implements the two-phase message exchange. Phase one
// (StoreUserMessage) durably appends the user's words; phase two (Talk)
// requests and appends the assistant reply. The phases are independent
// calls: a reply failure never disturbs an already-stored user message,
// and Talk never stores user text.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/logger"
	"smartscribe/pkg/models"
	"smartscribe/pkg/responder"
	"smartscribe/pkg/store"
	"smartscribe/pkg/telemetry"
	"smartscribe/pkg/utils"
	"smartscribe/pkg/validation"
)

// Options bound how much conversation history and transcript context is
// packed into a single prompt.
type Options struct {
	HistoryLimit    int
	MaxContextBytes int
}

// Exchanger coordinates message appends and assistant replies. At most
// one reply is generated per session at a time; concurrent Talk calls
// for the same session queue behind the per-session lock, so assistant
// messages land in request order even under misbehaving callers.
type Exchanger struct {
	Engine responder.Engine
	Opts   Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(engine responder.Engine, opts Options) *Exchanger {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.MaxContextBytes <= 0 {
		opts.MaxContextBytes = 64 * 1024
	}
	return &Exchanger{Engine: engine, Opts: opts, locks: make(map[string]*sync.Mutex)}
}

func (e *Exchanger) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	return l
}

// StoreUserMessage validates and durably appends a user message. This is
// phase one of an exchange and also serves the plain message append
// operation.
func (e *Exchanger) StoreUserMessage(sessionID, text string) (models.Message, error) {
	m := models.Message{
		ID:      utils.GenMessageID(),
		Session: sessionID,
		Sender:  models.SenderUser,
		Text:    text,
		TS:      time.Now().UTC().UnixNano(),
	}
	if err := validation.ValidateMessage(m); err != nil {
		return models.Message{}, err
	}
	if _, err := store.GetSession(sessionID); err != nil {
		return models.Message{}, err
	}
	if err := store.AppendMessage(m); err != nil {
		return models.Message{}, err
	}
	telemetry.MessagesTotal.WithLabelValues(models.SenderUser).Inc()
	return m, nil
}

// Talk is phase two on its own: request a reply for the prompt and
// append it as an assistant message. The caller is expected to have
// stored the user message already; Talk never writes user text, so a
// failure here leaves the log exactly as the caller left it.
func (e *Exchanger) Talk(ctx context.Context, sessionID, prompt string) (models.Message, error) {
	if strings.TrimSpace(prompt) == "" {
		return models.Message{}, apperr.Validation("prompt", "is required")
	}

	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := store.GetSession(sessionID); err != nil {
		return models.Message{}, err
	}

	reply, err := e.requestReply(ctx, sessionID, prompt)
	if err != nil {
		telemetry.ExchangesTotal.WithLabelValues("failed").Inc()
		logger.Warn("exchange_reply_failed", "session", sessionID, "error", err)
		return models.Message{}, err
	}

	assistantMsg := models.Message{
		ID:      utils.GenMessageID(),
		Session: sessionID,
		Sender:  models.SenderAssistant,
		Text:    reply,
		TS:      time.Now().UTC().UnixNano(),
	}
	if err := store.AppendMessage(assistantMsg); err != nil {
		telemetry.ExchangesTotal.WithLabelValues("failed").Inc()
		return models.Message{}, err
	}
	telemetry.MessagesTotal.WithLabelValues(models.SenderAssistant).Inc()
	telemetry.ExchangesTotal.WithLabelValues("ok").Inc()
	return assistantMsg, nil
}

func (e *Exchanger) requestReply(ctx context.Context, sessionID, question string) (string, error) {
	if e.Engine == nil {
		return "", apperr.Upstream("assistant_reply", fmt.Errorf("no responder configured"))
	}
	history, err := e.buildHistory(sessionID)
	if err != nil {
		return "", err
	}
	ctxText, err := e.buildContext(sessionID)
	if err != nil {
		return "", err
	}
	return e.Engine.Generate(ctx, responder.Prompt{Question: question, History: history, Context: ctxText})
}

// buildHistory returns the most recent messages as "sender: text" lines,
// oldest first. A caller that stored its user message before calling
// Talk sees that message as the last line.
func (e *Exchanger) buildHistory(sessionID string) ([]string, error) {
	msgs, err := store.ListMessages(sessionID, e.Opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Sender+": "+m.Text)
	}
	return lines, nil
}

// buildContext concatenates ready transcripts for the session, newest
// material trimmed to fit the byte budget.
func (e *Exchanger) buildContext(sessionID string) (string, error) {
	ts, err := store.ListSessionTranscripts(sessionID)
	if err != nil {
		return "", err
	}
	var b []byte
	for _, t := range ts {
		if t.Status != models.TranscriptReady || t.OriginalText == "" {
			continue
		}
		if len(b) > 0 {
			b = append(b, "\n\n"...)
		}
		b = append(b, "["+t.Title+"]\n"...)
		b = append(b, t.OriginalText...)
		if len(b) >= e.Opts.MaxContextBytes {
			b = b[:e.Opts.MaxContextBytes]
			break
		}
	}
	return string(b), nil
}
