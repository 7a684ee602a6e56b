// Package client is a Go SDK for the SmartScribe HTTP surface. Errors
// come back as the same taxonomy the server uses internally, so callers
// can branch with apperr predicates instead of status codes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/models"
)

// Client talks to a SmartScribe server.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	// Token is sent as Authorization: Bearer. APIKey/UserID are the
	// trusted-caller alternative.
	Token  string
	APIKey string
	UserID string
}

func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 60 * time.Second}}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, contentType string) (*http.Request, error) {
	var r *bytes.Reader
	if body != nil {
		r = bytes.NewReader(body)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.authorize(req)
	return req, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	} else if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
		if c.UserID != "" {
			req.Header.Set("X-User-ID", c.UserID)
		}
	}
}

// do executes the request and decodes either the expected body or the
// {"error": ...} body into a taxonomy error.
func (c *Client) do(req *http.Request, out interface{}) error {
	res, err := c.HTTP.Do(req)
	if err != nil {
		return apperr.Transport(req.URL.Path, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return decodeErr(req.URL.Path, res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return apperr.Transport(req.URL.Path, fmt.Errorf("invalid response body: %w", err))
	}
	return nil
}

func decodeErr(op string, res *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(res.Body).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = res.Status
	}
	switch res.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return apperr.Validation("request", msg)
	case http.StatusNotFound:
		return apperr.NotFound("resource", msg)
	case http.StatusServiceUnavailable:
		return apperr.Transport(op, fmt.Errorf("%s", msg))
	default:
		return apperr.Upstream(op, fmt.Errorf("%s", msg))
	}
}

// CreateSession creates a session owned by userID.
func (c *Client) CreateSession(ctx context.Context, title, userID string) (models.Session, error) {
	b, _ := json.Marshal(map[string]string{"title": title, "user_id": userID})
	req, err := c.newRequest(ctx, http.MethodPost, "/sessions", b, "application/json")
	if err != nil {
		return models.Session{}, err
	}
	var out struct {
		Session models.Session `json:"session"`
	}
	if err := c.do(req, &out); err != nil {
		return models.Session{}, err
	}
	return out.Session, nil
}

// ListSessions lists the user's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/sessions?user_id="+url.QueryEscape(userID), nil, "")
	if err != nil {
		return nil, err
	}
	var out struct {
		Sessions []models.Session `json:"sessions"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (models.Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, "")
	if err != nil {
		return models.Session{}, err
	}
	var out struct {
		Session models.Session `json:"session"`
	}
	if err := c.do(req, &out); err != nil {
		return models.Session{}, err
	}
	return out.Session, nil
}

// RenameSession is last-writer-wins on the server.
func (c *Client) RenameSession(ctx context.Context, id, title string) (models.Session, error) {
	b, _ := json.Marshal(map[string]string{"title": title})
	req, err := c.newRequest(ctx, http.MethodPatch, "/sessions/"+url.PathEscape(id), b, "application/json")
	if err != nil {
		return models.Session{}, err
	}
	var out struct {
		Session models.Session `json:"session"`
	}
	if err := c.do(req, &out); err != nil {
		return models.Session{}, err
	}
	return out.Session, nil
}

// StoreMessage durably appends a user message without requesting a
// reply. This is phase one of an exchange on its own.
func (c *Client) StoreMessage(ctx context.Context, sessionID, text string) (models.Message, error) {
	b, _ := json.Marshal(map[string]string{"session_id": sessionID, "sender": models.SenderUser, "text": text})
	req, err := c.newRequest(ctx, http.MethodPost, "/messages", b, "application/json")
	if err != nil {
		return models.Message{}, err
	}
	var out struct {
		Message models.Message `json:"message_doc"`
	}
	if err := c.do(req, &out); err != nil {
		return models.Message{}, err
	}
	return out.Message, nil
}

// Talk requests an assistant reply for an already-stored user message.
// This is phase two; a failure here never un-stores phase one.
func (c *Client) Talk(ctx context.Context, sessionID, prompt string) (string, models.Message, error) {
	b, _ := json.Marshal(map[string]string{"session_id": sessionID, "prompt": prompt})
	req, err := c.newRequest(ctx, http.MethodPost, "/talk", b, "application/json")
	if err != nil {
		return "", models.Message{}, err
	}
	var out struct {
		Response string         `json:"response"`
		Message  models.Message `json:"message"`
	}
	if err := c.do(req, &out); err != nil {
		return "", models.Message{}, err
	}
	return out.Response, out.Message, nil
}

// ListMessages returns the session's full ordered message log.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/messages?session_id="+url.QueryEscape(sessionID), nil, "")
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// IngestFile uploads a media file for transcription and returns the
// pending transcript.
func (c *Client) IngestFile(ctx context.Context, sessionID, userID, title, filename string, data []byte) (models.Transcript, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return models.Transcript{}, err
	}
	if _, err := fw.Write(data); err != nil {
		return models.Transcript{}, err
	}
	_ = mw.WriteField("session_id", sessionID)
	_ = mw.WriteField("user_id", userID)
	if title != "" {
		_ = mw.WriteField("title", title)
	}
	if err := mw.Close(); err != nil {
		return models.Transcript{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transcripts", &buf)
	if err != nil {
		return models.Transcript{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)
	var out struct {
		Transcript models.Transcript `json:"transcript"`
	}
	if err := c.do(req, &out); err != nil {
		return models.Transcript{}, err
	}
	return out.Transcript, nil
}

// IngestYouTube submits a YouTube link for transcription and returns
// the pending transcript.
func (c *Client) IngestYouTube(ctx context.Context, sessionID, userID, title, youtubeURL string) (models.Transcript, error) {
	b, _ := json.Marshal(map[string]string{
		"session_id":  sessionID,
		"user_id":     userID,
		"title":       title,
		"youtube_url": youtubeURL,
	})
	req, err := c.newRequest(ctx, http.MethodPost, "/transcripts", b, "application/json")
	if err != nil {
		return models.Transcript{}, err
	}
	var out struct {
		Transcript models.Transcript `json:"transcript"`
	}
	if err := c.do(req, &out); err != nil {
		return models.Transcript{}, err
	}
	return out.Transcript, nil
}

// ListTranscripts returns the session's transcripts with their current
// statuses. Clients poll this to observe pending -> ready|failed.
func (c *Client) ListTranscripts(ctx context.Context, sessionID string) ([]models.Transcript, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/transcripts/by-session?session_id="+url.QueryEscape(sessionID), nil, "")
	if err != nil {
		return nil, err
	}
	var out struct {
		Transcripts []models.Transcript `json:"transcripts"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Transcripts, nil
}
