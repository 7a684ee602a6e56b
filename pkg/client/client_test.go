package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/models"
)

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestErrorBodiesDecodeIntoTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusBadRequest, apperr.IsValidation, "validation"},
		{http.StatusUnauthorized, apperr.IsValidation, "unauthorized"},
		{http.StatusNotFound, apperr.IsNotFound, "not found"},
		{http.StatusBadGateway, apperr.IsUpstream, "upstream"},
		{http.StatusServiceUnavailable, apperr.IsTransport, "transport"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
			})
			_, err := c.GetSession(context.Background(), "ses-1")
			require.Error(t, err)
			require.True(t, tc.check(err), "status %d mapped to %T", tc.status, err)
			require.Contains(t, err.Error(), "boom")
		})
	}
}

func TestUnreachableServerIsTransportError(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, err := c.ListSessions(context.Background(), "u1")
	require.Error(t, err)
	require.True(t, apperr.IsTransport(err))
}

func TestBearerTokenSent(t *testing.T) {
	var gotAuth string
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"sessions": []models.Session{}})
	})
	c.Token = "tok-123"
	_, err := c.ListSessions(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-123", gotAuth)
}

func TestAPIKeyAndUserIDSent(t *testing.T) {
	var gotKey, gotUser string
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotUser = r.Header.Get("X-User-ID")
		_ = json.NewEncoder(w).Encode(map[string]any{"sessions": []models.Session{}})
	})
	c.APIKey = "key-1"
	c.UserID = "u1"
	_, err := c.ListSessions(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "key-1", gotKey)
	require.Equal(t, "u1", gotUser)
}

func TestStoreMessageDecodesMessageDoc(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"session_id":"ses-1","sender":"user","text":"hi"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message_doc": models.Message{ID: "msg-1", Session: "ses-1", Sender: models.SenderUser, Text: "hi"},
		})
	})
	msg, err := c.StoreMessage(context.Background(), "ses-1", "hi")
	require.NoError(t, err)
	require.Equal(t, "msg-1", msg.ID)
	require.Equal(t, models.SenderUser, msg.Sender)
}

func TestTalkDecodesResponseAndMessage(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/talk", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"session_id":"ses-1","prompt":"hi"}`, string(body))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": "hello there",
			"message":  models.Message{ID: "msg-1", Session: "ses-1", Sender: models.SenderAssistant, Text: "hello there"},
		})
	})
	text, msg, err := c.Talk(context.Background(), "ses-1", "hi")
	require.NoError(t, err)
	require.Equal(t, "hello there", text)
	require.Equal(t, "msg-1", msg.ID)
}

func TestIngestFileBuildsMultipart(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "ses-1", r.FormValue("session_id"))
		require.Equal(t, "u1", r.FormValue("user_id"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		require.Equal(t, "a.mp3", hdr.Filename)
		data, _ := io.ReadAll(f)
		require.Equal(t, "audio", string(data))
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transcript": models.Transcript{ID: "tr-1", Status: models.TranscriptPending, Title: "a.mp3"},
		})
	})
	tr, err := c.IngestFile(context.Background(), "ses-1", "u1", "", "a.mp3", []byte("audio"))
	require.NoError(t, err)
	require.Equal(t, models.TranscriptPending, tr.Status)
}
