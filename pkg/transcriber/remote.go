package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"smartscribe/pkg/apperr"
)

// Remote talks to a transcription service over HTTP. The service
// exposes POST /transcribe (multipart file) and POST /transcribe/url
// (JSON) and answers {"text": ...} or {"error": ...}.
type Remote struct {
	BaseURL string
	HTTP    *http.Client
}

// NewRemote returns a Remote with the given request timeout. Jobs can
// run for minutes; the timeout should be generous.
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Remote{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

func (r *Remote) TranscribeFile(ctx context.Context, data []byte, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/transcribe", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return r.send(req, "transcribe_file")
}

func (r *Remote) TranscribeURL(ctx context.Context, url string) (string, error) {
	b, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/transcribe/url", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.send(req, "transcribe_url")
}

func (r *Remote) send(req *http.Request, op string) (string, error) {
	res, err := r.HTTP.Do(req)
	if err != nil {
		return "", apperr.Transport(op, err)
	}
	defer res.Body.Close()
	var out struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", apperr.Upstream(op, fmt.Errorf("invalid engine response: %w", err))
	}
	if res.StatusCode >= 400 || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = res.Status
		}
		return "", apperr.Upstream(op, fmt.Errorf("%s", msg))
	}
	return out.Text, nil
}
