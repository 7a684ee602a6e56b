package models

// Transcript source kinds.
const (
	SourceFile    = "file"
	SourceYouTube = "youtube_url"
)

// Transcript statuses. Status is monotone: pending -> ready or
// pending -> failed, never back.
const (
	TranscriptPending = "pending"
	TranscriptReady   = "ready"
	TranscriptFailed  = "failed"
)

// Transcript is text derived from an uploaded media file or a YouTube
// link, attached to a session. It is created in the pending state and
// populated out-of-band by the ingestion workers.
type Transcript struct {
	ID      string `json:"id"`
	Session string `json:"session_id"`
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Source  string `json:"source"`
	// OriginalText is set when the transcript reaches the ready state.
	OriginalText string `json:"original_text,omitempty"`
	Status       string `json:"status"`
	// Error carries the failure reason when status is failed.
	Error     string `json:"error,omitempty"`
	CreatedTS int64  `json:"created_ts,omitempty"`
	UpdatedTS int64  `json:"updated_ts,omitempty"`
}
