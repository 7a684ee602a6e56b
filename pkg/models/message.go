package models

// Sender values for Message.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is one turn in a session's conversation. Messages are immutable
// once created; the store only ever appends them.
type Message struct {
	ID      string `json:"id"`
	Session string `json:"session_id"`
	Sender  string `json:"sender"`
	Text    string `json:"text"`
	TS      int64  `json:"ts"`
}
