package models

type Session struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// UserID is an opaque identity id issued by the identity gate; the
	// server never interprets it beyond ownership checks.
	UserID string `json:"user_id"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns) - bumped on rename
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}
