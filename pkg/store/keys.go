package store

import "fmt"

// Key layout:
//
//	session:<id>:meta                      session metadata
//	session:<id>:msg:<ts20>-<seq6>         message log, iteration order = append order
//	session:<id>:transcript:<tid>          transcript membership index
//	user:<uid>:session:<id>                session ownership index
//	transcript:<tid>:meta                  transcript record
func sessionMetaKey(sessionID string) []byte {
	return []byte("session:" + sessionID + ":meta")
}

func userSessionKey(userID, sessionID string) []byte {
	return []byte("user:" + userID + ":session:" + sessionID)
}

func transcriptMetaKey(transcriptID string) []byte {
	return []byte("transcript:" + transcriptID + ":meta")
}

func sessionTranscriptKey(sessionID, transcriptID string) []byte {
	return []byte("session:" + sessionID + ":transcript:" + transcriptID)
}

// MsgKey builds the sortable message key for a session. The zero-padded
// nanosecond timestamp plus a write sequence keeps iteration order equal
// to append order even when timestamps collide.
func MsgKey(sessionID string, ts int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("session:%s:msg:%020d-%06d", sessionID, ts, seq))
}
