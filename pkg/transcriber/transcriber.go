// Package transcriber abstracts the external speech-to-text engine that
// turns uploaded media or YouTube audio into text.
package transcriber

import "context"

// Engine is the transcription collaborator at its interface boundary.
// Both calls are long-running; implementations must honor ctx.
type Engine interface {
	// TranscribeFile transcribes raw media bytes. filename is used for
	// format detection hints only.
	TranscribeFile(ctx context.Context, data []byte, filename string) (string, error)
	// TranscribeURL downloads the audio behind a YouTube URL and
	// transcribes it.
	TranscribeURL(ctx context.Context, url string) (string, error)
}
