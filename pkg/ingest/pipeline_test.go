package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/models"
	"smartscribe/pkg/store"
)

type fakeSTT struct {
	mu    sync.Mutex
	calls []string
	fail  bool
	delay time.Duration
}

func (f *fakeSTT) TranscribeFile(_ context.Context, data []byte, filename string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "file:"+filename)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		return "", apperr.Upstream("transcribe_file", fmt.Errorf("engine exploded"))
	}
	return fmt.Sprintf("text of %s (%d bytes)", filename, len(data)), nil
}

func (f *fakeSTT) TranscribeURL(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "url:"+url)
	f.mu.Unlock()
	if f.fail {
		return "", apperr.Upstream("transcribe_url", fmt.Errorf("engine exploded"))
	}
	return "text of " + url, nil
}

func setup(t *testing.T) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })
	now := time.Now().UTC().UnixNano()
	require.NoError(t, store.SaveSession(models.Session{
		ID: "ses-1", Title: "t", UserID: "u1", CreatedTS: now, UpdatedTS: now,
	}))
}

// runPipeline starts workers and returns a stopper that waits for drain.
func runPipeline(t *testing.T, p *Pipeline) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func waitStatus(t *testing.T, id, want string) models.Transcript {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tr, err := store.GetTranscript(id)
		require.NoError(t, err)
		if tr.Status == want {
			return tr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("transcript %s never reached %s", id, want)
	return models.Transcript{}
}

func TestIngestFileCompletesOutOfBand(t *testing.T) {
	setup(t)
	eng := &fakeSTT{}
	p := NewPipeline(NewQueue(16), eng, 1)
	stop := runPipeline(t, p)
	defer stop()

	tr, err := p.IngestFile(context.Background(), "ses-1", "u1", "", "lecture.mp3", []byte("audio-bytes"))
	require.NoError(t, err)
	require.Equal(t, models.TranscriptPending, tr.Status, "caller sees pending immediately")
	require.Equal(t, "lecture.mp3", tr.Title, "default title is the file name")
	require.Equal(t, models.SourceFile, tr.Source)

	got := waitStatus(t, tr.ID, models.TranscriptReady)
	require.Contains(t, got.OriginalText, "lecture.mp3")
	require.Empty(t, got.Error)
}

func TestIngestYouTubeDefaultTitleIsURL(t *testing.T) {
	setup(t)
	eng := &fakeSTT{}
	p := NewPipeline(NewQueue(16), eng, 1)
	stop := runPipeline(t, p)
	defer stop()

	const link = "https://youtube.com/watch?v=abc123"
	tr, err := p.IngestYouTube(context.Background(), "ses-1", "u1", "", link)
	require.NoError(t, err)
	require.Equal(t, link, tr.Title)
	require.Equal(t, models.SourceYouTube, tr.Source)

	waitStatus(t, tr.ID, models.TranscriptReady)
}

func TestIngestExplicitTitleWins(t *testing.T) {
	setup(t)
	p := NewPipeline(NewQueue(16), &fakeSTT{}, 1)
	stop := runPipeline(t, p)
	defer stop()

	tr, err := p.IngestFile(context.Background(), "ses-1", "u1", "My Lecture", "x.mp3", []byte("a"))
	require.NoError(t, err)
	require.Equal(t, "My Lecture", tr.Title)
}

func TestIngestFailureIsRecordedNotRetried(t *testing.T) {
	setup(t)
	eng := &fakeSTT{fail: true}
	p := NewPipeline(NewQueue(16), eng, 1)
	stop := runPipeline(t, p)
	defer stop()

	tr, err := p.IngestFile(context.Background(), "ses-1", "u1", "", "bad.mp3", []byte("a"))
	require.NoError(t, err)

	got := waitStatus(t, tr.ID, models.TranscriptFailed)
	require.Contains(t, got.Error, "engine exploded")
	require.Empty(t, got.OriginalText)

	// failure is terminal; no second engine call happens
	time.Sleep(50 * time.Millisecond)
	eng.mu.Lock()
	defer eng.mu.Unlock()
	require.Len(t, eng.calls, 1)
}

func TestIngestValidation(t *testing.T) {
	setup(t)
	p := NewPipeline(NewQueue(16), &fakeSTT{}, 1)

	_, err := p.IngestFile(context.Background(), "ses-1", "u1", "", "x.mp3", nil)
	require.True(t, apperr.IsValidation(err), "empty upload: %v", err)

	_, err = p.IngestFile(context.Background(), "ses-1", "", "", "x.mp3", []byte("a"))
	require.True(t, apperr.IsValidation(err), "missing user: %v", err)

	_, err = p.IngestYouTube(context.Background(), "ses-1", "u1", "", "not a url")
	require.True(t, apperr.IsValidation(err), "invalid url: %v", err)

	_, err = p.IngestFile(context.Background(), "ses-missing", "u1", "", "x.mp3", []byte("a"))
	require.True(t, apperr.IsNotFound(err), "unknown session: %v", err)
}

func TestQueueFullFailsTranscript(t *testing.T) {
	setup(t)
	// single slot, no workers draining
	p := NewPipeline(NewQueue(1), &fakeSTT{}, 1)

	_, err := p.IngestFile(context.Background(), "ses-1", "u1", "", "a.mp3", []byte("a"))
	require.NoError(t, err)

	tr, err := p.IngestFile(context.Background(), "ses-1", "u1", "", "b.mp3", []byte("b"))
	require.ErrorIs(t, err, ErrQueueFull)
	require.Empty(t, tr.ID)

	// the rejected upload's record is failed, not stuck pending
	all, err := store.ListSessionTranscripts("ses-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	var failed int
	for _, x := range all {
		if x.Status == models.TranscriptFailed {
			failed++
			require.Contains(t, x.Error, "queue full")
		}
	}
	require.Equal(t, 1, failed)
}

func TestConcurrentIngestionIndependentTranscripts(t *testing.T) {
	setup(t)
	eng := &fakeSTT{delay: 5 * time.Millisecond}
	p := NewPipeline(NewQueue(64), eng, 4)
	stop := runPipeline(t, p)
	defer stop()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr, err := p.IngestFile(context.Background(), "ses-1", "u1", "", fmt.Sprintf("f%d.mp3", i), []byte("a"))
			require.NoError(t, err)
			ids[i] = tr.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		waitStatus(t, id, models.TranscriptReady)
	}
}
