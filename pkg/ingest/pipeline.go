package ingest

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/logger"
	"smartscribe/pkg/models"
	"smartscribe/pkg/store"
	"smartscribe/pkg/telemetry"
	"smartscribe/pkg/transcriber"
)

// Pipeline accepts transcription requests, records a pending transcript
// and hands the job to the worker pool. The caller gets the pending
// transcript back immediately; status moves to ready or failed
// out-of-band.
type Pipeline struct {
	Queue   *Queue
	Engine  transcriber.Engine
	Workers int
}

func NewPipeline(q *Queue, engine transcriber.Engine, workers int) *Pipeline {
	if workers <= 0 {
		workers = 2
	}
	return &Pipeline{Queue: q, Engine: engine, Workers: workers}
}

// IngestFile records a pending transcript for an uploaded media file and
// enqueues it for transcription. An empty title defaults to the upload
// file name.
func (p *Pipeline) IngestFile(ctx context.Context, sessionID, userID, title, filename string, data []byte) (models.Transcript, error) {
	if sessionID == "" {
		return models.Transcript{}, apperr.Validation("session_id", "required")
	}
	if userID == "" {
		return models.Transcript{}, apperr.Validation("user_id", "required")
	}
	if len(data) == 0 {
		return models.Transcript{}, apperr.Validation("file", "empty upload")
	}
	if title == "" {
		title = filename
	}
	t, err := p.record(sessionID, userID, title, models.SourceFile)
	if err != nil {
		return models.Transcript{}, err
	}
	job := &Job{Kind: KindFile, Transcript: t.ID, Session: sessionID, UserID: userID, Title: title, Filename: filename, Payload: data}
	if err := p.enqueue(ctx, job, t.ID); err != nil {
		return models.Transcript{}, err
	}
	return t, nil
}

// IngestYouTube records a pending transcript for a YouTube link and
// enqueues it for transcription. An empty title defaults to the URL.
func (p *Pipeline) IngestYouTube(ctx context.Context, sessionID, userID, title, rawURL string) (models.Transcript, error) {
	if sessionID == "" {
		return models.Transcript{}, apperr.Validation("session_id", "required")
	}
	if userID == "" {
		return models.Transcript{}, apperr.Validation("user_id", "required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return models.Transcript{}, apperr.Validation("url", "invalid url")
	}
	if title == "" {
		title = rawURL
	}
	t, err := p.record(sessionID, userID, title, models.SourceYouTube)
	if err != nil {
		return models.Transcript{}, err
	}
	job := &Job{Kind: KindYouTube, Transcript: t.ID, Session: sessionID, UserID: userID, Title: title, URL: rawURL}
	if err := p.enqueue(ctx, job, t.ID); err != nil {
		return models.Transcript{}, err
	}
	return t, nil
}

func (p *Pipeline) record(sessionID, userID, title, source string) (models.Transcript, error) {
	// session must exist before we attach a transcript to it
	if _, err := store.GetSession(sessionID); err != nil {
		return models.Transcript{}, err
	}
	now := time.Now().UTC().UnixNano()
	t := models.Transcript{
		ID:        uuid.NewString(),
		Session:   sessionID,
		UserID:    userID,
		Title:     title,
		Source:    source,
		Status:    models.TranscriptPending,
		CreatedTS: now,
		UpdatedTS: now,
	}
	if err := store.SaveTranscript(t); err != nil {
		return models.Transcript{}, err
	}
	telemetry.TranscriptsTotal.WithLabelValues(models.TranscriptPending).Inc()
	return t, nil
}

func (p *Pipeline) enqueue(ctx context.Context, job *Job, transcriptID string) error {
	if err := p.Queue.TryEnqueue(job); err != nil {
		// record the rejection so the client is not left with a
		// transcript stuck in pending
		if ferr := store.FailTranscript(transcriptID, "ingest queue full"); ferr != nil {
			logger.Error("ingest_fail_record_error", "transcript", transcriptID, "error", ferr)
		}
		telemetry.TranscriptsTotal.WithLabelValues(models.TranscriptFailed).Inc()
		return err
	}
	telemetry.IngestQueueDepth.Set(float64(p.Queue.Len()))
	logger.Info("transcript_enqueued", "transcript", transcriptID, "kind", string(job.Kind), "session", job.Session)
	return nil
}

// Run starts the worker pool and blocks until ctx is cancelled and the
// workers have drained.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.Workers; i++ {
		g.Go(func() error {
			p.Queue.RunWorker(ctx, func(job *Job) error {
				return p.process(ctx, job)
			})
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) process(ctx context.Context, job *Job) error {
	defer telemetry.IngestQueueDepth.Set(float64(p.Queue.Len()))

	var text string
	var err error
	switch job.Kind {
	case KindFile:
		text, err = p.Engine.TranscribeFile(ctx, job.Payload, job.Filename)
	case KindYouTube:
		text, err = p.Engine.TranscribeURL(ctx, job.URL)
	default:
		err = apperr.Validation("kind", "unknown job kind")
	}
	if err != nil {
		logger.Warn("transcription_failed", "transcript", job.Transcript, "kind", string(job.Kind), "error", err)
		if ferr := store.FailTranscript(job.Transcript, err.Error()); ferr != nil {
			logger.Error("transcript_fail_record_error", "transcript", job.Transcript, "error", ferr)
			return ferr
		}
		telemetry.TranscriptsTotal.WithLabelValues(models.TranscriptFailed).Inc()
		return err
	}
	if err := store.CompleteTranscript(job.Transcript, text); err != nil {
		logger.Error("transcript_complete_error", "transcript", job.Transcript, "error", err)
		return err
	}
	telemetry.TranscriptsTotal.WithLabelValues(models.TranscriptReady).Inc()
	logger.Info("transcript_ready", "transcript", job.Transcript, "session", job.Session, "bytes", len(text))
	return nil
}
