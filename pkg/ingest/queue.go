package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// Kind identifies the source of a transcription job.
type Kind string

const (
	KindFile    Kind = "file"
	KindYouTube Kind = "youtube"
)

// Job is a lightweight in-memory representation of a transcription job
// destined for the worker pool. Payload may be backed by a pooled
// ByteBuffer; consumers must call Item.Done() when finished.
type Job struct {
	Kind       Kind
	Transcript string
	Session    string
	UserID     string
	Title      string
	// URL holds the source URL for KindYouTube jobs.
	URL string
	// Filename is the original upload name for KindFile jobs.
	Filename string
	// Payload holds the raw upload bytes for KindFile jobs (may be nil).
	Payload []byte
	// EnqSeq is a monotonic enqueue sequence assigned when the job is
	// accepted into the in-memory queue.
	EnqSeq uint64
}

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("ingest queue full")

// Item wraps a Job and owns a pooled ByteBuffer if one was used.
// Consumers MUST call Done() exactly once after processing the item to
// return pooled resources.
type Item struct {
	Job *Job

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

// Done releases internal pooled resources (buffer + job) back to the pool.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			// avoid retaining huge buffers in the pool
			if cap(it.buf.B) > maxPooledBuffer {
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		// clear slice header to avoid retention
		if it.Job != nil {
			it.Job.Payload = nil
			jobPool.Put(it.Job)
			it.Job = nil
		}
		itemPool.Put(it)
	})
}

// Queue is a bounded in-memory queue feeding the transcription worker
// pool. It is safe for concurrent producers. Consumers should range over
// Out() or use RunWorker.
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
}

var jobPool = sync.Pool{New: func() any { return &Job{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer controls the largest buffer size that will be returned
// to the pooled ByteBuffer. Larger buffers are dropped so GC can reclaim
// the underlying arrays.
var maxPooledBuffer = 4 * 1024 * 1024 // 4 MiB

var enqSeq uint64

// NewQueue creates a new bounded Queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

// Out returns a read-only channel that consumers can range over to
// receive queued items. Do not close it from callers.
func (q *Queue) Out() <-chan *Item { return q.ch }

func (q *Queue) wrap(job *Job) *Item {
	newJob := jobPool.Get().(*Job)
	*newJob = *job
	newJob.EnqSeq = atomic.AddUint64(&enqSeq, 1)

	var bb *bytebufferpool.ByteBuffer
	if len(job.Payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], job.Payload...)
		newJob.Payload = bb.B[:len(job.Payload)]
	}
	it := itemPool.Get().(*Item)
	*it = Item{Job: newJob, buf: bb}
	return it
}

func (q *Queue) release(it *Item) {
	atomic.AddUint64(&q.dropped, 1)
	it.Done()
}

// TryEnqueue attempts to enqueue a job by copying payload into a pooled
// buffer. If the queue is full ErrQueueFull is returned and the caller
// may choose to reject the upload.
func (q *Queue) TryEnqueue(job *Job) error {
	it := q.wrap(job)
	select {
	case q.ch <- it:
		return nil
	default:
		q.release(it)
		return ErrQueueFull
	}
}

// Enqueue blocks until space is available or the provided context is
// done. Returns ctx.Err() if the context expires.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	it := q.wrap(job)
	select {
	case q.ch <- it:
		return nil
	case <-ctx.Done():
		q.release(it)
		return ctx.Err()
	}
}

// Close stops intake. Running workers keep consuming until the queue is
// empty, then exit; callers must not enqueue after Close.
func (q *Queue) Close() {
	close(q.ch)
}

// Drain discards whatever is still queued, releasing pooled resources.
// Call after Close when no worker is left to consume the remainder.
func (q *Queue) Drain() {
	for it := range q.ch {
		it.Done()
	}
}

// CloseAndDrain closes the queue channel and discards remaining items.
func (q *Queue) CloseAndDrain() {
	q.Close()
	q.Drain()
}

// RunWorker runs a worker loop that invokes handler for each dequeued
// job. It guarantees Item.Done() is called even if handler returns an
// error. The worker exits when ctx is cancelled or the queue is closed.
func (q *Queue) RunWorker(ctx context.Context, handler func(*Job) error) {
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return
			}
			func(it *Item) {
				defer it.Done()
				_ = handler(it.Job)
			}(it)
		case <-ctx.Done():
			return
		}
	}
}

// Len returns the current number of items in the queue.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity of the queue.
func (q *Queue) Cap() int { return q.capacity }

// Dropped returns the number of jobs rejected due to a full queue or
// context cancellation during enqueue.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
