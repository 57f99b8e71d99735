// Package ingest drains a streaming generation response into ordered record
// batches while it is still being produced.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forgeclient/internal/metrics"
	"forgeclient/pkg/client"
	"forgeclient/pkg/decoder"
)

// DefaultChunkSize is the maximum number of bytes read per pull
const DefaultChunkSize = 32 << 10

var (
	// ErrAlreadyStarted is returned by Start on a session that already ran
	ErrAlreadyStarted = errors.New("ingestion session already started")
	// ErrSessionActive is returned by Ingestor.Start while a session is in flight
	ErrSessionActive = errors.New("an ingestion session is already active")
	// ErrCancelled is the Result error of a cancelled session
	ErrCancelled = errors.New("ingestion cancelled")
)

// Opener starts a generation stream and returns its body
type Opener interface {
	Open(ctx context.Context, req *client.GenerationConfig) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context, req *client.GenerationConfig) (io.ReadCloser, error)

// Open calls f
func (f OpenerFunc) Open(ctx context.Context, req *client.GenerationConfig) (io.ReadCloser, error) {
	return f(ctx, req)
}

// State is the lifecycle state of a Session
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is a settled state
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Outcome is how a session settled
type Outcome int

const (
	OutcomeCompleted Outcome = iota + 1
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (o Outcome) state() State {
	switch o {
	case OutcomeCompleted:
		return StateCompleted
	case OutcomeFailed:
		return StateFailed
	default:
		return StateCancelled
	}
}

// Batch is the records decoded from a single pull, in arrival order
type Batch struct {
	Seq     int
	Records []decoder.Record
}

// Progress counts what a session delivered so far
type Progress struct {
	Batches int
	Records int
}

// Result is the settled outcome of a session.
// Records and Batches equal the final Progress. Warning carries a trailing
// segment that could not be parsed at end of stream.
type Result struct {
	Outcome Outcome
	Records int
	Batches int
	Err     error
	Warning error
	Skipped int
}

// Handler receives session output. Both callbacks run on the session
// goroutine, one at a time, OnBatch before OnProgress. Either may be nil.
type Handler struct {
	OnBatch    func(Batch)
	OnProgress func(Progress)
}

// Option configures a Session
type Option func(*Session)

// WithChunkSize sets the maximum bytes read per pull
func WithChunkSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithLogger sets the base logger; the session adds its own fields
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// Session is one streaming ingestion from request to settlement
type Session struct {
	id        string
	opener    Opener
	req       *client.GenerationConfig
	handler   Handler
	chunkSize int
	logger    zerolog.Logger

	mu       sync.Mutex
	state    State
	progress Progress
	skipped  int
	result   Result
	started  time.Time
	cancel   context.CancelFunc
	body     io.ReadCloser
	done     chan struct{}
}

// NewSession creates an idle session for req
func NewSession(opener Opener, req *client.GenerationConfig, h Handler, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		opener:    opener,
		req:       req,
		handler:   h,
		chunkSize: DefaultChunkSize,
		logger:    log.Logger,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "ingest").Str("session_id", s.id).Logger()
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Start issues the request and drains the stream in a new goroutine
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateRequesting
	s.started = time.Now()

	metrics.IngestActiveSessions.Inc()
	s.logger.Debug().Msg("Starting ingestion session")

	go s.run(ctx)
	return nil
}

// Cancel aborts the session. It is a no-op once the session settled.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	wasIdle := s.state == StateIdle
	cancel, body := s.cancel, s.body
	s.settleLocked(OutcomeCancelled, ErrCancelled, nil)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		body.Close()
	}
	if !wasIdle {
		s.logger.Info().Msg("Ingestion cancelled")
	}
}

// Done is closed when the session settles
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session settles or ctx is done.
// It returns the Result and its Err.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		r, _ := s.Result()
		return r, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the settled result; ok is false while the session runs
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.state.Terminal()
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the counters delivered so far
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Session) run(ctx context.Context) {
	defer s.cancel()

	body, err := s.opener.Open(ctx, s.req)
	if err != nil {
		s.fail(ctx, fmt.Errorf("open stream: %w", err))
		return
	}
	defer body.Close()

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.body = body
	s.state = StateStreaming
	s.mu.Unlock()

	s.logger.Debug().Msg("Stream opened")

	dec := decoder.New()
	buf := make([]byte, s.chunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			metrics.IngestBytesTotal.Add(float64(n))
			records := dec.Write(buf[:n])
			if !s.deliver(records, dec.Skipped()) {
				dec.Reset()
				return
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			dec.Reset()
			s.fail(ctx, fmt.Errorf("read stream: %w", readErr))
			return
		}
	}

	records, flushErr := dec.Flush()
	if !s.deliver(records, dec.Skipped()) {
		return
	}
	if flushErr != nil {
		s.logger.Warn().Err(flushErr).Msg("Stream ended with an unparsable trailing segment")
	}

	s.mu.Lock()
	s.settleLocked(OutcomeCompleted, nil, flushErr)
	s.mu.Unlock()
}

// deliver records one batch and runs the callbacks. It returns false when
// the session already settled.
func (s *Session) deliver(records []decoder.Record, skipped int) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	if delta := skipped - s.skipped; delta > 0 {
		metrics.IngestMalformedSegmentsTotal.Add(float64(delta))
	}
	s.skipped = skipped
	if len(records) == 0 {
		s.mu.Unlock()
		return true
	}
	s.progress.Batches++
	s.progress.Records += len(records)
	batch := Batch{Seq: s.progress.Batches, Records: records}
	progress := s.progress
	s.mu.Unlock()

	metrics.IngestBatchesTotal.Inc()
	metrics.IngestRecordsTotal.Add(float64(len(records)))

	if s.handler.OnBatch != nil {
		s.handler.OnBatch(batch)
	}
	if s.handler.OnProgress != nil {
		s.handler.OnProgress(progress)
	}
	return true
}

// fail settles as Failed, or as Cancelled when the context was aborted
func (s *Session) fail(ctx context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		s.settleLocked(OutcomeCancelled, ErrCancelled, nil)
		return
	}
	if s.settleLocked(OutcomeFailed, err, nil) {
		s.logger.Error().Err(err).Int("records", s.progress.Records).Msg("Ingestion failed")
	}
}

func (s *Session) settleLocked(outcome Outcome, err, warning error) bool {
	if s.state.Terminal() {
		return false
	}
	wasRunning := s.state != StateIdle
	s.state = outcome.state()
	s.body = nil
	s.result = Result{
		Outcome: outcome,
		Records: s.progress.Records,
		Batches: s.progress.Batches,
		Err:     err,
		Warning: warning,
		Skipped: s.skipped,
	}
	close(s.done)

	metrics.IngestSessionsTotal.WithLabelValues(outcome.String()).Inc()
	if wasRunning {
		metrics.IngestActiveSessions.Dec()
		metrics.IngestSessionDuration.Observe(time.Since(s.started).Seconds())
	}
	if outcome == OutcomeCompleted {
		s.logger.Info().
			Int("records", s.result.Records).
			Int("batches", s.result.Batches).
			Int("skipped", s.result.Skipped).
			Msg("Ingestion completed")
	}
	return true
}
