package ingest

import (
	"context"
	"sync"

	"forgeclient/pkg/client"
)

// Ingestor runs at most one ingestion session at a time
type Ingestor struct {
	opener Opener
	opts   []Option

	mu     sync.Mutex
	active *Session
}

// NewIngestor creates an Ingestor whose sessions share opener and opts
func NewIngestor(opener Opener, opts ...Option) *Ingestor {
	return &Ingestor{opener: opener, opts: opts}
}

// Start begins a new session for req. It returns ErrSessionActive while the
// previous session has not settled.
func (i *Ingestor) Start(ctx context.Context, req *client.GenerationConfig, h Handler) (*Session, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.active != nil {
		if _, settled := i.active.Result(); !settled {
			return nil, ErrSessionActive
		}
	}

	s := NewSession(i.opener, req, h, i.opts...)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	i.active = s
	return s, nil
}

// Active returns the most recently started session, or nil
func (i *Ingestor) Active() *Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// Cancel cancels the active session, if any
func (i *Ingestor) Cancel() {
	if s := i.Active(); s != nil {
		s.Cancel()
	}
}
