// Package session holds per-client document sets and their retrieval
// indexes. A Session moves from Created to Uploaded to Processed; its index is
// built off to the side and swapped in atomically, so concurrent chats see
// either the previous index or the new one, never a partial build.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/54b3r/pdfchat-go/internal/logging"
	"github.com/54b3r/pdfchat-go/internal/rag"
)

var (
	// ErrNotFound is returned for an unknown or deleted session.
	ErrNotFound = errors.New("session: not found")

	// ErrNotReady is returned when chatting with a session that has no index.
	ErrNotReady = errors.New("session: not processed")

	// ErrEmptyDocumentSet is returned when processing a session that has no
	// documents, or whose documents contain no text.
	ErrEmptyDocumentSet = errors.New("session: no documents to process")
)

// State is a session's lifecycle stage.
type State int

const (
	StateCreated State = iota
	StateUploaded
	StateProcessed
)

// String returns the wire name of s.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateUploaded:
		return "uploaded"
	case StateProcessed:
		return "processed"
	default:
		return "unknown"
	}
}

// Document is one uploaded document's extracted text.
type Document struct {
	Name string
	Text string
}

// BuildFunc builds an index over docs. It must not retain docs.
type BuildFunc func(ctx context.Context, docs []Document) (rag.Index, error)

// Info is a point-in-time snapshot of a session.
type Info struct {
	ID             string
	State          State
	Documents      int
	Pending        int
	Chunks         int
	DocumentNames  []string
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Session is one client's isolated document set and index.
// All methods are safe for concurrent use.
type Session struct {
	id        string
	createdAt time.Time
	now       func() time.Time

	// lastAccess is the unix-nano time of the last Store.Get.
	lastAccess atomic.Int64

	// processMu serialises Process calls.
	processMu sync.Mutex

	// mu guards the fields below.
	mu      sync.Mutex
	state   State
	pending []Document
	corpus  []Document
	closed  bool

	index atomic.Pointer[indexHandle]
}

func newSession(id string, now func() time.Time) *Session {
	t := now()
	s := &Session{id: id, createdAt: t, now: now, state: StateCreated}
	s.lastAccess.Store(t.UnixNano())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) touch() { s.lastAccess.Store(s.now().UnixNano()) }

func (s *Session) lastAccessed() time.Time { return time.Unix(0, s.lastAccess.Load()) }

// AddDocuments appends docs to the pending set. Either every document is
// added or none is. A processed session keeps serving its current index
// until the next Process.
func (s *Session) AddDocuments(docs ...Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotFound
	}
	s.pending = append(s.pending, docs...)
	if s.state != StateProcessed {
		s.state = StateUploaded
	}
	return nil
}

// Process rebuilds the index from every document the session has seen and
// swaps it in. On failure the session is unchanged. It returns the number of
// chunks in the new index.
func (s *Session) Process(ctx context.Context, build BuildFunc) (int, error) {
	s.processMu.Lock()
	defer s.processMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrNotFound
	}
	docs := make([]Document, 0, len(s.corpus)+len(s.pending))
	docs = append(docs, s.corpus...)
	docs = append(docs, s.pending...)
	consumed := len(s.pending)
	s.mu.Unlock()

	if len(docs) == 0 {
		return 0, ErrEmptyDocumentSet
	}

	idx, err := build(ctx, docs)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = idx.Close(context.WithoutCancel(ctx))
		return 0, ErrNotFound
	}
	s.corpus = docs
	// Uploads that arrived during the build stay pending for the next run.
	s.pending = slices.Clone(s.pending[consumed:])
	s.state = StateProcessed
	old := s.index.Swap(&indexHandle{idx: idx})
	s.mu.Unlock()

	if old != nil {
		old.retire(context.WithoutCancel(ctx))
	}
	return idx.Len(), nil
}

// Retrieve runs fn against the current index. The index cannot be closed
// while fn runs; fn should only query it and return.
func (s *Session) Retrieve(ctx context.Context, fn func(rag.Index) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := s.index.Load()
		if h == nil {
			if s.Closed() {
				return ErrNotFound
			}
			return ErrNotReady
		}
		if h.acquire() {
			err := fn(h.idx)
			h.release()
			return err
		}
		// h was retired between Load and acquire; the replacement (or nil)
		// is already published.
	}
}

// Chunks returns the chunks of the current index in build order.
func (s *Session) Chunks(ctx context.Context) ([]rag.Chunk, error) {
	var out []rag.Chunk
	err := s.Retrieve(ctx, func(idx rag.Index) error {
		out = idx.Chunks()
		return nil
	})
	return out, err
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	names := make([]string, 0, len(s.corpus)+len(s.pending))
	for _, d := range s.corpus {
		names = append(names, d.Name)
	}
	for _, d := range s.pending {
		names = append(names, d.Name)
	}
	info := Info{
		ID:             s.id,
		State:          s.state,
		Documents:      len(names),
		Pending:        len(s.pending),
		DocumentNames:  names,
		CreatedAt:      s.createdAt,
		LastAccessedAt: s.lastAccessed(),
	}
	s.mu.Unlock()

	if h := s.index.Load(); h != nil {
		info.Chunks = h.idx.Len()
	}
	return info
}

// Closed reports whether the session has been deleted or swept. It does not
// count as an access.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close drops the session's documents and releases its index.
func (s *Session) close(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	s.corpus = nil
	h := s.index.Swap(nil)
	s.mu.Unlock()

	if h != nil {
		h.retire(ctx)
	}
}

// indexHandle guards an index against being closed while readers use it.
type indexHandle struct {
	mu     sync.RWMutex
	idx    rag.Index
	closed bool
}

func (h *indexHandle) acquire() bool {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return false
	}
	return true
}

func (h *indexHandle) release() { h.mu.RUnlock() }

// retire waits for in-flight readers, then closes the index.
func (h *indexHandle) retire(ctx context.Context) {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	if err := h.idx.Close(ctx); err != nil {
		logging.FromContext(ctx).Warn("failed to release index", slog.Any("error", err))
	}
}
