// Package session holds the in-memory message list for the active
// conversation and keeps it a prefix-consistent view of server state:
// every mutation truncates locally first, reconciles over REST, and
// restores the previous state when the server call fails.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmelchner/applyflow/internal/models"
)

// Sentinel errors for session operations.
var (
	// ErrIndexOutOfRange indicates a mutation addressed a message that
	// does not exist.
	ErrIndexOutOfRange = errors.New("message index out of range")

	// ErrNoUserMessage indicates regenerate was called on a
	// conversation with no user message to resubmit.
	ErrNoUserMessage = errors.New("no user message to regenerate from")

	// ErrDeletePending indicates a delete is already awaiting its undo
	// window; it must be cancelled or committed first.
	ErrDeletePending = errors.New("another delete is pending")
)

// MessageAPI is the slice of the REST client the session needs for
// reconciliation.
type MessageAPI interface {
	ListMessages(ctx context.Context, pageID string) ([]models.Message, error)
	UpdateMessage(ctx context.Context, id, content string, cascade bool) error
	DeleteMessage(ctx context.Context, id string, cascade, above bool) error
}

// Session is the ordered message list for one page. All methods are
// safe for concurrent use (the undo timer fires on its own goroutine).
type Session struct {
	api   MessageAPI
	grace time.Duration

	mu      sync.Mutex
	pageID  string
	msgs    []models.Message
	pending *PendingDelete
}

// New creates a session backed by the given API. grace is the undo
// window for scheduled deletes.
func New(api MessageAPI, grace time.Duration) *Session {
	return &Session{api: api, grace: grace}
}

// PageID returns the active page id ("" for a new conversation).
func (s *Session) PageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageID
}

// SetPageID switches the active page without loading history. Used when
// the server reports page_created for a conversation started fresh.
func (s *Session) SetPageID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageID = id
}

// Load replaces the message list with the server's history for pageID.
func (s *Session) Load(ctx context.Context, pageID string) error {
	msgs, err := s.api.ListMessages(ctx, pageID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	s.mu.Lock()
	s.pageID = pageID
	s.msgs = msgs
	s.pending = nil
	s.mu.Unlock()
	return nil
}

// Messages returns a copy of the current list.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// Append adds an incoming message to the list. Consecutive identical
// assistant replies are suppressed; user messages are never deduped.
// Returns false when the message was suppressed.
func (s *Session) Append(m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !m.IsUser && len(s.msgs) > 0 {
		last := s.msgs[len(s.msgs)-1]
		if !last.IsUser && last.Content == m.Content {
			return false
		}
	}
	s.msgs = append(s.msgs, m)
	return true
}

// AppendUser optimistically appends a locally-composed user message and
// returns it. The ID is client-generated.
func (s *Session) AppendUser(content string) models.Message {
	m := models.Message{
		ID:        uuid.NewString(),
		PageID:    s.PageID(),
		Content:   content,
		IsUser:    true,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	return m
}

// AppendAssistant appends an AI reply, applying dedup. Returns the
// stored message and whether it was kept.
func (s *Session) AppendAssistant(content string) (models.Message, bool) {
	m := models.Message{
		ID:        uuid.NewString(),
		PageID:    s.PageID(),
		Content:   content,
		CreatedAt: time.Now(),
	}
	kept := s.Append(m)
	return m, kept
}

// Edit replaces the content of the message at idx and discards
// everything after it, then reconciles with the server (PUT with
// cascade). On failure the previous list is restored.
func (s *Session) Edit(ctx context.Context, idx int, content string) error {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return ErrDeletePending
	}
	if idx < 0 || idx >= len(s.msgs) {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	snapshot := s.snapshotLocked()
	id := s.msgs[idx].ID
	s.msgs[idx].Content = content
	s.msgs = s.msgs[:idx+1]
	s.mu.Unlock()

	if err := s.api.UpdateMessage(ctx, id, content, true); err != nil {
		s.restore(snapshot)
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// Delete removes the message at idx and everything after it. With
// above, the user message directly before it is removed as well. The
// server delete cascades; on failure the previous list is restored.
func (s *Session) Delete(ctx context.Context, idx int, above bool) error {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return ErrDeletePending
	}
	if idx < 0 || idx >= len(s.msgs) {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	snapshot := s.snapshotLocked()
	id := s.msgs[idx].ID
	s.truncateLocked(idx, above)
	s.mu.Unlock()

	if err := s.api.DeleteMessage(ctx, id, true, above); err != nil {
		s.restore(snapshot)
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Regenerate rewinds the conversation to the last user message,
// discarding every reply after it locally and on the server, and
// returns that message's content for resubmission over the socket.
func (s *Session) Regenerate(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return "", ErrDeletePending
	}
	last := -1
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].IsUser {
			last = i
			break
		}
	}
	if last == -1 {
		s.mu.Unlock()
		return "", ErrNoUserMessage
	}
	content := s.msgs[last].Content
	if last == len(s.msgs)-1 {
		// Nothing after the user message; just resubmit.
		s.mu.Unlock()
		return content, nil
	}
	snapshot := s.snapshotLocked()
	tailID := s.msgs[last+1].ID
	s.msgs = s.msgs[:last+1]
	s.mu.Unlock()

	if err := s.api.DeleteMessage(ctx, tailID, true, false); err != nil {
		s.restore(snapshot)
		return "", fmt.Errorf("regenerate: %w", err)
	}
	return content, nil
}

// snapshotLocked copies the current list. Caller must hold s.mu.
func (s *Session) snapshotLocked() []models.Message {
	snap := make([]models.Message, len(s.msgs))
	copy(snap, s.msgs)
	return snap
}

// truncateLocked cuts the list at idx, additionally dropping the user
// message before it when above is set. Caller must hold s.mu.
func (s *Session) truncateLocked(idx int, above bool) {
	cut := idx
	if above && idx > 0 && s.msgs[idx-1].IsUser {
		cut = idx - 1
	}
	s.msgs = s.msgs[:cut]
}

func (s *Session) restore(snapshot []models.Message) {
	s.mu.Lock()
	s.msgs = snapshot
	s.pending = nil
	s.mu.Unlock()
}
