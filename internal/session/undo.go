package session

import (
	"context"
	"sync"
	"time"

	"github.com/jmelchner/applyflow/internal/models"
)

// commitTimeout bounds the REST call made when an undo window expires.
const commitTimeout = 30 * time.Second

// PendingDelete is a delete awaiting its undo window. The local list is
// already truncated; Cancel within the window restores it without any
// server call, expiry commits the delete over REST (restoring on
// failure).
type PendingDelete struct {
	s        *Session
	onResult func(error)

	id       string
	above    bool
	snapshot []models.Message

	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

// ScheduleDelete truncates the list at idx immediately and arms the
// undo timer. onResult, if non-nil, is called with the outcome when the
// window expires (nil on success); it is not called after Cancel.
// Only one delete may be pending at a time.
func (s *Session) ScheduleDelete(idx int, above bool, onResult func(error)) (*PendingDelete, error) {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return nil, ErrDeletePending
	}
	if idx < 0 || idx >= len(s.msgs) {
		s.mu.Unlock()
		return nil, ErrIndexOutOfRange
	}
	pd := &PendingDelete{
		s:        s,
		onResult: onResult,
		id:       s.msgs[idx].ID,
		above:    above,
		snapshot: s.snapshotLocked(),
	}
	s.truncateLocked(idx, above)
	s.pending = pd
	s.mu.Unlock()

	pd.mu.Lock()
	pd.timer = time.AfterFunc(s.grace, pd.commit)
	pd.mu.Unlock()
	return pd, nil
}

// Cancel restores the list if the window has not expired yet. Reports
// whether the delete was actually undone. No server call is made.
func (pd *PendingDelete) Cancel() bool {
	pd.mu.Lock()
	if pd.done {
		pd.mu.Unlock()
		return false
	}
	pd.done = true
	pd.timer.Stop()
	pd.mu.Unlock()

	pd.s.restore(pd.snapshot)
	return true
}

// commit performs the REST delete once the undo window has expired.
func (pd *PendingDelete) commit() {
	pd.mu.Lock()
	if pd.done {
		pd.mu.Unlock()
		return
	}
	pd.done = true
	pd.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	err := pd.s.api.DeleteMessage(ctx, pd.id, true, pd.above)
	if err != nil {
		pd.s.restore(pd.snapshot)
	} else {
		pd.s.mu.Lock()
		pd.s.pending = nil
		pd.s.mu.Unlock()
	}
	if pd.onResult != nil {
		pd.onResult(err)
	}
}
