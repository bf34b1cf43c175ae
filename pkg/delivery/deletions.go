package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beeper/persona-bridge/pkg/metrics"
)

const deleteTimeout = 15 * time.Second

// Deleter removes messages.
type Deleter interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

type pendingDeletion struct {
	timer      *time.Timer
	channelID  string
	messageIDs []string
}

// Scheduler runs delayed message deletions keyed by an arbitrary string.
// Scheduling under a key that already has a pending deletion cancels the old
// one; its message IDs are abandoned, not merged.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*pendingDeletion
	stopped bool
	wg      sync.WaitGroup

	deleter Deleter
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewScheduler creates a deletion scheduler.
func NewScheduler(deleter Deleter, log zerolog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		pending: make(map[string]*pendingDeletion),
		deleter: deleter,
		log:     log.With().Str("component", "deletion_scheduler").Logger(),
		metrics: metrics.OrNop(m),
	}
}

// Schedule deletes messageIDs from channelID after delay, replacing any pending deletion for key.
func (s *Scheduler) Schedule(key, channelID string, messageIDs []string, delay time.Duration) {
	if key == "" || len(messageIDs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.cancelLocked(key)
	entry := &pendingDeletion{channelID: channelID, messageIDs: append([]string(nil), messageIDs...)}
	s.wg.Add(1)
	entry.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.fire(key, entry)
	})
	s.pending[key] = entry
	s.metrics.DeletionsScheduled.Inc()
	s.log.Debug().
		Str("key", key).
		Strs("message_ids", messageIDs).
		Dur("delay", delay).
		Msg("Scheduled message deletion")
}

// Cancel drops the pending deletion for key, if any.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(key)
}

func (s *Scheduler) cancelLocked(key string) bool {
	entry, ok := s.pending[key]
	if !ok {
		return false
	}
	delete(s.pending, key)
	if entry.timer.Stop() {
		s.wg.Done()
	}
	return true
}

// Pending returns the message IDs awaiting deletion under key.
func (s *Scheduler) Pending(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.pending[key]; ok {
		return append([]string(nil), entry.messageIDs...)
	}
	return nil
}

// Len returns the number of pending deletions.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending deletion and waits for running ones to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key := range s.pending {
		s.cancelLocked(key)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) fire(key string, entry *pendingDeletion) {
	s.mu.Lock()
	if s.pending[key] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	for _, messageID := range entry.messageIDs {
		if err := s.deleter.DeleteMessage(ctx, entry.channelID, messageID); err != nil {
			s.metrics.DeletionsExecuted.WithLabelValues("failed").Inc()
			s.log.Warn().Err(err).
				Str("channel_id", entry.channelID).
				Str("message_id", messageID).
				Msg("Failed to delete scheduled message")
			continue
		}
		s.metrics.DeletionsExecuted.WithLabelValues("deleted").Inc()
	}
}
