package learning

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khanglvm/lunar-mcp/internal/models"
	"github.com/khanglvm/lunar-mcp/internal/storage"
)

const (
	// eventQueueSize is the buffer size for the event queue.
	// If full, events are dropped (non-blocking).
	eventQueueSize = 1000

	// batchFlushSize is the number of events that triggers an immediate flush.
	batchFlushSize = 10

	// flushInterval is how often pending events are flushed.
	flushInterval = 50 * time.Millisecond
)

// Tracker writes journal events in the background with non-blocking
// enqueues.
type Tracker struct {
	storage    storage.Storage
	logger     *zap.Logger
	eventQueue chan Event
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	enabled    bool
	dropped    int64
	mu         sync.RWMutex
}

// NewTracker initializes s and starts the background writer. If s fails
// to initialize the tracker starts disabled.
func NewTracker(s storage.Storage, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{
		storage:    s,
		logger:     logger,
		eventQueue: make(chan Event, eventQueueSize),
		stopChan:   make(chan struct{}),
		enabled:    s != nil,
	}

	if s != nil {
		if err := s.Init(); err != nil {
			logger.Warn("journal initialization failed, tracking disabled", zap.Error(err))
			t.enabled = false
		}
	}

	t.wg.Add(1)
	go t.processEvents()

	return t
}

// Track queues an event. If the queue is full the event is dropped.
func (t *Tracker) Track(event Event) {
	if !t.IsEnabled() {
		return
	}

	select {
	case t.eventQueue <- event:
	default:
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
		t.logger.Warn("journal queue full, dropping event", zap.Stringer("kind", event.Kind))
	}
}

// TrackUsage queues a usage record. Its signature matches
// PatternLearner.OnRecord.
func (t *Tracker) TrackUsage(record models.UsageRecord) {
	t.Track(NewUsageEvent(record))
}

// TrackChain queues a finished chain execution.
func (t *Tracker) TrackChain(exec models.ChainExecution) {
	t.Track(NewChainEvent(exec))
}

// Stop flushes queued events and stops the background writer. Later
// events are ignored.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.Disable()
		close(t.stopChan)
		t.wg.Wait()
	})
}

// Disable makes Track ignore events.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
}

// Enable makes Track accept events again, unless the tracker is stopped.
func (t *Tracker) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.stopChan:
		return
	default:
	}
	t.enabled = t.storage != nil
}

// IsEnabled returns whether tracking is enabled.
func (t *Tracker) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Dropped returns how many events were dropped on a full queue.
func (t *Tracker) Dropped() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dropped
}

// QueueLen returns the current number of queued events.
func (t *Tracker) QueueLen() int {
	return len(t.eventQueue)
}

// processEvents runs in the background, batching and flushing events.
func (t *Tracker) processEvents() {
	defer t.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, batchFlushSize)

	for {
		select {
		case event := <-t.eventQueue:
			batch = append(batch, event)
			if len(batch) >= batchFlushSize {
				t.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				t.flush(batch)
				batch = batch[:0]
			}

		case <-t.stopChan:
			// Drain whatever is still queued, then exit.
			for {
				select {
				case event := <-t.eventQueue:
					batch = append(batch, event)
					if len(batch) >= batchFlushSize {
						t.flush(batch)
						batch = batch[:0]
					}
				default:
					t.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of events to storage.
func (t *Tracker) flush(events []Event) {
	if t.storage == nil {
		return
	}
	for _, event := range events {
		if err := event.write(t.storage); err != nil {
			t.logger.Warn("failed to write journal event", zap.Stringer("kind", event.Kind), zap.Error(err))
		}
	}
}
