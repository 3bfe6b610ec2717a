package degradation

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventHandler receives dispatched events. Handlers must not block for long;
// the dispatcher calls them sequentially.
type EventHandler func(event SystemEvent)

// EmergencyCallback is invoked synchronously, on the publishing goroutine,
// when a must-deliver event is dropped. It bypasses the bus entirely.
type EmergencyCallback func(event SystemEvent)

// EventBus is a bounded, non-blocking publish/subscribe channel of
// SystemEvents. Publish never blocks: on overflow the event is counted,
// logged to a fallback JSONL file, and — if critical — routed through the
// emergency callback.
type EventBus struct {
	queue             chan SystemEvent
	fallbackLogPath   string
	log               zerolog.Logger
	mu                sync.Mutex
	subscribers       []EventHandler
	emergencyCallback EmergencyCallback
	dropCount         int64

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// EventBusConfig configures queue capacity and the fallback log location.
type EventBusConfig struct {
	QueueSize       int
	FallbackLogPath string
}

// NewEventBus constructs a bus. Call Start to begin dispatching.
func NewEventBus(cfg EventBusConfig, log zerolog.Logger) *EventBus {
	size := cfg.QueueSize
	if size <= 0 {
		size = 10000
	}
	return &EventBus{
		queue:           make(chan SystemEvent, size),
		fallbackLogPath: cfg.FallbackLogPath,
		log:             log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler invoked by the dispatcher goroutine for
// every event that is successfully queued.
func (b *EventBus) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, handler)
}

// RegisterEmergencyCallback sets the callback invoked synchronously when a
// must-deliver event is dropped.
func (b *EventBus) RegisterEmergencyCallback(cb EmergencyCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emergencyCallback = cb
}

// DropCount returns the number of events dropped due to queue overflow.
func (b *EventBus) DropCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropCount
}

// PendingCount returns the number of events currently queued.
func (b *EventBus) PendingCount() int {
	return len(b.queue)
}

// SubscriberCount returns the number of registered subscribers.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// IsRunning reports whether the dispatcher goroutine is active.
func (b *EventBus) IsRunning() bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.running
}

// Publish enqueues an event without blocking. It returns false if the queue
// was full, in which case the event was dropped: drop_count is incremented,
// a fallback log line is written best-effort, and the emergency callback
// fires synchronously for must-deliver events.
func (b *EventBus) Publish(event SystemEvent) bool {
	select {
	case b.queue <- event:
		return true
	default:
		b.mu.Lock()
		b.dropCount++
		b.mu.Unlock()

		b.writeFallbackLog(event)

		if event.IsCritical() {
			b.localEmergencyDegrade(event)
		}
		return false
	}
}

// Start spawns the dispatcher goroutine. Calling Start twice is a no-op.
func (b *EventBus) Start() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true
	go b.dispatchLoop(ctx)
}

// Stop cancels the dispatcher idempotently and waits for it to exit.
func (b *EventBus) Stop() {
	b.runMu.Lock()
	if !b.running {
		b.runMu.Unlock()
		return
	}
	cancel := b.cancel
	done := b.done
	b.running = false
	b.runMu.Unlock()

	cancel()
	<-done
}

func (b *EventBus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.queue:
			b.notifySubscribers(event)
		case <-ticker.C:
			// wake periodically so Stop's ctx.Done is observed promptly
			// even when the queue is idle.
		}
	}
}

func (b *EventBus) notifySubscribers(event SystemEvent) {
	b.mu.Lock()
	handlers := make([]EventHandler, len(b.subscribers))
	copy(handlers, b.subscribers)
	b.mu.Unlock()

	for _, h := range handlers {
		b.invokeHandler(h, event)
	}
}

func (b *EventBus) invokeHandler(h EventHandler, event SystemEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("reason_code", string(event.ReasonCode)).
				Msg("event subscriber panicked, isolating")
		}
	}()
	h(event)
}

func (b *EventBus) localEmergencyDegrade(event SystemEvent) {
	b.log.Error().
		Str("reason_code", string(event.ReasonCode)).
		Str("source", string(event.Source)).
		Msg("must-deliver event dropped, triggering local emergency degrade")

	b.mu.Lock()
	cb := b.emergencyCallback
	b.mu.Unlock()

	if cb == nil {
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error().Interface("panic", r).Msg("emergency callback panicked")
			}
		}()
		cb(event)
	}()
}

// fallbackRecord is the JSONL shape written for dropped events.
type fallbackRecord struct {
	Reason        string    `json:"drop_reason"`
	EventType     EventType `json:"event_type"`
	Source        string    `json:"source"`
	Severity      Severity  `json:"severity"`
	ReasonCode    string    `json:"reason_code"`
	EventTimeWall time.Time `json:"event_time_wall"`
}

func (b *EventBus) writeFallbackLog(event SystemEvent) {
	if b.fallbackLogPath == "" {
		return
	}
	rec := fallbackRecord{
		Reason:        "QueueFull",
		EventType:     event.EventType,
		Source:        string(event.Source),
		Severity:      event.Severity,
		ReasonCode:    string(event.ReasonCode),
		EventTimeWall: event.EventTimeWall,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line = append(line, '\n')

	f, err := os.OpenFile(b.fallbackLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		b.log.Warn().Err(err).Str("path", b.fallbackLogPath).Msg("failed to open fallback log")
		return
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		b.log.Warn().Err(err).Str("path", b.fallbackLogPath).Msg("failed to write fallback log")
	}
}
