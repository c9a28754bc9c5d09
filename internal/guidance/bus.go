package guidance

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationKind says what changed.
type NotificationKind string

const (
	NotifyPhase   NotificationKind = "phase"
	NotifyStep    NotificationKind = "step"
	NotifyTargets NotificationKind = "targets"
	NotifyHint    NotificationKind = "hint"
)

var allKinds = []NotificationKind{NotifyPhase, NotifyStep, NotifyTargets, NotifyHint}

// Notification tells observers the orchestrator state changed. Snapshot is
// the state right after the change.
type Notification struct {
	ID        string
	Timestamp time.Time
	Kind      NotificationKind
	Snapshot  Snapshot
}

// Bus fans notifications out to subscribers. Publishing never blocks: a
// subscriber that falls behind misses notifications, and the next one it
// receives carries the full current state anyway.
type Bus struct {
	logger      *zap.Logger
	mu          sync.RWMutex
	subscribers map[NotificationKind][]chan Notification
	bufferSize  int
	isShutdown  bool
	dropped     int
}

// NewBus creates a bus whose subscriber channels hold bufferSize
// notifications.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Bus{
		logger:      logger.Named("guidance_bus"),
		subscribers: make(map[NotificationKind][]chan Notification),
		bufferSize:  bufferSize,
	}
}

// Publish delivers a notification to every subscriber of its kind.
func (b *Bus) Publish(kind NotificationKind, snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isShutdown {
		return
	}
	subs := b.subscribers[kind]
	if len(subs) == 0 {
		return
	}
	msg := Notification{ID: uuid.NewString(), Timestamp: time.Now().UTC(), Kind: kind, Snapshot: snap}
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			b.dropped++
			b.logger.Debug("Subscriber is behind, dropping notification.", zap.String("kind", string(kind)))
		}
	}
}

// Subscribe returns a channel receiving the given kinds, all kinds when
// none are named, and a function that cancels the subscription.
func (b *Bus) Subscribe(kinds ...NotificationKind) (<-chan Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isShutdown {
		closed := make(chan Notification)
		close(closed)
		return closed, func() {}
	}
	if len(kinds) == 0 {
		kinds = allKinds
	}
	ch := make(chan Notification, b.bufferSize)
	subscribed := append([]NotificationKind(nil), kinds...)
	for _, k := range subscribed {
		b.subscribers[k] = append(b.subscribers[k], ch)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.isShutdown {
				return
			}
			for _, k := range subscribed {
				subs := b.subscribers[k]
				for i, c := range subs {
					if c == ch {
						b.subscribers[k] = append(subs[:i:i], subs[i+1:]...)
						break
					}
				}
				if len(b.subscribers[k]) == 0 {
					delete(b.subscribers, k)
				}
			}
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Bus) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Shutdown closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isShutdown {
		return
	}
	b.isShutdown = true
	unique := make(map[chan Notification]struct{})
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			unique[ch] = struct{}{}
		}
	}
	for ch := range unique {
		close(ch)
	}
	b.subscribers = make(map[NotificationKind][]chan Notification)
	b.logger.Debug("Guidance bus shut down.", zap.Int("subscribers", len(unique)))
}
