// Package events implements C8, the in-process progress bus: a fan-out
// publish/subscribe over agent.progress and agent.task envelopes, keyed by
// session and subscriber, with no persistence (spec.md §4.7).
package events

import (
	"sync"

	"github.com/plugincraft/forge/pkg/shared/types"
)

// SubscriberKey identifies one subscription per spec.md §4.7's
// (userId, subscriberId) pairing, scoped to one session.
type SubscriberKey struct {
	UserID       string
	SubscriberID string
	SessionID    string
}

// Subscription is the channel-based handle returned by Subscribe.
type Subscription struct {
	Progress <-chan types.ProgressEvent
	Task     <-chan types.TaskEvent
	key      SubscriberKey
	bus      *Bus
}

// Close unregisters the subscription and closes its channels.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.key)
}

type subscriber struct {
	key      SubscriberKey
	progress chan types.ProgressEvent
	task     chan types.TaskEvent
}

// Bus is a process-local publish/subscribe fan-out. A given sessionId's
// publish order is preserved across its subscribers (testable property 1
// depends on this: progress observed per session is non-decreasing).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[SubscriberKey]*subscriber
	bufferSize  int
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[SubscriberKey]*subscriber),
		bufferSize:  64,
	}
}

// Subscribe registers a new subscriber filtered to sessionID.
func (b *Bus) Subscribe(userID, subscriberID, sessionID string) *Subscription {
	key := SubscriberKey{UserID: userID, SubscriberID: subscriberID, SessionID: sessionID}
	sub := &subscriber{
		key:      key,
		progress: make(chan types.ProgressEvent, b.bufferSize),
		task:     make(chan types.TaskEvent, b.bufferSize),
	}

	b.mu.Lock()
	b.subscribers[key] = sub
	b.mu.Unlock()

	return &Subscription{Progress: sub.progress, Task: sub.task, key: key, bus: b}
}

func (b *Bus) unsubscribe(key SubscriberKey) {
	b.mu.Lock()
	sub, ok := b.subscribers[key]
	if ok {
		delete(b.subscribers, key)
	}
	b.mu.Unlock()
	if ok {
		close(sub.progress)
		close(sub.task)
	}
}

// PublishProgress fans an agent.progress envelope out to every subscriber
// of ev.SessionID. Sends are non-blocking: a slow subscriber drops events
// rather than stalling the publisher, matching the bus's "best effort,
// no persistence" contract.
func (b *Bus) PublishProgress(ev types.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for key, sub := range b.subscribers {
		if key.SessionID != ev.SessionID {
			continue
		}
		select {
		case sub.progress <- ev:
		default:
		}
	}
}

// PublishTask fans an agent.task envelope out to every subscriber of
// ev.SessionID.
func (b *Bus) PublishTask(ev types.TaskEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for key, sub := range b.subscribers {
		if key.SessionID != ev.SessionID {
			continue
		}
		select {
		case sub.task <- ev:
		default:
		}
	}
}

// CloseSession unsubscribes and closes every subscriber for sessionID,
// called by the orchestrator when it closes a session.
func (b *Bus) CloseSession(sessionID string) {
	b.mu.Lock()
	var keys []SubscriberKey
	for key := range b.subscribers {
		if key.SessionID == sessionID {
			keys = append(keys, key)
		}
	}
	b.mu.Unlock()

	for _, key := range keys {
		b.unsubscribe(key)
	}
}
