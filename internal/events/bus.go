/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates schedule lifecycle events.
type EventType string

const (
	EventAwaitingConfirmation EventType = "schedule.awaiting_confirmation"
	EventArmed                EventType = "schedule.armed"
	EventRejected             EventType = "schedule.rejected"
	EventCancelled            EventType = "schedule.cancelled"
	EventFiring               EventType = "schedule.firing"
	EventCompleted            EventType = "schedule.completed"
	EventFailed               EventType = "schedule.failed"
)

// AllEventTypes lists every lifecycle event, in lifecycle order.
var AllEventTypes = []EventType{
	EventAwaitingConfirmation,
	EventArmed,
	EventRejected,
	EventCancelled,
	EventFiring,
	EventCompleted,
	EventFailed,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is implemented by the in-process bus and by distributed buses
// that mirror it.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// SubscribeAll registers one subscriber for every lifecycle event. Release it
// with UnsubscribeAll.
func (b *Bus) SubscribeAll() Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	for _, et := range AllEventTypes {
		b.subs[et] = append(b.subs[et], ch)
	}
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events rather
// than block the publisher.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if payload == nil {
		payload = Payload{}
	}
	if _, ok := payload["type"]; !ok {
		payload["type"] = string(eventType)
	}

	// Unsubscribe closes channels under the write lock, so sends stay under
	// the read lock. They never block.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(eventType, sub)
	close(sub)
}

// UnsubscribeAll removes a subscriber created by SubscribeAll.
func (b *Bus) UnsubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, et := range AllEventTypes {
		b.remove(et, sub)
	}
	close(sub)
}

func (b *Bus) remove(eventType EventType, sub Subscriber) {
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
}

var _ Publisher = (*Bus)(nil)
