package store

import (
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Cards are keyed by ID and keep the position of their first insert, so
// dashboards render in configuration order.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber to prevent blocking the entire system.
type MemoryStore struct {
	mu          sync.RWMutex
	cards       map[string]Card
	order       []string
	subscribers map[chan Card]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:       make(map[string]Card),
		subscribers: make(map[chan Card]struct{}),
	}
}

// Update stores a [Card] and notifies all subscribers.
func (m *MemoryStore) Update(card Card) {
	m.mu.Lock()
	if _, exists := m.cards[card.ID]; !exists {
		m.order = append(m.order, card.ID)
	}
	m.cards[card.ID] = card
	m.mu.Unlock()

	m.notifySubscribers(card)
}

// Get returns the card with the given ID.
func (m *MemoryStore) Get(id string) (Card, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	card, ok := m.cards[id]
	return card, ok
}

// GetAll returns a snapshot of all cards in first-insert order.
func (m *MemoryStore) GetAll() []Card {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cards := make([]Card, 0, len(m.order))
	for _, id := range m.order {
		cards = append(cards, m.cards[id])
	}
	return cards
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Card {
	ch := make(chan Card, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Card) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the card to all active subscribers without
// blocking; a full subscriber misses the update.
func (m *MemoryStore) notifySubscribers(card Card) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- card:
		default:
			// subscriber is slow, drop the message
		}
	}
}
