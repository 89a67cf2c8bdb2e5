package store

import (
	"time"

	"github.com/jpalmerr/carepulse/statcard"
)

// Card is the stored state of one dashboard card.
//
// Card embeds the card's [statcard.View], so its JSON form is the flattened
// view plus the query key and update time. It is used by the REST API and
// SSE.
type Card struct {
	statcard.View

	// Query is the canonical key of the query feeding the card.
	Query string `json:"query,omitempty"`

	// UpdatedAt is when the card last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for storing and subscribing to card updates.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a card and notifies all subscribers.
	// Cards are keyed by ID, so later updates replace earlier ones.
	Update(card Card)

	// GetAll returns all cards in the order they were first stored.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []Card

	// Subscribe returns a channel that receives card updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Card

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Card)
}
