package domain

import "context"

// Fold maps an identifier (channel, nickname, or account name) to its
// canonical casefolded form under the network's advertised casemapping.
// The same function must be used for every identifier that ends up as a
// store key; protocol casemapping is not plain ASCII lowering.
type Fold func(string) string

// SeenStore is the durable set of (channel, identity key) pairs that have
// already been greeted.
type SeenStore interface {
	// Exists reports whether the pair has been recorded.
	Exists(ctx context.Context, channel, key string) (bool, error)

	// InsertIfAbsent records the pair if it is not already present and
	// reports whether a new record was created. The check and insert are
	// atomic: under concurrent callers exactly one receives true.
	InsertIfAbsent(ctx context.Context, channel, key string) (bool, error)
}

// RosterView exposes the transport layer's channel membership bookkeeping.
type RosterView interface {
	// ChannelsOccupiedBy returns the set of canonical channel identifiers
	// the given nickname is currently known to occupy.
	ChannelsOccupiedBy(nickname string) map[string]struct{}
}

// MessageSender delivers a channel message. Sends are best-effort from the
// greeter's point of view.
type MessageSender interface {
	SendMessage(channel, text string) error
}
