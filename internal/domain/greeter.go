package domain

import (
	"context"
	"fmt"
	"log/slog"
)

// GreeterOptions collects the collaborators the greeter needs. Fold, IsSelf,
// Sender, and Roster are supplied by the transport layer; Store is the
// durable seen store.
type GreeterOptions struct {
	// Channels maps each monitored channel to its greeting template.
	Channels map[string]string

	Fold   Fold
	IsSelf func(nickname string) bool
	Store  SeenStore
	Sender MessageSender
	Roster RosterView
	Logger *slog.Logger
}

// Greeter is the greet-once decision engine. It consumes join and account
// events, resolves each participant to a durable identity key, and sends at
// most one greeting per (channel, key) pair, backed by the seen store.
type Greeter struct {
	channels map[string]Template // raw channel identifier -> template
	fold     Fold
	isSelf   func(string) bool
	store    SeenStore
	sender   MessageSender
	roster   RosterView
	logger   *slog.Logger
}

// NewGreeter validates the options and creates a Greeter.
func NewGreeter(opts GreeterOptions) (*Greeter, error) {
	if len(opts.Channels) == 0 {
		return nil, fmt.Errorf("at least one monitored channel is required")
	}
	channels := make(map[string]Template, len(opts.Channels))
	for ch, tmpl := range opts.Channels {
		if tmpl == "" {
			return nil, fmt.Errorf("channel %s: greeting template is required", ch)
		}
		channels[ch] = Template(tmpl)
	}
	if opts.Fold == nil || opts.IsSelf == nil {
		return nil, fmt.Errorf("fold and self predicates are required")
	}
	if opts.Store == nil || opts.Sender == nil || opts.Roster == nil {
		return nil, fmt.Errorf("store, sender, and roster are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Greeter{
		channels: channels,
		fold:     opts.Fold,
		isSelf:   opts.IsSelf,
		store:    opts.Store,
		sender:   opts.Sender,
		roster:   opts.Roster,
		logger:   logger,
	}, nil
}

// templateFor returns the greeting template for a casefolded channel
// identifier. Configured channel names are folded at lookup time because the
// network's casemapping is only known after registration.
func (g *Greeter) templateFor(folded string) (Template, bool) {
	for ch, tmpl := range g.channels {
		if g.fold(ch) == folded {
			return tmpl, true
		}
	}
	return "", false
}

// HandleJoin processes a channel join. If the joining participant's identity
// key has not been seen in the channel before, the key is durably recorded
// and a greeting is sent. Returns true if a greeting went out. A store
// failure is returned to the caller and nothing is sent; a render or send
// failure is logged and the committed record stands, so the participant is
// not greeted again on a later join.
func (g *Greeter) HandleJoin(ctx context.Context, ev *JoinEvent) (bool, error) {
	if g.isSelf(ev.Nickname) {
		return false, nil
	}

	channel := g.fold(ev.Channel)
	tmpl, ok := g.templateFor(channel)
	if !ok {
		return false, nil
	}

	key := IdentityKey(g.fold, ev.Account, ev.Username, ev.Hostname)

	// The record must be committed before the greeting is sent: a crash
	// between the two may swallow one greeting but never duplicates it.
	inserted, err := g.store.InsertIfAbsent(ctx, channel, key)
	if err != nil {
		return false, fmt.Errorf("record seen key %q in %s: %w", key, channel, err)
	}
	if !inserted {
		return false, nil
	}

	text, err := tmpl.Render(ev.Nickname, channel)
	if err != nil {
		g.logger.Error("failed to render greeting", "channel", channel, "error", err)
		return false, nil
	}

	if err := g.sender.SendMessage(channel, text); err != nil {
		g.logger.Error("failed to send greeting", "channel", channel, "nickname", ev.Nickname, "error", err)
		return false, nil
	}

	g.logger.Info("greeted participant", "channel", channel, "nickname", ev.Nickname, "key", key)
	return true, nil
}

// HandleAccount processes an account login. The participant has already been
// greeted (or is about to be) in every monitored channel they currently
// occupy, so this never sends anything; it records the account-based key for
// those channels so that a later part-and-rejoin under the account does not
// look like a new participant. Logouts are ignored.
func (g *Greeter) HandleAccount(ctx context.Context, ev *AccountEvent) error {
	if g.isSelf(ev.Nickname) || ev.LoggedOut() {
		return nil
	}

	account := g.fold(ev.Account)
	occupied := g.roster.ChannelsOccupiedBy(ev.Nickname)

	for ch := range g.channels {
		channel := g.fold(ch)
		if _, ok := occupied[channel]; !ok {
			continue
		}

		inserted, err := g.store.InsertIfAbsent(ctx, channel, account)
		if err != nil {
			return fmt.Errorf("backfill account %q in %s: %w", account, channel, err)
		}
		if inserted {
			g.logger.Info("backfilled account key", "channel", channel, "nickname", ev.Nickname, "account", account)
		}
	}

	return nil
}
