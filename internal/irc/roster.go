package irc

// Roster tracks which channels each nickname currently occupies, keyed by
// casefolded identifiers. It is fed from the connection's read loop and
// queried from the same goroutine, so it carries no locking.
type Roster struct {
	fold func(string) string

	// folded nickname -> set of folded channels
	members map[string]map[string]struct{}
}

// NewRoster creates an empty roster using the given casefolding function.
func NewRoster(fold func(string) string) *Roster {
	return &Roster{
		fold:    fold,
		members: make(map[string]map[string]struct{}),
	}
}

// Join records a nickname as present in a channel.
func (r *Roster) Join(nickname, channel string) {
	nick := r.fold(nickname)
	channels, ok := r.members[nick]
	if !ok {
		channels = make(map[string]struct{}, 1)
		r.members[nick] = channels
	}
	channels[r.fold(channel)] = struct{}{}
}

// Part removes a nickname from a channel.
func (r *Roster) Part(nickname, channel string) {
	nick := r.fold(nickname)
	channels, ok := r.members[nick]
	if !ok {
		return
	}
	delete(channels, r.fold(channel))
	if len(channels) == 0 {
		delete(r.members, nick)
	}
}

// Quit removes a nickname from every channel.
func (r *Roster) Quit(nickname string) {
	delete(r.members, r.fold(nickname))
}

// Rename moves a nickname's membership to a new nickname.
func (r *Roster) Rename(oldNick, newNick string) {
	from := r.fold(oldNick)
	channels, ok := r.members[from]
	if !ok {
		return
	}
	delete(r.members, from)
	r.members[r.fold(newNick)] = channels
}

// DropChannel forgets a channel entirely, used when the bot itself leaves
// and can no longer observe its membership.
func (r *Roster) DropChannel(channel string) {
	folded := r.fold(channel)
	for nick, channels := range r.members {
		delete(channels, folded)
		if len(channels) == 0 {
			delete(r.members, nick)
		}
	}
}

// Clear forgets everything, used on reconnect.
func (r *Roster) Clear() {
	r.members = make(map[string]map[string]struct{})
}

// ChannelsOccupiedBy returns a snapshot of the folded channel identifiers
// the nickname occupies.
func (r *Roster) ChannelsOccupiedBy(nickname string) map[string]struct{} {
	channels := r.members[r.fold(nickname)]
	snapshot := make(map[string]struct{}, len(channels))
	for ch := range channels {
		snapshot[ch] = struct{}{}
	}
	return snapshot
}
