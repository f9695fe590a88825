package domain

// NoAccount is the sentinel the protocol uses in place of an account name
// when a participant is not authenticated (extended-join) or has logged out
// (account-notify).
const NoAccount = "*"

// JoinEvent is delivered when a participant joins a channel.
type JoinEvent struct {
	// Channel is the raw channel identifier as received from the server.
	Channel string

	// Nickname is the joining participant's display nickname.
	Nickname string

	// Account is the participant's services account name, or NoAccount if
	// they were not authenticated at join time.
	Account string

	// Username is the connection-level username from the hostmask.
	Username string

	// Hostname is the connection-level hostname from the hostmask.
	Hostname string
}

// AccountEvent is delivered when a participant logs in to or out of a
// services account.
type AccountEvent struct {
	// Nickname is the participant's display nickname.
	Nickname string

	// Account is the new account name, or NoAccount on logout.
	Account string
}

// LoggedOut reports whether the event represents a logout rather than a
// login.
func (e *AccountEvent) LoggedOut() bool {
	return e.Account == NoAccount || e.Account == ""
}
