package domain

// IdentityKey derives the durable identity key for a participant. When the
// participant is authenticated the key is the casefolded account name, which
// survives reconnects and hostname changes. Otherwise it falls back to
// "username@hostname", the most stable identity a bare connection offers.
func IdentityKey(fold Fold, account, username, hostname string) string {
	if account != NoAccount && account != "" {
		return fold(account)
	}
	return fold(username) + "@" + fold(hostname)
}
