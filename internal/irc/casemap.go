package irc

import "strings"

// Casemap identifies the casefolding rules a network advertises via the
// ISUPPORT CASEMAPPING token. Under the RFC 1459 mappings the characters
// {}|~ are the lower-case forms of []\^, a holdover from the protocol's
// Scandinavian origins; treating them as distinct would split one identity
// into two store keys.
type Casemap int

const (
	// CasemapRFC1459 folds A-Z plus []\^ to a-z plus {}|~. This is the
	// default when a server advertises nothing.
	CasemapRFC1459 Casemap = iota

	// CasemapStrictRFC1459 is RFC1459 without the ^/~ pair.
	CasemapStrictRFC1459

	// CasemapASCII folds A-Z only.
	CasemapASCII
)

// CasemapByName maps an ISUPPORT CASEMAPPING value to a Casemap. Unknown
// values report ok=false and fall back to RFC 1459.
func CasemapByName(name string) (Casemap, bool) {
	switch strings.ToLower(name) {
	case "rfc1459":
		return CasemapRFC1459, true
	case "strict-rfc1459":
		return CasemapStrictRFC1459, true
	case "ascii":
		return CasemapASCII, true
	}
	return CasemapRFC1459, false
}

// Fold returns the canonical casefolded form of s. It is the single
// normalization applied to every channel, nickname, and account name used
// as a comparison or store key.
func (c Casemap) Fold(s string) string {
	folded := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case 'A' <= ch && ch <= 'Z':
			ch += 'a' - 'A'
		case ch == '[' && c != CasemapASCII:
			ch = '{'
		case ch == ']' && c != CasemapASCII:
			ch = '}'
		case ch == '\\' && c != CasemapASCII:
			ch = '|'
		case ch == '^' && c == CasemapRFC1459:
			ch = '~'
		}
		folded[i] = ch
	}
	return string(folded)
}
