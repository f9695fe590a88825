package domain

import (
	"fmt"
	"strings"
)

// Template is an operator-configured greeting with {nickname} and {channel}
// placeholders. Doubled braces escape to literal braces.
type Template string

// Render substitutes the placeholders. It fails on an unrecognized
// placeholder or an unbalanced brace; callers must treat a failed render as
// a skipped greeting, not a reason to retry.
func (t Template) Render(nickname, channel string) (string, error) {
	var b strings.Builder
	s := string(t)
	b.Grow(len(s) + len(nickname) + len(channel))

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			name := s[i+1 : i+1+end]
			switch name {
			case "nickname":
				b.WriteString(nickname)
			case "channel":
				b.WriteString(channel)
			default:
				return "", fmt.Errorf("unknown placeholder %q", name)
			}
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("unmatched '}' at offset %d", i)
		default:
			b.WriteByte(s[i])
		}
	}

	return b.String(), nil
}
