package irc

import (
	"fmt"
	"strings"
)

// Prefix is the parsed source of a message: "nick!user@host" for a user, or
// a bare server name (kept in Nick) for the server itself.
type Prefix struct {
	Nick string
	User string
	Host string
}

// Message is a single parsed IRC protocol line.
type Message struct {
	Tags    map[string]string
	Prefix  Prefix
	Command string
	Params  []string
}

// Param returns the i-th parameter or the empty string if it is absent.
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// ParseMessage parses one protocol line (without the trailing CRLF) into a
// Message. The command is normalized to upper case.
func ParseMessage(line string) (*Message, error) {
	m := &Message{}
	rest := line

	if strings.HasPrefix(rest, "@") {
		raw, remainder, found := strings.Cut(rest[1:], " ")
		if !found {
			return nil, fmt.Errorf("message has tags but no command: %q", line)
		}
		m.Tags = parseTags(raw)
		rest = strings.TrimLeft(remainder, " ")
	}

	if strings.HasPrefix(rest, ":") {
		raw, remainder, found := strings.Cut(rest[1:], " ")
		if !found {
			return nil, fmt.Errorf("message has prefix but no command: %q", line)
		}
		m.Prefix = parsePrefix(raw)
		rest = strings.TrimLeft(remainder, " ")
	}

	command, remainder, _ := strings.Cut(rest, " ")
	if command == "" {
		return nil, fmt.Errorf("empty message: %q", line)
	}
	m.Command = strings.ToUpper(command)
	rest = strings.TrimLeft(remainder, " ")

	for rest != "" {
		if strings.HasPrefix(rest, ":") {
			m.Params = append(m.Params, rest[1:])
			break
		}
		param, remainder, _ := strings.Cut(rest, " ")
		m.Params = append(m.Params, param)
		rest = strings.TrimLeft(remainder, " ")
	}

	return m, nil
}

// String serializes the message back to a protocol line (without CRLF).
func (m *Message) String() string {
	var b strings.Builder

	if len(m.Tags) > 0 {
		b.WriteByte('@')
		first := true
		for k, v := range m.Tags {
			if !first {
				b.WriteByte(';')
			}
			first = false
			b.WriteString(k)
			if v != "" {
				b.WriteByte('=')
				b.WriteString(escapeTagValue(v))
			}
		}
		b.WriteByte(' ')
	}

	if m.Prefix != (Prefix{}) {
		b.WriteByte(':')
		b.WriteString(m.Prefix.String())
		b.WriteByte(' ')
	}

	b.WriteString(m.Command)

	for i, p := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 && needsTrailing(p) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}

	return b.String()
}

// String formats the prefix as it appears on the wire.
func (p Prefix) String() string {
	s := p.Nick
	if p.User != "" {
		s += "!" + p.User
	}
	if p.Host != "" {
		s += "@" + p.Host
	}
	return s
}

func parsePrefix(raw string) Prefix {
	var p Prefix
	p.Nick = raw
	if i := strings.IndexByte(p.Nick, '@'); i >= 0 {
		p.Host = p.Nick[i+1:]
		p.Nick = p.Nick[:i]
	}
	if i := strings.IndexByte(p.Nick, '!'); i >= 0 {
		p.User = p.Nick[i+1:]
		p.Nick = p.Nick[:i]
	}
	return p
}

func needsTrailing(param string) bool {
	return param == "" || strings.HasPrefix(param, ":") || strings.ContainsRune(param, ' ')
}

func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, tag := range strings.Split(raw, ";") {
		if tag == "" {
			continue
		}
		key, value, _ := strings.Cut(tag, "=")
		tags[key] = unescapeTagValue(value)
	}
	return tags
}

// Tag value escaping per the IRCv3 message-tags spec.
var (
	tagEscaper   = strings.NewReplacer("\\", "\\\\", ";", "\\:", " ", "\\s", "\r", "\\r", "\n", "\\n")
	tagUnescapes = map[byte]byte{':': ';', 's': ' ', 'r': '\r', 'n': '\n', '\\': '\\'}
)

func escapeTagValue(v string) string {
	return tagEscaper.Replace(v)
}

func unescapeTagValue(v string) string {
	if !strings.ContainsRune(v, '\\') {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i == len(v)-1 {
			b.WriteByte(v[i])
			continue
		}
		i++
		if r, ok := tagUnescapes[v[i]]; ok {
			b.WriteByte(r)
		} else {
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
