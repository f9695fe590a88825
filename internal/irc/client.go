package irc

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"welcomebot/internal/domain"
)

const reconnectDelay = 5 * time.Second

// capabilities requested from the server when offered. extended-join puts
// the account name on JOIN lines; account-notify delivers login/logout
// events for users sharing a channel with us.
var wantedCaps = []string{"account-notify", "extended-join"}

// Options configures a Client.
type Options struct {
	// Server is either "host:port" for a plain or TLS TCP connection, or a
	// ws:// / wss:// URL for a WebSocket gateway.
	Server string

	// TLS wraps the TCP connection in TLS. Ignored for WebSocket URLs,
	// where the scheme decides.
	TLS bool

	Nickname string
	Username string
	Realname string

	// SASLUsername and SASLPassword enable SASL PLAIN authentication
	// during registration when both are set.
	SASLUsername string
	SASLPassword string

	// Channels are joined after registration and monitored for joins.
	Channels []string

	Logger *slog.Logger
}

// EventHandler consumes the membership and account events the client
// observes on its monitored channels. Errors are logged by the client; they
// do not terminate the connection.
type EventHandler interface {
	HandleJoin(ctx context.Context, ev *domain.JoinEvent) (bool, error)
	HandleAccount(ctx context.Context, ev *domain.AccountEvent) error
}

// Client maintains a connection to one network: it registers, negotiates
// capabilities, keeps the channel roster, and feeds parsed events to the
// handler. It implements the casefold, self-nickname, roster, and send
// collaborator contracts the greet engine expects.
type Client struct {
	opts    Options
	logger  *slog.Logger
	handler EventHandler
	roster  *Roster

	writeMu sync.Mutex
	conn    lineConn

	// per-connection protocol state, touched only from the read loop
	casemap     Casemap
	nick        string
	capsOffered map[string]struct{}
}

// NewClient creates a client. SetHandler must be called before Run.
func NewClient(opts Options) *Client {
	if opts.Username == "" {
		opts.Username = opts.Nickname
	}
	if opts.Realname == "" {
		opts.Realname = opts.Nickname
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		opts:    opts,
		logger:  logger,
		casemap: CasemapRFC1459,
		nick:    opts.Nickname,
	}
	c.roster = NewRoster(c.Fold)
	return c
}

// SetHandler installs the event handler that receives join and account
// events.
func (c *Client) SetHandler(h EventHandler) {
	c.handler = h
}

// Fold casefolds an identifier under the casemapping the network advertised
// (RFC 1459 until told otherwise).
func (c *Client) Fold(s string) string {
	return c.casemap.Fold(s)
}

// IsSelf reports whether the nickname is the client's own current nickname.
func (c *Client) IsSelf(nickname string) bool {
	return c.casemap.Fold(nickname) == c.casemap.Fold(c.nick)
}

// ChannelsOccupiedBy returns the folded channels the nickname is known to
// occupy.
func (c *Client) ChannelsOccupiedBy(nickname string) map[string]struct{} {
	return c.roster.ChannelsOccupiedBy(nickname)
}

// SendMessage sends a PRIVMSG to a channel.
func (c *Client) SendMessage(channel, text string) error {
	return c.send("PRIVMSG", channel, text)
}

// Run connects to the server and processes events until the context is
// cancelled, reconnecting after transient failures.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
					// backoff before reconnecting
				}
			}
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	conn, err := dialLineConn(ctx, c.opts.Server, c.opts.TLS)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	// Unblock the read loop when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	c.casemap = CasemapRFC1459
	c.nick = c.opts.Nickname
	c.capsOffered = nil
	c.roster.Clear()

	c.logger.Info("connected to server", "server", c.opts.Server)

	if err := c.send("CAP", "LS", "302"); err != nil {
		return err
	}
	if err := c.send("NICK", c.nick); err != nil {
		return err
	}
	if err := c.send("USER", c.opts.Username, "0", "*", c.opts.Realname); err != nil {
		return err
	}

	for {
		line, err := conn.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read line: %w", err)
		}

		msg, err := ParseMessage(line)
		if err != nil {
			c.logger.Error("failed to parse line", "line", line, "error", err)
			continue
		}

		if err := c.handleMessage(ctx, msg); err != nil {
			return err
		}
	}
}

// handleMessage dispatches one inbound line. A returned error terminates the
// connection; event handler failures are logged inside the per-command
// handlers and processing continues.
func (c *Client) handleMessage(ctx context.Context, msg *Message) error {
	switch msg.Command {
	case "PING":
		return c.send("PONG", msg.Params...)

	case "ERROR":
		return fmt.Errorf("server error: %s", msg.Param(0))

	case "CAP":
		return c.handleCAP(msg)

	case "AUTHENTICATE":
		return c.handleAuthenticate(msg)

	case "900": // RPL_LOGGEDIN
		c.logger.Info("authenticated", "account", msg.Param(2))

	case "903": // RPL_SASLSUCCESS
		return c.send("CAP", "END")

	case "904", "905", "906", "908": // SASL failures
		return fmt.Errorf("sasl authentication failed (%s)", msg.Command)

	case "001": // RPL_WELCOME
		c.nick = msg.Param(0)
		c.logger.Info("registered", "nickname", c.nick)
		for _, ch := range c.opts.Channels {
			if err := c.send("JOIN", ch); err != nil {
				return err
			}
		}

	case "005": // RPL_ISUPPORT
		c.handleISupport(msg)

	case "433": // ERR_NICKNAMEINUSE
		c.nick += "_"
		return c.send("NICK", c.nick)

	case "353": // RPL_NAMREPLY
		c.handleNames(msg)

	case "JOIN":
		c.handleJoin(ctx, msg)

	case "PART":
		channel := msg.Param(0)
		c.roster.Part(msg.Prefix.Nick, channel)
		if c.IsSelf(msg.Prefix.Nick) {
			c.roster.DropChannel(channel)
		}

	case "KICK":
		channel, kicked := msg.Param(0), msg.Param(1)
		c.roster.Part(kicked, channel)
		if c.IsSelf(kicked) {
			c.logger.Warn("kicked from channel", "channel", channel, "by", msg.Prefix.Nick)
			c.roster.DropChannel(channel)
		}

	case "QUIT":
		c.roster.Quit(msg.Prefix.Nick)

	case "NICK":
		newNick := msg.Param(0)
		if c.IsSelf(msg.Prefix.Nick) {
			c.nick = newNick
		}
		c.roster.Rename(msg.Prefix.Nick, newNick)

	case "ACCOUNT":
		c.handleAccount(ctx, msg)
	}

	return nil
}

func (c *Client) handleCAP(msg *Message) error {
	switch msg.Param(1) {
	case "LS":
		caps := msg.Param(2)
		more := caps == "*"
		if more {
			caps = msg.Param(3)
		}
		if c.capsOffered == nil {
			c.capsOffered = make(map[string]struct{})
		}
		for _, name := range strings.Fields(caps) {
			// values such as sasl=PLAIN,EXTERNAL are irrelevant here
			name, _, _ = strings.Cut(name, "=")
			c.capsOffered[name] = struct{}{}
		}
		if more {
			return nil
		}

		var want []string
		for _, name := range wantedCaps {
			if _, ok := c.capsOffered[name]; ok {
				want = append(want, name)
			}
		}
		if c.saslConfigured() {
			if _, ok := c.capsOffered["sasl"]; ok {
				want = append(want, "sasl")
			}
		}
		if len(want) == 0 {
			return c.send("CAP", "END")
		}
		return c.send("CAP", "REQ", strings.Join(want, " "))

	case "ACK":
		for _, name := range strings.Fields(msg.Param(2)) {
			if name == "sasl" && c.saslConfigured() {
				return c.send("AUTHENTICATE", "PLAIN")
			}
		}
		return c.send("CAP", "END")

	case "NAK":
		c.logger.Warn("capabilities rejected", "caps", msg.Param(2))
		return c.send("CAP", "END")
	}

	return nil
}

func (c *Client) handleAuthenticate(msg *Message) error {
	if msg.Param(0) != "+" {
		return nil
	}
	user, pass := c.opts.SASLUsername, c.opts.SASLPassword
	payload := base64.StdEncoding.EncodeToString([]byte(user + "\x00" + user + "\x00" + pass))
	return c.send("AUTHENTICATE", payload)
}

func (c *Client) handleISupport(msg *Message) {
	if len(msg.Params) < 3 {
		return
	}
	// first param is our nickname, last is "are supported by this server"
	for _, token := range msg.Params[1 : len(msg.Params)-1] {
		key, value, _ := strings.Cut(token, "=")
		if strings.EqualFold(key, "CASEMAPPING") {
			cm, ok := CasemapByName(value)
			if !ok {
				c.logger.Warn("unknown casemapping, assuming rfc1459", "value", value)
			}
			c.casemap = cm
		}
	}
}

func (c *Client) handleNames(msg *Message) {
	// params: <us> <symbol> <channel> :<prefixed nicks>
	channel := msg.Param(2)
	for _, name := range strings.Fields(msg.Param(3)) {
		nick := strings.TrimLeft(name, "~&@%+")
		if nick != "" {
			c.roster.Join(nick, channel)
		}
	}
}

func (c *Client) handleJoin(ctx context.Context, msg *Message) {
	channel := msg.Param(0)
	nick := msg.Prefix.Nick
	c.roster.Join(nick, channel)

	if c.IsSelf(nick) {
		c.logger.Info("joined channel", "channel", channel)
		return
	}
	if c.handler == nil {
		return
	}

	// With extended-join the second param is the account name or "*";
	// without it there is no account information at join time.
	account := msg.Param(1)
	if account == "" {
		account = domain.NoAccount
	}

	ev := &domain.JoinEvent{
		Channel:  channel,
		Nickname: nick,
		Account:  account,
		Username: msg.Prefix.User,
		Hostname: msg.Prefix.Host,
	}
	if _, err := c.handler.HandleJoin(ctx, ev); err != nil {
		c.logger.Error("failed to handle join", "channel", channel, "nickname", nick, "error", err)
	}
}

func (c *Client) handleAccount(ctx context.Context, msg *Message) {
	nick := msg.Prefix.Nick
	if c.IsSelf(nick) || c.handler == nil {
		return
	}

	ev := &domain.AccountEvent{
		Nickname: nick,
		Account:  msg.Param(0),
	}
	if err := c.handler.HandleAccount(ctx, ev); err != nil {
		c.logger.Error("failed to handle account change", "nickname", nick, "error", err)
	}
}

func (c *Client) saslConfigured() bool {
	return c.opts.SASLUsername != "" && c.opts.SASLPassword != ""
}

func (c *Client) send(command string, params ...string) error {
	msg := &Message{Command: command, Params: params}
	line := msg.String()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := c.conn.WriteLine(line); err != nil {
		return fmt.Errorf("write %s: %w", command, err)
	}
	return nil
}
