package irc

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"welcomebot/internal/domain"
)

// scriptConn collects everything the client writes.
type scriptConn struct {
	mu      sync.Mutex
	written []string
}

func (c *scriptConn) ReadLine() (string, error) { return "", io.EOF }
func (c *scriptConn) Close() error              { return nil }

func (c *scriptConn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, line)
	return nil
}

func (c *scriptConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

type recordingHandler struct {
	joins    []*domain.JoinEvent
	accounts []*domain.AccountEvent
}

func (h *recordingHandler) HandleJoin(_ context.Context, ev *domain.JoinEvent) (bool, error) {
	h.joins = append(h.joins, ev)
	return true, nil
}

func (h *recordingHandler) HandleAccount(_ context.Context, ev *domain.AccountEvent) error {
	h.accounts = append(h.accounts, ev)
	return nil
}

func newTestClient(t *testing.T, opts Options) (*Client, *scriptConn, *recordingHandler) {
	t.Helper()
	if opts.Server == "" {
		opts.Server = "irc.example.test:6667"
	}
	if opts.Nickname == "" {
		opts.Nickname = "greetbot"
	}
	if opts.Channels == nil {
		opts.Channels = []string{"#town"}
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	c := NewClient(opts)
	h := &recordingHandler{}
	c.SetHandler(h)
	conn := &scriptConn{}
	c.conn = conn
	return c, conn, h
}

func feed(t *testing.T, c *Client, lines ...string) {
	t.Helper()
	for _, line := range lines {
		msg, err := ParseMessage(line)
		require.NoError(t, err)
		require.NoError(t, c.handleMessage(context.Background(), msg))
	}
}

func TestPingPong(t *testing.T) {
	c, conn, _ := newTestClient(t, Options{})
	feed(t, c, "PING :irc.example.test")
	assert.Equal(t, []string{"PONG irc.example.test"}, conn.lines())
}

func TestCapNegotiationWithoutSASL(t *testing.T) {
	c, conn, _ := newTestClient(t, Options{})
	feed(t, c, ":s CAP * LS :account-notify extended-join sasl=PLAIN,EXTERNAL away-notify")
	assert.Equal(t, []string{"CAP REQ :account-notify extended-join"}, conn.lines())

	feed(t, c, ":s CAP greetbot ACK :account-notify extended-join")
	assert.Equal(t, "CAP END", conn.lines()[1])
}

func TestCapNegotiationMultilineLS(t *testing.T) {
	c, conn, _ := newTestClient(t, Options{})
	feed(t, c, ":s CAP * LS * :away-notify batch")
	assert.Empty(t, conn.lines(), "no request until LS completes")

	feed(t, c, ":s CAP * LS :extended-join")
	assert.Equal(t, []string{"CAP REQ extended-join"}, conn.lines())
}

func TestCapNegotiationNothingWanted(t *testing.T) {
	c, conn, _ := newTestClient(t, Options{})
	feed(t, c, ":s CAP * LS :away-notify batch")
	assert.Equal(t, []string{"CAP END"}, conn.lines())
}

func TestSASLFlow(t *testing.T) {
	c, conn, _ := newTestClient(t, Options{
		SASLUsername: "greetbot",
		SASLPassword: "hunter2",
	})

	feed(t, c,
		":s CAP * LS :extended-join account-notify sasl",
		":s CAP greetbot ACK :extended-join account-notify sasl",
		"AUTHENTICATE +",
		":s 903 greetbot :SASL authentication successful",
	)

	wantPayload := base64.StdEncoding.EncodeToString([]byte("greetbot\x00greetbot\x00hunter2"))
	assert.Equal(t, []string{
		"CAP REQ :extended-join account-notify sasl",
		"AUTHENTICATE PLAIN",
		"AUTHENTICATE " + wantPayload,
		"CAP END",
	}, conn.lines())
}

func TestSASLFailureTerminatesConnection(t *testing.T) {
	c, _, _ := newTestClient(t, Options{SASLUsername: "u", SASLPassword: "p"})
	msg, err := ParseMessage(":s 904 greetbot :SASL authentication failed")
	require.NoError(t, err)
	assert.Error(t, c.handleMessage(context.Background(), msg))
}

func TestWelcomeJoinsChannels(t *testing.T) {
	c, conn, _ := newTestClient(t, Options{Channels: []string{"#town", "#hall"}})
	feed(t, c, ":s 001 greetbot :Welcome")
	assert.Equal(t, []string{"JOIN #town", "JOIN #hall"}, conn.lines())
}

func TestISupportCasemapping(t *testing.T) {
	c, _, _ := newTestClient(t, Options{})
	assert.Equal(t, "{folded}", c.Fold("[FOLDED]"), "rfc1459 is the default")

	feed(t, c, ":s 005 greetbot CASEMAPPING=ascii CHANTYPES=# :are supported by this server")
	assert.Equal(t, "[folded]", c.Fold("[FOLDED]"))
}

func TestNicknameInUse(t *testing.T) {
	c, conn, _ := newTestClient(t, Options{})
	feed(t, c, ":s 433 * greetbot :Nickname is already in use")
	assert.Equal(t, []string{"NICK greetbot_"}, conn.lines())
	assert.True(t, c.IsSelf("greetbot_"))
}

func TestJoinDeliversEvent(t *testing.T) {
	c, _, h := newTestClient(t, Options{})
	feed(t, c, ":Alice!ali@host.example JOIN #Town alice :Alice Example")

	require.Len(t, h.joins, 1)
	ev := h.joins[0]
	assert.Equal(t, "#Town", ev.Channel)
	assert.Equal(t, "Alice", ev.Nickname)
	assert.Equal(t, "alice", ev.Account)
	assert.Equal(t, "ali", ev.Username)
	assert.Equal(t, "host.example", ev.Hostname)

	assert.Contains(t, c.ChannelsOccupiedBy("alice"), "#town")
}

func TestJoinWithoutExtendedJoinUsesSentinel(t *testing.T) {
	c, _, h := newTestClient(t, Options{})
	feed(t, c, ":alice!ali@h JOIN #town")

	require.Len(t, h.joins, 1)
	assert.Equal(t, domain.NoAccount, h.joins[0].Account)
}

func TestSelfJoinNotDelivered(t *testing.T) {
	c, _, h := newTestClient(t, Options{})
	feed(t, c, ":greetbot!bot@h JOIN #town")
	assert.Empty(t, h.joins)
	assert.Contains(t, c.ChannelsOccupiedBy("greetbot"), "#town")
}

func TestAccountDeliversEvent(t *testing.T) {
	c, _, h := newTestClient(t, Options{})
	feed(t, c, ":alice!ali@h ACCOUNT alice")

	require.Len(t, h.accounts, 1)
	assert.Equal(t, "alice", h.accounts[0].Nickname)
	assert.Equal(t, "alice", h.accounts[0].Account)
}

func TestSelfAccountNotDelivered(t *testing.T) {
	c, _, h := newTestClient(t, Options{})
	feed(t, c, ":greetbot!bot@h ACCOUNT botaccount")
	assert.Empty(t, h.accounts)
}

func TestNamesPopulateRoster(t *testing.T) {
	c, _, _ := newTestClient(t, Options{})
	feed(t, c, ":s 353 greetbot = #town :@alice +Bob carol")

	assert.Contains(t, c.ChannelsOccupiedBy("alice"), "#town")
	assert.Contains(t, c.ChannelsOccupiedBy("bob"), "#town")
	assert.Contains(t, c.ChannelsOccupiedBy("carol"), "#town")
}

func TestPartQuitKickMaintainRoster(t *testing.T) {
	c, _, _ := newTestClient(t, Options{})
	feed(t, c,
		":s 353 greetbot = #town :alice bob carol",
		":alice!a@h PART #town :bye",
		":bob!b@h QUIT :gone",
		":op!o@h KICK #town carol :out",
	)

	assert.Empty(t, c.ChannelsOccupiedBy("alice"))
	assert.Empty(t, c.ChannelsOccupiedBy("bob"))
	assert.Empty(t, c.ChannelsOccupiedBy("carol"))
}

func TestSelfKickDropsChannel(t *testing.T) {
	c, _, _ := newTestClient(t, Options{})
	feed(t, c,
		":s 353 greetbot = #town :alice greetbot",
		":op!o@h KICK #town greetbot :out",
	)
	assert.Empty(t, c.ChannelsOccupiedBy("alice"))
}

func TestNickRename(t *testing.T) {
	c, _, _ := newTestClient(t, Options{})
	feed(t, c,
		":s 353 greetbot = #town :alice",
		":alice!a@h NICK Alicia",
	)
	assert.Contains(t, c.ChannelsOccupiedBy("alicia"), "#town")

	feed(t, c, ":greetbot!bot@h NICK greeter")
	assert.True(t, c.IsSelf("greeter"))
	assert.False(t, c.IsSelf("greetbot"))
}

func TestServerErrorTerminates(t *testing.T) {
	c, _, _ := newTestClient(t, Options{})
	msg, err := ParseMessage("ERROR :Closing Link: flooding")
	require.NoError(t, err)
	assert.Error(t, c.handleMessage(context.Background(), msg))
}

func TestSendMessage(t *testing.T) {
	c, conn, _ := newTestClient(t, Options{})
	require.NoError(t, c.SendMessage("#town", "welcome alice to #town!"))
	assert.Equal(t, []string{"PRIVMSG #town :welcome alice to #town!"}, conn.lines())
}
