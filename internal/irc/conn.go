package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const dialTimeout = 30 * time.Second

// lineConn carries whole protocol lines over some byte transport.
type lineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
}

// dialLineConn connects to the server. An address with a ws:// or wss://
// scheme goes through a WebSocket gateway, which frames one line per text
// message; anything else is treated as host:port over TCP, with TLS when
// requested.
func dialLineConn(ctx context.Context, server string, useTLS bool) (lineConn, error) {
	if strings.HasPrefix(server, "ws://") || strings.HasPrefix(server, "wss://") {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, server, nil)
		if err != nil {
			return nil, fmt.Errorf("dial websocket %s: %w", server, err)
		}
		return &wsLineConn{conn: conn}, nil
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", server)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", server, err)
	}

	if useTLS {
		host, _, err := net.SplitHostPort(server)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("invalid server address %s: %w", server, err)
		}
		tlsConn := tls.Client(conn, &tls.Config{ServerName: host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls handshake with %s: %w", server, err)
		}
		conn = tlsConn
	}

	return newTCPLineConn(conn), nil
}

type tcpLineConn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func newTCPLineConn(conn net.Conn) *tcpLineConn {
	return &tcpLineConn{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
}

func (c *tcpLineConn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *tcpLineConn) WriteLine(line string) error {
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if _, err := c.w.WriteString("\r\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *tcpLineConn) Close() error {
	return c.conn.Close()
}

type wsLineConn struct {
	conn    *websocket.Conn
	pending []string
}

func (c *wsLineConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		// Gateways normally frame one line per message, but tolerate
		// several joined with CRLF.
		for _, line := range strings.Split(string(payload), "\n") {
			line = strings.TrimRight(line, "\r")
			if line != "" {
				c.pending = append(c.pending, line)
			}
		}
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsLineConn) WriteLine(line string) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsLineConn) Close() error {
	return c.conn.Close()
}
