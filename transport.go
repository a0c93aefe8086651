package cdpilot

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/mailru/easyjson"
)

// DefaultMaxFrameSize is the default maximum size of an incoming WebSocket
// frame (spec §4.1). A frame larger than this terminates the transport.
const DefaultMaxFrameSize = 100 * 1024 * 1024

// Transport is the framed, bidirectional message channel to the browser
// (spec §4.1). It performs no retry: closure is terminal.
type Transport interface {
	// Read blocks until the next parsed JSON frame, or returns an error
	// (ErrTransportClosed, or for wsTransport also ErrFrameSizeExceeded or
	// ErrDeserializeFailed).
	Read() (*cdproto.Message, error)
	// Write sends a frame, or returns ErrTransportClosed.
	Write(*cdproto.Message) error
	Close() error
}

// wsTransport is a Transport backed by github.com/gobwas/ws.
type wsTransport struct {
	conn         net.Conn
	maxFrameSize int

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// DialContext dials the given debugger WebSocket URL and returns a
// Transport. urlstr is passed through ForceIP first.
func DialContext(ctx context.Context, urlstr string) (Transport, error) {
	conn, _, _, err := ws.DefaultDialer.Dial(ctx, ForceIP(urlstr))
	if err != nil {
		return nil, wrapf(ErrWebSocketConnectFailed, "dial %s", urlstr)
	}
	return &wsTransport{conn: conn, maxFrameSize: DefaultMaxFrameSize}, nil
}

func (t *wsTransport) Read() (*cdproto.Message, error) {
	for {
		data, op, err := wsutil.ReadServerData(t.conn)
		if err != nil {
			return nil, wrapf(ErrTransportClosed, "read: %v", err)
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}
		if len(data) > t.maxFrameSize {
			t.Close()
			return nil, ErrFrameSizeExceeded
		}
		msg := new(cdproto.Message)
		if err := easyjson.Unmarshal(data, msg); err != nil {
			return nil, wrapf(ErrDeserializeFailed, "unmarshal frame: %v", err)
		}
		return msg, nil
	}
}

func (t *wsTransport) Write(msg *cdproto.Message) error {
	buf, err := easyjson.Marshal(msg)
	if err != nil {
		return wrapf(ErrDeserializeFailed, "marshal frame: %v", err)
	}
	if len(buf) > t.maxFrameSize {
		return ErrFrameSizeExceeded
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := wsutil.WriteClientText(t.conn, buf); err != nil {
		return wrapf(ErrTransportClosed, "write: %v", err)
	}
	return nil
}

func (t *wsTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// ForceIP forces the host component in urlstr to be an IP address.
//
// Since Chrome 66+, clients connecting to the browser's debugger endpoint
// must send the "Host:" header as either an IP address, or "localhost".
func ForceIP(urlstr string) string {
	i := strings.Index(urlstr, "://")
	if i == -1 {
		return urlstr
	}
	scheme := urlstr[:i+3]
	host, port, path := urlstr[len(scheme):], "", ""
	if j := strings.Index(host, "/"); j != -1 {
		host, path = host[:j], host[j:]
	}
	if j := strings.Index(host, ":"); j != -1 {
		host, port = host[:j], host[j:]
	}
	if strings.EqualFold(host, "localhost") {
		return urlstr
	}
	if addr, err := net.ResolveIPAddr("ip", host); err == nil {
		return scheme + addr.IP.String() + port + path
	}
	return urlstr
}
