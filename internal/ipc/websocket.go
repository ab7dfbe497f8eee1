package ipc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/remote"
)

// ServicePath is the route a printer service answers on for loc.
func ServicePath(loc Locator) string {
	return "/services/" + url.PathEscape(loc.Package) + "/" + url.PathEscape(loc.Component)
}

// WebSocketOption configures a WebSocketBinder.
type WebSocketOption func(*WebSocketBinder)

// WithCallTimeout bounds every remote call. Zero waits indefinitely.
func WithCallTimeout(d time.Duration) WebSocketOption {
	return func(b *WebSocketBinder) { b.callTimeout = d }
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(b *WebSocketBinder) { b.dialer = d }
}

// WithLogger sets the binder's logger.
func WithLogger(l *zap.Logger) WebSocketOption {
	return func(b *WebSocketBinder) { b.logger = l }
}

// WebSocketBinder reaches a printer service over a websocket.
type WebSocketBinder struct {
	baseURL     string
	dialer      *websocket.Dialer
	callTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[ServiceConnection]*wsSession
}

// NewWebSocketBinder creates a binder for the service host at baseURL. Both
// ws(s):// and http(s):// URLs are accepted.
func NewWebSocketBinder(baseURL string, opts ...WebSocketOption) *WebSocketBinder {
	b := &WebSocketBinder{
		baseURL:  strings.TrimRight(baseURL, "/"),
		dialer:   websocket.DefaultDialer,
		logger:   zap.NewNop(),
		sessions: make(map[ServiceConnection]*wsSession),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *WebSocketBinder) serviceURL(loc Locator) (string, error) {
	u, err := url.Parse(b.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid service url %q: %w", b.baseURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid service url %q: unsupported scheme", b.baseURL)
	}
	return u.String() + ServicePath(loc), nil
}

// Bind starts connecting in the background.
func (b *WebSocketBinder) Bind(loc Locator, conn ServiceConnection) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	target, err := b.serviceURL(loc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &wsSession{loc: loc, conn: conn, ctx: ctx, cancel: cancel}

	b.mu.Lock()
	if _, exists := b.sessions[conn]; exists {
		b.mu.Unlock()
		cancel()
		return ErrAlreadyBound
	}
	b.sessions[conn] = s
	b.mu.Unlock()

	go b.run(s, target)
	return nil
}

// Unbind closes the session registered for conn.
func (b *WebSocketBinder) Unbind(conn ServiceConnection) error {
	b.mu.Lock()
	s, ok := b.sessions[conn]
	delete(b.sessions, conn)
	b.mu.Unlock()
	if !ok {
		return ErrNotBound
	}
	s.close()
	return nil
}

func (b *WebSocketBinder) run(s *wsSession, target string) {
	logger := b.logger.With(zap.String("service", s.loc.String()))

	ws, resp, err := b.dialer.DialContext(s.ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			err = ErrServiceNotFound
		}
		logger.Warn("printer service dial failed", zap.Error(err))
		s.lost()
		return
	}

	client := newWSClient(ws, b.callTimeout)
	if !s.attach(client) {
		ws.Close()
		return
	}

	logger.Info("printer service connected")
	s.conn.ServiceConnected(s.loc, client.printer())

	err = client.readLoop()
	if s.lost() {
		logger.Warn("printer service connection lost", zap.Error(err))
	}
}

type wsSession struct {
	loc    Locator
	conn   ServiceConnection
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	client *wsClient
	closed bool
}

func (s *wsSession) attach(c *wsClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.client = c
	return true
}

// lost reports a disconnect unless the session was closed by Unbind.
func (s *wsSession) lost() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.ServiceDisconnected(s.loc)
	return true
}

func (s *wsSession) close() {
	s.mu.Lock()
	s.closed = true
	client := s.client
	s.mu.Unlock()

	s.cancel()
	if client != nil {
		client.close()
	}
}

// wsClient multiplexes requests over one websocket connection.
type wsClient struct {
	ws      *websocket.Conn
	timeout time.Duration
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Response
	done    chan struct{}
	once    sync.Once
}

func newWSClient(ws *websocket.Conn, timeout time.Duration) *wsClient {
	return &wsClient{
		ws:      ws,
		timeout: timeout,
		pending: make(map[string]chan Response),
		done:    make(chan struct{}),
	}
}

func (c *wsClient) printer() remote.Printer {
	return caller(c.call)
}

func (c *wsClient) call(method string, params any) error {
	req, err := NewRequest(method, params)
	if err != nil {
		return err
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return ErrConnectionClosed
	default:
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(req.ID)
		return fmt.Errorf("send %s: %w", method, err)
	}

	var timeout <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp := <-ch:
		return responseError(method, resp)
	case <-c.done:
		select {
		case resp := <-ch:
			return responseError(method, resp)
		default:
			return ErrConnectionClosed
		}
	case <-timeout:
		c.forget(req.ID)
		return ErrCallTimeout
	}
}

func responseError(method string, resp Response) error {
	if resp.Error == "" {
		return nil
	}
	return &RemoteError{Method: method, Message: resp.Error}
}

func (c *wsClient) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *wsClient) readLoop() error {
	defer c.shutdown()
	for {
		var resp Response
		if err := c.ws.ReadJSON(&resp); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrConnectionClosed
			}
			return err
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *wsClient) shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.mu.Unlock()
	})
}

func (c *wsClient) close() {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unbind")
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.ws.Close()
		return
	}
	// readLoop ends once the peer echoes the close frame.
	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	c.ws.Close()
}

// Serve answers requests arriving on ws by dispatching them to p, one at a
// time, until the peer goes away.
func Serve(ws *websocket.Conn, p remote.Printer) error {
	for {
		var req Request
		if err := ws.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := ws.WriteJSON(Dispatch(p, req)); err != nil {
			return err
		}
	}
}
