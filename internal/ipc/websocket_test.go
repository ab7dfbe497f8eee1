package ipc_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/printer-bridge/internal/ipc"
	"github.com/thereceipt/printer-bridge/internal/remote"
	"github.com/thereceipt/printer-bridge/internal/remote/remotetest"
)

type events struct {
	connected    chan remote.Printer
	disconnected chan ipc.Locator
}

func newEvents() *events {
	return &events{
		connected:    make(chan remote.Printer, 4),
		disconnected: make(chan ipc.Locator, 4),
	}
}

func (e *events) ServiceConnected(_ ipc.Locator, p remote.Printer) { e.connected <- p }
func (e *events) ServiceDisconnected(loc ipc.Locator)              { e.disconnected <- loc }

func (e *events) waitConnected(t *testing.T) remote.Printer {
	t.Helper()
	select {
	case p := <-e.connected:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("service never connected")
		return nil
	}
}

func (e *events) waitDisconnected(t *testing.T) {
	t.Helper()
	select {
	case <-e.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("service never disconnected")
	}
}

func newService(t *testing.T, loc ipc.Locator, p remote.Printer) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 4)

	mux := http.NewServeMux()
	mux.HandleFunc(ipc.ServicePath(loc), func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
		defer ws.Close()
		_ = ipc.Serve(ws, p)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, accepted
}

func TestWebSocketBinder_CallsReachService(t *testing.T) {
	rec := remotetest.NewRecorder()
	srv, _ := newService(t, ipc.DefaultLocator, rec)

	binder := ipc.NewWebSocketBinder(srv.URL)
	ev := newEvents()
	require.NoError(t, binder.Bind(ipc.DefaultLocator, ev))

	p := ev.waitConnected(t)
	require.NoError(t, p.PrintText("over the wire"))
	require.NoError(t, p.NextLine(2))

	rec.Fail("SetTextBold", errors.New("head too hot"))
	err := p.SetTextBold(true)
	var remoteErr *ipc.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "head too hot", remoteErr.Message)

	assert.Equal(t, []string{"PrintText", "NextLine", "SetTextBold"}, rec.Methods())

	require.NoError(t, binder.Unbind(ev))
	assert.ErrorIs(t, binder.Unbind(ev), ipc.ErrNotBound)
	assert.Empty(t, ev.disconnected, "unbind must not report a disconnect")
}

func TestWebSocketBinder_ServiceNotFound(t *testing.T) {
	srv, _ := newService(t, ipc.DefaultLocator, remotetest.NewRecorder())

	binder := ipc.NewWebSocketBinder(srv.URL)
	ev := newEvents()
	require.NoError(t, binder.Bind(ipc.Locator{Package: "other", Component: "svc"}, ev))

	ev.waitDisconnected(t)
	assert.Empty(t, ev.connected)
}

func TestWebSocketBinder_ServiceDiesMidSession(t *testing.T) {
	srv, accepted := newService(t, ipc.DefaultLocator, remotetest.NewRecorder())

	binder := ipc.NewWebSocketBinder(srv.URL)
	ev := newEvents()
	require.NoError(t, binder.Bind(ipc.DefaultLocator, ev))
	p := ev.waitConnected(t)

	ws := <-accepted
	require.NoError(t, ws.Close())

	ev.waitDisconnected(t)
	assert.ErrorIs(t, p.PrintText("late"), ipc.ErrConnectionClosed)
}

func TestWebSocketBinder_CallTimeout(t *testing.T) {
	rec := remotetest.NewRecorder()
	rec.Gate = make(chan struct{})
	defer close(rec.Gate)
	srv, _ := newService(t, ipc.DefaultLocator, rec)

	binder := ipc.NewWebSocketBinder(srv.URL, ipc.WithCallTimeout(50*time.Millisecond))
	ev := newEvents()
	require.NoError(t, binder.Bind(ipc.DefaultLocator, ev))
	p := ev.waitConnected(t)

	assert.ErrorIs(t, p.PrintText("stuck"), ipc.ErrCallTimeout)
}

func TestWebSocketBinder_RejectsBadInput(t *testing.T) {
	ev := newEvents()

	assert.Error(t, ipc.NewWebSocketBinder("ftp://host").Bind(ipc.DefaultLocator, ev))
	assert.Error(t, ipc.NewWebSocketBinder("ws://host").Bind(ipc.Locator{}, ev))

	binder := ipc.NewWebSocketBinder("ws://127.0.0.1:1")
	require.NoError(t, binder.Bind(ipc.DefaultLocator, ev))
	assert.ErrorIs(t, binder.Bind(ipc.DefaultLocator, ev), ipc.ErrAlreadyBound)
	require.NoError(t, binder.Unbind(ev))
}
