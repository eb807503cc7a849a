package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer is a scripted orchestrator endpoint. The handler runs once
// per connection attempt; connects counts attempts.
type wsServer struct {
	srv      *httptest.Server
	connects atomic.Int32
	tokens   chan string
	frames   chan frame
}

// newWSServer starts a WebSocket server whose per-connection behavior
// is given by script. script receives the upgraded socket and must
// return when done with it.
func newWSServer(t *testing.T, script func(n int32, ws *websocket.Conn)) *wsServer {
	t.Helper()

	s := &wsServer{
		tokens: make(chan string, 8),
		frames: make(chan frame, 32),
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.connects.Add(1)
		s.tokens <- r.URL.Query().Get("token")

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		script(n, ws)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// readFrames pumps inbound client frames onto s.frames until the
// socket dies. Call it from a script when the test inspects sends.
func (s *wsServer) readFrames(ws *websocket.Conn) {
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		s.frames <- f
	}
}

func newTestConn(s *wsServer, opts ...func(*Config)) *Conn {
	cfg := Config{
		URL:            s.url(),
		Token:          "test-token",
		ReconnectDelay: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

func nextEvent(t *testing.T, c *Conn) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func nextFrame(t *testing.T, s *wsServer) frame {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return frame{}
	}
}

func TestDialSendsTokenAndEmitsConnected(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		s.readFrames(ws)
	})
	c := newTestConn(s)
	defer c.Close()

	require.NoError(t, c.Dial(context.Background()))

	assert.Equal(t, "test-token", <-s.tokens)
	assert.Equal(t, EventConnected{Reconnected: false}, nextEvent(t, c))
	assert.Equal(t, StateOpen, c.State())

	// Dialing again while open is a no-op.
	require.NoError(t, c.Dial(context.Background()))
	assert.Equal(t, int32(1), s.connects.Load())
}

func TestSwitchPageSentOnConnect(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		s.readFrames(ws)
	})
	c := newTestConn(s)
	defer c.Close()

	require.NoError(t, c.SwitchPage("page-42"))
	require.NoError(t, c.Dial(context.Background()))

	f := nextFrame(t, s)
	assert.Equal(t, frameSwitchPage, f.Type)
	assert.Equal(t, "page-42", f.PageID)
}

func TestSwitchPageWhileOpen(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		s.readFrames(ws)
	})
	c := newTestConn(s)
	defer c.Close()

	require.NoError(t, c.Dial(context.Background()))
	nextEvent(t, c) // connected

	require.NoError(t, c.SwitchPage("page-7"))

	f := nextFrame(t, s)
	assert.Equal(t, frameSwitchPage, f.Type)
	assert.Equal(t, "page-7", f.PageID)
	assert.Equal(t, "page-7", c.PageID())
}

func TestSendMessage(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		s.readFrames(ws)
	})
	c := newTestConn(s)
	defer c.Close()

	require.NoError(t, c.SwitchPage("page-1"))
	require.NoError(t, c.Dial(context.Background()))
	nextFrame(t, s) // switch_page

	require.NoError(t, c.SendMessage("write a cover letter"))

	f := nextFrame(t, s)
	assert.Equal(t, frameMessage, f.Type)
	assert.Equal(t, "write a cover letter", f.Content)
	assert.Equal(t, "page-1", f.PageID)
}

func TestSendMessageEmpty(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		s.readFrames(ws)
	})
	c := newTestConn(s)
	defer c.Close()

	assert.ErrorIs(t, c.SendMessage(""), ErrEmptyMessage)
	assert.ErrorIs(t, c.SendMessage("   \n\t"), ErrEmptyMessage)
	assert.Equal(t, int32(0), s.connects.Load())
}

func TestSendMessageNotConnected(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		s.readFrames(ws)
	})
	c := newTestConn(s)
	defer c.Close()

	// The send is aborted, never queued, but it kicks off a reconnect.
	assert.ErrorIs(t, c.SendMessage("hello"), ErrNotConnected)

	assert.Equal(t, EventConnected{Reconnected: true}, nextEvent(t, c))
	require.Eventually(t, func() bool {
		return c.State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectOnceAfterAbnormalClose(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		if n == 1 {
			// Drop the TCP connection without a close handshake.
			ws.Close()
			return
		}
		s.readFrames(ws)
	})
	c := newTestConn(s)
	defer c.Close()

	require.NoError(t, c.Dial(context.Background()))

	assert.Equal(t, EventConnected{Reconnected: false}, nextEvent(t, c))
	assert.Equal(t, EventConnected{Reconnected: true}, nextEvent(t, c))

	// One abnormal close, exactly one retry. Give the client time to
	// misbehave before asserting.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), s.connects.Load())
	assert.Equal(t, StateOpen, c.State())
}

func TestNormalCloseDoesNotReconnect(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
		ws.WriteControl(websocket.CloseMessage, msg, deadline)
		// Wait for the client's close response, then drop the socket.
		ws.ReadMessage()
		ws.Close()
	})
	c := newTestConn(s)
	defer c.Close()

	require.NoError(t, c.Dial(context.Background()))

	assert.Equal(t, EventConnected{Reconnected: false}, nextEvent(t, c))
	assert.Equal(t, EventDisconnected{}, nextEvent(t, c))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), s.connects.Load())
	assert.Equal(t, StateClosed, c.State())
}

func TestReconnectFailureEmitsDisconnected(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		ws.Close()
	})
	c := newTestConn(s)
	defer c.Close()

	require.NoError(t, c.Dial(context.Background()))
	assert.Equal(t, EventConnected{Reconnected: false}, nextEvent(t, c))

	// Take the server away so the single retry cannot succeed.
	s.srv.Close()

	ev := nextEvent(t, c)
	disc, ok := ev.(EventDisconnected)
	require.True(t, ok, "expected EventDisconnected, got %T", ev)
	assert.Error(t, disc.Err)
}

func TestCloseStopsReconnect(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		s.readFrames(ws)
	})
	c := newTestConn(s)

	require.NoError(t, c.Dial(context.Background()))
	assert.Equal(t, EventConnected{Reconnected: false}, nextEvent(t, c))

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())

	// Closed is final.
	assert.ErrorIs(t, c.Dial(context.Background()), ErrClosed)
	assert.ErrorIs(t, c.SendMessage("hello"), ErrNotConnected)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), s.connects.Load())
}

func TestStopGeneration(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(n int32, ws *websocket.Conn) {
		s.readFrames(ws)
	})
	c := newTestConn(s)
	defer c.Close()

	assert.ErrorIs(t, c.StopGeneration(), ErrNotConnected)

	require.NoError(t, c.Dial(context.Background()))
	nextEvent(t, c) // connected

	require.NoError(t, c.StopGeneration())
	assert.Equal(t, frameStopGeneration, nextFrame(t, s).Type)
}
