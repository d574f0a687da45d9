package opcled

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/neilotoole/slogt"
	"go.uber.org/goleak"
)

const testLEDCount = 6

func TestNewServer(t *testing.T) {
	if _, err := NewServer(ServerOpts{LEDCount: 3}); err == nil {
		t.Error("expected error without a driver")
	}

	_, err := NewServer(ServerOpts{Driver: newRecordingDriver()})
	if !errors.Is(err, ErrLEDCount) {
		t.Errorf("expected ErrLEDCount, got %v", err)
	}

	srv, err := NewServer(ServerOpts{Driver: newRecordingDriver(), LEDCount: 3})
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	assertEq(t, Black(3), srv.Colors())
}

func TestServer(t *testing.T) {
	red := Fill(testLEDCount, Color{R: 255})
	blue := Fill(testLEDCount, Color{B: 255})
	gradient := ColorSet{{0, 0, 0}, {50, 0, 0}, {100, 0, 0}, {150, 0, 0}, {200, 0, 0}, {250, 0, 0}}

	tests := []struct {
		name string
		play func(t *testing.T, ts *testServer)
	}{
		{
			name: "clears the strip on start",
			play: func(t *testing.T, ts *testServer) {
				waitFor(t, func() bool { return len(ts.driver.Frames()) == 1 })
				assertEq(t, Black(testLEDCount), ts.driver.Frames()[0])
			},
		},
		{
			name: "animates to each new color set",
			play: func(t *testing.T, ts *testServer) {
				conn := ts.dial(t)
				writeColors(t, conn, red)
				writeColors(t, conn, gradient)

				ts.waitForColors(t, gradient)
				assertEq(t, gradient, ts.driver.Last())
				assertEq(t, 1+ts.frames(Black(testLEDCount), red)+ts.frames(red, gradient), len(ts.driver.Frames()))
			},
		},
		{
			name: "same colors twice animate once",
			play: func(t *testing.T, ts *testServer) {
				conn := ts.dial(t)
				writeColors(t, conn, red)
				writeColors(t, conn, red)
				writeColors(t, conn, blue)

				ts.waitForColors(t, blue)
				assertEq(t, 1+ts.frames(Black(testLEDCount), red)+ts.frames(red, blue), len(ts.driver.Frames()))
			},
		},
		{
			name: "driver failure keeps colors",
			play: func(t *testing.T, ts *testServer) {
				// Write 0 clears the strip, so this fails animation frame 4.
				ts.driver.mu.Lock()
				ts.driver.failAt = 5
				ts.driver.mu.Unlock()

				conn := ts.dial(t)
				writeColors(t, conn, red)
				writeColors(t, conn, blue)

				ts.waitForColors(t, blue)
				assertEq(t, 1+4+ts.frames(Black(testLEDCount), blue), len(ts.driver.Frames()))
			},
		},
		{
			name: "resending colors after a failure is a no-op",
			play: func(t *testing.T, ts *testServer) {
				ts.driver.mu.Lock()
				ts.driver.failAt = 15
				ts.driver.mu.Unlock()

				conn := ts.dial(t)
				writeColors(t, conn, red)
				// The strip shows a partial frame but the committed colors
				// are still black, so this does not animate.
				writeColors(t, conn, Black(testLEDCount))
				writeColors(t, conn, blue)

				ts.waitForColors(t, blue)
				frames := ts.driver.Frames()
				assertEq(t, 1+14+ts.frames(Black(testLEDCount), blue), len(frames))
				assertEq(t, false, frames[14].Equal(Black(testLEDCount)))
			},
		},
		{
			name: "wrong number of LEDs is ignored",
			play: func(t *testing.T, ts *testServer) {
				conn := ts.dial(t)
				writeColors(t, conn, Fill(testLEDCount-1, Color{G: 255}))
				writeColors(t, conn, blue)

				ts.waitForColors(t, blue)
				assertEq(t, 1+ts.frames(Black(testLEDCount), blue), len(ts.driver.Frames()))
			},
		},
		{
			name: "protocol error drops the client",
			play: func(t *testing.T, ts *testServer) {
				bad := ts.dial(t)
				if _, err := bad.Write(AppendMessage(nil, 1, 0, red)[:opcHeaderSize]); err != nil {
					t.Fatal("failed to write:", err)
				}
				expectClosed(t, bad)

				good := ts.dial(t)
				writeColors(t, good, blue)
				ts.waitForColors(t, blue)
			},
		},
		{
			name: "disconnect mid-message",
			play: func(t *testing.T, ts *testServer) {
				first := ts.dial(t)
				msg := AppendMessage(nil, 0, 0, red)
				if _, err := first.Write(msg[:10]); err != nil {
					t.Fatal("failed to write:", err)
				}
				first.Close()

				second := ts.dial(t)
				writeColors(t, second, red)
				ts.waitForColors(t, red)
			},
		},
		{
			name: "kick",
			play: func(t *testing.T, ts *testServer) {
				conn := ts.dial(t)
				writeColors(t, conn, red)
				ts.waitForColors(t, red)

				waitFor(t, func() bool { return len(ts.server.Sessions()) == 1 })
				ts.server.KickAllConnections("maintenance")

				expectClosed(t, conn)
				waitFor(t, func() bool { return len(ts.server.Sessions()) == 0 })
				assertEq(t, red, ts.server.Colors())
			},
		},
		{
			name: "session ID failure drops the client",
			play: func(t *testing.T, ts *testServer) {
				var calls atomic.Int32
				ts.server.newID = func() (uuid.UUID, error) {
					if calls.Add(1) == 1 {
						return uuid.Nil, errors.New("entropy exhausted")
					}
					return uuid.NewV7()
				}

				first := ts.dial(t)
				expectClosed(t, first)

				second := ts.dial(t)
				writeColors(t, second, blue)
				ts.waitForColors(t, blue)
			},
		},
		{
			name: "driver panic",
			play: func(t *testing.T, ts *testServer) {
				var panicked atomic.Bool
				ts.driver.mu.Lock()
				ts.driver.onWrite = func(i int) {
					if i == 2 && panicked.CompareAndSwap(false, true) {
						panic("strip on fire")
					}
				}
				ts.driver.mu.Unlock()

				first := ts.dial(t)
				writeColors(t, first, red)
				expectClosed(t, first)
				assertEq(t, Black(testLEDCount), ts.server.Colors())

				second := ts.dial(t)
				writeColors(t, second, blue)
				ts.waitForColors(t, blue)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ts := startTestServer(t)
			test.play(t, ts)
		})
	}
}

func TestServerStops(t *testing.T) {
	ignore := goleak.IgnoreCurrent()

	ts := startTestServer(t)
	conn := ts.dial(t)
	writeColors(t, conn, Fill(testLEDCount, Color{R: 255}))
	waitFor(t, func() bool { return len(ts.server.Sessions()) == 1 })

	if err := ts.stop(); err != nil {
		t.Fatal("Serve returned an error:", err)
	}
	expectClosed(t, conn)
	conn.Close()

	goleak.VerifyNone(t, ignore)
}

type testServer struct {
	server   *Server
	driver   *recordingDriver
	animator *Animator
	listener *pipeListener
	stop     func() error
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	driver := newRecordingDriver()
	animator, _ := newTestAnimator(AnimatorOpts{FrameRate: 30})

	server, err := NewServer(ServerOpts{
		Driver:   driver,
		Animator: animator,
		LEDCount: testLEDCount,
		Logger:   slogt.New(t),
	})
	if err != nil {
		t.Fatal("failed to create server:", err)
	}

	listener := newPipeListener()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ctx, listener)
	}()

	var once sync.Once
	var serveErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			serveErr = <-errCh
		})
		return serveErr
	}

	t.Cleanup(func() {
		if err := stop(); err != nil {
			t.Error("Serve returned an error:", err)
		}
	})

	return &testServer{
		server:   server,
		driver:   driver,
		animator: animator,
		listener: listener,
		stop:     stop,
	}
}

// frames returns the number of driver writes of one animation.
func (ts *testServer) frames(start, end ColorSet) int {
	return ts.animator.FrameCount(start, end) + 2
}

func (ts *testServer) dial(t *testing.T) net.Conn {
	t.Helper()

	conn, err := ts.listener.Dial()
	if err != nil {
		t.Fatal("failed to dial:", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (ts *testServer) waitForColors(t *testing.T, want ColorSet) {
	t.Helper()
	waitFor(t, func() bool { return ts.server.Colors().Equal(want) })
}

func writeColors(t *testing.T, conn net.Conn, colors ColorSet) {
	t.Helper()

	if err := WriteMessage(conn, ChannelDefault, CommandSetPixelColors, colors); err != nil {
		t.Fatal("failed to write message:", err)
	}
}

func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var b [1]byte
	_, err := conn.Read(b[:])
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
		t.Fatal("expected the server to close the connection, got", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

// pipeListener is an in-memory net.Listener.
type pipeListener struct {
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func newPipeListener() *pipeListener {
	return &pipeListener{
		conns:  make(chan net.Conn, 8),
		closed: make(chan struct{}),
	}
}

// Dial connects to the listener. Connections are queued until the server
// accepts them.
func (l *pipeListener) Dial() (net.Conn, error) {
	server, client := net.Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *pipeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return pipeAddr{}
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
