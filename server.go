package opcled

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"gopkg.in/typ.v4/sync2"
)

// ServerOpts are options for a server.
type ServerOpts struct {
	// Driver is the strip driver that every frame is written to.
	Driver StripDriver
	// Animator plays the transitions. If nil, an animator with default
	// options is used.
	Animator *Animator
	// LEDCount is the number of lights on the strip.
	LEDCount int
	// MessageTimeout bounds how long a client may take to send the rest of
	// a message once its header has arrived. Zero means no limit.
	MessageTimeout time.Duration
	// Logger is the logger to use for the server.
	Logger *slog.Logger
}

// Server accepts OPC clients one at a time and animates the strip to every
// ColorSet they send.
//
// The server owns the displayed ColorSet. Only one session is served and
// only one animation is played at a time, and the displayed ColorSet is
// only replaced once an animation has completed.
type Server struct {
	opts ServerOpts

	colors   ColorSet
	colorsMu sync.Mutex

	sessions sync2.Map[*Session, sessionControl]
	newID    func() (uuid.UUID, error)
}

type sessionControl struct {
	cancel context.CancelCauseFunc
}

// NewServer creates a new server. The strip starts out black.
func NewServer(opts ServerOpts) (*Server, error) {
	if opts.Driver == nil {
		return nil, errors.New("no strip driver")
	}
	if opts.LEDCount <= 0 || opts.LEDCount > MaxColors {
		return nil, fmt.Errorf("%w: invalid LED count %d", ErrLEDCount, opts.LEDCount)
	}
	if opts.Animator == nil {
		opts.Animator = NewAnimator(AnimatorOpts{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Server{
		opts:   opts,
		colors: Black(opts.LEDCount),
		newID:  uuid.NewV7,
	}, nil
}

// Colors returns a copy of the ColorSet currently displayed.
func (s *Server) Colors() ColorSet {
	s.colorsMu.Lock()
	defer s.colorsMu.Unlock()

	return s.colors.Clone()
}

func (s *Server) setColors(colors ColorSet) {
	s.colorsMu.Lock()
	defer s.colorsMu.Unlock()

	s.colors = colors
}

// Reset turns every light off immediately, without animating.
func (s *Server) Reset() error {
	black := Black(s.opts.LEDCount)
	if err := s.opts.Driver.SetLEDs(black); err != nil {
		return &DriverError{Err: err}
	}
	s.setColors(black)
	return nil
}

// Sessions returns the IDs of the connected sessions.
func (s *Server) Sessions() []string {
	var ids []string
	s.sessions.Range(func(session *Session, _ sessionControl) bool {
		ids = append(ids, session.ID)
		return true
	})
	return ids
}

// KickAllConnections kicks all connections from the server.
// Optionally, a reason can be provided.
func (s *Server) KickAllConnections(reason string) {
	var err error
	if reason != "" {
		err = fmt.Errorf("kicked: %s", reason)
	} else {
		err = fmt.Errorf("kicked")
	}

	s.sessions.Range(func(_ *Session, ctrl sessionControl) bool {
		ctrl.cancel(err)
		return true
	})
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.opts.Logger.Info(
		"listening for OPC clients",
		"addr", l.Addr().String())

	return s.Serve(ctx, l)
}

// Serve writes black to the strip, then accepts connections from l and
// serves them one at a time until ctx is cancelled or l is closed. A
// misbehaving or disconnecting client never stops the server; only
// cancelling ctx or closing l does, in which case Serve returns nil.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	if err := s.Reset(); err != nil {
		s.opts.Logger.Error(
			"failed to clear the strip",
			"error", err)
	}

	var backoff time.Duration

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			// Temporary failures such as running out of file descriptors.
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)

			s.opts.Logger.Warn(
				"failed to accept connection",
				"error", err,
				"retry_in", backoff)

			if err := sleepContext(ctx, backoff); err != nil {
				return nil
			}
			continue
		}
		backoff = 0

		s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := s.opts.Logger.With("addr", conn.RemoteAddr().String())
	defer func() {
		if r := recover(); r != nil {
			logger.Error(
				"session panicked",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	id, err := s.newID()
	if err != nil {
		logger.Error(
			"dropping client, failed to generate session ID",
			"error", err)
		return
	}

	session := newSession(conn, id.String(), s.opts, logger)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.sessions.Store(session, sessionControl{cancel: cancel})
	defer s.sessions.Delete(session)

	// Unblock the decoder when the session is kicked or the server stops.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	session.logger.Info("client connected")

	err = session.serve(ctx, s)
	switch {
	case ctx.Err() != nil:
		session.logger.Info(
			"client disconnected",
			"reason", context.Cause(ctx).Error())
	case errors.Is(err, io.EOF):
		session.logger.Info("client disconnected")
	default:
		session.logger.Warn(
			"dropping client",
			"error", err)
	}
}

// Session is a single OPC client connection.
type Session struct {
	// ID uniquely identifies the session in logs.
	ID string

	decoder *Decoder
	logger  *slog.Logger
}

func newSession(conn io.Reader, id string, opts ServerOpts, logger *slog.Logger) *Session {
	decoder := NewDecoder(conn)
	decoder.PayloadTimeout = opts.MessageTimeout

	return &Session{
		ID:      id,
		decoder: decoder,
		logger:  logger.With("session", id),
	}
}

// serve decodes messages and animates to them until the stream ends or
// fails. It always returns a non-nil error.
func (s *Session) serve(ctx context.Context, srv *Server) error {
	for {
		msg, err := s.decoder.Decode()
		if err != nil {
			return fmt.Errorf("failed to decode message: %w", err)
		}

		if msg.Trailing > 0 {
			s.logger.Debug(
				"dropped trailing bytes of partial color",
				"bytes", msg.Trailing)
		}

		if len(msg.Colors) != srv.opts.LEDCount {
			s.logger.Warn(
				"ignoring message with wrong number of LEDs",
				"got", len(msg.Colors),
				"want", srv.opts.LEDCount)
			continue
		}

		// Only the accept loop replaces colors, so reading it without the
		// lock is safe here.
		current := srv.colors
		if msg.Colors.Equal(current) {
			s.logger.Debug("colors unchanged, skipping animation")
			continue
		}

		animator := srv.opts.Animator
		s.logger.Debug(
			"animating",
			"sweep", animator.Sweep(current, msg.Colors).String(),
			"duration", animator.Duration(current, msg.Colors),
			"frames", animator.FrameCount(current, msg.Colors)+1)

		if err := animator.Animate(ctx, srv.opts.Driver, current, msg.Colors); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			s.logger.Error(
				"animation aborted",
				"error", err)
			continue
		}

		srv.setColors(msg.Colors)
		s.logger.Debug("colors set")
	}
}
