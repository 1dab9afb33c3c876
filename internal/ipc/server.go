// ABOUTME: Unix socket server that accepts hearthd connections and runs the session reaper
// ABOUTME: One goroutine per connection; shutdown drains handlers and removes the socket

package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/hearth/internal/session"
)

// maxAcceptDelay caps the backoff between failed accepts.
const maxAcceptDelay = time.Second

// Processor answers a query against a session, extending its history in place.
type Processor interface {
	Process(ctx context.Context, sess *session.Session, query string) (string, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, sess *session.Session, query string) (string, error)

func (f ProcessorFunc) Process(ctx context.Context, sess *session.Session, query string) (string, error) {
	return f(ctx, sess, query)
}

// Options configures a Server.
type Options struct {
	SocketPath    string
	MaxFrameBytes int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	// QueryTimeout bounds a single Process call; zero means no limit.
	QueryTimeout time.Duration
	SessionTTL   time.Duration
	ReapInterval time.Duration
	// Serialize runs queries for the same session id one at a time.
	Serialize bool
}

// Server serves the hearthd socket protocol.
type Server struct {
	opts   Options
	store  session.Store
	proc   Processor
	reaper *session.Reaper
	locks  *session.KeyedMutex
	logger *slog.Logger

	now   func() time.Time
	newID func() string

	wg        sync.WaitGroup
	ready     chan struct{}
	readyOnce sync.Once
}

// NewServer creates a server. Nothing is bound until Run.
func NewServer(opts Options, store session.Store, proc Processor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = session.DefaultTTL
	}

	s := &Server{
		opts:   opts,
		store:  store,
		proc:   proc,
		reaper: session.NewReaper(store, opts.ReapInterval, logger),
		logger: logger.With("component", "ipc"),
		now:    time.Now,
		newID:  uuid.NewString,
		ready:  make(chan struct{}),
	}
	if opts.Serialize {
		s.locks = session.NewKeyedMutex()
	}
	return s
}

// Ready is closed once the socket is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// SocketPath returns the path the server binds.
func (s *Server) SocketPath() string {
	return s.opts.SocketPath
}

// Run binds the socket and serves until ctx is cancelled. The accept loop and
// the reaper share one errgroup; Run returns after both have stopped, every
// in-flight connection has finished and the socket file is removed.
func (s *Server) Run(ctx context.Context) error {
	path := s.opts.SocketPath
	if path == "" {
		return fmt.Errorf("socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}

	// A stale socket from a previous run blocks the bind. Leave the verdict to
	// Listen if it cannot be removed.
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("removing stale socket", "path", path, "error", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		s.logger.Warn("restricting socket permissions", "path", path, "error", err)
	}

	s.logger.Info("listening", "socket", path)
	s.readyOnce.Do(func() { close(s.ready) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		return nil
	})
	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})
	g.Go(func() error {
		return s.reaper.Run(gctx)
	})

	err = g.Wait()
	s.wg.Wait()

	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		s.logger.Warn("removing socket", "path", path, "error", rmErr)
	}
	s.logger.Info("server stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.logger.Warn("accept failed", "error", err, "retry_in", delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		delay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}
