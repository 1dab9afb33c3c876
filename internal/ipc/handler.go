// ABOUTME: Per-connection request handling: one framed request in, one framed response out
// ABOUTME: Dispatches ping and list-sessions itself and sends everything else to the Processor

package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"

	"github.com/2389/hearth/internal/session"
)

// saveTimeout bounds the session save that follows every query.
const saveTimeout = 10 * time.Second

// handle serves exactly one request on conn and closes it. Transport and
// protocol errors drop the connection without a response.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if s.opts.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}

	payload, err := ReadFrame(conn, s.opts.MaxFrameBytes)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Warn("reading request", "error", err)
		}
		return
	}

	req, err := DecodeRequest(payload)
	if err != nil {
		s.logger.Warn("invalid request", "error", err)
		return
	}

	resp := s.dispatch(ctx, req)

	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encoding response", "error", err)
		return
	}

	if s.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if err := WriteFrame(conn, data); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Query {
	case PingQuery:
		return Response{Response: PongResponse, SessionID: req.SessionID}
	case ListSessionsQuery:
		return s.listSessions(ctx)
	default:
		return s.query(ctx, req)
	}
}

func (s *Server) listSessions(ctx context.Context) Response {
	sessions, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("listing sessions", "error", err)
		return Response{Error: stringPtr("Failed to list sessions: " + err.Error())}
	}

	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return Response{Error: stringPtr("Failed to list sessions: " + err.Error())}
	}
	return Response{Response: string(data)}
}

// query resolves the session, refreshes its expiry, runs the processor and
// saves the session whether or not processing succeeded.
func (s *Server) query(ctx context.Context, req Request) Response {
	id := ""
	if req.SessionID != nil {
		id = *req.SessionID
	}
	// An empty id is treated like an absent one and gets a fresh id,
	// rather than naming a session literally called "".
	if id == "" {
		id = s.newID()
	}
	logger := s.logger.With("session_id", id)

	if s.locks != nil {
		unlock := s.locks.Lock(id)
		defer unlock()
	}

	sess, err := session.GetOrCreate(ctx, s.store, id)
	if err != nil {
		logger.Error("loading session", "error", err)
		return Response{SessionID: stringPtr(id), Error: stringPtr("Failed to load session: " + err.Error())}
	}
	sess.Touch(s.now(), s.opts.SessionTTL)

	pctx := ctx
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	text, procErr := s.proc.Process(pctx, sess, req.Query)

	// Shutdown may have cancelled ctx; the session is saved regardless.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.store.Save(saveCtx, sess); err != nil {
		logger.Error("saving session", "error", err)
	}

	if procErr != nil {
		logger.Warn("query failed", "error", procErr, "duration", time.Since(start))
		return Response{
			SessionID: stringPtr(id),
			Error:     stringPtr("Failed to process query: " + procErr.Error()),
		}
	}

	logger.Info("query answered", "duration", time.Since(start))
	return Response{Response: text, SessionID: stringPtr(id)}
}
