// Package worker implements the mining worker: it authenticates against
// the coordinator, obeys server-issued verbs, and runs the brute-force
// search over its assigned slice of the nonce space.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"gitlab.com/hashfleet.net/internal/auth"
	"gitlab.com/hashfleet.net/internal/config"
	"gitlab.com/hashfleet.net/internal/core/ports/primary"
	"gitlab.com/hashfleet.net/internal/protocol"
)

// Session is one worker's connection to the coordinator: it answers the
// handshake, then dispatches server verbs until the stream ends. The
// session's read loop and the engine goroutine share only the engine's
// stop flag and the serialized send path.
type Session struct {
	address   string
	responder *auth.Responder
	engine    *Engine
	logger    primary.Logger

	conn   net.Conn
	sendMu sync.Mutex
}

// NewSession creates a new worker session
func NewSession(cfg *config.WorkerConfig, logger primary.Logger) *Session {
	return &Session{
		address:   cfg.ServerAddr,
		responder: auth.NewResponder(cfg.Secret),
		engine:    NewEngine(logger),
		logger:    logger,
	}
}

// Run dials the coordinator and services the session until the stream
// ends or the context is cancelled during dialing.
func (s *Session) Run(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to reach coordinator at %s: %w", s.address, err)
	}
	s.logger.Info("Connected to coordinator", "addr", s.address)
	return s.RunConn(ctx, conn)
}

// RunConn services an already-established connection. Split from Run so
// tests can drive a session over an in-memory pipe.
func (s *Session) RunConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	defer s.engine.Stop()
	s.conn = conn

	// Reads block without timeout; cancelling the context is the only way
	// to unstick the loop from outside.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	if err := s.responder.Run(scanner, conn); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	s.logger.Info("Authenticated with coordinator")

	for scanner.Scan() {
		s.dispatch(protocol.Parse(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("connection to coordinator lost: %w", err)
	}

	s.logger.Info("Coordinator closed the connection")
	return nil
}

// dispatch routes one server verb. Malformed arguments are logged and the
// verb is skipped; unknown verbs are logged and otherwise ignored.
func (s *Session) dispatch(msg protocol.Message) {
	switch msg.Verb {
	case protocol.VerbNonce:
		s.handleNonce(msg)
	case protocol.VerbPayload:
		if len(msg.Args) != 1 {
			s.logger.Error("Malformed PAYLOAD", "message", msg.String())
			return
		}
		s.engine.SetPayload(msg.Args[0])
	case protocol.VerbSolve:
		s.handleSolve(msg)
	case protocol.VerbProgress:
		s.handleProgress()
	case protocol.VerbCancelled:
		// A running engine emits its own READY when its loop exits; an
		// idle worker confirms readiness directly.
		searching := s.engine.Searching()
		s.engine.Stop()
		if !searching {
			s.reply(protocol.New(protocol.VerbReady))
		}
	case protocol.VerbQuit:
		s.engine.Stop()
	case protocol.VerbOK:
		// Tail of the handshake, nothing to do.
	default:
		s.logger.Warn("Unknown server verb", "message", msg.String())
	}
}

func (s *Session) handleNonce(msg protocol.Message) {
	if len(msg.Args) != 2 {
		s.logger.Error("Malformed NONCE", "message", msg.String())
		return
	}
	start, err := strconv.ParseInt(msg.Args[0], 10, 64)
	if err != nil {
		s.logger.Error("Invalid NONCE start", "argument", msg.Args[0], "error", err)
		return
	}
	step, err := strconv.ParseInt(msg.Args[1], 10, 64)
	if err != nil {
		s.logger.Error("Invalid NONCE step", "argument", msg.Args[1], "error", err)
		return
	}
	s.engine.SetAssignment(start, step)
	s.logger.Info("Nonce assignment received", "start", start, "step", step)
}

func (s *Session) handleSolve(msg protocol.Message) {
	if len(msg.Args) != 1 {
		s.logger.Error("Malformed SOLVE", "message", msg.String())
		return
	}
	difficulty, err := strconv.Atoi(msg.Args[0])
	if err != nil {
		s.logger.Error("Invalid difficulty", "argument", msg.Args[0], "error", err)
		return
	}
	s.engine.Launch(difficulty, s.reply)
}

func (s *Session) handleProgress() {
	if s.engine.Searching() {
		s.reply(protocol.New(protocol.VerbTesting, s.engine.CurrentNonce().String()))
		return
	}
	s.reply(protocol.New(protocol.VerbNope))
}

// reply writes one line to the coordinator. Shared by the dispatch loop
// and the engine goroutine, so writes are serialized.
func (s *Session) reply(msg protocol.Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if _, err := s.conn.Write([]byte(msg.String() + "\n")); err != nil {
		s.logger.Error("Failed to send reply", "message", msg.Verb, "error", err)
		return err
	}
	return nil
}
