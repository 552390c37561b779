// Package coordinator implements the mining coordinator: it listens for
// worker connections, authenticates them, partitions the nonce search
// space across the fleet, and reconciles reported solutions with the
// external validation authority.
package coordinator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"gitlab.com/hashfleet.net/internal/auth"
	"gitlab.com/hashfleet.net/internal/coordinator/registry"
	"gitlab.com/hashfleet.net/internal/core/ports/primary"
	"gitlab.com/hashfleet.net/internal/protocol"
)

const acceptRetryDelay = 1 * time.Second

// Listener accepts worker connections, drives the handshake, and runs one
// message loop per admitted worker. The accept loop never blocks on any
// single connection's lifecycle.
type Listener struct {
	address    string
	challenger *auth.Challenger
	registry   *registry.Registry
	results    *ResultCoordinator
	logger     primary.Logger
	ln         net.Listener
	stopCh     chan struct{}
}

// ListenerOption configures a Listener
type ListenerOption func(*Listener)

// WithAddress sets the listen address
func WithAddress(address string) ListenerOption {
	return func(l *Listener) {
		l.address = address
	}
}

// NewListener creates a new worker listener
func NewListener(
	secret string,
	reg *registry.Registry,
	results *ResultCoordinator,
	logger primary.Logger,
	options ...ListenerOption,
) *Listener {
	l := &Listener{
		address:    ":1337",
		challenger: auth.NewChallenger(secret),
		registry:   reg,
		results:    results,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}

	for _, option := range options {
		option(l)
	}

	return l
}

// Start begins accepting connections.
func (l *Listener) Start() error {
	var err error
	l.ln, err = net.Listen("tcp", l.address)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	l.logger.Info("Coordinator listening", "address", l.ln.Addr().String())

	go l.acceptConnections()

	return nil
}

// Addr returns the bound address. Valid after Start.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Stop stops the accept loop and closes every registered connection.
func (l *Listener) Stop() {
	close(l.stopCh)

	if l.ln != nil {
		if err := l.ln.Close(); err != nil {
			l.logger.Error("Failed to close listener", "error", err)
		}
	}

	l.registry.CloseAll()
}

// acceptConnections accepts incoming connections until Stop.
func (l *Listener) acceptConnections() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.stopCh:
				return
			default:
				l.logger.Error("Failed to accept connection", "error", err)
				time.Sleep(acceptRetryDelay) // Avoid tight loop on error
				continue
			}
		}

		go l.handleConnection(conn)
	}
}

// handleConnection authenticates one connection and, on success, services
// its reports until the peer goes away.
func (l *Listener) handleConnection(conn net.Conn) {
	scanner := bufio.NewScanner(conn)

	if err := l.challenger.Run(scanner, conn); err != nil {
		if errors.Is(err, auth.ErrRejected) {
			l.logger.Info("Worker failed authentication", "addr", conn.RemoteAddr())
		} else {
			l.logger.Error("Handshake aborted", "addr", conn.RemoteAddr(), "error", err)
		}
		_ = conn.Close()
		return
	}

	handle := registry.NewHandle(conn)
	l.registry.Register(handle)

	defer func() {
		l.registry.Unregister(handle)
		_ = handle.Close()
	}()

	for scanner.Scan() {
		msg := protocol.Parse(scanner.Text())
		switch msg.Verb {
		case protocol.VerbFound:
			l.results.HandleFound(context.Background(), handle, msg)
		case protocol.VerbTesting, protocol.VerbNope, protocol.VerbReady:
			l.logger.Info("Worker report", "workerID", handle.ID, "message", msg.String())
		default:
			l.logger.Warn("Unknown worker verb", "workerID", handle.ID, "message", msg.String())
		}
	}

	if err := scanner.Err(); err != nil {
		l.logger.Error("Worker connection failed", "workerID", handle.ID, "error", err)
		return
	}
	l.logger.Info("Worker disconnected", "workerID", handle.ID, "addr", handle.Addr)
}
