package registry

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"gitlab.com/hashfleet.net/internal/core/ports/primary"
	"gitlab.com/hashfleet.net/internal/domain"
	"gitlab.com/hashfleet.net/internal/protocol"
)

// Handle is one authenticated worker connection. It is created after a
// successful handshake and owned by the Registry until the worker
// disconnects or is closed. Sends to a handle are serialized by its own
// mutex; sends to distinct handles proceed independently.
type Handle struct {
	ID   uuid.UUID
	Addr string

	conn   net.Conn
	sendMu sync.Mutex
}

// NewHandle wraps an authenticated connection.
func NewHandle(conn net.Conn) *Handle {
	addr := ""
	if remote := conn.RemoteAddr(); remote != nil {
		addr = remote.String()
	}
	return &Handle{
		ID:   uuid.New(),
		Addr: addr,
		conn: conn,
	}
}

// Send writes one protocol line to the worker.
func (h *Handle) Send(msg protocol.Message) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	if _, err := h.conn.Write([]byte(msg.String() + "\n")); err != nil {
		return fmt.Errorf("failed to write to worker %s: %w", h.Addr, err)
	}
	return nil
}

// Close closes the underlying connection. Safe to call more than once;
// later calls return the net package's already-closed error, which
// callers ignore.
func (h *Handle) Close() error {
	return h.conn.Close()
}

// Info returns the read-only view of this handle.
func (h *Handle) Info() domain.WorkerInfo {
	return domain.WorkerInfo{ID: h.ID.String(), Addr: h.Addr}
}

// Registry is the coordinator's collection of live worker handles.
// A single mutex guards the ordered slice, so mutation and iteration are
// mutually exclusive; Snapshot hands out a copy so callers never iterate
// live state.
type Registry struct {
	mu      sync.Mutex
	handles []*Handle
	logger  primary.Logger
}

func NewRegistry(logger primary.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register admits an authenticated handle. Insertion order is preserved;
// Snapshot returns handles in the order they registered.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, h)
	r.logger.Info("Worker registered", "workerID", h.ID, "addr", h.Addr)
}

// Unregister removes a handle. Removing a handle that is already gone is
// a no-op, so the disconnect path and the broadcast self-healing path may
// both race to remove the same worker.
func (r *Registry) Unregister(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.handles {
		if existing == h {
			r.handles = append(r.handles[:i], r.handles[i+1:]...)
			r.logger.Info("Worker removed", "workerID", h.ID, "addr", h.Addr)
			return
		}
	}
}

// Snapshot returns a point-in-time copy of the registered handles in
// insertion order. The copy is what partition assignment binds to.
func (r *Registry) Snapshot() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]*Handle, len(r.handles))
	copy(snapshot, r.handles)
	return snapshot
}

// Size returns the number of registered handles.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Broadcast sends msg to every handle in a snapshot taken at call time.
// A handle registered after the snapshot does not receive the message.
// Delivery failures are logged and heal the registry: the dead handle is
// removed and closed, and delivery continues to the remaining handles.
func (r *Registry) Broadcast(msg protocol.Message) {
	for _, h := range r.Snapshot() {
		if err := h.Send(msg); err != nil {
			r.logger.Error("Failed to broadcast to worker", "workerID", h.ID, "addr", h.Addr, "error", err)
			r.Unregister(h)
			_ = h.Close()
		}
	}
}

// CloseAll closes every registered connection and empties the registry.
// Used by the quit path.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()

	for _, h := range handles {
		if err := h.Close(); err != nil {
			r.logger.Error("Failed to close connection", "workerID", h.ID, "error", err)
		}
	}
}
