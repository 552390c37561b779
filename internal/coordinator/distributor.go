package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gitlab.com/hashfleet.net/internal/coordinator/registry"
	"gitlab.com/hashfleet.net/internal/core/ports/primary"
	"gitlab.com/hashfleet.net/internal/core/ports/secondary"
	"gitlab.com/hashfleet.net/internal/domain"
	"gitlab.com/hashfleet.net/internal/protocol"
)

var (
	// ErrTaskActive rejects a solve while a task is still unresolved.
	// The operator clears it with cancel, or an accepted FOUND clears it.
	ErrTaskActive = errors.New("a mining task is already active")

	// ErrNoWorkers rejects a solve against an empty fleet.
	ErrNoWorkers = errors.New("no workers connected")
)

// Distributor turns an operator solve request into a partitioned task:
// one snapshot of the fleet, a NONCE slice per worker, then the payload
// and the SOLVE order to that same snapshot.
type Distributor struct {
	registry *registry.Registry
	tasks    secondary.TaskService
	logger   primary.Logger

	mu     sync.Mutex
	active *domain.MiningTask
}

// NewDistributor creates a new work distributor
func NewDistributor(reg *registry.Registry, tasks secondary.TaskService, logger primary.Logger) *Distributor {
	return &Distributor{
		registry: reg,
		tasks:    tasks,
		logger:   logger,
	}
}

// Solve partitions the nonce space over the current fleet and broadcasts
// a new task. At most one task is active at a time. The snapshot taken
// here receives both the NONCE assignments and the PAYLOAD/SOLVE pair, so
// the partition property holds for exactly the set that mines the task.
func (d *Distributor) Solve(ctx context.Context, difficulty int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != nil {
		return ErrTaskActive
	}

	snapshot := d.registry.Snapshot()
	if len(snapshot) == 0 {
		return ErrNoWorkers
	}

	for i, assignment := range domain.Partition(len(snapshot)) {
		msg := protocol.New(protocol.VerbNonce,
			strconv.FormatInt(assignment.Start, 10),
			strconv.FormatInt(assignment.Step, 10),
		)
		if err := snapshot[i].Send(msg); err != nil {
			d.logger.Error("Failed to send nonce assignment", "workerID", snapshot[i].ID, "error", err)
		}
	}

	payload, err := d.tasks.GenerateTask(ctx, difficulty)
	if err != nil {
		return fmt.Errorf("failed to generate task: %w", err)
	}

	for _, h := range snapshot {
		if err := h.Send(protocol.New(protocol.VerbPayload, payload)); err != nil {
			d.logger.Error("Failed to send payload", "workerID", h.ID, "error", err)
			continue
		}
		if err := h.Send(protocol.New(protocol.VerbSolve, strconv.Itoa(difficulty))); err != nil {
			d.logger.Error("Failed to send solve", "workerID", h.ID, "error", err)
		}
	}

	d.active = &domain.MiningTask{
		Difficulty: difficulty,
		Payload:    payload,
		Workers:    len(snapshot),
	}
	d.logger.Info("Task distributed", "difficulty", difficulty, "workers", len(snapshot))

	return nil
}

// ActiveTask returns a copy of the task in flight, or nil.
func (d *Distributor) ActiveTask() *domain.MiningTask {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	task := *d.active
	return &task
}

// ClearTask marks the current task resolved so a new solve may start.
func (d *Distributor) ClearTask() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = nil
}
