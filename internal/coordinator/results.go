package coordinator

import (
	"context"

	"gitlab.com/hashfleet.net/internal/coordinator/registry"
	"gitlab.com/hashfleet.net/internal/core/ports/primary"
	"gitlab.com/hashfleet.net/internal/core/ports/secondary"
	"gitlab.com/hashfleet.net/internal/protocol"
)

// ResultCoordinator reconciles FOUND reports with the validation
// authority and, on acceptance, calls the whole fleet off.
type ResultCoordinator struct {
	registry    *registry.Registry
	tasks       secondary.TaskService
	distributor *Distributor
	logger      primary.Logger
}

// NewResultCoordinator creates a new result coordinator
func NewResultCoordinator(
	reg *registry.Registry,
	tasks secondary.TaskService,
	distributor *Distributor,
	logger primary.Logger,
) *ResultCoordinator {
	return &ResultCoordinator{
		registry:    reg,
		tasks:       tasks,
		distributor: distributor,
		logger:      logger,
	}
}

// HandleFound processes one FOUND <hash> <nonce> report. Validation is
// synchronous. A rejected or failed validation is logged and nothing
// else happens: the reporting worker gets no reply and the rest of the
// fleet keeps searching.
func (rc *ResultCoordinator) HandleFound(ctx context.Context, from *registry.Handle, msg protocol.Message) {
	if len(msg.Args) < 2 {
		rc.logger.Error("Malformed FOUND report", "workerID", from.ID, "message", msg.String())
		return
	}
	hashHex, nonceHex := msg.Args[0], msg.Args[1]

	task := rc.distributor.ActiveTask()
	if task == nil {
		rc.logger.Warn("FOUND report with no active task", "workerID", from.ID, "hash", hashHex)
		return
	}

	accepted, err := rc.tasks.ValidateSolution(ctx, task.Difficulty, nonceHex, hashHex)
	if err != nil {
		rc.logger.Error("Solution validation failed", "workerID", from.ID, "error", err)
		return
	}
	if !accepted {
		rc.logger.Warn("Solution rejected", "workerID", from.ID, "hash", hashHex, "nonce", nonceHex)
		return
	}

	rc.logger.Info("Solution accepted", "workerID", from.ID, "hash", hashHex, "nonce", nonceHex)
	rc.registry.Broadcast(protocol.New(protocol.VerbCancelled))
	rc.distributor.ClearTask()
}
