package coordinator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gitlab.com/hashfleet.net/internal/coordinator/registry"
	"gitlab.com/hashfleet.net/internal/core/ports/primary"
	"gitlab.com/hashfleet.net/internal/protocol"
)

const helpText = ` • status - show connected workers
 • solve <d> - start mining at difficulty <d>
 • cancel - cancel the mining in progress
 • progress - ask every worker where it is
 • help - list available commands
 • quit - stop mining and shut the coordinator down`

// Console routes operator commands to the distributor and the registry.
// Commands are case-insensitive; unrecognized input is echoed back and
// never changes run state.
type Console struct {
	registry    *registry.Registry
	distributor *Distributor
	logger      primary.Logger
	in          io.Reader
	out         io.Writer
}

// NewConsole creates a new operator console
func NewConsole(
	reg *registry.Registry,
	distributor *Distributor,
	logger primary.Logger,
	in io.Reader,
	out io.Writer,
) *Console {
	return &Console{
		registry:    reg,
		distributor: distributor,
		logger:      logger,
		in:          in,
		out:         out,
	}
}

// Run reads operator commands until quit or end of input.
func (c *Console) Run(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "$ ")
		if !scanner.Scan() {
			return
		}
		if !c.Execute(ctx, strings.TrimSpace(scanner.Text())) {
			return
		}
	}
}

// Execute runs a single command line and reports whether the console
// should keep going. quit is the only command that returns false.
func (c *Console) Execute(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}

	fields := strings.Fields(line)
	command := strings.ToLower(fields[0])

	switch command {
	case "quit":
		return false
	case "status":
		c.handleStatus()
	case "solve":
		c.handleSolve(ctx, fields[1:])
	case "cancel":
		c.registry.Broadcast(protocol.New(protocol.VerbCancelled))
		c.distributor.ClearTask()
	case "progress":
		c.registry.Broadcast(protocol.New(protocol.VerbProgress))
	case "help":
		fmt.Fprintln(c.out, helpText)
	default:
		fmt.Fprintf(c.out, "unrecognized command: %s\n", line)
	}

	return true
}

func (c *Console) handleStatus() {
	snapshot := c.registry.Snapshot()
	if len(snapshot) == 0 {
		fmt.Fprintln(c.out, "No workers connected.")
		return
	}
	fmt.Fprintln(c.out, "Connected workers:")
	for _, h := range snapshot {
		fmt.Fprintf(c.out, " - %s\n", h.Addr)
	}
}

func (c *Console) handleSolve(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.logger.Error("solve expects one difficulty argument")
		return
	}
	difficulty, err := strconv.Atoi(args[0])
	if err != nil {
		c.logger.Error("Invalid difficulty", "argument", args[0], "error", err)
		return
	}
	if err := c.distributor.Solve(ctx, difficulty); err != nil {
		c.logger.Error("Failed to start mining", "difficulty", difficulty, "error", err)
	}
}
