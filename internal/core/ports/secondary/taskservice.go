package secondary

import "context"

// TaskService is the narrow port to the external work API: it generates
// mining payloads and validates candidate solutions. Both calls block and
// fail on transport errors; ValidateSolution additionally fails on any
// HTTP status >= 400.
type TaskService interface {
	// GenerateTask fetches the payload to mine for the given difficulty.
	GenerateTask(ctx context.Context, difficulty int) (string, error)

	// ValidateSolution submits a candidate (nonce and digest are lowercase
	// hex) and reports whether the authority accepted it.
	ValidateSolution(ctx context.Context, difficulty int, nonceHex, hashHex string) (bool, error)
}
