package domain

// MiningTask is the single assignment the fleet may be working on at any
// time: the required number of leading hex zeros, the opaque payload to
// mine, and the size of the worker snapshot the nonce space was split over.
type MiningTask struct {
	Difficulty int    `json:"difficulty"`
	Payload    string `json:"payload"`
	Workers    int    `json:"workers"`
}

// NonceAssignment is one worker's slice of the nonce space: the congruence
// class {Start, Start+Step, Start+2*Step, ...}. For a snapshot of N workers
// the assignments {(i, N) : i in [0,N)} cover every non-negative integer
// exactly once.
type NonceAssignment struct {
	Start int64 `json:"start"`
	Step  int64 `json:"step"`
}

// Contains reports whether nonce n falls in this assignment's class.
func (a NonceAssignment) Contains(n int64) bool {
	if a.Step <= 0 || n < a.Start {
		return false
	}
	return (n-a.Start)%a.Step == 0
}

// Partition splits the nonce space over n workers by position.
func Partition(n int) []NonceAssignment {
	assignments := make([]NonceAssignment, n)
	for i := 0; i < n; i++ {
		assignments[i] = NonceAssignment{Start: int64(i), Step: int64(n)}
	}
	return assignments
}
