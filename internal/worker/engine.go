package worker

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/rcrowley/go-metrics"

	"gitlab.com/hashfleet.net/internal/core/ports/primary"
	"gitlab.com/hashfleet.net/internal/domain"
	"gitlab.com/hashfleet.net/internal/protocol"
)

// hashrateBatch is how many digests are computed between meter marks.
const hashrateBatch = 0x7FFF

// SendFunc delivers one protocol message to the coordinator.
type SendFunc func(protocol.Message) error

// Engine walks one congruence class of the nonce space looking for a
// digest with enough leading hex zeros. The walk is cooperative: the
// running flag is checked at the top of every iteration and flipping it
// costs the loop at most one more digest.
type Engine struct {
	logger   primary.Logger
	running  atomic.Bool
	current  atomic.Pointer[big.Int]
	hashrate metrics.Meter
	wg       sync.WaitGroup

	mu         sync.Mutex
	assignment domain.NonceAssignment
	payload    string
}

// NewEngine creates a search engine. Until a NONCE assignment arrives the
// engine walks the whole nonce space (start 0, step 1).
func NewEngine(logger primary.Logger) *Engine {
	return &Engine{
		logger:     logger,
		hashrate:   metrics.NewMeter(),
		assignment: domain.NonceAssignment{Start: 0, Step: 1},
	}
}

// SetAssignment stores the congruence class for the next solve.
func (e *Engine) SetAssignment(start, step int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assignment = domain.NonceAssignment{Start: start, Step: step}
}

// SetPayload stores the task data for the next solve.
func (e *Engine) SetPayload(payload string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payload = payload
}

// Searching reports whether a solve loop is running.
func (e *Engine) Searching() bool {
	return e.running.Load()
}

// CurrentNonce returns the nonce the loop is at, for PROGRESS replies.
func (e *Engine) CurrentNonce() *big.Int {
	if n := e.current.Load(); n != nil {
		return new(big.Int).Set(n)
	}
	return new(big.Int)
}

// Stop asks the running solve loop to exit. Cooperative only: a digest
// already in flight completes before the loop observes the flag.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Hashrate returns the one-minute digest rate.
func (e *Engine) Hashrate() float64 {
	return e.hashrate.Rate1()
}

// Launch stops any previous solve, waits for its loop to exit, then
// starts a new one against the stored payload and assignment.
func (e *Engine) Launch(difficulty int, send SendFunc) {
	e.Stop()
	e.wg.Wait()

	e.running.Store(true)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.solve(difficulty, send)
	}()
}

// solve is the brute-force loop. On a hit it sends FOUND and stops; on
// any exit it sends READY to signal idle availability again.
func (e *Engine) solve(difficulty int, send SendFunc) {
	e.mu.Lock()
	payload := []byte(e.payload)
	assignment := e.assignment
	e.mu.Unlock()

	nonce := big.NewInt(assignment.Start)
	step := big.NewInt(assignment.Step)
	e.current.Store(new(big.Int).Set(nonce))

	e.logger.Info("Mining started",
		"difficulty", difficulty, "start", assignment.Start, "step", assignment.Step)

	var caltimes int64
	for e.running.Load() {
		digest := Digest(payload, nonce)

		caltimes++
		if caltimes == hashrateBatch {
			e.hashrate.Mark(caltimes)
			caltimes = 0
		}

		if MeetsDifficulty(digest, difficulty) {
			e.running.Store(false)
			nonceHex := hex.EncodeToString(NonceBytes(nonce))
			e.logger.Info("Solution found", "hash", digest, "nonce", nonceHex, "hashrate", e.Hashrate())
			if err := send(protocol.New(protocol.VerbFound, digest, nonceHex)); err != nil {
				e.logger.Error("Failed to report solution", "error", err)
			}
			break
		}

		nonce.Add(nonce, step)
		e.current.Store(new(big.Int).Set(nonce))
	}
	e.hashrate.Mark(caltimes)

	e.logger.Info("Mining stopped", "nonce", nonce.String())
	if err := send(protocol.New(protocol.VerbReady)); err != nil {
		e.logger.Error("Failed to send ready", "error", err)
	}
}

// Digest hashes payload ++ minimal big-endian nonce bytes with SHA-256
// and returns the lowercase hex form.
func Digest(payload []byte, nonce *big.Int) string {
	nb := NonceBytes(nonce)
	candidate := make([]byte, 0, len(payload)+len(nb))
	candidate = append(candidate, payload...)
	candidate = append(candidate, nb...)
	sum := sha256.Sum256(candidate)
	return hex.EncodeToString(sum[:])
}

// NonceBytes is the minimal big-endian encoding of the nonce. It grows
// with the nonce; zero encodes as a single zero byte so the FOUND report
// never carries an empty field.
func NonceBytes(nonce *big.Int) []byte {
	b := nonce.Bytes()
	if len(b) == 0 {
		return []byte{0}
	}
	return b
}

// MeetsDifficulty reports whether the hex digest starts with difficulty
// '0' characters. Difficulty zero always passes.
func MeetsDifficulty(digest string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(digest) {
		return false
	}
	for _, c := range digest[:difficulty] {
		if c != '0' {
			return false
		}
	}
	return true
}
