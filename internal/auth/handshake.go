package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"gitlab.com/hashfleet.net/internal/protocol"
)

// ErrRejected is returned when the peer fails any step of the handshake.
// The caller closes the connection; there is no retry.
var ErrRejected = errors.New("handshake rejected")

// The handshake is a fixed four-step script run once per connection:
//
//	coordinator            worker
//	WHO_ARE_YOU_?    ->
//	                 <-    ITS_ME
//	GIMME_PASSWORD   ->
//	                 <-    PASSWD <secret>
//	HELLO_YOU        ->
//	                 <-    READY
//	OK               ->
//
// Any deviation on the worker side ends the script immediately. The
// coordinator then sends YOU_DONT_FOOL_ME so the peer learns it was
// rejected before the socket closes.

// Challenger drives the handshake from the coordinator side.
type Challenger struct {
	secret string
}

func NewChallenger(secret string) *Challenger {
	return &Challenger{secret: secret}
}

// Run executes the challenge script against the peer behind in/out.
// It returns ErrRejected on a wrong reply and the underlying error on
// I/O failure. The reader keeps its position, so the caller may continue
// reading protocol messages from the same scanner after success.
func (c *Challenger) Run(in *bufio.Scanner, out io.Writer) error {
	steps := []struct {
		prompt string
		expect string
	}{
		{protocol.VerbWhoAreYou, protocol.VerbItsMe},
		{protocol.VerbGimmePassword, protocol.VerbPasswd + " " + c.secret},
		{protocol.VerbHelloYou, protocol.VerbReady},
	}

	for _, step := range steps {
		if err := writeLine(out, step.prompt); err != nil {
			return err
		}
		reply, err := readLine(in)
		if err != nil {
			return err
		}
		if reply != step.expect {
			// Best effort: the peer may already be gone.
			_ = writeLine(out, protocol.VerbRejected)
			return ErrRejected
		}
	}

	return writeLine(out, protocol.VerbOK)
}

// Responder answers the handshake from the worker side.
type Responder struct {
	secret string
}

func NewResponder(secret string) *Responder {
	return &Responder{secret: secret}
}

// Run answers each coordinator prompt until OK or a rejection. Like
// Challenger.Run, the scanner position is preserved for the session loop.
func (r *Responder) Run(in *bufio.Scanner, out io.Writer) error {
	for {
		line, err := readLine(in)
		if err != nil {
			return err
		}
		switch line {
		case protocol.VerbWhoAreYou:
			if err := writeLine(out, protocol.VerbItsMe); err != nil {
				return err
			}
		case protocol.VerbGimmePassword:
			if err := writeLine(out, protocol.VerbPasswd+" "+r.secret); err != nil {
				return err
			}
		case protocol.VerbHelloYou:
			if err := writeLine(out, protocol.VerbReady); err != nil {
				return err
			}
		case protocol.VerbOK:
			return nil
		case protocol.VerbRejected:
			return ErrRejected
		default:
			return fmt.Errorf("unexpected handshake prompt %q: %w", line, ErrRejected)
		}
	}
}

func writeLine(out io.Writer, line string) error {
	if _, err := io.WriteString(out, line+"\n"); err != nil {
		return fmt.Errorf("failed to write handshake line: %w", err)
	}
	return nil
}

func readLine(in *bufio.Scanner) (string, error) {
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return in.Text(), nil
}
