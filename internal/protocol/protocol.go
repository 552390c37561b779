package protocol

import "strings"

// Protocol verbs exchanged between the coordinator and its workers.
// Every message is one line of text: a verb followed by space-separated
// arguments. PAYLOAD is the exception: everything after the verb is one
// opaque argument.
const (
	// Handshake, coordinator -> worker
	VerbWhoAreYou     = "WHO_ARE_YOU_?"
	VerbGimmePassword = "GIMME_PASSWORD"
	VerbHelloYou      = "HELLO_YOU"
	VerbOK            = "OK"
	VerbRejected      = "YOU_DONT_FOOL_ME"

	// Handshake, worker -> coordinator
	VerbItsMe  = "ITS_ME"
	VerbPasswd = "PASSWD"

	// Task control, coordinator -> worker
	VerbNonce     = "NONCE"
	VerbPayload   = "PAYLOAD"
	VerbSolve     = "SOLVE"
	VerbProgress  = "PROGRESS"
	VerbCancelled = "CANCELLED"
	VerbQuit      = "QUIT"

	// Reports, worker -> coordinator. READY is both the last handshake
	// reply and the idle signal sent at the end of every mining cycle.
	VerbReady   = "READY"
	VerbTesting = "TESTING"
	VerbNope    = "NOPE"
	VerbFound   = "FOUND"
)

// Message is a single line of the wire protocol, split into its verb and
// arguments. Messages carry no state beyond the line itself.
type Message struct {
	Verb string
	Args []string
}

// New builds a message from a verb and its arguments.
func New(verb string, args ...string) Message {
	return Message{Verb: verb, Args: args}
}

// Parse splits a raw line into a Message. The PAYLOAD argument is kept
// whole so task data may contain spaces. Unknown verbs parse fine; the
// receiver decides what to do with them.
func Parse(line string) Message {
	line = strings.TrimRight(line, "\r\n")
	verb, rest, found := strings.Cut(line, " ")
	if !found {
		return Message{Verb: verb}
	}
	if verb == VerbPayload {
		return Message{Verb: verb, Args: []string{rest}}
	}
	return Message{Verb: verb, Args: strings.Fields(rest)}
}

// String renders the message back into its wire form, without the
// trailing newline.
func (m Message) String() string {
	if len(m.Args) == 0 {
		return m.Verb
	}
	return m.Verb + " " + strings.Join(m.Args, " ")
}
