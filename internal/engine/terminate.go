package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tebeka/atexit"
)

// ExitCodeCommunicationFailure is the process exit status used when a
// hardware read or write fails.
const ExitCodeCommunicationFailure = 1

// DefaultNotifyTimeout bounds the notification sent before terminating.
const DefaultNotifyTimeout = 15 * time.Second

// Terminator ends the process after a communication failure. The message
// describes the failure.
//
// If a Terminator returns (as the ones used in tests do), Run returns the
// communication error instead and no further cycle begins.
type Terminator func(message string)

// ExitTerminator prints the message to stderr, runs the handlers registered
// with atexit.Register (e.g. closing the trace store) and exits with
// ExitCodeCommunicationFailure.
func ExitTerminator(message string) {
	fmt.Fprintln(os.Stderr, message)
	atexit.Exit(ExitCodeCommunicationFailure)
}

// Notifier delivers operator notifications (alarms). Delivery is best
// effort: a failing notifier never prevents termination.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
