package errors

import (
	"errors"
	"fmt"
)

// Transport errors. Trigger backoff and reconnect, never surfaced as fatal.
var ErrTransport = errors.New("transport failure")

// Protocol errors. The offending frame is logged and dropped; the
// connection stays open.
var (
	ErrProtocol    = errors.New("malformed frame")
	ErrUnknownKind = fmt.Errorf("%w: unknown kind", ErrProtocol)
)

// Reconciliation errors. The displayed count is clamped to the last
// known-good value.
var ErrReconciliation = errors.New("implausible unread count")
