package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	wserrors "github.com/opsdash/notify-stream/internal/errors"
)

// Frame kinds. Every inbound message carries a "kind" discriminator that
// selects the body shape.
const (
	KindUnreadCount  = "unread_count"
	KindNotification = "notification"
	KindPing         = "ping"
	KindPong         = "pong"

	// KindResync is outbound only: sent best-effort after the socket opens
	// to request a fresh unread_count snapshot.
	KindResync = "resync"
)

// Level classifies a notification's severity, mirroring the levels the
// backend's type registry assigns.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Valid reports whether l is a known severity level.
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return true
	}
	return false
}

// NotificationEvent is a single pushed item. Immutable once decoded.
// The backend does not guarantee exactly-once delivery across reconnects,
// so the same ID may arrive more than once.
type NotificationEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type,omitempty"`
	Level     Level     `json:"level,omitempty"`
	Message   string    `json:"message"`
	Target    string    `json:"target,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// UnreadCountFrame carries an authoritative unread snapshot. Sent on
// connect and whenever the backend's true count changes for reasons the
// client did not itself cause.
type UnreadCountFrame struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// NotificationFrame wraps a pushed NotificationEvent.
type NotificationFrame struct {
	Kind         string            `json:"kind"`
	Notification NotificationEvent `json:"notification"`
}

// Frame is a decoded inbound frame. Count is meaningful only for
// unread_count frames, Notification only for notification frames.
type Frame struct {
	Kind         string
	Count        int
	Notification *NotificationEvent
}

// Decode parses a raw text frame. The kind is sniffed first so the body
// is only unmarshalled into the matching shape. All failures wrap
// ErrProtocol; the caller logs and drops the frame without closing the
// connection.
func Decode(data []byte) (Frame, error) {
	if !gjson.ValidBytes(data) {
		return Frame{}, fmt.Errorf("%w: invalid JSON (%d bytes)", wserrors.ErrProtocol, len(data))
	}

	kind := gjson.GetBytes(data, "kind").Str
	if kind == "" {
		return Frame{}, fmt.Errorf("%w: missing kind", wserrors.ErrProtocol)
	}

	switch kind {
	case KindPing, KindPong:
		return Frame{Kind: kind}, nil

	case KindUnreadCount:
		var f UnreadCountFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return Frame{}, fmt.Errorf("%w: decoding unread_count: %v", wserrors.ErrProtocol, err)
		}
		return Frame{Kind: kind, Count: f.Count}, nil

	case KindNotification:
		var f NotificationFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return Frame{}, fmt.Errorf("%w: decoding notification: %v", wserrors.ErrProtocol, err)
		}
		if f.Notification.ID == "" {
			return Frame{}, fmt.Errorf("%w: notification without id", wserrors.ErrProtocol)
		}
		// Unknown severities degrade rather than kill the frame. The
		// type registry may still override this from the event's type.
		if f.Notification.Level != "" && !f.Notification.Level.Valid() {
			f.Notification.Level = LevelInfo
		}
		ev := f.Notification
		return Frame{Kind: kind, Notification: &ev}, nil

	default:
		return Frame{}, fmt.Errorf("%w: %q", wserrors.ErrUnknownKind, kind)
	}
}

// Control returns the wire form of a business-free control frame such as
// ping, pong, or resync.
func Control(kind string) []byte {
	return []byte(`{"kind":"` + kind + `"}`)
}
