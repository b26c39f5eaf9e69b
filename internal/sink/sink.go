// Package sink defines the presentation surface consumed by the
// reconciler: the unread badge, the toast queue, and the audio cue.
package sink

import (
	"log/slog"

	"github.com/opsdash/notify-stream/internal/protocol"
)

//go:generate mockgen -source=sink.go -destination=mock_sink.go -package=sink

// Sink receives reconciled display updates. All three operations are
// fire-and-forget: implementations must not block the delivery path and
// own their own rendering and queueing.
type Sink interface {
	// SetUnreadCount replaces the numeric badge with the authoritative
	// unread total.
	SetUnreadCount(n int)

	// ShowToast renders a single notification. Called at most once per
	// notification identifier per session.
	ShowToast(ev protocol.NotificationEvent)

	// PlayAlertSound triggers the audio cue.
	PlayAlertSound()
}

// Log renders presentation calls as structured log lines. Stands in for
// the dashboard surface when running headless.
type Log struct {
	logger   *slog.Logger
	soundURL string
}

// NewLog creates a Log sink. soundURL is echoed on sound triggers so an
// operator can see which asset would play.
func NewLog(logger *slog.Logger, soundURL string) *Log {
	return &Log{logger: logger, soundURL: soundURL}
}

func (l *Log) SetUnreadCount(n int) {
	l.logger.Info("unread count", slog.Int("count", n))
}

func (l *Log) ShowToast(ev protocol.NotificationEvent) {
	l.logger.Info("toast",
		slog.String("id", ev.ID),
		slog.String("level", string(ev.Level)),
		slog.String("message", ev.Message),
		slog.String("target", ev.Target),
	)
}

func (l *Log) PlayAlertSound() {
	l.logger.Info("alert sound", slog.String("url", l.soundURL))
}

// Nop discards all presentation calls.
type Nop struct{}

var _ Sink = (*Nop)(nil)

func (Nop) SetUnreadCount(int)                   {}
func (Nop) ShowToast(protocol.NotificationEvent) {}
func (Nop) PlayAlertSound()                      {}
