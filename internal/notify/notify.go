// Package notify delivers out-of-band notifications from the agent to
// its user. Pushover is the primary channel; MQTT and email fan out
// alongside it when configured.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

// ErrNotConfigured is returned when no channel is available.
var ErrNotConfigured = errors.New("no notification channel configured")

// Message is one notification.
type Message struct {
	Title     string `json:"title,omitempty"`
	Body      string `json:"body"`
	URL       string `json:"url,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Notifier is a single delivery channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher fans a message out to every registered channel.
type Dispatcher struct {
	notifiers []Notifier
	bus       *events.Bus
	logger    *slog.Logger
}

// NewDispatcher creates an empty dispatcher. bus may be nil.
func NewDispatcher(bus *events.Bus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{bus: bus, logger: logger.With("component", "notify")}
}

// Add registers a channel.
func (d *Dispatcher) Add(n Notifier) {
	d.notifiers = append(d.notifiers, n)
}

// Channels returns the registered channel names in registration order.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Configured reports whether at least one channel is registered.
func (d *Dispatcher) Configured() bool {
	return len(d.notifiers) > 0
}

// Send delivers msg on every channel and returns the names of those that
// succeeded. It fails only when no channel delivered.
func (d *Dispatcher) Send(ctx context.Context, msg Message) ([]string, error) {
	if len(d.notifiers) == 0 {
		return nil, ErrNotConfigured
	}

	var (
		delivered []string
		errs      []error
	)
	for _, n := range d.notifiers {
		err := n.Send(ctx, msg)
		d.bus.Emit(events.SourceNotify, events.KindNotifySent, map[string]any{
			"channel":    n.Name(),
			"ok":         err == nil,
			"session_id": msg.SessionID,
		})
		if err != nil {
			d.logger.Warn("notification failed", "channel", n.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		d.logger.Info("notification sent", "channel", n.Name(), "session", msg.SessionID)
		delivered = append(delivered, n.Name())
	}

	if len(delivered) == 0 {
		return nil, errors.Join(errs...)
	}
	return delivered, nil
}

// Register adds send_push_notification to r when a channel is configured.
func Register(r *tools.Registry, d *Dispatcher) {
	if d == nil || !d.Configured() {
		return
	}
	r.Register(&tools.Tool{
		Name:        "send_push_notification",
		Description: "Send a push notification to the user. Use it to report results of long tasks or anything the user asked to be notified about.",
		Parameters: tools.Schema(map[string]any{
			"text":  tools.Prop("string", "Notification text"),
			"title": tools.Prop("string", "Optional short title"),
			"url":   tools.Prop("string", "Optional link to include"),
		}, "text"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			text := tools.StringArg(args, "text")
			if strings.TrimSpace(text) == "" {
				return "", fmt.Errorf("text is required")
			}
			delivered, err := d.Send(ctx, Message{
				Title:     tools.StringArg(args, "title"),
				Body:      text,
				URL:       tools.StringArg(args, "url"),
				SessionID: tools.SessionIDFromContext(ctx),
			})
			if err != nil {
				return "", err
			}
			return "Notification sent via " + strings.Join(delivered, ", "), nil
		},
	})
}
