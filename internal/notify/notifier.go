// Package notify forwards risk alerts to external channels (Telegram,
// Discord). Alerts can be filtered by kind so operators receive only the
// signals they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// Sender is the interface each delivery channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier renders alerts and dispatches them to one or more Senders. It
// keeps a set of allowed alert kinds; alerts outside the set are dropped. An
// empty set allows everything.
type Notifier struct {
	senders []Sender
	kinds   map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders, filtered to
// the given alert kinds.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		allowed[strings.TrimSpace(k)] = true
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one delivery channel is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Send renders the alert and dispatches it to every sender. Individual sender
// failures are collected; one failing channel does not block the others.
func (n *Notifier) Send(ctx context.Context, alert domain.Alert) error {
	if len(n.kinds) > 0 && !n.kinds[string(alert.Kind)] {
		n.logger.DebugContext(ctx, "alert kind filtered out",
			slog.String("kind", string(alert.Kind)),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	title, message := render(alert)

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "alert delivered",
				slog.String("sender", s.Name()),
				slog.String("kind", string(alert.Kind)),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// render builds the human-readable title and body for an alert.
func render(alert domain.Alert) (title, message string) {
	label := strings.ReplaceAll(string(alert.Kind), "_", " ")
	title = fmt.Sprintf("⚠ %s", label)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", alert.Message)
	fmt.Fprintf(&b, "account: %s\n", shortAddr(alert.Account))
	if alert.Asset != "" {
		fmt.Fprintf(&b, "asset: %s\n", alert.Asset)
	}
	fmt.Fprintf(&b, "value: %.2f (threshold %.2f)", alert.Value, alert.Threshold)
	return title, b.String()
}

// shortAddr abbreviates a wallet address for display.
func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-4:]
}
