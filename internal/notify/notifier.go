// Package notify sends spread alerts for finished compare runs to chat
// webhooks (Discord, Telegram).
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// DefaultMinSpread is the alert threshold used when none is configured.
const DefaultMinSpread = 0.1

// maxAlertLines caps how many comparisons one alert lists.
const maxAlertLines = 5

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier alerts every sender about comparisons whose spread reaches the
// threshold.
type Notifier struct {
	senders   []Sender
	minSpread float64
	logger    *slog.Logger
}

// NewNotifier creates a Notifier. An out-of-range minSpread falls back to
// DefaultMinSpread.
func NewNotifier(senders []Sender, minSpread float64, logger *slog.Logger) *Notifier {
	if minSpread <= 0 || minSpread > 1 {
		minSpread = DefaultMinSpread
	}
	return &Notifier{
		senders:   senders,
		minSpread: minSpread,
		logger:    logger.With(slog.String("component", "notifier")),
	}
}

// NotifyRun sends one alert listing the run's wide-spread comparisons. Runs
// with none are skipped. Sender failures are joined into the returned error;
// one failing sender does not stop delivery to the rest.
func (n *Notifier) NotifyRun(ctx context.Context, run domain.ComparisonRun) error {
	wide := n.wideSpreads(run.Comparisons)
	if len(wide) == 0 || len(n.senders) == 0 {
		return nil
	}

	title := fmt.Sprintf("Spread alert: %q", run.Query)
	message := formatAlert(wide)

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.Int("comparisons", len(wide)),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

// wideSpreads returns comparisons at or above the threshold, widest first.
func (n *Notifier) wideSpreads(cs []domain.Comparison) []domain.Comparison {
	var out []domain.Comparison
	for _, c := range cs {
		if c.Spread >= n.minSpread {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Spread > out[j].Spread })
	return out
}

func formatAlert(cs []domain.Comparison) string {
	var b strings.Builder
	for i, c := range cs {
		if i == maxAlertLines {
			fmt.Fprintf(&b, "... and %d more\n", len(cs)-maxAlertLines)
			break
		}
		fmt.Fprintf(&b, "%s (spread %.1f pts)\n", c.Title, c.Spread*100)

		platforms := make([]string, 0, len(c.Platforms))
		for p := range c.Platforms {
			platforms = append(platforms, string(p))
		}
		sort.Strings(platforms)
		for _, p := range platforms {
			q := c.Platforms[domain.Platform(p)]
			fmt.Fprintf(&b, "  %s: %.1f%%\n", p, q.Probability*100)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
