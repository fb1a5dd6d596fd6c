package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/jobs"
)

// RunDigest aggregates each due user's undigested events into a single
// digest email. Preferences are re-checked per event type at run time: an
// event whose type the user has since disabled is stamped as handled but
// not delivered. Returns the number of digest emails enqueued.
func (h *Hub) RunDigest(ctx context.Context, frequency string, now time.Time) (int, error) {
	prefs, err := h.store.ListDigestUsers(ctx, frequency, now.Weekday())
	if err != nil {
		return 0, fmt.Errorf("notify: list digest users: %w", err)
	}

	sent := 0
	for _, dp := range prefs {
		events, err := h.store.UndigestedEvents(ctx, dp.UserID)
		if err != nil {
			return sent, fmt.Errorf("notify: load events for %s: %w", dp.UserID, err)
		}
		if len(events) == 0 {
			continue
		}

		var lines []string
		ids := make([]string, 0, len(events))
		for _, ev := range events {
			ids = append(ids, ev.ID)

			pref, err := h.store.GetPreference(ctx, dp.UserID, ev.Type)
			if err != nil {
				return sent, fmt.Errorf("notify: read preference: %w", err)
			}
			if !pref.EmailEnabled {
				continue
			}
			lines = append(lines, fmt.Sprintf("<li>%s: %s</li>", ev.CreatedAt.Format("Jan 2"), ev.Type))
		}

		// All events are stamped, delivered or not, so the next run
		// starts fresh.
		if err := h.store.MarkDigested(ctx, ids); err != nil {
			return sent, fmt.Errorf("notify: mark digested: %w", err)
		}

		if len(lines) == 0 {
			continue
		}

		subject := fmt.Sprintf("Your %s learning digest", frequency)
		body := fmt.Sprintf("<ul>%s</ul>", strings.Join(lines, "\n"))
		_, err = jobs.EnqueueEmailSend(ctx, h.queue, jobs.EmailSendArgs{
			UserID:  dp.UserID,
			Type:    "digest",
			Subject: subject,
			Body:    body,
		})
		if err != nil {
			h.log.Error("failed to enqueue digest email",
				zap.String("user_id", dp.UserID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}
