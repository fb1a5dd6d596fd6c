// Package notify fans domain events out to live in-app subscribers and,
// preference permitting, to the notification email queue.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/jobs"
	"github.com/edupipe/edupipe/internal/platform"
	"github.com/edupipe/edupipe/internal/queue"
)

// Event is one domain event addressed to a user.
type Event struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Hub is the in-process pub/sub fan-out. Delivery to subscribers is
// best-effort and at-most-once: a slow or absent subscriber just misses
// the event. Durable delivery happens through the email queue and the
// digest, both backed by the recorded event row.
type Hub struct {
	store *platform.Store
	queue *queue.Queue
	log   *zap.Logger

	mu   sync.RWMutex
	subs map[string][]chan Event // userID -> subscriber channels
}

// NewHub creates a Hub.
func NewHub(store *platform.Store, q *queue.Queue, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		store: store,
		queue: q,
		log:   log,
		subs:  make(map[string][]chan Event),
	}
}

// Subscribe registers a live in-app subscriber for one user. The returned
// cancel func must be called when the client disconnects.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	h.subs[userID] = append(h.subs[userID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		chans := h.subs[userID]
		for i, c := range chans {
			if c == ch {
				h.subs[userID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
	}
	return ch, cancel
}

// Publish records the event, fans it out to live subscribers, and
// enqueues an email job when the user's preference for this event type
// has email enabled. Preferences are read at publish time, not cached.
func (h *Hub) Publish(ctx context.Context, userID string, ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("notify: marshal event data: %w", err)
	}
	record := &platform.NotificationEvent{
		UserID:  userID,
		Type:    ev.Type,
		Payload: payload,
	}
	if err := h.store.RecordEvent(ctx, record); err != nil {
		return fmt.Errorf("notify: record event: %w", err)
	}

	pref, err := h.store.GetPreference(ctx, userID, ev.Type)
	if err != nil {
		return fmt.Errorf("notify: read preference: %w", err)
	}

	if pref.InAppEnabled {
		h.fanOut(userID, ev)
	}

	if pref.EmailEnabled {
		_, err := jobs.EnqueueEmailSend(ctx, h.queue, jobs.EmailSendArgs{
			UserID:  userID,
			EventID: record.ID,
			Type:    ev.Type,
			Subject: ev.Title,
			Body:    renderEventBody(ev),
		})
		if err != nil {
			// Email failures never block the publishing action.
			h.log.Error("failed to enqueue notification email",
				zap.String("user_id", userID),
				zap.String("type", ev.Type),
				zap.Error(err))
		}
	}

	return nil
}

// fanOut delivers to live subscribers with non-blocking sends.
func (h *Hub) fanOut(userID string, ev Event) {
	h.mu.RLock()
	chans := make([]chan Event, len(h.subs[userID]))
	copy(chans, h.subs[userID])
	h.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
			// Subscriber is slow; drop rather than block.
		}
	}
}

func renderEventBody(ev Event) string {
	body := ev.Title
	if len(ev.Data) > 0 {
		if extra, err := json.MarshalIndent(ev.Data, "", "  "); err == nil {
			body = fmt.Sprintf("%s\n<pre>%s</pre>", ev.Title, extra)
		}
	}
	return body
}
