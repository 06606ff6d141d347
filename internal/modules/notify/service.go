// README: Real-time fan-out over Redis pub/sub plus durable notification rows and
// outbound email. Everything here is best-effort: failures are logged, never returned,
// so a notification problem can never roll back a committed state transition.
package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"lastmile/internal/types"
)

// Mailer sends fire-and-forget email/SMS. Failures are logged by callers,
// not retried inline.
type Mailer interface {
	Send(to, subject, body string) error
}

type Service struct {
	redis  *redis.Client
	store  *Store
	mailer Mailer
}

func NewService(rdb *redis.Client, store *Store, mailer Mailer) *Service {
	return &Service{redis: rdb, store: store, mailer: mailer}
}

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Publish sends an event to every current subscriber of the channel.
// At-least-once toward Redis, no ordering across channels.
func (s *Service) Publish(ctx context.Context, channel, event string, payload any) {
	body, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		log.Printf("notify: marshal %s on %s: %v", event, channel, err)
		return
	}
	if err := s.redis.Publish(ctx, channel, body).Err(); err != nil {
		log.Printf("notify: publish %s on %s: %v", event, channel, err)
	}
}

// Notify persists a durable, queryable notification record for the user.
func (s *Service) Notify(ctx context.Context, userID types.ID, role, notifType, title, message, link string) {
	n := &Notification{
		UserID:  userID,
		Role:    role,
		Type:    notifType,
		Title:   title,
		Message: message,
		Link:    link,
	}
	if err := s.store.Create(ctx, n); err != nil {
		log.Printf("notify: persist %s for %s: %v", notifType, userID, err)
	}
}

// Email hands the message to the mailer.
func (s *Service) Email(to, subject, body string) {
	if to == "" {
		return
	}
	if err := s.mailer.Send(to, subject, body); err != nil {
		log.Printf("notify: email to %s: %v", to, err)
	}
}

func (s *Service) List(ctx context.Context, userID types.ID, limit int) ([]Notification, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID types.ID, id int64) error {
	return s.store.MarkRead(ctx, userID, id)
}
