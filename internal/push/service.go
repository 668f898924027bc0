package push

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rgacutan/bizcrm-api/internal/apperr"
	"github.com/rgacutan/bizcrm-api/internal/models"
)

// SendOutcome classifies one delivery attempt. Callers may log outcomes but
// the service never fails the triggering business operation.
type SendOutcome int

const (
	OutcomeSent SendOutcome = iota
	OutcomePermanent
	OutcomeTransient
	OutcomeSkipped
)

func (o SendOutcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomePermanent:
		return "permanent_failure"
	case OutcomeTransient:
		return "transient_failure"
	default:
		return "skipped"
	}
}

// Result is the outcome of one endpoint attempt.
type Result struct {
	Endpoint string
	Outcome  SendOutcome
}

// attemptTimeout bounds each per-endpoint delivery so one slow push service
// cannot starve the user's other devices.
const attemptTimeout = 10 * time.Second

// Service sends encrypted Web Push messages to registered endpoints and
// manages the subscription rows. Without configured VAPID keys it runs in
// disabled mode: every call logs and no-ops (dev mode).
type Service struct {
	db         *gorm.DB
	publicKey  string
	privateKey string
	subject    string // administrative contact claim, e.g. mailto:ops@example.com
	client     *http.Client
	enabled    bool
}

func NewService(db *gorm.DB, vapidPublicKey, vapidPrivateKey, subject string) *Service {
	s := &Service{
		db:         db,
		publicKey:  vapidPublicKey,
		privateKey: vapidPrivateKey,
		subject:    subject,
		client:     &http.Client{Timeout: attemptTimeout},
		enabled:    vapidPublicKey != "" && vapidPrivateKey != "",
	}
	if !s.enabled {
		log.Println("Push: no VAPID keys configured, web push disabled")
	}
	return s
}

// payload is the encrypted message body the service worker unpacks.
type payload struct {
	Title          string `json:"title"`
	Message        string `json:"message"`
	ActionURL      string `json:"action_url"`
	NotificationID string `json:"notification_id,omitempty"`
}

// Send attempts one encrypted delivery per distinct endpoint registered to
// the user. Fire and forget: failures are logged, endpoints reported gone
// are deleted, and nothing propagates to the caller.
func (s *Service) Send(userID uuid.UUID, title, message, actionURL string, notificationID uuid.UUID) {
	s.SendWithResults(userID, title, message, actionURL, notificationID)
}

// SendWithResults is Send with per-endpoint outcomes, for callers that log.
func (s *Service) SendWithResults(userID uuid.UUID, title, message, actionURL string, notificationID uuid.UUID) []Result {
	if !s.enabled {
		return []Result{{Outcome: OutcomeSkipped}}
	}

	var subs []models.PushSubscription
	if err := s.db.Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		log.Printf("Push: loading subscriptions for %s: %v", userID, err)
		return []Result{{Outcome: OutcomeTransient}}
	}
	if len(subs) == 0 {
		return nil
	}

	if actionURL == "" {
		actionURL = "/"
	}
	body, err := json.Marshal(payload{
		Title:          title,
		Message:        message,
		ActionURL:      actionURL,
		NotificationID: notificationIDString(notificationID),
	})
	if err != nil {
		log.Printf("Push: marshal payload: %v", err)
		return []Result{{Outcome: OutcomeTransient}}
	}

	// Registration upserts by endpoint, but dedup defensively anyway.
	seen := make(map[string]bool, len(subs))
	results := make([]Result, 0, len(subs))
	for _, sub := range subs {
		if seen[sub.Endpoint] {
			continue
		}
		seen[sub.Endpoint] = true

		outcome := s.attempt(sub, body)
		if outcome == OutcomePermanent {
			// Endpoint reported gone: self-heal by dropping the row.
			if err := s.db.Delete(&models.PushSubscription{}, "endpoint = ?", sub.Endpoint).Error; err != nil {
				log.Printf("Push: removing dead endpoint: %v", err)
			} else {
				log.Printf("Push: removed dead endpoint %s", sub.Endpoint)
			}
		}
		results = append(results, Result{Endpoint: sub.Endpoint, Outcome: outcome})
	}
	return results
}

// attempt performs one encrypted delivery against a single endpoint.
func (s *Service) attempt(sub models.PushSubscription, body []byte) SendOutcome {
	ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.subject,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             60,
	})
	if err != nil {
		log.Printf("Push: %v", &apperr.TransportError{Endpoint: sub.Endpoint, Err: err})
		return OutcomeTransient
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OutcomeSent
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		log.Printf("Push: %v", &apperr.TransportError{Endpoint: sub.Endpoint, StatusCode: resp.StatusCode, Permanent: true})
		return OutcomePermanent
	default:
		log.Printf("Push: %v", &apperr.TransportError{Endpoint: sub.Endpoint, StatusCode: resp.StatusCode})
		return OutcomeTransient
	}
}

// Subscribe registers a device endpoint, reassigning ownership if the
// endpoint already exists under another user.
func (s *Service) Subscribe(user *models.User, endpoint, p256dh, auth string) (*models.PushSubscription, error) {
	if endpoint == "" {
		return nil, &apperr.ValidationError{Field: "endpoint", Reason: "endpoint is required"}
	}
	if p256dh == "" || auth == "" {
		return nil, &apperr.ValidationError{Field: "keys", Reason: "p256dh and auth keys are required"}
	}

	var sub models.PushSubscription
	err := s.db.Where(models.PushSubscription{Endpoint: endpoint}).
		Assign(models.PushSubscription{
			UserID:   user.ID,
			TenantID: user.TenantID,
			P256dh:   p256dh,
			Auth:     auth,
		}).
		FirstOrCreate(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Unsubscribe deletes the endpoint if the caller owns it.
func (s *Service) Unsubscribe(user *models.User, endpoint string) error {
	if endpoint == "" {
		return &apperr.ValidationError{Field: "endpoint", Reason: "endpoint is required"}
	}
	res := s.db.Delete(&models.PushSubscription{}, "endpoint = ? AND user_id = ?", endpoint, user.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// PublicKey returns the service's VAPID public key in the wire format
// browsers expect, whatever format it was configured in.
func (s *Service) PublicKey() (string, error) {
	if !s.enabled {
		return "", errors.New("web push is not configured")
	}
	return NormalizePublicKey(s.publicKey)
}

func notificationIDString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
