// Package notify tells users and downstream consumers about billing and
// credit changes.
package notify

import (
	"context"
	"fmt"
	"time"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/common/validation"
)

// Event names consumed by clients to trigger a balance refetch.
const (
	EventCreditsUpdated = "credits-updated"
	EventPaymentSuccess = "payment-success"
)

// Event is published after a balance-changing action.
type Event struct {
	Name             string    `json:"name"`
	UserKey          string    `json:"userKey"`
	Feature          string    `json:"feature,omitempty"`
	Credits          int       `json:"credits,omitempty"`
	RemainingCredits *int      `json:"remainingCredits,omitempty"`
	Plan             string    `json:"plan,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// PaymentFailure describes a failed invoice payment.
type PaymentFailure struct {
	UserKey    string
	Email      string
	CustomerID string
	AmountDue  int64
	Currency   string
}

type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	PaymentFailed(ctx context.Context, failure PaymentFailure) error
}

type emailSender interface {
	SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) (string, error)
}

type eventPublisher interface {
	PublishEvent(ctx context.Context, eventName string, payload interface{}) (string, error)
}

// AWSNotifier sends payment emails through SES and publishes events to SNS.
// Either channel may be nil, which disables it.
type AWSNotifier struct {
	email  emailSender
	events eventPublisher
	logger logger.Logger
	now    func() time.Time
}

func NewAWSNotifier(email emailSender, events eventPublisher, log logger.Logger) *AWSNotifier {
	return &AWSNotifier{
		email:  email,
		events: events,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
		now:    time.Now,
	}
}

func (n *AWSNotifier) Publish(ctx context.Context, ev Event) error {
	if n.events == nil {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = n.now().UTC()
	}

	id, err := n.events.PublishEvent(ctx, ev.Name, ev)
	if err != nil {
		return apperrors.NewNotificationSendFailedError("sns:"+ev.Name, err)
	}
	n.logger.Debug("event published", map[string]interface{}{
		"event":     ev.Name,
		"userKey":   ev.UserKey,
		"messageId": id,
	})
	return nil
}

func (n *AWSNotifier) PaymentFailed(ctx context.Context, f PaymentFailure) error {
	if n.email == nil || f.Email == "" {
		return nil
	}
	if !validation.ValidateEmail(f.Email) {
		n.logger.Warn("skipping payment failure email, bad address", map[string]interface{}{
			"userKey": f.UserKey,
		})
		return nil
	}

	subject, text, html := paymentFailedMessage(f)
	id, err := n.email.SendEmail(ctx, f.Email, subject, text, html)
	if err != nil {
		return apperrors.NewNotificationSendFailedError("email", err)
	}
	n.logger.Info("payment failure email sent", map[string]interface{}{
		"userKey":   f.UserKey,
		"messageId": id,
	})
	return nil
}

func paymentFailedMessage(f PaymentFailure) (string, string, string) {
	amount := ""
	if f.AmountDue > 0 {
		amount = fmt.Sprintf(" of %.2f %s", float64(f.AmountDue)/100, f.Currency)
	}
	subject := "Your subscription payment failed"
	text := fmt.Sprintf("We could not collect your subscription payment%s. "+
		"AI features are paused until the payment method is updated.", amount)
	html := "<p>" + text + "</p>"
	return subject, text, html
}

// NoOp drops every notification.
type NoOp struct{}

func (NoOp) Publish(context.Context, Event) error                { return nil }
func (NoOp) PaymentFailed(context.Context, PaymentFailure) error { return nil }
