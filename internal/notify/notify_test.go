package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmail struct {
	to, subject, text string
	err               error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, text, _ string) (string, error) {
	f.to, f.subject, f.text = to, subject, text
	return "msg-1", f.err
}

type fakePublisher struct {
	name    string
	payload interface{}
	err     error
}

func (f *fakePublisher) PublishEvent(_ context.Context, name string, payload interface{}) (string, error) {
	f.name, f.payload = name, payload
	return "sns-1", f.err
}

func TestAWSNotifier_PublishStampsTime(t *testing.T) {
	pub := &fakePublisher{}
	n := NewAWSNotifier(nil, pub, logger.NewTestLogger(t))
	fixed := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	require.NoError(t, n.Publish(context.Background(), Event{Name: EventCreditsUpdated, UserKey: "u"}))
	assert.Equal(t, EventCreditsUpdated, pub.name)
	ev, ok := pub.payload.(Event)
	require.True(t, ok)
	assert.Equal(t, fixed, ev.OccurredAt)
}

func TestAWSNotifier_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("sns down")}
	n := NewAWSNotifier(nil, pub, logger.NewTestLogger(t))

	err := n.Publish(context.Background(), Event{Name: EventPaymentSuccess, UserKey: "u"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotificationSendFailed))
	assert.ErrorIs(t, err, pub.err)
}

func TestAWSNotifier_PaymentFailed(t *testing.T) {
	mail := &fakeEmail{}
	n := NewAWSNotifier(mail, nil, logger.NewTestLogger(t))

	err := n.PaymentFailed(context.Background(), PaymentFailure{UserKey: "u", Email: "u@example.com", AmountDue: 1999, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "u@example.com", mail.to)
	assert.Contains(t, mail.text, "19.99 usd")
}

func TestAWSNotifier_DisabledChannelsAreSilent(t *testing.T) {
	n := NewAWSNotifier(nil, nil, logger.NewTestLogger(t))
	assert.NoError(t, n.Publish(context.Background(), Event{Name: EventCreditsUpdated}))
	assert.NoError(t, n.PaymentFailed(context.Background(), PaymentFailure{Email: "u@example.com"}))
}

func TestAWSNotifier_PaymentFailedWithoutEmailSkips(t *testing.T) {
	mail := &fakeEmail{}
	n := NewAWSNotifier(mail, nil, logger.NewTestLogger(t))
	require.NoError(t, n.PaymentFailed(context.Background(), PaymentFailure{UserKey: "u"}))
	assert.Empty(t, mail.to)
}

func TestAWSNotifier_PaymentFailedBadAddressSkips(t *testing.T) {
	mail := &fakeEmail{}
	n := NewAWSNotifier(mail, nil, logger.NewTestLogger(t))
	require.NoError(t, n.PaymentFailed(context.Background(), PaymentFailure{UserKey: "u", Email: "not-an-address"}))
	assert.Empty(t, mail.to)
}
