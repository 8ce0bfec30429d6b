// Package creditclient is the client-side mirror of a user's credit balance:
// an HTTP client for the credit API, a cache with optimistic consumption,
// and the feature gate decision built on it.
package creditclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	commonhttp "careerkit-credits/internal/common/http"
)

var ErrUnauthenticated = errors.New("creditclient: unauthenticated")

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Subscription is the balance as the API reports it.
type Subscription struct {
	UserKey          string    `json:"userKey"`
	Plan             string    `json:"plan"`
	PlanName         string    `json:"planName"`
	Status           string    `json:"status"`
	TotalCredits     int       `json:"totalCredits"`
	UsedCredits      int       `json:"usedCredits"`
	RemainingCredits int       `json:"remainingCredits"`
	IsActive         bool      `json:"isActive"`
	Features         []string  `json:"features"`
	PeriodStart      time.Time `json:"periodStart"`
	PeriodEnd        time.Time `json:"periodEnd"`
	Degraded         bool      `json:"degraded"`
}

func (s *Subscription) clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.Features = append([]string(nil), s.Features...)
	return &c
}

type ConsumeResult struct {
	Success          bool          `json:"success"`
	RemainingCredits int           `json:"remainingCredits"`
	Subscription     *Subscription `json:"subscription"`
}

// DeniedError is a non-2xx answer from the consume endpoint.
type DeniedError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"error"`
	Remaining int    `json:"remainingCredits"`
	Required  int    `json:"requiredCredits"`
}

func (e *DeniedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("creditclient: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("creditclient: %s (status %d)", e.Message, e.Status)
}

// InsufficientCredits reports whether the server refused for lack of credits.
func (e *DeniedError) InsufficientCredits() bool {
	return e.Status == http.StatusPaymentRequired && e.Code == "INSUFFICIENT_CREDITS"
}

type Client struct {
	baseURL string
	http    *commonhttp.Client
	tokens  TokenSource
}

// NewClient builds a client for the API at baseURL. Requests are not
// retried so a consume is never sent twice.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    commonhttp.NewClient(timeout, 0),
		tokens:  tokens,
	}
}

func (c *Client) Balance(ctx context.Context) (*Subscription, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}
	var body struct {
		Subscription *Subscription `json:"subscription"`
	}
	if err := c.http.GetJSON(ctx, c.baseURL+"/api/credits/balance", headers, &body); err != nil {
		return nil, translate(err)
	}
	if body.Subscription == nil {
		return nil, errors.New("creditclient: balance response without subscription")
	}
	return body.Subscription, nil
}

// Consume charges feature. amount 0 lets the server apply the catalog cost.
func (c *Client) Consume(ctx context.Context, feature string, amount int) (*ConsumeResult, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}
	req := map[string]interface{}{"feature": feature}
	if amount > 0 {
		req["amount"] = amount
	}
	var out ConsumeResult
	if err := c.http.PostJSON(ctx, c.baseURL+"/api/credits/consume", headers, req, &out); err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (c *Client) headers(ctx context.Context) (map[string]string, error) {
	if c.tokens == nil {
		return nil, ErrUnauthenticated
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("creditclient: token: %w", err)
	}
	if token == "" {
		return nil, ErrUnauthenticated
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

func translate(err error) error {
	var statusErr *commonhttp.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	if statusErr.StatusCode == http.StatusUnauthorized {
		return ErrUnauthenticated
	}
	denied := &DeniedError{Status: statusErr.StatusCode}
	if jsonErr := json.Unmarshal([]byte(statusErr.Body), denied); jsonErr != nil || denied.Message == "" {
		denied.Message = http.StatusText(statusErr.StatusCode)
	}
	return denied
}
