package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wavehaus/bookings_backend/config"
	"github.com/wavehaus/bookings_backend/utils"
)

// Processor-native payment statuses. The workflow maps these onto the
// local ledger's pending/completed/failed.
const (
	PaymentStatusSucceeded             = "succeeded"
	PaymentStatusCanceled              = "canceled"
	PaymentStatusProcessing            = "processing"
	PaymentStatusRequiresPaymentMethod = "requires_payment_method"
	PaymentStatusRequiresConfirmation  = "requires_confirmation"
	PaymentStatusRequiresAction        = "requires_action"

	RefundStatusSucceeded = "succeeded"
)

// Refund is one refund attached to a processor payment. Amount is in
// minor units (cents).
type Refund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// Payment is the processor's authoritative view of one charge. Amount is
// in minor units. Refunds are expanded in the same retrieve call so the
// run spends exactly one API call per local payment.
type Payment struct {
	ID      string   `json:"id"`
	Amount  int64    `json:"amount"`
	Status  string   `json:"status"`
	Created int64    `json:"created"`
	Refunds []Refund `json:"refunds"`
}

func (p Payment) CreatedAt() time.Time {
	return time.Unix(p.Created, 0).UTC()
}

type listPaymentsPage struct {
	Data    []Payment `json:"data"`
	HasMore bool      `json:"has_more"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

const listPageSize = 100

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logrus.Logger
}

func NewClient(settings config.ProcessorSettings, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: settings.BaseURL,
		apiKey:  settings.APIKey,
		http:    &http.Client{Timeout: settings.RequestTimeout},
		logger:  logger,
	}
}

// RetrievePayment fetches one payment with its refunds expanded.
// A 404 means the processor has no record for this id: that is a valid
// answer (missing_payment territory), returned as (nil, nil).
func (c *Client) RetrievePayment(ctx context.Context, externalId string) (*Payment, error) {
	endpoint := fmt.Sprintf("%s/v1/payments/%s?expand=refunds", c.baseURL, url.PathEscape(externalId))

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, c.apiError(status, body, "retrieve payment "+externalId)
	}

	var payment Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, &utils.RemoteApiError{Message: "malformed retrieve response for " + externalId, Err: err}
	}
	return &payment, nil
}

// ListPaymentsCreatedBetween enumerates processor payments created in
// [from, to], following pagination. It returns the payments and the number
// of API calls spent, so the caller can keep its call-budget accounting
// exact.
func (c *Client) ListPaymentsCreatedBetween(ctx context.Context, from, to time.Time) ([]Payment, int, error) {
	var all []Payment
	calls := 0
	startingAfter := ""

	for {
		q := url.Values{}
		q.Set("created_gte", strconv.FormatInt(from.Unix(), 10))
		q.Set("created_lte", strconv.FormatInt(to.Unix(), 10))
		q.Set("limit", strconv.Itoa(listPageSize))
		if startingAfter != "" {
			q.Set("starting_after", startingAfter)
		}
		endpoint := fmt.Sprintf("%s/v1/payments?%s", c.baseURL, q.Encode())

		body, status, err := c.get(ctx, endpoint)
		calls++
		if err != nil {
			return nil, calls, err
		}
		if status != http.StatusOK {
			return nil, calls, c.apiError(status, body, "list payments")
		}

		var page listPaymentsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, calls, &utils.RemoteApiError{Message: "malformed list response", Err: err}
		}
		all = append(all, page.Data...)

		if !page.HasMore || len(page.Data) == 0 {
			return all, calls, nil
		}
		startingAfter = page.Data[len(page.Data)-1].ID
	}
}

// get performs one authenticated GET with a single retry on 429, honoring
// Retry-After when the processor sends one.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, 0, &utils.RemoteApiError{Message: "building request", Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, 0, &utils.RemoteApiError{Message: "request failed", Err: err}
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, &utils.RemoteApiError{StatusCode: resp.StatusCode, Message: "reading response", Err: readErr}
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt == 0 {
			wait := retryAfter(resp)
			c.logger.WithFields(logrus.Fields{
				"module": "processor",
				"wait":   wait.String(),
			}).Warn("processor rate limited; backing off once")
			select {
			case <-ctx.Done():
				return nil, resp.StatusCode, &utils.RemoteApiError{StatusCode: resp.StatusCode, Message: "rate limited", Err: ctx.Err()}
			case <-time.After(wait):
			}
			continue
		}

		return body, resp.StatusCode, nil
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 && seconds <= 30 {
			return time.Duration(seconds) * time.Second
		}
	}
	return time.Second
}

func (c *Client) apiError(status int, body []byte, context string) error {
	var parsed apiErrorBody
	message := context
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = context + ": " + parsed.Error.Message
	}
	return &utils.RemoteApiError{StatusCode: status, Message: message}
}
