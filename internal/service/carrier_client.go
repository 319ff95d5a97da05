package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	carrierRetries    = 3
	carrierRetryDelay = 1 * time.Second
)

var codePattern = regexp.MustCompile(`\b\d{4,8}\b`)

// CarrierLease is a number obtained from the upstream carrier. LeaseID is the
// carrier-side handle used for code polling and release.
type CarrierLease struct {
	LeaseID  string
	DialCode string
	Number   string
}

// CarrierClient talks to the upstream number provider. Every call retries up
// to carrierRetries times with a fixed delay before giving up.
type CarrierClient struct {
	apiKey    string
	baseURL   string
	productID string
	client    *http.Client
	logger    *logrus.Logger
}

func NewCarrierClient(apiKey, baseURL, productID string, timeout time.Duration, logger *logrus.Logger) *CarrierClient {
	return &CarrierClient{
		apiKey:    apiKey,
		baseURL:   baseURL,
		productID: productID,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type carrierResponse struct {
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg"`
	Ret    struct {
		LeaseID  string `json:"qhid"`
		DialCode string `json:"quhao"`
		Number   string `json:"number"`
		SMS      string `json:"sms"`
	} `json:"ret"`
}

// AcquireNumber requests a fresh number for the given dial code. Passing a
// non-empty number asks the carrier for that specific number back, which it may
// refuse.
func (c *CarrierClient) AcquireNumber(ctx context.Context, dialCode, number string) (*CarrierLease, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("pid", c.productID)
	params.Set("quhao", dialCode)
	if number != "" {
		params.Set("number", number)
	}

	resp, err := c.makeRequest(ctx, "getnumber", params)
	if err != nil {
		return nil, err
	}

	return &CarrierLease{
		LeaseID:  resp.Ret.LeaseID,
		DialCode: resp.Ret.DialCode,
		Number:   resp.Ret.Number,
	}, nil
}

// FetchCode polls the carrier for an inbound message on the lease. Returns the
// extracted verification code and the raw message text; an empty code means no
// message has arrived yet.
func (c *CarrierClient) FetchCode(ctx context.Context, leaseID string) (string, string, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("qhid", leaseID)

	resp, err := c.makeRequest(ctx, "getcode", params)
	if err != nil {
		return "", "", err
	}

	if resp.Ret.SMS == "" {
		return "", "", nil
	}

	return extractCode(resp.Ret.SMS), resp.Ret.SMS, nil
}

// ReleaseLease returns the number to the carrier. Safe to call more than once;
// the carrier treats releasing an already-released lease as success.
func (c *CarrierClient) ReleaseLease(ctx context.Context, leaseID string) error {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("qhid", leaseID)

	_, err := c.makeRequest(ctx, "shifang", params)
	return err
}

func (c *CarrierClient) makeRequest(ctx context.Context, endpoint string, params url.Values) (*carrierResponse, error) {
	requestURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	var lastErr error
	for attempt := 1; attempt <= carrierRetries; attempt++ {
		resp, err := c.doRequest(ctx, requestURL)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.logger.Errorf("Carrier %s attempt %d/%d failed: %v", endpoint, attempt, carrierRetries, err)

		if attempt < carrierRetries {
			select {
			case <-time.After(carrierRetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("carrier %s failed after %d attempts: %w", endpoint, carrierRetries, lastErr)
}

func (c *CarrierClient) doRequest(ctx context.Context, requestURL string) (*carrierResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed carrierResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("invalid carrier response: %w", err)
	}

	if parsed.Errno != 0 {
		return nil, fmt.Errorf("carrier error %d: %s", parsed.Errno, parsed.Errmsg)
	}

	return &parsed, nil
}

// extractCode pulls the first 4-8 digit run out of a message body. Returns
// empty when the message carries no recognizable code.
func extractCode(message string) string {
	return codePattern.FindString(message)
}
