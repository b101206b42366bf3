package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrProcessorUnavailable marks transient processor failures (network errors,
// 5xx). Callers retry; no state was persisted on their behalf.
var ErrProcessorUnavailable = errors.New("payment processor unavailable")

// ErrDestinationInvalid marks a missing or inactive payout destination. Fatal
// for the current call; requires operator or user follow-up, never an
// automatic retry.
var ErrDestinationInvalid = errors.New("payout destination invalid")

type CheckoutSession struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

type AccountStatus struct {
	PayoutsEnabled bool `json:"payouts_enabled"`
	ChargesEnabled bool `json:"charges_enabled"`
}

// ProcessorClient is the external payment processor, treated as a black box.
// All calls are synchronous from the core's perspective.
type ProcessorClient interface {
	CreateCheckoutSession(ctx context.Context, amountCents int64, metadata map[string]string) (*CheckoutSession, error)
	Capture(ctx context.Context, reference string) error
	Refund(ctx context.Context, reference string, amountCents int64) error
	Transfer(ctx context.Context, destination string, amountCents int64) (string, error)
	GetAccountStatus(ctx context.Context, destination string) (*AccountStatus, error)
}

// HTTPProcessorClient talks JSON to the processor's REST API.
type HTTPProcessorClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProcessorClient(baseURL, apiKey string) *HTTPProcessorClient {
	return &HTTPProcessorClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

var _ ProcessorClient = (*HTTPProcessorClient)(nil)

func (c *HTTPProcessorClient) CreateCheckoutSession(ctx context.Context, amountCents int64, metadata map[string]string) (*CheckoutSession, error) {
	var sess CheckoutSession
	err := c.post(ctx, "/v1/checkout/sessions", map[string]any{
		"amount_cents": amountCents,
		"metadata":     metadata,
	}, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *HTTPProcessorClient) Capture(ctx context.Context, reference string) error {
	return c.post(ctx, "/v1/charges/"+url.PathEscape(reference)+"/capture", map[string]any{}, nil)
}

func (c *HTTPProcessorClient) Refund(ctx context.Context, reference string, amountCents int64) error {
	return c.post(ctx, "/v1/charges/"+url.PathEscape(reference)+"/refund", map[string]any{
		"amount_cents": amountCents,
	}, nil)
}

func (c *HTTPProcessorClient) Transfer(ctx context.Context, destination string, amountCents int64) (string, error) {
	var out struct {
		TransferID string `json:"transfer_id"`
	}
	err := c.post(ctx, "/v1/transfers", map[string]any{
		"destination":  destination,
		"amount_cents": amountCents,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.TransferID, nil
}

func (c *HTTPProcessorClient) GetAccountStatus(ctx context.Context, destination string) (*AccountStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/accounts/"+url.PathEscape(destination), nil)
	if err != nil {
		return nil, err
	}
	var st AccountStatus
	if err := c.do(req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPProcessorClient) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPProcessorClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: processor returned status %d", ErrDestinationInvalid, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: processor returned status %d", ErrProcessorUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("processor returned status %d", resp.StatusCode)
	}
}
