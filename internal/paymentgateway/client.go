package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	paymentgatewaytypes "github.com/frahmantamala/settlement/internal/core/datamodel/paymentgateway"
	"golang.org/x/oauth2"
)

const maxResponseBytes = 1 << 20

// Client talks to the Mercado Pago REST API. Calls carry an explicit timeout
// and are never retried here; the provider redelivers notifications instead.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: config.AccessToken,
		TokenType:   "Bearer",
	})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = timeout

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		http:    httpClient,
		timeout: timeout,
		logger:  logger,
	}
}

func (c *Client) CreatePreference(ctx context.Context, req *paymentgatewaytypes.PreferenceRequest) (*paymentgatewaytypes.Preference, error) {
	if err := req.Validate(); err != nil {
		c.logger.Error("preference request validation failed", "error", err)
		return nil, errs.NewValidationError(err.Error(), errs.ErrCodeValidationFailed)
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preference request: %w", err)
	}

	var pref paymentgatewaytypes.Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", jsonData, &pref); err != nil {
		return nil, err
	}

	c.logger.Info("mercadopago preference created",
		"preference_id", pref.ID,
		"external_reference", req.ExternalReference)

	return &pref, nil
}

// GetPayment re-fetches a payment by id. Notification bodies are only a
// pointer to this record and are never trusted for status or amount.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*paymentgatewaytypes.Payment, error) {
	if paymentID == "" {
		return nil, errs.ErrMalformedPayload.WithMessage("payment id is required")
	}

	var p paymentgatewaytypes.Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &p); err != nil {
		return nil, err
	}

	c.logger.Debug("mercadopago payment fetched",
		"payment_id", p.ID,
		"status", p.Status,
		"external_reference", p.ExternalReference)

	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	ctx, cancel := errs.WithCallTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("mercadopago request failed", "method", method, "path", path, "error", err)
		return errs.ErrProviderUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errs.ErrProviderUnavailable.WithCause(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errs.ErrProviderNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		c.logger.Warn("mercadopago server error", "method", method, "path", path, "status_code", resp.StatusCode)
		return errs.ErrProviderUnavailable.WithCause(fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		c.logger.Error("mercadopago rejected request", "method", method, "path", path, "status_code", resp.StatusCode, "body", string(raw))
		return errs.NewExternalError(fmt.Sprintf("mercadopago returned status %d", resp.StatusCode), errs.ErrCodeProviderRejected)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errs.ErrProviderUnavailable.WithCause(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
