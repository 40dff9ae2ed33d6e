package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"artwork-orders/internal/models"
	"artwork-orders/internal/util"

	"go.uber.org/zap"
)

// Transaction is the gateway's answer to an initialize call
type Transaction struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
}

// Verification is the gateway's view of a transaction
type Verification struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaidAt    string `json:"paid_at,omitempty"`
}

// Succeeded reports whether the gateway considers the charge settled
func (v *Verification) Succeeded() bool {
	return v.Status == "success"
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// PaystackClient talks to a Paystack-compatible REST API
type PaystackClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPaystackClient creates a gateway client with a per-call timeout
func NewPaystackClient(baseURL, apiKey string, timeout time.Duration) *PaystackClient {
	return &PaystackClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     util.GetLogger(),
	}
}

// InitializeTransaction creates a transaction for amountMinor (kobo, cents, ...)
func (c *PaystackClient) InitializeTransaction(ctx context.Context, email string, amountMinor int64, currency string) (*Transaction, error) {
	ctx, span := util.StartSpan(ctx, "PaystackClient.InitializeTransaction")
	defer span.End()

	body := map[string]interface{}{
		"email":    email,
		"amount":   amountMinor,
		"currency": currency,
	}

	var tx Transaction
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", "initialize", body, &tx); err != nil {
		util.FailSpan(span, err)
		return nil, err
	}
	if tx.Reference == "" || tx.AuthorizationURL == "" {
		err := fmt.Errorf("gateway initialize returned no reference: %w", models.ErrUpstreamUnavailable)
		util.FailSpan(span, err)
		return nil, err
	}
	return &tx, nil
}

// VerifyTransaction asks the gateway for the current status of reference
func (c *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (*Verification, error) {
	ctx, span := util.StartSpan(ctx, "PaystackClient.VerifyTransaction")
	defer span.End()

	var v Verification
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, "verify", nil, &v); err != nil {
		util.FailSpan(span, err)
		return nil, err
	}
	return &v, nil
}

// VerifySignature checks the HMAC-SHA512 webhook signature computed with the secret key
func (c *PaystackClient) VerifySignature(body []byte, signature string) bool {
	if c.apiKey == "" {
		return true
	}
	mac := hmac.New(sha512.New, []byte(c.apiKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (c *PaystackClient) do(ctx context.Context, method, path, op string, in, out interface{}) error {
	start := time.Now()
	defer func() {
		util.UpstreamLatency.WithLabelValues("payment_gateway", op).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal gateway request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Gateway call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("gateway %s: %v: %w", op, err, models.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("gateway %s: malformed response: %v: %w", op, err, models.ErrUpstreamUnavailable)
	}
	if resp.StatusCode >= 300 || !env.Status {
		c.logger.Warn("Gateway rejected request",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", env.Message))
		return fmt.Errorf("gateway %s: status %d: %s: %w", op, resp.StatusCode, env.Message, models.ErrUpstreamUnavailable)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("gateway %s: malformed data: %v: %w", op, err, models.ErrUpstreamUnavailable)
	}
	return nil
}
