package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"artwork-orders/internal/models"
	"artwork-orders/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Destination is where an order is delivered
type Destination struct {
	AddressLine string `json:"addressLine1"`
	City        string `json:"city"`
	Zip         string `json:"postalCode"`
	Country     string `json:"country"`
}

// ShipmentDetail is the rate request sent to the carrier
type ShipmentDetail struct {
	Receiver  Destination `json:"receiverDetails"`
	ItemCount int         `json:"itemCount"`
}

type rate struct {
	Cost        *decimal.Decimal `json:"cost"`
	PricingTier string           `json:"pricingTier"`
}

type cachedQuote struct {
	cost      decimal.Decimal
	expiresAt time.Time
}

// TopshipClient quotes shipping and pays carriers from the shipping wallet.
// Identical quote requests in flight are collapsed and answers cached for ttl.
type TopshipClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	ttl   time.Duration
	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cachedQuote
}

func NewTopshipClient(baseURL, apiKey string, timeout, quoteTTL time.Duration) *TopshipClient {
	return &TopshipClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     util.GetLogger(),
		ttl:        quoteTTL,
		cache:      make(map[string]cachedQuote),
	}
}

// Quote returns the shipping cost for detail
func (c *TopshipClient) Quote(ctx context.Context, detail ShipmentDetail) (decimal.Decimal, error) {
	ctx, span := util.StartSpan(ctx, "TopshipClient.Quote")
	defer span.End()

	raw, err := json.Marshal(detail)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to marshal shipment detail: %w", err)
	}
	key := string(raw)

	if cost, ok := c.cached(key); ok {
		return cost, nil
	}

	// the shared fetch outlives any single caller; the client timeout bounds it
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if cost, ok := c.cached(key); ok {
			return cost, nil
		}
		cost, err := c.fetchQuote(fetchCtx, key)
		if err != nil {
			return decimal.Zero, err
		}
		c.store(key, cost)
		return cost, nil
	})

	select {
	case <-ctx.Done():
		util.FailSpan(span, ctx.Err())
		return decimal.Zero, fmt.Errorf("shipping rate: %v: %w", ctx.Err(), models.ErrUpstreamUnavailable)
	case res := <-ch:
		if res.Err != nil {
			util.FailSpan(span, res.Err)
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	}
}

// PayFromWallet pays the carrier for a booked shipment
func (c *TopshipClient) PayFromWallet(ctx context.Context, shipmentID string) error {
	ctx, span := util.StartSpan(ctx, "TopshipClient.PayFromWallet")
	defer span.End()

	start := time.Now()
	defer func() {
		util.UpstreamLatency.WithLabelValues("carrier", "pay_from_wallet").Observe(time.Since(start).Seconds())
	}()

	payload, err := json.Marshal(map[string]interface{}{
		"detail": map[string]string{"shipmentId": shipmentID},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal wallet payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pay-from-wallet", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build carrier request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		util.FailSpan(span, err)
		return fmt.Errorf("carrier payment: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn("Carrier rejected wallet payment",
			zap.String("shipment_id", shipmentID),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("carrier payment: status %d: %w", resp.StatusCode, models.ErrUpstreamUnavailable)
	}
	return nil
}

func (c *TopshipClient) fetchQuote(ctx context.Context, detail string) (decimal.Decimal, error) {
	start := time.Now()
	defer func() {
		util.UpstreamLatency.WithLabelValues("shipping_rate", "quote").Observe(time.Since(start).Seconds())
	}()

	endpoint := c.baseURL + "/get-shipment-rate?shipmentDetail=" + url.QueryEscape(detail)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build rate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Shipping rate call failed", zap.Error(err))
		return decimal.Zero, fmt.Errorf("shipping rate: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("shipping rate: status %d: %w", resp.StatusCode, models.ErrUpstreamUnavailable)
	}

	var rates []rate
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return decimal.Zero, fmt.Errorf("shipping rate: malformed response: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	if len(rates) == 0 || rates[0].Cost == nil || rates[0].Cost.IsNegative() {
		return decimal.Zero, fmt.Errorf("shipping rate: no usable quote: %w", models.ErrUpstreamUnavailable)
	}
	return *rates[0].Cost, nil
}

func (c *TopshipClient) cached(key string) (decimal.Decimal, bool) {
	c.mu.RLock()
	q, ok := c.cache[key]
	c.mu.RUnlock()
	if !ok {
		return decimal.Zero, false
	}
	if time.Now().After(q.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.cache[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.cache, key)
		}
		c.mu.Unlock()
		return decimal.Zero, false
	}
	return q.cost, true
}

func (c *TopshipClient) store(key string, cost decimal.Decimal) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cachedQuote{cost: cost, expiresAt: time.Now().Add(c.ttl)}
}
