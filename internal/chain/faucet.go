package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const faucetBodyReadLimit int64 = 1024

// FaucetClient requests test funds for the signer from a faucet HTTP endpoint.
type FaucetClient struct {
	httpClient *http.Client
	url        string
	limiter    *rate.Limiter
}

// FaucetOption configures optional client behavior.
type FaucetOption func(*FaucetClient)

// WithFaucetHTTPClient overrides the default HTTP client.
func WithFaucetHTTPClient(client *http.Client) FaucetOption {
	return func(c *FaucetClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithFaucetLimiter overrides the request limiter.
func WithFaucetLimiter(limiter *rate.Limiter) FaucetOption {
	return func(c *FaucetClient) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// NewFaucetClient builds a faucet client allowing requestsPerMinute calls.
func NewFaucetClient(url string, requestsPerMinute int, timeout time.Duration, opts ...FaucetOption) (*FaucetClient, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, fmt.Errorf("faucet url is required")
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &FaucetClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        trimmed,
		limiter:    rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type faucetRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// Fund asks the faucet to credit amount to address. It blocks on the limiter.
func (c *FaucetClient) Fund(ctx context.Context, address common.Address, amount decimal.Decimal) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return unavailable(err)
	}

	payload, err := json.Marshal(faucetRequest{Address: address.Hex(), Amount: amount.String()})
	if err != nil {
		return fmt.Errorf("marshal faucet request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build faucet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, faucetBodyReadLimit))
		return unavailable(fmt.Errorf("faucet status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	return nil
}
