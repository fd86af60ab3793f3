// Package chain is the boundary to the external settlement ledger and
// policy registry. Funds custody and movement happen there; this side
// only pushes levels, reads thresholds, and requests payouts. All
// amounts and levels cross this boundary in native integer units.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/riverguard/parametric-api/pkg/circuitbreaker"
)

// Client is the registry/settlement contract surface.
type Client interface {
	// UpdateLevel pushes a station's level to the on-chain registry.
	UpdateLevel(ctx context.Context, stationID string, level int64) error
	// GetThreshold reads the registry's payout-trigger level.
	GetThreshold(ctx context.Context) (int64, error)
	// Pay moves funds to the recipient and returns the transaction
	// reference. Callable only with the configured signer key.
	Pay(ctx context.Context, recipient string, amount int64) (string, error)
}

type Config struct {
	Endpoint        string
	RegistryAddress string
	SignerKey       string
	Timeout         time.Duration
}

type httpClient struct {
	cfg  Config
	http *http.Client
	cb   *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		cb: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "settlement-chain",
			MaxFailures: 5,
			Timeout:     time.Minute,
		}),
	}
}

type rpcRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *httpClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	return c.cb.Execute(func() error {
		body, err := json.Marshal(rpcRequest{Method: method, Params: params})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.SignerKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("chain rpc failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("chain rpc returned %d", resp.StatusCode)
		}

		var rpcResp rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
			return fmt.Errorf("malformed chain response: %w", err)
		}
		if rpcResp.Error != nil {
			return fmt.Errorf("chain rpc error: %s", rpcResp.Error.Message)
		}
		if result != nil {
			return json.Unmarshal(rpcResp.Result, result)
		}
		return nil
	})
}

func (c *httpClient) UpdateLevel(ctx context.Context, stationID string, level int64) error {
	return c.call(ctx, "registry.updateLevel", map[string]interface{}{
		"registry": c.cfg.RegistryAddress,
		"station":  stationID,
		"level":    level,
	}, nil)
}

func (c *httpClient) GetThreshold(ctx context.Context) (int64, error) {
	var result struct {
		Level int64 `json:"level"`
	}
	err := c.call(ctx, "registry.getThreshold", map[string]interface{}{
		"registry": c.cfg.RegistryAddress,
	}, &result)
	if err != nil {
		return 0, err
	}
	return result.Level, nil
}

func (c *httpClient) Pay(ctx context.Context, recipient string, amount int64) (string, error) {
	var result struct {
		TxRef string `json:"tx_ref"`
	}
	err := c.call(ctx, "ledger.pay", map[string]interface{}{
		"recipient": recipient,
		"amount":    amount,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.TxRef, nil
}
