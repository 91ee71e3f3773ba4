package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"i8gateway/apperr"
	"i8gateway/metrics"
	"i8gateway/models"
	"i8gateway/tokens"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client talks to an agent's wallet, which is the source of truth for
// player balances. Calls are never retried here.
type Client struct {
	httpClient  *http.Client
	serviceName string
	metrics     *metrics.Metrics
	log         zerolog.Logger
	now         func() time.Time
}

func NewClient(serviceName string, timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		serviceName: serviceName,
		metrics:     m,
		log:         log.With().Str("component", "wallet").Logger(),
		now:         time.Now,
	}
}

type userResponse struct {
	Credit *decimal.Decimal `json:"credit"`
}

type balanceRequest struct {
	UserID      string      `json:"userId"`
	ServiceName string      `json:"serviceName"`
	Balance     json.Number `json:"balance"`
	Reference   string      `json:"reference"`
}

// Balance returns the player's credit rounded to cents.
func (c *Client) Balance(ctx context.Context, agent *models.Agent, userID string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/api/users/%s", strings.TrimRight(agent.CallbackDomain, "/"), userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, c.fail("get_user", agent, userID, err)
	}
	if err := c.authorize(req, agent); err != nil {
		return decimal.Zero, c.fail("get_user", agent, userID, err)
	}

	body, err := c.do(req, "get_user")
	if err != nil {
		return decimal.Zero, c.fail("get_user", agent, userID, err)
	}

	var user userResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return decimal.Zero, c.fail("get_user", agent, userID, fmt.Errorf("decode user: %w", err))
	}
	if user.Credit == nil {
		return decimal.Zero, nil
	}
	return user.Credit.Round(2), nil
}

// Apply posts a signed delta to the wallet. A zero delta is not sent.
func (c *Client) Apply(ctx context.Context, agent *models.Agent, userID string, delta decimal.Decimal, reference string) error {
	if delta.IsZero() {
		return nil
	}

	payload, err := json.Marshal(balanceRequest{
		UserID:      userID,
		ServiceName: c.serviceName,
		Balance:     json.Number(delta.String()),
		Reference:   reference,
	})
	if err != nil {
		return c.fail("update_balance", agent, userID, err)
	}

	url := strings.TrimRight(agent.CallbackDomain, "/") + "/api/wallet/balance"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return c.fail("update_balance", agent, userID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-request-id", uuid.NewString())
	if err := c.authorize(req, agent); err != nil {
		return c.fail("update_balance", agent, userID, err)
	}

	if _, err := c.do(req, "update_balance"); err != nil {
		c.log.Error().Err(err).
			Str("reference", reference).
			Int("agentId", agent.AgentID).
			Str("userId", userID).
			Str("delta", delta.String()).
			Msg("failed to update credit")
		return apperr.Reported("wallet.update_balance", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request, agent *models.Agent) error {
	token, err := tokens.SignAgentToken(agent.AgentKey, agent.AgentID, c.now())
	if err != nil {
		return fmt.Errorf("sign agent token: %w", err)
	}
	req.Header.Set("Authorization", token)
	return nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, "error", start)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(op, "error", start)
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(op, "status", start)
		return nil, fmt.Errorf("wallet responded %s: %s", resp.Status, truncate(body, 256))
	}

	c.observe(op, "ok", start)
	return body, nil
}

func (c *Client) observe(op, result string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.WalletLatency.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func (c *Client) fail(op string, agent *models.Agent, userID string, err error) error {
	c.log.Error().Err(err).
		Str("op", op).
		Int("agentId", agent.AgentID).
		Str("userId", userID).
		Msg("wallet call failed")
	return apperr.Reported("wallet."+op, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
