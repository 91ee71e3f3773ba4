// Package providers talks to the game provider's seamless API.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"i8gateway/apperr"
	"i8gateway/config"

	"github.com/rs/zerolog"
)

type LaunchRequest struct {
	Username     string
	GameCode     string
	IsMobile     bool
	SessionToken string
}

// Game is a catalog entry as the provider sent it, plus the display keys
// operator front ends expect.
type Game map[string]any

type GameLauncher interface {
	ListGames(ctx context.Context) ([]Game, error)
	StartGame(ctx context.Context, req LaunchRequest) (string, error)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client calls the provider with basic auth on every request.
type Client struct {
	baseURL    string
	username   string
	apiKey     string
	productID  string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg config.APIConfig, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		username:   cfg.Username,
		apiKey:     cfg.Key,
		productID:  cfg.ProductID,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "provider").Logger(),
	}
}

func (c *Client) ListGames(ctx context.Context) ([]Game, error) {
	endpoint := fmt.Sprintf("%s/seamless/games?productId=%s", c.baseURL, url.QueryEscape(c.productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.fail("list_games", err)
	}

	data, err := c.do(req)
	if err != nil {
		return nil, c.fail("list_games", err)
	}

	var payload struct {
		Games []Game `json:"games"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, c.fail("list_games", fmt.Errorf("decode games: %w", err))
	}

	games := make([]Game, 0, len(payload.Games))
	for _, g := range payload.Games {
		// A null entry decodes to a nil map.
		if g == nil {
			continue
		}
		g["GameType"] = g["type"]
		g["GameTypeName"] = g["type"]
		g["GameCode"] = g["code"]
		g["GameName"] = g["name"]
		g["GameImage"] = g["img"]
		g["Order"] = g["rank"]
		games = append(games, g)
	}
	return games, nil
}

// StartGame logs the player in with the provider and returns the game URL.
func (c *Client) StartGame(ctx context.Context, lr LaunchRequest) (string, error) {
	body, err := json.Marshal(map[string]any{
		"username":      lr.Username,
		"productId":     c.productID,
		"gameCode":      lr.GameCode,
		"isMobileLogin": lr.IsMobile,
		"sessionToken":  lr.SessionToken,
		"betLimit":      []any{},
	})
	if err != nil {
		return "", c.fail("login", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/seamless/logIn", bytes.NewReader(body))
	if err != nil {
		return "", c.fail("login", err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return "", c.fail("login", err)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &payload); err != nil {
			return "", c.fail("login", fmt.Errorf("decode login: %w", err))
		}
	}
	if payload.URL == "" {
		return "", c.fail("login", errors.New("provider returned no game url"))
	}

	if strings.HasPrefix(payload.URL, "//") {
		payload.URL = "https:" + payload.URL
	}
	return payload.URL, nil
}

// do sends req and returns the envelope's data when code is 0.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.SetBasicAuth(c.username, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("provider responded %s", resp.Status)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("provider code %d: %s", env.Code, env.Message)
	}
	return env.Data, nil
}

func (c *Client) fail(op string, err error) error {
	c.log.Error().Err(err).Str("op", op).Msg("provider call failed")
	return apperr.Reported("provider."+op, err)
}
