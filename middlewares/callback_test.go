package middlewares

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"i8gateway/logger"
	"i8gateway/models"
	"i8gateway/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type agentFunc func(ctx context.Context, id int) (*models.Agent, error)

func (f agentFunc) Agent(ctx context.Context, id int) (*models.Agent, error) { return f(ctx, id) }

func knownAgent(_ context.Context, id int) (*models.Agent, error) {
	if id == 1 {
		return &models.Agent{AgentID: 1, AgentPrefix: "amb"}, nil
	}
	return nil, fmt.Errorf("%w: %d", services.ErrAgentNotFound, id)
}

func TestCallbackAuthRefusals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		agents agentFunc
		body   string
		level  string
	}{
		{"unparseable body", knownAgent, `{`, "warn"},
		{"malformed username", knownAgent, `{"username":"player"}`, "warn"},
		{"unknown agent", knownAgent, `{"username":"amb0002player"}`, "warn"},
		{"agent store down", func(context.Context, int) (*models.Agent, error) {
			return nil, errors.New("connection refused")
		}, `{"username":"amb0001player"}`, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var logs bytes.Buffer
			app := fiber.New()
			app.Post("/cb", CallbackAuth(tt.agents, logger.NewWithWriter(&logs, "test", "debug")), func(c *fiber.Ctx) error {
				t.Error("handler must not run")
				return nil
			})

			req := httptest.NewRequest(http.MethodPost, "/cb", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			var out map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.EqualValues(t, 30001, out["Error"])

			var line map[string]any
			require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &line))
			assert.Equal(t, tt.level, line["level"])
		})
	}
}

func TestCallbackAuthStoresIdentity(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	app := fiber.New()
	app.Post("/cb", CallbackAuth(agentFunc(knownAgent), logger.NewWithWriter(&logs, "test", "debug")), func(c *fiber.Ctx) error {
		who := CallbackIdentity(c)
		return c.SendString(fmt.Sprintf("%d/%s/%s", who.AgentID, who.UserID, CallbackRequest(c).ID))
	})

	req := httptest.NewRequest(http.MethodPost, "/cb", strings.NewReader(`{"id":77,"username":"AMB0001Player"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	assert.Equal(t, "1/Player/77", body.String())
	assert.Empty(t, logs.String())
}
