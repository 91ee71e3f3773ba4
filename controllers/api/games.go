package api

import (
	"time"

	"i8gateway/helpers"
	"i8gateway/identity"
	"i8gateway/middlewares"
	"i8gateway/providers"
	"i8gateway/tokens"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type Handler struct {
	launcher  providers.GameLauncher
	agents    middlewares.AgentSource
	secretKey string
	log       zerolog.Logger
	now       func() time.Time
}

func NewHandler(launcher providers.GameLauncher, agents middlewares.AgentSource, secretKey string, log zerolog.Logger) *Handler {
	return &Handler{
		launcher:  launcher,
		agents:    agents,
		secretKey: secretKey,
		log:       log.With().Str("component", "api").Logger(),
		now:       time.Now,
	}
}

func (h *Handler) ListGames(c *fiber.Ctx) error {
	games, err := h.launcher.ListGames(c.UserContext())
	if err != nil {
		return helpers.JSONError(c, fiber.StatusInternalServerError, "Failed to get game list")
	}
	return helpers.JSONSuccess(c, fiber.Map{"data": games})
}

// LaunchGame signs a player session and exchanges it with the provider for
// a game URL.
func (h *Handler) LaunchGame(c *fiber.Ctx) error {
	gameCode := c.Query("gameCode")
	if gameCode == "" {
		return helpers.JSONError(c, fiber.StatusBadRequest, "gameCode is required")
	}
	s := middlewares.CurrentSession(c)

	agent, err := h.agents.Agent(c.UserContext(), s.AgentID)
	if err != nil {
		h.log.Error().Err(err).Int("agentId", s.AgentID).Msg("launch agent lookup failed")
		return helpers.JSONError(c, fiber.StatusInternalServerError, "Failed to login and launchgame")
	}

	token, err := tokens.SignSessionToken(h.secretKey, s.UserID, s.AgentID, h.now())
	if err != nil {
		h.log.Error().Err(err).Msg("sign session token")
		return helpers.JSONError(c, fiber.StatusInternalServerError, "Failed to login and launchgame")
	}

	url, err := h.launcher.StartGame(c.UserContext(), providers.LaunchRequest{
		Username:     identity.Username(agent.AgentPrefix, s.AgentID, s.UserID),
		GameCode:     gameCode,
		IsMobile:     c.QueryBool("isMobile"),
		SessionToken: token,
	})
	if err != nil {
		return helpers.JSONError(c, fiber.StatusInternalServerError, "Failed to login and launchgame")
	}

	return helpers.JSONSuccess(c, fiber.Map{"redirectUrl": url})
}
