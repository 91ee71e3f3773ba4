package middlewares

import (
	"errors"
	"fmt"
	"time"

	"i8gateway/apperr"
	"i8gateway/helpers"
	"i8gateway/services"
	"i8gateway/tokens"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Session is the verified player behind a game API call.
type Session struct {
	UserID  string
	AgentID int
}

// SessionAuth verifies the Authorization token with the claimed agent's
// game key, falling back to secretKey when the agent has none.
func SessionAuth(agents AgentSource, secretKey string, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(fiber.HeaderAuthorization)

		peeked, err := tokens.PeekSession(raw)
		if err != nil {
			return unauthorized(c, log, apperr.Validation("session.decode", err))
		}
		agentID, err := peeked.AgentIDInt()
		if err != nil {
			return unauthorized(c, log, apperr.Validation("session.agent", fmt.Errorf("agentId %q: %w", peeked.AgentID, err)))
		}

		agent, err := agents.Agent(c.UserContext(), agentID)
		if err != nil {
			if errors.Is(err, services.ErrAgentNotFound) {
				err = apperr.Validation("session.agent", err)
			}
			return unauthorized(c, log, err)
		}

		key := agent.GameKey
		if key == "" {
			key = secretKey
		}
		claims, err := tokens.VerifySession(raw, key, time.Now())
		if err != nil {
			return unauthorized(c, log, apperr.Validation("session.verify", err))
		}

		c.Locals(localSession, Session{UserID: claims.UserID.String(), AgentID: agentID})
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, log zerolog.Logger, err error) error {
	if apperr.KindOf(err) == apperr.KindValidation {
		log.Warn().Err(err).Str("path", c.Path()).Msg("invalid session token")
	} else {
		log.Error().Err(err).Str("path", c.Path()).Msg("session agent lookup failed")
	}
	return helpers.JSONError(c, fiber.StatusUnauthorized, "Invalid token")
}

func CurrentSession(c *fiber.Ctx) Session {
	s, _ := c.Locals(localSession).(Session)
	return s
}
